package handler

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/polycontrol/api/internal/database"
	"github.com/polycontrol/api/internal/enum"
	"github.com/polycontrol/api/internal/pricing"
)

// QuoteStore defines the database methods needed by the quote handler.
// Satisfied by *database.Queries; narrow interface for testability.
type QuoteStore interface {
	GetServiceForOrder(ctx context.Context, id uuid.UUID) (database.Service, error)
}

// QuoteHandler prices a prospective order without creating anything. It is
// the calculator behind the manager's quoting screen: inputs arrive
// half-typed, so bad numbers degrade to zero instead of erroring.
type QuoteHandler struct {
	store QuoteStore
}

// NewQuoteHandler creates a new QuoteHandler.
func NewQuoteHandler(store QuoteStore) *QuoteHandler {
	return &QuoteHandler{store: store}
}

// RegisterRoutes registers the quote endpoint on the given Chi router.
func (h *QuoteHandler) RegisterRoutes(r chi.Router) {
	r.Post("/quote", h.Quote)
}

// --- Request / Response types ---

type quoteRequest struct {
	ClientType string             `json:"client_type"`
	Items      []quoteItemRequest `json:"items"`
}

type quoteItemRequest struct {
	ServiceID string   `json:"service_id"`
	Width     string   `json:"width"`
	Height    string   `json:"height"`
	Quantity  string   `json:"quantity"`
	Copies    int32    `json:"copies"`
	Options   []string `json:"options"`
}

type quoteLineResponse struct {
	ServiceID     string  `json:"service_id"`
	UnitPrice     string  `json:"unit_price"`
	Area          *string `json:"area,omitempty"`
	Quantity      string  `json:"quantity"`
	BaseCost      string  `json:"base_cost"`
	OptionsCost   string  `json:"options_cost"`
	Total         string  `json:"total"`
	MinOrder      int32   `json:"min_order,omitempty"`
	BelowMinOrder bool    `json:"below_min_order,omitempty"`
}

type quoteResponse struct {
	ClientType string              `json:"client_type"`
	Lines      []quoteLineResponse `json:"lines"`
	Total      string              `json:"total"`
}

// --- Handler ---

// Quote handles POST /quote.
func (h *QuoteHandler) Quote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	clientType := req.ClientType
	if clientType != enum.ClientTypeDealer {
		clientType = enum.ClientTypeRetail
	}

	lines := make([]quoteLineResponse, len(req.Items))
	priced := make([]pricing.PricedLine, len(req.Items))
	for i, item := range req.Items {
		line, dbSvc := h.priceQuoteLine(r.Context(), clientType, item)
		priced[i] = line

		resp := quoteLineResponse{
			ServiceID:   item.ServiceID,
			UnitPrice:   line.UnitPrice.StringFixed(2),
			Quantity:    line.Quantity.StringFixed(2),
			BaseCost:    line.BaseCost.StringFixed(2),
			OptionsCost: line.OptionsCost.StringFixed(2),
			Total:       line.Total.StringFixed(2),
		}
		if line.Area != nil {
			a := line.Area.StringFixed(2)
			resp.Area = &a
		}
		// Advisory only: sheet-like services have a practical print minimum,
		// but the order still goes through below it.
		if dbSvc != nil && dbSvc.MinOrder > 0 && pricing.IsSheetUnit(dbSvc.Unit) {
			resp.MinOrder = dbSvc.MinOrder
			minQty := decimal.NewFromInt32(dbSvc.MinOrder)
			resp.BelowMinOrder = line.Quantity.IsPositive() && line.Quantity.LessThan(minQty)
		}
		lines[i] = resp
	}

	writeJSON(w, http.StatusOK, quoteResponse{
		ClientType: clientType,
		Lines:      lines,
		Total:      pricing.Total(priced).StringFixed(2),
	})
}

// priceQuoteLine prices one line with degraded inputs: an unknown or missing
// service and unparseable numbers all collapse to zeros. The looked-up
// service row is returned for advisory fields; nil when the lookup failed.
func (h *QuoteHandler) priceQuoteLine(ctx context.Context, clientType string, item quoteItemRequest) (pricing.PricedLine, *database.Service) {
	var svc *pricing.Service
	var found *database.Service
	if id, err := uuid.Parse(item.ServiceID); err == nil {
		dbSvc, err := h.store.GetServiceForOrder(ctx, id)
		if err == nil {
			found = &dbSvc
			svc = &pricing.Service{
				Unit:        dbSvc.Unit,
				PriceRetail: numericToDecimal(dbSvc.PriceRetail),
				PriceDealer: numericToDecimal(dbSvc.PriceDealer),
				Options:     dbSvc.Options,
			}
		} else {
			log.Printf("quote: service %s lookup: %v", item.ServiceID, err)
		}
	}

	selected := make(map[string]bool, len(item.Options))
	for _, key := range item.Options {
		selected[key] = true
	}

	return pricing.PriceLine(svc, pricing.LineParams{
		ClientType: clientType,
		Quantity:   lenientDecimal(item.Quantity),
		Width:      lenientDecimal(item.Width),
		Height:     lenientDecimal(item.Height),
		Copies:     int(item.Copies),
		Selected:   selected,
	}), found
}

// lenientDecimal parses what it can and treats the rest as zero.
func lenientDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
