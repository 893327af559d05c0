package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/polycontrol/api/internal/database"
	"github.com/polycontrol/api/internal/enum"
	"github.com/polycontrol/api/internal/middleware"
	"github.com/polycontrol/api/internal/pricing"
)

// PricelistStore defines the database methods needed by pricelist handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type PricelistStore interface {
	ListActiveServices(ctx context.Context) ([]database.Service, error)
	GetService(ctx context.Context, id uuid.UUID) (database.Service, error)
	UpdateServicePrices(ctx context.Context, arg database.UpdateServicePricesParams) (database.Service, error)
	InsertPriceHistory(ctx context.Context, arg database.InsertPriceHistoryParams) (database.PriceHistory, error)
}

// PricelistHandler handles price list endpoints.
type PricelistHandler struct {
	store PricelistStore
}

// NewPricelistHandler creates a new PricelistHandler.
func NewPricelistHandler(store PricelistStore) *PricelistHandler {
	return &PricelistHandler{store: store}
}

// RegisterRoutes registers pricelist endpoints on the given Chi router.
func (h *PricelistHandler) RegisterRoutes(r chi.Router) {
	r.Get("/pricelist", h.List)
	r.With(middleware.RequireRole(enum.RoleDirector)).Put("/pricelist/{id}", h.Update)
}

// --- Request / Response types ---

type serviceResponse struct {
	ID          uuid.UUID        `json:"id"`
	Code        string           `json:"code"`
	NameRu      string           `json:"name_ru"`
	NameKy      string           `json:"name_ky"`
	Category    string           `json:"category"`
	Unit        string           `json:"unit"`
	PriceRetail string           `json:"price_retail"`
	PriceDealer string           `json:"price_dealer"`
	CostPrice   *string          `json:"cost_price,omitempty"`
	MinOrder    int32            `json:"min_order"`
	Options     []optionResponse `json:"options"`
	SortOrder   int32            `json:"sort_order"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

type optionResponse struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Price string `json:"price"`
}

type updateServiceRequest struct {
	PriceRetail string `json:"price_retail"`
	PriceDealer string `json:"price_dealer"`
	CostPrice   string `json:"cost_price"`
}

// --- Handlers ---

// List handles GET /pricelist. Cost prices are internal margin data and are
// only included for the director.
func (h *PricelistHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	services, err := h.store.ListActiveServices(r.Context())
	if err != nil {
		log.Printf("ERROR: list services: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	showCost := claims.Role == enum.RoleDirector
	resp := make([]serviceResponse, len(services))
	for i, s := range services {
		resp[i] = toServiceResponse(s, showCost)
	}

	writeJSON(w, http.StatusOK, resp)
}

// Update handles PUT /pricelist/{id}. Every price field that actually changed
// gets a price_history row attributed to the director making the change.
func (h *PricelistHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	serviceID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid service ID"})
		return
	}

	var req updateServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	current, err := h.store.GetService(r.Context(), serviceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "service not found"})
			return
		}
		log.Printf("ERROR: get service: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	retail, err := parsePrice(req.PriceRetail, current.PriceRetail)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid price_retail"})
		return
	}
	dealer, err := parsePrice(req.PriceDealer, current.PriceDealer)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid price_dealer"})
		return
	}
	cost, err := parsePrice(req.CostPrice, current.CostPrice)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid cost_price"})
		return
	}
	if retail.IsNegative() || dealer.IsNegative() || cost.IsNegative() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "prices must be >= 0"})
		return
	}

	updated, err := h.store.UpdateServicePrices(r.Context(), database.UpdateServicePricesParams{
		ID:          serviceID,
		PriceRetail: decimalToNumeric(retail),
		PriceDealer: decimalToNumeric(dealer),
		CostPrice:   decimalToNumeric(cost),
	})
	if err != nil {
		log.Printf("ERROR: update service prices: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	changes := []struct {
		field    string
		old, new decimal.Decimal
	}{
		{"price_retail", numericToDecimal(current.PriceRetail), retail},
		{"price_dealer", numericToDecimal(current.PriceDealer), dealer},
		{"cost_price", numericToDecimal(current.CostPrice), cost},
	}
	for _, c := range changes {
		if c.old.Equal(c.new) {
			continue
		}
		if _, err := h.store.InsertPriceHistory(r.Context(), database.InsertPriceHistoryParams{
			ServiceID: serviceID,
			Field:     c.field,
			OldValue:  decimalToNumeric(c.old),
			NewValue:  decimalToNumeric(c.new),
			ChangedBy: claims.UserID,
		}); err != nil {
			log.Printf("ERROR: insert price history: %v", err)
		}
	}

	writeJSON(w, http.StatusOK, toServiceResponse(updated, true))
}

// --- Helpers ---

func toServiceResponse(s database.Service, showCost bool) serviceResponse {
	resp := serviceResponse{
		ID:          s.ID,
		Code:        s.Code,
		NameRu:      s.NameRu,
		NameKy:      s.NameKy,
		Category:    s.Category,
		Unit:        s.Unit,
		PriceRetail: numericToString(s.PriceRetail),
		PriceDealer: numericToString(s.PriceDealer),
		MinOrder:    s.MinOrder,
		SortOrder:   s.SortOrder,
		UpdatedAt:   s.UpdatedAt,
	}
	if showCost {
		c := numericToString(s.CostPrice)
		resp.CostPrice = &c
	}

	opts := pricing.ParseOptions(s.Options)
	resp.Options = make([]optionResponse, len(opts))
	for i, o := range opts {
		resp.Options[i] = optionResponse{Key: o.Key, Label: o.Label, Price: o.Price.StringFixed(2)}
	}
	return resp
}

// parsePrice keeps the stored value when the field is omitted.
func parsePrice(s string, fallback pgtype.Numeric) (decimal.Decimal, error) {
	if s == "" {
		return numericToDecimal(fallback), nil
	}
	return decimal.NewFromString(s)
}
