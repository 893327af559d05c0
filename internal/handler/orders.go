package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/polycontrol/api/internal/database"
	"github.com/polycontrol/api/internal/enum"
	"github.com/polycontrol/api/internal/middleware"
	"github.com/polycontrol/api/internal/pricing"
	"github.com/polycontrol/api/internal/service"
	"github.com/polycontrol/api/internal/workflow"
)

// OrderServicer defines the service methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error)
	Transition(ctx context.Context, req service.TransitionRequest) (*database.Order, error)
	Notify(ctx context.Context, req service.NotifyRequest) ([]database.ClientNotification, error)
}

// OrderStore defines the database methods needed by order read handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type OrderStore interface {
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	CountOrders(ctx context.Context, arg database.CountOrdersParams) (int64, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	ListOrderHistoryByOrder(ctx context.Context, orderID uuid.UUID) ([]database.ListOrderHistoryByOrderRow, error)
}

// OrderHandler handles order endpoints.
type OrderHandler struct {
	svc   OrderServicer
	store OrderStore
	now   func() time.Time
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc OrderServicer, store OrderStore) *OrderHandler {
	return &OrderHandler{svc: svc, store: store, now: time.Now}
}

// RegisterRoutes registers order endpoints on the given Chi router.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.With(middleware.RequireRole(enum.RoleManager, enum.RoleDirector)).Post("/orders", h.Create)
	r.Get("/orders", h.List)
	r.Get("/orders/{id}", h.Get)
	r.Patch("/orders/{id}/status", h.UpdateStatus)
	r.Post("/orders/{id}/notify", h.Notify)
}

// --- Request / Response types ---

type createOrderRequest struct {
	ClientName        string                   `json:"client_name"`
	ClientPhone       string                   `json:"client_phone"`
	ClientType        string                   `json:"client_type"`
	Deadline          string                   `json:"deadline"`
	Note              string                   `json:"note"`
	AssignedDesigner  string                   `json:"assigned_designer"`
	AssignedMaster    string                   `json:"assigned_master"`
	AssignedAssistant string                   `json:"assigned_assistant"`
	Items             []createOrderItemRequest `json:"items"`
}

type createOrderItemRequest struct {
	ServiceID string   `json:"service_id"`
	Width     string   `json:"width"`
	Height    string   `json:"height"`
	Quantity  string   `json:"quantity"`
	Copies    int32    `json:"copies"`
	Options   []string `json:"options"`
}

type orderResponse struct {
	ID                uuid.UUID           `json:"id"`
	OrderNumber       string              `json:"order_number"`
	ClientName        string              `json:"client_name"`
	ClientPhone       *string             `json:"client_phone"`
	ClientType        string              `json:"client_type"`
	Status            string              `json:"status"`
	NextAction        *string             `json:"next_action,omitempty"`
	Deadline          *string             `json:"deadline"`
	Note              *string             `json:"note"`
	Total             string              `json:"total"`
	MaterialCost      *string             `json:"material_cost,omitempty"`
	IsOverdue         bool                `json:"is_overdue"`
	AssignedDesigner  *string             `json:"assigned_designer"`
	AssignedMaster    *string             `json:"assigned_master"`
	AssignedAssistant *string             `json:"assigned_assistant"`
	CreatedBy         uuid.UUID           `json:"created_by"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
	Items             []orderItemResponse `json:"items,omitempty"`
}

type orderItemResponse struct {
	ID          uuid.UUID        `json:"id"`
	ServiceID   *string          `json:"service_id"`
	ServiceName string           `json:"service_name"`
	Unit        string           `json:"unit"`
	Width       string           `json:"width"`
	Height      string           `json:"height"`
	Copies      int32            `json:"copies"`
	Area        *string          `json:"area"`
	Quantity    string           `json:"quantity"`
	UnitPrice   string           `json:"unit_price"`
	BaseCost    string           `json:"base_cost"`
	Options     []optionResponse `json:"options"`
	OptionsCost string           `json:"options_cost"`
	Total       string           `json:"total"`
}

type orderHistoryResponse struct {
	FromStatus *string   `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	Note       *string   `json:"note"`
	ChangedBy  string    `json:"changed_by"`
	CreatedAt  time.Time `json:"created_at"`
}

// orderDetailResponse extends orderResponse with the status trail.
type orderDetailResponse struct {
	orderResponse
	History []orderHistoryResponse `json:"history"`
}

// orderListResponse wraps a list of orders with pagination metadata.
type orderListResponse struct {
	Orders []orderResponse `json:"orders"`
	Total  int64           `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note"`
}

type notifyOrderRequest struct {
	Channels []string `json:"channels"`
	Message  string   `json:"message"`
}

type notificationResponse struct {
	ID        uuid.UUID `json:"id"`
	Channel   string    `json:"channel"`
	Recipient string    `json:"recipient"`
	Message   string    `json:"message"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// --- Handlers ---

// Create handles POST /orders.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.ClientName == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "client_name is required"})
		return
	}
	if len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "items are required"})
		return
	}
	for i, item := range req.Items {
		if item.ServiceID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "items[" + strconv.Itoa(i) + "]: service_id is required",
			})
			return
		}
	}

	svcItems := make([]service.CreateOrderItemRequest, len(req.Items))
	for i, item := range req.Items {
		svcItems[i] = service.CreateOrderItemRequest{
			ServiceID: item.ServiceID,
			Width:     item.Width,
			Height:    item.Height,
			Quantity:  item.Quantity,
			Copies:    item.Copies,
			Options:   item.Options,
		}
	}

	result, err := h.svc.CreateOrder(r.Context(), service.CreateOrderRequest{
		ClientName:        req.ClientName,
		ClientPhone:       req.ClientPhone,
		ClientType:        req.ClientType,
		Deadline:          req.Deadline,
		Note:              req.Note,
		AssignedDesigner:  req.AssignedDesigner,
		AssignedMaster:    req.AssignedMaster,
		AssignedAssistant: req.AssignedAssistant,
		CreatedBy:         claims.UserID,
		Items:             svcItems,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInsufficientMaterial):
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		case isCreateValidationError(err):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		default:
			log.Printf("ERROR: create order: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return
	}

	resp := h.toOrderResponse(result.Order, claims.Role)
	resp.Items = make([]orderItemResponse, len(result.Items))
	for i, item := range result.Items {
		resp.Items[i] = toOrderItemResponse(item)
	}

	writeJSON(w, http.StatusCreated, resp)
}

// List handles GET /orders.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > 100 {
		limit = 100
	}

	offset := 0
	if s := r.URL.Query().Get("offset"); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			offset = v
		}
	}

	var requested []string
	if s := r.URL.Query().Get("status"); s != "" {
		for _, part := range strings.Split(s, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if !workflow.KnownStatus(part) {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status filter"})
				return
			}
			requested = append(requested, part)
		}
	}
	statuses := visibleStatuses(claims.Role, requested)

	// Restricted roles also see orders assigned to them, whatever the stage.
	var assignedTo pgtype.UUID
	if claims.Role == enum.RoleDesigner || claims.Role == enum.RoleMaster || claims.Role == enum.RoleAssistant {
		assignedTo = pgtype.UUID{Bytes: claims.UserID, Valid: true}
	}

	clientType := r.URL.Query().Get("client_type")
	if clientType != "" && clientType != enum.ClientTypeRetail && clientType != enum.ClientTypeDealer {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid client_type filter"})
		return
	}

	search := r.URL.Query().Get("q")

	orders, err := h.store.ListOrders(r.Context(), database.ListOrdersParams{
		Statuses:   statuses,
		ClientType: clientType,
		Search:     search,
		AssignedTo: assignedTo,
		Limit:      int32(limit),
		Offset:     int32(offset),
	})
	if err != nil {
		log.Printf("ERROR: list orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	total, err := h.store.CountOrders(r.Context(), database.CountOrdersParams{
		Statuses:   statuses,
		ClientType: clientType,
		Search:     search,
		AssignedTo: assignedTo,
	})
	if err != nil {
		log.Printf("ERROR: count orders: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]orderResponse, len(orders))
	for i, o := range orders {
		resp[i] = h.toOrderResponse(o, claims.Role)
	}

	writeJSON(w, http.StatusOK, orderListResponse{
		Orders: resp,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// Get handles GET /orders/{id}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	order, err := h.store.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		log.Printf("ERROR: get order: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	items, err := h.store.ListOrderItemsByOrder(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: list order items: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	history, err := h.store.ListOrderHistoryByOrder(r.Context(), orderID)
	if err != nil {
		log.Printf("ERROR: list order history: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := h.toOrderResponse(order, claims.Role)
	resp.Items = make([]orderItemResponse, len(items))
	for i, item := range items {
		resp.Items[i] = toOrderItemResponse(item)
	}

	historyResp := make([]orderHistoryResponse, len(history))
	for i, entry := range history {
		hr := orderHistoryResponse{
			ToStatus:  entry.ToStatus,
			ChangedBy: entry.ChangedByName,
			CreatedAt: entry.CreatedAt,
		}
		if entry.FromStatus.Valid {
			hr.FromStatus = &entry.FromStatus.String
		}
		if entry.Note.Valid {
			hr.Note = &entry.Note.String
		}
		historyResp[i] = hr
	}

	writeJSON(w, http.StatusOK, orderDetailResponse{
		orderResponse: resp,
		History:       historyResp,
	})
}

// UpdateStatus handles PATCH /orders/{id}/status.
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status is required"})
		return
	}
	if !workflow.KnownStatus(req.Status) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status"})
		return
	}

	updated, err := h.svc.Transition(r.Context(), service.TransitionRequest{
		OrderID: orderID,
		Target:  req.Status,
		Note:    req.Note,
		ActorID: claims.UserID,
		Role:    claims.Role,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOrderNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		case errors.Is(err, workflow.ErrForbidden):
			writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
		case errors.Is(err, workflow.ErrNoteRequired):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		case errors.Is(err, workflow.ErrInvalidTransition), errors.Is(err, service.ErrStaleStatus):
			writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		default:
			log.Printf("ERROR: update order status: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return
	}

	writeJSON(w, http.StatusOK, h.toOrderResponse(*updated, claims.Role))
}

// Notify handles POST /orders/{id}/notify.
func (h *OrderHandler) Notify(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid order ID"})
		return
	}

	var req notifyOrderRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
	}

	created, err := h.svc.Notify(r.Context(), service.NotifyRequest{
		OrderID:  orderID,
		Channels: req.Channels,
		Message:  req.Message,
		ActorID:  claims.UserID,
		Role:     claims.Role,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrOrderNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
		case errors.Is(err, workflow.ErrForbidden):
			writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
		case errors.Is(err, workflow.ErrInvalidTransition):
			writeJSON(w, http.StatusConflict, map[string]string{"error": "order is not ready for pickup"})
		case errors.Is(err, service.ErrNoRecipient), errors.Is(err, service.ErrInvalidChannel):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		default:
			log.Printf("ERROR: notify order: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
		return
	}

	resp := make([]notificationResponse, len(created))
	for i, n := range created {
		resp[i] = notificationResponse{
			ID:        n.ID,
			Channel:   n.Channel,
			Recipient: n.Recipient,
			Message:   n.Message,
			Status:    n.Status,
			CreatedAt: n.CreatedAt,
		}
	}

	writeJSON(w, http.StatusCreated, resp)
}

// --- Helpers ---

// visibleStatuses narrows the status filter by role. Designers and masters
// work from their own stage queues; managers, directors and assistants see
// everything unless they filter explicitly.
func visibleStatuses(role string, requested []string) []string {
	var visible []string
	switch role {
	case enum.RoleDesigner:
		visible = []string{enum.OrderStatusCreated, enum.OrderStatusDesign, enum.OrderStatusDesignDone}
	case enum.RoleMaster:
		visible = []string{enum.OrderStatusDesignDone, enum.OrderStatusProduction, enum.OrderStatusPrinted, enum.OrderStatusPostprocess}
	default:
		return requested
	}

	if len(requested) == 0 {
		return visible
	}
	var out []string
	for _, s := range requested {
		for _, v := range visible {
			if s == v {
				out = append(out, s)
				break
			}
		}
	}
	if len(out) == 0 {
		return visible
	}
	return out
}

// isCreateValidationError checks if the error is a known validation error
// from the service layer that should result in 400 Bad Request.
func isCreateValidationError(err error) bool {
	return errors.Is(err, service.ErrEmptyItems) ||
		errors.Is(err, service.ErrInvalidClientType) ||
		errors.Is(err, service.ErrInvalidServiceID) ||
		errors.Is(err, service.ErrServiceNotFound) ||
		errors.Is(err, service.ErrDimensionsRequired) ||
		errors.Is(err, service.ErrQuantityRequired) ||
		errors.Is(err, service.ErrInvalidDimension) ||
		errors.Is(err, service.ErrInvalidAssignee) ||
		errors.Is(err, service.ErrZeroTotal)
}

func (h *OrderHandler) toOrderResponse(o database.Order, role string) orderResponse {
	resp := orderResponse{
		ID:          o.ID,
		OrderNumber: o.OrderNumber,
		ClientName:  o.ClientName,
		ClientType:  o.ClientType,
		Status:      o.Status,
		Total:       numericToString(o.Total),
		CreatedBy:   o.CreatedBy,
		CreatedAt:   o.CreatedAt,
		UpdatedAt:   o.UpdatedAt,
	}

	if o.ClientPhone.Valid {
		resp.ClientPhone = &o.ClientPhone.String
	}
	if o.Deadline.Valid {
		resp.Deadline = &o.Deadline.String
	}
	if o.Note.Valid {
		resp.Note = &o.Note.String
	}
	if role == enum.RoleDirector {
		c := numericToString(o.MaterialCost)
		resp.MaterialCost = &c
	}
	resp.AssignedDesigner = uuidPtr(o.AssignedDesigner)
	resp.AssignedMaster = uuidPtr(o.AssignedMaster)
	resp.AssignedAssistant = uuidPtr(o.AssignedAssistant)
	if rule, ok := workflow.AdvanceRule(o.Status); ok {
		resp.NextAction = &rule.Label
	}

	deadline := ""
	if o.Deadline.Valid {
		deadline = o.Deadline.String
	}
	resp.IsOverdue = workflow.IsOverdue(o.Status, deadline, h.now())

	return resp
}

func uuidPtr(id pgtype.UUID) *string {
	if !id.Valid {
		return nil
	}
	s := uuid.UUID(id.Bytes).String()
	return &s
}

func toOrderItemResponse(item database.OrderItem) orderItemResponse {
	resp := orderItemResponse{
		ID:          item.ID,
		ServiceName: item.ServiceName,
		Unit:        item.Unit,
		Width:       numericToString(item.Width),
		Height:      numericToString(item.Height),
		Copies:      item.Copies,
		Quantity:    numericToString(item.Quantity),
		UnitPrice:   numericToString(item.UnitPrice),
		BaseCost:    numericToString(item.BaseCost),
		OptionsCost: numericToString(item.OptionsCost),
		Total:       numericToString(item.Total),
	}

	if item.ServiceID.Valid {
		s := uuid.UUID(item.ServiceID.Bytes).String()
		resp.ServiceID = &s
	}
	if item.Area.Valid {
		a := numericToString(item.Area)
		resp.Area = &a
	}

	opts := pricing.ParseOptions(item.Options)
	resp.Options = make([]optionResponse, len(opts))
	for i, o := range opts {
		resp.Options[i] = optionResponse{Key: o.Key, Label: o.Label, Price: o.Price.StringFixed(2)}
	}

	return resp
}
