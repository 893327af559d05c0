package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/polycontrol/api/internal/auth"
	"github.com/polycontrol/api/internal/database"
	"github.com/polycontrol/api/internal/handler"
	"github.com/polycontrol/api/internal/middleware"
	"github.com/polycontrol/api/internal/service"
	"github.com/polycontrol/api/internal/workflow"
)

// --- Mock OrderServicer ---

type mockOrderService struct {
	createFn     func(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error)
	transitionFn func(ctx context.Context, req service.TransitionRequest) (*database.Order, error)
	notifyFn     func(ctx context.Context, req service.NotifyRequest) ([]database.ClientNotification, error)
}

func (m *mockOrderService) CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error) {
	return m.createFn(ctx, req)
}

func (m *mockOrderService) Transition(ctx context.Context, req service.TransitionRequest) (*database.Order, error) {
	return m.transitionFn(ctx, req)
}

func (m *mockOrderService) Notify(ctx context.Context, req service.NotifyRequest) ([]database.ClientNotification, error) {
	return m.notifyFn(ctx, req)
}

// --- Mock OrderStore ---

type mockOrderStore struct {
	getOrderFn                func(ctx context.Context, id uuid.UUID) (database.Order, error)
	listOrdersFn              func(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	countOrdersFn             func(ctx context.Context, arg database.CountOrdersParams) (int64, error)
	listOrderItemsByOrderFn   func(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	listOrderHistoryByOrderFn func(ctx context.Context, orderID uuid.UUID) ([]database.ListOrderHistoryByOrderRow, error)
}

func (m *mockOrderStore) GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error) {
	if m.getOrderFn != nil {
		return m.getOrderFn(ctx, id)
	}
	return database.Order{}, pgx.ErrNoRows
}

func (m *mockOrderStore) ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error) {
	if m.listOrdersFn != nil {
		return m.listOrdersFn(ctx, arg)
	}
	return []database.Order{}, nil
}

func (m *mockOrderStore) CountOrders(ctx context.Context, arg database.CountOrdersParams) (int64, error) {
	if m.countOrdersFn != nil {
		return m.countOrdersFn(ctx, arg)
	}
	return 0, nil
}

func (m *mockOrderStore) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error) {
	if m.listOrderItemsByOrderFn != nil {
		return m.listOrderItemsByOrderFn(ctx, orderID)
	}
	return []database.OrderItem{}, nil
}

func (m *mockOrderStore) ListOrderHistoryByOrder(ctx context.Context, orderID uuid.UUID) ([]database.ListOrderHistoryByOrderRow, error) {
	if m.listOrderHistoryByOrderFn != nil {
		return m.listOrderHistoryByOrderFn(ctx, orderID)
	}
	return []database.ListOrderHistoryByOrderRow{}, nil
}

// --- Test helpers ---

const testJWTSecret = "test-secret"

func testClaims(role string) *auth.Claims {
	return &auth.Claims{
		UserID:   uuid.New(),
		Role:     role,
		FullName: "Анна Смирнова",
	}
}

func setupOrderRouter(svc *mockOrderService, store *mockOrderStore) *chi.Mux {
	h := handler.NewOrderHandler(svc, store)
	r := chi.NewRouter()
	r.Use(middleware.Authenticate(testJWTSecret))
	h.RegisterRoutes(r)
	return r
}

func doAuthRequest(t *testing.T, router http.Handler, method, path string, body interface{}, claims *auth.Claims) *httptest.ResponseRecorder {
	t.Helper()

	token, err := auth.GenerateToken(testJWTSecret, claims.UserID, claims.Role, claims.FullName)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	var req *http.Request
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeJSONMap(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func testNumeric(t *testing.T, s string) pgtype.Numeric {
	t.Helper()
	var n pgtype.Numeric
	if err := n.Scan(s); err != nil {
		t.Fatalf("scan numeric %q: %v", s, err)
	}
	return n
}

func testOrder(status string) database.Order {
	return database.Order{
		ID:           uuid.New(),
		OrderNumber:  "POL-2026-001",
		ClientName:   "ИП Ахметов",
		ClientType:   "retail",
		Status:       status,
		Total:        pgtype.Numeric{},
		MaterialCost: pgtype.Numeric{},
		CreatedBy:    uuid.New(),
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
}

// --- Create ---

func TestOrderCreate_HappyPath(t *testing.T) {
	claims := testClaims("manager")
	serviceID := uuid.New()

	order := testOrder("created")
	order.Total = testNumeric(t, "1350.00")

	svc := &mockOrderService{
		createFn: func(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error) {
			if req.CreatedBy != claims.UserID {
				t.Errorf("created_by: got %v, want %v", req.CreatedBy, claims.UserID)
			}
			if req.ClientName != "ИП Ахметов" {
				t.Errorf("client_name: got %q", req.ClientName)
			}
			if len(req.Items) != 1 || req.Items[0].Width != "2" {
				t.Errorf("items: got %+v", req.Items)
			}
			return &service.CreateOrderResult{
				Order: order,
				Items: []database.OrderItem{{
					ID:          uuid.New(),
					OrderID:     order.ID,
					ServiceName: "Баннер",
					Unit:        "м²",
					Quantity:    testNumeric(t, "3.00"),
					UnitPrice:   testNumeric(t, "450.00"),
					Total:       testNumeric(t, "1350.00"),
				}},
			}, nil
		},
	}

	router := setupOrderRouter(svc, &mockOrderStore{})
	rr := doAuthRequest(t, router, "POST", "/orders", map[string]interface{}{
		"client_name": "ИП Ахметов",
		"client_type": "retail",
		"items": []map[string]interface{}{
			{"service_id": serviceID.String(), "width": "2", "height": "1.5"},
		},
	}, claims)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusCreated, rr.Body.String())
	}

	resp := decodeJSONMap(t, rr)
	if resp["order_number"] != "POL-2026-001" {
		t.Errorf("order_number: got %v", resp["order_number"])
	}
	if resp["total"] != "1350.00" {
		t.Errorf("total: got %v", resp["total"])
	}
	if resp["status"] != "created" {
		t.Errorf("status: got %v", resp["status"])
	}
	if _, present := resp["material_cost"]; present {
		t.Error("material_cost must be hidden from managers")
	}

	items, ok := resp["items"].([]interface{})
	if !ok || len(items) != 1 {
		t.Fatalf("items: got %v", resp["items"])
	}
	item := items[0].(map[string]interface{})
	if item["service_name"] != "Баннер" {
		t.Errorf("item service_name: got %v", item["service_name"])
	}
	if item["unit_price"] != "450.00" {
		t.Errorf("item unit_price: got %v", item["unit_price"])
	}
}

func TestOrderCreate_AssignmentsForwarded(t *testing.T) {
	claims := testClaims("manager")
	designerID := uuid.New()
	masterID := uuid.New()

	order := testOrder("created")
	order.AssignedDesigner = pgtype.UUID{Bytes: designerID, Valid: true}
	order.AssignedMaster = pgtype.UUID{Bytes: masterID, Valid: true}

	svc := &mockOrderService{
		createFn: func(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error) {
			if req.AssignedDesigner != designerID.String() {
				t.Errorf("assigned_designer: got %q, want %q", req.AssignedDesigner, designerID)
			}
			if req.AssignedMaster != masterID.String() {
				t.Errorf("assigned_master: got %q, want %q", req.AssignedMaster, masterID)
			}
			if req.AssignedAssistant != "" {
				t.Errorf("assigned_assistant: got %q, want empty", req.AssignedAssistant)
			}
			return &service.CreateOrderResult{Order: order}, nil
		},
	}

	router := setupOrderRouter(svc, &mockOrderStore{})
	rr := doAuthRequest(t, router, "POST", "/orders", map[string]interface{}{
		"client_name":       "Клиент",
		"client_type":       "retail",
		"assigned_designer": designerID.String(),
		"assigned_master":   masterID.String(),
		"items":             []map[string]interface{}{{"service_id": uuid.New().String()}},
	}, claims)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}
	resp := decodeJSONMap(t, rr)
	if resp["assigned_designer"] != designerID.String() {
		t.Errorf("response assigned_designer: got %v", resp["assigned_designer"])
	}
	if resp["assigned_assistant"] != nil {
		t.Errorf("response assigned_assistant: got %v, want null", resp["assigned_assistant"])
	}
}

func TestOrderCreate_DirectorSeesMaterialCost(t *testing.T) {
	claims := testClaims("director")

	order := testOrder("created")
	order.Total = testNumeric(t, "1350.00")
	order.MaterialCost = testNumeric(t, "450.00")

	svc := &mockOrderService{
		createFn: func(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error) {
			return &service.CreateOrderResult{Order: order}, nil
		},
	}

	router := setupOrderRouter(svc, &mockOrderStore{})
	rr := doAuthRequest(t, router, "POST", "/orders", map[string]interface{}{
		"client_name": "Клиент",
		"client_type": "retail",
		"items":       []map[string]interface{}{{"service_id": uuid.New().String()}},
	}, claims)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}
	resp := decodeJSONMap(t, rr)
	if resp["material_cost"] != "450.00" {
		t.Errorf("material_cost: got %v, want 450.00", resp["material_cost"])
	}
}

func TestOrderCreate_RoleForbidden(t *testing.T) {
	svc := &mockOrderService{
		createFn: func(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error) {
			t.Fatal("service must not be called")
			return nil, nil
		},
	}
	router := setupOrderRouter(svc, &mockOrderStore{})

	for _, role := range []string{"designer", "master", "assistant"} {
		rr := doAuthRequest(t, router, "POST", "/orders", map[string]interface{}{
			"client_name": "Клиент",
			"items":       []map[string]interface{}{{"service_id": uuid.New().String()}},
		}, testClaims(role))
		if rr.Code != http.StatusForbidden {
			t.Errorf("role %s: got %d, want %d", role, rr.Code, http.StatusForbidden)
		}
	}
}

func TestOrderCreate_RequestValidation(t *testing.T) {
	svc := &mockOrderService{
		createFn: func(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error) {
			t.Fatal("service must not be called")
			return nil, nil
		},
	}
	router := setupOrderRouter(svc, &mockOrderStore{})
	claims := testClaims("manager")

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing client_name", map[string]interface{}{
			"client_type": "retail",
			"items":       []map[string]interface{}{{"service_id": uuid.New().String()}},
		}},
		{"no items", map[string]interface{}{
			"client_name": "Клиент", "client_type": "retail",
		}},
		{"item without service_id", map[string]interface{}{
			"client_name": "Клиент", "client_type": "retail",
			"items": []map[string]interface{}{{"width": "2"}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doAuthRequest(t, router, "POST", "/orders", tt.body, claims)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("got %d, want %d; body: %s", rr.Code, http.StatusBadRequest, rr.Body.String())
			}
		})
	}
}

func TestOrderCreate_ServiceErrorMapping(t *testing.T) {
	claims := testClaims("manager")

	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"service not found", service.ErrServiceNotFound, http.StatusBadRequest},
		{"dimensions required", service.ErrDimensionsRequired, http.StatusBadRequest},
		{"zero total", service.ErrZeroTotal, http.StatusBadRequest},
		{"insufficient material", service.ErrInsufficientMaterial, http.StatusConflict},
		{"db failure", pgx.ErrTxClosed, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockOrderService{
				createFn: func(ctx context.Context, req service.CreateOrderRequest) (*service.CreateOrderResult, error) {
					return nil, tt.err
				},
			}
			router := setupOrderRouter(svc, &mockOrderStore{})
			rr := doAuthRequest(t, router, "POST", "/orders", map[string]interface{}{
				"client_name": "Клиент",
				"client_type": "retail",
				"items":       []map[string]interface{}{{"service_id": uuid.New().String()}},
			}, claims)
			if rr.Code != tt.wantCode {
				t.Errorf("got %d, want %d; body: %s", rr.Code, tt.wantCode, rr.Body.String())
			}
		})
	}
}

// --- List ---

func TestOrderList_DefaultsAndPagination(t *testing.T) {
	var gotList database.ListOrdersParams

	store := &mockOrderStore{
		listOrdersFn: func(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error) {
			gotList = arg
			return []database.Order{testOrder("created"), testOrder("ready")}, nil
		},
		countOrdersFn: func(ctx context.Context, arg database.CountOrdersParams) (int64, error) {
			return 42, nil
		},
	}
	router := setupOrderRouter(&mockOrderService{}, store)

	rr := doAuthRequest(t, router, "GET", "/orders?limit=500&offset=10", nil, testClaims("manager"))
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}

	if gotList.Limit != 100 {
		t.Errorf("limit capped: got %d, want 100", gotList.Limit)
	}
	if gotList.Offset != 10 {
		t.Errorf("offset: got %d, want 10", gotList.Offset)
	}
	if gotList.Statuses != nil {
		t.Errorf("statuses: got %v, want nil for manager", gotList.Statuses)
	}

	resp := decodeJSONMap(t, rr)
	if resp["total"] != float64(42) {
		t.Errorf("total: got %v, want 42", resp["total"])
	}
	orders := resp["orders"].([]interface{})
	if len(orders) != 2 {
		t.Errorf("orders: got %d, want 2", len(orders))
	}
}

func TestOrderList_StatusFilter(t *testing.T) {
	var gotList database.ListOrdersParams
	store := &mockOrderStore{
		listOrdersFn: func(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error) {
			gotList = arg
			return nil, nil
		},
	}
	router := setupOrderRouter(&mockOrderService{}, store)

	rr := doAuthRequest(t, router, "GET", "/orders?status=ready,closed", nil, testClaims("manager"))
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}
	if len(gotList.Statuses) != 2 || gotList.Statuses[0] != "ready" || gotList.Statuses[1] != "closed" {
		t.Errorf("statuses: got %v", gotList.Statuses)
	}

	rr = doAuthRequest(t, router, "GET", "/orders?status=shipped", nil, testClaims("manager"))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("unknown status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestOrderList_RoleQueues(t *testing.T) {
	var gotList database.ListOrdersParams
	store := &mockOrderStore{
		listOrdersFn: func(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error) {
			gotList = arg
			return nil, nil
		},
	}
	router := setupOrderRouter(&mockOrderService{}, store)

	// A designer only sees the design pipeline.
	rr := doAuthRequest(t, router, "GET", "/orders", nil, testClaims("designer"))
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	want := []string{"created", "design", "design_done"}
	if len(gotList.Statuses) != len(want) {
		t.Fatalf("designer statuses: got %v, want %v", gotList.Statuses, want)
	}
	for i, s := range want {
		if gotList.Statuses[i] != s {
			t.Errorf("designer statuses[%d]: got %s, want %s", i, gotList.Statuses[i], s)
		}
	}

	// A master asking for a status outside their queue falls back to the queue.
	rr = doAuthRequest(t, router, "GET", "/orders?status=closed", nil, testClaims("master"))
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	if len(gotList.Statuses) != 4 {
		t.Errorf("master fallback statuses: got %v", gotList.Statuses)
	}

	// A requested status inside the queue narrows it.
	rr = doAuthRequest(t, router, "GET", "/orders?status=production", nil, testClaims("master"))
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	if len(gotList.Statuses) != 1 || gotList.Statuses[0] != "production" {
		t.Errorf("master narrowed statuses: got %v", gotList.Statuses)
	}
}

func TestOrderList_AssignedWidensRestrictedQueues(t *testing.T) {
	var gotList database.ListOrdersParams
	var gotCount database.CountOrdersParams
	store := &mockOrderStore{
		listOrdersFn: func(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error) {
			gotList = arg
			return nil, nil
		},
		countOrdersFn: func(ctx context.Context, arg database.CountOrdersParams) (int64, error) {
			gotCount = arg
			return 0, nil
		},
	}
	router := setupOrderRouter(&mockOrderService{}, store)

	// A designer's own orders stay visible outside the design queue.
	claims := testClaims("designer")
	rr := doAuthRequest(t, router, "GET", "/orders", nil, claims)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	if !gotList.AssignedTo.Valid || gotList.AssignedTo.Bytes != claims.UserID {
		t.Errorf("list assigned_to: got %+v, want %v", gotList.AssignedTo, claims.UserID)
	}
	if !gotCount.AssignedTo.Valid || gotCount.AssignedTo.Bytes != claims.UserID {
		t.Errorf("count assigned_to: got %+v, want %v", gotCount.AssignedTo, claims.UserID)
	}

	// Managers see everything already; no assignment match needed.
	rr = doAuthRequest(t, router, "GET", "/orders", nil, testClaims("manager"))
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	if gotList.AssignedTo.Valid {
		t.Errorf("manager assigned_to: got %+v, want NULL", gotList.AssignedTo)
	}
}

func TestOrderList_SearchAndClientType(t *testing.T) {
	var gotList database.ListOrdersParams
	store := &mockOrderStore{
		listOrdersFn: func(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error) {
			gotList = arg
			return nil, nil
		},
	}
	router := setupOrderRouter(&mockOrderService{}, store)

	rr := doAuthRequest(t, router, "GET", "/orders?client_type=dealer&q=POL-2026", nil, testClaims("manager"))
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	if gotList.ClientType != "dealer" || gotList.Search != "POL-2026" {
		t.Errorf("filters: got %+v", gotList)
	}

	rr = doAuthRequest(t, router, "GET", "/orders?client_type=vip", nil, testClaims("manager"))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad client_type: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

// --- Get ---

func TestOrderGet_WithItemsAndHistory(t *testing.T) {
	order := testOrder("design")
	order.Deadline = pgtype.Text{String: "2026-03-01", Valid: true}
	fromCreated := pgtype.Text{String: "created", Valid: true}

	store := &mockOrderStore{
		getOrderFn: func(ctx context.Context, id uuid.UUID) (database.Order, error) {
			return order, nil
		},
		listOrderItemsByOrderFn: func(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error) {
			return []database.OrderItem{{
				ID:          uuid.New(),
				OrderID:     order.ID,
				ServiceName: "Баннер",
				Unit:        "м²",
				Area:        testNumeric(t, "3.00"),
				Quantity:    testNumeric(t, "3.00"),
			}}, nil
		},
		listOrderHistoryByOrderFn: func(ctx context.Context, orderID uuid.UUID) ([]database.ListOrderHistoryByOrderRow, error) {
			return []database.ListOrderHistoryByOrderRow{
				{ToStatus: "created", ChangedByName: "Анна Смирнова", CreatedAt: time.Now()},
				{FromStatus: fromCreated, ToStatus: "design", ChangedByName: "Анна Смирнова", CreatedAt: time.Now()},
			}, nil
		},
	}
	router := setupOrderRouter(&mockOrderService{}, store)

	rr := doAuthRequest(t, router, "GET", "/orders/"+order.ID.String(), nil, testClaims("manager"))
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}

	resp := decodeJSONMap(t, rr)
	if resp["deadline"] != "2026-03-01" {
		t.Errorf("deadline: got %v", resp["deadline"])
	}
	history := resp["history"].([]interface{})
	if len(history) != 2 {
		t.Fatalf("history: got %d entries, want 2", len(history))
	}
	last := history[1].(map[string]interface{})
	if last["from_status"] != "created" || last["to_status"] != "design" {
		t.Errorf("history entry: got %v", last)
	}
	if last["changed_by"] != "Анна Смирнова" {
		t.Errorf("changed_by: got %v", last["changed_by"])
	}

	items := resp["items"].([]interface{})
	if len(items) != 1 {
		t.Fatalf("items: got %d, want 1", len(items))
	}
	if items[0].(map[string]interface{})["area"] != "3.00" {
		t.Errorf("item area: got %v", items[0].(map[string]interface{})["area"])
	}
}

func TestOrderGet_NotFound(t *testing.T) {
	router := setupOrderRouter(&mockOrderService{}, &mockOrderStore{})
	rr := doAuthRequest(t, router, "GET", "/orders/"+uuid.New().String(), nil, testClaims("manager"))
	if rr.Code != http.StatusNotFound {
		t.Errorf("got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestOrderGet_BadID(t *testing.T) {
	router := setupOrderRouter(&mockOrderService{}, &mockOrderStore{})
	rr := doAuthRequest(t, router, "GET", "/orders/not-a-uuid", nil, testClaims("manager"))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

// --- UpdateStatus ---

func TestOrderUpdateStatus_HappyPath(t *testing.T) {
	claims := testClaims("manager")
	order := testOrder("design")

	svc := &mockOrderService{
		transitionFn: func(ctx context.Context, req service.TransitionRequest) (*database.Order, error) {
			if req.Target != "design" {
				t.Errorf("target: got %q, want design", req.Target)
			}
			if req.Role != "manager" || req.ActorID != claims.UserID {
				t.Errorf("actor: got role=%s id=%v", req.Role, req.ActorID)
			}
			return &order, nil
		},
	}
	router := setupOrderRouter(svc, &mockOrderStore{})

	rr := doAuthRequest(t, router, "PATCH", "/orders/"+order.ID.String()+"/status",
		map[string]string{"status": "design"}, claims)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}
	resp := decodeJSONMap(t, rr)
	if resp["status"] != "design" {
		t.Errorf("status: got %v", resp["status"])
	}
	// An order in design can be advanced further.
	if resp["next_action"] != "Макет готов" {
		t.Errorf("next_action: got %v", resp["next_action"])
	}
}

func TestOrderUpdateStatus_UnknownStatus(t *testing.T) {
	router := setupOrderRouter(&mockOrderService{}, &mockOrderStore{})
	rr := doAuthRequest(t, router, "PATCH", "/orders/"+uuid.New().String()+"/status",
		map[string]string{"status": "shipped"}, testClaims("manager"))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestOrderUpdateStatus_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"not found", service.ErrOrderNotFound, http.StatusNotFound},
		{"forbidden", workflow.ErrForbidden, http.StatusForbidden},
		{"note required", workflow.ErrNoteRequired, http.StatusBadRequest},
		{"invalid transition", workflow.ErrInvalidTransition, http.StatusConflict},
		{"stale status", service.ErrStaleStatus, http.StatusConflict},
		{"db failure", pgx.ErrTxClosed, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockOrderService{
				transitionFn: func(ctx context.Context, req service.TransitionRequest) (*database.Order, error) {
					return nil, tt.err
				},
			}
			router := setupOrderRouter(svc, &mockOrderStore{})
			rr := doAuthRequest(t, router, "PATCH", "/orders/"+uuid.New().String()+"/status",
				map[string]string{"status": "design"}, testClaims("manager"))
			if rr.Code != tt.wantCode {
				t.Errorf("got %d, want %d; body: %s", rr.Code, tt.wantCode, rr.Body.String())
			}
		})
	}
}

// --- Notify ---

func TestOrderNotify_HappyPath(t *testing.T) {
	claims := testClaims("manager")
	orderID := uuid.New()

	svc := &mockOrderService{
		notifyFn: func(ctx context.Context, req service.NotifyRequest) ([]database.ClientNotification, error) {
			if req.OrderID != orderID {
				t.Errorf("order id: got %v, want %v", req.OrderID, orderID)
			}
			if len(req.Channels) != 1 || req.Channels[0] != "sms" {
				t.Errorf("channels: got %v", req.Channels)
			}
			if req.Message != "Готово, заберите до пятницы." {
				t.Errorf("message: got %q", req.Message)
			}
			return []database.ClientNotification{{
				ID:        uuid.New(),
				OrderID:   orderID,
				Channel:   "sms",
				Recipient: "+7 777 123 45 67",
				Message:   "Ваш заказ готов. Можете забирать. PolyControl.",
				Status:    "queued",
			}}, nil
		},
	}
	router := setupOrderRouter(svc, &mockOrderStore{})

	rr := doAuthRequest(t, router, "POST", "/orders/"+orderID.String()+"/notify",
		map[string]interface{}{"channels": []string{"sms"}, "message": "Готово, заберите до пятницы."}, claims)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}

	var resp []map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp) != 1 || resp[0]["channel"] != "sms" || resp[0]["status"] != "queued" {
		t.Errorf("response: got %v", resp)
	}
}

func TestOrderNotify_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"not found", service.ErrOrderNotFound, http.StatusNotFound},
		{"wrong role", workflow.ErrForbidden, http.StatusForbidden},
		{"not ready", workflow.ErrInvalidTransition, http.StatusConflict},
		{"no phone", service.ErrNoRecipient, http.StatusBadRequest},
		{"bad channel", service.ErrInvalidChannel, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockOrderService{
				notifyFn: func(ctx context.Context, req service.NotifyRequest) ([]database.ClientNotification, error) {
					return nil, tt.err
				},
			}
			router := setupOrderRouter(svc, &mockOrderStore{})
			rr := doAuthRequest(t, router, "POST", "/orders/"+uuid.New().String()+"/notify", nil, testClaims("manager"))
			if rr.Code != tt.wantCode {
				t.Errorf("got %d, want %d; body: %s", rr.Code, tt.wantCode, rr.Body.String())
			}
		})
	}
}
