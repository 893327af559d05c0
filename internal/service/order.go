package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/polycontrol/api/internal/database"
	"github.com/polycontrol/api/internal/enum"
	"github.com/polycontrol/api/internal/pricing"
	"github.com/polycontrol/api/internal/workflow"
)

const maxOrderNumberRetries = 3

// readyMessage is the text sent to clients when their order can be picked up.
const readyMessage = "Ваш заказ готов. Можете забирать. PolyControl."

// Errors returned by the order service.
var (
	ErrEmptyItems           = errors.New("items are required")
	ErrInvalidClientType    = errors.New("invalid client_type")
	ErrInvalidServiceID     = errors.New("invalid service_id")
	ErrServiceNotFound      = errors.New("service not found")
	ErrDimensionsRequired   = errors.New("width and height must be > 0")
	ErrQuantityRequired     = errors.New("quantity must be > 0")
	ErrInvalidDimension     = errors.New("invalid width, height or quantity")
	ErrZeroTotal            = errors.New("order total must be > 0")
	ErrOrderNotFound        = errors.New("order not found")
	ErrStaleStatus          = errors.New("order status changed, reload and retry")
	ErrInsufficientMaterial = errors.New("not enough material in stock")
	ErrNoRecipient          = errors.New("order has no client phone")
	ErrInvalidChannel       = errors.New("invalid notification channel")
	ErrInvalidAssignee      = errors.New("invalid assignee id")
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// OrderStore defines the DB methods needed by the order service.
// Satisfied by *database.Queries (and its WithTx variant).
type OrderStore interface {
	GetNextOrderNumber(ctx context.Context, year int32) (int32, error)
	GetServiceForOrder(ctx context.Context, id uuid.UUID) (database.Service, error)
	GetMaterialMapForService(ctx context.Context, serviceID uuid.UUID) ([]database.GetMaterialMapForServiceRow, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
	CreateOrderHistory(ctx context.Context, arg database.CreateOrderHistoryParams) (database.OrderHistory, error)
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	UpdateOrderStatus(ctx context.Context, arg database.UpdateOrderStatusParams) (database.Order, error)
	ReserveMaterial(ctx context.Context, arg database.ReserveMaterialParams) (database.Material, error)
	ReleaseMaterial(ctx context.Context, arg database.ReleaseMaterialParams) (database.Material, error)
	ConsumeMaterial(ctx context.Context, arg database.ConsumeMaterialParams) (database.Material, error)
	InsertMaterialLedger(ctx context.Context, arg database.InsertMaterialLedgerParams) (database.MaterialLedger, error)
	ListLedgerByOrder(ctx context.Context, orderID pgtype.UUID) ([]database.MaterialLedger, error)
	CreateNotification(ctx context.Context, arg database.CreateNotificationParams) (database.ClientNotification, error)
}

// NewOrderStore creates an OrderStore from a DBTX (pool or tx).
// This allows the service to create store instances from transactions.
type NewOrderStore func(db database.DBTX) OrderStore

// Broadcaster pushes order events to connected staff clients.
type Broadcaster interface {
	BroadcastOrderEvent(eventType string, payload interface{})
}

// Publisher enqueues client notifications for out-of-band delivery.
type Publisher interface {
	PublishNotification(ctx context.Context, orderID, orderNumber, channel, recipient, text string) error
}

// CreateOrderRequest is the validated input for creating an order. The
// assignment fields are optional user IDs as strings.
type CreateOrderRequest struct {
	ClientName        string
	ClientPhone       string
	ClientType        string
	Deadline          string
	Note              string
	AssignedDesigner  string
	AssignedMaster    string
	AssignedAssistant string
	CreatedBy         uuid.UUID
	Items             []CreateOrderItemRequest
}

// CreateOrderItemRequest is a single line in the order. Width, Height and
// Quantity come in as strings to keep decimal precision off the wire.
type CreateOrderItemRequest struct {
	ServiceID string
	Width     string
	Height    string
	Quantity  string
	Copies    int32
	Options   []string
}

// CreateOrderResult is the full created order with items.
type CreateOrderResult struct {
	Order database.Order
	Items []database.OrderItem
}

// TransitionRequest asks to move an order to a new status.
type TransitionRequest struct {
	OrderID uuid.UUID
	Target  string
	Note    string
	ActorID uuid.UUID
	Role    string
}

// NotifyRequest asks to tell the client their order is ready. An empty
// Message falls back to the standard pickup text.
type NotifyRequest struct {
	OrderID  uuid.UUID
	Channels []string
	Message  string
	ActorID  uuid.UUID
	Role     string
}

// OrderService handles order business logic.
type OrderService struct {
	pool      TxBeginner
	newStore  NewOrderStore
	hub       Broadcaster
	publisher Publisher
}

// NewOrderService creates a new OrderService.
func NewOrderService(pool TxBeginner, newStore NewOrderStore, hub Broadcaster, publisher Publisher) *OrderService {
	return &OrderService{pool: pool, newStore: newStore, hub: hub, publisher: publisher}
}

// pricedItem holds a prepared order item and the material it needs.
type pricedItem struct {
	params    database.CreateOrderItemParams
	materials []materialNeed
}

type materialNeed struct {
	materialID uuid.UUID
	quantity   decimal.Decimal
	cost       decimal.Decimal
}

// CreateOrder validates, prices and creates an order atomically, reserving
// material stock for every line. Retries on order_number unique constraint
// violations (concurrent transactions can read the same MAX).
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	if req.ClientType != enum.ClientTypeRetail && req.ClientType != enum.ClientTypeDealer {
		return nil, ErrInvalidClientType
	}
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}
	if _, err := parseAssignee(req.AssignedDesigner); err != nil {
		return nil, err
	}
	if _, err := parseAssignee(req.AssignedMaster); err != nil {
		return nil, err
	}
	if _, err := parseAssignee(req.AssignedAssistant); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < maxOrderNumberRetries; attempt++ {
		result, err := s.createOrderTx(ctx, req)
		if err == nil {
			return result, nil
		}
		if isOrderNumberConflict(err) {
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

// isOrderNumberConflict checks if the error is a unique constraint violation
// on the order number (pgconn error code 23505).
func isOrderNumberConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == "orders_order_number_key"
	}
	return false
}

// createOrderTx executes the full order creation in a single transaction.
func (s *OrderService) createOrderTx(ctx context.Context, req CreateOrderRequest) (*CreateOrderResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	year := int32(time.Now().Year())
	nextNum, err := store.GetNextOrderNumber(ctx, year)
	if err != nil {
		return nil, fmt.Errorf("get next order number: %w", err)
	}
	orderNumber := fmt.Sprintf("POL-%d-%03d", year, nextNum)

	orderTotal := decimal.Zero
	materialCost := decimal.Zero
	var items []pricedItem

	for i, item := range req.Items {
		pi, err := s.priceItem(ctx, store, req.ClientType, item)
		if err != nil {
			return nil, fmt.Errorf("item[%d]: %w", i, err)
		}
		orderTotal = orderTotal.Add(numericToDecimal(pi.params.Total))
		for _, need := range pi.materials {
			materialCost = materialCost.Add(need.cost)
		}
		items = append(items, *pi)
	}

	if !orderTotal.IsPositive() {
		return nil, ErrZeroTotal
	}

	designer, _ := parseAssignee(req.AssignedDesigner)
	master, _ := parseAssignee(req.AssignedMaster)
	assistant, _ := parseAssignee(req.AssignedAssistant)

	order, err := store.CreateOrder(ctx, database.CreateOrderParams{
		OrderNumber:       orderNumber,
		ClientName:        req.ClientName,
		ClientPhone:       textOrNull(req.ClientPhone),
		ClientType:        req.ClientType,
		Status:            enum.OrderStatusCreated,
		Deadline:          textOrNull(req.Deadline),
		Note:              textOrNull(req.Note),
		Total:             decimalToNumeric(orderTotal),
		MaterialCost:      decimalToNumeric(materialCost),
		AssignedDesigner:  designer,
		AssignedMaster:    master,
		AssignedAssistant: assistant,
		CreatedBy:         req.CreatedBy,
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	var createdItems []database.OrderItem
	for _, pi := range items {
		pi.params.OrderID = order.ID
		item, err := store.CreateOrderItem(ctx, pi.params)
		if err != nil {
			return nil, fmt.Errorf("create order item: %w", err)
		}
		createdItems = append(createdItems, item)

		for _, need := range pi.materials {
			if _, err := store.ReserveMaterial(ctx, database.ReserveMaterialParams{
				ID:       need.materialID,
				Quantity: decimalToNumeric(need.quantity),
			}); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return nil, ErrInsufficientMaterial
				}
				return nil, fmt.Errorf("reserve material: %w", err)
			}
			if _, err := store.InsertMaterialLedger(ctx, database.InsertMaterialLedgerParams{
				MaterialID: need.materialID,
				OrderID:    pgtype.UUID{Bytes: order.ID, Valid: true},
				Action:     enum.LedgerActionReserve,
				Quantity:   decimalToNumeric(need.quantity),
				CreatedBy:  req.CreatedBy,
			}); err != nil {
				return nil, fmt.Errorf("ledger reserve: %w", err)
			}
		}
	}

	if _, err := store.CreateOrderHistory(ctx, database.CreateOrderHistoryParams{
		OrderID:   order.ID,
		ToStatus:  enum.OrderStatusCreated,
		Note:      textOrNull("Заказ создан"),
		ChangedBy: req.CreatedBy,
	}); err != nil {
		return nil, fmt.Errorf("create order history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	if s.hub != nil {
		s.hub.BroadcastOrderEvent("order.created", map[string]string{
			"id":           order.ID.String(),
			"order_number": order.OrderNumber,
			"status":       order.Status,
		})
	}

	return &CreateOrderResult{Order: order, Items: createdItems}, nil
}

// priceItem validates one order line, prices it and works out the material
// it will need. Order creation is strict: an area service needs positive
// dimensions, a per-unit service needs a positive quantity.
func (s *OrderService) priceItem(ctx context.Context, store OrderStore, clientType string, item CreateOrderItemRequest) (*pricedItem, error) {
	serviceID, err := uuid.Parse(item.ServiceID)
	if err != nil {
		return nil, ErrInvalidServiceID
	}

	svc, err := store.GetServiceForOrder(ctx, serviceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, fmt.Errorf("get service: %w", err)
	}

	width, err := parseDecimal(item.Width)
	if err != nil {
		return nil, ErrInvalidDimension
	}
	height, err := parseDecimal(item.Height)
	if err != nil {
		return nil, ErrInvalidDimension
	}
	quantity, err := parseDecimal(item.Quantity)
	if err != nil {
		return nil, ErrInvalidDimension
	}

	priceSvc := &pricing.Service{
		Unit:        svc.Unit,
		PriceRetail: numericToDecimal(svc.PriceRetail),
		PriceDealer: numericToDecimal(svc.PriceDealer),
		Options:     svc.Options,
	}

	if pricing.ClassifyUnit(svc.Unit) == pricing.UnitArea {
		if !width.IsPositive() || !height.IsPositive() {
			return nil, ErrDimensionsRequired
		}
	} else if !quantity.IsPositive() {
		return nil, ErrQuantityRequired
	}

	selected := make(map[string]bool, len(item.Options))
	for _, key := range item.Options {
		selected[key] = true
	}

	line := pricing.PriceLine(priceSvc, pricing.LineParams{
		ClientType: clientType,
		Quantity:   quantity,
		Width:      width,
		Height:     height,
		Copies:     int(item.Copies),
		Selected:   selected,
	})

	// Snapshot the selected options with the prices in force right now.
	var chosen []pricing.Option
	for _, opt := range pricing.ParseOptions(svc.Options) {
		if selected[opt.Key] {
			chosen = append(chosen, opt)
		}
	}
	optionsJSON, err := json.Marshal(chosen)
	if err != nil {
		return nil, fmt.Errorf("marshal options: %w", err)
	}

	params := database.CreateOrderItemParams{
		ServiceID:   pgtype.UUID{Bytes: serviceID, Valid: true},
		ServiceName: svc.NameRu,
		Unit:        svc.Unit,
		Width:       decimalToNumeric(width),
		Height:      decimalToNumeric(height),
		Copies:      item.Copies,
		Quantity:    decimalToNumeric(line.Quantity),
		UnitPrice:   decimalToNumeric(line.UnitPrice),
		BaseCost:    decimalToNumeric(line.BaseCost),
		Options:     optionsJSON,
		OptionsCost: decimalToNumeric(line.OptionsCost),
		Total:       decimalToNumeric(line.Total),
	}
	if line.Area != nil {
		params.Area = decimalToNumeric(*line.Area)
	}

	mappings, err := store.GetMaterialMapForService(ctx, serviceID)
	if err != nil {
		return nil, fmt.Errorf("get material map: %w", err)
	}
	var needs []materialNeed
	for _, m := range mappings {
		perUnit := numericToDecimal(m.QtyPerUnit)
		need := perUnit.Mul(line.Quantity)
		if !need.IsPositive() {
			continue
		}
		needs = append(needs, materialNeed{
			materialID: m.MaterialID,
			quantity:   need,
			cost:       numericToDecimal(m.CostPerUnit).Mul(need),
		})
	}

	return &pricedItem{params: params, materials: needs}, nil
}

// Transition moves an order to a new status, applying the workflow policy
// and any stock side effects in one transaction. Sending the order to
// production consumes its reserved material; cancelling before production
// releases the reservation; reaching ready queues a pickup notification.
func (s *OrderService) Transition(ctx context.Context, req TransitionRequest) (*database.Order, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := store.GetOrder(ctx, req.OrderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	if err := workflow.Validate(order.Status, req.Target, req.Role, req.Note); err != nil {
		return nil, err
	}

	switch {
	case req.Target == enum.OrderStatusProduction:
		if err := s.consumeReserved(ctx, store, order.ID, req.ActorID); err != nil {
			return nil, err
		}
	case req.Target == enum.OrderStatusCancelled && beforeProduction(order.Status):
		if err := s.releaseReserved(ctx, store, order.ID, req.ActorID); err != nil {
			return nil, err
		}
	}

	updated, err := store.UpdateOrderStatus(ctx, database.UpdateOrderStatusParams{
		ID:         order.ID,
		FromStatus: order.Status,
		ToStatus:   req.Target,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStaleStatus
		}
		return nil, fmt.Errorf("update order status: %w", err)
	}

	if _, err := store.CreateOrderHistory(ctx, database.CreateOrderHistoryParams{
		OrderID:    order.ID,
		FromStatus: textOrNull(order.Status),
		ToStatus:   req.Target,
		Note:       textOrNull(req.Note),
		ChangedBy:  req.ActorID,
	}); err != nil {
		return nil, fmt.Errorf("create order history: %w", err)
	}

	// Reaching ready queues a pickup reminder for staff to deliver; orders
	// without a client phone have nobody to call.
	if req.Target == enum.OrderStatusReady && updated.ClientPhone.Valid && updated.ClientPhone.String != "" {
		if _, err := store.CreateNotification(ctx, database.CreateNotificationParams{
			OrderID:   order.ID,
			Channel:   enum.NotifyChannelManual,
			Recipient: updated.ClientPhone.String,
			Message:   readyMessage,
			Status:    enum.NotificationStatusQueued,
			CreatedBy: req.ActorID,
		}); err != nil {
			return nil, fmt.Errorf("queue ready notification: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	if s.hub != nil {
		s.hub.BroadcastOrderEvent("order.status_changed", map[string]string{
			"id":           updated.ID.String(),
			"order_number": updated.OrderNumber,
			"from":         order.Status,
			"to":           updated.Status,
		})
	}

	return &updated, nil
}

func beforeProduction(status string) bool {
	switch status {
	case enum.OrderStatusCreated, enum.OrderStatusDesign, enum.OrderStatusDesignDone:
		return true
	}
	return false
}

// consumeReserved turns the order's reservations into real stock deductions.
func (s *OrderService) consumeReserved(ctx context.Context, store OrderStore, orderID, actorID uuid.UUID) error {
	for materialID, qty := range s.reservedByMaterial(ctx, store, orderID) {
		if _, err := store.ConsumeMaterial(ctx, database.ConsumeMaterialParams{
			ID:       materialID,
			Quantity: decimalToNumeric(qty),
		}); err != nil {
			return fmt.Errorf("consume material: %w", err)
		}
		if _, err := store.InsertMaterialLedger(ctx, database.InsertMaterialLedgerParams{
			MaterialID: materialID,
			OrderID:    pgtype.UUID{Bytes: orderID, Valid: true},
			Action:     enum.LedgerActionConsume,
			Quantity:   decimalToNumeric(qty),
			CreatedBy:  actorID,
		}); err != nil {
			return fmt.Errorf("ledger consume: %w", err)
		}
	}
	return nil
}

// releaseReserved returns the order's reservations to free stock.
func (s *OrderService) releaseReserved(ctx context.Context, store OrderStore, orderID, actorID uuid.UUID) error {
	for materialID, qty := range s.reservedByMaterial(ctx, store, orderID) {
		if _, err := store.ReleaseMaterial(ctx, database.ReleaseMaterialParams{
			ID:       materialID,
			Quantity: decimalToNumeric(qty),
		}); err != nil {
			return fmt.Errorf("release material: %w", err)
		}
		if _, err := store.InsertMaterialLedger(ctx, database.InsertMaterialLedgerParams{
			MaterialID: materialID,
			OrderID:    pgtype.UUID{Bytes: orderID, Valid: true},
			Action:     enum.LedgerActionUnreserve,
			Quantity:   decimalToNumeric(qty),
			CreatedBy:  actorID,
		}); err != nil {
			return fmt.Errorf("ledger unreserve: %w", err)
		}
	}
	return nil
}

// reservedByMaterial nets the order's ledger down to what is still held per
// material: reserves minus consumes and unreserves.
func (s *OrderService) reservedByMaterial(ctx context.Context, store OrderStore, orderID uuid.UUID) map[uuid.UUID]decimal.Decimal {
	entries, err := store.ListLedgerByOrder(ctx, pgtype.UUID{Bytes: orderID, Valid: true})
	if err != nil {
		return nil
	}
	held := make(map[uuid.UUID]decimal.Decimal)
	for _, e := range entries {
		qty := numericToDecimal(e.Quantity)
		switch e.Action {
		case enum.LedgerActionReserve:
			held[e.MaterialID] = held[e.MaterialID].Add(qty)
		case enum.LedgerActionConsume, enum.LedgerActionUnreserve:
			held[e.MaterialID] = held[e.MaterialID].Sub(qty)
		}
	}
	for id, qty := range held {
		if !qty.IsPositive() {
			delete(held, id)
		}
	}
	return held
}

// Notify records a ready-for-pickup notification per requested channel and
// enqueues the out-of-band ones for delivery.
func (s *OrderService) Notify(ctx context.Context, req NotifyRequest) ([]database.ClientNotification, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := store.GetOrder(ctx, req.OrderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	if err := workflow.ValidateNotify(order.Status, req.Role); err != nil {
		return nil, err
	}
	if !order.ClientPhone.Valid || order.ClientPhone.String == "" {
		return nil, ErrNoRecipient
	}

	channels := req.Channels
	if len(channels) == 0 {
		channels = []string{enum.NotifyChannelManual}
	}

	message := req.Message
	if message == "" {
		message = readyMessage
	}

	var created []database.ClientNotification
	for _, channel := range channels {
		switch channel {
		case enum.NotifyChannelManual, enum.NotifyChannelSMS, enum.NotifyChannelWhatsApp:
		default:
			return nil, ErrInvalidChannel
		}

		// A manual notification means staff called the client themselves.
		status := enum.NotificationStatusQueued
		if channel == enum.NotifyChannelManual {
			status = enum.NotificationStatusSent
		}

		n, err := store.CreateNotification(ctx, database.CreateNotificationParams{
			OrderID:   order.ID,
			Channel:   channel,
			Recipient: order.ClientPhone.String,
			Message:   message,
			Status:    status,
			CreatedBy: req.ActorID,
		})
		if err != nil {
			return nil, fmt.Errorf("create notification: %w", err)
		}
		created = append(created, n)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	if s.publisher != nil {
		for _, n := range created {
			if n.Channel == enum.NotifyChannelManual {
				continue
			}
			if err := s.publisher.PublishNotification(ctx, order.ID.String(), order.OrderNumber, n.Channel, n.Recipient, n.Message); err != nil {
				// Delivery consumer will pick queued rows back up; log-level
				// handling belongs to the caller.
				return created, fmt.Errorf("publish notification: %w", err)
			}
		}
	}

	return created, nil
}

// --- Helpers ---

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

// parseAssignee turns an optional user ID string into a nullable UUID.
func parseAssignee(s string) (pgtype.UUID, error) {
	if s == "" {
		return pgtype.UUID{}, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return pgtype.UUID{}, ErrInvalidAssignee
	}
	return pgtype.UUID{Bytes: id, Valid: true}, nil
}

func textOrNull(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(2))
	return n
}
