package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, order_number, client_name, client_phone, client_type, status, deadline, note, total, material_cost, assigned_designer, assigned_master, assigned_assistant, created_by, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.OrderNumber, &o.ClientName, &o.ClientPhone, &o.ClientType, &o.Status,
		&o.Deadline, &o.Note, &o.Total, &o.MaterialCost,
		&o.AssignedDesigner, &o.AssignedMaster, &o.AssignedAssistant,
		&o.CreatedBy, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

const getNextOrderNumber = `
SELECT COALESCE(MAX(CAST(split_part(order_number, '-', 3) AS INTEGER)), 0) + 1
FROM orders
WHERE order_number LIKE 'POL-' || $1::text || '-%'
`

// GetNextOrderNumber returns the next sequence value for the given year.
// Concurrent transactions can read the same MAX; the unique constraint on
// order_number catches the loser and the service retries.
func (q *Queries) GetNextOrderNumber(ctx context.Context, year int32) (int32, error) {
	var n int32
	err := q.db.QueryRow(ctx, getNextOrderNumber, year).Scan(&n)
	return n, err
}

const createOrder = `
INSERT INTO orders (order_number, client_name, client_phone, client_type, status, deadline, note, total, material_cost, assigned_designer, assigned_master, assigned_assistant, created_by)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
RETURNING ` + orderColumns + `
`

type CreateOrderParams struct {
	OrderNumber       string
	ClientName        string
	ClientPhone       pgtype.Text
	ClientType        string
	Status            string
	Deadline          pgtype.Text
	Note              pgtype.Text
	Total             pgtype.Numeric
	MaterialCost      pgtype.Numeric
	AssignedDesigner  pgtype.UUID
	AssignedMaster    pgtype.UUID
	AssignedAssistant pgtype.UUID
	CreatedBy         uuid.UUID
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, createOrder,
		arg.OrderNumber, arg.ClientName, arg.ClientPhone, arg.ClientType, arg.Status,
		arg.Deadline, arg.Note, arg.Total, arg.MaterialCost,
		arg.AssignedDesigner, arg.AssignedMaster, arg.AssignedAssistant, arg.CreatedBy))
}

const orderItemColumns = `id, order_id, service_id, service_name, unit, width, height, copies, area, quantity, unit_price, base_cost, options, options_cost, total, created_at`

func scanOrderItem(row pgx.Row) (OrderItem, error) {
	var it OrderItem
	err := row.Scan(&it.ID, &it.OrderID, &it.ServiceID, &it.ServiceName, &it.Unit, &it.Width, &it.Height,
		&it.Copies, &it.Area, &it.Quantity, &it.UnitPrice, &it.BaseCost, &it.Options, &it.OptionsCost,
		&it.Total, &it.CreatedAt)
	return it, err
}

const createOrderItem = `
INSERT INTO order_items (order_id, service_id, service_name, unit, width, height, copies, area, quantity, unit_price, base_cost, options, options_cost, total)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
RETURNING ` + orderItemColumns + `
`

type CreateOrderItemParams struct {
	OrderID     uuid.UUID
	ServiceID   pgtype.UUID
	ServiceName string
	Unit        string
	Width       pgtype.Numeric
	Height      pgtype.Numeric
	Copies      int32
	Area        pgtype.Numeric
	Quantity    pgtype.Numeric
	UnitPrice   pgtype.Numeric
	BaseCost    pgtype.Numeric
	Options     []byte
	OptionsCost pgtype.Numeric
	Total       pgtype.Numeric
}

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	return scanOrderItem(q.db.QueryRow(ctx, createOrderItem,
		arg.OrderID, arg.ServiceID, arg.ServiceName, arg.Unit, arg.Width, arg.Height, arg.Copies,
		arg.Area, arg.Quantity, arg.UnitPrice, arg.BaseCost, arg.Options, arg.OptionsCost, arg.Total))
}

const listOrderItemsByOrder = `
SELECT ` + orderItemColumns + `
FROM order_items
WHERE order_id = $1
ORDER BY created_at, id
`

func (q *Queries) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, listOrderItemsByOrder, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		it, err := scanOrderItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

const getOrder = `
SELECT ` + orderColumns + `
FROM orders
WHERE id = $1
`

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, id))
}

const listOrders = `
SELECT ` + orderColumns + `
FROM orders
WHERE ($1::text[] IS NULL OR status = ANY($1) OR assigned_designer = $4 OR assigned_master = $4 OR assigned_assistant = $4)
  AND ($2::text = '' OR client_type = $2)
  AND ($3::text = '' OR order_number ILIKE '%' || $3 || '%' OR client_name ILIKE '%' || $3 || '%' OR client_phone ILIKE '%' || $3 || '%')
ORDER BY created_at DESC
LIMIT $5 OFFSET $6
`

// ListOrdersParams filters the order list. When Statuses is nil the caller
// sees everything. AssignedTo widens a restricted status set: orders assigned
// to that user stay visible regardless of stage. A NULL AssignedTo never
// matches.
type ListOrdersParams struct {
	Statuses   []string
	ClientType string
	Search     string
	AssignedTo pgtype.UUID
	Limit      int32
	Offset     int32
}

func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrders, arg.Statuses, arg.ClientType, arg.Search, arg.AssignedTo, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

const countOrders = `
SELECT COUNT(*)
FROM orders
WHERE ($1::text[] IS NULL OR status = ANY($1) OR assigned_designer = $4 OR assigned_master = $4 OR assigned_assistant = $4)
  AND ($2::text = '' OR client_type = $2)
  AND ($3::text = '' OR order_number ILIKE '%' || $3 || '%' OR client_name ILIKE '%' || $3 || '%' OR client_phone ILIKE '%' || $3 || '%')
`

type CountOrdersParams struct {
	Statuses   []string
	ClientType string
	Search     string
	AssignedTo pgtype.UUID
}

func (q *Queries) CountOrders(ctx context.Context, arg CountOrdersParams) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countOrders, arg.Statuses, arg.ClientType, arg.Search, arg.AssignedTo).Scan(&n)
	return n, err
}

const updateOrderStatus = `
UPDATE orders
SET status = $3, updated_at = now()
WHERE id = $1 AND status = $2
RETURNING ` + orderColumns + `
`

type UpdateOrderStatusParams struct {
	ID         uuid.UUID
	FromStatus string
	ToStatus   string
}

// UpdateOrderStatus moves an order only if its status still matches what the
// caller read. pgx.ErrNoRows means another actor moved it first.
func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, updateOrderStatus, arg.ID, arg.FromStatus, arg.ToStatus))
}

const createOrderHistory = `
INSERT INTO order_history (order_id, from_status, to_status, note, changed_by)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, order_id, from_status, to_status, note, changed_by, created_at
`

type CreateOrderHistoryParams struct {
	OrderID    uuid.UUID
	FromStatus pgtype.Text
	ToStatus   string
	Note       pgtype.Text
	ChangedBy  uuid.UUID
}

func (q *Queries) CreateOrderHistory(ctx context.Context, arg CreateOrderHistoryParams) (OrderHistory, error) {
	row := q.db.QueryRow(ctx, createOrderHistory, arg.OrderID, arg.FromStatus, arg.ToStatus, arg.Note, arg.ChangedBy)
	var h OrderHistory
	err := row.Scan(&h.ID, &h.OrderID, &h.FromStatus, &h.ToStatus, &h.Note, &h.ChangedBy, &h.CreatedAt)
	return h, err
}

const listOrderHistoryByOrder = `
SELECT h.id, h.order_id, h.from_status, h.to_status, h.note, h.changed_by, h.created_at, u.full_name
FROM order_history h
JOIN users u ON u.id = h.changed_by
WHERE h.order_id = $1
ORDER BY h.created_at, h.id
`

type ListOrderHistoryByOrderRow struct {
	ID            uuid.UUID   `json:"id"`
	OrderID       uuid.UUID   `json:"order_id"`
	FromStatus    pgtype.Text `json:"from_status"`
	ToStatus      string      `json:"to_status"`
	Note          pgtype.Text `json:"note"`
	ChangedBy     uuid.UUID   `json:"changed_by"`
	CreatedAt     time.Time   `json:"created_at"`
	ChangedByName string      `json:"changed_by_name"`
}

func (q *Queries) ListOrderHistoryByOrder(ctx context.Context, orderID uuid.UUID) ([]ListOrderHistoryByOrderRow, error) {
	rows, err := q.db.Query(ctx, listOrderHistoryByOrder, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ListOrderHistoryByOrderRow
	for rows.Next() {
		var h ListOrderHistoryByOrderRow
		if err := rows.Scan(&h.ID, &h.OrderID, &h.FromStatus, &h.ToStatus, &h.Note, &h.ChangedBy, &h.CreatedAt, &h.ChangedByName); err != nil {
			return nil, err
		}
		items = append(items, h)
	}
	return items, rows.Err()
}
