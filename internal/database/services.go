package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const serviceColumns = `id, code, name_ru, name_ky, category, unit, price_retail, price_dealer, cost_price, min_order, options, is_active, sort_order, created_at, updated_at`

func scanService(row pgx.Row) (Service, error) {
	var s Service
	err := row.Scan(&s.ID, &s.Code, &s.NameRu, &s.NameKy, &s.Category, &s.Unit, &s.PriceRetail, &s.PriceDealer, &s.CostPrice, &s.MinOrder, &s.Options, &s.IsActive, &s.SortOrder, &s.CreatedAt, &s.UpdatedAt)
	return s, err
}

const listActiveServices = `
SELECT ` + serviceColumns + `
FROM services
WHERE is_active = TRUE
ORDER BY sort_order, name_ru
`

func (q *Queries) ListActiveServices(ctx context.Context) ([]Service, error) {
	rows, err := q.db.Query(ctx, listActiveServices)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

const getService = `
SELECT ` + serviceColumns + `
FROM services
WHERE id = $1
`

func (q *Queries) GetService(ctx context.Context, id uuid.UUID) (Service, error) {
	return scanService(q.db.QueryRow(ctx, getService, id))
}

const getServiceForOrder = `
SELECT ` + serviceColumns + `
FROM services
WHERE id = $1 AND is_active = TRUE
`

func (q *Queries) GetServiceForOrder(ctx context.Context, id uuid.UUID) (Service, error) {
	return scanService(q.db.QueryRow(ctx, getServiceForOrder, id))
}

const updateServicePrices = `
UPDATE services
SET price_retail = $2,
    price_dealer = $3,
    cost_price   = $4,
    updated_at   = now()
WHERE id = $1
RETURNING ` + serviceColumns + `
`

type UpdateServicePricesParams struct {
	ID          uuid.UUID
	PriceRetail pgtype.Numeric
	PriceDealer pgtype.Numeric
	CostPrice   pgtype.Numeric
}

func (q *Queries) UpdateServicePrices(ctx context.Context, arg UpdateServicePricesParams) (Service, error) {
	return scanService(q.db.QueryRow(ctx, updateServicePrices, arg.ID, arg.PriceRetail, arg.PriceDealer, arg.CostPrice))
}

const createService = `
INSERT INTO services (code, name_ru, name_ky, category, unit, price_retail, price_dealer, cost_price, min_order, options, sort_order)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
RETURNING ` + serviceColumns + `
`

type CreateServiceParams struct {
	Code        string
	NameRu      string
	NameKy      string
	Category    string
	Unit        string
	PriceRetail pgtype.Numeric
	PriceDealer pgtype.Numeric
	CostPrice   pgtype.Numeric
	MinOrder    int32
	Options     []byte
	SortOrder   int32
}

func (q *Queries) CreateService(ctx context.Context, arg CreateServiceParams) (Service, error) {
	return scanService(q.db.QueryRow(ctx, createService,
		arg.Code, arg.NameRu, arg.NameKy, arg.Category, arg.Unit, arg.PriceRetail, arg.PriceDealer,
		arg.CostPrice, arg.MinOrder, arg.Options, arg.SortOrder))
}

const insertPriceHistory = `
INSERT INTO price_history (service_id, field, old_value, new_value, changed_by)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, service_id, field, old_value, new_value, changed_by, changed_at
`

type InsertPriceHistoryParams struct {
	ServiceID uuid.UUID
	Field     string
	OldValue  pgtype.Numeric
	NewValue  pgtype.Numeric
	ChangedBy uuid.UUID
}

func (q *Queries) InsertPriceHistory(ctx context.Context, arg InsertPriceHistoryParams) (PriceHistory, error) {
	row := q.db.QueryRow(ctx, insertPriceHistory, arg.ServiceID, arg.Field, arg.OldValue, arg.NewValue, arg.ChangedBy)
	var h PriceHistory
	err := row.Scan(&h.ID, &h.ServiceID, &h.Field, &h.OldValue, &h.NewValue, &h.ChangedBy, &h.ChangedAt)
	return h, err
}
