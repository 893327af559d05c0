package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const materialColumns = `id, name, unit, quantity, reserved, min_stock, cost_per_unit, is_active, created_at, updated_at`

func scanMaterial(row pgx.Row) (Material, error) {
	var m Material
	err := row.Scan(&m.ID, &m.Name, &m.Unit, &m.Quantity, &m.Reserved, &m.MinStock, &m.CostPerUnit, &m.IsActive, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

const listMaterials = `
SELECT ` + materialColumns + `
FROM materials
WHERE is_active = TRUE
ORDER BY name
`

func (q *Queries) ListMaterials(ctx context.Context) ([]Material, error) {
	rows, err := q.db.Query(ctx, listMaterials)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Material
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

const createMaterial = `
INSERT INTO materials (name, unit, quantity, min_stock, cost_per_unit)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (name) DO NOTHING
RETURNING ` + materialColumns + `
`

type CreateMaterialParams struct {
	Name        string
	Unit        string
	Quantity    pgtype.Numeric
	MinStock    pgtype.Numeric
	CostPerUnit pgtype.Numeric
}

func (q *Queries) CreateMaterial(ctx context.Context, arg CreateMaterialParams) (Material, error) {
	return scanMaterial(q.db.QueryRow(ctx, createMaterial, arg.Name, arg.Unit, arg.Quantity, arg.MinStock, arg.CostPerUnit))
}

const getMaterialMapForService = `
SELECT sm.material_id, sm.qty_per_unit, m.name, m.cost_per_unit
FROM service_materials sm
JOIN materials m ON m.id = sm.material_id AND m.is_active = TRUE
WHERE sm.service_id = $1
`

type GetMaterialMapForServiceRow struct {
	MaterialID  uuid.UUID
	QtyPerUnit  pgtype.Numeric
	Name        string
	CostPerUnit pgtype.Numeric
}

func (q *Queries) GetMaterialMapForService(ctx context.Context, serviceID uuid.UUID) ([]GetMaterialMapForServiceRow, error) {
	rows, err := q.db.Query(ctx, getMaterialMapForService, serviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []GetMaterialMapForServiceRow
	for rows.Next() {
		var r GetMaterialMapForServiceRow
		if err := rows.Scan(&r.MaterialID, &r.QtyPerUnit, &r.Name, &r.CostPerUnit); err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

const mapServiceMaterial = `
INSERT INTO service_materials (service_id, material_id, qty_per_unit)
VALUES ($1, $2, $3)
ON CONFLICT (service_id, material_id) DO UPDATE SET qty_per_unit = EXCLUDED.qty_per_unit
RETURNING id, service_id, material_id, qty_per_unit
`

type MapServiceMaterialParams struct {
	ServiceID  uuid.UUID
	MaterialID uuid.UUID
	QtyPerUnit pgtype.Numeric
}

func (q *Queries) MapServiceMaterial(ctx context.Context, arg MapServiceMaterialParams) (ServiceMaterial, error) {
	row := q.db.QueryRow(ctx, mapServiceMaterial, arg.ServiceID, arg.MaterialID, arg.QtyPerUnit)
	var sm ServiceMaterial
	err := row.Scan(&sm.ID, &sm.ServiceID, &sm.MaterialID, &sm.QtyPerUnit)
	return sm, err
}

const reserveMaterial = `
UPDATE materials
SET reserved = reserved + $2, updated_at = now()
WHERE id = $1 AND quantity - reserved >= $2
RETURNING ` + materialColumns + `
`

type ReserveMaterialParams struct {
	ID       uuid.UUID
	Quantity pgtype.Numeric
}

// ReserveMaterial holds stock for an order. The WHERE clause makes the check
// and the increment one atomic statement; pgx.ErrNoRows means not enough
// free stock.
func (q *Queries) ReserveMaterial(ctx context.Context, arg ReserveMaterialParams) (Material, error) {
	return scanMaterial(q.db.QueryRow(ctx, reserveMaterial, arg.ID, arg.Quantity))
}

const releaseMaterial = `
UPDATE materials
SET reserved = GREATEST(reserved - $2, 0), updated_at = now()
WHERE id = $1
RETURNING ` + materialColumns + `
`

type ReleaseMaterialParams struct {
	ID       uuid.UUID
	Quantity pgtype.Numeric
}

func (q *Queries) ReleaseMaterial(ctx context.Context, arg ReleaseMaterialParams) (Material, error) {
	return scanMaterial(q.db.QueryRow(ctx, releaseMaterial, arg.ID, arg.Quantity))
}

const consumeMaterial = `
UPDATE materials
SET quantity = quantity - $2,
    reserved = GREATEST(reserved - $2, 0),
    updated_at = now()
WHERE id = $1
RETURNING ` + materialColumns + `
`

type ConsumeMaterialParams struct {
	ID       uuid.UUID
	Quantity pgtype.Numeric
}

func (q *Queries) ConsumeMaterial(ctx context.Context, arg ConsumeMaterialParams) (Material, error) {
	return scanMaterial(q.db.QueryRow(ctx, consumeMaterial, arg.ID, arg.Quantity))
}

const insertMaterialLedger = `
INSERT INTO material_ledger (material_id, order_id, action, quantity, created_by)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, material_id, order_id, action, quantity, created_by, created_at
`

type InsertMaterialLedgerParams struct {
	MaterialID uuid.UUID
	OrderID    pgtype.UUID
	Action     string
	Quantity   pgtype.Numeric
	CreatedBy  uuid.UUID
}

func (q *Queries) InsertMaterialLedger(ctx context.Context, arg InsertMaterialLedgerParams) (MaterialLedger, error) {
	row := q.db.QueryRow(ctx, insertMaterialLedger, arg.MaterialID, arg.OrderID, arg.Action, arg.Quantity, arg.CreatedBy)
	var l MaterialLedger
	err := row.Scan(&l.ID, &l.MaterialID, &l.OrderID, &l.Action, &l.Quantity, &l.CreatedBy, &l.CreatedAt)
	return l, err
}

const listLedgerByOrder = `
SELECT id, material_id, order_id, action, quantity, created_by, created_at
FROM material_ledger
WHERE order_id = $1
ORDER BY created_at, id
`

func (q *Queries) ListLedgerByOrder(ctx context.Context, orderID pgtype.UUID) ([]MaterialLedger, error) {
	rows, err := q.db.Query(ctx, listLedgerByOrder, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []MaterialLedger
	for rows.Next() {
		var l MaterialLedger
		if err := rows.Scan(&l.ID, &l.MaterialID, &l.OrderID, &l.Action, &l.Quantity, &l.CreatedBy, &l.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, l)
	}
	return items, rows.Err()
}
