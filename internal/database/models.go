package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	FullName     string    `json:"full_name"`
	Role         string    `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

type Service struct {
	ID          uuid.UUID      `json:"id"`
	Code        string         `json:"code"`
	NameRu      string         `json:"name_ru"`
	NameKy      string         `json:"name_ky"`
	Category    string         `json:"category"`
	Unit        string         `json:"unit"`
	PriceRetail pgtype.Numeric `json:"price_retail"`
	PriceDealer pgtype.Numeric `json:"price_dealer"`
	CostPrice   pgtype.Numeric `json:"cost_price"`
	MinOrder    int32          `json:"min_order"`
	Options     []byte         `json:"options"`
	IsActive    bool           `json:"is_active"`
	SortOrder   int32          `json:"sort_order"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

type PriceHistory struct {
	ID        uuid.UUID      `json:"id"`
	ServiceID uuid.UUID      `json:"service_id"`
	Field     string         `json:"field"`
	OldValue  pgtype.Numeric `json:"old_value"`
	NewValue  pgtype.Numeric `json:"new_value"`
	ChangedBy uuid.UUID      `json:"changed_by"`
	ChangedAt time.Time      `json:"changed_at"`
}

type Order struct {
	ID                uuid.UUID      `json:"id"`
	OrderNumber       string         `json:"order_number"`
	ClientName        string         `json:"client_name"`
	ClientPhone       pgtype.Text    `json:"client_phone"`
	ClientType        string         `json:"client_type"`
	Status            string         `json:"status"`
	Deadline          pgtype.Text    `json:"deadline"`
	Note              pgtype.Text    `json:"note"`
	Total             pgtype.Numeric `json:"total"`
	MaterialCost      pgtype.Numeric `json:"material_cost"`
	AssignedDesigner  pgtype.UUID    `json:"assigned_designer"`
	AssignedMaster    pgtype.UUID    `json:"assigned_master"`
	AssignedAssistant pgtype.UUID    `json:"assigned_assistant"`
	CreatedBy         uuid.UUID      `json:"created_by"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

type OrderItem struct {
	ID          uuid.UUID      `json:"id"`
	OrderID     uuid.UUID      `json:"order_id"`
	ServiceID   pgtype.UUID    `json:"service_id"`
	ServiceName string         `json:"service_name"`
	Unit        string         `json:"unit"`
	Width       pgtype.Numeric `json:"width"`
	Height      pgtype.Numeric `json:"height"`
	Copies      int32          `json:"copies"`
	Area        pgtype.Numeric `json:"area"`
	Quantity    pgtype.Numeric `json:"quantity"`
	UnitPrice   pgtype.Numeric `json:"unit_price"`
	BaseCost    pgtype.Numeric `json:"base_cost"`
	Options     []byte         `json:"options"`
	OptionsCost pgtype.Numeric `json:"options_cost"`
	Total       pgtype.Numeric `json:"total"`
	CreatedAt   time.Time      `json:"created_at"`
}

type OrderHistory struct {
	ID         uuid.UUID   `json:"id"`
	OrderID    uuid.UUID   `json:"order_id"`
	FromStatus pgtype.Text `json:"from_status"`
	ToStatus   string      `json:"to_status"`
	Note       pgtype.Text `json:"note"`
	ChangedBy  uuid.UUID   `json:"changed_by"`
	CreatedAt  time.Time   `json:"created_at"`
}

type Material struct {
	ID          uuid.UUID      `json:"id"`
	Name        string         `json:"name"`
	Unit        string         `json:"unit"`
	Quantity    pgtype.Numeric `json:"quantity"`
	Reserved    pgtype.Numeric `json:"reserved"`
	MinStock    pgtype.Numeric `json:"min_stock"`
	CostPerUnit pgtype.Numeric `json:"cost_per_unit"`
	IsActive    bool           `json:"is_active"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

type ServiceMaterial struct {
	ID         uuid.UUID      `json:"id"`
	ServiceID  uuid.UUID      `json:"service_id"`
	MaterialID uuid.UUID      `json:"material_id"`
	QtyPerUnit pgtype.Numeric `json:"qty_per_unit"`
}

type MaterialLedger struct {
	ID         uuid.UUID      `json:"id"`
	MaterialID uuid.UUID      `json:"material_id"`
	OrderID    pgtype.UUID    `json:"order_id"`
	Action     string         `json:"action"`
	Quantity   pgtype.Numeric `json:"quantity"`
	CreatedBy  uuid.UUID      `json:"created_by"`
	CreatedAt  time.Time      `json:"created_at"`
}

type ClientNotification struct {
	ID        uuid.UUID `json:"id"`
	OrderID   uuid.UUID `json:"order_id"`
	Channel   string    `json:"channel"`
	Recipient string    `json:"recipient"`
	Message   string    `json:"message"`
	Status    string    `json:"status"`
	CreatedBy uuid.UUID `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}
