package database

import (
	"context"

	"github.com/google/uuid"
)

const createNotification = `
INSERT INTO client_notifications (order_id, channel, recipient, message, status, created_by)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, order_id, channel, recipient, message, status, created_by, created_at
`

type CreateNotificationParams struct {
	OrderID   uuid.UUID
	Channel   string
	Recipient string
	Message   string
	Status    string
	CreatedBy uuid.UUID
}

func (q *Queries) CreateNotification(ctx context.Context, arg CreateNotificationParams) (ClientNotification, error) {
	row := q.db.QueryRow(ctx, createNotification,
		arg.OrderID, arg.Channel, arg.Recipient, arg.Message, arg.Status, arg.CreatedBy)
	var n ClientNotification
	err := row.Scan(&n.ID, &n.OrderID, &n.Channel, &n.Recipient, &n.Message, &n.Status, &n.CreatedBy, &n.CreatedAt)
	return n, err
}

const listNotificationsByOrder = `
SELECT id, order_id, channel, recipient, message, status, created_by, created_at
FROM client_notifications
WHERE order_id = $1
ORDER BY created_at DESC
`

func (q *Queries) ListNotificationsByOrder(ctx context.Context, orderID uuid.UUID) ([]ClientNotification, error) {
	rows, err := q.db.Query(ctx, listNotificationsByOrder, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ClientNotification
	for rows.Next() {
		var n ClientNotification
		if err := rows.Scan(&n.ID, &n.OrderID, &n.Channel, &n.Recipient, &n.Message, &n.Status, &n.CreatedBy, &n.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	return items, rows.Err()
}
