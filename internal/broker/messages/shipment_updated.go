package messages

import "time"

// ShipmentUpdated публикуется свипером, когда периодическая проверка
// увидела значимый статус отгрузки. track-api по нему добавляет заметку
// к заказу и при необходимости зовёт Slack.
type ShipmentUpdated struct {
	TrackingCode string    `json:"tracking_code"`
	OrderID      int64     `json:"order_id"`
	OrderNumber  string    `json:"order_number,omitempty"`
	Status       string    `json:"status"`
	Message      string    `json:"message,omitempty"`
	CheckedAt    time.Time `json:"checked_at"`
}
