package models

import "time"

type Carrier string

const (
	CarrierCorreios Carrier = "correios"
	CarrierCainiao  Carrier = "cainiao"
)

// Нормализованные статусы отгрузки (можно расширять).
const (
	StatusPending   = "pending"
	StatusInTransit = "in_transit"
	StatusDelivered = "delivered"
	StatusProblem   = "problem"
	StatusError     = "error"
)

// CarrierEvent — одно событие трекинга (реальное или фиктивное) после нормализации.
// Время всегда time.Time; в строку форматируем только на границе API.
type CarrierEvent struct {
	Time        time.Time
	Description string
	Location    string
}

// FakeUpdate — фиктивное сообщение, уже записанное для отгрузки.
type FakeUpdate struct {
	Message     string    `json:"message"`
	ScheduledAt time.Time `json:"scheduled_at"`
	EmittedAt   time.Time `json:"timestamp"`
}

// ShipmentRecord — персистентная запись по одному трек-коду.
// created_at ставится один раз и не перезаписывается;
// has_real_tracking — монотонная защёлка false -> true.
type ShipmentRecord struct {
	TrackingCode    string       `json:"tracking_code"`
	Carrier         Carrier      `json:"carrier"`
	CreatedAt       time.Time    `json:"created_at"`
	HasRealTracking bool         `json:"has_real_tracking"`
	FakeUpdates     []FakeUpdate `json:"fake_updates,omitempty"`
	// Последний статус, о котором рассылалось уведомление.
	NotifiedStatus string `json:"notified_status,omitempty"`
}

type ResolutionKind int

const (
	KindResolved ResolutionKind = iota
	KindRedirect
	KindError
)

// Resolution — результат разрешения одного трек-кода.
// Kind определяет, какие поля заполнены:
//   - KindResolved: Status, Message, Events
//   - KindRedirect: TrackingURL (события и фиктивные сообщения не применяются)
//   - KindError: Status=StatusError, Message с деталью
type Resolution struct {
	Kind         ResolutionKind
	TrackingCode string
	Status       string
	Message      string
	Events       []CarrierEvent
	TrackingURL  string
}
