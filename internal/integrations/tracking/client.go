package tracking

import (
	"context"

	"github.com/BlazeeWear/TrackFaro/internal/models"
)

// FetchResult — нормализованный ответ агрегатора по одному трек-коду.
// Events отсортированы от новых к старым.
type FetchResult struct {
	Status  string
	Message string
	Events  []models.CarrierEvent
}

// Aggregator — контракт внешнего трекинг-агрегатора.
// Register ставит код на отслеживание (идемпотентность обеспечивает
// вызывающая сторона), Fetch забирает текущее состояние.
type Aggregator interface {
	Register(ctx context.Context, code string, carrier models.Carrier) error
	Fetch(ctx context.Context, code string, carrier models.Carrier) (FetchResult, error)
}
