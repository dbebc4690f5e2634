package fake

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/BlazeeWear/TrackFaro/internal/integrations/tracking"
	"github.com/BlazeeWear/TrackFaro/internal/models"
)

// FakeAggregator — детерминированная заглушка агрегатора для локальной
// разработки без 17TRACK-токена. Судьба кода зависит только от его хэша.
type FakeAggregator struct{}

func New() *FakeAggregator { return &FakeAggregator{} }

func (f *FakeAggregator) Register(ctx context.Context, code string, carrier models.Carrier) error {
	return nil
}

func (f *FakeAggregator) Fetch(ctx context.Context, code string, carrier models.Carrier) (tracking.FetchResult, error) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(string(carrier)))
	_, _ = h.Write([]byte("|"))
	_, _ = h.Write([]byte(code))
	v := h.Sum32()

	// треть кодов агрегатор "ещё не видел"
	if v%3 == 0 {
		return tracking.FetchResult{Status: models.StatusPending}, nil
	}

	now := time.Now()
	status := models.StatusInTransit
	msg := "Objeto em trânsito"
	if v%5 == 0 {
		status = models.StatusDelivered
		msg = "Objeto entregue ao destinatário"
	}

	return tracking.FetchResult{
		Status:  status,
		Message: msg,
		Events: []models.CarrierEvent{
			{Time: now, Description: msg, Location: "Curitiba - PR"},
			{Time: now.AddDate(0, 0, -2), Description: "Objeto postado", Location: "São Paulo - SP"},
		},
	}, nil
}
