package fetcher

import (
	"context"
	"log/slog"

	"github.com/BlazeeWear/TrackFaro/internal/integrations/tracking"
	"github.com/BlazeeWear/TrackFaro/internal/models"
)

// RegisteredSet помнит коды, уже поставленные на отслеживание.
type RegisteredSet interface {
	Contains(ctx context.Context, code string) (bool, error)
	Add(ctx context.Context, code string) error
}

// Fetcher оборачивает агрегатор регистрацией "не чаще одного раза".
// Ошибки регистрации не фатальны: код мог быть зарегистрирован раньше
// вручную, поэтому Fetch выполняется в любом случае.
type Fetcher struct {
	agg tracking.Aggregator
	reg RegisteredSet
	log *slog.Logger
}

func New(agg tracking.Aggregator, reg RegisteredSet, log *slog.Logger) *Fetcher {
	if log == nil {
		log = slog.Default()
	}
	return &Fetcher{agg: agg, reg: reg, log: log}
}

func (f *Fetcher) Fetch(ctx context.Context, code string, carrier models.Carrier) (tracking.FetchResult, error) {
	f.ensureRegistered(ctx, code, carrier)
	return f.agg.Fetch(ctx, code, carrier)
}

func (f *Fetcher) ensureRegistered(ctx context.Context, code string, carrier models.Carrier) {
	known, err := f.reg.Contains(ctx, code)
	if err != nil {
		f.log.Warn("registered set unavailable", "code", code, "err", err)
	}
	if known {
		return
	}

	if err := f.agg.Register(ctx, code, carrier); err != nil {
		f.log.Warn("register tracking code failed", "code", code, "err", err)
		return
	}
	if err := f.reg.Add(ctx, code); err != nil {
		f.log.Warn("remember registered code failed", "code", code, "err", err)
	}
}
