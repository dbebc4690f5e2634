package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BlazeeWear/TrackFaro/internal/broker/messages"
	"github.com/BlazeeWear/TrackFaro/internal/models"
	"github.com/BlazeeWear/TrackFaro/internal/orders"
	"github.com/BlazeeWear/TrackFaro/internal/services/resolver"
)

// OrderSource — чтение заказов, подлежащих периодической проверке.
type OrderSource interface {
	ListRecent(ctx context.Context, statuses []string, since time.Time, limit int) ([]orders.Order, error)
	Notes(ctx context.Context, orderID int64) ([]orders.Note, error)
}

// TimelineResolver разрешает один трек-код.
type TimelineResolver interface {
	Resolve(ctx context.Context, code string, anchor time.Time) models.Resolution
}

type Producer interface {
	PublishShipmentUpdated(ctx context.Context, msg messages.ShipmentUpdated) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// StatusLedger помнит последний опубликованный статус по трек-коду.
// Без него каждый цикл плодил бы дубли заметок и алертов по уже
// доставленным заказам.
type StatusLedger interface {
	LastNotified(ctx context.Context, code string) (string, error)
	MarkNotified(ctx context.Context, code, status string) error
}

// Статусы заказов, которые ещё имеет смысл проверять.
var sweepStatuses = []string{"processing", "completed"}

// Sweeper периодически перепроверяет трек-коды недавних заказов, чтобы
// состояние отгрузок двигалось и без визитов покупателя на страницу.
type Sweeper struct {
	src      OrderSource
	resolve  TimelineResolver
	producer Producer
	rl       RateLimiter
	ledger   StatusLedger

	sweepInterval      time.Duration
	lookbackDays       int
	orderLimit         int
	batchSize          int
	batchPause         time.Duration
	rateLimitPerMinute int64

	triggerCh chan struct{}
	sleep     func(time.Duration)

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalOrders         atomic.Int64
	totalCodes          atomic.Int64
	totalPublished      atomic.Int64
	totalErrors         atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(src OrderSource, resolve TimelineResolver, producer Producer, rl RateLimiter) *Sweeper {
	return &Sweeper{
		src:      src,
		resolve:  resolve,
		producer: producer,
		rl:       rl,

		sweepInterval:      time.Hour,
		lookbackDays:       60,
		orderLimit:         50,
		batchSize:          20,
		batchPause:         5 * time.Second,
		rateLimitPerMinute: 60,

		triggerCh:         make(chan struct{}, 1),
		sleep:             time.Sleep,
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func (s *Sweeper) WithSchedule(interval time.Duration, lookbackDays, orderLimit, batchSize int, batchPause time.Duration) *Sweeper {
	if interval > 0 {
		s.sweepInterval = interval
	}
	if lookbackDays > 0 {
		s.lookbackDays = lookbackDays
	}
	if orderLimit > 0 {
		s.orderLimit = orderLimit
	}
	if batchSize > 0 {
		s.batchSize = batchSize
	}
	if batchPause > 0 {
		s.batchPause = batchPause
	}
	return s
}

func (s *Sweeper) WithRateLimit(perMinute int) *Sweeper {
	if perMinute > 0 {
		s.rateLimitPerMinute = int64(perMinute)
	}
	return s
}

func (s *Sweeper) WithStatusLedger(l StatusLedger) *Sweeper {
	s.ledger = l
	return s
}

// Trigger forces an immediate sweep cycle (best-effort, non-blocking).
func (s *Sweeper) Trigger() {
	s.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case s.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt      time.Time  `json:"startedAt"`
	LastCycleAt    *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt  *time.Time `json:"lastTriggerAt,omitempty"`
	TotalOrders    int64      `json:"totalOrders"`
	TotalCodes     int64      `json:"totalCodes"`
	TotalPublished int64      `json:"totalPublished"`
	TotalErrors    int64      `json:"totalErrors"`
	LastError      string     `json:"lastError,omitempty"`
}

func (s *Sweeper) Stats() Stats {
	st := Stats{
		StartedAt:      time.Unix(0, s.startedAtUnixNano).UTC(),
		TotalOrders:    s.totalOrders.Load(),
		TotalCodes:     s.totalCodes.Load(),
		TotalPublished: s.totalPublished.Load(),
		TotalErrors:    s.totalErrors.Load(),
	}
	if n := s.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := s.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	s.lastErrorMu.Lock()
	st.LastError = s.lastError
	s.lastErrorMu.Unlock()
	return st
}

func (s *Sweeper) Run(ctx context.Context) error {
	t := time.NewTicker(s.sweepInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			s.runOnce(ctx)
		case <-s.triggerCh:
			s.runOnce(ctx)
		}
	}
}

type codeJob struct {
	ref   resolver.CodeRef
	order orders.Order
}

func (s *Sweeper) runOnce(ctx context.Context) {
	now := time.Now().UTC()
	s.lastCycleUnixNano.Store(now.UnixNano())

	since := now.AddDate(0, 0, -s.lookbackDays)
	recent, err := s.src.ListRecent(ctx, sweepStatuses, since, s.orderLimit)
	if err != nil {
		s.fail(err)
		slog.Error("list recent orders", "error", err.Error())
		return
	}
	s.totalOrders.Add(int64(len(recent)))

	var jobs []codeJob
	for _, o := range recent {
		notes, err := s.src.Notes(ctx, o.ID)
		if err != nil {
			s.fail(err)
			slog.Warn("load order notes", "order_id", o.ID, "error", err.Error())
		}
		oCopy := o
		for _, ref := range resolver.ExtractCodes(&oCopy, notes) {
			jobs = append(jobs, codeJob{ref: ref, order: oCopy})
		}
	}
	s.totalCodes.Add(int64(len(jobs)))

	for i := 0; i < len(jobs); i += s.batchSize {
		if ctx.Err() != nil {
			return
		}
		end := i + s.batchSize
		if end > len(jobs) {
			end = len(jobs)
		}
		for _, j := range jobs[i:end] {
			s.processOne(ctx, j)
		}
		if end < len(jobs) {
			// Пауза между пачками, чтобы не выжечь квоту агрегатора.
			s.sleep(s.batchPause)
		}
	}
}

func (s *Sweeper) processOne(ctx context.Context, j codeJob) {
	now := time.Now().UTC()

	if s.rl != nil && s.rateLimitPerMinute > 0 {
		minuteKey := fmt.Sprintf("rl:17track:%s", now.Format("200601021504"))
		allowed, n, err := s.rl.Allow(ctx, minuteKey, s.rateLimitPerMinute, 70*time.Second)
		if err != nil {
			s.fail(err)
		} else if !allowed {
			slog.Warn("aggregator rate limit exceeded", "count", n)
			s.sleep(500 * time.Millisecond)
		}
	}

	res := s.resolve.Resolve(ctx, j.ref.Code, j.ref.Anchor)
	if res.Kind != models.KindResolved {
		return
	}
	if res.Status != models.StatusDelivered && res.Status != models.StatusProblem {
		return
	}

	// Публикуем только переходы: уже разосланный статус не повторяем.
	if s.ledger != nil {
		last, err := s.ledger.LastNotified(ctx, res.TrackingCode)
		if err != nil {
			s.fail(err)
			slog.Warn("read notified status", "code", res.TrackingCode, "error", err.Error())
		} else if last == res.Status {
			return
		}
	}

	msg := messages.ShipmentUpdated{
		TrackingCode: res.TrackingCode,
		OrderID:      j.order.ID,
		OrderNumber:  j.order.Number,
		Status:       res.Status,
		Message:      res.Message,
		CheckedAt:    now,
	}
	if err := s.producer.PublishShipmentUpdated(ctx, msg); err != nil {
		s.fail(err)
		slog.Error("publish shipment updated", "code", res.TrackingCode, "error", err.Error())
		return
	}
	s.totalPublished.Add(1)

	if s.ledger != nil {
		if err := s.ledger.MarkNotified(ctx, res.TrackingCode, res.Status); err != nil {
			s.fail(err)
			slog.Warn("mark notified status", "code", res.TrackingCode, "error", err.Error())
		}
	}
}

func (s *Sweeper) fail(err error) {
	s.totalErrors.Add(1)
	s.lastErrorMu.Lock()
	s.lastError = err.Error()
	s.lastErrorMu.Unlock()
}
