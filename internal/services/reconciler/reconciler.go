package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/BlazeeWear/TrackFaro/internal/carrier"
	"github.com/BlazeeWear/TrackFaro/internal/fictitious"
	"github.com/BlazeeWear/TrackFaro/internal/integrations/tracking"
	"github.com/BlazeeWear/TrackFaro/internal/models"
)

const (
	// Локация фиктивных событий в ленте.
	fictitiousLocation = "Brasil"
	// Показывается, когда в ленте вообще нет событий.
	fallbackMessage = "Seu pedido está em processamento."

	redirectURLFormat = "https://parcelsapp.com/pt/tracking/%s"
)

// StateStore — персистентное состояние отгрузок.
type StateStore interface {
	Get(ctx context.Context, code string) (*models.ShipmentRecord, bool, error)
	SaveNew(ctx context.Context, code string, c models.Carrier, createdAt time.Time) (bool, error)
	AppendFictitious(ctx context.Context, code, message string, scheduledAt time.Time) (bool, error)
	MarkRealTracking(ctx context.Context, code string) error
}

// EventFetcher отдаёт реальные события перевозчика.
type EventFetcher interface {
	Fetch(ctx context.Context, code string, c models.Carrier) (tracking.FetchResult, error)
}

// Reconciler сводит реальные события и фиктивное расписание в одну ленту.
// Любой отказ хранилища или агрегатора деградирует до фиктивной ленты,
// покупатель никогда не видит внутреннюю ошибку вместо статуса.
type Reconciler struct {
	cls       *carrier.Classifier
	store     StateStore
	fetch     EventFetcher
	templates []fictitious.Template
	loc       *time.Location
	log       *slog.Logger
	now       func() time.Time
}

func New(cls *carrier.Classifier, store StateStore, fetch EventFetcher, templates []fictitious.Template, loc *time.Location, log *slog.Logger) *Reconciler {
	if cls == nil {
		cls = carrier.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{
		cls:       cls,
		store:     store,
		fetch:     fetch,
		templates: templates,
		loc:       loc,
		log:       log,
		now:       time.Now,
	}
}

// Resolve разрешает один трек-код. anchor — дата оформления заказа
// (или дата заметки с кодом); нулевое значение означает "неизвестна",
// тогда якорем служит created_at записи.
func (r *Reconciler) Resolve(ctx context.Context, code string, anchor time.Time) models.Resolution {
	cr := r.cls.Classify(code)
	if cr == models.CarrierCainiao {
		// Cainiao не разрешаем сами, отдаём внешнюю страницу трекинга.
		return models.Resolution{
			Kind:         models.KindRedirect,
			TrackingCode: code,
			TrackingURL:  fmt.Sprintf(redirectURLFormat, code),
		}
	}

	if _, err := r.store.SaveNew(ctx, code, cr, anchor); err != nil {
		r.log.Warn("save shipment record failed", "code", code, "err", err)
	}

	rec, found, err := r.store.Get(ctx, code)
	if err != nil {
		r.log.Warn("read shipment record failed", "code", code, "err", err)
	}
	if !found || rec == nil {
		rec = &models.ShipmentRecord{TrackingCode: code, Carrier: cr}
	}
	if anchor.IsZero() {
		anchor = rec.CreatedAt
	}

	res, fetchErr := r.fetch.Fetch(ctx, code, cr)
	if fetchErr != nil {
		// Агрегатор недоступен: показываем фиктивную ленту как есть.
		r.log.Warn("fetch tracking failed", "code", code, "err", fetchErr)
		res = tracking.FetchResult{Status: models.StatusPending}
	}

	// Наступившие фиктивные сообщения генерируем до защёлки: те из них,
	// что запланированы раньше первого реального события, остаются в ленте.
	fakes := rec.FakeUpdates
	if !rec.HasRealTracking {
		fakes = append(fakes, r.emitDue(ctx, code, anchor, fakes)...)
	}

	if len(res.Events) > 0 && !rec.HasRealTracking {
		if err := r.store.MarkRealTracking(ctx, code); err != nil {
			r.log.Warn("mark real tracking failed", "code", code, "err", err)
		}
		rec.HasRealTracking = true
	}

	events := r.mergeTimeline(res.Events, fakes, rec.HasRealTracking)

	status := models.StatusPending
	if len(res.Events) > 0 {
		status = res.Status
	}
	message := fallbackMessage
	if len(events) > 0 {
		message = events[0].Description
	}

	return models.Resolution{
		Kind:         models.KindResolved,
		TrackingCode: code,
		Status:       status,
		Message:      message,
		Events:       events,
	}
}

// UntrackedTimeline строит фиктивную ленту для заказа без трек-кода.
// Ничего не персистит: у заказа нет ключа, по которому хранить состояние.
func (r *Reconciler) UntrackedTimeline(orderDate time.Time) models.Resolution {
	due := fictitious.Due(orderDate, r.templates, nil, false, r.now(), r.loc)

	events := make([]models.CarrierEvent, 0, len(due))
	for i := len(due) - 1; i >= 0; i-- {
		events = append(events, models.CarrierEvent{
			Time:        due[i].At,
			Description: due[i].Message,
			Location:    fictitiousLocation,
		})
	}

	message := fallbackMessage
	if len(events) > 0 {
		message = events[0].Description
	}
	return models.Resolution{
		Kind:    models.KindResolved,
		Status:  models.StatusPending,
		Message: message,
		Events:  events,
	}
}

// emitDue записывает все фиктивные сообщения, срок которых уже наступил.
// Отказ записи не скрывает сообщение из ответа: лента считается от
// расписания, хранилище лишь фиксирует факт показа.
func (r *Reconciler) emitDue(ctx context.Context, code string, anchor time.Time, existing []models.FakeUpdate) []models.FakeUpdate {
	already := make(map[string]struct{}, len(existing))
	for _, u := range existing {
		already[u.Message] = struct{}{}
	}

	due := fictitious.Due(anchor, r.templates, already, true, r.now(), r.loc)
	out := make([]models.FakeUpdate, 0, len(due))
	for _, d := range due {
		if _, err := r.store.AppendFictitious(ctx, code, d.Message, d.At); err != nil {
			r.log.Warn("append fictitious failed", "code", code, "err", err)
		}
		out = append(out, models.FakeUpdate{Message: d.Message, ScheduledAt: d.At, EmittedAt: r.now()})
	}
	return out
}

// mergeTimeline склеивает реальные и фиктивные события.
// Фиктивные, запланированные не раньше первого реального события,
// выбрасываются: с этого момента правду рассказывает перевозчик.
func (r *Reconciler) mergeTimeline(real []models.CarrierEvent, fakes []models.FakeUpdate, latched bool) []models.CarrierEvent {
	out := make([]models.CarrierEvent, 0, len(real)+len(fakes))
	out = append(out, real...)

	if len(real) > 0 {
		earliest := real[0].Time
		for _, e := range real[1:] {
			if e.Time.Before(earliest) {
				earliest = e.Time
			}
		}
		for _, f := range fakes {
			if f.ScheduledAt.Before(earliest) {
				out = append(out, fakeEvent(f))
			}
		}
	} else if !latched {
		for _, f := range fakes {
			out = append(out, fakeEvent(f))
		}
	}
	// latched и событий нет: фиктивные не возвращаются, защёлка монотонна

	sort.Slice(out, func(i, j int) bool { return out[i].Time.After(out[j].Time) })
	return out
}

func fakeEvent(f models.FakeUpdate) models.CarrierEvent {
	return models.CarrierEvent{
		Time:        f.ScheduledAt,
		Description: f.Message,
		Location:    fictitiousLocation,
	}
}
