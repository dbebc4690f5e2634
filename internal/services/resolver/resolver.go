package resolver

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BlazeeWear/TrackFaro/internal/models"
	"github.com/BlazeeWear/TrackFaro/internal/orders"
	"github.com/pkg/errors"
)

// Формы трек-кодов, которые менеджеры оставляют в заметках заказа.
var codeRe = regexp.MustCompile(`(?i)\b([A-Z]{2}\d{9,14}[A-Z]{2}|LP\d{12,}|CNBR\d{8,}|YT\d{16}|SYRM\d{9,})\b`)

var emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

var ErrEmptyQuery = errors.New("empty query")

// Timelines — разрешение отдельных трек-кодов (и заказов без кода).
type Timelines interface {
	Resolve(ctx context.Context, code string, anchor time.Time) models.Resolution
	UntrackedTimeline(orderDate time.Time) models.Resolution
}

// CodeRef — трек-код вместе с датой, от которой считается фиктивное расписание.
type CodeRef struct {
	Code   string
	Anchor time.Time
}

// Result — ответ на пользовательский запрос.
// Ровно одно из полей Resolutions/Orders заполнено по смыслу запроса:
// трек-код или заказ дают Resolutions, email — список заказов.
type Result struct {
	Resolutions []models.Resolution
	Order       *orders.Order
	Items       []orders.Item
	Orders      []orders.Order
}

// Resolver принимает то, что покупатель ввёл в форму (номер заказа,
// email или трек-код), и доводит до ленты трекинга.
type Resolver struct {
	store orders.Store
	tl    Timelines
	log   *slog.Logger
}

func New(store orders.Store, tl Timelines, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{store: store, tl: tl, log: log}
}

func (r *Resolver) Resolve(ctx context.Context, query string) (Result, error) {
	q := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(query), "#"))
	if q == "" {
		return Result{}, ErrEmptyQuery
	}

	if emailRe.MatchString(q) {
		found, err := r.store.FindByEmail(ctx, q)
		if err != nil {
			return Result{}, errors.Wrap(err, "find orders by email")
		}
		return Result{Orders: found}, nil
	}

	if id, err := strconv.ParseInt(q, 10, 64); err == nil {
		return r.resolveOrder(ctx, id)
	}

	// всё остальное трактуем как трек-код; якорь неизвестен
	return Result{
		Resolutions: []models.Resolution{r.tl.Resolve(ctx, strings.ToUpper(q), time.Time{})},
	}, nil
}

func (r *Resolver) resolveOrder(ctx context.Context, id int64) (Result, error) {
	o, err := r.store.FindByID(ctx, id)
	if err != nil {
		return Result{}, err
	}

	notes, err := r.store.Notes(ctx, o.ID)
	if err != nil {
		// без заметок остаётся код из метаданных
		r.log.Warn("load order notes failed", "order_id", o.ID, "err", err)
	}

	refs := ExtractCodes(o, notes)
	res := Result{Order: o}

	if items, err := r.store.Items(ctx, o.ID); err != nil {
		r.log.Warn("load order items failed", "order_id", o.ID, "err", err)
	} else {
		res.Items = items
	}

	if len(refs) == 0 {
		tl := r.tl.UntrackedTimeline(o.CreatedAt)
		res.Resolutions = []models.Resolution{tl}
		return res, nil
	}

	for _, ref := range refs {
		res.Resolutions = append(res.Resolutions, r.tl.Resolve(ctx, ref.Code, ref.Anchor))
	}
	return res, nil
}

// ExtractCodes собирает трек-коды заказа: сперва из метаданных, затем из
// текста заметок. Дубликаты схлопываются, первое вхождение задаёт якорь.
func ExtractCodes(o *orders.Order, notes []orders.Note) []CodeRef {
	var out []CodeRef
	seen := map[string]struct{}{}

	add := func(code string, anchor time.Time) {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code == "" {
			return
		}
		if _, ok := seen[code]; ok {
			return
		}
		seen[code] = struct{}{}
		out = append(out, CodeRef{Code: code, Anchor: anchor})
	}

	if o.TrackingCode != "" {
		add(o.TrackingCode, o.CreatedAt)
	}
	for _, n := range notes {
		for _, m := range codeRe.FindAllString(n.Content, -1) {
			anchor := n.CreatedAt
			if anchor.IsZero() {
				anchor = o.CreatedAt
			}
			add(m, anchor)
		}
	}
	return out
}
