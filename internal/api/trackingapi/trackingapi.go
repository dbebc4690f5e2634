package trackingapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BlazeeWear/TrackFaro/internal/models"
	"github.com/BlazeeWear/TrackFaro/internal/notify/slackhook"
	"github.com/BlazeeWear/TrackFaro/internal/orders"
	"github.com/BlazeeWear/TrackFaro/internal/services/resolver"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
)

// Даты на проводе — в формате, который показывает витрина магазина.
const wireDateLayout = "02/01/2006 15:04"

// QueryResolver разбирает пользовательский ввод (заказ, email, трек-код).
type QueryResolver interface {
	Resolve(ctx context.Context, query string) (resolver.Result, error)
}

// Timelines — прямое разрешение одного трек-кода.
type Timelines interface {
	Resolve(ctx context.Context, code string, anchor time.Time) models.Resolution
}

// ResultCache кэширует сериализованные ответы по трек-коду.
type ResultCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type Notifier interface {
	Enabled() bool
	Notify(ctx context.Context, text string) error
}

// API — HTTP-слой сервиса трекинга.
type API struct {
	qr       QueryResolver
	tl       Timelines
	store    orders.Store
	cache    ResultCache
	cacheTTL time.Duration
	notify   Notifier
	apiKey   string
	log      *slog.Logger
}

func New(qr QueryResolver, tl Timelines, store orders.Store, cache ResultCache, cacheTTL time.Duration, notify Notifier, apiKey string, log *slog.Logger) *API {
	if log == nil {
		log = slog.Default()
	}
	return &API{
		qr:       qr,
		tl:       tl,
		store:    store,
		cache:    cache,
		cacheTTL: cacheTTL,
		notify:   notify,
		apiKey:   apiKey,
		log:      log,
	}
}

func (a *API) Routes(r chi.Router) {
	r.Use(a.requireAPIKey)
	r.Post("/track", a.handleTrack)
	r.Get("/tracking/{code}", a.handleTrackingCode)
	r.Get("/tracking/email/{email}", a.handleTrackingEmail)
	r.Get("/orders", a.handleOrders)
	r.Get("/orders/{id}", a.handleOrder)
	r.Post("/missing-items", a.handleMissingItems)
}

// requireAPIKey проверяет X-API-Key. Пустой ключ в конфиге оставляет
// эндпоинты открытыми, это режим локальной разработки.
func (a *API) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.apiKey != "" && r.Header.Get("X-API-Key") != a.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Проводные формы.

type wireEvent struct {
	Date        string `json:"date"`
	Description string `json:"description"`
	Location    string `json:"location,omitempty"`
}

type wireResolution struct {
	TrackingCode string      `json:"tracking_code,omitempty"`
	Status       string      `json:"status"`
	Message      string      `json:"message"`
	TrackingURL  string      `json:"tracking_url,omitempty"`
	Redirect     bool        `json:"redirect,omitempty"`
	Data         []wireEvent `json:"data"`
}

type wireOrder struct {
	ID        int64  `json:"id"`
	Number    string `json:"number"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	Total     string `json:"total,omitempty"`
	Currency  string `json:"currency,omitempty"`
}

type wireOrderWithCodes struct {
	wireOrder
	TrackingCodes []string `json:"tracking_codes"`
}

type wireItem struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	SKU       string `json:"sku,omitempty"`
}

type trackResponse struct {
	TrackingResults      []wireResolution `json:"tracking_results,omitempty"`
	Orders               []wireOrder      `json:"orders,omitempty"`
	AllowMissingItemForm bool             `json:"allow_missing_item_form,omitempty"`
	OrderItems           []wireItem       `json:"order_items,omitempty"`
}

func toWireResolution(res models.Resolution) wireResolution {
	out := wireResolution{
		TrackingCode: res.TrackingCode,
		Status:       res.Status,
		Message:      res.Message,
		Data:         []wireEvent{},
	}
	if res.Kind == models.KindRedirect {
		out.Redirect = true
		out.TrackingURL = res.TrackingURL
		return out
	}
	for _, e := range res.Events {
		out.Data = append(out.Data, wireEvent{
			Date:        e.Time.Format(wireDateLayout),
			Description: e.Description,
			Location:    e.Location,
		})
	}
	return out
}

func toWireOrder(o orders.Order) wireOrder {
	return wireOrder{
		ID:        o.ID,
		Number:    o.Number,
		Status:    o.Status,
		CreatedAt: o.CreatedAt.Format(wireDateLayout),
		Total:     o.Total,
		Currency:  o.Currency,
	}
}

func (a *API) handleTrack(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := a.qr.Resolve(r.Context(), req.Query)
	if err != nil {
		a.writeResolveError(w, err)
		return
	}

	resp := trackResponse{}
	for _, rr := range res.Resolutions {
		resp.TrackingResults = append(resp.TrackingResults, toWireResolution(rr))
	}
	for _, o := range res.Orders {
		resp.Orders = append(resp.Orders, toWireOrder(o))
	}
	if res.Order != nil {
		// Форма пропавших позиций открывается, только когда доставлены все коды.
		allDelivered := len(res.Resolutions) > 0
		for _, rr := range res.Resolutions {
			if rr.Status != models.StatusDelivered {
				allDelivered = false
				break
			}
		}
		resp.AllowMissingItemForm = allDelivered
		for _, it := range res.Items {
			resp.OrderItems = append(resp.OrderItems, wireItem{
				ProductID: it.ProductID,
				Name:      it.Name,
				Quantity:  it.Quantity,
				SKU:       it.SKU,
			})
		}
	}
	writeSuccess(w, resp)
}

func (a *API) handleTrackingCode(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	cacheKey := "resolve:" + code

	if a.cache != nil {
		if b, ok, err := a.cache.Get(r.Context(), cacheKey); err != nil {
			a.log.Warn("result cache get failed", "code", code, "err", err)
		} else if ok {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(b)
			return
		}
	}

	res := a.tl.Resolve(r.Context(), code, time.Time{})
	body, err := json.Marshal(successEnvelope{Success: true, Data: toWireResolution(res)})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encode response")
		return
	}
	if a.cache != nil && a.cacheTTL > 0 {
		if err := a.cache.Set(r.Context(), cacheKey, body, a.cacheTTL); err != nil {
			a.log.Warn("result cache set failed", "code", code, "err", err)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

func (a *API) handleTrackingEmail(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	found, err := a.store.FindByEmail(r.Context(), email)
	if err != nil {
		a.log.Error("find orders by email failed", "err", err)
		writeError(w, http.StatusBadGateway, "store unavailable")
		return
	}
	out := make([]wireOrder, 0, len(found))
	for _, o := range found {
		out = append(out, toWireOrder(o))
	}
	writeSuccess(w, map[string]any{"orders": out})
}

// handleOrders — постраничный список заказов с извлечёнными трек-кодами,
// для внутренних панелей магазина.
func (a *API) handleOrders(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	perPage := queryInt(r, "per_page", 10)
	if perPage > 100 {
		perPage = 100
	}
	var statuses []string
	if s := r.URL.Query().Get("status"); s != "" {
		statuses = strings.Split(s, ",")
	}

	found, err := a.store.List(r.Context(), statuses, page, perPage)
	if err != nil {
		a.log.Error("list orders failed", "err", err)
		writeError(w, http.StatusBadGateway, "store unavailable")
		return
	}

	out := make([]wireOrderWithCodes, 0, len(found))
	for _, o := range found {
		notes, err := a.store.Notes(r.Context(), o.ID)
		if err != nil {
			a.log.Warn("load order notes failed", "order_id", o.ID, "err", err)
		}
		oCopy := o
		codes := make([]string, 0)
		for _, ref := range resolver.ExtractCodes(&oCopy, notes) {
			codes = append(codes, ref.Code)
		}
		out = append(out, wireOrderWithCodes{
			wireOrder:     toWireOrder(o),
			TrackingCodes: codes,
		})
	}
	writeSuccess(w, map[string]any{
		"orders":   out,
		"page":     page,
		"per_page": perPage,
	})
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return def
	}
	return n
}

func (a *API) handleOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	o, err := a.store.FindByID(r.Context(), id)
	if errors.Is(err, orders.ErrOrderNotFound) {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	if err != nil {
		a.log.Error("find order failed", "order_id", id, "err", err)
		writeError(w, http.StatusBadGateway, "store unavailable")
		return
	}
	writeSuccess(w, toWireOrder(*o))
}

func (a *API) handleMissingItems(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID int64   `json:"order_id"`
		Items   []int64 `json:"items"`
		Comment string  `json:"comment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OrderID == 0 {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	o, err := a.store.FindByID(r.Context(), req.OrderID)
	if errors.Is(err, orders.ErrOrderNotFound) {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, "store unavailable")
		return
	}

	items, err := a.store.Items(r.Context(), o.ID)
	if err != nil {
		a.log.Warn("load order items failed", "order_id", o.ID, "err", err)
	}
	missing := filterItems(items, req.Items)

	note := "Cliente relatou itens faltando no pedido."
	if req.Comment != "" {
		note += " Comentário: " + req.Comment
	}
	if err := a.store.AddNote(r.Context(), o.ID, note); err != nil {
		a.log.Error("add order note failed", "order_id", o.ID, "err", err)
	}

	if a.notify != nil && a.notify.Enabled() {
		msg := missingItemsText(o, missing, req.Comment)
		if err := a.notify.Notify(r.Context(), msg); err != nil {
			a.log.Error("slack notify failed", "order_id", o.ID, "err", err)
		}
	}
	writeSuccess(w, map[string]any{"received": true})
}

func missingItemsText(o *orders.Order, items []orders.Item, comment string) string {
	msg := slackhook.MissingItemsMessage(o.Number, o.CustomerName, items)
	if comment != "" {
		msg += "\nComentário: " + comment
	}
	return msg
}

func filterItems(items []orders.Item, ids []int64) []orders.Item {
	if len(ids) == 0 {
		return items
	}
	want := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	out := make([]orders.Item, 0, len(ids))
	for _, it := range items {
		if _, ok := want[it.ProductID]; ok {
			out = append(out, it)
		}
	}
	return out
}

type successEnvelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

func writeSuccess(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(successEnvelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"data":    map[string]string{"message": msg},
	})
}

func (a *API) writeResolveError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, resolver.ErrEmptyQuery):
		writeError(w, http.StatusBadRequest, "empty query")
	case errors.Is(err, orders.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	default:
		a.log.Error("resolve query failed", "err", err)
		writeError(w, http.StatusBadGateway, "resolution failed")
	}
}
