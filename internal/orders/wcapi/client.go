package wcapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/BlazeeWear/TrackFaro/internal/orders"
	"github.com/pkg/errors"
)

// Ключ метаданных заказа, в котором магазин хранит трек-код.
const trackingCodeMetaKey = "_tracking_code"

// WooCommerce отдаёт даты без зоны, в локальном времени магазина.
const wcDateLayout = "2006-01-02T15:04:05"

// Client — клиент WooCommerce REST API v3 с базовой авторизацией
// по consumer key/secret.
type Client struct {
	baseURL string
	ck      string
	cs      string
	httpc   *http.Client
	loc     *time.Location
}

func New(baseURL, consumerKey, consumerSecret string, loc *time.Location) *Client {
	if loc == nil {
		loc = time.UTC
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		ck:      consumerKey,
		cs:      consumerSecret,
		httpc: &http.Client{
			Timeout: 15 * time.Second,
		},
		loc: loc,
	}
}

type wcOrder struct {
	ID          int64  `json:"id"`
	Number      string `json:"number"`
	Status      string `json:"status"`
	DateCreated string `json:"date_created"`
	Total       string `json:"total"`
	Currency    string `json:"currency"`
	Billing     struct {
		Email     string `json:"email"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	} `json:"billing"`
	MetaData []struct {
		Key   string          `json:"key"`
		Value json.RawMessage `json:"value"`
	} `json:"meta_data"`
	LineItems []struct {
		ProductID int64  `json:"product_id"`
		Name      string `json:"name"`
		Quantity  int    `json:"quantity"`
		SKU       string `json:"sku"`
	} `json:"line_items"`
}

func (c *Client) FindByID(ctx context.Context, id int64) (*orders.Order, error) {
	var wo wcOrder
	status, err := c.get(ctx, "/wp-json/wc/v3/orders/"+strconv.FormatInt(id, 10), nil, &wo)
	if status == http.StatusNotFound {
		return nil, orders.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	o := c.toOrder(wo)
	return &o, nil
}

func (c *Client) FindByEmail(ctx context.Context, email string) ([]orders.Order, error) {
	q := url.Values{}
	q.Set("search", email)
	q.Set("per_page", "20")
	q.Set("orderby", "date")
	q.Set("order", "desc")

	var raw []wcOrder
	if _, err := c.get(ctx, "/wp-json/wc/v3/orders", q, &raw); err != nil {
		return nil, err
	}

	// search матчит по нескольким полям, оставляем только точное совпадение email
	out := make([]orders.Order, 0, len(raw))
	for _, wo := range raw {
		if strings.EqualFold(wo.Billing.Email, email) {
			out = append(out, c.toOrder(wo))
		}
	}
	return out, nil
}

func (c *Client) ListRecent(ctx context.Context, statuses []string, since time.Time, limit int) ([]orders.Order, error) {
	q := url.Values{}
	q.Set("status", strings.Join(statuses, ","))
	q.Set("after", since.In(c.loc).Format(wcDateLayout))
	q.Set("per_page", strconv.Itoa(limit))
	q.Set("orderby", "date")
	q.Set("order", "desc")

	var raw []wcOrder
	if _, err := c.get(ctx, "/wp-json/wc/v3/orders", q, &raw); err != nil {
		return nil, err
	}
	out := make([]orders.Order, 0, len(raw))
	for _, wo := range raw {
		out = append(out, c.toOrder(wo))
	}
	return out, nil
}

func (c *Client) List(ctx context.Context, statuses []string, page, perPage int) ([]orders.Order, error) {
	q := url.Values{}
	if len(statuses) > 0 {
		q.Set("status", strings.Join(statuses, ","))
	}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("orderby", "date")
	q.Set("order", "desc")

	var raw []wcOrder
	if _, err := c.get(ctx, "/wp-json/wc/v3/orders", q, &raw); err != nil {
		return nil, err
	}
	out := make([]orders.Order, 0, len(raw))
	for _, wo := range raw {
		out = append(out, c.toOrder(wo))
	}
	return out, nil
}

func (c *Client) Notes(ctx context.Context, orderID int64) ([]orders.Note, error) {
	var raw []struct {
		Note        string `json:"note"`
		DateCreated string `json:"date_created"`
	}
	path := fmt.Sprintf("/wp-json/wc/v3/orders/%d/notes", orderID)
	if _, err := c.get(ctx, path, nil, &raw); err != nil {
		return nil, err
	}
	out := make([]orders.Note, 0, len(raw))
	for _, n := range raw {
		out = append(out, orders.Note{
			Content:   n.Note,
			CreatedAt: c.parseDate(n.DateCreated),
		})
	}
	return out, nil
}

func (c *Client) Items(ctx context.Context, orderID int64) ([]orders.Item, error) {
	var wo wcOrder
	status, err := c.get(ctx, "/wp-json/wc/v3/orders/"+strconv.FormatInt(orderID, 10), nil, &wo)
	if status == http.StatusNotFound {
		return nil, orders.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	out := make([]orders.Item, 0, len(wo.LineItems))
	for _, li := range wo.LineItems {
		out = append(out, orders.Item{
			ProductID: li.ProductID,
			Name:      li.Name,
			Quantity:  li.Quantity,
			SKU:       li.SKU,
		})
	}
	return out, nil
}

func (c *Client) AddNote(ctx context.Context, orderID int64, content string) error {
	body := map[string]any{"note": content, "customer_note": false}
	path := fmt.Sprintf("/wp-json/wc/v3/orders/%d/notes", orderID)
	return c.post(ctx, path, body)
}

func (c *Client) toOrder(wo wcOrder) orders.Order {
	o := orders.Order{
		ID:           wo.ID,
		Number:       wo.Number,
		Status:       wo.Status,
		CreatedAt:    c.parseDate(wo.DateCreated),
		Email:        wo.Billing.Email,
		CustomerName: strings.TrimSpace(wo.Billing.FirstName + " " + wo.Billing.LastName),
		Total:        wo.Total,
		Currency:     wo.Currency,
	}
	for _, m := range wo.MetaData {
		if m.Key != trackingCodeMetaKey {
			continue
		}
		var v string
		if err := json.Unmarshal(m.Value, &v); err == nil {
			o.TrackingCode = strings.TrimSpace(v)
		}
	}
	return o
}

func (c *Client) parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.ParseInLocation(wcDateLayout, s, c.loc)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) (int, error) {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, errors.Wrap(err, "new request")
	}
	req.SetBasicAuth(c.ck, c.cs)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return 0, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, fmt.Errorf("woocommerce http %d on %s", resp.StatusCode, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, errors.Wrap(err, "decode response")
	}
	return resp.StatusCode, nil
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return errors.Wrap(err, "marshal body")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(string(b)))
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.SetBasicAuth(c.ck, c.cs)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("woocommerce http %d on %s", resp.StatusCode, path)
	}
	return nil
}
