package seventeentrack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/BlazeeWear/TrackFaro/internal/integrations/tracking"
	"github.com/BlazeeWear/TrackFaro/internal/models"
	"github.com/pkg/errors"
)

// Числовые ID перевозчиков в реестре 17TRACK.
const (
	carrierIDCainiao  = 800
	carrierIDCorreios = 2151
)

// Код ошибки "номер уже зарегистрирован" — для нас это успех.
const errAlreadyRegistered = -18019901

// Client — клиент 17TRACK API v2.2.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
	loc     *time.Location
}

func New(baseURL, apiKey string, loc *time.Location) *Client {
	if baseURL == "" {
		baseURL = "https://api.17track.net/track/v2.2"
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpc: &http.Client{
			Timeout: 30 * time.Second,
		},
		loc: loc,
	}
}

func carrierID(c models.Carrier) int {
	if c == models.CarrierCainiao {
		return carrierIDCainiao
	}
	return carrierIDCorreios
}

type apiResponse struct {
	Code int `json:"code"`
	Data struct {
		Accepted []acceptedItem `json:"accepted"`
		Rejected []struct {
			Number string `json:"number"`
			Error  struct {
				Code    int    `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		} `json:"rejected"`
	} `json:"data"`
}

type acceptedItem struct {
	Number    string `json:"number"`
	TrackInfo struct {
		LatestStatus struct {
			Status string `json:"status"`
		} `json:"latest_status"`
		LatestEvent *rawEvent `json:"latest_event"`
		Tracking    struct {
			Providers []struct {
				Events []rawEvent `json:"events"`
			} `json:"providers"`
		} `json:"tracking"`
	} `json:"track_info"`
}

type rawEvent struct {
	TimeUTC     string `json:"time_utc"`
	TimeISO     string `json:"time_iso"`
	TimeRaw     struct {
		Date string `json:"date"`
		Time string `json:"time"`
	} `json:"time_raw"`
	Description string `json:"description"`
	Location    string `json:"location"`
}

func (c *Client) Register(ctx context.Context, code string, carrier models.Carrier) error {
	payload := []map[string]any{{
		"number":         code,
		"carrier":        carrierID(carrier),
		"auto_detection": false,
	}}

	r, err := c.post(ctx, "/register", payload)
	if err != nil {
		return err
	}
	if len(r.Data.Accepted) > 0 {
		return nil
	}
	for _, rej := range r.Data.Rejected {
		if rej.Error.Code == errAlreadyRegistered {
			return nil
		}
		return fmt.Errorf("17track register rejected: %d %s", rej.Error.Code, rej.Error.Message)
	}
	return errors.New("17track register: empty response")
}

func (c *Client) Fetch(ctx context.Context, code string, carrier models.Carrier) (tracking.FetchResult, error) {
	payload := []map[string]any{{
		"number":     code,
		"carrier":    carrierID(carrier),
		"cacheLevel": 1,
	}}

	r, err := c.post(ctx, "/gettrackinfo", payload)
	if err != nil {
		return tracking.FetchResult{}, err
	}
	if r.Code != 0 || len(r.Data.Accepted) == 0 {
		// Номер ещё не известен агрегатору: событий нет, ждём.
		return tracking.FetchResult{Status: models.StatusPending}, nil
	}

	info := r.Data.Accepted[0].TrackInfo

	var events []models.CarrierEvent
	for _, p := range info.Tracking.Providers {
		for _, e := range p.Events {
			events = append(events, models.CarrierEvent{
				Time:        c.eventTime(e),
				Description: e.Description,
				Location:    e.Location,
			})
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Time.After(events[j].Time) })

	status := mapStatus(info.LatestStatus.Status)
	if status != models.StatusDelivered && len(events) > 0 && looksDelivered(events[0].Description) {
		status = models.StatusDelivered
	}

	message := ""
	if len(events) > 0 {
		message = events[0].Description
	}

	return tracking.FetchResult{
		Status:  status,
		Message: message,
		Events:  events,
	}, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) (*apiResponse, error) {
	if c.apiKey == "" {
		return nil, errors.New("17track api key is not configured")
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "marshal payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("17token", c.apiKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("17track http %d", resp.StatusCode)
	}

	var r apiResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, errors.Wrap(err, "decode response")
	}
	return &r, nil
}

// eventTime выбирает время события с деградацией по источникам:
// time_utc -> time_iso -> time_raw -> now.
func (c *Client) eventTime(e rawEvent) time.Time {
	if e.TimeUTC != "" {
		if t, err := time.Parse(time.RFC3339, e.TimeUTC); err == nil {
			return t
		}
	}
	if e.TimeISO != "" {
		if t, err := time.Parse(time.RFC3339, e.TimeISO); err == nil {
			return t
		}
	}
	if e.TimeRaw.Date != "" {
		raw := e.TimeRaw.Date
		if e.TimeRaw.Time != "" {
			raw += " " + e.TimeRaw.Time
		} else {
			raw += " 00:00:00"
		}
		if t, err := time.ParseInLocation("2006-01-02 15:04:05", raw, c.loc); err == nil {
			return t
		}
	}
	return time.Now()
}

func mapStatus(s string) string {
	switch s {
	case "NotFound", "InfoReceived":
		return models.StatusPending
	case "InTransit", "OutForDelivery", "AvailableForPickup":
		return models.StatusInTransit
	case "Delivered":
		return models.StatusDelivered
	case "DeliveryFailure", "Exception", "Expired":
		return models.StatusProblem
	default:
		return models.StatusInTransit
	}
}

func looksDelivered(s string) bool {
	low := strings.ToLower(s)
	return strings.Contains(low, "entregue") || strings.Contains(low, "delivered")
}
