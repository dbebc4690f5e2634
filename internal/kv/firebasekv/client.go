package firebasekv

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Client — тонкий клиент Firebase Realtime Database поверх REST.
// Write = PUT (replace), Patch = PATCH (merge верхнего уровня) — ровно та
// семантика replace|merge, на которую рассчитан statestore.
type Client struct {
	baseURL string
	secret  string
	httpc   *http.Client
}

func New(baseURL, secret string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Client) Read(ctx context.Context, path string) (json.RawMessage, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(path), nil)
	if err != nil {
		return nil, false, errors.Wrap(err, "new request")
	}

	body, err := c.do(req)
	if err != nil {
		return nil, false, err
	}
	if isNull(body) {
		return nil, false, nil
	}
	return body, true, nil
}

func (c *Client) Write(ctx context.Context, path string, value any) error {
	return c.send(ctx, http.MethodPut, path, value)
}

func (c *Client) Patch(ctx context.Context, path string, value any) error {
	return c.send(ctx, http.MethodPatch, path, value)
}

func (c *Client) send(ctx context.Context, method, path string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "marshal value")
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), bytes.NewReader(b))
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/json")

	_, err = c.do(req)
	return err
}

func (c *Client) do(req *http.Request) ([]byte, error) {
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
		return nil, fmt.Errorf("firebase http %d: %s", resp.StatusCode, truncate(body))
	}
	return body, nil
}

func (c *Client) url(path string) string {
	u := c.baseURL + "/" + strings.Trim(path, "/") + ".json"
	if c.secret != "" {
		u += "?auth=" + c.secret
	}
	return u
}

func isNull(b []byte) bool {
	return string(bytes.TrimSpace(b)) == "null"
}

func truncate(b []byte) string {
	const max = 200
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
