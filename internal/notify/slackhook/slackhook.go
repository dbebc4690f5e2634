package slackhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/BlazeeWear/TrackFaro/internal/orders"
	"github.com/pkg/errors"
)

// Client шлёт уведомления в incoming webhook Slack.
// Пустой URL выключает отправку целиком, это штатный режим для dev.
type Client struct {
	webhookURL string
	httpc      *http.Client
}

func New(webhookURL string) *Client {
	return &Client{
		webhookURL: webhookURL,
		httpc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *Client) Enabled() bool {
	return c.webhookURL != ""
}

func (c *Client) Notify(ctx context.Context, text string) error {
	if !c.Enabled() {
		return nil
	}

	b, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return errors.Wrap(err, "marshal payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(b))
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("slack http %d", resp.StatusCode)
	}
	return nil
}

// MissingItemsMessage собирает текст жалобы на недостающие позиции заказа.
func MissingItemsMessage(orderNumber, customerName string, items []orders.Item) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, ":package: Pedido #%s", orderNumber)
	if customerName != "" {
		fmt.Fprintf(&buf, " (%s)", customerName)
	}
	buf.WriteString(" relatou itens faltando:")
	for _, it := range items {
		fmt.Fprintf(&buf, "\n• %dx %s", it.Quantity, it.Name)
		if it.SKU != "" {
			fmt.Fprintf(&buf, " [%s]", it.SKU)
		}
	}
	return buf.String()
}

// ProblemMessage — текст алерта о проблемной отгрузке.
func ProblemMessage(orderID int64, trackingCode, statusMessage string) string {
	return fmt.Sprintf(":warning: Pedido %d, código %s: %s", orderID, trackingCode, statusMessage)
}
