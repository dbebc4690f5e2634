package orders

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// ErrOrderNotFound возвращается, когда заказ с указанным ID не существует.
var ErrOrderNotFound = errors.New("order not found")

// Order — заказ магазина в том объёме, который нужен разрешению трекинга.
type Order struct {
	ID           int64
	Number       string
	Status       string
	CreatedAt    time.Time
	Email        string
	CustomerName string
	Total        string
	Currency     string
	TrackingCode string
}

// Note — заметка по заказу. В тексте заметок менеджеры оставляют трек-коды.
type Note struct {
	Content   string
	CreatedAt time.Time
}

// Item — позиция заказа.
type Item struct {
	ProductID int64
	Name      string
	Quantity  int
	SKU       string
}

// Store — доступ к заказам магазина.
type Store interface {
	// FindByID возвращает ErrOrderNotFound, если заказа нет.
	FindByID(ctx context.Context, id int64) (*Order, error)
	FindByEmail(ctx context.Context, email string) ([]Order, error)
	// ListRecent отдаёт заказы в указанных статусах не старше since.
	ListRecent(ctx context.Context, statuses []string, since time.Time, limit int) ([]Order, error)
	// List — постраничный список заказов, новые первыми.
	// Пустой statuses означает все статусы.
	List(ctx context.Context, statuses []string, page, perPage int) ([]Order, error)
	Notes(ctx context.Context, orderID int64) ([]Note, error)
	Items(ctx context.Context, orderID int64) ([]Item, error)
	AddNote(ctx context.Context, orderID int64, content string) error
}
