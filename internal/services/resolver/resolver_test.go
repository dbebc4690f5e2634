package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/BlazeeWear/TrackFaro/internal/models"
	"github.com/BlazeeWear/TrackFaro/internal/orders"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeOrders struct {
	byID     map[int64]*orders.Order
	byEmail  map[string][]orders.Order
	notes    map[int64][]orders.Note
	items    map[int64][]orders.Item
	notesErr error
}

func (f *fakeOrders) FindByID(_ context.Context, id int64) (*orders.Order, error) {
	o, ok := f.byID[id]
	if !ok {
		return nil, orders.ErrOrderNotFound
	}
	return o, nil
}

func (f *fakeOrders) FindByEmail(_ context.Context, email string) ([]orders.Order, error) {
	return f.byEmail[email], nil
}

func (f *fakeOrders) List(_ context.Context, _ []string, _, _ int) ([]orders.Order, error) {
	return nil, nil
}

func (f *fakeOrders) ListRecent(_ context.Context, _ []string, _ time.Time, _ int) ([]orders.Order, error) {
	return nil, nil
}

func (f *fakeOrders) Notes(_ context.Context, id int64) ([]orders.Note, error) {
	if f.notesErr != nil {
		return nil, f.notesErr
	}
	return f.notes[id], nil
}

func (f *fakeOrders) Items(_ context.Context, id int64) ([]orders.Item, error) {
	return f.items[id], nil
}

func (f *fakeOrders) AddNote(_ context.Context, _ int64, _ string) error { return nil }

type fakeTimelines struct {
	resolved  []CodeRef
	untracked []time.Time
}

func (f *fakeTimelines) Resolve(_ context.Context, code string, anchor time.Time) models.Resolution {
	f.resolved = append(f.resolved, CodeRef{Code: code, Anchor: anchor})
	return models.Resolution{Kind: models.KindResolved, TrackingCode: code, Status: models.StatusInTransit}
}

func (f *fakeTimelines) UntrackedTimeline(orderDate time.Time) models.Resolution {
	f.untracked = append(f.untracked, orderDate)
	return models.Resolution{Kind: models.KindResolved, Status: models.StatusPending}
}

func TestResolve_EmailListsOrders(t *testing.T) {
	store := &fakeOrders{byEmail: map[string][]orders.Order{
		"ana@example.com": {{ID: 1}, {ID: 2}},
	}}
	r := New(store, &fakeTimelines{}, nil)

	res, err := r.Resolve(context.Background(), " ana@example.com ")
	require.NoError(t, err)
	require.Len(t, res.Orders, 2)
	require.Empty(t, res.Resolutions)
}

func TestResolve_OrderIDWithHashPrefix(t *testing.T) {
	created := time.Date(2025, 2, 10, 16, 30, 0, 0, time.UTC)
	store := &fakeOrders{
		byID: map[int64]*orders.Order{
			1234: {ID: 1234, CreatedAt: created, TrackingCode: "AB123456789BR"},
		},
		items: map[int64][]orders.Item{1234: {{Name: "Camiseta", Quantity: 2}}},
	}
	tl := &fakeTimelines{}
	r := New(store, tl, nil)

	res, err := r.Resolve(context.Background(), "#1234")
	require.NoError(t, err)
	require.NotNil(t, res.Order)
	require.Len(t, res.Resolutions, 1)
	require.Len(t, res.Items, 1)

	require.Len(t, tl.resolved, 1)
	require.Equal(t, "AB123456789BR", tl.resolved[0].Code)
	require.True(t, tl.resolved[0].Anchor.Equal(created))
}

func TestResolve_OrderNotFound(t *testing.T) {
	r := New(&fakeOrders{byID: map[int64]*orders.Order{}}, &fakeTimelines{}, nil)
	_, err := r.Resolve(context.Background(), "777")
	require.ErrorIs(t, err, orders.ErrOrderNotFound)
}

func TestResolve_OrderWithoutCodesGetsUntrackedTimeline(t *testing.T) {
	created := time.Date(2025, 2, 10, 16, 30, 0, 0, time.UTC)
	store := &fakeOrders{byID: map[int64]*orders.Order{5: {ID: 5, CreatedAt: created}}}
	tl := &fakeTimelines{}
	r := New(store, tl, nil)

	res, err := r.Resolve(context.Background(), "5")
	require.NoError(t, err)
	require.Len(t, res.Resolutions, 1)
	require.Len(t, tl.untracked, 1)
	require.True(t, tl.untracked[0].Equal(created))
}

func TestResolve_NotesErrorDegradesToMetaCode(t *testing.T) {
	created := time.Date(2025, 2, 10, 16, 30, 0, 0, time.UTC)
	store := &fakeOrders{
		byID:     map[int64]*orders.Order{5: {ID: 5, CreatedAt: created, TrackingCode: "AB123456789BR"}},
		notesErr: errors.New("woocommerce 500"),
	}
	tl := &fakeTimelines{}
	r := New(store, tl, nil)

	res, err := r.Resolve(context.Background(), "5")
	require.NoError(t, err)
	require.Len(t, res.Resolutions, 1)
	require.Equal(t, "AB123456789BR", tl.resolved[0].Code)
}

func TestResolve_RawCodeUppercasedZeroAnchor(t *testing.T) {
	tl := &fakeTimelines{}
	r := New(&fakeOrders{}, tl, nil)

	res, err := r.Resolve(context.Background(), "ab123456789br")
	require.NoError(t, err)
	require.Len(t, res.Resolutions, 1)
	require.Equal(t, "AB123456789BR", tl.resolved[0].Code)
	require.True(t, tl.resolved[0].Anchor.IsZero())
}

func TestResolve_EmptyQuery(t *testing.T) {
	r := New(&fakeOrders{}, &fakeTimelines{}, nil)
	_, err := r.Resolve(context.Background(), "  # ")
	require.ErrorIs(t, err, ErrEmptyQuery)
}

func TestExtractCodes_MetaAndNotesDedup(t *testing.T) {
	created := time.Date(2025, 2, 10, 16, 30, 0, 0, time.UTC)
	noteAt := created.AddDate(0, 0, 2)
	o := &orders.Order{ID: 1, CreatedAt: created, TrackingCode: "AB123456789BR"}
	notes := []orders.Note{
		{Content: "Postado hoje: ab123456789br", CreatedAt: noteAt},
		{Content: "Cainiao: LP123456789012 e YT1234567890123456", CreatedAt: noteAt},
		{Content: "Sem código aqui", CreatedAt: noteAt},
	}

	refs := ExtractCodes(o, notes)
	require.Len(t, refs, 3)
	// дубликат из заметки не переопределяет якорь метаданных
	require.Equal(t, "AB123456789BR", refs[0].Code)
	require.True(t, refs[0].Anchor.Equal(created))
	require.Equal(t, "LP123456789012", refs[1].Code)
	require.True(t, refs[1].Anchor.Equal(noteAt))
	require.Equal(t, "YT1234567890123456", refs[2].Code)
}

func TestExtractCodes_SyrmAndCNBR(t *testing.T) {
	o := &orders.Order{ID: 1}
	notes := []orders.Note{{Content: "SYRM123456789 / CNBR12345678"}}
	refs := ExtractCodes(o, notes)
	require.Len(t, refs, 2)
	require.Equal(t, "SYRM123456789", refs[0].Code)
	require.Equal(t, "CNBR12345678", refs[1].Code)
}
