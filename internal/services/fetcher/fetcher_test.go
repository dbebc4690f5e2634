package fetcher

import (
	"context"
	"testing"

	"github.com/BlazeeWear/TrackFaro/internal/integrations/tracking"
	"github.com/BlazeeWear/TrackFaro/internal/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fakeAgg struct {
	registered  []string
	registerErr error
	fetchRes    tracking.FetchResult
	fetchErr    error
	fetchCalls  int
}

func (a *fakeAgg) Register(_ context.Context, code string, _ models.Carrier) error {
	if a.registerErr != nil {
		return a.registerErr
	}
	a.registered = append(a.registered, code)
	return nil
}

func (a *fakeAgg) Fetch(_ context.Context, _ string, _ models.Carrier) (tracking.FetchResult, error) {
	a.fetchCalls++
	return a.fetchRes, a.fetchErr
}

type fakeSet struct {
	m           map[string]bool
	containsErr error
}

func (s *fakeSet) Contains(_ context.Context, code string) (bool, error) {
	if s.containsErr != nil {
		return false, s.containsErr
	}
	return s.m[code], nil
}

func (s *fakeSet) Add(_ context.Context, code string) error {
	s.m[code] = true
	return nil
}

func TestFetcher_RegistersOnce(t *testing.T) {
	agg := &fakeAgg{fetchRes: tracking.FetchResult{Status: models.StatusInTransit}}
	set := &fakeSet{m: map[string]bool{}}
	f := New(agg, set, nil)

	ctx := context.Background()
	_, err := f.Fetch(ctx, "AB1", models.CarrierCorreios)
	require.NoError(t, err)
	_, err = f.Fetch(ctx, "AB1", models.CarrierCorreios)
	require.NoError(t, err)

	require.Equal(t, []string{"AB1"}, agg.registered)
	require.Equal(t, 2, agg.fetchCalls)
}

func TestFetcher_RegisterErrorIsNotFatal(t *testing.T) {
	agg := &fakeAgg{
		registerErr: errors.New("quota exceeded"),
		fetchRes:    tracking.FetchResult{Status: models.StatusPending},
	}
	set := &fakeSet{m: map[string]bool{}}
	f := New(agg, set, nil)

	res, err := f.Fetch(context.Background(), "AB1", models.CarrierCorreios)
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, res.Status)
	// код не запоминаем, попробуем зарегистрировать в следующий раз
	require.False(t, set.m["AB1"])
}

func TestFetcher_SetErrorStillRegistersAndFetches(t *testing.T) {
	agg := &fakeAgg{fetchRes: tracking.FetchResult{Status: models.StatusInTransit}}
	set := &fakeSet{m: map[string]bool{}, containsErr: errors.New("redis down")}
	f := New(agg, set, nil)

	_, err := f.Fetch(context.Background(), "AB1", models.CarrierCorreios)
	require.NoError(t, err)
	require.Equal(t, []string{"AB1"}, agg.registered)
	require.Equal(t, 1, agg.fetchCalls)
}

func TestFetcher_FetchErrorSurfaced(t *testing.T) {
	agg := &fakeAgg{fetchErr: errors.New("17track 5xx")}
	set := &fakeSet{m: map[string]bool{"AB1": true}}
	f := New(agg, set, nil)

	_, err := f.Fetch(context.Background(), "AB1", models.CarrierCorreios)
	require.Error(t, err)
	require.Empty(t, agg.registered)
}
