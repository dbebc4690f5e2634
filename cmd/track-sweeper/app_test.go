package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BlazeeWear/TrackFaro/config"
	"github.com/BlazeeWear/TrackFaro/internal/broker/messages"
	"github.com/BlazeeWear/TrackFaro/internal/fictitious"
	"github.com/BlazeeWear/TrackFaro/internal/integrations/tracking"
	"github.com/BlazeeWear/TrackFaro/internal/integrations/tracking/fake"
	"github.com/BlazeeWear/TrackFaro/internal/services/sweeper"
	"github.com/BlazeeWear/TrackFaro/internal/storage/statestore"
	"github.com/stretchr/testify/require"
)

type memKV struct {
	data map[string]json.RawMessage
}

func (m *memKV) Read(_ context.Context, path string) (json.RawMessage, bool, error) {
	b, ok := m.data[path]
	return b, ok, nil
}

func (m *memKV) Write(_ context.Context, path string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[path] = b
	return nil
}

func (m *memKV) Patch(_ context.Context, path string, value any) error {
	cur := map[string]json.RawMessage{}
	if b, ok := m.data[path]; ok {
		if err := json.Unmarshal(b, &cur); err != nil {
			return err
		}
	}
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	patch := map[string]json.RawMessage{}
	if err := json.Unmarshal(b, &patch); err != nil {
		return err
	}
	for k, v := range patch {
		cur[k] = v
	}
	out, err := json.Marshal(cur)
	if err != nil {
		return err
	}
	m.data[path] = out
	return nil
}

type noopProducer struct{}

func (noopProducer) PublishShipmentUpdated(_ context.Context, _ messages.ShipmentUpdated) error {
	return nil
}

func testFactories() sweeperFactories {
	return sweeperFactories{
		newStateBackend: func(_ *config.Config) (statestore.KeyValue, func(), error) {
			return &memKV{data: map[string]json.RawMessage{}}, func() {}, nil
		},
		newProducer:    func(_ *config.Config) sweeper.Producer { return noopProducer{} },
		newRateLimiter: func(_ *config.Config) sweeper.RateLimiter { return nil },
		newAggregator: func(_ *config.Config, _ *time.Location) tracking.Aggregator {
			return fake.New()
		},
	}
}

func TestRunTrackSweeper_ContextCanceled(t *testing.T) {
	cfg := &config.Config{}
	cfg.TrackFaro.SweepIntervalSeconds = 1

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := RunTrackSweeper(ctx, cfg, testFactories(), nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestBuildSweeper_BadTimezoneRejected(t *testing.T) {
	cfg := &config.Config{}
	cfg.TrackFaro.Timezone = "Not/AZone"
	_, _, err := buildSweeper(cfg, testFactories())
	require.Error(t, err)
}

func TestBuildTemplates_DefaultsAndOverride(t *testing.T) {
	cfg := &config.Config{}
	require.Equal(t, fictitious.DefaultTemplates(), buildTemplates(cfg))

	cfg.TrackFaro.FictitiousMessages = []config.MessageTemplate{
		{Message: "Custom", Days: 1, Hour: "08:00", AppliesTo: "both"},
	}
	got := buildTemplates(cfg)
	require.Len(t, got, 1)
	require.Equal(t, "Custom", got[0].Message)
	require.Equal(t, fictitious.AudienceBoth, got[0].AppliesTo)
}

type fakeResetter struct {
	n int64
}

func (f *fakeResetter) Reset(_ context.Context) (int64, error) { return f.n, nil }

func TestRunSweeperHTTPServer_OpsEndpoints(t *testing.T) {
	dir := t.TempDir()
	sw := filepath.Join(dir, "swagger.json")
	require.NoError(t, os.WriteFile(sw, []byte(`{"swagger":"2.0"}`), 0o600))

	cfg := &config.Config{}
	cfg.TrackFaro.SweepIntervalSeconds = 3600

	s, closeFn, err := buildSweeper(cfg, testFactories())
	require.NoError(t, err)
	defer closeFn()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- runSweeperHTTPServer(ctx, sweeperHTTPOpts{
			httpAddr:    "127.0.0.1:0",
			swaggerPath: sw,
			onListen:    func(a string) { addrCh <- a },
			sweeper:     s,
			registered:  &fakeResetter{n: 3},
			cfg:         cfg,
		})
	}()
	addr := <-addrCh

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)

	resp, err = http.Get("http://" + addr + "/stats")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Contains(t, string(body), "totalOrders")

	resp, err = http.Post("http://"+addr+"/trigger", "application/json", nil)
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Contains(t, string(body), "triggered")

	req, err := http.NewRequest(http.MethodDelete, "http://"+addr+"/registered-codes", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Contains(t, string(body), `"cleared":3`)

	cancel()
	select {
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting ops server to stop")
	case <-errCh:
	}
}
