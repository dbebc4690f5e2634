package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BlazeeWear/TrackFaro/internal/api/trackingapi"
	"github.com/BlazeeWear/TrackFaro/internal/broker/messages"
	"github.com/BlazeeWear/TrackFaro/internal/models"
	"github.com/BlazeeWear/TrackFaro/internal/notify/slackhook"
	"github.com/stretchr/testify/require"
)

type fakeConsumer struct{}

func (c fakeConsumer) Consume(ctx context.Context, _ func(ctx context.Context, msg messages.ShipmentUpdated) error) error {
	<-ctx.Done()
	return ctx.Err()
}

type fakeNoteStore struct {
	notes map[int64][]string
}

func (f *fakeNoteStore) AddNote(_ context.Context, orderID int64, content string) error {
	if f.notes == nil {
		f.notes = map[int64][]string{}
	}
	f.notes[orderID] = append(f.notes[orderID], content)
	return nil
}

func TestRunTrackAPI_HealthAndSwaggerServed(t *testing.T) {
	dir := t.TempDir()
	sw := filepath.Join(dir, "swagger.json")
	require.NoError(t, os.WriteFile(sw, []byte(`{"swagger":"2.0"}`), 0o600))

	api := trackingapi.New(nil, nil, nil, nil, 0, nil, "", nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrCh := make(chan string, 1)
	opts := trackAPIOpts{
		httpAddr:      "127.0.0.1:0",
		swaggerPath:   sw,
		topic:         "shipment.updated",
		consumerGroup: "g",
		onListen:      func(httpAddr string) { addrCh <- httpAddr },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- runTrackAPI(ctx, opts, api, &fakeNoteStore{}, slackhook.New(""), fakeConsumer{})
	}()

	httpAddr := <-addrCh

	resp, err := http.Get("http://" + httpAddr + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 200, resp.StatusCode)

	resp2, err := http.Get("http://" + httpAddr + "/swagger.json")
	require.NoError(t, err)
	defer resp2.Body.Close()
	body, _ := io.ReadAll(resp2.Body)
	require.Contains(t, string(body), `"swagger"`)

	cancel()
	select {
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting server to stop")
	case err := <-errCh:
		require.Error(t, err)
	}
}

func TestRunTrackAPI_MissingSwaggerRejected(t *testing.T) {
	api := trackingapi.New(nil, nil, nil, nil, 0, nil, "", nil)
	err := runTrackAPI(context.Background(), trackAPIOpts{httpAddr: "127.0.0.1:0"}, api, &fakeNoteStore{}, slackhook.New(""), fakeConsumer{})
	require.Error(t, err)
}

func TestApplyShipmentUpdate_AddsNote(t *testing.T) {
	store := &fakeNoteStore{}
	msg := messages.ShipmentUpdated{
		TrackingCode: "AB1",
		OrderID:      5,
		Status:       models.StatusDelivered,
		Message:      "Objeto entregue ao destinatário",
		CheckedAt:    time.Now(),
	}
	require.NoError(t, applyShipmentUpdate(context.Background(), store, slackhook.New(""), msg))
	require.Len(t, store.notes[5], 1)
	require.Contains(t, store.notes[5][0], "AB1")
	require.Contains(t, store.notes[5][0], "Objeto entregue")
}

func TestApplyShipmentUpdate_NoOrderIsNoop(t *testing.T) {
	store := &fakeNoteStore{}
	require.NoError(t, applyShipmentUpdate(context.Background(), store, slackhook.New(""), messages.ShipmentUpdated{TrackingCode: "X"}))
	require.Empty(t, store.notes)
}
