package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/BlazeeWear/TrackFaro/config"
	"github.com/BlazeeWear/TrackFaro/internal/api/trackingapi"
	"github.com/BlazeeWear/TrackFaro/internal/cache/rediscache"
	"github.com/BlazeeWear/TrackFaro/internal/carrier"
	"github.com/BlazeeWear/TrackFaro/internal/fictitious"
	"github.com/BlazeeWear/TrackFaro/internal/integrations/seventeentrack"
	"github.com/BlazeeWear/TrackFaro/internal/integrations/tracking"
	"github.com/BlazeeWear/TrackFaro/internal/integrations/tracking/fake"
	"github.com/BlazeeWear/TrackFaro/internal/kv/firebasekv"
	"github.com/BlazeeWear/TrackFaro/internal/kv/pgstate"
	"github.com/BlazeeWear/TrackFaro/internal/notify/slackhook"
	"github.com/BlazeeWear/TrackFaro/internal/orders"
	"github.com/BlazeeWear/TrackFaro/internal/orders/wcapi"
	"github.com/BlazeeWear/TrackFaro/internal/services/fetcher"
	"github.com/BlazeeWear/TrackFaro/internal/services/reconciler"
	"github.com/BlazeeWear/TrackFaro/internal/services/resolver"
	"github.com/BlazeeWear/TrackFaro/internal/storage/statestore"
)

// buildTemplates конвертирует секцию конфига в шаблоны генератора.
// Пустая секция означает дефолтное расписание.
func buildTemplates(cfg *config.Config) []fictitious.Template {
	if len(cfg.TrackFaro.FictitiousMessages) == 0 {
		return fictitious.DefaultTemplates()
	}
	out := make([]fictitious.Template, 0, len(cfg.TrackFaro.FictitiousMessages))
	for _, m := range cfg.TrackFaro.FictitiousMessages {
		out = append(out, fictitious.Template{
			Message:   m.Message,
			Days:      m.Days,
			Hour:      m.Hour,
			AppliesTo: fictitious.Audience(m.AppliesTo),
		})
	}
	return out
}

func mustLoadLocation(name string) *time.Location {
	if name == "" {
		name = "America/Sao_Paulo"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("неизвестная таймзона %q: %v", name, err))
	}
	return loc
}

func mustClassifier(cfg *config.Config) *carrier.Classifier {
	cls, err := carrier.New(cfg.TrackFaro.CainiaoPatterns)
	if err != nil {
		panic(fmt.Sprintf("битый cainiao_patterns в конфиге: %v", err))
	}
	return cls
}

// mustOpenStateBackend выбирает хранилище состояния отгрузок.
// Firebase — дефолт, postgres — self-hosted вариант.
func mustOpenStateBackend(cfg *config.Config) (statestore.KeyValue, func()) {
	if cfg.TrackFaro.StateBackend == "postgres" {
		sslMode := cfg.Database.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
			cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
		st := mustOpenPGStateWithRetry(connString, 60*time.Second)
		return st, st.Close
	}
	return firebasekv.New(cfg.Firebase.DatabaseURL, cfg.Firebase.Secret), func() {}
}

func mustOpenPGStateWithRetry(connString string, wait time.Duration) *pgstate.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgstate.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func newAggregator(cfg *config.Config, loc *time.Location) tracking.Aggregator {
	// Без токена 17TRACK работаем на детерминированной заглушке.
	if cfg.SeventeenTrack.APIKey == "" {
		slog.Warn("17track api key is empty, using fake aggregator")
		return fake.New()
	}
	return seventeentrack.New(cfg.SeventeenTrack.BaseURL, cfg.SeventeenTrack.APIKey, loc)
}

type apiDeps struct {
	api    *trackingapi.API
	store  orders.Store
	notify *slackhook.Client
	closes []func()
}

func buildAPIDeps(cfg *config.Config) *apiDeps {
	loc := mustLoadLocation(cfg.TrackFaro.Timezone)
	cls := mustClassifier(cfg)
	templates := buildTemplates(cfg)

	kv, closeKV := mustOpenStateBackend(cfg)
	store := statestore.New(kv)

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	registered := rediscache.NewRegisteredCodes(redisAddr)
	resultCache := rediscache.New(redisAddr)

	agg := newAggregator(cfg, loc)
	ft := fetcher.New(agg, registered, nil)
	rec := reconciler.New(cls, store, ft, templates, loc, nil)

	wc := wcapi.New(cfg.WooCommerce.BaseURL, cfg.WooCommerce.ConsumerKey, cfg.WooCommerce.ConsumerSecret, loc)
	qr := resolver.New(wc, rec, nil)

	notify := slackhook.New(cfg.Slack.WebhookURL)

	cacheTTL := time.Duration(cfg.TrackFaro.ResultCacheTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}

	api := trackingapi.New(qr, rec, wc, resultCache, cacheTTL, notify, cfg.TrackFaro.APIKey, nil)

	return &apiDeps{
		api:    api,
		store:  wc,
		notify: notify,
		closes: []func(){closeKV},
	}
}

func (d *apiDeps) Close() {
	for _, f := range d.closes {
		f()
	}
}
