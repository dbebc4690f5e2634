package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BlazeeWear/TrackFaro/config"
	"github.com/BlazeeWear/TrackFaro/internal/broker/kafka"
	"github.com/BlazeeWear/TrackFaro/internal/cache/rediscache"
	"github.com/BlazeeWear/TrackFaro/internal/carrier"
	"github.com/BlazeeWear/TrackFaro/internal/fictitious"
	"github.com/BlazeeWear/TrackFaro/internal/integrations/seventeentrack"
	"github.com/BlazeeWear/TrackFaro/internal/integrations/tracking"
	"github.com/BlazeeWear/TrackFaro/internal/integrations/tracking/fake"
	"github.com/BlazeeWear/TrackFaro/internal/kv/firebasekv"
	"github.com/BlazeeWear/TrackFaro/internal/kv/pgstate"
	"github.com/BlazeeWear/TrackFaro/internal/orders/wcapi"
	"github.com/BlazeeWear/TrackFaro/internal/services/fetcher"
	"github.com/BlazeeWear/TrackFaro/internal/services/reconciler"
	"github.com/BlazeeWear/TrackFaro/internal/services/sweeper"
	"github.com/BlazeeWear/TrackFaro/internal/storage/statestore"
)

type sweeperFactories struct {
	newStateBackend func(cfg *config.Config) (statestore.KeyValue, func(), error)
	newProducer     func(cfg *config.Config) sweeper.Producer
	newRateLimiter  func(cfg *config.Config) sweeper.RateLimiter
	newAggregator   func(cfg *config.Config, loc *time.Location) tracking.Aggregator
}

func defaultSweeperFactories() sweeperFactories {
	return sweeperFactories{
		newStateBackend: func(cfg *config.Config) (statestore.KeyValue, func(), error) {
			if cfg.TrackFaro.StateBackend == "postgres" {
				sslMode := cfg.Database.SSLMode
				if sslMode == "" {
					sslMode = "disable"
				}
				connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
					cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
				st, err := pgstate.New(connString)
				if err != nil {
					return nil, nil, err
				}
				return st, st.Close, nil
			}
			return firebasekv.New(cfg.Firebase.DatabaseURL, cfg.Firebase.Secret), func() {}, nil
		},
		newProducer: func(cfg *config.Config) sweeper.Producer {
			topic := cfg.Kafka.ShipmentUpdatedTopicName
			if topic == "" {
				topic = "shipment.updated"
			}
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers, topic)
		},
		newRateLimiter: func(cfg *config.Config) sweeper.RateLimiter {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.NewRateLimiter(redisAddr)
		},
		newAggregator: func(cfg *config.Config, loc *time.Location) tracking.Aggregator {
			if cfg.SeventeenTrack.APIKey == "" {
				slog.Warn("17track api key is empty, using fake aggregator")
				return fake.New()
			}
			return seventeentrack.New(cfg.SeventeenTrack.BaseURL, cfg.SeventeenTrack.APIKey, loc)
		},
	}
}

func buildSweeper(cfg *config.Config, f sweeperFactories) (*sweeper.Sweeper, func(), error) {
	loc, err := time.LoadLocation(timezoneOrDefault(cfg.TrackFaro.Timezone))
	if err != nil {
		return nil, nil, err
	}
	cls, err := carrier.New(cfg.TrackFaro.CainiaoPatterns)
	if err != nil {
		return nil, nil, err
	}
	templates := buildTemplates(cfg)

	kv, closeKV, err := f.newStateBackend(cfg)
	if err != nil {
		return nil, nil, err
	}
	store := statestore.New(kv)

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	registered := rediscache.NewRegisteredCodes(redisAddr)

	agg := f.newAggregator(cfg, loc)
	ft := fetcher.New(agg, registered, nil)
	rec := reconciler.New(cls, store, ft, templates, loc, nil)

	wc := wcapi.New(cfg.WooCommerce.BaseURL, cfg.WooCommerce.ConsumerKey, cfg.WooCommerce.ConsumerSecret, loc)

	s := sweeper.New(wc, rec, f.newProducer(cfg), f.newRateLimiter(cfg)).
		WithSchedule(
			time.Duration(cfg.TrackFaro.SweepIntervalSeconds)*time.Second,
			cfg.TrackFaro.SweepLookbackDays,
			cfg.TrackFaro.SweepOrderLimit,
			cfg.TrackFaro.SweepBatchSize,
			time.Duration(cfg.TrackFaro.SweepBatchPauseSeconds)*time.Second,
		).
		WithRateLimit(cfg.TrackFaro.SweepRateLimitPerMinute).
		WithStatusLedger(store)

	return s, closeKV, nil
}

func timezoneOrDefault(name string) string {
	if name == "" {
		return "America/Sao_Paulo"
	}
	return name
}

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

func RunTrackSweeper(ctx context.Context, cfg *config.Config, f sweeperFactories, onBuilt func(*sweeper.Sweeper)) error {
	s, closeFn, err := buildSweeper(cfg, f)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}
	if onBuilt != nil {
		onBuilt(s)
	}
	return s.Run(ctx)
}
