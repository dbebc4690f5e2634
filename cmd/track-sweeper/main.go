package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/BlazeeWear/TrackFaro/config"
	"github.com/BlazeeWear/TrackFaro/internal/cache/rediscache"
	"github.com/BlazeeWear/TrackFaro/internal/services/sweeper"
)

func main() {
	cfg, err := config.LoadConfig(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	registered := rediscache.NewRegisteredCodes(redisAddr)

	sweeperCh := make(chan *sweeper.Sweeper, 1)

	httpErr := make(chan error, 1)
	go func() {
		s := <-sweeperCh
		httpErr <- runSweeperHTTPServer(ctx, sweeperHTTPOpts{
			httpAddr:    cfg.TrackFaro.SweeperHTTPAddr,
			swaggerPath: os.Getenv("swaggerPath"),
			sweeper:     s,
			registered:  registered,
			cfg:         cfg,
		})
	}()

	runErr := RunTrackSweeper(ctx, cfg, defaultSweeperFactories(), func(s *sweeper.Sweeper) {
		sweeperCh <- s
	})
	if runErr != nil && runErr != context.Canceled {
		panic(runErr)
	}

	select {
	case err := <-httpErr:
		if err != nil && err != context.Canceled {
			panic(err)
		}
	default:
	}
}
