package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/fanout/internal/change"
	"github.com/gosuda/fanout/internal/config"
	"github.com/gosuda/fanout/internal/domain"
	"github.com/gosuda/fanout/internal/logging"
	"github.com/gosuda/fanout/internal/metrics"
	"github.com/gosuda/fanout/internal/server"
	"github.com/gosuda/fanout/internal/store/memory"
	"github.com/gosuda/fanout/internal/store/postgres"
	redisstore "github.com/gosuda/fanout/internal/store/redis"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
}

func run() error {
	logging.Setup(os.Getenv("FANOUT_LOG_LEVEL"), os.Getenv("FANOUT_LOG_FORMAT"), os.Stdout)

	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var (
		owners  domain.OwnershipRepository
		members domain.MembershipRepository
	)
	if cfg.Database.Enabled {
		if cfg.Database.MaxConns < 0 || cfg.Database.MaxConns > math.MaxInt32 {
			return fmt.Errorf("database max_conns %d out of int32 range", cfg.Database.MaxConns)
		}

		store, storeErr := postgres.New(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns)) //nolint:gosec // bounds checked above
		if storeErr != nil {
			return storeErr
		}
		defer store.Close()

		owners = store.Ownership()
		members = store.Membership()
	} else {
		log.Warn().Msg("database disabled: changes without a resolvable owner go to the global topic")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var broker domain.Broker
	switch cfg.Broker {
	case config.BrokerMemory:
		mem := memory.NewBroker(memory.WithMetrics(m))
		defer mem.Close()
		broker = mem
	default:
		pubsub, psErr := redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Realtime.ChannelPrefix)
		if psErr != nil {
			return psErr
		}
		defer pubsub.Close()
		broker = pubsub
	}

	broadcaster := change.NewBroadcaster(
		change.NewWorkspaceResolver(owners, m),
		change.WithPublisher(broker),
		change.WithMetrics(m),
		change.WithTimeout(cfg.Realtime.EmitTimeout),
	)

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	srv := server.New(ctx, cfg, server.Deps{
		Broker:      broker,
		Broadcaster: broadcaster,
		Members:     members,
		Metrics:     m,
		Gatherer:    reg,
	})

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Str("broker", cfg.Broker).Msg("starting server")
		if startErr := srv.Start(ctx); startErr != nil {
			log.Error().Err(startErr).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		return shutdownErr
	}

	log.Info().Msg("stopped")
	return nil
}
