// Command fanout-tail subscribes to realtime topics and logs the changes it
// receives in batches.
//
//	fanout-tail [-event UPDATE] [-table cards] [-filter board_id=eq.b1] workspace:ws1 global
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/fanout/internal/config"
	"github.com/gosuda/fanout/internal/logging"
	redisstore "github.com/gosuda/fanout/internal/store/redis"
	"github.com/gosuda/fanout/pkg/client"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal().Err(err).Msg("fanout-tail failed")
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("fanout-tail", flag.ContinueOnError)
	event := fs.String("event", client.EventAll, "operation to match (INSERT, UPDATE, DELETE or *)")
	table := fs.String("table", "*", "table to match")
	filter := fs.String("filter", "", "record filter, field=eq.value or field=neq.value")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format, os.Stderr)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	c := client.New(client.NewWebSocketTransport(cfg.URL),
		client.WithToken(cfg.Token),
		client.WithHeartbeat(cfg.Heartbeat),
		client.WithBackoff(cfg.BackoffBase, cfg.BackoffMax),
		client.WithMaxAttempts(cfg.MaxAttempts),
		client.WithJoinTimeout(cfg.JoinTimeout),
		client.WithStateHandler(func(st client.State) {
			log.Info().Str("state", st.String()).Msg("connection state")
			if st == client.StateDisconnected {
				cancel()
			}
		}),
		client.WithStatusHandler(func(topic string, st client.SubscriptionState) {
			log.Info().Str("topic", topic).Str("status", string(st)).Msg("subscription status")
		}),
	)
	defer c.Close()

	bindings := func(topic string) []client.Binding {
		return []client.Binding{client.NewBatchedBinding(*event, *table, *filter, logBatch(topic),
			client.WithBatchSize[client.Event](cfg.BatchSize),
			client.WithBatchQuiet[client.Event](cfg.BatchQuiet),
		)}
	}

	var store client.TopicStore
	if cfg.StateKey != "" {
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
		err = rdb.Ping(pingCtx).Err()
		pingCancel()
		if err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}

		store = redisstore.NewTopicStore(rdb, "")
		restored, restoreErr := c.Restore(ctx, store, cfg.StateKey, bindings)
		if restoreErr != nil {
			return restoreErr
		}
		log.Info().Strs("topics", restored).Str("key", cfg.StateKey).Msg("restored topics")
	}

	for _, topic := range fs.Args() {
		c.Subscribe(topic, bindings(topic)...)
	}
	if len(c.Registry().Topics()) == 0 {
		return errors.New("no topics: pass at least one topic argument")
	}

	if err := c.Connect(); err != nil {
		return err
	}

	<-ctx.Done()

	if store != nil {
		persistCtx, persistCancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = c.Persist(persistCtx, store, cfg.StateKey)
		persistCancel()
		if err != nil {
			log.Error().Err(err).Msg("persist topics")
		}
	}

	// Logout flushes every pending batch before the connection goes away.
	c.Logout()
	return nil
}

func logBatch(topic string) func([]client.Event) {
	return func(batch []client.Event) {
		log.Info().Str("topic", topic).Int("size", len(batch)).Msg("batch")
		for _, ev := range batch {
			msg := ev.Message
			log.Info().
				Str("event", string(msg.Event)).
				Str("table", msg.Table).
				Str("entity", string(msg.Payload.EntityType)).
				Str("id", msg.Payload.ID).
				Str("workspace_id", msg.Payload.WorkspaceID).
				Interface("record", msg.Record()).
				Msg("change")
		}
	}
}
