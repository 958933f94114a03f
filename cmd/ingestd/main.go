// Command ingestd runs the mesh-radio ingest pipeline: it connects to
// every configured MQTT broker, decodes and decrypts inbound packets,
// and writes Dot/portnum state to the KV Store, forwarding grouped
// chat messages to Slack.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pico-cs/mesh-ingest/internal/config"
	"github.com/pico-cs/mesh-ingest/internal/dedup"
	"github.com/pico-cs/mesh-ingest/internal/groupbuf"
	"github.com/pico-cs/mesh-ingest/internal/logger"
	"github.com/pico-cs/mesh-ingest/internal/mapagg"
	"github.com/pico-cs/mesh-ingest/internal/meshproto"
	"github.com/pico-cs/mesh-ingest/internal/notifier"
	"github.com/pico-cs/mesh-ingest/internal/opsserver"
	"github.com/pico-cs/mesh-ingest/internal/store"
	"github.com/pico-cs/mesh-ingest/internal/supervisor"
	"github.com/pico-cs/mesh-ingest/internal/topicfilter"

	"github.com/pico-cs/mesh-ingest/internal/broker"
)

func lookupEnv(name, defVal string) string {
	if val, ok := os.LookupEnv(name); ok {
		return val
	}
	return defVal
}

func main() {
	externConfigDir := flag.String("configDir", lookupEnv("IngestConfigDir", ""), "external configuration directory")
	logLevel := flag.String("logLevel", lookupEnv("IngestLogLevel", "info"), "debug|info|warn|error")
	flag.Parse()

	lg := logger.NewLeveled(os.Stderr, parseLevel(*logLevel))

	lg.Printf("load configuration")
	cfg, err := config.Load(*externConfigDir, func(path string, err error) {
		if err != nil {
			lg.Printf("...%s %s", path, err)
			return
		}
		lg.Printf("...loaded %s", path)
	})
	if err != nil {
		lg.Fatalf("load configuration: %s", err)
	}

	keys, err := meshproto.ParseKeys(cfg.DecryptionKeys)
	if err != nil {
		lg.Fatalf("parse decryption keys: %s", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.KVEndpoint,
		Password: cfg.KVCredentials,
	})
	backing := store.NewRedisStore(redisClient)
	cachedStore := store.NewCachedStore(backing, 2048, 15*time.Second)

	deduper := dedup.New(cachedStore, cfg.DedupWindow)
	aggregator := mapagg.New(cachedStore, deduper)

	var chatSink notifier.Notifier = notifier.NewDeduping(notifier.Noop{})
	if cfg.SlackToken != "" {
		channels := make(notifier.ChannelIDs, len(cfg.SlackChannelIDs))
		for k, v := range cfg.SlackChannelIDs {
			channels[topicfilter.Channel(k)] = v
		}
		chatSink = notifier.NewDeduping(notifier.NewSlackNotifier(cfg.SlackToken, channels))
	}
	groupBuffer := groupbuf.New(chatSink, cfg.GroupWindow)

	brokerConfigs := make([]broker.Config, 0, len(cfg.BrokerList))
	for _, b := range cfg.BrokerList {
		brokerConfigs = append(brokerConfigs, broker.Config{
			Name:          b.Name,
			Address:       b.Address,
			Username:      b.Username,
			Password:      b.Password,
			ForwardToChat: b.ForwardToChat,
		})
	}

	sup := supervisor.New(supervisor.Config{
		Brokers:        brokerConfigs,
		Workers:        cfg.WorkerConcurrency,
		DecryptionKeys: keys,
		ComponentTag:   cfg.ComponentTag,
	}, lg, cachedStore, deduper, aggregator, groupBuffer)

	ops := opsserver.New(lg, opsserver.Config{Port: addrPort(cfg.OpsAddr)}, sup)
	if err := ops.ListenAndServe(); err != nil {
		lg.Fatalf("ops server: %s", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		lg.Printf("shutdown signal received")
		cancel()
	}()

	runErr := make(chan error, 1)
	go func() { runErr <- sup.Run(ctx) }()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	groupBuffer.Abandon()
	if err := sup.Close(shutdownCtx); err != nil {
		lg.Printf("supervisor close: %s", err)
	}
	if err := ops.Close(); err != nil {
		lg.Printf("ops server close: %s", err)
	}
	<-runErr
}

func parseLevel(s string) logger.Level {
	switch s {
	case "debug":
		return logger.LevelDebug
	case "warn":
		return logger.LevelWarn
	case "error":
		return logger.LevelError
	default:
		return logger.LevelInfo
	}
}

// addrPort strips a leading host from "host:port"-or-":port" strings,
// since opsserver.Config takes host and port separately.
func addrPort(addr string) string {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] == ':' {
			return addr[i+1:]
		}
	}
	return addr
}
