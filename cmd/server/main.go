package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"lobster/api/grpcserver"
	"lobster/config"
	"lobster/feed"
	"lobster/infra/kafka"
	"lobster/infra/logger"
	"lobster/infra/metrics"
	"lobster/infra/quotecache"
	entrywal "lobster/infra/wal/entry"
	exitwal "lobster/infra/wal/exit"
	"lobster/jobs/broadcaster"
	"lobster/service"
	"lobster/snapshot"
)

func main() {
	configPath := pflag.StringP("config", "c", "config.yaml", "path to the YAML configuration")
	pflag.Parse()

	// a missing .env is normal outside development
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.New("info").Fatal("config", zap.Error(err))
	}
	log := logger.New(cfg.Log.Level)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---------------- Metrics ----------------

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	metricsSrv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server", zap.Error(err))
		}
	}()

	// ---------------- Journal / Outbox ----------------

	journal, err := entrywal.Open(entrywal.Config{
		Dir:             cfg.Journal.Dir,
		SegmentSize:     cfg.Journal.SegmentSize,
		SegmentDuration: cfg.Journal.SegmentDuration,
		SyncEveryAppend: cfg.Journal.SyncEveryAppend,
	})
	if err != nil {
		log.Fatal("journal", zap.Error(err))
	}
	defer journal.Close()

	deps := service.Deps{Journal: journal, Metrics: m, Logger: log}

	var outbox *exitwal.ExitWAL
	if cfg.Outbox.Enabled {
		outbox, err = exitwal.Open(cfg.Outbox.Dir)
		if err != nil {
			log.Fatal("outbox", zap.Error(err))
		}
		defer outbox.Close()
		deps.Outbox = outbox
	}

	// ---------------- Publishers ----------------

	if cfg.Kafka.Enabled {
		fills := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.FillsTopic)
		defer fills.Close()
		deps.Fills = fills
	}
	if cfg.Redis.Addr != "" {
		quotes := quotecache.New(quotecache.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TTL:      cfg.Redis.TTL,
		})
		defer quotes.Close()
		deps.Quotes = quotes
	}

	// ---------------- Service ----------------

	params, _ := cfg.Book.Params()
	schedule, _ := cfg.Book.ScheduleTimes()
	svc, err := service.New(service.Options{
		Instrument: cfg.Instrument,
		Params:     params,
		Schedule:   schedule,
	}, deps)
	if err != nil {
		log.Fatal("service", zap.Error(err))
	}
	if err := svc.Recover(cfg.Checkpoint.Dir, cfg.Journal.Dir); err != nil {
		log.Fatal("recovery", zap.Error(err))
	}

	// ---------------- Background Jobs ----------------

	if outbox != nil && cfg.Kafka.Enabled {
		bc, err := broadcaster.NewFromBrokers(outbox, cfg.Kafka.Brokers, broadcaster.Config{
			Topic:      cfg.Kafka.OutboxTopic,
			Interval:   cfg.Kafka.BroadcastInterval,
			MaxRetries: cfg.Kafka.MaxRetries,
		}, log, m)
		if err != nil {
			log.Fatal("broadcaster", zap.Error(err))
		}
		defer bc.Close()
		bc.Start(ctx)
	}
	if cfg.Checkpoint.Interval > 0 {
		svc.StartCheckpointJob(ctx, cfg.Checkpoint.Dir, cfg.Checkpoint.Interval)
	}

	go ingest(ctx, cfg, svc, log)

	// ---------------- gRPC ----------------

	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		log.Fatal("listen", zap.String("addr", cfg.GRPC.Addr), zap.Error(err))
	}
	grpcSrv := grpc.NewServer(grpc.UnaryInterceptor(grpcserver.UnaryLogger(log)))
	grpcserver.Register(grpcSrv, svc)

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		grpcSrv.GracefulStop()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdown)
	}()

	log.Info("lobster serving",
		zap.String("instrument", cfg.Instrument),
		zap.String("grpc", cfg.GRPC.Addr),
		zap.String("metrics", cfg.Metrics.Addr),
	)
	if err := grpcSrv.Serve(lis); err != nil {
		log.Error("grpc server exited", zap.Error(err))
	}

	if _, err := svc.WriteCheckpoint(&snapshot.Writer{Dir: cfg.Checkpoint.Dir}); err != nil {
		log.Error("final checkpoint", zap.Error(err))
	}
}

// ingest loads the configured feed files and applies them, skipping what a
// recovered book already holds.
func ingest(ctx context.Context, cfg *config.Config, svc *service.ReplayService, log *zap.Logger) {
	paths := append(append([]string(nil), cfg.Feed.BuyFiles...), cfg.Feed.SellFiles...)
	if len(paths) == 0 {
		log.Info("no feed files configured; serving recovered state")
		return
	}
	loc, _ := time.LoadLocation(cfg.Feed.Location)
	cutoff, _ := cfg.Feed.Cutoff()

	evs, err := feed.Load(feed.Parser{
		Instrument:    cfg.Instrument,
		PriceDecimals: cfg.Feed.PriceDecimals,
		SizeScale:     cfg.Feed.SizeScale,
		Location:      loc,
	}, paths...)
	if err != nil {
		log.Error("feed load", zap.Error(err))
		return
	}
	log.Info("feed loaded", zap.Int("events", len(evs)), zap.Strings("files", paths))

	var src feed.Source = feed.NewSliceSource(evs)
	if last, ok := svc.LastEvent(); ok {
		src = feed.After(src, last)
	}
	if _, err := svc.Ingest(ctx, feed.Until(src, cutoff)); err != nil {
		log.Error("ingest stopped", zap.Error(err))
	}
}
