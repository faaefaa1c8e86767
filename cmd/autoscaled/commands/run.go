package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/autoscaled/autoscaled/internal/config"
	"github.com/autoscaled/autoscaled/internal/dashboard"
	"github.com/autoscaled/autoscaled/internal/domain"
	"github.com/autoscaled/autoscaled/internal/engine"
	"github.com/autoscaled/autoscaled/internal/eventbroker"
	"github.com/autoscaled/autoscaled/internal/events"
	"github.com/autoscaled/autoscaled/internal/launcher"
	"github.com/autoscaled/autoscaled/internal/logging"
	"github.com/autoscaled/autoscaled/internal/metricssource"
	"github.com/autoscaled/autoscaled/internal/pool"
	"github.com/autoscaled/autoscaled/internal/policy"
	"github.com/autoscaled/autoscaled/internal/sla"
	"github.com/autoscaled/autoscaled/internal/supervisor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var healthAddr string

func init() {
	runCmd.Flags().StringVar(&healthAddr, "health-addr", ":8081", "address for the /healthz, /readyz and /metrics endpoints")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the autoscaling supervisor",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSupervisor(cmd.Context())
	},
}

func runSupervisor(ctx context.Context) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		var cfgErr *config.ConfigError
		if errors.As(err, &cfgErr) {
			fmt.Fprintln(os.Stderr, cfgErr)
			os.Exit(2)
		}
		return err
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	queues := make([]domain.QueueConfiguration, 0, len(cfg.Queues))
	byKey := make(map[domain.Key]config.QueueConfig, len(cfg.Queues))
	for _, q := range cfg.Queues {
		queues = append(queues, q.ToDomain())
		byKey[domain.Key{Connection: q.Connection, Queue: q.Queue}] = q
	}

	source, closeSource, err := buildMetricsSource(cfg)
	if err != nil {
		return fmt.Errorf("metrics source: %w", err)
	}
	if closeSource != nil {
		defer closeSource()
	}

	sink, closeSink, err := buildEventSink(cfg, log)
	if err != nil {
		return fmt.Errorf("event sink: %w", err)
	}
	if closeSink != nil {
		defer closeSink()
	}

	workerLauncher := launcher.New(log, func(connection, queue string) launcher.Spec {
		q := byKey[domain.Key{Connection: connection, Queue: queue}]
		if len(q.Command) == 0 {
			return launcher.Spec{}
		}
		return launcher.Spec{Command: q.Command[0], Args: q.Command[1:]}
	})

	registry := engine.NewRegistry()
	eng := engine.NewEngine(registry, engine.StrategyDefaults{
		DrainHorizonSeconds:     cfg.StrategyDefaults.DrainHorizonSeconds,
		PredictLookaheadSeconds: cfg.StrategyDefaults.PredictLookaheadSeconds,
		TrendSamples:            cfg.StrategyDefaults.TrendSamples,
	})

	pipeline := policy.NewPipeline(
		policy.NewCooldownPolicy(
			func(k domain.Key) float64 { return byKey[k].CooldownUpSeconds },
			func(k domain.Key) float64 { return byKey[k].CooldownDownSeconds },
		),
		policy.NewHysteresisPolicy(
			func(k domain.Key) int { return byKey[k].HysteresisDelta },
			func(k domain.Key) float64 { return byKey[k].HysteresisFraction },
		),
		policy.NewRateLimitPolicy(
			func(k domain.Key) int { return byKey[k].MaxStepUp },
			func(k domain.Key) int { return byKey[k].MaxStepDown },
		),
		policy.NewClampPolicy(
			func(k domain.Key) int { return byKey[k].MinWorkers },
			func(k domain.Key) int { return byKey[k].MaxWorkers },
		),
	)

	mgr, err := supervisor.New(supervisor.Config{
		Queues:           queues,
		Pool:             pool.New(),
		Engine:           eng,
		Pipeline:         pipeline,
		SlaTracker:       sla.NewTracker(),
		MetricsSource:    source,
		Launcher:         workerLauncher,
		Sink:             sink,
		Log:              log,
		TickInterval:     time.Duration(cfg.TickSeconds * float64(time.Second)),
		ShutdownDeadline: time.Duration(cfg.ShutdownDeadlineSeconds * float64(time.Second)),
		GracePeriod:      time.Duration(cfg.GracePeriodSeconds * float64(time.Second)),
		GlobalMaxWorkers: cfg.GlobalMaxWorkers,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	go startHealthServer(log, mgr)
	if cfg.Output.Dashboard {
		go runDashboard(ctx, mgr)
	}

	log.Info("supervisor starting", zap.Int("queues", len(queues)), zap.Float64("tick_seconds", cfg.TickSeconds))
	if err := mgr.Run(ctx); err != nil {
		if errors.Is(err, supervisor.ErrFatalMetricsFailure) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(3)
		}
		return err
	}
	return nil
}

func buildMetricsSource(cfg *config.Config) (metricssource.Source, func(), error) {
	switch cfg.MetricsSource.Kind {
	case "kafka":
		src := metricssource.NewKafkaSource(func(qcfg domain.QueueConfiguration) *kafka.Reader {
			return kafka.NewReader(kafka.ReaderConfig{
				Brokers: cfg.MetricsSource.KafkaBrokers,
				Topic:   cfg.MetricsSource.KafkaTopic,
				GroupID: cfg.MetricsSource.KafkaGroupID,
			})
		})
		return src, func() { _ = src.Close() }, nil
	default:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.MetricsSource.RedisAddr,
			Password: cfg.MetricsSource.RedisPassword,
			DB:       cfg.MetricsSource.RedisDB,
		})
		src := metricssource.NewRedisSource(client)
		return src, func() { _ = client.Close() }, nil
	}
}

func buildEventSink(cfg *config.Config, log *zap.Logger) (events.Sink, func(), error) {
	bus := events.NewBus()
	if !cfg.EventSink.KafkaEnabled {
		return bus, nil, nil
	}

	kafkaSink, err := eventbroker.NewKafkaSink(cfg.EventSink.KafkaBrokers, cfg.EventSink.KafkaTopic, log)
	if err != nil {
		return nil, nil, err
	}
	combined := events.NewBus(kafkaSink)
	return combined, func() { _ = kafkaSink.Close() }, nil
}

func startHealthServer(log *zap.Logger, mgr *supervisor.Manager) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if mgr.FatalMetricsFailure() {
			http.Error(w, "metrics source unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ready")
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: healthAddr, Handler: mux}
	log.Info("health server listening", zap.String("addr", healthAddr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("health server error", zap.Error(err))
	}
}

func runDashboard(ctx context.Context, mgr *supervisor.Manager) {
	r := dashboard.New()
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-mgr.Snapshots():
			if !ok {
				return
			}
			fmt.Print("\033[H\033[2J")
			fmt.Println(r.Render(snap))
		}
	}
}
