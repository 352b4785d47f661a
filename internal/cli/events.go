package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Nissan15/hackathon/internal/consumer"
	"github.com/Nissan15/hackathon/internal/outbox"
	"github.com/Nissan15/hackathon/internal/persistence"
	"github.com/Nissan15/hackathon/internal/persistence/postgres"
	httptransport "github.com/Nissan15/hackathon/internal/transport/http"
)

const metricsShutdownTimeout = 10 * time.Second

func newConsumeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "consume",
		Short: "Read published events into the audit table",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.StoreBackend != persistence.Postgres {
				return errNeedsPostgres
			}
			pool, err := postgres.Connect(cmd.Context(), a.cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()

			topics := a.cfg.ConsumerTopics
			if len(topics) == 0 {
				topics = postgres.Topics()
			}
			handler := consumer.NewAuditHandler(pool)

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error { return serveMetrics(ctx, a.cfg.MetricsAddress, a.logger) })
			for _, topic := range topics {
				reader := consumer.NewKafkaReader(a.cfg.KafkaBrokers, a.cfg.ConsumerGroupID, topic)
				proc := consumer.NewProcessor(reader, handler, consumer.WithLogger(a.logger))
				g.Go(func() error {
					defer func() { _ = reader.Close() }()
					a.logger.Info().Str("topic", topic).Str("group", a.cfg.ConsumerGroupID).Msg("consumer started")
					if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
						return err
					}
					return nil
				})
			}
			return g.Wait()
		},
	}
}

func newDLQCommand(a *app) *cobra.Command {
	var (
		once      bool
		batchSize int
	)

	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Replay dead-lettered outbox events with backoff",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.StoreBackend != persistence.Postgres {
				return errNeedsPostgres
			}
			pool, err := postgres.Connect(cmd.Context(), a.cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()

			manager := outbox.NewDLQManager(pool, a.logger, a.cfg.DLQMaxRetries, a.cfg.DLQBaseDelay)
			if once {
				n, err := manager.RunOnce(cmd.Context(), batchSize)
				if err != nil {
					return err
				}
				a.logger.Info().Int("requeued", n).Msg("dlq pass complete")
				return nil
			}

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error { return serveMetrics(ctx, a.cfg.MetricsAddress, a.logger) })
			g.Go(func() error {
				a.logger.Info().
					Dur("interval", a.cfg.DLQPollInterval).
					Int("max_retries", a.cfg.DLQMaxRetries).
					Msg("dlq manager started")
				manager.Run(ctx, a.cfg.DLQPollInterval, batchSize)
				return nil
			})
			return g.Wait()
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "process a single batch and exit")
	cmd.Flags().IntVar(&batchSize, "batch-size", 50, "entries per pass")
	return cmd
}

// serveMetrics exposes /metrics for the worker commands until ctx ends.
func serveMetrics(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := httptransport.NewServer(httptransport.DefaultServerConfig(addr), mux)
	return httptransport.Serve(ctx, srv, metricsShutdownTimeout, logger)
}
