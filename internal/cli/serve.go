package cli

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/Nissan15/hackathon/internal/api"
	"github.com/Nissan15/hackathon/internal/auth"
	"github.com/Nissan15/hackathon/internal/domain"
	"github.com/Nissan15/hackathon/internal/logging"
	"github.com/Nissan15/hackathon/internal/outbox"
	"github.com/Nissan15/hackathon/internal/recommend"
	httptransport "github.com/Nissan15/hackathon/internal/transport/http"
)

func newServeCommand(a *app) *cobra.Command {
	var withOutbox bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and dashboard backend",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			store, err := openStore(ctx, a.cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			if store.pool != nil && withOutbox {
				producer := outbox.NewKafkaProducer(a.cfg.KafkaBrokers)
				defer func() { _ = producer.Close() }()

				registry := outbox.NewSchemaRegistryClient(a.cfg.SchemaRegistryURL)
				dispatcher := outbox.NewDispatcher(store.pool, producer, registry, a.logger, a.cfg.OutboxPollInterval, a.cfg.OutboxBatchSize)
				go dispatcher.Start(ctx)
				defer dispatcher.Wait()
				defer cancel()
			}

			authn := auth.NewAuthenticator(store, a.authConfig())
			handler := api.NewHandler(
				domain.NewService(store),
				a.engine(store),
				recommend.NewService(store),
				authn,
				api.WithDebugMode(a.cfg.DebugMode),
				api.WithLogger(a.logger),
			)
			if a.cfg.DebugMode {
				a.logger.Warn().Msg("debug mode enabled, /debug/reset_admin is reachable")
			}

			mux := http.NewServeMux()
			handler.RegisterRoutes(mux)
			mux.Handle("/metrics", promhttp.Handler())

			authMiddleware := auth.NewMiddleware(a.authConfig())
			root := logging.Middleware(a.logger, httptransport.CORS(a.cfg.CORSOrigin, authMiddleware.Wrap(mux)))

			serverCfg := httptransport.DefaultServerConfig(a.cfg.HTTPAddress)
			server := httptransport.NewServer(serverCfg, root)
			a.logger.Info().
				Str("backend", string(a.cfg.StoreBackend)).
				Bool("outbox", store.pool != nil && withOutbox).
				Msg("campuscarbon starting")
			return httptransport.Serve(ctx, server, serverCfg.ShutdownTimeout, a.logger)
		},
	}
	cmd.Flags().BoolVar(&withOutbox, "outbox", true, "publish outbox events to Kafka (postgres backend only)")
	return cmd
}
