package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Nissan15/hackathon/internal/auth"
	"github.com/Nissan15/hackathon/internal/persistence"
	"github.com/Nissan15/hackathon/internal/persistence/migrations"
	"github.com/Nissan15/hackathon/internal/persistence/seed"
	"github.com/Nissan15/hackathon/internal/report"
)

func newMigrateCommand(a *app) *cobra.Command {
	var target int

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.StoreBackend == persistence.Memory {
				return fmt.Errorf("the memory backend has no schema to migrate")
			}
			res, err := migrations.Run(a.cfg.StoreBackend, a.cfg.DatabaseURL, target)
			if err != nil {
				return err
			}
			a.logger.Info().
				Str("backend", string(a.cfg.StoreBackend)).
				Uint("from", res.From).
				Uint("to", res.To).
				Bool("changed", res.Changed).
				Msg("migration finished")
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", res.To)
			return err
		},
	}
	cmd.Flags().IntVar(&target, "target-version", migrations.Latest, "schema version to migrate to (-1 for latest, 0 to roll back)")
	return cmd
}

func newSeedCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load default factors, the admin user and sample data",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore(cmd.Context(), a.cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			res, err := seed.New(store, auth.NewAuthenticator(store, a.authConfig()), a.logger).Run(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "factors added: %d, admin created: %t, activities: %d, headcounts: %d\n",
				res.FactorsAdded, res.AdminCreated, res.Activities, res.Headcounts)
			return err
		},
	}
}

type rangeFlags struct {
	start, end string
}

func (r *rangeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&r.start, "start-date", "", "first day, YYYY-MM-DD (default: trailing window)")
	cmd.Flags().StringVar(&r.end, "end-date", "", "last day, YYYY-MM-DD (default: today)")
}

func newReportCommand(a *app) *cobra.Command {
	var (
		rng     rangeFlags
		noColor bool
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the dashboard for a date range",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore(cmd.Context(), a.cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			r, err := a.engine(store).Build(cmd.Context(), rng.start, rng.end)
			if err != nil {
				return err
			}
			return report.WriteTable(cmd.OutOrStdout(), r, report.TableOptions{UseColors: !noColor && !color.NoColor})
		},
	}
	rng.register(cmd)
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable coloured output")
	return cmd
}

func newExportCommand(a *app) *cobra.Command {
	var (
		rng    rangeFlags
		output string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the emission rows of a date range to a Parquet file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore(cmd.Context(), a.cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			dr, rows, err := a.engine(store).Rows(cmd.Context(), rng.start, rng.end)
			if err != nil {
				return err
			}

			file, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			if err := report.WriteParquet(file, rows); err != nil {
				_ = file.Close()
				return err
			}
			if err := file.Close(); err != nil {
				return err
			}

			a.logger.Info().
				Str("path", output).
				Int("rows", len(rows)).
				Time("start", dr.Start).
				Time("end", dr.End).
				Msg("export written")
			return nil
		},
	}
	rng.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "emissions.parquet", "destination file")
	return cmd
}
