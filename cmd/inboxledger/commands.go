package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/joshsymonds/inboxledger/internal/cluster"
	"github.com/joshsymonds/inboxledger/internal/database"
	"github.com/joshsymonds/inboxledger/internal/gmail"
	"github.com/joshsymonds/inboxledger/internal/ingest"
	"github.com/joshsymonds/inboxledger/internal/mimefile"
	"github.com/joshsymonds/inboxledger/internal/pipeline"
	"github.com/joshsymonds/inboxledger/internal/processor"
	"github.com/joshsymonds/inboxledger/internal/report"
	"github.com/joshsymonds/inboxledger/internal/repository"
	"github.com/joshsymonds/inboxledger/internal/retrieval"
)

func newLabelsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "labels",
		Short: "List mailbox labels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, _, stop, err := a.retrieval(cmd.Context())
			if err != nil {
				return err
			}
			defer stop()
			labels, err := svc.Labels(cmd.Context())
			if err != nil {
				return err
			}
			return a.output(labels, func() error { return report.PrintLabels(labels, cmd.OutOrStdout()) })
		},
	}
}

func newSearchCmd(a *app) *cobra.Command {
	var cf criteriaFlags
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search Gmail and run the processor over every hit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			criteria, err := cf.criteria(a.cfg, time.Now())
			if err != nil {
				return err
			}
			svc, _, stop, err := a.retrieval(cmd.Context())
			if err != nil {
				return err
			}
			defer stop()
			records, err := svc.SearchAndProcess(cmd.Context(), criteria, cf.filter())
			if err != nil {
				return err
			}
			return a.output(records, func() error { return report.PrintRecords(records, cmd.OutOrStdout()) })
		},
	}
	cf.register(cmd.Flags())
	cmd.Flags().Int("days", 7, "look back this many days when --after is unset")
	cmd.Flags().Int("max", 50, "maximum messages to return (0 means 100)")
	return cmd
}

func newRecentCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Process recent mail carrying the configured labels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, _, stop, err := a.retrieval(cmd.Context())
			if err != nil {
				return err
			}
			defer stop()
			records, err := svc.RecentProcessed(cmd.Context(), a.cfg.Fetch.Days, a.cfg.Fetch.MaxResults, a.cfg.Labels())
			if err != nil {
				return err
			}
			return a.output(records, func() error { return report.PrintRecords(records, cmd.OutOrStdout()) })
		},
	}
	cmd.Flags().Int("days", 7, "look back this many days")
	cmd.Flags().Int("max", 50, "maximum messages to return (0 means 100)")
	cmd.Flags().StringSlice("labels", []string{string(gmail.LabelInbox)}, "label IDs every message must carry")
	return cmd
}

func newIngestCmd(a *app) *cobra.Command {
	var cf criteriaFlags
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Fetch, deduplicate, process and store a batch of messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.cfg.ValidateDatabase(); err != nil {
				return err
			}
			a.cfg.LogConfig(a.logger)
			criteria, err := cf.criteria(a.cfg, time.Now())
			if err != nil {
				return err
			}

			db, err := database.Open(a.cfg.Database.Driver, a.cfg.Database.DSN, a.logger)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := database.Close(db); cerr != nil {
					a.logger.Warn("close database", "error", cerr)
				}
			}()
			if err := database.Migrate(db, a.logger); err != nil {
				return err
			}

			svc, mb, stop, err := a.retrieval(ctx)
			if err != nil {
				return err
			}
			defer stop()

			runner := pipeline.NewRunner(
				mb,
				ingest.NewTracker(repository.NewRawMessageRepository(db), a.logger),
				svc,
				cluster.NewService(a.cfg.Cluster.Eps, a.cfg.Cluster.MinSamples, a.logger),
				repository.NewExecutionRepository(db),
				repository.NewTransactionRepository(db),
				a.logger,
			)
			rep, err := runner.Run(ctx, pipeline.Options{
				Criteria:  criteria,
				Filter:    cf.filter(),
				Threads:   a.cfg.Fetch.Threads,
				Reprocess: a.cfg.Ingest.Reprocess,
			})
			if err != nil {
				return err
			}
			return a.output(rep, func() error { return report.PrintBatch(rep, cmd.OutOrStdout()) })
		},
	}
	cf.register(cmd.Flags())
	cmd.Flags().Int("days", 7, "look back this many days when --after is unset")
	cmd.Flags().Int("max", 50, "maximum messages to fetch (0 means 100)")
	cmd.Flags().Bool("threads", false, "expand every hit to its whole thread")
	cmd.Flags().Bool("reprocess", false, "also process messages stored by earlier runs")
	cmd.Flags().String("db-driver", "sqlite", "database driver: postgres or sqlite")
	cmd.Flags().String("dsn", "inboxledger.db", "database DSN")
	return cmd
}

func newExtractCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "extract FILE.eml...",
		Short: "Run the processor over local RFC 5322 files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.processor()
			if err != nil {
				return err
			}
			records := make([]retrieval.Record, 0, len(args))
			for _, path := range args {
				msg, err := mimefile.LoadFile(path)
				if err != nil {
					return err
				}
				labels := make([]string, 0, len(msg.LabelIDs))
				for _, id := range msg.LabelIDs {
					labels = append(labels, string(id))
				}
				records = append(records, retrieval.Record{Result: p.Process(cmd.Context(), msg), Labels: labels})
			}
			if src, ok := p.(interface {
				Embeddings() map[gmail.MessageID][]float64
			}); ok {
				records = categorize(cluster.NewService(a.cfg.Cluster.Eps, a.cfg.Cluster.MinSamples, a.logger), records, src.Embeddings())
			}
			return a.output(records, func() error { return report.PrintRecords(records, cmd.OutOrStdout()) })
		},
	}
}

func categorize(svc *cluster.Service, records []retrieval.Record, embeddings map[gmail.MessageID][]float64) []retrieval.Record {
	results := make([]processor.Result, len(records))
	for i, r := range records {
		results[i] = r.Result
	}
	results = svc.Categorize(results, embeddings)
	for i := range records {
		records[i].Result = results[i]
	}
	return records
}

func newMigrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.cfg.ValidateDatabase(); err != nil {
				return err
			}
			db, err := database.Open(a.cfg.Database.Driver, a.cfg.Database.DSN, a.logger)
			if err != nil {
				return err
			}
			defer func() { _ = database.Close(db) }()
			if err := database.Migrate(db, a.logger); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", a.cfg.Database.Driver)
			return err
		},
	}
	cmd.Flags().String("db-driver", "sqlite", "database driver: postgres or sqlite")
	cmd.Flags().String("dsn", "inboxledger.db", "database DSN")
	return cmd
}

func encodeStdout(v any) error {
	return report.EncodeJSON(v, os.Stdout)
}

func writeJSON(v any, path string) error {
	return report.WriteJSON(v, path)
}
