// Package pipeline runs one ingest batch: fetch, deduplicate, process,
// categorize and store transactions.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/joshsymonds/inboxledger/internal/cluster"
	"github.com/joshsymonds/inboxledger/internal/gmail"
	"github.com/joshsymonds/inboxledger/internal/ingest"
	"github.com/joshsymonds/inboxledger/internal/mailbox"
	"github.com/joshsymonds/inboxledger/internal/models"
	"github.com/joshsymonds/inboxledger/internal/processor"
	"github.com/joshsymonds/inboxledger/internal/repository"
	"github.com/joshsymonds/inboxledger/internal/retrieval"
)

// Fetcher is the part of mailbox.Client the runner uses.
type Fetcher interface {
	Search(ctx context.Context, criteria gmail.SearchCriteria, filter gmail.LabelFilter) ([]gmail.Message, error)
	SearchThreads(ctx context.Context, criteria gmail.SearchCriteria, filter gmail.LabelFilter) (mailbox.ThreadBatch, error)
}

// embeddingSource is implemented by processors that collect vectors.
type embeddingSource interface {
	Embeddings() map[gmail.MessageID][]float64
}

type Options struct {
	Criteria  gmail.SearchCriteria
	Filter    gmail.LabelFilter
	Threads   bool
	Reprocess bool
}

// Batch carries the state of one run through every step.
type Batch struct {
	ExecutionID string
	Query       string
	StartedAt   time.Time
	Threads     int
	Fetched     int
	Inserted    int
	Existing    int
	Processed   int

	Records      []retrieval.Record
	Transactions []string
	Skipped      []string
}

// Report is the outcome of a completed run.
type Report = Batch

type Runner struct {
	Fetcher      Fetcher
	Tracker      *ingest.Tracker
	Retrieval    *retrieval.Service
	Cluster      *cluster.Service
	Executions   repository.ExecutionRepository
	Transactions repository.TransactionRepository
	Logger       *slog.Logger
	Clock        func() time.Time
	NewID        func() string
}

func NewRunner(
	fetcher Fetcher,
	tracker *ingest.Tracker,
	svc *retrieval.Service,
	clusters *cluster.Service,
	execs repository.ExecutionRepository,
	txns repository.TransactionRepository,
	logger *slog.Logger,
) *Runner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Runner{
		Fetcher:      fetcher,
		Tracker:      tracker,
		Retrieval:    svc,
		Cluster:      clusters,
		Executions:   execs,
		Transactions: txns,
		Logger:       logger,
		Clock:        time.Now,
		NewID:        uuid.NewString,
	}
}

// Run executes one batch. The execution row is created before any fetch and
// is marked completed or failed on the way out.
func (r *Runner) Run(ctx context.Context, opts Options) (Report, error) {
	if err := opts.Criteria.Validate(); err != nil {
		return Report{}, err
	}
	b := &Batch{
		ExecutionID: r.NewID(),
		Query:       gmail.BuildQuery(opts.Criteria),
		StartedAt:   r.Clock().UTC(),
	}
	exec := &models.Execution{
		ID:        b.ExecutionID,
		Query:     b.Query,
		Processor: r.Retrieval.Processor.Name(),
		Status:    models.ExecutionRunning,
		StartedAt: b.StartedAt,
	}
	if err := r.Executions.Create(ctx, exec); err != nil {
		return Report{}, fmt.Errorf("record execution: %w", err)
	}
	log := r.Logger.With(slog.String("execution_id", b.ExecutionID))
	log.InfoContext(ctx, "batch started", slog.String("query", b.Query), slog.Bool("threads", opts.Threads))

	runErr := r.run(ctx, b, opts, log)

	finished := r.Clock().UTC()
	exec.Status = models.ExecutionCompleted
	if runErr != nil {
		exec.Status = models.ExecutionFailed
		exec.Error = runErr.Error()
	}
	exec.Fetched = b.Fetched
	exec.Inserted = b.Inserted
	exec.Existing = b.Existing
	exec.Processed = b.Processed
	exec.Transactions = len(b.Transactions)
	exec.FinishedAt = &finished
	// the batch context may be cancelled already; the final status must land
	if err := r.Executions.Update(context.WithoutCancel(ctx), exec); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("update execution: %w", err))
	}
	if runErr != nil {
		log.ErrorContext(ctx, "batch failed", slog.Any("error", runErr))
		return *b, runErr
	}
	log.InfoContext(ctx, "batch completed",
		slog.Int("fetched", b.Fetched),
		slog.Int("inserted", b.Inserted),
		slog.Int("existing", b.Existing),
		slog.Int("processed", b.Processed),
		slog.Int("transactions", len(b.Transactions)),
		slog.Duration("elapsed", finished.Sub(b.StartedAt)))
	return *b, nil
}

func (r *Runner) run(ctx context.Context, b *Batch, opts Options, log *slog.Logger) error {
	msgs, err := r.fetch(ctx, b, opts)
	if err != nil {
		return err
	}
	b.Fetched = len(msgs)

	// labels are needed to build records; fail before any raw row is written
	if _, err := r.Retrieval.Labels(ctx); err != nil {
		return err
	}
	part, err := r.Tracker.Partition(ctx, b.ExecutionID, msgs)
	if err != nil {
		return err
	}
	b.Inserted = len(part.Inserted)
	b.Existing = len(part.Existing)

	selected := part.Selected(msgs, opts.Reprocess)
	if len(selected) == 0 {
		log.InfoContext(ctx, "nothing new to process")
		return nil
	}
	records, err := r.Retrieval.ProcessAll(ctx, selected)
	if err != nil {
		return err
	}
	b.Processed = len(records)

	if src, ok := r.Retrieval.Processor.(embeddingSource); ok && r.Cluster != nil {
		records = r.categorize(records, src.Embeddings())
	}
	b.Records = records

	txns := Transactions(b.ExecutionID, records)
	if len(txns) == 0 {
		return nil
	}
	b.Transactions, b.Skipped, err = r.Transactions.InsertAll(ctx, txns)
	if err != nil {
		return fmt.Errorf("store transactions: %w", err)
	}
	return nil
}

func (r *Runner) fetch(ctx context.Context, b *Batch, opts Options) ([]gmail.Message, error) {
	if !opts.Threads {
		return r.Fetcher.Search(ctx, opts.Criteria, opts.Filter)
	}
	batch, err := r.Fetcher.SearchThreads(ctx, opts.Criteria, opts.Filter)
	if err != nil {
		return nil, err
	}
	b.Threads = batch.Threads
	return batch.Messages, nil
}

func (r *Runner) categorize(records []retrieval.Record, embeddings map[gmail.MessageID][]float64) []retrieval.Record {
	results := make([]processor.Result, len(records))
	for i, rec := range records {
		results[i] = rec.Result
	}
	results = r.Cluster.Categorize(results, embeddings)
	out := make([]retrieval.Record, len(records))
	for i, rec := range records {
		out[i] = retrieval.Record{Result: results[i], Labels: rec.Labels}
	}
	return out
}

// Transactions builds one transaction per record with an extracted amount.
func Transactions(executionID string, records []retrieval.Record) []models.Transaction {
	var out []models.Transaction
	for _, rec := range records {
		f := rec.Content.Fields
		amount := f.Value("amount")
		if amount == "" {
			continue
		}
		txn := models.Transaction{
			MessageID:   string(rec.Metadata.ID),
			ExecutionID: executionID,
			Amount:      amount,
			VPA:         f.Value("vpa"),
			Payee:       f.Value("payee"),
			TxnDate:     f.Value("date"),
			Reference:   f.Value("reference"),
			Sender:      rec.Metadata.Sender,
			Subject:     rec.Metadata.Subject,
			ReceivedAt:  rec.Metadata.Date,
		}
		if a := rec.Content.Analysis; a != nil && a.Category != nil {
			txn.Category = *a.Category
		}
		out = append(out, txn)
	}
	return out
}
