// Package ingest records which messages were already captured so a batch only
// processes new mail.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/joshsymonds/inboxledger/internal/gmail"
	"github.com/joshsymonds/inboxledger/internal/models"
	"github.com/joshsymonds/inboxledger/internal/repository"
)

// Partition splits a batch into newly captured and already known messages,
// both in input order.
type Partition struct {
	ExecutionID string
	Inserted    []gmail.MessageID
	Existing    []gmail.MessageID
}

// Selected returns the messages to process: the inserted ones, plus the
// existing ones when reprocess is set.
func (p Partition) Selected(messages []gmail.Message, reprocess bool) []gmail.Message {
	want := make(map[gmail.MessageID]bool, len(p.Inserted)+len(p.Existing))
	for _, id := range p.Inserted {
		want[id] = true
	}
	if reprocess {
		for _, id := range p.Existing {
			want[id] = true
		}
	}
	out := make([]gmail.Message, 0, len(want))
	seen := make(map[gmail.MessageID]bool, len(want))
	for _, m := range messages {
		if want[m.ID] && !seen[m.ID] {
			seen[m.ID] = true
			out = append(out, m)
		}
	}
	return out
}

type Tracker struct {
	Repo   repository.RawMessageRepository
	Logger *slog.Logger
}

func NewTracker(repo repository.RawMessageRepository, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Tracker{Repo: repo, Logger: logger}
}

// Partition stores every message not seen before under executionID. A
// unique violation means another run got there first and counts as existing;
// any other storage error aborts the batch. Each ID lands in exactly one list,
// later copies of an ID within the batch are ignored.
func (t *Tracker) Partition(ctx context.Context, executionID string, messages []gmail.Message) (Partition, error) {
	ids := make([]string, len(messages))
	for i, m := range messages {
		ids[i] = string(m.ID)
	}
	known, err := t.Repo.ExistingIDs(ctx, ids)
	if err != nil {
		return Partition{}, fmt.Errorf("partition batch: %w", err)
	}

	p := Partition{ExecutionID: executionID}
	seen := make(map[gmail.MessageID]bool, len(messages))
	for _, m := range messages {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		if known[string(m.ID)] {
			p.Existing = append(p.Existing, m.ID)
			continue
		}
		err := t.Repo.InsertIfAbsent(ctx, rawMessage(executionID, m))
		switch {
		case err == nil:
			p.Inserted = append(p.Inserted, m.ID)
		case errors.Is(err, repository.ErrDuplicateEntry):
			p.Existing = append(p.Existing, m.ID)
		default:
			return Partition{}, fmt.Errorf("partition batch: %w", err)
		}
	}
	t.Logger.InfoContext(ctx, "partitioned batch",
		slog.String("execution_id", executionID),
		slog.Int("inserted", len(p.Inserted)),
		slog.Int("existing", len(p.Existing)))
	return p, nil
}

func rawMessage(executionID string, m gmail.Message) *models.RawMessage {
	rm := &models.RawMessage{
		MessageID:   string(m.ID),
		ThreadID:    string(m.ThreadID),
		ExecutionID: executionID,
		Sender:      m.Header("From"),
		Subject:     m.Header("Subject"),
	}
	if m.InternalDate > 0 {
		rm.ReceivedAt = m.Time().UTC()
	}
	return rm
}
