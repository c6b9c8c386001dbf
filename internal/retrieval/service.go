// Package retrieval ties the mail client to a processor and resolves label
// names for the records it returns.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/joshsymonds/inboxledger/internal/gmail"
	"github.com/joshsymonds/inboxledger/internal/processor"
)

// Mailbox is the part of mailbox.Client the service uses.
type Mailbox interface {
	Search(ctx context.Context, criteria gmail.SearchCriteria, filter gmail.LabelFilter) ([]gmail.Message, error)
	GetRecent(ctx context.Context, days, maxResults int, labels []gmail.LabelID) ([]gmail.Message, error)
	ListLabels(ctx context.Context) ([]gmail.Label, error)
}

// Record is a processed message with label names attached.
type Record struct {
	processor.Result
	Labels []string `json:"labels"`
}

type Service struct {
	Mailbox   Mailbox
	Processor processor.Processor
	Logger    *slog.Logger

	mu     sync.Mutex
	labels []gmail.Label
	names  map[gmail.LabelID]string
}

func NewService(mb Mailbox, p processor.Processor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Service{Mailbox: mb, Processor: p, Logger: logger}
}

// SearchAndProcess fetches messages matching criteria and processes each one.
func (s *Service) SearchAndProcess(ctx context.Context, criteria gmail.SearchCriteria, filter gmail.LabelFilter) ([]Record, error) {
	msgs, err := s.Mailbox.Search(ctx, criteria, filter)
	if err != nil {
		return nil, err
	}
	return s.ProcessAll(ctx, msgs)
}

// RecentProcessed processes the newest messages of the last days.
func (s *Service) RecentProcessed(ctx context.Context, days, maxResults int, labels []gmail.LabelID) ([]Record, error) {
	msgs, err := s.Mailbox.GetRecent(ctx, days, maxResults, labels)
	if err != nil {
		return nil, err
	}
	return s.ProcessAll(ctx, msgs)
}

// ProcessAll runs the processor over msgs in order. Every message yields a
// record; failures are carried inside it.
func (s *Service) ProcessAll(ctx context.Context, msgs []gmail.Message) ([]Record, error) {
	names, err := s.labelNames(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(msgs))
	failed := 0
	for _, m := range msgs {
		res := s.Processor.Process(ctx, m)
		if !res.OK() {
			failed++
		}
		records = append(records, Record{Result: res, Labels: resolve(names, m.LabelIDs)})
	}
	s.Logger.InfoContext(ctx, "processed messages",
		slog.String("processor", s.Processor.Name()),
		slog.Int("messages", len(records)),
		slog.Int("not_ok", failed))
	return records, nil
}

// Labels returns the cached label list, loading it on first use.
func (s *Service) Labels(ctx context.Context) ([]gmail.Label, error) {
	if err := s.loadLabels(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]gmail.Label(nil), s.labels...), nil
}

func (s *Service) labelNames(ctx context.Context) (map[gmail.LabelID]string, error) {
	if err := s.loadLabels(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.names, nil
}

func (s *Service) loadLabels(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.names != nil {
		return nil
	}
	labels, err := s.Mailbox.ListLabels(ctx)
	if err != nil {
		return fmt.Errorf("load labels: %w", err)
	}
	names := make(map[gmail.LabelID]string, len(labels))
	for _, l := range labels {
		names[l.ID] = l.Name
	}
	s.labels = labels
	s.names = names
	return nil
}

func resolve(names map[gmail.LabelID]string, ids []gmail.LabelID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if n, ok := names[id]; ok && n != "" {
			out = append(out, n)
			continue
		}
		out = append(out, string(id))
	}
	return out
}
