package processor

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/joshsymonds/inboxledger/internal/gmail"
)

const (
	errHTMLFailed = "HTML processing failed"
	errNoText     = "No text content found"
)

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// EmbeddingStore holds one vector per message. The first write wins.
type EmbeddingStore struct {
	mu   sync.Mutex
	vecs map[gmail.MessageID][]float64
}

func NewEmbeddingStore() *EmbeddingStore {
	return &EmbeddingStore{vecs: make(map[gmail.MessageID][]float64)}
}

// Put stores vec for id and reports whether it was stored.
func (s *EmbeddingStore) Put(id gmail.MessageID, vec []float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.vecs[id]; ok {
		return false
	}
	s.vecs[id] = append([]float64(nil), vec...)
	return true
}

func (s *EmbeddingStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.vecs)
}

// Snapshot copies the store.
func (s *EmbeddingStore) Snapshot() map[gmail.MessageID][]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[gmail.MessageID][]float64, len(s.vecs))
	for id, v := range s.vecs {
		out[id] = append([]float64(nil), v...)
	}
	return out
}

// LLM embeds message text for later clustering. When Fields is set it also
// extracts them from the same text, so categorized records can become
// transactions.
type LLM struct {
	HTML     *HTML
	Embedder Embedder
	Fields   []Field
	Logger   *slog.Logger

	store *EmbeddingStore
}

func NewLLM(h *HTML, embedder Embedder, logger *slog.Logger) *LLM {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	if h == nil {
		h = NewHTML(nil, nil, logger)
	}
	return &LLM{HTML: h, Embedder: embedder, Logger: logger, store: NewEmbeddingStore()}
}

func (l *LLM) Name() string { return KindLLM }

// Embeddings returns a copy of the vectors collected so far.
func (l *LLM) Embeddings() map[gmail.MessageID][]float64 {
	return l.store.Snapshot()
}

func (l *LLM) Process(ctx context.Context, msg gmail.Message) Result {
	res := l.HTML.Process(ctx, msg)
	res.Processor = KindLLM
	if len(l.Fields) > 0 {
		res.Content.Fields = unmatched(l.Fields)
	}
	if !res.OK() {
		res.Content.Analysis = &Analysis{Error: errHTMLFailed}
		if res.Error == "" {
			res.Error = upstreamError(res)
		}
		return res
	}
	if res.Content.Text == "" {
		res.Content.Analysis = &Analysis{Error: errNoText}
		return res
	}
	if len(l.Fields) > 0 {
		extract(res.Content.Fields, l.Fields, res.Content.Text)
	}
	vec, err := l.Embedder.Embed(ctx, res.Content.Text)
	if err != nil {
		l.Logger.WarnContext(ctx, "embedding failed", slog.String("id", string(msg.ID)), slog.Any("error", err))
		res.Content.Analysis = &Analysis{Error: err.Error()}
		return res
	}
	l.store.Put(msg.ID, vec)
	res.Content.Analysis = &Analysis{Processed: true}
	return res
}
