package cluster

import (
	"log/slog"
	"os"

	"github.com/joshsymonds/inboxledger/internal/gmail"
	"github.com/joshsymonds/inboxledger/internal/processor"
)

const (
	DefaultEps        = 0.3
	DefaultMinSamples = 2

	// CategoryOther collects noise and every cluster past the named ones.
	CategoryOther = "D"
)

var categories = map[int]string{0: "A", 1: "B", 2: "C"}

// Category maps a cluster label to its category name.
func Category(label int) string {
	if c, ok := categories[label]; ok {
		return c
	}
	return CategoryOther
}

// Service assigns categories to llm results from their embeddings.
type Service struct {
	Eps        float64
	MinSamples int
	Logger     *slog.Logger
}

func NewService(eps float64, minSamples int, logger *slog.Logger) *Service {
	if eps <= 0 {
		eps = DefaultEps
	}
	if minSamples <= 0 {
		minSamples = DefaultMinSamples
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Service{Eps: eps, MinSamples: minSamples, Logger: logger}
}

// Categorize returns a copy of results with Analysis.Category set on every
// processed result that has an embedding. With fewer than two such results
// the input is returned unchanged.
func (s *Service) Categorize(results []processor.Result, embeddings map[gmail.MessageID][]float64) []processor.Result {
	var (
		idx    []int
		points [][]float64
	)
	for i, r := range results {
		a := r.Content.Analysis
		if a == nil || !a.Processed {
			continue
		}
		vec, ok := embeddings[r.Metadata.ID]
		if !ok || len(vec) == 0 {
			continue
		}
		idx = append(idx, i)
		points = append(points, vec)
	}
	if len(points) < 2 {
		return results
	}

	labels := DBSCAN(points, s.Eps, s.MinSamples)
	out := make([]processor.Result, len(results))
	copy(out, results)
	counts := map[string]int{}
	for k, i := range idx {
		cat := Category(labels[k])
		analysis := *out[i].Content.Analysis
		analysis.Category = &cat
		out[i].Content.Analysis = &analysis
		counts[cat]++
	}
	s.Logger.Info("categorized results", slog.Int("points", len(points)), slog.Any("categories", counts))
	return out
}
