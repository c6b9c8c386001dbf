// Package report renders records, labels and batch outcomes for the CLI.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"net/mail"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joshsymonds/inboxledger/internal/gmail"
	"github.com/joshsymonds/inboxledger/internal/pipeline"
	"github.com/joshsymonds/inboxledger/internal/processor"
	"github.com/joshsymonds/inboxledger/internal/retrieval"
)

const subjectDisplayLimit = 50

// SenderStat counts records per sender domain.
type SenderStat struct {
	Domain string `json:"domain"`
	Count  int    `json:"count"`
	OK     int    `json:"ok"`
}

// Senders ranks sender domains by record count, then by name.
func Senders(records []retrieval.Record) []SenderStat {
	byDomain := map[string]*SenderStat{}
	for _, r := range records {
		dom := domainOf(r.Metadata.Sender)
		if dom == "" {
			dom = "(unknown)"
		}
		st := byDomain[dom]
		if st == nil {
			st = &SenderStat{Domain: dom}
			byDomain[dom] = st
		}
		st.Count++
		if r.OK() {
			st.OK++
		}
	}
	out := make([]SenderStat, 0, len(byDomain))
	for _, st := range byDomain {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Domain < out[j].Domain
	})
	return out
}

// PrintRecords writes one line per record followed by a sender summary.
func PrintRecords(records []retrieval.Record, w io.Writer) error {
	if w == nil {
		w = os.Stdout
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d records\n", len(records))
	for _, r := range records {
		fmt.Fprintf(&b, "  %-18s %-10s %-10s %s\n",
			r.Metadata.ID, r.Processor, r.Status, truncate(r.Metadata.Subject, subjectDisplayLimit))
		if detail := describe(r.Result); detail != "" {
			fmt.Fprintf(&b, "  %18s %s\n", "", detail)
		}
	}
	if stats := Senders(records); len(stats) > 0 {
		b.WriteString("\nSenders:\n")
		for _, s := range stats {
			fmt.Fprintf(&b, "  %-30s %4d %4d ok\n", s.Domain, s.Count, s.OK)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func describe(r processor.Result) string {
	var parts []string
	for _, f := range r.Content.Fields {
		if f.Value != nil {
			parts = append(parts, f.Name+"="+*f.Value)
		}
	}
	if a := r.Content.Analysis; a != nil && a.Category != nil {
		parts = append(parts, "category="+*a.Category)
	}
	if r.Error != "" {
		parts = append(parts, "error="+r.Error)
	}
	return strings.Join(parts, " ")
}

// PrintLabels lists labels sorted by name.
func PrintLabels(labels []gmail.Label, w io.Writer) error {
	if w == nil {
		w = os.Stdout
	}
	sorted := append([]gmail.Label(nil), labels...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	var b strings.Builder
	for _, l := range sorted {
		fmt.Fprintf(&b, "  %-30s %-24s %s\n", l.Name, l.ID, l.Type)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// PrintBatch summarises an ingest run.
func PrintBatch(rep pipeline.Report, w io.Writer) error {
	if w == nil {
		w = os.Stdout
	}
	var b strings.Builder
	fmt.Fprintf(&b, "execution %s\n", rep.ExecutionID)
	fmt.Fprintf(&b, "  query        %s\n", rep.Query)
	if rep.Threads > 0 {
		fmt.Fprintf(&b, "  threads      %d\n", rep.Threads)
	}
	fmt.Fprintf(&b, "  fetched      %d\n", rep.Fetched)
	fmt.Fprintf(&b, "  new          %d\n", rep.Inserted)
	fmt.Fprintf(&b, "  known        %d\n", rep.Existing)
	fmt.Fprintf(&b, "  processed    %d\n", rep.Processed)
	fmt.Fprintf(&b, "  transactions %d (skipped %d)\n", len(rep.Transactions), len(rep.Skipped))
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteJSON writes v as indented JSON to a path inside the working directory.
func WriteJSON(v any, path string) error {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return fmt.Errorf("path must not be empty")
	}
	clean = filepath.Clean(clean)
	if filepath.IsAbs(clean) {
		return fmt.Errorf("output path must be relative, got %s", clean)
	}
	if strings.HasPrefix(clean, "..") {
		return fmt.Errorf("output path %s escapes working directory", clean)
	}
	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determine working directory: %w", err)
	}
	abs := filepath.Join(wd, clean)
	f, err := os.OpenFile(abs, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) // #nosec G304
	if err != nil {
		return fmt.Errorf("create %s: %w", abs, err)
	}
	defer func() { _ = f.Close() }()
	return EncodeJSON(v, f)
}

// EncodeJSON writes v as indented JSON to w.
func EncodeJSON(v any, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

func domainOf(from string) string {
	from = strings.TrimSpace(from)
	if from == "" {
		return ""
	}
	addrs, err := mail.ParseAddressList(from)
	if err != nil {
		return extractDomain(from)
	}
	for _, addr := range addrs {
		if dom := extractDomain(addr.Address); dom != "" {
			return dom
		}
	}
	return ""
}

func extractDomain(address string) string {
	address = strings.ToLower(strings.TrimSpace(address))
	at := strings.LastIndex(address, "@")
	if at == -1 {
		return ""
	}
	return strings.Trim(address[at+1:], ".> ")
}

func truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}
