package processor

import (
	"context"
	"log/slog"
	"os"
	"regexp"

	"github.com/joshsymonds/inboxledger/internal/gmail"
)

// Field names one value to extract. The first capture group of the first
// match becomes the value.
type Field struct {
	Name    string
	Pattern *regexp.Regexp
}

// BankFields extracts the common fields of UPI debit alerts.
func BankFields() []Field {
	return []Field{
		{Name: "amount", Pattern: regexp.MustCompile(`(?i)(?:Rs\.?|INR)\s*([\d,]+(?:\.\d{1,2})?)`)},
		{Name: "vpa", Pattern: regexp.MustCompile(`(?i)VPA\s+([\w.\-]+@[\w.\-]+)`)},
		{Name: "payee", Pattern: regexp.MustCompile(`VPA\s+[\w.\-]+@[\w.\-]+\s+([A-Za-z][A-Za-z .&'-]*?)\s+on\s+\d`)},
		{Name: "date", Pattern: regexp.MustCompile(`\b(\d{2}-\d{2}-\d{2,4})\b`)},
		{Name: "reference", Pattern: regexp.MustCompile(`(?i)reference\s+(?:number|no\.?)?\s*(?:is)?\s*:?\s*(\d{6,})`)},
	}
}

// CompileFields builds fields from name/pattern pairs, keeping order.
func CompileFields(names, patterns []string) ([]Field, error) {
	if len(names) != len(patterns) {
		return nil, gmail.Errorf(gmail.ErrConfig, "compile fields", "%d names for %d patterns", len(names), len(patterns))
	}
	fields := make([]Field, 0, len(names))
	for i, name := range names {
		re, err := regexp.Compile(patterns[i])
		if err != nil {
			return nil, gmail.Wrap(gmail.ErrConfig, "compile field "+name, err)
		}
		if re.NumSubexp() < 1 {
			return nil, gmail.Errorf(gmail.ErrConfig, "compile field "+name, "pattern needs a capture group")
		}
		fields = append(fields, Field{Name: name, Pattern: re})
	}
	return fields, nil
}

// Regex runs named patterns over the text produced by HTML.
type Regex struct {
	HTML   *HTML
	Fields []Field
	Logger *slog.Logger
}

func NewRegex(h *HTML, fields []Field, logger *slog.Logger) *Regex {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	if h == nil {
		h = NewHTML(nil, nil, logger)
	}
	if len(fields) == 0 {
		fields = BankFields()
	}
	return &Regex{HTML: h, Fields: fields, Logger: logger}
}

func (r *Regex) Name() string { return KindRegex }

func (r *Regex) Process(ctx context.Context, msg gmail.Message) Result {
	res := r.HTML.Process(ctx, msg)
	res.Processor = KindRegex
	res.Content.Fields = unmatched(r.Fields)
	if !res.OK() {
		res.Error = upstreamError(res)
		return res
	}

	text := res.Content.Text
	if text == "" {
		text = res.Content.Body
	}
	matched := extract(res.Content.Fields, r.Fields, text)
	r.Logger.DebugContext(ctx, "extracted fields", slog.String("id", string(msg.ID)), slog.Int("matched", matched), slog.Int("fields", len(r.Fields)))
	return res
}

// unmatched returns one nil value per field, in field order.
func unmatched(fields []Field) Fields {
	out := make(Fields, len(fields))
	for i, f := range fields {
		out[i] = FieldValue{Name: f.Name}
	}
	return out
}

// extract fills dst from the first capture group of each field's first match
// in text and returns how many fields matched.
func extract(dst Fields, fields []Field, text string) int {
	matched := 0
	for i, f := range fields {
		m := f.Pattern.FindStringSubmatch(text)
		if len(m) < 2 {
			continue
		}
		v := m[1]
		dst[i].Value = &v
		matched++
	}
	return matched
}
