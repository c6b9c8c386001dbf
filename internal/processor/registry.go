package processor

import (
	"log/slog"
	"sort"

	"github.com/joshsymonds/inboxledger/internal/gmail"
)

const (
	KindBase  = "base"
	KindHTML  = "html"
	KindRegex = "regex"
	KindLLM   = "llm"
)

// Deps carries everything a constructor may need. Unused fields are ignored.
type Deps struct {
	MimeType string
	Selector *Selector
	Fields   []Field
	Embedder Embedder
	Logger   *slog.Logger
}

type constructor func(Deps) (Processor, error)

var registry = map[string]constructor{
	KindBase: func(d Deps) (Processor, error) {
		return NewBase(d.MimeType, d.Logger), nil
	},
	KindHTML: func(d Deps) (Processor, error) {
		return NewHTML(NewBase(d.MimeType, d.Logger), d.Selector, d.Logger), nil
	},
	KindRegex: func(d Deps) (Processor, error) {
		return NewRegex(NewHTML(NewBase(d.MimeType, d.Logger), d.Selector, d.Logger), d.Fields, d.Logger), nil
	},
	KindLLM: func(d Deps) (Processor, error) {
		if d.Embedder == nil {
			return nil, gmail.Errorf(gmail.ErrConfig, "new processor", "llm processor requires an embedder")
		}
		l := NewLLM(NewHTML(NewBase(d.MimeType, d.Logger), d.Selector, d.Logger), d.Embedder, d.Logger)
		l.Fields = d.Fields
		if len(l.Fields) == 0 {
			l.Fields = BankFields()
		}
		return l, nil
	},
}

// New builds the processor registered under kind.
func New(kind string, deps Deps) (Processor, error) {
	ctor, ok := registry[kind]
	if !ok {
		return nil, gmail.Errorf(gmail.ErrConfig, "new processor", "unknown processor %q (want one of %v)", kind, Kinds())
	}
	return ctor(deps)
}

// Kinds lists the registered processor names.
func Kinds() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
