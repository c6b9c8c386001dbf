package processor

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/joshsymonds/inboxledger/internal/gmail"
)

// HTML parses the decoded body and exposes its text, optionally narrowed to
// the elements matched by Selector.
type HTML struct {
	Base     *Base
	Selector *Selector
	Logger   *slog.Logger
}

func NewHTML(base *Base, selector *Selector, logger *slog.Logger) *HTML {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	if base == nil {
		base = NewBase(DefaultMimeType, logger)
	}
	return &HTML{Base: base, Selector: selector, Logger: logger}
}

func (h *HTML) Name() string { return KindHTML }

func (h *HTML) Process(ctx context.Context, msg gmail.Message) Result {
	res := h.Base.Process(ctx, msg)
	res.Processor = KindHTML
	if !res.OK() {
		return res
	}
	doc, err := html.Parse(strings.NewReader(res.Content.Body))
	if err != nil {
		return res.fail(gmail.Wrap(gmail.ErrProcessing, "parse html", err))
	}
	if h.Selector == nil {
		rendered, err := render(doc)
		if err != nil {
			return res.fail(err)
		}
		res.Content.HTML = rendered
		res.Content.Text = textOf(doc)
		return res
	}

	var texts []string
	for _, n := range findAll(doc, h.Selector) {
		rendered, err := render(n)
		if err != nil {
			return res.fail(err)
		}
		text := textOf(n)
		res.Content.Elements = append(res.Content.Elements, Element{HTML: rendered, Text: text})
		if text != "" {
			texts = append(texts, text)
		}
	}
	res.Content.Count = len(res.Content.Elements)
	if res.Content.Count == 0 {
		h.Logger.DebugContext(ctx, "selector matched nothing", slog.String("id", string(msg.ID)), slog.String("selector", h.Selector.String()))
		res.Status = StatusNoMatch
		return res
	}
	res.Content.Text = strings.Join(texts, " ")
	return res
}

func findAll(root *html.Node, sel *Selector) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if sel.Matches(n) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

// textOf joins visible text nodes with single spaces, skipping script and
// style content.
func textOf(root *html.Node) string {
	var words []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.DataAtom == atom.Script || n.DataAtom == atom.Style) {
			return
		}
		if n.Type == html.TextNode {
			words = append(words, strings.Fields(n.Data)...)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return strings.Join(words, " ")
}

func render(n *html.Node) (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return "", gmail.Wrap(gmail.ErrProcessing, "render html", err)
	}
	return buf.String(), nil
}
