package processor

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/joshsymonds/inboxledger/internal/gmail"
)

// Selector matches elements by tag and attributes. The class attribute
// matches when any whitespace separated token equals the wanted value; other
// attributes must match exactly. An empty Tag matches any element.
type Selector struct {
	Tag   string
	Attrs map[string]string
}

// ParseSelector reads the compact forms used in configuration:
// "td", "td.amount", "span#amt", "span[id=amt]", ".amount[data-kind=debit]".
func ParseSelector(s string) (*Selector, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, gmail.Errorf(gmail.ErrConfig, "parse selector", "empty selector")
	}
	sel := &Selector{Attrs: map[string]string{}}
	i := 0
	for i < len(s) && isIdentByte(s[i]) {
		i++
	}
	sel.Tag = strings.ToLower(s[:i])
	for i < len(s) {
		switch s[i] {
		case '.', '#':
			key := "class"
			if s[i] == '#' {
				key = "id"
			}
			j := i + 1
			for j < len(s) && isIdentByte(s[j]) {
				j++
			}
			if j == i+1 {
				return nil, gmail.Errorf(gmail.ErrConfig, "parse selector", "empty %s in %q", key, s)
			}
			if _, dup := sel.Attrs[key]; dup {
				return nil, gmail.Errorf(gmail.ErrConfig, "parse selector", "repeated %s in %q", key, s)
			}
			sel.Attrs[key] = s[i+1 : j]
			i = j
		case '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return nil, gmail.Errorf(gmail.ErrConfig, "parse selector", "unterminated attribute in %q", s)
			}
			k, v, ok := strings.Cut(s[i+1:i+end], "=")
			k = strings.ToLower(strings.TrimSpace(k))
			if !ok || k == "" {
				return nil, gmail.Errorf(gmail.ErrConfig, "parse selector", "attribute must be key=value in %q", s)
			}
			sel.Attrs[k] = strings.Trim(strings.TrimSpace(v), `"'`)
			i += end + 1
		default:
			return nil, gmail.Errorf(gmail.ErrConfig, "parse selector", "unexpected %q in %q", s[i], s)
		}
	}
	if sel.Tag == "" && len(sel.Attrs) == 0 {
		return nil, gmail.Errorf(gmail.ErrConfig, "parse selector", "invalid selector %q", s)
	}
	return sel, nil
}

func isIdentByte(b byte) bool {
	return b == '-' || b == '_' ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// Matches reports whether n is an element satisfying s.
func (s *Selector) Matches(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	if s.Tag != "" && !strings.EqualFold(n.Data, s.Tag) {
		return false
	}
	for k, want := range s.Attrs {
		got, ok := attr(n, k)
		if !ok {
			return false
		}
		if k == "class" {
			if !hasToken(got, want) {
				return false
			}
			continue
		}
		if got != want {
			return false
		}
	}
	return true
}

func (s *Selector) String() string {
	var b strings.Builder
	b.WriteString(s.Tag)
	for k, v := range s.Attrs {
		b.WriteString("[" + k + "=" + v + "]")
	}
	return b.String()
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

func hasToken(list, want string) bool {
	for _, tok := range strings.Fields(list) {
		if tok == want {
			return true
		}
	}
	return false
}
