// Package mimefile reads saved RFC 5322 messages into the provider message
// shape so they can go through the processor chain offline.
package mimefile

import (
	"fmt"
	"io"
	"net/mail"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/jhillyerd/enmime"

	"github.com/joshsymonds/inboxledger/internal/gmail"
)

const snippetLen = 200

// Load parses r. An empty id falls back to the Message-Id header, then to
// "local".
func Load(r io.Reader, id string) (gmail.Message, error) {
	env, err := enmime.ReadEnvelope(r)
	if err != nil {
		return gmail.Message{}, gmail.Wrap(gmail.ErrProcessing, "read message", err)
	}
	if env.Root == nil {
		return gmail.Message{}, gmail.Errorf(gmail.ErrProcessing, "read message", "message has no body")
	}
	if id == "" {
		id = strings.Trim(env.GetHeader("Message-Id"), "<> ")
	}
	if id == "" {
		id = "local"
	}

	msg := gmail.Message{
		ID:       gmail.MessageID(id),
		ThreadID: gmail.ThreadID(id),
		Payload:  convert(env.Root),
		LabelIDs: []gmail.LabelID{gmail.LabelInbox},
		Snippet:  snippet(env.Text),
	}
	if date := env.GetHeader("Date"); date != "" {
		if t, err := mail.ParseDate(date); err == nil {
			msg.InternalDate = t.UnixMilli()
		}
	}
	return msg, nil
}

// LoadFile loads path, using the file name without extension as the ID.
func LoadFile(path string) (gmail.Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return gmail.Message{}, fmt.Errorf("open message file: %w", err)
	}
	defer f.Close()
	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return Load(f, id)
}

func convert(p *enmime.Part) gmail.Part {
	out := gmail.Part{
		MimeType: p.ContentType,
		Filename: p.FileName,
		Headers:  headers(p),
	}
	if len(p.Content) > 0 {
		out.Body = gmail.Body{Data: gmail.Encode(p.Content), Size: int64(len(p.Content))}
	}
	for c := p.FirstChild; c != nil; c = c.NextSibling {
		out.Parts = append(out.Parts, convert(c))
	}
	return out
}

func headers(p *enmime.Part) []gmail.Header {
	if p.Header == nil {
		return nil
	}
	keys := make([]string, 0, len(p.Header))
	for k := range p.Header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out []gmail.Header
	for _, k := range keys {
		for _, v := range p.Header[k] {
			out = append(out, gmail.Header{Name: k, Value: decodeHeader(v)})
		}
	}
	return out
}

func decodeHeader(v string) string {
	if s := enmime.DecodeHeader(v); s != "" {
		return s
	}
	return v
}

func snippet(text string) string {
	s := strings.Join(strings.Fields(text), " ")
	if len(s) <= snippetLen {
		return s
	}
	n := snippetLen
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
