package processor

import (
	"context"
	"log/slog"
	"net/mail"
	"os"
	"strings"

	"github.com/joshsymonds/inboxledger/internal/gmail"
)

const DefaultMimeType = "text/html"

// Base extracts metadata and decodes the first part of MimeType.
type Base struct {
	MimeType string
	Logger   *slog.Logger
}

func NewBase(mimeType string, logger *slog.Logger) *Base {
	if mimeType == "" {
		mimeType = DefaultMimeType
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Base{MimeType: mimeType, Logger: logger}
}

func (b *Base) Name() string { return KindBase }

func (b *Base) Process(ctx context.Context, msg gmail.Message) Result {
	res := Result{Metadata: extractMetadata(msg), Processor: KindBase, Status: StatusOK}
	part := gmail.FindPart(&msg.Payload, b.MimeType)
	if part == nil || part.Body.Data == "" {
		b.Logger.DebugContext(ctx, "no content part", slog.String("id", string(msg.ID)), slog.String("mime_type", b.MimeType))
		res.Status = StatusNoContent
		return res
	}
	body, err := gmail.DecodeText(part.Body.Data)
	if err != nil {
		b.Logger.WarnContext(ctx, "decode failed", slog.String("id", string(msg.ID)), slog.Any("error", err))
		return res.fail(err)
	}
	res.Content.Body = body
	return res
}

func extractMetadata(msg gmail.Message) Metadata {
	md := Metadata{
		ID:        msg.ID,
		ThreadID:  msg.ThreadID,
		Subject:   msg.Header("Subject"),
		Sender:    msg.Header("From"),
		Recipient: msg.Header("To"),
		LabelIDs:  msg.LabelIDs,
		Snippet:   msg.Snippet,
	}
	if msg.InternalDate > 0 {
		md.Date = msg.Time().UTC()
	}
	md.SenderAddress = addressOf(md.Sender)
	return md
}

func addressOf(from string) string {
	from = strings.TrimSpace(from)
	if from == "" {
		return ""
	}
	addr, err := mail.ParseAddress(from)
	if err != nil {
		return ""
	}
	return strings.ToLower(addr.Address)
}
