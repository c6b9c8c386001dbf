package gmail

import (
	"strings"
	"time"
)

type MessageID string
type LabelID string
type ThreadID string

// System labels referenced by the pipeline.
const (
	LabelInbox      LabelID = "INBOX"
	LabelSpam       LabelID = "SPAM"
	LabelTrash      LabelID = "TRASH"
	LabelUnread     LabelID = "UNREAD"
	LabelStarred    LabelID = "STARRED"
	LabelPromotions LabelID = "CATEGORY_PROMOTIONS"
)

type Header struct {
	Name  string
	Value string
}

// Body holds the base64url encoded data of a single MIME part.
type Body struct {
	Data string
	Size int64
}

// Part is one node of a message's MIME tree.
type Part struct {
	MimeType string
	Filename string
	Headers  []Header
	Body     Body
	Parts    []Part
}

// Header returns the first header value matching name, ignoring case.
func (p *Part) Header(name string) string {
	if p == nil {
		return ""
	}
	for _, h := range p.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// Message is a full message as returned by the provider.
type Message struct {
	ID           MessageID
	ThreadID     ThreadID
	Payload      Part
	LabelIDs     []LabelID
	InternalDate int64 // epoch milliseconds
	Snippet      string
}

func (m Message) Time() time.Time {
	return time.UnixMilli(m.InternalDate)
}

func (m Message) Header(name string) string {
	return m.Payload.Header(name)
}

// Label mirrors provider label metadata. Type is lowercased (system or user).
type Label struct {
	ID             LabelID `json:"id"`
	Name           string  `json:"name"`
	Type           string  `json:"type"`
	MessagesTotal  int64   `json:"messages_total"`
	MessagesUnread int64   `json:"messages_unread"`
}

type ListPage struct {
	IDs           []MessageID
	NextPageToken string
}

type ThreadPage struct {
	IDs           []ThreadID
	NextPageToken string
}

// Query is a provider search request: a query string plus optional label IDs
// the provider filters on server side.
type Query struct {
	Raw      string
	LabelIDs []LabelID
}
