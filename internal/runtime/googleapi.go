// Package runtime adapts *gmail.Service to the narrow gmail.Client interface
// and hosts process-level helpers.
package runtime

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"

	gc "github.com/joshsymonds/inboxledger/internal/gmail"
)

const me = "me"

type googleClient struct{ svc *gmail.Service }

func NewGoogleAPIClient(svc *gmail.Service) gc.Client { return &googleClient{svc} }

func (g *googleClient) List(ctx context.Context, q gc.Query, pageToken string, pageSize int) (gc.ListPage, error) {
	call := g.svc.Users.Messages.List(me).MaxResults(int64(pageSize))
	if q.Raw != "" {
		call = call.Q(q.Raw)
	}
	if len(q.LabelIDs) > 0 {
		call = call.LabelIds(toStrings(q.LabelIDs)...)
	}
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	res, err := call.Context(ctx).Do()
	if err != nil {
		return gc.ListPage{}, classify("list messages", err)
	}
	page := gc.ListPage{NextPageToken: res.NextPageToken}
	for _, m := range res.Messages {
		page.IDs = append(page.IDs, gc.MessageID(m.Id))
	}
	return page, nil
}

func (g *googleClient) Get(ctx context.Context, id gc.MessageID) (gc.Message, error) {
	msg, err := g.svc.Users.Messages.Get(me, string(id)).Format("full").Context(ctx).Do()
	if err != nil {
		return gc.Message{}, classify("get message "+string(id), err)
	}
	return toMessage(msg), nil
}

func (g *googleClient) ListThreads(ctx context.Context, q gc.Query, pageToken string, pageSize int) (gc.ThreadPage, error) {
	call := g.svc.Users.Threads.List(me).MaxResults(int64(pageSize))
	if q.Raw != "" {
		call = call.Q(q.Raw)
	}
	if len(q.LabelIDs) > 0 {
		call = call.LabelIds(toStrings(q.LabelIDs)...)
	}
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}
	res, err := call.Context(ctx).Do()
	if err != nil {
		return gc.ThreadPage{}, classify("list threads", err)
	}
	page := gc.ThreadPage{NextPageToken: res.NextPageToken}
	for _, th := range res.Threads {
		page.IDs = append(page.IDs, gc.ThreadID(th.Id))
	}
	return page, nil
}

func (g *googleClient) GetThread(ctx context.Context, id gc.ThreadID) ([]gc.Message, error) {
	th, err := g.svc.Users.Threads.Get(me, string(id)).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, classify("get thread "+string(id), err)
	}
	out := make([]gc.Message, 0, len(th.Messages))
	for _, m := range th.Messages {
		out = append(out, toMessage(m))
	}
	return out, nil
}

func (g *googleClient) ListLabels(ctx context.Context) ([]gc.Label, error) {
	lr, err := g.svc.Users.Labels.List(me).Context(ctx).Do()
	if err != nil {
		return nil, classify("list labels", err)
	}
	out := make([]gc.Label, 0, len(lr.Labels))
	for _, l := range lr.Labels {
		out = append(out, gc.Label{
			ID:             gc.LabelID(l.Id),
			Name:           l.Name,
			Type:           strings.ToLower(l.Type),
			MessagesTotal:  l.MessagesTotal,
			MessagesUnread: l.MessagesUnread,
		})
	}
	return out, nil
}

// classify maps provider status codes onto the error taxonomy.
func classify(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusUnauthorized:
			return gc.Wrap(gc.ErrAuth, op, err)
		case http.StatusForbidden:
			if rateLimited(apiErr) {
				return gc.Wrap(gc.ErrRateLimit, op, err)
			}
			return gc.Wrap(gc.ErrAuth, op, err)
		case http.StatusTooManyRequests:
			return gc.Wrap(gc.ErrRateLimit, op, err)
		}
	}
	return gc.Wrap(gc.ErrGmail, op, err)
}

// rateLimited reports whether a 403 carries a quota reason rather than a
// permission problem.
func rateLimited(e *googleapi.Error) bool {
	for _, item := range e.Errors {
		switch item.Reason {
		case "rateLimitExceeded", "userRateLimitExceeded", "dailyLimitExceeded":
			return true
		}
	}
	return false
}

func toMessage(m *gmail.Message) gc.Message {
	out := gc.Message{
		ID:           gc.MessageID(m.Id),
		ThreadID:     gc.ThreadID(m.ThreadId),
		LabelIDs:     toLabelIDs(m.LabelIds),
		InternalDate: m.InternalDate,
		Snippet:      m.Snippet,
	}
	if m.Payload != nil {
		out.Payload = toPart(m.Payload)
	}
	return out
}

func toPart(p *gmail.MessagePart) gc.Part {
	part := gc.Part{MimeType: p.MimeType, Filename: p.Filename}
	for _, h := range p.Headers {
		part.Headers = append(part.Headers, gc.Header{Name: h.Name, Value: h.Value})
	}
	if p.Body != nil {
		part.Body = gc.Body{Data: p.Body.Data, Size: p.Body.Size}
	}
	for _, child := range p.Parts {
		if child != nil {
			part.Parts = append(part.Parts, toPart(child))
		}
	}
	return part
}

func toStrings(ids []gc.LabelID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

func toLabelIDs(ids []string) []gc.LabelID {
	out := make([]gc.LabelID, len(ids))
	for i, id := range ids {
		out[i] = gc.LabelID(id)
	}
	return out
}
