// Package mailbox implements search, recent and thread retrieval on top of the
// narrow gmail.Client surface.
package mailbox

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joshsymonds/inboxledger/internal/gmail"
	"github.com/joshsymonds/inboxledger/internal/rate"
)

const (
	DefaultMaxResults = 100
	DefaultPageSize   = 100
	maxPageSize       = 500
)

// Dialer opens a remote client for validated credentials.
type Dialer func(ctx context.Context, creds gmail.Credentials) (gmail.Client, error)

// Client fetches full messages and applies label filtering and result caps.
type Client struct {
	API      gmail.Client
	Limiter  rate.Limiter
	Logger   *slog.Logger
	Clock    func() time.Time
	PageSize int
	Workers  int
}

// NewClient constructs a Client with sane defaults.
func NewClient(api gmail.Client, limiter rate.Limiter, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Client{
		API:      api,
		Limiter:  limiter,
		Logger:   logger,
		Clock:    time.Now,
		PageSize: DefaultPageSize,
		Workers:  1,
	}
}

// Connect validates creds and only then dials the provider.
func Connect(
	ctx context.Context,
	creds gmail.Credentials,
	dial Dialer,
	limiter rate.Limiter,
	logger *slog.Logger,
) (*Client, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	api, err := dial(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("dial gmail: %w", err)
	}
	return NewClient(api, limiter, logger), nil
}

// Search lists messages matching criteria and returns up to MaxResults of
// them that pass filter.
func (c *Client) Search(ctx context.Context, criteria gmail.SearchCriteria, filter gmail.LabelFilter) ([]gmail.Message, error) {
	if err := criteria.Validate(); err != nil {
		return nil, err
	}
	q := gmail.Query{Raw: gmail.BuildQuery(criteria), LabelIDs: filter.Include}
	limit := criteria.MaxResults
	if limit == 0 {
		limit = DefaultMaxResults
	}
	c.Logger.InfoContext(ctx, "searching messages", slog.String("query", q.Raw), slog.Int("max_results", limit))

	acc := collector{limit: limit, accept: func(m gmail.Message) verdict {
		if !filter.Allows(m.LabelIDs) {
			return verdictSkip
		}
		return verdictKeep
	}}
	if err := c.scan(ctx, q, &acc); err != nil {
		return nil, err
	}
	return acc.kept, nil
}

// GetRecent returns up to maxResults messages under labels (INBOX when
// empty) received within the last days. Messages outside the window do not
// count against maxResults; days <= 0 disables the window.
func (c *Client) GetRecent(ctx context.Context, days, maxResults int, labels []gmail.LabelID) ([]gmail.Message, error) {
	if maxResults < 0 {
		return nil, gmail.Errorf(gmail.ErrQuery, "get recent", "max results must not be negative, got %d", maxResults)
	}
	if maxResults == 0 {
		maxResults = DefaultMaxResults
	}
	if len(labels) == 0 {
		labels = []gmail.LabelID{gmail.LabelInbox}
	}
	var cutoff time.Time
	if days > 0 {
		cutoff = c.Clock().AddDate(0, 0, -days)
	}
	c.Logger.InfoContext(ctx, "fetching recent messages",
		slog.Int("days", days), slog.Int("max_results", maxResults), slog.Any("labels", labels))

	acc := collector{limit: maxResults, accept: func(m gmail.Message) verdict {
		if !cutoff.IsZero() && m.Time().Before(cutoff) {
			return verdictStale
		}
		return verdictKeep
	}}
	if err := c.scan(ctx, gmail.Query{LabelIDs: labels}, &acc); err != nil {
		return nil, err
	}
	return acc.kept, nil
}

// ListLabels returns every label of the mailbox.
func (c *Client) ListLabels(ctx context.Context) ([]gmail.Label, error) {
	if err := rate.Wait(ctx, c.Limiter); err != nil {
		return nil, err
	}
	labels, err := c.API.ListLabels(ctx)
	if err != nil {
		return nil, asGmailError("list labels", err)
	}
	return labels, nil
}

type verdict int

const (
	verdictKeep verdict = iota
	verdictSkip
	verdictStale
)

// collector accumulates accepted messages until limit is reached.
type collector struct {
	limit  int
	accept func(gmail.Message) verdict
	kept   []gmail.Message
}

func (a *collector) remaining() int { return a.limit - len(a.kept) }

func (a *collector) full() bool { return a.remaining() <= 0 }

func (c *Client) pageSize(limit int) int {
	size := c.PageSize
	if size <= 0 || size > maxPageSize {
		size = DefaultPageSize
	}
	if limit > 0 && limit < size {
		size = limit
	}
	return size
}

// scan pages through list results and fetches message bodies window by
// window, never fetching more than the collector still needs.
func (c *Client) scan(ctx context.Context, q gmail.Query, acc *collector) error {
	token := ""
	for !acc.full() {
		if err := rate.Wait(ctx, c.Limiter); err != nil {
			return err
		}
		page, err := c.API.List(ctx, q, token, c.pageSize(acc.limit))
		if err != nil {
			return asGmailError("list messages", err)
		}

		fresh, stale := 0, 0
		ids := page.IDs
		for len(ids) > 0 && !acc.full() {
			n := min(acc.remaining(), len(ids))
			window := c.fetchWindow(ctx, ids[:n])
			if err := ctx.Err(); err != nil {
				return err
			}
			ids = ids[n:]
			for _, msg := range window {
				switch acc.accept(msg) {
				case verdictKeep:
					fresh++
					acc.kept = append(acc.kept, msg)
				case verdictSkip:
					fresh++
				case verdictStale:
					stale++
				}
			}
		}
		if page.NextPageToken == "" || len(page.IDs) == 0 {
			return nil
		}
		if stale > 0 && fresh == 0 && len(ids) == 0 {
			// a page made only of messages older than the cutoff
			c.Logger.DebugContext(ctx, "stopping scan at stale page", slog.Int("stale", stale))
			return nil
		}
		token = page.NextPageToken
	}
	return nil
}

// fetchWindow fetches ids concurrently up to c.Workers, keeping input order
// and dropping messages whose fetch failed.
func (c *Client) fetchWindow(ctx context.Context, ids []gmail.MessageID) []gmail.Message {
	type slot struct {
		msg gmail.Message
		ok  bool
	}
	slots := make([]slot, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(c.Workers, 1))
	for i, id := range ids {
		g.Go(func() error {
			msg, err := c.fetchOne(gctx, id)
			if err != nil {
				c.Logger.WarnContext(ctx, "skipping message", slog.String("id", string(id)), slog.Any("error", err))
				return nil
			}
			slots[i] = slot{msg: msg, ok: true}
			return nil
		})
	}
	_ = g.Wait()

	out := make([]gmail.Message, 0, len(ids))
	for _, s := range slots {
		if s.ok {
			out = append(out, s.msg)
		}
	}
	return out
}

func (c *Client) fetchOne(ctx context.Context, id gmail.MessageID) (gmail.Message, error) {
	if err := rate.Wait(ctx, c.Limiter); err != nil {
		return gmail.Message{}, err
	}
	return c.API.Get(ctx, id)
}
