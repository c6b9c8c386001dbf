package mailbox

import (
	"context"
	"errors"
	"log/slog"

	"github.com/joshsymonds/inboxledger/internal/gmail"
	"github.com/joshsymonds/inboxledger/internal/rate"
)

// ThreadBatch is the result of a thread based search.
type ThreadBatch struct {
	Threads  int
	Messages []gmail.Message
}

// SearchThreads lists threads matching criteria and flattens their messages
// in thread order, applying the same label filter and cap as Search. A thread
// that fails to load is logged and skipped.
func (c *Client) SearchThreads(ctx context.Context, criteria gmail.SearchCriteria, filter gmail.LabelFilter) (ThreadBatch, error) {
	if err := criteria.Validate(); err != nil {
		return ThreadBatch{}, err
	}
	q := gmail.Query{Raw: gmail.BuildQuery(criteria), LabelIDs: filter.Include}
	limit := criteria.MaxResults
	if limit == 0 {
		limit = DefaultMaxResults
	}
	c.Logger.InfoContext(ctx, "searching threads", slog.String("query", q.Raw), slog.Int("max_results", limit))

	var (
		batch ThreadBatch
		token string
	)
	for len(batch.Messages) < limit {
		if err := rate.Wait(ctx, c.Limiter); err != nil {
			return ThreadBatch{}, err
		}
		page, err := c.API.ListThreads(ctx, q, token, c.pageSize(0))
		if err != nil {
			return ThreadBatch{}, asGmailError("list threads", err)
		}
		for _, id := range page.IDs {
			if len(batch.Messages) >= limit {
				break
			}
			msgs, err := c.fetchThread(ctx, id)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ThreadBatch{}, ctxErr
				}
				c.Logger.WarnContext(ctx, "skipping thread", slog.String("thread", string(id)), slog.Any("error", err))
				continue
			}
			batch.Threads++
			for _, m := range msgs {
				if len(batch.Messages) >= limit {
					break
				}
				if filter.Allows(m.LabelIDs) {
					batch.Messages = append(batch.Messages, m)
				}
			}
		}
		if page.NextPageToken == "" {
			break
		}
		token = page.NextPageToken
	}
	return batch, nil
}

func (c *Client) fetchThread(ctx context.Context, id gmail.ThreadID) ([]gmail.Message, error) {
	if err := rate.Wait(ctx, c.Limiter); err != nil {
		return nil, err
	}
	return c.API.GetThread(ctx, id)
}

// asGmailError keeps typed errors and tags anything else as a remote failure.
func asGmailError(op string, err error) error {
	var typed *gmail.Error
	if errors.As(err, &typed) {
		return err
	}
	return gmail.Wrap(gmail.ErrGmail, op, err)
}
