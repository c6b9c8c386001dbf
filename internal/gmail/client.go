package gmail

import "context"

// Client is the narrow Gmail surface required by inboxledger.
type Client interface {
	List(ctx context.Context, q Query, pageToken string, pageSize int) (ListPage, error)
	Get(ctx context.Context, id MessageID) (Message, error)
	ListThreads(ctx context.Context, q Query, pageToken string, pageSize int) (ThreadPage, error)
	GetThread(ctx context.Context, id ThreadID) ([]Message, error)
	ListLabels(ctx context.Context) ([]Label, error)
}
