package mailbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/joshsymonds/inboxledger/internal/gmail"
)

type fakeAPI struct {
	mu          sync.Mutex
	pages       []gmail.ListPage
	listErr     error
	listQueries []gmail.Query
	messages    map[gmail.MessageID]gmail.Message
	getErr      map[gmail.MessageID]error
	gets        []gmail.MessageID
	threadPages []gmail.ThreadPage
	threads     map[gmail.ThreadID][]gmail.Message
	labels      []gmail.Label
}

func (f *fakeAPI) List(ctx context.Context, q gmail.Query, pageToken string, pageSize int) (gmail.ListPage, error) {
	_ = ctx
	_ = pageToken
	_ = pageSize
	f.listQueries = append(f.listQueries, q)
	if f.listErr != nil {
		return gmail.ListPage{}, f.listErr
	}
	if len(f.pages) == 0 {
		return gmail.ListPage{}, nil
	}
	page := f.pages[0]
	f.pages = f.pages[1:]
	return page, nil
}

func (f *fakeAPI) Get(ctx context.Context, id gmail.MessageID) (gmail.Message, error) {
	_ = ctx
	f.mu.Lock()
	f.gets = append(f.gets, id)
	f.mu.Unlock()
	if err := f.getErr[id]; err != nil {
		return gmail.Message{}, err
	}
	msg, ok := f.messages[id]
	if !ok {
		return gmail.Message{}, fmt.Errorf("no message %s", id)
	}
	return msg, nil
}

func (f *fakeAPI) ListThreads(ctx context.Context, q gmail.Query, pageToken string, pageSize int) (gmail.ThreadPage, error) {
	_ = ctx
	_ = pageToken
	_ = pageSize
	f.listQueries = append(f.listQueries, q)
	if len(f.threadPages) == 0 {
		return gmail.ThreadPage{}, nil
	}
	page := f.threadPages[0]
	f.threadPages = f.threadPages[1:]
	return page, nil
}

func (f *fakeAPI) GetThread(ctx context.Context, id gmail.ThreadID) ([]gmail.Message, error) {
	_ = ctx
	msgs, ok := f.threads[id]
	if !ok {
		return nil, fmt.Errorf("no thread %s", id)
	}
	return msgs, nil
}

func (f *fakeAPI) ListLabels(ctx context.Context) ([]gmail.Label, error) {
	_ = ctx
	return f.labels, nil
}

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var now = time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC)

func msg(id string, age time.Duration, labels ...gmail.LabelID) gmail.Message {
	return gmail.Message{
		ID:           gmail.MessageID(id),
		ThreadID:     gmail.ThreadID("t-" + id),
		LabelIDs:     labels,
		InternalDate: now.Add(-age).UnixMilli(),
	}
}

func store(msgs ...gmail.Message) map[gmail.MessageID]gmail.Message {
	out := make(map[gmail.MessageID]gmail.Message, len(msgs))
	for _, m := range msgs {
		out[m.ID] = m
	}
	return out
}

func ids(msgs []gmail.Message) []gmail.MessageID {
	out := make([]gmail.MessageID, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func equalIDs(a, b []gmail.MessageID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func newTestClient(api *fakeAPI) *Client {
	c := NewClient(api, nil, slogDiscard())
	c.Clock = func() time.Time { return now }
	return c
}

func TestSearchStopsAtCap(t *testing.T) {
	api := &fakeAPI{
		pages: []gmail.ListPage{{IDs: []gmail.MessageID{"m1", "m2", "m3", "m4", "m5"}, NextPageToken: "next"}},
		messages: store(
			msg("m1", time.Hour, "INBOX"), msg("m2", time.Hour, "INBOX"), msg("m3", time.Hour, "INBOX"),
			msg("m4", time.Hour, "INBOX"), msg("m5", time.Hour, "INBOX"),
		),
	}
	client := newTestClient(api)

	got, err := client.Search(context.Background(), gmail.SearchCriteria{Sender: "alerts@bank.net", MaxResults: 2}, gmail.LabelFilter{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !equalIDs(ids(got), []gmail.MessageID{"m1", "m2"}) {
		t.Fatalf("unexpected messages %v", ids(got))
	}
	if len(api.gets) != 2 {
		t.Fatalf("expected 2 fetches, got %d (%v)", len(api.gets), api.gets)
	}
	if len(api.listQueries) != 1 || api.listQueries[0].Raw != "from:alerts@bank.net" {
		t.Fatalf("unexpected list queries %+v", api.listQueries)
	}
}

func TestSearchAppliesLabelFilterBeforeCap(t *testing.T) {
	api := &fakeAPI{
		pages: []gmail.ListPage{{IDs: []gmail.MessageID{"m1", "m2", "m3", "m4"}}},
		messages: store(
			msg("m1", time.Hour, "INBOX", "CATEGORY_PROMOTIONS"),
			msg("m2", time.Hour, "INBOX"),
			msg("m3", time.Hour, "INBOX"),
			msg("m4", time.Hour, "INBOX"),
		),
	}
	client := newTestClient(api)
	filter := gmail.LabelFilter{Include: []gmail.LabelID{"INBOX"}, Exclude: []gmail.LabelID{"CATEGORY_PROMOTIONS"}}

	got, err := client.Search(context.Background(), gmail.SearchCriteria{MaxResults: 2}, filter)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !equalIDs(ids(got), []gmail.MessageID{"m2", "m3"}) {
		t.Fatalf("unexpected messages %v", ids(got))
	}
	if len(api.gets) != 3 {
		t.Fatalf("m4 should never be fetched, gets=%v", api.gets)
	}
	if got := api.listQueries[0].LabelIDs; len(got) != 1 || got[0] != "INBOX" {
		t.Fatalf("include labels should be sent to the provider, got %v", got)
	}
}

func TestSearchPaginates(t *testing.T) {
	api := &fakeAPI{
		pages: []gmail.ListPage{
			{IDs: []gmail.MessageID{"m1"}, NextPageToken: "p2"},
			{IDs: []gmail.MessageID{"m2"}},
		},
		messages: store(msg("m1", time.Hour), msg("m2", time.Hour)),
	}
	got, err := newTestClient(api).Search(context.Background(), gmail.SearchCriteria{MaxResults: 10}, gmail.LabelFilter{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !equalIDs(ids(got), []gmail.MessageID{"m1", "m2"}) {
		t.Fatalf("unexpected messages %v", ids(got))
	}
	if len(api.listQueries) != 2 {
		t.Fatalf("expected two list calls, got %d", len(api.listQueries))
	}
}

func TestSearchSkipsFailedFetch(t *testing.T) {
	api := &fakeAPI{
		pages:    []gmail.ListPage{{IDs: []gmail.MessageID{"m1", "m2", "m3"}}},
		messages: store(msg("m1", time.Hour), msg("m3", time.Hour)),
		getErr:   map[gmail.MessageID]error{"m2": errors.New("backend unavailable")},
	}
	got, err := newTestClient(api).Search(context.Background(), gmail.SearchCriteria{MaxResults: 5}, gmail.LabelFilter{})
	if err != nil {
		t.Fatalf("per message failures must not abort: %v", err)
	}
	if !equalIDs(ids(got), []gmail.MessageID{"m1", "m3"}) {
		t.Fatalf("unexpected messages %v", ids(got))
	}
}

func TestSearchListFailureIsFatal(t *testing.T) {
	api := &fakeAPI{listErr: errors.New("quota")}
	_, err := newTestClient(api).Search(context.Background(), gmail.SearchCriteria{}, gmail.LabelFilter{})
	if !errors.Is(err, gmail.ErrGmail) {
		t.Fatalf("expected ErrGmail, got %v", err)
	}
}

func TestSearchRejectsBadCriteria(t *testing.T) {
	api := &fakeAPI{}
	_, err := newTestClient(api).Search(context.Background(), gmail.SearchCriteria{MaxResults: -3}, gmail.LabelFilter{})
	if !errors.Is(err, gmail.ErrQuery) {
		t.Fatalf("expected ErrQuery, got %v", err)
	}
	if len(api.listQueries) != 0 {
		t.Fatalf("no remote call expected before validation")
	}
}

func TestSearchConcurrentFetchKeepsOrder(t *testing.T) {
	var all []gmail.Message
	var list []gmail.MessageID
	for i := 0; i < 20; i++ {
		m := msg(fmt.Sprintf("m%02d", i), time.Hour)
		all = append(all, m)
		list = append(list, m.ID)
	}
	api := &fakeAPI{pages: []gmail.ListPage{{IDs: list}}, messages: store(all...)}
	client := newTestClient(api)
	client.Workers = 4

	got, err := client.Search(context.Background(), gmail.SearchCriteria{MaxResults: 15}, gmail.LabelFilter{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !equalIDs(ids(got), list[:15]) {
		t.Fatalf("order not preserved: %v", ids(got))
	}
	if len(api.gets) != 15 {
		t.Fatalf("expected 15 fetches, got %d", len(api.gets))
	}
}

func TestGetRecentFilterThenCap(t *testing.T) {
	api := &fakeAPI{
		pages: []gmail.ListPage{{IDs: []gmail.MessageID{"old", "new1", "new2", "new3"}}},
		messages: store(
			msg("old", 10*24*time.Hour, "INBOX"),
			msg("new1", time.Hour, "INBOX"),
			msg("new2", 2*time.Hour, "INBOX"),
			msg("new3", 3*time.Hour, "INBOX"),
		),
	}
	got, err := newTestClient(api).GetRecent(context.Background(), 7, 2, nil)
	if err != nil {
		t.Fatalf("get recent: %v", err)
	}
	if !equalIDs(ids(got), []gmail.MessageID{"new1", "new2"}) {
		t.Fatalf("stale message must not count against the cap: %v", ids(got))
	}
	if q := api.listQueries[0]; len(q.LabelIDs) != 1 || q.LabelIDs[0] != gmail.LabelInbox || q.Raw != "" {
		t.Fatalf("expected INBOX label listing, got %+v", q)
	}
}

func TestGetRecentZeroDaysDisablesCutoff(t *testing.T) {
	api := &fakeAPI{
		pages:    []gmail.ListPage{{IDs: []gmail.MessageID{"ancient", "fresh"}}},
		messages: store(msg("ancient", 400*24*time.Hour), msg("fresh", time.Minute)),
	}
	got, err := newTestClient(api).GetRecent(context.Background(), 0, 10, []gmail.LabelID{"Label_1"})
	if err != nil {
		t.Fatalf("get recent: %v", err)
	}
	if !equalIDs(ids(got), []gmail.MessageID{"ancient", "fresh"}) {
		t.Fatalf("unexpected messages %v", ids(got))
	}
}

func TestGetRecentStopsAtStalePage(t *testing.T) {
	api := &fakeAPI{
		pages: []gmail.ListPage{
			{IDs: []gmail.MessageID{"new1"}, NextPageToken: "p2"},
			{IDs: []gmail.MessageID{"old1", "old2"}, NextPageToken: "p3"},
			{IDs: []gmail.MessageID{"never"}},
		},
		messages: store(
			msg("new1", time.Hour),
			msg("old1", 30*24*time.Hour),
			msg("old2", 31*24*time.Hour),
			msg("never", time.Hour),
		),
	}
	got, err := newTestClient(api).GetRecent(context.Background(), 7, 10, nil)
	if err != nil {
		t.Fatalf("get recent: %v", err)
	}
	if !equalIDs(ids(got), []gmail.MessageID{"new1"}) {
		t.Fatalf("unexpected messages %v", ids(got))
	}
	if len(api.listQueries) != 2 {
		t.Fatalf("scan should end after the stale page, list calls=%d", len(api.listQueries))
	}
}

func TestConnectValidatesBeforeDial(t *testing.T) {
	dialed := false
	dial := func(ctx context.Context, creds gmail.Credentials) (gmail.Client, error) {
		_ = ctx
		_ = creds
		dialed = true
		return &fakeAPI{}, nil
	}

	_, err := Connect(context.Background(), gmail.Credentials{Token: "t"}, dial, nil, slogDiscard())
	if !errors.Is(err, gmail.ErrAuth) {
		t.Fatalf("expected ErrAuth, got %v", err)
	}
	if dialed {
		t.Fatalf("dial must not run for invalid credentials")
	}

	creds := gmail.Credentials{Token: "t", RefreshToken: "r", ClientID: "id", ClientSecret: "s"}
	client, err := Connect(context.Background(), creds, dial, nil, slogDiscard())
	if err != nil || client == nil || !dialed {
		t.Fatalf("expected successful connect, err=%v", err)
	}
}

func TestSearchThreads(t *testing.T) {
	api := &fakeAPI{
		threadPages: []gmail.ThreadPage{{IDs: []gmail.ThreadID{"t1", "broken", "t2"}}},
		threads: map[gmail.ThreadID][]gmail.Message{
			"t1": {msg("a", time.Hour, "INBOX"), msg("b", time.Hour, "INBOX", "SPAM")},
			"t2": {msg("c", time.Hour, "INBOX"), msg("d", time.Hour, "INBOX")},
		},
	}
	filter := gmail.LabelFilter{Exclude: []gmail.LabelID{"SPAM"}}

	batch, err := newTestClient(api).SearchThreads(context.Background(), gmail.SearchCriteria{Subject: "txn", MaxResults: 2}, filter)
	if err != nil {
		t.Fatalf("search threads: %v", err)
	}
	if batch.Threads != 2 {
		t.Fatalf("expected 2 threads loaded, got %d", batch.Threads)
	}
	if !equalIDs(ids(batch.Messages), []gmail.MessageID{"a", "c"}) {
		t.Fatalf("unexpected messages %v", ids(batch.Messages))
	}
}

func TestListLabels(t *testing.T) {
	client := newTestClient(&fakeAPI{labels: []gmail.Label{{ID: "INBOX", Name: "INBOX", Type: "system"}}})
	labels, err := client.ListLabels(context.Background())
	if err != nil || len(labels) != 1 {
		t.Fatalf("labels=%v err=%v", labels, err)
	}
}
