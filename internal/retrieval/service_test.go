package retrieval

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/joshsymonds/inboxledger/internal/gmail"
	"github.com/joshsymonds/inboxledger/internal/mailbox"
	"github.com/joshsymonds/inboxledger/internal/processor"
)

type fakeAPI struct {
	ids        []gmail.MessageID
	messages   map[gmail.MessageID]gmail.Message
	labels     []gmail.Label
	labelsErr  error
	labelCalls int
	queries    []string
}

func (f *fakeAPI) List(ctx context.Context, q gmail.Query, pageToken string, pageSize int) (gmail.ListPage, error) {
	_ = ctx
	_ = pageToken
	_ = pageSize
	f.queries = append(f.queries, q.Raw)
	return gmail.ListPage{IDs: f.ids}, nil
}

func (f *fakeAPI) Get(ctx context.Context, id gmail.MessageID) (gmail.Message, error) {
	_ = ctx
	m, ok := f.messages[id]
	if !ok {
		return gmail.Message{}, errors.New("missing")
	}
	return m, nil
}

func (f *fakeAPI) ListThreads(ctx context.Context, q gmail.Query, pageToken string, pageSize int) (gmail.ThreadPage, error) {
	_ = ctx
	_ = q
	_ = pageToken
	_ = pageSize
	return gmail.ThreadPage{}, nil
}

func (f *fakeAPI) GetThread(ctx context.Context, id gmail.ThreadID) ([]gmail.Message, error) {
	_ = ctx
	_ = id
	return nil, nil
}

func (f *fakeAPI) ListLabels(ctx context.Context) ([]gmail.Label, error) {
	_ = ctx
	f.labelCalls++
	if f.labelsErr != nil {
		return nil, f.labelsErr
	}
	return f.labels, nil
}

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var now = time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC)

func alert(id, html string, labels ...gmail.LabelID) gmail.Message {
	parts := []gmail.Part{{MimeType: "text/plain", Body: gmail.Body{Data: gmail.Encode([]byte("plain"))}}}
	if html != "" {
		parts = append(parts, gmail.Part{MimeType: "text/html", Body: gmail.Body{Data: gmail.Encode([]byte(html))}})
	}
	return gmail.Message{
		ID:           gmail.MessageID(id),
		ThreadID:     gmail.ThreadID(id),
		LabelIDs:     labels,
		InternalDate: now.Add(-time.Hour).UnixMilli(),
		Payload: gmail.Part{
			MimeType: "multipart/alternative",
			Headers: []gmail.Header{
				{Name: "From", Value: "alerts@bank.net"},
				{Name: "Subject", Value: "txn alert"},
			},
			Parts: parts,
		},
	}
}

func newFixture() (*fakeAPI, *Service) {
	api := &fakeAPI{
		ids: []gmail.MessageID{"m1", "m2", "m3"},
		messages: map[gmail.MessageID]gmail.Message{
			"m1": alert("m1", "<p>Rs.450.00 sent to VPA shop@okaxis on 12-05-24</p>", gmail.LabelInbox, "Label_7"),
			"m2": alert("m2", "", gmail.LabelInbox),
			"m3": alert("m3", "<p>INR 1,200.50 debited</p>", gmail.LabelInbox),
		},
		labels: []gmail.Label{
			{ID: gmail.LabelInbox, Name: "INBOX", Type: "system"},
			{ID: "Label_7", Name: "Bank", Type: "user"},
		},
	}
	mb := mailbox.NewClient(api, nil, slogDiscard())
	mb.Clock = func() time.Time { return now }
	p := processor.NewRegex(nil, processor.BankFields(), slogDiscard())
	return api, NewService(mb, p, slogDiscard())
}

func TestSearchAndProcessKeepsEveryMessage(t *testing.T) {
	api, svc := newFixture()
	criteria := gmail.SearchCriteria{Sender: "alerts@bank.net", Subject: "txn"}.Within(now, 7)

	records, err := svc.SearchAndProcess(context.Background(), criteria, gmail.LabelFilter{})
	if err != nil {
		t.Fatalf("SearchAndProcess: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want 3", len(records))
	}
	withAmount := 0
	for _, r := range records {
		if v, _ := r.Content.Fields.Get("amount"); v != nil {
			withAmount++
		}
	}
	if withAmount != 2 {
		t.Fatalf("records with amount = %d, want 2", withAmount)
	}
	if got := records[1]; got.Status != processor.StatusNoContent || got.Error != "no content" {
		t.Fatalf("m2 = %s %q, want no_content", got.Status, got.Error)
	}
	if got := records[2].Content.Fields.Value("amount"); got != "1,200.50" {
		t.Fatalf("m3 amount = %q", got)
	}
	if len(api.queries) != 1 || api.queries[0] != "from:alerts@bank.net after:2024/05/13 subject:txn" {
		t.Fatalf("queries = %q", api.queries)
	}
}

func TestRecordsCarryLabelNames(t *testing.T) {
	api, svc := newFixture()
	api.messages["m1"] = alert("m1", "<p>x</p>", gmail.LabelInbox, "Label_7", "Label_gone")

	records, err := svc.RecentProcessed(context.Background(), 7, 1, nil)
	if err != nil {
		t.Fatalf("RecentProcessed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d", len(records))
	}
	want := []string{"INBOX", "Bank", "Label_gone"}
	got := records[0].Labels
	if len(got) != len(want) {
		t.Fatalf("labels = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("labels = %v, want %v", got, want)
		}
	}
}

func TestLabelsAreCached(t *testing.T) {
	api, svc := newFixture()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := svc.Labels(ctx); err != nil {
			t.Fatalf("Labels: %v", err)
		}
	}
	if _, err := svc.RecentProcessed(ctx, 7, 0, nil); err != nil {
		t.Fatalf("RecentProcessed: %v", err)
	}
	if api.labelCalls != 1 {
		t.Fatalf("ListLabels called %d times, want 1", api.labelCalls)
	}
}

func TestLabelFailureIsCallLevel(t *testing.T) {
	api, svc := newFixture()
	api.labelsErr = errors.New("boom")

	_, err := svc.SearchAndProcess(context.Background(), gmail.SearchCriteria{}, gmail.LabelFilter{})
	if !errors.Is(err, gmail.ErrGmail) {
		t.Fatalf("err = %v, want ErrGmail", err)
	}
}

func TestSearchErrorsPropagate(t *testing.T) {
	_, svc := newFixture()
	_, err := svc.SearchAndProcess(context.Background(), gmail.SearchCriteria{MaxResults: -1}, gmail.LabelFilter{})
	if !errors.Is(err, gmail.ErrQuery) {
		t.Fatalf("err = %v, want ErrQuery", err)
	}
}
