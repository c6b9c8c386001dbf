// Package processor turns raw messages into structured records. Processors
// compose: html wraps base, regex and llm wrap html.
package processor

import (
	"context"
	"time"

	"github.com/joshsymonds/inboxledger/internal/gmail"
)

// Processor is the single capability every stage implements. Process never
// fails outright; problems are reported through Result.Status and Error.
type Processor interface {
	Name() string
	Process(ctx context.Context, msg gmail.Message) Result
}

type Status string

const (
	StatusOK        Status = "ok"
	StatusNoContent Status = "no_content"
	StatusNoMatch   Status = "no_match"
	StatusError     Status = "error"
)

type Metadata struct {
	ID            gmail.MessageID `json:"message_id"`
	ThreadID      gmail.ThreadID  `json:"thread_id"`
	Date          time.Time       `json:"date"`
	Subject       string          `json:"subject"`
	Sender        string          `json:"sender"`
	SenderAddress string          `json:"sender_address,omitempty"`
	Recipient     string          `json:"recipient"`
	LabelIDs      []gmail.LabelID `json:"label_ids"`
	Snippet       string          `json:"snippet"`
}

type Element struct {
	HTML string `json:"html"`
	Text string `json:"text"`
}

// Analysis is filled by the llm stage. Category stays nil until the batch is
// clustered.
type Analysis struct {
	Processed bool    `json:"processed"`
	Category  *string `json:"category"`
	Error     string  `json:"error,omitempty"`
}

type Content struct {
	Body     string    `json:"body,omitempty"`
	HTML     string    `json:"html,omitempty"`
	Text     string    `json:"text,omitempty"`
	Elements []Element `json:"elements,omitempty"`
	Count    int       `json:"count,omitempty"`
	Fields   Fields    `json:"fields,omitempty"`
	Analysis *Analysis `json:"llm_analysis,omitempty"`
}

// Result is one processed message.
type Result struct {
	Metadata  Metadata `json:"metadata"`
	Processor string   `json:"processor"`
	Status    Status   `json:"status"`
	Content   Content  `json:"decoded_content"`
	Error     string   `json:"error,omitempty"`
}

func (r Result) OK() bool { return r.Status == StatusOK }

// fail marks r as failed with err.
func (r Result) fail(err error) Result {
	r.Status = StatusError
	r.Error = err.Error()
	return r
}

// upstreamError explains a non-ok upstream result.
func upstreamError(r Result) string {
	switch {
	case r.Error != "":
		return r.Error
	case r.Status == StatusNoContent:
		return "no content"
	case r.Status == StatusNoMatch:
		return "no matching elements"
	default:
		return string(r.Status)
	}
}
