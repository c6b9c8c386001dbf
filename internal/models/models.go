// Package models holds the persisted records of the ingest pipeline.
package models

import (
	"time"
)

// RawMessage marks a provider message as captured. MessageID is unique, which
// is what makes ingestion idempotent.
type RawMessage struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	MessageID   string    `gorm:"not null;size:64;uniqueIndex" json:"message_id"`
	ThreadID    string    `gorm:"size:64;index" json:"thread_id"`
	ExecutionID string    `gorm:"size:36;index" json:"execution_id"`
	Sender      string    `gorm:"size:255" json:"sender"`
	Subject     string    `json:"subject"`
	ReceivedAt  time.Time `json:"received_at"`
	CreatedAt   time.Time `json:"created_at"`
}

func (RawMessage) TableName() string {
	return "raw_messages"
}

// Transaction is one extracted bank transaction.
type Transaction struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	MessageID   string    `gorm:"not null;size:64;uniqueIndex" json:"message_id"`
	ExecutionID string    `gorm:"size:36;index" json:"execution_id"`
	Amount      string    `gorm:"not null;size:32" json:"amount"`
	VPA         string    `gorm:"size:255" json:"vpa,omitempty"`
	Payee       string    `gorm:"size:255" json:"payee,omitempty"`
	TxnDate     string    `gorm:"size:16" json:"txn_date,omitempty"`
	Reference   string    `gorm:"size:64" json:"reference,omitempty"`
	Category    string    `gorm:"size:8" json:"category,omitempty"`
	Sender      string    `gorm:"size:255" json:"sender"`
	Subject     string    `json:"subject"`
	ReceivedAt  time.Time `json:"received_at"`
	CreatedAt   time.Time `json:"created_at"`
}

func (Transaction) TableName() string {
	return "transactions"
}

// Execution statuses.
const (
	ExecutionRunning   = "running"
	ExecutionCompleted = "completed"
	ExecutionFailed    = "failed"
)

// Execution records one ingest run.
type Execution struct {
	ID           string     `gorm:"primaryKey;size:36" json:"id"`
	Query        string     `json:"query"`
	Processor    string     `gorm:"size:16" json:"processor"`
	Status       string     `gorm:"size:16;index" json:"status"`
	Fetched      int        `json:"fetched"`
	Inserted     int        `json:"inserted"`
	Existing     int        `json:"existing"`
	Processed    int        `json:"processed"`
	Transactions int        `json:"transactions"`
	Error        string     `json:"error,omitempty"`
	StartedAt    time.Time  `gorm:"not null" json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (Execution) TableName() string {
	return "executions"
}

// All lists every model for migration.
func All() []any {
	return []any{&Execution{}, &RawMessage{}, &Transaction{}}
}
