package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/joshsymonds/inboxledger/internal/models"
)

// RawMessageRepository tracks which provider messages were captured.
type RawMessageRepository interface {
	// InsertIfAbsent creates msg or returns ErrDuplicateEntry when its
	// MessageID is already stored.
	InsertIfAbsent(ctx context.Context, msg *models.RawMessage) error
	// ExistingIDs returns the subset of ids already stored.
	ExistingIDs(ctx context.Context, ids []string) (map[string]bool, error)
	GetByMessageID(ctx context.Context, messageID string) (*models.RawMessage, error)
	CountByExecution(ctx context.Context, executionID string) (int64, error)
}

type rawMessageRepository struct {
	db *gorm.DB
}

func NewRawMessageRepository(db *gorm.DB) RawMessageRepository {
	return &rawMessageRepository{db: db}
}

func (r *rawMessageRepository) InsertIfAbsent(ctx context.Context, msg *models.RawMessage) error {
	if msg == nil || msg.MessageID == "" {
		return fmt.Errorf("insert raw message: %w", ErrInvalidInput)
	}
	result := r.db.WithContext(ctx).Create(msg)
	if result.Error != nil {
		if isDuplicateKeyError(result.Error) {
			return fmt.Errorf("raw message %s already stored: %w", msg.MessageID, ErrDuplicateEntry)
		}
		return fmt.Errorf("insert raw message: %w", result.Error)
	}
	return nil
}

func (r *rawMessageRepository) ExistingIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	found := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return found, nil
	}
	var stored []string
	err := r.db.WithContext(ctx).
		Model(&models.RawMessage{}).
		Where("message_id IN ?", ids).
		Pluck("message_id", &stored).Error
	if err != nil {
		return nil, fmt.Errorf("query existing raw messages: %w", err)
	}
	for _, id := range stored {
		found[id] = true
	}
	return found, nil
}

func (r *rawMessageRepository) GetByMessageID(ctx context.Context, messageID string) (*models.RawMessage, error) {
	var msg models.RawMessage
	result := r.db.WithContext(ctx).Where("message_id = ?", messageID).First(&msg)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get raw message: %w", result.Error)
	}
	return &msg, nil
}

func (r *rawMessageRepository) CountByExecution(ctx context.Context, executionID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.RawMessage{}).Where("execution_id = ?", executionID).Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count raw messages: %w", err)
	}
	return n, nil
}
