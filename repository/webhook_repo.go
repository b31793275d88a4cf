package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/anjiri1684/tutor_live/models"
	"gorm.io/gorm/clause"
)

// RecordWebhookEvent stores a delivery the first time it is seen and returns the stored row,
// whose ProcessedAt tells the caller whether it was already handled.
func (s *Store) RecordWebhookEvent(ctx context.Context, event *models.WebhookEvent) (*models.WebhookEvent, error) {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}, {Name: "provider_event_id"}},
			DoNothing: true,
		}).
		Create(event).Error
	if err != nil {
		return nil, fmt.Errorf("record webhook event: %w", err)
	}

	var stored models.WebhookEvent
	err = s.db.WithContext(ctx).
		Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error
	if err != nil {
		return nil, notFound(err, "webhook event")
	}
	return &stored, nil
}

func (s *Store) MarkWebhookEventProcessed(ctx context.Context, id uint, at time.Time) error {
	err := s.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{"processed_at": at, "processing_error": ""}).Error
	if err != nil {
		return fmt.Errorf("mark webhook event processed: %w", err)
	}
	return nil
}

// RecordWebhookFailure stores the last processing error and leaves processed_at unset, so a
// redelivery of the event is applied again.
func (s *Store) RecordWebhookFailure(ctx context.Context, id uint, processingErr string) error {
	err := s.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("id = ? AND processed_at IS NULL", id).
		Update("processing_error", processingErr).Error
	if err != nil {
		return fmt.Errorf("record webhook failure: %w", err)
	}
	return nil
}
