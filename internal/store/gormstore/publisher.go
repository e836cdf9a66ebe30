package gormstore

import (
	"context"

	"gorm.io/gorm"

	"github.com/autolog/autoanalysis/internal/apperr"
	"github.com/autolog/autoanalysis/internal/events"
	"github.com/autolog/autoanalysis/internal/models"
)

// ActivityPublisher persists every published event as an activity row.
type ActivityPublisher struct {
	db *gorm.DB
}

func NewActivityPublisher(db *gorm.DB) *ActivityPublisher {
	return &ActivityPublisher{db: db}
}

func (p *ActivityPublisher) Publish(ctx context.Context, e events.Event) error {
	activity := models.Activity{
		ProjectID: e.ProjectID,
		Topic:     e.Topic,
		ObjectID:  e.ObjectID,
		Payload:   models.JSONB(e.Payload),
	}
	if err := p.db.WithContext(ctx).Create(&activity).Error; err != nil {
		return apperr.Persistence("publish "+e.Topic, err)
	}
	return nil
}
