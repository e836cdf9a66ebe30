package models

import (
	"time"
)

// Activity is a published domain event, persisted by the database-backed
// event bus.
type Activity struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	ProjectID int64     `json:"projectId" gorm:"index"`
	Topic     string    `json:"topic" gorm:"not null;index"`
	ObjectID  int64     `json:"objectId"`
	Payload   JSONB     `json:"payload" gorm:"type:jsonb"`
	CreatedAt time.Time `json:"createdAt"`
}

func (Activity) TableName() string {
	return "activities"
}
