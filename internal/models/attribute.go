package models

import (
	"time"
)

// ItemAttribute is a key/value pair attached to a launch or a test item
type ItemAttribute struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	LaunchID  *int64    `json:"launchId" gorm:"index"`
	ItemID    *int64    `json:"itemId" gorm:"index"`
	Key       string    `json:"key" gorm:"index"`
	Value     string    `json:"value" gorm:"not null"`
	System    bool      `json:"system"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (ItemAttribute) TableName() string {
	return "item_attributes"
}
