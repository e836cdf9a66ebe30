package models

import (
	"time"
)

type LaunchMode string

const (
	LaunchModeDefault LaunchMode = "DEFAULT"
	LaunchModeDebug   LaunchMode = "DEBUG"
)

type Status string

const (
	StatusInProgress  Status = "IN_PROGRESS"
	StatusPassed      Status = "PASSED"
	StatusFailed      Status = "FAILED"
	StatusStopped     Status = "STOPPED"
	StatusSkipped     Status = "SKIPPED"
	StatusInterrupted Status = "INTERRUPTED"
)

// Launch is one execution run of a test suite
type Launch struct {
	ID        int64      `json:"id" gorm:"primaryKey"`
	UUID      string     `json:"uuid" gorm:"uniqueIndex;not null"`
	ProjectID int64      `json:"projectId" gorm:"not null;index"`
	Name      string     `json:"name" gorm:"not null"`
	Number    int64      `json:"number"`
	Mode      LaunchMode `json:"mode" gorm:"type:varchar(16);not null;default:'DEFAULT'"`
	Status    Status     `json:"status" gorm:"type:varchar(16);not null"`
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func (Launch) TableName() string {
	return "launches"
}
