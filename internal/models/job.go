package models

import (
	"time"
)

type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

type JobType string

const (
	JobTypeAutoAnalysis      JobType = "auto_analysis"
	JobTypeProjectIndex      JobType = "project_index"
	JobTypePatternAnalysis   JobType = "pattern_analysis"
	JobTypeClusterGeneration JobType = "cluster_generation"
)

type Job struct {
	ID          string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Type        JobType    `json:"type" gorm:"not null"`
	ProjectID   int64      `json:"projectId" gorm:"index"`
	LaunchID    *int64     `json:"launchId" gorm:"index"`
	Status      JobStatus  `json:"status" gorm:"not null;default:'pending'"`
	Result      JSONB      `json:"result" gorm:"type:jsonb"`
	Error       string     `json:"error"`
	StartedAt   *time.Time `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func (Job) TableName() string {
	return "jobs"
}
