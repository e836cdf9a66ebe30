package models

import (
	"time"
)

// Cluster groups semantically similar failure logs of a launch
type Cluster struct {
	ID        int64     `json:"id" gorm:"primaryKey"`
	IndexID   int64     `json:"indexId" gorm:"not null;index"` // id assigned by the analyzer
	ProjectID int64     `json:"projectId" gorm:"not null"`
	LaunchID  int64     `json:"launchId" gorm:"not null;index"`
	Message   string    `json:"message" gorm:"type:text"`
	CreatedAt time.Time `json:"createdAt"`
}

type ClusterTestItem struct {
	ClusterID int64 `json:"clusterId" gorm:"primaryKey"`
	ItemID    int64 `json:"itemId" gorm:"primaryKey"`
}

func (Cluster) TableName() string {
	return "clusters"
}

func (ClusterTestItem) TableName() string {
	return "clusters_test_items"
}
