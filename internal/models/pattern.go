package models

import (
	"time"
)

type PatternTemplateType string

const (
	PatternTypeString PatternTemplateType = "STRING"
	PatternTypeRegex  PatternTemplateType = "REGEX"
)

// PatternTemplate is a project-configured failure signature
type PatternTemplate struct {
	ID        int64               `json:"id" gorm:"primaryKey"`
	ProjectID int64               `json:"projectId" gorm:"not null;index"`
	Name      string              `json:"name" gorm:"not null"`
	Type      PatternTemplateType `json:"type" gorm:"type:varchar(16);not null"`
	Value     string              `json:"value" gorm:"type:text;not null"`
	Enabled   bool                `json:"enabled" gorm:"default:true"`
	CreatedAt time.Time           `json:"createdAt"`
	UpdatedAt time.Time           `json:"updatedAt"`
}

// PatternMatch links a pattern template to a test item it matched.
// The pair is the primary key, so a match is stored at most once.
type PatternMatch struct {
	PatternTemplateID int64     `json:"patternTemplateId" gorm:"primaryKey"`
	TestItemID        int64     `json:"testItemId" gorm:"primaryKey"`
	CreatedAt         time.Time `json:"createdAt"`
}

func (PatternTemplate) TableName() string {
	return "pattern_templates"
}

func (PatternMatch) TableName() string {
	return "pattern_template_test_items"
}
