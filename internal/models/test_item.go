package models

import (
	"strings"
	"time"
)

// Issue locators of the predefined "to investigate" defect group.
const (
	ToInvestigateLocator = "ti001"
)

type TestItem struct {
	ID           int64     `json:"id" gorm:"primaryKey"`
	LaunchID     int64     `json:"launchId" gorm:"not null;index"`
	ParentID     *int64    `json:"parentId" gorm:"index"`
	Name         string    `json:"name" gorm:"not null"`
	UniqueID     string    `json:"uniqueId"`
	TestCaseHash int32     `json:"testCaseHash"`
	Path         string    `json:"path" gorm:"index"` // dot separated ancestor ids, ending with own id
	HasChildren  bool      `json:"hasChildren"`
	HasStats     bool      `json:"hasStats" gorm:"default:true"` // false for nested steps
	Status       Status    `json:"status" gorm:"type:varchar(16)"`
	StartTime    time.Time `json:"startTime"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`

	Issue *Issue `json:"issue,omitempty" gorm:"foreignKey:ItemID;references:ID"`
}

// Issue is the defect classification attached to a failed item
type Issue struct {
	ItemID           int64  `json:"itemId" gorm:"primaryKey"`
	IssueTypeLocator string `json:"issueType" gorm:"not null"`
	Description      string `json:"description" gorm:"type:text"`
	AutoAnalyzed     bool   `json:"autoAnalyzed"`
	IgnoreAnalyzer   bool   `json:"ignoreAnalyzer"`
}

// IsToInvestigate reports whether locator belongs to the "to investigate"
// group, custom subtypes included.
func IsToInvestigate(locator string) bool {
	return strings.HasPrefix(locator, "ti")
}

// Analyzable reports whether the item can be sent to an analyzer.
func (t TestItem) Analyzable() bool {
	return t.HasStats && t.Issue != nil && !t.Issue.IgnoreAnalyzer
}

// MatchesMode reports whether an analyzable item falls under mode.
func (t TestItem) MatchesMode(mode AnalyzeItemsMode) bool {
	if !t.Analyzable() {
		return false
	}
	ti := IsToInvestigate(t.Issue.IssueTypeLocator)
	switch mode {
	case AnalyzeModeToInvestigate:
		return ti
	case AnalyzeModeAutoAnalyzed:
		return !ti && t.Issue.AutoAnalyzed
	case AnalyzeModeManuallyAnalyzed:
		return !ti && !t.Issue.AutoAnalyzed
	}
	return false
}

func (TestItem) TableName() string {
	return "test_items"
}

func (Issue) TableName() string {
	return "issues"
}
