package models

import (
	"strconv"
)

// Project attribute keys holding analyzer settings
const (
	AttrAutoAnalyzerEnabled        = "analyzer.isAutoAnalyzerEnabled"
	AttrAutoPatternAnalysisEnabled = "analyzer.isAutoPatternAnalysisEnabled"
	AttrMinShouldMatch             = "analyzer.minShouldMatch"
	AttrSearchLogsMinShouldMatch   = "analyzer.searchLogsMinShouldMatch"
	AttrNumberOfLogLines           = "analyzer.numberOfLogLines"
	AttrAutoAnalyzerMode           = "analyzer.autoAnalyzerMode"
	AttrAllMessagesShouldMatch     = "analyzer.allMessagesShouldMatch"
	AttrIndexingRunning            = "analyzer.indexingRunning"
)

const (
	DefaultMinShouldMatch           = 95
	DefaultSearchLogsMinShouldMatch = 95
	DefaultNumberOfLogLines         = -1
	DefaultAutoAnalyzerMode         = "LAUNCH_NAME"
)

type ProjectAttribute struct {
	ProjectID int64  `json:"projectId" gorm:"primaryKey"`
	Key       string `json:"key" gorm:"primaryKey"`
	Value     string `json:"value"`
}

func (ProjectAttribute) TableName() string {
	return "project_attributes"
}

// AnalyzerConfig is the per-project analyzer configuration sent along with
// every analyze/index request.
type AnalyzerConfig struct {
	AutoAnalyzerEnabled        bool     `json:"isAutoAnalyzerEnabled"`
	AutoPatternAnalysisEnabled bool     `json:"-"`
	MinShouldMatch             int      `json:"minShouldMatch"`
	SearchLogsMinShouldMatch   int      `json:"searchLogsMinShouldMatch"`
	NumberOfLogLines           int      `json:"numberOfLogLines"`
	AnalyzerMode               string   `json:"analyzerMode"`
	AllMessagesShouldMatch     bool     `json:"allMessagesShouldMatch"`
	IndexingRunning            bool     `json:"indexingRunning"`
	LogLevelFloor              LogLevel `json:"-"`
}

// AnalyzerConfigFromAttributes resolves an AnalyzerConfig from project
// attributes, falling back to defaults for missing or malformed values.
func AnalyzerConfigFromAttributes(attrs map[string]string) AnalyzerConfig {
	return AnalyzerConfig{
		AutoAnalyzerEnabled:        parseBool(attrs[AttrAutoAnalyzerEnabled]),
		AutoPatternAnalysisEnabled: parseBool(attrs[AttrAutoPatternAnalysisEnabled]),
		MinShouldMatch:             parseInt(attrs[AttrMinShouldMatch], DefaultMinShouldMatch),
		SearchLogsMinShouldMatch:   parseInt(attrs[AttrSearchLogsMinShouldMatch], DefaultSearchLogsMinShouldMatch),
		NumberOfLogLines:           parseInt(attrs[AttrNumberOfLogLines], DefaultNumberOfLogLines),
		AnalyzerMode:               stringOr(attrs[AttrAutoAnalyzerMode], DefaultAutoAnalyzerMode),
		AllMessagesShouldMatch:     parseBool(attrs[AttrAllMessagesShouldMatch]),
		IndexingRunning:            parseBool(attrs[AttrIndexingRunning]),
		LogLevelFloor:              LogLevelError,
	}
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(s)
	return err == nil && b
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func stringOr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// AnalyzeItemsMode selects which items of a launch are sent to analysis
type AnalyzeItemsMode string

const (
	AnalyzeModeToInvestigate    AnalyzeItemsMode = "TO_INVESTIGATE"
	AnalyzeModeAutoAnalyzed     AnalyzeItemsMode = "AUTO_ANALYZED"
	AnalyzeModeManuallyAnalyzed AnalyzeItemsMode = "MANUALLY_ANALYZED"
)

func ParseAnalyzeItemsMode(s string) (AnalyzeItemsMode, bool) {
	switch m := AnalyzeItemsMode(s); m {
	case AnalyzeModeToInvestigate, AnalyzeModeAutoAnalyzed, AnalyzeModeManuallyAnalyzed:
		return m, true
	}
	return "", false
}
