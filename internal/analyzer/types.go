package analyzer

import (
	"time"

	"github.com/autolog/autoanalysis/internal/models"
)

// Capability is a feature an analyzer backend declares on registration
type Capability string

const (
	CapabilityAnalyze Capability = "analyze"
	CapabilityIndex   Capability = "index"
	CapabilitySearch  Capability = "search"
	CapabilitySuggest Capability = "suggest"
	CapabilityCluster Capability = "cluster"
)

func ParseCapability(s string) (Capability, bool) {
	switch c := Capability(s); c {
	case CapabilityAnalyze, CapabilityIndex, CapabilitySearch, CapabilitySuggest, CapabilityCluster:
		return c, true
	}
	return "", false
}

// Descriptor describes a registered analyzer backend. Lower Priority values
// are preferred unless the client is configured otherwise.
type Descriptor struct {
	ID           string       `json:"id"`
	Priority     int          `json:"priority"`
	Capabilities []Capability `json:"capabilities"`
	Endpoint     string       `json:"endpoint"`
	RegisteredAt time.Time    `json:"registeredAt"`
	LastSeen     time.Time    `json:"lastSeen"`

	seq uint64
}

func (d Descriptor) Supports(c Capability) bool {
	for _, have := range d.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

func (d Descriptor) SupportsIndexing() bool   { return d.Supports(CapabilityIndex) }
func (d Descriptor) SupportsClustering() bool { return d.Supports(CapabilityCluster) }

// Routes understood by analyzer backends
const (
	RouteAnalyze       = "analyze"
	RouteSearch        = "search"
	RouteCluster       = "cluster"
	RouteIndex         = "index"
	RouteItemRemove    = "item_remove"
	RouteLaunchRemove  = "launch_remove"
	RouteClean         = "clean"
	RouteDelete        = "delete"
	RouteDefectUpdate  = "defect_update"
	RouteSuggest       = "suggest"
	RouteSuggestInfo   = "suggest_info"
	RouteRemoveSuggest = "remove_suggest"
)

const deleteIndexSuccess = 1

type IndexLog struct {
	LogID     int64  `json:"logId"`
	LogLevel  int    `json:"logLevel"`
	Message   string `json:"message"`
	ClusterID int64  `json:"clusterId,omitempty"`
}

type IndexTestItem struct {
	TestItemID       int64      `json:"testItemId"`
	TestItemName     string     `json:"testItemName"`
	UniqueID         string     `json:"uniqueId"`
	TestCaseHash     int32      `json:"testCaseHash"`
	IssueTypeLocator string     `json:"issueType"`
	AutoAnalyzed     bool       `json:"isAutoAnalyzed"`
	StartTime        time.Time  `json:"startTime"`
	Logs             []IndexLog `json:"logs"`
}

// IndexLaunch is the launch snapshot sent for analysis or indexing
type IndexLaunch struct {
	LaunchID       int64                 `json:"launchId"`
	LaunchName     string                `json:"launchName"`
	LaunchNumber   int64                 `json:"launchNumber"`
	ProjectID      int64                 `json:"project"`
	AnalyzerConfig models.AnalyzerConfig `json:"analyzerConfig"`
	TestItems      []IndexTestItem       `json:"testItems"`
}

// LogCount returns the number of logs across all items of the snapshot.
func (l IndexLaunch) LogCount() int {
	n := 0
	for _, it := range l.TestItems {
		n += len(it.Logs)
	}
	return n
}

func (l IndexLaunch) ItemIDs() []int64 {
	ids := make([]int64, 0, len(l.TestItems))
	for _, it := range l.TestItems {
		ids = append(ids, it.TestItemID)
	}
	return ids
}

type IndexResult struct {
	Took int64 `json:"took"`
}

// AnalyzedItem is one backend's proposal for a single test item
type AnalyzedItem struct {
	ItemID         int64  `json:"testItemId"`
	Locator        string `json:"issueType"`
	RelevantItemID *int64 `json:"relevantItemId,omitempty"`
}

// Proposal is an AnalyzedItem tagged with the backend that produced it
type Proposal struct {
	AnalyzerID string
	Priority   int
	Item       AnalyzedItem

	seq uint64
}

type SearchRq struct {
	LaunchID          int64    `json:"launchId"`
	LaunchName        string   `json:"launchName"`
	ItemID            int64    `json:"itemId"`
	ProjectID         int64    `json:"projectId"`
	FilteredLaunchIDs []int64  `json:"filteredLaunchIds,omitempty"`
	LogMessages       []string `json:"logMessages"`
	LogLines          int      `json:"logLines"`
	MinShouldMatch    int      `json:"searchLogsMinShouldMatch"`
}

type SearchResult struct {
	LogID  int64 `json:"logId"`
	ItemID int64 `json:"testItemId"`
}

type GenerateClustersRq struct {
	Launch           IndexLaunch `json:"launch"`
	Project          int64       `json:"project"`
	CleanNumbers     bool        `json:"cleanNumbers"`
	ForUpdate        bool        `json:"forUpdate"`
	NumberOfLogLines int         `json:"numberOfLogLines"`
}

type ClusterInfo struct {
	Index   int64   `json:"clusterId"`
	Message string  `json:"clusterMessage"`
	LogIDs  []int64 `json:"logIds"`
	ItemIDs []int64 `json:"itemIds"`
}

type ClusterData struct {
	Project  int64         `json:"project"`
	LaunchID int64         `json:"launchId"`
	Clusters []ClusterInfo `json:"clusters"`
}

type RemoveItemsRq struct {
	ProjectID int64   `json:"project"`
	ItemIDs   []int64 `json:"itemsToDelete"`
}

type RemoveLaunchesRq struct {
	ProjectID int64   `json:"project"`
	LaunchIDs []int64 `json:"launchIds"`
}

type CleanIndexRq struct {
	ProjectID int64   `json:"project"`
	LogIDs    []int64 `json:"ids"`
}

// IndexDefectsUpdateRq carries the new issue locators of already indexed
// items.
type IndexDefectsUpdateRq struct {
	ProjectID     int64            `json:"project"`
	ItemsToUpdate map[int64]string `json:"itemsToUpdate"`
}

type SuggestRq struct {
	LaunchID       int64                 `json:"launchId"`
	LaunchName     string                `json:"launchName"`
	TestItemID     int64                 `json:"testItemId"`
	UniqueID       string                `json:"uniqueId"`
	TestCaseHash   int32                 `json:"testCaseHash"`
	ProjectID      int64                 `json:"project"`
	AnalyzerConfig models.AnalyzerConfig `json:"analyzerConfig"`
	Logs           []IndexLog            `json:"logs"`
}

// SuggestInfo is one suggestion returned by a backend. It is sent back
// unchanged, with UserChoice set, when the user picks a suggestion.
type SuggestInfo struct {
	ProjectID      int64   `json:"project"`
	TestItemID     int64   `json:"testItem"`
	TestItemLogID  int64   `json:"testItemLogId"`
	LaunchID       int64   `json:"launchId"`
	LaunchName     string  `json:"launchName"`
	IssueType      string  `json:"issueType"`
	RelevantItemID int64   `json:"relevantItem"`
	RelevantLogID  int64   `json:"relevantLogId"`
	IsMergedLog    bool    `json:"isMergedLog"`
	MatchScore     float64 `json:"matchScore"`
	ResultPosition int     `json:"resultPosition"`
	EsScore        float64 `json:"esScore"`
	EsPosition     int     `json:"esPosition"`
	ModelInfo      string  `json:"modelInfo"`
	UsedLogLines   int     `json:"usedLogLines"`
	MinShouldMatch int     `json:"minShouldMatch"`
	ProcessedTime  float64 `json:"processedTime"`
	UserChoice     int     `json:"userChoice"`
	Method         string  `json:"methodName"`
}
