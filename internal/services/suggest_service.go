package services

import (
	"context"
	"sort"

	"github.com/autolog/autoanalysis/internal/analyzer"
	"github.com/autolog/autoanalysis/internal/apperr"
	"github.com/autolog/autoanalysis/internal/logger"
	"github.com/autolog/autoanalysis/internal/models"
	"github.com/autolog/autoanalysis/internal/store"
)

const suggestedItemLogs = 5

type suggester interface {
	SuggestItems(ctx context.Context, rq analyzer.SuggestRq) ([]analyzer.SuggestInfo, error)
	HandleSuggestChoice(ctx context.Context, infos []analyzer.SuggestInfo) error
}

// SuggestedItem is an item whose defect an analyzer suggests for the
// requested item, with its latest error logs.
type SuggestedItem struct {
	Suggest analyzer.SuggestInfo `json:"suggestRs"`
	Item    models.TestItem      `json:"testItemResource"`
	Logs    []models.Log         `json:"logs"`
}

// SuggestService asks the analyzers for items with a defect that could
// apply to a test item.
type SuggestService struct {
	st     store.Store
	client suggester
}

func NewSuggestService(st store.Store, client suggester) *SuggestService {
	return &SuggestService{st: st, client: client}
}

// SuggestItems returns the suggestions for itemID in analyzer order.
// Suggestions whose item no longer exists are dropped.
func (s *SuggestService) SuggestItems(ctx context.Context, itemID int64) ([]SuggestedItem, error) {
	items, err := s.st.FindItemsByIDs(ctx, []int64{itemID})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, apperr.NotFound("test item", itemID)
	}
	item := items[0]

	launch, err := s.st.GetLaunch(ctx, item.LaunchID)
	if err != nil {
		return nil, err
	}
	cfg, err := store.AnalyzerConfig(ctx, s.st, launch.ProjectID)
	if err != nil {
		return nil, err
	}
	logs, err := s.st.FindLogsByItemIDs(ctx, []int64{item.ID}, models.LogLevelError)
	if err != nil {
		return nil, err
	}

	rq := analyzer.SuggestRq{
		LaunchID:       launch.ID,
		LaunchName:     launch.Name,
		TestItemID:     item.ID,
		UniqueID:       item.UniqueID,
		TestCaseHash:   item.TestCaseHash,
		ProjectID:      launch.ProjectID,
		AnalyzerConfig: cfg,
		Logs:           make([]analyzer.IndexLog, 0, len(logs)),
	}
	for _, l := range logs {
		var clusterID int64
		if l.ClusterID != nil {
			clusterID = *l.ClusterID
		}
		rq.Logs = append(rq.Logs, analyzer.IndexLog{
			LogID:     l.ID,
			LogLevel:  int(l.Level),
			Message:   l.Message,
			ClusterID: clusterID,
		})
	}

	infos, err := s.client.SuggestItems(ctx, rq)
	if err != nil {
		return nil, err
	}
	logger.WithLaunch(launch.ProjectID, launch.ID, "suggest_items").
		WithField("item_id", item.ID).
		WithField("suggested", len(infos)).
		Debug("Suggestions received")

	return s.compose(ctx, infos)
}

func (s *SuggestService) compose(ctx context.Context, infos []analyzer.SuggestInfo) ([]SuggestedItem, error) {
	if len(infos) == 0 {
		return nil, nil
	}
	ids := make([]int64, 0, len(infos))
	for _, info := range infos {
		ids = append(ids, info.RelevantItemID)
	}
	items, err := s.st.FindItemsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]models.TestItem, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}

	out := make([]SuggestedItem, 0, len(infos))
	for _, info := range infos {
		it, ok := byID[info.RelevantItemID]
		if !ok {
			continue
		}
		logs, err := s.latestLogs(ctx, it.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, SuggestedItem{Suggest: info, Item: it, Logs: logs})
	}
	return out, nil
}

func (s *SuggestService) latestLogs(ctx context.Context, itemID int64) ([]models.Log, error) {
	logs, err := s.st.FindLogsByItemIDs(ctx, []int64{itemID}, models.LogLevelError)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(logs, func(i, j int) bool {
		if !logs[i].Time.Equal(logs[j].Time) {
			return logs[i].Time.After(logs[j].Time)
		}
		return logs[i].ID > logs[j].ID
	})
	if len(logs) > suggestedItemLogs {
		logs = logs[:suggestedItemLogs]
	}
	return logs, nil
}

// HandleSuggestChoice reports the suggestions a user picked.
func (s *SuggestService) HandleSuggestChoice(ctx context.Context, infos []analyzer.SuggestInfo) error {
	if len(infos) == 0 {
		return apperr.Validation("no suggestions to report")
	}
	return s.client.HandleSuggestChoice(ctx, infos)
}
