package services

import (
	"context"
	"fmt"

	"github.com/autolog/autoanalysis/internal/analyzer"
	"github.com/autolog/autoanalysis/internal/apperr"
	"github.com/autolog/autoanalysis/internal/logger"
	"github.com/autolog/autoanalysis/internal/models"
	"github.com/autolog/autoanalysis/internal/store"
)

type logSearcher interface {
	SearchLogs(ctx context.Context, rq analyzer.SearchRq) ([]analyzer.SearchResult, error)
}

// SimilarItem is one test item whose logs an analyzer found similar to the
// searched item.
type SimilarItem struct {
	LaunchID    int64         `json:"launchId"`
	LaunchName  string        `json:"launchName"`
	ItemID      int64         `json:"itemId"`
	ItemName    string        `json:"itemName"`
	Path        string        `json:"path"`
	Status      models.Status `json:"status"`
	Issue       *models.Issue `json:"issue,omitempty"`
	LogMessages []string      `json:"logMessages"`
}

// SearchService finds logs similar to the error logs of a test item.
type SearchService struct {
	st     store.Store
	client logSearcher
}

func NewSearchService(st store.Store, client logSearcher) *SearchService {
	return &SearchService{st: st, client: client}
}

// SearchSimilar returns the items holding similar logs, in the order the
// analyzers returned their first log.
func (s *SearchService) SearchSimilar(ctx context.Context, itemID int64) ([]SimilarItem, error) {
	items, err := s.st.FindItemsByIDs(ctx, []int64{itemID})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, apperr.NotFound("test item", itemID)
	}
	item := items[0]
	if item.Status == models.StatusInProgress {
		return nil, apperr.Validation("test item %d is not finished", itemID)
	}

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
	messages := make([]string, 0, len(logs))
	for _, l := range logs {
		if l.Message != "" {
			messages = append(messages, l.Message)
		}
	}
	if len(messages) == 0 {
		return nil, nil
	}

	found, err := s.client.SearchLogs(ctx, analyzer.SearchRq{
		LaunchID:       launch.ID,
		LaunchName:     launch.Name,
		ItemID:         item.ID,
		ProjectID:      launch.ProjectID,
		LogMessages:    messages,
		LogLines:       cfg.NumberOfLogLines,
		MinShouldMatch: cfg.SearchLogsMinShouldMatch,
	})
	if err != nil {
		return nil, err
	}
	logger.WithLaunch(launch.ProjectID, launch.ID, "search_logs").
		WithField("item_id", item.ID).
		WithField("found", len(found)).
		Debug("Similar logs found")

	return s.compose(ctx, found)
}

func (s *SearchService) compose(ctx context.Context, found []analyzer.SearchResult) ([]SimilarItem, error) {
	if len(found) == 0 {
		return nil, nil
	}
	logIDs := make([]int64, 0, len(found))
	for _, r := range found {
		logIDs = append(logIDs, r.LogID)
	}
	logs, err := s.st.FindLogsByIDs(ctx, logIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]models.Log, len(logs))
	var itemIDs []int64
	for _, l := range logs {
		byID[l.ID] = l
		if l.ItemID != nil {
			itemIDs = append(itemIDs, *l.ItemID)
		}
	}
	items, err := s.st.FindItemsByIDs(ctx, itemIDs)
	if err != nil {
		return nil, err
	}
	itemsByID := make(map[int64]models.TestItem, len(items))
	for _, it := range items {
		itemsByID[it.ID] = it
	}

	launches := make(map[int64]*models.Launch)
	index := make(map[int64]int)
	var out []SimilarItem
	for _, r := range found {
		l, ok := byID[r.LogID]
		if !ok || l.ItemID == nil {
			continue
		}
		if i, ok := index[*l.ItemID]; ok {
			out[i].LogMessages = append(out[i].LogMessages, l.Message)
			continue
		}
		it, ok := itemsByID[*l.ItemID]
		if !ok {
			continue
		}
		launch, ok := launches[it.LaunchID]
		if !ok {
			launch, err = s.st.GetLaunch(ctx, it.LaunchID)
			if err != nil {
				return nil, err
			}
			launches[it.LaunchID] = launch
		}
		index[it.ID] = len(out)
		out = append(out, SimilarItem{
			LaunchID:    launch.ID,
			LaunchName:  fmt.Sprintf("%s #%d", launch.Name, launch.Number),
			ItemID:      it.ID,
			ItemName:    it.Name,
			Path:        it.Path,
			Status:      it.Status,
			Issue:       it.Issue,
			LogMessages: []string{l.Message},
		})
	}
	return out, nil
}
