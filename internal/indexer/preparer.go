package indexer

import (
	"context"
	"strings"

	"github.com/autolog/autoanalysis/internal/analyzer"
	"github.com/autolog/autoanalysis/internal/models"
	"github.com/autolog/autoanalysis/internal/store"
)

// Preparer builds the launch snapshots sent to analyzer backends. Only
// analyzable items are included, with their non-empty logs at or above the
// configured floor. Items left without logs are dropped.
type Preparer struct {
	launches store.LaunchGateway
	items    store.TestItemGateway
	logs     store.LogGateway
}

func NewPreparer(launches store.LaunchGateway, items store.TestItemGateway, logs store.LogGateway) *Preparer {
	return &Preparer{launches: launches, items: items, logs: logs}
}

// Prepare builds the snapshot of the given items of launch. ok is false
// when none of them has anything to send.
func (p *Preparer) Prepare(ctx context.Context, launch *models.Launch, itemIDs []int64, cfg models.AnalyzerConfig) (analyzer.IndexLaunch, bool, error) {
	items, err := p.items.FindItemsByIDs(ctx, itemIDs)
	if err != nil {
		return analyzer.IndexLaunch{}, false, err
	}
	return p.build(ctx, launch, items, cfg)
}

// PrepareLaunches builds one snapshot per launch, skipping launches with
// nothing to send.
func (p *Preparer) PrepareLaunches(ctx context.Context, launchIDs []int64, cfg models.AnalyzerConfig) ([]analyzer.IndexLaunch, error) {
	out := make([]analyzer.IndexLaunch, 0, len(launchIDs))
	for _, id := range launchIDs {
		launch, err := p.launches.GetLaunch(ctx, id)
		if err != nil {
			return nil, err
		}
		items, err := p.items.FindItemsByLaunch(ctx, id)
		if err != nil {
			return nil, err
		}
		snapshot, ok, err := p.build(ctx, launch, items, cfg)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, snapshot)
		}
	}
	return out, nil
}

func (p *Preparer) build(ctx context.Context, launch *models.Launch, items []models.TestItem, cfg models.AnalyzerConfig) (analyzer.IndexLaunch, bool, error) {
	byID := make(map[int64]models.TestItem, len(items))
	ids := make([]int64, 0, len(items))
	for _, it := range items {
		if it.LaunchID != launch.ID || !it.Analyzable() {
			continue
		}
		byID[it.ID] = it
		ids = append(ids, it.ID)
	}
	if len(ids) == 0 {
		return analyzer.IndexLaunch{}, false, nil
	}

	logs, err := p.logs.FindLogsByItemIDs(ctx, ids, floor(cfg))
	if err != nil {
		return analyzer.IndexLaunch{}, false, err
	}
	logsByItem := make(map[int64][]analyzer.IndexLog)
	for _, l := range logs {
		if l.ItemID == nil || strings.TrimSpace(l.Message) == "" {
			continue
		}
		var clusterID int64
		if l.ClusterID != nil {
			clusterID = *l.ClusterID
		}
		logsByItem[*l.ItemID] = append(logsByItem[*l.ItemID], analyzer.IndexLog{
			LogID:     l.ID,
			LogLevel:  int(l.Level),
			Message:   l.Message,
			ClusterID: clusterID,
		})
	}

	snapshot := analyzer.IndexLaunch{
		LaunchID:       launch.ID,
		LaunchName:     launch.Name,
		LaunchNumber:   launch.Number,
		ProjectID:      launch.ProjectID,
		AnalyzerConfig: cfg,
	}
	for _, id := range ids {
		itemLogs := logsByItem[id]
		if len(itemLogs) == 0 {
			continue
		}
		it := byID[id]
		snapshot.TestItems = append(snapshot.TestItems, analyzer.IndexTestItem{
			TestItemID:       it.ID,
			TestItemName:     it.Name,
			UniqueID:         it.UniqueID,
			TestCaseHash:     it.TestCaseHash,
			IssueTypeLocator: it.Issue.IssueTypeLocator,
			AutoAnalyzed:     it.Issue.AutoAnalyzed,
			StartTime:        it.StartTime,
			Logs:             itemLogs,
		})
	}
	return snapshot, len(snapshot.TestItems) > 0, nil
}

func floor(cfg models.AnalyzerConfig) models.LogLevel {
	if cfg.LogLevelFloor == 0 {
		return models.LogLevelError
	}
	return cfg.LogLevelFloor
}
