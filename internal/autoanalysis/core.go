package autoanalysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/autolog/autoanalysis/internal/analyzer"
	"github.com/autolog/autoanalysis/internal/apperr"
	"github.com/autolog/autoanalysis/internal/events"
	"github.com/autolog/autoanalysis/internal/logger"
	"github.com/autolog/autoanalysis/internal/metrics"
	"github.com/autolog/autoanalysis/internal/models"
	"github.com/autolog/autoanalysis/internal/status"
	"github.com/autolog/autoanalysis/internal/store"
)

type analyzeClient interface {
	Analyze(ctx context.Context, rq analyzer.IndexLaunch) (map[int64]analyzer.Proposal, error)
}

type preparer interface {
	Prepare(ctx context.Context, launch *models.Launch, itemIDs []int64, cfg models.AnalyzerConfig) (analyzer.IndexLaunch, bool, error)
}

// ItemsIndexer indexes the logs of selected items of a launch and pushes
// changed issue locators to the index.
type ItemsIndexer interface {
	IndexItemsLogs(ctx context.Context, launchID int64, itemIDs []int64, cfg models.AnalyzerConfig) (int64, error)
	IndexDefectsUpdate(ctx context.Context, launch *models.Launch, updates map[int64]string, cfg models.AnalyzerConfig) (int64, error)
}

// Result summarizes one analysis run.
type Result struct {
	Collected int
	Analyzed  int
	Updated   []int64
}

// Core collects the launch items for the requested modes, sends them to
// the analyzers and applies the proposed issues.
type Core struct {
	launches  store.LaunchGateway
	items     store.TestItemGateway
	preparer  preparer
	client    analyzeClient
	indexer   ItemsIndexer
	cache     *status.AnalyzerCache
	publisher events.Publisher
	batchSize int
}

func NewCore(st store.Store, prep preparer, client analyzeClient, idx ItemsIndexer, cache *status.AnalyzerCache, publisher events.Publisher, batchSize int) (*Core, error) {
	if batchSize <= 0 {
		return nil, apperr.Validation("analysis batch size must be positive, got %d", batchSize)
	}
	return &Core{
		launches:  st,
		items:     st,
		preparer:  prep,
		client:    client,
		indexer:   idx,
		cache:     cache,
		publisher: publisher,
		batchSize: batchSize,
	}, nil
}

// Start is the innermost Starter of a chain.
func (c *Core) Start(ctx context.Context, cfg StartConfig) error {
	_, err := c.Run(ctx, cfg)
	return err
}

func (c *Core) Run(ctx context.Context, cfg StartConfig) (Result, error) {
	var res Result
	if len(cfg.Modes) == 0 {
		return res, apperr.Validation("unable to resolve item search condition: no analyze modes")
	}
	launch, err := c.launches.GetLaunch(ctx, cfg.LaunchID)
	if err != nil {
		return res, err
	}
	if !c.cache.Started(status.AutoAnalysis, launch.ID, launch.ProjectID) {
		return res, apperr.AlreadyRunning("Auto-analysis is still in progress.")
	}
	defer c.cache.Finished(status.AutoAnalysis, launch.ID)

	log := logger.WithLaunch(launch.ProjectID, launch.ID, "auto_analysis")

	ids, err := c.collect(ctx, launch.ID, cfg.Modes)
	if err != nil {
		return res, err
	}
	res.Collected = len(ids)
	if len(ids) == 0 {
		log.Info("No items to analyze")
		return res, nil
	}

	rq, ok, err := c.preparer.Prepare(ctx, launch, ids, cfg.AnalyzerConfig)
	if err != nil {
		return res, err
	}
	if !ok {
		log.Info("No logs to analyze")
		return res, nil
	}
	res.Analyzed = len(rq.TestItems)

	log.WithField("items", res.Analyzed).Info("Start analysis for launch")
	proposals, err := c.client.Analyze(ctx, rq)
	if err != nil {
		return res, err
	}

	updates, err := c.apply(ctx, launch, proposals, &res)
	if err != nil {
		return res, err
	}

	if len(updates) > 0 {
		if _, err := c.indexer.IndexDefectsUpdate(ctx, launch, updates, cfg.AnalyzerConfig); err != nil {
			return res, fmt.Errorf("update indexed defects: %w", err)
		}
	}
	if _, err := c.indexer.IndexItemsLogs(ctx, launch.ID, ids, cfg.AnalyzerConfig); err != nil {
		return res, fmt.Errorf("index analyzed items: %w", err)
	}

	c.publish(ctx, events.Event{
		Topic:     events.TopicAnalysisFinished,
		ProjectID: launch.ProjectID,
		ObjectID:  launch.ID,
		Payload: map[string]interface{}{
			"analyzed": res.Analyzed,
			"updated":  len(res.Updated),
			"user":     cfg.User,
		},
	})
	log.WithFields(map[string]interface{}{
		"analyzed": res.Analyzed,
		"updated":  len(res.Updated),
	}).Info("Analysis finished for launch")
	return res, nil
}

// collect returns the ids matching any of modes, in first seen order.
func (c *Core) collect(ctx context.Context, launchID int64, modes []models.AnalyzeItemsMode) ([]int64, error) {
	seen := make(map[int64]struct{})
	var ids []int64
	for _, mode := range modes {
		offset := 0
		for {
			page, err := c.items.FindItemIDsByModes(ctx, launchID, []models.AnalyzeItemsMode{mode}, offset, c.batchSize)
			if err != nil {
				return nil, err
			}
			for _, id := range page {
				if _, ok := seen[id]; !ok {
					seen[id] = struct{}{}
					ids = append(ids, id)
				}
			}
			if len(page) < c.batchSize {
				break
			}
			offset += len(page)
		}
	}
	return ids, nil
}

// apply writes the proposed issues, appends the changed ids to res.Updated
// and returns their new locators.
func (c *Core) apply(ctx context.Context, launch *models.Launch, proposals map[int64]analyzer.Proposal, res *Result) (map[int64]string, error) {
	if len(proposals) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(proposals))
	var relevantIDs []int64
	for id, p := range proposals {
		ids = append(ids, id)
		if p.Item.RelevantItemID != nil {
			relevantIDs = append(relevantIDs, *p.Item.RelevantItemID)
		}
	}

	items, err := c.items.FindItemsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	relevant := make(map[int64]models.TestItem)
	if len(relevantIDs) > 0 {
		found, err := c.items.FindItemsByIDs(ctx, relevantIDs)
		if err != nil {
			return nil, err
		}
		for _, it := range found {
			relevant[it.ID] = it
		}
	}

	updates := make(map[int64]string)
	for _, item := range items {
		p := proposals[item.ID]
		if item.Issue == nil || item.Issue.IssueTypeLocator == p.Item.Locator {
			continue
		}

		before := item.Issue.IssueTypeLocator
		issue := *item.Issue
		issue.IssueTypeLocator = p.Item.Locator
		issue.AutoAnalyzed = true
		if p.Item.RelevantItemID != nil {
			if rel, ok := relevant[*p.Item.RelevantItemID]; ok && rel.Issue != nil {
				issue.Description = joinDescription(issue.Description, rel.Issue.Description)
			} else {
				logger.Warn("Relevant test item not found", map[string]interface{}{
					"itemID":     item.ID,
					"relevantID": *p.Item.RelevantItemID,
				})
			}
		}

		if err := c.items.UpdateIssue(ctx, issue); err != nil {
			return updates, apperr.Persistence("update issue", err)
		}
		res.Updated = append(res.Updated, item.ID)
		updates[item.ID] = issue.IssueTypeLocator
		metrics.IssuesApplied.Inc()

		c.publish(ctx, events.IssueTypeDefined(launch.ProjectID, item.ID, before, issue.IssueTypeLocator, p.AnalyzerID))
	}
	return updates, nil
}

func joinDescription(own, relevant string) string {
	if own == "" {
		return relevant
	}
	return strings.Join([]string{own, relevant}, "\n")
}

func (c *Core) publish(ctx context.Context, e events.Event) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.Publish(ctx, e); err != nil {
		metrics.PublishFailures.Inc()
		logger.WithError(fmt.Errorf("%w: %v", apperr.ErrPartialPublish, err), "auto_analysis").
			WithField("topic", e.Topic).
			WithField("object_id", e.ObjectID).
			Warn("Failed to publish event")
	}
}
