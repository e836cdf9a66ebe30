// Package pattern applies project pattern templates to test items and
// records each (template, item) match once.
package pattern

import (
	"context"
	"fmt"

	"github.com/autolog/autoanalysis/internal/apperr"
	"github.com/autolog/autoanalysis/internal/events"
	"github.com/autolog/autoanalysis/internal/logger"
	"github.com/autolog/autoanalysis/internal/metrics"
	"github.com/autolog/autoanalysis/internal/models"
	"github.com/autolog/autoanalysis/internal/store"
)

type Engine struct {
	templates store.PatternTemplateGateway
	items     store.TestItemGateway
	publisher events.Publisher
	selectors map[models.PatternTemplateType]Selector
}

func NewEngine(st store.Store, publisher events.Publisher) *Engine {
	return &Engine{
		templates: st,
		items:     st,
		publisher: publisher,
		selectors: map[models.PatternTemplateType]Selector{
			models.PatternTypeString: NewStringSelector(st, st),
			models.PatternTypeRegex:  NewRegexSelector(st, st),
		},
	}
}

// Analyze matches the enabled templates of the project against itemIDs.
// Items already matched by a template are not evaluated against it again.
// Matches are saved before any event is published; a failed publish is
// logged and does not fail the call. The newly saved matches are returned.
func (e *Engine) Analyze(ctx context.Context, projectID, launchID int64, itemIDs []int64) ([]models.PatternMatch, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}
	templates, err := e.templates.FindEnabledTemplates(ctx, projectID)
	if err != nil {
		return nil, err
	}

	var all []models.PatternMatch
	for _, t := range templates {
		matches, err := e.analyzeTemplate(ctx, t, itemIDs)
		if err != nil {
			return all, fmt.Errorf("pattern %q: %w", t.Name, err)
		}
		all = append(all, matches...)
	}

	logger.WithLaunch(projectID, launchID, "pattern_engine").WithFields(map[string]interface{}{
		"templates": len(templates),
		"items":     len(itemIDs),
		"matches":   len(all),
	}).Debug("Pattern analysis batch finished")
	return all, nil
}

func (e *Engine) analyzeTemplate(ctx context.Context, t models.PatternTemplate, itemIDs []int64) ([]models.PatternMatch, error) {
	selector, ok := e.selectors[t.Type]
	if !ok {
		return nil, apperr.Validation("unsupported pattern type %q", t.Type)
	}

	remaining, err := e.filterAlreadyMatched(ctx, t.ID, itemIDs)
	if err != nil {
		return nil, err
	}
	if len(remaining) == 0 {
		return nil, nil
	}

	ids, err := selector.Select(ctx, remaining, t)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	matches := make([]models.PatternMatch, 0, len(ids))
	for _, id := range ids {
		matches = append(matches, models.PatternMatch{PatternTemplateID: t.ID, TestItemID: id})
	}
	if err := e.templates.SaveMatches(ctx, matches); err != nil {
		return nil, apperr.Persistence("save pattern matches", err)
	}
	metrics.PatternMatches.WithLabelValues(string(t.Type)).Add(float64(len(matches)))

	e.publish(ctx, t, matches)
	return matches, nil
}

func (e *Engine) filterAlreadyMatched(ctx context.Context, patternID int64, itemIDs []int64) ([]int64, error) {
	matched, err := e.templates.FindAlreadyMatched(ctx, patternID, itemIDs)
	if err != nil {
		return nil, err
	}
	if len(matched) == 0 {
		return itemIDs, nil
	}
	skip := make(map[int64]struct{}, len(matched))
	for _, id := range matched {
		skip[id] = struct{}{}
	}
	out := make([]int64, 0, len(itemIDs)-len(matched))
	for _, id := range itemIDs {
		if _, ok := skip[id]; !ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func (e *Engine) publish(ctx context.Context, t models.PatternTemplate, matches []models.PatternMatch) {
	if e.publisher == nil {
		return
	}
	failed := 0
	for _, m := range matches {
		name, err := e.items.FindItemName(ctx, m.TestItemID)
		if err != nil {
			name = ""
		}
		if err := e.publisher.Publish(ctx, events.PatternMatched(t, m.TestItemID, name)); err != nil {
			failed++
			metrics.PublishFailures.Inc()
			logger.WithError(fmt.Errorf("%w: %v", apperr.ErrPartialPublish, err), "pattern_engine").
				WithField("pattern_id", t.ID).
				WithField("item_id", m.TestItemID).
				Warn("Failed to publish pattern match")
		}
	}
	if failed > 0 {
		logger.Warn("Pattern matches saved with unpublished events", map[string]interface{}{
			"pattern_id": t.ID,
			"failed":     failed,
			"total":      len(matches),
		})
	}
}
