package pattern

import (
	"context"
	"regexp"

	"github.com/autolog/autoanalysis/internal/apperr"
	"github.com/autolog/autoanalysis/internal/models"
	"github.com/autolog/autoanalysis/internal/store"
)

// Selector picks the items whose logs match a template.
type Selector interface {
	Select(ctx context.Context, itemIDs []int64, t models.PatternTemplate) ([]int64, error)
}

// matchFunc returns the ids among itemIDs owning a log at or above floor
// that matches value.
type matchFunc func(ctx context.Context, itemIDs []int64, floor models.LogLevel, value string) ([]int64, error)

// logSelector matches items by their own logs first. Items without a direct
// match that have nested steps are matched when any descendant step's log
// matches.
type logSelector struct {
	items    store.TestItemGateway
	match    matchFunc
	validate func(value string) error
}

func (s *logSelector) Select(ctx context.Context, itemIDs []int64, t models.PatternTemplate) ([]int64, error) {
	if s.validate != nil {
		if err := s.validate(t.Value); err != nil {
			return nil, err
		}
	}
	if len(itemIDs) == 0 {
		return nil, nil
	}

	direct, err := s.match(ctx, itemIDs, models.LogLevelError, t.Value)
	if err != nil {
		return nil, err
	}
	matched := make(map[int64]struct{}, len(direct))
	for _, id := range direct {
		matched[id] = struct{}{}
	}

	var rest []int64
	for _, id := range itemIDs {
		if _, ok := matched[id]; !ok {
			rest = append(rest, id)
		}
	}
	nested, err := s.matchNested(ctx, rest, t.Value)
	if err != nil {
		return nil, err
	}
	for _, id := range nested {
		matched[id] = struct{}{}
	}

	out := make([]int64, 0, len(matched))
	for _, id := range itemIDs {
		if _, ok := matched[id]; ok {
			out = append(out, id)
			delete(matched, id)
		}
	}
	return out, nil
}

func (s *logSelector) matchNested(ctx context.Context, itemIDs []int64, value string) ([]int64, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}
	items, err := s.items.FindItemsByIDs(ctx, itemIDs)
	if err != nil {
		return nil, err
	}

	// A descendant may sit under several requested items when one of them
	// is nested in another.
	ancestorsOf := make(map[int64][]int64)
	var descendants []int64
	for _, it := range items {
		if !it.HasChildren {
			continue
		}
		ids, err := s.items.FindDescendantIDs(ctx, it.Path)
		if err != nil {
			return nil, err
		}
		for _, d := range ids {
			if _, seen := ancestorsOf[d]; !seen {
				descendants = append(descendants, d)
			}
			ancestorsOf[d] = append(ancestorsOf[d], it.ID)
		}
	}
	if len(descendants) == 0 {
		return nil, nil
	}

	hits, err := s.match(ctx, descendants, models.LogLevelError, value)
	if err != nil {
		return nil, err
	}
	var out []int64
	for _, d := range hits {
		out = append(out, ancestorsOf[d]...)
	}
	return out, nil
}

// NewStringSelector matches log messages containing the template value.
func NewStringSelector(items store.TestItemGateway, logs store.LogGateway) Selector {
	return &logSelector{items: items, match: logs.SelectItemIDsByString}
}

// NewRegexSelector matches log messages against the template value as a
// regular expression.
func NewRegexSelector(items store.TestItemGateway, logs store.LogGateway) Selector {
	return &logSelector{
		items: items,
		match: logs.SelectItemIDsByRegex,
		validate: func(value string) error {
			if _, err := regexp.Compile(value); err != nil {
				return apperr.Validation("invalid regex pattern %q: %v", value, err)
			}
			return nil
		},
	}
}
