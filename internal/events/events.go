// Package events defines the domain events published by the analysis
// pipeline and the outbound port they are published through.
package events

import (
	"context"
	"sync"

	"github.com/autolog/autoanalysis/internal/models"
)

const (
	TopicPatternMatched      = "pattern_matched"
	TopicItemIssueDefined    = "item_issue_type_defined"
	TopicClustersGenerated   = "clusters_generated"
	TopicProjectIndexed      = "project_indexed"
	TopicAnalysisFinished    = "analysis_finished"
	TopicPatternAnalysisDone = "pattern_analysis_finished"
)

// Event is one published fact. Delivery is at-least-once at best and no
// ordering is guaranteed across topics.
type Event struct {
	Topic     string
	ProjectID int64
	ObjectID  int64
	Payload   map[string]interface{}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// PatternMatched reports a template matching an item.
func PatternMatched(t models.PatternTemplate, itemID int64, itemName string) Event {
	return Event{
		Topic:     TopicPatternMatched,
		ProjectID: t.ProjectID,
		ObjectID:  itemID,
		Payload: map[string]interface{}{
			"patternTemplate": map[string]interface{}{
				"id":      t.ID,
				"name":    t.Name,
				"type":    string(t.Type),
				"value":   t.Value,
				"enabled": t.Enabled,
			},
			"itemId":   itemID,
			"itemName": itemName,
		},
	}
}

// IssueTypeDefined reports an issue set on an item by an analyzer.
func IssueTypeDefined(projectID, itemID int64, before, after string, analyzerID string) Event {
	return Event{
		Topic:     TopicItemIssueDefined,
		ProjectID: projectID,
		ObjectID:  itemID,
		Payload: map[string]interface{}{
			"before":   before,
			"after":    after,
			"analyzer": analyzerID,
		},
	}
}

// Recorder keeps published events in memory. It is used by the in-memory
// store and in tests; FailTopics makes Publish fail for the listed topics.
type Recorder struct {
	mu         sync.Mutex
	events     []Event
	FailTopics map[string]error
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.FailTopics[e.Topic]; err != nil {
		return err
	}
	r.events = append(r.events, e)
	return nil
}

// Events returns the recorded events of topic, or all of them for "".
func (r *Recorder) Events(topic string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if topic == "" || e.Topic == topic {
			out = append(out, e)
		}
	}
	return out
}
