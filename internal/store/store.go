// Package store declares the persistence gateways consumed by the analysis
// pipeline. memstore and gormstore provide the implementations.
package store

import (
	"context"

	"github.com/autolog/autoanalysis/internal/models"
)

type LaunchGateway interface {
	GetLaunch(ctx context.Context, launchID int64) (*models.Launch, error)
	// FindLaunchIDs returns up to limit ids of the project's launches that
	// are greater than afterID, in ascending order. Launches in excludeMode
	// or with excludeStatus are skipped.
	FindLaunchIDs(ctx context.Context, projectID int64, excludeMode models.LaunchMode, excludeStatus models.Status, afterID int64, limit int) ([]int64, error)
}

type TestItemGateway interface {
	FindItemIDsByLaunch(ctx context.Context, launchID int64) ([]int64, error)
	// FindItemIDsByModes returns ids of analyzable items of the launch
	// matching any of modes, ordered by id. A limit <= 0 returns all of them.
	FindItemIDsByModes(ctx context.Context, launchID int64, modes []models.AnalyzeItemsMode, offset, limit int) ([]int64, error)
	// FindDescendantIDs returns the ids of every item below path.
	FindDescendantIDs(ctx context.Context, path string) ([]int64, error)
	FindItemsByIDs(ctx context.Context, itemIDs []int64) ([]models.TestItem, error)
	FindItemsByLaunch(ctx context.Context, launchID int64) ([]models.TestItem, error)
	FindItemName(ctx context.Context, itemID int64) (string, error)
	UpdateIssue(ctx context.Context, issue models.Issue) error
}

type LogGateway interface {
	// FilterLaunchesWithLogs keeps the launches having at least one log at
	// or above floor.
	FilterLaunchesWithLogs(ctx context.Context, launchIDs []int64, floor models.LogLevel) ([]int64, error)
	FindLogsByItemIDs(ctx context.Context, itemIDs []int64, floor models.LogLevel) ([]models.Log, error)
	FindLogsByIDs(ctx context.Context, logIDs []int64) ([]models.Log, error)
	// SelectItemIDsByString returns the items owning a log at or above floor
	// whose message contains substr.
	SelectItemIDsByString(ctx context.Context, itemIDs []int64, floor models.LogLevel, substr string) ([]int64, error)
	SelectItemIDsByRegex(ctx context.Context, itemIDs []int64, floor models.LogLevel, pattern string) ([]int64, error)
	AssignCluster(ctx context.Context, logIDs []int64, clusterID int64) error
}

type PatternTemplateGateway interface {
	FindEnabledTemplates(ctx context.Context, projectID int64) ([]models.PatternTemplate, error)
	FindAlreadyMatched(ctx context.Context, patternID int64, itemIDs []int64) ([]int64, error)
	SaveMatches(ctx context.Context, matches []models.PatternMatch) error
}

type ClusterGateway interface {
	// DeleteClustersByLaunch removes the launch clusters, their item links
	// and the cluster references of its logs.
	DeleteClustersByLaunch(ctx context.Context, launchID int64) (int64, error)
	SaveCluster(ctx context.Context, cluster *models.Cluster, itemIDs []int64) error
	FindClustersByLaunch(ctx context.Context, launchID int64) ([]models.Cluster, error)
}

type AttributeGateway interface {
	SetLaunchAttribute(ctx context.Context, launchID int64, key, value string, system bool) error
	FindLaunchAttribute(ctx context.Context, launchID int64, key string) (*models.ItemAttribute, error)
}

type ProjectGateway interface {
	ProjectAttributes(ctx context.Context, projectID int64) (map[string]string, error)
	SetProjectAttribute(ctx context.Context, projectID int64, key, value string) error
}

type JobStore interface {
	CreateJob(ctx context.Context, job *models.Job) error
	UpdateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
}

// Store groups every gateway.
type Store interface {
	LaunchGateway
	TestItemGateway
	LogGateway
	PatternTemplateGateway
	ClusterGateway
	AttributeGateway
	ProjectGateway
	JobStore
}

// AnalyzerConfig resolves the analyzer settings of a project from its
// attributes.
func AnalyzerConfig(ctx context.Context, projects ProjectGateway, projectID int64) (models.AnalyzerConfig, error) {
	attrs, err := projects.ProjectAttributes(ctx, projectID)
	if err != nil {
		return models.AnalyzerConfig{}, err
	}
	return models.AnalyzerConfigFromAttributes(attrs), nil
}
