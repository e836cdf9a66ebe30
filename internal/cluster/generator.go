// Package cluster generates failure clusters of a launch through the
// analyzer backends.
package cluster

import (
	"context"
	"time"

	"github.com/autolog/autoanalysis/internal/analyzer"
	"github.com/autolog/autoanalysis/internal/apperr"
	"github.com/autolog/autoanalysis/internal/events"
	"github.com/autolog/autoanalysis/internal/indexer"
	"github.com/autolog/autoanalysis/internal/logger"
	"github.com/autolog/autoanalysis/internal/models"
	"github.com/autolog/autoanalysis/internal/pipeline"
	"github.com/autolog/autoanalysis/internal/status"
	"github.com/autolog/autoanalysis/internal/store"
)

// LastRunKey is the system launch attribute holding the epoch millis of the
// last successful generation.
const LastRunKey = "rp.cluster.lastRun"

type Client interface {
	HasClients() bool
	GenerateClusters(ctx context.Context, rq analyzer.GenerateClustersRq) (*analyzer.ClusterData, bool, error)
}

// Config selects how a launch is clustered. ForUpdate keeps the existing
// clusters and lets the analyzer extend them. A nil NumberOfLogLines uses
// the project setting.
type Config struct {
	LaunchID         int64 `json:"launchId"`
	ForUpdate        bool  `json:"forUpdate"`
	CleanNumbers     bool  `json:"cleanNumbers"`
	NumberOfLogLines *int  `json:"numberOfLogLines,omitempty"`
}

// Run is the state passed between generation stages.
type Run struct {
	Config         Config
	Launch         *models.Launch
	AnalyzerConfig models.AnalyzerConfig
	Data           *analyzer.ClusterData
	Deleted        int64
	Saved          int
	LastRun        time.Time
}

type Generator struct {
	client    Client
	st        store.Store
	preparer  *indexer.Preparer
	cache     *status.AnalyzerCache
	publisher events.Publisher
	pipeline  *pipeline.Pipeline[Run]
	now       func() time.Time
}

func NewGenerator(client Client, st store.Store, preparer *indexer.Preparer, cache *status.AnalyzerCache, publisher events.Publisher) *Generator {
	g := &Generator{
		client:    client,
		st:        st,
		preparer:  preparer,
		cache:     cache,
		publisher: publisher,
		now:       time.Now,
	}
	g.pipeline = pipeline.New("cluster_generation",
		pipeline.StageFunc("delete_stale_clusters", g.deleteStaleClusters),
		pipeline.StageFunc("fetch_cluster_data", g.fetchClusterData),
		pipeline.StageFunc("persist_cluster_data", g.persistClusterData),
		pipeline.StageFunc("stamp_last_run", g.stampLastRun),
	)
	return g
}

// Generate rebuilds the clusters of a launch. It fails with
// apperr.ErrIntegrationUnavailable when no analyzer is registered and with
// apperr.ErrAlreadyRunning while another generation for the launch runs.
func (g *Generator) Generate(ctx context.Context, cfg Config) (Run, error) {
	if !g.client.HasClients() {
		return Run{}, apperr.Unavailable("there are no analyzer services deployed")
	}

	launch, err := g.st.GetLaunch(ctx, cfg.LaunchID)
	if err != nil {
		return Run{}, err
	}
	if !g.cache.Started(status.Clustering, launch.ID, launch.ProjectID) {
		return Run{}, apperr.AlreadyRunning("Clusters creation is in progress.")
	}
	defer g.cache.Finished(status.Clustering, launch.ID)

	analyzerCfg, err := store.AnalyzerConfig(ctx, g.st, launch.ProjectID)
	if err != nil {
		return Run{}, err
	}
	if cfg.NumberOfLogLines != nil {
		analyzerCfg.NumberOfLogLines = *cfg.NumberOfLogLines
	}

	run, err := g.pipeline.Run(ctx, Run{Config: cfg, Launch: launch, AnalyzerConfig: analyzerCfg})
	if err != nil {
		logger.WithLaunch(launch.ProjectID, launch.ID, "cluster_generator").
			WithField("error", err.Error()).
			Error("Cluster generation failed")
		return run, err
	}

	logger.WithLaunch(launch.ProjectID, launch.ID, "cluster_generator").WithFields(map[string]interface{}{
		"deleted": run.Deleted,
		"saved":   run.Saved,
	}).Info("Cluster generation finished")
	g.notify(ctx, run)
	return run, nil
}

// Stages lists the generation stages in order.
func (g *Generator) Stages() []string {
	return g.pipeline.Stages()
}

func (g *Generator) notify(ctx context.Context, run Run) {
	if g.publisher == nil || run.Data == nil {
		return
	}
	err := g.publisher.Publish(ctx, events.Event{
		Topic:     events.TopicClustersGenerated,
		ProjectID: run.Launch.ProjectID,
		ObjectID:  run.Launch.ID,
		Payload:   map[string]interface{}{"clusters": run.Saved},
	})
	if err != nil {
		logger.WithError(err, "cluster_generator").Warn("Failed to publish cluster generation result")
	}
}
