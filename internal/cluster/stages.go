package cluster

import (
	"context"
	"strconv"

	"github.com/autolog/autoanalysis/internal/analyzer"
	"github.com/autolog/autoanalysis/internal/apperr"
	"github.com/autolog/autoanalysis/internal/models"
	"github.com/autolog/autoanalysis/internal/pipeline"
)

func (g *Generator) deleteStaleClusters(ctx context.Context, run Run) (Run, error) {
	if run.Config.ForUpdate {
		return run, nil
	}
	deleted, err := g.st.DeleteClustersByLaunch(ctx, run.Launch.ID)
	if err != nil {
		return run, err
	}
	run.Deleted = deleted
	return run, nil
}

// fetchClusterData halts the run when the launch has nothing to cluster.
func (g *Generator) fetchClusterData(ctx context.Context, run Run) (Run, error) {
	snapshots, err := g.preparer.PrepareLaunches(ctx, []int64{run.Launch.ID}, run.AnalyzerConfig)
	if err != nil {
		return run, err
	}
	if len(snapshots) == 0 {
		return run, pipeline.ErrHalt
	}

	data, ok, err := g.client.GenerateClusters(ctx, analyzer.GenerateClustersRq{
		Launch:           snapshots[0],
		Project:          run.Launch.ProjectID,
		CleanNumbers:     run.Config.CleanNumbers,
		ForUpdate:        run.Config.ForUpdate,
		NumberOfLogLines: run.AnalyzerConfig.NumberOfLogLines,
	})
	if err != nil {
		return run, err
	}
	if !ok {
		return run, apperr.Unavailable("no analyzer with clustering support is deployed")
	}
	run.Data = data
	return run, nil
}

func (g *Generator) persistClusterData(ctx context.Context, run Run) (Run, error) {
	for _, info := range run.Data.Clusters {
		c := &models.Cluster{
			IndexID:   info.Index,
			ProjectID: run.Launch.ProjectID,
			LaunchID:  run.Launch.ID,
			Message:   info.Message,
		}
		if err := g.st.SaveCluster(ctx, c, info.ItemIDs); err != nil {
			return run, err
		}
		if err := g.st.AssignCluster(ctx, info.LogIDs, c.ID); err != nil {
			return run, err
		}
		run.Saved++
	}
	return run, nil
}

func (g *Generator) stampLastRun(ctx context.Context, run Run) (Run, error) {
	now := g.now()
	value := strconv.FormatInt(now.UnixMilli(), 10)
	if err := g.st.SetLaunchAttribute(ctx, run.Launch.ID, LastRunKey, value, true); err != nil {
		return run, err
	}
	run.LastRun = now
	return run, nil
}
