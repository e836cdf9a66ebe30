// Package autoanalysis starts analyzer runs for launches. The start
// operation is a Starter wrapped by decorators, each adding one policy
// (debug launch check, enable check, analyzer availability, log indexing,
// async execution) around the Core.
package autoanalysis

import (
	"context"
	"fmt"

	"github.com/autolog/autoanalysis/internal/apperr"
	"github.com/autolog/autoanalysis/internal/logger"
	"github.com/autolog/autoanalysis/internal/models"
	"github.com/autolog/autoanalysis/internal/services"
	"github.com/autolog/autoanalysis/internal/store"
)

// StartConfig is passed by value through the chain.
type StartConfig struct {
	LaunchID       int64
	AnalyzerConfig models.AnalyzerConfig
	Modes          []models.AnalyzeItemsMode
	User           string
}

// Starter starts analysis of one launch.
type Starter func(ctx context.Context, cfg StartConfig) error

// Decorator wraps a Starter with one policy.
type Decorator func(next Starter) Starter

// Chain wraps core with decorators. The first decorator is the outermost.
func Chain(core Starter, decorators ...Decorator) Starter {
	s := core
	for i := len(decorators) - 1; i >= 0; i-- {
		s = decorators[i](s)
	}
	return s
}

// EnabledGate skips the rest of the chain unless auto analysis is enabled
// for the project.
func EnabledGate() Decorator {
	return func(next Starter) Starter {
		return func(ctx context.Context, cfg StartConfig) error {
			if !cfg.AnalyzerConfig.AutoAnalyzerEnabled {
				logger.Debug("Auto analysis disabled, skipping", map[string]interface{}{"launchID": cfg.LaunchID})
				return nil
			}
			return next(ctx, cfg)
		}
	}
}

// DebugGate rejects launches started in debug mode.
func DebugGate(launches store.LaunchGateway) Decorator {
	return func(next Starter) Starter {
		return func(ctx context.Context, cfg StartConfig) error {
			launch, err := launches.GetLaunch(ctx, cfg.LaunchID)
			if err != nil {
				return err
			}
			if launch.Mode == models.LaunchModeDebug {
				return apperr.Validation("Cannot analyze launches in debug mode.")
			}
			return next(ctx, cfg)
		}
	}
}

// Availability reports whether any analyzer backend is registered.
type Availability interface {
	HasClients() bool
}

// CapabilityGate fails with an unavailable error when no analyzer backend
// is registered.
func CapabilityGate(client Availability) Decorator {
	return func(next Starter) Starter {
		return func(ctx context.Context, cfg StartConfig) error {
			if !client.HasClients() {
				return apperr.Unavailable("there are no analyzer services deployed")
			}
			return next(ctx, cfg)
		}
	}
}

// LaunchIndexer indexes the logs of a whole launch.
type LaunchIndexer interface {
	IndexLaunchLogs(ctx context.Context, launch *models.Launch, cfg models.AnalyzerConfig) (int64, error)
}

// IndexingStage indexes the launch logs before delegating so analysis sees
// the current launch.
func IndexingStage(launches store.LaunchGateway, idx LaunchIndexer) Decorator {
	return func(next Starter) Starter {
		return func(ctx context.Context, cfg StartConfig) error {
			launch, err := launches.GetLaunch(ctx, cfg.LaunchID)
			if err != nil {
				return err
			}
			indexed, err := idx.IndexLaunchLogs(ctx, launch, cfg.AnalyzerConfig)
			if err != nil {
				return fmt.Errorf("index launch %d: %w", launch.ID, err)
			}
			logger.WithLaunch(launch.ProjectID, launch.ID, "auto_analysis").
				WithField("indexed", indexed).
				Debug("Launch logs indexed before analysis")
			return next(ctx, cfg)
		}
	}
}

// JobSubmitter queues background work.
type JobSubmitter interface {
	Submit(ctx context.Context, jobType models.JobType, projectID int64, launchID *int64, fn services.JobFunc) (*models.Job, error)
}

// AsyncDispatch runs the rest of the chain as a background job and returns
// once the job is queued.
func AsyncDispatch(launches store.LaunchGateway, jobs JobSubmitter) Decorator {
	return func(next Starter) Starter {
		return func(ctx context.Context, cfg StartConfig) error {
			launch, err := launches.GetLaunch(ctx, cfg.LaunchID)
			if err != nil {
				return err
			}
			launchID := launch.ID
			job, err := jobs.Submit(ctx, models.JobTypeAutoAnalysis, launch.ProjectID, &launchID, func(ctx context.Context) (models.JSONB, error) {
				if err := next(ctx, cfg); err != nil {
					return nil, err
				}
				return models.JSONB{"launchId": launchID}, nil
			})
			if err != nil {
				return err
			}
			logger.WithJob(job.ID, string(job.Type)).
				WithField("launch_id", launchID).
				WithField("user", cfg.User).
				Info("Auto analysis queued")
			return nil
		}
	}
}

// LaunchFinishedChain is used for launches that just finished.
func LaunchFinishedChain(core Starter, client Availability, launches store.LaunchGateway, idx LaunchIndexer, jobs JobSubmitter) Starter {
	return Chain(core,
		EnabledGate(),
		CapabilityGate(client),
		IndexingStage(launches, idx),
		AsyncDispatch(launches, jobs),
	)
}

// ManualChain is used for user requested re-analysis of launches that are
// already indexed.
func ManualChain(core Starter, client Availability, launches store.LaunchGateway, jobs JobSubmitter) Starter {
	return Chain(core,
		DebugGate(launches),
		CapabilityGate(client),
		AsyncDispatch(launches, jobs),
	)
}
