package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/autolog/autoanalysis/internal/analyzer"
	"github.com/autolog/autoanalysis/internal/autoanalysis"
	"github.com/autolog/autoanalysis/internal/cluster"
	"github.com/autolog/autoanalysis/internal/config"
	"github.com/autolog/autoanalysis/internal/controllers"
	"github.com/autolog/autoanalysis/internal/events"
	"github.com/autolog/autoanalysis/internal/indexer"
	"github.com/autolog/autoanalysis/internal/metrics"
	"github.com/autolog/autoanalysis/internal/middleware"
	"github.com/autolog/autoanalysis/internal/pattern"
	"github.com/autolog/autoanalysis/internal/services"
	"github.com/autolog/autoanalysis/internal/status"
	"github.com/autolog/autoanalysis/internal/store"
)

// Services holds the wired application components.
type Services struct {
	Store     store.Store
	Registry  *analyzer.Registry
	Client    *analyzer.Client
	Jobs      *services.JobService
	Indexer   *indexer.Service
	Patterns  *pattern.LaunchAnalyzer
	Clusters  *cluster.Generator
	Search    *services.SearchService
	Suggest   *services.SuggestService
	Manual    autoanalysis.Starter
	Finished  *autoanalysis.LaunchFinishedHandler
	Analyzers *status.AnalyzerCache
}

// NewServices wires every component on top of st. Background workers of
// the job service are started; call Stop to release them.
func NewServices(cfg *config.Config, st store.Store, publisher events.Publisher, transport analyzer.Transport) (*Services, error) {
	registry := analyzer.NewRegistry(cfg.Analyzer.DescriptorTTL)
	client := analyzer.NewClient(registry, transport,
		analyzer.WithCallTimeout(cfg.Analyzer.CallTimeout),
		analyzer.WithPreferHigherPriority(cfg.Analyzer.PreferHigherPriority),
	)

	analyzers := status.NewAnalyzerCache(cfg.Indexing.StatusCapacity, cfg.Indexing.StatusTTL)
	tracker := status.NewIndexingTracker(cfg.Indexing.StatusCapacity, cfg.Indexing.StatusTTL)
	jobs := services.NewJobService(st, cfg.Jobs.Workers, cfg.Jobs.QueueSize)

	preparer := indexer.NewPreparer(st, st, st)
	batch, err := indexer.NewBatchIndexer(st, st, preparer, client, cfg.Indexing.BatchSize)
	if err != nil {
		jobs.Stop()
		return nil, err
	}
	idx := indexer.NewService(batch, st, client, tracker, publisher)

	patterns, err := pattern.NewLaunchAnalyzer(pattern.NewEngine(st, publisher), st, analyzers, publisher, cfg.Pattern.BatchSize)
	if err != nil {
		jobs.Stop()
		return nil, err
	}

	core, err := autoanalysis.NewCore(st, preparer, client, idx, analyzers, publisher, cfg.Indexing.BatchSize)
	if err != nil {
		jobs.Stop()
		return nil, err
	}
	finishedChain := autoanalysis.LaunchFinishedChain(core.Start, client, st, idx, jobs)

	return &Services{
		Store:     st,
		Registry:  registry,
		Client:    client,
		Jobs:      jobs,
		Indexer:   idx,
		Patterns:  patterns,
		Clusters:  cluster.NewGenerator(client, st, preparer, analyzers, publisher),
		Search:    services.NewSearchService(st, client),
		Suggest:   services.NewSuggestService(st, client),
		Manual:    autoanalysis.ManualChain(core.Start, client, st, jobs),
		Finished:  autoanalysis.NewLaunchFinishedHandler(st, finishedChain, idx, patterns, jobs),
		Analyzers: analyzers,
	}, nil
}

func (s *Services) Stop() {
	s.Jobs.Stop()
}

// SetupRoutes configures all application routes
func SetupRoutes(r *gin.Engine, svc *Services, jwtSecret string) {
	analyzerController := controllers.NewAnalyzerController(svc.Registry)
	projectController := controllers.NewProjectController(svc.Indexer, svc.Jobs)
	launchController := controllers.NewLaunchController(svc.Store, svc.Manual, svc.Finished, svc.Patterns, svc.Clusters, svc.Jobs)
	itemController := controllers.NewItemController(svc.Search, svc.Suggest)
	jobController := controllers.NewJobController(svc.Jobs)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"analyzers": len(svc.Registry.Descriptors()),
		})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(jwtSecret))
	{
		analyzers := api.Group("/analyzers")
		{
			analyzers.POST("", analyzerController.Register)
			analyzers.GET("", analyzerController.List)
			analyzers.DELETE("/:id", analyzerController.Deregister)
		}

		projects := api.Group("/projects/:projectId/index")
		{
			projects.POST("", projectController.IndexProject)
			projects.POST("/remove", projectController.RemoveFromIndex)
			projects.DELETE("", projectController.DeleteIndex)
		}

		launches := api.Group("/launches/:launchId")
		{
			launches.POST("/analyze", launchController.Analyze)
			launches.POST("/patterns", launchController.AnalyzePatterns)
			launches.POST("/clusters", launchController.GenerateClusters)
			launches.POST("/finish-hook", launchController.LaunchFinished)
		}

		api.GET("/items/:itemId/similar-logs", itemController.SimilarLogs)
		api.GET("/items/:itemId/suggest", itemController.Suggest)
		api.POST("/suggest/choice", itemController.SuggestChoice)
		api.GET("/jobs/:id", jobController.GetJobStatus)
	}
}
