// Package indexer pushes launch logs to the analyzer backends' indexes.
package indexer

import (
	"context"
	"fmt"

	"github.com/autolog/autoanalysis/internal/analyzer"
	"github.com/autolog/autoanalysis/internal/apperr"
	"github.com/autolog/autoanalysis/internal/logger"
	"github.com/autolog/autoanalysis/internal/metrics"
	"github.com/autolog/autoanalysis/internal/models"
	"github.com/autolog/autoanalysis/internal/store"
)

// IndexClient is the indexing part of the analyzer dispatch client.
type IndexClient interface {
	Index(ctx context.Context, launches []analyzer.IndexLaunch) (int64, error)
}

// BatchIndexer walks a project's launches with keyset pagination and pushes
// their snapshots in bounded batches. Pages are handled strictly in
// ascending launch id order; a failed page stops the run but earlier pages
// stay indexed.
type BatchIndexer struct {
	launches  store.LaunchGateway
	logs      store.LogGateway
	preparer  *Preparer
	client    IndexClient
	batchSize int
}

func NewBatchIndexer(launches store.LaunchGateway, logs store.LogGateway, preparer *Preparer, client IndexClient, batchSize int) (*BatchIndexer, error) {
	if batchSize <= 0 {
		return nil, apperr.Validation("index batch size must be positive, got %d", batchSize)
	}
	return &BatchIndexer{
		launches:  launches,
		logs:      logs,
		preparer:  preparer,
		client:    client,
		batchSize: batchSize,
	}, nil
}

// IndexProject indexes every non-debug, non-passed launch of the project
// and returns the number of entries the backends reported as indexed.
func (b *BatchIndexer) IndexProject(ctx context.Context, projectID int64, cfg models.AnalyzerConfig) (int64, error) {
	var (
		total  int64
		cursor int64
	)
	for {
		ids, err := b.launches.FindLaunchIDs(ctx, projectID, models.LaunchModeDebug, models.StatusPassed, cursor, b.batchSize)
		if err != nil {
			return total, err
		}
		if len(ids) == 0 {
			return total, nil
		}
		if ids[0] <= cursor {
			return total, fmt.Errorf("launch page after %d starts at %d: cursor did not advance", cursor, ids[0])
		}

		n, err := b.indexPage(ctx, ids, cfg)
		total += n
		if err != nil {
			return total, err
		}
		metrics.IndexedPages.Inc()

		logger.WithProject(projectID, "batch_indexer").WithFields(map[string]interface{}{
			"cursor":  cursor,
			"page":    len(ids),
			"indexed": n,
		}).Debug("Indexed launch page")

		if len(ids) < b.batchSize {
			return total, nil
		}
		cursor = ids[len(ids)-1]
	}
}

func (b *BatchIndexer) indexPage(ctx context.Context, ids []int64, cfg models.AnalyzerConfig) (int64, error) {
	withLogs, err := b.logs.FilterLaunchesWithLogs(ctx, ids, floor(cfg))
	if err != nil {
		return 0, err
	}
	if len(withLogs) == 0 {
		return 0, nil
	}
	snapshots, err := b.preparer.PrepareLaunches(ctx, withLogs, cfg)
	if err != nil {
		return 0, err
	}
	return b.push(ctx, snapshots)
}

// IndexLaunch indexes the logs of the given items of one launch.
func (b *BatchIndexer) IndexLaunch(ctx context.Context, launch *models.Launch, itemIDs []int64, cfg models.AnalyzerConfig) (int64, error) {
	if len(itemIDs) == 0 {
		return 0, nil
	}
	snapshot, ok, err := b.preparer.Prepare(ctx, launch, itemIDs, cfg)
	if err != nil || !ok {
		return 0, err
	}
	return b.push(ctx, []analyzer.IndexLaunch{snapshot})
}

func (b *BatchIndexer) push(ctx context.Context, snapshots []analyzer.IndexLaunch) (int64, error) {
	var total int64
	for _, batch := range partition(snapshots, b.batchSize) {
		n, err := b.client.Index(ctx, batch)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// partition splits snapshots into batches holding at most size test items.
// A launch with more items than fit is split across batches.
func partition(snapshots []analyzer.IndexLaunch, size int) [][]analyzer.IndexLaunch {
	var (
		batches [][]analyzer.IndexLaunch
		current []analyzer.IndexLaunch
		count   int
	)
	for _, l := range snapshots {
		items := l.TestItems
		for len(items) > 0 {
			n := min(size-count, len(items))
			part := l
			part.TestItems = items[:n]
			current = append(current, part)
			count += n
			items = items[n:]

			if count == size {
				batches = append(batches, current)
				current, count = nil, 0
			}
		}
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}
