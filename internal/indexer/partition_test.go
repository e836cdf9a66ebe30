package indexer

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/autolog/autoanalysis/internal/analyzer"
)

func launchOf(id int64, items int) analyzer.IndexLaunch {
	l := analyzer.IndexLaunch{LaunchID: id}
	for i := 0; i < items; i++ {
		l.TestItems = append(l.TestItems, analyzer.IndexTestItem{TestItemID: id*100 + int64(i)})
	}
	return l
}

func TestPartition(t *testing.T) {
	batches := partition([]analyzer.IndexLaunch{launchOf(1, 3), launchOf(2, 4), launchOf(3, 1)}, 5)

	var sizes [][]int
	for _, b := range batches {
		var s []int
		for _, l := range b {
			s = append(s, len(l.TestItems))
		}
		sizes = append(sizes, s)
	}
	assert.Equal(t, [][]int{{3, 2}, {2, 1}}, sizes)
	assert.Equal(t, int64(2), batches[1][0].LaunchID)
	assert.Equal(t, int64(202), batches[1][0].TestItems[0].TestItemID)
}

func TestPartitionEmpty(t *testing.T) {
	assert.Empty(t, partition(nil, 5))
	assert.Empty(t, partition([]analyzer.IndexLaunch{{LaunchID: 1}}, 5))
}
