package models

import (
	"time"

	"github.com/aukilabs/quadtree/quadtree"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	spaceLabel   = "space"
	resultLabel  = "result"
	errTypeLabel = "error_type"
)

var (
	spaceCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "quadtree_space_count",
		Help: "The number of spaces.",
	}, []string{spaceLabel})

	spaceCountTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quadtree_space_count_total",
		Help: "The total number of spaces.",
	}, []string{spaceLabel})

	entityCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "quadtree_entity_count",
		Help: "The number of indexed entities.",
	}, []string{spaceLabel})

	nodeCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "quadtree_node_count",
		Help: "The number of index nodes.",
	}, []string{spaceLabel})

	expansionCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quadtree_root_expansions_total",
		Help: "The total number of index root expansions.",
	}, []string{spaceLabel})

	updateCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quadtree_updates_total",
		Help: "The total number of entity movements by outcome.",
	}, []string{spaceLabel, resultLabel})

	indexErrorCount = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quadtree_index_errors_total",
		Help: "The total number of failed index operations.",
	}, []string{spaceLabel, errTypeLabel})

	frameLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "quadtree_frame_duration_seconds",
		Help:    "The time spent moving entities during a frame.",
		Buckets: prometheus.ExponentialBuckets(0.00005, 2, 14),
	}, []string{spaceLabel})
)

func instrumentIncreaseSpaceGauge(space string) {
	spaceCount.
		With(prometheus.Labels{spaceLabel: space}).
		Inc()
}

func instrumentDecreaseSpaceGauge(space string) {
	spaceCount.
		With(prometheus.Labels{spaceLabel: space}).
		Dec()
}

func instrumentCountSpace(space string) {
	spaceCountTotal.
		With(prometheus.Labels{spaceLabel: space}).
		Inc()
}

// instrumentTree reports the counters that moved between two tree stats
// snapshots.
func instrumentTree(space string, prev, cur quadtree.Stats) {
	labels := prometheus.Labels{spaceLabel: space}

	entityCount.With(labels).Add(float64(cur.Entities - prev.Entities))
	nodeCount.With(labels).Add(float64(cur.Nodes - prev.Nodes))

	if d := cur.Expansions - prev.Expansions; d != 0 {
		expansionCount.With(labels).Add(float64(d))
	}

	instrumentUpdates(space, "skipped", cur.UpdatesSkipped-prev.UpdatesSkipped)
	instrumentUpdates(space, "in_place", cur.UpdatesInPlace-prev.UpdatesInPlace)
	instrumentUpdates(space, "reinserted", cur.UpdatesReinserted-prev.UpdatesReinserted)
}

func instrumentUpdates(space, result string, n uint64) {
	if n == 0 {
		return
	}

	updateCount.
		With(prometheus.Labels{spaceLabel: space, resultLabel: result}).
		Add(float64(n))
}

func instrumentIndexError(space, errType string) {
	indexErrorCount.
		With(prometheus.Labels{spaceLabel: space, errTypeLabel: errType}).
		Inc()
}

func instrumentFrame(space string, start time.Time) {
	frameLatency.
		With(prometheus.Labels{spaceLabel: space}).
		Observe(time.Since(start).Seconds())
}
