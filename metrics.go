package fgddem

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tilesParsed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fgddem_tiles_parsed_total",
		Help: "The total number of tile documents parsed",
	})
	tileFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fgddem_tile_failures_total",
		Help: "The total number of tile documents that could not be used",
	}, []string{"stage"})
	rastersWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fgddem_rasters_written_total",
		Help: "The total number of GeoTIFF files written",
	})
	reprojections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fgddem_reprojections_total",
		Help: "The total number of reprojections by result",
	}, []string{"result"})
	chunkCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fgddem_chunk_cache_hits_total",
		Help: "The total number of hits on the decoded chunk cache",
	})
	chunkCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fgddem_chunk_cache_misses_total",
		Help: "The total number of misses on the decoded chunk cache",
	})
	tileSetCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fgddem_tile_set_cache_hits_total",
		Help: "The total number of hits on the open file cache",
	})
	tileSetCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fgddem_tile_set_cache_misses_total",
		Help: "The total number of misses on the open file cache",
	})
	tileSetCacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fgddem_tile_set_cache_evictions_total",
		Help: "The total number of evictions from the open file cache",
	})
)

// WriteMetricsFile writes all registered metrics to path in the Prometheus
// text format, for collection by the node exporter's textfile collector.
func WriteMetricsFile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
