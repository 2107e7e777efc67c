package fgddem

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestWriteMetricsFile(t *testing.T) {
	rastersWritten.Add(0)
	reprojections.WithLabelValues("skipped").Add(0)

	path := filepath.Join(t.TempDir(), "fgddem.prom")
	assert.NoError(t, WriteMetricsFile(path))

	data, err := os.ReadFile(path)
	assert.NoError(t, err)
	assert.Contains(t, string(data), "fgddem_rasters_written_total")
	assert.Contains(t, string(data), `fgddem_reprojections_total{result="skipped"}`)
}
