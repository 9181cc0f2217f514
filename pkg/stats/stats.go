package stats

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

const (
	BYTE = 1 << (10 * iota)
	KILOBYTE
	MEGABYTE
	GIGABYTE
)

// EnableMemoryStatistics enables go routine that periodically logs memory
// usage of the go process and samples the goroutine gauge. When ctx is done
// the default prometheus metrics are dumped to a file in the given dir.
func EnableMemoryStatistics(
	ctx context.Context, interval time.Duration, dumpDir string,
) {
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				PrintMemoryStatistics()
				GoroutineCount.Set(float64(runtime.NumGoroutine()))
			case <-ctx.Done():
				if err := DumpPrometheusDefaults(dumpDir); err != nil {
					log.WithError(err).Warn("failed to dump prometheus metrics")
				}
				return
			}
		}
	}()
}

func toMegabytes(bytes uint64) float64 {
	return float64(bytes) / MEGABYTE
}

// PrintMemoryStatistics logs memory statistics using go runtime library.
func PrintMemoryStatistics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	log.Debugf(
		"Total allocated: %.3fMB, Heap allocated: %.3fMB, "+
			"Allocated objects count: %v, Freed objects count: %v, "+
			"Num of go routines: %v",
		toMegabytes(memStats.TotalAlloc),
		toMegabytes(memStats.HeapAlloc),
		memStats.Mallocs,
		memStats.Frees,
		runtime.NumGoroutine(),
	)
}

// DumpPrometheusDefaults write default Prometheus metrics to a stats file in
// the given directory.
func DumpPrometheusDefaults(dir string) error {
	file, err := os.OpenFile(
		filepath.Join(dir, "stats"),
		os.O_APPEND|os.O_CREATE|os.O_RDWR,
		0644,
	)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	metricFamily, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return err
	}
	for _, v := range metricFamily {
		if _, err := writer.WriteString(v.String() + "\n"); err != nil {
			return err
		}
	}

	return writer.Flush()
}
