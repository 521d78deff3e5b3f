package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/moroshma/vizscout/internal/domain/entity"
)

// Collector records load progress as prometheus metrics.
// It satisfies usecase.Observer.
type Collector struct {
	registry *prometheus.Registry

	objectsLoaded  *prometheus.CounterVec
	bytesLoaded    *prometheus.CounterVec
	objectsSkipped *prometheus.CounterVec
	loads          *prometheus.CounterVec
	loadDuration   *prometheus.HistogramVec
}

// NewCollector creates a collector with its own registry under namespace
func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		objectsLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "objects_loaded_total",
			Help:      "Images read into memory.",
		}, []string{"origin"}),
		bytesLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_loaded_total",
			Help:      "Bytes of image data read into memory.",
		}, []string{"origin"}),
		objectsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "objects_skipped_total",
			Help:      "Listed objects ignored because they are not images.",
		}, []string{"origin"}),
		loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loads_total",
			Help:      "Finished loads by outcome.",
		}, []string{"origin", "result"}),
		loadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "load_duration_seconds",
			Help:      "Wall time of a whole load.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"origin"}),
	}

	c.registry.MustRegister(c.objectsLoaded, c.bytesLoaded, c.objectsSkipped, c.loads, c.loadDuration)
	return c
}

// Registry exposes the underlying registry for gathering
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) ObjectLoaded(kind entity.OriginKind, size int) {
	c.objectsLoaded.WithLabelValues(string(kind)).Inc()
	c.bytesLoaded.WithLabelValues(string(kind)).Add(float64(size))
}

func (c *Collector) ObjectSkipped(kind entity.OriginKind) {
	c.objectsSkipped.WithLabelValues(string(kind)).Inc()
}

// LoadFinished labels failures with their error class, e.g. result="transport"
func (c *Collector) LoadFinished(kind entity.OriginKind, _ int, elapsed time.Duration, err error) {
	result := "success"
	if err != nil {
		result = entity.ErrorClass(err)
	}
	c.loads.WithLabelValues(string(kind), result).Inc()
	c.loadDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

// WriteTextfile dumps the registry in text format for the node exporter textfile collector
func (c *Collector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.registry)
}
