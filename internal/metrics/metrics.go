package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	NAMESPACE      = "aurum2mqtt"
	RESULT_SUCCESS = "success"
	RESULT_FAILURE = "failure"
)

var (
	refreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: NAMESPACE,
		Name:      "refresh_total",
		Help:      "Refreshes of a config entry by result.",
	}, []string{"entry", "result"})

	refreshDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: NAMESPACE,
		Name:      "refresh_duration_seconds",
		Help:      "Duration of the device fetch of a config entry.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"entry"})

	entities = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: NAMESPACE,
		Name:      "entities",
		Help:      "Sensor entities created for a config entry.",
	}, []string{"entry"})

	available = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: NAMESPACE,
		Name:      "entry_available",
		Help:      "1 when the last refresh of a config entry succeeded.",
	}, []string{"entry"})
)

func ObserveRefresh(entryId string, success bool, duration time.Duration) {
	result := RESULT_FAILURE
	if success {
		result = RESULT_SUCCESS
		refreshDuration.WithLabelValues(entryId).Observe(duration.Seconds())
	}
	refreshTotal.WithLabelValues(entryId, result).Inc()
}

func SetEntities(entryId string, count int) {
	entities.WithLabelValues(entryId).Set(float64(count))
}

func SetAvailable(entryId string, value bool) {
	v := 0.0
	if value {
		v = 1
	}
	available.WithLabelValues(entryId).Set(v)
}

// Forget drops every series of a removed entry.
func Forget(entryId string) {
	refreshTotal.DeletePartialMatch(prometheus.Labels{"entry": entryId})
	refreshDuration.DeleteLabelValues(entryId)
	entities.DeleteLabelValues(entryId)
	available.DeleteLabelValues(entryId)
}
