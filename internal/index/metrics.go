package index

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/textbook-search/pkg/metrics"
)

// MetricsObserver records every load attempt in m: a counter by outcome,
// the load latency and the document count of the current snapshot.
func MetricsObserver(m *metrics.Metrics) Observer {
	return ObserverFunc(func(lang string, snap *Snapshot, err error, elapsed time.Duration) {
		m.IndexLoadDuration.WithLabelValues(lang).Observe(elapsed.Seconds())
		if err != nil {
			m.IndexLoadsTotal.WithLabelValues(lang, "error").Inc()
			return
		}
		m.IndexLoadsTotal.WithLabelValues(lang, "ok").Inc()
		m.IndexDocuments.WithLabelValues(lang).Set(float64(len(snap.Documents)))
	})
}
