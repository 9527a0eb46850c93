package api

import (
	"net/http"

	"github.com/heysubinoy/pyazwatch/internal/store"
)

// MetricsHandler returns current store metrics as JSON. mem may be nil
// when the instrumented store does not wrap a MemStore.
func MetricsHandler(instrumentedStore *store.InstrumentedStore, mem *store.MemStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		metrics := instrumentedStore.GetMetrics()

		response := map[string]interface{}{
			"operations": map[string]uint64{
				"get":    metrics.GetCount,
				"find":   metrics.FindCount,
				"set":    metrics.SetCount,
				"delete": metrics.DeleteCount,
			},
			"avg_latency": map[string]string{
				"get":    metrics.GetAvgLatency.String(),
				"find":   metrics.FindAvgLatency.String(),
				"set":    metrics.SetAvgLatency.String(),
				"delete": metrics.DeleteAvgLatency.String(),
			},
			"watch": map[string]uint64{
				"changes":         metrics.Changes,
				"subscriptions":   metrics.Subscriptions,
				"unsubscriptions": metrics.Unsubscriptions,
				"deliveries":      metrics.Deliveries,
			},
		}
		if mem != nil {
			response["store_id"] = mem.ID()
			response["store"] = mem.Stats()
		}

		writeJSON(w, response)
	}
}
