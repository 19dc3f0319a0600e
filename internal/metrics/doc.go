// Package metrics provides the observability hooks for the pipeline agent.
//
// Components receive a Recorder through their config structs and default to
// NoopRecorder, so no call site needs a nil check:
//
//	store := status.NewStore(status.StoreConfig{Recorder: metrics.NoopRecorder{}})
//
// PrometheusRecorder registers the real collectors on a caller-supplied
// registry and HTTPHandler exposes that registry for scraping.
package metrics
