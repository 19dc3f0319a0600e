// Package watcher turns filesystem notifications into debounced pipeline
// triggers, one quiet window per burst of file modifications.
package watcher
