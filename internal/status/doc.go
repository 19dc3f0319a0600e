// Package status holds the build status store: the single source of truth for
// pipeline progress, written by the pipeline executor and read concurrently by
// any number of observers.
//
// Every mutation happens under the store lock and readers only ever receive
// copies, so a reader never observes a partially written record. Status
// transitions follow the fixed chain
//
//	pending -> parsing -> testing -> building -> deploying -> success
//
// with a jump to failed allowed from any non-terminal status. Records in
// success or failed are immutable.
package status
