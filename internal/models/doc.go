// Package models defines the entities the migration backend exposes and the console mirrors.
//
// The package contains two categories of types:
//
// 1. Workflow entities, owned by the backend and never mutated locally:
//   - [Dataset] : a named set of roots at one [Location]
//   - [Scan] : an inventory of a dataset at a point in time
//   - [Comparison] : the categorized difference between two scans
//   - [Batch] and [BatchItem] : a copy plan derived from a comparison
//   - [Job] and [JobFile] : a backend job and its per-file results
//
// 2. Reachability: [MountStatus] describes which endpoints are mounted and whether the backend is in restricted mode.
// [MountStatus.Merge] applies a partial push payload with shallow (top-level key) semantics.
//
// Timestamps from the backend may omit a zone offset; [Timestamp] accepts both forms and treats zone-less values as UTC.
package models
