// Package tasks reconciles live job progress from push events and authoritative snapshots.
//
// # Records
//
// A [Reconciler] keeps one [Progress] record per job, keyed by (type, id) because the backend numbers each job type
// separately. Copy records that name a batch are also indexed by batch id, since views that start a copy only know the
// batch until the first event arrives.
//
// Records move Idle → Started → Progressing → Finished | Failed. Terminal records stay visible until the caller
// retires them with [Reconciler.Expire]; afterwards late or replayed events for that job are ignored.
//
// # Merge Rules
//
//   - Absent fields never overwrite known values
//   - Count and copied size are taken from the backend and never decrease
//   - A second terminal event for the same job is a no-op
//
// # Resume
//
// A client that attaches while copies are running rebuilds their records from REST data: [FetchResume] pulls each running
// job's file statuses and batch items through a small rate-limited worker pool, and [Reconciler.Resume] seeds records
// from them. The result matches what a client connected since job start would show.
//
// # File Status Annotation
//
// [Annotate] joins batch items with a job's file-status list on path. It returns new values and never changes either input,
// so toggling an item's enabled flag cannot rewrite a recorded file outcome.
package tasks
