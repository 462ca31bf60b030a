// Package services implements the REST client for the migration backend.
//
// # Transport
//
// [APIService] wraps an [http.Client] with a shared rate limiter. Get, Post, Put and Delete return the raw [APIResponse];
// the typed methods decode JSON bodies into [models] types and turn non-2xx responses into [*APIError].
//
// # Resources
//
//   - Datasets, scans, comparisons ("diffs") and batches ("plans"): list, create, delete
//   - Batch items: paged listing, per-item and bulk enable toggles, offline copy script export
//   - Copy jobs: start per direction, list, fetch, per-file status, retry, verify, delete
//   - Mount status: fetch and ask the backend to re-check
//
// Creating a scan, comparison, batch or copy returns as soon as the backend records the job. Progress arrives on the push channel.
//
// # Error Handling
//
// [*APIError] unwraps to the shared sentinels:
//   - [shared.ErrAPIRequest] : every non-2xx response
//   - [shared.ErrRestricted] : 503 with a SAFE MODE detail, the backend refusing mutations
//   - [shared.ErrServiceUnavailable] : other 503s and transport failures
//   - [shared.ErrNotFound] : 404
package services
