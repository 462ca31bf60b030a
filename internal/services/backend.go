package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/desertthunder/syncctl/internal/models"
)

// itemsPageSize is the page size used when walking paginated item lists.
const itemsPageSize = 1000

// Health is the backend liveness response.
type Health struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// Health checks the backend. It stays reachable in restricted mode.
func (a *APIService) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := a.call(ctx, http.MethodGet, "/api/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Datasets lists every dataset.
func (a *APIService) Datasets(ctx context.Context) ([]models.Dataset, error) {
	var out []models.Dataset
	err := a.call(ctx, http.MethodGet, "/api/datasets/", nil, &out)
	return out, err
}

// Dataset fetches one dataset.
func (a *APIService) Dataset(ctx context.Context, id int64) (*models.Dataset, error) {
	var out models.Dataset
	if err := a.call(ctx, http.MethodGet, fmt.Sprintf("/api/datasets/%d", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateDataset registers a dataset.
func (a *APIService) CreateDataset(ctx context.Context, in models.DatasetInput) (*models.Dataset, error) {
	var out models.Dataset
	if err := a.call(ctx, http.MethodPost, "/api/datasets/", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateDataset replaces a dataset's definition.
func (a *APIService) UpdateDataset(ctx context.Context, id int64, in models.DatasetInput) (*models.Dataset, error) {
	var out models.Dataset
	if err := a.call(ctx, http.MethodPut, fmt.Sprintf("/api/datasets/%d", id), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteDataset removes a dataset.
func (a *APIService) DeleteDataset(ctx context.Context, id int64) error {
	return a.call(ctx, http.MethodDelete, fmt.Sprintf("/api/datasets/%d", id), nil, nil)
}

// Scans lists every scan.
func (a *APIService) Scans(ctx context.Context) ([]models.Scan, error) {
	var out []models.Scan
	err := a.call(ctx, http.MethodGet, "/api/scans/", nil, &out)
	return out, err
}

// CreateScan starts a scan job for a dataset. The job runs in the background.
func (a *APIService) CreateScan(ctx context.Context, datasetID int64) (*models.Scan, error) {
	var out models.Scan
	body := map[string]int64{"dataset_id": datasetID}
	if err := a.call(ctx, http.MethodPost, "/api/scans/", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteScan removes a scan.
func (a *APIService) DeleteScan(ctx context.Context, id int64) error {
	return a.call(ctx, http.MethodDelete, fmt.Sprintf("/api/scans/%d", id), nil, nil)
}

// ScanFiles returns one page of a scan's file list.
func (a *APIService) ScanFiles(ctx context.Context, id int64, skip, limit int) ([]models.ScanFile, error) {
	var out []models.ScanFile
	err := a.call(ctx, http.MethodGet, pagePath(fmt.Sprintf("/api/scans/%d/files", id), skip, limit), nil, &out)
	return out, err
}

// Comparisons lists every comparison.
func (a *APIService) Comparisons(ctx context.Context) ([]models.Comparison, error) {
	var out []models.Comparison
	err := a.call(ctx, http.MethodGet, "/api/diffs/", nil, &out)
	return out, err
}

// CreateComparison starts a comparison job between two scans.
func (a *APIService) CreateComparison(ctx context.Context, sourceScanID, targetScanID int64) (*models.Comparison, error) {
	var out models.Comparison
	body := map[string]int64{"source_scan_id": sourceScanID, "target_scan_id": targetScanID}
	if err := a.call(ctx, http.MethodPost, "/api/diffs/", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteComparison removes a comparison.
func (a *APIService) DeleteComparison(ctx context.Context, id int64) error {
	return a.call(ctx, http.MethodDelete, fmt.Sprintf("/api/diffs/%d", id), nil, nil)
}

// ComparisonSummary returns per-category counts and sizes.
func (a *APIService) ComparisonSummary(ctx context.Context, id int64) (*models.ComparisonSummary, error) {
	var out models.ComparisonSummary
	if err := a.call(ctx, http.MethodGet, fmt.Sprintf("/api/diffs/%d/summary", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ComparisonItems returns one page of categorized paths.
func (a *APIService) ComparisonItems(ctx context.Context, id int64, skip, limit int) ([]models.ComparisonItem, error) {
	var out []models.ComparisonItem
	err := a.call(ctx, http.MethodGet, pagePath(fmt.Sprintf("/api/diffs/%d/items", id), skip, limit), nil, &out)
	return out, err
}

// Batches lists every plan.
func (a *APIService) Batches(ctx context.Context) ([]models.Batch, error) {
	var out []models.Batch
	err := a.call(ctx, http.MethodGet, "/api/batches/", nil, &out)
	return out, err
}

// Batch fetches one plan.
func (a *APIService) Batch(ctx context.Context, id int64) (*models.Batch, error) {
	var out models.Batch
	if err := a.call(ctx, http.MethodGet, fmt.Sprintf("/api/batches/%d", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateBatch starts planning a batch from a comparison.
func (a *APIService) CreateBatch(ctx context.Context, in models.BatchInput) (*models.Batch, error) {
	var out models.Batch
	if err := a.call(ctx, http.MethodPost, "/api/batches/", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteBatch removes a plan.
func (a *APIService) DeleteBatch(ctx context.Context, id int64) error {
	return a.call(ctx, http.MethodDelete, fmt.Sprintf("/api/batches/%d", id), nil, nil)
}

// BatchItemsPage returns one page of a plan's items.
func (a *APIService) BatchItemsPage(ctx context.Context, id int64, skip, limit int) ([]models.BatchItem, error) {
	var out []models.BatchItem
	err := a.call(ctx, http.MethodGet, pagePath(fmt.Sprintf("/api/batches/%d/items", id), skip, limit), nil, &out)
	return out, err
}

// BatchItems walks every page of a plan's items.
func (a *APIService) BatchItems(ctx context.Context, id int64) ([]models.BatchItem, error) {
	var all []models.BatchItem
	for skip := 0; ; skip += itemsPageSize {
		page, err := a.BatchItemsPage(ctx, id, skip, itemsPageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < itemsPageSize {
			return all, nil
		}
	}
}

// BatchSummary returns the plan's size against the intermediate medium.
func (a *APIService) BatchSummary(ctx context.Context, id int64) (*models.BatchSummary, error) {
	var out models.BatchSummary
	if err := a.call(ctx, http.MethodGet, fmt.Sprintf("/api/batches/%d/summary", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetItemEnabled includes or excludes one item from future copy actions.
func (a *APIService) SetItemEnabled(ctx context.Context, batchID, itemID int64, enabled bool) error {
	path := fmt.Sprintf("/api/batches/%d/items/%d/enabled?enabled=%t", batchID, itemID, enabled)
	return a.call(ctx, http.MethodPut, path, nil, nil)
}

// SetAllEnabled includes or excludes every item of a plan.
func (a *APIService) SetAllEnabled(ctx context.Context, batchID int64, enabled bool) error {
	path := fmt.Sprintf("/api/batches/%d/items/toggle-all?enabled=%t", batchID, enabled)
	return a.call(ctx, http.MethodPut, path, nil, nil)
}

// BatchScript downloads the shell script that performs a plan's copy offline.
func (a *APIService) BatchScript(ctx context.Context, batchID int64, dir models.Direction) ([]byte, error) {
	path := fmt.Sprintf("/api/batches/%d/script?direction=%s", batchID, url.QueryEscape(dir.ScriptDirection()))
	resp, err := a.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, &APIError{Method: http.MethodGet, Path: path, Status: resp.StatusCode, Detail: detailOf(resp.Body)}
	}
	return resp.Body, nil
}

// StartCopy launches a copy job for one leg. The backend returns as soon as the job is recorded.
func (a *APIService) StartCopy(ctx context.Context, dir models.Direction, req models.CopyRequest) (*models.Job, error) {
	var path string
	switch dir {
	case models.DirectionOut:
		path = "/api/copy/nas1-usb"
	case models.DirectionIn:
		path = "/api/copy/usb-nas2"
	default:
		return nil, fmt.Errorf("unknown copy direction %q", dir)
	}

	var out models.Job
	if err := a.call(ctx, http.MethodPost, path, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Jobs lists job runs, newest first as the backend orders them.
func (a *APIService) Jobs(ctx context.Context) ([]models.Job, error) {
	var out []models.Job
	err := a.call(ctx, http.MethodGet, "/api/copy/jobs", nil, &out)
	return out, err
}

// Job fetches one job run, including its stored log.
func (a *APIService) Job(ctx context.Context, id int64) (*models.Job, error) {
	var out models.Job
	if err := a.call(ctx, http.MethodGet, fmt.Sprintf("/api/copy/jobs/%d", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// JobFiles returns the per-file status list of a copy job.
func (a *APIService) JobFiles(ctx context.Context, id int64) ([]models.JobFile, error) {
	var out []models.JobFile
	err := a.call(ctx, http.MethodGet, fmt.Sprintf("/api/copy/jobs/%d/files", id), nil, &out)
	return out, err
}

// RetryJob starts a new copy job against the failed job's batch.
func (a *APIService) RetryJob(ctx context.Context, id int64) (*models.Job, error) {
	var out models.Job
	if err := a.call(ctx, http.MethodPost, fmt.Sprintf("/api/copy/jobs/%d/retry", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyJob asks the backend to check a copy job's files at the destination.
func (a *APIService) VerifyJob(ctx context.Context, id int64) (*models.VerifyResult, error) {
	var out models.VerifyResult
	if err := a.call(ctx, http.MethodGet, fmt.Sprintf("/api/copy/jobs/%d/verify", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteJob removes a job run and its file records.
func (a *APIService) DeleteJob(ctx context.Context, id int64) error {
	return a.call(ctx, http.MethodDelete, fmt.Sprintf("/api/copy/jobs/%d", id), nil, nil)
}

// MountStatus fetches the authoritative reachability record.
func (a *APIService) MountStatus(ctx context.Context) (*models.MountStatus, error) {
	var out models.MountStatus
	if err := a.call(ctx, http.MethodGet, "/api/mounts/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RefreshMounts asks the backend to re-check every mount and returns the new record.
func (a *APIService) RefreshMounts(ctx context.Context) (*models.MountStatus, error) {
	var out models.MountStatus
	if err := a.call(ctx, http.MethodPost, "/api/mounts/status/refresh", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func pagePath(base string, skip, limit int) string {
	q := url.Values{}
	if skip > 0 {
		q.Set("skip", strconv.Itoa(skip))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if len(q) == 0 {
		return base
	}
	return base + "?" + q.Encode()
}
