package tasks

import (
	"context"
	"fmt"
	"sync"

	"github.com/desertthunder/syncctl/internal/models"
	"github.com/desertthunder/syncctl/internal/shared"
	"golang.org/x/time/rate"
)

// ResumeSource fetches what the resume protocol needs. [services.APIService] satisfies it.
type ResumeSource interface {
	JobFiles(ctx context.Context, id int64) ([]models.JobFile, error)
	BatchItems(ctx context.Context, id int64) ([]models.BatchItem, error)
}

// ResumeOpts configures [FetchResume].
type ResumeOpts struct {
	NumWorkers int     // Concurrent workers (default: 4)
	RateLimit  float64 // Jobs started per second (default: 10)
}

// ResumeResult holds the REST data for one running job, or the error that prevented fetching it.
type ResumeResult struct {
	Job   models.Job
	Files []models.JobFile
	Items []models.BatchItem
	Err   error
}

type resumeJob struct {
	index int
	job   models.Job
}

// FetchResume gathers file statuses and batch items for each job with a rate-limited worker pool.
//
// Results keep the order of jobs. A job without a batch id, or whose fetches fail, carries an error and is skipped by
// callers; the next snapshot retries it.
func FetchResume(ctx context.Context, src ResumeSource, jobs []models.Job, opts ResumeOpts) []ResumeResult {
	if opts.NumWorkers <= 0 {
		opts.NumWorkers = 4
	}
	if opts.NumWorkers > len(jobs) {
		opts.NumWorkers = max(len(jobs), 1)
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 10
	}

	results := make([]ResumeResult, len(jobs))
	limiter := rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	queue := make(chan resumeJob, len(jobs))

	var wg sync.WaitGroup
	for range opts.NumWorkers {
		wg.Add(1)
		go resumeWorker(ctx, &wg, src, queue, results)
	}

	for i, j := range jobs {
		if err := limiter.Wait(ctx); err != nil {
			for k := i; k < len(jobs); k++ {
				results[k] = ResumeResult{Job: jobs[k], Err: err}
			}
			break
		}
		queue <- resumeJob{index: i, job: j}
	}
	close(queue)
	wg.Wait()
	return results
}

func resumeWorker(
	ctx context.Context,
	wg *sync.WaitGroup,
	src ResumeSource,
	queue <-chan resumeJob,
	results []ResumeResult,
) {
	defer wg.Done()

	for rj := range queue {
		select {
		case <-ctx.Done():
			results[rj.index] = ResumeResult{Job: rj.job, Err: ctx.Err()}
			continue
		default:
		}
		results[rj.index] = fetchOne(ctx, src, rj.job)
	}
}

func fetchOne(ctx context.Context, src ResumeSource, job models.Job) ResumeResult {
	res := ResumeResult{Job: job}

	batchID, ok := job.Metadata.BatchID()
	if !ok {
		res.Err = fmt.Errorf("%w: job %d has no batch_id", shared.ErrInvalidInput, job.ID)
		return res
	}

	files, err := src.JobFiles(ctx, job.ID)
	if err != nil {
		res.Err = fmt.Errorf("failed to fetch files of job %d: %w", job.ID, err)
		return res
	}
	items, err := src.BatchItems(ctx, batchID)
	if err != nil {
		res.Err = fmt.Errorf("failed to fetch items of batch %d: %w", batchID, err)
		return res
	}

	res.Files, res.Items = files, items
	return res
}

// ItemStatus is a batch item joined with its recorded outcome in one job.
type ItemStatus struct {
	models.BatchItem
	FileStatus string // copied, failed, skipped, or pending when the job has no record for the path
	FileError  string
}

// Annotate joins items with a job's file-status list on path. Neither input is modified.
func Annotate(items []models.BatchItem, files []models.JobFile) []ItemStatus {
	byPath := make(map[string]models.JobFile, len(files))
	for _, f := range files {
		byPath[f.FilePath] = f
	}

	out := make([]ItemStatus, len(items))
	for i, it := range items {
		st := ItemStatus{BatchItem: it, FileStatus: models.FilePending}
		if f, ok := byPath[it.FullRelPath]; ok {
			st.FileStatus = f.Status
			st.FileError = f.ErrorMessage
		}
		if it.Enabled != nil {
			v := *it.Enabled
			st.Enabled = &v
		}
		out[i] = st
	}
	return out
}
