// Package mounts keeps the reachability record of the three storage endpoints.
//
// The record starts pessimistic (nothing reachable, restricted mode on). [Aggregator.Load] replaces it with the backend's
// authoritative copy and [Aggregator.Apply] shallow-merges push patches on top. Restricted mode is read from the payload
// and never derived locally.
package mounts

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/syncctl/internal/models"
	"github.com/desertthunder/syncctl/internal/shared"
)

// Source fetches and re-checks mount status. [services.APIService] satisfies it.
type Source interface {
	MountStatus(ctx context.Context) (*models.MountStatus, error)
	RefreshMounts(ctx context.Context) (*models.MountStatus, error)
}

// Aggregator combines the loaded record with partial push updates.
type Aggregator struct {
	src    Source
	logger *log.Logger

	mu     sync.RWMutex
	status models.MountStatus
	loaded bool
}

// NewAggregator creates an aggregator holding the pessimistic record.
func NewAggregator(src Source, logger *log.Logger) *Aggregator {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Aggregator{
		src:    src,
		logger: shared.WithLogger(logger, "component", "mounts"),
		status: models.PessimisticMountStatus(),
	}
}

// Load fetches the authoritative record. On failure the current record is kept and the error returned.
func (a *Aggregator) Load(ctx context.Context) error {
	st, err := a.src.MountStatus(ctx)
	if err != nil {
		a.logger.Warn("mount status load failed", "err", err)
		return err
	}
	a.Set(*st)
	return nil
}

// Refresh asks the backend to re-check every mount and stores the result.
func (a *Aggregator) Refresh(ctx context.Context) error {
	st, err := a.src.RefreshMounts(ctx)
	if err != nil {
		a.logger.Warn("mount refresh failed", "err", err)
		return err
	}
	a.Set(*st)
	return nil
}

// Set replaces the whole record.
func (a *Aggregator) Set(st models.MountStatus) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = st
	a.loaded = true
}

// Apply shallow-merges a push patch. A patch that fails to decode is logged and leaves the record unchanged.
func (a *Aggregator) Apply(patch json.RawMessage) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	next, err := a.status.Merge(patch)
	if err != nil {
		a.logger.Warn("dropping mount status patch", "err", err)
		return err
	}
	a.status = next
	return nil
}

// Status returns the current record.
func (a *Aggregator) Status() models.MountStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

// Loaded reports whether an authoritative record has been received.
func (a *Aggregator) Loaded() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.loaded
}

// Restricted reports the backend's restricted-mode flag.
func (a *Aggregator) Restricted() bool {
	return a.Status().Restricted
}
