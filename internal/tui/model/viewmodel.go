package model

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/matheus3301/wppbridge/internal/api"
	"github.com/matheus3301/wppbridge/internal/bus"
	intsync "github.com/matheus3301/wppbridge/internal/sync"
	"github.com/matheus3301/wppbridge/internal/wa"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// PendingLimit bounds how many unsynced rows the monitor fetches.
const PendingLimit = 200

// Source is the part of the daemon client the monitor reads from.
type Source interface {
	Status(ctx context.Context) (*api.StatusResponse, error)
	Unsynced(ctx context.Context, limit int) (*api.UnsyncedResponse, error)
	Health(ctx context.Context) (healthpb.HealthCheckResponse_ServingStatus, error)
	Sweep(ctx context.Context) (*intsync.SweepResult, error)
}

// ViewModel caches what the monitor shows between polls.
type ViewModel struct {
	mu sync.RWMutex

	src     Source
	status  *api.StatusResponse
	pending []api.MessageJSON
	total   int64
	health  string
	filter  string
	qrCode  string

	Flash Flash
}

func NewViewModel(src Source) *ViewModel {
	return &ViewModel{src: src, health: "UNKNOWN"}
}

// Refresh reloads status, health and the unsynced rows. A daemon that does
// not answer is reported through the error and leaves the cache untouched.
func (vm *ViewModel) Refresh(ctx context.Context) error {
	st, err := vm.src.Status(ctx)
	if err != nil {
		return err
	}
	pending, err := vm.src.Unsynced(ctx, PendingLimit)
	if err != nil {
		return err
	}
	health := "UNREACHABLE"
	if h, err := vm.src.Health(ctx); err == nil {
		health = h.String()
	}

	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.status = st
	vm.pending = pending.Messages
	vm.total = pending.Total
	vm.health = health
	return nil
}

// RunSweep asks the daemon for a pass and reports the outcome as a flash.
func (vm *ViewModel) RunSweep(ctx context.Context) error {
	res, err := vm.src.Sweep(ctx)
	if err != nil {
		vm.Flash.Err(err)
		return err
	}
	vm.Flash.Info(SweepSummary(res))
	return nil
}

// Apply folds a streamed event into the cache. It returns true when the
// event makes a fresh poll worthwhile.
func (vm *ViewModel) Apply(f api.EventFrame) bool {
	switch f.Kind {
	case bus.KindQRGenerated:
		var evt wa.AuthEvent
		if json.Unmarshal(f.Payload, &evt) == nil {
			vm.mu.Lock()
			vm.qrCode = evt.QRCode
			vm.mu.Unlock()
		}
		return false
	case bus.KindAuthenticated:
		vm.mu.Lock()
		vm.qrCode = ""
		vm.mu.Unlock()
		vm.Flash.Info("paired")
		return true
	case bus.KindAuthFailed:
		var evt wa.AuthEvent
		_ = json.Unmarshal(f.Payload, &evt)
		vm.Flash.Warn("pairing failed: " + evt.Message)
		return true
	case bus.KindSweepDone:
		var res intsync.SweepResult
		if json.Unmarshal(f.Payload, &res) == nil && res.Failed > 0 {
			vm.Flash.Warn(SweepSummary(&res))
		}
		return true
	case bus.KindStatusChanged, bus.KindLoggedOut, bus.KindMessageSynced, bus.KindMessageUpserted, bus.KindMessageStatus:
		return true
	}
	return false
}

// SetFilter keeps only pending rows whose counterparty contains s.
func (vm *ViewModel) SetFilter(s string) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.filter = strings.TrimSpace(s)
}

func (vm *ViewModel) Filter() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.filter
}

// Status returns the last polled status, or nil before the first poll.
func (vm *ViewModel) Status() *api.StatusResponse {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.status
}

func (vm *ViewModel) Health() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.health
}

// QRCode returns the latest pairing code seen on the event stream.
func (vm *ViewModel) QRCode() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.qrCode
}

// Pending returns the filtered unsynced rows and the unfiltered total.
func (vm *ViewModel) Pending() ([]api.MessageJSON, int64) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	if vm.filter == "" {
		return vm.pending, vm.total
	}
	out := make([]api.MessageJSON, 0, len(vm.pending))
	for _, m := range vm.pending {
		if strings.Contains(m.Counterparty, vm.filter) {
			out = append(out, m)
		}
	}
	return out, vm.total
}

// SweepSummary renders a pass as one line.
func SweepSummary(r *intsync.SweepResult) string {
	s := fmt.Sprintf("sweep: %d scanned, %d messages, %d statuses, %d failed",
		r.Scanned, r.Messages, r.Statuses, r.Failed)
	if r.Incomplete {
		s += " (incomplete)"
	}
	return s
}
