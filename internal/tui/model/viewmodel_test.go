package model

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/matheus3301/wppbridge/internal/api"
	"github.com/matheus3301/wppbridge/internal/bus"
	"github.com/matheus3301/wppbridge/internal/notify"
	"github.com/matheus3301/wppbridge/internal/status"
	intsync "github.com/matheus3301/wppbridge/internal/sync"
	"github.com/matheus3301/wppbridge/internal/wa"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type fakeSource struct {
	statusErr error
	healthErr error
	sweepErr  error
	pending   []api.MessageJSON
}

func (f *fakeSource) Status(context.Context) (*api.StatusResponse, error) {
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return &api.StatusResponse{Instance: "main", State: status.Ready}, nil
}

func (f *fakeSource) Unsynced(context.Context, int) (*api.UnsyncedResponse, error) {
	return &api.UnsyncedResponse{Total: int64(len(f.pending)), Messages: f.pending}, nil
}

func (f *fakeSource) Health(context.Context) (healthpb.HealthCheckResponse_ServingStatus, error) {
	if f.healthErr != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, f.healthErr
	}
	return healthpb.HealthCheckResponse_SERVING, nil
}

func (f *fakeSource) Sweep(context.Context) (*intsync.SweepResult, error) {
	if f.sweepErr != nil {
		return nil, f.sweepErr
	}
	return &intsync.SweepResult{Scanned: 3, Messages: 2, Statuses: 1}, nil
}

func pendingRow(id, counterparty string) api.MessageJSON {
	return api.MessageJSON{MessagePayload: notify.MessagePayload{MsgID: id, Counterparty: counterparty}}
}

func TestRefreshCachesSnapshot(t *testing.T) {
	src := &fakeSource{pending: []api.MessageJSON{pendingRow("A", "1@s"), pendingRow("B", "2@s")}}
	vm := NewViewModel(src)

	if err := vm.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	if st := vm.Status(); st == nil || st.State != status.Ready {
		t.Errorf("status = %+v", st)
	}
	if vm.Health() != "SERVING" {
		t.Errorf("health = %q", vm.Health())
	}
	rows, total := vm.Pending()
	if len(rows) != 2 || total != 2 {
		t.Errorf("pending = %d rows, total %d", len(rows), total)
	}
}

func TestRefreshUnreachableHealth(t *testing.T) {
	vm := NewViewModel(&fakeSource{healthErr: errors.New("no socket")})
	if err := vm.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	if vm.Health() != "UNREACHABLE" {
		t.Errorf("health = %q, want UNREACHABLE", vm.Health())
	}
}

func TestRefreshErrorKeepsCache(t *testing.T) {
	src := &fakeSource{}
	vm := NewViewModel(src)
	if err := vm.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	src.statusErr = errors.New("connection refused")
	if err := vm.Refresh(context.Background()); err == nil {
		t.Fatal("Refresh() error = nil, want error")
	}
	if vm.Status() == nil {
		t.Error("cached status dropped after failed refresh")
	}
}

func TestFilterByCounterparty(t *testing.T) {
	src := &fakeSource{pending: []api.MessageJSON{pendingRow("A", "5511@s"), pendingRow("B", "5522@s")}}
	vm := NewViewModel(src)
	_ = vm.Refresh(context.Background())

	vm.SetFilter(" 5522 ")
	rows, total := vm.Pending()
	if len(rows) != 1 || rows[0].MsgID != "B" || total != 2 {
		t.Errorf("filtered = %+v, total %d", rows, total)
	}
	vm.SetFilter("")
	if rows, _ := vm.Pending(); len(rows) != 2 {
		t.Errorf("unfiltered = %d rows", len(rows))
	}
}

func TestRunSweepFlashes(t *testing.T) {
	src := &fakeSource{}
	vm := NewViewModel(src)

	if err := vm.RunSweep(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f := vm.Flash.Get(); f == nil || f.Level != FlashInfo || !strings.Contains(f.Text, "3 scanned") {
		t.Errorf("flash = %+v", f)
	}

	src.sweepErr = errors.New("daemon returned 409: sweep already running")
	_ = vm.RunSweep(context.Background())
	if f := vm.Flash.Get(); f == nil || f.Level != FlashErr {
		t.Errorf("flash = %+v, want error level", f)
	}
}

func TestApplyEvents(t *testing.T) {
	vm := NewViewModel(&fakeSource{})

	payload, _ := json.Marshal(wa.AuthEvent{Type: wa.AuthEventQRCode, QRCode: "2@abc"})
	if vm.Apply(api.EventFrame{Kind: bus.KindQRGenerated, Payload: payload}) {
		t.Error("QR event should not trigger a refresh")
	}
	if vm.QRCode() != "2@abc" {
		t.Errorf("QRCode = %q", vm.QRCode())
	}

	if !vm.Apply(api.EventFrame{Kind: bus.KindAuthenticated}) {
		t.Error("authenticated should trigger a refresh")
	}
	if vm.QRCode() != "" {
		t.Error("QR code kept after pairing")
	}

	res, _ := json.Marshal(intsync.SweepResult{Scanned: 2, Failed: 1})
	if !vm.Apply(api.EventFrame{Kind: bus.KindSweepDone, Payload: res}) {
		t.Error("sweep.done should trigger a refresh")
	}
	if f := vm.Flash.Get(); f == nil || f.Level != FlashWarn {
		t.Errorf("flash = %+v, want warning for failed rows", f)
	}

	if vm.Apply(api.EventFrame{Kind: "unknown.kind"}) {
		t.Error("unknown kinds should be ignored")
	}
}

func TestSweepSummaryIncomplete(t *testing.T) {
	got := SweepSummary(&intsync.SweepResult{Scanned: 1, Incomplete: true})
	if !strings.HasSuffix(got, "(incomplete)") {
		t.Errorf("summary = %q", got)
	}
}
