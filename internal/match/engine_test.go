package match

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/memegaming/matchbot/internal/panel"
	"github.com/memegaming/matchbot/internal/state"
)

// fakeStore is an in-memory state.Store that records mutations in the
// shared call log.
type fakeStore struct {
	st    state.MatchState
	job   *state.PendingJob
	calls *[]string
}

func (f *fakeStore) Read() state.MatchState { return f.st }

func (f *fakeStore) WriteActive(mapName, startedBy string, startedAt time.Time) error {
	f.st = state.MatchState{Active: true, Map: mapName, StartedBy: startedBy, StartedAt: &startedAt}
	*f.calls = append(*f.calls, "writeActive")
	return nil
}

func (f *fakeStore) ClearActive(endedAt time.Time) error {
	f.st = state.MatchState{LastEnded: &endedAt}
	f.job = nil
	*f.calls = append(*f.calls, "clearActive")
	return nil
}

func (f *fakeStore) WriteJob(job state.PendingJob) error {
	f.job = &job
	*f.calls = append(*f.calls, "writeJob")
	return nil
}

// fakePanel is a panel.Controller that serves a scripted sequence of power
// states and records every call in the shared log.
type fakePanel struct {
	states   []string // consumed by CurrentState; last value repeats
	calls    *[]string
	powerErr map[panel.Signal]error
	cmdErr   map[string]error
}

func (f *fakePanel) SendPower(ctx context.Context, signal panel.Signal) error {
	*f.calls = append(*f.calls, "power:"+string(signal))
	return f.powerErr[signal]
}

func (f *fakePanel) SendCommand(ctx context.Context, command string) error {
	*f.calls = append(*f.calls, "cmd:"+command)
	for prefix, err := range f.cmdErr {
		if strings.HasPrefix(command, prefix) {
			return err
		}
	}
	return nil
}

func (f *fakePanel) CurrentState(ctx context.Context) (string, error) {
	*f.calls = append(*f.calls, "state")
	if len(f.states) == 0 {
		return panel.StateOffline, nil
	}
	st := f.states[0]
	if len(f.states) > 1 {
		f.states = f.states[1:]
	}
	return st, nil
}

// fakeWaiter records waits and fails on demand per target state.
type fakeWaiter struct {
	calls   *[]string
	waitErr map[string]error
}

func (f *fakeWaiter) WaitFor(ctx context.Context, target string, timeout time.Duration) error {
	*f.calls = append(*f.calls, "wait:"+target)
	return f.waitErr[target]
}

type fixture struct {
	engine *Engine
	store  *fakeStore
	panel  *fakePanel
	waiter *fakeWaiter
	calls  *[]string
}

func newFixture(st state.MatchState) *fixture {
	calls := &[]string{}
	store := &fakeStore{st: st, calls: calls}
	ctrl := &fakePanel{calls: calls}
	waiter := &fakeWaiter{calls: calls}
	engine := NewEngine(store, ctrl, waiter, 10*time.Second, 120*time.Second)
	return &fixture{engine: engine, store: store, panel: ctrl, waiter: waiter, calls: calls}
}

func TestStart_RejectsWhenActive(t *testing.T) {
	f := newFixture(state.MatchState{Active: true, Map: "Duality_2p", StartedBy: "U1"})

	_, err := f.engine.Start(context.Background(), "U2", "Oceanborn_2p", []string{"A", "B"})

	var rej *Rejection
	if !errors.As(err, &rej) {
		t.Fatalf("err = %v, want Rejection", err)
	}
	if !strings.Contains(rej.Message, "Duality_2p") || !strings.Contains(rej.Message, "U1") {
		t.Errorf("rejection should name current map and owner: %q", rej.Message)
	}
	if len(*f.calls) != 0 {
		t.Errorf("expected zero remote/store calls, got %v", *f.calls)
	}
}

func TestStart_CooldownRemainingSeconds(t *testing.T) {
	now := time.Now()
	ended := now.Add(-3 * time.Second)
	f := newFixture(state.MatchState{LastEnded: &ended})
	f.engine.now = func() time.Time { return now }

	_, err := f.engine.Start(context.Background(), "U1", "Duality_2p", []string{"A", "B"})

	var rej *Rejection
	if !errors.As(err, &rej) {
		t.Fatalf("err = %v, want Rejection", err)
	}
	if !strings.Contains(rej.Message, "7 more second(s)") {
		t.Errorf("rejection = %q, want remaining of 7 second(s)", rej.Message)
	}
	if len(*f.calls) != 0 {
		t.Errorf("expected zero remote/store calls, got %v", *f.calls)
	}
}

func TestStart_CooldownExpired(t *testing.T) {
	now := time.Now()
	ended := now.Add(-11 * time.Second)
	f := newFixture(state.MatchState{LastEnded: &ended})
	f.engine.now = func() time.Time { return now }

	if _, err := f.engine.Start(context.Background(), "U1", "Duality_2p", []string{"A", "B"}); err != nil {
		t.Fatalf("start after cooldown: %v", err)
	}
}

func TestStart_PlayerCountBounds(t *testing.T) {
	names := []string{"A", "B", "C", "D", "E", "F", "G", "H"}

	for _, count := range []int{0, 1, 7, 8} {
		f := newFixture(state.MatchState{})
		_, err := f.engine.Start(context.Background(), "U1", "Duality_2p", names[:count])
		var rej *Rejection
		if !errors.As(err, &rej) {
			t.Errorf("count %d: err = %v, want Rejection", count, err)
		}
		if len(*f.calls) != 0 {
			t.Errorf("count %d: expected zero calls, got %v", count, *f.calls)
		}
	}

	for _, count := range []int{2, 3, 4, 5, 6} {
		f := newFixture(state.MatchState{})
		if _, err := f.engine.Start(context.Background(), "U1", "Duality_2p", names[:count]); err != nil {
			t.Errorf("count %d: unexpected error %v", count, err)
		}
	}
}

func TestStart_SequenceOrder(t *testing.T) {
	f := newFixture(state.MatchState{})
	f.panel.states = []string{"running"} // occupied by a previous boot

	result, err := f.engine.Start(context.Background(), "U1", "Duality_2p", []string{"A", "B"})
	if err != nil {
		t.Fatal(err)
	}

	want := []string{
		"writeJob",
		"state",
		"power:stop",
		"wait:offline",
		"power:start",
		"wait:running",
		"cmd:whitelist add A",
		"cmd:whitelist add B",
		"cmd:say Match ready on Duality_2p! Whitelisted: A, B",
		"writeActive",
	}
	if fmt.Sprint(*f.calls) != fmt.Sprint(want) {
		t.Errorf("call sequence:\n got %v\nwant %v", *f.calls, want)
	}
	if !f.store.st.Active {
		t.Error("state should be active after successful start")
	}
	if result.Map != "Duality_2p" || len(result.Players) != 2 {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestStart_SkipsStopWhenOffline(t *testing.T) {
	f := newFixture(state.MatchState{})
	f.panel.states = []string{"offline"}

	if _, err := f.engine.Start(context.Background(), "U1", "Duality_2p", []string{"A", "B"}); err != nil {
		t.Fatal(err)
	}

	for _, call := range *f.calls {
		if call == "power:stop" || call == "wait:offline" {
			t.Errorf("offline server should not be stopped first, got %v", *f.calls)
		}
	}
}

func TestStart_BootFailureLeavesIdle(t *testing.T) {
	f := newFixture(state.MatchState{})
	f.waiter.waitErr = map[string]error{
		"running": &panel.TimeoutError{Target: "running", Elapsed: 120 * time.Second},
	}

	_, err := f.engine.Start(context.Background(), "U1", "Duality_2p", []string{"A", "B"})

	var timeout *panel.TimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("err = %v, want TimeoutError", err)
	}
	if f.store.st.Active {
		t.Error("state must stay idle when start fails before commit")
	}
	for _, call := range *f.calls {
		if call == "writeActive" {
			t.Error("writeActive must not run after a failed boot")
		}
	}
	if f.store.job == nil {
		t.Error("pending job stays on disk for the provisioner after a failed boot")
	}
}

func TestStart_WhitelistBestEffort(t *testing.T) {
	f := newFixture(state.MatchState{})
	f.panel.cmdErr = map[string]error{
		"whitelist add B": &panel.APIError{Status: 502, Body: "bad gateway"},
	}

	result, err := f.engine.Start(context.Background(), "U1", "Duality_2p", []string{"A", "B", "C"})
	if err != nil {
		t.Fatalf("a failed whitelist add must not abort the start: %v", err)
	}

	if fmt.Sprint(result.FailedWhitelist) != "[B]" {
		t.Errorf("FailedWhitelist = %v, want [B]", result.FailedWhitelist)
	}
	if !f.store.st.Active {
		t.Error("match should still commit with partial whitelist")
	}
	// The remaining players are still attempted in order.
	var adds []string
	for _, call := range *f.calls {
		if strings.HasPrefix(call, "cmd:whitelist add ") {
			adds = append(adds, strings.TrimPrefix(call, "cmd:whitelist add "))
		}
	}
	if fmt.Sprint(adds) != "[A B C]" {
		t.Errorf("whitelist adds = %v, want [A B C]", adds)
	}
}

func TestStart_RejectsWhileOperationInFlight(t *testing.T) {
	f := newFixture(state.MatchState{})
	f.engine.mu.Lock()
	defer f.engine.mu.Unlock()

	_, err := f.engine.Start(context.Background(), "U1", "Duality_2p", []string{"A", "B"})

	var rej *Rejection
	if !errors.As(err, &rej) {
		t.Fatalf("err = %v, want Rejection while another operation holds the lock", err)
	}
}

func TestEnd_IdleIsNoop(t *testing.T) {
	f := newFixture(state.MatchState{})

	result, err := f.engine.End(context.Background(), "U1", false)
	if err != nil {
		t.Fatal(err)
	}
	if !result.AlreadyIdle {
		t.Error("ending with no active match should report AlreadyIdle")
	}
	if len(*f.calls) != 0 {
		t.Errorf("idle end must not touch the panel, got %v", *f.calls)
	}
}

func TestEnd_Authorization(t *testing.T) {
	tests := []struct {
		name        string
		requestedBy string
		isAdmin     bool
		wantAuthErr bool
	}{
		{"owner", "U1", false, false},
		{"admin", "U2", true, false},
		{"stranger", "U2", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(state.MatchState{Active: true, Map: "Duality_2p", StartedBy: "U1"})

			_, err := f.engine.End(context.Background(), tt.requestedBy, tt.isAdmin)

			var auth *AuthRejection
			gotAuthErr := errors.As(err, &auth)
			if gotAuthErr != tt.wantAuthErr {
				t.Fatalf("auth rejection = %v, want %v (err: %v)", gotAuthErr, tt.wantAuthErr, err)
			}
			if tt.wantAuthErr {
				if auth.Owner != "U1" {
					t.Errorf("rejection owner = %q, want U1", auth.Owner)
				}
				if len(*f.calls) != 0 {
					t.Errorf("unauthorized end must not touch the panel, got %v", *f.calls)
				}
			}
		})
	}
}

func TestEnd_StopSignalFailureIsSwallowed(t *testing.T) {
	f := newFixture(state.MatchState{Active: true, Map: "Duality_2p", StartedBy: "U1"})
	f.panel.powerErr = map[panel.Signal]error{
		panel.SignalStop: &panel.APIError{Status: 500, Body: "boom"},
	}

	result, err := f.engine.End(context.Background(), "U1", false)
	if err != nil {
		t.Fatalf("stop signal failure should be best-effort: %v", err)
	}
	if result.Map != "Duality_2p" {
		t.Errorf("result map = %q", result.Map)
	}
	if f.store.st.Active {
		t.Error("state should be cleared once offline is confirmed")
	}
}

func TestEnd_WaitFailureLeavesActive(t *testing.T) {
	f := newFixture(state.MatchState{Active: true, Map: "Duality_2p", StartedBy: "U1"})
	f.waiter.waitErr = map[string]error{
		"offline": &panel.TimeoutError{Target: "offline", Elapsed: 120 * time.Second},
	}

	_, err := f.engine.End(context.Background(), "U1", false)

	var timeout *panel.TimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("err = %v, want TimeoutError", err)
	}
	if !f.store.st.Active {
		t.Error("state must stay active when offline was never confirmed, so end can be retried")
	}
}

func TestEnd_ClearsPendingJob(t *testing.T) {
	f := newFixture(state.MatchState{Active: true, Map: "Duality_2p", StartedBy: "U1"})
	f.store.job = &state.PendingJob{Map: "Duality_2p"}

	if _, err := f.engine.End(context.Background(), "U1", false); err != nil {
		t.Fatal(err)
	}
	if f.store.job != nil {
		t.Error("ending a match should remove the pending job")
	}
}

func TestWhitelist_NoActiveMatch(t *testing.T) {
	f := newFixture(state.MatchState{})

	err := f.engine.Whitelist(context.Background(), "U1", false, "A")

	var rej *Rejection
	if !errors.As(err, &rej) {
		t.Fatalf("err = %v, want Rejection", err)
	}
	if len(*f.calls) != 0 {
		t.Errorf("expected zero calls, got %v", *f.calls)
	}
}

func TestWhitelist_Authorization(t *testing.T) {
	f := newFixture(state.MatchState{Active: true, Map: "Duality_2p", StartedBy: "U1"})

	err := f.engine.Whitelist(context.Background(), "U2", false, "A")

	var auth *AuthRejection
	if !errors.As(err, &auth) {
		t.Fatalf("err = %v, want AuthRejection", err)
	}
}

func TestWhitelist_ServerNotRunning(t *testing.T) {
	f := newFixture(state.MatchState{Active: true, Map: "Duality_2p", StartedBy: "U1"})
	f.panel.states = []string{"starting"}

	err := f.engine.Whitelist(context.Background(), "U1", false, "A")

	var rej *Rejection
	if !errors.As(err, &rej) {
		t.Fatalf("err = %v, want Rejection", err)
	}
	if !strings.Contains(rej.Message, "starting") {
		t.Errorf("rejection should report the current state: %q", rej.Message)
	}
	for _, call := range *f.calls {
		if strings.HasPrefix(call, "cmd:") {
			t.Errorf("no console command should be sent, got %v", *f.calls)
		}
	}
}

func TestWhitelist_CommandFailureIsRecoverable(t *testing.T) {
	f := newFixture(state.MatchState{Active: true, Map: "Duality_2p", StartedBy: "U1"})
	f.panel.states = []string{"running"}
	f.panel.cmdErr = map[string]error{
		"whitelist add": &panel.APIError{Status: 500, Body: "boom"},
	}

	err := f.engine.Whitelist(context.Background(), "U1", false, "A")

	var rej *Rejection
	if !errors.As(err, &rej) {
		t.Fatalf("err = %v, want recoverable Rejection", err)
	}
	if !f.store.st.Active {
		t.Error("a failed whitelist must not change the lifecycle record")
	}
}

func TestWhitelist_Success(t *testing.T) {
	f := newFixture(state.MatchState{Active: true, Map: "Duality_2p", StartedBy: "U1"})
	f.panel.states = []string{"running"}

	if err := f.engine.Whitelist(context.Background(), "U2", true, "NewPlayer"); err != nil {
		t.Fatal(err)
	}

	found := false
	for _, call := range *f.calls {
		if call == "cmd:whitelist add NewPlayer" {
			found = true
		}
	}
	if !found {
		t.Errorf("whitelist command not sent, calls: %v", *f.calls)
	}
}
