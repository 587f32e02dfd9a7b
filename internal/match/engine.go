// Package match implements the lifecycle state machine for the single
// managed match: start, end, and whitelist as guarded transitions over the
// persisted record, backed by the panel for power control and console
// commands.
package match

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/memegaming/matchbot/internal/panel"
	"github.com/memegaming/matchbot/internal/state"
)

// Rejection is a user-facing precondition failure. It implies no state was
// changed and the message may be shown to the user verbatim.
type Rejection struct {
	Message string
}

func (r *Rejection) Error() string { return r.Message }

// AuthRejection is returned when the caller is neither the match owner nor
// an admin.
type AuthRejection struct {
	Owner string
}

func (r *AuthRejection) Error() string {
	return fmt.Sprintf("only the match starter (<@%s>) or an admin may do that", r.Owner)
}

const (
	minPlayers = 2
	maxPlayers = 6
)

// Engine owns the MatchState and PendingJob records exclusively. All three
// operations hold the engine mutex for their full duration; an overlapping
// call is rejected rather than queued, so two starts can never both pass
// the active check.
type Engine struct {
	store        state.Store
	panel        panel.Controller
	waiter       panel.Waiter
	cooldown     time.Duration
	powerTimeout time.Duration
	now          func() time.Time

	mu sync.Mutex
}

func NewEngine(store state.Store, ctrl panel.Controller, waiter panel.Waiter, cooldown, powerTimeout time.Duration) *Engine {
	return &Engine{
		store:        store,
		panel:        ctrl,
		waiter:       waiter,
		cooldown:     cooldown,
		powerTimeout: powerTimeout,
		now:          time.Now,
	}
}

// Snapshot returns the current lifecycle record for display. Callers must
// not act on it for mutation decisions; the operations re-read under lock.
func (e *Engine) Snapshot() state.MatchState {
	return e.store.Read()
}

// StartResult describes a successfully started match.
type StartResult struct {
	Map     string
	Players []string
	// FailedWhitelist names players whose whitelist command failed. The
	// match still starts; they can be re-added with the whitelist
	// operation.
	FailedWhitelist []string
}

// Start provisions and boots a match. Player names must already be
// sanitized by the caller — they are interpolated verbatim into console
// commands. The pending job is written before any power action so that a
// crash mid-provisioning still leaves the intent on disk; the active
// record is written only after the server is confirmed running, so a
// failed start always leaves the record idle.
func (e *Engine) Start(ctx context.Context, requestedBy, mapName string, players []string) (*StartResult, error) {
	if !e.mu.TryLock() {
		return nil, &Rejection{Message: "another match operation is already in progress"}
	}
	defer e.mu.Unlock()

	st := e.store.Read()
	now := e.now()

	if st.Active {
		return nil, &Rejection{Message: fmt.Sprintf(
			"a match is already active on **%s**, started by <@%s> — end it with `/match end` first", st.Map, st.StartedBy)}
	}
	if st.LastEnded != nil {
		if since := now.Sub(*st.LastEnded); since < e.cooldown {
			remaining := int((e.cooldown - since + time.Second - 1) / time.Second)
			return nil, &Rejection{Message: fmt.Sprintf(
				"please wait %d more second(s) before starting a new match", remaining)}
		}
	}
	if len(players) < minPlayers || len(players) > maxPlayers {
		return nil, &Rejection{Message: fmt.Sprintf(
			"please provide between %d and %d players", minPlayers, maxPlayers)}
	}

	job := state.PendingJob{
		ID:        uuid.NewString(),
		Map:       mapName,
		Players:   players,
		StartedBy: requestedBy,
		CreatedAt: now,
	}
	if err := e.store.WriteJob(job); err != nil {
		return nil, fmt.Errorf("writing provisioning job: %w", err)
	}
	log.Printf("Match %s: provisioning %s for %s", job.ID, mapName, strings.Join(players, ", "))

	current, err := e.panel.CurrentState(ctx)
	if err != nil {
		return nil, fmt.Errorf("querying server state: %w", err)
	}
	if current != panel.StateOffline {
		log.Printf("Match %s: server is %q, stopping before provisioning", job.ID, current)
		if err := e.panel.SendPower(ctx, panel.SignalStop); err != nil {
			return nil, fmt.Errorf("stopping server: %w", err)
		}
		if err := e.waiter.WaitFor(ctx, panel.StateOffline, e.powerTimeout); err != nil {
			return nil, err
		}
	}

	if err := e.panel.SendPower(ctx, panel.SignalStart); err != nil {
		return nil, fmt.Errorf("starting server: %w", err)
	}
	if err := e.waiter.WaitFor(ctx, panel.StateRunning, e.powerTimeout); err != nil {
		return nil, err
	}

	// Whitelisting is best-effort per player: a failed add is logged and
	// reported, not fatal, since the starter can re-issue it once the
	// match is live.
	var failed []string
	for _, p := range players {
		if err := e.panel.SendCommand(ctx, "whitelist add "+p); err != nil {
			log.Printf("Match %s: whitelisting %s failed: %v", job.ID, p, err)
			failed = append(failed, p)
		}
	}
	broadcast := fmt.Sprintf("say Match ready on %s! Whitelisted: %s", mapName, strings.Join(players, ", "))
	if err := e.panel.SendCommand(ctx, broadcast); err != nil {
		log.Printf("Match %s: ready broadcast failed: %v", job.ID, err)
	}

	if err := e.store.WriteActive(mapName, requestedBy, now); err != nil {
		return nil, fmt.Errorf("writing active state: %w", err)
	}
	log.Printf("Match %s: live on %s", job.ID, mapName)

	return &StartResult{Map: mapName, Players: players, FailedWhitelist: failed}, nil
}

// EndResult describes the outcome of an end operation.
type EndResult struct {
	// AlreadyIdle is set when there was no active match. Ending twice is
	// a no-op, not an error.
	AlreadyIdle bool
	Map         string
}

// End shuts the server down and clears the active record. The stop signal
// is best-effort, but offline confirmation is not: the record stays active
// until the server is confirmed down, otherwise a new start could race a
// server that is still up. A timed-out end can simply be retried.
func (e *Engine) End(ctx context.Context, requestedBy string, isAdmin bool) (*EndResult, error) {
	if !e.mu.TryLock() {
		return nil, &Rejection{Message: "another match operation is already in progress"}
	}
	defer e.mu.Unlock()

	st := e.store.Read()
	if !st.Active {
		return &EndResult{AlreadyIdle: true}, nil
	}
	if requestedBy != st.StartedBy && !isAdmin {
		return nil, &AuthRejection{Owner: st.StartedBy}
	}

	if err := e.panel.SendPower(ctx, panel.SignalStop); err != nil {
		log.Printf("Stop signal failed, still waiting for offline: %v", err)
	}
	if err := e.waiter.WaitFor(ctx, panel.StateOffline, e.powerTimeout); err != nil {
		return nil, err
	}

	if err := e.store.ClearActive(e.now()); err != nil {
		return nil, fmt.Errorf("clearing active state: %w", err)
	}
	log.Printf("Match on %s ended by %s", st.Map, requestedBy)

	return &EndResult{Map: st.Map}, nil
}

// Whitelist adds one player to the running match's whitelist. The player
// name must already be sanitized by the caller.
func (e *Engine) Whitelist(ctx context.Context, requestedBy string, isAdmin bool, player string) error {
	if !e.mu.TryLock() {
		return &Rejection{Message: "another match operation is already in progress"}
	}
	defer e.mu.Unlock()

	st := e.store.Read()
	if !st.Active {
		return &Rejection{Message: "no active match — start one with `/match start` first"}
	}
	if requestedBy != st.StartedBy && !isAdmin {
		return &AuthRejection{Owner: st.StartedBy}
	}

	current, err := e.panel.CurrentState(ctx)
	if err != nil {
		return fmt.Errorf("querying server state: %w", err)
	}
	if current != panel.StateRunning {
		return &Rejection{Message: fmt.Sprintf(
			"server is not running (current state: %s) — wait for the match to fully start", current)}
	}

	if err := e.panel.SendCommand(ctx, "whitelist add "+player); err != nil {
		log.Printf("Whitelisting %s failed: %v", player, err)
		return &Rejection{Message: fmt.Sprintf("failed to whitelist **%s** — check the bot logs", player)}
	}
	return nil
}
