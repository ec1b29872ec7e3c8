package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/gambit/core"
	"github.com/hupe1980/gambit/host"
	"github.com/hupe1980/gambit/internal/metrics"
	"github.com/hupe1980/gambit/logging"
	"github.com/hupe1980/gambit/session"
)

// Decider asks agents for decisions. *invoker.Invoker implements it.
type Decider interface {
	SelectMove(ctx context.Context, agentID string, caps core.Capabilities) (string, error)
	SuggestMove(ctx context.Context, agentID string, caps core.Capabilities) (string, error)
	NotifyGameStart(ctx context.Context, agentID string, caps core.Capabilities)
}

// AgentDirectory resolves agent ids. *registry.Registry implements it.
type AgentDirectory interface {
	Descriptor(id string) (core.AgentDescriptor, error)
}

// Archiver persists finished games.
type Archiver interface {
	ArchiveGame(ctx context.Context, game core.SessionSnapshot, cfg core.MatchConfig) error
}

// Config defines tuning parameters for the orchestrator.
type Config struct {
	// MaxPlies pauses an automated run after this many plies. Zero means
	// the run continues until the game ends.
	MaxPlies int

	// MaxConcurrentDecisions bounds decision calls across all sessions.
	// Zero means unlimited.
	MaxConcurrentDecisions int

	// ArchiveTimeout bounds writing a finished game to the archive.
	ArchiveTimeout time.Duration

	// MoveDelay is the initial pause between automated plies of new sessions.
	// Zero keeps the delay of core.DefaultMatchConfig.
	MoveDelay time.Duration
}

// DefaultConfig runs matches to the end and allows ten concurrent decisions.
var DefaultConfig = Config{
	MaxPlies:               0,
	MaxConcurrentDecisions: 10,
	ArchiveTimeout:         5 * time.Second,
	MoveDelay:              core.DefaultMatchConfig.MoveDelay,
}

// Options configures an Engine.
type Options struct {
	Config Config

	// Sessions stores live sessions. Defaults to an in-memory store.
	Sessions core.SessionStore

	// Agents validates seat assignments in Configure. Optional.
	Agents AgentDirectory

	// Scheduler runs paced steps. Defaults to TimerScheduler.
	Scheduler Scheduler

	// Notifier receives match events. Defaults to a no-op.
	Notifier core.Notifier

	// Archiver receives finished games. Optional.
	Archiver Archiver

	Logger  logging.Logger
	Metrics *metrics.Metrics
}

// Outcome tells what a step did.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeSuggested Outcome = "suggested"
	OutcomeStale     Outcome = "stale"
)

// StepResult describes one completed decision.
type StepResult struct {
	Outcome Outcome          `json:"outcome"`
	Side    core.Side        `json:"side"`
	AgentID string           `json:"agent_id"`
	Move    string           `json:"move,omitempty"`
	Record  *core.MoveRecord `json:"record,omitempty"`
}

// MatchState is a consistent view of one session and its match.
type MatchState struct {
	Session  core.SessionSnapshot `json:"session"`
	Config   core.MatchConfig     `json:"config"`
	State    State                `json:"state"`
	InFlight bool                 `json:"in_flight"`
	RunPlies int                  `json:"run_plies"`
}

type match struct {
	session *core.Session
	ctx     context.Context
	cancel  context.CancelFunc
	limiter *core.PlyLimiter

	mu         sync.Mutex
	cfg        core.MatchConfig
	state      State
	inFlight   bool
	deferred   bool
	greet      bool
	pendingSeq uint64
	stopTimer  func()
	closed     bool
}

type dispatch struct {
	tok     core.Token
	side    core.Side
	agentID string
	suggest bool
	greet   []string
}

// Engine drives the ply loop of every session. All mutations of a session
// go through the engine while it owns the session, so a decision result is
// checked against the session token and applied under the same lock.
//
// Contract:
//   - at most one decision per session is in flight
//   - reset, undo and reconfiguration invalidate in-flight decisions; their
//     results are discarded with a stale_discarded event and schedule nothing
//   - agent failures and illegal moves pause the match and publish exactly
//     one event
//   - each session has at most one pending scheduled step
type Engine struct {
	dec  Decider
	opts Options
	sem  chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	// bg tracks scheduled steps so Shutdown can wait for them.
	bgMu     sync.Mutex
	bg       sync.WaitGroup
	stopping bool

	mu      sync.RWMutex
	matches map[string]*match
}

// New creates an Engine that asks dec for decisions.
func New(dec Decider, optFns ...func(o *Options)) *Engine {
	opts := Options{
		Config:    DefaultConfig,
		Scheduler: TimerScheduler,
		Notifier:  core.NopNotifier{},
		Logger:    logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Sessions == nil {
		opts.Sessions = session.NewInMemoryStore()
	}
	if opts.Scheduler == nil {
		opts.Scheduler = TimerScheduler
	}
	if opts.Notifier == nil {
		opts.Notifier = core.NopNotifier{}
	}
	opts.Logger = logging.OrNoOp(opts.Logger)

	e := &Engine{
		dec:     dec,
		opts:    opts,
		matches: make(map[string]*match),
	}
	if n := opts.Config.MaxConcurrentDecisions; n > 0 {
		e.sem = make(chan struct{}, n)
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())
	return e
}

// CreateSession starts tracking a new session around game with the default
// human versus human configuration.
func (e *Engine) CreateSession(game core.Game) (*core.Session, error) {
	sess, err := e.opts.Sessions.Create(game)
	if err != nil {
		return nil, err
	}
	cfg := core.DefaultMatchConfig
	if d := e.opts.Config.MoveDelay; d > 0 {
		cfg.MoveDelay = d
	}
	m := &match{
		session: sess,
		limiter: core.NewPlyLimiter(e.opts.Config.MaxPlies),
		cfg:     cfg,
		state:   StateIdle,
		greet:   true,
	}
	m.ctx, m.cancel = context.WithCancel(e.ctx)

	e.mu.Lock()
	e.matches[sess.ID] = m
	e.mu.Unlock()

	e.opts.Logger.Debug("Session created", "session_id", sess.ID, "position", sess.Position())
	return sess, nil
}

// Session returns a live session.
func (e *Engine) Session(id string) (*core.Session, error) {
	m, err := e.lookup(id)
	if err != nil {
		return nil, err
	}
	return m.session, nil
}

// Sessions returns every live session.
func (e *Engine) Sessions() []*core.Session {
	return e.opts.Sessions.List()
}

// Configure replaces the match configuration. The generation is bumped so
// decisions requested under the old configuration are discarded. An
// unpaused configuration starts the match.
func (e *Engine) Configure(ctx context.Context, id string, cfg core.MatchConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if e.opts.Agents != nil {
		for _, side := range []core.Side{core.SideWhite, core.SideBlack} {
			if seat := cfg.Seat(side); seat.Agent() {
				if _, err := e.opts.Agents.Descriptor(seat.AgentID); err != nil {
					return fmt.Errorf("%s seat: %w", side, err)
				}
			}
		}
	}
	m, err := e.lookup(id)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", core.ErrSessionNotFound, id)
	}
	wasRunning := !m.cfg.Paused
	m.session.Bump()
	e.cancelPendingLocked(m)
	m.cfg = cfg
	m.cfg.Paused = true
	if m.session.Len() == 0 {
		m.greet = true
	}

	var evs []core.Event
	if !cfg.Paused {
		if ev, err := e.startLocked(m); err == nil {
			evs = append(evs, ev)
		} else {
			e.opts.Logger.Debug("Configured match not started", "session_id", id, "error", err)
		}
	} else if wasRunning {
		evs = append(evs, e.eventLocked(m, core.EventMatchPaused))
	}
	m.mu.Unlock()

	e.publish(evs...)
	return nil
}

// Start resumes automated play. Starting a running match has no effect.
func (e *Engine) Start(ctx context.Context, id string) error {
	m, err := e.lookup(id)
	if err != nil {
		return err
	}
	m.mu.Lock()
	if !m.cfg.Paused {
		m.mu.Unlock()
		return nil
	}
	ev, err := e.startLocked(m)
	m.mu.Unlock()
	if err != nil {
		return err
	}
	e.publish(ev)
	return nil
}

// Pause stops automated play. A decision already in flight still completes
// but schedules nothing.
func (e *Engine) Pause(id string) error {
	m, err := e.lookup(id)
	if err != nil {
		return err
	}
	m.mu.Lock()
	wasRunning := !m.cfg.Paused
	e.pauseLocked(m)
	var evs []core.Event
	if wasRunning {
		evs = append(evs, e.eventLocked(m, core.EventMatchPaused))
	}
	m.mu.Unlock()
	e.publish(evs...)
	return nil
}

// Step runs one decision for the side to move: a move for an auto seat, a
// suggestion for an advisory seat.
func (e *Engine) Step(ctx context.Context, id string) (StepResult, error) {
	m, err := e.lookup(id)
	if err != nil {
		return StepResult{}, err
	}
	m.mu.Lock()
	d, err := e.beginLocked(m, false)
	m.mu.Unlock()
	if err != nil {
		return StepResult{}, err
	}
	return e.execute(ctx, m, d)
}

// Suggest asks the agent seated for the side to move for advice without
// applying it.
func (e *Engine) Suggest(ctx context.Context, id string) (string, error) {
	m, err := e.lookup(id)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	d, err := e.beginLocked(m, true)
	m.mu.Unlock()
	if err != nil {
		return "", err
	}
	res, err := e.execute(ctx, m, d)
	if err != nil {
		return "", err
	}
	if res.Outcome == OutcomeStale {
		return "", core.ErrStaleGeneration
	}
	return res.Move, nil
}

// PlayMove applies a move for a human or advisory seat.
func (e *Engine) PlayMove(ctx context.Context, id, move string) (core.MoveRecord, error) {
	m, err := e.lookup(id)
	if err != nil {
		return core.MoveRecord{}, err
	}
	m.mu.Lock()
	seat := m.cfg.Seat(m.session.Turn())
	if seat.Mode == core.SeatAuto {
		m.mu.Unlock()
		return core.MoveRecord{}, core.ErrAgentSeat
	}
	rec, err := m.session.Apply(move)
	if err != nil {
		illegal := &core.IllegalMoveError{Move: move, Err: err}
		ev := e.eventLocked(m, core.EventIllegalMove).WithError(illegal)
		ev.Move = move
		m.mu.Unlock()
		e.publish(ev)
		return core.MoveRecord{}, illegal
	}
	evs, finished := e.appliedLocked(m, rec)
	m.mu.Unlock()

	e.publish(evs...)
	if finished {
		e.archive(m)
	}
	return rec, nil
}

// Reset restores the starting position and pauses the match. It returns the
// new generation.
func (e *Engine) Reset(id string) (uint64, error) {
	m, err := e.lookup(id)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	gen := m.session.Reset()
	e.pauseLocked(m)
	m.limiter.Reset()
	m.greet = true
	ev := e.eventLocked(m, core.EventSessionReset)
	m.mu.Unlock()

	e.publish(ev)
	return gen, nil
}

// Undo takes back the last ply and pauses the match. It returns the new
// generation.
func (e *Engine) Undo(id string) (uint64, error) {
	m, err := e.lookup(id)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	gen, err := m.session.Undo()
	if err != nil {
		m.mu.Unlock()
		return gen, err
	}
	e.pauseLocked(m)
	if m.session.Len() == 0 {
		m.greet = true
	}
	ev := e.eventLocked(m, core.EventMoveUndone)
	m.mu.Unlock()

	e.publish(ev)
	return gen, nil
}

// State returns the match state of a session.
func (e *Engine) State(id string) (MatchState, error) {
	m, err := e.lookup(id)
	if err != nil {
		return MatchState{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return MatchState{
		Session:  m.session.Snapshot(),
		Config:   m.cfg,
		State:    m.state,
		InFlight: m.inFlight,
		RunPlies: m.limiter.Count(),
	}, nil
}

// Close stops the match, cancels its in-flight decision and removes the
// session from the store.
func (e *Engine) Close(ctx context.Context, id string) error {
	e.mu.Lock()
	m, ok := e.matches[id]
	delete(e.matches, id)
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrSessionNotFound, id)
	}

	m.mu.Lock()
	m.closed = true
	e.cancelPendingLocked(m)
	m.cfg.Paused = true
	m.mu.Unlock()
	m.cancel()

	return e.opts.Sessions.Delete(id)
}

// Shutdown closes every session and waits for scheduled steps, including
// the archiving of games they finished, until ctx expires.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.bgMu.Lock()
	e.stopping = true
	e.bgMu.Unlock()

	e.mu.RLock()
	ids := make([]string, 0, len(e.matches))
	for id := range e.matches {
		ids = append(ids, id)
	}
	e.mu.RUnlock()

	var errs []error
	for _, id := range ids {
		if err := e.Close(ctx, id); err != nil && !errors.Is(err, core.ErrSessionNotFound) {
			errs = append(errs, err)
		}
	}

	drained := make(chan struct{})
	go func() {
		e.bg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("engine: shutdown: %w", ctx.Err()))
	}
	e.cancel()
	return errors.Join(errs...)
}

func (e *Engine) lookup(id string) (*match, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, ok := e.matches[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionNotFound, id)
	}
	return m, nil
}

// startLocked unpauses the match and schedules the first step.
func (e *Engine) startLocked(m *match) (core.Event, error) {
	if m.session.Result().Terminal() {
		return core.Event{}, core.ErrGameOver
	}
	m.cfg.Paused = false
	m.limiter.Reset()
	e.scheduleLocked(m, 0)
	return e.eventLocked(m, core.EventMatchStarted), nil
}

func (e *Engine) pauseLocked(m *match) {
	m.cfg.Paused = true
	e.cancelPendingLocked(m)
}

func (e *Engine) cancelPendingLocked(m *match) {
	if m.stopTimer != nil {
		m.stopTimer()
		m.stopTimer = nil
	}
	m.pendingSeq++
	m.deferred = false
}

// scheduleLocked arms the single pending step of m. A step requested while
// a decision is in flight runs once that decision completes.
func (e *Engine) scheduleLocked(m *match, delay time.Duration) {
	if m.closed {
		return
	}
	if m.inFlight {
		m.deferred = true
		return
	}
	if !m.cfg.Seat(m.session.Turn()).Agent() {
		return
	}
	e.cancelPendingLocked(m)
	seq := m.pendingSeq
	m.stopTimer = e.opts.Scheduler.Schedule(delay, func() { e.runScheduled(m, seq) })
}

func (e *Engine) resumeDeferredLocked(m *match) {
	if !m.deferred {
		return
	}
	m.deferred = false
	if !m.cfg.Paused {
		e.scheduleLocked(m, 0)
	}
}

func (e *Engine) runScheduled(m *match, seq uint64) {
	done, ok := e.track()
	if !ok {
		return
	}
	defer done()

	m.mu.Lock()
	if m.closed || seq != m.pendingSeq || m.cfg.Paused {
		m.mu.Unlock()
		return
	}
	m.stopTimer = nil
	d, err := e.beginLocked(m, false)
	if errors.Is(err, core.ErrDecisionInFlight) {
		m.deferred = true
	}
	m.mu.Unlock()
	if err != nil {
		e.opts.Logger.Debug("Scheduled step skipped", "session_id", m.session.ID, "error", err)
		return
	}
	_, _ = e.execute(m.ctx, m, d)
}

// beginLocked captures the token of the current state and marks a decision
// in flight.
func (e *Engine) beginLocked(m *match, suggest bool) (dispatch, error) {
	if m.closed {
		return dispatch{}, fmt.Errorf("%w: %s", core.ErrSessionNotFound, m.session.ID)
	}
	if m.inFlight {
		return dispatch{}, core.ErrDecisionInFlight
	}
	if m.session.Result().Terminal() {
		return dispatch{}, core.ErrGameOver
	}
	side := m.session.Turn()
	seat := m.cfg.Seat(side)
	if !seat.Agent() {
		return dispatch{}, fmt.Errorf("%w: %s", core.ErrNotAgentTurn, side)
	}
	next, err := m.state.transition(StateAwaitingDecision)
	if err != nil {
		return dispatch{}, err
	}
	m.state = next
	m.inFlight = true

	d := dispatch{
		tok:     m.session.Token(),
		side:    side,
		agentID: seat.AgentID,
		suggest: suggest || seat.Mode == core.SeatAdvisory,
	}
	if m.greet {
		m.greet = false
		for _, s := range []core.Side{core.SideWhite, core.SideBlack} {
			st := m.cfg.Seat(s)
			if st.Agent() && (len(d.greet) == 0 || d.greet[0] != st.AgentID) {
				d.greet = append(d.greet, st.AgentID)
			}
		}
	}
	return d, nil
}

func (e *Engine) execute(ctx context.Context, m *match, d dispatch) (StepResult, error) {
	for _, agentID := range d.greet {
		e.dec.NotifyGameStart(ctx, agentID, e.hostFor(m, agentID))
	}

	var mv string
	release, err := e.acquireSlot(ctx)
	if err == nil {
		caps := e.hostFor(m, d.agentID)
		if d.suggest {
			mv, err = e.dec.SuggestMove(ctx, d.agentID, caps)
		} else {
			mv, err = e.dec.SelectMove(ctx, d.agentID, caps)
		}
		release()
	}
	return e.finish(m, d, mv, err)
}

// finish resolves a decision against the session state it was requested for.
func (e *Engine) finish(m *match, d dispatch, mv string, decErr error) (StepResult, error) {
	res := StepResult{Side: d.side, AgentID: d.agentID, Move: mv}

	m.mu.Lock()
	m.inFlight = false

	if m.closed || !m.session.Current(d.tok) {
		evs := e.staleLocked(m, d, mv, StateIdle)
		m.mu.Unlock()
		e.publish(evs...)
		res.Outcome = OutcomeStale
		return res, nil
	}

	if decErr != nil {
		e.failLocked(m)
		ev := e.eventLocked(m, core.EventDecisionFailed).WithError(decErr)
		ev.AgentID, ev.Side = d.agentID, d.side
		m.mu.Unlock()
		e.publish(ev)
		return res, decErr
	}

	if d.suggest {
		e.setStateLocked(m, StateIdle)
		ev := e.eventLocked(m, core.EventSuggestion)
		ev.AgentID, ev.Side, ev.Move = d.agentID, d.side, mv
		e.resumeDeferredLocked(m)
		m.mu.Unlock()
		e.publish(ev)
		res.Outcome = OutcomeSuggested
		return res, nil
	}

	e.setStateLocked(m, StateApplying)
	rec, err := m.session.ApplyIf(d.tok, mv, d.agentID)
	if errors.Is(err, core.ErrStaleGeneration) {
		evs := e.staleLocked(m, d, mv, StateIdle)
		m.mu.Unlock()
		e.publish(evs...)
		res.Outcome = OutcomeStale
		return res, nil
	}
	if err != nil {
		illegal := &core.IllegalMoveError{AgentID: d.agentID, Move: mv, Err: err}
		e.failLocked(m)
		ev := e.eventLocked(m, core.EventIllegalMove).WithError(illegal)
		ev.AgentID, ev.Side, ev.Move = d.agentID, d.side, mv
		m.mu.Unlock()
		e.publish(ev)
		return res, illegal
	}

	e.setStateLocked(m, StateIdle)
	evs, finished := e.appliedLocked(m, rec)
	m.mu.Unlock()

	e.publish(evs...)
	if finished {
		e.archive(m)
	}
	res.Outcome = OutcomeApplied
	res.Record = &rec
	return res, nil
}

func (e *Engine) staleLocked(m *match, d dispatch, mv string, next State) []core.Event {
	e.setStateLocked(m, next)
	e.opts.Metrics.StaleDiscarded()
	ev := e.eventLocked(m, core.EventStaleDiscarded)
	ev.AgentID, ev.Side, ev.Move = d.agentID, d.side, mv
	ev.Generation = d.tok.Generation
	ev.Message = "session changed while the decision was pending"
	e.resumeDeferredLocked(m)
	return []core.Event{ev}
}

func (e *Engine) failLocked(m *match) {
	e.setStateLocked(m, StateFailed)
	e.setStateLocked(m, StateIdle)
	e.pauseLocked(m)
}

// appliedLocked publishes an applied ply and decides what comes next. It
// reports whether the game just ended.
func (e *Engine) appliedLocked(m *match, rec core.MoveRecord) ([]core.Event, bool) {
	e.opts.Metrics.PlyApplied()

	ev := e.eventLocked(m, core.EventMoveApplied)
	ev.AgentID, ev.Side, ev.Move, ev.Ply = rec.AgentID, rec.Side, rec.Move, rec.Ply
	ev.Result = rec.Result
	evs := []core.Event{ev}

	if rec.Result.Terminal() {
		e.pauseLocked(m)
		over := e.eventLocked(m, core.EventGameOver)
		over.Side, over.Result, over.Ply = rec.Side, rec.Result, rec.Ply
		e.opts.Metrics.GameFinished(string(rec.Result))
		return append(evs, over), true
	}

	if m.cfg.Paused {
		return evs, false
	}
	if err := m.limiter.Record(); err != nil {
		e.pauseLocked(m)
		paused := e.eventLocked(m, core.EventMatchPaused)
		paused.Message = fmt.Sprintf("ply limit of %d reached", e.opts.Config.MaxPlies)
		return append(evs, paused), false
	}
	e.scheduleLocked(m, m.cfg.MoveDelay)
	return evs, false
}

func (e *Engine) setStateLocked(m *match, next State) {
	s, err := m.state.transition(next)
	if err != nil {
		e.opts.Logger.Error("Unexpected match transition", "session_id", m.session.ID, "error", err)
		s = next
	}
	m.state = s
}

func (e *Engine) eventLocked(m *match, typ core.EventType) core.Event {
	ev := core.NewEvent(typ, m.session.ID)
	ev.Generation = m.session.Generation()
	ev.Ply = m.session.Len()
	return ev
}

func (e *Engine) publish(evs ...core.Event) {
	for _, ev := range evs {
		e.opts.Notifier.Notify(ev)
	}
}

func (e *Engine) hostFor(m *match, agentID string) *host.Host {
	return host.New(m.session, func(o *host.Options) {
		o.SessionID = m.session.ID
		o.AgentID = agentID
		o.Logger = logging.ForSession(e.opts.Logger, m.session.ID)
		o.Notifier = e.opts.Notifier
	})
}

func (e *Engine) acquireSlot(ctx context.Context) (func(), error) {
	if e.sem == nil {
		return func() {}, nil
	}
	select {
	case e.sem <- struct{}{}:
		return func() { <-e.sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// track registers a background run unless the engine is shutting down.
func (e *Engine) track() (func(), bool) {
	e.bgMu.Lock()
	defer e.bgMu.Unlock()
	if e.stopping {
		return nil, false
	}
	e.bg.Add(1)
	return e.bg.Done, true
}

func (e *Engine) archive(m *match) {
	if e.opts.Archiver == nil {
		return
	}
	m.mu.Lock()
	cfg := m.cfg
	m.mu.Unlock()

	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if d := e.opts.Config.ArchiveTimeout; d > 0 {
		ctx, cancel = context.WithTimeout(e.ctx, d)
	} else {
		ctx, cancel = context.WithCancel(e.ctx)
	}
	defer cancel()
	if err := e.opts.Archiver.ArchiveGame(ctx, m.session.Snapshot(), cfg); err != nil {
		e.opts.Logger.Warn("Archiving game failed", "session_id", m.session.ID, "error", err)
	}
}
