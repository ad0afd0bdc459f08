// Package debugsession implements the DebugSessionEngine of spec.md §4.5:
// one ActiveSession actor per active DebugSession, owning an isolated
// browsing context, two concurrent-safe event buffers, a periodic flush
// task, and an optional deadline task. The actor shape — an owning
// goroutine selecting over a ticker, a deadline timer and a stop signal,
// with buffered state drained exactly once on exit — is grounded on the
// teacher's internal/controlplane/jobs scheduler's per-job lifecycle
// goroutine, generalized from "run on a cron tick" to "run until stopped or
// timed out".
package debugsession

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/sitewatch/monitor/internal/broadcast"
	"github.com/sitewatch/monitor/internal/browserpool"
	"github.com/sitewatch/monitor/internal/model"
	"github.com/sitewatch/monitor/internal/probe"
	"github.com/sitewatch/monitor/internal/security"
	"github.com/sitewatch/monitor/internal/store"
)

const navigationTimeout = 30 * time.Second

// maxBufferedEvents bounds each in-memory buffer between flushes so a slow
// Store cannot grow memory without bound (spec.md §5's backpressure note);
// past the cap, new events are dropped and counted.
const maxBufferedEvents = 5000

// Config carries the debug-session tunables from internal/config.DebugConfig.
type Config struct {
	FlushInterval         time.Duration
	MaxDuration           time.Duration
	BodyByteLimit         int
	MaxConcurrentSessions int
}

// Engine owns the set of active DebugSession actors and is the
// scheduler.DebugSessionLookup + probe.NetworkEventSink provider for the
// rest of the system.
type Engine struct {
	store       *store.Store
	pool        *browserpool.Pool
	broadcaster *broadcast.Broadcaster
	cfg         Config
	logger      *zap.Logger

	mu       sync.Mutex
	sessions map[int64]*ActiveSession
	byTarget map[int64]*ActiveSession
}

// NewEngine constructs a DebugSessionEngine.
func NewEngine(st *store.Store, pool *browserpool.Pool, bc *broadcast.Broadcaster, cfg Config, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store: st, pool: pool, broadcaster: bc, cfg: cfg, logger: logger,
		sessions: make(map[int64]*ActiveSession),
		byTarget: make(map[int64]*ActiveSession),
	}
}

// CreateSession enforces the supplemented max_concurrent_sessions soft cap
// and delegates per-target uniqueness of the active session to the Store
// (surfaced as model.ErrConflict).
func (e *Engine) CreateSession(ctx context.Context, targetID int64, durationLimitSeconds *int) (*model.DebugSession, error) {
	if e.cfg.MaxConcurrentSessions > 0 {
		active, err := e.store.CountActiveDebugSessions(ctx)
		if err != nil {
			return nil, err
		}
		if active >= e.cfg.MaxConcurrentSessions {
			return nil, fmt.Errorf("max concurrent debug sessions (%d) reached: %w", e.cfg.MaxConcurrentSessions, model.ErrConflict)
		}
	}
	return e.store.CreateDebugSession(ctx, targetID, durationLimitSeconds)
}

// GetSession returns a DebugSession's current persisted state.
func (e *Engine) GetSession(ctx context.Context, id int64) (*model.DebugSession, error) {
	return e.store.GetDebugSession(ctx, id)
}

// ListNetworkEvents returns the persisted NetworkEvents for a session.
func (e *Engine) ListNetworkEvents(ctx context.Context, sessionID int64) ([]model.NetworkEvent, error) {
	return e.store.ListNetworkEvents(ctx, sessionID)
}

// ListConsoleMessages returns the persisted ConsoleMessages for a session.
func (e *Engine) ListConsoleMessages(ctx context.Context, sessionID int64) ([]model.ConsoleMessage, error) {
	return e.store.ListConsoleMessages(ctx, sessionID)
}

// Subscribe attaches a live viewer to a session's broadcast stream.
func (e *Engine) Subscribe(sessionID int64) *broadcast.Subscription {
	return e.broadcaster.Subscribe(sessionID)
}

// ActiveSink implements scheduler.DebugSessionLookup: when a DebugSession is
// active for targetID, the Scheduler's browser probe forwards captured
// NetworkEvents into it.
func (e *Engine) ActiveSink(ctx context.Context, targetID int64) (probe.NetworkEventSink, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.byTarget[targetID]
	return s, ok
}

// StartSession runs the start transition of spec.md §4.5: acquires a
// browsing context, attaches capture handlers, navigates, and moves the
// session to active (or failed on any error in that sequence).
func (e *Engine) StartSession(ctx context.Context, sessionID int64) error {
	ds, err := e.store.GetDebugSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if ds.Status != model.DebugSessionPending {
		return fmt.Errorf("session %d is %s, not pending: %w", sessionID, ds.Status, model.ErrConflict)
	}

	target, err := e.store.GetTarget(ctx, ds.TargetID)
	if err != nil {
		return err
	}

	maxDuration := e.cfg.MaxDuration
	if ds.DurationLimitSeconds != nil {
		maxDuration = time.Duration(*ds.DurationLimitSeconds) * time.Second
	}
	if maxDuration <= 0 {
		maxDuration = time.Hour
	}

	bctx, err := e.pool.Acquire(context.Background(), maxDuration+navigationTimeout)
	if err != nil {
		return e.failStart(ctx, ds, "acquire browsing context: "+err.Error())
	}

	session := &ActiveSession{
		id:            ds.ID,
		targetID:      ds.TargetID,
		store:         e.store,
		broadcaster:   e.broadcaster,
		bctx:          bctx,
		bodyByteLimit: e.cfg.BodyByteLimit,
		flushInterval: e.cfg.FlushInterval,
		maxDuration:   maxDuration,
		logger:        e.logger.With(zap.Int64("session_id", ds.ID), zap.Int64("target_id", ds.TargetID)),
		stopCh:        make(chan stopRequest, 1),
		stoppedCh:     make(chan struct{}),
		onTerminal: func() {
			e.mu.Lock()
			delete(e.sessions, ds.ID)
			if e.byTarget[ds.TargetID] != nil && e.byTarget[ds.TargetID].id == ds.ID {
				delete(e.byTarget, ds.TargetID)
			}
			e.mu.Unlock()
		},
	}

	session.attachHandlers()
	if err := chromedp.Run(bctx.Ctx(),
		network.Enable(),
		runtime.Enable(),
		chromedp.Navigate(target.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		bctx.Release()
		return e.failStart(ctx, ds, "navigate: "+err.Error())
	}

	if _, err := e.store.TransitionDebugSession(ctx, ds.ID, []model.DebugSessionStatus{model.DebugSessionPending}, model.DebugSessionActive, ""); err != nil {
		bctx.Release()
		return err
	}

	e.mu.Lock()
	e.sessions[ds.ID] = session
	e.byTarget[ds.TargetID] = session
	e.mu.Unlock()

	go session.run()
	e.broadcaster.Publish(ds.ID, broadcast.Message{Kind: broadcast.EventSessionStatus, Status: &broadcast.StatusUpdate{SessionStatus: model.DebugSessionActive}})
	return nil
}

func (e *Engine) failStart(ctx context.Context, ds *model.DebugSession, detail string) error {
	_, txErr := e.store.TransitionDebugSession(ctx, ds.ID, []model.DebugSessionStatus{model.DebugSessionPending}, model.DebugSessionFailed, detail)
	if txErr != nil {
		e.logger.Error("failed to record session failure", zap.Int64("session_id", ds.ID), zap.Error(txErr))
	}
	e.broadcaster.Publish(ds.ID, broadcast.Message{Kind: broadcast.EventSessionStatus, Status: &broadcast.StatusUpdate{SessionStatus: model.DebugSessionFailed}})
	return fmt.Errorf("start debug session %d: %s", ds.ID, detail)
}

// StopSession runs the stop transition for any non-terminal session,
// whether or not it has an in-memory ActiveSession (a still-pending session
// that was never started simply transitions directly in the Store).
func (e *Engine) StopSession(ctx context.Context, sessionID int64) error {
	e.mu.Lock()
	session, ok := e.sessions[sessionID]
	e.mu.Unlock()

	if ok {
		session.requestStop(model.DebugSessionStopped, "")
		<-session.stoppedCh
		return nil
	}

	ds, err := e.store.GetDebugSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if ds.Status.Terminal() {
		return nil
	}
	_, err = e.store.TransitionDebugSession(ctx, sessionID, []model.DebugSessionStatus{model.DebugSessionPending}, model.DebugSessionStopped, "")
	return err
}

// Close stops every active session, for process shutdown.
func (e *Engine) Close() {
	e.mu.Lock()
	sessions := make([]*ActiveSession, 0, len(e.sessions))
	for _, s := range e.sessions {
		sessions = append(sessions, s)
	}
	e.mu.Unlock()

	for _, s := range sessions {
		s.requestStop(model.DebugSessionStopped, "")
		<-s.stoppedCh
	}
}

type stopRequest struct {
	status model.DebugSessionStatus
	detail string
}

// ActiveSession is the per-session actor of spec.md §4.5.
type ActiveSession struct {
	id       int64
	targetID int64

	store       *store.Store
	broadcaster *broadcast.Broadcaster
	bctx        *browserpool.Context

	bodyByteLimit int
	flushInterval time.Duration
	maxDuration   time.Duration

	logger *zap.Logger

	mu            sync.Mutex
	networkBuf    []model.NetworkEvent
	consoleBuf    []model.ConsoleMessage
	droppedEvents int

	stopCh     chan stopRequest
	stoppedCh  chan struct{}
	stopOnce   sync.Once
	onTerminal func()
}

// AppendNetworkEvent implements probe.NetworkEventSink, letting the
// Scheduler's browser probe forward captured events into this session too
// (spec.md §4.2's "forwards captured NetworkEvents into the session's
// buffer").
func (s *ActiveSession) AppendNetworkEvent(ev model.NetworkEvent) {
	ev.SessionID = s.id
	s.appendNetwork(ev)
}

func (s *ActiveSession) appendNetwork(ev model.NetworkEvent) {
	ev.RequestBody = security.Truncate(ev.RequestBody, s.bodyByteLimit)
	ev.ResponseBody = security.Truncate(ev.ResponseBody, s.bodyByteLimit)

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.networkBuf) >= maxBufferedEvents {
		s.droppedEvents++
		return
	}
	s.networkBuf = append(s.networkBuf, ev)
}

func (s *ActiveSession) appendConsole(msg model.ConsoleMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.consoleBuf) >= maxBufferedEvents {
		s.droppedEvents++
		return
	}
	s.consoleBuf = append(s.consoleBuf, msg)
}

// attachHandlers wires chromedp event listeners into the session's buffers,
// redacting sensitive headers before they are ever buffered. Exceptions
// inside the listener are impossible by construction (no panics reach
// here); defensive recover matches spec.md §4.5's "handler errors must
// never crash the session" contract for the cases chromedp itself panics on
// malformed CDP payloads.
func (s *ActiveSession) attachHandlers() {
	chromedp.ListenTarget(s.bctx.Ctx(), func(ev any) {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("panic in debug session event handler recovered", zap.Any("panic", r))
			}
		}()

		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			s.appendNetwork(model.NetworkEvent{
				SessionID:      s.id,
				Kind:           model.NetworkEventRequest,
				URL:            e.Request.URL,
				Method:         e.Request.Method,
				RequestHeaders: marshalHeaders(e.Request.Headers),
				ResourceType:   mapResourceType(e.Type),
				Timestamp:      time.Now().UTC(),
			})
		case *network.EventResponseReceived:
			status := int(e.Response.Status)
			s.appendNetwork(model.NetworkEvent{
				SessionID:       s.id,
				Kind:            model.NetworkEventResponse,
				URL:             e.Response.URL,
				Status:          &status,
				ResponseHeaders: marshalHeaders(e.Response.Headers),
				ResourceType:    mapResourceType(e.Type),
				Timestamp:       time.Now().UTC(),
			})
		case *runtime.EventConsoleAPICalled:
			level, ok := consoleLevel(e.Type)
			if !ok {
				return
			}
			s.appendConsole(model.ConsoleMessage{
				SessionID: s.id,
				Level:     level,
				Message:   formatConsoleArgs(e.Args),
				Timestamp: time.Now().UTC(),
			})
		}
	})
}

// run is the session's owning goroutine: flush on a ticker, stop on an
// explicit request, time out after maxDuration, or fail if the underlying
// browsing context dies out from under it (the browser process crashed —
// spec.md §7's "fatal: browser process unreachable" condition).
func (s *ActiveSession) run() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in debug session run loop recovered", zap.Any("panic", r))
			s.terminate(context.Background(), model.DebugSessionFailed, fmt.Sprintf("panic: %v", r))
		}
	}()

	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	deadline := time.NewTimer(s.maxDuration)
	defer deadline.Stop()

	ctx := context.Background()

	for {
		select {
		case <-ticker.C:
			s.flush(ctx)
		case <-deadline.C:
			s.terminate(ctx, model.DebugSessionTimeout, "duration limit exceeded")
			return
		case req := <-s.stopCh:
			s.terminate(ctx, req.status, req.detail)
			return
		case <-s.bctx.Ctx().Done():
			// DeadlineExceeded is the pool's own navigationTimeout safety
			// margin around maxDuration (defense-in-depth, see StartSession);
			// anything else means the parent browsing context was canceled
			// out from under us — the browser process died.
			if errors.Is(s.bctx.Ctx().Err(), context.DeadlineExceeded) {
				s.terminate(ctx, model.DebugSessionTimeout, "browsing context deadline exceeded")
			} else {
				s.terminate(ctx, model.DebugSessionFailed, model.ErrFatal.Error())
			}
			return
		}
	}
}

func (s *ActiveSession) requestStop(status model.DebugSessionStatus, detail string) {
	s.stopOnce.Do(func() {
		s.stopCh <- stopRequest{status: status, detail: detail}
	})
}

// flush transactionally persists buffered events in batch, clears the
// buffers, and forwards each persisted event to the Broadcaster in capture
// order, per spec.md §4.5.
func (s *ActiveSession) flush(ctx context.Context) {
	s.mu.Lock()
	networkEvents := s.networkBuf
	console := s.consoleBuf
	dropped := s.droppedEvents
	s.networkBuf = nil
	s.consoleBuf = nil
	s.droppedEvents = 0
	s.mu.Unlock()

	if len(networkEvents) == 0 && len(console) == 0 && dropped == 0 {
		return
	}

	if len(networkEvents) > 0 {
		if err := s.store.InsertNetworkEventsBatch(ctx, networkEvents); err != nil {
			s.logger.Error("flush network events failed", zap.Error(err))
		} else {
			for _, ev := range networkEvents {
				s.broadcaster.Publish(s.id, broadcast.Message{Kind: broadcast.EventNetworkEvent, NetworkEvent: &ev})
			}
		}
	}
	if len(console) > 0 {
		if err := s.store.InsertConsoleMessagesBatch(ctx, console); err != nil {
			s.logger.Error("flush console messages failed", zap.Error(err))
		} else {
			for _, msg := range console {
				s.broadcaster.Publish(s.id, broadcast.Message{Kind: broadcast.EventConsoleMessage, ConsoleMessage: &msg})
			}
		}
	}
	if dropped > 0 {
		s.broadcaster.Publish(s.id, broadcast.Message{Kind: broadcast.EventSessionStatus, Status: &broadcast.StatusUpdate{DroppedEvents: dropped}})
	}
}

// terminate runs the stop transition of spec.md §4.5: a final flush,
// closing the browsing context, writing terminal state, and broadcasting a
// status message, then lets the Engine deregister this session.
func (s *ActiveSession) terminate(ctx context.Context, status model.DebugSessionStatus, detail string) {
	s.flush(ctx)
	s.bctx.Release()

	if _, err := s.store.TransitionDebugSession(ctx, s.id, []model.DebugSessionStatus{model.DebugSessionActive}, status, detail); err != nil {
		s.logger.Error("failed to persist terminal session state", zap.Error(err))
	}
	s.broadcaster.Publish(s.id, broadcast.Message{Kind: broadcast.EventSessionStatus, Status: &broadcast.StatusUpdate{SessionStatus: status}})

	if s.onTerminal != nil {
		s.onTerminal()
	}
	close(s.stoppedCh)
}

func marshalHeaders(h network.Headers) string {
	if len(h) == 0 {
		return ""
	}
	raw := make(map[string]string, len(h))
	for k, v := range h {
		if s, ok := v.(string); ok {
			raw[k] = s
		} else {
			raw[k] = fmt.Sprintf("%v", v)
		}
	}
	redacted := security.RedactHeaders(raw)
	data, err := json.Marshal(redacted)
	if err != nil {
		return ""
	}
	return string(data)
}

func formatConsoleArgs(args []*runtime.RemoteObject) string {
	out := ""
	for i, a := range args {
		if i > 0 {
			out += " "
		}
		if a.Value != nil {
			out += string(a.Value)
		} else {
			out += a.Description
		}
	}
	return out
}

func consoleLevel(t runtime.APIType) (model.ConsoleLevel, bool) {
	switch t {
	case runtime.APITypeError:
		return model.ConsoleError, true
	case runtime.APITypeWarning:
		return model.ConsoleWarning, true
	default:
		return "", false
	}
}

func mapResourceType(t network.ResourceType) model.ResourceType {
	switch t {
	case network.ResourceTypeDocument:
		return model.ResourceDocument
	case network.ResourceTypeStylesheet:
		return model.ResourceStylesheet
	case network.ResourceTypeImage:
		return model.ResourceImage
	case network.ResourceTypeScript:
		return model.ResourceScript
	case network.ResourceTypeXHR:
		return model.ResourceXHR
	case network.ResourceTypeFetch:
		return model.ResourceFetch
	default:
		return model.ResourceOther
	}
}
