package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Manager owns the control channel: a single live WebSocket to the gateway,
// the reconnect machinery around it, and the event stream consumers observe.
//
// All methods are safe for concurrent use. Events are delivered
// synchronously on internal goroutines; handlers must not block.
type Manager interface {
	// Connect starts a connection cycle. Idempotent: a no-op while Open,
	// and while Connecting it re-arms the stall deadline. ctx governs
	// dialing for the life of the manager, including automatic reconnects.
	Connect(ctx context.Context) error

	// Disconnect closes intentionally: no reconnect is scheduled and the
	// retry counters reset. Connect may be called again afterwards.
	Disconnect()

	// Send marshals v as one JSON text frame. Fails fast with ErrNotOpen
	// unless the channel is Open; nothing is queued.
	Send(v any) error

	// Subscribe registers fn for every event. The returned token
	// unsubscribes it.
	Subscribe(fn Handler) int64

	// Unsubscribe removes a subscription. Unknown tokens are ignored.
	Unsubscribe(token int64)

	// ForceReconnect tears the connection down as an intentional closure,
	// bypassing close classification, then starts a fresh cycle with the
	// retry counters reset.
	ForceReconnect(reason string)

	// State returns the current lifecycle state.
	State() State

	// IsConnected reports whether the channel is Open.
	IsConnected() bool

	// IsConnecting reports whether a dial is in flight.
	IsConnecting() bool

	// Stats returns a point-in-time snapshot.
	Stats() ManagerStats
}

// manager implements Manager.
//
// Lock order: lifecycleMu, then mu. lifecycleMu serializes the open and
// teardown transitions so a dial completing late can never start the
// monitor after a teardown stopped it. mu guards the mutable fields and is
// never held across socket writes, event publishes, or monitor calls.
type manager struct {
	cfg     ManagerConfig
	logger  *slog.Logger
	bus     *EventBus
	policy  *ReconnectPolicy
	breaker *CircuitBreaker
	monitor *QualityMonitor
	timers  *timerSet
	dialer  *websocket.Dialer

	lifecycleMu sync.Mutex

	// writeMu serializes frame writes to the socket.
	writeMu sync.Mutex

	mu              sync.Mutex
	state           State
	intentional     bool
	conn            *websocket.Conn
	generation      uint64
	readDone        chan struct{}
	baseCtx         context.Context
	attempt         int
	consecAbnormal  int
	sessionID       string
	connectedAt     time.Time
	messagesIn      int64
	messagesOut     int64
	lastCloseCode   int
	lastCloseReason string
}

// NewManager creates a channel manager. Zero config fields fall back to
// DefaultManagerConfig values.
func NewManager(cfg ManagerConfig, logger *slog.Logger) Manager {
	if logger == nil {
		logger = slog.Default()
	}
	applyManagerDefaults(&cfg)

	pcfg := DefaultPolicyConfig(cfg.Profile)
	pcfg.InitialDelay = cfg.InitialReconnectDelay
	pcfg.Multiplier = cfg.BackoffMultiplier
	pcfg.MaxDelay = cfg.MaxReconnectDelay

	m := &manager{
		cfg:     cfg,
		logger:  logger.With("component", "channel"),
		bus:     NewEventBus(logger),
		policy:  NewReconnectPolicy(pcfg),
		breaker: NewCircuitBreaker(cfg.Breaker, logger),
		timers:  newTimerSet(),
		state:   StateIdle,
		dialer:  &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
	}
	m.monitor = NewQualityMonitor(cfg.Monitor, m.Send, m.onDegraded, m.publish, logger)
	return m
}

func (m *manager) Connect(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	m.mu.Lock()
	switch m.state {
	case StateOpen:
		m.mu.Unlock()
		return nil
	case StateConnecting:
		// Already dialing; re-arm the stall deadline and let it ride.
		gen := m.generation
		m.mu.Unlock()
		m.timers.Arm(slotStall, m.cfg.StallTimeout, func() { m.onStall(gen) })
		return nil
	}

	// A fresh cycle clears intentional closes and any exhausted budget.
	m.intentional = false
	m.attempt = 0
	m.consecAbnormal = 0
	m.baseCtx = ctx
	m.mu.Unlock()

	m.timers.Cancel(slotReconnect)
	m.startDial()
	return nil
}

func (m *manager) Disconnect() {
	m.lifecycleMu.Lock()

	m.mu.Lock()
	if m.state == StateIdle {
		m.mu.Unlock()
		m.lifecycleMu.Unlock()
		return
	}
	m.intentional = true
	m.generation++ // orphan in-flight reads and dials
	conn := m.conn
	m.conn = nil
	readDone := m.readDone
	m.readDone = nil
	wasOpen := m.state == StateOpen
	m.state = StateClosing
	m.mu.Unlock()

	m.timers.CancelAll()
	m.monitor.Stop()
	m.closeConn(conn, "client disconnect")

	m.mu.Lock()
	m.state = StateClosed
	m.attempt = 0
	m.consecAbnormal = 0
	m.lastCloseCode = websocket.CloseNormalClosure
	m.lastCloseReason = "client disconnect"
	m.mu.Unlock()
	m.lifecycleMu.Unlock()

	// Drain after releasing lifecycleMu: a close handler that lost the
	// generation race may be queued behind the lock.
	m.waitReadDrain(readDone)

	if wasOpen {
		m.publish(Event{
			Type:   EventDisconnected,
			Code:   websocket.CloseNormalClosure,
			Reason: "client disconnect",
		})
	}
	m.logger.Info("channel disconnected")
}

func (m *manager) ForceReconnect(reason string) {
	m.logger.Info("forcing reconnect", "reason", reason)

	m.lifecycleMu.Lock()

	m.mu.Lock()
	if m.state == StateIdle || m.baseCtx == nil {
		m.mu.Unlock()
		m.lifecycleMu.Unlock()
		return
	}
	m.intentional = true
	m.generation++
	conn := m.conn
	m.conn = nil
	readDone := m.readDone
	m.readDone = nil
	wasOpen := m.state == StateOpen
	m.state = StateClosing
	m.mu.Unlock()

	m.timers.CancelAll()
	m.monitor.Stop()
	m.closeConn(conn, "reconnect")

	m.mu.Lock()
	m.state = StateClosed
	m.intentional = false
	m.attempt = 0
	m.consecAbnormal = 0
	m.lastCloseCode = websocket.CloseNormalClosure
	m.lastCloseReason = "force reconnect: " + reason
	m.mu.Unlock()
	m.lifecycleMu.Unlock()

	m.waitReadDrain(readDone)

	if wasOpen {
		m.publish(Event{
			Type:   EventDisconnected,
			Code:   websocket.CloseNormalClosure,
			Reason: "force reconnect: " + reason,
		})
	}
	m.startDial()
}

// closeConn sends a close frame and drops the socket.
func (m *manager) closeConn(conn *websocket.Conn, reason string) {
	if conn == nil {
		return
	}
	deadline := time.Now().Add(time.Second)
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason), deadline)
	conn.Close()
}

// waitReadDrain waits briefly for an orphaned read loop to exit. Must not be
// called while holding lifecycleMu: the loop's close handler may need that
// lock to notice its generation is stale and return.
func (m *manager) waitReadDrain(readDone chan struct{}) {
	if readDone == nil {
		return
	}
	select {
	case <-readDone:
	case <-time.After(2 * time.Second):
		m.logger.Warn("read loop did not exit cleanly")
	}
}

func (m *manager) Send(v any) error {
	m.mu.Lock()
	if m.state != StateOpen || m.conn == nil {
		m.mu.Unlock()
		return ErrNotOpen
	}
	conn := m.conn
	m.mu.Unlock()

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(m.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}

	m.mu.Lock()
	m.messagesOut++
	m.mu.Unlock()
	return nil
}

func (m *manager) Subscribe(fn Handler) int64 { return m.bus.Subscribe(fn) }

func (m *manager) Unsubscribe(token int64) { m.bus.Unsubscribe(token) }

func (m *manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *manager) IsConnected() bool { return m.State() == StateOpen }

func (m *manager) IsConnecting() bool { return m.State() == StateConnecting }

func (m *manager) Stats() ManagerStats {
	m.mu.Lock()
	s := ManagerStats{
		State:                       m.state,
		Attempt:                     m.attempt,
		ConsecutiveAbnormalClosures: m.consecAbnormal,
		SessionID:                   m.sessionID,
		ConnectedAt:                 m.connectedAt,
		MessagesIn:                  m.messagesIn,
		MessagesOut:                 m.messagesOut,
		LastCloseCode:               m.lastCloseCode,
		LastCloseReason:             m.lastCloseReason,
	}
	m.mu.Unlock()

	s.Breaker = m.breaker.Stats()
	s.Quality = m.monitor.Snapshot()
	return s
}

// publish stamps shared event fields and fans out on the bus. Never called
// with mu held.
func (m *manager) publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	if ev.SessionID == "" {
		m.mu.Lock()
		ev.SessionID = m.sessionID
		m.mu.Unlock()
	}
	m.bus.Publish(ev)
}

// onDegraded is the quality monitor's forced-reconnect hook.
func (m *manager) onDegraded(reason string) {
	m.ForceReconnect(reason)
}

// startDial moves to Connecting and dials on a fresh goroutine. A no-op
// unless the channel is currently down and reconnection is wanted.
func (m *manager) startDial() {
	m.mu.Lock()
	if m.state == StateOpen || m.state == StateConnecting || m.intentional {
		m.mu.Unlock()
		return
	}
	if m.conn != nil {
		// A stale socket from a prior generation; drop it silently.
		m.conn.Close()
		m.conn = nil
	}
	m.readDone = nil
	m.state = StateConnecting
	m.generation++
	gen := m.generation
	ctx := m.baseCtx
	attempt := m.attempt
	m.mu.Unlock()

	m.timers.Arm(slotStall, m.cfg.StallTimeout, func() { m.onStall(gen) })

	m.logger.Info("connecting", "url", m.cfg.URL, "attempt", attempt)
	go m.dial(ctx, gen)
}

// dial performs one connection attempt for the given generation.
func (m *manager) dial(ctx context.Context, gen uint64) {
	conn, _, err := m.dialer.DialContext(ctx, m.cfg.URL, nil)
	if err != nil {
		m.timers.Cancel(slotStall)

		m.mu.Lock()
		if gen != m.generation || m.state != StateConnecting {
			m.mu.Unlock()
			return
		}
		m.state = StateClosed
		m.lastCloseCode = websocket.CloseAbnormalClosure
		m.lastCloseReason = "dial: " + err.Error()
		intentional := m.intentional
		m.mu.Unlock()

		m.logger.Warn("dial failed", "url", m.cfg.URL, "error", err)
		m.publish(Event{
			Type:   EventDisconnected,
			Code:   websocket.CloseAbnormalClosure,
			Reason: "dial failed",
		})
		if !intentional {
			m.scheduleReconnect(CauseAbnormal, "dial failed")
		}
		return
	}

	m.lifecycleMu.Lock()

	m.mu.Lock()
	if gen != m.generation || m.state != StateConnecting || m.intentional {
		// Superseded while dialing; discard the socket.
		m.mu.Unlock()
		m.lifecycleMu.Unlock()
		conn.Close()
		return
	}
	m.conn = conn
	m.state = StateOpen
	m.sessionID = uuid.NewString()
	m.connectedAt = time.Now()
	m.attempt = 0
	m.consecAbnormal = 0
	readDone := make(chan struct{})
	m.readDone = readDone
	baseCtx := m.baseCtx
	sessionID := m.sessionID
	m.mu.Unlock()

	m.timers.Cancel(slotStall)

	conn.SetPingHandler(func(data string) error {
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	go m.readLoop(conn, gen, readDone)
	m.monitor.Start(baseCtx)
	m.lifecycleMu.Unlock()

	m.logger.Info("channel open", "url", m.cfg.URL, "session", sessionID)
	m.publish(Event{Type: EventConnected})
	m.sendStatusProbe(gen)
}

// onStall aborts a dial stuck in Connecting past the stall deadline and
// routes it through the normal retry path.
func (m *manager) onStall(gen uint64) {
	m.mu.Lock()
	if gen != m.generation || m.state != StateConnecting {
		m.mu.Unlock()
		return
	}
	m.generation++ // orphan the in-flight dial
	m.state = StateClosed
	m.lastCloseCode = websocket.CloseAbnormalClosure
	m.lastCloseReason = "connect stalled"
	intentional := m.intentional
	m.mu.Unlock()

	m.logger.Warn("connect stalled", "timeout", m.cfg.StallTimeout)
	m.publish(Event{Type: EventError, Err: ErrConnectStalled})
	m.publish(Event{
		Type:   EventDisconnected,
		Code:   websocket.CloseAbnormalClosure,
		Reason: "connect stalled",
	})
	if !intentional {
		m.scheduleReconnect(CauseAbnormal, "connect stalled")
	}
}

// readLoop drains one socket until it errors, then hands off to close
// handling. done is closed on exit so teardown can wait for the drain.
func (m *manager) readLoop(conn *websocket.Conn, gen uint64, done chan struct{}) {
	defer close(done)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			code, reason := closeDetails(err)
			m.handleClose(gen, code, reason)
			return
		}
		m.handleFrame(gen, data)
	}
}

// closeDetails extracts the close code and reason from a read error. Reads
// failing without a close frame count as abnormal closure.
func closeDetails(err error) (int, string) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text
	}
	return websocket.CloseAbnormalClosure, err.Error()
}

// handleClose runs once per socket when its read loop ends.
func (m *manager) handleClose(gen uint64, code int, reason string) {
	// Fast path: a socket orphaned by teardown or a newer dial reports to
	// nobody.
	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.lifecycleMu.Lock()

	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		m.lifecycleMu.Unlock()
		return
	}
	intentional := m.intentional
	m.state = StateClosed
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.readDone = nil
	m.lastCloseCode = code
	m.lastCloseReason = reason
	m.mu.Unlock()

	m.timers.Cancel(slotStatus)
	m.timers.Cancel(slotStall)
	m.monitor.Stop()
	m.lifecycleMu.Unlock()

	cause := classifyCloseCode(code)
	m.logger.Info("channel closed",
		"code", code,
		"reason", reason,
		"cause", cause.String(),
		"intentional", intentional,
	)

	m.publish(Event{Type: EventDisconnected, Code: code, Reason: reason})

	if intentional {
		return
	}
	m.scheduleReconnect(cause, reason)
}

// scheduleReconnect decides the next step after a non-intentional closure:
// give up when the budget is spent, defer through the breaker's cooldown
// when tripped, otherwise wait out the policy delay.
func (m *manager) scheduleReconnect(cause CloseCause, reason string) {
	m.mu.Lock()

	if cause == CauseAbnormal {
		m.consecAbnormal++
		m.breaker.RecordClosure()
	} else {
		m.consecAbnormal = 0
	}

	if m.attempt >= m.cfg.MaxReconnectAttempts {
		m.mu.Unlock()
		m.logger.Error("reconnect budget exhausted",
			"attempts", m.cfg.MaxReconnectAttempts,
			"last_close", reason,
		)
		m.publish(Event{Type: EventError, Err: ErrRetriesExhausted})
		return
	}

	var delay time.Duration
	if d := m.breaker.Deferral(); d > 0 {
		// Storm containment: wait out the cooldown, then one clean attempt.
		m.attempt = 0
		m.consecAbnormal = 0
		delay = d
	} else {
		delay = m.policy.Delay(m.attempt, cause)
		m.attempt++
	}
	attempt := m.attempt
	gen := m.generation
	m.mu.Unlock()

	if cause == CausePolicyViolation || cause == CauseInternalError {
		m.publish(Event{Type: EventError, Err: fmt.Errorf("server-side close: %s", reason)})
	}

	m.logger.Info("reconnect scheduled",
		"cause", cause.String(),
		"delay", delay,
		"attempt", attempt,
	)
	m.timers.Arm(slotReconnect, delay, func() { m.onReconnectTimer(gen) })
}

// onReconnectTimer fires the scheduled reconnect if it is still wanted.
func (m *manager) onReconnectTimer(gen uint64) {
	m.mu.Lock()
	if gen != m.generation || m.intentional || m.state == StateOpen || m.state == StateConnecting {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	m.startDial()
}

// sendStatusProbe issues a status_request and re-arms the next one.
func (m *manager) sendStatusProbe(gen uint64) {
	m.mu.Lock()
	if gen != m.generation || m.state != StateOpen {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	if err := m.Send(newStatusRequest()); err != nil {
		m.logger.Debug("status request failed", "error", err)
	}
	m.timers.Arm(slotStatus, m.cfg.StatusCheckInterval, func() { m.sendStatusProbe(gen) })
}

// handleFrame dispatches one inbound text frame.
func (m *manager) handleFrame(gen uint64, data []byte) {
	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return
	}
	m.messagesIn++
	m.mu.Unlock()

	var hdr frameHeader
	if err := json.Unmarshal(data, &hdr); err != nil {
		// Not JSON: deliver verbatim rather than drop or fail.
		m.publish(Event{Type: EventMessage, Payload: data, Unparsed: true})
		return
	}

	switch hdr.Type {
	case frameServerStatus, frameServerStatus2:
		servers, err := decodeServerStatus(data)
		if err != nil {
			m.publish(Event{Type: EventMessage, Payload: data, Unparsed: true})
			return
		}
		m.publish(Event{Type: EventStatusUpdate, Servers: servers})

	case frameToolsUpdated, frameToolsUpdated2:
		tools, err := decodeToolsUpdated(data)
		if err != nil {
			m.publish(Event{Type: EventMessage, Payload: data, Unparsed: true})
			return
		}
		m.publish(Event{Type: EventToolUpdate, Tools: tools})

	case framePong:
		f, err := decodePong(data)
		if err != nil {
			m.logger.Debug("malformed pong", "error", err)
			return
		}
		m.monitor.HandlePong(f)

	case frameServerPing:
		f, err := decodeServerPing(data)
		if err != nil {
			m.logger.Debug("malformed server ping", "error", err)
			return
		}
		m.monitor.HandleServerPing(f)

	default:
		m.publish(Event{Type: EventMessage, Payload: data})
	}
}
