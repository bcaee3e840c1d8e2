package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ValentinKolb/dDoc/lib/errs"
	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/google/uuid"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/looplab/fsm"
	"golang.org/x/sync/singleflight"
)

var log = logger.GetLogger("session")

// DefaultAddress is used when neither the caller nor the configuration names an address
const DefaultAddress = "mongodb://localhost:27017"

// --------------------------------------------------------------------------
// States & Events
// --------------------------------------------------------------------------

// State is the lifecycle state of a Session
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateClosed       State = "closed"
)

const (
	eventConnect   = "connect"
	eventSucceeded = "succeeded"
	eventFailed    = "failed"
	eventClose     = "close"
)

// lazyConnectKey is the single flight key of implicit connects
const lazyConnectKey = "connect"

// Status is a point in time snapshot of a Session
type Status struct {
	State        State      `json:"state" bson:"state"`
	Address      string     `json:"address,omitempty" bson:"address,omitempty"`
	ConnectionID string     `json:"connectionId,omitempty" bson:"connectionId,omitempty"`
	ConnectedAt  *time.Time `json:"connectedAt,omitempty" bson:"connectedAt,omitempty"`
}

// --------------------------------------------------------------------------
// Session
// --------------------------------------------------------------------------

// Session owns the single connection to the document store.
//
// Locking: sem serialises Connect and Close (one slot). mu guards the handle
// and is held for writing during the whole connect attempt, so Handle blocks
// until an in-flight connect is resolved. EnsureConnected only reads the state
// machine, lazy triggers arriving during an attempt join it.
type Session struct {
	connector      store.IConnector
	defaultAddress string

	sem     chan struct{}
	lazy    singleflight.Group
	mu      sync.RWMutex
	machine *fsm.FSM

	handle       store.IConn
	address      string
	connectionID string
	connectedAt  time.Time
}

// New creates a disconnected session. An empty defaultAddress selects DefaultAddress.
func New(connector store.IConnector, defaultAddress string) *Session {
	if defaultAddress == "" {
		defaultAddress = DefaultAddress
	}
	s := &Session{
		connector:      connector,
		defaultAddress: defaultAddress,
		sem:            make(chan struct{}, 1),
	}
	s.machine = fsm.NewFSM(
		string(StateDisconnected),
		fsm.Events{
			{Name: eventConnect, Src: []string{string(StateDisconnected), string(StateConnected), string(StateClosed)}, Dst: string(StateConnecting)},
			{Name: eventSucceeded, Src: []string{string(StateConnecting)}, Dst: string(StateConnected)},
			{Name: eventFailed, Src: []string{string(StateConnecting)}, Dst: string(StateDisconnected)},
			{Name: eventClose, Src: []string{string(StateConnected)}, Dst: string(StateClosed)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				log.Debugf("state %s -> %s (%s)", e.Src, e.Dst, e.Event)
				trackState(State(e.Src), State(e.Dst))
			},
		},
	)
	return s
}

// DefaultAddress returns the address used when a caller omits one
func (s *Session) DefaultAddress() string {
	return s.defaultAddress
}

// Connect opens a connection to address (or the default address if empty) and makes
// it the live handle. A previous handle is closed once the new one is verified.
// On failure the session ends up disconnected and a ConnectionError is returned.
func (s *Session) Connect(ctx context.Context, address string) error {
	if address == "" {
		address = s.defaultAddress
	}
	if err := s.acquire(ctx, address); err != nil {
		return err
	}
	defer s.release()
	return s.connect(ctx, address)
}

// EnsureConnected is the lazy connect gate. It is a no-op while connected and fails
// with NotConnectedError after an explicit Close. Otherwise it connects to address,
// falling back to the default address. Concurrent callers share one connect attempt.
func (s *Session) EnsureConnected(ctx context.Context, address string) error {
	// the state machine has its own lock, so waiters do not block on an attempt in flight
	switch s.state() {
	case StateConnected:
		if address != "" {
			s.mu.RLock()
			current := s.address
			s.mu.RUnlock()
			if address != current {
				log.Debugf("already connected to %s, ignoring address %s", errs.Redact(current), errs.Redact(address))
			}
		}
		return nil
	case StateClosed:
		return &errs.NotConnectedError{Reason: "connection was closed, connect explicitly to reopen it"}
	}

	if address == "" {
		address = s.defaultAddress
	}

	ch := s.lazy.DoChan(lazyConnectKey, func() (any, error) {
		if err := s.acquire(ctx, address); err != nil {
			return nil, err
		}
		defer s.release()

		// an explicit connect or close may have won the race for the semaphore
		s.mu.RLock()
		state := s.state()
		s.mu.RUnlock()
		switch state {
		case StateConnected:
			return nil, nil
		case StateClosed:
			return nil, &errs.NotConnectedError{Reason: "connection was closed, connect explicitly to reopen it"}
		}
		lazyConnects.Inc()
		log.Infof("connecting lazily to %s", errs.Redact(address))
		return nil, s.connect(ctx, address)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return &errs.ConcurrentConnectError{Address: address, Cause: ctx.Err()}
	}
}

// Close closes the live handle and moves the session to closed.
// Closing a session that is not connected is a successful no-op.
func (s *Session) Close(ctx context.Context) error {
	if err := s.acquire(ctx, ""); err != nil {
		return err
	}
	defer s.release()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state() != StateConnected {
		return nil
	}

	handle, address := s.handle, s.address
	s.handle, s.address, s.connectionID, s.connectedAt = nil, "", "", time.Time{}
	s.event(eventClose)

	if err := handle.Close(ctx); err != nil {
		return &errs.StoreOperationError{Operation: "close-connection", Target: errs.Redact(address), Cause: err}
	}
	log.Infof("connection to %s closed", errs.Redact(address))
	return nil
}

// Handle returns the live handle or NotConnectedError.
// Callers must not keep the handle beyond a single call.
func (s *Session) Handle() (store.IConn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch state := s.state(); {
	case state == StateConnected && s.handle != nil:
		return s.handle, nil
	case state == StateClosed:
		return nil, &errs.NotConnectedError{Reason: "connection was closed"}
	default:
		return nil, &errs.NotConnectedError{Reason: "no connection established"}
	}
}

// Status returns a snapshot of the session. The address is redacted.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{State: s.state()}
	if st.State == StateConnected {
		at := s.connectedAt
		st.Address = errs.Redact(s.address)
		st.ConnectionID = s.connectionID
		st.ConnectedAt = &at
	}
	return st
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// connect performs one connect attempt. The caller must hold the semaphore.
func (s *Session) connect(ctx context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.event(eventConnect)
	start := time.Now()
	conn, err := s.connector.Connect(ctx, address)
	connectDuration.UpdateDuration(start)

	if err != nil {
		connectFailures.Inc()
		// the old handle is not kept across a failed reconnect
		s.dropHandle(ctx)
		s.event(eventFailed)
		log.Warningf("connect to %s failed: %v", errs.Redact(address), err)

		connErr := &errs.ConnectionError{Address: address, Cause: err}
		if errs.IsDeadline(err) {
			return &errs.TimeoutError{Operation: "connect", Cause: connErr}
		}
		return connErr
	}

	s.dropHandle(ctx)
	s.handle = conn
	s.address = address
	s.connectionID = uuid.NewString()
	s.connectedAt = time.Now()
	s.event(eventSucceeded)
	connects.Inc()

	log.Infof("connected to %s (connection %s)", errs.Redact(address), s.connectionID)
	return nil
}

// dropHandle closes and forgets the current handle. The caller must hold mu.
func (s *Session) dropHandle(ctx context.Context) {
	if s.handle == nil {
		return
	}
	// closing must finish even if the caller's deadline already expired
	if err := s.handle.Close(context.WithoutCancel(ctx)); err != nil {
		log.Warningf("failed to close previous connection %s: %v", s.connectionID, err)
	}
	s.handle, s.address, s.connectionID, s.connectedAt = nil, "", "", time.Time{}
}

// acquire takes the connect semaphore. If another connect or close is in flight
// it waits for it, giving up with ConcurrentConnectError when ctx ends first.
func (s *Session) acquire(ctx context.Context, address string) error {
	select {
	case s.sem <- struct{}{}:
		return nil
	default:
	}
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return &errs.ConcurrentConnectError{Address: address, Cause: ctx.Err()}
	}
}

func (s *Session) release() {
	<-s.sem
}

func (s *Session) state() State {
	return State(s.machine.Current())
}

// event fires a state machine event. Transitions are fully controlled by this
// package, so a rejected event is a programming error and only logged.
func (s *Session) event(name string) {
	if err := s.machine.Event(context.Background(), name); err != nil {
		var noTransition fsm.NoTransitionError
		if !errors.As(err, &noTransition) {
			log.Errorf("state machine rejected event %s in state %s: %v", name, s.machine.Current(), err)
		}
	}
}
