package tracking

import (
	"sync"
	"time"

	"convoy/pkg/logger"
)

const sessionReplacedReason = "session replaced"

// Session binds a stable identity to its current live connection.
type Session struct {
	Identity     string
	DisplayName  string
	ConnectionID string
	RoomCode     string
	JoinedAt     time.Time
}

// Registry enforces one live connection per identity. It is the only
// component allowed to close a connection.
type Registry struct {
	mu         sync.Mutex
	byIdentity map[string]*Session
	byConn     map[string]string

	transport Transport
	log       *logger.Logger
	now       func() time.Time
}

func NewRegistry(transport Transport, log *logger.Logger) *Registry {
	if log == nil {
		log = logger.NewNop()
	}
	return &Registry{
		byIdentity: make(map[string]*Session),
		byConn:     make(map[string]string),
		transport:  transport,
		log:        log,
		now:        time.Now,
	}
}

// Register installs connID as the live connection for identity and returns
// the session it replaced, if any. A different previous connection stops
// resolving as soon as the new mapping is in place; it is then told it was
// replaced and closed outside the registry lock.
func (r *Registry) Register(identity, displayName, connID, roomCode string) (previous *Session) {
	var evicted *Session

	r.mu.Lock()
	if prev, ok := r.byIdentity[identity]; ok {
		snapshot := *prev
		previous = &snapshot

		if prev.ConnectionID != connID {
			delete(r.byConn, prev.ConnectionID)
			evicted = &snapshot
		}
	}

	// A connection carries a single identity.
	if other, ok := r.byConn[connID]; ok && other != identity {
		delete(r.byIdentity, other)
	}

	r.byIdentity[identity] = &Session{
		Identity:     identity,
		DisplayName:  displayName,
		ConnectionID: connID,
		RoomCode:     roomCode,
		JoinedAt:     r.now(),
	}
	r.byConn[connID] = identity
	r.mu.Unlock()

	if evicted != nil {
		r.evict(evicted)
	}
	return previous
}

func (r *Registry) evict(prev *Session) {
	log := r.log.WithIdentity(prev.Identity).WithConnection(prev.ConnectionID)

	if err := r.transport.SendToConnection(prev.ConnectionID, EventSessionReplaced, SessionReplacedPayload{
		Reason: sessionReplacedReason,
	}); err != nil {
		log.WithError(err).Debug("Could not notify replaced session")
	}
	if err := r.transport.CloseConnection(prev.ConnectionID, sessionReplacedReason); err != nil {
		log.WithError(err).Debug("Replaced connection already gone")
	}

	log.Info("Evicted previous session")
}

// Unregister removes the mapping only while connID is still the live
// connection for identity, so a late disconnect cannot drop a newer session.
func (r *Registry) Unregister(identity, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byIdentity[identity]
	if !ok || current.ConnectionID != connID {
		return false
	}

	delete(r.byIdentity, identity)
	delete(r.byConn, connID)
	return true
}

func (r *Registry) Lookup(connID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	identity, ok := r.byConn[connID]
	if !ok {
		return Session{}, false
	}
	return *r.byIdentity[identity], true
}

func (r *Registry) LookupIdentity(identity string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.byIdentity[identity]
	if !ok {
		return Session{}, false
	}
	return *session, true
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byIdentity)
}
