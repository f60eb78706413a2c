package storage

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore is a MetadataStore kept entirely in process memory. It backs
// unit tests and local development where no PostgreSQL is available, and
// applies the same terminal guard semantics as the SQL store.
type InMemoryStore struct {
	mu               sync.Mutex
	sessions         map[string]*GuardSession
	checkIns         map[string][]*CheckInEvent
	pings            map[string][]*LocationPing
	emergency        map[string]*EmergencyEvent
	emergencyAppends map[string]int
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions:         make(map[string]*GuardSession),
		checkIns:         make(map[string][]*CheckInEvent),
		pings:            make(map[string][]*LocationPing),
		emergency:        make(map[string]*EmergencyEvent),
		emergencyAppends: make(map[string]int),
	}
}

func (s *InMemoryStore) CreateSession(_ context.Context, session *GuardSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *session
	s.sessions[session.SessionID] = &cp
	return nil
}

func (s *InMemoryStore) GetSession(_ context.Context, sessionID string) (*GuardSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *session
	return &cp, nil
}

func (s *InMemoryStore) MarkSessionActive(_ context.Context, sessionID string, activatedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if IsTerminalStatus(session.Status) {
		return ErrAlreadyTerminal
	}
	session.Status = StatusActive
	at := activatedAt
	session.ActivatedAt = &at
	return nil
}

func (s *InMemoryStore) UpdateSessionDeadline(_ context.Context, sessionID string, newDeadline time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if IsTerminalStatus(session.Status) {
		return ErrAlreadyTerminal
	}
	session.ScheduledEnd = newDeadline
	return nil
}

func (s *InMemoryStore) TerminateSession(_ context.Context, sessionID string, status string, escalationReason, endedVia *string, endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if IsTerminalStatus(session.Status) {
		return ErrAlreadyTerminal
	}
	session.Status = status
	session.EscalationReason = escalationReason
	session.EndedVia = endedVia
	at := endedAt
	session.EndedAt = &at
	return nil
}

func (s *InMemoryStore) AppendCheckIn(_ context.Context, event *CheckInEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *event
	s.checkIns[event.SessionID] = append(s.checkIns[event.SessionID], &cp)
	return nil
}

func (s *InMemoryStore) AppendLocationPing(_ context.Context, ping *LocationPing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *ping
	s.pings[ping.SessionID] = append(s.pings[ping.SessionID], &cp)
	return nil
}

func (s *InMemoryStore) AppendEmergencyEvent(_ context.Context, event *EmergencyEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *event
	if _, exists := s.emergency[event.SessionID]; !exists {
		s.emergency[event.SessionID] = &cp
	}
	s.emergencyAppends[event.SessionID]++
	return nil
}

func (s *InMemoryStore) ListCheckIns(_ context.Context, sessionID string) ([]*CheckInEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]*CheckInEvent(nil), s.checkIns[sessionID]...), nil
}

func (s *InMemoryStore) ListLocationPings(_ context.Context, sessionID string) ([]*LocationPing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]*LocationPing(nil), s.pings[sessionID]...), nil
}

func (s *InMemoryStore) LatestLocationPing(_ context.Context, sessionID string) (*LocationPing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pings := s.pings[sessionID]
	for i := len(pings) - 1; i >= 0; i-- {
		if !pings[i].FixFailed {
			cp := *pings[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) GetEmergencyEvent(_ context.Context, sessionID string) (*EmergencyEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.emergency[sessionID]
	if !ok {
		return nil, nil
	}
	cp := *event
	return &cp, nil
}

// EmergencyEventCount is a test hook: it reports how many emergency events
// were ever appended for the session (appends past the first are kept so the
// exactly-once property can be asserted).
func (s *InMemoryStore) EmergencyEventCount(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.emergencyAppends[sessionID]
}
