package beacon

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rtolen/vairify-guard/internal/guard/schedule"
)

// ErrNoRecentFix is returned when no fresh client-reported position exists
// for the session.
var ErrNoRecentFix = errors.New("no recent location fix")

// ProviderFactory hands out the geolocation boundary for one session.
type ProviderFactory interface {
	ProviderFor(sessionID string) Provider
}

// FactoryFunc adapts a function to a ProviderFactory.
type FactoryFunc func(sessionID string) Provider

func (f FactoryFunc) ProviderFor(sessionID string) Provider { return f(sessionID) }

// FixForgetter is implemented by providers that retain per-session state.
// The session registry releases that state once a session is terminal.
type FixForgetter interface {
	Forget(sessionID string)
}

// PushProvider is the production geolocation source: mobile clients report
// their position over the API and each beacon tick reads the freshest
// report. A report older than maxAge counts as a failed fix.
type PushProvider struct {
	clock schedule.Clock

	mu     sync.Mutex
	fixes  map[string]Fix
	maxAge time.Duration
}

func NewPushProvider(clock schedule.Clock, maxAge time.Duration) *PushProvider {
	if maxAge <= 0 {
		maxAge = 5 * time.Minute
	}
	return &PushProvider{
		clock:  clock,
		fixes:  make(map[string]Fix),
		maxAge: maxAge,
	}
}

// Report stores the latest client-reported position for the session.
func (p *PushProvider) Report(sessionID string, fix Fix) {
	if fix.At.IsZero() {
		fix.At = p.clock.Now()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.fixes[sessionID]; ok && existing.At.After(fix.At) {
		return
	}
	p.fixes[sessionID] = fix
}

// Forget drops the stored position once the session is done.
func (p *PushProvider) Forget(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.fixes, sessionID)
}

// ProviderFor implements ProviderFactory.
func (p *PushProvider) ProviderFor(sessionID string) Provider {
	return sessionProvider{parent: p, sessionID: sessionID}
}

type sessionProvider struct {
	parent    *PushProvider
	sessionID string
}

func (s sessionProvider) RequestFix(_ context.Context) (*Fix, error) {
	s.parent.mu.Lock()
	fix, ok := s.parent.fixes[s.sessionID]
	s.parent.mu.Unlock()

	if !ok || s.parent.clock.Now().Sub(fix.At) > s.parent.maxAge {
		return nil, ErrNoRecentFix
	}
	cp := fix
	return &cp, nil
}
