// Package state holds the gateway's one consolidated, mutex-guarded piece
// of shared mutable state. The teacher keeps several independent
// package-level maps (sessions, wsClients, diagnosticsProcesses,
// activeShells, metricsIntervals); this package folds them into a single
// value with one lock, passed explicitly to whatever needs it, instead of
// reintroducing package-level globals.
package state

import (
	"sync"

	"github.com/simba-remote/gateway/internal/metrics"
)

// Session is the subset of session.Session that State needs to track and
// tear down. Defined here (rather than imported) so this package has no
// dependency on internal/session, avoiding an import cycle.
type Session interface {
	ID() string
	Close()
}

// Client is the subset of gateway.ClientConnection that State tracks.
type Client interface {
	ID() string
	Close()
}

// ShellSession is a live interactive adb shell owned by one client.
type ShellSession interface {
	Close() error
}

// DiagnosticsProcess is a running logcat/dumpsys capture.
type DiagnosticsProcess interface {
	Stop() error
}

// HarTrace is a running external HAR capture process.
type HarTrace interface {
	Stop() error
}

// State is the gateway's single source of truth for live sessions,
// clients, and the ancillary per-client processes (shells, diagnostics,
// HAR traces) that must be torn down when their owner disconnects.
type State struct {
	mu sync.RWMutex

	sessions    map[string]Session
	clients     map[string]Client
	shells      map[string]ShellSession
	diagnostics map[string]DiagnosticsProcess
	harTraces   map[string]HarTrace
}

// New returns an empty State.
func New() *State {
	return &State{
		sessions:    make(map[string]Session),
		clients:     make(map[string]Client),
		shells:      make(map[string]ShellSession),
		diagnostics: make(map[string]DiagnosticsProcess),
		harTraces:   make(map[string]HarTrace),
	}
}

// AddSession registers a new session, keyed by its scid.
func (s *State) AddSession(sess Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID()] = sess
	metrics.SessionsActive.Add(1)
	metrics.SessionsTotal.Add(1)
}

// RemoveSession unregisters and closes a session, if present.
func (s *State) RemoveSession(scid string) {
	s.mu.Lock()
	sess, ok := s.sessions[scid]
	if ok {
		delete(s.sessions, scid)
	}
	s.mu.Unlock()
	if ok {
		sess.Close()
		metrics.SessionsActive.Add(-1)
	}
}

// GetSession looks up a session by scid.
func (s *State) GetSession(scid string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[scid]
	return sess, ok
}

// SessionIDs snapshots the currently live scids.
func (s *State) SessionIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

// AddClient registers a new client connection.
func (s *State) AddClient(c Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.ID()] = c
	metrics.ClientsActive.Add(1)
}

// RemoveClient unregisters a client and any per-client processes it owns
// (shell, diagnostics, HAR trace), mirroring the close-triggered cleanup
// the gateway's WebSocket handler performs on disconnect.
func (s *State) RemoveClient(clientID string) {
	s.mu.Lock()
	_, existed := s.clients[clientID]
	delete(s.clients, clientID)
	shell, hasShell := s.shells[clientID]
	delete(s.shells, clientID)
	diag, hasDiag := s.diagnostics[clientID]
	delete(s.diagnostics, clientID)
	har, hasHar := s.harTraces[clientID]
	delete(s.harTraces, clientID)
	s.mu.Unlock()

	if existed {
		metrics.ClientsActive.Add(-1)
	}
	if hasShell {
		shell.Close()
	}
	if hasDiag {
		diag.Stop()
	}
	if hasHar {
		har.Stop()
	}
}

// ClientIDs snapshots the currently connected client ids.
func (s *State) ClientIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.clients))
	for id := range s.clients {
		ids = append(ids, id)
	}
	return ids
}

// GetClient looks up a client by its connection id.
func (s *State) GetClient(clientID string) (Client, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[clientID]
	return c, ok
}

// SetShell registers the interactive adb shell owned by a client, closing
// any prior shell that client already had open.
func (s *State) SetShell(clientID string, sh ShellSession) {
	s.mu.Lock()
	prev, had := s.shells[clientID]
	s.shells[clientID] = sh
	s.mu.Unlock()
	if had {
		prev.Close()
	}
}

// StopShell closes and unregisters a client's interactive shell.
func (s *State) StopShell(clientID string) error {
	s.mu.Lock()
	sh, ok := s.shells[clientID]
	delete(s.shells, clientID)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return sh.Close()
}

// GetShell looks up a client's interactive shell.
func (s *State) GetShell(clientID string) (ShellSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sh, ok := s.shells[clientID]
	return sh, ok
}

// SetDiagnostics registers a running diagnostics capture for a client.
func (s *State) SetDiagnostics(clientID string, d DiagnosticsProcess) {
	s.mu.Lock()
	prev, had := s.diagnostics[clientID]
	s.diagnostics[clientID] = d
	s.mu.Unlock()
	if had {
		prev.Stop()
	}
}

// StopDiagnostics stops and unregisters a client's diagnostics capture.
func (s *State) StopDiagnostics(clientID string) error {
	s.mu.Lock()
	d, ok := s.diagnostics[clientID]
	delete(s.diagnostics, clientID)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return d.Stop()
}

// SetHarTrace registers a running HAR trace process for a client.
func (s *State) SetHarTrace(clientID string, h HarTrace) {
	s.mu.Lock()
	prev, had := s.harTraces[clientID]
	s.harTraces[clientID] = h
	s.mu.Unlock()
	if had {
		prev.Stop()
	}
}

// StopHarTrace stops and unregisters a client's HAR trace.
func (s *State) StopHarTrace(clientID string) error {
	s.mu.Lock()
	h, ok := s.harTraces[clientID]
	delete(s.harTraces, clientID)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return h.Stop()
}
