package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/caffeineduck/wasmlab/guest"
	"github.com/caffeineduck/wasmlab/playground"
	"github.com/gofrs/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the playground HTTP API",
	Long: `Start an HTTP server that keeps one playground session per editor.

Endpoints:
  POST   /sessions                        Create session, returns {"id":"...","options":{...}}
  DELETE /sessions/{id}                   Close session
  GET    /sessions/{id}/options           Read language, output and versions
  PUT    /sessions/{id}/options           Change language, output and versions
  POST   /sessions/{id}/diagnostics       Diagnostics with quick fixes for {"code"}
  POST   /sessions/{id}/completions       Completions for {"code","position","trigger"}
  POST   /sessions/{id}/infotip           Hover text for {"code","position"}
  POST   /sessions/{id}/process           Run or decompile {"code"}
  POST   /sessions/{id}/actions/{action}  Apply a quick fix, returns {"text"}
  GET    /references/{name}               Reference image
  GET    /health                          Health check`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "Address to listen on (default from config, :8080)")
	serveCmd.Flags().Duration("session-ttl", 0, "Close sessions idle for this long (default from config, 15m)")
	rootCmd.AddCommand(serveCmd)
}

type sessionManager struct {
	mu       sync.Mutex
	sessions map[string]*serverSession
	ttl      time.Duration
	logger   *zap.SugaredLogger
	done     chan struct{}
	stopOnce sync.Once
}

type serverSession struct {
	compiler *playground.Compiler
	lastUsed time.Time
}

func newSessionManager(ttl time.Duration, logger *zap.SugaredLogger) *sessionManager {
	return &sessionManager{
		sessions: make(map[string]*serverSession),
		ttl:      ttl,
		logger:   logger.With("component", "sessions"),
		done:     make(chan struct{}),
	}
}

func (sm *sessionManager) add(c *playground.Compiler) (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	sm.mu.Lock()
	sm.sessions[id.String()] = &serverSession{compiler: c, lastUsed: time.Now()}
	sm.mu.Unlock()
	return id.String(), nil
}

func (sm *sessionManager) get(id string) (*playground.Compiler, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	ss, ok := sm.sessions[id]
	if !ok {
		return nil, false
	}
	ss.lastUsed = time.Now()
	return ss.compiler, true
}

func (sm *sessionManager) close(id string) bool {
	sm.mu.Lock()
	ss, ok := sm.sessions[id]
	delete(sm.sessions, id)
	sm.mu.Unlock()
	if ok {
		sm.closeCompiler(id, ss.compiler)
	}
	return ok
}

func (sm *sessionManager) closeCompiler(id string, c *playground.Compiler) {
	if err := c.Close(); err != nil {
		sm.logger.Warnw("close session", "id", id, "error", err)
	}
}

func (sm *sessionManager) len() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.sessions)
}

// sweep closes sessions idle since before now minus the TTL.
func (sm *sessionManager) sweep(now time.Time) int {
	sm.mu.Lock()
	expired := map[string]*playground.Compiler{}
	for id, ss := range sm.sessions {
		if now.Sub(ss.lastUsed) > sm.ttl {
			expired[id] = ss.compiler
			delete(sm.sessions, id)
		}
	}
	sm.mu.Unlock()

	for id, c := range expired {
		sm.logger.Debugw("session expired", "id", id)
		sm.closeCompiler(id, c)
	}
	return len(expired)
}

func (sm *sessionManager) cleanup() {
	interval := min(sm.ttl, time.Minute)
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			sm.sweep(now)
		case <-sm.done:
			return
		}
	}
}

func (sm *sessionManager) closeAll() {
	sm.stopOnce.Do(func() { close(sm.done) })
	sm.mu.Lock()
	all := sm.sessions
	sm.sessions = make(map[string]*serverSession)
	sm.mu.Unlock()
	for id, ss := range all {
		sm.closeCompiler(id, ss.compiler)
	}
}

type server struct {
	env      *env
	sessions *sessionManager
	logger   *zap.SugaredLogger
}

func newServer(e *env, ttl time.Duration) *server {
	return &server{
		env:      e,
		sessions: newSessionManager(ttl, e.logger),
		logger:   e.logger.With("component", "server"),
	}
}

func (s *server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /sessions", s.createSession)
	mux.HandleFunc("DELETE /sessions/{id}", s.deleteSession)
	mux.HandleFunc("GET /sessions/{id}/options", s.withSession(s.getOptions))
	mux.HandleFunc("PUT /sessions/{id}/options", s.withSession(s.putOptions))
	mux.HandleFunc("POST /sessions/{id}/diagnostics", s.withSession(s.diagnostics))
	mux.HandleFunc("POST /sessions/{id}/completions", s.withSession(s.completions))
	mux.HandleFunc("POST /sessions/{id}/infotip", s.withSession(s.infoTip))
	mux.HandleFunc("POST /sessions/{id}/process", s.withSession(s.process))
	mux.HandleFunc("POST /sessions/{id}/actions/{action}", s.withSession(s.applyAction))
	mux.HandleFunc("GET /references/{name}", s.reference)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return mux
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, c *playground.Compiler)

func (s *server) withSession(h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, ok := s.sessions.get(r.PathValue("id"))
		if !ok {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		h(w, r, c)
	}
}

type createSessionResponse struct {
	ID      string              `json:"id"`
	Options playground.Settings `json:"options"`
}

type codeRequest struct {
	Code     string          `json:"code"`
	Position int             `json:"position"`
	Trigger  *triggerRequest `json:"trigger,omitempty"`
}

type triggerRequest struct {
	// Kind is invoke, insertion or deletion.
	Kind      string `json:"kind"`
	Character string `json:"character,omitempty"`
}

func (t *triggerRequest) trigger() (guest.Trigger, error) {
	if t == nil {
		return guest.Trigger{Kind: guest.TriggerInvoke}, nil
	}
	var tr guest.Trigger
	switch t.Kind {
	case "", "invoke":
		tr.Kind = guest.TriggerInvoke
	case "insertion":
		tr.Kind = guest.TriggerInsertion
	case "deletion":
		tr.Kind = guest.TriggerDeletion
	default:
		return tr, fmt.Errorf("unknown trigger kind %q", t.Kind)
	}
	if r := []rune(t.Character); len(r) > 0 {
		tr.Character = r[0]
	}
	return tr, nil
}

type diagnosticsResponse struct {
	Diagnostics []playground.Diagnostic `json:"diagnostics"`
}

type completionsResponse struct {
	Items []guest.CompletionItem `json:"items"`
}

type actionResponse struct {
	Text string `json:"text"`
}

func (s *server) createSession(w http.ResponseWriter, r *http.Request) {
	var change playground.SettingsChange
	if !decodeOptional(w, r, &change) {
		return
	}
	c, err := s.env.newCompiler()
	if err != nil {
		writeError(w, err)
		return
	}
	if err := c.Apply(change); err != nil {
		c.Close()
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	id, err := s.sessions.add(c)
	if err != nil {
		c.Close()
		writeError(w, err)
		return
	}
	s.logger.Debugw("session created", "id", id, "language", c.Language())
	writeJSON(w, http.StatusCreated, createSessionResponse{ID: id, Options: c.Settings()})
}

func (s *server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if !s.sessions.close(r.PathValue("id")) {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) getOptions(w http.ResponseWriter, r *http.Request, c *playground.Compiler) {
	writeJSON(w, http.StatusOK, c.Settings())
}

func (s *server) putOptions(w http.ResponseWriter, r *http.Request, c *playground.Compiler) {
	var change playground.SettingsChange
	if !decode(w, r, &change) {
		return
	}
	if err := c.Apply(change); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, c.Settings())
}

func (s *server) diagnostics(w http.ResponseWriter, r *http.Request, c *playground.Compiler) {
	var req codeRequest
	if !decode(w, r, &req) {
		return
	}
	diags, err := c.Diagnostics(r.Context(), req.Code)
	if err != nil {
		writeError(w, err)
		return
	}
	if diags == nil {
		diags = []playground.Diagnostic{}
	}
	writeJSON(w, http.StatusOK, diagnosticsResponse{Diagnostics: diags})
}

func (s *server) completions(w http.ResponseWriter, r *http.Request, c *playground.Compiler) {
	var req codeRequest
	if !decode(w, r, &req) {
		return
	}
	trigger, err := req.Trigger.trigger()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	items, err := c.Completions(r.Context(), req.Code, req.Position, trigger)
	if err != nil {
		writeError(w, err)
		return
	}
	if items == nil {
		items = []guest.CompletionItem{}
	}
	writeJSON(w, http.StatusOK, completionsResponse{Items: items})
}

func (s *server) infoTip(w http.ResponseWriter, r *http.Request, c *playground.Compiler) {
	var req codeRequest
	if !decode(w, r, &req) {
		return
	}
	tip, err := c.InfoTip(r.Context(), req.Code, req.Position)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tip)
}

func (s *server) process(w http.ResponseWriter, r *http.Request, c *playground.Compiler) {
	var req codeRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := c.Process(r.Context(), req.Code)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) applyAction(w http.ResponseWriter, r *http.Request, c *playground.Compiler) {
	a, ok := c.Action(r.PathValue("action"))
	if !ok {
		http.Error(w, "action not found", http.StatusNotFound)
		return
	}
	text, err := c.ApplyAction(r.Context(), a)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, actionResponse{Text: text})
}

func (s *server) reference(w http.ResponseWriter, r *http.Request) {
	ref, ok := s.env.cache.Get(r.PathValue("name"))
	if !ok {
		http.Error(w, "reference not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/wasm")
	w.Write(ref.Image)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return false
	}
	return true
}

// decodeOptional accepts an empty body.
func decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.ContentLength == 0 {
		return true
	}
	return decode(w, r, v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, playground.ErrStaleAction):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, playground.ErrClosed):
		http.Error(w, err.Error(), http.StatusGone)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = e.cfg.Server.Addr
	}
	ttl, _ := cmd.Flags().GetDuration("session-ttl")
	if ttl <= 0 {
		ttl = e.cfg.Server.SessionTTL
	}

	s := newServer(e, ttl)
	go s.sessions.cleanup()
	defer s.sessions.closeAll()

	srv := &http.Server{Addr: addr, Handler: s.handler()}
	ctx := commandContext(cmd)
	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	fmt.Fprintf(cmd.ErrOrStderr(), "wasmlab server listening on %s\n", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
