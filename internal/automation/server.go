// Package automation exposes the loopback control endpoint that lets an
// external client drive session creation and joining without user
// interaction.
package automation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/InterCode-Team/open-collaboration-tools/internal/application"
	"github.com/InterCode-Team/open-collaboration-tools/internal/domain"
	"github.com/InterCode-Team/open-collaboration-tools/internal/ports"
)

const maxCommandBodyBytes = 1 << 20

// SessionDriver is the slice of the orchestrator the endpoint drives. All
// commands go through the silent paths; automation never prompts.
type SessionDriver interface {
	CreateSilent(ctx context.Context, serverURLOverride string, identity domain.Identity) (application.SessionResult, error)
	JoinSilent(ctx context.Context, roomID, serverURLOverride string, identity domain.Identity) (application.SessionResult, error)
	Current() *domain.Session
}

// EditorTracker is the editor seam the endpoint both reads and feeds: the
// host-context query consumes ActiveEditor, while the /editor routes let the
// process embedding the daemon report which document has focus.
type EditorTracker interface {
	ports.EditorService
	SetActive(filePath string, cursorLine, cursorCharacter int, lines []string)
	Clear()
}

// Server is the automation control endpoint. It binds to a loopback address
// and serves the JSON command protocol.
type Server struct {
	driver SessionDriver
	editor EditorTracker
	log    zerolog.Logger

	addr       string
	listener   net.Listener
	httpServer *http.Server
}

func NewServer(addr string, driver SessionDriver, editor EditorTracker, log zerolog.Logger) *Server {
	s := &Server{
		driver: driver,
		editor: editor,
		log:    log,
		addr:   addr,
	}
	s.httpServer = &http.Server{
		Handler:           s.router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the endpoint's HTTP handler, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start binds the listener and serves in the background. A bind failure
// (typically the port already in use) is reported once; the caller keeps
// running without the endpoint.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.log.Error().Err(err).Str("addr", s.addr).Msg("automation endpoint not started")
		return fmt.Errorf("bind automation endpoint on %s: %w", s.addr, err)
	}
	s.listener = listener

	go func() {
		if serveErr := s.httpServer.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			s.log.Error().Err(serveErr).Msg("automation endpoint stopped")
		}
	}()

	s.log.Info().Str("addr", listener.Addr().String()).Msg("automation endpoint listening")
	return nil
}

// Addr returns the bound address, useful when the configured port is 0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.listener == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(corsMiddleware)
	r.Post("/", s.handleCommand)
	r.Get("/host-context", s.handleHostContext)
	r.Post("/editor", s.handleEditorUpdate)
	r.Delete("/editor", s.handleEditorClear)
	return r
}

// corsMiddleware permits all origins on this endpoint and answers OPTIONS
// preflights with a bare 200.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type CommandRequest struct {
	Action    string `json:"action"`
	RoomID    string `json:"roomId"`
	ServerURL string `json:"serverUrl"`
	Username  string `json:"username"`
	Email     string `json:"email"`
}

type CommandResponse struct {
	Success   bool   `json:"success"`
	RoomID    string `json:"roomId,omitempty"`
	ServerURL string `json:"serverUrl,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	log := s.log.With().Str("request_id", requestID).Logger()

	var req CommandRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCommandBodyBytes)).Decode(&req); err != nil {
		log.Debug().Err(err).Msg("malformed automation request")
		writeJSON(w, http.StatusBadRequest, CommandResponse{Success: false, Error: "invalid JSON body"})
		return
	}

	identity := domain.Identity{Name: req.Username, Email: req.Email}

	var result application.SessionResult
	var err error
	switch req.Action {
	case "create":
		log.Info().Str("action", "create").Msg("automation command")
		result, err = s.driver.CreateSilent(r.Context(), req.ServerURL, identity)
	case "join":
		if req.RoomID == "" {
			writeJSON(w, http.StatusBadRequest, CommandResponse{Success: false, Error: "roomId is required for join action"})
			return
		}
		log.Info().Str("action", "join").Str("room_id", req.RoomID).Msg("automation command")
		result, err = s.driver.JoinSilent(r.Context(), req.RoomID, req.ServerURL, identity)
	default:
		writeJSON(w, http.StatusBadRequest, CommandResponse{Success: false, Error: fmt.Sprintf("unsupported action %q", req.Action)})
		return
	}

	if err != nil {
		log.Debug().Err(err).Str("action", req.Action).Msg("automation command failed")
		writeJSON(w, http.StatusBadRequest, CommandResponse{Success: false, Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, CommandResponse{
		Success:   true,
		RoomID:    result.RoomID,
		ServerURL: result.ServerURL,
	})
}

type HostContextResponse struct {
	Success bool                     `json:"success"`
	Context *application.HostContext `json:"context,omitempty"`
	Error   string                   `json:"error,omitempty"`
}

func (s *Server) handleHostContext(w http.ResponseWriter, r *http.Request) {
	if s.driver.Current() == nil {
		writeJSON(w, http.StatusOK, HostContextResponse{Success: false, Error: "no active collaboration session"})
		return
	}

	state, err := s.editor.ActiveEditor(r.Context())
	if err != nil {
		if errors.Is(err, domain.ErrNoActiveEditor) {
			writeJSON(w, http.StatusOK, HostContextResponse{Success: false, Error: "no focused editor"})
			return
		}
		writeJSON(w, http.StatusOK, HostContextResponse{Success: false, Error: err.Error()})
		return
	}

	excerpt := application.BuildExcerpt(state, application.ContextRadius)
	writeJSON(w, http.StatusOK, HostContextResponse{Success: true, Context: &excerpt})
}

type EditorUpdateRequest struct {
	FilePath        string   `json:"filePath"`
	CursorLine      int      `json:"cursorLine"`
	CursorCharacter int      `json:"cursorCharacter"`
	Lines           []string `json:"lines"`
}

func (s *Server) handleEditorUpdate(w http.ResponseWriter, r *http.Request) {
	var req EditorUpdateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCommandBodyBytes)).Decode(&req); err != nil {
		s.log.Debug().Err(err).Msg("malformed editor update")
		writeJSON(w, http.StatusBadRequest, CommandResponse{Success: false, Error: "invalid JSON body"})
		return
	}
	if req.FilePath == "" {
		writeJSON(w, http.StatusBadRequest, CommandResponse{Success: false, Error: "filePath is required"})
		return
	}

	s.editor.SetActive(req.FilePath, req.CursorLine, req.CursorCharacter, req.Lines)
	s.log.Debug().Str("file_path", req.FilePath).Int("cursor_line", req.CursorLine).Msg("editor focus updated")
	writeJSON(w, http.StatusOK, CommandResponse{Success: true})
}

func (s *Server) handleEditorClear(w http.ResponseWriter, _ *http.Request) {
	s.editor.Clear()
	writeJSON(w, http.StatusOK, CommandResponse{Success: true})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
