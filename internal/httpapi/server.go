package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/moli-lab/limen/internal/limen/service"
	"github.com/moli-lab/limen/internal/limen/store"
	"github.com/moli-lab/limen/internal/limen/types"
)

type Dependencies struct {
	Logger     *log.Logger
	Addr       string
	Dispatcher *service.Dispatcher
	Modes      *service.ModeController
	Creds      store.CredentialStore
	Reporter   *service.Reporter
}

type Server struct {
	httpServer *http.Server
	logger     *log.Logger
	mux        *http.ServeMux
	dispatcher *service.Dispatcher
	modes      *service.ModeController
	creds      store.CredentialStore
	reporter   *service.Reporter
}

func NewServer(d Dependencies) *Server {
	mux := http.NewServeMux()

	s := &Server{
		logger:     d.Logger,
		mux:        mux,
		dispatcher: d.Dispatcher,
		modes:      d.Modes,
		creds:      d.Creds,
		reporter:   d.Reporter,
	}

	mux.HandleFunc("POST /v1/scan", s.handleScan)
	mux.HandleFunc("POST /mode/register", s.handleModeRegister)
	mux.HandleFunc("GET /v1/mode", s.handleMode)
	mux.HandleFunc("POST /v1/users", s.handleCreateUser)
	mux.HandleFunc("GET /v1/users/{student_id}", s.handleGetUser)
	mux.HandleFunc("DELETE /v1/users/{student_id}/cards/{rfid_uid}", s.handleUnbindCard)
	mux.HandleFunc("GET /v1/reports/daily", s.handleDailyReport)
	mux.HandleFunc("GET /v1/reports/weekly", s.handleWeeklyReport)
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	handler := loggingMiddleware(d.Logger, requestIDMiddleware(mux))

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// handleScan is the reader bridge: one raw card read in, one decision
// out. A storage failure maps to 503 with a denied outcome so the reader
// fails closed.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req types.ScanRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}

	observedAt := parseOptionalTimestamp(req.ScannedAt)

	result, err := s.dispatcher.HandleScan(r.Context(), req.RFIDUID, observedAt)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCardUID) {
			writeError(w, http.StatusBadRequest, "invalid_rfid_uid", err.Error())
			return
		}
		s.logger.Printf("scan error: %v", err)
		writeJSON(w, http.StatusServiceUnavailable, types.ScanResponse{
			OK:         false,
			Outcome:    string(service.OutcomeDenied),
			ServerTime: time.Now().UTC().Format(time.RFC3339Nano),
		})
		return
	}

	writeJSON(w, http.StatusOK, types.ScanResponse{
		OK:         true,
		Outcome:    string(result.Outcome),
		Action:     string(result.Action),
		StudentID:  result.StudentID,
		Name:       result.Name,
		ServerTime: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// handleModeRegister toggles registration mode:
// POST /mode/register?enable=true&student_id=<id> or ?enable=false.
func (s *Server) handleModeRegister(w http.ResponseWriter, r *http.Request) {
	enable := strings.EqualFold(r.URL.Query().Get("enable"), "true")

	if !enable {
		mode, err := s.modes.DisableRegistration(r.Context())
		if err != nil {
			s.logger.Printf("disable registration: %v", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
			return
		}
		writeJSON(w, http.StatusOK, modeResponse(mode))
		return
	}

	studentID := strings.TrimSpace(r.URL.Query().Get("student_id"))
	if studentID == "" {
		writeError(w, http.StatusBadRequest, "missing_student_id", "student_id is required")
		return
	}

	if _, err := s.creds.GetUser(r.Context(), studentID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown_student", "no such student")
			return
		}
		s.logger.Printf("mode register lookup: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}

	mode, err := s.modes.EnableRegistration(r.Context(), studentID)
	if err != nil {
		if errors.Is(err, service.ErrModeConflict) {
			writeJSON(w, http.StatusConflict, modeResponse(mode))
			return
		}
		s.logger.Printf("enable registration: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}

	writeJSON(w, http.StatusOK, modeResponse(mode))
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, modeResponse(s.modes.Current()))
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req types.CreateUserRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}

	studentID := strings.TrimSpace(req.StudentID)
	name := strings.TrimSpace(req.Name)
	if studentID == "" || name == "" {
		writeError(w, http.StatusBadRequest, "missing_fields", "student_id and name are required")
		return
	}

	err := s.creds.CreateUser(r.Context(), store.UserRecord{StudentID: studentID, Name: name})
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			writeError(w, http.StatusConflict, "already_exists", "student_id is already registered")
			return
		}
		s.logger.Printf("create user: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}

	s.writeUser(w, r, http.StatusCreated, studentID)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	s.writeUser(w, r, http.StatusOK, r.PathValue("student_id"))
}

func (s *Server) writeUser(w http.ResponseWriter, r *http.Request, status int, studentID string) {
	user, err := s.creds.GetUser(r.Context(), studentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown_student", "no such student")
			return
		}
		s.logger.Printf("get user: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}

	cards, err := s.creds.CardsFor(r.Context(), studentID)
	if err != nil {
		s.logger.Printf("cards for %s: %v", studentID, err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}

	resp := types.UserResponse{
		StudentID: user.StudentID,
		Name:      user.Name,
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
		Cards:     make([]types.Card, 0, len(cards)),
	}
	for _, c := range cards {
		resp.Cards = append(resp.Cards, types.Card{
			RFIDUID:   c.RFIDUID,
			CreatedAt: c.CreatedAt.Format(time.RFC3339),
		})
	}

	writeJSON(w, status, resp)
}

func (s *Server) handleUnbindCard(w http.ResponseWriter, r *http.Request) {
	studentID := r.PathValue("student_id")
	rfidUID := r.PathValue("rfid_uid")

	err := s.creds.UnbindCard(r.Context(), studentID, rfidUID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown_card", "no such binding")
			return
		}
		s.logger.Printf("unbind card: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDailyReport(w http.ResponseWriter, r *http.Request) {
	day, ok := parseDateParam(w, r.URL.Query().Get("date"))
	if !ok {
		return
	}

	rep, err := s.reporter.DailyReport(r.Context(), day)
	if err != nil {
		s.logger.Printf("daily report: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleWeeklyReport(w http.ResponseWriter, r *http.Request) {
	end, ok := parseDateParam(w, r.URL.Query().Get("end"))
	if !ok {
		return
	}

	rep, err := s.reporter.WeeklyReport(r.Context(), end)
	if err != nil {
		s.logger.Printf("weekly report: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func modeResponse(m service.Mode) types.ModeResponse {
	if m.Registering {
		return types.ModeResponse{Mode: "register", StudentID: m.StudentID}
	}
	return types.ModeResponse{Mode: "normal"}
}

// parseDateParam parses a YYYY-MM-DD query value, defaulting to today.
// Writes a 400 and returns false on a malformed value.
func parseDateParam(w http.ResponseWriter, v string) (time.Time, bool) {
	if strings.TrimSpace(v) == "" {
		return time.Now(), true
	}
	t, err := time.ParseInLocation("2006-01-02", v, time.Local)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_date", "expected YYYY-MM-DD")
		return time.Time{}, false
	}
	return t, true
}

// parseOptionalTimestamp parses a reader-reported timestamp, returning
// the zero time if absent or unparseable (the dispatcher falls back to
// server time).
func parseOptionalTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}
