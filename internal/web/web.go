package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"recurcal/internal/config"
	"recurcal/internal/ics"
	appLog "recurcal/internal/log"
	"recurcal/internal/model"
	"recurcal/internal/schedule"
	"recurcal/recur"
)

// maxCount caps next/previous/evaluate counts.
const maxCount = 1000

// maxBody caps POST /api/evaluate bodies.
const maxBody = 1 << 20

// Server provides HTTP APIs for schedule queries.
type Server struct {
	cfg      *config.Config
	resolver *schedule.Resolver
	mux      *http.ServeMux
}

// NewServer constructs a new Server over resolver.
func NewServer(resolver *schedule.Resolver) *Server {
	s := &Server{
		cfg:      resolver.Config(),
		resolver: resolver,
		mux:      http.NewServeMux(),
	}
	s.registerRoutes()
	if s.cfg.SearchUnbounded() {
		appLog.Warn("search limit disabled; a rule set that never matches holds its request forever",
			"max_search_days", s.cfg.MaxSearchDays)
	}
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials disable auth.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="recurcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// StartServer serves the API on cfg.Listen until ctx is canceled, then
// shuts down gracefully.
func StartServer(ctx context.Context, s *Server) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/schedules", s.handleSchedules)
	s.mux.HandleFunc("GET /api/schedules/{id}/next", s.handleStep(1))
	s.mux.HandleFunc("GET /api/schedules/{id}/previous", s.handleStep(-1))
	s.mux.HandleFunc("GET /api/schedules/{id}/all", s.handleAll)
	s.mux.HandleFunc("GET /api/schedules/{id}/matches", s.handleMatches)
	s.mux.HandleFunc("GET /api/schedules/{id}/rrule", s.handleRRule)
	s.mux.HandleFunc("GET /api/calendar.ics", s.handleCalendar)
	s.mux.HandleFunc("POST /api/evaluate", s.handleEvaluate)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// scheduleDTO is the JSON view of a schedule.
type scheduleDTO struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	Repeats    bool         `json:"repeats"`
	Holidays   int          `json:"holidays"`
	Recurrence recur.Record `json:"recurrence"`
}

// occurrencesResponse is the JSON response shape for next/previous/all.
// Occurrences holds formatted strings when a format is requested.
type occurrencesResponse struct {
	ScheduleID  string `json:"schedule_id"`
	Occurrences any    `json:"occurrences"`
}

type matchesResponse struct {
	Date    recur.Date `json:"date"`
	Matches bool       `json:"matches"`
}

type rruleResponse struct {
	RRule string `json:"rrule"`
}

func (s *Server) handleSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := s.resolver.ResolveAll(r.Context())
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	out := make([]scheduleDTO, 0, len(schedules))
	for _, sc := range schedules {
		out = append(out, scheduleDTO{
			ID:         sc.ID,
			Name:       sc.Name,
			Repeats:    sc.Recurrence.Repeats(),
			Holidays:   sc.Holidays,
			Recurrence: sc.Recurrence.Save(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleStep serves next (dir 1) and previous (dir -1).
//
// GET /api/schedules/{id}/next?count=5&format=2006-01-02
//   - count:  how many dates (default config default_count)
//   - from:   anchor date, YYYY-MM-DD (default today)
//   - format: Go time layout; RFC 3339 instants when omitted
func (s *Server) handleStep(dir int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sc, ok := s.resolve(w, r)
		if !ok {
			return
		}
		count, ok := s.count(w, r)
		if !ok {
			return
		}
		if !applyFrom(w, r, sc.Recurrence, true) {
			return
		}

		var times []time.Time
		var err error
		if dir > 0 {
			times, err = sc.Recurrence.Next(count)
		} else {
			times, err = sc.Recurrence.Previous(count)
		}
		if err != nil {
			s.writeFailure(w, err)
			return
		}
		writeOccurrences(w, r, sc.ID, times)
	}
}

func (s *Server) handleAll(w http.ResponseWriter, r *http.Request) {
	sc, ok := s.resolve(w, r)
	if !ok {
		return
	}
	if !applyFrom(w, r, sc.Recurrence, false) {
		return
	}
	times, err := sc.Recurrence.All()
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeOccurrences(w, r, sc.ID, times)
}

func (s *Server) handleMatches(w http.ResponseWriter, r *http.Request) {
	sc, ok := s.resolve(w, r)
	if !ok {
		return
	}
	d, err := recur.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "date: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, matchesResponse{Date: d, Matches: sc.Recurrence.Matches(d)})
}

func (s *Server) handleRRule(w http.ResponseWriter, r *http.Request) {
	sc, ok := s.resolve(w, r)
	if !ok {
		return
	}
	rule, err := ics.RRuleString(sc.Recurrence)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rruleResponse{RRule: rule})
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	schedules, err := s.resolver.ResolveAll(r.Context())
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	body, err := ics.Export(schedules, ics.ExportOptions{})
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, body)
}

// handleEvaluate generates occurrences for an ad-hoc recurrence record.
//
// POST /api/evaluate?count=5&from=...&format=... with a JSON recurrence
// body. The record is evaluated with the configured timezone and week start
// and counts from its start unless from is given.
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var rec recur.Record
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	if err := dec.Decode(&rec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid recurrence: "+err.Error())
		return
	}
	opts, err := schedule.Options(s.cfg)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	rc, err := recur.FromRecord(rec, opts...)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid recurrence: "+err.Error())
		return
	}
	count, ok := s.count(w, r)
	if !ok {
		return
	}
	if !applyFrom(w, r, rc, false) {
		return
	}
	times, err := rc.Next(count)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeOccurrences(w, r, "", times)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.resolver.Refresh(r.Context()); err != nil {
		s.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// resolve loads the {id} schedule, writing a 404 when it is unknown.
func (s *Server) resolve(w http.ResponseWriter, r *http.Request) (model.Schedule, bool) {
	sc, err := s.resolver.Resolve(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeFailure(w, err)
		return model.Schedule{}, false
	}
	return sc, true
}

func (s *Server) count(w http.ResponseWriter, r *http.Request) (int, bool) {
	count := parseIntDefault(r.URL.Query().Get("count"), s.cfg.DefaultCount)
	if count <= 0 || count > maxCount {
		writeError(w, http.StatusBadRequest, "count must be between 1 and "+strconv.Itoa(maxCount))
		return 0, false
	}
	return count, true
}

// applyFrom anchors rc on ?from=. Without it, and when today is set, the
// anchor is today in rc's location.
func applyFrom(w http.ResponseWriter, r *http.Request, rc *recur.Recurrence, today bool) bool {
	if v := r.URL.Query().Get("from"); v != "" {
		d, err := recur.ParseDate(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "from: "+err.Error())
			return false
		}
		rc.SetFrom(d)
		return true
	}
	if _, ok := rc.From(); !ok && today {
		rc.SetFrom(recur.DateOf(time.Now().In(rc.Location())))
	}
	return true
}

func writeOccurrences(w http.ResponseWriter, r *http.Request, id string, times []time.Time) {
	resp := occurrencesResponse{ScheduleID: id}
	if layout := r.URL.Query().Get("format"); layout != "" {
		resp.Occurrences = recur.Format(layout, times)
	} else {
		resp.Occurrences = model.Occurrences(id, times)
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeFailure maps domain errors to status codes.
func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, schedule.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ics.ErrNotExpressible),
		errors.Is(err, recur.ErrNoEnd),
		errors.Is(err, recur.ErrStartAfterEnd),
		errors.Is(err, recur.ErrByDayWithoutDaysOfWeek),
		errors.Is(err, recur.ErrSearchLimit):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		appLog.Error("api request failed", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
