package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	ical "github.com/arran4/golang-ical"

	"racecal/internal/config"
	"racecal/internal/ics"
	appLog "racecal/internal/log"
	"racecal/internal/model"
	"racecal/internal/schedule"
)

// TokenRegistry is the registration surface the API exposes over the
// token store.
type TokenRegistry interface {
	Save(ctx context.Context, rec model.TokenRecord) error
	Delete(ctx context.Context, token string) error
}

// Server provides the HTTP API: health, localized schedule, normalized
// ICS export, and push-token registration.
type Server struct {
	cfg    *config.Config
	source *ics.ScheduleSource
	tokens TokenRegistry
	mux    *http.ServeMux

	// In-memory cache of the parsed schedule so every request does not
	// re-fetch and re-parse the feeds. Localization still happens per
	// request because it depends on "now" and the viewer timezone.
	eventsMu    sync.RWMutex
	eventsCache *eventsCache
}

type eventsCache struct {
	events    []model.ScheduleEvent
	updatedAt time.Time
}

const eventsCacheTTL = 30 * time.Second

// NewServer constructs a Server. tokens may be nil when the process runs
// without a database; registration endpoints then report unavailable.
func NewServer(cfg *config.Config, source *ics.ScheduleSource, tokens TokenRegistry) *Server {
	s := &Server{
		cfg:    cfg,
		source: source,
		tokens: tokens,
		mux:    http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health.
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
			w.Header().Set("WWW-Authenticate", `Basic realm="racecal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/schedule", s.handleSchedule)
	s.mux.HandleFunc("GET /api/schedule.ics", s.handleScheduleICS)
	s.mux.HandleFunc("POST /api/tokens", s.handleTokenRegister)
	s.mux.HandleFunc("DELETE /api/tokens/{token}", s.handleTokenDelete)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// events returns the cached parsed schedule, refreshing it when stale.
func (s *Server) events(ctx context.Context) ([]model.ScheduleEvent, error) {
	now := time.Now()

	s.eventsMu.RLock()
	ec := s.eventsCache
	s.eventsMu.RUnlock()
	if ec != nil && now.Sub(ec.updatedAt) < eventsCacheTTL {
		return ec.events, nil
	}

	events, err := s.source.Events(ctx)
	if err != nil {
		return nil, err
	}

	s.eventsMu.Lock()
	s.eventsCache = &eventsCache{events: events, updatedAt: time.Now()}
	s.eventsMu.Unlock()
	return events, nil
}

// Refresh eagerly repopulates the schedule cache; wired to the refresh
// cron so API requests rarely pay the fetch cost.
func (s *Server) Refresh(ctx context.Context) {
	events, err := s.source.Events(ctx)
	if err != nil {
		appLog.Error("schedule refresh failed", err)
		return
	}
	s.eventsMu.Lock()
	s.eventsCache = &eventsCache{events: events, updatedAt: time.Now()}
	s.eventsMu.Unlock()
	appLog.Info("schedule cache refreshed", "event_count", len(events))
}

type scheduleResponse struct {
	Events   []localizedDTO `json:"events"`
	Timezone string         `json:"timezone"`
	Now      time.Time      `json:"now"`
}

type localizedDTO struct {
	model.LocalizedEvent
	Countdown string `json:"countdown"`
}

// handleSchedule returns the localized schedule.
//
// GET /api/schedule?hours=72&tz=Europe/Rome&lang=it&series=F1,MotoGP
//   - hours:  forward window (default from config horizon)
//   - tz:     viewer IANA timezone (default from config)
//   - lang:   viewer locale for relative labels (default from config)
//   - series: comma-separated visible series (default: all configured)
func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	hours := parseIntDefault(q.Get("hours"), s.cfg.HorizonHours)
	if hours <= 0 {
		hours = s.cfg.HorizonHours
	}
	loc := resolveLocationOrUTC(firstNonEmpty(q.Get("tz"), s.cfg.Timezone))
	phrases := schedule.PhrasesFor(firstNonEmpty(q.Get("lang"), s.cfg.Locale))
	visible := s.visibleSeries(q.Get("series"))

	events, err := s.events(ctx)
	if err != nil {
		appLog.Error("schedule request failed", err)
		writeError(w, http.StatusBadGateway, "couldn't load schedule")
		return
	}

	now := time.Now().UTC()
	filtered := schedule.FilterVisible(events, visible, time.Duration(hours)*time.Hour, now)

	dtos := make([]localizedDTO, 0, len(filtered))
	for _, ev := range filtered {
		le := schedule.Localize(ev, loc, phrases, now)
		dtos = append(dtos, localizedDTO{
			LocalizedEvent: le,
			Countdown:      schedule.CountdownLabel(le.Status, le.StartRelative, le.FinishRelative, phrases),
		})
	}

	writeJSON(w, http.StatusOK, scheduleResponse{
		Events:   dtos,
		Timezone: loc.String(),
		Now:      now.In(loc),
	})
}

// handleScheduleICS exports the normalized schedule as a single ICS
// document in the delimited SUMMARY format, so downstream consumers get a
// uniform feed regardless of how heterogeneous the sources were.
func (s *Server) handleScheduleICS(w http.ResponseWriter, r *http.Request) {
	events, err := s.events(r.Context())
	if err != nil {
		appLog.Error("schedule export failed", err)
		writeError(w, http.StatusBadGateway, "couldn't load schedule")
		return
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//racecal//schedule//EN")

	stamp := time.Now().UTC()
	for _, ev := range events {
		ve := cal.AddEvent(ev.Key())
		ve.SetDtStampTime(stamp)
		ve.SetStartAt(ev.StartsAtUTC.UTC())
		if ev.EndsAtUTC != nil {
			ve.SetEndAt(ev.EndsAtUTC.UTC())
		}
		ve.SetSummary(strings.Join([]string{
			string(ev.Series), ev.Round, ev.Country, ev.Circuit, string(ev.Session),
		}, " | "))
		if ev.Circuit != "" || ev.Country != "" {
			ve.SetLocation(strings.TrimSuffix(ev.Circuit+", "+ev.Country, ", "))
		}
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(cal.Serialize()))
}

type tokenRequest struct {
	Token            string   `json:"token"`
	SubscribedSeries []string `json:"subscribedSeries"`
}

func (s *Server) handleTokenRegister(w http.ResponseWriter, r *http.Request) {
	if s.tokens == nil {
		writeError(w, http.StatusServiceUnavailable, "token registry unavailable")
		return
	}

	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	rec := model.TokenRecord{Token: req.Token}
	if req.SubscribedSeries != nil {
		rec.SubscribedSeries = make([]model.Series, 0, len(req.SubscribedSeries))
		for _, series := range req.SubscribedSeries {
			rec.SubscribedSeries = append(rec.SubscribedSeries, model.Series(series))
		}
	}

	if err := s.tokens.Save(r.Context(), rec); err != nil {
		appLog.Error("token save failed", err)
		writeError(w, http.StatusInternalServerError, "failed to save token")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTokenDelete(w http.ResponseWriter, r *http.Request) {
	if s.tokens == nil {
		writeError(w, http.StatusServiceUnavailable, "token registry unavailable")
		return
	}

	token := r.PathValue("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}
	if err := s.tokens.Delete(r.Context(), token); err != nil {
		appLog.Error("token delete failed", err)
		writeError(w, http.StatusInternalServerError, "failed to delete token")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// visibleSeries parses a comma-separated series filter; empty means all
// configured series.
func (s *Server) visibleSeries(raw string) map[model.Series]bool {
	visible := make(map[model.Series]bool, len(s.cfg.Series))
	if raw == "" {
		for _, series := range s.cfg.Series {
			visible[model.Series(series)] = true
		}
		return visible
	}
	for _, part := range strings.Split(raw, ",") {
		if t := strings.TrimSpace(part); t != "" {
			visible[model.Series(t)] = true
		}
	}
	return visible
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

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func resolveLocationOrUTC(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		appLog.Error("failed to load timezone, falling back to UTC", err, "name", name)
		return time.UTC
	}
	return loc
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

// StartServer runs the HTTP server until ctx is canceled, then shuts it
// down gracefully.
func StartServer(ctx context.Context, cfg *config.Config, s *Server) error {
	srv := &http.Server{
		Addr:         cfg.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
