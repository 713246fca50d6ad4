package handlers

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"net/url"
	"time"

	"github.com/benvon/nextstep/internal/apperr"
	"github.com/benvon/nextstep/internal/database"
	"github.com/benvon/nextstep/internal/models"
	"github.com/benvon/nextstep/internal/services/calendar"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const (
	oauthStateCookie = "nextstep_calendar_state"
	oauthStateTTL    = 10 * time.Minute
)

// CalendarHandler links accounts to Google Calendar and runs bulk syncs
type CalendarHandler struct {
	connector    *calendar.Connector
	syncer       *calendar.Syncer
	tokens       database.CalendarTokenStore
	frontendURL  string
	secureCookie bool
	now          func() time.Time
	logger       *zap.Logger
}

// CalendarHandlerConfig wires a CalendarHandler. A nil Connector disables the integration.
type CalendarHandlerConfig struct {
	Connector    *calendar.Connector
	Syncer       *calendar.Syncer
	Tokens       database.CalendarTokenStore
	FrontendURL  string
	SecureCookie bool
	Logger       *zap.Logger
	// Now picks "today" for add-event; defaults to time.Now
	Now func() time.Time
}

// NewCalendarHandler creates a new calendar handler
func NewCalendarHandler(cfg CalendarHandlerConfig) *CalendarHandler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &CalendarHandler{
		now:          now,
		connector:    cfg.Connector,
		syncer:       cfg.Syncer,
		tokens:       cfg.Tokens,
		frontendURL:  cfg.FrontendURL,
		secureCookie: cfg.SecureCookie,
		logger:       logger,
	}
}

// RegisterRoutes registers calendar routes. The router should already carry the /calendar prefix.
func (h *CalendarHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.Disconnect).Methods("DELETE")
	r.HandleFunc("/status", h.Status).Methods("GET")
	r.HandleFunc("/connect", h.Connect).Methods("GET")
	r.HandleFunc("/callback", h.Callback).Methods("GET")
	r.HandleFunc("/sync-upcoming", h.SyncUpcoming).Methods("POST")
	r.HandleFunc("/add-event", h.AddEvent).Methods("POST")
}

// CalendarStatus reports the caller's calendar link
type CalendarStatus struct {
	Enabled   bool       `json:"enabled"`
	Connected bool       `json:"connected"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

func (h *CalendarHandler) enabled() bool {
	return h.connector != nil && h.tokens != nil
}

// Connected reports whether ownerID has stored calendar credentials
func (h *CalendarHandler) Connected(ctx context.Context, ownerID string) bool {
	if !h.enabled() {
		return false
	}
	_, err := h.tokens.GetToken(ctx, ownerID)
	return err == nil
}

func (h *CalendarHandler) requireEnabled(w http.ResponseWriter) bool {
	if !h.enabled() {
		respondJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", "Calendar integration is not configured")
		return false
	}
	return true
}

// Status handles GET /calendar/status
func (h *CalendarHandler) Status(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}
	status := CalendarStatus{Enabled: h.enabled()}
	if status.Enabled {
		tok, err := h.tokens.GetToken(r.Context(), ownerID)
		switch {
		case err == nil:
			status.Connected = true
			if !tok.ExpiresAt.IsZero() {
				expires := tok.ExpiresAt.UTC()
				status.ExpiresAt = &expires
			}
		case !apperr.IsNotFound(err):
			h.logger.Error("calendar_status_failed", zap.String("user_id", ownerID), zap.Error(err))
			respondAppError(w, err)
			return
		}
	}
	respondJSON(w, http.StatusOK, status)
}

// Connect handles GET /calendar/connect. It binds a random state to the browser and returns the consent URL.
func (h *CalendarHandler) Connect(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireOwner(w, r); !ok {
		return
	}
	if !h.requireEnabled(w) {
		return
	}

	state, err := newOAuthState()
	if err != nil {
		h.logger.Error("calendar_state_failed", zap.Error(err))
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to start calendar connection")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   int(oauthStateTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	respondJSON(w, http.StatusOK, map[string]string{"url": h.connector.AuthCodeURL(state)})
}

// Callback handles the OAuth redirect and sends the browser back to the frontend
func (h *CalendarHandler) Callback(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}
	if !h.requireEnabled(w) {
		return
	}

	// The state cookie is single use
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})

	query := r.URL.Query()
	if reason := query.Get("error"); reason != "" {
		h.logger.Info("calendar_consent_denied", zap.String("user_id", ownerID), zap.String("reason", reason))
		h.redirect(w, r, "error")
		return
	}
	cookie, err := r.Cookie(oauthStateCookie)
	if err != nil || cookie.Value == "" ||
		subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(query.Get("state"))) != 1 {
		h.logger.Warn("calendar_state_mismatch", zap.String("user_id", ownerID))
		h.redirect(w, r, "error")
		return
	}
	if err := h.connector.Exchange(r.Context(), ownerID, query.Get("code")); err != nil {
		h.logger.Error("calendar_exchange_failed", zap.String("user_id", ownerID), zap.Error(err))
		h.redirect(w, r, "error")
		return
	}
	h.logger.Info("calendar_connected", zap.String("user_id", ownerID))
	h.redirect(w, r, "connected")
}

func (h *CalendarHandler) redirect(w http.ResponseWriter, r *http.Request, result string) {
	target, err := url.Parse(h.frontendURL)
	if err != nil || h.frontendURL == "" {
		target = &url.URL{Path: "/"}
	}
	q := target.Query()
	q.Set("calendar", result)
	target.RawQuery = q.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

// SyncUpcoming handles POST /calendar/sync-upcoming
func (h *CalendarHandler) SyncUpcoming(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}
	if !h.requireEnabled(w) {
		return
	}
	if h.syncer == nil {
		respondJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", "Calendar sync is not configured")
		return
	}
	if !h.Connected(r.Context(), ownerID) {
		respondJSONError(w, http.StatusConflict, "Conflict", "Calendar is not connected")
		return
	}

	report, err := h.syncer.SyncUpcoming(r.Context(), ownerID)
	if err != nil {
		h.logger.Error("calendar_sync_upcoming_failed", zap.String("user_id", ownerID), zap.Error(err))
		respondAppError(w, err)
		return
	}
	h.logger.Info("calendar_sync_upcoming",
		zap.String("user_id", ownerID),
		zap.Int("total", report.Total),
		zap.Int("synced", report.Synced),
		zap.Int("failed", report.Failed))
	respondJSON(w, http.StatusOK, report)
}

// AddEventRequest picks the task to mirror. Without taskId the next incomplete task is used.
type AddEventRequest struct {
	GoalID   string `json:"goalId" validate:"required,max=64"`
	TaskID   string `json:"taskId" validate:"max=64"`
	TimeZone string `json:"timeZone" validate:"max=64"`
}

// AddEvent handles POST /calendar/add-event
func (h *CalendarHandler) AddEvent(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}
	if !h.requireEnabled(w) {
		return
	}
	if h.syncer == nil {
		respondJSONError(w, http.StatusServiceUnavailable, "Service Unavailable", "Calendar sync is not configured")
		return
	}
	if !h.Connected(r.Context(), ownerID) {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Calendar is not connected. Connect your account first.")
		return
	}

	var req AddEventRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	loc := time.UTC
	if req.TimeZone != "" {
		var err error
		if loc, err = time.LoadLocation(req.TimeZone); err != nil {
			respondJSONError(w, http.StatusBadRequest, "Bad Request", "Unknown time zone")
			return
		}
	}
	today := models.CalendarDate(h.now().In(loc).Format(models.CalendarDateLayout))

	added, err := h.syncer.AddEvent(r.Context(), ownerID, req.GoalID, req.TaskID, today)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindSyncAdvisory {
			h.logger.Warn("calendar_add_event_failed", zap.String("user_id", ownerID), zap.Error(err))
			respondJSONError(w, http.StatusBadGateway, "Bad Gateway", "Failed to create calendar event")
			return
		}
		respondAppError(w, err)
		return
	}
	h.logger.Info("calendar_event_added", zap.String("user_id", ownerID), zap.String("task_id", added.TaskID))
	respondJSON(w, http.StatusOK, added)
}

// Disconnect handles DELETE /calendar
func (h *CalendarHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := requireOwner(w, r)
	if !ok {
		return
	}
	if !h.requireEnabled(w) {
		return
	}
	if err := h.connector.Disconnect(r.Context(), ownerID); err != nil {
		h.logger.Error("calendar_disconnect_failed", zap.String("user_id", ownerID), zap.Error(err))
		respondAppError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func newOAuthState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
