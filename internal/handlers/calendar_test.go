package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/benvon/nextstep/internal/database"
	"github.com/benvon/nextstep/internal/models"
	"github.com/benvon/nextstep/internal/services/calendar"
	"github.com/gorilla/mux"
	"golang.org/x/oauth2"
)

type stubBridge struct{}

func (stubBridge) SyncTaskEvent(_ context.Context, _, _ string, task models.Task) (string, bool) {
	return "evt-" + task.ID, true
}

func (stubBridge) DeleteTaskEvent(context.Context, string, string) {}

type calendarFixture struct {
	router *mux.Router
	tokens *database.MemoryCalendarTokenStore
	goals  *database.MemoryGoalStore
}

// failingBridge emulates a calendar API that rejects every event
type failingBridge struct{}

func (failingBridge) SyncTaskEvent(context.Context, string, string, models.Task) (string, bool) {
	return "", false
}

func (failingBridge) DeleteTaskEvent(context.Context, string, string) {}

var fixtureNow = time.Date(2026, 10, 15, 23, 30, 0, 0, time.UTC)

func newCalendarFixture(t *testing.T) *calendarFixture {
	t.Helper()
	return newCalendarFixtureWithBridge(t, stubBridge{})
}

func newCalendarFixtureWithBridge(t *testing.T, bridge calendar.Bridge) *calendarFixture {
	t.Helper()

	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.PostForm.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-1","refresh_token":"rt-1","token_type":"Bearer","expires_in":3600}`))
	}))
	t.Cleanup(tokenServer.Close)

	cfg := calendar.NewOAuthConfig("client-id", "client-secret", "http://localhost:8080/api/v1/calendar/callback")
	cfg.Endpoint = oauth2.Endpoint{AuthURL: "https://accounts.example.com/auth", TokenURL: tokenServer.URL}

	tokens := database.NewMemoryCalendarTokenStore()
	goalStore := database.NewMemoryGoalStore()
	h := NewCalendarHandler(CalendarHandlerConfig{
		Connector:   calendar.NewConnector(cfg, tokens),
		Syncer:      calendar.NewSyncer(goalStore, bridge),
		Tokens:      tokens,
		FrontendURL: "http://localhost:3000/settings",
		Now:         func() time.Time { return fixtureNow },
	})

	r := mux.NewRouter()
	h.RegisterRoutes(r.PathPrefix("/calendar").Subrouter())
	return &calendarFixture{router: r, tokens: tokens, goals: goalStore}
}

func (f *calendarFixture) status(t *testing.T) CalendarStatus {
	t.Helper()
	w := serve(f.router, newTestRequest("GET", "/calendar/status", testOwner, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 for status, got %d", w.Code)
	}
	return decodeData[CalendarStatus](t, w)
}

func (f *calendarFixture) connect(t *testing.T) string {
	t.Helper()
	w := serve(f.router, newTestRequest("GET", "/calendar/connect", testOwner, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 for connect, got %d", w.Code)
	}
	var state string
	for _, c := range w.Result().Cookies() {
		if c.Name == oauthStateCookie {
			state = c.Value
			if !c.HttpOnly || c.SameSite != http.SameSiteLaxMode {
				t.Errorf("Expected HttpOnly Lax state cookie, got %+v", c)
			}
		}
	}
	if state == "" {
		t.Fatal("Expected a state cookie")
	}

	consent, err := url.Parse(decodeData[map[string]string](t, w)["url"])
	if err != nil {
		t.Fatalf("Invalid consent url: %v", err)
	}
	if consent.Query().Get("state") != state {
		t.Errorf("Expected consent url to carry the cookie state")
	}
	if consent.Query().Get("access_type") != "offline" {
		t.Errorf("Expected offline access, got %q", consent.Query().Get("access_type"))
	}
	return state
}

func (f *calendarFixture) callback(t *testing.T, cookieState, query string) string {
	t.Helper()
	req := newTestRequest("GET", "/calendar/callback?"+query, testOwner, nil)
	if cookieState != "" {
		req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: cookieState})
	}
	w := serve(f.router, req)
	if w.Code != http.StatusFound {
		t.Fatalf("Expected redirect, got %d: %s", w.Code, w.Body.String())
	}
	return w.Header().Get("Location")
}

func TestCalendarHandler_ConnectFlow(t *testing.T) {
	t.Parallel()
	f := newCalendarFixture(t)

	if st := f.status(t); !st.Enabled || st.Connected {
		t.Fatalf("Expected enabled and disconnected, got %+v", st)
	}

	state := f.connect(t)

	const errorLocation = "http://localhost:3000/settings?calendar=error"
	if loc := f.callback(t, state, "state=forged&code=good-code"); loc != errorLocation {
		t.Errorf("Expected error redirect for mismatched state, got %q", loc)
	}
	if loc := f.callback(t, "", "state="+state+"&code=good-code"); loc != errorLocation {
		t.Errorf("Expected error redirect without state cookie, got %q", loc)
	}
	if loc := f.callback(t, state, "error=access_denied&state="+state); loc != errorLocation {
		t.Errorf("Expected error redirect when consent is denied, got %q", loc)
	}
	if loc := f.callback(t, state, "state="+state+"&code=bad-code"); loc != errorLocation {
		t.Errorf("Expected error redirect for a rejected code, got %q", loc)
	}
	if f.status(t).Connected {
		t.Fatal("Expected no token after failed callbacks")
	}

	if loc := f.callback(t, state, "state="+state+"&code=good-code"); loc != "http://localhost:3000/settings?calendar=connected" {
		t.Fatalf("Expected connected redirect, got %q", loc)
	}
	st := f.status(t)
	if !st.Connected || st.ExpiresAt == nil || !st.ExpiresAt.After(time.Now()) {
		t.Fatalf("Expected connected status with future expiry, got %+v", st)
	}
	tok, err := f.tokens.GetToken(context.Background(), testOwner)
	if err != nil || tok.RefreshToken != "rt-1" {
		t.Fatalf("Expected stored refresh token, got %+v, %v", tok, err)
	}

	if w := serve(f.router, newTestRequest("DELETE", "/calendar", testOwner, nil)); w.Code != http.StatusNoContent {
		t.Fatalf("Expected 204 on disconnect, got %d", w.Code)
	}
	if f.status(t).Connected {
		t.Error("Expected disconnected after DELETE")
	}
}

func TestCalendarHandler_SyncUpcoming(t *testing.T) {
	t.Parallel()
	f := newCalendarFixture(t)
	ctx := context.Background()

	if w := serve(f.router, newTestRequest("POST", "/calendar/sync-upcoming", testOwner, nil)); w.Code != http.StatusConflict {
		t.Fatalf("Expected 409 without a calendar link, got %d", w.Code)
	}

	if err := f.tokens.SaveToken(ctx, &models.CalendarToken{OwnerID: testOwner, AccessToken: "at", ExpiresAt: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	due := models.CalendarDate("2026-11-01")
	if _, err := f.goals.Create(ctx, &models.Goal{
		ID:      "g1",
		OwnerID: testOwner,
		Title:   "Run a 10k",
		Tasks: []models.Task{
			{ID: "A", Title: "Buy shoes", DueDate: &due},
			{ID: "B", Title: "Run 5k"},
			{ID: "C", Title: "Run 10k", DueDate: &due},
		},
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	w := serve(f.router, newTestRequest("POST", "/calendar/sync-upcoming", testOwner, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	report := decodeData[calendar.SyncReport](t, w)
	if report.Total != 2 || report.Synced != 2 || report.Failed != 0 {
		t.Errorf("Unexpected report %+v", report)
	}

	goal, err := f.goals.Get(ctx, testOwner, "g1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !goal.Tasks[0].HasEventRef() || goal.Tasks[1].HasEventRef() || !goal.Tasks[2].HasEventRef() {
		t.Errorf("Expected refs on dated tasks only, got %+v", goal.Tasks)
	}
}

func TestCalendarHandler_Disabled(t *testing.T) {
	t.Parallel()

	r := mux.NewRouter()
	h := NewCalendarHandler(CalendarHandlerConfig{})
	h.RegisterRoutes(r.PathPrefix("/calendar").Subrouter())

	w := serve(r, newTestRequest("GET", "/calendar/status", testOwner, nil))
	if st := decodeData[CalendarStatus](t, w); st.Enabled || st.Connected {
		t.Errorf("Expected disabled status, got %+v", st)
	}
	if h.Connected(context.Background(), testOwner) {
		t.Error("Expected Connected to be false when disabled")
	}

	for _, tc := range []struct{ method, path string }{
		{"GET", "/calendar/connect"},
		{"GET", "/calendar/callback?code=x&state=y"},
		{"POST", "/calendar/sync-upcoming"},
		{"POST", "/calendar/add-event"},
		{"DELETE", "/calendar"},
	} {
		if w := serve(r, newTestRequest(tc.method, tc.path, testOwner, nil)); w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s %s: expected 503, got %d", tc.method, tc.path, w.Code)
		}
	}
}

func (f *calendarFixture) seedRoadmap(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	if err := f.tokens.SaveToken(ctx, &models.CalendarToken{OwnerID: testOwner, AccessToken: "at", ExpiresAt: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	due := models.CalendarDate("2026-11-20")
	if _, err := f.goals.Create(ctx, &models.Goal{
		ID:      "g1",
		OwnerID: testOwner,
		Title:   "Run a 10k",
		Tasks: []models.Task{
			{ID: "A", Title: "Buy shoes", Completed: true, CompletionSummary: "bought"},
			{ID: "B", Title: "Run 5k"},
			{ID: "C", Title: "Run 10k", DueDate: &due},
		},
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}
}

func TestCalendarHandler_AddEvent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("not connected", func(t *testing.T) {
		t.Parallel()
		f := newCalendarFixture(t)
		w := serve(f.router, newTestRequest("POST", "/calendar/add-event", testOwner, map[string]any{"goalId": "g1"}))
		if w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400 without a calendar link, got %d", w.Code)
		}
	})

	t.Run("next incomplete task is scheduled for today", func(t *testing.T) {
		t.Parallel()
		f := newCalendarFixture(t)
		f.seedRoadmap(t)

		w := serve(f.router, newTestRequest("POST", "/calendar/add-event", testOwner, map[string]any{
			"goalId":   "g1",
			"timeZone": "Asia/Tokyo",
		}))
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}
		added := decodeData[calendar.AddedEvent](t, w)
		if added.TaskID != "B" || added.EventRef != "evt-B" {
			t.Errorf("Expected the next task B to be added, got %+v", added)
		}
		// 23:30 UTC is already the next day in Tokyo
		if added.DueDate != "2026-10-16" {
			t.Errorf("Expected today's date in the caller's zone, got %s", added.DueDate)
		}

		goal, err := f.goals.Get(ctx, testOwner, "g1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		b := goal.Tasks[1]
		if !b.HasDueDate() || *b.DueDate != "2026-10-16" || !b.HasEventRef() || *b.ExternalEventRef != "evt-B" {
			t.Errorf("Expected due date and ref stored on B, got %+v", b)
		}
	})

	t.Run("chosen dated task keeps its date", func(t *testing.T) {
		t.Parallel()
		f := newCalendarFixture(t)
		f.seedRoadmap(t)

		w := serve(f.router, newTestRequest("POST", "/calendar/add-event", testOwner, map[string]any{"goalId": "g1", "taskId": "C"}))
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
		}
		if added := decodeData[calendar.AddedEvent](t, w); added.DueDate != "2026-11-20" {
			t.Errorf("Expected existing due date, got %s", added.DueDate)
		}
	})

	t.Run("request errors", func(t *testing.T) {
		t.Parallel()
		f := newCalendarFixture(t)
		f.seedRoadmap(t)

		tests := []struct {
			name string
			body map[string]any
			code int
		}{
			{"missing goal id", map[string]any{}, http.StatusBadRequest},
			{"unknown goal", map[string]any{"goalId": "nope"}, http.StatusNotFound},
			{"unknown task", map[string]any{"goalId": "g1", "taskId": "Z"}, http.StatusBadRequest},
			{"completed task", map[string]any{"goalId": "g1", "taskId": "A"}, http.StatusConflict},
			{"bad time zone", map[string]any{"goalId": "g1", "timeZone": "Mars/Olympus"}, http.StatusBadRequest},
		}
		for _, tt := range tests {
			w := serve(f.router, newTestRequest("POST", "/calendar/add-event", testOwner, tt.body))
			if w.Code != tt.code {
				t.Errorf("%s: expected %d, got %d: %s", tt.name, tt.code, w.Code, w.Body.String())
			}
		}
	})

	t.Run("calendar failure", func(t *testing.T) {
		t.Parallel()
		f := newCalendarFixtureWithBridge(t, failingBridge{})
		f.seedRoadmap(t)

		w := serve(f.router, newTestRequest("POST", "/calendar/add-event", testOwner, map[string]any{"goalId": "g1"}))
		if w.Code != http.StatusBadGateway {
			t.Errorf("Expected 502 when the calendar rejects the event, got %d", w.Code)
		}
		goal, _ := f.goals.Get(ctx, testOwner, "g1")
		if goal.Tasks[1].HasEventRef() {
			t.Error("Expected no ref after a failed add")
		}
	})
}
