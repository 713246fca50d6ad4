package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/benvon/nextstep/internal/logger"
	"github.com/benvon/nextstep/internal/models"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Bridge mirrors dated tasks into an external calendar.
// Failures are reported through ok=false or logged; they never fail the caller.
type Bridge interface {
	SyncTaskEvent(ctx context.Context, ownerID, goalTitle string, task models.Task) (ref string, ok bool)
	DeleteTaskEvent(ctx context.Context, ownerID, ref string)
}

const primaryCalendar = "primary"

// GoogleBridge talks to the Google Calendar v3 events API on the owner's primary calendar
type GoogleBridge struct {
	endpoint string
	timeout  time.Duration
	tokens   TokenSource
	logger   *zap.Logger
}

// NewGoogleBridge creates a bridge. baseURL is the API root, e.g. https://www.googleapis.com/calendar/v3;
// empty uses the client library's default.
func NewGoogleBridge(baseURL string, tokens TokenSource, timeout time.Duration, log *zap.Logger) *GoogleBridge {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	endpoint := ""
	if baseURL != "" {
		endpoint = strings.TrimRight(baseURL, "/") + "/"
	}
	return &GoogleBridge{
		endpoint: endpoint,
		timeout:  timeout,
		tokens:   tokens,
		logger:   log,
	}
}

// events builds an events client authorized with the owner's access token
func (b *GoogleBridge) events(ctx context.Context, accessToken string) (*gcal.EventsService, error) {
	client := &http.Client{
		Timeout: b.timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
		},
	}
	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if b.endpoint != "" {
		opts = append(opts, option.WithEndpoint(b.endpoint))
	}
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar client: %w", err)
	}
	return svc.Events, nil
}

// newEvent builds the all-day event mirroring task
func newEvent(goalTitle string, task models.Task) (*gcal.Event, error) {
	if !task.HasDueDate() {
		return nil, fmt.Errorf("task %s has no due date", task.ID)
	}
	end, err := task.DueDate.NextDay()
	if err != nil {
		return nil, err
	}

	var parts []string
	for _, p := range []string{goalTitle, task.Description} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, p)
		}
	}

	return &gcal.Event{
		Summary:     task.Title,
		Description: strings.Join(parts, "\n\n"),
		Start:       &gcal.EventDateTime{Date: string(*task.DueDate)},
		End:         &gcal.EventDateTime{Date: string(end)},
	}, nil
}

// isGone reports a stored event reference the calendar no longer knows
func isGone(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && (apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone)
}

// SyncTaskEvent creates or updates the task's event and returns its reference.
// A stale reference (404/410) is replaced by a newly created event.
func (b *GoogleBridge) SyncTaskEvent(ctx context.Context, ownerID, goalTitle string, task models.Task) (string, bool) {
	token, ok := b.tokens.AccessToken(ctx, ownerID)
	if !ok {
		return "", false
	}

	ev, err := newEvent(goalTitle, task)
	if err != nil {
		b.logFailure("sync", ownerID, task.ID, err)
		return "", false
	}
	events, err := b.events(ctx, token)
	if err != nil {
		b.logFailure("sync", ownerID, task.ID, err)
		return "", false
	}

	if task.HasEventRef() {
		updated, err := events.Patch(primaryCalendar, *task.ExternalEventRef, ev).Context(ctx).Do()
		if err == nil {
			return updated.Id, true
		}
		if !isGone(err) {
			b.logFailure("update", ownerID, task.ID, err)
			return "", false
		}
	}

	created, err := events.Insert(primaryCalendar, ev).Context(ctx).Do()
	if err == nil && created.Id == "" {
		err = errors.New("calendar response missing event id")
	}
	if err != nil {
		b.logFailure("create", ownerID, task.ID, err)
		return "", false
	}
	return created.Id, true
}

// DeleteTaskEvent removes the referenced event. Missing credentials and missing events are ignored.
func (b *GoogleBridge) DeleteTaskEvent(ctx context.Context, ownerID, ref string) {
	if ref == "" {
		return
	}
	token, ok := b.tokens.AccessToken(ctx, ownerID)
	if !ok {
		return
	}
	events, err := b.events(ctx, token)
	if err != nil {
		b.logFailure("delete", ownerID, ref, err)
		return
	}

	if err := events.Delete(primaryCalendar, ref).Context(ctx).Do(); err != nil && !isGone(err) {
		b.logFailure("delete", ownerID, ref, err)
	}
}

func (b *GoogleBridge) logFailure(action, ownerID, subject string, err error) {
	b.logger.Warn("calendar_sync_failed",
		zap.String("action", action),
		zap.String("owner_id", logger.SanitizeID(ownerID)),
		zap.String("subject", logger.SanitizeID(subject)),
		zap.String("error", logger.SanitizeError(err)),
	)
}

// NoopBridge is used when no calendar integration is configured
type NoopBridge struct{}

func (NoopBridge) SyncTaskEvent(context.Context, string, string, models.Task) (string, bool) {
	return "", false
}

func (NoopBridge) DeleteTaskEvent(context.Context, string, string) {}
