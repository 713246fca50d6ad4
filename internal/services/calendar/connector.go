package calendar

import (
	"context"
	"fmt"

	"github.com/benvon/nextstep/internal/apperr"
	"github.com/benvon/nextstep/internal/database"
	"golang.org/x/oauth2"
)

// Google OAuth endpoints
const (
	GoogleAuthURL  = "https://accounts.google.com/o/oauth2/v2/auth"
	GoogleTokenURL = "https://oauth2.googleapis.com/token"
	EventsScope    = "https://www.googleapis.com/auth/calendar.events"
)

// NewOAuthConfig builds the OAuth2 client configuration for Google Calendar
func NewOAuthConfig(clientID, clientSecret, redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       []string{EventsScope},
		Endpoint: oauth2.Endpoint{
			AuthURL:  GoogleAuthURL,
			TokenURL: GoogleTokenURL,
		},
	}
}

// Connector links an owner's account to their calendar
type Connector struct {
	config *oauth2.Config
	store  database.CalendarTokenStore
}

// NewConnector creates a new calendar connector
func NewConnector(config *oauth2.Config, store database.CalendarTokenStore) *Connector {
	return &Connector{config: config, store: store}
}

// AuthCodeURL returns the consent URL. Offline access is requested so a refresh token is issued.
func (c *Connector) AuthCodeURL(state string) string {
	return c.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for tokens and stores them for ownerID
func (c *Connector) Exchange(ctx context.Context, ownerID, code string) error {
	if code == "" {
		return apperr.Validation("calendar.Exchange", "authorization code is required")
	}
	tok, err := c.config.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return c.store.SaveToken(ctx, tokenFromOAuth(ownerID, tok))
}

// Disconnect forgets the owner's calendar credentials
func (c *Connector) Disconnect(ctx context.Context, ownerID string) error {
	return c.store.DeleteToken(ctx, ownerID)
}
