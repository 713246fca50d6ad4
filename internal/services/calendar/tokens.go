package calendar

import (
	"context"
	"time"

	"github.com/benvon/nextstep/internal/apperr"
	"github.com/benvon/nextstep/internal/database"
	"github.com/benvon/nextstep/internal/logger"
	"github.com/benvon/nextstep/internal/models"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// RefreshWindow is how close to expiry a stored access token is refreshed
const RefreshWindow = 5 * time.Minute

// TokenSource yields a usable calendar access token for an owner.
// ok is false when the owner has not connected a calendar or the token cannot be refreshed.
type TokenSource interface {
	AccessToken(ctx context.Context, ownerID string) (token string, ok bool)
}

// OAuthTokenSource serves stored tokens and refreshes them through x/oauth2
type OAuthTokenSource struct {
	config *oauth2.Config
	store  database.CalendarTokenStore
	logger *zap.Logger
	now    func() time.Time
}

// NewOAuthTokenSource creates a token source backed by store
func NewOAuthTokenSource(config *oauth2.Config, store database.CalendarTokenStore, log *zap.Logger) *OAuthTokenSource {
	if log == nil {
		log = zap.NewNop()
	}
	return &OAuthTokenSource{config: config, store: store, logger: log, now: time.Now}
}

// AccessToken returns a token valid for at least RefreshWindow, refreshing and persisting it when needed.
// Without a refresh token the stored access token is returned as is.
func (s *OAuthTokenSource) AccessToken(ctx context.Context, ownerID string) (string, bool) {
	stored, err := s.store.GetToken(ctx, ownerID)
	if err != nil {
		if !apperr.IsNotFound(err) {
			s.logger.Warn("calendar_token_lookup_failed",
				zap.String("owner_id", logger.SanitizeID(ownerID)),
				zap.Error(err),
			)
		}
		return "", false
	}
	if stored.AccessToken == "" {
		return "", false
	}

	if stored.ExpiresAt.After(s.now().Add(RefreshWindow)) {
		return stored.AccessToken, true
	}
	if stored.RefreshToken == "" {
		return stored.AccessToken, true
	}

	// An empty access token forces x/oauth2 to use the refresh grant.
	refreshed, err := s.config.TokenSource(ctx, &oauth2.Token{RefreshToken: stored.RefreshToken}).Token()
	if err != nil {
		s.logger.Warn("calendar_token_refresh_failed",
			zap.String("owner_id", logger.SanitizeID(ownerID)),
			zap.String("error", logger.SanitizeError(err)),
		)
		return "", false
	}

	next := tokenFromOAuth(ownerID, refreshed)
	if err := s.store.SaveToken(ctx, next); err != nil {
		s.logger.Warn("calendar_token_save_failed",
			zap.String("owner_id", logger.SanitizeID(ownerID)),
			zap.Error(err),
		)
	}
	return refreshed.AccessToken, true
}

func tokenFromOAuth(ownerID string, tok *oauth2.Token) *models.CalendarToken {
	return &models.CalendarToken{
		OwnerID:      ownerID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		ExpiresAt:    tok.Expiry,
	}
}
