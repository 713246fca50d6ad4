package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/nextstep/internal/apperr"
	"github.com/benvon/nextstep/internal/models"
)

// CalendarTokenRepository handles calendar_tokens database operations
type CalendarTokenRepository struct {
	db *DB
}

// NewCalendarTokenRepository creates a new calendar token repository
func NewCalendarTokenRepository(db *DB) *CalendarTokenRepository {
	return &CalendarTokenRepository{db: db}
}

// GetToken returns the stored token for an owner
func (r *CalendarTokenRepository) GetToken(ctx context.Context, ownerID string) (*models.CalendarToken, error) {
	const op = "database.GetCalendarToken"
	query := `
		SELECT owner_id, access_token, refresh_token, token_type, expires_at, updated_at
		FROM calendar_tokens
		WHERE owner_id = $1
	`

	tok := &models.CalendarToken{}
	err := r.db.QueryRowContext(ctx, query, ownerID).Scan(
		&tok.OwnerID,
		&tok.AccessToken,
		&tok.RefreshToken,
		&tok.TokenType,
		&tok.ExpiresAt,
		&tok.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound(op, "no calendar token for owner")
	}
	if err != nil {
		return nil, apperr.Persistence(op, fmt.Errorf("failed to get calendar token: %w", err))
	}
	return tok, nil
}

// SaveToken upserts the owner's token. An empty refresh token keeps the stored one,
// since refresh responses usually omit it.
func (r *CalendarTokenRepository) SaveToken(ctx context.Context, token *models.CalendarToken) error {
	const op = "database.SaveCalendarToken"
	if token == nil || token.OwnerID == "" {
		return apperr.Validation(op, "owner is required")
	}

	query := `
		INSERT INTO calendar_tokens (owner_id, access_token, refresh_token, token_type, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (owner_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = COALESCE(NULLIF(EXCLUDED.refresh_token, ''), calendar_tokens.refresh_token),
			token_type = EXCLUDED.token_type,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at
	`
	tokenType := token.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	if _, err := r.db.ExecContext(ctx, query,
		token.OwnerID,
		token.AccessToken,
		token.RefreshToken,
		tokenType,
		token.ExpiresAt,
		time.Now().UTC(),
	); err != nil {
		return apperr.Persistence(op, fmt.Errorf("failed to save calendar token: %w", err))
	}
	return nil
}

// DeleteToken removes the owner's token, disconnecting the calendar
func (r *CalendarTokenRepository) DeleteToken(ctx context.Context, ownerID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM calendar_tokens WHERE owner_id = $1`, ownerID); err != nil {
		return apperr.Persistence("database.DeleteCalendarToken", fmt.Errorf("failed to delete calendar token: %w", err))
	}
	return nil
}
