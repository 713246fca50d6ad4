package middleware

import (
	"context"

	"github.com/benvon/nextstep/internal/models"
	"github.com/benvon/nextstep/internal/request"
)

// SetUserInContext places user in ctx as Auth would. Exported for handler tests.
func SetUserInContext(ctx context.Context, user *models.User) context.Context {
	return request.WithUser(ctx, user)
}
