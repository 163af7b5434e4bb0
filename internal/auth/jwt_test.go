package auth_test

import (
	"context"
	"testing"
	"time"

	"agency_backend/internal/auth"
	"agency_backend/internal/repositories"
	"agency_backend/internal/testutil"
	"agency_backend/pkg/apperrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func TestParseToken(t *testing.T) {
	token, err := auth.GenerateToken("user-1", secret, "agency", time.Hour)
	require.NoError(t, err)

	claims, err := auth.ParseToken(token, secret, "agency")
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)

	_, err = auth.ParseToken(token, "other-secret", "agency")
	assert.Error(t, err)

	_, err = auth.ParseToken(token, secret, "someone-else")
	assert.Error(t, err)

	expired, err := auth.GenerateToken("user-1", secret, "agency", -time.Minute)
	require.NoError(t, err)
	_, err = auth.ParseToken(expired, secret, "agency")
	assert.Error(t, err)
}

func TestJWTProvider_Authenticate(t *testing.T) {
	db := testutil.NewTestDB(t)
	provider := auth.NewJWTProvider(secret, "agency", repositories.NewUserRepository())
	ctx := context.Background()

	active := testutil.CreateUser(t, db, "Alice", "Smith")
	inactive := testutil.CreateUser(t, db, "Bob", "Jones", testutil.Inactive())

	token, err := auth.GenerateToken(active.ID, secret, "agency", time.Hour)
	require.NoError(t, err)
	userID, err := provider.Authenticate(ctx, db, token)
	require.NoError(t, err)
	assert.Equal(t, active.ID, userID)

	token, err = auth.GenerateToken(inactive.ID, secret, "agency", time.Hour)
	require.NoError(t, err)
	_, err = provider.Authenticate(ctx, db, token)
	assert.ErrorIs(t, err, apperrors.ErrUserInactive)

	token, err = auth.GenerateToken("00000000-0000-0000-0000-000000000000", secret, "agency", time.Hour)
	require.NoError(t, err)
	_, err = provider.Authenticate(ctx, db, token)
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)

	_, err = provider.Authenticate(ctx, db, "garbage")
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)
}
