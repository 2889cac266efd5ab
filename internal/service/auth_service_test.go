package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/stemsi/cbt-backend/internal/config"
	"github.com/stemsi/cbt-backend/internal/model"
)

func newTestAuth() *AuthService {
	return NewAuthService(&config.Config{
		JWTSecret:  "test-secret",
		JWTExpiry:  time.Hour,
		BcryptCost: bcrypt.MinCost,
	}, nil, nil)
}

func TestAuthService_TokenRoundTrip(t *testing.T) {
	auth := newTestAuth()
	class := int64(4)

	token, err := auth.GenerateToken(context.Background(), &model.User{ID: 9, Role: model.RoleStudent, StudentClassID: &class})
	require.NoError(t, err)

	claims, err := auth.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, int64(9), claims.UserID)
	assert.Equal(t, model.RoleStudent, claims.Role)
	require.NotNil(t, claims.StudentClassID)
	assert.Equal(t, int64(4), *claims.StudentClassID)
	assert.Equal(t, Actor{UserID: 9, Role: model.RoleStudent, StudentClassID: claims.StudentClassID}, claims.Actor())
}

func TestAuthService_RejectsForeignSignature(t *testing.T) {
	other := NewAuthService(&config.Config{JWTSecret: "other", JWTExpiry: time.Hour}, nil, nil)
	token, err := other.GenerateToken(context.Background(), &model.User{ID: 1, Role: model.RoleAdmin})
	require.NoError(t, err)

	_, err = newTestAuth().ValidateToken(token)
	assert.Error(t, err)
}

func TestAuthService_Passwords(t *testing.T) {
	auth := newTestAuth()
	hash, err := auth.HashPassword("s3cret")
	require.NoError(t, err)

	assert.NoError(t, auth.CheckPassword(hash, "s3cret"))
	assert.ErrorIs(t, auth.CheckPassword(hash, "wrong"), ErrInvalidCredentials)
}

func TestAuthService_SessionCheckDisabled(t *testing.T) {
	assert.NoError(t, newTestAuth().ValidateSession(context.Background(), 1, "anything"))
}
