package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabletap/internal/model"
)

func TestStaffTokenRoundTrip(t *testing.T) {
	svc := NewAuthService(nil, "test-secret")

	user := &model.StaffUser{ID: "u1", RestaurantID: "r1", Login: "owner"}
	token, err := svc.IssueStaffToken(user)
	require.NoError(t, err)

	principal, err := svc.ResolveSession(token)
	require.NoError(t, err)
	assert.Equal(t, model.PrincipalStaff, principal.Kind)
	assert.Equal(t, "u1", principal.UserID)
	assert.Equal(t, "r1", principal.RestaurantID)
	assert.Nil(t, principal.TableNumber)
}

func TestGuestTokenRoundTrip(t *testing.T) {
	svc := NewAuthService(nil, "test-secret")

	// Issue the guest claims directly; IssueTableToken additionally checks
	// the restaurant exists, which needs storage.
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"role":          string(model.PrincipalGuest),
		"restaurant_id": "r1",
		"table":         7,
		"exp":           jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	principal, err := svc.ResolveSession(token)
	require.NoError(t, err)
	assert.Equal(t, model.PrincipalGuest, principal.Kind)
	assert.Equal(t, "r1", principal.RestaurantID)
	require.NotNil(t, principal.TableNumber)
	assert.Equal(t, 7, *principal.TableNumber)
}

func TestResolveSession_Rejections(t *testing.T) {
	svc := NewAuthService(nil, "test-secret")
	other := NewAuthService(nil, "other-secret")

	user := &model.StaffUser{ID: "u1", RestaurantID: "r1"}
	forged, err := other.IssueStaffToken(user)
	require.NoError(t, err)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"role":          string(model.PrincipalStaff),
		"user_id":       "u1",
		"restaurant_id": "r1",
		"exp":           jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	noRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"restaurant_id": "r1",
		"exp":           jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"forged":  forged,
		"expired": expired,
		"no role": noRole,
		"garbage": "not.a.jwt",
		"empty":   "",
	} {
		_, err := svc.ResolveSession(token)
		assert.ErrorIs(t, err, ErrInvalidSession, name)
	}
}
