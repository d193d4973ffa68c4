package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/ticket-sla/internal/domain"
	"github.com/spec-kit/ticket-sla/internal/repository/memstore"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", "ticket-sla", 5*time.Minute)
	role := domain.StaffRoleManager
	token, exp, err := tm.GenerateToken("s1", domain.SubjectTypeStaff, &role)
	require.NoError(t, err)
	assert.False(t, exp.IsZero())

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "s1", claims.SubjectID)
	require.NotNil(t, claims.Role)
	assert.Equal(t, domain.StaffRoleManager, *claims.Role)

	_, err = NewTokenManager("other", "ticket-sla", 5*time.Minute).ParseToken(token)
	assert.Error(t, err)
	_, err = NewTokenManager("secret", "someone-else", 5*time.Minute).ParseToken(token)
	assert.Error(t, err)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter2hunter2", bcrypt.MinCost)
	require.NoError(t, err)
	assert.NoError(t, ComparePassword(hash, "hunter2hunter2"))
	assert.Error(t, ComparePassword(hash, "wrong"))

	_, err = HashPassword("short", bcrypt.MinCost)
	assert.ErrorIs(t, err, ErrPasswordTooShort)
}

func TestMiddleware_RoleGate(t *testing.T) {
	store := memstore.New()
	ctx := context.Background()
	require.NoError(t, store.Staff().Create(ctx, &domain.StaffMember{ID: "agent", Role: domain.StaffRoleAgent, Active: true}))
	require.NoError(t, store.Staff().Create(ctx, &domain.StaffMember{ID: "admin", Role: domain.StaffRoleAdmin, Active: true}))

	tm := NewTokenManager("secret", "ticket-sla", 5*time.Minute)
	mw := NewAuthMiddleware(tm, store.Staff())

	app := fiber.New()
	app.Get("/admin", mw.Handle, RequireStaffRole(domain.StaffRoleAdmin), func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusNoContent)
	})

	call := func(subject string) int {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		if subject != "" {
			token, _, err := tm.GenerateToken(subject, domain.SubjectTypeStaff, nil)
			require.NoError(t, err)
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusNoContent, call("admin"))
	assert.Equal(t, http.StatusForbidden, call("agent"))
	assert.NotEqual(t, http.StatusNoContent, call(""))
	assert.NotEqual(t, http.StatusNoContent, call("ghost"))
}
