package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	domain "github.com/firoze-hossain/nexacommerce-ui-sub001/internal/domain"
)

func TestIdentityRoles(t *testing.T) {
	id := &Identity{UID: "u-1", Roles: []string{" Admin "}}
	assert.True(t, id.HasRole("admin"))
	assert.True(t, id.IsStaff())
	assert.False(t, id.HasRole(""))

	var missing *Identity
	assert.False(t, missing.HasRole(RoleCustomer))
	assert.False(t, missing.IsStaff())
}

func TestIdentityCartOwner(t *testing.T) {
	id := &Identity{UID: "u-1"}
	assert.Equal(t, domain.CustomerOwner("u-1"), id.CartOwner())
}

func TestIdentityFromContextIgnoresBlankUID(t *testing.T) {
	ctx := WithIdentity(context.Background(), &Identity{UID: "  "})
	_, ok := IdentityFromContext(ctx)
	assert.False(t, ok)

	ctx = WithIdentity(context.Background(), &Identity{UID: "u-2"})
	got, ok := IdentityFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "u-2", got.UID)
}

func TestClaimRolesShapes(t *testing.T) {
	assert.Equal(t, []string{"admin"}, claimRoles(" Admin "))
	assert.Equal(t, []string{"admin", "staff"}, claimRoles(map[string]any{"staff": true, "admin": true, "customer": false}))
	assert.Equal(t, []string{"staff"}, claimRoles([]string{"staff", "STAFF", ""}))
	assert.Nil(t, claimRoles(42))
}
