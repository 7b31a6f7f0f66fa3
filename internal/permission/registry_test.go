package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryIsValid(t *testing.T) {
	require.NoError(t, Validate())
	assert.NotEmpty(t, All())
}

func TestParse(t *testing.T) {
	n, err := Parse(" order.write ")
	require.NoError(t, err)
	assert.Equal(t, OrderWrite, n)
	assert.Equal(t, "order", n.Resource())
	assert.Equal(t, "write", n.Action())

	_, err = Parse("order.wirte")
	assert.Error(t, err)
}

func TestKnown(t *testing.T) {
	assert.True(t, Known(CorrectionApprove))
	assert.False(t, Known(Name("orders.write")))
}

func TestDefaultGroups(t *testing.T) {
	groups := DefaultGroups()
	byName := map[string]Group{}
	for _, g := range groups {
		byName[g.Name] = g
		for _, p := range g.Permissions {
			assert.True(t, Known(p), "%s lists unknown permission %s", g.Name, p)
		}
	}

	require.Contains(t, byName, GroupAdmin)
	assert.Len(t, byName[GroupAdmin].Permissions, len(All()))

	for _, p := range byName[GroupReadAll].Permissions {
		assert.Equal(t, "read", p.Action())
	}
	assert.NotContains(t, byName[GroupManager].Permissions, RoleDelete)
	assert.Contains(t, byName[GroupManager].Permissions, CorrectionApprove)
	assert.Contains(t, byName[GroupRestaurantOperation].Permissions, PaymentWrite)
}

func TestSorted(t *testing.T) {
	in := []Name{UserRead, AuditRead, OrderWrite}
	assert.Equal(t, []Name{AuditRead, OrderWrite, UserRead}, Sorted(in))
	assert.Equal(t, UserRead, in[0])
}
