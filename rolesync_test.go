package main

import (
	"errors"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"garrison-bot/rank"
	"garrison-bot/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRoles is an in-memory RoleAPI recording every mutation.
type fakeRoles struct {
	roles map[string]string   // role name -> role ID
	held  map[string][]string // user ID -> held role IDs

	adds    int
	removes int
	failAdd bool
}

func newFakeRoles() *fakeRoles {
	roles := make(map[string]string)
	for _, name := range rank.RoleNames() {
		roles[name] = "id-" + name
	}
	roles["Moderator"] = "id-Moderator"

	return &fakeRoles{roles: roles, held: make(map[string][]string)}
}

func (f *fakeRoles) RoleMap() (map[string]string, error) { return f.roles, nil }

func (f *fakeRoles) MemberRoleIDs(userID string) ([]string, error) {
	return slices.Clone(f.held[userID]), nil
}

func (f *fakeRoles) RolesRemove(userID string, roleIDs []string) error {
	f.removes += len(roleIDs)
	f.held[userID] = slices.DeleteFunc(f.held[userID], func(id string) bool {
		return slices.Contains(roleIDs, id)
	})
	return nil
}

func (f *fakeRoles) RoleAdd(userID string, roleID string) error {
	if f.failAdd {
		return errors.New("missing permission")
	}
	f.adds++
	f.held[userID] = append(f.held[userID], roleID)
	return nil
}

func TestSyncPromotion(t *testing.T) {
	api := newFakeRoles()
	api.held["u1"] = []string{"id-Private", "id-Moderator"}
	rs := NewRoleSyncer(api)

	assert.True(t, rs.Sync("u1", "Corporal"))

	held := api.held["u1"]
	assert.Contains(t, held, "id-Corporal")
	assert.NotContains(t, held, "id-Private")
	assert.Contains(t, held, "id-Moderator", "unrelated roles are untouched")
}

func TestSyncIdempotent(t *testing.T) {
	api := newFakeRoles()
	rs := NewRoleSyncer(api)

	require.True(t, rs.Sync("u1", "Sergeant"))
	adds, removes := api.adds, api.removes

	assert.True(t, rs.Sync("u1", "Sergeant"))
	assert.Equal(t, adds, api.adds, "second sync performs no role changes")
	assert.Equal(t, removes, api.removes)
}

func TestSyncEntryTierClearsRankRoles(t *testing.T) {
	api := newFakeRoles()
	api.held["u1"] = []string{"id-Captain", "id-Moderator"}
	rs := NewRoleSyncer(api)

	assert.True(t, rs.Sync("u1", "Recruit"))
	assert.NotContains(t, api.held["u1"], "id-Captain")
	assert.Contains(t, api.held["u1"], "id-Moderator")
	assert.Equal(t, 0, api.adds, "entry tier binds no role")
}

func TestSyncUnknownRank(t *testing.T) {
	rs := NewRoleSyncer(newFakeRoles())
	assert.False(t, rs.Sync("u1", "Field Marshal"))
}

func TestSyncMissingGuildRole(t *testing.T) {
	api := newFakeRoles()
	delete(api.roles, "Major")
	api.held["u1"] = []string{"id-Captain"}
	rs := NewRoleSyncer(api)

	assert.False(t, rs.Sync("u1", "Major"))
	assert.Contains(t, api.held["u1"], "id-Captain", "nothing changed on failure")
}

func TestSyncAddFailure(t *testing.T) {
	api := newFakeRoles()
	api.failAdd = true
	rs := NewRoleSyncer(api)

	assert.False(t, rs.Sync("u1", "Private"))
}

func TestSyncAll(t *testing.T) {
	api := newFakeRoles()
	rs := NewRoleSyncer(api)

	st := store.New(filepath.Join(t.TempDir(), "members.json"), nil, time.Hour)
	require.NoError(t, st.SetXP("g", "promoted", 150))
	require.NoError(t, st.SetXP("g", "fresh", 0))

	failed := rs.SyncAll(st, "g")
	assert.Equal(t, 0, failed)
	assert.Contains(t, api.held["promoted"], "id-Private")
	assert.Empty(t, api.held["fresh"])
}
