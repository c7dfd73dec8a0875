package main

import (
	"slices"

	"garrison-bot/rank"
	"garrison-bot/store"

	"github.com/charmbracelet/log"
)

// RoleAPI is the narrow slice of the Discord role surface the
// synchronizer needs. Satisfied by [session.Session].
type RoleAPI interface {
	RoleMap() (map[string]string, error)
	MemberRoleIDs(userID string) ([]string, error)
	RolesRemove(userID string, roleIDs []string) error
	RoleAdd(userID string, roleID string) error
}

// RoleSyncer reconciles a member's Discord roles with their numeric
// rank. The stored rank is the source of truth; role sync is a
// reconciliation step that can be re-run any time state drifts, and a
// failure here never unwinds the XP change that triggered it.
type RoleSyncer struct {
	api RoleAPI
}

func NewRoleSyncer(api RoleAPI) *RoleSyncer {
	return &RoleSyncer{api}
}

// Sync removes every rank-bound role the member holds except the one
// bound to rankName, then grants that one if missing. The entry tier
// binds no role, so "no rank role at all" is a valid target state.
// Idempotent: a second call with the same target makes no changes.
//
// Failures (missing roles, insufficient permission) are logged and
// reported as false; they never propagate.
func (rs *RoleSyncer) Sync(userID string, rankName string) bool {
	tier, ok := rank.ByName(rankName)
	if !ok {
		log.Warn("Unknown rank", "uID", userID, "rank", rankName)
		return false
	}

	roleMap, err := rs.api.RoleMap()
	if err != nil {
		return false
	}
	held, err := rs.api.MemberRoleIDs(userID)
	if err != nil {
		return false
	}

	targetID := ""
	if tier.RoleName != "" {
		targetID, ok = roleMap[tier.RoleName]
		if !ok {
			log.Warn("Rank role missing from guild", "rank", rankName, "role", tier.RoleName)
			return false
		}
	}

	// Collect every other rank-bound role the member currently holds.
	var remove []string
	for _, name := range rank.RoleNames() {
		rID, ok := roleMap[name]
		if !ok || rID == targetID {
			continue
		}
		if slices.Contains(held, rID) {
			remove = append(remove, rID)
		}
	}

	success := true
	if len(remove) > 0 {
		if err := rs.api.RolesRemove(userID, remove); err != nil {
			success = false
		}
	}

	if targetID != "" && !slices.Contains(held, targetID) {
		if err := rs.api.RoleAdd(userID, targetID); err != nil {
			success = false
		}
	}

	if success {
		log.Info("Roles synced", "uID", userID, "rank", rankName, "removed", len(remove))
	}
	return success
}

// SyncAll re-derives every stored member's role set from their rank.
// The bulk recovery sweep for drift left behind by failed individual
// syncs. Returns how many members failed.
func (rs *RoleSyncer) SyncAll(st *store.Store, guildID string) (failed int) {
	ranks := st.UserRanks(guildID)
	for uID, rankName := range ranks {
		if !rs.Sync(uID, rankName) {
			failed++
		}
	}

	log.Info("Bulk role sync complete", "gID", guildID, "members", len(ranks), "failed", failed)
	return failed
}
