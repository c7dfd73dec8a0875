package session

import (
	"github.com/charmbracelet/log"
)

// Role surface consumed by rank synchronization. All operations are
// fallible; permission errors come back as plain errors for the caller
// to log and absorb.

// RoleMap returns all guild roles as a name-to-ID mapping.
func (s *Session) RoleMap() (map[string]string, error) {
	roles, err := s.dcs.GuildRoles(s.ServerID)
	if err != nil {
		log.Warn("Failed to list roles", "err", err)
		return nil, err
	}

	m := make(map[string]string, len(roles))
	for _, r := range roles {
		m[r.Name] = r.ID
	}

	return m, nil
}

// MemberRoleIDs returns the IDs of all roles the member currently
// holds.
func (s *Session) MemberRoleIDs(userID string) ([]string, error) {
	member, err := s.dcs.GuildMember(s.ServerID, userID)
	if err != nil {
		log.Warn("Failed to get member roles", "uID", userID, "err", err)
		return nil, err
	}

	return member.Roles, nil
}

// RoleAdd grants one role to the member.
func (s *Session) RoleAdd(userID string, roleID string) error {
	if err := s.dcs.GuildMemberRoleAdd(s.ServerID, userID, roleID); err != nil {
		log.Warn("Failed to add role", "uID", userID, "role", roleID, "err", err)
		return err
	}

	return nil
}

// RolesRemove removes each of the given roles from the member. All
// removals are attempted; the first error is returned.
func (s *Session) RolesRemove(userID string, roleIDs []string) error {
	var firstErr error
	for _, rID := range roleIDs {
		if err := s.dcs.GuildMemberRoleRemove(s.ServerID, userID, rID); err != nil {
			log.Warn("Failed to remove role", "uID", userID, "role", rID, "err", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}
