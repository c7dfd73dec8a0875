package store

import (
	"errors"
	"time"

	"garrison-bot/models"

	"github.com/charmbracelet/log"
)

// Administrative operations. These bypass the normal activity and claim
// paths deliberately: they set fields directly and make no state-machine
// guarantees when combined with each other. Validation still applies
// and XP can never end up below zero.

var ErrNegativeValue = errors.New("store: value must not be negative")

// SetXP sets a member's XP directly. Rank heals from the new value.
func (s *Store) SetXP(guildID string, userID string, xp int) error {
	if xp < 0 {
		return ErrNegativeValue
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.getOrCreateLocked(guildID, userID, time.Now())
	m.XP = xp
	heal(m)
	s.dirty = true

	log.Info("XP set", "gID", guildID, "uID", userID, "xp", xp, "rank", m.Rank)
	return nil
}

// AdjustXP adds delta to a member's XP, clamping the result at zero.
// Returns the new XP value.
func (s *Store) AdjustXP(guildID string, userID string, delta int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.getOrCreateLocked(guildID, userID, time.Now())
	m.XP += delta
	if m.XP < 0 {
		m.XP = 0
	}
	heal(m)
	s.dirty = true

	log.Info("XP adjusted", "gID", guildID, "uID", userID, "delta", delta, "xp", m.XP)
	return m.XP
}

// SetStreak sets a member's daily streak directly.
func (s *Store) SetStreak(guildID string, userID string, streak int) error {
	if streak < 0 {
		return ErrNegativeValue
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.getOrCreateLocked(guildID, userID, time.Now())
	m.DailyStreak = streak
	s.dirty = true

	log.Info("Streak set", "gID", guildID, "uID", userID, "streak", streak)
	return nil
}

// RewindDailyClaim moves the member's last claim date to yesterday,
// preserving the streak, so the next claim succeeds immediately and
// counts as consecutive. A direct field set outside the claim state
// machine; repeated rewinds just re-set the date.
func (s *Store) RewindDailyClaim(guildID string, userID string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.getOrCreateLocked(guildID, userID, now)
	m.LastDailyClaim = utcDate(now).AddDate(0, 0, -1)
	s.dirty = true

	log.Info("Daily claim rewound", "gID", guildID, "uID", userID, "date", m.LastDailyClaim)
}

// SetVerified flags a member as verified.
func (s *Store) SetVerified(guildID string, userID string, verified bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.getOrCreateLocked(guildID, userID, time.Now())
	m.Verified = verified
	s.dirty = true
}

// SetBio sets a member's bio, truncated to the length cap.
func (s *Store) SetBio(guildID string, userID string, bio string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.getOrCreateLocked(guildID, userID, time.Now())
	m.SetBio(bio)
	s.dirty = true
}

// GrantBooster attaches a temporary XP booster to the member.
func (s *Store) GrantBooster(guildID string, userID string, kind string, mult float64, dur time.Duration, now time.Time) error {
	if mult <= 0 || dur <= 0 {
		return ErrNegativeValue
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.getOrCreateLocked(guildID, userID, now)
	m.Boosters = append(m.Boosters, models.Booster{
		Kind:        kind,
		ActivatedAt: now,
		ExpiresAt:   now.Add(dur),
		Multiplier:  mult,
	})
	s.dirty = true

	log.Info("Booster granted", "gID", guildID, "uID", userID, "kind", kind, "mult", mult, "dur", dur)
	return nil
}

// PruneBoosters drops expired boosters across all members.
func (s *Store) PruneBoosters(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, members := range s.records {
		for _, m := range members {
			if len(m.Boosters) > 0 {
				m.PruneBoosters(now)
			}
		}
	}
}

// Purge drops records in the guild for members the keep predicate
// rejects, typically members no longer present. Returns the number of
// dropped records.
func (s *Store) Purge(guildID string, keep func(userID string) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	members := s.records[guildID]
	dropped := 0
	for uID := range members {
		if !keep(uID) {
			delete(members, uID)
			dropped++
		}
	}

	if dropped > 0 {
		s.dirty = true
		log.Info("Members purged", "gID", guildID, "dropped", dropped)
	}

	return dropped
}
