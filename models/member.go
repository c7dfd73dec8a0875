package models

import (
	"time"
	"unicode/utf8"
)

// BioMaxLen is the maximum bio length in runes. Longer bios are
// truncated, not rejected.
const BioMaxLen = 240

// MemberRecord holds the full progression state for one member of one
// guild. Records are owned by the store; mutate them only through it.
//
// Rank and RankIcon are derived from XP and re-derived on every read,
// so external edits to either field heal themselves.
type MemberRecord struct {
	GuildID string `json:"guild_id" db:"guild_id"`
	UserID  string `json:"user_id" db:"user_id"`

	XP       int    `json:"xp" db:"xp"`
	Rank     string `json:"rank" db:"rank"`
	RankIcon string `json:"rank_icon" db:"rank_icon"`

	MessagesSent      int `json:"messages_sent" db:"messages_sent"`
	VoiceMinutes      int `json:"voice_minutes" db:"voice_minutes"`
	ReactionsGiven    int `json:"reactions_given" db:"reactions_given"`
	ReactionsReceived int `json:"reactions_received" db:"reactions_received"`

	LastDailyClaim time.Time `json:"last_daily_claim" db:"last_daily_claim"`
	DailyStreak    int       `json:"daily_streak" db:"daily_streak"`

	CurrentActivityStreak int       `json:"current_activity_streak" db:"current_activity_streak"`
	LongestActivityStreak int       `json:"longest_activity_streak" db:"longest_activity_streak"`
	LastActiveDay         time.Time `json:"last_active_day" db:"last_active_day"`

	LastMessage time.Time `json:"last_message" db:"last_message"`

	Bio      string    `json:"bio" db:"bio"`
	JoinDate time.Time `json:"join_date" db:"join_date"`
	Verified bool      `json:"verified" db:"verified"`

	Boosters []Booster `json:"boosters,omitempty"`
}

// NewMemberRecord creates a zero-valued record for the given member,
// joined now.
func NewMemberRecord(guildID string, userID string, now time.Time) *MemberRecord {
	return &MemberRecord{
		GuildID:  guildID,
		UserID:   userID,
		JoinDate: now.UTC(),
	}
}

// Scan returns pointers to all database-persisted fields, in db-tag
// order. Used for both row scanning and statement parameters.
func (m *MemberRecord) Scan() []any {
	return []any{
		&m.GuildID, &m.UserID,
		&m.XP, &m.Rank, &m.RankIcon,
		&m.MessagesSent, &m.VoiceMinutes, &m.ReactionsGiven, &m.ReactionsReceived,
		&m.LastDailyClaim, &m.DailyStreak,
		&m.CurrentActivityStreak, &m.LongestActivityStreak, &m.LastActiveDay,
		&m.LastMessage,
		&m.Bio, &m.JoinDate, &m.Verified,
	}
}

// ActiveMultiplier returns the product of all booster multipliers still
// active at now. Returns 1.0 when no booster is active.
func (m *MemberRecord) ActiveMultiplier(now time.Time) float64 {
	mult := 1.0
	for _, b := range m.Boosters {
		if b.Active(now) {
			mult *= b.Multiplier
		}
	}

	return mult
}

// PruneBoosters drops expired boosters. Expired boosters are inert
// either way; this is housekeeping, not correctness.
func (m *MemberRecord) PruneBoosters(now time.Time) {
	kept := m.Boosters[:0]
	for _, b := range m.Boosters {
		if b.Active(now) {
			kept = append(kept, b)
		}
	}
	m.Boosters = kept
}

// SetBio sets the member bio, truncating to [BioMaxLen] runes.
func (m *MemberRecord) SetBio(bio string) {
	if utf8.RuneCountInString(bio) > BioMaxLen {
		r := []rune(bio)
		bio = string(r[:BioMaxLen])
	}
	m.Bio = bio
}

// HasActivity reports whether the member has recorded any activity at
// all. Members without activity are excluded from leaderboards.
func (m *MemberRecord) HasActivity() bool {
	return m.XP > 0 || m.MessagesSent > 0 || m.VoiceMinutes > 0 ||
		m.ReactionsGiven > 0 || m.ReactionsReceived > 0
}

// Booster grants a temporary XP multiplier. Boosters become inert once
// expired; no cleanup is required for correctness.
type Booster struct {
	Kind        string    `json:"kind"`
	ActivatedAt time.Time `json:"activated_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Multiplier  float64   `json:"multiplier"`
}

// Active reports whether the booster applies at now.
func (b Booster) Active(now time.Time) bool {
	return now.Before(b.ExpiresAt) && !now.Before(b.ActivatedAt)
}
