package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBoosterActive(t *testing.T) {
	now := time.Now()
	b := Booster{ActivatedAt: now, ExpiresAt: now.Add(time.Hour), Multiplier: 2.0}

	assert.True(t, b.Active(now))
	assert.True(t, b.Active(now.Add(59*time.Minute)))
	assert.False(t, b.Active(now.Add(time.Hour)), "expiry is exclusive")
	assert.False(t, b.Active(now.Add(-time.Second)), "not active before activation")
}

func TestActiveMultiplierStacks(t *testing.T) {
	now := time.Now()
	m := &MemberRecord{
		Boosters: []Booster{
			{ActivatedAt: now, ExpiresAt: now.Add(time.Hour), Multiplier: 2.0},
			{ActivatedAt: now, ExpiresAt: now.Add(time.Hour), Multiplier: 1.5},
			{ActivatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour), Multiplier: 10},
		},
	}

	assert.InDelta(t, 3.0, m.ActiveMultiplier(now), 1e-9, "active boosters multiply, expired ones are inert")
	assert.Equal(t, 1.0, (&MemberRecord{}).ActiveMultiplier(now))
}

func TestPruneBoosters(t *testing.T) {
	now := time.Now()
	m := &MemberRecord{
		Boosters: []Booster{
			{ActivatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)},
			{ActivatedAt: now, ExpiresAt: now.Add(time.Hour)},
		},
	}

	m.PruneBoosters(now)
	assert.Len(t, m.Boosters, 1)
	assert.True(t, m.Boosters[0].Active(now))
}

func TestSetBioTruncates(t *testing.T) {
	m := &MemberRecord{}

	m.SetBio("short")
	assert.Equal(t, "short", m.Bio)

	m.SetBio(strings.Repeat("a", BioMaxLen+50))
	assert.Len(t, m.Bio, BioMaxLen)

	// Truncation counts runes, not bytes.
	m.SetBio(strings.Repeat("ü", BioMaxLen+50))
	assert.Equal(t, BioMaxLen, len([]rune(m.Bio)))
}

func TestHasActivity(t *testing.T) {
	assert.False(t, (&MemberRecord{}).HasActivity())
	assert.True(t, (&MemberRecord{MessagesSent: 1}).HasActivity())
	assert.True(t, (&MemberRecord{XP: 5}).HasActivity())
	assert.True(t, (&MemberRecord{ReactionsReceived: 1}).HasActivity())
}

func TestActivityKindCounters(t *testing.T) {
	m := &MemberRecord{}

	kinds := []ActivityKind{
		ActivityMessage, ActivityMessage,
		ActivityVoiceMinute,
		ActivityReactionGiven,
		ActivityReactionReceived,
		ActivityDailyClaim,
		ActivityEventReward,
	}
	for _, k := range kinds {
		k.Count(m)
	}

	assert.Equal(t, 2, m.MessagesSent)
	assert.Equal(t, 1, m.VoiceMinutes)
	assert.Equal(t, 1, m.ReactionsGiven)
	assert.Equal(t, 1, m.ReactionsReceived)

	assert.Equal(t, 2, ActivityMessage.Counter(m))
	assert.Equal(t, 0, ActivityDailyClaim.Counter(m), "claims are tracked through the claim date")
}

func TestActivityKindBaseRewards(t *testing.T) {
	assert.Equal(t, 3, ActivityMessage.BaseReward())
	assert.Equal(t, 2, ActivityVoiceMinute.BaseReward())
	assert.Equal(t, 1, ActivityReactionGiven.BaseReward())
	assert.Equal(t, 1, ActivityReactionReceived.BaseReward())
	assert.Equal(t, 0, ActivityDailyClaim.BaseReward(), "claims carry their own reward calculation")
	assert.Equal(t, 0, ActivityEventReward.BaseReward())
}
