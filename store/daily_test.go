package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day1 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestClaimDailyFirst(t *testing.T) {
	s := newTestStore(t, nil)

	res, err := s.ClaimDaily(testGuild, testUser, day1)
	require.NoError(t, err)

	assert.Equal(t, DailyBaseReward, res.Reward)
	assert.Equal(t, 1, res.Streak)
	assert.Equal(t, DailyBaseReward, res.Gain.Amount)
	assert.False(t, res.Booster)

	m, _ := s.View(testGuild, testUser)
	assert.Equal(t, DailyBaseReward, m.XP)
	assert.Equal(t, 1, m.DailyStreak)
}

func TestClaimDailyConsecutive(t *testing.T) {
	s := newTestStore(t, nil)

	_, err := s.ClaimDaily(testGuild, testUser, day1)
	require.NoError(t, err)

	res, err := s.ClaimDaily(testGuild, testUser, day1.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Streak)
	assert.Equal(t, DailyBaseReward+DailyStreakBonus, res.Reward)

	// Late evening to early morning still counts as consecutive days.
	res, err = s.ClaimDaily(testGuild, testUser, time.Date(2026, 3, 3, 0, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Streak)
}

func TestClaimDailyGapResets(t *testing.T) {
	s := newTestStore(t, nil)

	_, err := s.ClaimDaily(testGuild, testUser, day1)
	require.NoError(t, err)
	_, err = s.ClaimDaily(testGuild, testUser, day1.AddDate(0, 0, 1))
	require.NoError(t, err)

	res, err := s.ClaimDaily(testGuild, testUser, day1.AddDate(0, 0, 3))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Streak, "a missed day restarts the streak")
	assert.Equal(t, DailyBaseReward, res.Reward)
}

func TestClaimDailyTwiceRejected(t *testing.T) {
	s := newTestStore(t, nil)

	res, err := s.ClaimDaily(testGuild, testUser, day1)
	require.NoError(t, err)
	require.Equal(t, 1, res.Streak)

	before, _ := s.View(testGuild, testUser)

	_, err = s.ClaimDaily(testGuild, testUser, day1.Add(5*time.Hour))
	assert.ErrorIs(t, err, ErrAlreadyClaimed)

	after, _ := s.View(testGuild, testUser)
	assert.Equal(t, before.XP, after.XP, "a rejected claim grants nothing")
	assert.Equal(t, before.DailyStreak, after.DailyStreak)
}

func TestClaimDailyMilestoneBooster(t *testing.T) {
	s := newTestStore(t, nil)

	require.NoError(t, s.SetStreak(testGuild, testUser, 6))
	s.RewindDailyClaim(testGuild, testUser, day1)

	res, err := s.ClaimDaily(testGuild, testUser, day1)
	require.NoError(t, err)

	assert.Equal(t, 7, res.Streak)
	assert.True(t, res.Booster)

	// The milestone booster activates before the reward is applied, so
	// the claim's own 55 XP lands doubled.
	assert.Equal(t, DailyBaseReward+6*DailyStreakBonus, res.Reward)
	assert.Equal(t, 110, res.Gain.Amount)

	m, _ := s.View(testGuild, testUser)
	require.Len(t, m.Boosters, 1)
	assert.Equal(t, MilestoneBoosterMult, m.Boosters[0].Multiplier)
	assert.True(t, m.Boosters[0].Active(day1.Add(30*time.Minute)))
	assert.False(t, m.Boosters[0].Active(day1.Add(2*time.Hour)))
}

func TestClaimDailyBonusCap(t *testing.T) {
	s := newTestStore(t, nil)

	require.NoError(t, s.SetStreak(testGuild, testUser, 29))
	s.RewindDailyClaim(testGuild, testUser, day1)

	res, err := s.ClaimDaily(testGuild, testUser, day1)
	require.NoError(t, err)
	assert.Equal(t, 30, res.Streak)
	assert.Equal(t, DailyBaseReward+DailyBonusCap, res.Reward)
}

func TestRewindDailyClaim(t *testing.T) {
	s := newTestStore(t, nil)

	_, err := s.ClaimDaily(testGuild, testUser, day1)
	require.NoError(t, err)
	_, err = s.ClaimDaily(testGuild, testUser, day1.Add(time.Hour))
	require.ErrorIs(t, err, ErrAlreadyClaimed)

	s.RewindDailyClaim(testGuild, testUser, day1)

	res, err := s.ClaimDaily(testGuild, testUser, day1.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Streak, "a rewound claim counts as consecutive")
}

func TestDailyReward(t *testing.T) {
	assert.Equal(t, 25, dailyReward(1))
	assert.Equal(t, 30, dailyReward(2))
	assert.Equal(t, 55, dailyReward(7))
	assert.Equal(t, 125, dailyReward(21), "bonus caps at 100")
	assert.Equal(t, 125, dailyReward(1000))
}
