package store

import (
	"errors"
	"time"

	"garrison-bot/models"

	"github.com/charmbracelet/log"
)

// Daily claim tuning. The reward grows with the streak up to a cap, and
// every seventh consecutive day additionally grants a temporary XP
// booster.
const (
	DailyBaseReward    = 25
	DailyStreakBonus   = 5
	DailyBonusCap      = 100
	StreakMilestoneDay = 7

	MilestoneBoosterMult = 2.0
	MilestoneBoosterDur  = time.Hour
)

// ErrAlreadyClaimed is returned when a member claims twice within the
// same UTC calendar day.
var ErrAlreadyClaimed = errors.New("store: daily reward already claimed today")

// ClaimResult reports a successful daily claim.
type ClaimResult struct {
	Reward  int
	Streak  int
	Gain    Gain
	Booster bool // streak milestone granted a booster
}

// ClaimDaily processes a daily reward claim for the member. At most one
// claim succeeds per UTC calendar day; claiming on consecutive days
// extends the streak, any gap over one day resets it to 1. The reward
// XP is granted through the regular XP path, so rank changes surface in
// the result.
//
// UTC calendar days make "once per day" an unambiguous predicate that
// does not drift with the claimer's local timezone.
func (s *Store) ClaimDaily(guildID string, userID string, now time.Time) (ClaimResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.getOrCreateLocked(guildID, userID, now)
	today := utcDate(now)

	if m.LastDailyClaim.Equal(today) {
		return ClaimResult{}, ErrAlreadyClaimed
	}

	if !m.LastDailyClaim.IsZero() && daysBetween(m.LastDailyClaim, today) == 1 {
		m.DailyStreak++
	} else {
		m.DailyStreak = 1
	}
	m.LastDailyClaim = today

	res := ClaimResult{
		Reward: dailyReward(m.DailyStreak),
		Streak: m.DailyStreak,
	}

	if m.DailyStreak%StreakMilestoneDay == 0 {
		m.Boosters = append(m.Boosters, models.Booster{
			Kind:        "streak_milestone",
			ActivatedAt: now,
			ExpiresAt:   now.Add(MilestoneBoosterDur),
			Multiplier:  MilestoneBoosterMult,
		})
		res.Booster = true
		log.Info("Streak milestone booster granted", "gID", guildID, "uID", userID, "streak", m.DailyStreak)
	}

	res.Gain = s.addXPLocked(m, models.ActivityDailyClaim, res.Reward, now)

	log.Info("Daily reward claimed", "gID", guildID, "uID", userID, "streak", res.Streak, "reward", res.Reward)
	return res, nil
}

// dailyReward computes the XP for a claim at the given streak length.
func dailyReward(streak int) int {
	bonus := DailyStreakBonus * (streak - 1)
	if bonus > DailyBonusCap {
		bonus = DailyBonusCap
	}

	return DailyBaseReward + bonus
}
