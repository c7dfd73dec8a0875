// Package rank defines the static rank ladder and the pure progression
// math built on top of it. Nothing here touches storage or Discord; the
// store and handlers feed it numbers and apply the results.
package rank

import (
	"time"

	"garrison-bot/models"
)

// Tier is one rung of the rank ladder.
type Tier struct {
	Name  string
	MinXP int
	Icon  string

	// Discord role bound to the tier. Empty for the entry tier, which
	// carries no role.
	RoleName string

	// XP gains are scaled by the member's current tier. Never below 1.0.
	Multiplier float64
}

// Ladder is the rank table, ordered by strictly increasing MinXP. The
// first tier must start at 0 so every XP value resolves to a tier.
var Ladder = []Tier{
	{Name: "Recruit", MinXP: 0, Icon: "🪖", RoleName: "", Multiplier: 1.0},
	{Name: "Private", MinXP: 100, Icon: "🎖️", RoleName: "Private", Multiplier: 1.0},
	{Name: "Corporal", MinXP: 300, Icon: "🥉", RoleName: "Corporal", Multiplier: 1.05},
	{Name: "Sergeant", MinXP: 700, Icon: "🥈", RoleName: "Sergeant", Multiplier: 1.1},
	{Name: "Lieutenant", MinXP: 1500, Icon: "🥇", RoleName: "Lieutenant", Multiplier: 1.15},
	{Name: "Captain", MinXP: 3000, Icon: "⚔️", RoleName: "Captain", Multiplier: 1.2},
	{Name: "Major", MinXP: 6000, Icon: "🛡️", RoleName: "Major", Multiplier: 1.25},
	{Name: "Colonel", MinXP: 12000, Icon: "🏅", RoleName: "Colonel", Multiplier: 1.3},
	{Name: "General", MinXP: 25000, Icon: "⭐", RoleName: "General", Multiplier: 1.5},
}

// ForXP returns the highest tier whose threshold is at or below xp.
// Total for any xp, including negatives, since the ladder starts at 0.
func ForXP(xp int) Tier {
	t := Ladder[0]
	for _, tier := range Ladder[1:] {
		if xp < tier.MinXP {
			break
		}
		t = tier
	}

	return t
}

// ByName returns the tier with the given name.
func ByName(name string) (Tier, bool) {
	for _, t := range Ladder {
		if t.Name == name {
			return t, true
		}
	}

	return Tier{}, false
}

// Next returns the tier after the one xp resolves to. ok is false at
// the top of the ladder.
func Next(xp int) (next Tier, ok bool) {
	for _, t := range Ladder {
		if t.MinXP > xp {
			return t, true
		}
	}

	return Tier{}, false
}

// Progress returns how far into the current tier xp sits and the width
// of the tier. span is 0 at the top tier, where there is nothing left
// to progress toward.
func Progress(xp int) (into int, span int) {
	cur := ForXP(xp)
	next, ok := Next(xp)
	if !ok {
		return xp - cur.MinXP, 0
	}

	return xp - cur.MinXP, next.MinXP - cur.MinXP
}

// RoleNames returns every role bound to a tier, in ladder order. The
// entry tier has no role and contributes nothing.
func RoleNames() []string {
	names := make([]string, 0, len(Ladder))
	for _, t := range Ladder {
		if t.RoleName != "" {
			names = append(names, t.RoleName)
		}
	}

	return names
}

// ApplyGain scales a base XP amount by the tier multiplier and any
// boosters active at now, rounding down. Never negative.
func ApplyGain(base int, t Tier, m *models.MemberRecord, now time.Time) int {
	if base <= 0 {
		return 0
	}

	mult := t.Multiplier
	if m != nil {
		mult *= m.ActiveMultiplier(now)
	}

	gain := int(float64(base) * mult)
	if gain < 0 {
		return 0
	}

	return gain
}
