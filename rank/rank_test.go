package rank

import (
	"testing"
	"time"

	"garrison-bot/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestLadderWellFormed(t *testing.T) {
	require.NotEmpty(t, Ladder)
	assert.Equal(t, 0, Ladder[0].MinXP, "entry tier must start at 0")
	assert.Empty(t, Ladder[0].RoleName, "entry tier must not bind a role")

	for i := 1; i < len(Ladder); i++ {
		assert.Greater(t, Ladder[i].MinXP, Ladder[i-1].MinXP, "thresholds must strictly increase")
		assert.GreaterOrEqual(t, Ladder[i].Multiplier, Ladder[i-1].Multiplier)
	}
	for _, tier := range Ladder {
		assert.GreaterOrEqual(t, tier.Multiplier, 1.0)
	}
}

func TestForXP(t *testing.T) {
	tests := []struct {
		name string
		xp   int
		want string
	}{
		{"zero resolves to entry tier", 0, "Recruit"},
		{"below first threshold", 99, "Recruit"},
		{"exactly at threshold", 100, "Private"},
		{"one over threshold", 101, "Private"},
		{"mid ladder", 700, "Sergeant"},
		{"exactly at top", 25000, "General"},
		{"beyond top", 1_000_000, "General"},
		{"negative heals to entry", -5, "Recruit"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ForXP(tc.xp).Name)
		})
	}
}

func TestNext(t *testing.T) {
	next, ok := Next(0)
	require.True(t, ok)
	assert.Equal(t, "Private", next.Name)

	next, ok = Next(99)
	require.True(t, ok)
	assert.Equal(t, "Private", next.Name)

	next, ok = Next(100)
	require.True(t, ok)
	assert.Equal(t, "Corporal", next.Name)

	// Null exactly at and beyond the top threshold.
	_, ok = Next(25000)
	assert.False(t, ok)
	_, ok = Next(30000)
	assert.False(t, ok)
}

func TestProgress(t *testing.T) {
	into, span := Progress(150)
	assert.Equal(t, 50, into)
	assert.Equal(t, 200, span)

	into, span = Progress(26000)
	assert.Equal(t, 1000, into)
	assert.Equal(t, 0, span, "top tier has no span")
}

func TestByName(t *testing.T) {
	tier, ok := ByName("Sergeant")
	require.True(t, ok)
	assert.Equal(t, 700, tier.MinXP)

	_, ok = ByName("Field Marshal")
	assert.False(t, ok)
}

func TestRoleNames(t *testing.T) {
	names := RoleNames()
	assert.Len(t, names, len(Ladder)-1, "every tier except entry binds a role")
	assert.NotContains(t, names, "")
}

func TestApplyGain(t *testing.T) {
	now := time.Now()

	entry, _ := ByName("Recruit")
	captain, _ := ByName("Captain")

	assert.Equal(t, 3, ApplyGain(3, entry, nil, now), "entry multiplier is 1.0")
	assert.Equal(t, 3, ApplyGain(3, captain, nil, now), "1.2 * 3 floors to 3")
	assert.Equal(t, 12, ApplyGain(10, captain, nil, now))
	assert.Equal(t, 0, ApplyGain(0, captain, nil, now))
	assert.Equal(t, 0, ApplyGain(-10, captain, nil, now), "negative base never produces gain")
}

func TestApplyGainBoosters(t *testing.T) {
	now := time.Now()
	entry, _ := ByName("Recruit")

	m := &models.MemberRecord{
		Boosters: []models.Booster{
			{Kind: "test", ActivatedAt: now.Add(-time.Minute), ExpiresAt: now.Add(time.Hour), Multiplier: 2.0},
		},
	}
	assert.Equal(t, 6, ApplyGain(3, entry, m, now))

	// Expired boosters are inert.
	m.Boosters[0].ExpiresAt = now.Add(-time.Second)
	assert.Equal(t, 3, ApplyGain(3, entry, m, now))
}

func TestForXPProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		xp := rapid.IntRange(0, 100_000).Draw(t, "xp")

		tier := ForXP(xp)
		assert.LessOrEqual(t, tier.MinXP, xp, "resolved tier threshold is at or below xp")

		if next, ok := Next(xp); ok {
			assert.Greater(t, next.MinXP, xp)
			assert.Greater(t, next.MinXP, tier.MinXP)
		} else {
			assert.Equal(t, Ladder[len(Ladder)-1].Name, tier.Name)
		}
	})
}

func TestApplyGainNeverNegative(t *testing.T) {
	now := time.Now()

	rapid.Check(t, func(t *rapid.T) {
		base := rapid.IntRange(-1000, 1000).Draw(t, "base")
		tier := Ladder[rapid.IntRange(0, len(Ladder)-1).Draw(t, "tier")]

		assert.GreaterOrEqual(t, ApplyGain(base, tier, nil, now), 0)
	})
}
