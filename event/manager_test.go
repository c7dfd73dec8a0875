package event

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

const testGuild = "guild-1"

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(filepath.Join(t.TempDir(), "events.json"))
}

func TestStartExplicitGoal(t *testing.T) {
	m := newTestManager(t)

	ev, err := m.Start(testGuild, "Winter Offensive", 1000, 24*time.Hour, 0)
	require.NoError(t, err)

	assert.Equal(t, "Winter Offensive", ev.Title)
	assert.Equal(t, 1000, ev.MessageGoal)
	assert.True(t, ev.Active)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, 0, ev.TotalProgress)
}

func TestStartRejectsSecondEvent(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Start(testGuild, "First", 100, time.Hour, 0)
	require.NoError(t, err)

	_, err = m.Start(testGuild, "Second", 100, time.Hour, 0)
	assert.ErrorIs(t, err, ErrEventActive)

	// A different guild is unaffected.
	_, err = m.Start("guild-2", "Second", 100, time.Hour, 0)
	assert.NoError(t, err)
}

func TestStartDynamicGoal(t *testing.T) {
	m := newTestManager(t)

	tests := []struct {
		name string
		avg  float64
		want int
	}{
		{"scales with average", 50, 1000},
		{"clamped to minimum", 1, 200},
		{"clamped to maximum", 5000, 20000},
		{"zero average floors", 0, 200},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := m.Start(testGuild+tc.name, "Dynamic", 0, time.Hour, tc.avg)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ev.MessageGoal)
		})
	}
}

func TestScaledTarget(t *testing.T) {
	assert.Equal(t, 1000, ScaledTarget(50, 20, 200, 20000))
	assert.Equal(t, 200, ScaledTarget(5, 20, 200, 20000))
	assert.Equal(t, 20000, ScaledTarget(10000, 20, 200, 20000))
	assert.Equal(t, 75, ScaledTarget(50, 1.5, 10, 100000))
}

func TestTrack(t *testing.T) {
	m := newTestManager(t)

	assert.False(t, m.Track(testGuild, "u1", "Alice"), "no event active")

	_, err := m.Start(testGuild, "Op", 100, time.Hour, 0)
	require.NoError(t, err)

	assert.True(t, m.Track(testGuild, "u1", "Alice"))
	assert.True(t, m.Track(testGuild, "u1", "Alice"))
	assert.True(t, m.Track(testGuild, "u2", "Bob"))

	ev, ok := m.Snapshot(testGuild)
	require.True(t, ok)
	assert.Equal(t, 3, ev.TotalProgress)
	assert.Equal(t, 2, ev.Participants["u1"].Contributions)
	assert.Equal(t, 1, ev.Participants["u2"].Contributions)
}

func TestTrackUpdatesDisplayName(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Start(testGuild, "Op", 100, time.Hour, 0)
	require.NoError(t, err)

	m.Track(testGuild, "u1", "Alice")
	m.Track(testGuild, "u1", "General Alice")

	ev, _ := m.Snapshot(testGuild)
	assert.Equal(t, "General Alice", ev.Participants["u1"].DisplayName)
}

func TestSnapshotIsACopy(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Start(testGuild, "Op", 100, time.Hour, 0)
	require.NoError(t, err)
	m.Track(testGuild, "u1", "Alice")

	ev, _ := m.Snapshot(testGuild)
	ev.Participants["u1"].Contributions = 999
	ev.TotalProgress = 999

	fresh, _ := m.Snapshot(testGuild)
	assert.Equal(t, 1, fresh.TotalProgress)
	assert.Equal(t, 1, fresh.Participants["u1"].Contributions)
}

func TestShouldEnd(t *testing.T) {
	m := newTestManager(t)
	now := time.Now()

	assert.False(t, m.ShouldEnd(testGuild, now))

	_, err := m.Start(testGuild, "Op", 10, time.Hour, 0)
	require.NoError(t, err)

	// Meeting the goal early does not end the event.
	for range 15 {
		m.Track(testGuild, "u1", "Alice")
	}
	assert.False(t, m.ShouldEnd(testGuild, now))
	assert.True(t, m.ShouldEnd(testGuild, now.Add(2*time.Hour)))
}

func TestShouldBroadcast(t *testing.T) {
	m := newTestManager(t)
	now := time.Now()

	assert.False(t, m.ShouldBroadcast(testGuild, now))

	_, err := m.Start(testGuild, "Op", 100, 48*time.Hour, 0)
	require.NoError(t, err)

	assert.True(t, m.ShouldBroadcast(testGuild, now), "due right after start")

	m.MarkBroadcast(testGuild, now)
	assert.False(t, m.ShouldBroadcast(testGuild, now.Add(time.Hour)))
	assert.True(t, m.ShouldBroadcast(testGuild, now.Add(BroadcastInterval)))
}

func TestEndRewardDistribution(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Start(testGuild, "Op", 1000, time.Hour, 0)
	require.NoError(t, err)

	contribute(m, "first", 400)
	contribute(m, "second", 300)
	contribute(m, "third", 300)

	res, err := m.End(testGuild, time.Now())
	require.NoError(t, err)

	assert.True(t, res.GoalReached)
	assert.Equal(t, 1000, res.FinalProgress)

	require.Len(t, res.Standings, 3)
	assert.Equal(t, "first", res.Standings[0].UserID)
	assert.Equal(t, 400, res.Standings[0].Contributions)

	require.Len(t, res.Rewards, 3)
	assert.Equal(t, ParticipationReward+TopBonuses[0], res.Rewards[0].XP)
	assert.Equal(t, ParticipationReward+TopBonuses[1], res.Rewards[1].XP)
	assert.Equal(t, ParticipationReward+TopBonuses[2], res.Rewards[2].XP)
	for _, r := range res.Rewards {
		assert.True(t, r.TopBonus)
	}
}

func TestEndMinContributionsFloor(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Start(testGuild, "Op", 1000, time.Hour, 0)
	require.NoError(t, err)

	contribute(m, "active", 20)
	contribute(m, "lurker", MinContributions-1)

	res, err := m.End(testGuild, time.Now())
	require.NoError(t, err)

	assert.Len(t, res.Standings, 2, "standings list everyone")
	require.Len(t, res.Rewards, 1, "rewards exclude members under the floor")
	assert.Equal(t, "active", res.Rewards[0].UserID)
}

func TestEndNoParticipants(t *testing.T) {
	m := newTestManager(t)
	_, err := m.Start(testGuild, "Op", 1000, time.Hour, 0)
	require.NoError(t, err)

	res, err := m.End(testGuild, time.Now())
	require.NoError(t, err)

	assert.False(t, res.GoalReached)
	assert.Empty(t, res.Standings)
	assert.Empty(t, res.Rewards)
}

func TestEndTwiceRejected(t *testing.T) {
	m := newTestManager(t)

	_, err := m.End(testGuild, time.Now())
	assert.ErrorIs(t, err, ErrNoEvent)

	_, err = m.Start(testGuild, "Op", 100, time.Hour, 0)
	require.NoError(t, err)
	_, err = m.End(testGuild, time.Now())
	require.NoError(t, err)

	_, err = m.End(testGuild, time.Now())
	assert.ErrorIs(t, err, ErrNoEvent)

	// The ended event stays visible as the last event.
	ev, ok := m.Snapshot(testGuild)
	require.True(t, ok)
	assert.False(t, ev.Active)
}

func TestEndedEventAllowsRestart(t *testing.T) {
	m := newTestManager(t)

	_, err := m.Start(testGuild, "First", 100, time.Hour, 0)
	require.NoError(t, err)
	_, err = m.End(testGuild, time.Now())
	require.NoError(t, err)

	ev, err := m.Start(testGuild, "Second", 100, time.Hour, 0)
	require.NoError(t, err)
	assert.Equal(t, "Second", ev.Title)
	assert.Empty(t, ev.Participants)
}

func TestPersistenceAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.json")

	m := NewManager(path)
	_, err := m.Start(testGuild, "Op", 500, time.Hour, 0)
	require.NoError(t, err)

	// Enough contributions to cross the persist threshold.
	contribute(m, "u1", persistEvery+3)

	reloaded := NewManager(path)
	ev, ok := reloaded.Snapshot(testGuild)
	require.True(t, ok)
	assert.True(t, ev.Active)
	assert.Equal(t, "Op", ev.Title)
	assert.GreaterOrEqual(t, ev.TotalProgress, persistEvery, "persisted at the threshold, trailing tail may be lost")
	assert.True(t, reloaded.Track(testGuild, "u1", "Alice"), "resumed event keeps tracking")
}

func TestProgressMatchesContributions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.json")

	rapid.Check(t, func(t *rapid.T) {
		os.Remove(path) // fresh state per iteration
		m := NewManager(path)
		_, err := m.Start(testGuild, "Op", 100, time.Hour, 0)
		require.NoError(t, err)

		users := rapid.SliceOfN(rapid.StringMatching(`u[0-9]`), 1, 40).Draw(t, "users")
		for _, u := range users {
			m.Track(testGuild, u, u)
		}

		ev, ok := m.Snapshot(testGuild)
		require.True(t, ok)

		sum := 0
		for _, p := range ev.Participants {
			sum += p.Contributions
		}
		assert.Equal(t, ev.TotalProgress, sum, "total progress equals the sum of contributions")
		assert.Equal(t, len(users), ev.TotalProgress)
	})
}

func contribute(m *Manager, userID string, n int) {
	for range n {
		m.Track(testGuild, userID, userID)
	}
}
