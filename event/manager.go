// Package event tracks time-boxed community challenges: one active
// event per guild, accumulating per-member message contributions toward
// a goal. The manager computes final rewards but never mutates member
// XP itself; applying rewards is the caller's job, which keeps this
// package free of a store dependency.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"garrison-bot/models"

	"github.com/charmbracelet/log"
)

const (
	// State is persisted every persistEvery tracked contributions, trading
	// some write amplification for crash-safety mid-event.
	persistEvery = 25

	// BroadcastInterval is the minimum spacing between progress updates.
	BroadcastInterval = 6 * time.Hour

	// Reward tuning. Members under MinContributions are excluded from
	// rewards entirely; everyone else gets the participation reward and
	// the top three an extra bonus.
	MinContributions    = 5
	ParticipationReward = 50
)

// TopBonuses is the extra XP for the top three contributors, best first.
var TopBonuses = [3]int{150, 100, 50}

var (
	ErrEventActive = errors.New("event: an event is already active")
	ErrNoEvent     = errors.New("event: no active event")
)

// Dynamic goal tuning for Start when no explicit goal is given.
const (
	GoalMultiplier = 20.0
	GoalMin        = 200
	GoalMax        = 20000
)

// ScaledTarget scales an observed per-member average by mult and clamps
// it into [min, max]. The one heuristic shared by dynamic event goals
// and the profile's server-average comparison; call sites pick their
// own tuning.
func ScaledTarget(avg float64, mult float64, min int, max int) int {
	target := int(avg * mult)
	if target < min {
		return min
	}
	if target > max {
		return max
	}

	return target
}

// Manager owns the per-guild event state and its JSON persistence.
type Manager struct {
	mu     sync.Mutex
	events map[string]*models.EventState
	path   string

	// Contributions tracked since the last persist, per guild.
	sincePersist map[string]int
}

// NewManager creates a manager persisting to the JSON document at path,
// reloading any previous state so an in-flight event survives restarts.
func NewManager(path string) *Manager {
	m := &Manager{
		events:       make(map[string]*models.EventState),
		path:         path,
		sincePersist: make(map[string]int),
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Error("Event state load failed", "path", path, "err", err)
		}
		return m
	}

	if err := json.Unmarshal(raw, &m.events); err != nil {
		log.Error("Event state decode failed", "path", path, "err", err)
		return m
	}

	for gID, ev := range m.events {
		if ev.Participants == nil {
			ev.Participants = make(map[string]*models.Participant)
		}
		if ev.Active {
			log.Info("Resumed active event", "gID", gID, "title", ev.Title, "progress", ev.TotalProgress)
		}
	}

	return m
}

// Start begins a new event for the guild. goal <= 0 derives a dynamic
// goal from the guild's average per-member message count, so targets
// scale with community activity. Fails with [ErrEventActive] while
// another event runs.
func (m *Manager) Start(guildID string, title string, goal int, dur time.Duration, avgMessages float64) (*models.EventState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ev, ok := m.events[guildID]; ok && ev.Active {
		return nil, ErrEventActive
	}

	if goal <= 0 {
		goal = ScaledTarget(avgMessages, GoalMultiplier, GoalMin, GoalMax)
	}

	ev := models.NewEventState(title, goal, time.Now(), dur)
	m.events[guildID] = ev
	m.sincePersist[guildID] = 0
	m.persistLocked()

	log.Info("Event started", "gID", guildID, "id", ev.ID, "title", title, "goal", goal, "ends", ev.EndTime)
	return m.copyLocked(ev), nil
}

// Track records one contribution from the member. No-op returning false
// while no event is active.
func (m *Manager) Track(guildID string, userID string, displayName string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev, ok := m.events[guildID]
	if !ok || !ev.Active {
		return false
	}

	p, ok := ev.Participants[userID]
	if !ok {
		p = &models.Participant{DisplayName: displayName}
		ev.Participants[userID] = p
	}
	p.DisplayName = displayName
	p.Contributions++
	ev.TotalProgress++

	m.sincePersist[guildID]++
	if m.sincePersist[guildID] >= persistEvery {
		m.sincePersist[guildID] = 0
		m.persistLocked()
	}

	return true
}

// Snapshot returns a copy of the guild's current event state, active or
// not. ok is false when the guild never ran an event.
func (m *Manager) Snapshot(guildID string) (models.EventState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev, ok := m.events[guildID]
	if !ok {
		return models.EventState{}, false
	}

	return *m.copyLocked(ev), true
}

// ShouldBroadcast reports whether a progress update is due: once right
// after start, then at most every [BroadcastInterval].
func (m *Manager) ShouldBroadcast(guildID string, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev, ok := m.events[guildID]
	if !ok || !ev.Active {
		return false
	}

	return ev.LastProgressBroadcast.IsZero() || now.Sub(ev.LastProgressBroadcast) >= BroadcastInterval
}

// MarkBroadcast records that a progress update was posted.
func (m *Manager) MarkBroadcast(guildID string, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ev, ok := m.events[guildID]; ok {
		ev.LastProgressBroadcast = now
		m.persistLocked()
	}
}

// ShouldEnd reports whether the active event's deadline has passed.
// Meeting the goal early does not end the event; events run to their
// deadline.
func (m *Manager) ShouldEnd(guildID string, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev, ok := m.events[guildID]
	return ok && ev.Active && now.After(ev.EndTime)
}

// End closes the active event and computes the final standings and
// reward distribution. Zero participants yields empty standings and
// rewards, not an error; a missed goal is reported, not failed. The
// state is retained as the "last event" until the next Start.
func (m *Manager) End(guildID string, now time.Time) (*models.EventResults, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev, ok := m.events[guildID]
	if !ok || !ev.Active {
		return nil, ErrNoEvent
	}

	ev.Active = false
	m.persistLocked()

	standings := make([]models.Standing, 0, len(ev.Participants))
	for uID, p := range ev.Participants {
		standings = append(standings, models.Standing{
			UserID:        uID,
			DisplayName:   p.DisplayName,
			Contributions: p.Contributions,
		})
	}
	slices.SortFunc(standings, func(a models.Standing, b models.Standing) int {
		if a.Contributions < b.Contributions {
			return 1
		} else if a.Contributions > b.Contributions {
			return -1
		}

		return 0
	})

	var rewards []models.EventReward
	rank := 0
	for _, st := range standings {
		if st.Contributions < MinContributions {
			continue
		}

		r := models.EventReward{UserID: st.UserID, XP: ParticipationReward}
		if rank < len(TopBonuses) {
			r.XP += TopBonuses[rank]
			r.TopBonus = true
		}
		rank++
		rewards = append(rewards, r)
	}

	res := &models.EventResults{
		Title:         ev.Title,
		GoalReached:   ev.TotalProgress >= ev.MessageGoal,
		FinalProgress: ev.TotalProgress,
		MessageGoal:   ev.MessageGoal,
		Standings:     standings,
		Rewards:       rewards,
	}

	log.Info("Event ended", "gID", guildID, "id", ev.ID, "title", ev.Title,
		"progress", ev.TotalProgress, "goal", ev.MessageGoal, "reached", res.GoalReached,
		"participants", len(standings), "rewarded", len(rewards))
	return res, nil
}

func (m *Manager) copyLocked(ev *models.EventState) *models.EventState {
	cp := *ev
	cp.Participants = make(map[string]*models.Participant, len(ev.Participants))
	for uID, p := range ev.Participants {
		pc := *p
		cp.Participants[uID] = &pc
	}

	return &cp
}

// persistLocked writes all event state atomically. Failures are logged
// and swallowed; event state is reconstructible from the next start and
// losing at most persistEvery contributions is the accepted trade.
func (m *Manager) persistLocked() {
	raw, err := json.MarshalIndent(m.events, "", "  ")
	if err != nil {
		log.Error("Event state encode failed", "err", err)
		return
	}

	tmp, err := os.CreateTemp(filepath.Dir(m.path), filepath.Base(m.path)+".tmp-*")
	if err != nil {
		log.Error("Event state write failed", "path", m.path, "err", err)
		return
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		log.Error("Event state write failed", "path", m.path, "err", err)
		return
	}
	if err := tmp.Close(); err != nil {
		log.Error("Event state write failed", "path", m.path, "err", err)
		return
	}

	if err := os.Rename(tmp.Name(), m.path); err != nil {
		log.Error("Event state replace failed", "path", m.path, "err", fmt.Errorf("rename: %v", err))
	}
}
