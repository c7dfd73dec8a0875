package models

import (
	"time"

	"github.com/google/uuid"
)

// Participant tracks one member's contribution to a server event.
type Participant struct {
	DisplayName   string `json:"display_name"`
	Contributions int    `json:"contributions"`
}

// EventState is the full state of one server event. At most one event
// is active per guild; the previous event's state is retained until the
// next start overwrites it.
type EventState struct {
	ID     uuid.UUID `json:"id"`
	Active bool      `json:"active"`
	Title  string    `json:"title"`

	MessageGoal   int       `json:"message_goal"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	TotalProgress int       `json:"total_progress"`

	Participants map[string]*Participant `json:"participants"`

	LastProgressBroadcast time.Time `json:"last_progress_broadcast"`
}

// NewEventState creates an active event running from now for the given
// duration.
func NewEventState(title string, goal int, now time.Time, dur time.Duration) *EventState {
	return &EventState{
		ID:           uuid.New(),
		Active:       true,
		Title:        title,
		MessageGoal:  goal,
		StartTime:    now,
		EndTime:      now.Add(dur),
		Participants: make(map[string]*Participant),
	}
}

// Standing is one row of the final event leaderboard.
type Standing struct {
	UserID        string `json:"user_id"`
	DisplayName   string `json:"display_name"`
	Contributions int    `json:"contributions"`
}

// EventReward is the XP owed to one member after an event ends. The
// event manager computes rewards but never applies them; the caller
// grants the XP through the member store.
type EventReward struct {
	UserID   string `json:"user_id"`
	XP       int    `json:"xp"`
	TopBonus bool   `json:"top_bonus"`
}

// EventResults summarizes a finished event. A missed goal is a
// reported outcome, not a failure; rewards are distributed either way.
type EventResults struct {
	Title         string        `json:"title"`
	GoalReached   bool          `json:"goal_reached"`
	FinalProgress int           `json:"final_progress"`
	MessageGoal   int           `json:"message_goal"`
	Standings     []Standing    `json:"standings"`
	Rewards       []EventReward `json:"rewards"`
}
