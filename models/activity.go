package models

// ActivityKind enumerates every action that can earn XP. The set is
// closed: each kind has exactly one counter and one base reward, both
// defined here, so adding a kind is a one-place change.
type ActivityKind int

const (
	ActivityMessage ActivityKind = iota
	ActivityVoiceMinute
	ActivityReactionGiven
	ActivityReactionReceived
	ActivityDailyClaim
	ActivityEventReward
)

func (k ActivityKind) String() string {
	switch k {
	case ActivityMessage:
		return "message"
	case ActivityVoiceMinute:
		return "voice_minute"
	case ActivityReactionGiven:
		return "reaction_given"
	case ActivityReactionReceived:
		return "reaction_received"
	case ActivityDailyClaim:
		return "daily_claim"
	case ActivityEventReward:
		return "event_reward"
	}

	return "unknown"
}

// BaseReward returns the unmultiplied XP granted for one occurrence of
// the activity. Daily claims and event rewards carry their own reward
// calculation and report 0 here.
func (k ActivityKind) BaseReward() int {
	switch k {
	case ActivityMessage:
		return 3
	case ActivityVoiceMinute:
		return 2
	case ActivityReactionGiven:
		return 1
	case ActivityReactionReceived:
		return 1
	case ActivityDailyClaim, ActivityEventReward:
		return 0
	}

	return 0
}

// Count increments the counter on m that tracks this kind of activity.
// Daily claims are tracked through the claim date, not a counter.
func (k ActivityKind) Count(m *MemberRecord) {
	switch k {
	case ActivityMessage:
		m.MessagesSent++
	case ActivityVoiceMinute:
		m.VoiceMinutes++
	case ActivityReactionGiven:
		m.ReactionsGiven++
	case ActivityReactionReceived:
		m.ReactionsReceived++
	case ActivityDailyClaim, ActivityEventReward:
	}
}

// Counter reads the counter on m tracking this kind of activity. Used
// for leaderboard ordering.
func (k ActivityKind) Counter(m *MemberRecord) int {
	switch k {
	case ActivityMessage:
		return m.MessagesSent
	case ActivityVoiceMinute:
		return m.VoiceMinutes
	case ActivityReactionGiven:
		return m.ReactionsGiven
	case ActivityReactionReceived:
		return m.ReactionsReceived
	case ActivityDailyClaim, ActivityEventReward:
	}

	return 0
}
