package main

import (
	"sync"
	"time"

	"garrison-bot/models"

	"github.com/bwmarrin/discordgo"
	"github.com/charmbracelet/log"
)

// Gateway activity handlers. Every XP-earning action funnels through
// store.AddXP; handlers only decide what kind of activity occurred and
// react to rank changes.

// trackMessage awards message XP, feeds the active event, and syncs
// roles on a rank change.
func (app *App) trackMessage(_ *discordgo.Session, msg *discordgo.MessageCreate) {
	if msg.Author == nil || msg.Author.Bot || msg.GuildID == "" {
		return
	}

	gain, err := app.store.AddXP(msg.GuildID, msg.Author.ID, models.ActivityMessage, models.ActivityMessage.BaseReward(), time.Now())
	if err != nil {
		log.Error("Message XP failed", "gID", msg.GuildID, "uID", msg.Author.ID, "err", err)
		return
	}

	if gain.RankChanged {
		app.onRankChange(msg.GuildID, msg.Author.ID, gain)
		// Stamp the message that earned the promotion.
		app.session.MsgReact(msg.ChannelID, msg.ID, gain.NewIcon)
	}

	name := msg.Author.Username
	if msg.Member != nil && msg.Member.Nick != "" {
		name = msg.Member.Nick
	}
	app.events.Track(msg.GuildID, msg.Author.ID, name)
}

// trackReaction awards XP to both sides of a reaction: the reactor for
// giving it, the message author for receiving it.
func (app *App) trackReaction(_ *discordgo.Session, r *discordgo.MessageReactionAdd) {
	if r.GuildID == "" || r.UserID == app.session.AppID {
		return
	}

	now := time.Now()
	gain, err := app.store.AddXP(r.GuildID, r.UserID, models.ActivityReactionGiven, models.ActivityReactionGiven.BaseReward(), now)
	if err == nil && gain.RankChanged {
		app.onRankChange(r.GuildID, r.UserID, gain)
	}

	msg, err := app.session.MsgGet(r.ChannelID, r.MessageID)
	if err != nil || msg.Author == nil || msg.Author.Bot || msg.Author.ID == r.UserID {
		return
	}

	gain, err = app.store.AddXP(r.GuildID, msg.Author.ID, models.ActivityReactionReceived, models.ActivityReactionReceived.BaseReward(), now)
	if err == nil && gain.RankChanged {
		app.onRankChange(r.GuildID, msg.Author.ID, gain)
	}
}

// VoiceTracker keeps the set of members currently connected to a voice
// channel. A periodic job converts presence into voice-minute XP.
type VoiceTracker struct {
	mu      sync.Mutex
	present map[string]bool
}

func NewVoiceTracker() *VoiceTracker {
	return &VoiceTracker{present: make(map[string]bool)}
}

// Update applies one voice state change. An empty channel ID means the
// member disconnected.
func (vt *VoiceTracker) Update(userID string, channelID string) {
	vt.mu.Lock()
	defer vt.mu.Unlock()

	if channelID == "" {
		delete(vt.present, userID)
	} else {
		vt.present[userID] = true
	}
}

// Present returns the IDs of all members currently in voice.
func (vt *VoiceTracker) Present() []string {
	vt.mu.Lock()
	defer vt.mu.Unlock()

	ids := make([]string, 0, len(vt.present))
	for id := range vt.present {
		ids = append(ids, id)
	}

	return ids
}

// trackVoiceState feeds voice join/leave events into the tracker.
func (app *App) trackVoiceState(_ *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	if v.GuildID != app.session.ServerID || v.UserID == app.session.AppID {
		return
	}

	app.voice.Update(v.UserID, v.ChannelID)
}

// voiceTick awards one voice minute to every member currently in voice.
// Run once a minute by the scheduler.
func (app *App) voiceTick() {
	now := time.Now()
	for _, uID := range app.voice.Present() {
		gain, err := app.store.AddXP(app.session.ServerID, uID, models.ActivityVoiceMinute, models.ActivityVoiceMinute.BaseReward(), now)
		if err != nil {
			log.Error("Voice XP failed", "uID", uID, "err", err)
			continue
		}
		if gain.RankChanged {
			app.onRankChange(app.session.ServerID, uID, gain)
		}
	}
}
