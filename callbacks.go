package main

import (
	"fmt"
	"time"

	"garrison-bot/models"
	"garrison-bot/rank"
	"garrison-bot/store"

	"github.com/charmbracelet/log"
)

// onRankChange reconciles roles and announces a promotion (or, after an
// administrative XP cut, a demotion). Role sync failure is absorbed:
// the numeric rank already changed and a later sweep re-derives roles
// from it.
func (app *App) onRankChange(guildID string, userID string, gain store.Gain) {
	if !app.roles.Sync(userID, gain.NewRank) {
		log.Warn("Role sync failed - rank stands, sweep will retry", "gID", guildID, "uID", userID, "rank", gain.NewRank)
	}

	if app.announceChID == "" {
		return
	}

	// Demotions only happen through administrative cuts; reconcile the
	// roles quietly and skip the fanfare.
	prev, ok := rank.ByName(gain.PrevRank)
	next, ok2 := rank.ByName(gain.NewRank)
	if ok && ok2 && next.MinXP < prev.MinXP {
		return
	}

	name, err := app.session.GetUserName(userID)
	if err != nil {
		name = "A soldier"
	}

	app.session.MsgSend(app.announceChID, fmt.Sprintf(
		"%s **%s** has been promoted to **%s**!", gain.NewIcon, name, gain.NewRank,
	))
}

// finishEvent closes the active event, applies the computed rewards
// through the member store, and posts the final report. The event
// manager computed the rewards but never touches member XP itself.
func (app *App) finishEvent(now time.Time) {
	guildID := app.session.ServerID

	results, err := app.events.End(guildID, now)
	if err != nil {
		log.Error("Event end failed", "gID", guildID, "err", err)
		return
	}

	for _, r := range results.Rewards {
		gain, err := app.store.AddXP(guildID, r.UserID, models.ActivityEventReward, r.XP, now)
		if err != nil {
			log.Error("Event reward failed", "gID", guildID, "uID", r.UserID, "xp", r.XP, "err", err)
			continue
		}
		if gain.RankChanged {
			app.onRankChange(guildID, r.UserID, gain)
		}
	}

	app.store.ScheduleSave()
	app.board.Reset()

	if app.eventChID != "" {
		app.session.MsgSendEmbed(app.eventChID, eventReportEmbed(results))
	}
}
