package main

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"garrison-bot/event"
	"garrison-bot/models"
	"garrison-bot/rank"
	sess "garrison-bot/session"
	"garrison-bot/store"

	"github.com/bwmarrin/discordgo"
	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"
)

// Benchmark tuning for the profile's "server comparison" line. Same
// heuristic as dynamic event goals, different tuning.
const (
	benchmarkMultiplier = 1.5
	benchmarkMin        = 10
	benchmarkMax        = 100000
)

// Cooldowns rate-limits command invocations per user: one command every
// three seconds with a burst of two.
type Cooldowns struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewCooldowns() *Cooldowns {
	return &Cooldowns{limiters: make(map[string]*rate.Limiter)}
}

func (c *Cooldowns) Allow(userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	l, ok := c.limiters[userID]
	if !ok {
		l = rate.NewLimiter(rate.Every(3*time.Second), 2)
		c.limiters[userID] = l
	}

	return l.Allow()
}

func respond(msg string) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: msg},
	}
}

func respondEphemeral(msg string) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: msg,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	}
}

func respondEmbed(embed *discordgo.MessageEmbed) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Embeds: []*discordgo.MessageEmbed{embed}},
	}
}

func options(i *discordgo.Interaction) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	opts := i.ApplicationCommandData().Options
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(opts))
	for _, o := range opts {
		m[o.Name] = o
	}

	return m
}

func isAdmin(i *discordgo.Interaction) bool {
	return i.Member != nil && i.Member.Permissions&discordgo.PermissionManageServer != 0
}

// gate applies the per-user cooldown and membership check shared by all
// commands.
func (app *App) gate(i *discordgo.Interaction) *discordgo.InteractionResponse {
	if i.Member == nil {
		return respondEphemeral("This command only works inside the server.")
	}
	if !app.cooldowns.Allow(i.Member.User.ID) {
		return respondEphemeral("Easy there, soldier. Try again in a few seconds.")
	}

	return nil
}

// commands builds the full slash-command table.
func (app *App) commands() []sess.Command {
	return []sess.Command{
		{
			Definition: &discordgo.ApplicationCommand{
				Name:        "rank",
				Description: "Shows your service record: rank, XP, activity and streaks.",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionUser,
						Name:        "member",
						Description: "Inspect another member's record.",
					},
				},
			},
			Handler: app.cmdRank,
		},
		{
			Definition: &discordgo.ApplicationCommand{
				Name:        "daily",
				Description: "Claim your daily ration of XP. Consecutive days build a streak.",
			},
			Handler: app.cmdDaily,
		},
		{
			Definition: &discordgo.ApplicationCommand{
				Name:        "leaderboard",
				Description: "Top members by XP or activity.",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "sort",
						Description: "Counter to rank by.",
						Choices: []*discordgo.ApplicationCommandOptionChoice{
							{Name: "XP", Value: "xp"},
							{Name: "Messages", Value: "messages"},
							{Name: "Voice minutes", Value: "voice"},
							{Name: "Reactions given", Value: "reactions_given"},
							{Name: "Reactions received", Value: "reactions_received"},
							{Name: "Daily streak", Value: "streak"},
						},
					},
				},
			},
			Handler: app.cmdLeaderboard,
		},
		{
			Definition: &discordgo.ApplicationCommand{
				Name:        "bio",
				Description: "Set the bio shown on your service record.",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "text",
						Description: "Your new bio.",
						Required:    true,
					},
				},
			},
			Handler: app.cmdBio,
		},
		{
			Definition: &discordgo.ApplicationCommand{
				Name:        "operation",
				Description: "Server operations: community challenges with shared goals.",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        "start",
						Description: "Launch a new operation (admin).",
						Options: []*discordgo.ApplicationCommandOption{
							{
								Type:        discordgo.ApplicationCommandOptionString,
								Name:        "title",
								Description: "Operation title.",
								Required:    true,
							},
							{
								Type:        discordgo.ApplicationCommandOptionInteger,
								Name:        "hours",
								Description: "Duration in hours.",
								Required:    true,
							},
							{
								Type:        discordgo.ApplicationCommandOptionInteger,
								Name:        "goal",
								Description: "Message goal. Omit to scale with recent activity.",
							},
						},
					},
					{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        "status",
						Description: "Progress of the current operation.",
					},
					{
						Type:        discordgo.ApplicationCommandOptionSubCommand,
						Name:        "end",
						Description: "End the operation now and distribute rewards (admin).",
					},
				},
			},
			Handler: app.cmdOperation,
		},
		{
			Definition: &discordgo.ApplicationCommand{
				Name:        "fixroles",
				Description: "Re-derive every member's rank role from their XP (admin).",
			},
			Handler: app.cmdFixRoles,
		},
		{
			Definition: &discordgo.ApplicationCommand{
				Name:        "prune",
				Description: "Drop records of members who left the server (admin).",
			},
			Handler: app.cmdPrune,
		},
		{
			Definition: &discordgo.ApplicationCommand{
				Name:        "verify",
				Description: "Mark a member's service record as verified (admin).",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionUser,
						Name:        "member",
						Description: "Member to verify.",
						Required:    true,
					},
					{
						Type:        discordgo.ApplicationCommandOptionBoolean,
						Name:        "revoke",
						Description: "Remove verification instead.",
					},
				},
			},
			Handler: app.cmdVerify,
		},
		{
			Definition: &discordgo.ApplicationCommand{
				Name:        "grant-booster",
				Description: "Grant a member a temporary XP booster (admin).",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionUser,
						Name:        "member",
						Description: "Recipient.",
						Required:    true,
					},
					{
						Type:        discordgo.ApplicationCommandOptionNumber,
						Name:        "multiplier",
						Description: "XP multiplier, e.g. 2.0.",
						Required:    true,
					},
					{
						Type:        discordgo.ApplicationCommandOptionInteger,
						Name:        "hours",
						Description: "Duration in hours.",
						Required:    true,
					},
				},
			},
			Handler: app.cmdGrantBooster,
		},
	}
}

func (app *App) cmdRank(_ *discordgo.Session, i *discordgo.Interaction) *discordgo.InteractionResponse {
	if r := app.gate(i); r != nil {
		return r
	}

	userID := i.Member.User.ID
	if o, ok := options(i)["member"]; ok {
		userID = o.UserValue(nil).ID
	}

	m, ok := app.store.View(i.GuildID, userID)
	if !ok {
		return respondEphemeral("No service record yet. Send a message to enlist.")
	}

	name, err := app.session.GetUserName(userID)
	if err != nil {
		name = "Unknown soldier"
	}

	return respondEmbed(app.profileEmbed(name, m))
}

func (app *App) profileEmbed(name string, m models.MemberRecord) *discordgo.MessageEmbed {
	into, span := rank.Progress(m.XP)

	progress := "Top of the ladder"
	if next, ok := rank.Next(m.XP); ok {
		progress = fmt.Sprintf("%d / %d XP to %s %s", into, span, next.Icon, next.Name)
	}

	// Same scaling heuristic as dynamic operation goals, tuned as an
	// "active member" benchmark.
	benchmark := event.ScaledTarget(app.store.AverageMessages(app.session.ServerID), benchmarkMultiplier, benchmarkMin, benchmarkMax)
	standing := "on pace with"
	if m.MessagesSent > benchmark {
		standing = "ahead of"
	} else if m.MessagesSent < benchmark/2 {
		standing = "behind"
	}

	desc := fmt.Sprintf("%s **%s** - %d XP", m.RankIcon, m.Rank, m.XP)
	if m.Bio != "" {
		desc += "\n-# " + m.Bio
	}

	title := name
	if m.Verified {
		title += " ✅"
	}

	embed := &discordgo.MessageEmbed{
		Title:       title,
		Description: desc,
		Color:       ACCENT,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Next Rank", Value: progress},
			{
				Name: "Activity",
				Value: fmt.Sprintf("%d messages | %d voice minutes | %d/%d reactions given/received",
					m.MessagesSent, m.VoiceMinutes, m.ReactionsGiven, m.ReactionsReceived),
			},
			{
				Name: "Streaks",
				Value: fmt.Sprintf("Daily claim: %d | Activity: %d (best %d)",
					m.DailyStreak, m.CurrentActivityStreak, m.LongestActivityStreak),
			},
			{
				Name:  "Standing",
				Value: fmt.Sprintf("%s the unit benchmark of %d messages", strings.ToUpper(standing[:1])+standing[1:], benchmark),
			},
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Enlisted %s", m.JoinDate.Format(time.DateOnly)),
		},
	}

	if mult := m.ActiveMultiplier(time.Now()); mult > 1.0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "Booster",
			Value: fmt.Sprintf("%.1fx XP active", mult),
		})
	}

	return embed
}

func (app *App) cmdDaily(_ *discordgo.Session, i *discordgo.Interaction) *discordgo.InteractionResponse {
	if r := app.gate(i); r != nil {
		return r
	}

	uID := i.Member.User.ID
	res, err := app.store.ClaimDaily(i.GuildID, uID, time.Now())
	if err != nil {
		if errors.Is(err, store.ErrAlreadyClaimed) {
			return respondEphemeral("Already claimed today. Rations reset at midnight UTC.")
		}

		log.Error("Daily claim failed", "gID", i.GuildID, "uID", uID, "err", err)
		return respondEphemeral("Could not process your claim.")
	}

	msg := fmt.Sprintf("Ration claimed: **+%d XP** (streak: %d day", res.Gain.Amount, res.Streak)
	if res.Streak != 1 {
		msg += "s"
	}
	msg += ")"
	if res.Booster {
		msg += fmt.Sprintf("\nStreak milestone! **%.0fx XP** for the next hour.", store.MilestoneBoosterMult)
	}

	if res.Gain.RankChanged {
		app.onRankChange(i.GuildID, uID, res.Gain)
		msg += fmt.Sprintf("\nPromoted to %s **%s**!", res.Gain.NewIcon, res.Gain.NewRank)
	}

	app.store.ScheduleSave()
	return respond(msg)
}

func (app *App) cmdLeaderboard(_ *discordgo.Session, i *discordgo.Interaction) *discordgo.InteractionResponse {
	if r := app.gate(i); r != nil {
		return r
	}

	key := store.ByXP
	if o, ok := options(i)["sort"]; ok {
		switch o.StringValue() {
		case "messages":
			key = store.ByMessages
		case "voice":
			key = store.ByVoiceMinutes
		case "reactions_given":
			key = store.ByReactionsGiven
		case "reactions_received":
			key = store.ByReactionsReceived
		case "streak":
			key = store.ByDailyStreak
		}
	}

	rows := app.store.Leaderboard(i.GuildID, key, 10)
	if len(rows) == 0 {
		return respondEphemeral("No activity recorded yet.")
	}

	var sb strings.Builder
	for n, row := range rows {
		name, err := app.session.GetUserName(row.UserID)
		if err != nil {
			name = "!?unknown"
		}

		sb.WriteString(fmt.Sprintf("`#%2d` %s %s - **%d**\n", n+1, row.Record.RankIcon, name, row.Value))
	}

	return respondEmbed(&discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Leaderboard - %s", key),
		Description: sb.String(),
		Color:       ACCENT,
	})
}

func (app *App) cmdBio(_ *discordgo.Session, i *discordgo.Interaction) *discordgo.InteractionResponse {
	if r := app.gate(i); r != nil {
		return r
	}

	text := options(i)["text"].StringValue()
	app.store.SetBio(i.GuildID, i.Member.User.ID, text)
	app.store.ScheduleSave()

	return respondEphemeral("Bio updated.")
}

func (app *App) cmdOperation(_ *discordgo.Session, i *discordgo.Interaction) *discordgo.InteractionResponse {
	if r := app.gate(i); r != nil {
		return r
	}

	sub := i.ApplicationCommandData().Options[0]
	switch sub.Name {
	case "start":
		return app.operationStart(i, sub)
	case "status":
		return app.operationStatus(i)
	case "end":
		return app.operationEnd(i)
	}

	return respondEphemeral("Unknown subcommand.")
}

func (app *App) operationStart(i *discordgo.Interaction, sub *discordgo.ApplicationCommandInteractionDataOption) *discordgo.InteractionResponse {
	if !isAdmin(i) {
		return respondEphemeral("Only officers can launch operations.")
	}

	var title string
	var hours, goal int64
	for _, o := range sub.Options {
		switch o.Name {
		case "title":
			title = o.StringValue()
		case "hours":
			hours = o.IntValue()
		case "goal":
			goal = o.IntValue()
		}
	}

	if hours <= 0 {
		return respondEphemeral("Duration must be at least one hour.")
	}

	avg := app.store.AverageMessages(i.GuildID)
	ev, err := app.events.Start(i.GuildID, title, int(goal), time.Duration(hours)*time.Hour, avg)
	if err != nil {
		if errors.Is(err, event.ErrEventActive) {
			return respondEphemeral("An operation is already underway. End it first.")
		}

		log.Error("Operation start failed", "gID", i.GuildID, "err", err)
		return respondEphemeral("Could not start the operation.")
	}

	app.board.Reset()
	return respond(fmt.Sprintf(
		"**Operation %s** is live! Goal: **%d messages** before %s.",
		ev.Title, ev.MessageGoal, ev.EndTime.UTC().Format(time.DateOnly+" "+time.Kitchen),
	))
}

func (app *App) operationStatus(i *discordgo.Interaction) *discordgo.InteractionResponse {
	ev, ok := app.events.Snapshot(i.GuildID)
	if !ok || !ev.Active {
		return respondEphemeral("No operation is currently running.")
	}

	return respondEmbed(progressEmbed(ev, time.Now()))
}

func (app *App) operationEnd(i *discordgo.Interaction) *discordgo.InteractionResponse {
	if !isAdmin(i) {
		return respondEphemeral("Only officers can end operations.")
	}

	if !app.eventActive(i.GuildID) {
		return respondEphemeral("No operation is currently running.")
	}

	app.finishEvent(time.Now())
	return respond("Operation concluded. Debrief incoming.")
}

func (app *App) eventActive(guildID string) bool {
	ev, ok := app.events.Snapshot(guildID)
	return ok && ev.Active
}

func (app *App) cmdFixRoles(_ *discordgo.Session, i *discordgo.Interaction) *discordgo.InteractionResponse {
	if r := app.gate(i); r != nil {
		return r
	}
	if !isAdmin(i) {
		return respondEphemeral("Only officers can run a role sweep.")
	}

	// The sweep hits the role API once per member; run it off the
	// interaction path and report completion asynchronously.
	go func() {
		failed := app.roles.SyncAll(app.store, i.GuildID)
		if app.announceChID != "" {
			app.session.MsgSend(app.announceChID, fmt.Sprintf("Role sweep complete (%d failures).", failed))
		}
	}()

	return respondEphemeral("Role sweep started.")
}

// pruneDeparted drops stored records for members no longer on the
// server. present holds the IDs of everyone still enlisted.
func pruneDeparted(st *store.Store, guildID string, present map[string]bool) int {
	return st.Purge(guildID, func(uID string) bool { return present[uID] })
}

func (app *App) cmdPrune(_ *discordgo.Session, i *discordgo.Interaction) *discordgo.InteractionResponse {
	if r := app.gate(i); r != nil {
		return r
	}
	if !isAdmin(i) {
		return respondEphemeral("Only officers can prune the roster.")
	}

	// Paginating the full member list can outlast the interaction
	// window; run it off the interaction path like the role sweep.
	go func() {
		members, err := app.session.Members()
		if err != nil {
			log.Error("Roster fetch failed", "gID", i.GuildID, "err", err)
			return
		}

		present := make(map[string]bool, len(members))
		for _, m := range members {
			present[m.User.ID] = true
		}

		dropped := pruneDeparted(app.store, i.GuildID, present)
		if dropped > 0 {
			app.store.ScheduleSave()
		}
		if app.announceChID != "" {
			app.session.MsgSend(app.announceChID, fmt.Sprintf("Roster pruned: %d departed members removed.", dropped))
		}
	}()

	return respondEphemeral("Roster prune started.")
}

func (app *App) cmdVerify(_ *discordgo.Session, i *discordgo.Interaction) *discordgo.InteractionResponse {
	if r := app.gate(i); r != nil {
		return r
	}
	if !isAdmin(i) {
		return respondEphemeral("Only officers can verify members.")
	}

	opts := options(i)
	userID := opts["member"].UserValue(nil).ID
	verified := true
	if o, ok := opts["revoke"]; ok && o.BoolValue() {
		verified = false
	}

	app.store.SetVerified(i.GuildID, userID, verified)
	app.store.ScheduleSave()

	if !verified {
		return respondEphemeral(fmt.Sprintf("Verification revoked for <@%s>.", userID))
	}
	return respondEphemeral(fmt.Sprintf("<@%s> is now verified.", userID))
}

func (app *App) cmdGrantBooster(_ *discordgo.Session, i *discordgo.Interaction) *discordgo.InteractionResponse {
	if r := app.gate(i); r != nil {
		return r
	}
	if !isAdmin(i) {
		return respondEphemeral("Only officers can grant boosters.")
	}

	opts := options(i)
	userID := opts["member"].UserValue(nil).ID
	mult := opts["multiplier"].FloatValue()
	hours := opts["hours"].IntValue()

	err := app.store.GrantBooster(i.GuildID, userID, "admin_grant", mult, time.Duration(hours)*time.Hour, time.Now())
	if err != nil {
		return respondEphemeral("Multiplier and duration must be positive.")
	}

	app.store.ScheduleSave()
	return respondEphemeral(fmt.Sprintf("Granted %.1fx XP for %dh to <@%s>.", mult, hours, userID))
}
