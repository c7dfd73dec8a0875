package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"garrison-bot/models"
	sess "garrison-bot/session"

	"github.com/bwmarrin/discordgo"
	"github.com/charmbracelet/log"
)

var ErrNoMsg = errors.New("board: no suitable message found")

var ACCENT = 0x4e6b2f

const boardHeader = "## Operation Status"

// EventBoard maintains a single reusable progress message for the
// running event, edited in place on every broadcast instead of
// flooding the channel.
type EventBoard struct {
	session *sess.Session

	// Channel ID to use for retrieving and posting messages.
	chID string
	// Message ID of the message displaying event progress.
	msgID string
}

// NewEventBoard creates an EventBoard for the given channel, reusing a
// pre-existing progress message when one survives from a prior run.
func NewEventBoard(session *sess.Session, chID string) *EventBoard {
	b := &EventBoard{session: session, chID: chID}

	msgID, err := findMsg(session, chID)
	if err == nil {
		log.Info("Reusing existing event board", "msgID", msgID)
		b.msgID = msgID
	}

	return b
}

// Update renders the current event snapshot into the board message,
// creating the message if none exists yet.
func (b *EventBoard) Update(ev models.EventState, now time.Time) error {
	if b.chID == "" {
		return nil
	}

	if err := b.invalidateMsg(); err != nil {
		log.Warn("Board update failed", "chID", b.chID, "msgID", b.msgID, "err", err)
		return err
	}

	if _, err := b.session.MsgEditEmbed(b.chID, b.msgID, boardHeader, progressEmbed(ev, now)); err != nil {
		log.Warn("Board update failed", "chID", b.chID, "msgID", b.msgID, "err", err)
		return err
	}

	return nil
}

// Reset drops the tracked message so the next event starts a fresh
// board instead of overwriting the final report of the last one.
func (b *EventBoard) Reset() {
	b.msgID = ""
}

// invalidateMsg ensures the stored msgID still points to a valid
// message and performs corrective measures in case it doesn't. Required
// when the original board message is deleted while the application is
// running.
func (b *EventBoard) invalidateMsg() error {
	if b.msgID != "" {
		if _, err := b.session.MsgGet(b.chID, b.msgID); err == nil {
			return nil
		}
		log.Warn("Invalid board message", "chID", b.chID, "msgID", b.msgID)
	}

	msgID, err := createMsg(b.session, b.chID)
	if err != nil {
		return err
	}

	b.msgID = msgID
	return nil
}

// findMsg tries to find a pre-existing board message that can be
// reused.
func findMsg(session *sess.Session, chID string) (msgID string, err error) {
	if chID == "" {
		return "", ErrNoMsg
	}

	msgs, err := session.MsgList(chID)
	if err != nil {
		log.Warn("Failed to retrieve messages", "chID", chID, "err", err)
		return "", err
	}

	for _, m := range msgs {
		if m.Author.ID != session.AppID || !strings.HasPrefix(m.Content, boardHeader) {
			continue
		}

		return m.ID, nil
	}

	return "", ErrNoMsg
}

// createMsg creates a new message to use as the event board.
func createMsg(session *sess.Session, chID string) (msgID string, err error) {
	log.Info("Creating new event board")

	m, err := session.MsgSend(chID, boardHeader)
	if err != nil {
		log.Error("Creation failed", "err", err)
		return "", err
	}

	return m.ID, nil
}

// progressEmbed renders a running event's progress.
func progressEmbed(ev models.EventState, now time.Time) *discordgo.MessageEmbed {
	remaining := time.Until(ev.EndTime).Round(time.Minute)
	if remaining < 0 {
		remaining = 0
	}

	return &discordgo.MessageEmbed{
		Title:       ev.Title,
		Description: fmt.Sprintf("-# Last Update: %s", now.Format(time.DateOnly+" at "+time.Kitchen)),
		Color:       ACCENT,
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:   "Progress",
				Value:  fmt.Sprintf("%s %d / %d", progressBar(ev.TotalProgress, ev.MessageGoal), ev.TotalProgress, ev.MessageGoal),
				Inline: false,
			},
			{
				Name:   "Participants",
				Value:  fmt.Sprintf("%d", len(ev.Participants)),
				Inline: true,
			},
			{
				Name:   "Time Left",
				Value:  remaining.String(),
				Inline: true,
			},
		},
	}
}

// eventReportEmbed renders the final report for a finished event.
func eventReportEmbed(res *models.EventResults) *discordgo.MessageEmbed {
	outcome := "Objective missed - rewards distributed for the effort."
	if res.GoalReached {
		outcome = "Objective complete!"
	}

	var sb strings.Builder
	for i, st := range res.Standings {
		if i >= 10 {
			break
		}
		sb.WriteString(fmt.Sprintf("`#%d` %s - %d\n", i+1, st.DisplayName, st.Contributions))
	}
	if sb.Len() == 0 {
		sb.WriteString("No participants.")
	}

	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("%s - Debrief", res.Title),
		Description: fmt.Sprintf("%s\n\nFinal count: **%d / %d**", outcome, res.FinalProgress, res.MessageGoal),
		Color:       ACCENT,
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:  "Standings",
				Value: sb.String(),
			},
			{
				Name:  "Rewards",
				Value: fmt.Sprintf("%d members rewarded, top %d with bonus", len(res.Rewards), min(len(res.Rewards), 3)),
			},
		},
	}
}

// progressBar renders a ten-segment text progress bar.
func progressBar(progress int, goal int) string {
	if goal <= 0 {
		return ""
	}

	filled := progress * 10 / goal
	if filled > 10 {
		filled = 10
	}

	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", 10-filled) + "]"
}
