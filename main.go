package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"garrison-bot/db"
	"garrison-bot/event"
	sess "garrison-bot/session"
	"garrison-bot/store"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
)

// Intervals for the background jobs.
const (
	autosaveEvery     = 2 * time.Minute
	remoteBackupEvery = 30 * time.Minute
	voiceTickEvery    = time.Minute
	eventWatchEvery   = time.Minute
	boosterPruneEvery = time.Hour

	minSyncInterval = 30 * time.Minute
)

// App wires every component together. Constructed once at startup and
// passed into handlers and jobs; there is no package-level state.
type App struct {
	env     *Env
	session *sess.Session
	store   *store.Store
	events  *event.Manager
	roles   *RoleSyncer
	voice   *VoiceTracker
	board   *EventBoard

	cooldowns *Cooldowns

	announceChID string
	eventChID    string
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug("No .env file found")
	}

	env := NewEnv()
	if !env.IsProd {
		log.SetLevel(log.DebugLevel)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// The remote mirror is optional; without DATABASE_URL the bot runs on
	// the local snapshot alone. A failed connection downgrades, it does
	// not abort.
	var mirror store.Mirror
	if env.DatabaseURL != "" {
		database, err := db.Open(ctx, env.DatabaseURL)
		if err != nil {
			log.Warn("Remote mirror unavailable - continuing local-only", "err", err)
		} else {
			defer database.Close()
			mirror = db.NewSyncer(database)
		}
	}

	st := store.New(env.DataFile, mirror, minSyncInterval)
	events := event.NewManager(env.EventsFile)

	session := sess.NewSession(env.Token, env.ServerID)

	app := &App{
		env:       env,
		session:   session,
		store:     st,
		events:    events,
		roles:     NewRoleSyncer(session),
		voice:     NewVoiceTracker(),
		cooldowns: NewCooldowns(),
	}

	if err := session.Open(app.commands()); err != nil {
		log.Fatal("Failed to open the connection", "err", err)
	}

	if chID, err := session.GetChannelID(env.AnnounceCh); err != nil {
		log.Warn("Announce channel not found - promotions will be silent", "name", env.AnnounceCh)
	} else {
		app.announceChID = chID
	}
	if chID, err := session.GetChannelID(env.EventCh); err != nil {
		log.Warn("Event channel not found - operations will be silent", "name", env.EventCh)
	} else {
		app.eventChID = chID
	}
	app.board = NewEventBoard(session, app.eventChID)

	session.HandlerAdd("track-message", app.trackMessage)
	session.HandlerAdd("track-reaction", app.trackReaction)
	session.HandlerAdd("track-voice", app.trackVoiceState)

	now := time.Now()
	go schedule(ctx, "autosave", now.Add(autosaveEvery), autosaveEvery, app.autosave(ctx))
	go schedule(ctx, "remote-backup", now.Add(remoteBackupEvery), remoteBackupEvery, app.remoteBackup(ctx))
	go schedule(ctx, "voice-tick", now.Add(voiceTickEvery), voiceTickEvery, app.voiceTick)
	go schedule(ctx, "event-watch", now.Add(eventWatchEvery), eventWatchEvery, app.eventWatch)
	go schedule(ctx, "booster-prune", now.Add(boosterPruneEvery), boosterPruneEvery, app.pruneBoosters)

	log.Info("Bot is running", "server", env.ServerID)
	<-ctx.Done()

	// Final flush outside the cancelled context; the push deadline still
	// applies through the syncer's own timeout.
	log.Info("Shutting down")
	if _, err := st.Save(context.Background(), true); err != nil {
		log.Error("Final save failed", "err", err)
	}
	session.Close()
}
