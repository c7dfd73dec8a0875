package main

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
)

// schedule registers a job (i.e. callback) to be run repeatedly. The
// first invocation happens at start, from where on out the job is
// invoked at the given interval.
//
// The job is always run at least once, when the start time elapses. If
// the start time is in the past, the first invocation occurs
// immediately. If interval is 0, the function exits after this first
// invocation. Cancelling ctx stops the loop before its next iteration;
// iteration bodies are short and run to completion.
func schedule(ctx context.Context, name string, start time.Time, interval time.Duration, job func()) {
	delay := time.Until(start)
	log.Info("Scheduling job", "job", name, "delay", delay.Round(time.Second), "interval", interval)

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	// First job invocation after initial delay.
	log.Debug("Running job", "job", name)
	job()

	if interval == 0 {
		return
	}

	// Repeat invocations on every tick.
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Job stopped", "job", name)
			return
		case <-ticker.C:
			log.Debug("Running job", "job", name)
			job()
		}
	}
}

// autosave flushes the store when dirty. Remote pushes piggyback on the
// flush only once the sync interval has elapsed; the forced backup job
// below covers the rest.
func (app *App) autosave(ctx context.Context) func() {
	return func() {
		if !app.store.Dirty() {
			return
		}
		if _, err := app.store.Save(ctx, false); err != nil {
			log.Error("Autosave failed", "err", err)
		}
	}
}

// remoteBackup forces a full snapshot push to the mirror.
func (app *App) remoteBackup(ctx context.Context) func() {
	return func() {
		remoteOK, err := app.store.Save(ctx, true)
		if err != nil {
			log.Error("Backup save failed", "err", err)
		} else if !remoteOK {
			log.Warn("Remote backup incomplete - will retry next cycle")
		}
	}
}

// eventWatch ends the running event at its deadline and posts periodic
// progress updates in between.
func (app *App) eventWatch() {
	guildID := app.session.ServerID
	now := time.Now()

	if app.events.ShouldEnd(guildID, now) {
		app.finishEvent(now)
		return
	}

	if app.events.ShouldBroadcast(guildID, now) {
		ev, ok := app.events.Snapshot(guildID)
		if !ok {
			return
		}
		if err := app.board.Update(ev, now); err == nil {
			app.events.MarkBroadcast(guildID, now)
		}
	}
}

// pruneBoosters drops expired boosters. Housekeeping only; expired
// boosters are already inert.
func (app *App) pruneBoosters() {
	app.store.PruneBoosters(time.Now())
}
