package main

import (
	"os"

	"github.com/charmbracelet/log"
)

type Env struct {
	IsProd   bool
	Token    string
	ServerID string

	// Postgres connection string for the remote mirror. Empty disables
	// remote sync entirely.
	DatabaseURL string

	DataFile   string
	EventsFile string

	AnnounceCh string
	EventCh    string
}

func NewEnv() *Env {
	log.Info("Setting up environment")

	env := &Env{
		DataFile:   "garrison_members.json",
		EventsFile: "garrison_events.json",
		AnnounceCh: "barracks",
		EventCh:    "war-room",
	}

	if v, ok := os.LookupEnv("PROD"); ok && v == "1" {
		env.IsProd = true
	}

	if v, ok := os.LookupEnv("DISCORD_BOT_TOKEN"); ok {
		env.Token = v
	} else {
		log.Fatal("DISCORD_BOT_TOKEN not set")
	}
	if v, ok := os.LookupEnv("SERVER_ID"); ok {
		env.ServerID = v
	} else {
		log.Fatal("SERVER_ID not set")
	}

	if v, ok := os.LookupEnv("DATABASE_URL"); ok {
		env.DatabaseURL = v
	}
	if v, ok := os.LookupEnv("DATA_FILE"); ok {
		env.DataFile = v
	}
	if v, ok := os.LookupEnv("EVENTS_FILE"); ok {
		env.EventsFile = v
	}
	if v, ok := os.LookupEnv("ANNOUNCE_CHANNEL"); ok {
		env.AnnounceCh = v
	}
	if v, ok := os.LookupEnv("EVENT_CHANNEL"); ok {
		env.EventCh = v
	}

	return env
}
