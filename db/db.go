// Package db is the remote mirror: a Postgres database holding a
// best-effort copy of every member record plus an audit trail of sync
// runs. Local state is authoritative; everything here exists for
// durability and cross-process recovery.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	_ "github.com/lib/pq"
)

// Tx is the subset of database operations shared by *sql.DB and
// *sql.Tx, letting repositories run inside or outside a transaction.
type Tx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type DB struct {
	Conn *sql.DB
}

// Open connects to the Postgres database at url and bootstraps the
// schema.
func Open(ctx context.Context, url string) (*DB, error) {
	conn, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open failed: %v", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping failed: %v", err)
	}

	db := &DB{conn}
	if err := db.Init(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initialization failed: %v", err)
	}

	return db, nil
}

// Close closes the underlying database handle used for all connections.
func (db *DB) Close() {
	db.Conn.Close()
}

func (db *DB) Init(ctx context.Context) error {
	log.Info("Configuring database")
	var stmt string

	// Bootstrap table for mirrored member records
	stmt = `
	create table
		if not exists
		members (
			guild_id                text not null,
			user_id                 text not null,
			xp                      bigint not null default 0,
			rank                    text not null default '',
			rank_icon               text not null default '',
			messages_sent           bigint not null default 0,
			voice_minutes           bigint not null default 0,
			reactions_given         bigint not null default 0,
			reactions_received      bigint not null default 0,
			last_daily_claim        timestamptz not null default 'epoch',
			daily_streak            int not null default 0,
			current_activity_streak int not null default 0,
			longest_activity_streak int not null default 0,
			last_active_day         timestamptz not null default 'epoch',
			last_message            timestamptz not null default 'epoch',
			bio                     text not null default '',
			join_date               timestamptz not null default 'epoch',
			verified                bool not null default false,
			updated_at              timestamptz not null default now(),
			primary key (guild_id, user_id)
		);
	`
	if _, err := db.Conn.ExecContext(ctx, stmt); err != nil {
		log.Error("Failed to execute statement", "stmt", strings.ReplaceAll(stmt, "\t", "  "), "err", err)
		return err
	}

	// Bootstrap audit table for sync runs
	stmt = `
	create table
		if not exists
		sync_history (
			id           uuid primary key,
			synced_at    timestamptz not null default now(),
			member_count int not null,
			guild_count  int not null,
			ok           bool not null
		);
	`
	if _, err := db.Conn.ExecContext(ctx, stmt); err != nil {
		log.Error("Failed to execute statement", "stmt", strings.ReplaceAll(stmt, "\t", "  "), "err", err)
		return err
	}

	return nil
}

func (db *DB) Transaction(ctx context.Context, fn func(tx Tx) error) error {
	log.Debug("Transaction start")

	tx, err := db.Conn.BeginTx(ctx, nil)
	if err != nil {
		log.Debug("Transaction start failure", "err", err)
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		log.Debug("Transaction internal failure", "err", err)
		return err
	}

	if err := tx.Commit(); err != nil {
		log.Debug("Transaction commit failure", "err", err)
		return err
	}

	log.Debug("Transaction complete")
	return nil
}
