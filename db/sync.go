package db

import (
	"context"
	"fmt"
	"time"

	"garrison-bot/models"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// PushTimeout bounds every remote push. Exceeding it is a normal
// failure, logged and retried on the next sync cycle.
const PushTimeout = 10 * time.Second

// syncRecord is one audit row in sync_history.
type syncRecord struct {
	ID          uuid.UUID `db:"id"`
	SyncedAt    time.Time `db:"synced_at"`
	MemberCount int       `db:"member_count"`
	GuildCount  int       `db:"guild_count"`
	OK          bool      `db:"ok"`
}

func (r *syncRecord) Scan() []any {
	return []any{&r.ID, &r.SyncedAt, &r.MemberCount, &r.GuildCount, &r.OK}
}

// Syncer mirrors the member map into Postgres. Each member's upsert is
// independent, so one failing row never corrupts another; every push
// appends an audit row recording the outcome.
type Syncer struct {
	db      *DB
	members Repository[*models.MemberRecord]
	history Repository[*syncRecord]
}

// NewSyncer creates a Syncer on top of an open database.
func NewSyncer(database *DB) *Syncer {
	members := makeRepository[*models.MemberRecord](database.Conn, "members", "guild_id", "user_id")
	members.Touch = "updated_at"

	return &Syncer{
		db:      database,
		members: members,
		history: makeRepository[*syncRecord](database.Conn, "sync_history", "id"),
	}
}

// Push upserts every member in the snapshot, then appends an audit row.
// Returns an error when any upsert failed; the caller treats this as
// non-fatal and relies on the next cycle to retry, since every push
// carries the full latest snapshot.
func (s *Syncer) Push(ctx context.Context, snapshot map[string]map[string]*models.MemberRecord) error {
	ctx, cancel := context.WithTimeout(ctx, PushTimeout)
	defer cancel()

	var total, failed int
	for gID, guildMembers := range snapshot {
		for uID, m := range guildMembers {
			total++
			if err := s.members.Upsert(ctx, m); err != nil {
				failed++
				log.Warn("Member upsert failed", "gID", gID, "uID", uID, "err", err)
			}
		}
	}

	audit := &syncRecord{
		ID:          uuid.New(),
		SyncedAt:    time.Now().UTC(),
		MemberCount: total,
		GuildCount:  len(snapshot),
		OK:          failed == 0,
	}
	if err := s.history.Create(ctx, audit); err != nil {
		log.Warn("Sync audit row failed", "err", err)
	}

	if failed > 0 {
		return fmt.Errorf("push incomplete: %d/%d members failed", failed, total)
	}

	log.Info("Snapshot pushed", "members", total, "guilds", len(snapshot))
	return nil
}

// Load returns all mirrored records for one guild, keyed by user ID.
// Used for cross-process recovery when the local snapshot is lost.
func (s *Syncer) Load(ctx context.Context, guildID string) (map[string]*models.MemberRecord, error) {
	rows, err := s.members.GetAllWhere(ctx, "guild_id = $1", guildID)
	if err != nil {
		return nil, err
	}

	out := make(map[string]*models.MemberRecord, len(rows))
	for _, m := range rows {
		out[m.UserID] = m
	}

	log.Info("Snapshot loaded from mirror", "gID", guildID, "members", len(out))
	return out, nil
}

// PruneOtherGuilds deletes mirrored rows for every guild except keep.
// Explicit data hygiene only - never invoked on the write path.
func (s *Syncer) PruneOtherGuilds(ctx context.Context, keep string) (int64, error) {
	n, err := s.members.DeleteWhere(ctx, "guild_id <> $1", keep)
	if err != nil {
		return 0, err
	}

	if n > 0 {
		log.Info("Foreign guild rows pruned", "kept", keep, "dropped", n)
	}
	return n, nil
}
