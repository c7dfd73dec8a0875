// Package store is the single point of truth for per-member progression
// state. It arbitrates between the in-memory map, the durable local JSON
// snapshot, and the best-effort remote mirror. All activity handlers
// funnel mutations through AddXP so the XP/counter/rank triple never
// diverges.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"garrison-bot/models"
	"garrison-bot/rank"

	"github.com/charmbracelet/log"
)

// MessageCooldown is the minimum spacing between message-XP grants per
// member. Messages inside the window still count, they just earn no XP.
const MessageCooldown = 60 * time.Second

var ErrNegativeXP = errors.New("store: negative xp amount")

// Mirror receives full snapshots of the member map for durability in a
// remote store. Pushes are best-effort; a failed push is retried on the
// next save cycle, never rolled back into.
type Mirror interface {
	Push(ctx context.Context, snapshot map[string]map[string]*models.MemberRecord) error
}

// Store owns every MemberRecord, keyed guild → user. Mutations are
// serialized behind mu and never perform I/O while holding it; the
// flush path takes saveMu so two flushes cannot interleave writes to
// the same temp file.
type Store struct {
	mu      sync.Mutex
	records map[string]map[string]*models.MemberRecord
	dirty   bool

	path            string
	mirror          Mirror
	minSyncInterval time.Duration
	lastSync        time.Time

	saveMu sync.Mutex
}

// Gain reports the outcome of a single XP award.
type Gain struct {
	Amount      int
	PrevRank    string
	NewRank     string
	NewIcon     string
	RankChanged bool
}

// New creates a store backed by the snapshot file at path. A nil mirror
// disables remote pushes. The snapshot is loaded eagerly; a missing
// file is a fresh start, a corrupt one falls back to the .backup copy.
func New(path string, mirror Mirror, minSyncInterval time.Duration) *Store {
	s := &Store{
		records:         make(map[string]map[string]*models.MemberRecord),
		path:            path,
		mirror:          mirror,
		minSyncInterval: minSyncInterval,
	}
	s.load()

	return s
}

// load reads the snapshot, falling back to the .backup copy whether the
// main file is corrupt or missing. A missing main file is not always a
// fresh start: a crash between the two replacement renames leaves the
// previous state under .backup only.
func (s *Store) load() {
	err := s.loadFile(s.path)
	if err == nil {
		return
	}
	if !errors.Is(err, os.ErrNotExist) {
		log.Error("Snapshot load failed - trying backup", "path", s.path, "err", err)
	}

	if err := s.loadFile(s.path + ".backup"); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Error("Backup load failed - starting empty", "path", s.path+".backup", "err", err)
	}
}

func (s *Store) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var records map[string]map[string]*models.MemberRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return fmt.Errorf("decode %s: %v", path, err)
	}

	count := 0
	for gID, members := range records {
		for uID, m := range members {
			// Key fields win over whatever the snapshot carried, and rank is
			// re-derived from XP in case the ladder changed underneath it.
			m.GuildID, m.UserID = gID, uID
			heal(m)
			count++
		}
	}

	s.records = records
	log.Info("Snapshot loaded", "path", path, "guilds", len(records), "members", count)
	return nil
}

// heal re-derives rank and icon from XP. Any drift in the stored rank,
// whatever its source, is corrected silently.
func heal(m *models.MemberRecord) {
	t := rank.ForXP(m.XP)
	m.Rank, m.RankIcon = t.Name, t.Icon
}

func (s *Store) getOrCreateLocked(guildID string, userID string, now time.Time) *models.MemberRecord {
	members, ok := s.records[guildID]
	if !ok {
		members = make(map[string]*models.MemberRecord)
		s.records[guildID] = members
	}

	m, ok := members[userID]
	if !ok {
		m = models.NewMemberRecord(guildID, userID, now)
		members[userID] = m
		s.dirty = true
		log.Info("Member record created", "gID", guildID, "uID", userID)
	}

	heal(m)
	return m
}

// GetOrCreate returns the record for the given member, creating a
// zero-valued one on first sight. Rank is healed from XP on every call.
func (s *Store) GetOrCreate(guildID string, userID string) *models.MemberRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.getOrCreateLocked(guildID, userID, time.Now())
}

// View returns a copy of the member's record for display purposes. The
// second return is false when the member has no record yet.
func (s *Store) View(guildID string, userID string) (models.MemberRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	members, ok := s.records[guildID]
	if !ok {
		return models.MemberRecord{}, false
	}
	m, ok := members[userID]
	if !ok {
		return models.MemberRecord{}, false
	}

	heal(m)
	cp := *m
	cp.Boosters = slices.Clone(m.Boosters)
	return cp, true
}

// AddXP is the single mutation path for all activity. It increments the
// activity counter for kind, applies tier and booster multipliers to
// base, advances the member's activity streak, and reports whether a
// tier boundary was crossed. The caller is responsible for role sync
// when RankChanged is set.
func (s *Store) AddXP(guildID string, userID string, kind models.ActivityKind, base int, now time.Time) (Gain, error) {
	if base < 0 {
		return Gain{}, ErrNegativeXP
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m := s.getOrCreateLocked(guildID, userID, now)
	return s.addXPLocked(m, kind, base, now), nil
}

func (s *Store) addXPLocked(m *models.MemberRecord, kind models.ActivityKind, base int, now time.Time) Gain {
	kind.Count(m)

	// Message XP is cooldown-gated; the message itself still counts.
	if kind == models.ActivityMessage {
		if now.Sub(m.LastMessage) < MessageCooldown {
			base = 0
		}
		m.LastMessage = now
	}

	prev := rank.ForXP(m.XP)
	amount := rank.ApplyGain(base, prev, m, now)
	m.XP += amount

	s.touchActivityStreak(m, now)

	heal(m)
	s.dirty = true

	g := Gain{
		Amount:      amount,
		PrevRank:    prev.Name,
		NewRank:     m.Rank,
		NewIcon:     m.RankIcon,
		RankChanged: m.Rank != prev.Name,
	}
	if g.RankChanged {
		log.Info("Rank changed", "gID", m.GuildID, "uID", m.UserID, "from", g.PrevRank, "to", g.NewRank, "xp", m.XP)
	}

	return g
}

// touchActivityStreak advances the general activity streak. Activity on
// consecutive UTC days extends it; a gap over one day restarts it.
func (s *Store) touchActivityStreak(m *models.MemberRecord, now time.Time) {
	today := utcDate(now)
	if m.LastActiveDay.Equal(today) {
		return
	}

	if !m.LastActiveDay.IsZero() && daysBetween(m.LastActiveDay, today) == 1 {
		m.CurrentActivityStreak++
	} else {
		m.CurrentActivityStreak = 1
	}
	m.LastActiveDay = today

	if m.CurrentActivityStreak > m.LongestActivityStreak {
		m.LongestActivityStreak = m.CurrentActivityStreak
	}
}

// SortKey selects the counter a leaderboard is ordered by.
type SortKey int

const (
	ByXP SortKey = iota
	ByMessages
	ByVoiceMinutes
	ByReactionsGiven
	ByReactionsReceived
	ByDailyStreak
)

func (k SortKey) String() string {
	switch k {
	case ByXP:
		return "xp"
	case ByMessages:
		return "messages"
	case ByVoiceMinutes:
		return "voice"
	case ByReactionsGiven:
		return "reactions_given"
	case ByReactionsReceived:
		return "reactions_received"
	case ByDailyStreak:
		return "streak"
	}

	return "unknown"
}

func (k SortKey) value(m *models.MemberRecord) int {
	switch k {
	case ByXP:
		return m.XP
	case ByMessages:
		return m.MessagesSent
	case ByVoiceMinutes:
		return m.VoiceMinutes
	case ByReactionsGiven:
		return m.ReactionsGiven
	case ByReactionsReceived:
		return m.ReactionsReceived
	case ByDailyStreak:
		return m.DailyStreak
	}

	return 0
}

// Row is one leaderboard entry.
type Row struct {
	UserID string
	Value  int
	Record models.MemberRecord
}

// Leaderboard returns up to limit members of the guild with any
// recorded activity, ordered descending by the given key. Ties keep
// map-iteration order, which is acceptable for a social leaderboard.
func (s *Store) Leaderboard(guildID string, key SortKey, limit int) []Row {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := make([]Row, 0, len(s.records[guildID]))
	for uID, m := range s.records[guildID] {
		if !m.HasActivity() {
			continue
		}
		heal(m)
		cp := *m
		cp.Boosters = slices.Clone(m.Boosters)
		rows = append(rows, Row{uID, key.value(m), cp})
	}

	slices.SortFunc(rows, func(a Row, b Row) int {
		if a.Value < b.Value {
			return 1
		} else if a.Value > b.Value {
			return -1
		}

		return 0
	})

	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}

	return rows
}

// UserRanks returns every member's current rank name for the guild,
// healed from XP. Used by the bulk role-fix sweep.
func (s *Store) UserRanks(guildID string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string, len(s.records[guildID]))
	for uID, m := range s.records[guildID] {
		heal(m)
		out[uID] = m.Rank
	}

	return out
}

// AverageMessages returns the mean message count across members of the
// guild with any activity. 0 for an empty guild.
func (s *Store) AverageMessages(guildID string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total, n int
	for _, m := range s.records[guildID] {
		if !m.HasActivity() {
			continue
		}
		total += m.MessagesSent
		n++
	}

	if n == 0 {
		return 0
	}

	return float64(total) / float64(n)
}

// ScheduleSave marks the store dirty for the next batched flush. Never
// blocks.
func (s *Store) ScheduleSave() {
	s.mu.Lock()
	s.dirty = true
	s.mu.Unlock()
}

// Dirty reports whether unsaved changes exist.
func (s *Store) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.dirty
}

// Save flushes the member map to the local snapshot and, when force is
// set or the minimum sync interval has elapsed, pushes the same data to
// the remote mirror.
//
// A local write failure is returned as err (with remoteOK false, since
// no push is attempted) and leaves both the previous snapshot file and
// the in-memory state intact. A remote push failure is logged and
// reported through remoteOK only; the local snapshot is the primary
// durability guarantee and is never rolled back.
func (s *Store) Save(ctx context.Context, force bool) (remoteOK bool, err error) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	snapshot := s.cloneRecords()

	if err := writeSnapshot(s.path, snapshot); err != nil {
		log.Error("Snapshot write failed", "path", s.path, "err", err)
		return false, err
	}

	s.mu.Lock()
	s.dirty = false
	due := force || s.mirror != nil && time.Since(s.lastSync) >= s.minSyncInterval
	s.mu.Unlock()

	if s.mirror == nil || !due {
		return true, nil
	}

	if err := s.mirror.Push(ctx, snapshot); err != nil {
		log.Warn("Remote mirror push failed", "err", err)
		return false, nil
	}

	s.mu.Lock()
	s.lastSync = time.Now()
	s.mu.Unlock()

	log.Info("Remote mirror updated", "guilds", len(snapshot))
	return true, nil
}

// cloneRecords deep-copies the member map so serialization and the
// mirror push run on a stable view without holding the record lock.
func (s *Store) cloneRecords() map[string]map[string]*models.MemberRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]map[string]*models.MemberRecord, len(s.records))
	for gID, members := range s.records {
		cp := make(map[string]*models.MemberRecord, len(members))
		for uID, m := range members {
			heal(m)
			mc := *m
			mc.Boosters = slices.Clone(m.Boosters)
			cp[uID] = &mc
		}
		out[gID] = cp
	}

	return out
}

// writeSnapshot writes the member map atomically: marshal to a temp
// file, keep the previous snapshot as .backup, then rename into place.
// A failed write never corrupts the existing snapshot.
func writeSnapshot(path string, records map[string]map[string]*models.MemberRecord) error {
	raw, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil {
		if err := os.Rename(path, path+".backup"); err != nil {
			return err
		}
	}

	return os.Rename(tmp.Name(), path)
}

// ReplaceGuild swaps in a full member map for one guild, healing each
// record. Used when recovering state from the remote mirror.
func (s *Store) ReplaceGuild(guildID string, members map[string]*models.MemberRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for uID, m := range members {
		m.GuildID, m.UserID = guildID, uID
		heal(m)
	}
	s.records[guildID] = members
	s.dirty = true
	log.Info("Guild records replaced", "gID", guildID, "members", len(members))
}

// utcDate truncates t to its UTC calendar day.
func utcDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// daysBetween counts whole calendar days from a to b. Both are assumed
// to be UTC midnights.
func daysBetween(a time.Time, b time.Time) int {
	return int(b.Sub(a) / (24 * time.Hour))
}
