// Package db persists the ledger in a single-file SQLite database. The
// engine is a single writer, so the pool is pinned to one connection; every
// change set lands in one transaction and the full state is rebuilt from
// the tables at boot.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/bunkerwars/engine/pkg/ledger"
	"github.com/bunkerwars/engine/pkg/utils"
)

const (
	metaPhase      = "phase"
	metaRoundSeq   = "round_seq"
	metaHaltedAt   = "halted_at"
	metaHaltReason = "halt_reason"
)

type Store struct {
	db  *sql.DB
	log *zap.Logger
}

var _ ledger.Store = (*Store)(nil)

// Open creates or opens the database at path and prepares the schema.
func Open(path string, log *zap.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Single connection: the engine serializes writes anyway, and this
	// keeps SQLITE_BUSY out of the picture entirely.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if err := initPragmas(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	if err := initSchema(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{db: sqlDB, log: log}, nil
}

func initPragmas(db *sql.DB) error {
	// WAL for concurrent readers during writes; FULL sync because this is
	// the authoritative ledger, not a rebuildable index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS players (
			id TEXT PRIMARY KEY,
			bunker INTEGER NOT NULL,
			nominal INTEGER NOT NULL,
			deposit_index INTEGER NOT NULL,
			checkpoint_at INTEGER NOT NULL,
			last_acted_round INTEGER NOT NULL,
			member_ord INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_players_bunker_ord ON players(bunker, member_ord);`,
		`CREATE TABLE IF NOT EXISTS bunkers (
			id INTEGER PRIMARY KEY,
			nominal INTEGER NOT NULL,
			share_index INTEGER NOT NULL,
			last_round INTEGER NOT NULL,
			cleanup_evicted INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS rounds (
			number INTEGER PRIMARY KEY,
			start_at INTEGER NOT NULL,
			end_at INTEGER NOT NULL,
			emission INTEGER NOT NULL,
			resolved INTEGER NOT NULL DEFAULT 0,
			resolved_at INTEGER NOT NULL DEFAULT 0,
			withdrawn INTEGER NOT NULL DEFAULT 0,
			spoiled INTEGER NOT NULL DEFAULT 0,
			dust INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS audits (
			round INTEGER PRIMARY KEY,
			raw_json TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Apply writes one committed change set in a single transaction. Records
// are full-row upserts; audit rows are immutable and replays are ignored.
func (s *Store) Apply(ctx context.Context, cs *ledger.ChangeSet) error {
	if cs == nil || cs.Empty() {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range cs.Players {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO players (id, bunker, nominal, deposit_index, checkpoint_at, last_acted_round, member_ord)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				bunker=excluded.bunker,
				nominal=excluded.nominal,
				deposit_index=excluded.deposit_index,
				checkpoint_at=excluded.checkpoint_at,
				last_acted_round=excluded.last_acted_round,
				member_ord=excluded.member_ord`,
			p.ID, p.Bunker, int64(p.Nominal), int64(p.DepositIndex),
			p.CheckpointAt, int64(p.LastActedRound), p.MemberOrd)
		if err != nil {
			return fmt.Errorf("upsert player %s: %w", p.ID, err)
		}
	}
	for _, b := range cs.Bunkers {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO bunkers (id, nominal, share_index, last_round, cleanup_evicted)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				nominal=excluded.nominal,
				share_index=excluded.share_index,
				last_round=excluded.last_round,
				cleanup_evicted=excluded.cleanup_evicted`,
			b.ID, int64(b.Nominal), int64(b.ShareIndex), int64(b.LastRound), int64(b.CleanupEvicted))
		if err != nil {
			return fmt.Errorf("upsert bunker %d: %w", b.ID, err)
		}
	}
	for _, r := range cs.Rounds {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO rounds (number, start_at, end_at, emission, resolved, resolved_at, withdrawn, spoiled, dust)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(number) DO UPDATE SET
				resolved=excluded.resolved,
				resolved_at=excluded.resolved_at,
				withdrawn=excluded.withdrawn,
				spoiled=excluded.spoiled,
				dust=excluded.dust`,
			int64(r.Number), r.StartAt, r.EndAt, int64(r.Emission),
			utils.BoolToUInt8(r.Resolved), r.ResolvedAt,
			int64(r.Withdrawn), int64(r.Spoiled), int64(r.Dust))
		if err != nil {
			return fmt.Errorf("upsert round %d: %w", r.Number, err)
		}
	}
	if cs.Audit != nil {
		raw, err := json.Marshal(cs.Audit)
		if err != nil {
			return fmt.Errorf("marshal audit %d: %w", cs.Audit.Round, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO audits (round, raw_json, created_at) VALUES (?, ?, ?)
			ON CONFLICT(round) DO NOTHING`,
			int64(cs.Audit.Round), string(raw), cs.Audit.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert audit %d: %w", cs.Audit.Round, err)
		}
	}
	if cs.Meta != nil {
		kv := map[string]string{
			metaPhase:      cs.Meta.Phase.String(),
			metaRoundSeq:   strconv.FormatUint(cs.Meta.RoundSeq, 10),
			metaHaltedAt:   strconv.FormatInt(cs.Meta.HaltedAt, 10),
			metaHaltReason: cs.Meta.HaltReason,
		}
		for key, value := range kv {
			if _, err = tx.ExecContext(ctx, `
				INSERT INTO meta (key, value) VALUES (?, ?)
				ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
				key, value); err != nil {
				return fmt.Errorf("upsert meta %s: %w", key, err)
			}
		}
	}
	return tx.Commit()
}

// Load rebuilds the full ledger state. A fresh database loads as genesis:
// five live bunkers at base index and nothing else.
func (s *Store) Load(ctx context.Context) (*ledger.State, error) {
	st := ledger.NewState()

	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return nil, fmt.Errorf("load meta: %w", err)
	}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			rows.Close()
			return nil, err
		}
		switch key {
		case metaPhase:
			st.Meta.Phase = ledger.ParsePhase(value)
		case metaRoundSeq:
			st.Meta.RoundSeq, _ = strconv.ParseUint(value, 10, 64)
		case metaHaltedAt:
			st.Meta.HaltedAt, _ = strconv.ParseInt(value, 10, 64)
		case metaHaltReason:
			st.Meta.HaltReason = value
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT id, nominal, share_index, last_round, cleanup_evicted FROM bunkers`)
	if err != nil {
		return nil, fmt.Errorf("load bunkers: %w", err)
	}
	for rows.Next() {
		var id uint8
		var nominal, shareIndex, lastRound, evicted int64
		if err := rows.Scan(&id, &nominal, &shareIndex, &lastRound, &evicted); err != nil {
			rows.Close()
			return nil, err
		}
		if !ledger.ValidBunker(id) {
			continue
		}
		b := st.Bunkers[id]
		b.Nominal = uint64(nominal)
		b.ShareIndex = uint64(shareIndex)
		b.LastRound = uint64(lastRound)
		b.CleanupEvicted = uint64(evicted)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT id, bunker, nominal, deposit_index, checkpoint_at, last_acted_round, member_ord FROM players`)
	if err != nil {
		return nil, fmt.Errorf("load players: %w", err)
	}
	var positioned []*ledger.Player
	for rows.Next() {
		p := &ledger.Player{}
		var nominal, depositIndex, lastActed int64
		if err := rows.Scan(&p.ID, &p.Bunker, &nominal, &depositIndex, &p.CheckpointAt, &lastActed, &p.MemberOrd); err != nil {
			rows.Close()
			return nil, err
		}
		p.Nominal = uint64(nominal)
		p.DepositIndex = uint64(depositIndex)
		p.LastActedRound = uint64(lastActed)
		st.Players[p.ID] = p
		if p.Positioned() {
			positioned = append(positioned, p)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Membership lists come back in eviction order.
	sort.Slice(positioned, func(i, j int) bool {
		if positioned[i].Bunker != positioned[j].Bunker {
			return positioned[i].Bunker < positioned[j].Bunker
		}
		return positioned[i].MemberOrd < positioned[j].MemberOrd
	})
	for _, p := range positioned {
		b := st.Bunkers[p.Bunker]
		b.Members = append(b.Members, p.ID)
	}

	rows, err = s.db.QueryContext(ctx, `SELECT number, start_at, end_at, emission, resolved, resolved_at, withdrawn, spoiled, dust FROM rounds`)
	if err != nil {
		return nil, fmt.Errorf("load rounds: %w", err)
	}
	for rows.Next() {
		r := &ledger.Round{}
		var number, emission, withdrawn, spoiled, dust int64
		var resolved uint8
		if err := rows.Scan(&number, &r.StartAt, &r.EndAt, &emission, &resolved, &r.ResolvedAt, &withdrawn, &spoiled, &dust); err != nil {
			rows.Close()
			return nil, err
		}
		r.Number = uint64(number)
		r.Emission = uint64(emission)
		r.Resolved = resolved != 0
		r.Withdrawn = uint64(withdrawn)
		r.Spoiled = uint64(spoiled)
		r.Dust = uint64(dust)
		st.Rounds[r.Number] = r
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `SELECT raw_json FROM audits`)
	if err != nil {
		return nil, fmt.Errorf("load audits: %w", err)
	}
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			rows.Close()
			return nil, err
		}
		entry := &ledger.AuditEntry{}
		if err := json.Unmarshal([]byte(raw), entry); err != nil {
			rows.Close()
			return nil, fmt.Errorf("decode audit: %w", err)
		}
		st.Audits[entry.Round] = entry
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	s.log.Info("state loaded",
		zap.String("phase", st.Meta.Phase.String()),
		zap.Uint64("round_seq", st.Meta.RoundSeq),
		zap.Int("players", len(st.Players)),
		zap.Int("rounds", len(st.Rounds)))
	return st, nil
}
