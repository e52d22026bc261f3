// Package history implements the History Store (C3): an append-only
// message store plus a per-recipient inbox store, and the background
// cleaner that expires inbox rows outside the configured exception list
// (spec §4.3). Both stores are backed by jackc/pgx/v5, with schema managed
// by golang-migrate/migrate/v4 (migrate.go).
package history

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/kelpline/msgcore/internal/errs"
	"github.com/kelpline/msgcore/internal/seq"
	"github.com/kelpline/msgcore/internal/types"
)

// InboxRow is one row of the inbox store (spec §3 "Inbox entry").
type InboxRow struct {
	UserID   string
	ServerID string
	Seq      int64
	ReadFlag bool
	MsgType  types.MsgType
}

// Store is the C3 implementation. It also satisfies seq.Persister so C1's
// stores can write grown max values straight into seq_snapshots.
type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

// New wraps an already-connected pool. Call Migrate(dsn) once at process
// start before constructing the pool against the same database.
func New(pool *pgxpool.Pool, log *zap.Logger) *Store {
	return &Store{pool: pool, log: log}
}

// PersistMax implements seq.Persister, upserting the grown max for userID
// into the seq_snapshots row (spec §4.1 "Persistence coupling").
func (s *Store) PersistMax(ctx context.Context, scope seq.Scope, userID string, max int64) error {
	col := "send_max"
	if scope == seq.Recv {
		col = "recv_max"
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO seq_snapshots (user_id, `+col+`) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET `+col+` = GREATEST(seq_snapshots.`+col+`, EXCLUDED.`+col+`)`,
		userID, max)
	if err != nil {
		return errs.Wrap(err, errs.KindTransient, "history: persist seq max")
	}
	return nil
}

// LoadSnapshots returns every persisted sequence snapshot, used at startup
// recovery to reseed the in-memory sequence stores (spec §4.1).
func (s *Store) LoadSnapshots(ctx context.Context) (sendSnaps, recvSnaps []seq.Snapshot, err error) {
	rows, err := s.pool.Query(ctx, `SELECT user_id, send_max, recv_max FROM seq_snapshots`)
	if err != nil {
		return nil, nil, errs.Wrap(err, errs.KindTransient, "history: load seq snapshots")
	}
	defer rows.Close()

	for rows.Next() {
		var userID string
		var sendMax, recvMax int64
		if err := rows.Scan(&userID, &sendMax, &recvMax); err != nil {
			return nil, nil, errs.Wrap(err, errs.KindInternal, "history: scan seq snapshot")
		}
		sendSnaps = append(sendSnaps, seq.Snapshot{UserID: userID, Cur: sendMax, Max: sendMax})
		recvSnaps = append(recvSnaps, seq.Snapshot{UserID: userID, Cur: recvMax, Max: recvMax})
	}
	return sendSnaps, recvSnaps, rows.Err()
}

// SaveSingle writes one message row and its single inbox row in a
// transaction (spec §4.3 "one message row + one inbox row"). Idempotent on
// (server_id) for the message and (user_id, server_id) for the inbox row,
// so redelivery after a crash is a no-op (spec §4.7 "Failure model").
func (s *Store) SaveSingle(ctx context.Context, msg *types.Msg, inbox InboxRow) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errs.Wrap(err, errs.KindTransient, "history: begin tx")
	}
	defer tx.Rollback(ctx)

	if err := insertMessage(ctx, tx, msg); err != nil {
		return err
	}
	if err := insertInbox(ctx, tx, inbox); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return errs.Wrap(err, errs.KindTransient, "history: commit tx")
	}
	return nil
}

// SaveGroup writes the message row once plus N inbox rows, one per member
// (spec §4.3 "save_group"), all in one transaction. A transient failure
// retries the whole batch, up to 5 attempts in all with a growing pause
// between them; a non-transient error, or a cancelled ctx, ends the retries
// at once. After the last failed attempt the last error is returned.
func (s *Store) SaveGroup(ctx context.Context, msg *types.Msg, rows []InboxRow) error {
	const maxAttempts = 5
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return errs.Wrap(ctx.Err(), errs.KindTransient, "history: save_group context done")
			case <-time.After(time.Duration(attempt) * 50 * time.Millisecond):
			}
		}

		lastErr = s.saveGroupOnce(ctx, msg, rows)
		if lastErr == nil {
			return nil
		}
		if errs.Of(lastErr) != errs.KindTransient {
			return lastErr
		}
		s.log.Warn("history: save_group retrying", zap.Int("attempt", attempt), zap.Error(lastErr))
	}
	return lastErr
}

func (s *Store) saveGroupOnce(ctx context.Context, msg *types.Msg, rows []InboxRow) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errs.Wrap(err, errs.KindTransient, "history: begin tx")
	}
	defer tx.Rollback(ctx)

	if err := insertMessage(ctx, tx, msg); err != nil {
		return err
	}
	for _, row := range rows {
		if err := insertInbox(ctx, tx, row); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return errs.Wrap(err, errs.KindTransient, "history: commit tx")
	}
	return nil
}

func insertMessage(ctx context.Context, tx pgx.Tx, msg *types.Msg) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO messages (server_id, send_id, receiver_id, group_id, msg_type, content, send_time)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)
		 ON CONFLICT (server_id) DO NOTHING`,
		msg.ServerID, msg.SendID, nullable(msg.ReceiverID), nullable(msg.GroupID),
		int32(msg.MsgType), msg.Content, msg.SendTime)
	if err != nil {
		return errs.Wrap(err, errs.KindTransient, "history: insert message")
	}
	return nil
}

func insertInbox(ctx context.Context, tx pgx.Tx, row InboxRow) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO inbox (user_id, server_id, seq, read_flag, msg_type)
		 VALUES ($1,$2,$3,$4,$5)
		 ON CONFLICT (user_id, server_id) DO NOTHING`,
		row.UserID, row.ServerID, row.Seq, row.ReadFlag, int32(row.MsgType))
	if err != nil {
		return errs.Wrap(err, errs.KindTransient, "history: insert inbox")
	}
	return nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// MarkRead sets read_flag for the given (user, seq) rows (spec §4.7 step 4,
// §4.3 "mark_read").
func (s *Store) MarkRead(ctx context.Context, userID string, seqs []int64) error {
	if len(seqs) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE inbox SET read_flag = TRUE WHERE user_id = $1 AND seq = ANY($2)`,
		userID, seqs)
	if err != nil {
		return errs.Wrap(err, errs.KindTransient, "history: mark_read")
	}
	return nil
}

// Resync returns inbox rows for userID with seq greater than sinceSeq, for
// client catch-up after reconnect (spec §4.7 "Ordering guarantees").
func (s *Store) Resync(ctx context.Context, userID string, sinceSeq int64) ([]InboxRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, server_id, seq, read_flag, msg_type FROM inbox
		 WHERE user_id = $1 AND seq > $2 ORDER BY seq ASC`,
		userID, sinceSeq)
	if err != nil {
		return nil, errs.Wrap(err, errs.KindTransient, "history: resync query")
	}
	defer rows.Close()

	var out []InboxRow
	for rows.Next() {
		var r InboxRow
		var msgType int32
		if err := rows.Scan(&r.UserID, &r.ServerID, &r.Seq, &r.ReadFlag, &msgType); err != nil {
			return nil, errs.Wrap(err, errs.KindInternal, "history: resync scan")
		}
		r.MsgType = types.MsgType(msgType)
		out = append(out, r)
	}
	return out, rows.Err()
}

// CleanerConfig parametrizes the background inbox cleaner (spec §4.3,
// SPEC_FULL §3): rows older than MaxAge are deleted unless their msg_type
// is in Except.
type CleanerConfig struct {
	Interval time.Duration
	MaxAge   time.Duration
	Except   []types.MsgType
}

// RunCleaner blocks, deleting expired inbox rows on every tick until ctx is
// cancelled. Notification and Service are always kept regardless of Except
// (SPEC_FULL §3).
func (s *Store) RunCleaner(ctx context.Context, cfg CleanerConfig) {
	except := append([]types.MsgType{types.Notification, types.Service}, cfg.Except...)
	excludeInt := make([]int32, len(except))
	for i, t := range except {
		excludeInt[i] = int32(t)
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-cfg.MaxAge)
			tag, err := s.pool.Exec(ctx,
				`DELETE FROM inbox WHERE created_at < $1 AND NOT (msg_type = ANY($2))`,
				cutoff, excludeInt)
			if err != nil {
				s.log.Warn("history: cleaner delete failed", zap.Error(errors.WithStack(err)))
				continue
			}
			if n := tag.RowsAffected(); n > 0 {
				s.log.Info("history: cleaner removed expired inbox rows", zap.Int64("count", n))
			}
		}
	}
}
