package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"banward/async"
	"banward/model"
	"banward/utils"
)

// Manager is the punishment store engine. Every operation runs as an
// asynchronous task on the injected executor and completes the returned
// future; nothing here ever blocks the caller's goroutine. Failures
// complete the future with an ErrPersistence-wrapped error.
type Manager struct {
	backend   Backend
	exec      *async.Executor
	log       *zap.SugaredLogger
	opTimeout time.Duration
}

// NewManager wires the engine to its backend and executor.
func NewManager(backend Backend, exec *async.Executor, log *zap.SugaredLogger, opTimeout time.Duration) *Manager {
	if opTimeout <= 0 {
		opTimeout = 5 * time.Second
	}
	return &Manager{backend: backend, exec: exec, log: log, opTimeout: opTimeout}
}

// punishmentRow mirrors the punishments table for sqlx scanning. UUID
// columns stay as raw strings so a malformed value degrades to an absent
// field instead of discarding the row.
type punishmentRow struct {
	ID            int64   `db:"id"`
	PunishedUUID  *string `db:"punished_uuid"`
	PunishedName  *string `db:"punished_name"`
	PunishedIP    *string `db:"punished_ip"`
	ModeratorUUID *string `db:"moderator_uuid"`
	ModeratorName string  `db:"moderator_name"`
	Type          string  `db:"type"`
	Reason        string  `db:"reason"`
	BanTime       int64   `db:"ban_time"`
	ExpireTime    int64   `db:"expire_time"`
	Active        bool    `db:"active"`
}

func (m *Manager) rowToRecord(row punishmentRow) model.PunishmentRecord {
	rec := model.PunishmentRecord{
		ID:         row.ID,
		IssuerName: row.ModeratorName,
		Kind:       model.PunishmentType(row.Type),
		Reason:     row.Reason,
		IssuedAt:   row.BanTime,
		ExpiresAt:  row.ExpireTime,
		Active:     row.Active,
	}
	rec.SubjectID = m.parseUUID(row.PunishedUUID, row.ID, "punished_uuid")
	rec.IssuerID = m.parseUUID(row.ModeratorUUID, row.ID, "moderator_uuid")
	if row.PunishedName != nil {
		rec.SubjectName = *row.PunishedName
	}
	if row.PunishedIP != nil {
		rec.SubjectIP = *row.PunishedIP
	}
	return rec
}

// parseUUID treats a malformed stored identity as absent; the record
// itself survives.
func (m *Manager) parseUUID(s *string, recordID int64, column string) *uuid.UUID {
	if s == nil || *s == "" {
		return nil
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		m.log.Warnw("malformed uuid in punishment record, treating as absent",
			"record_id", recordID, "column", column, "value", *s)
		return nil
	}
	return &id
}

func uuidColumn(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

func textColumn(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func familyNames(kind model.PunishmentType) []string {
	family := kind.Family()
	names := make([]string, len(family))
	for i, k := range family {
		names[i] = string(k)
	}
	return names
}

func (m *Manager) opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), m.opTimeout)
}

// AddPunishment inserts a new row and backfills the store-assigned id
// into rec. No uniqueness is enforced here; the caller is expected to
// have checked for an existing active punishment first, and the narrow
// race between that check and this insert is accepted.
func (m *Manager) AddPunishment(rec *model.PunishmentRecord) *async.Result[int64] {
	return async.Run(m.exec, func() (int64, error) {
		if !rec.Kind.Valid() {
			return 0, storeErr(nil, "unknown punishment type %q", rec.Kind)
		}
		if rec.IssuedAt == 0 {
			rec.IssuedAt = time.Now().UnixMilli()
		}
		if rec.ExpiresAt != 0 && rec.ExpiresAt <= rec.IssuedAt {
			return 0, storeErr(nil, "expire time %d is not after ban time %d", rec.ExpiresAt, rec.IssuedAt)
		}
		// Normalized in place so the caller's record matches what history
		// will hand back.
		rec.SubjectIP = utils.NormalizeIP(rec.SubjectIP)

		ctx, cancel := m.opCtx()
		defer cancel()
		conn, err := m.backend.Acquire(ctx)
		if err != nil {
			return 0, storeErr(err, "failed to acquire session for insert")
		}
		defer conn.Close()

		res, err := conn.ExecContext(ctx,
			`INSERT INTO punishments (punished_uuid, punished_name, punished_ip, moderator_uuid, moderator_name, type, reason, ban_time, expire_time, active)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uuidColumn(rec.SubjectID), textColumn(rec.SubjectName), textColumn(rec.SubjectIP),
			uuidColumn(rec.IssuerID), rec.IssuerName, string(rec.Kind), rec.Reason,
			rec.IssuedAt, rec.ExpiresAt, rec.Active)
		if err != nil {
			return 0, storeErr(err, "failed to insert punishment record")
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, storeErr(err, "failed to get last insert ID")
		}
		rec.ID = id
		return id, nil
	})
}

// DeactivatePunishment sets active = false for exactly one row by id.
// Zero rows affected is not an error: the id may not exist or may already
// be inactive, and this path is raced by explicit unbans and lazy expiry.
func (m *Manager) DeactivatePunishment(id int64) *async.Result[struct{}] {
	return async.Run(m.exec, func() (struct{}, error) {
		ctx, cancel := m.opCtx()
		defer cancel()
		conn, err := m.backend.Acquire(ctx)
		if err != nil {
			return struct{}{}, storeErr(err, "failed to acquire session for deactivation")
		}
		defer conn.Close()

		if _, err := conn.ExecContext(ctx,
			"UPDATE punishments SET active = ? WHERE id = ?", false, id); err != nil {
			return struct{}{}, storeErr(err, "failed to deactivate punishment %d", id)
		}
		return struct{}{}, nil
	})
}

// DeactivatePunishments bulk-deactivates every active record for the
// subject whose kind shares kind's family, so an unban lifts temp-bans
// and permanent bans alike. It returns the number of rows affected.
func (m *Manager) DeactivatePunishments(subjectID uuid.UUID, kind model.PunishmentType) *async.Result[int64] {
	return async.Run(m.exec, func() (int64, error) {
		query, args, err := sqlx.In(
			"UPDATE punishments SET active = ? WHERE punished_uuid = ? AND type IN (?) AND active = ?",
			false, subjectID.String(), familyNames(kind), true)
		if err != nil {
			return 0, storeErr(err, "failed to build deactivation query")
		}

		ctx, cancel := m.opCtx()
		defer cancel()
		conn, err := m.backend.Acquire(ctx)
		if err != nil {
			return 0, storeErr(err, "failed to acquire session for deactivation")
		}
		defer conn.Close()

		res, err := conn.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, storeErr(err, "failed to deactivate %s punishments for %s", kind, subjectID)
		}
		n, _ := res.RowsAffected()
		return n, nil
	})
}

// DeactivateIPPunishments bulk-deactivates the IP ban family for a
// normalized IP address.
func (m *Manager) DeactivateIPPunishments(ip string) *async.Result[int64] {
	return async.Run(m.exec, func() (int64, error) {
		query, args, err := sqlx.In(
			"UPDATE punishments SET active = ? WHERE punished_ip = ? AND type IN (?) AND active = ?",
			false, utils.NormalizeIP(ip), familyNames(model.TypeIPBan), true)
		if err != nil {
			return 0, storeErr(err, "failed to build ip deactivation query")
		}

		ctx, cancel := m.opCtx()
		defer cancel()
		conn, err := m.backend.Acquire(ctx)
		if err != nil {
			return 0, storeErr(err, "failed to acquire session for ip deactivation")
		}
		defer conn.Close()

		res, err := conn.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, storeErr(err, "failed to deactivate ip punishments for %s", ip)
		}
		n, _ := res.RowsAffected()
		return n, nil
	})
}

// ActivePunishment returns the most recent active, non-expired record in
// kind's family for the subject, or nil. If the newest matching record
// turns out to be expired at read time it is deactivated in the
// background and the caller gets nil: callers never see an expired
// record as active, regardless of whether that write lands.
func (m *Manager) ActivePunishment(subjectID uuid.UUID, kind model.PunishmentType) *async.Result[*model.PunishmentRecord] {
	return async.Run(m.exec, func() (*model.PunishmentRecord, error) {
		query, args, err := sqlx.In(
			"SELECT * FROM punishments WHERE punished_uuid = ? AND type IN (?) AND active = ? ORDER BY ban_time DESC LIMIT 1",
			subjectID.String(), familyNames(kind), true)
		if err != nil {
			return nil, storeErr(err, "failed to build active punishment query")
		}
		return m.activeLookup(query, args, fmt.Sprintf("subject %s kind %s", subjectID, kind))
	})
}

// ActiveIPPunishment is the IP-keyed equivalent of ActivePunishment and
// is only meaningful for the IP ban family; any other kind returns nil
// without touching the store.
func (m *Manager) ActiveIPPunishment(ip string, kind model.PunishmentType) *async.Result[*model.PunishmentRecord] {
	if !kind.IsIPFamily() {
		return async.Completed[*model.PunishmentRecord](nil, nil)
	}
	return async.Run(m.exec, func() (*model.PunishmentRecord, error) {
		normalized := utils.NormalizeIP(ip)
		query, args, err := sqlx.In(
			"SELECT * FROM punishments WHERE punished_ip = ? AND type IN (?) AND active = ? ORDER BY ban_time DESC LIMIT 1",
			normalized, familyNames(model.TypeIPBan), true)
		if err != nil {
			return nil, storeErr(err, "failed to build active ip punishment query")
		}
		return m.activeLookup(query, args, fmt.Sprintf("ip %s", normalized))
	})
}

func (m *Manager) activeLookup(query string, args []any, what string) (*model.PunishmentRecord, error) {
	ctx, cancel := m.opCtx()
	defer cancel()
	conn, err := m.backend.Acquire(ctx)
	if err != nil {
		return nil, storeErr(err, "failed to acquire session for active lookup")
	}
	defer conn.Close()

	var row punishmentRow
	err = conn.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr(err, "failed to query active punishment for %s", what)
	}

	rec := m.rowToRecord(row)
	if rec.IsExpired() {
		// Lazy expiry: flip the flag in the background, answer from the
		// expiry fact alone.
		m.deactivateExpired(rec.ID)
		return nil, nil
	}
	return &rec, nil
}

// deactivateExpired flips the flag from a fresh goroutine. The submit
// must never run on the worker holding the read: with a full queue it
// would block the worker inside its own task and wedge the pool.
func (m *Manager) deactivateExpired(id int64) {
	go func() {
		if _, err := m.DeactivatePunishment(id).Get(context.Background()); err != nil {
			m.log.Warnw("failed to deactivate expired punishment", "id", id, "error", err)
		}
	}()
}

// PunishmentHistory returns every record for the subject, active or not,
// newest first. History is a ledger, not a live-state view: no expiry
// filtering is applied.
func (m *Manager) PunishmentHistory(subjectID uuid.UUID) *async.Result[[]model.PunishmentRecord] {
	return m.selectRecords("SELECT * FROM punishments WHERE punished_uuid = ? ORDER BY ban_time DESC",
		[]any{subjectID.String()}, "history")
}

// IPPunishmentHistory returns the full ledger for a normalized IP.
func (m *Manager) IPPunishmentHistory(ip string) *async.Result[[]model.PunishmentRecord] {
	return m.selectRecords("SELECT * FROM punishments WHERE punished_ip = ? ORDER BY ban_time DESC",
		[]any{utils.NormalizeIP(ip)}, "ip history")
}

// AllActivePunishments returns every active=true row across the ban,
// mute and IP ban families without expiry filtering. This feeds the
// sweeper, whose job is precisely to find the expired ones.
func (m *Manager) AllActivePunishments() *async.Result[[]model.PunishmentRecord] {
	kinds := []string{
		string(model.TypeBan), string(model.TypeTempBan),
		string(model.TypeMute), string(model.TypeTempMute),
		string(model.TypeIPBan), string(model.TypeTempIPBan),
	}
	query, args, err := sqlx.In("SELECT * FROM punishments WHERE active = ? AND type IN (?)", true, kinds)
	if err != nil {
		return async.Completed[[]model.PunishmentRecord](nil, storeErr(err, "failed to build sweep query"))
	}
	return m.selectRecords(query, args, "all active")
}

// ActivePunishments returns active, non-expired records across an
// explicit kind set, newest first, for listing purposes.
func (m *Manager) ActivePunishments(kinds []model.PunishmentType) *async.Result[[]model.PunishmentRecord] {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	query, args, err := sqlx.In(
		"SELECT * FROM punishments WHERE type IN (?) AND active = ? AND (expire_time = 0 OR expire_time > ?) ORDER BY ban_time DESC",
		names, true, time.Now().UnixMilli())
	if err != nil {
		return async.Completed[[]model.PunishmentRecord](nil, storeErr(err, "failed to build listing query"))
	}
	return m.selectRecords(query, args, "active listing")
}

// AllPunishments pages through the full ledger, active records first,
// newest first within each group.
func (m *Manager) AllPunishments(limit, offset int) *async.Result[[]model.PunishmentRecord] {
	return m.selectRecords("SELECT * FROM punishments ORDER BY active DESC, ban_time DESC LIMIT ? OFFSET ?",
		[]any{limit, offset}, "paginated")
}

// PunishmentsBySubject pages through one subject's ledger.
func (m *Manager) PunishmentsBySubject(subjectID uuid.UUID, limit, offset int) *async.Result[[]model.PunishmentRecord] {
	return m.selectRecords("SELECT * FROM punishments WHERE punished_uuid = ? ORDER BY active DESC, ban_time DESC LIMIT ? OFFSET ?",
		[]any{subjectID.String(), limit, offset}, "paginated by subject")
}

func (m *Manager) selectRecords(query string, args []any, what string) *async.Result[[]model.PunishmentRecord] {
	return async.Run(m.exec, func() ([]model.PunishmentRecord, error) {
		ctx, cancel := m.opCtx()
		defer cancel()
		conn, err := m.backend.Acquire(ctx)
		if err != nil {
			return nil, storeErr(err, "failed to acquire session for %s query", what)
		}
		defer conn.Close()

		var rows []punishmentRow
		if err := conn.SelectContext(ctx, &rows, query, args...); err != nil {
			return nil, storeErr(err, "failed to run %s query", what)
		}
		records := make([]model.PunishmentRecord, len(rows))
		for i, row := range rows {
			records[i] = m.rowToRecord(row)
		}
		return records, nil
	})
}

// TotalPunishmentsCount counts every row in the ledger.
func (m *Manager) TotalPunishmentsCount() *async.Result[int] {
	return m.count("SELECT COUNT(*) FROM punishments", nil)
}

// PunishmentsCountBySubject counts one subject's ledger rows.
func (m *Manager) PunishmentsCountBySubject(subjectID uuid.UUID) *async.Result[int] {
	return m.count("SELECT COUNT(*) FROM punishments WHERE punished_uuid = ?", []any{subjectID.String()})
}

func (m *Manager) count(query string, args []any) *async.Result[int] {
	return async.Run(m.exec, func() (int, error) {
		ctx, cancel := m.opCtx()
		defer cancel()
		conn, err := m.backend.Acquire(ctx)
		if err != nil {
			return 0, storeErr(err, "failed to acquire session for count")
		}
		defer conn.Close()

		var n int
		if err := conn.GetContext(ctx, &n, query, args...); err != nil {
			return 0, storeErr(err, "failed to count punishments")
		}
		return n, nil
	})
}

// UpdatePlayerName rewrites the captured display name on every historical
// record for a subject: a denormalization repair after a rename, not a
// new write.
func (m *Manager) UpdatePlayerName(subjectID uuid.UUID, newName string) *async.Result[struct{}] {
	return async.Run(m.exec, func() (struct{}, error) {
		ctx, cancel := m.opCtx()
		defer cancel()
		conn, err := m.backend.Acquire(ctx)
		if err != nil {
			return struct{}{}, storeErr(err, "failed to acquire session for name update")
		}
		defer conn.Close()

		if _, err := conn.ExecContext(ctx,
			"UPDATE punishments SET punished_name = ? WHERE punished_uuid = ?",
			newName, subjectID.String()); err != nil {
			return struct{}{}, storeErr(err, "failed to update player name for %s", subjectID)
		}
		return struct{}{}, nil
	})
}

// SavePlayerIP upserts the last-known IP for a subject: one row per
// player, overwritten on every login.
func (m *Manager) SavePlayerIP(subjectID uuid.UUID, ip string) *async.Result[struct{}] {
	return async.Run(m.exec, func() (struct{}, error) {
		var query string
		switch m.backend.Dialect() {
		case "mysql":
			query = `INSERT INTO player_ips (player_uuid, ip_address, last_seen) VALUES (?, ?, ?)
				ON DUPLICATE KEY UPDATE ip_address = VALUES(ip_address), last_seen = VALUES(last_seen)`
		default:
			query = `INSERT INTO player_ips (player_uuid, ip_address, last_seen) VALUES (?, ?, ?)
				ON CONFLICT(player_uuid) DO UPDATE SET ip_address = excluded.ip_address, last_seen = excluded.last_seen`
		}

		ctx, cancel := m.opCtx()
		defer cancel()
		conn, err := m.backend.Acquire(ctx)
		if err != nil {
			return struct{}{}, storeErr(err, "failed to acquire session for ip save")
		}
		defer conn.Close()

		if _, err := conn.ExecContext(ctx, query,
			subjectID.String(), utils.NormalizeIP(ip), time.Now().UnixMilli()); err != nil {
			return struct{}{}, storeErr(err, "failed to save ip for %s", subjectID)
		}
		return struct{}{}, nil
	})
}

// LastKnownIP returns the most recently seen IP for a subject, or "".
func (m *Manager) LastKnownIP(subjectID uuid.UUID) *async.Result[string] {
	return async.Run(m.exec, func() (string, error) {
		ctx, cancel := m.opCtx()
		defer cancel()
		conn, err := m.backend.Acquire(ctx)
		if err != nil {
			return "", storeErr(err, "failed to acquire session for ip lookup")
		}
		defer conn.Close()

		var ip string
		err = conn.GetContext(ctx, &ip,
			"SELECT ip_address FROM player_ips WHERE player_uuid = ?", subjectID.String())
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		if err != nil {
			return "", storeErr(err, "failed to get last known ip for %s", subjectID)
		}
		return ip, nil
	})
}

// LastKnownUUID returns the identity most recently seen on ip, or nil.
func (m *Manager) LastKnownUUID(ip string) *async.Result[*uuid.UUID] {
	return m.uuidLookup(
		"SELECT player_uuid FROM player_ips WHERE ip_address = ? ORDER BY last_seen DESC LIMIT 1",
		[]any{utils.NormalizeIP(ip)})
}

// LastKnownUUIDByName resolves a display name against the punishment
// ledger: the newest record carrying that name and a subject identity.
// This is the fallback behind the identity cache, not the fast path.
func (m *Manager) LastKnownUUIDByName(name string) *async.Result[*uuid.UUID] {
	return m.uuidLookup(
		"SELECT punished_uuid FROM punishments WHERE punished_name = ? AND punished_uuid IS NOT NULL ORDER BY ban_time DESC LIMIT 1",
		[]any{name})
}

func (m *Manager) uuidLookup(query string, args []any) *async.Result[*uuid.UUID] {
	return async.Run(m.exec, func() (*uuid.UUID, error) {
		ctx, cancel := m.opCtx()
		defer cancel()
		conn, err := m.backend.Acquire(ctx)
		if err != nil {
			return nil, storeErr(err, "failed to acquire session for uuid lookup")
		}
		defer conn.Close()

		var raw string
		err = conn.GetContext(ctx, &raw, query, args...)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if err != nil {
			return nil, storeErr(err, "failed to look up uuid")
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			m.log.Warnw("malformed uuid in store, treating as absent", "value", raw)
			return nil, nil
		}
		return &id, nil
	})
}

// Healthy reports backend liveness for status output.
func (m *Manager) Healthy(ctx context.Context) bool {
	return m.backend.Healthy(ctx)
}
