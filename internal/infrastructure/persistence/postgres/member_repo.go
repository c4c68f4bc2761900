package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dojo-hub/dojo-attendance-hub/internal/domain/attendance"
	"github.com/dojo-hub/dojo-attendance-hub/internal/domain/member"
	"github.com/dojo-hub/dojo-attendance-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MEMBER GATEWAY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// MemberRepository implements attendance.Gateway for a directly reachable
// PostgreSQL membership database. All queries are scoped to one tenant.
type MemberRepository struct {
	conn     *Connection
	tenantID member.TenantID
}

// NewMemberRepository creates a new MemberRepository.
func NewMemberRepository(conn *Connection, tenantID member.TenantID) *MemberRepository {
	return &MemberRepository{conn: conn, tenantID: tenantID}
}

var _ attendance.Gateway = (*MemberRepository)(nil)

// ─────────────────────────────────────────────────────────────────────────────
// Gateway Operations
// ─────────────────────────────────────────────────────────────────────────────

// FindMemberByCode resolves a kiosk code to exactly one member.
func (r *MemberRepository) FindMemberByCode(ctx context.Context, code member.MemberCode) (*member.Member, error) {
	ctx, cancel := context.WithTimeout(ctx, r.conn.queryTimeout())
	defer cancel()

	query := `
		SELECT id, tenant_id, member_code, display_name, belt, stripes,
			   last_check_in_at, created_at, updated_at
		FROM members
		WHERE tenant_id = $1 AND member_code = $2
	`

	rows, err := r.conn.Query(ctx, query, r.tenantID.String(), code.String())
	if err != nil {
		return nil, r.classify("FindMemberByCode", err)
	}
	defer rows.Close()

	var matches []*member.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, r.classify("FindMemberByCode", err)
	}

	switch len(matches) {
	case 0:
		return nil, shared.ErrMemberNotFound
	case 1:
		return matches[0], nil
	default:
		// The unique constraint makes this unreachable unless the schema
		// was changed upstream.
		return nil, shared.ErrAmbiguousCode
	}
}

// ListCheckIns returns the member's check-in records at or after since.
func (r *MemberRepository) ListCheckIns(ctx context.Context, memberID string, since time.Time) ([]attendance.CheckIn, error) {
	ctx, cancel := context.WithTimeout(ctx, r.conn.queryTimeout())
	defer cancel()

	query := `
		SELECT id, member_id, tenant_id, recorded_at
		FROM check_ins
		WHERE member_id = $1 AND ($2::timestamptz IS NULL OR recorded_at >= $2)
		ORDER BY recorded_at DESC
	`

	var sinceArg *time.Time
	if !since.IsZero() {
		sinceArg = &since
	}

	rows, err := r.conn.Query(ctx, query, memberID, sinceArg)
	if err != nil {
		return nil, r.classify("ListCheckIns", err)
	}
	defer rows.Close()

	var records []attendance.CheckIn
	for rows.Next() {
		var (
			rec      attendance.CheckIn
			tenantID string
		)
		if err := rows.Scan(&rec.ID, &rec.MemberID, &tenantID, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan check-in: %w", err)
		}
		rec.TenantID = member.TenantID(tenantID)
		rec.Timestamp = rec.Timestamp.UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, r.classify("ListCheckIns", err)
	}

	return records, nil
}

// InsertCheckIn appends one attendance record. Replaying an already-applied
// record is a no-op, which keeps offline sync retries idempotent.
func (r *MemberRepository) InsertCheckIn(ctx context.Context, rec attendance.CheckIn) error {
	ctx, cancel := context.WithTimeout(ctx, r.conn.queryTimeout())
	defer cancel()

	query := `
		INSERT INTO check_ins (id, member_id, tenant_id, recorded_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`

	_, err := r.conn.Exec(ctx, query,
		rec.ID,
		rec.MemberID,
		rec.TenantID.String(),
		rec.Timestamp.UTC(),
	)
	if err != nil {
		return r.classify("InsertCheckIn", err)
	}
	return nil
}

// UpdateMember applies a partial update to a member. The last check-in
// timestamp only ever moves forward so replayed writes cannot rewind it.
func (r *MemberRepository) UpdateMember(ctx context.Context, memberID string, patch attendance.MemberPatch) error {
	if patch.IsEmpty() {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.conn.queryTimeout())
	defer cancel()

	sets := make([]string, 0, 4)
	args := make([]any, 0, 5)
	idx := 1

	if patch.LastCheckInAt != nil {
		sets = append(sets, fmt.Sprintf(
			"last_check_in_at = GREATEST(COALESCE(last_check_in_at, 'epoch'::timestamptz), $%d)", idx))
		args = append(args, patch.LastCheckInAt.UTC())
		idx++
	}
	if patch.Belt != nil {
		sets = append(sets, fmt.Sprintf("belt = $%d", idx))
		args = append(args, patch.Belt.String())
		idx++
	}
	if patch.Stripes != nil {
		sets = append(sets, fmt.Sprintf("stripes = $%d", idx))
		args = append(args, *patch.Stripes)
		idx++
	}
	sets = append(sets, "updated_at = NOW()")

	query := fmt.Sprintf(
		"UPDATE members SET %s WHERE id = $%d AND tenant_id = $%d",
		strings.Join(sets, ", "), idx, idx+1,
	)
	args = append(args, memberID, r.tenantID.String())

	tag, err := r.conn.Exec(ctx, query, args...)
	if err != nil {
		return r.classify("UpdateMember", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrMemberNotFound
	}
	return nil
}

// Healthy reports whether the database is currently reachable.
func (r *MemberRepository) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, r.conn.queryTimeout())
	defer cancel()
	return r.conn.Ping(ctx) == nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

// classify maps driver failures onto the shared taxonomy: unreachable
// databases become transport errors so the registrar falls back to the
// offline queue, everything else stays a plain error.
func (r *MemberRepository) classify(op string, err error) error {
	if isUnreachable(err) {
		return shared.Transport(op, err)
	}
	return fmt.Errorf("postgres: %s: %w", op, err)
}

// scanMember reads one member row.
func scanMember(row interface{ Scan(...any) error }) (*member.Member, error) {
	var (
		m             member.Member
		tenantID      string
		code          string
		belt          string
		lastCheckInAt *time.Time
	)

	err := row.Scan(
		&m.ID,
		&tenantID,
		&code,
		&m.DisplayName,
		&belt,
		&m.Stripes,
		&lastCheckInAt,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.TenantID = member.TenantID(tenantID)
	m.Code = member.MemberCode(code)
	m.Belt = member.ParseBelt(belt)
	if lastCheckInAt != nil {
		ts := lastCheckInAt.UTC()
		m.LastCheckInAt = &ts
	}

	return &m, nil
}
