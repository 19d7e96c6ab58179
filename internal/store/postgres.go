package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"innovation/engine/internal/lifecycle"
)

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries runs statements against either the pool or an open transaction.
type Queries struct {
	db dbtx
}

type PostgresStore struct {
	*Queries
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{Queries: &Queries{db: db}, db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InTx runs fn inside one transaction. Any error from fn rolls back; commit
// failures caused by serialization races surface as ErrConflict.
func (s *PostgresStore) InTx(ctx context.Context, fn func(*Queries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&Queries{db: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return translate(err, "commit tx")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// =============================================================================
// Innovations
// =============================================================================

const innovationColumns = `
	id, name, status, current_assessment_id, current_major_assessment_id,
	created_by_role, updated_by_role, created_at, updated_at
`

func scanInnovation(row rowScanner) (Innovation, error) {
	var item Innovation
	err := row.Scan(
		&item.ID,
		&item.Name,
		&item.Status,
		&item.CurrentAssessmentID,
		&item.CurrentMajorAssessmentID,
		&item.CreatedByRole,
		&item.UpdatedByRole,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	return item, err
}

func (q *Queries) InsertInnovation(ctx context.Context, item Innovation) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO innovation (id, name, status, created_by_role, updated_by_role)
		VALUES ($1, $2, $3, $4, $4)
	`, item.ID, item.Name, item.Status, item.CreatedByRole)
	return translate(err, "insert innovation")
}

func (q *Queries) GetInnovation(ctx context.Context, innovationID string) (Innovation, error) {
	item, err := scanInnovation(q.db.QueryRowContext(ctx, `
		SELECT `+innovationColumns+`
		FROM innovation
		WHERE id = $1 AND deleted_at IS NULL
	`, innovationID))
	if err != nil {
		return Innovation{}, translate(err, "get innovation")
	}
	return item, nil
}

// LockInnovation reads the innovation with a row lock so that per-innovation
// batches (assessment start, suggestion runs) serialize.
func (q *Queries) LockInnovation(ctx context.Context, innovationID string) (Innovation, error) {
	item, err := scanInnovation(q.db.QueryRowContext(ctx, `
		SELECT `+innovationColumns+`
		FROM innovation
		WHERE id = $1 AND deleted_at IS NULL
		FOR UPDATE
	`, innovationID))
	if err != nil {
		return Innovation{}, translate(err, "lock innovation")
	}
	return item, nil
}

func (q *Queries) UpdateInnovationStatus(ctx context.Context, innovationID string, from, to lifecycle.InnovationStatus, role string) error {
	result, err := q.db.ExecContext(ctx, `
		UPDATE innovation
		SET status = $3, updated_by_role = $4, updated_at = NOW()
		WHERE id = $1 AND status = $2 AND deleted_at IS NULL
	`, innovationID, from, to, role)
	if err != nil {
		return translate(err, "update innovation status")
	}
	return expectOneRow(result, "update innovation status")
}

func (q *Queries) SetInnovationAssessmentPointers(ctx context.Context, innovationID, currentAssessmentID string, currentMajorAssessmentID *string, role string) error {
	result, err := q.db.ExecContext(ctx, `
		UPDATE innovation
		SET current_assessment_id = $2,
			current_major_assessment_id = COALESCE($3, current_major_assessment_id),
			updated_by_role = $4,
			updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`, innovationID, currentAssessmentID, currentMajorAssessmentID, role)
	if err != nil {
		return translate(err, "set assessment pointers")
	}
	return expectOneRow(result, "set assessment pointers")
}

func (q *Queries) ListInnovationIDs(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id FROM innovation WHERE deleted_at IS NULL ORDER BY id
	`)
	if err != nil {
		return nil, translate(err, "list innovations")
	}
	defer rows.Close()
	return scanStrings(rows, "innovation id")
}

// =============================================================================
// Assessments
// =============================================================================

const assessmentColumns = `
	id, innovation_id, major_version, minor_version, previous_assessment_id,
	started_at, finished_at, created_by_role, updated_by_role
`

func scanAssessment(row rowScanner) (Assessment, error) {
	var item Assessment
	err := row.Scan(
		&item.ID,
		&item.InnovationID,
		&item.MajorVersion,
		&item.MinorVersion,
		&item.PreviousAssessmentID,
		&item.StartedAt,
		&item.FinishedAt,
		&item.CreatedByRole,
		&item.UpdatedByRole,
	)
	return item, err
}

func (q *Queries) InsertAssessment(ctx context.Context, item Assessment) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO innovation_assessment
			(id, innovation_id, major_version, minor_version, previous_assessment_id, started_at, created_by_role, updated_by_role)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`, item.ID, item.InnovationID, item.MajorVersion, item.MinorVersion, item.PreviousAssessmentID, item.StartedAt, item.CreatedByRole)
	return translate(err, "insert assessment")
}

func (q *Queries) GetAssessment(ctx context.Context, assessmentID string) (Assessment, error) {
	item, err := scanAssessment(q.db.QueryRowContext(ctx, `
		SELECT `+assessmentColumns+`
		FROM innovation_assessment
		WHERE id = $1
	`, assessmentID))
	if err != nil {
		return Assessment{}, translate(err, "get assessment")
	}
	return item, nil
}

// GetOpenAssessment returns the unfinished assessment, or nil when none is open.
func (q *Queries) GetOpenAssessment(ctx context.Context, innovationID string) (*Assessment, error) {
	item, err := scanAssessment(q.db.QueryRowContext(ctx, `
		SELECT `+assessmentColumns+`
		FROM innovation_assessment
		WHERE innovation_id = $1 AND finished_at IS NULL
	`, innovationID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(err, "get open assessment")
	}
	return &item, nil
}

// GetLatestAssessment returns the highest version, or nil for a fresh innovation.
func (q *Queries) GetLatestAssessment(ctx context.Context, innovationID string) (*Assessment, error) {
	item, err := scanAssessment(q.db.QueryRowContext(ctx, `
		SELECT `+assessmentColumns+`
		FROM innovation_assessment
		WHERE innovation_id = $1
		ORDER BY major_version DESC, minor_version DESC
		LIMIT 1
	`, innovationID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(err, "get latest assessment")
	}
	return &item, nil
}

func (q *Queries) FinishAssessment(ctx context.Context, assessmentID string, at time.Time, role string) error {
	result, err := q.db.ExecContext(ctx, `
		UPDATE innovation_assessment
		SET finished_at = $2, updated_by_role = $3
		WHERE id = $1 AND finished_at IS NULL
	`, assessmentID, at, role)
	if err != nil {
		return translate(err, "finish assessment")
	}
	return expectOneRow(result, "finish assessment")
}

func (q *Queries) ReplaceAssessmentUnits(ctx context.Context, assessmentID string, unitIDs []string) error {
	if _, err := q.db.ExecContext(ctx, `
		DELETE FROM innovation_assessment_organisation_unit WHERE assessment_id = $1
	`, assessmentID); err != nil {
		return translate(err, "clear assessment units")
	}
	for _, unitID := range unitIDs {
		if _, err := q.db.ExecContext(ctx, `
			INSERT INTO innovation_assessment_organisation_unit (assessment_id, organisation_unit_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, assessmentID, unitID); err != nil {
			return translate(err, "insert assessment unit")
		}
	}
	return nil
}

func (q *Queries) ListAssessmentUnits(ctx context.Context, assessmentID string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT organisation_unit_id
		FROM innovation_assessment_organisation_unit
		WHERE assessment_id = $1
		ORDER BY organisation_unit_id
	`, assessmentID)
	if err != nil {
		return nil, translate(err, "list assessment units")
	}
	defer rows.Close()
	return scanStrings(rows, "assessment unit")
}

func (q *Queries) InsertReassessmentRequest(ctx context.Context, item ReassessmentRequest) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO innovation_reassessment_request (id, innovation_id, assessment_id, reason, created_by_role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, item.ID, item.InnovationID, item.AssessmentID, item.Reason, item.CreatedByRole, item.CreatedAt)
	return translate(err, "insert reassessment request")
}

func (q *Queries) HasReassessmentRequest(ctx context.Context, innovationID, assessmentID string) (bool, error) {
	var exists bool
	err := q.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM innovation_reassessment_request
			WHERE innovation_id = $1 AND assessment_id = $2
		)
	`, innovationID, assessmentID).Scan(&exists)
	if err != nil {
		return false, translate(err, "check reassessment request")
	}
	return exists, nil
}

// =============================================================================
// Organisation units and sharing
// =============================================================================

func (q *Queries) GetOrganisationUnit(ctx context.Context, unitID string) (OrganisationUnit, error) {
	var item OrganisationUnit
	err := q.db.QueryRowContext(ctx, `
		SELECT id, organisation_id, name FROM organisation_unit WHERE id = $1
	`, unitID).Scan(&item.ID, &item.OrganisationID, &item.Name)
	if err != nil {
		return OrganisationUnit{}, translate(err, "get organisation unit")
	}
	return item, nil
}

func (q *Queries) ListOrganisationUnits(ctx context.Context, unitIDs []string) ([]OrganisationUnit, error) {
	if len(unitIDs) == 0 {
		return nil, nil
	}
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, organisation_id, name
		FROM organisation_unit
		WHERE id = ANY($1)
		ORDER BY id
	`, unitIDs)
	if err != nil {
		return nil, translate(err, "list organisation units")
	}
	defer rows.Close()

	items := make([]OrganisationUnit, 0, len(unitIDs))
	for rows.Next() {
		var item OrganisationUnit
		if err := rows.Scan(&item.ID, &item.OrganisationID, &item.Name); err != nil {
			return nil, fmt.Errorf("scan organisation unit: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate organisation units: %w", err)
	}
	return items, nil
}

func (q *Queries) ListOrganisationUnitIDs(ctx context.Context, organisationID string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id FROM organisation_unit WHERE organisation_id = $1 ORDER BY id
	`, organisationID)
	if err != nil {
		return nil, translate(err, "list organisation unit ids")
	}
	defer rows.Close()
	return scanStrings(rows, "organisation unit id")
}

func (q *Queries) ListSharedOrganisationIDs(ctx context.Context, innovationID string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT organisation_id FROM innovation_share WHERE innovation_id = $1 ORDER BY organisation_id
	`, innovationID)
	if err != nil {
		return nil, translate(err, "list shares")
	}
	defer rows.Close()
	return scanStrings(rows, "share")
}

func (q *Queries) InsertShare(ctx context.Context, innovationID, organisationID, role string) (bool, error) {
	result, err := q.db.ExecContext(ctx, `
		INSERT INTO innovation_share (innovation_id, organisation_id, created_by_role)
		VALUES ($1, $2, $3)
		ON CONFLICT (innovation_id, organisation_id) DO NOTHING
	`, innovationID, organisationID, role)
	if err != nil {
		return false, translate(err, "insert share")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert share: rows affected: %w", err)
	}
	return affected > 0, nil
}

func (q *Queries) DeleteShare(ctx context.Context, innovationID, organisationID string) (bool, error) {
	result, err := q.db.ExecContext(ctx, `
		DELETE FROM innovation_share WHERE innovation_id = $1 AND organisation_id = $2
	`, innovationID, organisationID)
	if err != nil {
		return false, translate(err, "delete share")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete share: rows affected: %w", err)
	}
	return affected > 0, nil
}

func (q *Queries) InsertShareLog(ctx context.Context, entry ShareLogEntry) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO innovation_share_log (innovation_id, organisation_id, operation, created_by_role, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, entry.InnovationID, entry.OrganisationID, entry.Operation, entry.CreatedByRole, entry.CreatedAt)
	return translate(err, "insert share log")
}

// =============================================================================
// Supports
// =============================================================================

const supportColumns = `
	id, innovation_id, organisation_unit_id, status, major_assessment_id, is_most_recent,
	started_at, engaged_at, finished_at, close_reason, status_changed_at,
	created_by_role, updated_by_role, created_at, updated_at
`

func scanSupport(row rowScanner) (SupportRecord, error) {
	var item SupportRecord
	err := row.Scan(
		&item.ID,
		&item.InnovationID,
		&item.OrganisationUnitID,
		&item.Status,
		&item.MajorAssessmentID,
		&item.IsMostRecent,
		&item.StartedAt,
		&item.EngagedAt,
		&item.FinishedAt,
		&item.CloseReason,
		&item.StatusChangedAt,
		&item.CreatedByRole,
		&item.UpdatedByRole,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	return item, err
}

func (q *Queries) listSupports(ctx context.Context, action, query string, args ...any) ([]SupportRecord, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translate(err, action)
	}
	defer rows.Close()

	items := make([]SupportRecord, 0)
	for rows.Next() {
		item, err := scanSupport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan support: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate supports: %w", err)
	}
	return items, nil
}

// insertSupportQuery repeats the live slot index predicate so that a racing
// insert becomes a no-op instead of a unique violation.
const insertSupportQuery = `
	INSERT INTO innovation_support
		(id, innovation_id, organisation_unit_id, status, major_assessment_id, is_most_recent,
		 started_at, engaged_at, status_changed_at, created_by_role, updated_by_role)
	VALUES ($1, $2, $3, $4, $5, TRUE, $6, $7, $8, $9, $9)
	ON CONFLICT (innovation_id, organisation_unit_id)
		WHERE is_most_recent AND status NOT IN ('CLOSED', 'UNSUITABLE')
	DO NOTHING
`

// InsertSupport creates a most-recent support row. It reports false when the
// unit already holds a live slot.
func (q *Queries) InsertSupport(ctx context.Context, item SupportRecord) (bool, error) {
	result, err := q.db.ExecContext(ctx, insertSupportQuery,
		item.ID,
		item.InnovationID,
		item.OrganisationUnitID,
		item.Status,
		item.MajorAssessmentID,
		item.StartedAt,
		item.EngagedAt,
		item.StatusChangedAt,
		item.CreatedByRole,
	)
	if err != nil {
		return false, translate(err, "insert support")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert support: rows affected: %w", err)
	}
	return affected > 0, nil
}

func (q *Queries) GetSupport(ctx context.Context, supportID string) (SupportRecord, error) {
	item, err := scanSupport(q.db.QueryRowContext(ctx, `
		SELECT `+supportColumns+`
		FROM innovation_support
		WHERE id = $1
	`, supportID))
	if err != nil {
		return SupportRecord{}, translate(err, "get support")
	}
	return item, nil
}

func (q *Queries) ListMostRecentSupports(ctx context.Context, innovationID string) ([]SupportRecord, error) {
	return q.listSupports(ctx, "list most recent supports", `
		SELECT `+supportColumns+`
		FROM innovation_support
		WHERE innovation_id = $1 AND is_most_recent
		ORDER BY organisation_unit_id, created_at
	`, innovationID)
}

func (q *Queries) ListSupportsForMajor(ctx context.Context, innovationID, majorAssessmentID string) ([]SupportRecord, error) {
	return q.listSupports(ctx, "list supports for assessment", `
		SELECT `+supportColumns+`
		FROM innovation_support
		WHERE innovation_id = $1 AND major_assessment_id = $2
		ORDER BY organisation_unit_id, created_at
	`, innovationID, majorAssessmentID)
}

func (q *Queries) ListLiveSupportsForUnits(ctx context.Context, innovationID string, unitIDs []string) ([]SupportRecord, error) {
	if len(unitIDs) == 0 {
		return nil, nil
	}
	return q.listSupports(ctx, "list live supports for units", `
		SELECT `+supportColumns+`
		FROM innovation_support
		WHERE innovation_id = $1
			AND organisation_unit_id = ANY($2)
			AND is_most_recent
			AND status NOT IN ('CLOSED', 'UNSUITABLE')
		ORDER BY organisation_unit_id
	`, innovationID, unitIDs)
}

// TransitionSupport applies the status change only if the row is unchanged
// since it was read; otherwise it reports ErrConflict.
func (q *Queries) TransitionSupport(ctx context.Context, change SupportTransition) error {
	result, err := q.db.ExecContext(ctx, `
		UPDATE innovation_support
		SET status = $3,
			started_at = COALESCE($4, started_at),
			engaged_at = COALESCE($5, engaged_at),
			finished_at = $6,
			close_reason = $7,
			status_changed_at = $8,
			updated_by_role = $9,
			updated_at = $8
		WHERE id = $1 AND status = $2 AND is_most_recent
	`, change.SupportID, change.From, change.To, change.StartedAt, change.EngagedAt, change.FinishedAt, change.CloseReason, change.At, change.UpdatedByRole)
	if err != nil {
		return translate(err, "transition support")
	}
	return expectOneRow(result, "transition support")
}

// SupersedeSupport retires a most-recent row; the flip is conditioned on the
// row still being most recent.
func (q *Queries) SupersedeSupport(ctx context.Context, supportID string, at time.Time, role string) error {
	result, err := q.db.ExecContext(ctx, `
		UPDATE innovation_support
		SET is_most_recent = FALSE, updated_by_role = $3, updated_at = $2
		WHERE id = $1 AND is_most_recent
	`, supportID, at, role)
	if err != nil {
		return translate(err, "supersede support")
	}
	return expectOneRow(result, "supersede support")
}

func (q *Queries) ReplaceSupportUsers(ctx context.Context, supportID string, userRoleIDs []string) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM innovation_support_user WHERE support_id = $1`, supportID); err != nil {
		return translate(err, "clear support users")
	}
	for _, userRoleID := range userRoleIDs {
		if _, err := q.db.ExecContext(ctx, `
			INSERT INTO innovation_support_user (support_id, user_role_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, supportID, userRoleID); err != nil {
			return translate(err, "insert support user")
		}
	}
	return nil
}

func (q *Queries) ListSupportUsers(ctx context.Context, supportID string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT user_role_id FROM innovation_support_user WHERE support_id = $1 ORDER BY user_role_id
	`, supportID)
	if err != nil {
		return nil, translate(err, "list support users")
	}
	defer rows.Close()
	return scanStrings(rows, "support user")
}

// =============================================================================
// Support history
// =============================================================================

// AppendSupportHistory closes the open interval of the support and opens a new
// one starting at entry.ValidFrom.
func (q *Queries) AppendSupportHistory(ctx context.Context, entry SupportHistoryEntry) error {
	if _, err := q.db.ExecContext(ctx, `
		UPDATE innovation_support_history
		SET valid_to = $2
		WHERE support_id = $1 AND valid_to IS NULL
	`, entry.SupportID, entry.ValidFrom); err != nil {
		return translate(err, "close support history")
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO innovation_support_history
			(support_id, status, is_most_recent, major_assessment_id, close_reason, changed_by_role, valid_from)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entry.SupportID, entry.Status, entry.IsMostRecent, entry.MajorAssessmentID, entry.CloseReason, entry.ChangedByRole, entry.ValidFrom)
	return translate(err, "insert support history")
}

// GetSupportHistoryAsOf returns the interval valid at the given instant.
func (q *Queries) GetSupportHistoryAsOf(ctx context.Context, supportID string, at time.Time) (SupportHistoryEntry, error) {
	var entry SupportHistoryEntry
	err := q.db.QueryRowContext(ctx, `
		SELECT id, support_id, status, is_most_recent, major_assessment_id, close_reason, changed_by_role, valid_from, valid_to
		FROM innovation_support_history
		WHERE support_id = $1
			AND valid_from <= $2
			AND (valid_to IS NULL OR valid_to > $2)
		ORDER BY valid_from DESC
		LIMIT 1
	`, supportID, at).Scan(
		&entry.ID,
		&entry.SupportID,
		&entry.Status,
		&entry.IsMostRecent,
		&entry.MajorAssessmentID,
		&entry.CloseReason,
		&entry.ChangedByRole,
		&entry.ValidFrom,
		&entry.ValidTo,
	)
	if err != nil {
		return SupportHistoryEntry{}, translate(err, "get support history")
	}
	return entry, nil
}

// =============================================================================
// Support log
// =============================================================================

func (q *Queries) InsertSupportEvent(ctx context.Context, event SupportEvent) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO innovation_support_log
			(id, innovation_id, organisation_unit_id, type, major_assessment_id, context_id, created_by, created_by_role, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, event.ID, event.InnovationID, event.OrganisationUnitID, event.Type, event.MajorAssessmentID, event.ContextID, event.CreatedBy, event.CreatedByRole, event.CreatedAt)
	return translate(err, "insert support event")
}

func (q *Queries) ListSuggestionEvents(ctx context.Context, innovationID, majorAssessmentID string) ([]SupportEvent, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, innovation_id, organisation_unit_id, type, major_assessment_id, context_id, created_by, created_by_role, created_at
		FROM innovation_support_log
		WHERE innovation_id = $1
			AND major_assessment_id = $2
			AND organisation_unit_id IS NOT NULL
			AND type IN ('ACCESSOR_SUGGESTION', 'ASSESSMENT_SUGGESTION')
		ORDER BY created_at, id
	`, innovationID, majorAssessmentID)
	if err != nil {
		return nil, translate(err, "list suggestion events")
	}
	defer rows.Close()

	items := make([]SupportEvent, 0)
	for rows.Next() {
		var item SupportEvent
		if err := rows.Scan(
			&item.ID,
			&item.InnovationID,
			&item.OrganisationUnitID,
			&item.Type,
			&item.MajorAssessmentID,
			&item.ContextID,
			&item.CreatedBy,
			&item.CreatedByRole,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan suggestion event: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate suggestion events: %w", err)
	}
	return items, nil
}

// =============================================================================
// Activity
// =============================================================================

func (q *Queries) InsertActivitySignal(ctx context.Context, signal ActivitySignal) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO innovation_activity_signal (support_id, innovation_id, organisation_unit_id, kind, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
	`, signal.SupportID, signal.InnovationID, signal.OrganisationUnitID, signal.Kind, signal.OccurredAt)
	return translate(err, "insert activity signal")
}

func (q *Queries) InsertReminder(ctx context.Context, reminder Reminder) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO innovation_support_reminder (innovation_id, organisation_unit_id, sent_at)
		VALUES ($1, $2, $3)
	`, reminder.InnovationID, reminder.OrganisationUnitID, reminder.SentAt)
	return translate(err, "insert reminder")
}

// ListIdleCandidates pages through live ENGAGING/WAITING supports in id order,
// starting after afterSupportID, with their activity aggregates.
func (q *Queries) ListIdleCandidates(ctx context.Context, afterSupportID string, limit int) ([]IdleCandidate, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT
			s.id,
			s.innovation_id,
			s.organisation_unit_id,
			s.status,
			(SELECT MAX(a.occurred_at) FROM innovation_activity_signal a
				WHERE a.innovation_id = s.innovation_id AND a.organisation_unit_id = s.organisation_unit_id AND a.kind = 'MESSAGE'),
			s.status_changed_at,
			(SELECT MAX(a.occurred_at) FROM innovation_activity_signal a
				WHERE a.innovation_id = s.innovation_id AND a.organisation_unit_id = s.organisation_unit_id AND a.kind = 'TASK'),
			(SELECT MAX(r.sent_at) FROM innovation_support_reminder r
				WHERE r.innovation_id = s.innovation_id AND r.organisation_unit_id = s.organisation_unit_id)
		FROM innovation_support s
		JOIN innovation i ON i.id = s.innovation_id AND i.deleted_at IS NULL
		WHERE s.is_most_recent
			AND s.status IN ('ENGAGING', 'WAITING')
			AND s.id > $1
		ORDER BY s.id
		LIMIT $2
	`, afterSupportID, limit)
	if err != nil {
		return nil, translate(err, "list idle candidates")
	}
	defer rows.Close()

	items := make([]IdleCandidate, 0, limit)
	for rows.Next() {
		var item IdleCandidate
		if err := rows.Scan(
			&item.SupportID,
			&item.InnovationID,
			&item.OrganisationUnitID,
			&item.Status,
			&item.LatestMessageAt,
			&item.LatestStatusChangeAt,
			&item.LatestTaskUpdateAt,
			&item.LastReminderAt,
		); err != nil {
			return nil, fmt.Errorf("scan idle candidate: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate idle candidates: %w", err)
	}
	return items, nil
}

func scanStrings(rows *sql.Rows, what string) ([]string, error) {
	items := make([]string, 0)
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("scan %s: %w", what, err)
		}
		items = append(items, value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", what, err)
	}
	return items, nil
}
