package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/hengadev/medvault"
)

// AuditLog implements medvault.AuditLog on SQLite. The table has a primary
// key on log_id and this type exposes no update or delete; entries are
// write-once.
type AuditLog struct {
	db *sql.DB
}

func (l *AuditLog) Append(ctx context.Context, entry medvault.AuditEntry) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("failed to serialize audit details: %w", err)
	}
	_, err = l.db.ExecContext(ctx, `
		INSERT INTO audit_log (log_id, patient_id, action, performed_by, ts, details)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.LogID, entry.PatientID, string(entry.Action), entry.PerformedBy,
		entry.Timestamp, string(details),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return fmt.Errorf("duplicate audit log id %s", entry.LogID)
		}
		return fmt.Errorf("%w: %v", medvault.ErrStoreUnavailable, err)
	}
	return nil
}

func (l *AuditLog) Query(ctx context.Context, patientID string, actions ...medvault.AuditAction) ([]medvault.AuditEntry, error) {
	query := `
		SELECT log_id, patient_id, action, performed_by, ts, details
		FROM audit_log WHERE patient_id = ?`
	args := []any{patientID}
	if len(actions) > 0 {
		placeholders := make([]string, len(actions))
		for i, a := range actions {
			placeholders[i] = "?"
			args = append(args, string(a))
		}
		query += " AND action IN (" + strings.Join(placeholders, ", ") + ")"
	}
	query += " ORDER BY ts DESC"

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", medvault.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var entries []medvault.AuditEntry
	for rows.Next() {
		var e medvault.AuditEntry
		var action, details string
		if err := rows.Scan(&e.LogID, &e.PatientID, &action, &e.PerformedBy, &e.Timestamp, &details); err != nil {
			return nil, err
		}
		e.Action = medvault.AuditAction(action)
		if err := json.Unmarshal([]byte(details), &e.Details); err != nil {
			return nil, fmt.Errorf("malformed audit details for %s: %w", e.LogID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
