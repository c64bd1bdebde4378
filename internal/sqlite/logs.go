package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/beacon/pkg/types"
)

// GetLatestLog returns the most recent log for the KPI, ordered by log date
// descending with creation time as the tie break, or ErrNotFound if the KPI
// has never been logged.
func (s *Store) GetLatestLog(kpiID string) (*types.KpiLog, error) {
	if kpiID == "" {
		return nil, types.ErrInvalidID
	}
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	row := db.QueryRow(
		`SELECT log_id, kpi_id, log_date, value, is_completed, note, created_at
		 FROM kpi_logs WHERE kpi_id = ?
		 ORDER BY log_date DESC, created_at DESC LIMIT 1`,
		kpiID,
	)

	var (
		log       types.KpiLog
		logDate   string
		value     sql.NullString
		completed sql.NullInt64
		createdAt string
	)
	err = row.Scan(&log.LogID, &log.KpiID, &logDate, &value, &completed, &log.Note, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("getting latest log for %s: %w", kpiID, err)
	}

	if log.LogDate, err = decodeTime(logDate); err != nil {
		return nil, err
	}
	if log.Value, err = decodeNullDecimal(value); err != nil {
		return nil, err
	}
	if completed.Valid {
		done := completed.Int64 != 0
		log.IsCompleted = &done
	}
	if log.CreatedAt, err = decodeTime(createdAt); err != nil {
		return nil, err
	}
	return &log, nil
}

// AppendLog persists a new log entry, generating a UUID v7 id. Logs are
// append-only; nothing is ever updated in place. A zero LogDate defaults to
// the current time.
func (s *Store) AppendLog(log *types.KpiLog) (string, error) {
	if log.KpiID == "" {
		return "", types.ErrInvalidID
	}
	db, err := s.conn()
	if err != nil {
		return "", err
	}

	newID, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generating UUID v7: %w", err)
	}
	log.LogID = newID.String()
	now := time.Now().UTC()
	if log.LogDate.IsZero() {
		log.LogDate = now
	}
	log.CreatedAt = now

	var completed any
	if log.IsCompleted != nil {
		completed = boolToInt(*log.IsCompleted)
	}

	_, err = db.Exec(
		`INSERT INTO kpi_logs (log_id, kpi_id, log_date, value, is_completed, note, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		log.LogID, log.KpiID, encodeTime(log.LogDate), encodeNullDecimal(log.Value),
		completed, log.Note, encodeTime(log.CreatedAt),
	)
	if err != nil {
		return "", fmt.Errorf("inserting log for %s: %w", log.KpiID, err)
	}
	return log.LogID, nil
}
