package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/beacon/pkg/types"
)

const kpiColumns = "kpi_id, title, level, parent_kpi_id, target_value, unit, weight, sort_order, active, created_at, updated_at"

// GetKpi returns the KPI with the given id, or ErrNotFound. Inactive KPIs
// are still retrievable by id; only aggregation and tree queries filter on
// the active flag.
func (s *Store) GetKpi(id string) (*types.Kpi, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	row := db.QueryRow("SELECT "+kpiColumns+" FROM kpis WHERE kpi_id = ?", id)
	kpi, err := hydrateKpi(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("getting kpi %s: %w", id, err)
	}
	return kpi, nil
}

// SaveKpi persists a KPI. With an empty KpiID it generates a UUID v7, sets
// timestamps and the active flag, and inserts; otherwise it updates the
// existing row in place. Returns the effective id.
func (s *Store) SaveKpi(kpi *types.Kpi) (string, error) {
	if kpi.Weight.IsZero() {
		kpi.Weight = types.DefaultWeight
	}
	if err := kpi.Validate(); err != nil {
		return "", err
	}
	db, err := s.conn()
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()

	if kpi.KpiID == "" {
		newID, err := uuid.NewV7()
		if err != nil {
			return "", fmt.Errorf("generating UUID v7: %w", err)
		}
		kpi.KpiID = newID.String()
		kpi.Active = true
		kpi.CreatedAt = now
		kpi.UpdatedAt = now

		_, err = db.Exec(
			"INSERT INTO kpis ("+kpiColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			kpi.KpiID, kpi.Title, kpi.Level, kpi.ParentID,
			encodeNullDecimal(kpi.TargetValue), kpi.Unit, encodeDecimal(kpi.Weight),
			kpi.SortOrder, boolToInt(kpi.Active), encodeTime(kpi.CreatedAt), encodeTime(kpi.UpdatedAt),
		)
		if err != nil {
			return "", fmt.Errorf("inserting kpi: %w", err)
		}
		return kpi.KpiID, nil
	}

	kpi.UpdatedAt = now
	res, err := db.Exec(
		`UPDATE kpis SET title = ?, level = ?, parent_kpi_id = ?, target_value = ?,
		    unit = ?, weight = ?, sort_order = ?, active = ?, updated_at = ?
		 WHERE kpi_id = ?`,
		kpi.Title, kpi.Level, kpi.ParentID, encodeNullDecimal(kpi.TargetValue),
		kpi.Unit, encodeDecimal(kpi.Weight), kpi.SortOrder, boolToInt(kpi.Active),
		encodeTime(kpi.UpdatedAt), kpi.KpiID,
	)
	if err != nil {
		return "", fmt.Errorf("updating kpi %s: %w", kpi.KpiID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("updating kpi %s: %w", kpi.KpiID, err)
	}
	if affected == 0 {
		return "", types.ErrNotFound
	}
	return kpi.KpiID, nil
}

// DeactivateKpi soft-deletes a KPI by clearing its active flag. The row,
// its logs, and its cache entry are retained; the node simply drops out of
// aggregation and tree queries.
func (s *Store) DeactivateKpi(id string) error {
	if id == "" {
		return types.ErrInvalidID
	}
	db, err := s.conn()
	if err != nil {
		return err
	}

	res, err := db.Exec(
		"UPDATE kpis SET active = 0, updated_at = ? WHERE kpi_id = ?",
		encodeTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("deactivating kpi %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivating kpi %s: %w", id, err)
	}
	if affected == 0 {
		return types.ErrNotFound
	}
	return nil
}

// GetActiveChildren returns the active children of the given parent, each
// left-joined with its cached progress. The join is normalized here into the
// flat ChildProgress shape; children without a cache row surface an invalid
// Progress so the calculator applies its zero default.
func (s *Store) GetActiveChildren(parentID string) ([]types.ChildProgress, error) {
	if parentID == "" {
		return nil, types.ErrInvalidID
	}
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(
		`SELECT k.kpi_id, k.title, k.weight, c.progress_percentage
		 FROM kpis k
		 LEFT JOIN kpi_progress_cache c ON c.kpi_id = k.kpi_id
		 WHERE k.parent_kpi_id = ? AND k.active = 1
		 ORDER BY k.sort_order, k.kpi_id`,
		parentID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying children of %s: %w", parentID, err)
	}
	defer rows.Close()

	var out []types.ChildProgress
	for rows.Next() {
		var (
			child      types.ChildProgress
			weightStr  sql.NullString
			cachedProg sql.NullString
		)
		if err := rows.Scan(&child.KpiID, &child.Title, &weightStr, &cachedProg); err != nil {
			return nil, fmt.Errorf("scanning child of %s: %w", parentID, err)
		}
		if child.Weight, err = decodeNullDecimal(weightStr); err != nil {
			return nil, err
		}
		if child.Progress, err = decodeNullDecimal(cachedProg); err != nil {
			return nil, err
		}
		out = append(out, child)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating children of %s: %w", parentID, err)
	}
	return out, nil
}

// ListTree returns all active KPIs joined with their cache rows, flat, for
// read-side tree assembly. With a non-empty visionID only that root's
// subtree is returned, which also scopes out its ancestors so tree building
// treats the vision as a root.
func (s *Store) ListTree(visionID string) ([]types.FlatKpi, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	query := `SELECT k.kpi_id, k.title, k.level, k.parent_kpi_id, k.target_value,
	       k.unit, k.weight, k.sort_order,
	       c.progress_percentage, c.status, c.child_count, c.completed_child_count,
	       c.calculation_method, c.last_calculated_at
	FROM kpis k
	LEFT JOIN kpi_progress_cache c ON c.kpi_id = k.kpi_id
	WHERE k.active = 1`
	args := []any{}
	if visionID != "" {
		// Recursive walk down from the requested root.
		query = `WITH RECURSIVE subtree(kpi_id) AS (
		    SELECT kpi_id FROM kpis WHERE kpi_id = ? AND active = 1
		    UNION ALL
		    SELECT k.kpi_id FROM kpis k
		    JOIN subtree s ON k.parent_kpi_id = s.kpi_id
		    WHERE k.active = 1
		)
		SELECT k.kpi_id, k.title, k.level, k.parent_kpi_id, k.target_value,
		       k.unit, k.weight, k.sort_order,
		       c.progress_percentage, c.status, c.child_count, c.completed_child_count,
		       c.calculation_method, c.last_calculated_at
		FROM kpis k
		JOIN subtree s ON s.kpi_id = k.kpi_id
		LEFT JOIN kpi_progress_cache c ON c.kpi_id = k.kpi_id`
		args = append(args, visionID)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying tree: %w", err)
	}
	defer rows.Close()

	var out []types.FlatKpi
	for rows.Next() {
		flat, err := scanFlatKpi(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, flat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tree rows: %w", err)
	}
	return out, nil
}

// scanFlatKpi reads one joined KPI+cache row. Cache columns are NULL for
// KPIs that have never been calculated; the zero values they decode to are
// the defaults tree building expects.
func scanFlatKpi(rows *sql.Rows) (types.FlatKpi, error) {
	var (
		flat       types.FlatKpi
		parentID   sql.NullString
		target     sql.NullString
		weight     sql.NullString
		progress   sql.NullString
		status     sql.NullString
		childCount sql.NullInt64
		completed  sql.NullInt64
		method     sql.NullString
		calcAt     sql.NullString
	)
	err := rows.Scan(&flat.KpiID, &flat.Title, &flat.Level, &parentID, &target,
		&flat.Unit, &weight, &flat.SortOrder,
		&progress, &status, &childCount, &completed, &method, &calcAt)
	if err != nil {
		return flat, fmt.Errorf("scanning tree row: %w", err)
	}

	if parentID.Valid {
		flat.ParentID = &parentID.String
	}
	if flat.TargetValue, err = decodeNullDecimal(target); err != nil {
		return flat, err
	}
	if flat.Weight, err = decodeNullDecimal(weight); err != nil {
		return flat, err
	}
	if flat.ProgressPercentage, err = decodeNullDecimal(progress); err != nil {
		return flat, err
	}
	flat.Status = status.String
	flat.ChildCount = int(childCount.Int64)
	flat.CompletedChildCount = int(completed.Int64)
	flat.CalculationMethod = method.String
	if flat.LastCalculatedAt, err = decodeTime(calcAt.String); err != nil {
		return flat, err
	}
	return flat, nil
}

// hydrateKpi converts a kpis row into a *types.Kpi.
func hydrateKpi(row *sql.Row) (*types.Kpi, error) {
	var (
		kpi       types.Kpi
		parentID  sql.NullString
		target    sql.NullString
		weight    string
		active    int
		createdAt string
		updatedAt string
	)
	err := row.Scan(&kpi.KpiID, &kpi.Title, &kpi.Level, &parentID, &target,
		&kpi.Unit, &weight, &kpi.SortOrder, &active, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if parentID.Valid {
		kpi.ParentID = &parentID.String
	}
	if kpi.TargetValue, err = decodeNullDecimal(target); err != nil {
		return nil, err
	}
	if kpi.Weight, err = decodeDecimal(weight); err != nil {
		return nil, err
	}
	kpi.Active = active != 0
	if kpi.CreatedAt, err = decodeTime(createdAt); err != nil {
		return nil, err
	}
	if kpi.UpdatedAt, err = decodeTime(updatedAt); err != nil {
		return nil, err
	}
	return &kpi, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
