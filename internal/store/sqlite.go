package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/adaptivedocs/corrigo/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS vendor_rules (
	vendor             TEXT PRIMARY KEY,
	service_date_label TEXT NOT NULL DEFAULT '',
	confidence         REAL NOT NULL,
	approved_count     INTEGER NOT NULL DEFAULT 0,
	rejected_count     INTEGER NOT NULL DEFAULT 0,
	last_updated       DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS pattern_rules (
	pattern_id     TEXT PRIMARY KEY,
	description    TEXT NOT NULL DEFAULT '',
	action         TEXT NOT NULL DEFAULT '',
	confidence     REAL NOT NULL,
	approved_count INTEGER NOT NULL DEFAULT 0,
	rejected_count INTEGER NOT NULL DEFAULT 0,
	last_updated   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS duplicates (
	duplicate_key  TEXT PRIMARY KEY,
	vendor         TEXT NOT NULL,
	invoice_number TEXT NOT NULL,
	invoice_date   TEXT NOT NULL,
	first_seen_at  DATETIME NOT NULL,
	seen_count     INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS resolutions (
	memory_id      TEXT PRIMARY KEY,
	approved_count INTEGER NOT NULL DEFAULT 0,
	rejected_count INTEGER NOT NULL DEFAULT 0,
	last_decision  TEXT NOT NULL,
	last_updated   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	invoice    TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'processing',
	result     TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
CREATE INDEX IF NOT EXISTS idx_duplicates_vendor ON duplicates(vendor);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Reinforce/decay statements carry the confidence arithmetic so each update
// is a single per-key statement: seed on first sighting, then step and clamp
// with rounding to one decimal.
var (
	sqliteReinforceVendor = fmt.Sprintf(`
		INSERT INTO vendor_rules (vendor, service_date_label, confidence, approved_count, rejected_count, last_updated)
		VALUES (?, ?, %g, 1, 0, ?)
		ON CONFLICT(vendor) DO UPDATE SET
			confidence = min(%g, round(confidence + %g, 1)),
			approved_count = approved_count + 1,
			service_date_label = excluded.service_date_label,
			last_updated = excluded.last_updated
		RETURNING vendor, service_date_label, confidence, approved_count, rejected_count, last_updated`,
		model.ConfidenceSeed, model.ConfidenceMax, model.ReinforceStep)

	sqliteDecayVendor = fmt.Sprintf(`
		UPDATE vendor_rules SET
			confidence = max(%g, round(confidence - %g, 1)),
			rejected_count = rejected_count + 1,
			last_updated = ?
		WHERE vendor = ?
		RETURNING vendor, service_date_label, confidence, approved_count, rejected_count, last_updated`,
		model.ConfidenceMin, model.DecayStep)

	sqliteReinforcePattern = fmt.Sprintf(`
		INSERT INTO pattern_rules (pattern_id, description, action, confidence, approved_count, rejected_count, last_updated)
		VALUES (?, ?, ?, %g, 1, 0, ?)
		ON CONFLICT(pattern_id) DO UPDATE SET
			confidence = min(%g, round(confidence + %g, 1)),
			approved_count = approved_count + 1,
			description = excluded.description,
			action = excluded.action,
			last_updated = excluded.last_updated
		RETURNING pattern_id, description, action, confidence, approved_count, rejected_count, last_updated`,
		model.ConfidenceSeed, model.ConfidenceMax, model.ReinforceStep)

	sqliteDecayPattern = fmt.Sprintf(`
		UPDATE pattern_rules SET
			confidence = max(%g, round(confidence - %g, 1)),
			rejected_count = rejected_count + 1,
			last_updated = ?
		WHERE pattern_id = ?
		RETURNING pattern_id, description, action, confidence, approved_count, rejected_count, last_updated`,
		model.ConfidenceMin, model.DecayStep)
)

func (s *SQLiteStore) ReinforceVendorRule(ctx context.Context, vendor, serviceDateLabel string) (*model.VendorRule, error) {
	row := s.db.QueryRowContext(ctx, sqliteReinforceVendor, vendor, serviceDateLabel, time.Now().UTC())
	r, err := scanVendorRule(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: reinforce vendor rule %s", vendor)
	}
	return r, nil
}

func (s *SQLiteStore) DecayVendorRule(ctx context.Context, vendor string) (*model.VendorRule, error) {
	row := s.db.QueryRowContext(ctx, sqliteDecayVendor, time.Now().UTC(), vendor)
	r, err := scanVendorRule(row)
	if err == sql.ErrNoRows {
		return nil, nil // nothing to decay
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: decay vendor rule %s", vendor)
	}
	return r, nil
}

func (s *SQLiteStore) GetVendorRule(ctx context.Context, vendor string) (*model.VendorRule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT vendor, service_date_label, confidence, approved_count, rejected_count, last_updated
		 FROM vendor_rules WHERE vendor = ?`, vendor)
	r, err := scanVendorRule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get vendor rule %s", vendor)
	}
	return r, nil
}

func (s *SQLiteStore) ListVendorRules(ctx context.Context) ([]model.VendorRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT vendor, service_date_label, confidence, approved_count, rejected_count, last_updated
		 FROM vendor_rules ORDER BY vendor`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list vendor rules")
	}
	defer rows.Close()

	var out []model.VendorRule
	for rows.Next() {
		r, err := scanVendorRule(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan vendor rule")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list vendor rules iterate")
}

func (s *SQLiteStore) ReinforcePatternRule(ctx context.Context, patternID, description, action string) (*model.PatternRule, error) {
	row := s.db.QueryRowContext(ctx, sqliteReinforcePattern, patternID, description, action, time.Now().UTC())
	r, err := scanPatternRule(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: reinforce pattern rule %s", patternID)
	}
	return r, nil
}

func (s *SQLiteStore) DecayPatternRule(ctx context.Context, patternID string) (*model.PatternRule, error) {
	row := s.db.QueryRowContext(ctx, sqliteDecayPattern, time.Now().UTC(), patternID)
	r, err := scanPatternRule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: decay pattern rule %s", patternID)
	}
	return r, nil
}

func (s *SQLiteStore) GetPatternRule(ctx context.Context, patternID string) (*model.PatternRule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT pattern_id, description, action, confidence, approved_count, rejected_count, last_updated
		 FROM pattern_rules WHERE pattern_id = ?`, patternID)
	r, err := scanPatternRule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get pattern rule %s", patternID)
	}
	return r, nil
}

func (s *SQLiteStore) ListPatternRules(ctx context.Context) ([]model.PatternRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT pattern_id, description, action, confidence, approved_count, rejected_count, last_updated
		 FROM pattern_rules ORDER BY pattern_id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list pattern rules")
	}
	defer rows.Close()

	var out []model.PatternRule
	for rows.Next() {
		r, err := scanPatternRule(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan pattern rule")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list pattern rules iterate")
}

func (s *SQLiteStore) CheckAndRecordDuplicate(ctx context.Context, rec model.DuplicateRecord) (*model.DuplicateRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO duplicates (duplicate_key, vendor, invoice_number, invoice_date, first_seen_at, seen_count)
		VALUES (?, ?, ?, ?, ?, 1)
		ON CONFLICT(duplicate_key) DO UPDATE SET seen_count = seen_count + 1
		RETURNING duplicate_key, vendor, invoice_number, invoice_date, first_seen_at, seen_count`,
		rec.DuplicateKey, rec.Vendor, rec.InvoiceNumber, rec.InvoiceDate, time.Now().UTC(),
	)
	r, err := scanDuplicate(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: check and record duplicate %s", rec.DuplicateKey)
	}
	return r, nil
}

func (s *SQLiteStore) GetDuplicate(ctx context.Context, key string) (*model.DuplicateRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT duplicate_key, vendor, invoice_number, invoice_date, first_seen_at, seen_count
		 FROM duplicates WHERE duplicate_key = ?`, key)
	r, err := scanDuplicate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get duplicate %s", key)
	}
	return r, nil
}

func (s *SQLiteStore) RecordResolution(ctx context.Context, memoryID string, decision model.Decision) (*model.ResolutionRecord, error) {
	approved, rejected := 0, 0
	if decision == model.DecisionApproved {
		approved = 1
	} else {
		rejected = 1
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO resolutions (memory_id, approved_count, rejected_count, last_decision, last_updated)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(memory_id) DO UPDATE SET
			approved_count = approved_count + excluded.approved_count,
			rejected_count = rejected_count + excluded.rejected_count,
			last_decision = excluded.last_decision,
			last_updated = excluded.last_updated
		RETURNING memory_id, approved_count, rejected_count, last_decision, last_updated`,
		memoryID, approved, rejected, string(decision), time.Now().UTC(),
	)
	r, err := scanResolution(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: record resolution %s", memoryID)
	}
	return r, nil
}

func (s *SQLiteStore) GetResolution(ctx context.Context, memoryID string) (*model.ResolutionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT memory_id, approved_count, rejected_count, last_decision, last_updated
		 FROM resolutions WHERE memory_id = ?`, memoryID)
	r, err := scanResolution(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get resolution %s", memoryID)
	}
	return r, nil
}

func (s *SQLiteStore) ListResolutions(ctx context.Context) ([]model.ResolutionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT memory_id, approved_count, rejected_count, last_decision, last_updated
		 FROM resolutions ORDER BY memory_id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list resolutions")
	}
	defer rows.Close()

	var out []model.ResolutionRecord
	for rows.Next() {
		r, err := scanResolution(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan resolution")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list resolutions iterate")
}

func (s *SQLiteStore) CreateRun(ctx context.Context, inv model.Invoice) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	invoiceJSON, err := json.Marshal(inv)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal invoice")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, invoice, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, string(invoiceJSON), string(model.RunStatusProcessing), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Invoice:   inv,
		Status:    model.RunStatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, result *model.DecisionResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET result = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(resultJSON), string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, invoice, status, result, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, invoice, status, result, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Vendor != "" {
		query += ` AND json_extract(invoice, '$.vendor') = ?`
		args = append(args, filter.Vendor)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) ResetVendorRules(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM vendor_rules`)
	return eris.Wrap(err, "sqlite: reset vendor rules")
}

func (s *SQLiteStore) ResetPatternRules(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM pattern_rules`)
	return eris.Wrap(err, "sqlite: reset pattern rules")
}

func (s *SQLiteStore) PurgeDuplicates(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM duplicates`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: purge duplicates")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanVendorRule(row scannable) (*model.VendorRule, error) {
	var r model.VendorRule
	err := row.Scan(&r.Vendor, &r.ServiceDateLabel, &r.Confidence, &r.ApprovedCount, &r.RejectedCount, &r.LastUpdated)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func scanPatternRule(row scannable) (*model.PatternRule, error) {
	var r model.PatternRule
	err := row.Scan(&r.PatternID, &r.Description, &r.Action, &r.Confidence, &r.ApprovedCount, &r.RejectedCount, &r.LastUpdated)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func scanDuplicate(row scannable) (*model.DuplicateRecord, error) {
	var r model.DuplicateRecord
	err := row.Scan(&r.DuplicateKey, &r.Vendor, &r.InvoiceNumber, &r.InvoiceDate, &r.FirstSeenAt, &r.SeenCount)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func scanResolution(row scannable) (*model.ResolutionRecord, error) {
	var r model.ResolutionRecord
	var decision string
	err := row.Scan(&r.MemoryID, &r.ApprovedCount, &r.RejectedCount, &decision, &r.LastUpdated)
	if err != nil {
		return nil, err
	}
	r.LastDecision = model.Decision(decision)
	return &r, nil
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var invoiceJSON string
	var resultJSON sql.NullString

	err := row.Scan(&r.ID, &invoiceJSON, &r.Status, &resultJSON, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if err := json.Unmarshal([]byte(invoiceJSON), &r.Invoice); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal invoice")
	}
	if resultJSON.Valid {
		r.Result = &model.DecisionResult{}
		if err := json.Unmarshal([]byte(resultJSON.String), r.Result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal result")
		}
	}
	return &r, nil
}
