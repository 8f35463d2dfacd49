package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/adaptivedocs/corrigo/internal/db"
	"github.com/adaptivedocs/corrigo/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot memory operations.
var preparedStatements = map[string]string{
	"get_vendor_rule":   `SELECT vendor, service_date_label, confidence, approved_count, rejected_count, last_updated FROM vendor_rules WHERE vendor = $1`,
	"get_pattern_rule":  `SELECT pattern_id, description, action, confidence, approved_count, rejected_count, last_updated FROM pattern_rules WHERE pattern_id = $1`,
	"get_duplicate":     `SELECT duplicate_key, vendor, invoice_number, invoice_date, first_seen_at, seen_count FROM duplicates WHERE duplicate_key = $1`,
	"get_resolution":    `SELECT memory_id, approved_count, rejected_count, last_decision, last_updated FROM resolutions WHERE memory_id = $1`,
	"get_run":           `SELECT id, invoice, status, result, created_at, updated_at FROM runs WHERE id = $1`,
	"insert_run":        `INSERT INTO runs (id, invoice, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
	"update_run_status": `UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
	"complete_run":      `UPDATE runs SET result = $1, status = $2, updated_at = $3 WHERE id = $4`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS vendor_rules (
	vendor             TEXT PRIMARY KEY,
	service_date_label TEXT NOT NULL DEFAULT '',
	confidence         DOUBLE PRECISION NOT NULL,
	approved_count     INTEGER NOT NULL DEFAULT 0,
	rejected_count     INTEGER NOT NULL DEFAULT 0,
	last_updated       TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS pattern_rules (
	pattern_id     TEXT PRIMARY KEY,
	description    TEXT NOT NULL DEFAULT '',
	action         TEXT NOT NULL DEFAULT '',
	confidence     DOUBLE PRECISION NOT NULL,
	approved_count INTEGER NOT NULL DEFAULT 0,
	rejected_count INTEGER NOT NULL DEFAULT 0,
	last_updated   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS duplicates (
	duplicate_key  TEXT PRIMARY KEY,
	vendor         TEXT NOT NULL,
	invoice_number TEXT NOT NULL,
	invoice_date   TEXT NOT NULL,
	first_seen_at  TIMESTAMPTZ NOT NULL,
	seen_count     INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS resolutions (
	memory_id      TEXT PRIMARY KEY,
	approved_count INTEGER NOT NULL DEFAULT 0,
	rejected_count INTEGER NOT NULL DEFAULT 0,
	last_decision  TEXT NOT NULL,
	last_updated   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	invoice    JSONB NOT NULL,
	status     TEXT NOT NULL DEFAULT 'processing',
	result     JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
CREATE INDEX IF NOT EXISTS idx_duplicates_vendor ON duplicates(vendor);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// The confidence arithmetic runs inside the upsert so each reinforce/decay
// is one per-key atomic statement. Rounding is done in numeric to keep the
// one-decimal invariant exact.
var (
	pgReinforceVendor = fmt.Sprintf(`
		INSERT INTO vendor_rules (vendor, service_date_label, confidence, approved_count, rejected_count, last_updated)
		VALUES ($1, $2, %g, 1, 0, $3)
		ON CONFLICT (vendor) DO UPDATE SET
			confidence = LEAST(%g, round((vendor_rules.confidence + %g)::numeric, 1))::double precision,
			approved_count = vendor_rules.approved_count + 1,
			service_date_label = EXCLUDED.service_date_label,
			last_updated = EXCLUDED.last_updated
		RETURNING vendor, service_date_label, confidence, approved_count, rejected_count, last_updated`,
		model.ConfidenceSeed, model.ConfidenceMax, model.ReinforceStep)

	pgDecayVendor = fmt.Sprintf(`
		UPDATE vendor_rules SET
			confidence = GREATEST(%g, round((confidence - %g)::numeric, 1))::double precision,
			rejected_count = rejected_count + 1,
			last_updated = $1
		WHERE vendor = $2
		RETURNING vendor, service_date_label, confidence, approved_count, rejected_count, last_updated`,
		model.ConfidenceMin, model.DecayStep)

	pgReinforcePattern = fmt.Sprintf(`
		INSERT INTO pattern_rules (pattern_id, description, action, confidence, approved_count, rejected_count, last_updated)
		VALUES ($1, $2, $3, %g, 1, 0, $4)
		ON CONFLICT (pattern_id) DO UPDATE SET
			confidence = LEAST(%g, round((pattern_rules.confidence + %g)::numeric, 1))::double precision,
			approved_count = pattern_rules.approved_count + 1,
			description = EXCLUDED.description,
			action = EXCLUDED.action,
			last_updated = EXCLUDED.last_updated
		RETURNING pattern_id, description, action, confidence, approved_count, rejected_count, last_updated`,
		model.ConfidenceSeed, model.ConfidenceMax, model.ReinforceStep)

	pgDecayPattern = fmt.Sprintf(`
		UPDATE pattern_rules SET
			confidence = GREATEST(%g, round((confidence - %g)::numeric, 1))::double precision,
			rejected_count = rejected_count + 1,
			last_updated = $1
		WHERE pattern_id = $2
		RETURNING pattern_id, description, action, confidence, approved_count, rejected_count, last_updated`,
		model.ConfidenceMin, model.DecayStep)
)

func (s *PostgresStore) ReinforceVendorRule(ctx context.Context, vendor, serviceDateLabel string) (*model.VendorRule, error) {
	row := s.pool.QueryRow(ctx, pgReinforceVendor, vendor, serviceDateLabel, time.Now().UTC())
	r, err := scanVendorRule(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: reinforce vendor rule %s", vendor)
	}
	return r, nil
}

func (s *PostgresStore) DecayVendorRule(ctx context.Context, vendor string) (*model.VendorRule, error) {
	row := s.pool.QueryRow(ctx, pgDecayVendor, time.Now().UTC(), vendor)
	r, err := scanVendorRule(row)
	if err == pgx.ErrNoRows {
		return nil, nil // nothing to decay
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: decay vendor rule %s", vendor)
	}
	return r, nil
}

func (s *PostgresStore) GetVendorRule(ctx context.Context, vendor string) (*model.VendorRule, error) {
	row := s.pool.QueryRow(ctx, preparedStatements["get_vendor_rule"], vendor)
	r, err := scanVendorRule(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get vendor rule %s", vendor)
	}
	return r, nil
}

func (s *PostgresStore) ListVendorRules(ctx context.Context) ([]model.VendorRule, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT vendor, service_date_label, confidence, approved_count, rejected_count, last_updated
		 FROM vendor_rules ORDER BY vendor`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list vendor rules")
	}
	defer rows.Close()

	var out []model.VendorRule
	for rows.Next() {
		r, err := scanVendorRule(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan vendor rule")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list vendor rules iterate")
}

func (s *PostgresStore) ReinforcePatternRule(ctx context.Context, patternID, description, action string) (*model.PatternRule, error) {
	row := s.pool.QueryRow(ctx, pgReinforcePattern, patternID, description, action, time.Now().UTC())
	r, err := scanPatternRule(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: reinforce pattern rule %s", patternID)
	}
	return r, nil
}

func (s *PostgresStore) DecayPatternRule(ctx context.Context, patternID string) (*model.PatternRule, error) {
	row := s.pool.QueryRow(ctx, pgDecayPattern, time.Now().UTC(), patternID)
	r, err := scanPatternRule(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: decay pattern rule %s", patternID)
	}
	return r, nil
}

func (s *PostgresStore) GetPatternRule(ctx context.Context, patternID string) (*model.PatternRule, error) {
	row := s.pool.QueryRow(ctx, preparedStatements["get_pattern_rule"], patternID)
	r, err := scanPatternRule(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get pattern rule %s", patternID)
	}
	return r, nil
}

func (s *PostgresStore) ListPatternRules(ctx context.Context) ([]model.PatternRule, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT pattern_id, description, action, confidence, approved_count, rejected_count, last_updated
		 FROM pattern_rules ORDER BY pattern_id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list pattern rules")
	}
	defer rows.Close()

	var out []model.PatternRule
	for rows.Next() {
		r, err := scanPatternRule(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan pattern rule")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list pattern rules iterate")
}

func (s *PostgresStore) CheckAndRecordDuplicate(ctx context.Context, rec model.DuplicateRecord) (*model.DuplicateRecord, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO duplicates (duplicate_key, vendor, invoice_number, invoice_date, first_seen_at, seen_count)
		VALUES ($1, $2, $3, $4, $5, 1)
		ON CONFLICT (duplicate_key) DO UPDATE SET seen_count = duplicates.seen_count + 1
		RETURNING duplicate_key, vendor, invoice_number, invoice_date, first_seen_at, seen_count`,
		rec.DuplicateKey, rec.Vendor, rec.InvoiceNumber, rec.InvoiceDate, time.Now().UTC(),
	)
	r, err := scanDuplicate(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: check and record duplicate %s", rec.DuplicateKey)
	}
	return r, nil
}

func (s *PostgresStore) GetDuplicate(ctx context.Context, key string) (*model.DuplicateRecord, error) {
	row := s.pool.QueryRow(ctx, preparedStatements["get_duplicate"], key)
	r, err := scanDuplicate(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get duplicate %s", key)
	}
	return r, nil
}

func (s *PostgresStore) RecordResolution(ctx context.Context, memoryID string, decision model.Decision) (*model.ResolutionRecord, error) {
	approved, rejected := 0, 0
	if decision == model.DecisionApproved {
		approved = 1
	} else {
		rejected = 1
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO resolutions (memory_id, approved_count, rejected_count, last_decision, last_updated)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (memory_id) DO UPDATE SET
			approved_count = resolutions.approved_count + EXCLUDED.approved_count,
			rejected_count = resolutions.rejected_count + EXCLUDED.rejected_count,
			last_decision = EXCLUDED.last_decision,
			last_updated = EXCLUDED.last_updated
		RETURNING memory_id, approved_count, rejected_count, last_decision, last_updated`,
		memoryID, approved, rejected, string(decision), time.Now().UTC(),
	)
	r, err := scanResolution(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: record resolution %s", memoryID)
	}
	return r, nil
}

func (s *PostgresStore) GetResolution(ctx context.Context, memoryID string) (*model.ResolutionRecord, error) {
	row := s.pool.QueryRow(ctx, preparedStatements["get_resolution"], memoryID)
	r, err := scanResolution(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get resolution %s", memoryID)
	}
	return r, nil
}

func (s *PostgresStore) ListResolutions(ctx context.Context) ([]model.ResolutionRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT memory_id, approved_count, rejected_count, last_decision, last_updated
		 FROM resolutions ORDER BY memory_id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list resolutions")
	}
	defer rows.Close()

	var out []model.ResolutionRecord
	for rows.Next() {
		r, err := scanResolution(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan resolution")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list resolutions iterate")
}

func (s *PostgresStore) CreateRun(ctx context.Context, inv model.Invoice) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	invoiceJSON, err := json.Marshal(inv)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal invoice")
	}

	_, err = s.pool.Exec(ctx,
		preparedStatements["insert_run"],
		id, invoiceJSON, string(model.RunStatusProcessing), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Invoice:   inv,
		Status:    model.RunStatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, result *model.DecisionResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}

	tag, err := s.pool.Exec(ctx,
		preparedStatements["complete_run"],
		resultJSON, string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		preparedStatements["update_run_status"],
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx, preparedStatements["get_run"], runID)

	var r model.Run
	var invoiceJSON []byte
	var resultJSON []byte

	err := row.Scan(&r.ID, &invoiceJSON, &r.Status, &resultJSON, &r.CreatedAt, &r.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}

	if err := json.Unmarshal(invoiceJSON, &r.Invoice); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal invoice")
	}
	if len(resultJSON) > 0 {
		r.Result = &model.DecisionResult{}
		if err := json.Unmarshal(resultJSON, r.Result); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal result")
		}
	}
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, invoice, status, result, created_at, updated_at FROM runs WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Status != "" {
		query += ` AND status = ` + arg(string(filter.Status))
	}
	if filter.Vendor != "" {
		query += ` AND invoice->>'vendor' = ` + arg(filter.Vendor)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ` + arg(limit)
	if filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var invoiceJSON, resultJSON []byte
		if err := rows.Scan(&r.ID, &invoiceJSON, &r.Status, &resultJSON, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		if err := json.Unmarshal(invoiceJSON, &r.Invoice); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal invoice")
		}
		if len(resultJSON) > 0 {
			r.Result = &model.DecisionResult{}
			if err := json.Unmarshal(resultJSON, r.Result); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal result")
			}
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) ResetVendorRules(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM vendor_rules`)
	return eris.Wrap(err, "postgres: reset vendor rules")
}

func (s *PostgresStore) ResetPatternRules(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM pattern_rules`)
	return eris.Wrap(err, "postgres: reset pattern rules")
}

func (s *PostgresStore) PurgeDuplicates(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM duplicates`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: purge duplicates")
	}
	return int(tag.RowsAffected()), nil
}
