package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/okian/courtside/internal/domain/model"
	"github.com/okian/courtside/pkg/logger"
	"github.com/okian/courtside/pkg/metrics"
	"github.com/shopspring/decimal"
)

//go:embed schema.sql
var schema string

// uniqueViolation is the Postgres SQLSTATE for a duplicate key.
const uniqueViolation = "23505"

const (
	decisionColumns = `payload, outcome, profit, final_total, settled_at`

	insertDecision = `INSERT INTO decisions
		(id, event_id, selection, recommendation, confidence, payload, created_at, outcome, profit)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	selectDecision = `SELECT ` + decisionColumns + ` FROM decisions WHERE id = $1`

	selectDecisionForUpdate = selectDecision + ` FOR UPDATE`

	listDecisions = `SELECT ` + decisionColumns + ` FROM decisions
		WHERE ($1 = '' OR event_id = $1)
		  AND ($2 = '' OR outcome = $2)
		  AND (NOT $3 OR selection <> '')
		  AND (NOT $4 OR outcome <> 'PENDING')
		ORDER BY created_at, id
		LIMIT $5`

	settleDecision = `UPDATE decisions
		SET outcome = $2, profit = $3, final_total = $4, settled_at = $5
		WHERE id = $1`

	upsertBucket = `INSERT INTO calibration_buckets (bucket, total, wins, losses, pushes)
		VALUES ($1, 1, $2, $3, $4)
		ON CONFLICT (bucket) DO UPDATE SET
			total  = calibration_buckets.total + 1,
			wins   = calibration_buckets.wins + EXCLUDED.wins,
			losses = calibration_buckets.losses + EXCLUDED.losses,
			pushes = calibration_buckets.pushes + EXCLUDED.pushes`

	selectBuckets = `SELECT bucket, total, wins, losses, pushes FROM calibration_buckets ORDER BY bucket`

	upsertRule = `INSERT INTO learning_rules
		(id, condition, adjustment, evidence, active, sample_size, realized_win_rate, assumed_win_rate, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			condition = EXCLUDED.condition,
			adjustment = EXCLUDED.adjustment,
			evidence = EXCLUDED.evidence,
			active = EXCLUDED.active,
			sample_size = EXCLUDED.sample_size,
			realized_win_rate = EXCLUDED.realized_win_rate,
			assumed_win_rate = EXCLUDED.assumed_win_rate,
			updated_at = EXCLUDED.updated_at`

	selectRules = `SELECT id, condition, adjustment, evidence, active, sample_size,
		realized_win_rate, assumed_win_rate, updated_at
		FROM learning_rules WHERE (NOT $1 OR active) ORDER BY condition`

	upsertPostMortem = `INSERT INTO post_mortems (decision_id, cause, severity, miss, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (decision_id) DO UPDATE SET
			cause = EXCLUDED.cause, severity = EXCLUDED.severity, miss = EXCLUDED.miss,
			notes = EXCLUDED.notes, created_at = EXCLUDED.created_at`

	selectPostMortems = `SELECT decision_id, cause, severity, miss, notes, created_at
		FROM post_mortems ORDER BY decision_id`

	insertCalibration = `INSERT INTO bias_calibrations (bias, samples, mean_residual, applied_at)
		VALUES ($1, $2, $3, $4)`

	selectLatestCalibration = `SELECT bias, samples, mean_residual, applied_at
		FROM bias_calibrations ORDER BY applied_at DESC, id DESC LIMIT 1`

	countDecisions = `SELECT COUNT(*) FROM decisions`
)

// PostgresStore persists decisions in Postgres. Settlement locks the row
// with SELECT ... FOR UPDATE so concurrent settlers serialise per id.
type PostgresStore struct {
	cfg config
	db  *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string, opts ...Option) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return NewPostgresStore(db, opts...), nil
}

// NewPostgresStore wraps an open handle.
func NewPostgresStore(db *sql.DB, opts ...Option) *PostgresStore {
	return &PostgresStore{cfg: newConfig(opts), db: db}
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, d model.Decision) error {
	start := time.Now()
	defer observe("create", start)

	if d.Outcome == "" {
		d.Outcome = model.OutcomePending
	}
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal decision %s: %w", d.ID, err)
	}
	_, err = s.db.ExecContext(ctx, insertDecision,
		d.ID, d.EventID, string(d.Selection), string(d.Recommendation), d.Confidence,
		payload, d.CreatedAt, string(d.Outcome), d.Profit,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicate, d.ID)
	}
	if err != nil {
		return fmt.Errorf("insert decision %s: %w", d.ID, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (model.Decision, error) {
	d, err := scanDecision(s.db.QueryRowContext(ctx, selectDecision, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Decision{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return model.Decision{}, fmt.Errorf("get decision %s: %w", id, err)
	}
	return d, nil
}

func (s *PostgresStore) List(ctx context.Context, f Filter) ([]model.Decision, error) {
	start := time.Now()
	defer observe("list", start)

	limit := sql.NullInt64{Int64: int64(f.Limit), Valid: f.Limit > 0}
	rows, err := s.db.QueryContext(ctx, listDecisions, f.EventID, string(f.Outcome), f.BetsOnly, f.Settled, limit)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	defer rows.Close()

	var out []model.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Settle(ctx context.Context, id string, st model.Settlement) (model.Decision, error) {
	start := time.Now()
	defer observe("settle", start)

	if err := validateSettlement(st); err != nil {
		return model.Decision{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Decision{}, fmt.Errorf("begin settlement: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	d, err := scanDecision(tx.QueryRowContext(ctx, selectDecisionForUpdate, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Decision{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return model.Decision{}, fmt.Errorf("lock decision %s: %w", id, err)
	}
	if d.Outcome.IsTerminal() {
		metrics.RecordSettlementConflict()
		s.cfg.logger.Warn(ctx, "rejected second settlement",
			logger.String("decisionID", id),
			logger.String("outcome", string(d.Outcome)),
			logger.String("attempted", string(st.Outcome)),
		)
		return d, fmt.Errorf("%w: %s is %s", ErrDoubleSettlement, id, d.Outcome)
	}

	var final sql.NullFloat64
	if st.FinalTotal != nil {
		final = sql.NullFloat64{Float64: *st.FinalTotal, Valid: true}
	}
	if _, err := tx.ExecContext(ctx, settleDecision, id, string(st.Outcome), st.Profit, final, st.SettledAt); err != nil {
		return model.Decision{}, fmt.Errorf("settle decision %s: %w", id, err)
	}

	if d.IsBet() {
		var wins, losses, pushes int
		switch st.Outcome {
		case model.OutcomeWin:
			wins = 1
		case model.OutcomeLoss:
			losses = 1
		case model.OutcomePush:
			pushes = 1
		}
		bucket := s.cfg.table.Bucket(d.Confidence)
		if _, err := tx.ExecContext(ctx, upsertBucket, bucket, wins, losses, pushes); err != nil {
			return model.Decision{}, fmt.Errorf("update bucket %d: %w", bucket, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return model.Decision{}, fmt.Errorf("commit settlement %s: %w", id, err)
	}
	metrics.RecordDecisionSettled(string(st.Outcome))

	settledAt := st.SettledAt
	d.Outcome = st.Outcome
	d.Profit = st.Profit
	d.SettledAt = &settledAt
	if final.Valid {
		v := final.Float64
		d.FinalTotal = &v
	}
	return d, nil
}

func (s *PostgresStore) Buckets(ctx context.Context) ([]model.CalibrationBucket, error) {
	rows, err := s.db.QueryContext(ctx, selectBuckets)
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}
	defer rows.Close()

	var out []model.CalibrationBucket
	for rows.Next() {
		var b model.CalibrationBucket
		if err := rows.Scan(&b.Bucket, &b.Total, &b.Wins, &b.Losses, &b.Pushes); err != nil {
			return nil, fmt.Errorf("scan bucket: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Rules(ctx context.Context, activeOnly bool) ([]model.LearningRule, error) {
	rows, err := s.db.QueryContext(ctx, selectRules, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var out []model.LearningRule
	for rows.Next() {
		var r model.LearningRule
		if err := rows.Scan(&r.ID, &r.Condition, &r.Adjustment, &r.Evidence, &r.Active,
			&r.SampleSize, &r.RealizedWinRate, &r.AssumedWinRate, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpsertRule(ctx context.Context, r model.LearningRule) error {
	_, err := s.db.ExecContext(ctx, upsertRule,
		r.ID, r.Condition, r.Adjustment, r.Evidence, r.Active,
		r.SampleSize, r.RealizedWinRate, r.AssumedWinRate, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert rule %s: %w", r.ID, err)
	}
	return nil
}

func (s *PostgresStore) SavePostMortem(ctx context.Context, pm model.PostMortem) error {
	_, err := s.db.ExecContext(ctx, upsertPostMortem,
		pm.DecisionID, string(pm.Cause), string(pm.Severity), pm.Miss, pm.Notes, pm.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save post-mortem %s: %w", pm.DecisionID, err)
	}
	return nil
}

func (s *PostgresStore) PostMortems(ctx context.Context) ([]model.PostMortem, error) {
	rows, err := s.db.QueryContext(ctx, selectPostMortems)
	if err != nil {
		return nil, fmt.Errorf("list post-mortems: %w", err)
	}
	defer rows.Close()

	var out []model.PostMortem
	for rows.Next() {
		var pm model.PostMortem
		var cause, severity string
		if err := rows.Scan(&pm.DecisionID, &cause, &severity, &pm.Miss, &pm.Notes, &pm.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan post-mortem: %w", err)
		}
		pm.Cause, pm.Severity = model.RootCause(cause), model.Severity(severity)
		out = append(out, pm)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SaveCalibration(ctx context.Context, c model.BiasCalibration) error {
	if _, err := s.db.ExecContext(ctx, insertCalibration, c.Bias, c.Samples, c.MeanResidual, c.AppliedAt); err != nil {
		return fmt.Errorf("save calibration: %w", err)
	}
	return nil
}

func (s *PostgresStore) LatestCalibration(ctx context.Context) (model.BiasCalibration, error) {
	var c model.BiasCalibration
	err := s.db.QueryRowContext(ctx, selectLatestCalibration).Scan(&c.Bias, &c.Samples, &c.MeanResidual, &c.AppliedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.BiasCalibration{}, fmt.Errorf("%w: no calibration applied", ErrNotFound)
	}
	if err != nil {
		return model.BiasCalibration{}, fmt.Errorf("latest calibration: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, countDecisions).Scan(&n); err != nil {
		return 0, fmt.Errorf("count decisions: %w", err)
	}
	return n, nil
}

// Close closes the database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanDecision reads the payload and overlays the settlement columns, which
// are the source of truth after Settle.
func scanDecision(sc rowScanner) (model.Decision, error) {
	var (
		payload   []byte
		outcome   string
		profit    decimal.Decimal
		final     sql.NullFloat64
		settledAt sql.NullTime
	)
	if err := sc.Scan(&payload, &outcome, &profit, &final, &settledAt); err != nil {
		return model.Decision{}, err
	}
	var d model.Decision
	if err := json.Unmarshal(payload, &d); err != nil {
		return model.Decision{}, fmt.Errorf("decode payload: %w", err)
	}
	d.Outcome = model.Outcome(outcome)
	d.Profit = profit
	d.FinalTotal, d.SettledAt = nil, nil
	if final.Valid {
		v := final.Float64
		d.FinalTotal = &v
	}
	if settledAt.Valid {
		t := settledAt.Time
		d.SettledAt = &t
	}
	return d, nil
}
