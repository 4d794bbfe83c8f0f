package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/petitpapa86/be-tech-reg-sub016/internal/metrics"
	"github.com/petitpapa86/be-tech-reg-sub016/internal/model"
	"github.com/petitpapa86/be-tech-reg-sub016/internal/params"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Result artifacts are JSONB rows with a unique batch_id; immutability is
// enforced by insert-only writes. Risk parameter updates are guarded by a
// version predicate for optimistic concurrency.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) CreateBatch(ctx context.Context, b *model.Batch) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO batches (id, bank_id, status, total_exposures, failed_count, results_uri, failure_reason, started_at, completed_at, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		b.ID, b.BankID, b.Status, b.TotalExposures, b.FailedCount,
		b.ResultsURI, b.FailureReason, b.StartedAt, b.CompletedAt, b.DurationMillis,
	)
	if err != nil {
		return fmt.Errorf("create batch %s: %w", b.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetBatch(ctx context.Context, id string) (*model.Batch, error) {
	var b model.Batch
	err := s.pool.QueryRow(ctx,
		`SELECT id, bank_id, status, total_exposures, failed_count,
		        COALESCE(results_uri, ''), COALESCE(failure_reason, ''),
		        started_at, completed_at, duration_ms
		 FROM batches WHERE id = $1`, id).
		Scan(&b.ID, &b.BankID, &b.Status, &b.TotalExposures, &b.FailedCount,
			&b.ResultsURI, &b.FailureReason,
			&b.StartedAt, &b.CompletedAt, &b.DurationMillis)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrBatchNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get batch %s: %w", id, err)
	}
	return &b, nil
}

func (s *PostgresStore) UpdateBatch(ctx context.Context, b *model.Batch) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE batches
		 SET status = $2, failed_count = $3, results_uri = $4,
		     failure_reason = $5, completed_at = $6, duration_ms = $7
		 WHERE id = $1`,
		b.ID, b.Status, b.FailedCount, b.ResultsURI,
		b.FailureReason, b.CompletedAt, b.DurationMillis,
	)
	if err != nil {
		return fmt.Errorf("update batch %s: %w", b.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrBatchNotFound, b.ID)
	}
	return nil
}

func (s *PostgresStore) SaveResults(ctx context.Context, result *model.CalculationResult) (string, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("serialize results %s: %w", result.BatchID, err)
	}

	// Insert-only: an existing row means the artifact was already written
	// and must stay untouched.
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO calculation_results (batch_id, payload, created_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (batch_id) DO NOTHING`,
		result.BatchID, payload, result.CalculatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("save results %s: %w", result.BatchID, err)
	}
	if tag.RowsAffected() == 0 {
		return "", fmt.Errorf("%w: %s", ErrResultsExist, result.BatchID)
	}
	return "db://calculation_results/" + result.BatchID, nil
}

func (s *PostgresStore) GetResults(ctx context.Context, batchID string) (*model.CalculationResult, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM calculation_results WHERE batch_id = $1`, batchID).
		Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrResultsNotFound, batchID)
	}
	if err != nil {
		return nil, fmt.Errorf("get results %s: %w", batchID, err)
	}

	var result model.CalculationResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("decode results %s: %w", batchID, err)
	}
	return &result, nil
}

func (s *PostgresStore) CreateRiskParameters(ctx context.Context, p params.RiskParameters) error {
	large, capital, conc, err := marshalGroups(p)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO risk_parameters (id, bank_id, large_exposures, capital_base, concentration_risk,
		                              compliant, capital_up_to_date, created_at, modified_at, modified_by, version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.BankID, large, capital, conc,
		p.Status.Compliant, p.Status.CapitalUpToDate,
		p.CreatedAt, p.ModifiedAt, p.ModifiedBy, p.Version,
	)
	if err != nil {
		return fmt.Errorf("create risk parameters for %s: %w", p.BankID, err)
	}
	return nil
}

func (s *PostgresStore) GetRiskParameters(ctx context.Context, bankID string) (params.RiskParameters, error) {
	var (
		p                    params.RiskParameters
		large, capital, conc []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, bank_id, large_exposures, capital_base, concentration_risk,
		        compliant, capital_up_to_date, created_at, modified_at, COALESCE(modified_by, ''), version
		 FROM risk_parameters WHERE bank_id = $1`, bankID).
		Scan(&p.ID, &p.BankID, &large, &capital, &conc,
			&p.Status.Compliant, &p.Status.CapitalUpToDate,
			&p.CreatedAt, &p.ModifiedAt, &p.ModifiedBy, &p.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return params.RiskParameters{}, params.ErrNotFound
	}
	if err != nil {
		return params.RiskParameters{}, fmt.Errorf("get risk parameters for %s: %w", bankID, err)
	}

	if err := json.Unmarshal(large, &p.LargeExposures); err != nil {
		return params.RiskParameters{}, fmt.Errorf("decode large exposures for %s: %w", bankID, err)
	}
	if err := json.Unmarshal(capital, &p.CapitalBase); err != nil {
		return params.RiskParameters{}, fmt.Errorf("decode capital base for %s: %w", bankID, err)
	}
	if err := json.Unmarshal(conc, &p.ConcentrationRisk); err != nil {
		return params.RiskParameters{}, fmt.Errorf("decode concentration risk for %s: %w", bankID, err)
	}
	return p, nil
}

func (s *PostgresStore) SaveRiskParameters(ctx context.Context, p params.RiskParameters) error {
	large, capital, conc, err := marshalGroups(p)
	if err != nil {
		return err
	}

	// The version predicate is the whole concurrency story: a stale writer
	// matches zero rows and gets a conflict to retry.
	tag, err := s.pool.Exec(ctx,
		`UPDATE risk_parameters
		 SET large_exposures = $2, capital_base = $3, concentration_risk = $4,
		     compliant = $5, capital_up_to_date = $6,
		     modified_at = $7, modified_by = $8, version = $9
		 WHERE bank_id = $1 AND version = $10`,
		p.BankID, large, capital, conc,
		p.Status.Compliant, p.Status.CapitalUpToDate,
		p.ModifiedAt, p.ModifiedBy, p.Version, p.Version-1,
	)
	if err != nil {
		return fmt.Errorf("save risk parameters for %s: %w", p.BankID, err)
	}
	if tag.RowsAffected() == 0 {
		metrics.ParameterConflicts.Inc()
		return &params.ConflictError{BankID: p.BankID, ExpectedVersion: p.Version - 1}
	}
	return nil
}

func marshalGroups(p params.RiskParameters) (large, capital, conc []byte, err error) {
	if large, err = json.Marshal(p.LargeExposures); err != nil {
		return nil, nil, nil, fmt.Errorf("serialize large exposures: %w", err)
	}
	if capital, err = json.Marshal(p.CapitalBase); err != nil {
		return nil, nil, nil, fmt.Errorf("serialize capital base: %w", err)
	}
	if conc, err = json.Marshal(p.ConcentrationRisk); err != nil {
		return nil, nil, nil, fmt.Errorf("serialize concentration risk: %w", err)
	}
	return large, capital, conc, nil
}
