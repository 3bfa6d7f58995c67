// Package storage persists ledger runs to PostgreSQL.
package storage

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/PageDAO/DAO-Tools/internal/proposal"
	"github.com/PageDAO/DAO-Tools/pkg/ledger"
)

var (
	ErrRunExists   = errors.New("run already exists")
	ErrRunNotFound = errors.New("run not found")
)

const (
	queryTimeout = 5 * time.Second
	writeTimeout = 60 * time.Second
)

// Run is the stored header of one batch run.
type Run struct {
	ID                string    `json:"id"`
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        time.Time `json:"finished_at"`
	Transactions      int       `json:"transactions"`
	Unresolved        int       `json:"unresolved"`
	TotalUSD          float64   `json:"total_usd"`
	CoreTeamUSD       float64   `json:"core_team_usd"`
	MessagesScanned   int       `json:"messages_scanned"`
	PaymentsExtracted int       `json:"payments_extracted"`
	DecodeFailures    int       `json:"decode_failures"`
	CreatedAt         time.Time `json:"created_at"`
}

// PostgresRepository stores runs, their transactions and diagnostics.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository connects to dsn and verifies the connection.
func NewPostgresRepository(ctx context.Context, dsn string) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	config.MaxConns = 10
	config.MaxConnIdleTime = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresRepository{pool: pool}, nil
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the connection pool
func (r *PostgresRepository) Close() {
	r.pool.Close()
}

var transactionColumns = []string{
	"run_id", "seq", "proposal_id", "proposal_title", "proposal_date", "subunit_name",
	"subunit_address", "recipient", "recipient_type", "payment_type", "message_kind",
	"raw_amount", "denom", "amount", "symbol", "usd_value", "transaction_category",
	"amount_category", "tags", "contract_address", "contract_method", "category",
}

// SaveRun writes a run and all its rows in one transaction. A run ID that
// is already stored yields ErrRunExists.
func (r *PostgresRepository) SaveRun(ctx context.Context, diag ledger.Diagnostics, txs []ledger.Transaction) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	run := summarize(diag, txs)

	dbtx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = dbtx.Rollback(ctx) }()

	_, err = dbtx.Exec(ctx, `
		INSERT INTO runs (id, started_at, finished_at, transactions, unresolved, total_usd,
		                  core_team_usd, messages_scanned, payments_extracted, decode_failures)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, run.ID, run.StartedAt, run.FinishedAt, run.Transactions, run.Unresolved, run.TotalUSD,
		run.CoreTeamUSD, run.MessagesScanned, run.PaymentsExtracted, run.DecodeFailures)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrRunExists
		}
		return fmt.Errorf("failed to insert run: %w", err)
	}

	_, err = dbtx.CopyFrom(ctx, pgx.Identifier{"transactions"}, transactionColumns,
		pgx.CopyFromSlice(len(txs), func(i int) ([]any, error) {
			return transactionRow(run.ID, i, txs[i]), nil
		}))
	if err != nil {
		return fmt.Errorf("failed to copy transactions: %w", err)
	}

	batch := &pgx.Batch{}
	for i, s := range diag.Subunits {
		batch.Queue(`
			INSERT INTO run_subunits (run_id, seq, name, address, proposals, payments, decode_failures, error)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, run.ID, i, s.Name, s.Address, s.Proposals, s.Payments, s.DecodeFailures, s.Error)
	}
	for i, pe := range diag.ProposalErrors {
		batch.Queue(`
			INSERT INTO proposal_errors (run_id, seq, subunit, proposal_id, error)
			VALUES ($1, $2, $3, $4, $5)
		`, run.ID, i, pe.Subunit, pe.ProposalID, pe.Error)
	}
	if batch.Len() > 0 {
		if err := dbtx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert diagnostics: %w", err)
		}
	}

	if err := dbtx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

func summarize(diag ledger.Diagnostics, txs []ledger.Transaction) Run {
	run := Run{
		ID:                diag.RunID,
		StartedAt:         diag.StartedAt,
		FinishedAt:        diag.FinishedAt,
		Transactions:      len(txs),
		MessagesScanned:   diag.MessagesScanned,
		PaymentsExtracted: diag.PaymentsExtracted,
		DecodeFailures:    diag.DecodeFailures,
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = run.StartedAt
	}
	for _, tx := range txs {
		v, ok := tx.USD.Get()
		if !ok {
			run.Unresolved++
			continue
		}
		run.TotalUSD += v
		if tx.IsCoreTeam() {
			run.CoreTeamUSD += v
		}
	}
	return run
}

func transactionRow(runID string, seq int, tx ledger.Transaction) []any {
	amount := pgtype.Numeric{Int: big.NewInt(0), Valid: true}
	if tx.RawAmount != nil {
		amount.Int = tx.RawAmount
	}
	var date *time.Time
	if d, ok := proposal.ParseDate(tx.ProposalDate); ok {
		date = &d
	}
	var usd *float64
	if v, ok := tx.USD.Get(); ok {
		usd = &v
	}
	tags := tx.Tags
	if tags == nil {
		tags = []string{}
	}
	return []any{
		runID, seq, tx.ProposalID, tx.ProposalTitle, date, tx.SubunitName,
		tx.SubunitAddress, tx.Recipient, string(tx.RecipientType), string(tx.PaymentType), string(tx.Kind),
		amount, tx.Denom, tx.AdjustedAmount, tx.DisplaySymbol, usd, tx.TransactionCategory,
		tx.AmountCategory, tags, tx.ContractAddress, tx.ContractMethod, tx.Category,
	}
}

const runColumns = `id, started_at, finished_at, transactions, unresolved, total_usd,
	core_team_usd, messages_scanned, payments_extracted, decode_failures, created_at`

func scanRun(row pgx.Row) (Run, error) {
	var run Run
	err := row.Scan(&run.ID, &run.StartedAt, &run.FinishedAt, &run.Transactions, &run.Unresolved,
		&run.TotalUSD, &run.CoreTeamUSD, &run.MessagesScanned, &run.PaymentsExtracted,
		&run.DecodeFailures, &run.CreatedAt)
	return run, err
}

// GetRun returns one stored run header.
func (r *PostgresRepository) GetRun(ctx context.Context, id string) (*Run, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	run, err := scanRun(r.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

// ListRuns returns the most recent runs first.
func (r *PostgresRepository) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// Transactions returns a run's ledger in its original order.
func (r *PostgresRepository) Transactions(ctx context.Context, runID string) ([]ledger.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, `
		SELECT proposal_id, proposal_title, proposal_date, subunit_name, subunit_address,
		       recipient, recipient_type, payment_type, message_kind, raw_amount::text, denom,
		       amount, symbol, usd_value, transaction_category, amount_category, tags,
		       contract_address, contract_method, category
		FROM transactions
		WHERE run_id = $1
		ORDER BY seq
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var out []ledger.Transaction
	for rows.Next() {
		var (
			tx                         ledger.Transaction
			date                       *time.Time
			recipientType, paymentType string
			kind, rawAmount            string
			usd                        *float64
		)
		err := rows.Scan(&tx.ProposalID, &tx.ProposalTitle, &date, &tx.SubunitName, &tx.SubunitAddress,
			&tx.Recipient, &recipientType, &paymentType, &kind, &rawAmount, &tx.Denom,
			&tx.AdjustedAmount, &tx.DisplaySymbol, &usd, &tx.TransactionCategory, &tx.AmountCategory, &tx.Tags,
			&tx.ContractAddress, &tx.ContractMethod, &tx.Category)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}

		tx.RecipientType = ledger.RecipientType(recipientType)
		tx.PaymentType = ledger.PaymentType(paymentType)
		tx.Kind = ledger.MessageKind(kind)
		if n, ok := new(big.Int).SetString(rawAmount, 10); ok {
			tx.RawAmount = n
		}
		if date != nil {
			tx.ProposalDate = date.UTC().Format(proposal.DateLayout)
		}
		if usd != nil {
			tx.USD = ledger.Resolved(*usd)
		}
		if len(tx.Tags) == 0 {
			tx.Tags = nil
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// Diagnostics returns a run's stored diagnostics.
func (r *PostgresRepository) Diagnostics(ctx context.Context, runID string) (ledger.Diagnostics, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	run, err := scanRun(r.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, runID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.Diagnostics{}, ErrRunNotFound
		}
		return ledger.Diagnostics{}, fmt.Errorf("failed to get run: %w", err)
	}
	diag := ledger.Diagnostics{
		RunID:             run.ID,
		StartedAt:         run.StartedAt,
		FinishedAt:        run.FinishedAt,
		MessagesScanned:   run.MessagesScanned,
		PaymentsExtracted: run.PaymentsExtracted,
		DecodeFailures:    run.DecodeFailures,
	}

	rows, err := r.pool.Query(ctx, `
		SELECT name, address, proposals, payments, decode_failures, error
		FROM run_subunits WHERE run_id = $1 ORDER BY seq
	`, runID)
	if err != nil {
		return diag, fmt.Errorf("failed to query sub-units: %w", err)
	}
	diag.Subunits, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (ledger.SubunitStats, error) {
		var s ledger.SubunitStats
		err := row.Scan(&s.Name, &s.Address, &s.Proposals, &s.Payments, &s.DecodeFailures, &s.Error)
		return s, err
	})
	if err != nil {
		return diag, fmt.Errorf("failed to scan sub-units: %w", err)
	}

	rows, err = r.pool.Query(ctx, `
		SELECT subunit, proposal_id, error
		FROM proposal_errors WHERE run_id = $1 ORDER BY seq
	`, runID)
	if err != nil {
		return diag, fmt.Errorf("failed to query proposal errors: %w", err)
	}
	diag.ProposalErrors, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (ledger.ProposalError, error) {
		var pe ledger.ProposalError
		err := row.Scan(&pe.Subunit, &pe.ProposalID, &pe.Error)
		return pe, err
	})
	if err != nil {
		return diag, fmt.Errorf("failed to scan proposal errors: %w", err)
	}
	return diag, nil
}

// DeleteRun removes a run and, by cascade, its rows.
func (r *PostgresRepository) DeleteRun(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx, `DELETE FROM runs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotFound
	}
	return nil
}
