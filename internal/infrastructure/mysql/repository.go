package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"poolscope/internal/application"
	"poolscope/internal/domain"

	_ "github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(dsn string) (*Repository, error) {
	if dsn == "" {
		return nil, errors.New("db dsn is required")
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	if err := createSchema(db); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func createSchema(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS pool_logs (
			id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
			network VARCHAR(64) NOT NULL,
			exchange VARCHAR(64) NOT NULL DEFAULT '',
			block_number BIGINT UNSIGNED NOT NULL DEFAULT 0,
			strategy VARCHAR(64) NOT NULL DEFAULT '',
			tx_hash VARCHAR(66) NULL,
			tx_index BIGINT UNSIGNED NOT NULL DEFAULT 0,
			log_index BIGINT UNSIGNED NOT NULL DEFAULT 0,
			removed TINYINT(1) NULL,
			created_at BIGINT NOT NULL,
			PRIMARY KEY (id),
			KEY pool_logs_created_idx (created_at),
			KEY pool_logs_tx_hash_idx (tx_hash)
		)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

var columns = map[string]string{
	application.FieldNetwork:     "network",
	application.FieldStrategy:    "strategy",
	application.FieldBlockNumber: "block_number",
	application.FieldTxHash:      "tx_hash",
	application.FieldRemoved:     "removed",
	application.FieldCreatedAt:   "created_at",
}

var optionColumns = map[string]bool{
	application.FieldNetwork:  true,
	application.FieldStrategy: true,
}

func (r *Repository) StoreLogs(ctx context.Context, logs []domain.Log) error {
	if len(logs) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", application.ErrStoreUnavailable, err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO pool_logs
		(network, exchange, block_number, strategy, tx_hash, tx_index, log_index, removed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%w: %v", application.ErrStoreUnavailable, err)
	}
	defer stmt.Close()

	for _, log := range logs {
		hash := sql.NullString{String: log.TxHash, Valid: log.TxHash != ""}
		removed := 0
		if log.Removed {
			removed = 1
		}
		if _, err := stmt.ExecContext(ctx,
			log.Network,
			log.Exchange,
			log.BlockNumber,
			log.Strategy,
			hash,
			log.TxIndex,
			log.LogIndex,
			removed,
			log.CreatedAt.UTC().UnixNano(),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("%w: %v", application.ErrStoreUnavailable, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", application.ErrStoreUnavailable, err)
	}
	return nil
}

func (r *Repository) QueryLogs(ctx context.Context, constraints []application.Constraint) ([]domain.Log, error) {
	tracer := otel.Tracer("poolscope/mysql")
	ctx, span := tracer.Start(ctx, "store.query_logs")
	defer span.End()
	span.SetAttributes(attribute.Int("constraints.count", len(constraints)))

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	where, args, err := buildWhere(constraints)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	query := `SELECT network, exchange, block_number, strategy, tx_hash, tx_index, log_index, removed, created_at FROM pool_logs`
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %v", application.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var logs []domain.Log
	for rows.Next() {
		var log domain.Log
		var hash sql.NullString
		var removed sql.NullInt64
		var createdAt int64
		if err := rows.Scan(
			&log.Network,
			&log.Exchange,
			&log.BlockNumber,
			&log.Strategy,
			&hash,
			&log.TxIndex,
			&log.LogIndex,
			&removed,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("%w: %v", application.ErrStoreUnavailable, err)
		}
		log.TxHash = hash.String
		log.Removed = removed.Valid && removed.Int64 != 0
		log.CreatedAt = time.Unix(0, createdAt).UTC()
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", application.ErrStoreUnavailable, err)
	}
	span.SetAttributes(attribute.Int("logs.count", len(logs)))
	return logs, nil
}

func (r *Repository) DistinctValues(ctx context.Context, column string) ([]string, error) {
	if !optionColumns[column] {
		return nil, fmt.Errorf("%w: no distinct values for column %q", application.ErrQueryRejected, column)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := fmt.Sprintf("SELECT DISTINCT %s FROM pool_logs WHERE %s IS NOT NULL AND %s != '' ORDER BY %s ASC",
		column, column, column, column)
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", application.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			return nil, fmt.Errorf("%w: %v", application.ErrStoreUnavailable, err)
		}
		values = append(values, value)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", application.ErrStoreUnavailable, err)
	}
	return values, nil
}

func (r *Repository) TransactionHashes(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT tx_hash FROM pool_logs WHERE tx_hash IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", application.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var hash string
		if err := rows.Scan(&hash); err != nil {
			return nil, fmt.Errorf("%w: %v", application.ErrStoreUnavailable, err)
		}
		hashes = append(hashes, hash)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", application.ErrStoreUnavailable, err)
	}
	return hashes, nil
}

func (r *Repository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.db.PingContext(ctx)
}

func buildWhere(constraints []application.Constraint) (string, []any, error) {
	clauses := make([]string, 0, len(constraints))
	args := make([]any, 0, len(constraints))

	for _, c := range constraints {
		column, ok := columns[c.Field]
		if !ok {
			return "", nil, fmt.Errorf("%w: unknown field %q", application.ErrQueryRejected, c.Field)
		}
		switch c.Op {
		case application.OpEquals:
			clauses = append(clauses, column+" = ?")
			args = append(args, bindValue(c.Value))
		case application.OpSubstring:
			clauses = append(clauses, "LOWER("+column+") LIKE CONCAT('%', LOWER(?), '%')")
			args = append(args, fmt.Sprint(c.Value))
		case application.OpGreaterOrEqual:
			clauses = append(clauses, column+" >= ?")
			args = append(args, bindValue(c.Value))
		case application.OpInSet:
			if len(c.Values) == 0 {
				clauses = append(clauses, "1 = 0")
				continue
			}
			placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(c.Values)), ", ")
			clauses = append(clauses, column+" IN ("+placeholders+")")
			for _, value := range c.Values {
				args = append(args, value)
			}
		default:
			return "", nil, fmt.Errorf("%w: unsupported operation %d", application.ErrQueryRejected, c.Op)
		}
	}
	return strings.Join(clauses, " AND "), args, nil
}

func bindValue(value any) any {
	switch v := value.(type) {
	case bool:
		if v {
			return 1
		}
		return 0
	case time.Time:
		return v.UTC().UnixNano()
	default:
		return value
	}
}
