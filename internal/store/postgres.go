package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/xkilldash9x/aegiscore/api/schemas"
	"go.uber.org/zap"
)

const alertColumns = `id, timestamp, source_ip, destination_ip, destination_port, protocol,
        packet_size, predicted_label, confidence, risk_score, status, escalation_flag,
        COALESCE(source_country, '')`

const sqlCreateAlerts = `
        CREATE TABLE IF NOT EXISTS alerts (
            id               TEXT PRIMARY KEY,
            timestamp        TEXT NOT NULL,
            source_ip        TEXT NOT NULL,
            destination_ip   TEXT NOT NULL,
            destination_port INTEGER NOT NULL,
            protocol         TEXT NOT NULL,
            packet_size      INTEGER NOT NULL,
            predicted_label  TEXT NOT NULL,
            confidence       DOUBLE PRECISION NOT NULL,
            risk_score       DOUBLE PRECISION NOT NULL,
            status           TEXT NOT NULL DEFAULT 'Active',
            escalation_flag  BOOLEAN NOT NULL DEFAULT FALSE,
            source_country   TEXT
        );
        CREATE INDEX IF NOT EXISTS alerts_timestamp_idx ON alerts (timestamp DESC);
    `

const sqlInsertAlert = `
        INSERT INTO alerts (id, timestamp, source_ip, destination_ip, destination_port, protocol,
            packet_size, predicted_label, confidence, risk_score, status, escalation_flag, source_country)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NULLIF($13, ''))
        ON CONFLICT (id) DO NOTHING;
    `

const sqlUpdateStatus = `
        UPDATE alerts SET status = $2
        WHERE id = $1
        RETURNING ` + alertColumns + `;
    `

const sqlSelectByID = `
        SELECT ` + alertColumns + `
        FROM alerts
        WHERE id = $1;
    `

// Repository runs alert statements against whatever handle the gate hands out.
// It holds no connection of its own.
type Repository struct {
	log *zap.Logger
}

// NewRepository creates a Repository.
func NewRepository(logger *zap.Logger) *Repository {
	return &Repository{log: logger.Named("postgres")}
}

// EnsureSchema creates the alerts table if it does not exist.
func (r *Repository) EnsureSchema(ctx context.Context, db DBPool) error {
	if _, err := db.Exec(ctx, sqlCreateAlerts); err != nil {
		return fmt.Errorf("failed to create alerts schema: %w", err)
	}
	return nil
}

// listQuery builds the SELECT for List. The status predicate comes before
// LIMIT so a filtered query still returns up to limit matching rows.
func listQuery(limit int, filter schemas.StatusFilter) (string, []any) {
	var b strings.Builder
	var args []any
	b.WriteString("SELECT " + alertColumns + " FROM alerts")

	switch filter {
	case schemas.FilterActive:
		args = append(args, string(schemas.StatusResolved))
		b.WriteString(" WHERE status <> $1")
	case schemas.FilterResolved:
		args = append(args, string(schemas.StatusResolved))
		b.WriteString(" WHERE status = $1")
	}

	b.WriteString(" ORDER BY timestamp DESC")
	if limit > 0 {
		args = append(args, limit)
		fmt.Fprintf(&b, " LIMIT $%d", len(args))
	}
	return b.String(), args
}

// List returns up to limit alerts matching filter, newest first. limit <= 0
// returns every match.
func (r *Repository) List(ctx context.Context, db DBPool, limit int, filter schemas.StatusFilter) ([]schemas.AlertRecord, error) {
	query, args := listQuery(limit, filter)
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	alerts := make([]schemas.AlertRecord, 0)
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert row: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return alerts, nil
}

// Insert adds records in one transaction. Ids already present are skipped,
// so replaying a snapshot is harmless.
func (r *Repository) Insert(ctx context.Context, db DBPool, records []schemas.AlertRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			r.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	batch := &pgx.Batch{}
	for _, a := range records {
		status := a.Status
		if status == "" {
			status = schemas.StatusActive
		}
		batch.Queue(sqlInsertAlert,
			a.ID, a.Timestamp, a.SourceIP, a.DestinationIP, a.DestinationPort, a.Protocol,
			a.PacketSize, a.PredictedLabel, a.Confidence, a.RiskScore, string(status), a.EscalationFlag,
			a.SourceCountry,
		)
	}

	if err := execBatch(tx.SendBatch(ctx, batch), records); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func execBatch(br pgx.BatchResults, records []schemas.AlertRecord) error {
	if br == nil {
		return fmt.Errorf("failed to send batch: batch results is nil")
	}
	defer func() {
		_ = br.Close()
	}()
	for i := range records {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to insert alert %s (index %d): %w", records[i].ID, i, err)
		}
	}
	return nil
}

// UpdateStatus sets the status of one alert and returns the updated row.
func (r *Repository) UpdateStatus(ctx context.Context, db DBPool, id string, status schemas.AlertStatus) (schemas.AlertRecord, error) {
	a, err := scanAlert(db.QueryRow(ctx, sqlUpdateStatus, id, string(status)))
	if errors.Is(err, pgx.ErrNoRows) {
		return schemas.AlertRecord{}, schemas.ErrNotFound
	}
	if err != nil {
		return schemas.AlertRecord{}, fmt.Errorf("failed to update alert %s: %w", id, err)
	}
	return a, nil
}

// Get loads one alert by id.
func (r *Repository) Get(ctx context.Context, db DBPool, id string) (schemas.AlertRecord, error) {
	a, err := scanAlert(db.QueryRow(ctx, sqlSelectByID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return schemas.AlertRecord{}, schemas.ErrNotFound
	}
	if err != nil {
		return schemas.AlertRecord{}, fmt.Errorf("failed to load alert %s: %w", id, err)
	}
	return a, nil
}

func scanAlert(row pgx.Row) (schemas.AlertRecord, error) {
	var a schemas.AlertRecord
	var status string
	err := row.Scan(
		&a.ID, &a.Timestamp, &a.SourceIP, &a.DestinationIP, &a.DestinationPort, &a.Protocol,
		&a.PacketSize, &a.PredictedLabel, &a.Confidence, &a.RiskScore, &status, &a.EscalationFlag,
		&a.SourceCountry,
	)
	if err != nil {
		return schemas.AlertRecord{}, err
	}
	a.Status = schemas.AlertStatus(status)
	return a, nil
}
