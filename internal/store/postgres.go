package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/PratikDhanave/trigger-contract-service/internal/models"
	"github.com/PratikDhanave/trigger-contract-service/internal/pipeline"
)

// schemaSQL is embedded so the service can self-bootstrap its database schema.
//
//go:embed schema.sql
var schemaSQL string

// PostgresStore persists closed trigger sessions and dropped updates.
// It implements pipeline.Recorder.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ pipeline.Recorder = (*PostgresStore)(nil)

// NewPostgresStore creates a connection pool and fails fast if DB is unreachable.
func NewPostgresStore(ctx context.Context, dbURL string) (*PostgresStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// EnsureSchema applies schema.sql. Safe to run multiple times.
func (p *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, schemaSQL)
	return err
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresStore) Close() {
	p.pool.Close()
}

// RecordOutcome stores a closed session.
func (p *PostgresStore) RecordOutcome(ctx context.Context, o pipeline.Outcome) error {
	_, err := p.InsertOutcome(ctx, o)
	return err
}

// InsertOutcome persists a closed session and returns inserted=false when the
// (tenant_id, request_id) pair was already recorded, e.g. by another replica.
func (p *PostgresStore) InsertOutcome(ctx context.Context, o pipeline.Outcome) (bool, error) {
	row, err := newOutcomeRow(o)
	if err != nil {
		return false, err
	}

	// RETURNING 1 only when inserted; duplicates return no rows.
	var one int
	err = p.pool.QueryRow(ctx, `
		INSERT INTO trigger_outcomes(
			tenant_id, request_id, event_name, kind, decision_kind, entitlement_kind,
			origin, close_reason, updates, started_at, closed_at, payload, options)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (tenant_id, request_id) DO NOTHING
		RETURNING 1
	`, row.tenantID, row.requestID, row.eventName, row.kind, row.decisionKind, row.entitlementKind,
		row.origin, row.reason, row.updates, row.startedAt, row.closedAt, row.payload, row.options).Scan(&one)

	if err == nil {
		return true, nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return false, err
}

// RecordAnomaly stores one dropped update.
func (p *PostgresStore) RecordAnomaly(ctx context.Context, a pipeline.Anomaly) error {
	if a.Tenant == "" || a.RequestID == "" {
		return errors.New("tenant and request id required")
	}
	body, err := updateBody(a.Update)
	if err != nil {
		return err
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO trigger_anomalies(tenant_id, request_id, reason, kind, update_body, observed_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, a.Tenant, a.RequestID, string(a.Reason), string(a.Update.Kind()), body, a.At)
	return err
}

// CountOutcomes returns the number of terminal outcomes for tenantID closed in
// [from,to). An empty kind counts every kind. Sessions that closed without a
// terminal update are not counted.
func (p *PostgresStore) CountOutcomes(
	ctx context.Context,
	tenantID string,
	kind string,
	from time.Time,
	to time.Time,
) (int64, error) {

	var count int64
	err := p.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM trigger_outcomes
		WHERE tenant_id=$1
		  AND kind <> ''
		  AND ($2::text = '' OR kind = $2)
		  AND closed_at >= $3
		  AND closed_at <  $4
	`, tenantID, kind, from, to).Scan(&count)

	return count, err
}

type outcomeRow struct {
	tenantID        string
	requestID       string
	eventName       string
	kind            string
	decisionKind    string
	entitlementKind string
	origin          string
	reason          string
	updates         int
	startedAt       time.Time
	closedAt        time.Time
	payload         []byte
	options         []byte
}

func newOutcomeRow(o pipeline.Outcome) (outcomeRow, error) {
	if o.Tenant == "" || o.RequestID == "" {
		return outcomeRow{}, errors.New("tenant and request id required")
	}
	body, err := updateBody(o.Update)
	if err != nil {
		return outcomeRow{}, err
	}
	options := []byte("{}")
	if !o.Trigger.IsZero() {
		if options, err = json.Marshal(o.Trigger); err != nil {
			return outcomeRow{}, err
		}
	}
	return outcomeRow{
		tenantID:        o.Tenant,
		requestID:       o.RequestID,
		eventName:       o.EventName,
		kind:            string(o.Update.Kind()),
		decisionKind:    string(o.Update.DecisionKind()),
		entitlementKind: string(o.Update.EntitlementKind()),
		origin:          string(o.Origin),
		reason:          string(o.Reason),
		updates:         o.Updates,
		startedAt:       o.StartedAt,
		closedAt:        o.ClosedAt,
		payload:         body,
		options:         options,
	}, nil
}

func updateBody(u models.TriggerUpdate) ([]byte, error) {
	if u.IsZero() {
		return []byte("{}"), nil
	}
	return json.Marshal(u)
}
