package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/sentinel/internal/config"
	"github.com/your-org/sentinel/internal/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateDetection persists one detection record, duplicate or not.
func (s *PostgresStore) CreateDetection(ctx context.Context, d *models.Detection) error {
	d.ID = uuid.New()
	d.CreatedAt = time.Now()

	var vec *pgvector.Vector
	if len(d.Embedding) > 0 {
		v := pgvector.NewVector(d.Embedding)
		vec = &v
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO detections (id, detection_id, target_id, camera_id, user_id, timestamp, confidence,
		                         bbox_x, bbox_y, bbox_w, bbox_h, embedding, snapshot_key,
		                         is_duplicate, duplicate_of, dedup_reason, alert_created, alerted_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		d.ID, d.DetectionID, d.TargetID, d.CameraID, d.UserID, d.Timestamp, d.Confidence,
		d.BBox.X, d.BBox.Y, d.BBox.W, d.BBox.H, vec, d.SnapshotKey,
		d.IsDuplicate, d.DuplicateOf, d.DedupReason, d.AlertCreated, d.AlertedAt, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("create detection: %w", err)
	}
	return nil
}

// GetDetection returns a single record by its row ID, or nil if absent.
func (s *PostgresStore) GetDetection(ctx context.Context, id uuid.UUID) (*models.Detection, error) {
	d := &models.Detection{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, detection_id, target_id, camera_id, user_id, timestamp, confidence,
		        bbox_x, bbox_y, bbox_w, bbox_h, snapshot_key,
		        is_duplicate, duplicate_of, dedup_reason, alert_created, alerted_at, created_at
		 FROM detections WHERE id = $1`, id,
	).Scan(&d.ID, &d.DetectionID, &d.TargetID, &d.CameraID, &d.UserID, &d.Timestamp, &d.Confidence,
		&d.BBox.X, &d.BBox.Y, &d.BBox.W, &d.BBox.H, &d.SnapshotKey,
		&d.IsDuplicate, &d.DuplicateOf, &d.DedupReason, &d.AlertCreated, &d.AlertedAt, &d.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get detection: %w", err)
	}
	return d, nil
}

// DetectionFilter narrows QueryDetections results.
type DetectionFilter struct {
	TargetID   string
	CameraID   string
	UserID     string
	From       *time.Time
	To         *time.Time
	Duplicates *bool // nil: both; true: only duplicates; false: only originals
	Alerted    *bool
	Limit      int
	Offset     int
}

// QueryDetections returns a page of records matching the filter plus the
// total match count.
func (s *PostgresStore) QueryDetections(ctx context.Context, f DetectionFilter) ([]models.Detection, int, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Limit > 500 {
		f.Limit = 500
	}

	where := "WHERE 1=1"
	args := []interface{}{}
	argIdx := 1

	if f.TargetID != "" {
		where += fmt.Sprintf(" AND target_id = $%d", argIdx)
		args = append(args, f.TargetID)
		argIdx++
	}
	if f.CameraID != "" {
		where += fmt.Sprintf(" AND camera_id = $%d", argIdx)
		args = append(args, f.CameraID)
		argIdx++
	}
	if f.UserID != "" {
		where += fmt.Sprintf(" AND user_id = $%d", argIdx)
		args = append(args, f.UserID)
		argIdx++
	}
	if f.From != nil {
		where += fmt.Sprintf(" AND timestamp >= $%d", argIdx)
		args = append(args, *f.From)
		argIdx++
	}
	if f.To != nil {
		where += fmt.Sprintf(" AND timestamp <= $%d", argIdx)
		args = append(args, *f.To)
		argIdx++
	}
	if f.Duplicates != nil {
		where += fmt.Sprintf(" AND is_duplicate = $%d", argIdx)
		args = append(args, *f.Duplicates)
		argIdx++
	}
	if f.Alerted != nil {
		where += fmt.Sprintf(" AND alert_created = $%d", argIdx)
		args = append(args, *f.Alerted)
		argIdx++
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM detections " + where
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count detections: %w", err)
	}

	query := fmt.Sprintf(
		`SELECT id, detection_id, target_id, camera_id, user_id, timestamp, confidence,
		        bbox_x, bbox_y, bbox_w, bbox_h, snapshot_key,
		        is_duplicate, duplicate_of, dedup_reason, alert_created, alerted_at, created_at
		 FROM detections %s ORDER BY timestamp DESC LIMIT $%d OFFSET $%d`,
		where, argIdx, argIdx+1)
	args = append(args, f.Limit, f.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query detections: %w", err)
	}
	defer rows.Close()

	var detections []models.Detection
	for rows.Next() {
		var d models.Detection
		if err := rows.Scan(&d.ID, &d.DetectionID, &d.TargetID, &d.CameraID, &d.UserID, &d.Timestamp, &d.Confidence,
			&d.BBox.X, &d.BBox.Y, &d.BBox.W, &d.BBox.H, &d.SnapshotKey,
			&d.IsDuplicate, &d.DuplicateOf, &d.DedupReason, &d.AlertCreated, &d.AlertedAt, &d.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan detection: %w", err)
		}
		detections = append(detections, d)
	}
	return detections, total, nil
}
