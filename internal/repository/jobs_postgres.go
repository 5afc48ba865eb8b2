package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/a2v/audio2video-back/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresJobsRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresJobsRepository(ctx context.Context, databaseURL string) (*PostgresJobsRepository, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pg pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pg: %w", err)
	}
	return &PostgresJobsRepository{pool: pool}, nil
}

func (r *PostgresJobsRepository) Close() {
	r.pool.Close()
}

func (r *PostgresJobsRepository) CreateJob(ctx context.Context, record *JobRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO jobs (
			id,
			batch_id,
			original_filename,
			resource_base_name,
			audio_extension,
			state,
			error_message,
			created_at,
			updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`,
		record.ID,
		record.BatchID,
		record.OriginalFilename,
		record.ResourceBaseName,
		record.AudioExtension,
		string(record.State),
		record.ErrorMessage,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *PostgresJobsRepository) UpdateJobState(
	ctx context.Context,
	jobID string,
	state domain.JobState,
	errorMessage string,
) error {
	command, err := r.pool.Exec(ctx, `
		UPDATE jobs
		SET state = $2,
			error_message = $3,
			updated_at = $4
		WHERE id = $1
	`, jobID, string(state), errorMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if command.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresJobsRepository) GetJob(ctx context.Context, jobID string) (*JobRecord, error) {
	var (
		record JobRecord
		state  string
	)

	err := r.pool.QueryRow(ctx, `
		SELECT id, batch_id, original_filename, resource_base_name, audio_extension, state, error_message, created_at, updated_at
		FROM jobs
		WHERE id = $1
	`, jobID).Scan(
		&record.ID,
		&record.BatchID,
		&record.OriginalFilename,
		&record.ResourceBaseName,
		&record.AudioExtension,
		&state,
		&record.ErrorMessage,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query job: %w", err)
	}

	record.State = domain.JobState(state)
	return &record, nil
}

func (r *PostgresJobsRepository) ListRecent(ctx context.Context, limit int) ([]JobRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, batch_id, original_filename, resource_base_name, audio_extension, state, error_message, created_at, updated_at
		FROM jobs
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	records := make([]JobRecord, 0, limit)
	for rows.Next() {
		var (
			record JobRecord
			state  string
		)
		if err := rows.Scan(
			&record.ID,
			&record.BatchID,
			&record.OriginalFilename,
			&record.ResourceBaseName,
			&record.AudioExtension,
			&state,
			&record.ErrorMessage,
			&record.CreatedAt,
			&record.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan job record: %w", err)
		}
		record.State = domain.JobState(state)
		records = append(records, record)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate job records: %w", rows.Err())
	}
	return records, nil
}
