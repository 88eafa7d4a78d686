package postgres

import (
	"context"
	"fmt"

	"github.com/cotex-app/cotex/internal/models"
	"github.com/cotex-app/cotex/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type EventStore struct {
	pool *pgxpool.Pool
}

func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

func (s *EventStore) Record(ctx context.Context, projectID uuid.UUID, filePath, fileName, eventType string) (*models.FileEvent, error) {
	query := `
		INSERT INTO file_events (id, project_id, file_path, file_name, event_type, processed, timestamp)
		VALUES (uuid_generate_v4(), $1, $2, $3, $4, false, now())
		RETURNING id, project_id, file_path, file_name, event_type, processed, timestamp`

	var e models.FileEvent
	err := s.pool.QueryRow(ctx, query, projectID, filePath, fileName, eventType).Scan(
		&e.ID,
		&e.ProjectID,
		&e.FilePath,
		&e.FileName,
		&e.EventType,
		&e.Processed,
		&e.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert file event: %w", err)
	}
	return &e, nil
}

// ListUnprocessed returns pending events oldest first. The id tie-break keeps
// the order stable when several events share a timestamp, which happens
// whenever one delivery records a whole batch.
func (s *EventStore) ListUnprocessed(ctx context.Context, projectID uuid.UUID) ([]models.FileEvent, error) {
	query := `
		SELECT id, project_id, file_path, file_name, event_type, processed, timestamp
		FROM file_events
		WHERE project_id = $1 AND processed = false
		ORDER BY timestamp ASC, id ASC`

	rows, err := s.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("list file events: %w", err)
	}
	defer rows.Close()

	events := make([]models.FileEvent, 0)
	for rows.Next() {
		var e models.FileEvent
		if err := rows.Scan(
			&e.ID,
			&e.ProjectID,
			&e.FilePath,
			&e.FileName,
			&e.EventType,
			&e.Processed,
			&e.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan file event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate file events: %w", err)
	}

	return events, nil
}

func (s *EventStore) MarkProcessed(ctx context.Context, eventID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE file_events SET processed = true WHERE id = $1`, eventID)
	if err != nil {
		return fmt.Errorf("mark event processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
