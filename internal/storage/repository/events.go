package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pereloman/cardperks/internal/models"
)

func scanEvent(row rowScanner) (*models.Event, error) {
	var e models.Event
	var description sql.NullString
	var detail []byte

	if err := row.Scan(&e.ID, &e.CardID, &e.Type, &e.Date, &description, &detail); err != nil {
		return nil, err
	}
	if description.Valid {
		e.Description = description.String
	}
	d, err := models.UnmarshalDetail(detail)
	if err != nil {
		return nil, err
	}
	e.Detail = d
	return &e, nil
}

// CreateEvent вставляет событие в журнал карты и возвращает его ID.
func (s *Storage) CreateEvent(ctx context.Context, event models.Event) (int, error) {
	const op = "storage.CreateEvent"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	detail, err := models.MarshalDetail(event.Detail)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	query := `INSERT INTO card_events (card_id, type, date, description, detail)
			  VALUES ($1, $2, $3, $4, $5)
			  RETURNING id`
	var newID int
	err = s.DB.QueryRowContext(ctx, query,
		event.CardID, event.Type, event.Date, event.Description, detail).Scan(&newID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}

// ReadEvent возвращает событие по его ID.
func (s *Storage) ReadEvent(ctx context.Context, id int) (*models.Event, error) {
	const op = "storage.ReadEvent"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, card_id, type, date, description, detail
			  FROM card_events WHERE id = $1`
	event, err := scanEvent(s.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return event, nil
}

// ListEvents возвращает журнал событий карты в хронологическом порядке.
func (s *Storage) ListEvents(ctx context.Context, cardID int) ([]*models.Event, error) {
	const op = "storage.ListEvents"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, card_id, type, date, description, detail
			  FROM card_events
			  WHERE card_id = $1
			  ORDER BY date, id`
	rows, err := s.DB.QueryContext(ctx, query, cardID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, event)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// UpdateEvent обновляет событие по его ID и возвращает количество изменённых строк.
func (s *Storage) UpdateEvent(ctx context.Context, event models.Event, id int) (int, error) {
	const op = "storage.UpdateEvent"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	detail, err := models.MarshalDetail(event.Detail)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	query := `UPDATE card_events
			  SET type = $1, date = $2, description = $3, detail = $4
			  WHERE id = $5`
	result, err := s.DB.ExecContext(ctx, query,
		event.Type, event.Date, event.Description, detail, id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// RemoveEvent удаляет событие по его ID и возвращает количество удалённых строк.
func (s *Storage) RemoveEvent(ctx context.Context, id int) (int, error) {
	const op = "storage.RemoveEvent"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `DELETE FROM card_events WHERE id = $1`
	result, err := s.DB.ExecContext(ctx, query, id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}
