package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pereloman/cardperks/internal/models"
)

const benefitColumns = `card_id, name, amount, frequency, reset_type, type,
	from_template, retired, amount_used, notes, period_start`

func scanBenefit(row rowScanner) (*models.Benefit, error) {
	var b models.Benefit
	var notes sql.NullString
	var periodStart sql.NullTime

	if err := row.Scan(&b.ID, &b.CardID, &b.Name, &b.Amount, &b.Frequency,
		&b.ResetType, &b.Type, &b.FromTemplate, &b.Retired, &b.AmountUsed,
		&notes, &periodStart); err != nil {
		return nil, err
	}
	b.Notes = nullString(notes)
	b.PeriodStart = nullTime(periodStart)
	return &b, nil
}

// CreateBenefit вставляет бенефит и возвращает его ID.
func (s *Storage) CreateBenefit(ctx context.Context, benefit models.Benefit) (int, error) {
	const op = "storage.CreateBenefit"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO benefits (` + benefitColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			  RETURNING id`
	var newID int
	err := s.DB.QueryRowContext(ctx, query,
		benefit.CardID, benefit.Name, benefit.Amount, benefit.Frequency,
		benefit.ResetType, benefit.Type, benefit.FromTemplate, benefit.Retired,
		benefit.AmountUsed, benefit.Notes, benefit.PeriodStart).Scan(&newID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}

// ReadBenefit возвращает бенефит по его ID.
func (s *Storage) ReadBenefit(ctx context.Context, id int) (*models.Benefit, error) {
	const op = "storage.ReadBenefit"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, ` + benefitColumns + ` FROM benefits WHERE id = $1`
	benefit, err := scanBenefit(s.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return benefit, nil
}

// ListBenefits возвращает все бенефиты карты, включая списанные.
func (s *Storage) ListBenefits(ctx context.Context, cardID int) ([]models.Benefit, error) {
	const op = "storage.ListBenefits"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, ` + benefitColumns + `
			  FROM benefits
			  WHERE card_id = $1
			  ORDER BY id`
	rows, err := s.DB.QueryContext(ctx, query, cardID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []models.Benefit
	for rows.Next() {
		benefit, err := scanBenefit(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, *benefit)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// UpdateBenefit обновляет бенефит по его ID и возвращает количество изменённых строк.
func (s *Storage) UpdateBenefit(ctx context.Context, benefit models.Benefit, id int) (int, error) {
	const op = "storage.UpdateBenefit"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE benefits
			  SET name = $1, amount = $2, frequency = $3, reset_type = $4, type = $5,
			      from_template = $6, retired = $7, amount_used = $8, notes = $9,
			      period_start = $10
			  WHERE id = $11`
	result, err := s.DB.ExecContext(ctx, query,
		benefit.Name, benefit.Amount, benefit.Frequency, benefit.ResetType,
		benefit.Type, benefit.FromTemplate, benefit.Retired, benefit.AmountUsed,
		benefit.Notes, benefit.PeriodStart, id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// UpdateBenefitUsage обновляет использованную сумму бенефита.
func (s *Storage) UpdateBenefitUsage(ctx context.Context, id, amountUsed int) (int, error) {
	const op = "storage.UpdateBenefitUsage"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE benefits SET amount_used = $1 WHERE id = $2`
	result, err := s.DB.ExecContext(ctx, query, amountUsed, id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// RefreshBenefitPeriod начинает новый период бенефита: сбрасывает
// использование и передвигает period_start.
func (s *Storage) RefreshBenefitPeriod(ctx context.Context, id int, periodStart time.Time) error {
	const op = "storage.RefreshBenefitPeriod"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE benefits SET amount_used = 0, period_start = $1 WHERE id = $2`
	_, err := s.DB.ExecContext(ctx, query, periodStart, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// RemoveBenefit удаляет бенефит по его ID и возвращает количество удалённых строк.
func (s *Storage) RemoveBenefit(ctx context.Context, id int) (int, error) {
	const op = "storage.RemoveBenefit"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `DELETE FROM benefits WHERE id = $1`
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

// ListBenefitReminderCandidates возвращает неиспользованные до конца
// бенефиты активных карт вместе с данными владельца. Конец периода
// вычисляет вызывающий код: для этого отдаются частота, выравнивание
// и дата открытия карты.
func (s *Storage) ListBenefitReminderCandidates(ctx context.Context) ([]*models.BenefitReminderInfo, error) {
	const op = "storage.ListBenefitReminderCandidates"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT u.email, u.username, c.id, c.name, c.open_date,
				b.id, b.name, b.amount, b.amount_used, b.frequency, b.reset_type, b.period_start
			  FROM benefits b
			  JOIN cards c ON c.id = b.card_id
			  JOIN users u ON u.username = c.username
			  WHERE c.status = 'active'
				AND NOT b.retired
				AND b.amount_used < b.amount
			  ORDER BY b.id`
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	var result []*models.BenefitReminderInfo
	for rows.Next() {
		var info models.BenefitReminderInfo
		var openDate, periodStart sql.NullTime
		if err := rows.Scan(&info.Email, &info.Username, &info.CardID, &info.CardName,
			&openDate, &info.BenefitID, &info.BenefitName, &info.Amount, &info.AmountUsed,
			&info.Frequency, &info.ResetType, &periodStart); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		info.CardOpenDate = nullTime(openDate)
		info.PeriodStart = nullTime(periodStart)
		result = append(result, &info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
