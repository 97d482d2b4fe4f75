package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pereloman/cardperks/internal/models"
)

func scanBonus(row rowScanner) (*models.Bonus, error) {
	var b models.Bonus
	var eventID, spendRequirement sql.NullInt64
	var bonusType, description sql.NullString
	var spendDeadline sql.NullTime

	if err := row.Scan(&b.ID, &b.CardID, &eventID, &b.Source, &b.Amount,
		&bonusType, &spendRequirement, &spendDeadline, &b.Earned, &description); err != nil {
		return nil, err
	}
	b.EventID = nullInt(eventID)
	b.Type = nullString(bonusType)
	b.SpendRequirement = nullInt(spendRequirement)
	b.SpendDeadline = nullTime(spendDeadline)
	b.Description = nullString(description)
	return &b, nil
}

// CreateBonus вставляет бонус и возвращает его ID.
func (s *Storage) CreateBonus(ctx context.Context, bonus models.Bonus) (int, error) {
	const op = "storage.CreateBonus"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO bonuses (card_id, event_id, source, amount, type,
			      spend_requirement, spend_deadline, earned, description)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			  RETURNING id`
	var newID int
	err := s.DB.QueryRowContext(ctx, query,
		bonus.CardID, bonus.EventID, bonus.Source, bonus.Amount, bonus.Type,
		bonus.SpendRequirement, bonus.SpendDeadline, bonus.Earned,
		bonus.Description).Scan(&newID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}

// ListBonuses возвращает бонусы карты.
func (s *Storage) ListBonuses(ctx context.Context, cardID int) ([]*models.Bonus, error) {
	const op = "storage.ListBonuses"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, card_id, event_id, source, amount, type,
			      spend_requirement, spend_deadline, earned, description
			  FROM bonuses
			  WHERE card_id = $1
			  ORDER BY id`
	rows, err := s.DB.QueryContext(ctx, query, cardID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Bonus
	for rows.Next() {
		bonus, err := scanBonus(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, bonus)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// UpdateBonusEarned помечает бонус заработанным или нет.
func (s *Storage) UpdateBonusEarned(ctx context.Context, id int, earned bool) (int, error) {
	const op = "storage.UpdateBonusEarned"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE bonuses SET earned = $1 WHERE id = $2`
	result, err := s.DB.ExecContext(ctx, query, earned, id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

func scanBonusCategory(row rowScanner) (*models.BonusCategory, error) {
	var c models.BonusCategory
	var spendCap sql.NullInt64

	if err := row.Scan(&c.ID, &c.CardID, &c.Category, &c.Multiplier,
		&c.PortalOnly, &spendCap, &c.FromTemplate); err != nil {
		return nil, err
	}
	c.Cap = nullInt(spendCap)
	return &c, nil
}

// CreateBonusCategory вставляет бонусную категорию и возвращает её ID.
func (s *Storage) CreateBonusCategory(ctx context.Context, category models.BonusCategory) (int, error) {
	const op = "storage.CreateBonusCategory"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO bonus_categories (card_id, category, multiplier,
			      portal_only, cap, from_template)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  RETURNING id`
	var newID int
	err := s.DB.QueryRowContext(ctx, query,
		category.CardID, category.Category, category.Multiplier,
		category.PortalOnly, category.Cap, category.FromTemplate).Scan(&newID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}

// ListBonusCategories возвращает бонусные категории карты.
func (s *Storage) ListBonusCategories(ctx context.Context, cardID int) ([]models.BonusCategory, error) {
	const op = "storage.ListBonusCategories"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, card_id, category, multiplier, portal_only, cap, from_template
			  FROM bonus_categories
			  WHERE card_id = $1
			  ORDER BY id`
	rows, err := s.DB.QueryContext(ctx, query, cardID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []models.BonusCategory
	for rows.Next() {
		category, err := scanBonusCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, *category)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// UpdateBonusCategory обновляет бонусную категорию по её ID.
func (s *Storage) UpdateBonusCategory(ctx context.Context, category models.BonusCategory, id int) (int, error) {
	const op = "storage.UpdateBonusCategory"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE bonus_categories
			  SET category = $1, multiplier = $2, portal_only = $3, cap = $4,
			      from_template = $5
			  WHERE id = $6`
	result, err := s.DB.ExecContext(ctx, query,
		category.Category, category.Multiplier, category.PortalOnly,
		category.Cap, category.FromTemplate, id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// RemoveBonusCategory удаляет бонусную категорию по её ID.
func (s *Storage) RemoveBonusCategory(ctx context.Context, id int) (int, error) {
	const op = "storage.RemoveBonusCategory"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `DELETE FROM bonus_categories WHERE id = $1`
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
