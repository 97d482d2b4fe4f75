package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pereloman/cardperks/internal/models"
)

const cardColumns = `username, template_id, template_version_id, name, issuer, network,
	last_digits, status, open_date, close_date, annual_fee, annual_fee_date,
	annual_fee_user_modified, credit_limit, notes,
	spend_reminder_enabled, spend_requirement, spend_deadline, spend_reminder_notes,
	signup_bonus_amount, signup_bonus_type, signup_bonus_earned`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(row rowScanner) (*models.Card, error) {
	var c models.Card
	var templateID, templateVersionID, network, lastDigits, notes sql.NullString
	var spendReminderNotes, signupBonusType sql.NullString
	var openDate, closeDate, annualFeeDate, spendDeadline sql.NullTime
	var annualFee, creditLimit, spendRequirement, signupBonusAmount sql.NullInt64

	if err := row.Scan(&c.ID, &c.Username, &templateID, &templateVersionID, &c.Name,
		&c.Issuer, &network, &lastDigits, &c.Status, &openDate, &closeDate,
		&annualFee, &annualFeeDate, &c.AnnualFeeUserModified, &creditLimit, &notes,
		&c.SpendReminderEnabled, &spendRequirement, &spendDeadline, &spendReminderNotes,
		&signupBonusAmount, &signupBonusType, &c.SignupBonusEarned); err != nil {
		return nil, err
	}

	c.TemplateID = nullString(templateID)
	c.TemplateVersionID = nullString(templateVersionID)
	c.Network = nullString(network)
	c.LastDigits = nullString(lastDigits)
	c.Notes = nullString(notes)
	c.SpendReminderNotes = nullString(spendReminderNotes)
	c.SignupBonusType = nullString(signupBonusType)
	c.OpenDate = nullTime(openDate)
	c.CloseDate = nullTime(closeDate)
	c.AnnualFeeDate = nullTime(annualFeeDate)
	c.SpendDeadline = nullTime(spendDeadline)
	c.AnnualFee = nullInt(annualFee)
	c.CreditLimit = nullInt(creditLimit)
	c.SpendRequirement = nullInt(spendRequirement)
	c.SignupBonusAmount = nullInt(signupBonusAmount)
	return &c, nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	return &v.Time
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

// CreateCard вставляет новую карту и возвращает её ID.
func (s *Storage) CreateCard(ctx context.Context, card models.Card) (int, error) {
	const op = "storage.CreateCard"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO cards (` + cardColumns + `)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			      $16, $17, $18, $19, $20, $21, $22)
			  RETURNING id`
	var newID int
	err := s.DB.QueryRowContext(ctx, query,
		card.Username, card.TemplateID, card.TemplateVersionID, card.Name, card.Issuer,
		card.Network, card.LastDigits, card.Status, card.OpenDate, card.CloseDate,
		card.AnnualFee, card.AnnualFeeDate, card.AnnualFeeUserModified, card.CreditLimit,
		card.Notes, card.SpendReminderEnabled, card.SpendRequirement, card.SpendDeadline,
		card.SpendReminderNotes, card.SignupBonusAmount, card.SignupBonusType,
		card.SignupBonusEarned).Scan(&newID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return newID, nil
}

// ReadCard возвращает карту по её ID.
func (s *Storage) ReadCard(ctx context.Context, id int) (*models.Card, error) {
	const op = "storage.ReadCard"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, ` + cardColumns + ` FROM cards WHERE id = $1`
	card, err := scanCard(s.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return card, nil
}

// ListCards возвращает список карт пользователя с пагинацией.
func (s *Storage) ListCards(ctx context.Context, username string, limit, offset int) ([]*models.Card, error) {
	const op = "storage.ListCards"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, ` + cardColumns + `
			  FROM cards
			  WHERE username = $1
			  ORDER BY id
			  LIMIT $2 OFFSET $3`
	rows, err := s.DB.QueryContext(ctx, query, username, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Card
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, card)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// UpdateCard обновляет данные карты по её ID и возвращает количество изменённых строк.
func (s *Storage) UpdateCard(ctx context.Context, card models.Card, id int) (int, error) {
	const op = "storage.UpdateCard"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE cards
			  SET template_id = $1, template_version_id = $2, name = $3, issuer = $4,
			      network = $5, last_digits = $6, status = $7, open_date = $8,
			      close_date = $9, annual_fee = $10, annual_fee_date = $11,
			      annual_fee_user_modified = $12, credit_limit = $13, notes = $14,
			      spend_reminder_enabled = $15, spend_requirement = $16,
			      spend_deadline = $17, spend_reminder_notes = $18,
			      signup_bonus_amount = $19, signup_bonus_type = $20,
			      signup_bonus_earned = $21
			  WHERE id = $22`
	result, err := s.DB.ExecContext(ctx, query,
		card.TemplateID, card.TemplateVersionID, card.Name, card.Issuer, card.Network,
		card.LastDigits, card.Status, card.OpenDate, card.CloseDate, card.AnnualFee,
		card.AnnualFeeDate, card.AnnualFeeUserModified, card.CreditLimit, card.Notes,
		card.SpendReminderEnabled, card.SpendRequirement, card.SpendDeadline,
		card.SpendReminderNotes, card.SignupBonusAmount, card.SignupBonusType,
		card.SignupBonusEarned, id)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(rowsAffected), nil
}

// RemoveCard удаляет карту вместе со всеми связанными записями одной
// транзакцией и возвращает количество удалённых карт.
func (s *Storage) RemoveCard(ctx context.Context, id int) (int, error) {
	const op = "storage.RemoveCard"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var removed int64
	err := s.runTx(ctx, func(tx *sql.Tx) error {
		for _, query := range []string{
			`DELETE FROM bonuses WHERE card_id = $1`,
			`DELETE FROM bonus_categories WHERE card_id = $1`,
			`DELETE FROM benefits WHERE card_id = $1`,
			`DELETE FROM card_events WHERE card_id = $1`,
		} {
			if _, err := tx.ExecContext(ctx, query, id); err != nil {
				return err
			}
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM cards WHERE id = $1`, id)
		if err != nil {
			return err
		}
		removed, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return int(removed), nil
}

// ListActiveTemplatedCards возвращает активные карты, привязанные к шаблонам.
// Используется фоновой сверкой с каталогом.
func (s *Storage) ListActiveTemplatedCards(ctx context.Context) ([]*models.Card, error) {
	const op = "storage.ListActiveTemplatedCards"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, ` + cardColumns + `
			  FROM cards
			  WHERE status = 'active'
			    AND template_id IS NOT NULL
			    AND template_id <> ''
			  ORDER BY id`
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.Card
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, card)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// UpdateAnnualFeeDate обновляет дату следующего списания годовой платы.
func (s *Storage) UpdateAnnualFeeDate(ctx context.Context, cardID int, date *time.Time) error {
	const op = "storage.UpdateAnnualFeeDate"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE cards SET annual_fee_date = $1 WHERE id = $2`
	_, err := s.DB.ExecContext(ctx, query, date, cardID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// FindCardsWithUpcomingFee находит активные карты, у которых годовая плата
// спишется в ближайшие leadDays дней. Используется рассыльщиком напоминаний.
func (s *Storage) FindCardsWithUpcomingFee(ctx context.Context, leadDays int) ([]*models.CardFeeInfo, error) {
	const op = "storage.FindCardsWithUpcomingFee"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT
		          u.email,
			      c.username,
			      c.id,
			      c.name,
			      c.annual_fee_date,
			      COALESCE(c.annual_fee, 0)
			  FROM cards c
			  JOIN users u ON c.username = u.username
			  WHERE c.status = 'active'
			    AND c.annual_fee_date IS NOT NULL
			    AND c.annual_fee_date BETWEEN CURRENT_DATE AND CURRENT_DATE + ($1 || ' days')::INTERVAL`
	rows, err := s.DB.QueryContext(ctx, query, leadDays)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.CardFeeInfo
	for rows.Next() {
		var fi models.CardFeeInfo
		if err = rows.Scan(&fi.Email, &fi.Username, &fi.CardID, &fi.CardName,
			&fi.DueDate, &fi.Fee); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &fi)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
