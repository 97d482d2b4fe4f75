package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pereloman/cardperks/internal/models"
	"github.com/pereloman/cardperks/internal/services/feeschedule"
	"github.com/pereloman/cardperks/internal/services/templatesync"
)

// ApplySync применяет результат сверки карты с шаблоном одной транзакцией:
// либо все изменения ChangeSet попадают в базу, либо ни одно.
func (s *Storage) ApplySync(ctx context.Context, cardID int, cs templatesync.ChangeSet) error {
	const op = "storage.ApplySync"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	err := s.runTx(ctx, func(tx *sql.Tx) error {
		if cs.NewVersion != "" {
			if _, err := tx.ExecContext(ctx,
				`UPDATE cards SET template_version_id = $1 WHERE id = $2`,
				cs.NewVersion, cardID); err != nil {
				return err
			}
		}
		if cs.NewAnnualFee != nil {
			if _, err := tx.ExecContext(ctx,
				`UPDATE cards SET annual_fee = $1 WHERE id = $2`,
				*cs.NewAnnualFee, cardID); err != nil {
				return err
			}
		}

		for _, id := range cs.TagBenefitIDs {
			if _, err := tx.ExecContext(ctx,
				`UPDATE benefits SET from_template = true WHERE id = $1`, id); err != nil {
				return err
			}
		}
		for _, b := range cs.AddBenefits {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO benefits (`+benefitColumns+`)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
				cardID, b.Name, b.Amount, b.Frequency, b.ResetType, b.Type,
				b.FromTemplate, b.Retired, b.AmountUsed, b.Notes, b.PeriodStart); err != nil {
				return err
			}
		}
		for _, b := range cs.UpdateBenefits {
			if _, err := tx.ExecContext(ctx,
				`UPDATE benefits
				 SET amount = $1, frequency = $2, reset_type = $3, retired = $4
				 WHERE id = $5`,
				b.Amount, b.Frequency, b.ResetType, b.Retired, b.ID); err != nil {
				return err
			}
		}
		for _, id := range cs.RetireBenefitIDs {
			if _, err := tx.ExecContext(ctx,
				`UPDATE benefits SET retired = true WHERE id = $1`, id); err != nil {
				return err
			}
		}

		for _, id := range cs.TagCategoryIDs {
			if _, err := tx.ExecContext(ctx,
				`UPDATE bonus_categories SET from_template = true WHERE id = $1`, id); err != nil {
				return err
			}
		}
		for _, c := range cs.AddCategories {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO bonus_categories (card_id, category, multiplier,
				     portal_only, cap, from_template)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				cardID, c.Category, c.Multiplier, c.PortalOnly, c.Cap,
				c.FromTemplate); err != nil {
				return err
			}
		}
		for _, c := range cs.UpdateCategories {
			if _, err := tx.ExecContext(ctx,
				`UPDATE bonus_categories
				 SET multiplier = $1, portal_only = $2, cap = $3
				 WHERE id = $4`,
				c.Multiplier, c.PortalOnly, c.Cap, c.ID); err != nil {
				return err
			}
		}
		for _, id := range cs.RemoveCategoryIDs {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM bonus_categories WHERE id = $1`, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ApplyFeePlan применяет план пересчёта расписания годовой платы одной
// транзакцией: вставляет новые события, удаляет устаревшие approximate-записи
// и обновляет дату следующего списания.
func (s *Storage) ApplyFeePlan(ctx context.Context, cardID int, plan feeschedule.Plan) error {
	const op = "storage.ApplyFeePlan"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	err := s.runTx(ctx, func(tx *sql.Tx) error {
		for _, e := range plan.Add {
			detail, err := models.MarshalDetail(e.Detail)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO card_events (card_id, type, date, description, detail)
				 VALUES ($1, $2, $3, $4, $5)`,
				cardID, e.Type, e.Date, e.Description, detail); err != nil {
				return err
			}
		}
		for _, id := range plan.RemoveIDs {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM card_events WHERE id = $1`, id); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE cards SET annual_fee_date = $1 WHERE id = $2`,
			plan.DueDate, cardID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
