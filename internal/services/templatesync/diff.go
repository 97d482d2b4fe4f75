// Package templatesync сверяет принадлежащие шаблону записи карты
// с текущим определением шаблона и сливает изменения, не трогая
// пользовательские данные. Дифф чистый; применение изменений к хранилищу
// выполняется сервисом одной транзакцией на карту.
package templatesync

import (
	"time"

	"github.com/pereloman/cardperks/internal/lib/period"
	"github.com/pereloman/cardperks/internal/models"
)

// ChangeSet описывает изменения одной карты, вычисленные диффом.
// Пустой ChangeSet с Skipped=true означает, что карту трогать не нужно.
type ChangeSet struct {
	Initialized bool   // Первый контакт: версия проставлена, записи помечены
	Skipped     bool   // Карта пропущена (версии совпадают)
	NewVersion  string // Версия шаблона, которой нужно проштамповать карту

	NewAnnualFee *int // Обновление плоской платы; nil — не менять

	TagBenefitIDs    []int            // from_template=true без изменения значений
	AddBenefits      []models.Benefit // Новые шаблонные бенефиты
	UpdateBenefits   []models.Benefit // Обновлённые значения существующих (по ID)
	RetireBenefitIDs []int            // Бенефиты к мягкому списанию

	TagCategoryIDs    []int                  // from_template=true без изменения значений
	AddCategories     []models.BonusCategory // Новые шаблонные категории
	UpdateCategories  []models.BonusCategory // Обновлённые значения существующих (по ID)
	RemoveCategoryIDs []int                  // Категории к безвозвратному удалению
}

// IsNoop сообщает, не содержит ли ChangeSet никаких изменений.
func (cs *ChangeSet) IsNoop() bool {
	return cs.Skipped ||
		(cs.NewVersion == "" && cs.NewAnnualFee == nil &&
			len(cs.TagBenefitIDs) == 0 && len(cs.AddBenefits) == 0 &&
			len(cs.UpdateBenefits) == 0 && len(cs.RetireBenefitIDs) == 0 &&
			len(cs.TagCategoryIDs) == 0 && len(cs.AddCategories) == 0 &&
			len(cs.UpdateCategories) == 0 && len(cs.RemoveCategoryIDs) == 0)
}

// Diff сверяет карту с текущим определением шаблона.
// Пользовательские записи (from_template=false) не читаются и не меняются.
func Diff(card *models.Card, benefits []models.Benefit, categories []models.BonusCategory, tmpl *models.Template, today time.Time) ChangeSet {
	if card.TemplateVersionID == nil || *card.TemplateVersionID == "" {
		return initialize(benefits, categories, tmpl)
	}
	if *card.TemplateVersionID == tmpl.VersionID {
		return ChangeSet{Skipped: true}
	}
	return sync(card, benefits, categories, tmpl, today)
}

// initialize — первый контакт карты с версионированием: проставить версию
// и пометить совпадающие по имени записи как шаблонные, не меняя значений.
func initialize(benefits []models.Benefit, categories []models.BonusCategory, tmpl *models.Template) ChangeSet {
	cs := ChangeSet{Initialized: true, NewVersion: tmpl.VersionID}

	templateNames := map[string]bool{}
	for _, c := range tmpl.Credits {
		templateNames[c.Name] = true
	}
	for _, s := range tmpl.SpendThresholds {
		templateNames[s.Name] = true
	}
	for _, b := range benefits {
		if templateNames[b.Name] && !b.FromTemplate {
			cs.TagBenefitIDs = append(cs.TagBenefitIDs, b.ID)
		}
	}

	categoryNames := map[string]bool{}
	for _, c := range tmpl.BonusCategories {
		categoryNames[c.Category] = true
	}
	for _, c := range categories {
		if categoryNames[c.Category] && !c.FromTemplate {
			cs.TagCategoryIDs = append(cs.TagCategoryIDs, c.ID)
		}
	}
	return cs
}

func sync(card *models.Card, benefits []models.Benefit, categories []models.BonusCategory, tmpl *models.Template, today time.Time) ChangeSet {
	cs := ChangeSet{NewVersion: tmpl.VersionID}

	// Плоская плата следует за шаблоном, пока её не трогал пользователь;
	// ручная правка — липкая, её снимает только смена продукта.
	if tmpl.AnnualFee != nil && !card.AnnualFeeUserModified {
		if card.AnnualFee == nil || *card.AnnualFee != *tmpl.AnnualFee {
			fee := *tmpl.AnnualFee
			cs.NewAnnualFee = &fee
		}
	}

	credits := make([]benefitSpec, 0, len(tmpl.Credits))
	for _, c := range tmpl.Credits {
		credits = append(credits, benefitSpec{
			Name: c.Name, Amount: c.Amount,
			Frequency: c.Frequency, ResetType: c.ResetType,
		})
	}
	thresholds := make([]benefitSpec, 0, len(tmpl.SpendThresholds))
	for _, s := range tmpl.SpendThresholds {
		thresholds = append(thresholds, benefitSpec{
			Name: s.Name, Amount: s.SpendRequired,
			Frequency: s.Frequency, ResetType: s.ResetType, Notes: s.Description,
		})
	}

	syncBenefitKind(&cs, card, benefits, credits, models.BenefitCredit, today)
	syncBenefitKind(&cs, card, benefits, thresholds, models.BenefitSpendThreshold, today)
	syncCategories(&cs, card, categories, tmpl.BonusCategories)
	return cs
}

type benefitSpec struct {
	Name      string
	Amount    int
	Frequency string
	ResetType string
	Notes     string
}

// syncBenefitKind сливает шаблонные бенефиты одного типа: обновляет по
// совпадению имени, создаёт недостающие, мягко списывает исчезнувшие.
// Жёсткого удаления нет — история использования сохраняется.
func syncBenefitKind(cs *ChangeSet, card *models.Card, existing []models.Benefit, specs []benefitSpec, benefitType string, today time.Time) {
	byName := map[string]models.Benefit{}
	for _, b := range existing {
		if b.FromTemplate && b.Type == benefitType {
			byName[b.Name] = b
		}
	}

	matched := map[string]bool{}
	for _, spec := range specs {
		matched[spec.Name] = true
		if b, ok := byName[spec.Name]; ok {
			changed := false
			if b.Amount != spec.Amount {
				b.Amount = spec.Amount
				changed = true
			}
			if b.Frequency != spec.Frequency {
				b.Frequency = spec.Frequency
				changed = true
			}
			if b.ResetType != spec.ResetType {
				b.ResetType = spec.ResetType
				changed = true
			}
			if b.Retired {
				b.Retired = false
				changed = true
			}
			if changed {
				cs.UpdateBenefits = append(cs.UpdateBenefits, b)
			}
			continue
		}

		start, _ := period.Current(spec.Frequency, spec.ResetType, card.OpenDate, today)
		newBenefit := models.Benefit{
			CardID:       card.ID,
			Name:         spec.Name,
			Amount:       spec.Amount,
			Frequency:    spec.Frequency,
			ResetType:    spec.ResetType,
			Type:         benefitType,
			FromTemplate: true,
			AmountUsed:   0,
			PeriodStart:  &start,
		}
		if spec.Notes != "" {
			notes := spec.Notes
			newBenefit.Notes = &notes
		}
		cs.AddBenefits = append(cs.AddBenefits, newBenefit)
	}

	for name, b := range byName {
		if !matched[name] && !b.Retired {
			cs.RetireBenefitIDs = append(cs.RetireBenefitIDs, b.ID)
		}
	}
}

// syncCategories полностью сверяет бонусные категории, включая жёсткое
// удаление исчезнувших — истории использования у категорий нет.
func syncCategories(cs *ChangeSet, card *models.Card, existing []models.BonusCategory, specs []models.TemplateBonusCategory) {
	byName := map[string]models.BonusCategory{}
	for _, c := range existing {
		if c.FromTemplate {
			byName[c.Category] = c
		}
	}

	matched := map[string]bool{}
	for _, spec := range specs {
		matched[spec.Category] = true
		if c, ok := byName[spec.Category]; ok {
			if c.Multiplier != spec.Multiplier || c.PortalOnly != spec.PortalOnly || !capEqual(c.Cap, spec.Cap) {
				c.Multiplier = spec.Multiplier
				c.PortalOnly = spec.PortalOnly
				c.Cap = spec.Cap
				cs.UpdateCategories = append(cs.UpdateCategories, c)
			}
			continue
		}
		cs.AddCategories = append(cs.AddCategories, models.BonusCategory{
			CardID:       card.ID,
			Category:     spec.Category,
			Multiplier:   spec.Multiplier,
			PortalOnly:   spec.PortalOnly,
			Cap:          spec.Cap,
			FromTemplate: true,
		})
	}

	for name, c := range byName {
		if !matched[name] {
			cs.RemoveCategoryIDs = append(cs.RemoveCategoryIDs, c.ID)
		}
	}
}

func capEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
