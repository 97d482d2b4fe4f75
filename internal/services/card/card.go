// Package services содержит бизнес-логику жизненного цикла карт:
// создание, закрытие, повторное открытие и смену продукта. Каждая
// мутация пишет событие в журнал карты и пересчитывает расписание
// годовой платы одной транзакцией.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/pereloman/cardperks/internal/lib/feetimeline"
	"github.com/pereloman/cardperks/internal/lib/sl"
	"github.com/pereloman/cardperks/internal/models"
	"github.com/pereloman/cardperks/internal/services/feeschedule"
	"github.com/pereloman/cardperks/internal/services/templatesync"
)

const dateLayout = "2006-01-02"

// Ошибки валидации жизненного цикла.
var (
	ErrAlreadyClosed       = errors.New("card is already closed")
	ErrNotClosed           = errors.New("card is not closed")
	ErrCloseBeforeOpen     = errors.New("close_date cannot be before open_date")
	ErrChangeBeforeOpen    = errors.New("change_date cannot be before open_date")
	ErrClosedProductChange = errors.New("cannot product-change a closed card")
	ErrSameTemplate        = errors.New("card already has this template")
	ErrTemplateNotFound    = errors.New("template not found")
	ErrSpendReminderFields = errors.New("spend_requirement and spend_deadline are required when spend reminder is enabled")
)

// CardRepository определяет методы хранилища, нужные сервису карт.
type CardRepository interface {
	// CreateCard добавляет новую карту и возвращает её ID.
	CreateCard(ctx context.Context, card models.Card) (int, error)
	// ReadCard возвращает карту по ID.
	ReadCard(ctx context.Context, id int) (*models.Card, error)
	// ListCards возвращает список карт пользователя с пагинацией.
	ListCards(ctx context.Context, username string, limit, offset int) ([]*models.Card, error)
	// UpdateCard обновляет данные карты по ID.
	UpdateCard(ctx context.Context, card models.Card, id int) (int, error)
	// RemoveCard удаляет карту вместе с событиями, бенефитами и бонусами.
	RemoveCard(ctx context.Context, id int) (int, error)
	// ListEvents возвращает журнал событий карты.
	ListEvents(ctx context.Context, cardID int) ([]*models.Event, error)
	// CreateEvent добавляет событие в журнал карты.
	CreateEvent(ctx context.Context, event models.Event) (int, error)
	// CreateBonus добавляет бонус по карте.
	CreateBonus(ctx context.Context, bonus models.Bonus) (int, error)
	// ApplyFeePlan применяет план расписания годовой платы одной транзакцией.
	ApplyFeePlan(ctx context.Context, cardID int, plan feeschedule.Plan) error
}

// Cache описывает методы для кэширования карт.
type Cache interface {
	// Get пытается получить значение из кеша по ключу.
	Get(ctx context.Context, key string, result any) (bool, error)
	// Set сохраняет значение в кеш с временем жизни.
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	// Invalidate удаляет значение из кеша по ключу.
	Invalidate(ctx context.Context, key string) error
}

// Catalog — каталог шаблонов, только на чтение.
type Catalog interface {
	Resolve(templateID string) (*models.Template, bool)
	VersionHistory(templateID string) []models.TemplateVersion
}

// Syncer применяет шаблонную синхронизацию к одной карте.
type Syncer interface {
	SyncCard(ctx context.Context, card *models.Card) (*templatesync.Summary, error)
}

// CardService реализует бизнес-логику работы с картами.
type CardService struct {
	repo    CardRepository
	cache   Cache
	catalog Catalog
	syncer  Syncer
	log     *slog.Logger
	now     func() time.Time
}

// NewCardService создает новый экземпляр CardService.
func NewCardService(repo CardRepository, cache Cache, catalog Catalog, syncer Syncer, log *slog.Logger) *CardService {
	return &CardService{
		repo:    repo,
		cache:   cache,
		catalog: catalog,
		syncer:  syncer,
		log:     log,
		now:     time.Now,
	}
}

func (s *CardService) today() time.Time {
	return s.now().UTC().Truncate(24 * time.Hour)
}

// timeline строит историю годовой платы по шаблону карты.
// Для нешаблонных карт возвращается пустой Timeline.
func (s *CardService) timeline(templateID *string) feetimeline.Timeline {
	if templateID == nil || *templateID == "" {
		return feetimeline.Timeline{}
	}
	return feetimeline.Build(s.catalog.VersionHistory(*templateID))
}

// Create создает новую карту для пользователя и возвращает её ID.
// Для шаблонных карт недостающие поля наполняются из шаблона, а бенефиты
// и бонусные категории заводятся первой синхронизацией. Если указана
// дата открытия, в журнал пишется событие "opened" и строится расписание
// годовой платы за все прошедшие годовщины.
func (s *CardService) Create(ctx context.Context, username string, req models.DummyCard) (int, error) {
	const op = "card.Create"

	card := models.Card{
		Username: username,
		Name:     req.Name,
		Issuer:   req.Issuer,
		Status:   models.StatusActive,
	}

	if req.TemplateID != "" {
		tmpl, ok := s.catalog.Resolve(req.TemplateID)
		if !ok {
			return 0, fmt.Errorf("%s: %w: %s", op, ErrTemplateNotFound, req.TemplateID)
		}
		card.TemplateID = &req.TemplateID
		if card.Name == "" {
			card.Name = tmpl.Name
		}
		if card.Issuer == "" {
			card.Issuer = tmpl.Issuer
		}
		if req.Network == "" && tmpl.Network != "" {
			card.Network = &tmpl.Network
		}
		if req.AnnualFee == nil {
			card.AnnualFee = tmpl.AnnualFee
		}
	}

	if err := fillCardFromRequest(&card, req); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if req.AnnualFeeDate != "" {
		card.AnnualFeeUserModified = true
	}

	id, err := s.repo.CreateCard(ctx, card)
	if err != nil {
		return 0, err
	}
	card.ID = id
	s.log.Info("created new card", slog.Int("id", id), slog.String("username", username))

	if card.OpenDate != nil {
		if _, err := s.repo.CreateEvent(ctx, models.Event{
			CardID: id,
			Type:   models.EventOpened,
			Date:   *card.OpenDate,
		}); err != nil {
			return 0, fmt.Errorf("%s: %w", op, err)
		}

		flatFee := 0
		if card.AnnualFee != nil {
			flatFee = *card.AnnualFee
		}
		plan := feeschedule.OnCreate(id, nil, *card.OpenDate, flatFee, s.timeline(card.TemplateID), s.today())
		if card.AnnualFeeUserModified {
			// Пользователь задал дату следующего списания сам.
			plan.DueDate = card.AnnualFeeDate
		}
		if err := s.repo.ApplyFeePlan(ctx, id, plan); err != nil {
			return 0, fmt.Errorf("%s: %w", op, err)
		}
	}

	if req.SignupBonusAmount != nil {
		bonus := models.Bonus{
			CardID: id,
			Source: models.BonusSignup,
			Amount: *req.SignupBonusAmount,
			Earned: req.SignupBonusEarned,
		}
		if req.SignupBonusType != "" {
			bonus.Type = &req.SignupBonusType
		}
		if card.SpendRequirement != nil {
			bonus.SpendRequirement = card.SpendRequirement
			bonus.SpendDeadline = card.SpendDeadline
		}
		if _, err := s.repo.CreateBonus(ctx, bonus); err != nil {
			s.log.Warn("failed to create signup bonus", slog.Int("card_id", id), sl.Err(err))
		}
	}

	if card.IsTemplated() && s.syncer != nil {
		if _, err := s.syncer.SyncCard(ctx, &card); err != nil {
			s.log.Warn("initial template sync failed", slog.Int("card_id", id), sl.Err(err))
		}
	}

	return id, nil
}

// Read возвращает карту по ID, используя кеш или репозиторий.
func (s *CardService) Read(ctx context.Context, id int) (*models.Card, error) {
	var result *models.Card
	cacheKey := fmt.Sprintf("card:%d", id)
	found, err := s.cache.Get(ctx, cacheKey, &result)
	if err != nil {
		s.log.Warn("cache lookup failed", slog.String("key", cacheKey), sl.Err(err))
	}
	if found {
		return result, nil
	}

	result, err = s.repo.ReadCard(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, cacheKey, result, time.Hour); err != nil {
		s.log.Warn("failed to cache card", slog.String("key", cacheKey), sl.Err(err))
	}
	return result, nil
}

// List возвращает список карт пользователя с пагинацией.
func (s *CardService) List(ctx context.Context, username string, limit, offset int) ([]*models.Card, error) {
	return s.repo.ListCards(ctx, username, limit, offset)
}

// Предел выборки карт для подсчёта 5/24.
const fiveTwentyFourScanLimit = 500

// FiveTwentyFour считает карты, открытые за последние 24 месяца, и дату
// выпадения каждой из окна. Статус: green — меньше четырёх, yellow —
// ровно четыре, red — пять и больше. Карты без даты открытия не считаются.
func (s *CardService) FiveTwentyFour(ctx context.Context, username string) (*models.FiveTwentyFour, error) {
	cards, err := s.repo.ListCards(ctx, username, fiveTwentyFourScanLimit, 0)
	if err != nil {
		return nil, err
	}

	cutoff := s.today().AddDate(-2, 0, 0)
	entries := []models.FiveTwentyFourEntry{}
	for _, card := range cards {
		if card.OpenDate == nil || card.OpenDate.Before(cutoff) {
			continue
		}
		entries = append(entries, models.FiveTwentyFourEntry{
			CardID:      card.ID,
			CardName:    card.Name,
			OpenDate:    *card.OpenDate,
			DropoffDate: card.OpenDate.AddDate(2, 0, 0),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].OpenDate.Before(entries[j].OpenDate)
	})

	status := "green"
	switch {
	case len(entries) > 4:
		status = "red"
	case len(entries) == 4:
		status = "yellow"
	}

	return &models.FiveTwentyFour{
		Count:    len(entries),
		Status:   status,
		Dropoffs: entries,
	}, nil
}

// Update обновляет карту. Сумма платы или дата следующего списания,
// изменённая пользователем, помечает карту флагом annual_fee_user_modified —
// после этого синхронизация и планировщик её не перезаписывают.
// Первое заполнение open_date достраивает журнал и расписание так же,
// как при создании карты.
func (s *CardService) Update(ctx context.Context, id int, req models.DummyCard) (int, error) {
	const op = "card.Update"

	existing, err := s.repo.ReadCard(ctx, id)
	if err != nil {
		return 0, err
	}

	card := *existing
	card.Name = req.Name
	card.Issuer = req.Issuer
	card.Network = strPtrOrNil(req.Network)
	card.LastDigits = strPtrOrNil(req.LastDigits)
	card.AnnualFee = req.AnnualFee
	if req.AnnualFee != nil && (existing.AnnualFee == nil || *existing.AnnualFee != *req.AnnualFee) {
		// Плата изменена вручную — синхронизация шаблона её больше не трогает.
		card.AnnualFeeUserModified = true
	}
	card.CreditLimit = req.CreditLimit
	card.Notes = strPtrOrNil(req.Notes)
	card.SpendReminderEnabled = req.SpendReminderEnabled
	card.SpendRequirement = req.SpendRequirement
	card.SpendReminderNotes = strPtrOrNil(req.SpendReminderNotes)
	card.SignupBonusAmount = req.SignupBonusAmount
	card.SignupBonusType = strPtrOrNil(req.SignupBonusType)
	card.SignupBonusEarned = req.SignupBonusEarned

	openDateWasEmpty := existing.OpenDate == nil
	if req.OpenDate != "" {
		d, err := time.Parse(dateLayout, req.OpenDate)
		if err != nil {
			return 0, fmt.Errorf("%s: invalid open_date: %w", op, err)
		}
		card.OpenDate = &d
	}
	if req.SpendDeadline != "" {
		d, err := time.Parse(dateLayout, req.SpendDeadline)
		if err != nil {
			return 0, fmt.Errorf("%s: invalid spend_deadline: %w", op, err)
		}
		card.SpendDeadline = &d
	} else {
		card.SpendDeadline = nil
	}
	if card.SpendReminderEnabled && (card.SpendRequirement == nil || card.SpendDeadline == nil) {
		return 0, fmt.Errorf("%s: %w", op, ErrSpendReminderFields)
	}

	if req.AnnualFeeDate != "" {
		d, err := time.Parse(dateLayout, req.AnnualFeeDate)
		if err != nil {
			return 0, fmt.Errorf("%s: invalid annual_fee_date: %w", op, err)
		}
		if existing.AnnualFeeDate == nil || !existing.AnnualFeeDate.Equal(d) {
			card.AnnualFeeUserModified = true
		}
		card.AnnualFeeDate = &d
	}

	res, err := s.repo.UpdateCard(ctx, card, id)
	if err != nil {
		return 0, err
	}
	s.invalidate(ctx, id)

	// Запоздалое заполнение даты открытия: дострой журнал и расписание.
	if openDateWasEmpty && card.OpenDate != nil {
		if _, err := s.repo.CreateEvent(ctx, models.Event{
			CardID: id,
			Type:   models.EventOpened,
			Date:   *card.OpenDate,
		}); err != nil {
			return 0, fmt.Errorf("%s: %w", op, err)
		}
		events, err := s.materializedEvents(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", op, err)
		}
		flatFee := 0
		if card.AnnualFee != nil {
			flatFee = *card.AnnualFee
		}
		plan := feeschedule.OnCreate(id, events, *card.OpenDate, flatFee, s.timeline(card.TemplateID), s.today())
		if card.AnnualFeeUserModified && card.AnnualFeeDate != nil {
			plan.DueDate = card.AnnualFeeDate
		}
		if err := s.repo.ApplyFeePlan(ctx, id, plan); err != nil {
			return 0, fmt.Errorf("%s: %w", op, err)
		}
	}

	return res, nil
}

// Close закрывает карту: событие "closed", статус closed, будущие
// автоматические списания удаляются, дата следующего списания и
// напоминание о тратах очищаются.
func (s *CardService) Close(ctx context.Context, id int, req models.DummyCloseCard) error {
	const op = "card.Close"

	card, err := s.repo.ReadCard(ctx, id)
	if err != nil {
		return err
	}
	if card.Status == models.StatusClosed {
		return fmt.Errorf("%s: %w", op, ErrAlreadyClosed)
	}

	closeDate, err := time.Parse(dateLayout, req.CloseDate)
	if err != nil {
		return fmt.Errorf("%s: invalid close_date: %w", op, err)
	}
	if card.OpenDate != nil && closeDate.Before(*card.OpenDate) {
		return fmt.Errorf("%s: %w", op, ErrCloseBeforeOpen)
	}

	if _, err := s.repo.CreateEvent(ctx, models.Event{
		CardID: id,
		Type:   models.EventClosed,
		Date:   closeDate,
	}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	card.Status = models.StatusClosed
	card.CloseDate = &closeDate
	card.SpendReminderEnabled = false
	card.SpendDeadline = nil
	if _, err := s.repo.UpdateCard(ctx, *card, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	events, err := s.materializedEvents(ctx, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.repo.ApplyFeePlan(ctx, id, feeschedule.OnClose(events, closeDate)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.invalidate(ctx, id)
	s.log.Info("card closed", slog.Int("id", id), slog.String("close_date", req.CloseDate))
	return nil
}

// Reopen возвращает закрытую карту в строй: событие "reopened", статус
// active, расписание годовой платы достраивается за пропущенные годовщины.
func (s *CardService) Reopen(ctx context.Context, id int, reopenDate string) error {
	const op = "card.Reopen"

	card, err := s.repo.ReadCard(ctx, id)
	if err != nil {
		return err
	}
	if card.Status != models.StatusClosed {
		return fmt.Errorf("%s: %w", op, ErrNotClosed)
	}

	date, err := time.Parse(dateLayout, reopenDate)
	if err != nil {
		return fmt.Errorf("%s: invalid date: %w", op, err)
	}

	if _, err := s.repo.CreateEvent(ctx, models.Event{
		CardID: id,
		Type:   models.EventReopened,
		Date:   date,
	}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	card.Status = models.StatusActive
	card.CloseDate = nil
	if _, err := s.repo.UpdateCard(ctx, *card, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if card.OpenDate != nil {
		events, err := s.materializedEvents(ctx, id)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		flatFee := 0
		if card.AnnualFee != nil {
			flatFee = *card.AnnualFee
		}
		plan := feeschedule.OnReopen(id, events, *card.OpenDate, flatFee, s.timeline(card.TemplateID), s.today())
		if err := s.repo.ApplyFeePlan(ctx, id, plan); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	s.invalidate(ctx, id)
	s.log.Info("card reopened", slog.Int("id", id))
	return nil
}

// ProductChange переводит карту на другой продукт: событие
// "product_change", новая плата списывается точным событием на дату
// смены, расписание перестраивается от новой годовщины. Старые бенефиты
// при sync_benefits=true списываются следующей синхронизацией.
func (s *CardService) ProductChange(ctx context.Context, id int, req models.DummyProductChange) error {
	const op = "card.ProductChange"

	card, err := s.repo.ReadCard(ctx, id)
	if err != nil {
		return err
	}
	if card.Status == models.StatusClosed {
		return fmt.Errorf("%s: %w", op, ErrClosedProductChange)
	}
	if req.NewTemplateID != "" && card.TemplateID != nil && *card.TemplateID == req.NewTemplateID {
		return fmt.Errorf("%s: %w", op, ErrSameTemplate)
	}

	changeDate, err := time.Parse(dateLayout, req.ChangeDate)
	if err != nil {
		return fmt.Errorf("%s: invalid change_date: %w", op, err)
	}
	if card.OpenDate != nil && changeDate.Before(*card.OpenDate) {
		return fmt.Errorf("%s: %w", op, ErrChangeBeforeOpen)
	}

	var tmpl *models.Template
	if req.NewTemplateID != "" {
		var ok bool
		tmpl, ok = s.catalog.Resolve(req.NewTemplateID)
		if !ok {
			return fmt.Errorf("%s: %w: %s", op, ErrTemplateNotFound, req.NewTemplateID)
		}
	}

	// Без явной платы и без шаблонной остаётся текущая.
	newFee := 0
	if card.AnnualFee != nil {
		newFee = *card.AnnualFee
	}
	switch {
	case req.NewAnnualFee != nil:
		newFee = *req.NewAnnualFee
	case tmpl != nil && tmpl.AnnualFee != nil:
		newFee = *tmpl.AnnualFee
	}

	oldName := card.Name
	eventID, err := s.repo.CreateEvent(ctx, models.Event{
		CardID:      id,
		Type:        models.EventProductChange,
		Date:        changeDate,
		Description: fmt.Sprintf("%s -> %s", oldName, req.NewName),
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	card.Name = req.NewName
	card.AnnualFee = &newFee
	card.AnnualFeeUserModified = false
	if req.NewNetwork != "" {
		card.Network = &req.NewNetwork
	}
	if req.NewTemplateID != "" {
		card.TemplateID = &req.NewTemplateID
	} else {
		card.TemplateID = nil
	}
	// Версия сбрасывается: следующая синхронизация пройдёт как первый контакт.
	card.TemplateVersionID = nil

	if _, err := s.repo.UpdateCard(ctx, *card, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if req.UpgradeBonusAmount != nil {
		bonus := models.Bonus{
			CardID:  id,
			EventID: &eventID,
			Source:  models.BonusUpgrade,
			Amount:  *req.UpgradeBonusAmount,
		}
		if req.UpgradeBonusType != "" {
			bonus.Type = &req.UpgradeBonusType
		}
		bonus.SpendRequirement = req.UpgradeSpendRequirement
		if req.UpgradeSpendDeadline != "" {
			if d, err := time.Parse(dateLayout, req.UpgradeSpendDeadline); err == nil {
				bonus.SpendDeadline = &d
			}
		}
		if _, err := s.repo.CreateBonus(ctx, bonus); err != nil {
			s.log.Warn("failed to create upgrade bonus", slog.Int("card_id", id), sl.Err(err))
		}
	}

	events, err := s.materializedEvents(ctx, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	plan := feeschedule.OnProductChange(id, events, changeDate, newFee, s.timeline(card.TemplateID), s.today())
	if err := s.repo.ApplyFeePlan(ctx, id, plan); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if req.SyncBenefits && card.IsTemplated() && s.syncer != nil {
		if _, err := s.syncer.SyncCard(ctx, card); err != nil {
			s.log.Warn("post-change template sync failed", slog.Int("card_id", id), sl.Err(err))
		}
	}

	s.invalidate(ctx, id)
	s.log.Info("card product changed", slog.Int("id", id),
		slog.String("old_name", oldName), slog.String("new_name", req.NewName))
	return nil
}

// Remove удаляет карту вместе со всей историей и инвалидирует кеш.
func (s *CardService) Remove(ctx context.Context, id int) (int, error) {
	s.invalidate(ctx, id)
	return s.repo.RemoveCard(ctx, id)
}

func (s *CardService) invalidate(ctx context.Context, id int) {
	cacheKey := fmt.Sprintf("card:%d", id)
	if err := s.cache.Invalidate(ctx, cacheKey); err != nil {
		s.log.Warn("failed to invalidate cache", slog.String("key", cacheKey), sl.Err(err))
	}
}

func (s *CardService) materializedEvents(ctx context.Context, cardID int) ([]models.Event, error) {
	list, err := s.repo.ListEvents(ctx, cardID)
	if err != nil {
		return nil, err
	}
	events := make([]models.Event, 0, len(list))
	for _, e := range list {
		events = append(events, *e)
	}
	return events, nil
}

// fillCardFromRequest переносит в карту поля запроса, общие для создания.
func fillCardFromRequest(card *models.Card, req models.DummyCard) error {
	card.Network = firstNonNil(strPtrOrNil(req.Network), card.Network)
	card.LastDigits = strPtrOrNil(req.LastDigits)
	if req.AnnualFee != nil {
		card.AnnualFee = req.AnnualFee
	}
	card.CreditLimit = req.CreditLimit
	card.Notes = strPtrOrNil(req.Notes)
	card.SpendReminderEnabled = req.SpendReminderEnabled
	card.SpendRequirement = req.SpendRequirement
	card.SpendReminderNotes = strPtrOrNil(req.SpendReminderNotes)
	card.SignupBonusAmount = req.SignupBonusAmount
	card.SignupBonusType = strPtrOrNil(req.SignupBonusType)
	card.SignupBonusEarned = req.SignupBonusEarned

	if req.OpenDate != "" {
		d, err := time.Parse(dateLayout, req.OpenDate)
		if err != nil {
			return fmt.Errorf("invalid open_date: %w", err)
		}
		card.OpenDate = &d
	}
	if req.AnnualFeeDate != "" {
		d, err := time.Parse(dateLayout, req.AnnualFeeDate)
		if err != nil {
			return fmt.Errorf("invalid annual_fee_date: %w", err)
		}
		card.AnnualFeeDate = &d
	}
	if req.SpendDeadline != "" {
		d, err := time.Parse(dateLayout, req.SpendDeadline)
		if err != nil {
			return fmt.Errorf("invalid spend_deadline: %w", err)
		}
		card.SpendDeadline = &d
	}
	if card.SpendReminderEnabled && (card.SpendRequirement == nil || card.SpendDeadline == nil) {
		return ErrSpendReminderFields
	}
	return nil
}

func strPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func firstNonNil(a, b *string) *string {
	if a != nil {
		return a
	}
	return b
}
