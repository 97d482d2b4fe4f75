// Package models содержит доменные структуры: карты, события по картам,
// бенефиты, бонусные категории и бонусы, а также вспомогательные типы
// для приёма данных из внешних источников (например, JSON-запросов).
package models

import "time"

// Статусы карты.
const (
	StatusActive = "active"
	StatusClosed = "closed"
)

// Card представляет собой основную модель кредитной карты,
// используемую в бизнес-логике и хранилище.
// Все даты хранятся как time.Time с нулевым временем (только дата),
// опциональные поля — указатели, nil означает отсутствие значения.
type Card struct {
	ID                    int
	Username              string     // Владелец карты
	TemplateID            *string    // Ссылка на шаблон продукта, например "chase/sapphire_preferred"
	TemplateVersionID     *string    // Версия шаблона, с которой карта синхронизирована
	Name                  string     // Название карты
	Issuer                string     // Банк-эмитент
	Network               *string    // Платёжная система
	LastDigits            *string    // Последние цифры номера
	Status                string     // active | closed
	OpenDate              *time.Time // Дата открытия
	CloseDate             *time.Time // Дата закрытия
	AnnualFee             *int       // Годовая плата
	AnnualFeeDate         *time.Time // Дата следующего списания годовой платы
	AnnualFeeUserModified bool       // Плата изменена пользователем вручную
	CreditLimit           *int
	Notes                 *string

	// Напоминание о требуемых тратах
	SpendReminderEnabled bool
	SpendRequirement     *int
	SpendDeadline        *time.Time
	SpendReminderNotes   *string

	// Приветственный бонус
	SignupBonusAmount *int
	SignupBonusType   *string
	SignupBonusEarned bool
}

// IsTemplated сообщает, привязана ли карта к шаблону продукта.
func (c *Card) IsTemplated() bool {
	return c.TemplateID != nil && *c.TemplateID != ""
}

// DummyCard используется для приёма данных из JSON-запроса,
// прежде чем конвертировать их в Card.
// Даты приходят в виде строк в формате 2006-01-02.
type DummyCard struct {
	TemplateID        string `json:"template_id,omitempty"`
	TemplateVersionID string `json:"template_version_id,omitempty"`
	Name              string `json:"name" validate:"required"`
	Issuer            string `json:"issuer" validate:"required"`
	Network           string `json:"network,omitempty"`
	LastDigits        string `json:"last_digits,omitempty" validate:"omitempty,numeric"`
	OpenDate          string `json:"open_date,omitempty"`
	AnnualFee         *int   `json:"annual_fee,omitempty" validate:"omitempty,gte=0"`
	AnnualFeeDate     string `json:"annual_fee_date,omitempty"`
	CreditLimit       *int   `json:"credit_limit,omitempty" validate:"omitempty,gte=0"`
	Notes             string `json:"notes,omitempty"`

	SpendReminderEnabled bool   `json:"spend_reminder_enabled,omitempty"`
	SpendRequirement     *int   `json:"spend_requirement,omitempty"`
	SpendDeadline        string `json:"spend_deadline,omitempty"`
	SpendReminderNotes   string `json:"spend_reminder_notes,omitempty"`

	SignupBonusAmount *int   `json:"signup_bonus_amount,omitempty"`
	SignupBonusType   string `json:"signup_bonus_type,omitempty"`
	SignupBonusEarned bool   `json:"signup_bonus_earned,omitempty"`
}

// DummyProductChange описывает JSON-запрос на смену продукта карты.
type DummyProductChange struct {
	NewTemplateID string `json:"new_template_id,omitempty"`
	NewName       string `json:"new_name" validate:"required"`
	ChangeDate    string `json:"change_date" validate:"required,datetime=2006-01-02"`
	NewAnnualFee  *int   `json:"new_annual_fee,omitempty" validate:"omitempty,gte=0"`
	NewNetwork    string `json:"new_network,omitempty"`
	SyncBenefits  bool   `json:"sync_benefits,omitempty"`

	UpgradeBonusAmount       *int   `json:"upgrade_bonus_amount,omitempty"`
	UpgradeBonusType         string `json:"upgrade_bonus_type,omitempty"`
	UpgradeSpendRequirement  *int   `json:"upgrade_spend_requirement,omitempty"`
	UpgradeSpendDeadline     string `json:"upgrade_spend_deadline,omitempty"`
	UpgradeSpendReminderNote string `json:"upgrade_spend_reminder_notes,omitempty"`
}

// DummyCloseCard описывает JSON-запрос на закрытие карты.
type DummyCloseCard struct {
	CloseDate string `json:"close_date" validate:"required,datetime=2006-01-02"`
}

// CardFeeInfo содержит данные для напоминания о предстоящем списании
// годовой платы: кому писать и по какой карте.
type CardFeeInfo struct {
	Email    string    `json:"email"`
	Username string    `json:"username"`
	CardID   int       `json:"card_id"`
	CardName string    `json:"card_name"`
	DueDate  time.Time `json:"due_date"`
	Fee      int       `json:"fee"`
}

// FiveTwentyFourEntry — карта, попадающая в окно последних 24 месяцев,
// и дата, когда она из окна выпадет.
type FiveTwentyFourEntry struct {
	CardID      int       `json:"card_id"`
	CardName    string    `json:"card_name"`
	OpenDate    time.Time `json:"open_date"`
	DropoffDate time.Time `json:"dropoff_date"`
}

// FiveTwentyFour — статус правила 5/24: количество карт, открытых за
// последние 24 месяца, и даты выпадения каждой из окна.
type FiveTwentyFour struct {
	Count    int                   `json:"count"`
	Status   string                `json:"status"` // green | yellow | red
	Dropoffs []FiveTwentyFourEntry `json:"dropoff_dates"`
}
