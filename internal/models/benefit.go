package models

import "time"

// Частоты обновления бенефита.
const (
	FrequencyMonthly    = "monthly"
	FrequencyQuarterly  = "quarterly"
	FrequencySemiAnnual = "semi_annual"
	FrequencyAnnual     = "annual"
)

// Типы выравнивания периодов.
const (
	ResetCalendar     = "calendar"
	ResetCardiversary = "cardiversary"
)

// Типы бенефитов.
const (
	BenefitCredit         = "credit"
	BenefitSpendThreshold = "spend_threshold"
)

// Benefit представляет собой повторяющийся бенефит карты:
// кредит (например, "$300 travel credit") или порог трат.
// PeriodStart отмечает начало периода, к которому относится AmountUsed;
// при устаревании периода использование сбрасывается в ноль.
type Benefit struct {
	ID           int
	CardID       int
	Name         string
	Amount       int    // Сумма кредита или требуемых трат
	Frequency    string // monthly | quarterly | semi_annual | annual
	ResetType    string // calendar | cardiversary
	Type         string // credit | spend_threshold
	FromTemplate bool   // Запись принадлежит шаблону и управляется синхронизацией
	Retired      bool   // Бенефит удалён из шаблона, но история сохранена
	AmountUsed   int
	Notes        *string
	PeriodStart  *time.Time
}

// DummyBenefit используется для приёма бенефита из JSON-запроса.
type DummyBenefit struct {
	Name      string `json:"name" validate:"required"`
	Amount    int    `json:"amount" validate:"required,gt=0"`
	Frequency string `json:"frequency" validate:"required,oneof=monthly quarterly semi_annual annual"`
	ResetType string `json:"reset_type" validate:"required,oneof=calendar cardiversary"`
	Type      string `json:"type,omitempty" validate:"omitempty,oneof=credit spend_threshold"`
	Notes     string `json:"notes,omitempty"`
}

// DummyBenefitUsage описывает JSON-запрос на обновление использования бенефита.
type DummyBenefitUsage struct {
	AmountUsed int `json:"amount_used" validate:"gte=0"`
}

// BenefitReminderInfo — кандидат на напоминание о сгорающем кредите:
// бенефит активной карты с неизрасходованным остатком плюс данные
// владельца. Конец текущего периода вычисляется из частоты,
// выравнивания и даты открытия карты.
type BenefitReminderInfo struct {
	Email        string     `json:"email"`
	Username     string     `json:"username"`
	CardID       int        `json:"card_id"`
	CardName     string     `json:"card_name"`
	CardOpenDate *time.Time `json:"-"`
	BenefitID    int        `json:"benefit_id"`
	BenefitName  string     `json:"benefit_name"`
	Amount       int        `json:"amount"`
	AmountUsed   int        `json:"amount_used"`
	Frequency    string     `json:"-"`
	ResetType    string     `json:"-"`
	PeriodStart  *time.Time `json:"-"`
	PeriodEnd    time.Time  `json:"period_end"`
}

// Remaining возвращает неизрасходованный остаток бенефита.
func (b *BenefitReminderInfo) Remaining() int {
	return b.Amount - b.AmountUsed
}
