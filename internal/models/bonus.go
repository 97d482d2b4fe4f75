package models

import "time"

// Источники бонусов.
const (
	BonusSignup    = "signup"
	BonusUpgrade   = "upgrade"
	BonusRetention = "retention"
)

// Bonus представляет разовый бонус по карте: приветственный,
// за апгрейд продукта или retention-предложение.
// EventID связывает бонус с породившим его событием.
type Bonus struct {
	ID               int
	CardID           int
	EventID          *int
	Source           string // signup | upgrade | retention
	Amount           int
	Type             *string // points | miles | cash и т.п.
	SpendRequirement *int
	SpendDeadline    *time.Time
	Earned           bool
	Description      *string
}

// BonusCategory представляет бонусную категорию трат карты,
// например "dining 3x". Истории использования нет, поэтому записи,
// исчезнувшие из шаблона, удаляются из хранилища безвозвратно.
type BonusCategory struct {
	ID           int
	CardID       int
	Category     string
	Multiplier   string
	PortalOnly   bool
	Cap          *int
	FromTemplate bool
}

// DummyBonusCategory используется для приёма категории из JSON-запроса.
type DummyBonusCategory struct {
	Category   string `json:"category" validate:"required"`
	Multiplier string `json:"multiplier" validate:"required"`
	PortalOnly bool   `json:"portal_only,omitempty"`
	Cap        *int   `json:"cap,omitempty" validate:"omitempty,gt=0"`
}
