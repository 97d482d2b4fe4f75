package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Типы событий по карте.
const (
	EventOpened          = "opened"
	EventClosed          = "closed"
	EventReopened        = "reopened"
	EventProductChange   = "product_change"
	EventAnnualFeePosted = "annual_fee_posted"
	EventAnnualFeeRefund = "annual_fee_refund"
	EventRetentionOffer  = "retention_offer"
	EventOther           = "other"
)

// EventDetail — закрытый набор вариантов метаданных события.
// Конкретный тип определяет, чем владеет движок: ApproximateFee
// генерируется и удаляется автоматически, ExactFee принадлежит
// пользователю и движком не трогается.
type EventDetail interface {
	detailKind() string
}

// ApproximateFee — автоматически сгенерированное списание годовой платы.
// Такие записи свободно перегенерируются при пересчёте расписания.
type ApproximateFee struct {
	Fee int `json:"fee"`
}

// ExactFee — списание годовой платы, внесённое пользователем.
// Движок никогда не удаляет такие записи автоматически.
type ExactFee struct {
	Fee int `json:"fee"`
}

// FeeRefund — возврат годовой платы (полный или частичный).
type FeeRefund struct {
	Amount int `json:"amount"`
}

// OtherDetail — произвольные метаданные остальных событий.
type OtherDetail struct {
	Payload map[string]any `json:"payload,omitempty"`
}

func (ApproximateFee) detailKind() string { return "approximate_fee" }
func (ExactFee) detailKind() string       { return "exact_fee" }
func (FeeRefund) detailKind() string      { return "fee_refund" }
func (OtherDetail) detailKind() string    { return "other" }

// Event представляет запись в журнале событий карты.
type Event struct {
	ID          int
	CardID      int
	Type        string
	Date        time.Time
	Description string
	Detail      EventDetail // nil для событий без метаданных
}

// IsFeePosting сообщает, является ли событие списанием годовой платы.
func (e *Event) IsFeePosting() bool {
	return e.Type == EventAnnualFeePosted
}

// IsApproximateFee сообщает, является ли событие автоматически
// сгенерированным списанием годовой платы.
func (e *Event) IsApproximateFee() bool {
	_, ok := e.Detail.(ApproximateFee)
	return ok
}

// FeeAmount возвращает сумму списания для событий годовой платы.
func (e *Event) FeeAmount() (int, bool) {
	switch d := e.Detail.(type) {
	case ApproximateFee:
		return d.Fee, true
	case ExactFee:
		return d.Fee, true
	default:
		return 0, false
	}
}

type detailEnvelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// MarshalDetail сериализует метаданные события для хранения в jsonb-колонке.
// Возвращает nil для событий без метаданных.
func MarshalDetail(d EventDetail) ([]byte, error) {
	if d == nil {
		return nil, nil
	}
	payload, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return json.Marshal(detailEnvelope{Kind: d.detailKind(), Payload: payload})
}

// UnmarshalDetail восстанавливает метаданные события из jsonb-колонки.
func UnmarshalDetail(raw []byte) (EventDetail, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var env detailEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	switch env.Kind {
	case "approximate_fee":
		var d ApproximateFee
		if err := json.Unmarshal(env.Payload, &d); err != nil {
			return nil, err
		}
		return d, nil
	case "exact_fee":
		var d ExactFee
		if err := json.Unmarshal(env.Payload, &d); err != nil {
			return nil, err
		}
		return d, nil
	case "fee_refund":
		var d FeeRefund
		if err := json.Unmarshal(env.Payload, &d); err != nil {
			return nil, err
		}
		return d, nil
	case "other":
		var d OtherDetail
		if err := json.Unmarshal(env.Payload, &d); err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unknown event detail kind: %q", env.Kind)
	}
}

// DummyEvent используется для приёма события из JSON-запроса.
type DummyEvent struct {
	Type        string `json:"type" validate:"required,oneof=opened closed reopened product_change annual_fee_posted annual_fee_refund retention_offer other"`
	Date        string `json:"date" validate:"required,datetime=2006-01-02"`
	Description string `json:"description,omitempty"`
	Fee         *int   `json:"fee,omitempty"`
	Amount      *int   `json:"amount,omitempty"`
}

// DummyRetentionOffer описывает JSON-запрос на фиксацию retention-предложения.
type DummyRetentionOffer struct {
	Date             string `json:"date" validate:"required,datetime=2006-01-02"`
	Description      string `json:"description,omitempty"`
	BonusAmount      *int   `json:"bonus_amount,omitempty"`
	BonusType        string `json:"bonus_type,omitempty"`
	SpendRequirement *int   `json:"spend_requirement,omitempty"`
	SpendDeadline    string `json:"spend_deadline,omitempty"`
}
