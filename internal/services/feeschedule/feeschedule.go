// Package feeschedule содержит движок расписания годовой платы.
// Все функции чистые: они принимают материализованный набор событий карты
// и возвращают план изменений (какие события создать, какие удалить,
// какой станет дата следующего списания). Применение плана к хранилищу —
// забота вызывающего слоя, одной транзакцией на карту.
//
// Движок владеет только ApproximateFee-событиями: ExactFee-записи,
// внесённые пользователем, никогда не удаляются автоматически.
package feeschedule

import (
	"time"

	"github.com/pereloman/cardperks/internal/lib/feetimeline"
	"github.com/pereloman/cardperks/internal/lib/period"
	"github.com/pereloman/cardperks/internal/models"
)

// Plan — результат одного перехода планировщика.
// DueDate == nil означает, что дату следующего списания нужно очистить.
type Plan struct {
	Add       []models.Event // События к созданию
	RemoveIDs []int          // Идентификаторы approximate-событий к удалению
	DueDate   *time.Time     // Новая дата следующего списания
}

// resolveFee возвращает плату для годовщины: по таймлайну шаблона,
// а при его отсутствии — плоскую плату карты.
func resolveFee(timeline feetimeline.Timeline, year, flatFee int) int {
	if fee, ok := timeline.FeeForYear(year); ok {
		return fee
	}
	return flatFee
}

// hasFeeEventOn сообщает, есть ли на дату хоть одно событие списания
// годовой платы — неважно, approximate или exact.
func hasFeeEventOn(events []models.Event, date time.Time) bool {
	for _, e := range events {
		if e.IsFeePosting() && e.Date.Equal(date) {
			return true
		}
	}
	return false
}

// walkAnniversaries идёт годовыми шагами от start до today включительно,
// создавая approximate-события, и возвращает их вместе с первой годовщиной
// после today. Годовщины, на которые уже есть событие списания, пропускаются.
func walkAnniversaries(cardID int, events []models.Event, start time.Time, flatFee int, timeline feetimeline.Timeline, today time.Time) ([]models.Event, time.Time) {
	var added []models.Event
	anniversary := start
	for !anniversary.After(today) {
		if !hasFeeEventOn(events, anniversary) {
			added = append(added, models.Event{
				CardID: cardID,
				Type:   models.EventAnnualFeePosted,
				Date:   anniversary,
				Detail: models.ApproximateFee{Fee: resolveFee(timeline, anniversary.Year(), flatFee)},
			})
		}
		anniversary = period.AddYears(anniversary, 1)
	}
	return added, anniversary
}

// OnCreate строит расписание для только что открытой карты: по одному
// approximate-событию на каждую прошедшую годовщину начиная с даты
// открытия. Вызывается и при первом заполнении open_date у существующей
// карты. Повторный вызов с теми же входными данными не дублирует событий.
func OnCreate(cardID int, events []models.Event, openDate time.Time, flatFee int, timeline feetimeline.Timeline, today time.Time) Plan {
	if flatFee <= 0 {
		return Plan{}
	}
	added, next := walkAnniversaries(cardID, events, openDate, flatFee, timeline, today)
	return Plan{Add: added, DueDate: &next}
}

// OnProductChange перестраивает расписание после смены продукта:
//  1. одно exact-событие на дату смены с новой платой, если она больше нуля;
//  2. все approximate-события позже даты смены удаляются, exact-записи
//     не трогаются;
//  3. при нулевой новой плате дата следующего списания очищается;
//  4. иначе расписание перестраивается годовыми шагами от change_date+1год
//     по таймлайну нового шаблона, годовщины с существующими событиями
//     пропускаются.
func OnProductChange(cardID int, events []models.Event, changeDate time.Time, newFee int, timeline feetimeline.Timeline, today time.Time) Plan {
	var plan Plan

	if newFee > 0 {
		plan.Add = append(plan.Add, models.Event{
			CardID: cardID,
			Type:   models.EventAnnualFeePosted,
			Date:   changeDate,
			Detail: models.ExactFee{Fee: newFee},
		})
	}

	remaining := make([]models.Event, 0, len(events))
	for _, e := range events {
		if e.IsApproximateFee() && e.Date.After(changeDate) {
			plan.RemoveIDs = append(plan.RemoveIDs, e.ID)
			continue
		}
		remaining = append(remaining, e)
	}

	if newFee <= 0 {
		return plan
	}

	// Годовщина сбрасывается на дату смены продукта: полная новая плата
	// списана в change_date, следующая — через год от неё.
	remaining = append(remaining, plan.Add...)
	added, next := walkAnniversaries(cardID, remaining, period.AddYears(changeDate, 1), newFee, timeline, today)
	plan.Add = append(plan.Add, added...)
	plan.DueDate = &next
	return plan
}

// OnClose удаляет approximate-события позже даты закрытия и очищает
// дату следующего списания. Существующие события до даты закрытия
// включительно сохраняются.
func OnClose(events []models.Event, closeDate time.Time) Plan {
	var plan Plan
	for _, e := range events {
		if e.IsApproximateFee() && e.Date.After(closeDate) {
			plan.RemoveIDs = append(plan.RemoveIDs, e.ID)
		}
	}
	return plan
}

// OnReopen восстанавливает расписание повторно открытой карты:
// до-генерирует approximate-события только для годовщин, на которых нет
// ни одного события списания, и пересчитывает дату следующего списания.
// Повторный вызов — no-op.
func OnReopen(cardID int, events []models.Event, openDate time.Time, flatFee int, timeline feetimeline.Timeline, today time.Time) Plan {
	if flatFee <= 0 {
		return Plan{}
	}
	added, next := walkAnniversaries(cardID, events, openDate, flatFee, timeline, today)
	return Plan{Add: added, DueDate: &next}
}

// RecomputeDueDate вычисляет дату следующего списания по набору событий
// карты. Если последнее по дате событие списания — exact, следующая дата
// строго через год после него. Иначе расписание пересчитывается от даты
// открытия либо от последней смены продукта, смотря что позже.
// Возвращает nil, когда вычислить дату не из чего.
func RecomputeDueDate(events []models.Event, openDate *time.Time, today time.Time) *time.Time {
	var latest *models.Event
	for i := range events {
		e := &events[i]
		if !e.IsFeePosting() {
			continue
		}
		if latest == nil || e.Date.After(latest.Date) {
			latest = e
		}
	}

	if latest != nil {
		if _, exact := latest.Detail.(models.ExactFee); exact {
			next := period.AddYears(latest.Date, 1)
			return &next
		}
	}

	anchor := openDate
	for _, e := range events {
		if e.Type == models.EventProductChange && (anchor == nil || e.Date.After(*anchor)) {
			d := e.Date
			anchor = &d
		}
	}
	if anchor == nil {
		return nil
	}

	anniversary := *anchor
	for !anniversary.After(today) {
		anniversary = period.AddYears(anniversary, 1)
	}
	return &anniversary
}
