// Package period вычисляет текущее окно отслеживания повторяющегося
// бенефита. Окна либо выровнены по календарю, либо привязаны к годовщине
// открытия карты (cardiversary).
package period

import "time"

// Количество месяцев в одном шаге для каждой частоты.
var frequencySteps = map[string]int{
	"monthly":     1,
	"quarterly":   3,
	"semi_annual": 6,
	"annual":      12,
}

// Current возвращает (start, end) текущего периода для заданной частоты
// и типа выравнивания. Для cardiversary требуется anchor — дата открытия
// карты; без anchor выравнивание откатывается к календарному.
// Функция чистая и детерминированная.
func Current(frequency, resetType string, anchor *time.Time, reference time.Time) (time.Time, time.Time) {
	ref := midnight(reference)
	if resetType == "cardiversary" && anchor != nil {
		return cardiversaryPeriod(frequency, midnight(*anchor), ref)
	}
	return calendarPeriod(frequency, ref)
}

// AddMonths прибавляет n месяцев, прижимая день к концу месяца, если
// в целевом месяце такого дня нет: 31 января + 1 месяц = 28/29 февраля.
// Прижатие сохраняется в курсоре при последовательных прибавлениях,
// поэтому окна от 31-го числа со временем съезжают на 28-е — это
// контрактное поведение, его проверяют тесты.
func AddMonths(d time.Time, n int) time.Time {
	total := d.Year()*12 + int(d.Month()) - 1 + n
	year, month := total/12, time.Month(total%12+1)
	day := d.Day()
	if last := daysIn(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// AddYears прибавляет n лет с прижатием 29 февраля к 28-му в невисокосные годы.
func AddYears(d time.Time, n int) time.Time {
	return AddMonths(d, n*12)
}

func calendarPeriod(frequency string, ref time.Time) (time.Time, time.Time) {
	switch frequency {
	case "monthly":
		start := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, AddMonths(start, 1).AddDate(0, 0, -1)
	case "quarterly":
		quarterMonth := time.Month((int(ref.Month())-1)/3*3 + 1)
		start := time.Date(ref.Year(), quarterMonth, 1, 0, 0, 0, 0, time.UTC)
		return start, AddMonths(start, 3).AddDate(0, 0, -1)
	case "semi_annual":
		halfMonth := time.January
		if ref.Month() > time.June {
			halfMonth = time.July
		}
		start := time.Date(ref.Year(), halfMonth, 1, 0, 0, 0, 0, time.UTC)
		return start, AddMonths(start, 6).AddDate(0, 0, -1)
	default: // annual
		start := time.Date(ref.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		return start, time.Date(ref.Year(), time.December, 31, 0, 0, 0, 0, time.UTC)
	}
}

func cardiversaryPeriod(frequency string, anchor, ref time.Time) (time.Time, time.Time) {
	step, ok := frequencySteps[frequency]
	if !ok {
		step = 12
	}

	// Идём вперёд от даты открытия, пока не найдём окно, содержащее ref.
	cursor := anchor
	for {
		next := AddMonths(cursor, step)
		if next.After(ref) {
			return cursor, next.AddDate(0, 0, -1)
		}
		cursor = next
	}
}

func midnight(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
