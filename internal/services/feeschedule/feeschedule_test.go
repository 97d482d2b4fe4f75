package feeschedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pereloman/cardperks/internal/lib/feetimeline"
	"github.com/pereloman/cardperks/internal/models"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func datePtr(y int, m time.Month, d int) *time.Time {
	t := date(y, m, d)
	return &t
}

func approxEvent(id int, d time.Time, fee int) models.Event {
	return models.Event{ID: id, CardID: 1, Type: models.EventAnnualFeePosted, Date: d, Detail: models.ApproximateFee{Fee: fee}}
}

func exactEvent(id int, d time.Time, fee int) models.Event {
	return models.Event{ID: id, CardID: 1, Type: models.EventAnnualFeePosted, Date: d, Detail: models.ExactFee{Fee: fee}}
}

func TestOnCreate_WalksTimelineFees(t *testing.T) {
	timeline := feetimeline.Timeline{2021: 695, 2025: 895}
	today := date(2025, 7, 1)

	plan := OnCreate(1, nil, date(2022, 4, 1), 895, timeline, today)

	require.Len(t, plan.Add, 4)
	wantFees := map[int]int{2022: 695, 2023: 695, 2024: 695, 2025: 895}
	for _, e := range plan.Add {
		assert.Equal(t, models.EventAnnualFeePosted, e.Type)
		assert.Equal(t, date(e.Date.Year(), 4, 1), e.Date)
		fee, ok := e.FeeAmount()
		require.True(t, ok)
		assert.Equal(t, wantFees[e.Date.Year()], fee, "fee for %d", e.Date.Year())
		assert.True(t, e.IsApproximateFee())
	}
	require.NotNil(t, plan.DueDate)
	assert.Equal(t, date(2026, 4, 1), *plan.DueDate)
}

func TestOnCreate_FlatFeeWithoutTimeline(t *testing.T) {
	plan := OnCreate(1, nil, date(2023, 9, 10), 95, feetimeline.Timeline{}, date(2025, 2, 1))

	require.Len(t, plan.Add, 2)
	for _, e := range plan.Add {
		fee, _ := e.FeeAmount()
		assert.Equal(t, 95, fee)
	}
	assert.Equal(t, date(2025, 9, 10), *plan.DueDate)
}

func TestOnCreate_ZeroFeeProducesNothing(t *testing.T) {
	plan := OnCreate(1, nil, date(2023, 1, 1), 0, nil, date(2025, 1, 1))
	assert.Empty(t, plan.Add)
	assert.Nil(t, plan.DueDate)
}

func TestOnCreate_RecentCardHasOnlyFirstYear(t *testing.T) {
	plan := OnCreate(1, nil, date(2025, 5, 20), 250, nil, date(2025, 6, 1))
	require.Len(t, plan.Add, 1)
	assert.Equal(t, date(2025, 5, 20), plan.Add[0].Date)
	assert.Equal(t, date(2026, 5, 20), *plan.DueDate)
}

func TestOnCreate_IsIdempotent(t *testing.T) {
	today := date(2025, 7, 1)
	first := OnCreate(1, nil, date(2022, 4, 1), 95, nil, today)
	require.Len(t, first.Add, 4)

	// Повторный вызов поверх уже применённого плана ничего не добавляет.
	second := OnCreate(1, first.Add, date(2022, 4, 1), 95, nil, today)
	assert.Empty(t, second.Add)
	assert.Equal(t, *first.DueDate, *second.DueDate)
}

func TestOnProductChange_ToPositiveFee(t *testing.T) {
	// Карта открыта 2022-06-01, смена продукта 2024-03-01 с $0 на $550.
	events := []models.Event{
		{ID: 1, CardID: 1, Type: models.EventOpened, Date: date(2022, 6, 1)},
	}
	today := date(2025, 6, 15)

	plan := OnProductChange(1, events, date(2024, 3, 1), 550, feetimeline.Timeline{}, today)

	require.Len(t, plan.Add, 2)
	assert.Equal(t, date(2024, 3, 1), plan.Add[0].Date)
	assert.IsType(t, models.ExactFee{}, plan.Add[0].Detail)
	fee, _ := plan.Add[0].FeeAmount()
	assert.Equal(t, 550, fee)

	// Следующее approximate-событие привязано к дате смены, не к дате открытия.
	assert.Equal(t, date(2025, 3, 1), plan.Add[1].Date)
	assert.True(t, plan.Add[1].IsApproximateFee())

	require.NotNil(t, plan.DueDate)
	assert.Equal(t, date(2026, 3, 1), *plan.DueDate)
}

func TestOnProductChange_ToZeroFee(t *testing.T) {
	events := []models.Event{
		approxEvent(1, date(2024, 6, 15), 325),
		approxEvent(2, date(2025, 6, 15), 325),
		approxEvent(3, date(2026, 6, 15), 325),
	}

	plan := OnProductChange(1, events, date(2025, 6, 15), 0, nil, date(2025, 6, 15))

	// Нулевая плата: exact-событие не создаётся, будущие approximate удаляются.
	assert.Empty(t, plan.Add)
	assert.Equal(t, []int{3}, plan.RemoveIDs)
	assert.Nil(t, plan.DueDate)
}

func TestOnProductChange_PreservesExactEventsAfterChangeDate(t *testing.T) {
	events := []models.Event{
		approxEvent(1, date(2025, 8, 1), 325),
		exactEvent(2, date(2025, 9, 1), 325),
	}

	plan := OnProductChange(1, events, date(2025, 3, 1), 95, nil, date(2025, 10, 1))

	assert.Equal(t, []int{1}, plan.RemoveIDs)
	// Exact-событие после даты смены осталось нетронутым.
	assert.NotContains(t, plan.RemoveIDs, 2)
}

func TestOnProductChange_UsesNewTemplateTimeline(t *testing.T) {
	newTimeline := feetimeline.Timeline{2020: 450, 2025: 550}

	plan := OnProductChange(1, nil, date(2023, 2, 10), 550, newTimeline, date(2025, 3, 1))

	require.Len(t, plan.Add, 3)
	fees := map[string]int{}
	for _, e := range plan.Add {
		f, _ := e.FeeAmount()
		fees[e.Date.Format("2006-01-02")] = f
	}
	assert.Equal(t, 550, fees["2023-02-10"]) // exact по новой плате
	assert.Equal(t, 450, fees["2024-02-10"])
	assert.Equal(t, 550, fees["2025-02-10"])
}

func TestOnClose_RemovesFutureApproximateEvents(t *testing.T) {
	var events []models.Event
	for i, year := range []int{2021, 2022, 2023, 2024, 2025, 2026} {
		events = append(events, approxEvent(i+1, date(year, 3, 5), 95))
	}

	plan := OnClose(events, date(2024, 1, 9))

	assert.ElementsMatch(t, []int{4, 5, 6}, plan.RemoveIDs)
	assert.Nil(t, plan.DueDate)
}

func TestOnClose_KeepsExactEvents(t *testing.T) {
	events := []models.Event{
		exactEvent(1, date(2025, 5, 1), 95),
		approxEvent(2, date(2025, 6, 1), 95),
	}
	plan := OnClose(events, date(2024, 12, 31))
	assert.Equal(t, []int{2}, plan.RemoveIDs)
}

func TestOnReopen_RegeneratesOnlyMissingAnniversaries(t *testing.T) {
	// После закрытия остались события 2021 и 2022, на 2022 — exact.
	events := []models.Event{
		approxEvent(1, date(2021, 7, 15), 95),
		exactEvent(2, date(2022, 7, 15), 95),
	}
	today := date(2024, 8, 1)

	plan := OnReopen(1, events, date(2021, 7, 15), 95, nil, today)

	require.Len(t, plan.Add, 2)
	assert.Equal(t, date(2023, 7, 15), plan.Add[0].Date)
	assert.Equal(t, date(2024, 7, 15), plan.Add[1].Date)
	require.NotNil(t, plan.DueDate)
	assert.Equal(t, date(2025, 7, 15), *plan.DueDate)

	// Повторное открытие поверх полного набора — no-op.
	second := OnReopen(1, append(events, plan.Add...), date(2021, 7, 15), 95, nil, today)
	assert.Empty(t, second.Add)
}

func TestRecomputeDueDate(t *testing.T) {
	tests := []struct {
		name     string
		events   []models.Event
		openDate *time.Time
		today    time.Time
		want     *time.Time
	}{
		{
			name:     "latest event exact: its date plus one year",
			events:   []models.Event{approxEvent(1, date(2023, 4, 1), 95), exactEvent(2, date(2024, 5, 10), 95)},
			openDate: datePtr(2023, 4, 1),
			today:    date(2024, 6, 1),
			want:     datePtr(2025, 5, 10),
		},
		{
			name:     "latest approximate: walk from open date",
			events:   []models.Event{approxEvent(1, date(2023, 4, 1), 95), approxEvent(2, date(2024, 4, 1), 95)},
			openDate: datePtr(2023, 4, 1),
			today:    date(2024, 6, 1),
			want:     datePtr(2025, 4, 1),
		},
		{
			name: "product change anchor wins when later than open date",
			events: []models.Event{
				approxEvent(1, date(2022, 4, 1), 95),
				{ID: 2, CardID: 1, Type: models.EventProductChange, Date: date(2024, 3, 1)},
			},
			openDate: datePtr(2022, 4, 1),
			today:    date(2024, 6, 1),
			want:     datePtr(2025, 3, 1),
		},
		{
			name:     "no events and no open date",
			events:   nil,
			openDate: nil,
			today:    date(2024, 6, 1),
			want:     nil,
		},
		{
			name:     "no fee events falls back to open date walk",
			events:   nil,
			openDate: datePtr(2023, 10, 20),
			today:    date(2024, 6, 1),
			want:     datePtr(2024, 10, 20),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RecomputeDueDate(tt.events, tt.openDate, tt.today)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}
