// Package feetimeline строит годовую историю размера годовой платы
// из истории версий шаблона и отвечает на вопрос «какая плата действовала
// в таком-то году». Версии, в идентификаторе которых нет токена года,
// в истории не участвуют.
package feetimeline

import (
	"regexp"
	"strconv"

	"github.com/pereloman/cardperks/internal/models"
)

var versionYearRe = regexp.MustCompile(`_(\d{4})_`)

// Timeline — отображение год → годовая плата, построенное из истории
// версий шаблона. Пустой Timeline означает, что история неизвестна
// и вызывающий код должен использовать плоскую плату карты.
type Timeline map[int]int

// Build собирает Timeline из истории версий. Версии без платы или без
// распознаваемого токена года `_YYYY_` в идентификаторе пропускаются.
func Build(versions []models.TemplateVersion) Timeline {
	timeline := Timeline{}
	for _, v := range versions {
		if v.AnnualFee == nil {
			continue
		}
		m := versionYearRe.FindStringSubmatch(v.VersionID)
		if m == nil {
			continue
		}
		year, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		timeline[year] = *v.AnnualFee
	}
	return timeline
}

// FeeForYear возвращает плату, действовавшую в заданном году:
// берётся последняя известная версия с годом <= year, а если таких нет —
// самая ранняя известная (допущение о предыстории). Для пустого Timeline
// возвращается (0, false).
func (t Timeline) FeeForYear(year int) (int, bool) {
	if len(t) == 0 {
		return 0, false
	}
	bestYear, earliestYear := -1, -1
	for y := range t {
		if y <= year && y > bestYear {
			bestYear = y
		}
		if earliestYear == -1 || y < earliestYear {
			earliestYear = y
		}
	}
	if bestYear != -1 {
		return t[bestYear], true
	}
	return t[earliestYear], true
}
