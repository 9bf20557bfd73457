// Package localtime кодирует даты слотов в каноническую local-literal строку.
//
// Канонический формат: "2006-01-02T15:04:05.000Z". Суффикс ".000Z" здесь -
// фиксированное оформление, а НЕ маркер UTC: цифры даты и времени в строке -
// это буквальные настенные значения, введённые пользователем, и ни один слой
// не имеет права сдвигать их таймзонной арифметикой. Поэтому значения
// хранятся и сравниваются как строки, а разбор - структурный, по цифрам.
package localtime

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	reZoneSuffix = regexp.MustCompile(`(Z|[+-]\d{2}:\d{2})$`)
	reDateOnly   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	reDateMinute = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}$`)
	reDateSecond = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}$`)
	reLiteral    = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2})(\.\d+)?(Z|[+-]\d{2}:\d{2})?$`)
	reDatePrefix = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})`)
	reTimeOfDay  = regexp.MustCompile(`(\d{1,2}):(\d{2})`)
	reMillis     = regexp.MustCompile(`\.\d+$`)
)

// Запасные layout'ы для защитного разбора произвольного ввода.
// Этот путь может сдвинуть настенное время и существует только как fallback.
var fallbackLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"02.01.2006 15:04",
	"02.01.2006",
}

// Normalize приводит произвольную строку даты/времени к каноническому виду.
// Порядок правил: зонный суффикс принимается как есть (с дополнением
// миллисекунд), голая дата получает полночь, неполное время дополняется
// нулями, всё остальное уходит в защитный разбор. Непригодный ввод -
// ok=false.
func Normalize(input string) (string, bool) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", false
	}

	if loc := reZoneSuffix.FindStringIndex(s); loc != nil {
		body, suffix := s[:loc[0]], s[loc[0]:]
		// Неполное время перед суффиксом дополняется нулями так же,
		// как и без суффикса
		switch {
		case reDateMinute.MatchString(body):
			return body + ":00.000" + suffix, true
		case reDateSecond.MatchString(body):
			return body + ".000" + suffix, true
		case reLiteral.MatchString(body):
			if !reMillis.MatchString(body) {
				body += ".000"
			}
			return body + suffix, true
		}
	}

	switch {
	case reDateOnly.MatchString(s):
		return s + "T00:00:00.000Z", true
	case reDateMinute.MatchString(s):
		return s + ":00.000Z", true
	case reDateSecond.MatchString(s):
		return s + ".000Z", true
	}

	if m := reLiteral.FindStringSubmatch(s); m != nil && m[3] == "" {
		// Литерал с дробными секундами без зоны
		return m[1] + ".000Z", true
	}

	for _, layout := range fallbackLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02T15:04:05") + ".000Z", true
		}
	}

	return "", false
}

// DisplayLiteral срезает каноническое значение до "2006-01-02T15:04:05",
// не пересчитывая календарные поля через таймзону: суффикс и миллисекунды
// просто отбрасываются. Голый литерал без зонного суффикса проходит
// насквозь (минус хвост миллисекунд).
func DisplayLiteral(value string) (string, bool) {
	s := strings.TrimSpace(value)
	if s == "" {
		return "", false
	}

	if m := reLiteral.FindStringSubmatch(s); m != nil {
		return m[1], true
	}
	if reDateOnly.MatchString(s) {
		return s, true
	}
	if !reZoneSuffix.MatchString(s) {
		return reMillis.ReplaceAllString(s, ""), true
	}

	for _, layout := range fallbackLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02T15:04:05"), true
		}
	}

	return "", false
}

// Compose склеивает дату базового значения и время дня в каноническую
// строку. Дата берётся из собственных цифр baseDate (без перепроецирования
// через таймзону), время - терпимым поиском "HH:MM" внутри timeStr.
func Compose(baseDate, timeStr string) (string, bool) {
	m := reTimeOfDay.FindStringSubmatch(timeStr)
	if m == nil {
		return "", false
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	if hour > 23 || minute > 59 {
		return "", false
	}

	base := strings.TrimSpace(baseDate)
	d := reDatePrefix.FindStringSubmatch(base)
	if d == nil {
		ok := false
		for _, layout := range fallbackLayouts {
			if t, err := time.Parse(layout, base); err == nil {
				d = []string{"", t.Format("2006-01-02")}
				ok = true
				break
			}
		}
		if !ok {
			return "", false
		}
	}

	return fmt.Sprintf("%sT%02d:%02d:00.000Z", d[1], hour, minute), true
}

// Less сравнивает два значения в естественном восходящем порядке.
// Канонические строки одной формы сравниваются лексикографически верно;
// разнородный ввод сначала нормализуется.
func Less(a, b string) bool {
	na, okA := Normalize(a)
	nb, okB := Normalize(b)
	if okA && okB {
		return na < nb
	}
	return a < b
}

// DisplayDate отдаёт дату в человеческом формате "02.01.2006"
func DisplayDate(value string) string {
	d := reDatePrefix.FindStringSubmatch(strings.TrimSpace(value))
	if d == nil {
		return value
	}
	parts := strings.SplitN(d[1], "-", 3)
	return parts[2] + "." + parts[1] + "." + parts[0]
}
