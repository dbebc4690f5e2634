package fictitious

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// Audience определяет, к каким отгрузкам применим шаблон.
type Audience string

const (
	AudienceBoth      Audience = "both"
	AudienceTracked   Audience = "with_tracking"
	AudienceUntracked Audience = "without_tracking"
)

// Template — один настраиваемый шаблон фиктивного сообщения.
// Days — смещение в днях от якорной даты; Hour — "HH:MM" либо пусто.
// Пустой Hour (или "00:00") означает "сохранить исходное время якоря":
// так первое сообщение (days=0) выходит ровно в момент оформления заказа.
type Template struct {
	Message   string
	Days      int
	Hour      string
	AppliesTo Audience
}

// Scheduled — сообщение, срок которого уже наступил.
type Scheduled struct {
	Message string
	At      time.Time
}

// Due возвращает все сообщения, которые на момент now уже должны быть
// показаны и ещё не были записаны (already — по тексту сообщения).
// Результат отсортирован по возрастанию времени. Будущие сообщения и
// сообщения чужой аудитории отбрасываются. Вся арифметика дат идёт в loc.
func Due(anchor time.Time, templates []Template, already map[string]struct{}, tracked bool, now time.Time, loc *time.Location) []Scheduled {
	if loc == nil {
		loc = time.UTC
	}
	if anchor.IsZero() {
		// Якорь неизвестен — деградируем до "сейчас", расписание стартует заново.
		anchor = now
	}

	var out []Scheduled
	for _, t := range templates {
		if t.Message == "" || t.Days < 0 {
			continue
		}
		if !audienceMatches(t.AppliesTo, tracked) {
			continue
		}
		if _, ok := already[t.Message]; ok {
			continue
		}

		at := ScheduleTime(anchor, t.Days, t.Hour, loc)
		if at.After(now) {
			continue
		}
		out = append(out, Scheduled{Message: t.Message, At: at})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}

// ScheduleTime вычисляет плановое время шаблона от якоря.
func ScheduleTime(anchor time.Time, days int, hour string, loc *time.Location) time.Time {
	at := anchor.In(loc)
	if days > 0 {
		at = at.AddDate(0, 0, days)
	}
	if h, m, ok := parseHour(hour); ok && !(h == 0 && m == 0) {
		at = time.Date(at.Year(), at.Month(), at.Day(), h, m, 0, 0, loc)
	}
	// Пустой или нулевой час — оставляем время якоря как есть.
	return at
}

func audienceMatches(a Audience, tracked bool) bool {
	switch a {
	case AudienceTracked:
		return tracked
	case AudienceUntracked:
		return !tracked
	default:
		// both либо не задано — применимо ко всем
		return true
	}
}

func parseHour(hour string) (h, m int, ok bool) {
	hh, mm, found := strings.Cut(hour, ":")
	if !found {
		return 0, 0, false
	}
	h, err1 := strconv.Atoi(hh)
	m, err2 := strconv.Atoi(mm)
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, false
	}
	return h, m, true
}
