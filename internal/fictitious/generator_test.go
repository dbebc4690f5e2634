package fictitious

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var saoPaulo = mustLoad("America/Sao_Paulo")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

func templates() []Template {
	return []Template{
		{Message: "Seu pedido foi registrado.", Days: 0, Hour: "", AppliesTo: AudienceBoth},
		{Message: "Pedido em separação.", Days: 3, Hour: "10:00", AppliesTo: AudienceTracked},
		{Message: "Aguardando postagem.", Days: 5, Hour: "14:30", AppliesTo: AudienceUntracked},
	}
}

func TestDue_FirstMessageKeepsAnchorClock(t *testing.T) {
	anchor := time.Date(2025, 2, 10, 16, 43, 12, 0, saoPaulo)
	now := anchor.Add(time.Second)

	due := Due(anchor, templates(), nil, true, now, saoPaulo)
	require.Len(t, due, 1)
	require.Equal(t, "Seu pedido foi registrado.", due[0].Message)
	// day 0 + пустой час: время якоря не искажается до полуночи
	require.True(t, due[0].At.Equal(anchor))
}

func TestDue_FutureMessagesInvisible(t *testing.T) {
	anchor := time.Date(2025, 2, 10, 9, 0, 0, 0, saoPaulo)
	now := anchor.AddDate(0, 0, 1)

	due := Due(anchor, templates(), nil, true, now, saoPaulo)
	require.Len(t, due, 1) // day-3 сообщение ещё не наступило
}

func TestDue_BackdatedAnchorEmitsAllDue(t *testing.T) {
	now := time.Date(2025, 2, 15, 12, 0, 0, 0, saoPaulo)
	anchor := now.AddDate(0, 0, -5)

	due := Due(anchor, templates(), nil, true, now, saoPaulo)
	require.Len(t, due, 2)
	// по возрастанию планового времени
	require.Equal(t, "Seu pedido foi registrado.", due[0].Message)
	require.Equal(t, "Pedido em separação.", due[1].Message)
	require.True(t, due[0].At.Before(due[1].At))

	want := time.Date(2025, 2, 13, 10, 0, 0, 0, saoPaulo)
	require.True(t, due[1].At.Equal(want))
}

func TestDue_AlreadyEmittedSkipped(t *testing.T) {
	now := time.Date(2025, 2, 15, 12, 0, 0, 0, saoPaulo)
	anchor := now.AddDate(0, 0, -5)

	already := map[string]struct{}{"Seu pedido foi registrado.": {}}
	due := Due(anchor, templates(), already, true, now, saoPaulo)
	require.Len(t, due, 1)
	require.Equal(t, "Pedido em separação.", due[0].Message)
}

func TestDue_AudienceFilter(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, saoPaulo)
	anchor := now.AddDate(0, 0, -10)

	tracked := Due(anchor, templates(), nil, true, now, saoPaulo)
	for _, m := range tracked {
		require.NotEqual(t, "Aguardando postagem.", m.Message)
	}

	untracked := Due(anchor, templates(), nil, false, now, saoPaulo)
	var msgs []string
	for _, m := range untracked {
		msgs = append(msgs, m.Message)
	}
	require.Contains(t, msgs, "Aguardando postagem.")
	require.NotContains(t, msgs, "Pedido em separação.")
	require.Contains(t, msgs, "Seu pedido foi registrado.") // both — для всех
}

func TestDue_ZeroAnchorFallsBackToNow(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, saoPaulo)
	due := Due(time.Time{}, templates(), nil, true, now, saoPaulo)
	require.Len(t, due, 1)
	require.True(t, due[0].At.Equal(now))
}

func TestDue_InvalidTemplatesSkipped(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, saoPaulo)
	tpls := []Template{
		{Message: "", Days: 0},
		{Message: "negativo", Days: -1},
	}
	require.Empty(t, Due(now.AddDate(0, 0, -1), tpls, nil, true, now, saoPaulo))
}

func TestScheduleTime_ZeroHourKeepsAnchorClock(t *testing.T) {
	anchor := time.Date(2025, 2, 10, 16, 43, 0, 0, saoPaulo)

	at := ScheduleTime(anchor, 2, "00:00", saoPaulo)
	require.Equal(t, 16, at.Hour())
	require.Equal(t, 43, at.Minute())
	require.Equal(t, 12, at.Day())

	at = ScheduleTime(anchor, 2, "08:15", saoPaulo)
	require.Equal(t, 8, at.Hour())
	require.Equal(t, 15, at.Minute())
}

func TestScheduleTime_MalformedHourTreatedAsEmpty(t *testing.T) {
	anchor := time.Date(2025, 2, 10, 16, 43, 0, 0, saoPaulo)
	at := ScheduleTime(anchor, 1, "not-a-time", saoPaulo)
	require.Equal(t, 16, at.Hour())
	require.Equal(t, 43, at.Minute())
}
