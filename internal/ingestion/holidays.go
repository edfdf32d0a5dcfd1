package ingestion

import "time"

// fixedHolidays are the national holidays on which B3 does not trade, as MM-DD.
var fixedHolidays = map[string]string{
	"01-01": "Confraternização Universal",
	"04-21": "Tiradentes",
	"05-01": "Dia do Trabalho",
	"09-07": "Independência",
	"10-12": "Nossa Senhora Aparecida",
	"11-02": "Finados",
	"11-15": "Proclamação da República",
	"11-20": "Consciência Negra",
	"12-24": "Véspera de Natal",
	"12-25": "Natal",
	"12-31": "Último dia útil do ano",
}

// movableHolidays are offsets in days from Easter Sunday.
var movableHolidays = []struct {
	offset int
	name   string
}{
	{-48, "Carnaval"},
	{-47, "Carnaval"},
	{-2, "Sexta-feira Santa"},
	{60, "Corpus Christi"},
}

// Holiday returns the holiday name for the calendar day of d, or "" when the
// exchange is scheduled to open. Weekends are reported as "weekend".
func Holiday(d time.Time) string {
	d = truncateToDate(d)
	if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return "weekend"
	}
	if name, ok := fixedHolidays[d.Format("01-02")]; ok {
		return name
	}

	// Movable holidays keyed off Easter Sunday.
	easter := easterSunday(d.Year(), d.Location())
	for _, h := range movableHolidays {
		if sameDay(d, easter.AddDate(0, 0, h.offset)) {
			return h.name
		}
	}
	return ""
}

// IsBusinessDay reports whether B3 holds a regular session on d's calendar day.
func IsBusinessDay(d time.Time) bool {
	return Holiday(d) == ""
}

// BusinessDays returns the sessions inside r, oldest first.
func BusinessDays(r DateRange) []time.Time {
	var out []time.Time
	for d := truncateToDate(r.Start); d.Before(r.End); d = d.AddDate(0, 0, 1) {
		if IsBusinessDay(d) {
			out = append(out, d)
		}
	}
	return out
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func truncateToDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// easterSunday returns the date of Easter Sunday for a given year
// (Meeus/Jones/Butcher algorithm).
func easterSunday(year int, loc *time.Location) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := ((h + l - 7*m + 114) % 31) + 1

	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
}
