package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/knightclub/tournament-app/pkg/calendar"
)

var (
	// tournamentPattern matches titles that announce a tournament. English
	// keywords must be whole words (plural allowed); Russian stems may carry
	// an inflected ending.
	tournamentPattern = regexp.MustCompile(`(?i)(^|[^\p{L}])((tournament|championship|cup|open|arena|blitz|rapid|bullet|classical|swiss|simul)s?([^\p{L}]|$)|турнир|кубок|чемпионат|блиц)`)

	// timeControlPattern matches "3+2", "10 + 0", "90+30".
	timeControlPattern = regexp.MustCompile(`\b(\d{1,3})\s*\+\s*(\d{1,3})\b`)

	// categoryPattern matches an explicit speed keyword.
	categoryPattern = regexp.MustCompile(`(?i)(bullet|blitz|блиц|rapid|рапид|classical|классика)`)
)

// ParseCalendarEvents extracts tournaments from events, preserving order.
func ParseCalendarEvents(events []calendar.Event) []Tournament {
	tournaments := make([]Tournament, 0, len(events))
	for _, ev := range events {
		t, ok := parseEvent(ev)
		if !ok {
			continue
		}
		tournaments = append(tournaments, t)
	}
	return tournaments
}

func parseEvent(ev calendar.Event) (Tournament, bool) {
	title := strings.TrimSpace(ev.Title)
	if title == "" || ev.Start.IsZero() {
		return Tournament{}, false
	}

	end := ev.End
	if end.IsZero() {
		end = ev.Start
	}
	if end.Before(ev.Start) {
		return Tournament{}, false
	}

	if !tournamentPattern.MatchString(title) {
		return Tournament{}, false
	}

	meta := parseDescription(ev.Description)

	t := Tournament{
		ID:              ev.ID,
		Title:           title,
		Start:           ev.Start,
		End:             end,
		AllDay:          ev.AllDay,
		Location:        strings.TrimSpace(ev.Location),
		Description:     strings.TrimSpace(ev.Description),
		Format:          meta["format"],
		RegistrationURL: meta["register"],
		Rated:           parseRated(meta["rated"]),
		Source:          SourceCalendar,
	}

	if rounds, err := strconv.Atoi(meta["rounds"]); err == nil && rounds > 0 {
		t.Rounds = rounds
	}

	t.TimeControl = normalizeTimeControl(meta["tc"])
	if t.TimeControl == "" {
		t.TimeControl = normalizeTimeControl(title)
	}

	t.Category = explicitCategory(title)
	if t.Category == "" {
		t.Category = categoryFromTimeControl(t.TimeControl)
	}

	return t, true
}

// parseDescription reads "Key: value" lines. Keys are folded to the
// canonical names format, rounds, tc, rated and register.
func parseDescription(description string) map[string]string {
	meta := make(map[string]string)
	for _, line := range strings.Split(description, "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}

		var canonical string
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "format":
			canonical = "format"
		case "rounds":
			canonical = "rounds"
		case "time control", "tc":
			canonical = "tc"
		case "rated":
			canonical = "rated"
		case "register", "registration":
			canonical = "register"
		default:
			continue
		}

		// First occurrence wins.
		if _, seen := meta[canonical]; !seen {
			meta[canonical] = value
		}
	}
	return meta
}

func parseRated(value string) bool {
	switch strings.ToLower(value) {
	case "yes", "true", "fide":
		return true
	default:
		return false
	}
}

// normalizeTimeControl returns the first "base+increment" in s as "3+2".
func normalizeTimeControl(s string) string {
	m := timeControlPattern.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return m[1] + "+" + m[2]
}

func explicitCategory(title string) Category {
	m := categoryPattern.FindString(title)
	switch strings.ToLower(m) {
	case "bullet":
		return CategoryBullet
	case "blitz", "блиц":
		return CategoryBlitz
	case "rapid", "рапид":
		return CategoryRapid
	case "classical", "классика":
		return CategoryClassical
	default:
		return ""
	}
}

// categoryFromTimeControl estimates game length as base + 40 moves of
// increment, in minutes.
func categoryFromTimeControl(tc string) Category {
	base, inc, ok := strings.Cut(tc, "+")
	if !ok {
		return ""
	}
	baseMin, err := strconv.Atoi(base)
	if err != nil {
		return ""
	}
	incSec, err := strconv.Atoi(inc)
	if err != nil {
		return ""
	}

	estimated := float64(baseMin) + 40*float64(incSec)/60
	switch {
	case estimated < 3:
		return CategoryBullet
	case estimated < 10:
		return CategoryBlitz
	case estimated < 60:
		return CategoryRapid
	default:
		return CategoryClassical
	}
}
