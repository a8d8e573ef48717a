// Package parser turns a pasted daily update message into a score entry.
//
// Grammar:
//
//	message   = date-line score-line*
//	date-line = month-name day ["st"|"nd"|"rd"|"th"]
//	score-line = name ":" integer | name "-" integer | name integer
//
// Blank lines and lines that are not score lines are skipped. A message
// without a single score line is rejected.
package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/okian/tally/internal/domain/model"
)

// seasonRollover is how far past today a date may land before it is
// attributed to the previous year.
const seasonRollover = 6

var months = map[string]time.Month{
	"january":   time.January,
	"jan":       time.January,
	"february":  time.February,
	"feb":       time.February,
	"march":     time.March,
	"mar":       time.March,
	"april":     time.April,
	"apr":       time.April,
	"may":       time.May,
	"june":      time.June,
	"jun":       time.June,
	"july":      time.July,
	"jul":       time.July,
	"august":    time.August,
	"aug":       time.August,
	"september": time.September,
	"sep":       time.September,
	"sept":      time.September,
	"october":   time.October,
	"oct":       time.October,
	"november":  time.November,
	"nov":       time.November,
	"december":  time.December,
	"dec":       time.December,
}

var (
	dateLine = regexp.MustCompile(`^([A-Za-z]+)\.?\s+(\d+)(?:st|nd|rd|th)?,?$`)

	// Tried in order; the first match wins.
	scoreLines = []*regexp.Regexp{
		regexp.MustCompile(`^(.+?)\s*:\s*(\d+)$`),
		regexp.MustCompile(`^([^:]+?)\s*-\s*(\d+)$`),
		regexp.MustCompile(`^([^:]+?)\s+(\d+)$`),
	}
)

// MonthDay is the undated part of a date line.
type MonthDay struct {
	Month time.Month
	Day   int
}

// Parse interprets message using year for the date line.
func Parse(message string, year int) (model.ScoreEntry, error) {
	lines := nonEmptyLines(message)
	if len(lines) == 0 {
		return model.ScoreEntry{}, newError(ErrEmptyMessage, "")
	}

	md, err := ParseDateLine(lines[0])
	if err != nil {
		return model.ScoreEntry{}, err
	}
	date, err := model.NewDate(year, md.Month, md.Day)
	if err != nil {
		return model.ScoreEntry{}, newError(ErrDayRange, lines[0])
	}

	scores := make(map[string]int, len(lines)-1)
	for _, line := range lines[1:] {
		name, score, ok, err := ParseScoreLine(line)
		if err != nil {
			return model.ScoreEntry{}, err
		}
		if !ok {
			continue
		}
		scores[name] = score
	}
	if len(scores) == 0 {
		return model.ScoreEntry{}, newError(ErrNoScores, "")
	}

	return model.ScoreEntry{Date: date, Scores: scores}, nil
}

// ParseAt parses message resolving the year against today.
func ParseAt(message string, today model.Date) (model.ScoreEntry, error) {
	lines := nonEmptyLines(message)
	if len(lines) == 0 {
		return model.ScoreEntry{}, newError(ErrEmptyMessage, "")
	}
	md, err := ParseDateLine(lines[0])
	if err != nil {
		return model.ScoreEntry{}, err
	}
	return Parse(message, ResolveYear(md, today))
}

// ParseDateLine reads "<Month> <day>".
func ParseDateLine(line string) (MonthDay, error) {
	m := dateLine.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return MonthDay{}, newError(ErrUnknownMonth, line)
	}
	month, ok := months[strings.ToLower(m[1])]
	if !ok {
		return MonthDay{}, newError(ErrUnknownMonth, line)
	}
	day, err := strconv.Atoi(m[2])
	if err != nil || day < 1 || day > 31 {
		return MonthDay{}, newError(ErrDayRange, line)
	}
	return MonthDay{Month: month, Day: day}, nil
}

// ParseScoreLine reads one "Name: score" line. ok is false for lines that
// are not score lines; a score line whose number does not fit an int is an
// ErrScoreRange error.
func ParseScoreLine(line string) (string, int, bool, error) {
	line = strings.TrimSpace(line)
	for _, re := range scoreLines {
		m := re.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[1])
		if name == "" {
			return "", 0, false, nil
		}
		score, err := strconv.Atoi(m[2])
		if err != nil {
			return "", 0, false, newError(ErrScoreRange, line)
		}
		return name, score, true, nil
	}
	return "", 0, false, nil
}

// ResolveYear picks the year for md given today. A date more than six months
// ahead of today belongs to last year ("December 31" sent on January 1).
func ResolveYear(md MonthDay, today model.Date) int {
	year := today.Year
	candidate := time.Date(year, md.Month, 1, 0, 0, 0, 0, time.UTC)
	limit := time.Date(today.Year, today.Month+seasonRollover, 1, 0, 0, 0, 0, time.UTC)
	if candidate.After(limit) {
		return year - 1
	}
	return year
}

func nonEmptyLines(message string) []string {
	raw := strings.Split(strings.ReplaceAll(message, "\r\n", "\n"), "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}
