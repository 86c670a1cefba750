package datasync

import (
	"math"
	"regexp"
	"strings"
	"time"
)

type domainLabel struct {
	label string
	value *regexp.Regexp
}

// domainLabels are checked in order. The first label present in a statement
// decides the result even when its value does not parse.
var domainLabels = []domainLabel{
	{"**domain**", regexp.MustCompile(`\*\*domain\*\*\s*-\s*([^\n]+)`)},
	{"**suggested-domain**", regexp.MustCompile(`\*\*suggested-domain\*\*\s*-\s*([^\n]+)`)},
}

// WeekNumber returns the 1-based project week of taskDate, counting whole
// calendar days from projectStart (YYYY-MM-DD). Dates before the start clamp
// to week 1. It returns nil when taskDate is nil or projectStart does not parse.
func WeekNumber(taskDate *time.Time, projectStart string) *int {
	if taskDate == nil {
		return nil
	}
	start, err := time.Parse(time.DateOnly, strings.TrimSpace(projectStart))
	if err != nil {
		return nil
	}

	y, m, d := taskDate.UTC().Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	days := int(day.Sub(start).Hours() / 24)

	week := max(1, int(math.Floor(float64(days)/7))+1)
	return &week
}

// ExtractDomain returns the value of the **domain** label in a task
// statement, falling back to **suggested-domain** only when the first label
// is absent. It returns nil when neither label is present or the chosen
// label has no readable value.
func ExtractDomain(statement *string) *string {
	if statement == nil {
		return nil
	}
	for _, dl := range domainLabels {
		if !strings.Contains(*statement, dl.label) {
			continue
		}
		m := dl.value.FindStringSubmatch(*statement)
		if m == nil {
			return nil
		}
		domain := strings.TrimSpace(m[1])
		if domain == "" {
			return nil
		}
		return &domain
	}
	return nil
}
