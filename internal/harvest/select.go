package harvest

import (
	"regexp"
	"strings"

	"moodle-harvest/lib/platforms/moodle/core"

	"github.com/antzucaro/matchr"
)

// Unmatched is an idnumber of the configured list that no course carries.
type Unmatched struct {
	IDNumber string
	// Suggestion is the most similar idnumber of any course, if one exists.
	Suggestion string
}

// globRegex turns a search into a regex anchored at the start of the
// idnumber, '*' matches anything and every other character is literal.
func globRegex(search string) (*regexp.Regexp, error) {
	parts := strings.Split(search, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return regexp.Compile("^" + strings.Join(parts, ".*"))
}

func suggest(idnumber string, courses []core.Course) string {
	best := ""
	bestScore := 0.0
	for _, c := range courses {
		if c.IDNumber == "" {
			continue
		}
		score := matchr.JaroWinkler(strings.ToLower(idnumber), strings.ToLower(c.IDNumber), false)
		if score > bestScore {
			bestScore = score
			best = c.IDNumber
		}
	}
	return best
}

// SelectCourses picks the courses to harvest: first every course whose
// idnumber is in list (in list order), then every course matched by search.
// A search without '*' must equal the idnumber. Courses are never picked twice.
func SelectCourses(courses []core.Course, list []string, search string) ([]core.Course, []Unmatched, error) {
	var selected []core.Course
	picked := map[int64]bool{}
	pick := func(c core.Course) {
		if picked[c.ID] {
			return
		}
		picked[c.ID] = true
		selected = append(selected, c)
	}

	var unmatched []Unmatched
	for _, idnumber := range list {
		idnumber = strings.TrimSpace(idnumber)
		if idnumber == "" {
			continue
		}
		found := false
		for _, c := range courses {
			if c.IDNumber == idnumber {
				pick(c)
				found = true
			}
		}
		if !found {
			unmatched = append(unmatched, Unmatched{
				IDNumber:   idnumber,
				Suggestion: suggest(idnumber, courses),
			})
		}
	}

	search = strings.TrimSpace(search)
	if search == "" {
		return selected, unmatched, nil
	}
	if !strings.Contains(search, "*") {
		for _, c := range courses {
			if c.IDNumber == search {
				pick(c)
			}
		}
		return selected, unmatched, nil
	}

	pattern, err := globRegex(search)
	if err != nil {
		return nil, nil, err
	}
	for _, c := range courses {
		if c.IDNumber != "" && pattern.MatchString(c.IDNumber) {
			pick(c)
		}
	}
	return selected, unmatched, nil
}
