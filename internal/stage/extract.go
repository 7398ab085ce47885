package stage

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Candidates are the raw fields recognized in one inbound message, before
// validation. A zero field means the pattern did not match; absence is not an
// error.
type Candidates struct {
	FullName  string     `json:"full_name,omitempty"`
	Procedure string     `json:"procedure,omitempty"`
	Day       *time.Time `json:"desired_day,omitempty"`
	Time      string     `json:"desired_time,omitempty"`
	Window    string     `json:"time_window,omitempty"`
}

// Empty reports whether no field matched at all.
func (c Candidates) Empty() bool {
	return c.FullName == "" && c.Procedure == "" && c.Day == nil && c.Time == "" && c.Window == ""
}

// matcher recognizes a single field in an inbound message. Matchers run in a
// fixed order and each writes at most its own field, which keeps the rules
// independently testable.
type matcher interface {
	tryMatch(m message, c *Candidates)
}

// message carries the raw text, its accent-folded lowercase form and the
// reception time used to resolve relative dates.
type message struct {
	raw    string
	folded string
	ref    time.Time
}

// Extractor parses free-form Portuguese text into candidate fields.
type Extractor struct {
	matchers []matcher
}

// NewExtractor builds the default matcher chain.
func NewExtractor() *Extractor {
	return &Extractor{
		matchers: []matcher{
			newNameMatcher(),
			newProcedureMatcher(),
			newDayMatcher(),
			newTimeMatcher(),
			newWindowMatcher(),
		},
	}
}

// Extract runs every matcher against the message. Unmatched fields stay zero.
func (e *Extractor) Extract(text string, receivedAt time.Time) Candidates {
	m := message{
		raw:    text,
		folded: foldText(text),
		ref:    receivedAt,
	}
	var c Candidates
	for _, matcher := range e.matchers {
		matcher.tryMatch(m, &c)
	}
	return c
}

var accentStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// foldText lowercases and strips diacritics so vocabulary matching works the
// same for "amanhã" and "amanha".
func foldText(s string) string {
	out, _, err := transform.String(accentStripper, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// --- name ---

type nameMatcher struct {
	patterns []*regexp.Regexp
}

// nameStopwords cut the captured token run before conversational filler that
// the loose letter classes would otherwise swallow ("sou a Sandra e queria...").
var nameStopwords = map[string]struct{}{
	"e": {}, "mas": {}, "aqui": {}, "falando": {},
	"queria": {}, "quero": {}, "gostaria": {}, "preciso": {},
}

func newNameMatcher() *nameMatcher {
	letters := `[A-Za-zÀ-ÿ]+`
	run := letters + `(?:\s+` + letters + `)*`
	return &nameMatcher{
		// Priority order mirrors how people introduce themselves; first
		// pattern that yields a usable capture wins.
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)(?:meu nome é|meu nome e|me chamo)\s+(` + run + `)`),
			regexp.MustCompile(`(?i)\bsou (?:o |a )?(` + run + `)`),
			regexp.MustCompile(`(?i)\b(?:é|e) (?:o|a)\s+(` + run + `)\s+(?:aqui|falando)`),
			regexp.MustCompile(`(?i)^(` + letters + `)\s+(?:aqui|falando)`),
		},
	}
}

func (nm *nameMatcher) tryMatch(m message, c *Candidates) {
	if c.FullName != "" {
		return
	}
	for _, p := range nm.patterns {
		sub := p.FindStringSubmatch(m.raw)
		if sub == nil {
			continue
		}
		name := trimNameTokens(sub[1])
		if name != "" {
			c.FullName = name
			return
		}
	}
}

func trimNameTokens(captured string) string {
	tokens := strings.Fields(captured)
	kept := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if _, stop := nameStopwords[foldText(tok)]; stop {
			break
		}
		kept = append(kept, tok)
		if len(kept) == 5 {
			break
		}
	}
	return strings.Join(kept, " ")
}

// --- procedure ---

type procedureEntry struct {
	canonical string
	keywords  []string
}

type procedureMatcher struct {
	vocabulary []procedureEntry
}

// newProcedureMatcher builds the keyword vocabulary. Entries are scanned in
// order; the first entry with a matching keyword wins. Keywords are stored
// accent-folded.
func newProcedureMatcher() *procedureMatcher {
	return &procedureMatcher{
		vocabulary: []procedureEntry{
			{"limpeza", []string{"limpeza", "limpar", "profilaxia"}},
			{"avaliacao", []string{"avaliacao", "avaliar", "checkup", "check-up", "exame"}},
			{"ortodontia", []string{"ortodontia", "aparelho", "ortodontico", "brackets"}},
			{"restauracao", []string{"restauracao", "restaurar", "obturacao", "carie"}},
			{"canal", []string{"canal", "endodontia"}},
			{"extracao", []string{"extracao", "extrair", "arrancar", "tirar dente"}},
			{"clareamento", []string{"clareamento", "clarear", "branqueamento"}},
			{"implante", []string{"implante", "implantar", "protese"}},
			// "consulta" last: it doubles as a generic booking word, so the
			// specific procedures above take priority.
			{"consulta", []string{"consulta", "consultar"}},
		},
	}
}

func (pm *procedureMatcher) tryMatch(m message, c *Candidates) {
	if c.Procedure != "" {
		return
	}
	for _, entry := range pm.vocabulary {
		for _, kw := range entry.keywords {
			if strings.Contains(m.folded, kw) {
				c.Procedure = entry.canonical
				return
			}
		}
	}
}

// --- day ---

type dayMatcher struct {
	relative []struct {
		phrase string
		offset int
	}
	weekdays  []weekdayEntry
	explicit  *regexp.Regexp
}

type weekdayEntry struct {
	name string
	day  time.Weekday
}

func newDayMatcher() *dayMatcher {
	return &dayMatcher{
		// "depois de amanha" must be checked before "amanha".
		relative: []struct {
			phrase string
			offset int
		}{
			{"depois de amanha", 2},
			{"amanha", 1},
			{"hoje", 0},
		},
		// Longer forms first so "terca-feira" is not left as a partial match.
		weekdays: []weekdayEntry{
			{"segunda-feira", time.Monday}, {"segunda", time.Monday},
			{"terca-feira", time.Tuesday}, {"terca", time.Tuesday},
			{"quarta-feira", time.Wednesday}, {"quarta", time.Wednesday},
			{"quinta-feira", time.Thursday}, {"quinta", time.Thursday},
			{"sexta-feira", time.Friday}, {"sexta", time.Friday},
			{"sabado", time.Saturday},
			{"domingo", time.Sunday},
		},
		explicit: regexp.MustCompile(`\b(\d{1,2})[/-](\d{1,2})(?:[/-](\d{2,4}))?\b`),
	}
}

func (dm *dayMatcher) tryMatch(m message, c *Candidates) {
	if c.Day != nil {
		return
	}
	today := dateOnly(m.ref)

	for _, rel := range dm.relative {
		if containsWord(m.folded, rel.phrase) {
			d := today.AddDate(0, 0, rel.offset)
			c.Day = &d
			return
		}
	}

	for _, wd := range dm.weekdays {
		if containsWord(m.folded, wd.name) {
			// Next future occurrence; today only counts when named "hoje",
			// which the relative pass already handled.
			ahead := int(wd.day-today.Weekday()+7) % 7
			if ahead == 0 {
				ahead = 7
			}
			d := today.AddDate(0, 0, ahead)
			c.Day = &d
			return
		}
	}

	if sub := dm.explicit.FindStringSubmatch(m.folded); sub != nil {
		if d, ok := resolveExplicitDate(sub, today); ok {
			c.Day = &d
		}
	}
}

func resolveExplicitDate(sub []string, today time.Time) (time.Time, bool) {
	day, _ := strconv.Atoi(sub[1])
	month, _ := strconv.Atoi(sub[2])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	year := today.Year()
	if sub[3] != "" {
		year, _ = strconv.Atoi(sub[3])
		if year < 100 {
			year += 2000
		}
	}
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, today.Location())
	if d.Day() != day || d.Month() != time.Month(month) {
		// Overflowed an impossible date such as 31/02.
		return time.Time{}, false
	}
	if sub[3] == "" && d.Before(today) {
		d = d.AddDate(1, 0, 0)
	}
	return d, true
}

func containsWord(text, phrase string) bool {
	idx := strings.Index(text, phrase)
	for idx >= 0 {
		before := idx == 0 || !isWordRune(rune(text[idx-1]))
		afterIdx := idx + len(phrase)
		after := afterIdx >= len(text) || !isWordRune(rune(text[afterIdx]))
		if before && after {
			return true
		}
		next := strings.Index(text[idx+1:], phrase)
		if next < 0 {
			return false
		}
		idx += 1 + next
	}
	return false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// --- time ---

type timeMatcher struct {
	numeric *regexp.Regexp
	meridiem *regexp.Regexp
}

func newTimeMatcher() *timeMatcher {
	return &timeMatcher{
		// "14h", "14h30", "14:30"
		numeric: regexp.MustCompile(`\b(\d{1,2})(?:h(\d{2})?|:(\d{2}))\b`),
		// "2pm", "10 am"
		meridiem: regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*(am|pm)\b`),
	}
}

func (tm *timeMatcher) tryMatch(m message, c *Candidates) {
	if c.Time != "" {
		return
	}

	if strings.Contains(m.folded, "meio-dia") || strings.Contains(m.folded, "meio dia") {
		c.Time = "12:00"
		return
	}

	if sub := tm.meridiem.FindStringSubmatch(m.folded); sub != nil {
		hour, _ := strconv.Atoi(sub[1])
		minute := 0
		if sub[2] != "" {
			minute, _ = strconv.Atoi(sub[2])
		}
		if sub[3] == "pm" && hour < 12 {
			hour += 12
		}
		if sub[3] == "am" && hour == 12 {
			hour = 0
		}
		if hour <= 23 && minute <= 59 {
			c.Time = fmt.Sprintf("%02d:%02d", hour, minute)
		}
		return
	}

	if sub := tm.numeric.FindStringSubmatch(m.folded); sub != nil {
		hour, _ := strconv.Atoi(sub[1])
		minute := 0
		if sub[2] != "" {
			minute, _ = strconv.Atoi(sub[2])
		} else if sub[3] != "" {
			minute, _ = strconv.Atoi(sub[3])
		}
		// "3h da tarde" means 15:00.
		if hour < 12 && (strings.Contains(m.folded, "tarde") || strings.Contains(m.folded, "noite")) {
			hour += 12
		}
		if hour <= 23 && minute <= 59 {
			c.Time = fmt.Sprintf("%02d:%02d", hour, minute)
		}
	}
}

// --- period-of-day window ---

type windowMatcher struct {
	entries []struct {
		keyword   string
		canonical string
	}
}

func newWindowMatcher() *windowMatcher {
	return &windowMatcher{
		entries: []struct {
			keyword   string
			canonical string
		}{
			{"manha", "manhã"},
			{"tarde", "tarde"},
			{"noite", "noite"},
		},
	}
}

func (wm *windowMatcher) tryMatch(m message, c *Candidates) {
	if c.Window != "" {
		return
	}
	for _, e := range wm.entries {
		if containsWord(m.folded, e.keyword) {
			c.Window = e.canonical
			return
		}
	}
}
