package fields

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
)

const number = `(\d{1,3}(?:[.,]\d{3})+(?:[.,]\d{1,2})?|\d+(?:[.,]\d{1,2})?)`

var (
	reDateDMY   = regexp.MustCompile(`\b(\d{1,2})[/.\-](\d{1,2})[/.\-](\d{4}|\d{2})\b`)
	reDateISO   = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	reDateWords = regexp.MustCompile(`(?i)\b(\d{1,2})(?:\s+de)?\s+(` + monthAlternation() + `)\.?(?:\s+de)?,?\s+(\d{4})\b`)

	reAmountPrefix = regexp.MustCompile(`(?i)(€|\$|£|\bEUR\b|\bUSD\b|\bGBP\b)\s?` + number)
	reAmountSuffix = regexp.MustCompile(`(?i)` + number + `\s?(€|\$|£|\bEUR\b|\bUSD\b|\bGBP\b|\beuros?\b)`)

	reEmail = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)

	rePhoneIntl  = regexp.MustCompile(`\+\d{1,3}(?:[\s.\-]?\d{2,4}){2,5}`)
	rePhoneLocal = regexp.MustCompile(`\b[6789]\d{2}(?:[\s.\-]?\d{3}[\s.\-]?\d{3}|[\s.\-]?\d{2}[\s.\-]?\d{2}[\s.\-]?\d{2})\b`)

	reIBAN = regexp.MustCompile(`\b[A-Z]{2}\d{2}(?: ?[A-Z0-9]{4}){3,7}(?: ?[A-Z0-9]{1,3})?\b`)
	reDNI  = regexp.MustCompile(`\b\d{8}[A-Z]\b`)
	reNIE  = regexp.MustCompile(`\b[XYZ]\d{7}[A-Z]\b`)
	reCIF  = regexp.MustCompile(`\b[ABCDEFGHJNPQRSUVW]\d{7}[0-9A-J]\b`)
)

var months = map[string]time.Month{
	"jan": 1, "january": 1, "enero": 1, "ene": 1, "janvier": 1, "januar": 1, "gennaio": 1,
	"feb": 2, "february": 2, "febrero": 2, "février": 2, "februar": 2, "febbraio": 2,
	"mar": 3, "march": 3, "marzo": 3, "mars": 3, "märz": 3,
	"apr": 4, "april": 4, "abril": 4, "abr": 4, "avril": 4, "aprile": 4,
	"may": 5, "mayo": 5, "mai": 5, "maggio": 5,
	"jun": 6, "june": 6, "junio": 6, "juin": 6, "juni": 6, "giugno": 6,
	"jul": 7, "july": 7, "julio": 7, "juillet": 7, "juli": 7, "luglio": 7,
	"aug": 8, "august": 8, "agosto": 8, "ago": 8, "août": 8,
	"sep": 9, "sept": 9, "september": 9, "septiembre": 9, "septembre": 9, "settembre": 9,
	"oct": 10, "october": 10, "octubre": 10, "octobre": 10, "oktober": 10, "ottobre": 10,
	"nov": 11, "november": 11, "noviembre": 11, "novembre": 11,
	"dec": 12, "december": 12, "diciembre": 12, "dic": 12, "décembre": 12, "dezember": 12, "dicembre": 12,
}

func monthAlternation() string {
	names := make([]string, 0, len(months))
	for name := range months {
		names = append(names, regexp.QuoteMeta(name))
	}
	// longest first so "september" wins over "sep"
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	return strings.Join(names, "|")
}

type span struct {
	start, end int
	expr       int
	groups     []string
}

// scan runs every expression over text and returns non-overlapping matches
// in text order; earlier expressions win overlaps at the same start.
func scan(text string, exprs ...*regexp.Regexp) []span {
	var all []span
	for n, re := range exprs {
		for _, idx := range re.FindAllStringSubmatchIndex(text, -1) {
			groups := make([]string, len(idx)/2)
			for g := range groups {
				if idx[2*g] >= 0 {
					groups[g] = text[idx[2*g]:idx[2*g+1]]
				}
			}
			all = append(all, span{start: idx[0], end: idx[1], expr: n, groups: groups})
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].start < all[j].start })

	out := all[:0]
	lastEnd := -1
	for _, s := range all {
		if s.start < lastEnd {
			continue
		}
		out = append(out, s)
		lastEnd = s.end
	}
	return out
}

func extractDates(text string) []string {
	var out []string
	for _, s := range scan(text, reDateISO, reDateWords, reDateDMY) {
		if date, ok := normalizeDate(s.groups); ok {
			out = append(out, date)
		}
	}
	return out
}

// normalizeDate renders a matched date as YYYY-MM-DD, rejecting impossible calendar dates.
func normalizeDate(g []string) (string, bool) {
	var y, m, d int
	switch {
	case len(g[1]) == 4:
		y, _ = strconv.Atoi(g[1])
		m, _ = strconv.Atoi(g[2])
		d, _ = strconv.Atoi(g[3])
	default:
		d, _ = strconv.Atoi(g[1])
		if month, ok := months[strings.ToLower(g[2])]; ok {
			m = int(month)
		} else {
			m, _ = strconv.Atoi(g[2])
		}
		y, _ = strconv.Atoi(g[3])
		if len(g[3]) == 2 {
			y += 2000
		}
	}
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return "", false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d {
		return "", false
	}
	return t.Format("2006-01-02"), true
}

func extractAmounts(text string) []domain.MonetaryAmount {
	var out []domain.MonetaryAmount
	for _, s := range scan(text, reAmountPrefix, reAmountSuffix) {
		cur, num := s.groups[1], s.groups[2]
		if s.expr == 1 {
			cur, num = num, cur
		}
		value, ok := parseAmount(num)
		if !ok {
			continue
		}
		out = append(out, domain.MonetaryAmount{Value: value, Currency: normalizeCurrency(cur), Raw: strings.TrimSpace(s.groups[0])})
	}
	return out
}

func parseAmount(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	dec := -1
	switch {
	case lastComma > lastDot && len(s)-lastComma-1 <= 2:
		dec = lastComma
	case lastDot > lastComma && len(s)-lastDot-1 <= 2:
		dec = lastDot
	}
	intPart, frac := s, "0"
	if dec >= 0 {
		intPart, frac = s[:dec], s[dec+1:]
	}
	intPart = strings.NewReplacer(",", "", ".", "").Replace(intPart)
	v, err := strconv.ParseFloat(intPart+"."+frac, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func normalizeCurrency(c string) string {
	switch strings.ToLower(strings.TrimSpace(c)) {
	case "€", "eur", "euro", "euros":
		return "EUR"
	case "$", "usd":
		return "USD"
	case "£", "gbp":
		return "GBP"
	default:
		return strings.ToUpper(c)
	}
}

func extractIdentifiers(text string) []string {
	var out []string
	for _, s := range scan(text, reIBAN, reNIE, reCIF, reDNI) {
		out = append(out, strings.ReplaceAll(s.groups[0], " ", ""))
	}
	return dedupe(out)
}

func extractEmails(text string) []string {
	return dedupe(reEmail.FindAllString(text, -1))
}

func extractPhones(text string) []string {
	var out []string
	for _, s := range scan(text, rePhoneIntl, rePhoneLocal) {
		out = append(out, strings.NewReplacer(" ", "", ".", "", "-", "").Replace(s.groups[0]))
	}
	return dedupe(out)
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}
