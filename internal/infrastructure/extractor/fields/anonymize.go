package fields

import (
	"regexp"
	"strings"
)

var reCard = regexp.MustCompile(`\b(?:\d[ \-]?){12,18}\d\b`)

// redactions are applied in this order; an earlier expression wins when two
// matches start at the same offset.
var redactions = []struct {
	re          *regexp.Regexp
	placeholder string
}{
	{reEmail, "[EMAIL]"},
	{reIBAN, "[IBAN]"},
	{reCard, "[CARD]"},
	{reNIE, "[ID]"},
	{reDNI, "[ID]"},
	{reCIF, "[ID]"},
	{rePhoneIntl, "[PHONE]"},
	{rePhoneLocal, "[PHONE]"},
}

// Anonymizer replaces personal data with placeholders before text leaves the process.
type Anonymizer struct {
	exprs []*regexp.Regexp
}

func NewAnonymizer() *Anonymizer {
	exprs := make([]*regexp.Regexp, len(redactions))
	for i, r := range redactions {
		exprs[i] = r.re
	}
	return &Anonymizer{exprs: exprs}
}

func (a *Anonymizer) Anonymize(text string) string {
	spans := scan(text, a.exprs...)
	if len(spans) == 0 {
		return text
	}
	var sb strings.Builder
	sb.Grow(len(text))
	last := 0
	for _, s := range spans {
		sb.WriteString(text[last:s.start])
		sb.WriteString(redactions[s.expr].placeholder)
		last = s.end
	}
	sb.WriteString(text[last:])
	return sb.String()
}
