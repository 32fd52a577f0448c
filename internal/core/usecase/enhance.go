package usecase

import (
	"strings"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
)

// mergeEnhancement folds a reasoning suggestion into the local result. The
// suggested type wins only over an unknown or less confident local type;
// suggested fields only fill gaps and never replace what was found locally.
// When the type changes, custom fields are re-extracted with customFor so
// keys of the old type do not survive.
func mergeEnhancement(local domain.ClassificationResult, fields domain.ExtractedFields, enh domain.Enhancement, customFor func(domain.DocumentType) map[string]string) (domain.ClassificationResult, domain.ExtractedFields) {
	if enh.Type != "" && enh.Type != domain.TypeUnknown &&
		(local.Type == domain.TypeUnknown || enh.Confidence > local.Confidence) {
		if enh.Type != local.Type {
			fields.Custom = nil
			if customFor != nil {
				for k, v := range customFor(enh.Type) {
					fields.SetCustom(k, v)
				}
			}
		}
		local = domain.ClassificationResult{
			Type:       enh.Type,
			Confidence: clamp01(enh.Confidence),
			Language:   local.Language,
		}
	}

	suggested := enh.Fields
	if fields.IssueDate == nil && suggested.IssueDate != nil {
		fields.IssueDate = suggested.IssueDate
	}
	if fields.ExpiryDate == nil && suggested.ExpiryDate != nil {
		fields.ExpiryDate = suggested.ExpiryDate
	}
	if len(fields.Amounts) == 0 {
		fields.Amounts = suggested.Amounts
	}
	if len(fields.Identifiers) == 0 {
		fields.Identifiers = withoutPlaceholders(suggested.Identifiers)
	}
	if len(fields.Emails) == 0 {
		fields.Emails = withoutPlaceholders(suggested.Emails)
	}
	if len(fields.Phones) == 0 {
		fields.Phones = withoutPlaceholders(suggested.Phones)
	}
	for k, v := range suggested.Custom {
		if _, ok := fields.Custom[k]; !ok && !isPlaceholder(v) {
			fields.SetCustom(k, v)
		}
	}
	return local, fields
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// isPlaceholder reports redaction markers such as "[EMAIL]" echoed back by the service.
func isPlaceholder(v string) bool {
	v = strings.TrimSpace(v)
	return strings.HasPrefix(v, "[") && strings.HasSuffix(v, "]")
}

func withoutPlaceholders(values []string) []string {
	var out []string
	for _, v := range values {
		if !isPlaceholder(v) {
			out = append(out, v)
		}
	}
	return out
}
