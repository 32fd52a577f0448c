package domain

type MonetaryAmount struct {
	Value    float64 `json:"value"`
	Currency string  `json:"currency"`
	Raw      string  `json:"raw"`
}

// ExtractedFields is a sparse record; fields that were not found stay absent.
type ExtractedFields struct {
	IssueDate   *string           `json:"issue_date,omitempty"`
	ExpiryDate  *string           `json:"expiry_date,omitempty"`
	Amounts     []MonetaryAmount  `json:"amounts,omitempty"`
	Identifiers []string          `json:"identifiers,omitempty"`
	Emails      []string          `json:"emails,omitempty"`
	Phones      []string          `json:"phones,omitempty"`
	Custom      map[string]string `json:"custom,omitempty"`
}

func (f ExtractedFields) IsEmpty() bool {
	return f.IssueDate == nil && f.ExpiryDate == nil && len(f.Amounts) == 0 &&
		len(f.Identifiers) == 0 && len(f.Emails) == 0 && len(f.Phones) == 0 && len(f.Custom) == 0
}

func (f *ExtractedFields) SetCustom(key, value string) {
	if value == "" {
		return
	}
	if f.Custom == nil {
		f.Custom = make(map[string]string)
	}
	f.Custom[key] = value
}
