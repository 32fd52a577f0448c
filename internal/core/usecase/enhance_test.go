package usecase

import (
	"reflect"
	"testing"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
)

func strPtr(s string) *string { return &s }

func TestMergeEnhancementTypeRules(t *testing.T) {
	cases := []struct {
		name  string
		local domain.ClassificationResult
		enh   domain.Enhancement
		want  domain.DocumentType
		conf  float64
	}{
		{
			name:  "unknown local takes suggestion",
			local: domain.ClassificationResult{Type: domain.TypeUnknown, Language: domain.LanguageSpanish},
			enh:   domain.Enhancement{Type: domain.TypeReceipt, Confidence: 0.3},
			want:  domain.TypeReceipt,
			conf:  0.3,
		},
		{
			name:  "more confident suggestion wins",
			local: domain.ClassificationResult{Type: domain.TypeInvoice, Confidence: 0.4},
			enh:   domain.Enhancement{Type: domain.TypeReceipt, Confidence: 0.8},
			want:  domain.TypeReceipt,
			conf:  0.8,
		},
		{
			name:  "less confident suggestion loses",
			local: domain.ClassificationResult{Type: domain.TypeInvoice, Confidence: 0.45},
			enh:   domain.Enhancement{Type: domain.TypeReceipt, Confidence: 0.4},
			want:  domain.TypeInvoice,
			conf:  0.45,
		},
		{
			name:  "unknown suggestion never replaces",
			local: domain.ClassificationResult{Type: domain.TypeInvoice, Confidence: 0.2},
			enh:   domain.Enhancement{Type: domain.TypeUnknown, Confidence: 0.99},
			want:  domain.TypeInvoice,
			conf:  0.2,
		},
		{
			name:  "confidence is clamped",
			local: domain.ClassificationResult{Type: domain.TypeUnknown},
			enh:   domain.Enhancement{Type: domain.TypePayslip, Confidence: 7},
			want:  domain.TypePayslip,
			conf:  1,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, _ := mergeEnhancement(tc.local, domain.ExtractedFields{}, tc.enh, nil)
			if got.Type != tc.want || got.Confidence != tc.conf {
				t.Fatalf("got %s/%v, want %s/%v", got.Type, got.Confidence, tc.want, tc.conf)
			}
			if got.Language != tc.local.Language {
				t.Fatalf("language changed from %s to %s", tc.local.Language, got.Language)
			}
		})
	}
}

func TestMergeEnhancementOnlyFillsMissingFields(t *testing.T) {
	local := domain.ExtractedFields{
		IssueDate: strPtr("2024-01-05"),
		Emails:    []string{"billing@acme.test"},
		Custom:    map[string]string{"policy_number": "P-1"},
	}
	enh := domain.Enhancement{
		Type: domain.TypeUnknown,
		Fields: domain.ExtractedFields{
			IssueDate:   strPtr("2023-12-31"),
			ExpiryDate:  strPtr("2025-01-05"),
			Amounts:     []domain.MonetaryAmount{{Value: 12.5, Currency: "EUR"}},
			Emails:      []string{"other@acme.test"},
			Phones:      []string{"[PHONE]", "+34 600 000 000"},
			Identifiers: []string{"[ID]"},
			Custom:      map[string]string{"policy_number": "P-2", "insurer": "Mapfre", "holder": "[ID]"},
		},
	}

	_, got := mergeEnhancement(domain.ClassificationResult{Type: domain.TypeInvoice, Confidence: 0.4}, local, enh, nil)

	if *got.IssueDate != "2024-01-05" {
		t.Fatalf("local issue date was replaced: %s", *got.IssueDate)
	}
	if got.ExpiryDate == nil || *got.ExpiryDate != "2025-01-05" {
		t.Fatalf("expected missing expiry date to be filled")
	}
	if len(got.Amounts) != 1 || got.Amounts[0].Value != 12.5 {
		t.Fatalf("expected suggested amount, got %+v", got.Amounts)
	}
	if !reflect.DeepEqual(got.Emails, []string{"billing@acme.test"}) {
		t.Fatalf("local emails were replaced: %v", got.Emails)
	}
	if !reflect.DeepEqual(got.Phones, []string{"+34 600 000 000"}) {
		t.Fatalf("expected placeholder phone to be dropped, got %v", got.Phones)
	}
	if len(got.Identifiers) != 0 {
		t.Fatalf("placeholder identifiers must not be kept: %v", got.Identifiers)
	}
	want := map[string]string{"policy_number": "P-1", "insurer": "Mapfre"}
	if !reflect.DeepEqual(got.Custom, want) {
		t.Fatalf("custom = %v, want %v", got.Custom, want)
	}
}

func TestMergeEnhancementReextractsCustomFieldsOnTypeChange(t *testing.T) {
	local := domain.ExtractedFields{
		Emails: []string{"shop@acme.test"},
		Custom: map[string]string{"invoice_number": "F-1"},
	}
	enh := domain.Enhancement{
		Type:       domain.TypeReceipt,
		Confidence: 0.9,
		Fields: domain.ExtractedFields{
			Custom: map[string]string{"invoice_number": "F-9", "payment_method": "card"},
		},
	}
	var asked []domain.DocumentType
	customFor := func(dt domain.DocumentType) map[string]string {
		asked = append(asked, dt)
		return map[string]string{"ticket_number": "T-77"}
	}

	cls, got := mergeEnhancement(domain.ClassificationResult{Type: domain.TypeInvoice, Confidence: 0.3}, local, enh, customFor)

	if cls.Type != domain.TypeReceipt {
		t.Fatalf("expected receipt, got %s", cls.Type)
	}
	if !reflect.DeepEqual(asked, []domain.DocumentType{domain.TypeReceipt}) {
		t.Fatalf("expected re-extraction for receipt, got %v", asked)
	}
	want := map[string]string{"ticket_number": "T-77", "invoice_number": "F-9", "payment_method": "card"}
	if !reflect.DeepEqual(got.Custom, want) {
		t.Fatalf("custom = %v, want %v", got.Custom, want)
	}
	if !reflect.DeepEqual(got.Emails, []string{"shop@acme.test"}) {
		t.Fatalf("generic fields must be kept, got %v", got.Emails)
	}

	asked = nil
	same := domain.Enhancement{Type: domain.TypeInvoice, Confidence: 0.9}
	_, got = mergeEnhancement(domain.ClassificationResult{Type: domain.TypeInvoice, Confidence: 0.3}, local, same, customFor)
	if len(asked) != 0 || got.Custom["invoice_number"] != "F-1" {
		t.Fatalf("same type must keep local custom fields, asked=%v custom=%v", asked, got.Custom)
	}
}
