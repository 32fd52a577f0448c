package classifier

import (
	"strings"
	"testing"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
)

func mustDefault(t *testing.T) *Classifier {
	t.Helper()
	c, err := NewDefault()
	if err != nil {
		t.Fatalf("NewDefault() error = %v", err)
	}
	return c
}

func mustParse(t *testing.T, raw string) *Classifier {
	t.Helper()
	table, err := ParseTable(strings.NewReader(raw))
	if err != nil {
		t.Fatalf("ParseTable() error = %v", err)
	}
	c, err := New(table)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

const invoiceText = `INVOICE
Invoice number: INV-2024-001
Bill to: ACME Corp
Subtotal: 100.00 EUR
VAT 21%: 21.00
Total due: 121.00 EUR
Due date: 2024-03-01`

func TestClassifyInvoice(t *testing.T) {
	c := mustDefault(t)
	got := c.Classify(invoiceText)
	if got.Type != domain.TypeInvoice {
		t.Fatalf("expected invoice, got %s (%v)", got.Type, got.MatchedRules)
	}
	if got.Confidence < 0.4 {
		t.Fatalf("confidence %v below invoice threshold", got.Confidence)
	}
	if got.Language != domain.LanguageEnglish {
		t.Fatalf("expected english, got %s", got.Language)
	}
}

func TestClassifySpanishInvoice(t *testing.T) {
	c := mustDefault(t)
	text := "FACTURA SIMPLIFICADA\nNº factura: A-123\nDatos del cliente: Juan\nBase imponible 50,00\nIVA 21% 10,50\nTotal a pagar 60,50 €"
	got := c.Classify(text)
	if got.Type != domain.TypeInvoice || got.Language != domain.LanguageSpanish {
		t.Fatalf("expected spanish invoice, got %s/%s", got.Type, got.Language)
	}
	found := false
	for _, id := range got.MatchedRules {
		if id == "invoice_simplified_es" {
			found = true
		}
	}
	if !found {
		t.Fatalf("spanish-only rule should count for spanish text: %v", got.MatchedRules)
	}
}

func TestClassifyMatchesAccentedWordEndings(t *testing.T) {
	c := mustDefault(t)
	cases := []struct {
		text     string
		wantType domain.DocumentType
		wantRule string
	}{
		{
			text:     "Carte d'identité\nNationalité française\nDate de naissance 01.02.1990",
			wantType: domain.TypeIdentityDocument,
			wantRule: "id_nationality",
		},
		{
			text:     "Police d'assurance habitation\nAssuré: Jean Dupont\nCotisation annuelle 300,00 €",
			wantType: domain.TypeInsurancePolicy,
			wantRule: "policy_insured",
		},
		{
			text:     "POLICE D'ASSURANCE\nNom de l'assuré\nCotisation",
			wantType: domain.TypeInsurancePolicy,
			wantRule: "policy_insured",
		},
	}
	for _, tc := range cases {
		got := c.Classify(tc.text)
		if got.Type != tc.wantType {
			t.Fatalf("expected %s, got %s (%v)", tc.wantType, got.Type, got.MatchedRules)
		}
		if !containsRule(got.MatchedRules, tc.wantRule) {
			t.Fatalf("expected %s to match %q, got %v", tc.wantRule, tc.text, got.MatchedRules)
		}
	}

	if got := c.Classify("Assurément pas une police"); containsRule(got.MatchedRules, "policy_insured") {
		t.Fatalf("policy_insured must not match inside a longer word: %v", got.MatchedRules)
	}
}

func containsRule(rules []string, id string) bool {
	for _, r := range rules {
		if r == id {
			return true
		}
	}
	return false
}

func TestClassifyNeverReturnsBelowRequiredMatches(t *testing.T) {
	c := mustDefault(t)
	required := make(map[domain.DocumentType]int)
	for _, p := range c.patterns {
		required[p.docType] = p.required
	}

	texts := []string{
		"",
		"hello world",
		"invoice",
		"invoice total",
		"receipt total cash",
		invoiceText,
		"Insurance policy Policy number 998 Insured: Ana Premium 300",
		"Escritura de compraventa ante notario. Referencia catastral 9872023VH5797S0001WX",
		"Patient: John. Diagnosis: flu. Treatment: rest",
		"Bank statement IBAN ES91 2100 0418 4502 0005 1332 balance 1000",
	}
	for _, text := range texts {
		got := c.Classify(text)
		if got.Confidence < 0 || got.Confidence > 1 {
			t.Fatalf("confidence out of range for %q: %v", text, got.Confidence)
		}
		if got.Type == domain.TypeUnknown {
			if got.Confidence != 0 {
				t.Fatalf("unknown must carry zero confidence, got %v", got.Confidence)
			}
			continue
		}
		if len(got.MatchedRules) < required[got.Type] {
			t.Fatalf("%s returned with %d matches, requires %d", got.Type, len(got.MatchedRules), required[got.Type])
		}
	}
}

func TestClassifyUnknownWhenNothingQualifies(t *testing.T) {
	c := mustDefault(t)
	got := c.Classify("lorem ipsum dolor sit amet")
	if got.Type != domain.TypeUnknown || got.Confidence != 0 {
		t.Fatalf("expected unknown/0, got %s/%v", got.Type, got.Confidence)
	}
}

func TestClassifyTieKeepsDeclarationOrder(t *testing.T) {
	c := mustParse(t, `
types:
  - type: first
    required_matches: 1
    threshold: 0.1
    rules:
      - {id: a, weight: 1, pattern: 'alpha'}
  - type: second
    required_matches: 1
    threshold: 0.1
    rules:
      - {id: b, weight: 1, pattern: 'alpha'}
`)
	if got := c.Classify("alpha"); got.Type != "first" {
		t.Fatalf("expected first on tie, got %s", got.Type)
	}
}

func TestClassifyThresholdGate(t *testing.T) {
	c := mustParse(t, `
types:
  - type: strict
    required_matches: 1
    threshold: 0.9
    rules:
      - {id: weak, weight: 1, pattern: 'weak'}
      - {id: strong, weight: 9, pattern: 'strong'}
`)
	if got := c.Classify("weak"); got.Type != domain.TypeUnknown {
		t.Fatalf("expected unknown below threshold, got %s (%v)", got.Type, got.Confidence)
	}
	got := c.Classify("weak strong")
	if got.Type != "strict" || got.Confidence != 1 {
		t.Fatalf("expected strict/1, got %s/%v", got.Type, got.Confidence)
	}
}

func TestDetectLanguage(t *testing.T) {
	c := mustDefault(t)
	cases := map[string]domain.Language{
		"La factura del cliente con fecha de hoy": domain.LanguageSpanish,
		"The invoice for the customer":            domain.LanguageEnglish,
		"Die Rechnung und der Betrag":             domain.LanguageGerman,
		"12345 67890":                             domain.LanguageOther,
		"":                                        domain.LanguageOther,
	}
	for text, want := range cases {
		if got := c.DetectLanguage(text); got != want {
			t.Fatalf("DetectLanguage(%q) = %s, want %s", text, got, want)
		}
	}
}

func TestParseTableRejectsBrokenRules(t *testing.T) {
	table, err := ParseTable(strings.NewReader(`
types:
  - type: broken
    required_matches: 1
    threshold: 0.5
    rules:
      - {id: bad, weight: 1, pattern: '(unclosed'}
`))
	if err != nil {
		t.Fatalf("ParseTable() error = %v", err)
	}
	if _, err := New(table); err == nil {
		t.Fatalf("expected compile error for invalid regexp")
	}

	if _, err := ParseTable(strings.NewReader("types: []\nunknown_key: 1\n")); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}
