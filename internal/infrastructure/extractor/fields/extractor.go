package fields

import (
	"regexp"
	"strings"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
)

type fieldRule struct {
	name string
	re   *regexp.Regexp
}

// typeFields adds the targeted fields for each document type. Each rule takes
// the first capture group of its first match.
var typeFields = map[domain.DocumentType][]fieldRule{
	domain.TypeInvoice: {
		{"invoice_number", regexp.MustCompile(`(?i)(?:invoice\s*(?:no\.?|number|#)|n[º°o]\.?\s*(?:de\s+)?factura|factura\s*(?:n[º°o]\.?|#)|num[ée]ro\s+de\s+facture|rechnungs-?(?:nr\.?|nummer))\s*[:.]?\s*([A-Z0-9][A-Z0-9\-/]{2,})`)},
		{"tax_id", regexp.MustCompile(`(?i)(?:nif|cif|vat\s*(?:no\.?|number|id)?|tax\s+id)\s*[:.]?\s*([A-Z]{0,2}[A-Z0-9]\d{7}[A-Z0-9])\b`)},
	},
	domain.TypeReceipt: {
		{"payment_method", regexp.MustCompile(`(?i)\b(cash|card|visa|mastercard|efectivo|tarjeta)\b`)},
	},
	domain.TypeInsurancePolicy: {
		{"policy_number", regexp.MustCompile(`(?i)(?:policy\s*(?:no\.?|number|#)|n[º°o]\.?\s*(?:de\s+)?p[óo]liza|p[óo]liza\s*(?:n[º°o]\.?|#)|num[ée]ro\s+de\s+police)\s*[:.]?\s*([A-Z0-9][A-Z0-9\-/]{3,})`)},
		{"insurer", regexp.MustCompile(`(?i)(?:insurer|aseguradora|compa[ñn][íi]a)\s*[:]\s*([^\n]{2,60})`)},
	},
	domain.TypeBankStatement: {
		{"account_number", regexp.MustCompile(`\b([A-Z]{2}\d{2}(?: ?[A-Z0-9]{4}){3,7})\b`)},
		{"period", regexp.MustCompile(`(?i)(?:period|periodo|p[ée]riode)\s*[:]?\s*([^\n]{4,40})`)},
	},
	domain.TypePropertyDeed: {
		{"cadastral_reference", regexp.MustCompile(`\b(\d{7}[A-Z]{2}\d{4}[A-Z]\d{4}[A-Z]{2})\b`)},
		{"notary", regexp.MustCompile(`(?i)(?:notary|notario|notaire)\s*[:]?\s*(?:d\.|don|do[ñn]a|mr\.?|ms\.?)?\s*([A-ZÁÉÍÓÚÑ][^\n,]{2,50})`)},
	},
	domain.TypeIdentityDocument: {
		{"document_number", regexp.MustCompile(`\b(\d{8}[A-Z]|[XYZ]\d{7}[A-Z]|[A-Z]{3}\d{6})\b`)},
		{"nationality", regexp.MustCompile(`(?i)(?:nationality|nacionalidad|nationalit[ée])\s*[:/]?\s*([A-Z]{3}|[A-Za-zÁÉÍÓÚáéíóúñ]{4,20})`)},
	},
	domain.TypePayslip: {
		{"employee_id", regexp.MustCompile(`(?i)(?:employee\s*(?:no\.?|id|number)|n[º°o]\.?\s*(?:de\s+)?afiliaci[óo]n)\s*[:.]?\s*([A-Z0-9/\-]{4,})`)},
		{"pay_period", regexp.MustCompile(`(?i)(?:pay\s+period|periodo\s+de\s+liquidaci[óo]n)\s*[:]?\s*([^\n]{4,40})`)},
	},
	domain.TypeUtilityBill: {
		{"supply_point", regexp.MustCompile(`\b(ES\d{16}[A-Z]{2}(?:\d[A-Z])?)\b`)},
		{"contract_number", regexp.MustCompile(`(?i)(?:contract\s*(?:no\.?|number)|n[º°o]\.?\s*(?:de\s+)?contrato)\s*[:.]?\s*([A-Z0-9\-]{4,})`)},
	},
	domain.TypeTaxForm: {
		{"form", regexp.MustCompile(`(?i)modelo\s+(\d{3})`)},
		{"tax_year", regexp.MustCompile(`(?i)(?:ejercicio|tax\s+year|fiscal\s+year|ann[ée]e)\s*[:.]?\s*(\d{4})`)},
	},
	domain.TypeContract: {
		{"contract_number", regexp.MustCompile(`(?i)(?:contract\s*(?:no\.?|number)|n[º°o]\.?\s*(?:de\s+)?contrato)\s*[:.]?\s*([A-Z0-9\-]{4,})`)},
	},
	domain.TypeMedicalReport: {
		{"patient", regexp.MustCompile(`(?i)(?:patient|paciente)\s*[:]\s*([^\n]{2,60})`)},
		{"diagnosis", regexp.MustCompile(`(?i)(?:diagnosis|diagn[óo]stico)\s*[:]\s*([^\n]{2,80})`)},
	},
}

// Extractor is stateless and safe for concurrent use.
type Extractor struct{}

func NewExtractor() *Extractor { return &Extractor{} }

// Extract runs the generic extractors and then the rules for docType.
// Fields that do not match are left absent.
func (e *Extractor) Extract(text string, docType domain.DocumentType) domain.ExtractedFields {
	var out domain.ExtractedFields
	if strings.TrimSpace(text) == "" {
		return out
	}

	dates := extractDates(text)
	if len(dates) > 0 {
		out.IssueDate = &dates[0]
	}
	if len(dates) > 1 {
		out.ExpiryDate = &dates[1]
	}
	out.Amounts = extractAmounts(text)
	out.Identifiers = extractIdentifiers(text)
	out.Emails = extractEmails(text)
	out.Phones = extractPhones(text)

	for _, r := range typeFields[docType] {
		m := r.re.FindStringSubmatch(text)
		if len(m) < 2 {
			continue
		}
		out.SetCustom(r.name, strings.TrimSpace(m[1]))
	}
	return out
}
