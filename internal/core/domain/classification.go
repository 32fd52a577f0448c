package domain

type DocumentType string

const (
	TypeUnknown          DocumentType = "unknown"
	TypeInvoice          DocumentType = "invoice"
	TypeReceipt          DocumentType = "receipt"
	TypeInsurancePolicy  DocumentType = "insurance_policy"
	TypeBankStatement    DocumentType = "bank_statement"
	TypePropertyDeed     DocumentType = "property_deed"
	TypeIdentityDocument DocumentType = "identity_document"
	TypePayslip          DocumentType = "payslip"
	TypeUtilityBill      DocumentType = "utility_bill"
	TypeTaxForm          DocumentType = "tax_form"
	TypeContract         DocumentType = "contract"
	TypeMedicalReport    DocumentType = "medical_report"
)

// ClassificationResult holds the winning type. Confidence is in [0,1].
type ClassificationResult struct {
	Type         DocumentType `json:"type"`
	Confidence   float64      `json:"confidence"`
	MatchedRules []string     `json:"matched_rules,omitempty"`
	Language     Language     `json:"language"`
}

func UnknownClassification(lang Language) ClassificationResult {
	return ClassificationResult{Type: TypeUnknown, Confidence: 0, Language: lang}
}
