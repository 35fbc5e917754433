package model

import (
	"strings"
)

// DocumentType classifies a compliance document. The vocabulary is closed.
type DocumentType string

const (
	DocLicense         DocumentType = "license"
	DocMedicalLicense  DocumentType = "medical_license"
	DocCertification   DocumentType = "certification"
	DocTaxForm         DocumentType = "tax_form"
	DocContract        DocumentType = "contract"
	DocBackgroundCheck DocumentType = "background_check"
	DocInsurance       DocumentType = "insurance"
	DocTraining        DocumentType = "training"
	DocIdentification  DocumentType = "identification"
	DocOther           DocumentType = "other"
)

var documentTypeLabels = map[DocumentType]string{
	DocLicense:         "License",
	DocMedicalLicense:  "Medical License",
	DocCertification:   "Certification",
	DocTaxForm:         "Tax Form",
	DocContract:        "Contract",
	DocBackgroundCheck: "Background Check",
	DocInsurance:       "Insurance",
	DocTraining:        "Training",
	DocIdentification:  "Identification",
	DocOther:           "Other",
}

// ParseDocumentType accepts a type code ("medical_license") or its label
// ("Medical License"), case-insensitively.
func ParseDocumentType(s string) (DocumentType, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	code := DocumentType(strings.ToLower(strings.NewReplacer(" ", "_", "-", "_").Replace(s)))
	if _, ok := documentTypeLabels[code]; ok {
		return code, true
	}
	for t, label := range documentTypeLabels {
		if strings.EqualFold(label, s) {
			return t, true
		}
	}
	return "", false
}

// Valid reports whether t belongs to the vocabulary.
func (t DocumentType) Valid() bool {
	_, ok := documentTypeLabels[t]
	return ok
}

// Label returns the human-readable name of the type.
func (t DocumentType) Label() string {
	return documentTypeLabels[t]
}
