package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectCategory(t *testing.T) {
	cases := []struct {
		filename string
		want     string
	}{
		{"SR EN ISO 19650-1.pdf", "ISO 19650"},
		{"RTC 8 - ghid.pdf", "RTC8"},
		{"RTC-9 anexa.pdf", "RTC9"},
		{"PAS 1192-2.pdf", "UK BIM Framework"},
		{"Curs BIM Manager modul 2.pdf", "Curs BIM Manager"},
		{"COBie-UK-2012.pdf", "COBie"},
		{"Export IFC schema.pdf", "IFC"},
		{"INOVECO studiu.pdf", "Studii de caz"},
		{"cercetare universitara.pdf", "Resurse Academice"},
		{"Contract lucrari faza 2.pdf", "Contract"},
		{"Caiet_sarcini instalatii.pdf", "Specificatii Tehnice"},
		{"Specificatii tehnice arhitectura.pdf", "Specificatii Tehnice"},
		{"BIM Execution Plan v3.docx", "BEP"},
		{"EIR cladire birouri.docx", "EIR"},
		{"Proces verbal sedinta 14.pdf", "PV Sedinta"},
		{"Raport progres august.pdf", "Raport Progres"},
		{"notite diverse.pdf", DefaultCategory},
	}

	for _, tc := range cases {
		t.Run(tc.filename, func(t *testing.T) {
			assert.Equal(t, tc.want, DetectCategory(tc.filename))
		})
	}
}

func TestDetectCategoryFirstMatchWins(t *testing.T) {
	// 19650 outranks BEP even when both patterns match.
	assert.Equal(t, "ISO 19650", DetectCategory("BEP conform ISO 19650.pdf"))
}
