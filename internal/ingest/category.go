package ingest

import "regexp"

// DefaultCategory is assigned when no rule matches a filename.
const DefaultCategory = "General BIM"

type categoryRule struct {
	pattern  *regexp.Regexp
	category string
}

// categoryRules classify corpus files by filename. Order matters: the
// first match wins, so the standards rules sit above the looser
// project-document rules.
var categoryRules = []categoryRule{
	{regexp.MustCompile(`(?i)19650`), "ISO 19650"},
	{regexp.MustCompile(`(?i)RTC.?8\b`), "RTC8"},
	{regexp.MustCompile(`(?i)RTC.?9\b`), "RTC9"},
	{regexp.MustCompile(`(?i)UK.BIM|PAS.1192`), "UK BIM Framework"},
	{regexp.MustCompile(`(?i)curs.bim|manager`), "Curs BIM Manager"},
	{regexp.MustCompile(`(?i)COBie`), "COBie"},
	{regexp.MustCompile(`(?i)\bIFC\b`), "IFC"},
	{regexp.MustCompile(`(?i)INOVECO|SEAU|studiu.de.caz|case.study`), "Studii de caz"},
	{regexp.MustCompile(`(?i)academic|universit|cercet`), "Resurse Academice"},
	{regexp.MustCompile(`(?i)contract|acord.cadru|act.aditional`), "Contract"},
	{regexp.MustCompile(`(?i)caiet.sarcini|specificat`), "Specificatii Tehnice"},
	{regexp.MustCompile(`(?i)BEP|executie.plan|execution.plan`), "BEP"},
	{regexp.MustCompile(`(?i)EIR|cerint.*informatii|information.req`), "EIR"},
	{regexp.MustCompile(`(?i)proces.verbal|PV\b|minuta|sedinta`), "PV Sedinta"},
	{regexp.MustCompile(`(?i)raport.progres|raport.lunar|situatie`), "Raport Progres"},
}

// DetectCategory maps a corpus filename to its document category.
func DetectCategory(filename string) string {
	for _, rule := range categoryRules {
		if rule.pattern.MatchString(filename) {
			return rule.category
		}
	}
	return DefaultCategory
}
