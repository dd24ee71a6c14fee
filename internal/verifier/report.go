package verifier

// Check statuses, ordered by severity: fail dominates warning dominates pass.
const (
	StatusPass    = "pass"
	StatusWarning = "warning"
	StatusFail    = "fail"
)

// Check is a single verification finding.
type Check struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Status  string `json:"status"`
	Details string `json:"details"`
}

// Summary aggregates the checks. OverallStatus is fail when any check
// failed, warning when any check warned, pass otherwise.
type Summary struct {
	TotalChecks   int    `json:"total_checks"`
	PassCount     int    `json:"pass_count"`
	WarningCount  int    `json:"warning_count"`
	FailCount     int    `json:"fail_count"`
	OverallStatus string `json:"overall_status"`
}

// Report is the structured verification result recovered from the model
// completion. Summary is nil while unparsed; post-processing always fills
// it before the report leaves this package.
type Report struct {
	ReportMarkdown string   `json:"report_markdown"`
	Checks         []Check  `json:"checks"`
	Summary        *Summary `json:"summary,omitempty"`
}

// DeriveSummary computes a summary consistent with the given checks.
func DeriveSummary(checks []Check) Summary {
	s := Summary{TotalChecks: len(checks), OverallStatus: StatusPass}
	for _, c := range checks {
		switch c.Status {
		case StatusFail:
			s.FailCount++
		case StatusWarning:
			s.WarningCount++
		case StatusPass:
			s.PassCount++
		}
	}
	if s.FailCount > 0 {
		s.OverallStatus = StatusFail
	} else if s.WarningCount > 0 {
		s.OverallStatus = StatusWarning
	}
	return s
}
