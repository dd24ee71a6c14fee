package verifier

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractReportCleanCompletion(t *testing.T) {
	raw := `{
		"report_markdown": "# Report\nAll good.",
		"checks": [
			{"id": "cde", "label": "CDE configured", "status": "pass", "details": "ok"},
			{"id": "lod", "label": "LOD matches BEP", "status": "warning", "details": "LOD 300 vs 350"}
		],
		"summary": {"total_checks": 2, "pass_count": 1, "warning_count": 1, "fail_count": 0, "overall_status": "warning"}
	}`

	report, err := ExtractReport(raw, StopComplete)
	require.NoError(t, err)
	assert.Equal(t, "# Report\nAll good.", report.ReportMarkdown)
	require.Len(t, report.Checks, 2)
	assert.Equal(t, "warning", report.Summary.OverallStatus)
	assert.Equal(t, 2, report.Summary.TotalChecks)
}

func TestExtractReportProseBeforeJSON(t *testing.T) {
	raw := `Here is the verification result you asked for:
{"report_markdown": "ok", "checks": [], "summary": {"total_checks": 0, "pass_count": 0, "warning_count": 0, "fail_count": 0, "overall_status": "pass"}}`

	report, err := ExtractReport(raw, StopComplete)
	require.NoError(t, err)
	assert.Equal(t, "ok", report.ReportMarkdown)
	assert.Empty(t, report.Checks)
}

func TestExtractReportFencedCompletion(t *testing.T) {
	raw := "Sure, here it is:\n```json\n" +
		`{"report_markdown": "fenced", "checks": [{"id": "a", "label": "A", "status": "pass", "details": ""}]}` +
		"\n```\nLet me know if you need anything else."

	report, err := ExtractReport(raw, StopComplete)
	require.NoError(t, err)
	assert.Equal(t, "fenced", report.ReportMarkdown)
	require.Len(t, report.Checks, 1)
	// Missing summary is derived from the checks.
	require.NotNil(t, report.Summary)
	assert.Equal(t, 1, report.Summary.PassCount)
	assert.Equal(t, "pass", report.Summary.OverallStatus)
}

func TestExtractReportTruncatedMidCheck(t *testing.T) {
	// Cut off inside the second check object, no summary generated.
	raw := `{"report_markdown": "Summary text", "checks": [` +
		`{"id": "c1", "label": "First", "status": "pass", "details": "fine"},` +
		`{"id": "c2", "label": "Sec`

	report, err := ExtractReport(raw, StopLengthLimited)
	require.NoError(t, err)

	require.Len(t, report.Checks, 1)
	assert.Equal(t, "c1", report.Checks[0].ID)
	assert.Equal(t, "Summary text", report.ReportMarkdown)

	require.NotNil(t, report.Summary)
	assert.Equal(t, 1, report.Summary.TotalChecks)
	assert.Equal(t, 1, report.Summary.PassCount)
	assert.Equal(t, 0, report.Summary.WarningCount)
	assert.Equal(t, 0, report.Summary.FailCount)
	assert.Equal(t, "pass", report.Summary.OverallStatus)
}

func TestExtractReportTruncationDetectedWithoutStopSignal(t *testing.T) {
	// The provider reported a normal stop but the text is clearly cut off;
	// the repair path must still run.
	raw := `{"report_markdown": "partial", "checks": [{"id": "x", "label": "X", "status": "fail", "details": "gap"},`

	report, err := ExtractReport(raw, StopComplete)
	require.NoError(t, err)
	require.Len(t, report.Checks, 1)
	assert.Equal(t, "fail", report.Summary.OverallStatus)
}

func TestExtractReportUnclosedFence(t *testing.T) {
	raw := "```json\n" + `{"checks": [{"id": "q", "label": "Q", "status": "pass"`

	report, err := ExtractReport(raw, StopLengthLimited)
	require.NoError(t, err)
	// No complete element survived, but the marker was found: the checks
	// degrade to an empty list instead of failing the recovery.
	assert.Empty(t, report.Checks)
	require.NotNil(t, report.Summary)
	assert.Equal(t, 0, report.Summary.TotalChecks)
	assert.Equal(t, "pass", report.Summary.OverallStatus)
}

func TestExtractReportTruncatedMarkdownWithEscapes(t *testing.T) {
	raw := `{"report_markdown": "Line one\nHe said \"ok\" and then`

	report, err := ExtractReport(raw, StopLengthLimited)
	require.NoError(t, err)
	assert.Equal(t, "Line one\nHe said \"ok\" and then", report.ReportMarkdown)
}

func TestExtractReportCompleteSummaryInTruncatedTail(t *testing.T) {
	// Summary finished generating before the cut hit the markdown.
	raw := `{"summary": {"total_checks": 3, "pass_count": 1, "warning_count": 1, "fail_count": 1, "overall_status": "fail"}, "checks": [], "report_markdown": "never clo`

	report, err := ExtractReport(raw, StopLengthLimited)
	require.NoError(t, err)
	require.NotNil(t, report.Summary)
	assert.Equal(t, "fail", report.Summary.OverallStatus)
	assert.Equal(t, 3, report.Summary.TotalChecks)
	assert.Equal(t, "never clo", report.ReportMarkdown)
}

func TestExtractReportPartialSummaryDiscarded(t *testing.T) {
	raw := `{"checks": [{"id": "a", "label": "A", "status": "warning", "details": ""}], "summary": {"total_checks": 5, "pass_co`

	report, err := ExtractReport(raw, StopLengthLimited)
	require.NoError(t, err)
	require.Len(t, report.Checks, 1)
	// The cut-off summary is replaced by one derived from the checks.
	require.NotNil(t, report.Summary)
	assert.Equal(t, 1, report.Summary.TotalChecks)
	assert.Equal(t, "warning", report.Summary.OverallStatus)
}

func TestExtractReportTrailingGarbage(t *testing.T) {
	raw := `{"report_markdown": "done", "checks": []} I hope this helps!`

	report, err := ExtractReport(raw, StopComplete)
	require.NoError(t, err)
	assert.Equal(t, "done", report.ReportMarkdown)
}

func TestExtractReportNoJSONStructure(t *testing.T) {
	_, err := ExtractReport("I cannot produce a verification report for this project.", StopComplete)
	require.ErrorIs(t, err, ErrNoJSONStructure)
	// The diagnostic carries a prefix of the offending completion.
	assert.Contains(t, err.Error(), "I cannot produce")
}

func TestExtractReportNothingRecoverable(t *testing.T) {
	_, err := ExtractReport(`{"something_else": "entire`, StopLengthLimited)
	require.ErrorIs(t, err, ErrNothingRecovered)
}

func TestExtractReportBracketsInsideStrings(t *testing.T) {
	// Braces and brackets inside string values must not confuse the
	// depth scan.
	raw := `{"checks": [` +
		`{"id": "a", "label": "Uses {curly} and [square]", "status": "pass", "details": "see }]"},` +
		`{"id": "b", "label": "trun`

	report, err := ExtractReport(raw, StopLengthLimited)
	require.NoError(t, err)
	require.Len(t, report.Checks, 1)
	assert.Equal(t, "Uses {curly} and [square]", report.Checks[0].Label)
}

func TestStripFence(t *testing.T) {
	t.Run("tagged and closed", func(t *testing.T) {
		assert.Equal(t, "{\"a\":1}\n", stripFence("```json\n{\"a\":1}\n```"))
	})
	t.Run("untagged", func(t *testing.T) {
		assert.Equal(t, "{}\n", stripFence("```\n{}\n```"))
	})
	t.Run("unclosed keeps tail", func(t *testing.T) {
		assert.Equal(t, "{\"a\":", stripFence("```json\n{\"a\":"))
	})
	t.Run("no fence is identity", func(t *testing.T) {
		assert.Equal(t, `{"a":1}`, stripFence(`{"a":1}`))
	})
}

func TestExtractReportRoundTrip(t *testing.T) {
	original := Report{
		ReportMarkdown: "## Findings\n- one\n- two",
		Checks: []Check{
			{ID: "naming", Label: "File naming", Status: StatusPass, Details: "ISO 19650-compliant"},
			{ID: "lod", Label: "LOD coverage", Status: StatusFail, Details: "structures below LOD 300"},
		},
	}
	s := DeriveSummary(original.Checks)
	original.Summary = &s

	payload, err := json.Marshal(original)
	require.NoError(t, err)

	report, err := ExtractReport(string(payload), StopComplete)
	require.NoError(t, err)
	assert.Equal(t, original.ReportMarkdown, report.ReportMarkdown)
	assert.Equal(t, original.Checks, report.Checks)
	assert.Equal(t, *original.Summary, *report.Summary)
}
