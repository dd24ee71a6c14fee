package verifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// StopReason classifies why the model stopped generating. Length-limited
// completions get the truncation-repair treatment even when the text
// superficially looks complete.
type StopReason string

const (
	StopComplete      StopReason = "complete"
	StopLengthLimited StopReason = "length_limited"
	StopOther         StopReason = "other"
)

var (
	// ErrNoJSONStructure means the completion contains no "{" at all.
	// This is the only hard failure: everything else degrades.
	ErrNoJSONStructure = errors.New("no json structure in completion")

	// ErrNothingRecovered means truncation repair found none of the
	// report fields in the damaged text.
	ErrNothingRecovered = errors.New("no recoverable report fields in completion")
)

const diagnosticPrefixLen = 200

var (
	checksMarkerRe   = regexp.MustCompile(`"checks"\s*:\s*\[`)
	markdownMarkerRe = regexp.MustCompile(`"report_markdown"\s*:\s*"`)
	summaryMarkerRe  = regexp.MustCompile(`"summary"\s*:\s*\{`)
)

// ExtractReport turns a raw model completion into a Report. The layered
// attempts degrade gracefully: fence stripping, boundary trim, strict
// parse, truncation repair, trailing-garbage trim. Malformed input never
// errors except when no JSON object boundary exists at all, or when the
// truncation path finds none of the three report fields.
func ExtractReport(raw string, stopReason StopReason) (*Report, error) {
	text := stripFence(raw)

	start := strings.Index(text, "{")
	if start < 0 {
		prefix := raw
		if len(prefix) > diagnosticPrefixLen {
			prefix = prefix[:diagnosticPrefixLen]
		}
		return nil, fmt.Errorf("%w: %q", ErrNoJSONStructure, prefix)
	}
	text = text[start:]

	var report Report
	if err := json.Unmarshal([]byte(text), &report); err == nil {
		return postProcess(&report), nil
	}

	truncated := stopReason == StopLengthLimited || !strings.HasSuffix(strings.TrimSpace(text), "}")
	if truncated {
		report, err := repairTruncated(text)
		if err != nil {
			return nil, err
		}
		return postProcess(report), nil
	}

	report2, err := trimTrailingGarbage(text)
	if err != nil {
		return nil, err
	}
	return postProcess(report2), nil
}

// postProcess fills the defaults every caller can rely on: non-nil checks,
// a summary derived from the checks when the model omitted one.
func postProcess(r *Report) *Report {
	if r.Checks == nil {
		r.Checks = []Check{}
	}
	if r.Summary == nil {
		s := DeriveSummary(r.Checks)
		r.Summary = &s
	}
	return r
}

// stripFence extracts the interior of the first triple-backtick fence,
// optionally tagged json, anywhere in the text. An unclosed fence
// (truncated completion) yields everything after the opening delimiter.
func stripFence(text string) string {
	open := strings.Index(text, "```")
	if open < 0 {
		return text
	}
	rest := text[open+3:]
	if tagged := strings.TrimPrefix(rest, "json"); tagged != rest {
		rest = tagged
	}
	rest = strings.TrimPrefix(rest, "\n")
	if close := strings.Index(rest, "```"); close >= 0 {
		return rest[:close]
	}
	return rest
}

// repairTruncated independently recovers the three report fields from a
// cut-off completion. Each recovery is best-effort; only the total
// absence of all three is an error.
func repairTruncated(text string) (*Report, error) {
	report := &Report{}
	recovered := false

	if checks, ok := recoverChecksArray(text); ok {
		report.Checks = checks
		recovered = true
	}
	if markdown, ok := recoverMarkdownString(text); ok {
		report.ReportMarkdown = markdown
		recovered = true
	}
	if summary, ok := recoverSummaryObject(text); ok {
		report.Summary = summary
		recovered = true
	}

	if !recovered {
		return nil, ErrNothingRecovered
	}
	return report, nil
}

// recoverChecksArray finds the checks array and keeps every element up to
// the last complete object, synthesizing the closing bracket when the
// array itself was cut off. A residual parse failure degrades to an empty
// list; the marker being present still counts as a recovery.
func recoverChecksArray(text string) ([]Check, bool) {
	loc := checksMarkerRe.FindStringIndex(text)
	if loc == nil {
		return nil, false
	}
	// loc[1]-1 is the opening bracket itself.
	body := text[loc[1]-1:]

	var (
		inString  bool
		escaped   bool
		arrDepth  int
		objDepth  int
		lastEnd   = -1 // index just past the last complete top-level object
		arrClosed = -1 // index just past the array's own closing bracket
	)
scan:
	for i, r := range body {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			inString = true
		case '[':
			arrDepth++
		case ']':
			arrDepth--
			if arrDepth == 0 {
				arrClosed = i + 1
				break scan
			}
		case '{':
			objDepth++
		case '}':
			objDepth--
			if objDepth == 0 && arrDepth == 1 {
				lastEnd = i + 1
			}
		}
	}

	var candidate string
	switch {
	case arrClosed >= 0:
		candidate = body[:arrClosed]
	case lastEnd >= 0:
		candidate = body[:lastEnd] + "]"
	default:
		// Marker present but not a single complete element survived.
		return []Check{}, true
	}

	var checks []Check
	if err := json.Unmarshal([]byte(candidate), &checks); err != nil {
		return []Check{}, true
	}
	return checks, true
}

// recoverMarkdownString walks the report_markdown value honoring
// backslash escapes until the closing quote or end-of-input, then decodes
// the JSON escapes.
func recoverMarkdownString(text string) (string, bool) {
	loc := markdownMarkerRe.FindStringIndex(text)
	if loc == nil {
		return "", false
	}
	body := text[loc[1]:]

	var sb strings.Builder
	escaped := false
	for _, r := range body {
		if escaped {
			sb.WriteRune('\\')
			sb.WriteRune(r)
			escaped = false
			continue
		}
		switch r {
		case '\\':
			escaped = true
		case '"':
			return decodeJSONString(sb.String()), true
		default:
			sb.WriteRune(r)
		}
	}
	// Ran off the end of a truncated completion; keep what we have.
	return decodeJSONString(sb.String()), true
}

// decodeJSONString interprets JSON escape sequences, falling back to
// literal replacement of the common ones when strict decoding fails.
func decodeJSONString(escaped string) string {
	var decoded string
	if err := json.Unmarshal([]byte(`"`+escaped+`"`), &decoded); err == nil {
		return decoded
	}
	replacer := strings.NewReplacer(`\n`, "\n", `\"`, `"`, `\\`, `\`, `\t`, "\t")
	return replacer.Replace(escaped)
}

// recoverSummaryObject extracts the summary only when its object is
// complete; a partially generated summary is discarded, not guessed at.
func recoverSummaryObject(text string) (*Summary, bool) {
	loc := summaryMarkerRe.FindStringIndex(text)
	if loc == nil {
		return nil, false
	}
	body := text[loc[1]-1:]

	var (
		inString bool
		escaped  bool
		depth    int
		end      = -1
	)
	for i, r := range body {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				end = i + 1
			}
		}
		if end >= 0 {
			break
		}
	}
	if end < 0 {
		return nil, false
	}

	var summary Summary
	if err := json.Unmarshal([]byte(body[:end]), &summary); err != nil {
		return nil, false
	}
	return &summary, true
}

// trimTrailingGarbage handles a complete object followed by model
// commentary: parse the prefix up to the last closing brace.
func trimTrailingGarbage(text string) (*Report, error) {
	end := strings.LastIndex(text, "}")
	if end < 0 {
		return nil, ErrNothingRecovered
	}
	var report Report
	if err := json.Unmarshal([]byte(text[:end+1]), &report); err != nil {
		return nil, ErrNothingRecovered
	}
	return &report, nil
}
