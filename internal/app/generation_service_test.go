package app

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bimagent/internal/verifier"
)

func TestDocTypes(t *testing.T) {
	types := DocTypes()

	for _, id := range []string{"bep", "lod", "eir", "requirements", "checklist", "minutes", "iso"} {
		assert.Contains(t, types, id)
	}
	assert.Len(t, types, 7)
	assert.Equal(t, "BIM Execution Plan (BEP)", types["bep"])
}

func TestDocTemplatesWellFormed(t *testing.T) {
	for id, tpl := range docTemplates {
		t.Run(id, func(t *testing.T) {
			require.NotEmpty(t, tpl.Label)
			if tpl.Static != nil {
				assert.Empty(t, tpl.Queries, "static templates never retrieve")
				return
			}
			assert.NotEmpty(t, tpl.Queries)
			// Prompt skeletons take the project name and the context.
			assert.Equal(t, 2, strings.Count(tpl.Prompt, "%s"))
		})
	}
}

func TestMinutesTemplate(t *testing.T) {
	out := minutesTemplate("Centrul Civic")

	assert.Contains(t, out, "Centrul Civic")
	assert.Contains(t, out, "## Participants")
	assert.Contains(t, out, "## Action plan")
	assert.Contains(t, out, "BIM Manager")
}

func TestStopReasonFromFinish(t *testing.T) {
	cases := map[string]verifier.StopReason{
		"stop":           verifier.StopComplete,
		"STOP":           verifier.StopComplete,
		"end_turn":       verifier.StopComplete,
		"":               verifier.StopComplete,
		"length":         verifier.StopLengthLimited,
		"max_tokens":     verifier.StopLengthLimited,
		"content_filter": verifier.StopOther,
		"tool_calls":     verifier.StopOther,
	}
	for finish, want := range cases {
		assert.Equal(t, want, stopReasonFromFinish(finish), "finish_reason %q", finish)
	}
}
