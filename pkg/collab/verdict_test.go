package collab

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseVerdictValid(t *testing.T) {
	content := `{"best_draft_index":1,"reasoning":"draft 1 is grounded","must_keep":["the table"],"must_fix":["tone"],"speculative":["the Q3 claim"]}`
	v, err := parseVerdict(content, 3)
	require.NoError(t, err)
	require.Equal(t, 1, v.BestDraftIndex)
	require.Equal(t, "draft 1 is grounded", v.Reasoning)
	require.Equal(t, []string{"the table"}, v.MustKeep)
	require.Equal(t, []string{"tone"}, v.MustFix)
	require.Equal(t, []string{"the Q3 claim"}, v.Speculative)
}

func TestParseVerdictStripsFences(t *testing.T) {
	content := "```json\n{\"best_draft_index\":0,\"reasoning\":\"ok\"}\n```"
	v, err := parseVerdict(content, 1)
	require.NoError(t, err)
	require.Equal(t, 0, v.BestDraftIndex)
}

func TestParseVerdictRejectsMalformed(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"prose instead of JSON", "The best draft is the second one."},
		{"unknown field", `{"best_draft_index":0,"reasoning":"ok","confidence":0.9}`},
		{"missing index", `{"reasoning":"ok"}`},
		{"missing reasoning", `{"best_draft_index":0}`},
		{"empty reasoning", `{"best_draft_index":0,"reasoning":""}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseVerdict(tc.content, 2)
			require.Error(t, err)

			var verdictErr *VerdictError
			require.ErrorAs(t, err, &verdictErr)
		})
	}
}

func TestParseVerdictOutOfRangeIndexIsFatal(t *testing.T) {
	// An out-of-range index is rejected, never coerced to a valid one.
	for _, idx := range []string{"-1", "2", "99"} {
		content := `{"best_draft_index":` + idx + `,"reasoning":"ok"}`
		_, err := parseVerdict(content, 2)
		require.Error(t, err, "index %s with 2 drafts", idx)

		var verdictErr *VerdictError
		require.ErrorAs(t, err, &verdictErr)
		require.Contains(t, verdictErr.Reason, "out of range")
	}
}

func TestStageOrderIsFixed(t *testing.T) {
	require.Equal(t, []StageRole{
		StageAnalyst, StageResearcher, StageCreator,
		StageCritic, StageCouncil, StageSynthesizer,
	}, StageOrder())
}
