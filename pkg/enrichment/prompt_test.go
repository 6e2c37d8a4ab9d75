package enrichment

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/illmade-knight/go-tender-ingest/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPrompt_ProjectsOnlyNonEmptyFields(t *testing.T) {
	n := &types.AwardNotice{
		NoticeCommon: types.NoticeCommon{
			Title:    "Fleet maintenance award",
			TenderID: "AW-77",
			Documents: []types.DocumentRef{
				{Name: "contract.pdf", URL: "https://example.org/contract.pdf"},
				{URL: "https://example.org/unnamed"},
			},
		},
	}

	prompt, err := BuildPrompt("Summarize:", n)
	require.NoError(t, err)

	parts := strings.SplitN(prompt, "\n\n", 2)
	require.Len(t, parts, 2)
	assert.Equal(t, "Summarize:", parts[0])

	var projection map[string]any
	require.NoError(t, json.Unmarshal([]byte(parts[1]), &projection))
	assert.Equal(t, "award", projection["source"])
	assert.Equal(t, "AW-77", projection["tenderId"])
	assert.NotContains(t, projection, "description", "empty fields are dropped")
	assert.Equal(t, []any{"contract.pdf"}, projection["documents"], "document urls are not sent")
}

func TestFallbackSummary_NeverEmpty(t *testing.T) {
	t.Run("fully populated", func(t *testing.T) {
		summary := FallbackSummary(&types.OpenTenderNotice{
			NoticeCommon: types.NoticeCommon{
				Title:    "Winter gritting",
				TenderID: "WG-5",
				Tags:     []string{"roads", "winter"},
			},
		})
		assert.Contains(t, summary, "Winter gritting")
		assert.Contains(t, summary, "WG-5")
		assert.Contains(t, summary, "roads, winter")
	})

	t.Run("bare notice", func(t *testing.T) {
		summary := FallbackSummary(&types.AmendmentNotice{})
		assert.NotEmpty(t, summary)
	})
}
