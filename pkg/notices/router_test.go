package notices

import (
	"testing"

	"github.com/illmade-knight/go-tender-ingest/pkg/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveSource(t *testing.T) {
	testCases := []struct {
		name       string
		key        string
		expected   types.Source
		expectFail bool
	}{
		{name: "exact alias", key: "opentender", expected: types.SourceOpenTender},
		{name: "mixed case alias", key: "OpenTender", expected: types.SourceOpenTender},
		{name: "hyphenated alias", key: "open-tender", expected: types.SourceOpenTender},
		{name: "award alias", key: "ContractAward", expected: types.SourceAward},
		{name: "corrigendum maps to amendment", key: "CORRIGENDUM", expected: types.SourceAmendment},
		{name: "surrounding whitespace tolerated", key: "  award  ", expected: types.SourceAward},
		{name: "unknown key rejected", key: "pressrelease", expectFail: true},
		{name: "empty key rejected", key: "", expectFail: true},
		{name: "unresolved sentinel rejected", key: "Unknown", expectFail: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			source, err := ResolveSource(tc.key)
			if tc.expectFail {
				require.Error(t, err)
				assert.True(t, IsClassificationError(err), "expected a ClassificationError")
				assert.Equal(t, types.SourceUnknown, source)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, source)
		})
	}
}

func TestRouter_Classify_OpenTender(t *testing.T) {
	router := NewRouter(zerolog.Nop())

	body := []byte(`{
		"title": "Road resurfacing framework",
		"description": "Framework agreement for road resurfacing works.",
		"tenderId": "TED-2026-001",
		"tags": ["construction"],
		"documents": [{"name": "spec.pdf", "url": "https://example.org/spec.pdf"}],
		"buyer": "Midlands Highways Authority",
		"submissionDeadline": "2026-09-30"
	}`)

	notice, err := router.Classify(body, "OpenTender")
	require.NoError(t, err)

	openTender, ok := notice.(*types.OpenTenderNotice)
	require.True(t, ok, "expected an OpenTenderNotice")
	assert.Equal(t, types.SourceOpenTender, notice.Source())
	assert.Equal(t, "TED-2026-001", openTender.TenderID.String())
	assert.Equal(t, "Midlands Highways Authority", openTender.Buyer)
	assert.True(t, notice.NeedsEnrichment())
}

func TestRouter_Classify_NumericTenderID(t *testing.T) {
	router := NewRouter(zerolog.Nop())

	// Some feeds emit the tender identifier as a JSON number.
	body := []byte(`{"title": "Award of cleaning contract", "tenderId": 4471002, "supplier": "CleanCo Ltd"}`)

	notice, err := router.Classify(body, "award")
	require.NoError(t, err)
	assert.Equal(t, "4471002", notice.Common().TenderID.String())
}

func TestRouter_Classify_CaseInsensitiveFields(t *testing.T) {
	router := NewRouter(zerolog.Nop())

	// Field casing follows the feed, not our convention.
	body := []byte(`{"Title": "Corrigendum 2", "TENDERID": "X-99", "changeNote": "Deadline extended"}`)

	notice, err := router.Classify(body, "corrigendum")
	require.NoError(t, err)
	assert.Equal(t, "Corrigendum 2", notice.Common().Title)
	assert.Equal(t, "X-99", notice.Common().TenderID.String())
	assert.False(t, notice.NeedsEnrichment(), "amendments are not enriched")
}

func TestRouter_Classify_Errors(t *testing.T) {
	router := NewRouter(zerolog.Nop())

	t.Run("unknown key", func(t *testing.T) {
		_, err := router.Classify([]byte(`{"tenderId": "T-1"}`), "newsletter")
		require.Error(t, err)
		assert.True(t, IsClassificationError(err))
	})

	t.Run("malformed body", func(t *testing.T) {
		_, err := router.Classify([]byte(`{not json`), "award")
		require.Error(t, err)
		assert.True(t, IsClassificationError(err))
	})

	t.Run("structural mismatch", func(t *testing.T) {
		_, err := router.Classify([]byte(`{"tenderId": {"nested": true}}`), "award")
		require.Error(t, err)
		assert.True(t, IsClassificationError(err))
	})

	t.Run("missing tender identifier", func(t *testing.T) {
		_, err := router.Classify([]byte(`{"title": "No id"}`), "opentender")
		require.Error(t, err)
		assert.True(t, IsClassificationError(err))
	})
}
