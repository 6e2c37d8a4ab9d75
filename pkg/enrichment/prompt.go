package enrichment

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/illmade-knight/go-tender-ingest/pkg/types"
)

// promptProjection is the compact view of a notice sent to the model. Only
// non-empty fields are included to bound request size; document references are
// reduced to their names.
type promptProjection struct {
	Source      string   `json:"source"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	TenderID    string   `json:"tenderId,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Documents   []string `json:"documents,omitempty"`
}

// BuildPrompt renders the model request: the instruction prefix followed by a
// compact JSON projection of the notice.
func BuildPrompt(instruction string, n types.Notice) (string, error) {
	c := n.Common()
	projection := promptProjection{
		Source:      string(n.Source()),
		Title:       c.Title,
		Description: c.Description,
		TenderID:    c.TenderID.String(),
		Tags:        c.Tags,
	}
	for _, doc := range c.Documents {
		if doc.Name != "" {
			projection.Documents = append(projection.Documents, doc.Name)
		}
	}

	payload, err := json.Marshal(projection)
	if err != nil {
		return "", fmt.Errorf("failed to project notice for prompt: %w", err)
	}
	return instruction + "\n\n" + string(payload), nil
}

// FallbackSummary builds the deterministic degraded summary used when the
// model is unreachable. It is assembled only from fields already present on
// the notice and is never empty.
func FallbackSummary(n types.Notice) string {
	c := n.Common()
	var b strings.Builder
	b.WriteString("Summary unavailable.")
	if c.Title != "" {
		b.WriteString(" Title: ")
		b.WriteString(c.Title)
		b.WriteString(".")
	}
	if c.TenderID != "" {
		b.WriteString(" Tender: ")
		b.WriteString(c.TenderID.String())
		b.WriteString(".")
	}
	if len(c.Tags) > 0 {
		b.WriteString(" Tags: ")
		b.WriteString(strings.Join(c.Tags, ", "))
		b.WriteString(".")
	}
	return b.String()
}
