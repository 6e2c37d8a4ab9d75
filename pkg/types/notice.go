package types

import (
	"encoding/json"
	"fmt"
)

// ====================================================================================
// This file defines the closed set of tender-notice domain types shared across the
// pipeline. The router is the only component allowed to construct them from raw
// queue payloads; everything downstream works against the Notice interface.
// ====================================================================================

// Source identifies the feed a notice originated from. The set is closed: the
// router rejects anything it cannot map onto one of these values.
type Source string

const (
	SourceOpenTender Source = "opentender"
	SourceAward      Source = "award"
	SourceAmendment  Source = "amendment"

	// SourceUnknown is what an unresolvable classification key normalizes to.
	// It is never a valid notice source; the router rejects it.
	SourceUnknown Source = "Unknown"
)

// Notice is the capability set every domain variant implements. GroupKey is an
// explicit capability so outbound sends never have to inspect the concrete type
// to find a routing key.
type Notice interface {
	// Source reports which feed the notice came from.
	Source() Source
	// GroupKey returns the ordering/grouping key used when the notice is
	// placed back onto a queue.
	GroupKey() string
	// NeedsEnrichment reports whether this feed's notices get a generated summary.
	NeedsEnrichment() bool
	// Common gives mutable access to the shared field set (tag attachment,
	// summary injection).
	Common() *NoticeCommon
}

// FlexString is a string that tolerates a numeric wire value. Several upstream
// feeds emit tender identifiers as JSON numbers; we normalize to text.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty value for flexible string")
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("tender identifier is neither string nor number: %w", err)
	}
	*f = FlexString(n.String())
	return nil
}

// MarshalJSON always emits the normalized textual form.
func (f FlexString) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(f))
}

// String returns the normalized value.
func (f FlexString) String() string { return string(f) }

// DocumentRef points at a supporting document published alongside a notice.
type DocumentRef struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// NoticeCommon is the field set shared by every notice variant.
// Serialized as camelCase JSON on every queue.
type NoticeCommon struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	TenderID    FlexString    `json:"tenderId"`
	Tags        []string      `json:"tags,omitempty"`
	Documents   []DocumentRef `json:"documents,omitempty"`
	Summary     string        `json:"summary,omitempty"`
}

// AttachTag appends a tag if it is not already present.
func (c *NoticeCommon) AttachTag(tag string) {
	for _, t := range c.Tags {
		if t == tag {
			return
		}
	}
	c.Tags = append(c.Tags, tag)
}

// OpenTenderNotice announces a live procurement opportunity.
type OpenTenderNotice struct {
	NoticeCommon
	Buyer              string `json:"buyer"`
	SubmissionDeadline string `json:"submissionDeadline,omitempty"`
	EstimatedValue     string `json:"estimatedValue,omitempty"`
}

func (n *OpenTenderNotice) Source() Source        { return SourceOpenTender }
func (n *OpenTenderNotice) GroupKey() string      { return string(SourceOpenTender) }
func (n *OpenTenderNotice) NeedsEnrichment() bool { return true }
func (n *OpenTenderNotice) Common() *NoticeCommon { return &n.NoticeCommon }

// AwardNotice records a contract award decision.
type AwardNotice struct {
	NoticeCommon
	Supplier   string  `json:"supplier"`
	AwardValue float64 `json:"awardValue,omitempty"`
	Currency   string  `json:"currency,omitempty"`
}

func (n *AwardNotice) Source() Source        { return SourceAward }
func (n *AwardNotice) GroupKey() string      { return string(SourceAward) }
func (n *AwardNotice) NeedsEnrichment() bool { return true }
func (n *AwardNotice) Common() *NoticeCommon { return &n.NoticeCommon }

// AmendmentNotice corrects or amends a previously published notice.
// Amendments are short administrative records; they carry no generated summary.
type AmendmentNotice struct {
	NoticeCommon
	ChangeNote       string     `json:"changeNote"`
	PreviousNoticeID FlexString `json:"previousNoticeId,omitempty"`
}

func (n *AmendmentNotice) Source() Source        { return SourceAmendment }
func (n *AmendmentNotice) GroupKey() string      { return string(SourceAmendment) }
func (n *AmendmentNotice) NeedsEnrichment() bool { return false }
func (n *AmendmentNotice) Common() *NoticeCommon { return &n.NoticeCommon }
