package ot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// standardRowFields is the set of well-known field names pulled out of
// Row.Fields into the canonical row shape; everything else in Fields,
// except showcaller playback fields (keys starting with "showcaller"), is
// folded into CustomFields, sorted by key (spec §4.1).
var standardRowFields = map[string]struct{}{
	"name": {}, "talent": {}, "script": {}, "gfx": {}, "video": {},
	"images": {}, "notes": {}, "duration": {}, "startTime": {},
	"endTime": {}, "color": {}, "isFloating": {},
}

// canonicalRow is the fixed-key-order row shape fingerprinted by Signature.
// Field order here IS the canonical order spec §4.1 names; encoding/json
// marshals struct fields in declaration order, so this struct alone pins it.
type canonicalRow struct {
	ID           string         `json:"id"`
	Type         RowKind        `json:"type"`
	Name         any            `json:"name"`
	Talent       any            `json:"talent"`
	Script       any            `json:"script"`
	Gfx          any            `json:"gfx"`
	Video        any            `json:"video"`
	Images       any            `json:"images"`
	Notes        any            `json:"notes"`
	Duration     any            `json:"duration"`
	StartTime    any            `json:"startTime"`
	EndTime      any            `json:"endTime"`
	Color        any            `json:"color"`
	IsFloating   bool           `json:"isFloating"`
	CustomFields map[string]any `json:"customFields"`
	RowNumber    *int           `json:"rowNumber"`
	SegmentName  string         `json:"segmentName"`
}

// canonicalDocument is the ordered tuple signed by Signature: title, show
// date, external notes, then the row list. Timezone, start time, column
// layout and any showcaller/UI field are deliberately absent.
type canonicalDocument struct {
	Title         string          `json:"title"`
	ShowDate      *string         `json:"showDate"`
	ExternalNotes string          `json:"externalNotes"`
	Rows          []canonicalRow  `json:"rows"`
}

func toCanonicalRows(rows []Row) []canonicalRow {
	out := make([]canonicalRow, len(rows))
	rowNumber := 0
	segment := ""
	for i, r := range rows {
		if r.Kind == RowHeader {
			segment = r.Text("name")
		}

		custom := map[string]any{}
		for k, v := range r.Fields {
			if _, standard := standardRowFields[k]; !standard && !strings.HasPrefix(k, "showcaller") {
				custom[k] = v
			}
		}

		var rowNumPtr *int
		if r.Kind == RowRegular {
			rowNumber++
			n := rowNumber
			rowNumPtr = &n
		}

		isFloating, _ := r.Field("isFloating").(bool)

		out[i] = canonicalRow{
			ID:           r.ID,
			Type:         r.Kind,
			Name:         r.Field("name"),
			Talent:       r.Field("talent"),
			Script:       r.Field("script"),
			Gfx:          r.Field("gfx"),
			Video:        r.Field("video"),
			Images:       r.Field("images"),
			Notes:        r.Field("notes"),
			Duration:     r.Field("duration"),
			StartTime:    r.Field("startTime"),
			EndTime:      r.Field("endTime"),
			Color:        r.Field("color"),
			IsFloating:   isFloating,
			CustomFields: custom,
			RowNumber:    rowNumPtr,
			SegmentName:  segment,
		}
	}
	return out
}

// normalizeTitle trims surrounding whitespace and applies Unicode NFC
// normalization, so two titles differing only by composition form or
// incidental whitespace fingerprint identically.
func normalizeTitle(title string) string {
	return norm.NFC.String(strings.TrimSpace(title))
}

// Signature computes the canonical content fingerprint of a document: a
// stable SHA-256 hex digest of the ordered (title, showDate, notes, rows)
// tuple, serialized with fixed row-key order and sorted custom-field keys.
// Two documents differing only in columns, timezone, start time or
// showcaller/UI fields MUST fingerprint identically (spec §4.1, P4).
func Signature(d Document) (string, error) {
	canon := canonicalDocument{
		Title:         normalizeTitle(d.Title),
		ShowDate:      d.ShowDate,
		ExternalNotes: d.ExternalNotes,
		Rows:          toCanonicalRows(d.Rows),
	}

	// encoding/json marshals map keys (CustomFields) in sorted order and
	// produces compact output with no whitespace: both required properties
	// of the canonical serialization.
	buf, err := json.Marshal(canon)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:]), nil
}

// MustSignature panics if Signature fails; useful in tests and in paths
// where the document has already round-tripped through JSON once.
func MustSignature(d Document) string {
	sig, err := Signature(d)
	if err != nil {
		panic(err)
	}
	return sig
}

// LightweightFingerprint is the advisory (title, row count, id/name-hash
// list) variant used by high-frequency paths like undo gating and dirty
// probes. It is never used for conflict resolution (spec §4.1).
type LightweightFingerprint struct {
	Title    string   `json:"title"`
	RowCount int      `json:"rowCount"`
	RowHints []string `json:"rowHints"`
}

// Lightweight computes the advisory fingerprint for d.
func Lightweight(d Document) LightweightFingerprint {
	hints := make([]string, len(d.Rows))
	for i, r := range d.Rows {
		sum := sha256.Sum256([]byte(r.ID + "\x00" + r.Text("name")))
		hints[i] = r.ID + ":" + hex.EncodeToString(sum[:4])
	}
	return LightweightFingerprint{
		Title:    normalizeTitle(d.Title),
		RowCount: len(d.Rows),
		RowHints: hints,
	}
}

// Equal reports whether two lightweight fingerprints are identical. It is a
// cheap probe, not a substitute for Signature equality.
func (l LightweightFingerprint) Equal(other LightweightFingerprint) bool {
	if l.Title != other.Title || l.RowCount != other.RowCount || len(l.RowHints) != len(other.RowHints) {
		return false
	}
	for i := range l.RowHints {
		if l.RowHints[i] != other.RowHints[i] {
			return false
		}
	}
	return true
}
