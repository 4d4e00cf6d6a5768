// Package types defines the domain model shared across the pipeline:
// the structured instrument description produced by the vision stage, the
// valuation result produced by the pricing stage, and the reference records
// held by the retrieval store.
package types

// InstrumentDescription is the validated output of the vision stage.
// Text fields default to the empty string and list fields to empty slices;
// a description exists only after full validation.
type InstrumentDescription struct {
	Category  string   `json:"category"`
	Brand     string   `json:"brand"`
	Model     string   `json:"model"`
	Year      string   `json:"year"`
	Condition string   `json:"condition"`
	Materials []string `json:"materials"`
	Features  []string `json:"features"`
	Notes     string   `json:"notes"`
}

// Normalize replaces nil list fields with empty slices so the description
// always serializes materials/features as [], never null.
func (d *InstrumentDescription) Normalize() {
	if d.Materials == nil {
		d.Materials = []string{}
	}
	if d.Features == nil {
		d.Features = []string{}
	}
}

// ValuationResult is the validated output of the pricing stage and the
// final payload of a valuation request.
type ValuationResult struct {
	PriceJPY   int      `json:"price_jpy"`
	RangeJPY   [2]int   `json:"range_jpy"`
	Confidence float64  `json:"confidence"`
	Rationale  string   `json:"rationale"`
	Evidence   []string `json:"evidence"`
}

// Normalize replaces a nil evidence list with an empty slice.
func (v *ValuationResult) Normalize() {
	if v.Evidence == nil {
		v.Evidence = []string{}
	}
}

// RetrievalEntry is one reference record in the similarity index.
// Entries are created once at seed time and never mutated.
type RetrievalEntry struct {
	Title    string `json:"title"`
	PriceJPY int    `json:"price_jpy"`
	Source   string `json:"source"`
	Content  string `json:"text"`
}
