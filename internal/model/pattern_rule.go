package model

// PatternKind selects one of the two rule tables.
type PatternKind string

// Pattern kinds.
const (
	PatternKindClassification PatternKind = "classification"
	PatternKindCategory       PatternKind = "category"
)

// PatternBucket is a named, ordered list of case-insensitive regular expressions.
// Within a bucket the first matching pattern wins.
type PatternBucket struct {
	Name     string   `json:"name"`
	Patterns []string `json:"patterns"`
}

// PatternTable holds the classification and category rule tables in evaluation order.
type PatternTable struct {
	ClassificationPatterns []PatternBucket `json:"classification_patterns"`
	CategoryPatterns       []PatternBucket `json:"category_patterns"`
	Version                int             `json:"version,omitempty"`
}

// Buckets returns the bucket list for a kind.
func (t PatternTable) Buckets(kind PatternKind) []PatternBucket {
	if kind == PatternKindCategory {
		return t.CategoryPatterns
	}
	return t.ClassificationPatterns
}

// Clone returns a deep copy of the table.
func (t PatternTable) Clone() PatternTable {
	return PatternTable{
		ClassificationPatterns: cloneBuckets(t.ClassificationPatterns),
		CategoryPatterns:       cloneBuckets(t.CategoryPatterns),
		Version:                t.Version,
	}
}

// IsEmpty reports whether the table carries no patterns at all.
func (t PatternTable) IsEmpty() bool {
	return len(t.ClassificationPatterns) == 0 && len(t.CategoryPatterns) == 0
}

func cloneBuckets(in []PatternBucket) []PatternBucket {
	if in == nil {
		return nil
	}
	out := make([]PatternBucket, len(in))
	for i, b := range in {
		out[i] = PatternBucket{Name: b.Name, Patterns: append([]string(nil), b.Patterns...)}
	}
	return out
}
