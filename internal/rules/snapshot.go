// Package rules holds the versioned classification and category rule tables.
package rules

import (
	"fmt"
	"regexp"

	"github.com/Veraticus/spendtag/internal/common"
	"github.com/Veraticus/spendtag/internal/model"
)

var bucketNamePattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

// CompiledBucket is a bucket whose patterns are ready to match.
type CompiledBucket struct {
	Name     string
	Patterns []*regexp.Regexp
}

// Match reports whether any pattern of the bucket matches text.
func (b CompiledBucket) Match(text string) bool {
	for _, re := range b.Patterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// Snapshot is an immutable, compiled view of one rule table version.
// It is safe for concurrent use.
type Snapshot struct {
	table          model.PatternTable
	classification []CompiledBucket
	category       []CompiledBucket
}

// Compile validates and compiles a full table.
func Compile(table model.PatternTable) (*Snapshot, error) {
	if err := Validate(table); err != nil {
		return nil, err
	}

	snap := &Snapshot{table: table.Clone()}
	var err error
	if snap.classification, err = compileBuckets(table.ClassificationPatterns); err != nil {
		return nil, err
	}
	if snap.category, err = compileBuckets(table.CategoryPatterns); err != nil {
		return nil, err
	}
	return snap, nil
}

// MustCompile is like Compile but panics on error. Intended for fixtures.
func MustCompile(table model.PatternTable) *Snapshot {
	snap, err := Compile(table)
	if err != nil {
		panic(err)
	}
	return snap
}

// Version returns the rule table version the snapshot was built from.
func (s *Snapshot) Version() int {
	return s.table.Version
}

// Table returns a copy of the source table.
func (s *Snapshot) Table() model.PatternTable {
	return s.table.Clone()
}

// Buckets returns the compiled buckets of one kind in evaluation order.
func (s *Snapshot) Buckets(kind model.PatternKind) []CompiledBucket {
	if kind == model.PatternKindCategory {
		return s.category
	}
	return s.classification
}

// Validate checks every bucket name and pattern in table without compiling
// anything into a snapshot.
func Validate(table model.PatternTable) error {
	for _, kind := range []model.PatternKind{model.PatternKindClassification, model.PatternKindCategory} {
		for _, bucket := range table.Buckets(kind) {
			if !bucketNamePattern.MatchString(bucket.Name) {
				return common.InvalidInputf("%s bucket name %q must match %s", kind, bucket.Name, bucketNamePattern)
			}
			for _, p := range bucket.Patterns {
				if p == "" {
					return common.InvalidInputf("%s bucket %s has an empty pattern", kind, bucket.Name)
				}
				if _, err := common.CompilePattern(p); err != nil {
					return common.InvalidInputf("%s bucket %s: invalid pattern %q: %v", kind, bucket.Name, p, err)
				}
			}
		}
	}
	return nil
}

func compileBuckets(buckets []model.PatternBucket) ([]CompiledBucket, error) {
	out := make([]CompiledBucket, 0, len(buckets))
	for _, b := range buckets {
		cb := CompiledBucket{Name: b.Name, Patterns: make([]*regexp.Regexp, 0, len(b.Patterns))}
		for _, p := range b.Patterns {
			re, err := common.CompilePattern(p)
			if err != nil {
				return nil, fmt.Errorf("failed to compile pattern %s: %w", b.Name, err)
			}
			cb.Patterns = append(cb.Patterns, re)
		}
		out = append(out, cb)
	}
	return out, nil
}

// Source yields the rule snapshot to evaluate. *Store is the durable Source.
type Source interface {
	Snapshot() *Snapshot
}

type fixedSource struct{ snap *Snapshot }

func (f fixedSource) Snapshot() *Snapshot { return f.snap }

// Fixed returns a Source that always yields snap.
func Fixed(snap *Snapshot) Source {
	return fixedSource{snap: snap}
}
