package engine

import (
	"context"

	"github.com/Veraticus/spendtag/internal/model"
)

// TagWriter is the slice of the tag store the auto-tagger writes through.
type TagWriter interface {
	UpsertTag(ctx context.Context, scope model.Scope, ref model.ResourceRef, key, value string, attrs model.TagAttributes, overwrite bool) (*model.Tag, model.TagWriteOutcome, error)
	GetResourceTags(ctx context.Context, scope model.Scope, ref model.ResourceRef) ([]model.Tag, error)
}

// ProgressFunc is called once per completed bulk item.
type ProgressFunc func(done, total int)
