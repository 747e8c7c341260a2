// Package tags implements the tenant-scoped, polymorphic tag store.
package tags

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/spendtag/internal/common"
	"github.com/Veraticus/spendtag/internal/metrics"
	"github.com/Veraticus/spendtag/internal/model"
	"github.com/Veraticus/spendtag/internal/service"
)

// DefaultSingleValuedKeys are the keys that hold at most one active value per resource.
var DefaultSingleValuedKeys = []string{model.TagKeyClassification, model.TagKeyCategory}

// Store applies tenant isolation and resource validation on top of a TagRepository.
type Store struct {
	repo         service.TagRepository
	resolvers    map[model.ResourceType]ResourceResolver
	singleValued map[string]bool
	logger       *slog.Logger
	metrics      *metrics.Collector
	now          func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithResolver registers an ownership resolver for a resource type.
// Resource types without a resolver are trusted to the caller's scope.
func WithResolver(rt model.ResourceType, r ResourceResolver) Option {
	return func(s *Store) {
		s.resolvers[rt] = r
	}
}

// WithSingleValuedKeys replaces the set of single-valued keys.
func WithSingleValuedKeys(keys []string) Option {
	return func(s *Store) {
		s.singleValued = make(map[string]bool, len(keys))
		for _, k := range keys {
			s.singleValued[k] = true
		}
	}
}

// WithLogger sets the store's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithMetrics attaches a metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a tag store.
func NewStore(repo service.TagRepository, opts ...Option) *Store {
	s := &Store{
		repo:      repo,
		resolvers: make(map[model.ResourceType]ResourceResolver),
		now:       time.Now,
	}
	WithSingleValuedKeys(DefaultSingleValuedKeys)(s)
	for _, opt := range opts {
		opt(s)
	}
	s.logger = common.LoggerOrDefault(s.logger)
	return s
}

// IsSingleValued reports whether key holds at most one active value per resource.
func (s *Store) IsSingleValued(key string) bool {
	return s.singleValued[key]
}

// ApplyTag sets key=value on a resource. Single-valued keys are updated in
// place when an active tag exists; other keys always gain a new tag.
func (s *Store) ApplyTag(ctx context.Context, scope model.Scope, ref model.ResourceRef, key, value string, attrs model.TagAttributes) (*model.Tag, error) {
	if !s.IsSingleValued(key) {
		tag, err := s.newTag(ctx, scope, ref, key, value, attrs)
		if err != nil {
			return nil, err
		}
		stored, err := s.repo.InsertTag(ctx, *tag)
		if err != nil {
			return nil, err
		}
		s.metrics.RecordTagWrite(string(model.TagCreated))
		s.logger.DebugContext(ctx, "Applied tag", "resource", ref.String(), "key", key, "value", value)
		return stored, nil
	}

	tag, _, err := s.UpsertTag(ctx, scope, ref, key, value, attrs, true)
	return tag, err
}

// UpsertTag writes the single active value of key on a resource. With
// overwrite false an existing active tag is returned untouched.
func (s *Store) UpsertTag(ctx context.Context, scope model.Scope, ref model.ResourceRef, key, value string, attrs model.TagAttributes, overwrite bool) (*model.Tag, model.TagWriteOutcome, error) {
	tag, err := s.newTag(ctx, scope, ref, key, value, attrs)
	if err != nil {
		return nil, "", err
	}

	stored, outcome, err := s.repo.UpsertSingleValuedTag(ctx, *tag, overwrite)
	if err != nil {
		return nil, "", err
	}

	s.metrics.RecordTagWrite(string(outcome))
	s.logger.DebugContext(ctx, "Upserted tag",
		"resource", ref.String(), "key", key, "value", stored.Value, "outcome", outcome)
	return stored, outcome, nil
}

// RemoveTag soft-deletes a tag. Removing an inactive tag is a no-op.
func (s *Store) RemoveTag(ctx context.Context, scope model.Scope, id string) error {
	tag, err := s.GetTag(ctx, scope, id)
	if err != nil {
		return err
	}
	if !tag.IsActive {
		return nil
	}
	if err := s.repo.SetTagActive(ctx, id, false, s.now()); err != nil {
		return err
	}
	s.logger.DebugContext(ctx, "Removed tag", "tag_id", id, "key", tag.Key)
	return nil
}

// RestoreTag reactivates a soft-deleted tag. It fails with ErrConflict if
// the key is single-valued and the resource already has another active value.
func (s *Store) RestoreTag(ctx context.Context, scope model.Scope, id string) (*model.Tag, error) {
	tag, err := s.GetTag(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if tag.IsActive {
		return tag, nil
	}
	if err := s.repo.SetTagActive(ctx, id, true, s.now()); err != nil {
		return nil, err
	}
	return s.repo.GetTag(ctx, id)
}

// GetTag returns a tag owned by scope, active or not.
func (s *Store) GetTag(ctx context.Context, scope model.Scope, id string) (*model.Tag, error) {
	if err := validateScope(scope); err != nil {
		return nil, err
	}
	if strings.TrimSpace(id) == "" {
		return nil, common.InvalidInputf("tag id is required")
	}

	tag, err := s.repo.GetTag(ctx, id)
	if err != nil {
		return nil, err
	}
	if !tag.Scope.Equal(scope) {
		return nil, fmt.Errorf("%w: tag %s", common.ErrTenantIsolation, id)
	}
	return tag, nil
}

// GetResourceTags returns the active tags of a resource in insertion order.
func (s *Store) GetResourceTags(ctx context.Context, scope model.Scope, ref model.ResourceRef) ([]model.Tag, error) {
	if err := s.checkResource(ctx, scope, ref); err != nil {
		return nil, err
	}
	return s.repo.ListResourceTags(ctx, scope, ref)
}

// QueryResources returns the ids of resources that carry an active tag for
// every (key, value) pair in filters.
func (s *Store) QueryResources(ctx context.Context, scope model.Scope, resourceType model.ResourceType, filters map[string]string) ([]string, error) {
	if err := validateScope(scope); err != nil {
		return nil, err
	}
	if !resourceType.Valid() {
		return nil, fmt.Errorf("%w: %q", common.ErrInvalidResource, resourceType)
	}
	if len(filters) == 0 {
		return nil, common.InvalidInputf("at least one tag filter is required")
	}
	for k := range filters {
		if strings.TrimSpace(k) == "" {
			return nil, common.InvalidInputf("tag filter keys must not be empty")
		}
	}
	return s.repo.QueryResourceIDs(ctx, scope, resourceType, filters)
}

// ListTagsByKey returns every active tag with key on a resource type.
func (s *Store) ListTagsByKey(ctx context.Context, scope model.Scope, resourceType model.ResourceType, key string) ([]model.Tag, error) {
	if err := validateScope(scope); err != nil {
		return nil, err
	}
	if !resourceType.Valid() {
		return nil, fmt.Errorf("%w: %q", common.ErrInvalidResource, resourceType)
	}
	return s.repo.ListTagsByKey(ctx, scope, resourceType, key)
}

func (s *Store) newTag(ctx context.Context, scope model.Scope, ref model.ResourceRef, key, value string, attrs model.TagAttributes) (*model.Tag, error) {
	if err := s.checkResource(ctx, scope, ref); err != nil {
		return nil, err
	}
	if strings.TrimSpace(key) == "" {
		return nil, common.InvalidInputf("tag key is required")
	}
	if strings.TrimSpace(value) == "" {
		return nil, common.InvalidInputf("tag value is required")
	}

	tagType := attrs.Type
	if tagType == "" {
		tagType = model.TagTypeUser
	}
	if !tagType.Valid() {
		return nil, common.InvalidInputf("unknown tag type %q", attrs.Type)
	}

	now := s.now().UTC()
	return &model.Tag{
		ID:           uuid.NewString(),
		Scope:        scope,
		Resource:     ref,
		Type:         tagType,
		Key:          key,
		Value:        value,
		Label:        attrs.Label,
		Description:  attrs.Description,
		Color:        attrs.Color,
		Metadata:     attrs.Metadata,
		SingleValued: s.IsSingleValued(key),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// checkResource validates the reference and, where ownership is resolvable,
// that scope owns it.
func (s *Store) checkResource(ctx context.Context, scope model.Scope, ref model.ResourceRef) error {
	if err := validateScope(scope); err != nil {
		return err
	}
	if !ref.Type.Valid() {
		return fmt.Errorf("%w: %q", common.ErrInvalidResource, ref.Type)
	}
	if strings.TrimSpace(ref.ID) == "" {
		return common.InvalidInputf("resource id is required")
	}

	resolver, ok := s.resolvers[ref.Type]
	if !ok {
		return nil
	}
	owner, err := resolver.Owner(ctx, ref.ID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return fmt.Errorf("%w: %s", common.ErrNotFound, ref)
		}
		return fmt.Errorf("failed to resolve %s: %w", ref, err)
	}
	if !owner.Equal(scope) {
		return fmt.Errorf("%w: %s", common.ErrTenantIsolation, ref)
	}
	return nil
}

func validateScope(scope model.Scope) error {
	if err := scope.Validate(); err != nil {
		return common.InvalidInputf("%v", err)
	}
	return nil
}
