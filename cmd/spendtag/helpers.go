package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Veraticus/spendtag/internal/analytics"
	"github.com/Veraticus/spendtag/internal/common"
	"github.com/Veraticus/spendtag/internal/engine"
	"github.com/Veraticus/spendtag/internal/model"
	"github.com/Veraticus/spendtag/internal/rules"
	"github.com/Veraticus/spendtag/internal/storage"
	"github.com/Veraticus/spendtag/internal/tags"
)

// services is the wired tagging core for one command invocation.
type services struct {
	storage   *storage.SQLiteStorage
	rules     *rules.Store
	tags      *tags.Store
	tagger    *engine.AutoTagger
	analytics *analytics.Engine
	views     *analytics.Views
}

func bindFlag(v *viper.Viper, key string, flag *pflag.Flag) {
	_ = v.BindPFlag(key, flag)
}

// initStorage opens the configured database and brings its schema up to date.
func initStorage(ctx context.Context) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(appConfig.Database.Path)
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// initServices wires storage, rules, tags, the auto-tagger and analytics
// from the loaded configuration.
func initServices(ctx context.Context) (*services, error) {
	store, err := initStorage(ctx)
	if err != nil {
		return nil, err
	}

	logger := slog.Default()
	ruleStore, err := rules.NewStore(ctx, store, rules.WithLogger(logger))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to load rule table: %w", err)
	}

	tagStore := tags.NewStore(store,
		tags.WithResolver(model.ResourceTransaction, tags.TransactionResolver{Transactions: store}),
		tags.WithSingleValuedKeys(appConfig.Tags.SingleValuedKeys),
		tags.WithLogger(logger),
		tags.WithMetrics(collector))

	analyticsEngine := analytics.NewWithConfig(store, tagStore, appConfig.AnalyticsConfig(),
		analytics.WithLogger(logger),
		analytics.WithMetrics(collector))

	return &services{
		storage: store,
		rules:   ruleStore,
		tags:    tagStore,
		tagger: engine.NewWithConfig(store, tagStore, ruleStore, appConfig.AutoTaggerConfig(),
			engine.WithLogger(logger),
			engine.WithMetrics(collector)),
		analytics: analyticsEngine,
		views: analytics.NewViews(store, analyticsEngine,
			analytics.WithViewLogger(logger),
			analytics.WithViewMetrics(collector),
			analytics.WithDefaultTTL(appConfig.Views.DefaultCacheTTL)),
	}, nil
}

func (s *services) Close() error {
	return s.storage.Close()
}

// currentScope returns the tenant selected by flags or environment.
func currentScope() (model.Scope, error) {
	scope := model.NewScope(v.GetString("tenant.type"), v.GetString("tenant.id"))
	if err := scope.Validate(); err != nil {
		return model.Scope{}, common.NewUserError("select a tenant with --tenant-type and --tenant-id", err)
	}
	return scope, nil
}

func parseResourceType(s string) (model.ResourceType, error) {
	rt := model.ResourceType(s)
	if !rt.Valid() {
		return "", fmt.Errorf("%w: unknown resource type %q", common.ErrInvalidResource, s)
	}
	return rt, nil
}

func writeJSON(w io.Writer, value any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

func sortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
