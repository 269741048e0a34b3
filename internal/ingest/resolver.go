package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/navledger/internal/domain"
)

// resolveFunc returns the identifiers one tag selects.
type resolveFunc func(ctx context.Context) ([]string, error)

// Resolver turns a FilterSpec into a Target using the catalog.
//
// A tag that matches nothing contributes nothing: a filter made only of such
// tags resolves to a restricted, empty target rather than to everything.
type Resolver struct {
	catalog   domain.CatalogStore
	resolvers map[domain.Tag]resolveFunc
	logger    *slog.Logger
}

// NewResolver builds one resolver func per tag.
func NewResolver(catalog domain.CatalogStore, logger *slog.Logger) *Resolver {
	r := &Resolver{
		catalog:   catalog,
		resolvers: make(map[domain.Tag]resolveFunc, len(domain.Tags)),
		logger:    logger.With(slog.String("component", "resolver")),
	}
	for _, tag := range domain.Tags {
		if freq, ok := tag.Frequency(); ok {
			r.resolvers[tag] = func(ctx context.Context) ([]string, error) {
				return catalog.IDsByFrequency(ctx, string(freq))
			}
			continue
		}
		if product, _, ok := tag.ProductType(); ok {
			r.resolvers[tag] = func(ctx context.Context) ([]string, error) {
				return catalog.IDsByProductType(ctx, product)
			}
		}
	}
	return r
}

// Resolve returns the union of every token's selection. Tokens outside the
// tag vocabulary are kept verbatim as identifiers without a catalog check.
func (r *Resolver) Resolve(ctx context.Context, spec domain.FilterSpec) (domain.Target, error) {
	if spec.All() {
		return domain.Target{All: true}, nil
	}

	ids := domain.NewIDSet()
	for _, token := range spec.Tokens {
		tag, ok := domain.ParseTag(token)
		if !ok {
			ids.Add(token)
			continue
		}
		matched, err := r.resolvers[tag](ctx)
		if err != nil {
			return domain.Target{}, fmt.Errorf("ingest: resolve tag %s: %w", tag, err)
		}
		if len(matched) == 0 {
			r.logger.Warn("tag matched no active instruments", slog.String("tag", tag.String()))
		}
		ids.Add(matched...)
	}

	r.logger.Info("filter resolved",
		slog.String("filter", spec.String()),
		slog.Int("identifiers", len(ids)),
	)
	return domain.Target{IDs: ids}, nil
}

// DeriveVariant returns the artifact variant implied by a filter consisting of
// exactly one product tag, or nil.
func DeriveVariant(spec domain.FilterSpec) *domain.Variant {
	if len(spec.Tokens) != 1 {
		return nil
	}
	tag, ok := domain.ParseTag(spec.Tokens[0])
	if !ok {
		return nil
	}
	if _, v, ok := tag.ProductType(); ok {
		return &v
	}
	return nil
}
