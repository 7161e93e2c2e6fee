package publish

import (
	"context"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/sahilm/fuzzy"

	"wp-bulkpost/internal/infra/logx"
	"wp-bulkpost/internal/wp"
)

// TagAPI defines the remote tag calls.
type TagAPI interface {
	SearchTags(ctx context.Context, search string) ([]wp.Tag, error)
	CreateTag(ctx context.Context, name string) (wp.Tag, error)
}

// TagResolver maps tag names to remote IDs, creating tags that do not
// exist yet. Names are compared lower-cased. Resolved IDs are cached for
// the lifetime of the resolver.
type TagResolver struct {
	api TagAPI

	mu    sync.Mutex
	cache map[string]int
}

// NewTagResolver creates a new resolver.
func NewTagResolver(api TagAPI) *TagResolver {
	return &TagResolver{api: api, cache: make(map[string]int)}
}

// NormalizeTags splits a comma separated list into trimmed, lower-cased,
// de-duplicated names in first-seen order.
func NormalizeTags(raw string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(raw, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

// Suggest returns up to limit existing tag names that fuzzily match name,
// best first. Exact matches are not suggestions and are skipped.
func Suggest(name string, existing []wp.Tag, limit int) []string {
	names := make([]string, 0, len(existing))
	for _, t := range existing {
		if !strings.EqualFold(t.Name, name) {
			names = append(names, t.Name)
		}
	}
	var out []string
	for _, m := range fuzzy.Find(name, names) {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, m.Str)
	}
	return out
}

func (r *TagResolver) cached(name string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.cache[name]
	return id, ok
}

func (r *TagResolver) store(name string, id int) {
	r.mu.Lock()
	r.cache[name] = id
	r.mu.Unlock()
}

// ResolveOne returns the ID of the tag called name, creating it if the
// search finds no exact (case-insensitive) match.
func (r *TagResolver) ResolveOne(ctx context.Context, name string) (int, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return 0, errors.New("empty tag name")
	}
	if id, ok := r.cached(name); ok {
		return id, nil
	}

	existing, err := r.api.SearchTags(ctx, name)
	if err != nil {
		return 0, errors.Wrapf(err, "search tag %q", name)
	}
	for _, t := range existing {
		if strings.ToLower(t.Name) == name {
			r.store(name, t.ID)
			return t.ID, nil
		}
	}

	if sugg := Suggest(name, existing, 3); len(sugg) > 0 {
		logx.Warnw("creating tag with similar existing tags", "tag", name, "similar", strings.Join(sugg, ", "))
	}
	tag, err := r.api.CreateTag(ctx, name)
	if err != nil {
		return 0, errors.Wrapf(err, "create tag %q", name)
	}
	logx.Infow("tag created", "tag", name, "tag_id", tag.ID)
	r.store(name, tag.ID)
	return tag.ID, nil
}

// Resolve resolves every name. Failed names are left out of the map and
// reported together in the returned error.
func (r *TagResolver) Resolve(ctx context.Context, names []string) (map[string]int, error) {
	ids := make(map[string]int, len(names))
	var errs []error
	for _, name := range names {
		id, err := r.ResolveOne(ctx, name)
		if err != nil {
			if ctx.Err() != nil {
				return ids, ctx.Err()
			}
			logx.Errorw("tag not resolved", "tag", name, logx.FieldError, err)
			errs = append(errs, err)
			continue
		}
		ids[strings.ToLower(strings.TrimSpace(name))] = id
	}
	return ids, errors.Join(errs...)
}
