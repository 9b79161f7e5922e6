package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// TargetRegistry maps each target kind to the lookup callback supplied by the
// module that owns that kind of object.
type TargetRegistry struct {
	mu      sync.RWMutex
	lookups map[TargetKind]TargetLookup
}

func NewTargetRegistry() *TargetRegistry {
	return &TargetRegistry{lookups: make(map[TargetKind]TargetLookup)}
}

func (r *TargetRegistry) Register(kind TargetKind, lookup TargetLookup) error {
	kind = NormalizeTargetKind(string(kind))
	if !kind.Valid() {
		return fmt.Errorf("core: target kind %q is not supported", kind)
	}
	if lookup == nil {
		return fmt.Errorf("core: target lookup is required for %q", kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.lookups[kind]; exists {
		return fmt.Errorf("core: target lookup already registered: %s", kind)
	}
	r.lookups[kind] = lookup
	return nil
}

func (r *TargetRegistry) Resolve(ctx context.Context, ref TargetRef) (TargetHandle, error) {
	ref = ref.normalized()
	if ref.ID == "" {
		return nil, fmt.Errorf("core: target id is required")
	}
	r.mu.RLock()
	lookup, ok := r.lookups[ref.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("core: target kind %q is not registered", ref.Kind)
	}
	handle, err := lookup(ctx, ref.ID)
	if err != nil {
		return nil, err
	}
	if handle == nil {
		return nil, notFoundError("target", ref.String())
	}
	return handle, nil
}

func (r *TargetRegistry) Kinds() []TargetKind {
	r.mu.RLock()
	kinds := make([]TargetKind, 0, len(r.lookups))
	for kind := range r.lookups {
		kinds = append(kinds, kind)
	}
	r.mu.RUnlock()
	sort.Slice(kinds, func(i, j int) bool {
		return strings.Compare(string(kinds[i]), string(kinds[j])) < 0
	})
	return kinds
}

// StaticTarget is a TargetHandle backed by fixed values.
type StaticTarget struct {
	Target        TargetRef
	Owner         string
	EventTypes    []string
	GitRefPattern bool
}

func (t StaticTarget) Ref() TargetRef              { return t.Target }
func (t StaticTarget) OwnerID() string             { return t.Owner }
func (t StaticTarget) ValidEventTypes() []string   { return append([]string(nil), t.EventTypes...) }
func (t StaticTarget) SupportsGitRefPattern() bool { return t.GitRefPattern }

// AllowAllVisibility treats every context as visible. Deployments that
// have private content must supply their own VisibilityPolicy.
type AllowAllVisibility struct{}

func (AllowAllVisibility) CanView(context.Context, string, TargetRef) (bool, error) {
	return true, nil
}

type VisibilityFunc func(ctx context.Context, viewerID string, subject TargetRef) (bool, error)

func (f VisibilityFunc) CanView(ctx context.Context, viewerID string, subject TargetRef) (bool, error) {
	if f == nil {
		return false, nil
	}
	return f(ctx, viewerID, subject)
}
