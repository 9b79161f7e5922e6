package main

import (
	"context"
	"strings"

	"github.com/goliatone/go-hooks/core"
)

// buildTargetRegistry registers one lookup per configured target kind. The
// daemon has no domain model of its own, so targets come from configuration.
func buildTargetRegistry(targets []targetConfig) (*core.TargetRegistry, error) {
	byKind := map[core.TargetKind]map[string]core.StaticTarget{}
	for _, target := range targets {
		kind := core.NormalizeTargetKind(target.Kind)
		id := strings.TrimSpace(target.ID)
		if byKind[kind] == nil {
			byKind[kind] = map[string]core.StaticTarget{}
		}
		byKind[kind][id] = core.StaticTarget{
			Target:        core.TargetRef{Kind: kind, ID: id},
			Owner:         strings.TrimSpace(target.Owner),
			EventTypes:    append([]string(nil), target.EventTypes...),
			GitRefPattern: target.GitRefPattern,
		}
	}

	registry := core.NewTargetRegistry()
	for kind, known := range byKind {
		if err := registry.Register(kind, func(_ context.Context, id string) (core.TargetHandle, error) {
			if target, ok := known[id]; ok {
				return target, nil
			}
			// the registry reports a nil handle as not found
			return nil, nil
		}); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
