// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

// Package templateresolve implements the TemplateResolver (spec.md §4.6):
// expanding a Task's `cfg.fromTemplate` reference against its parent
// Project (or a named sibling Project) via a recursive deep-merge, grounded
// on `new_task.rs`'s `resolve_task_templates`/`omerge` call.
package templateresolve

import (
	"context"
	"encoding/json"
	"fmt"

	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/teainspace/ame/api/v1alpha1"
	"github.com/teainspace/ame/internal/ameerr"
	"github.com/teainspace/ame/internal/clone"
)

// Resolve expands cfg.fromTemplate against project (the Task's parent) by
// locating the template in project, or in a named sibling project when
// fromTemplate.project is set, then deep-merging the template as the base
// and cfg as the overlay. It returns cfg unchanged when fromTemplate is unset
// (spec.md §4.6 step 1).
func Resolve(ctx context.Context, c client.Client, namespace string, cfg v1alpha1.TaskCfg, project *v1alpha1.Project) (v1alpha1.TaskCfg, error) {
	if cfg.FromTemplate == nil {
		return cfg, nil
	}

	templateProject := project
	if cfg.FromTemplate.Project != nil && *cfg.FromTemplate.Project != project.Spec.Cfg.Name {
		p, err := findProjectByName(ctx, c, namespace, *cfg.FromTemplate.Project)
		if err != nil {
			return cfg, err
		}
		templateProject = p
	}

	var template *v1alpha1.TaskCfg
	for i := range templateProject.Spec.Cfg.Templates {
		if templateProject.Spec.Cfg.Templates[i].Name == cfg.FromTemplate.Name {
			template = &templateProject.Spec.Cfg.Templates[i]
			break
		}
	}
	if template == nil {
		projectName := ""
		if cfg.FromTemplate.Project != nil {
			projectName = *cfg.FromTemplate.Project
		}
		return cfg, ameerr.MissingTemplate(cfg.FromTemplate.Name, projectName)
	}

	merged, err := mergeCfg(*template, cfg)
	if err != nil {
		return cfg, fmt.Errorf("merging template %q into task cfg %q: %w", template.Name, cfg.Name, err)
	}
	return merged, nil
}

func findProjectByName(ctx context.Context, c client.Client, namespace, name string) (*v1alpha1.Project, error) {
	list := &v1alpha1.ProjectList{}
	if err := c.List(ctx, list, client.InNamespace(namespace)); err != nil {
		return nil, ameerr.NewTransportError("kubernetes", fmt.Errorf("listing projects: %w", err))
	}
	for i := range list.Items {
		if list.Items[i].Spec.Cfg.Name == name {
			return &list.Items[i], nil
		}
	}
	return nil, ameerr.MissingProject(name)
}

// mergeCfg deep-merges overlay onto base (base is the template, overlay is
// the Task's declared cfg) and decodes the result back into a TaskCfg.
func mergeCfg(base, overlay v1alpha1.TaskCfg) (v1alpha1.TaskCfg, error) {
	baseMap, err := toMap(base)
	if err != nil {
		return v1alpha1.TaskCfg{}, err
	}
	overlayMap, err := toMap(overlay)
	if err != nil {
		return v1alpha1.TaskCfg{}, err
	}
	overlayMap = restoreEmptyCollections(overlay, overlayMap)
	baseMap = restoreEmptyCollections(base, baseMap)

	merged := DeepMerge(baseMap, overlayMap)
	// The merged cfg is the overlay Task's own identity, not the template's.
	merged["name"] = overlay.Name

	encoded, err := json.Marshal(merged)
	if err != nil {
		return v1alpha1.TaskCfg{}, err
	}
	var out v1alpha1.TaskCfg
	if err := json.Unmarshal(encoded, &out); err != nil {
		return v1alpha1.TaskCfg{}, err
	}
	return out, nil
}

func toMap(v any) (map[string]any, error) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(encoded, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// restoreEmptyCollections undoes the one piece of information TaskCfg's
// `omitempty` json tags erase during toMap's marshal round-trip: a
// DataSets/Env/Secrets field that was set to a non-nil empty collection
// marshals identically to one that was never set at all, both vanishing
// from the map. DeepMerge needs to tell those apart (spec.md §4.6 step 4:
// an explicit empty collection on the overlay replaces the base's value
// with empty; an absent field inherits it), so this puts the key back
// whenever cfg's own field is non-nil, using cfg directly rather than the
// map produced from it.
func restoreEmptyCollections(cfg v1alpha1.TaskCfg, m map[string]any) map[string]any {
	if cfg.DataSets != nil {
		if _, ok := m["dataSets"]; !ok {
			m["dataSets"] = []any{}
		}
	}
	if cfg.Env != nil {
		if _, ok := m["env"]; !ok {
			m["env"] = []any{}
		}
	}
	if cfg.Secrets != nil {
		if _, ok := m["secrets"]; !ok {
			m["secrets"] = []any{}
		}
	}
	return m
}

// DeepMerge recursively merges overlay onto base (spec.md §4.6 step 4, §9):
// maps merge key-by-key and recurse into nested maps; everything else on the
// overlay — scalars, arrays, explicit nulls — replaces the base value
// outright. Only keys present on the overlay are considered; an absent key
// means "inherit base" simply because it was never visited.
func DeepMerge(base, overlay map[string]any) map[string]any {
	out := clone.DeepCopyMap(base)
	for k, ov := range overlay {
		bv, exists := out[k]
		if ovMap, ok := ov.(map[string]any); ok {
			if bvMap, ok := bv.(map[string]any); exists && ok {
				out[k] = DeepMerge(bvMap, ovMap)
				continue
			}
		}
		out[k] = clone.DeepCopy(ov)
	}
	return out
}
