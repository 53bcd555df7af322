// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package templateresolve

import (
	"testing"

	"github.com/teainspace/ame/api/v1alpha1"
)

func TestDeepMergeScalarOverlayReplacesBase(t *testing.T) {
	base := map[string]any{"a": "base", "b": "kept"}
	overlay := map[string]any{"a": "overlay"}

	got := DeepMerge(base, overlay)
	if got["a"] != "overlay" || got["b"] != "kept" {
		t.Fatalf("unexpected merge result: %#v", got)
	}
}

func TestDeepMergeNestedMapsMergeRecursively(t *testing.T) {
	base := map[string]any{"executor": map[string]any{"mlflow": map[string]any{}, "keep": "x"}}
	overlay := map[string]any{"executor": map[string]any{"keep": "y"}}

	got := DeepMerge(base, overlay)
	executor := got["executor"].(map[string]any)
	if _, ok := executor["mlflow"]; !ok {
		t.Fatalf("expected base's nested mlflow key to survive merge, got %#v", executor)
	}
	if executor["keep"] != "y" {
		t.Fatalf("expected overlay's nested scalar to win, got %#v", executor)
	}
}

// TestMergeCfgExplicitEmptyDataSetsReplacesTemplate covers the distinction
// spec.md §4.6 step 4 requires: an overlay Task that explicitly declares
// dataSets: [] must end up with no data sets, not inherit the template's.
func TestMergeCfgExplicitEmptyDataSetsReplacesTemplate(t *testing.T) {
	template := v1alpha1.TaskCfg{Name: "tmpl", DataSets: []string{"features", "labels"}}
	overlay := v1alpha1.TaskCfg{Name: "job", DataSets: []string{}}

	merged, err := mergeCfg(template, overlay)
	if err != nil {
		t.Fatalf("mergeCfg: %v", err)
	}
	if merged.DataSets == nil {
		t.Fatalf("expected an explicit empty slice, got nil (absent-from-template behavior)")
	}
	if len(merged.DataSets) != 0 {
		t.Fatalf("expected dataSets to be replaced with empty, got %v", merged.DataSets)
	}
}

// TestMergeCfgAbsentDataSetsInheritsTemplate is the control case: when the
// overlay never mentions dataSets at all, the template's value survives.
func TestMergeCfgAbsentDataSetsInheritsTemplate(t *testing.T) {
	template := v1alpha1.TaskCfg{Name: "tmpl", DataSets: []string{"features", "labels"}}
	overlay := v1alpha1.TaskCfg{Name: "job"}

	merged, err := mergeCfg(template, overlay)
	if err != nil {
		t.Fatalf("mergeCfg: %v", err)
	}
	if len(merged.DataSets) != 2 {
		t.Fatalf("expected dataSets to be inherited from template, got %v", merged.DataSets)
	}
}

func TestMergeCfgExplicitEmptyEnvAndSecretsReplaceTemplate(t *testing.T) {
	template := v1alpha1.TaskCfg{
		Name: "tmpl",
		Env:  []v1alpha1.EnvVar{{Key: "FOO", Val: "bar"}},
		Secrets: []v1alpha1.SecretSpec{
			{Ame: &v1alpha1.AmeSecretRef{Key: "base-secret", InjectAs: "BASE_SECRET"}},
		},
	}
	overlay := v1alpha1.TaskCfg{Name: "job", Env: []v1alpha1.EnvVar{}, Secrets: []v1alpha1.SecretSpec{}}

	merged, err := mergeCfg(template, overlay)
	if err != nil {
		t.Fatalf("mergeCfg: %v", err)
	}
	if len(merged.Env) != 0 {
		t.Fatalf("expected env to be replaced with empty, got %v", merged.Env)
	}
	if len(merged.Secrets) != 0 {
		t.Fatalf("expected secrets to be replaced with empty, got %v", merged.Secrets)
	}
}

func TestMergeCfgOverlayNameAlwaysWins(t *testing.T) {
	template := v1alpha1.TaskCfg{Name: "tmpl"}
	overlay := v1alpha1.TaskCfg{Name: "job"}

	merged, err := mergeCfg(template, overlay)
	if err != nil {
		t.Fatalf("mergeCfg: %v", err)
	}
	if merged.Name != "job" {
		t.Fatalf("expected merged cfg to keep overlay's own name, got %q", merged.Name)
	}
}
