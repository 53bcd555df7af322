// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package v1alpha1

import (
	"encoding/json"
	"fmt"
	"reflect"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
)

// EnvVar is a literal environment variable injected into every executor step.
type EnvVar struct {
	Key string `json:"key"`
	Val string `json:"val"`
}

// DeepCopy returns a deep copy of the receiver.
func (e EnvVar) DeepCopy() EnvVar { return e }

// TaskRef points at a Task config, optionally in another project.
type TaskRef struct {
	Name    string  `json:"name"`
	Project *string `json:"project,omitempty"`
}

// DeepCopy returns a deep copy of the receiver.
func (r *TaskRef) DeepCopy() *TaskRef {
	if r == nil {
		return nil
	}
	out := &TaskRef{Name: r.Name}
	if r.Project != nil {
		p := *r.Project
		out.Project = &p
	}
	return out
}

// FromTemplateRef points at a template Task config, optionally in another
// project; see TemplateResolver (SPEC_FULL.md §4.6).
type FromTemplateRef struct {
	Name    string  `json:"name"`
	Project *string `json:"project,omitempty"`
}

// DeepCopy returns a deep copy of the receiver.
func (r *FromTemplateRef) DeepCopy() *FromTemplateRef {
	if r == nil {
		return nil
	}
	out := &FromTemplateRef{Name: r.Name}
	if r.Project != nil {
		p := *r.Project
		out.Project = &p
	}
	return out
}

// ArtifactCfg governs the saveartifacts step.
type ArtifactCfg struct {
	SaveChangedFiles bool     `json:"saveChangedFiles,omitempty"`
	Paths            []string `json:"paths,omitempty"`
}

// DeepCopy returns a deep copy of the receiver.
func (a *ArtifactCfg) DeepCopy() *ArtifactCfg {
	if a == nil {
		return nil
	}
	out := &ArtifactCfg{SaveChangedFiles: a.SaveChangedFiles}
	if a.Paths != nil {
		out.Paths = append([]string(nil), a.Paths...)
	}
	return out
}

// Triggers declares a cron schedule driving the trigger scheduler (§4.8).
type Triggers struct {
	Schedule string `json:"schedule,omitempty"`
}

// DeepCopy returns a deep copy of the receiver.
func (t *Triggers) DeepCopy() *Triggers {
	if t == nil {
		return nil
	}
	out := *t
	return &out
}

// AmeSecretRef names a logical secret key and the env var it is injected as.
type AmeSecretRef struct {
	Key      string `json:"key"`
	InjectAs string `json:"injectAs"`
}

// SecretSpec is a tagged union of secret sources for a Task's env. AME
// currently only resolves the "ame" variant (SecretStore, §4.7); the
// envelope keeps the wire shape open to other providers without a schema
// break.
type SecretSpec struct {
	Ame *AmeSecretRef `json:"ame,omitempty"`
}

// DeepCopy returns a deep copy of the receiver.
func (s SecretSpec) DeepCopy() SecretSpec {
	out := SecretSpec{}
	if s.Ame != nil {
		v := *s.Ame
		out.Ame = &v
	}
	return out
}

// ExecutorPoetry runs a command inside a poetry-managed environment.
type ExecutorPoetry struct {
	PythonVersion string `json:"pythonVersion,omitempty"`
	Command       string `json:"command"`
}

// ExecutorPipEnv runs a command inside a pipenv-managed environment.
type ExecutorPipEnv struct {
	Command string `json:"command"`
}

// ExecutorPip runs a command after a plain `pip install`.
type ExecutorPip struct {
	Command string `json:"command"`
}

// ExecutorMlflow runs `mlflow run .`.
type ExecutorMlflow struct{}

// ExecutorCustom runs an arbitrary command in a caller-supplied image.
type ExecutorCustom struct {
	Image   string `json:"image"`
	Command string `json:"command"`
}

// Executor is the tagged union of runnable executor variants
// (SPEC_FULL.md / spec.md §4.7). Exactly one field is set. It serializes as
// a JSON object keyed by the variant name, matching the externally-tagged
// enum wire format the original Rust `serde` types use.
type Executor struct {
	Poetry *ExecutorPoetry `json:"Poetry,omitempty"`
	PipEnv *ExecutorPipEnv `json:"PipEnv,omitempty"`
	Pip    *ExecutorPip    `json:"Pip,omitempty"`
	Mlflow *ExecutorMlflow `json:"Mlflow,omitempty"`
	Custom *ExecutorCustom `json:"Custom,omitempty"`
}

// DeepCopy returns a deep copy of the receiver.
func (e *Executor) DeepCopy() *Executor {
	if e == nil {
		return nil
	}
	out := &Executor{}
	if e.Poetry != nil {
		v := *e.Poetry
		out.Poetry = &v
	}
	if e.PipEnv != nil {
		v := *e.PipEnv
		out.PipEnv = &v
	}
	if e.Pip != nil {
		v := *e.Pip
		out.Pip = &v
	}
	if e.Mlflow != nil {
		v := *e.Mlflow
		out.Mlflow = &v
	}
	if e.Custom != nil {
		v := *e.Custom
		out.Custom = &v
	}
	return out
}

// IsEmpty reports whether no executor variant has been set.
func (e *Executor) IsEmpty() bool {
	return e == nil || (e.Poetry == nil && e.PipEnv == nil && e.Pip == nil && e.Mlflow == nil && e.Custom == nil)
}

// TaskSourceGit clones a Git repository as a Task's source.
type TaskSourceGit struct {
	Repository string  `json:"repository"`
	Reference  string  `json:"reference,omitempty"`
	UserName   *string `json:"userName,omitempty"`
	SecretRef  *string `json:"secretRef,omitempty"`
}

// TaskSourceAme pulls a project-file tree from object storage as a Task's
// source.
type TaskSourceAme struct {
	Path string `json:"path"`
}

// TaskSource is the tagged union of where a Task pulls its runnable sources
// from before executing (spec.md §3 Task.Attributes.source).
type TaskSource struct {
	Git *TaskSourceGit `json:"Git,omitempty"`
	Ame *TaskSourceAme `json:"Ame,omitempty"`
}

// DeepCopy returns a deep copy of the receiver.
func (s *TaskSource) DeepCopy() *TaskSource {
	if s == nil {
		return nil
	}
	out := &TaskSource{}
	if s.Git != nil {
		v := *s.Git
		if s.Git.UserName != nil {
			u := *s.Git.UserName
			v.UserName = &u
		}
		if s.Git.SecretRef != nil {
			r := *s.Git.SecretRef
			v.SecretRef = &r
		}
		out.Git = &v
	}
	if s.Ame != nil {
		v := *s.Ame
		out.Ame = &v
	}
	return out
}

// ResourceList is a plain string-keyed resource quantity map, mirroring the
// `resources: {cpu: "2", memory: "2Gi"}` shape from ame.yaml (spec.md §6.2)
// rather than requiring callers to round-trip through resource.Quantity.
type ResourceList map[string]string

// DeepCopy returns a deep copy of the receiver.
func (r ResourceList) DeepCopy() ResourceList {
	if r == nil {
		return nil
	}
	out := make(ResourceList, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// AsResourceRequirements converts the flat cpu/memory map into a corev1
// ResourceRequirements limits block, as WorkflowBuilder needs (spec.md §4.7).
func (r ResourceList) AsResourceRequirements() (corev1.ResourceList, error) {
	if len(r) == 0 {
		return nil, nil
	}
	out := make(corev1.ResourceList, len(r))
	for k, v := range r {
		q, err := resource.ParseQuantity(v)
		if err != nil {
			return nil, fmt.Errorf("resource %q: %w", k, err)
		}
		out[corev1.ResourceName(k)] = q
	}
	return out, nil
}

// marshalTaggedSingleField is a small helper validating that a tagged-union
// struct has at most one branch populated before marshalling (none marshals
// as {}); reused by the phase/state types in task_types.go, dataset_types.go
// and projectsource_types.go. Nil pointer branches count as unset.
func marshalTaggedSingleField(set map[string]any) ([]byte, error) {
	populated := 0
	var result map[string]any
	for k, v := range set {
		if v == nil || (reflect.ValueOf(v).Kind() == reflect.Ptr && reflect.ValueOf(v).IsNil()) {
			continue
		}
		populated++
		result = map[string]any{k: v}
	}
	switch populated {
	case 0:
		return json.Marshal(map[string]any{})
	case 1:
		return json.Marshal(result)
	default:
		return nil, fmt.Errorf("tagged union has more than one branch set: %v", set)
	}
}
