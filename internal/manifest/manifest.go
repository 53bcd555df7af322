// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

// Package manifest parses a ProjectSource's `ame.yaml` (spec.md §6.2) into a
// v1alpha1.ProjectCfg, grounded on
// `lib/src/custom_resources/project.rs`'s ProjectCfg/TaskCfg shape and the
// teacher's struct-tag validation idiom (internal/config/validation.go),
// generalized to field-level `validate` tags via go-playground/validator
// since ame.yaml is user-authored input rather than an in-process struct.
package manifest

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/teainspace/ame/api/v1alpha1"
	"github.com/teainspace/ame/internal/ameerr"
)

var validate = validator.New()

// ref mirrors the `{name, project?}` shape shared by task_ref and
// from_template (spec.md §6.2).
type ref struct {
	Name    string `yaml:"name" validate:"required"`
	Project string `yaml:"project"`
}

func (r *ref) toTaskRef() *v1alpha1.TaskRef {
	if r == nil {
		return nil
	}
	out := &v1alpha1.TaskRef{Name: r.Name}
	if r.Project != "" {
		out.Project = &r.Project
	}
	return out
}

func (r *ref) toFromTemplateRef() *v1alpha1.FromTemplateRef {
	if r == nil {
		return nil
	}
	out := &v1alpha1.FromTemplateRef{Name: r.Name}
	if r.Project != "" {
		out.Project = &r.Project
	}
	return out
}

type poetryExecutor struct {
	PythonVersion string `yaml:"python_version"`
	Command       string `yaml:"command" validate:"required"`
}

type pipEnvExecutor struct {
	Command string `yaml:"command" validate:"required"`
}

type pipExecutor struct {
	Command string `yaml:"command" validate:"required"`
}

type customExecutor struct {
	Image   string `yaml:"image" validate:"required"`
	Command string `yaml:"command" validate:"required"`
}

// executor is the ame.yaml tagged union of toolchains (spec.md §6.2
// tasks[].executor); exactly one field should be set.
type executor struct {
	Poetry *poetryExecutor `yaml:"poetry"`
	PipEnv *pipEnvExecutor `yaml:"pipenv"`
	Pip    *pipExecutor    `yaml:"pip"`
	Mlflow *struct{}       `yaml:"mlflow"`
	Custom *customExecutor `yaml:"custom"`
}

func (e *executor) toExecutor() (*v1alpha1.Executor, error) {
	if e == nil {
		return nil, nil
	}
	out := &v1alpha1.Executor{}
	set := 0
	if e.Poetry != nil {
		out.Poetry = &v1alpha1.ExecutorPoetry{PythonVersion: e.Poetry.PythonVersion, Command: e.Poetry.Command}
		set++
	}
	if e.PipEnv != nil {
		out.PipEnv = &v1alpha1.ExecutorPipEnv{Command: e.PipEnv.Command}
		set++
	}
	if e.Pip != nil {
		out.Pip = &v1alpha1.ExecutorPip{Command: e.Pip.Command}
		set++
	}
	if e.Mlflow != nil {
		out.Mlflow = &v1alpha1.ExecutorMlflow{}
		set++
	}
	if e.Custom != nil {
		out.Custom = &v1alpha1.ExecutorCustom{Image: e.Custom.Image, Command: e.Custom.Command}
		set++
	}
	if set > 1 {
		return nil, fmt.Errorf("executor must declare exactly one variant, found %d", set)
	}
	return out, nil
}

type artifactCfg struct {
	SaveChangedFiles bool     `yaml:"save_changed_files"`
	Paths            []string `yaml:"paths"`
}

func (a *artifactCfg) toArtifactCfg() *v1alpha1.ArtifactCfg {
	if a == nil {
		return nil
	}
	return &v1alpha1.ArtifactCfg{SaveChangedFiles: a.SaveChangedFiles, Paths: a.Paths}
}

type triggers struct {
	Schedule string `yaml:"schedule"`
}

func (t *triggers) toTriggers() *v1alpha1.Triggers {
	if t == nil {
		return nil
	}
	return &v1alpha1.Triggers{Schedule: t.Schedule}
}

type envVar struct {
	Key string `yaml:"key" validate:"required"`
	Val string `yaml:"val"`
}

type ameSecretRef struct {
	Key      string `yaml:"key" validate:"required"`
	InjectAs string `yaml:"inject_as" validate:"required"`
}

type secretSpec struct {
	Ame *ameSecretRef `yaml:"ame"`
}

// taskCfg mirrors ame.yaml's per-task/template shape (spec.md §6.2).
type taskCfg struct {
	Name         string            `yaml:"name" validate:"required"`
	FromTemplate *ref              `yaml:"from_template"`
	TaskRef      *ref              `yaml:"task_ref"`
	Executor     *executor         `yaml:"executor"`
	Resources    map[string]string `yaml:"resources"`
	DataSets     []string          `yaml:"data_sets"`
	ArtifactCfg  *artifactCfg      `yaml:"artifact_cfg"`
	Triggers     *triggers         `yaml:"triggers"`
	Env          []envVar          `yaml:"env"`
	Secrets      []secretSpec      `yaml:"secrets"`
}

func (t *taskCfg) toTaskCfg() (v1alpha1.TaskCfg, error) {
	ex, err := t.Executor.toExecutor()
	if err != nil {
		return v1alpha1.TaskCfg{}, fmt.Errorf("task %q: %w", t.Name, err)
	}

	out := v1alpha1.TaskCfg{
		Name:         t.Name,
		TaskRef:      t.TaskRef.toTaskRef(),
		Executor:     ex,
		Resources:    v1alpha1.ResourceList(t.Resources),
		DataSets:     t.DataSets,
		FromTemplate: t.FromTemplate.toFromTemplateRef(),
		ArtifactCfg:  t.ArtifactCfg.toArtifactCfg(),
		Triggers:     t.Triggers.toTriggers(),
	}
	for _, e := range t.Env {
		out.Env = append(out.Env, v1alpha1.EnvVar{Key: e.Key, Val: e.Val})
	}
	for _, s := range t.Secrets {
		spec := v1alpha1.SecretSpec{}
		if s.Ame != nil {
			spec.Ame = &v1alpha1.AmeSecretRef{Key: s.Ame.Key, InjectAs: s.Ame.InjectAs}
		}
		out.Secrets = append(out.Secrets, spec)
	}
	return out, nil
}

type dataSetCfg struct {
	Name string   `yaml:"name" validate:"required"`
	Path string   `yaml:"path" validate:"required"`
	Task *taskCfg `yaml:"task"`
	Size string   `yaml:"size"`
}

func (d *dataSetCfg) toDataSetCfg() (v1alpha1.DataSetCfg, error) {
	out := v1alpha1.DataSetCfg{Name: d.Name, Path: d.Path}
	if d.Size != "" {
		out.Size = &d.Size
	}
	if d.Task != nil {
		task, err := d.Task.toTaskCfg()
		if err != nil {
			return out, err
		}
		out.Task = &task
	}
	return out, nil
}

type trainingCfg struct {
	Task taskCfg `yaml:"task"`
}

type deploymentCfg struct {
	Deploy             bool              `yaml:"deploy"`
	AutoTrain          bool              `yaml:"auto_train"`
	Replicas           *int32            `yaml:"replicas"`
	Image              string            `yaml:"image"`
	Resources          map[string]string `yaml:"resources"`
	IngressAnnotations map[string]string `yaml:"ingress_annotations"`
	EnableTLS          *bool             `yaml:"enable_tls"`
}

type modelCfg struct {
	Name           string        `yaml:"name" validate:"required"`
	Training       trainingCfg   `yaml:"training"`
	ValidationTask *taskCfg      `yaml:"validation_task"`
	Deployment     deploymentCfg `yaml:"deployment"`
}

func (m *modelCfg) toModelCfg() (v1alpha1.ModelCfg, error) {
	trainingTask, err := m.Training.Task.toTaskCfg()
	if err != nil {
		return v1alpha1.ModelCfg{}, err
	}

	out := v1alpha1.ModelCfg{
		Name:     m.Name,
		Training: v1alpha1.TrainingCfg{Task: trainingTask},
		Deployment: v1alpha1.DeploymentCfg{
			Deploy:             m.Deployment.Deploy,
			AutoTrain:          m.Deployment.AutoTrain,
			Replicas:           m.Deployment.Replicas,
			Resources:          v1alpha1.ResourceList(m.Deployment.Resources),
			IngressAnnotations: m.Deployment.IngressAnnotations,
			EnableTLS:          m.Deployment.EnableTLS,
		},
	}
	if m.Deployment.Image != "" {
		out.Deployment.Image = &m.Deployment.Image
	}
	if m.ValidationTask != nil {
		vt, err := m.ValidationTask.toTaskCfg()
		if err != nil {
			return out, err
		}
		out.ValidationTask = &vt
	}
	return out, nil
}

// file mirrors the top-level shape of ame.yaml (spec.md §6.2).
type file struct {
	Name           string       `yaml:"name" validate:"required"`
	EnableTriggers bool         `yaml:"enable_triggers"`
	Tasks          []taskCfg    `yaml:"tasks"`
	Templates      []taskCfg    `yaml:"templates"`
	DataSets       []dataSetCfg `yaml:"data_sets"`
	Models         []modelCfg   `yaml:"models"`
}

// Parse decodes raw ame.yaml bytes into a ProjectCfg. Any structural problem
// — a missing required field, an executor with more than one variant set, or
// invalid YAML — surfaces as an ameerr.ValidationError (spec.md §7
// "Validation" class), not a transport error, so the caller can record it on
// status.reason rather than retrying blindly.
func Parse(data []byte) (*v1alpha1.ProjectCfg, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, ameerr.NewValidationError(fmt.Sprintf("parsing ame.yaml: %v", err))
	}

	if err := validate.Struct(&f); err != nil {
		return nil, ameerr.NewValidationError(fmt.Sprintf("ame.yaml failed validation: %v", err))
	}

	cfg := &v1alpha1.ProjectCfg{Name: f.Name, EnableTriggers: f.EnableTriggers}

	for i := range f.Tasks {
		t, err := f.Tasks[i].toTaskCfg()
		if err != nil {
			return nil, ameerr.NewValidationError(err.Error())
		}
		cfg.Tasks = append(cfg.Tasks, t)
	}
	for i := range f.Templates {
		t, err := f.Templates[i].toTaskCfg()
		if err != nil {
			return nil, ameerr.NewValidationError(err.Error())
		}
		cfg.Templates = append(cfg.Templates, t)
	}
	for i := range f.DataSets {
		d, err := f.DataSets[i].toDataSetCfg()
		if err != nil {
			return nil, ameerr.NewValidationError(err.Error())
		}
		cfg.DataSets = append(cfg.DataSets, d)
	}
	for i := range f.Models {
		m, err := f.Models[i].toModelCfg()
		if err != nil {
			return nil, ameerr.NewValidationError(err.Error())
		}
		cfg.Models = append(cfg.Models, m)
	}

	return cfg, nil
}
