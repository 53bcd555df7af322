// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

// Package workflowbuild synthesizes the Argo Workflow that realizes a
// resolved Task (spec.md §4.7), grounded on
// `lib/src/custom_resources/argo.rs`'s `WorkflowBuilder`/
// `WorkflowTemplateBuilder` and `new_task.rs`'s
// `build_workflow`/`load_command`/`artifact_save_command`/`exec_command`.
package workflowbuild

import (
	"fmt"
	"strings"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/teainspace/ame/api/v1alpha1"
	"github.com/teainspace/ame/internal/argo"
	"github.com/teainspace/ame/internal/secretstore"
)

const (
	// VolumeName is the shared volume every template of a Task's Workflow
	// mounts, so the setup step's downloads are visible to later steps.
	VolumeName = "workspace"
	// MountPath is where VolumeName is mounted in every step.
	MountPath = "/workspace"
	// PVCSize is the fixed size of the shared volume claim (spec.md §4.7).
	PVCSize = "50Gi"
	// MinioSecretName is the literal Secret name holding object-storage
	// credentials, carried over from the original controller's hardcoded
	// value (not a spec.md §6.5 configuration var).
	MinioSecretName = "ame-minio"
	// RunAsUser and FSGroup fix every step's pod security context
	// (spec.md §4.7).
	RunAsUser int64 = 1001
	FSGroup   int64 = 2000

	templateSetup        = "setup"
	templateSaveArtifact = "saveartifacts"
)

// ResolvedDependency is a DataSet dependency resolved for a Task, giving the
// setup step enough to pull its contents before the main step runs
// (spec.md §4.5, §6.3).
type ResolvedDependency struct {
	ProducingTaskName string
	Path              string
}

// TaskContext carries everything WorkflowBuilder needs beyond the Task's
// resolved cfg: image/service-account defaults, object-storage endpoint
// config, and the DataSets this Task depends on (spec.md §4.1 step 5).
type TaskContext struct {
	ExecutorImage    string
	ServiceAccount   string
	ImagePullSecrets []string
	MLflowURL        string
	S3Region         string
	S3Endpoint       string
	S3AccessIDKey    string
	S3SecretKey      string
	Dependencies     []ResolvedDependency
}

// Builder assembles an argo.Workflow incrementally, mirroring argo.rs's
// `WorkflowBuilder` fluent methods (`add_template`, `add_volume`,
// `add_owner_reference`, `label`).
type Builder struct {
	wf *argo.Workflow
}

// NewBuilder starts a Workflow named name in namespace, entrypoint "main".
func NewBuilder(name, namespace string) *Builder {
	return &Builder{
		wf: &argo.Workflow{
			ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
			Spec:       argo.WorkflowSpec{Entrypoint: "main"},
		},
	}
}

// AddTemplate appends a child template.
func (b *Builder) AddTemplate(t argo.WorkflowTemplate) *Builder {
	b.wf.Spec.Templates = append(b.wf.Spec.Templates, t)
	return b
}

// AddVolume appends a volume claim template.
func (b *Builder) AddVolume(pvc corev1.PersistentVolumeClaim) *Builder {
	b.wf.Spec.VolumeClaimTemplates = append(b.wf.Spec.VolumeClaimTemplates, pvc)
	return b
}

// AddOwnerReference appends an owner reference to the Workflow's metadata.
func (b *Builder) AddOwnerReference(ref metav1.OwnerReference) *Builder {
	b.wf.OwnerReferences = append(b.wf.OwnerReferences, ref)
	return b
}

// Label sets a label on the Workflow's metadata.
func (b *Builder) Label(key, val string) *Builder {
	if b.wf.Labels == nil {
		b.wf.Labels = map[string]string{}
	}
	b.wf.Labels[key] = val
	return b
}

// WithServiceAccount sets the Workflow's service account and image pull
// secrets.
func (b *Builder) WithServiceAccount(name string, imagePullSecrets []string) *Builder {
	b.wf.Spec.ServiceAccountName = name
	for _, s := range imagePullSecrets {
		b.wf.Spec.ImagePullSecrets = append(b.wf.Spec.ImagePullSecrets, corev1.LocalObjectReference{Name: s})
	}
	return b
}

// Build returns the assembled Workflow.
func (b *Builder) Build() *argo.Workflow { return b.wf }

// BuildTaskWorkflow synthesizes the Workflow realizing task with its
// resolved cfg, ctx supplying the execution environment (spec.md §4.7).
func BuildTaskWorkflow(task *v1alpha1.Task, cfg v1alpha1.TaskCfg, ctx TaskContext) (*argo.Workflow, error) {
	command, err := ExecutorCommand(cfg.Executor)
	if err != nil {
		return nil, err
	}
	image := ExecutorImage(cfg.Executor, ctx.ExecutorImage)

	resources, err := cfg.Resources.AsResourceRequirements()
	if err != nil {
		return nil, fmt.Errorf("resolving resources for task %q: %w", cfg.Name, err)
	}

	env := baselineEnv(ctx)
	for _, e := range cfg.Env {
		env = append(env, corev1.EnvVar{Name: e.Key, Value: e.Val})
	}
	for _, s := range cfg.Secrets {
		if s.Ame == nil {
			continue
		}
		env = append(env, corev1.EnvVar{Name: s.Ame.InjectAs, ValueFrom: secretstore.EnvVarSource(s.Ame.Key)})
	}

	metadata := &argo.PodMetadata{Labels: map[string]string{"ame-task": cfg.Name}}
	secCtx := &corev1.PodSecurityContext{
		RunAsUser: ptrInt64(RunAsUser),
		FSGroup:   ptrInt64(FSGroup),
	}

	builder := NewBuilder(task.Name, task.Namespace).
		WithServiceAccount(firstNonEmpty(ctx.ServiceAccount, "ame-task"), ctx.ImagePullSecrets).
		Label("ame-task", cfg.Name).
		AddVolume(newTaskPVC(task.Name))

	builder.AddTemplate(argo.WorkflowTemplate{
		Name:            templateSetup,
		Metadata:        metadata,
		SecurityContext: secCtx,
		Script: &argo.ScriptTemplate{
			Image:   image,
			Command: []string{"bash", "-c"},
			Args:    []string{buildSetupScript(task.Spec.Source, task.Spec.Project, ctx)},
		},
	})

	builder.AddTemplate(argo.WorkflowTemplate{
		Name:            cfg.Name,
		Metadata:        metadata,
		Resources:       resources,
		SecurityContext: secCtx,
		Script: &argo.ScriptTemplate{
			Image:   image,
			Command: []string{"bash", "-c"},
			Args:    []string{command},
		},
	})

	steps := [][]argo.WorkflowStep{
		{{Name: templateSetup, Template: templateSetup}},
		{{Name: cfg.Name, Template: cfg.Name}},
	}

	if cfg.ArtifactCfg != nil {
		builder.AddTemplate(argo.WorkflowTemplate{
			Name:            templateSaveArtifact,
			Metadata:        metadata,
			SecurityContext: secCtx,
			Script: &argo.ScriptTemplate{
				Image:   image,
				Command: []string{"bash", "-c"},
				Args:    []string{buildSaveArtifactsScript(task.Name, *cfg.ArtifactCfg, ctx)},
			},
		})
		steps = append(steps, []argo.WorkflowStep{{Name: templateSaveArtifact, Template: templateSaveArtifact}})
	}

	builder.AddTemplate(argo.WorkflowTemplate{Name: "main", Steps: steps})
	builder.wf.Spec.Entrypoint = "main"

	for i := range builder.wf.Spec.Templates {
		t := &builder.wf.Spec.Templates[i]
		if t.Script != nil {
			t.Script.Env = env
		}
	}

	return builder.wf, nil
}

// BuildCronWorkflow synthesizes the CronWorkflow that schedules task's
// resolved cfg on cfg.Triggers.Schedule (spec.md §4.8). It reuses
// BuildTaskWorkflow's template synthesis and lifts the result's spec into a
// CronWorkflowSpec, since Argo's CronWorkflow wraps a plain WorkflowSpec.
func BuildCronWorkflow(task *v1alpha1.Task, cfg v1alpha1.TaskCfg, ctx TaskContext) (*argo.CronWorkflow, error) {
	if cfg.Triggers == nil || cfg.Triggers.Schedule == "" {
		return nil, fmt.Errorf("task %q has no trigger schedule", cfg.Name)
	}

	wf, err := BuildTaskWorkflow(task, cfg, ctx)
	if err != nil {
		return nil, err
	}

	return &argo.CronWorkflow{
		ObjectMeta: metav1.ObjectMeta{Name: task.Name, Namespace: task.Namespace},
		Spec: argo.CronWorkflowSpec{
			Schedule:     cfg.Triggers.Schedule,
			WorkflowSpec: wf.Spec,
		},
	}, nil
}

func baselineEnv(ctx TaskContext) []corev1.EnvVar {
	return []corev1.EnvVar{
		{Name: "AWS_ACCESS_KEY_ID", ValueFrom: &corev1.EnvVarSource{SecretKeyRef: &corev1.SecretKeySelector{
			LocalObjectReference: corev1.LocalObjectReference{Name: MinioSecretName}, Key: firstNonEmpty(ctx.S3AccessIDKey, "root-user"),
		}}},
		{Name: "AWS_SECRET_ACCESS_KEY", ValueFrom: &corev1.EnvVarSource{SecretKeyRef: &corev1.SecretKeySelector{
			LocalObjectReference: corev1.LocalObjectReference{Name: MinioSecretName}, Key: firstNonEmpty(ctx.S3SecretKey, "root-password"),
		}}},
		{Name: "MLFLOW_TRACKING_URI", Value: ctx.MLflowURL},
		{Name: "MINIO_URL", Value: ctx.S3Endpoint},
		{Name: "PIPENV_YES", Value: "1"},
	}
}

func newTaskPVC(taskName string) corev1.PersistentVolumeClaim {
	return corev1.PersistentVolumeClaim{
		ObjectMeta: metav1.ObjectMeta{Name: VolumeName},
		Spec: corev1.PersistentVolumeClaimSpec{
			AccessModes: []corev1.PersistentVolumeAccessMode{corev1.ReadWriteOnce},
			Resources: corev1.VolumeResourceRequirements{
				Requests: corev1.ResourceList{corev1.ResourceStorage: resource.MustParse(PVCSize)},
			},
		},
		// Status is left as its explicit zero value (not a nil pointer) so
		// server-side apply never claims ownership of fields the Argo/PVC
		// controllers populate after creation.
		Status: corev1.PersistentVolumeClaimStatus{},
	}
}

// buildSetupScript renders the setup step: pull every dependency DataSet's
// artifacts, then pull the Task's own source (spec.md §4.7 setup row,
// §6.3 object-storage layout).
func buildSetupScript(source *v1alpha1.TaskSource, project string, ctx TaskContext) string {
	var b strings.Builder
	b.WriteString("set -euo pipefail\n")
	for _, dep := range ctx.Dependencies {
		fmt.Fprintf(&b, "s3cmd --region %s get --recursive s3://ame/tasks/%s/artifacts/%s %s/%s\n",
			ctx.S3Region, dep.ProducingTaskName, dep.Path, MountPath, dep.Path)
	}
	b.WriteString(sourcePullScript(source, project, ctx))
	return b.String()
}

func sourcePullScript(source *v1alpha1.TaskSource, project string, ctx TaskContext) string {
	if source == nil {
		return fmt.Sprintf("s3cmd --region %s get --recursive s3://ame/tasks/%s/projectfiles/ %s/src\n", ctx.S3Region, project, MountPath)
	}
	switch {
	case source.Git != nil:
		g := source.Git
		ref := g.Reference
		if ref == "" {
			ref = "main"
		}
		return fmt.Sprintf("git clone %s %s/src && cd %s/src && git checkout %s\n", g.Repository, MountPath, MountPath, ref)
	case source.Ame != nil:
		return fmt.Sprintf("s3cmd --region %s get --recursive s3://%s %s/src\n", ctx.S3Region, source.Ame.Path, MountPath)
	default:
		return ""
	}
}

// buildSaveArtifactsScript renders the saveartifacts step (spec.md §4.7
// saveartifacts row).
func buildSaveArtifactsScript(taskName string, cfg v1alpha1.ArtifactCfg, ctx TaskContext) string {
	if cfg.SaveChangedFiles {
		return fmt.Sprintf("save_artifacts --region %s s3://ame/tasks/%s/artifacts\n", ctx.S3Region, taskName)
	}
	var b strings.Builder
	b.WriteString("set -euo pipefail\n")
	for _, p := range cfg.Paths {
		fmt.Fprintf(&b, "s3cmd --region %s put --recursive %s/src/%s s3://ame/tasks/%s/artifacts/%s\n",
			ctx.S3Region, MountPath, p, taskName, p)
	}
	return b.String()
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func ptrInt64(v int64) *int64 { return &v }
