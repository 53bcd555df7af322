// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

// Package argo declares the minimal subset of the argoproj.io/v1alpha1
// Workflow and CronWorkflow wire shapes that AME's WorkflowBuilder needs to
// construct and that TaskReconciler needs to read back a phase from. AME
// never runs these objects; it only produces them for the Argo Workflow
// controller to execute (spec.md §1 out of scope, §4.7).
package argo

import (
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// GroupVersion is the argoproj.io Workflow API group/version AME targets.
var GroupVersion = schema.GroupVersion{Group: "argoproj.io", Version: "v1alpha1"}

// WorkflowPhase mirrors Argo's plain-string workflow status.phase values.
type WorkflowPhase string

const (
	WorkflowPending   WorkflowPhase = "Pending"
	WorkflowRunning   WorkflowPhase = "Running"
	WorkflowSucceeded WorkflowPhase = "Succeeded"
	WorkflowFailed    WorkflowPhase = "Failed"
	WorkflowError     WorkflowPhase = "Error"
)

// PodMetadata carries labels/annotations onto the pod backing a template
// step, used for `ame-task=<name>` log-scraping (spec.md §4.7).
type PodMetadata struct {
	Labels      map[string]string `json:"labels,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty"`
}

// DeepCopy returns a deep copy of the receiver.
func (m *PodMetadata) DeepCopy() *PodMetadata {
	if m == nil {
		return nil
	}
	out := &PodMetadata{}
	if m.Labels != nil {
		out.Labels = make(map[string]string, len(m.Labels))
		for k, v := range m.Labels {
			out.Labels[k] = v
		}
	}
	if m.Annotations != nil {
		out.Annotations = make(map[string]string, len(m.Annotations))
		for k, v := range m.Annotations {
			out.Annotations[k] = v
		}
	}
	return out
}

// ScriptTemplate is a single container invocation: either a literal
// `command` + `args`, or an inline `source` script interpreted with
// `command` (e.g. `["bash"]`). AME always uses the command+args form; the
// field exists to mirror Argo's actual template union.
type ScriptTemplate struct {
	Image   string          `json:"image"`
	Command []string        `json:"command,omitempty"`
	Args    []string        `json:"args,omitempty"`
	Source  string          `json:"source,omitempty"`
	Env     []corev1.EnvVar `json:"env,omitempty"`
}

// WorkflowStep is one entry inside a parallel step group of the `main`
// template (argo.rs's `WorkflowStep`).
type WorkflowStep struct {
	Name     string `json:"name"`
	Template string `json:"template"`
}

// WorkflowTemplate is one child template of a Workflow: either a sequence of
// step groups (only `main` uses this) or a runnable container/script.
type WorkflowTemplate struct {
	Name            string                      `json:"name"`
	Metadata        *PodMetadata                `json:"metadata,omitempty"`
	Steps           [][]WorkflowStep            `json:"steps,omitempty"`
	Script          *ScriptTemplate             `json:"script,omitempty"`
	Container       *corev1.Container           `json:"container,omitempty"`
	Resources       corev1.ResourceRequirements `json:"resources,omitempty"`
	SecurityContext *corev1.PodSecurityContext  `json:"securityContext,omitempty"`
}

// DeepCopy returns a deep copy of the receiver.
func (t *WorkflowTemplate) DeepCopy() *WorkflowTemplate {
	if t == nil {
		return nil
	}
	out := &WorkflowTemplate{Name: t.Name, Metadata: t.Metadata.DeepCopy(), Resources: *t.Resources.DeepCopy()}
	if t.Steps != nil {
		out.Steps = make([][]WorkflowStep, len(t.Steps))
		for i, group := range t.Steps {
			out.Steps[i] = append([]WorkflowStep(nil), group...)
		}
	}
	if t.Script != nil {
		s := *t.Script
		s.Command = append([]string(nil), t.Script.Command...)
		s.Args = append([]string(nil), t.Script.Args...)
		if t.Script.Env != nil {
			s.Env = make([]corev1.EnvVar, len(t.Script.Env))
			for i := range t.Script.Env {
				t.Script.Env[i].DeepCopyInto(&s.Env[i])
			}
		}
		out.Script = &s
	}
	if t.Container != nil {
		out.Container = t.Container.DeepCopy()
	}
	if t.SecurityContext != nil {
		out.SecurityContext = t.SecurityContext.DeepCopy()
	}
	return out
}

// WorkflowSpec is the subset of argoproj.io's WorkflowSpec that AME
// populates (argo.rs's `WorkflowSpec`).
type WorkflowSpec struct {
	Entrypoint           string                               `json:"entrypoint"`
	Templates            []WorkflowTemplate                   `json:"templates"`
	ServiceAccountName   string                               `json:"serviceAccountName,omitempty"`
	ImagePullSecrets     []corev1.LocalObjectReference        `json:"imagePullSecrets,omitempty"`
	VolumeClaimTemplates []corev1.PersistentVolumeClaim        `json:"volumeClaimTemplates,omitempty"`
}

// DeepCopy returns a deep copy of the receiver.
func (s *WorkflowSpec) DeepCopy() *WorkflowSpec {
	if s == nil {
		return nil
	}
	out := &WorkflowSpec{Entrypoint: s.Entrypoint, ServiceAccountName: s.ServiceAccountName}
	if s.Templates != nil {
		out.Templates = make([]WorkflowTemplate, len(s.Templates))
		for i := range s.Templates {
			out.Templates[i] = *s.Templates[i].DeepCopy()
		}
	}
	if s.ImagePullSecrets != nil {
		out.ImagePullSecrets = append([]corev1.LocalObjectReference(nil), s.ImagePullSecrets...)
	}
	if s.VolumeClaimTemplates != nil {
		out.VolumeClaimTemplates = make([]corev1.PersistentVolumeClaim, len(s.VolumeClaimTemplates))
		for i := range s.VolumeClaimTemplates {
			s.VolumeClaimTemplates[i].DeepCopyInto(&out.VolumeClaimTemplates[i])
		}
	}
	return out
}

// WorkflowStatus is the subset of argoproj.io's WorkflowStatus AME reads
// back to derive a Task's phase (spec.md §4.1 step 6).
type WorkflowStatus struct {
	Phase   WorkflowPhase `json:"phase,omitempty"`
	Message string        `json:"message,omitempty"`
}

// DeepCopy returns a deep copy of the receiver.
func (s *WorkflowStatus) DeepCopy() *WorkflowStatus {
	if s == nil {
		return nil
	}
	out := *s
	return &out
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status

// Workflow is the argoproj.io/v1alpha1 Workflow kind, as much of it as AME
// constructs or reads.
type Workflow struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   WorkflowSpec   `json:"spec,omitempty"`
	Status WorkflowStatus `json:"status,omitempty"`
}

// DeepCopyInto copies the receiver into out.
func (in *Workflow) DeepCopyInto(out *Workflow) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ObjectMeta.DeepCopyInto(&out.ObjectMeta)
	out.Spec = *in.Spec.DeepCopy()
	out.Status = *in.Status.DeepCopy()
}

// DeepCopy returns a deep copy of the receiver.
func (in *Workflow) DeepCopy() *Workflow {
	if in == nil {
		return nil
	}
	out := new(Workflow)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyObject implements runtime.Object.
func (in *Workflow) DeepCopyObject() runtime.Object {
	if c := in.DeepCopy(); c != nil {
		return c
	}
	return nil
}

// +kubebuilder:object:root=true

// WorkflowList is a list of Workflows.
type WorkflowList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []Workflow `json:"items"`
}

// DeepCopyInto copies the receiver into out.
func (in *WorkflowList) DeepCopyInto(out *WorkflowList) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ListMeta.DeepCopyInto(&out.ListMeta)
	if in.Items != nil {
		out.Items = make([]Workflow, len(in.Items))
		for i := range in.Items {
			in.Items[i].DeepCopyInto(&out.Items[i])
		}
	}
}

// DeepCopy returns a deep copy of the receiver.
func (in *WorkflowList) DeepCopy() *WorkflowList {
	if in == nil {
		return nil
	}
	out := new(WorkflowList)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyObject implements runtime.Object.
func (in *WorkflowList) DeepCopyObject() runtime.Object {
	if c := in.DeepCopy(); c != nil {
		return c
	}
	return nil
}

// CronWorkflowSpec schedules a WorkflowSpec on a cron expression (spec.md
// §4.8, SPEC_FULL.md §4).
type CronWorkflowSpec struct {
	Schedule     string       `json:"schedule"`
	WorkflowSpec WorkflowSpec `json:"workflowSpec"`
}

// DeepCopy returns a deep copy of the receiver.
func (s *CronWorkflowSpec) DeepCopy() *CronWorkflowSpec {
	if s == nil {
		return nil
	}
	return &CronWorkflowSpec{Schedule: s.Schedule, WorkflowSpec: *s.WorkflowSpec.DeepCopy()}
}

// +kubebuilder:object:root=true

// CronWorkflow is the argoproj.io/v1alpha1 CronWorkflow kind.
type CronWorkflow struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec CronWorkflowSpec `json:"spec,omitempty"`
}

// DeepCopyInto copies the receiver into out.
func (in *CronWorkflow) DeepCopyInto(out *CronWorkflow) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ObjectMeta.DeepCopyInto(&out.ObjectMeta)
	out.Spec = *in.Spec.DeepCopy()
}

// DeepCopy returns a deep copy of the receiver.
func (in *CronWorkflow) DeepCopy() *CronWorkflow {
	if in == nil {
		return nil
	}
	out := new(CronWorkflow)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyObject implements runtime.Object.
func (in *CronWorkflow) DeepCopyObject() runtime.Object {
	if c := in.DeepCopy(); c != nil {
		return c
	}
	return nil
}

// +kubebuilder:object:root=true

// CronWorkflowList is a list of CronWorkflows.
type CronWorkflowList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []CronWorkflow `json:"items"`
}

// DeepCopyInto copies the receiver into out.
func (in *CronWorkflowList) DeepCopyInto(out *CronWorkflowList) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ListMeta.DeepCopyInto(&out.ListMeta)
	if in.Items != nil {
		out.Items = make([]CronWorkflow, len(in.Items))
		for i := range in.Items {
			in.Items[i].DeepCopyInto(&out.Items[i])
		}
	}
}

// DeepCopy returns a deep copy of the receiver.
func (in *CronWorkflowList) DeepCopy() *CronWorkflowList {
	if in == nil {
		return nil
	}
	out := new(CronWorkflowList)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyObject implements runtime.Object.
func (in *CronWorkflowList) DeepCopyObject() runtime.Object {
	if c := in.DeepCopy(); c != nil {
		return c
	}
	return nil
}

// SchemeBuilder registers the argoproj.io Workflow/CronWorkflow kinds AME
// reads and writes. AME does not own this CRD; it only needs the client
// scheme to know how to encode/decode it.
var (
	SchemeBuilder = runtime.NewSchemeBuilder(addKnownTypes)
	AddToScheme   = SchemeBuilder.AddToScheme
)

func addKnownTypes(scheme *runtime.Scheme) error {
	scheme.AddKnownTypes(GroupVersion,
		&Workflow{}, &WorkflowList{},
		&CronWorkflow{}, &CronWorkflowList{},
	)
	metav1.AddToGroupVersion(scheme, GroupVersion)
	return nil
}
