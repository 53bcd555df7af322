// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package v1alpha1

import (
	"encoding/json"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// TaskCfg is the user-declared configuration of a Task, shared verbatim
// between a standalone Task's spec.cfg, a Project's tasks[]/templates[]
// entries, a Model's training/validation task, and a DataSet's producing
// task (spec.md §3, §6.2).
type TaskCfg struct {
	Name         string           `json:"name"`
	TaskRef      *TaskRef         `json:"taskRef,omitempty"`
	Executor     *Executor        `json:"executor,omitempty"`
	Resources    ResourceList     `json:"resources,omitempty"`
	DataSets     []string         `json:"dataSets,omitempty"`
	FromTemplate *FromTemplateRef `json:"fromTemplate,omitempty"`
	ArtifactCfg  *ArtifactCfg     `json:"artifactCfg,omitempty"`
	Triggers     *Triggers        `json:"triggers,omitempty"`
	Env          []EnvVar         `json:"env,omitempty"`
	Secrets      []SecretSpec     `json:"secrets,omitempty"`
}

// DeepCopy returns a deep copy of the receiver.
func (c *TaskCfg) DeepCopy() *TaskCfg {
	if c == nil {
		return nil
	}
	out := &TaskCfg{
		Name:         c.Name,
		TaskRef:      c.TaskRef.DeepCopy(),
		Executor:     c.Executor.DeepCopy(),
		Resources:    c.Resources.DeepCopy(),
		FromTemplate: c.FromTemplate.DeepCopy(),
		ArtifactCfg:  c.ArtifactCfg.DeepCopy(),
		Triggers:     c.Triggers.DeepCopy(),
	}
	if c.DataSets != nil {
		out.DataSets = append([]string(nil), c.DataSets...)
	}
	if c.Env != nil {
		out.Env = append([]EnvVar(nil), c.Env...)
	}
	if c.Secrets != nil {
		out.Secrets = make([]SecretSpec, len(c.Secrets))
		for i, s := range c.Secrets {
			out.Secrets[i] = s.DeepCopy()
		}
	}
	return out
}

// TaskSpec is the spec of the Task custom resource (spec.md §3).
type TaskSpec struct {
	Cfg TaskCfg `json:"cfg"`

	// Source declares where to pull the task's runnable files from. When
	// unset, TaskReconciler falls back to the parent project's object-storage
	// project-files path (spec.md §4.7, grounded on new_task.rs load_command).
	Source *TaskSource `json:"source,omitempty"`

	// Project names the parent Project by its cfg name. The DataSet, Project
	// and Task reconcilers set it on every Task they create, and
	// TaskReconciler fails a Task whose Project is empty.
	Project string `json:"project,omitempty"`

	// DeletionApproved gates the finalizer cleanup handshake (spec.md lifecycle
	// rule 2).
	DeletionApproved bool `json:"deletionApproved,omitempty"`
}

// DeepCopy returns a deep copy of the receiver.
func (s *TaskSpec) DeepCopy() *TaskSpec {
	if s == nil {
		return nil
	}
	out := &TaskSpec{
		Cfg:              *s.Cfg.DeepCopy(),
		Project:          s.Project,
		DeletionApproved: s.DeletionApproved,
		Source:           s.Source.DeepCopy(),
	}
	return out
}

// TaskPhasePending is the initial phase before a Workflow exists.
type TaskPhasePending struct{}

// TaskPhaseRunning mirrors an in-progress (or just-created) Workflow.
type TaskPhaseRunning struct {
	WorkflowName string `json:"workflowName"`
}

// TaskPhaseSucceeded mirrors a Workflow that reached Succeeded.
type TaskPhaseSucceeded struct {
	WorkflowName string `json:"workflowName"`
}

// TaskPhaseFailed mirrors a Workflow that reached Failed, or a fatal
// misconfiguration discovered before a Workflow could be built (spec.md §7).
type TaskPhaseFailed struct {
	WorkflowName string `json:"workflowName,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// TaskPhase is a tagged union over the Task lifecycle states (spec.md §4.1
// step 6). It marshals as a JSON object keyed by the variant name, matching
// the original Rust enum's externally-tagged wire format.
type TaskPhase struct {
	Pending   *TaskPhasePending   `json:"-"`
	Running   *TaskPhaseRunning   `json:"-"`
	Succeeded *TaskPhaseSucceeded `json:"-"`
	Failed    *TaskPhaseFailed    `json:"-"`
}

// NewTaskPhasePending builds a Pending TaskPhase.
func NewTaskPhasePending() TaskPhase { return TaskPhase{Pending: &TaskPhasePending{}} }

// NewTaskPhaseRunning builds a Running TaskPhase.
func NewTaskPhaseRunning(workflowName string) TaskPhase {
	return TaskPhase{Running: &TaskPhaseRunning{WorkflowName: workflowName}}
}

// NewTaskPhaseSucceeded builds a Succeeded TaskPhase.
func NewTaskPhaseSucceeded(workflowName string) TaskPhase {
	return TaskPhase{Succeeded: &TaskPhaseSucceeded{WorkflowName: workflowName}}
}

// NewTaskPhaseFailed builds a Failed TaskPhase.
func NewTaskPhaseFailed(workflowName, reason string) TaskPhase {
	return TaskPhase{Failed: &TaskPhaseFailed{WorkflowName: workflowName, Reason: reason}}
}

// WorkflowName returns the workflow name carried by Running/Succeeded/Failed
// variants, or "" for Pending.
func (p TaskPhase) WorkflowName() string {
	switch {
	case p.Running != nil:
		return p.Running.WorkflowName
	case p.Succeeded != nil:
		return p.Succeeded.WorkflowName
	case p.Failed != nil:
		return p.Failed.WorkflowName
	default:
		return ""
	}
}

// MarshalJSON implements the externally-tagged enum wire format.
func (p TaskPhase) MarshalJSON() ([]byte, error) {
	return marshalTaggedSingleField(map[string]any{
		"Pending":   p.Pending,
		"Running":   p.Running,
		"Succeeded": p.Succeeded,
		"Failed":    p.Failed,
	})
}

// UnmarshalJSON implements the externally-tagged enum wire format.
func (p *TaskPhase) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = TaskPhase{}
	for k, v := range raw {
		switch k {
		case "Pending":
			p.Pending = &TaskPhasePending{}
		case "Running":
			var r TaskPhaseRunning
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			p.Running = &r
		case "Succeeded":
			var r TaskPhaseSucceeded
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			p.Succeeded = &r
		case "Failed":
			var r TaskPhaseFailed
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			p.Failed = &r
		default:
			return fmt.Errorf("unknown task phase variant %q", k)
		}
	}
	return nil
}

// DeepCopy returns a deep copy of the receiver.
func (p TaskPhase) DeepCopy() TaskPhase {
	out := TaskPhase{}
	if p.Pending != nil {
		v := *p.Pending
		out.Pending = &v
	}
	if p.Running != nil {
		v := *p.Running
		out.Running = &v
	}
	if p.Succeeded != nil {
		v := *p.Succeeded
		out.Succeeded = &v
	}
	if p.Failed != nil {
		v := *p.Failed
		out.Failed = &v
	}
	return out
}

// TaskStatus is the observed state of a Task.
type TaskStatus struct {
	Phase *TaskPhase `json:"phase,omitempty"`
}

// DeepCopy returns a deep copy of the receiver.
func (s *TaskStatus) DeepCopy() *TaskStatus {
	if s == nil {
		return nil
	}
	out := &TaskStatus{}
	if s.Phase != nil {
		p := s.Phase.DeepCopy()
		out.Phase = &p
	}
	return out
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:shortName=task

// Task realizes a runnable unit of work as an Argo Workflow.
type Task struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   TaskSpec   `json:"spec,omitempty"`
	Status TaskStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// TaskList is a list of Tasks.
type TaskList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []Task `json:"items"`
}
