// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// TrainingCfg declares how a Model's training Task is resolved (spec.md §4.3
// step 2, §6.2 models[].training).
type TrainingCfg struct {
	Task TaskCfg `json:"task"`
}

// DeepCopy returns a deep copy of the receiver.
func (c *TrainingCfg) DeepCopy() *TrainingCfg {
	if c == nil {
		return nil
	}
	return &TrainingCfg{Task: *c.Task.DeepCopy()}
}

// DeploymentCfg governs whether, and how, a Model's latest validated version
// is served (spec.md §4.3 steps 2 and 4).
type DeploymentCfg struct {
	Deploy             bool              `json:"deploy,omitempty"`
	AutoTrain          bool              `json:"autoTrain,omitempty"`
	Replicas           *int32            `json:"replicas,omitempty"`
	Image              *string           `json:"image,omitempty"`
	Resources          ResourceList      `json:"resources,omitempty"`
	IngressAnnotations map[string]string `json:"ingressAnnotations,omitempty"`
	EnableTLS          *bool             `json:"enableTls,omitempty"`
}

// DeepCopy returns a deep copy of the receiver.
func (c *DeploymentCfg) DeepCopy() *DeploymentCfg {
	if c == nil {
		return nil
	}
	out := &DeploymentCfg{Deploy: c.Deploy, AutoTrain: c.AutoTrain, Resources: c.Resources.DeepCopy()}
	if c.Replicas != nil {
		r := *c.Replicas
		out.Replicas = &r
	}
	if c.Image != nil {
		i := *c.Image
		out.Image = &i
	}
	if c.EnableTLS != nil {
		t := *c.EnableTLS
		out.EnableTLS = &t
	}
	if c.IngressAnnotations != nil {
		out.IngressAnnotations = make(map[string]string, len(c.IngressAnnotations))
		for k, v := range c.IngressAnnotations {
			out.IngressAnnotations[k] = v
		}
	}
	return out
}

// ModelCfg declares one model's training, validation and serving config
// (spec.md §4.3, §6.2 models[]).
type ModelCfg struct {
	Name            string        `json:"name"`
	Training        TrainingCfg   `json:"training"`
	ValidationTask  *TaskCfg      `json:"validationTask,omitempty"`
	Deployment      DeploymentCfg `json:"deployment,omitempty"`
}

// DeepCopy returns a deep copy of the receiver.
func (c *ModelCfg) DeepCopy() *ModelCfg {
	if c == nil {
		return nil
	}
	out := &ModelCfg{Name: c.Name, Training: *c.Training.DeepCopy(), Deployment: *c.Deployment.DeepCopy()}
	out.ValidationTask = c.ValidationTask.DeepCopy()
	return out
}

// ProjectCfg is the user-declared content of a Project, matching ame.yaml's
// top-level shape (spec.md §6.2).
type ProjectCfg struct {
	Name           string        `json:"name"`
	EnableTriggers bool          `json:"enableTriggers,omitempty"`
	Tasks          []TaskCfg     `json:"tasks,omitempty"`
	Templates      []TaskCfg     `json:"templates,omitempty"`
	Models         []ModelCfg    `json:"models,omitempty"`
	DataSets       []DataSetCfg  `json:"dataSets,omitempty"`
}

// DeepCopy returns a deep copy of the receiver.
func (c *ProjectCfg) DeepCopy() *ProjectCfg {
	if c == nil {
		return nil
	}
	out := &ProjectCfg{Name: c.Name, EnableTriggers: c.EnableTriggers}
	if c.Tasks != nil {
		out.Tasks = make([]TaskCfg, len(c.Tasks))
		for i, t := range c.Tasks {
			out.Tasks[i] = *t.DeepCopy()
		}
	}
	if c.Templates != nil {
		out.Templates = make([]TaskCfg, len(c.Templates))
		for i, t := range c.Templates {
			out.Templates[i] = *t.DeepCopy()
		}
	}
	if c.Models != nil {
		out.Models = make([]ModelCfg, len(c.Models))
		for i, m := range c.Models {
			out.Models[i] = *m.DeepCopy()
		}
	}
	if c.DataSets != nil {
		out.DataSets = make([]DataSetCfg, len(c.DataSets))
		for i, d := range c.DataSets {
			out.DataSets[i] = *d.DeepCopy()
		}
	}
	return out
}

// ProjectSpec is the spec of the Project custom resource (spec.md §3).
type ProjectSpec struct {
	Cfg              ProjectCfg `json:"cfg"`
	DeletionApproved bool       `json:"deletionApproved,omitempty"`
}

// DeepCopy returns a deep copy of the receiver.
func (s *ProjectSpec) DeepCopy() *ProjectSpec {
	if s == nil {
		return nil
	}
	return &ProjectSpec{Cfg: *s.Cfg.DeepCopy(), DeletionApproved: s.DeletionApproved}
}

// ModelStatus tracks per-model training/deployment progress. Not named in
// spec.md's Data Model section directly, but carried forward from the
// original implementation's per-model status tracking (SPEC_FULL.md §4).
type ModelStatus struct {
	Name               string       `json:"name"`
	LatestModelVersion *string      `json:"latestModelVersion,omitempty"`
	LastTrained        *metav1.Time `json:"lastTrained,omitempty"`
	LastDeployed        *metav1.Time `json:"lastDeployed,omitempty"`
}

// DeepCopy returns a deep copy of the receiver.
func (s *ModelStatus) DeepCopy() *ModelStatus {
	if s == nil {
		return nil
	}
	out := &ModelStatus{Name: s.Name}
	if s.LatestModelVersion != nil {
		v := *s.LatestModelVersion
		out.LatestModelVersion = &v
	}
	if s.LastTrained != nil {
		t := s.LastTrained.DeepCopy()
		out.LastTrained = &t
	}
	if s.LastDeployed != nil {
		t := s.LastDeployed.DeepCopy()
		out.LastDeployed = &t
	}
	return out
}

// ProjectStatus is the observed state of a Project.
type ProjectStatus struct {
	Models []ModelStatus `json:"models,omitempty"`
}

// DeepCopy returns a deep copy of the receiver.
func (s *ProjectStatus) DeepCopy() *ProjectStatus {
	if s == nil {
		return nil
	}
	out := &ProjectStatus{}
	if s.Models != nil {
		out.Models = make([]ModelStatus, len(s.Models))
		for i, m := range s.Models {
			out.Models[i] = *m.DeepCopy()
		}
	}
	return out
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:shortName=proj

// Project is a collection of Tasks, Models, DataSets and templates,
// materialized either directly or from a ProjectSource.
type Project struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   ProjectSpec   `json:"spec,omitempty"`
	Status ProjectStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// ProjectList is a list of Projects.
type ProjectList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []Project `json:"items"`
}
