// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package v1alpha1

import (
	"encoding/json"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// DataSetCfg declares a producible, path-addressable artifact.
type DataSetCfg struct {
	Name string   `json:"name"`
	Path string   `json:"path"`
	Task *TaskCfg `json:"task,omitempty"`
	Size *string  `json:"size,omitempty"`
}

// DeepCopy returns a deep copy of the receiver.
func (c *DataSetCfg) DeepCopy() *DataSetCfg {
	if c == nil {
		return nil
	}
	out := &DataSetCfg{Name: c.Name, Path: c.Path, Task: c.Task.DeepCopy()}
	if c.Size != nil {
		s := *c.Size
		out.Size = &s
	}
	return out
}

// DataSetSpec is the spec of the DataSet custom resource (spec.md §3).
type DataSetSpec struct {
	Cfg              DataSetCfg `json:"cfg"`
	Project          string     `json:"project,omitempty"`
	DeletionApproved bool       `json:"deletionApproved,omitempty"`
}

// DeepCopy returns a deep copy of the receiver.
func (s *DataSetSpec) DeepCopy() *DataSetSpec {
	if s == nil {
		return nil
	}
	return &DataSetSpec{Cfg: *s.Cfg.DeepCopy(), Project: s.Project, DeletionApproved: s.DeletionApproved}
}

// DataSetPhasePending is the initial phase before a producing Task exists.
type DataSetPhasePending struct{}

// DataSetPhaseRunningTask mirrors a producing Task that has not yet
// succeeded.
type DataSetPhaseRunningTask struct {
	TaskName string `json:"taskName"`
}

// DataSetPhaseReady mirrors a producing Task that succeeded; the dataset's
// contents are available at its object-storage path.
type DataSetPhaseReady struct {
	TaskName string `json:"taskName"`
}

// DataSetPhaseFailed mirrors a producing Task that failed.
type DataSetPhaseFailed struct {
	TaskName string `json:"taskName"`
}

// DataSetPhase is a tagged union over the DataSet lifecycle states
// (spec.md §4.2 step 4 / §8 invariant 3).
type DataSetPhase struct {
	Pending    *DataSetPhasePending     `json:"-"`
	RunningTask *DataSetPhaseRunningTask `json:"-"`
	Ready      *DataSetPhaseReady       `json:"-"`
	Failed     *DataSetPhaseFailed      `json:"-"`
}

// NewDataSetPhasePending builds a Pending DataSetPhase.
func NewDataSetPhasePending() DataSetPhase { return DataSetPhase{Pending: &DataSetPhasePending{}} }

// NewDataSetPhaseRunningTask builds a RunningTask DataSetPhase.
func NewDataSetPhaseRunningTask(taskName string) DataSetPhase {
	return DataSetPhase{RunningTask: &DataSetPhaseRunningTask{TaskName: taskName}}
}

// NewDataSetPhaseReady builds a Ready DataSetPhase.
func NewDataSetPhaseReady(taskName string) DataSetPhase {
	return DataSetPhase{Ready: &DataSetPhaseReady{TaskName: taskName}}
}

// NewDataSetPhaseFailed builds a Failed DataSetPhase.
func NewDataSetPhaseFailed(taskName string) DataSetPhase {
	return DataSetPhase{Failed: &DataSetPhaseFailed{TaskName: taskName}}
}

// TaskName returns the producing task name carried by the
// RunningTask/Ready/Failed variants, or "" for Pending.
func (p DataSetPhase) TaskName() string {
	switch {
	case p.RunningTask != nil:
		return p.RunningTask.TaskName
	case p.Ready != nil:
		return p.Ready.TaskName
	case p.Failed != nil:
		return p.Failed.TaskName
	default:
		return ""
	}
}

// IsReady reports whether the phase is Ready.
func (p DataSetPhase) IsReady() bool { return p.Ready != nil }

// IsFailed reports whether the phase is Failed.
func (p DataSetPhase) IsFailed() bool { return p.Failed != nil }

// MarshalJSON implements the externally-tagged enum wire format.
func (p DataSetPhase) MarshalJSON() ([]byte, error) {
	return marshalTaggedSingleField(map[string]any{
		"Pending":     p.Pending,
		"RunningTask": p.RunningTask,
		"Ready":       p.Ready,
		"Failed":      p.Failed,
	})
}

// UnmarshalJSON implements the externally-tagged enum wire format.
func (p *DataSetPhase) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = DataSetPhase{}
	for k, v := range raw {
		switch k {
		case "Pending":
			p.Pending = &DataSetPhasePending{}
		case "RunningTask":
			var r DataSetPhaseRunningTask
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			p.RunningTask = &r
		case "Ready":
			var r DataSetPhaseReady
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			p.Ready = &r
		case "Failed":
			var r DataSetPhaseFailed
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			p.Failed = &r
		default:
			return fmt.Errorf("unknown data set phase variant %q", k)
		}
	}
	return nil
}

// DeepCopy returns a deep copy of the receiver.
func (p DataSetPhase) DeepCopy() DataSetPhase {
	out := DataSetPhase{}
	if p.Pending != nil {
		v := *p.Pending
		out.Pending = &v
	}
	if p.RunningTask != nil {
		v := *p.RunningTask
		out.RunningTask = &v
	}
	if p.Ready != nil {
		v := *p.Ready
		out.Ready = &v
	}
	if p.Failed != nil {
		v := *p.Failed
		out.Failed = &v
	}
	return out
}

// DataSetStatus is the observed state of a DataSet.
type DataSetStatus struct {
	Phase *DataSetPhase `json:"phase,omitempty"`
}

// DeepCopy returns a deep copy of the receiver.
func (s *DataSetStatus) DeepCopy() *DataSetStatus {
	if s == nil {
		return nil
	}
	out := &DataSetStatus{}
	if s.Phase != nil {
		p := s.Phase.DeepCopy()
		out.Phase = &p
	}
	return out
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:shortName=ds

// DataSet is a named, path-addressable artifact produced by a Task.
type DataSet struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   DataSetSpec   `json:"spec,omitempty"`
	Status DataSetStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// DataSetList is a list of DataSets.
type DataSetList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []DataSet `json:"items"`
}
