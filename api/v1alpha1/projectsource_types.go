// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package v1alpha1

import (
	"encoding/json"
	"fmt"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// GitCfg declares the Git repository a ProjectSource mirrors (spec.md §3).
type GitCfg struct {
	Repository   string  `json:"repository"`
	Username     *string `json:"username,omitempty"`
	SecretRef    *string `json:"secretRef,omitempty"`
	SyncInterval *string `json:"syncInterval,omitempty"`
}

// DeepCopy returns a deep copy of the receiver.
func (g *GitCfg) DeepCopy() *GitCfg {
	if g == nil {
		return nil
	}
	out := &GitCfg{Repository: g.Repository}
	if g.Username != nil {
		v := *g.Username
		out.Username = &v
	}
	if g.SecretRef != nil {
		v := *g.SecretRef
		out.SecretRef = &v
	}
	if g.SyncInterval != nil {
		v := *g.SyncInterval
		out.SyncInterval = &v
	}
	return out
}

// ProjectSourceCfg is the user-declared content of a ProjectSource.
type ProjectSourceCfg struct {
	Git GitCfg `json:"git"`
}

// DeepCopy returns a deep copy of the receiver.
func (c *ProjectSourceCfg) DeepCopy() *ProjectSourceCfg {
	if c == nil {
		return nil
	}
	return &ProjectSourceCfg{Git: *c.Git.DeepCopy()}
}

// ProjectSourceSpec is the spec of the ProjectSource custom resource
// (spec.md §3).
type ProjectSourceSpec struct {
	Cfg              ProjectSourceCfg `json:"cfg"`
	DeletionApproved bool             `json:"deletionApproved,omitempty"`
}

// DeepCopy returns a deep copy of the receiver.
func (s *ProjectSourceSpec) DeepCopy() *ProjectSourceSpec {
	if s == nil {
		return nil
	}
	return &ProjectSourceSpec{Cfg: *s.Cfg.DeepCopy(), DeletionApproved: s.DeletionApproved}
}

// ProjectSourceStatePending is the initial state before the first sync.
type ProjectSourceStatePending struct{}

// ProjectSourceStateSynchronized marks a successful clone-and-parse cycle.
type ProjectSourceStateSynchronized struct{}

// ProjectSourceStateError marks a failed clone, missing ame.yaml, or parse
// failure; Reason carries the cause (spec.md §4.4 step 2b).
type ProjectSourceStateError struct {
	Reason string `json:"reason,omitempty"`
}

// ProjectSourceState is a tagged union over the ProjectSource sync states
// (spec.md §3).
type ProjectSourceState struct {
	Pending      *ProjectSourceStatePending      `json:"-"`
	Synchronized *ProjectSourceStateSynchronized `json:"-"`
	Error        *ProjectSourceStateError        `json:"-"`
}

// NewProjectSourceStatePending builds a Pending ProjectSourceState.
func NewProjectSourceStatePending() ProjectSourceState {
	return ProjectSourceState{Pending: &ProjectSourceStatePending{}}
}

// NewProjectSourceStateSynchronized builds a Synchronized ProjectSourceState.
func NewProjectSourceStateSynchronized() ProjectSourceState {
	return ProjectSourceState{Synchronized: &ProjectSourceStateSynchronized{}}
}

// NewProjectSourceStateError builds an Error ProjectSourceState.
func NewProjectSourceStateError(reason string) ProjectSourceState {
	return ProjectSourceState{Error: &ProjectSourceStateError{Reason: reason}}
}

// MarshalJSON implements the externally-tagged enum wire format.
func (s ProjectSourceState) MarshalJSON() ([]byte, error) {
	return marshalTaggedSingleField(map[string]any{
		"Pending":      s.Pending,
		"Synchronized": s.Synchronized,
		"Error":        s.Error,
	})
}

// UnmarshalJSON implements the externally-tagged enum wire format.
func (s *ProjectSourceState) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = ProjectSourceState{}
	for k, v := range raw {
		switch k {
		case "Pending":
			s.Pending = &ProjectSourceStatePending{}
		case "Synchronized":
			s.Synchronized = &ProjectSourceStateSynchronized{}
		case "Error":
			var r ProjectSourceStateError
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			s.Error = &r
		default:
			return fmt.Errorf("unknown project source state variant %q", k)
		}
	}
	return nil
}

// DeepCopy returns a deep copy of the receiver.
func (s ProjectSourceState) DeepCopy() ProjectSourceState {
	out := ProjectSourceState{}
	if s.Pending != nil {
		v := *s.Pending
		out.Pending = &v
	}
	if s.Synchronized != nil {
		v := *s.Synchronized
		out.Synchronized = &v
	}
	if s.Error != nil {
		v := *s.Error
		out.Error = &v
	}
	return out
}

// ProjectSourceStatus is the observed state of a ProjectSource (spec.md §3).
type ProjectSourceStatus struct {
	State      *ProjectSourceState `json:"state,omitempty"`
	LastSynced *metav1.Time        `json:"lastSynced,omitempty"`
	Reason     string              `json:"reason,omitempty"`
}

// DeepCopy returns a deep copy of the receiver.
func (s *ProjectSourceStatus) DeepCopy() *ProjectSourceStatus {
	if s == nil {
		return nil
	}
	out := &ProjectSourceStatus{Reason: s.Reason}
	if s.State != nil {
		st := s.State.DeepCopy()
		out.State = &st
	}
	if s.LastSynced != nil {
		t := s.LastSynced.DeepCopy()
		out.LastSynced = &t
	}
	return out
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:shortName=psrc

// ProjectSource mirrors a Git repository's ame.yaml into a Project.
type ProjectSource struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   ProjectSourceSpec   `json:"spec,omitempty"`
	Status ProjectSourceStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true

// ProjectSourceList is a list of ProjectSources.
type ProjectSourceList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []ProjectSource `json:"items"`
}
