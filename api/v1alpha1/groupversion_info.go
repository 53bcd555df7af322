// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

// Package v1alpha1 contains the AME custom resource API group
// ame.teainspace.com/v1alpha1: Project, Task, DataSet and ProjectSource.
// +kubebuilder:object:generate=true
// +groupName=ame.teainspace.com
package v1alpha1

import (
	"k8s.io/apimachinery/pkg/runtime/schema"
	"sigs.k8s.io/controller-runtime/pkg/scheme"
)

var (
	// GroupVersion is group version used to register these objects.
	GroupVersion = schema.GroupVersion{Group: "ame.teainspace.com", Version: "v1alpha1"}

	// SchemeBuilder is used to add go types to the GroupVersionKind scheme.
	SchemeBuilder = &scheme.Builder{GroupVersion: GroupVersion}

	// AddToScheme adds the types in this group-version to the given scheme.
	AddToScheme = SchemeBuilder.AddToScheme
)

func init() {
	SchemeBuilder.Register(
		&Project{}, &ProjectList{},
		&Task{}, &TaskList{},
		&DataSet{}, &DataSetList{},
		&ProjectSource{}, &ProjectSourceList{},
	)
}
