// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

// Package dependencyresolve implements the DependencyResolver (spec.md
// §4.5): resolving a Task's `cfg.dataSets[]` reference strings to unique
// DataSet objects, grounded on `lib/src/custom_resources/project.rs`'s
// `local_name`/`project_name` reference-splitting helpers and
// `controller/src/task.rs`'s dependency-gating loop.
package dependencyresolve

import (
	"context"
	"fmt"
	"strings"

	"sigs.k8s.io/controller-runtime/pkg/client"

	"k8s.io/apimachinery/pkg/types"

	"github.com/teainspace/ame/api/v1alpha1"
	"github.com/teainspace/ame/internal/ameerr"
)

// LocalName returns the unqualified data-set name from a reference of the
// form "name" or "projectName.name".
func LocalName(ref string) string {
	if idx := strings.LastIndex(ref, "."); idx >= 0 {
		return ref[idx+1:]
	}
	return ref
}

// ProjectName returns the owning project name encoded in a reference of the
// form "projectName.name", or parentProject when the reference carries no
// dot prefix.
func ProjectName(ref, parentProject string) string {
	if idx := strings.LastIndex(ref, "."); idx >= 0 {
		return ref[:idx]
	}
	return parentProject
}

// FindProject locates the unique Project named name in namespace, shared by
// TaskReconciler/DataSetReconciler whenever they need to
// look up a Project by its cfg name rather than its object name.
func FindProject(ctx context.Context, c client.Client, namespace, name string) (*v1alpha1.Project, error) {
	list := &v1alpha1.ProjectList{}
	if err := c.List(ctx, list, client.InNamespace(namespace)); err != nil {
		return nil, ameerr.NewTransportError("kubernetes", fmt.Errorf("listing projects: %w", err))
	}
	for i := range list.Items {
		if list.Items[i].Spec.Cfg.Name == name {
			return &list.Items[i], nil
		}
	}
	return nil, ameerr.MissingProject(name)
}

// Resolve locates the unique DataSet a reference names, scoped to the
// Project named by the reference (or parentProject when unqualified).
// (spec.md §4.5 steps 1-3).
func Resolve(ctx context.Context, c client.Client, namespace, ref, parentProject string) (*v1alpha1.DataSet, error) {
	localName := LocalName(ref)
	projectName := ProjectName(ref, parentProject)

	projectList := &v1alpha1.ProjectList{}
	if err := c.List(ctx, projectList, client.InNamespace(namespace)); err != nil {
		return nil, ameerr.NewTransportError("kubernetes", fmt.Errorf("listing projects: %w", err))
	}
	var project *v1alpha1.Project
	for i := range projectList.Items {
		if projectList.Items[i].Spec.Cfg.Name == projectName {
			project = &projectList.Items[i]
			break
		}
	}
	if project == nil {
		return nil, ameerr.MissingProject(projectName)
	}

	dataSetList := &v1alpha1.DataSetList{}
	if err := c.List(ctx, dataSetList, client.InNamespace(namespace)); err != nil {
		return nil, ameerr.NewTransportError("kubernetes", fmt.Errorf("listing data sets: %w", err))
	}
	var match *v1alpha1.DataSet
	for i := range dataSetList.Items {
		ds := &dataSetList.Items[i]
		if ds.Spec.Cfg.Name != localName {
			continue
		}
		if !ownedBy(ds, project.UID) {
			continue
		}
		match = ds
		break
	}
	if match == nil {
		return nil, ameerr.MissingDataSet(ref)
	}
	return match, nil
}

func ownedBy(ds *v1alpha1.DataSet, projectUID types.UID) bool {
	for _, ref := range ds.OwnerReferences {
		if ref.UID == projectUID {
			return true
		}
	}
	return false
}
