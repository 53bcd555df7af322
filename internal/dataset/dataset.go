// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

// Package dataset holds the small DataSet-shaped helpers shared between
// DataSetReconciler and TaskReconciler: the producing-task naming
// convention and the DataSet object naming (spec.md §4.2), grounded on
// `data_set.rs`'s `generate_task`. The Task-phase-to-DataSet-phase mapping
// lives in internal/controller/dataset (deriveDataSetPhase).
package dataset

import "strings"

// ProducingTaskName returns the name of the Task a DataSet spawns to
// materialize itself: the DataSet's own (already project-qualified) object
// name concatenated with its producing task config's name, with underscores
// normalized to hyphens to stay a valid Kubernetes object name (SPEC_FULL.md
// §4). Callers must pass the DataSet's object name (e.g. ds.Name), not its
// bare cfg name, or same-named DataSets in different Projects collide.
func ProducingTaskName(dataSetObjectName, taskCfgName string) string {
	return strings.ReplaceAll(dataSetObjectName+taskCfgName, "_", "-")
}

// ObjectName returns the Kubernetes object name for a DataSet synthesized
// from a Project's catalog entry, namespacing the dataset's config name
// under its owning project's config name so that two projects can each
// declare a data set called the same thing without colliding.
func ObjectName(projectCfgName, dataSetCfgName string) string {
	return strings.ReplaceAll(projectCfgName+"-"+dataSetCfgName, "_", "-")
}
