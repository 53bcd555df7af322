// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package workflowbuild

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/teainspace/ame/api/v1alpha1"
	"github.com/teainspace/ame/internal/argo"
)

// BuildCronWorkflow materializes the periodic-trigger object for a Task
// whose cfg.triggers.schedule is set, provided the owning Project has
// enableTriggers (spec.md §4.8, SPEC_FULL.md §4). The emitted CronWorkflow
// carries the same WorkflowSpec BuildTaskWorkflow would produce, so each
// scheduled run is indistinguishable from a manually-triggered Task.
func BuildCronWorkflow(task *v1alpha1.Task, cfg v1alpha1.TaskCfg, ctx TaskContext) (*argo.CronWorkflow, error) {
	wf, err := BuildTaskWorkflow(task, cfg, ctx)
	if err != nil {
		return nil, err
	}
	return &argo.CronWorkflow{
		ObjectMeta: metav1.ObjectMeta{
			Name:      task.Name + "-trigger",
			Namespace: task.Namespace,
			Labels:    map[string]string{"ame-task": cfg.Name},
		},
		Spec: argo.CronWorkflowSpec{
			Schedule:     cfg.Triggers.Schedule,
			WorkflowSpec: wf.Spec,
		},
	}, nil
}
