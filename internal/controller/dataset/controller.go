// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

// Package dataset implements DataSetReconciler (spec.md §4.2): it converts a
// DataSet's declared producing-task config into a running Task and mirrors
// the Task's phase back onto the DataSet. Grounded on
// `controller/src/data_set.rs`'s `generate_task`/`reconcile`.
package dataset

import (
	"context"
	"fmt"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/teainspace/ame/api/v1alpha1"
	"github.com/teainspace/ame/internal/ameerr"
	"github.com/teainspace/ame/internal/controller/common"
	"github.com/teainspace/ame/internal/controllerconfig"
	"github.com/teainspace/ame/internal/dataset"
	"github.com/teainspace/ame/internal/dependencyresolve"
)

const (
	// CleanupFinalizer blocks physical deletion until cleanup succeeds.
	CleanupFinalizer = "ame.teainspace.com/dataset-cleanup"
	// FieldManager partitions field ownership on the DataSet's status and
	// on the producing Task (spec.md §9).
	FieldManager = "datasets.ame.teainspace.com"
	// GitRepositoryAnnotation is set on a Project by ProjectSourceReconciler
	// (spec.md §4.4 step 2d) and propagated onto the producing Task's
	// source so it clones the same repository (spec.md §4.2 step 2).
	GitRepositoryAnnotation = "gitrepository"

	requeueInterval = 5 * time.Minute
)

// Reconciler reconciles a DataSet object.
type Reconciler struct {
	client.Client
	Scheme *runtime.Scheme
	Config controllerconfig.Config
}

// +kubebuilder:rbac:groups=ame.teainspace.com,resources=datasets,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups=ame.teainspace.com,resources=datasets/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=ame.teainspace.com,resources=datasets/finalizers,verbs=update
// +kubebuilder:rbac:groups=ame.teainspace.com,resources=tasks;projects,verbs=get;list;watch;create;update;patch

// Reconcile drives a DataSet toward having exactly one producing Task
// (spec.md §4.2).
func (r *Reconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	ds := &v1alpha1.DataSet{}
	if err := r.Get(ctx, req.NamespacedName, ds); err != nil {
		if apierrors.IsNotFound(err) {
			return ctrl.Result{}, nil
		}
		return ctrl.Result{}, err
	}

	return common.Reconcile(ctx, r.Client, ds, CleanupFinalizer,
		func(ctx context.Context) (ctrl.Result, error) { return r.apply(ctx, ds) },
		func(ctx context.Context) (ctrl.Result, error) { return r.cleanup(ctx, ds) },
	)
}

func (r *Reconciler) apply(ctx context.Context, ds *v1alpha1.DataSet) (ctrl.Result, error) {
	logger := log.FromContext(ctx).WithValues("dataSet", ds.Name)

	project, err := dependencyresolve.FindProject(ctx, r.Client, ds.Namespace, ds.Spec.Project)
	if err != nil {
		logger.Error(err, "resolving parent project")
		return r.failAndRequeue(ctx, ds, err)
	}

	task, err := r.generateTask(ds, project)
	if err != nil {
		logger.Error(err, "generating producing task")
		return r.failAndRequeue(ctx, ds, err)
	}

	existing := &v1alpha1.Task{}
	existingErr := r.Get(ctx, client.ObjectKeyFromObject(task), existing)

	// Unforced: the DataSet only ever creates or refreshes the cfg/source it
	// owns on the Task; it never contests fields TaskReconciler's own
	// field manager has taken (spec.md §9 distinct field managers).
	if err := r.Patch(ctx, task, client.Apply, client.FieldOwner(FieldManager)); err != nil {
		logger.Error(err, "applying producing task")
		return common.HandleError(ameerr.NewTransportError("kubernetes", err))
	}

	phase := v1alpha1.NewDataSetPhaseRunningTask(task.Name)
	if existingErr == nil {
		phase = deriveDataSetPhase(existing, task.Name)
	}
	ds.Status.Phase = &phase
	if err := r.Status().Update(ctx, ds); err != nil {
		return ctrl.Result{}, fmt.Errorf("updating data set status: %w", err)
	}

	return ctrl.Result{RequeueAfter: requeueInterval}, nil
}

// generateTask builds the producing Task for ds (spec.md §4.2 step 2).
func (r *Reconciler) generateTask(ds *v1alpha1.DataSet, project *v1alpha1.Project) (*v1alpha1.Task, error) {
	if ds.Spec.Cfg.Task == nil {
		return nil, ameerr.NewFatalMisconfigurationError(fmt.Sprintf("data set %q has no producing task cfg", ds.Name))
	}

	projectRef, ok := findOwnerRef(ds, "Project")
	if !ok {
		return nil, ameerr.NewFatalMisconfigurationError(fmt.Sprintf("data set %q carries no owner reference to its Project", ds.Name))
	}
	projectRef.Controller = boolPtr(false)
	projectRef.BlockOwnerDeletion = boolPtr(false)

	var source *v1alpha1.TaskSource
	if repo, ok := project.Annotations[GitRepositoryAnnotation]; ok && repo != "" {
		source = &v1alpha1.TaskSource{Git: &v1alpha1.TaskSourceGit{Repository: repo}}
	}

	taskName := dataset.ProducingTaskName(ds.Name, ds.Spec.Cfg.Task.Name)

	task := &v1alpha1.Task{
		TypeMeta: metav1.TypeMeta{APIVersion: v1alpha1.GroupVersion.String(), Kind: "Task"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      taskName,
			Namespace: ds.Namespace,
			OwnerReferences: []metav1.OwnerReference{
				{
					APIVersion:         v1alpha1.GroupVersion.String(),
					Kind:               "DataSet",
					Name:               ds.Name,
					UID:                ds.UID,
					Controller:         boolPtr(true),
					BlockOwnerDeletion: boolPtr(true),
				},
				projectRef,
			},
		},
		Spec: v1alpha1.TaskSpec{
			Cfg:     *ds.Spec.Cfg.Task.DeepCopy(),
			Source:  source,
			Project: project.Spec.Cfg.Name,
		},
	}
	return task, nil
}

func findOwnerRef(ds *v1alpha1.DataSet, kind string) (metav1.OwnerReference, bool) {
	for _, ref := range ds.OwnerReferences {
		if ref.Kind == kind {
			return ref, true
		}
	}
	return metav1.OwnerReference{}, false
}

// deriveDataSetPhase maps a producing Task's phase onto the DataSet's phase
// (spec.md §4.2 step 4, §8 invariant 3).
func deriveDataSetPhase(task *v1alpha1.Task, taskName string) v1alpha1.DataSetPhase {
	phase := task.Status.Phase
	switch {
	case phase != nil && phase.Succeeded != nil:
		return v1alpha1.NewDataSetPhaseReady(taskName)
	case phase != nil && phase.Failed != nil:
		return v1alpha1.NewDataSetPhaseFailed(taskName)
	default:
		return v1alpha1.NewDataSetPhaseRunningTask(taskName)
	}
}

func (r *Reconciler) failAndRequeue(ctx context.Context, ds *v1alpha1.DataSet, cause error) (ctrl.Result, error) {
	var lastTaskName string
	if ds.Status.Phase != nil {
		lastTaskName = ds.Status.Phase.TaskName()
	}
	phase := v1alpha1.NewDataSetPhaseFailed(lastTaskName)
	ds.Status.Phase = &phase
	if err := r.Status().Update(ctx, ds); err != nil {
		return ctrl.Result{}, fmt.Errorf("updating failed data set status: %w", err)
	}
	return common.HandleError(cause)
}

func (r *Reconciler) cleanup(ctx context.Context, ds *v1alpha1.DataSet) (ctrl.Result, error) {
	if !ds.Spec.DeletionApproved {
		return ctrl.Result{}, ameerr.NewDeletionBlockedError("DataSet", ds.Name)
	}
	return ctrl.Result{}, nil
}

func boolPtr(b bool) *bool { return &b }

// SetupWithManager wires the Reconciler to watch DataSets and their owned
// Tasks.
func (r *Reconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&v1alpha1.DataSet{}).
		Owns(&v1alpha1.Task{}).
		Named("dataset").
		Complete(r)
}
