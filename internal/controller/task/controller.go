// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

// Package task implements TaskReconciler (spec.md §4.1): it gates on a
// Task's DataSet dependencies, resolves templates, synthesizes an Argo
// Workflow, and mirrors the Workflow's phase back onto the Task. Grounded on
// `controller/src/task.rs`'s `reconcile`/`apply`/`cleanup` and the teacher's
// `internal/controller/build/controller.go` Reconciler shape.
package task

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
	"github.com/teainspace/ame/internal/argo"
	"github.com/teainspace/ame/internal/controller/common"
	"github.com/teainspace/ame/internal/controllerconfig"
	"github.com/teainspace/ame/internal/dataset"
	"github.com/teainspace/ame/internal/dependencyresolve"
	"github.com/teainspace/ame/internal/templateresolve"
	"github.com/teainspace/ame/internal/workflowbuild"
	"github.com/teainspace/ame/pkg/hash"
)

const (
	// CleanupFinalizer blocks physical deletion until cleanup succeeds
	// (spec.md §4.1 cleanup, §9 "Finalizer helper").
	CleanupFinalizer = "ame.teainspace.com/task-cleanup"
	// FieldManager partitions Workflow field ownership (spec.md §9).
	FieldManager = "tasks.ame.teainspace.com"

	dependencyNotReadyRequeue = 10 * time.Second
	successRequeue            = 60 * time.Second
)

// Reconciler reconciles a Task object.
type Reconciler struct {
	client.Client
	Scheme *runtime.Scheme
	Config controllerconfig.Config
}

// +kubebuilder:rbac:groups=ame.teainspace.com,resources=tasks,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups=ame.teainspace.com,resources=tasks/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=ame.teainspace.com,resources=tasks/finalizers,verbs=update
// +kubebuilder:rbac:groups=ame.teainspace.com,resources=projects;datasets,verbs=get;list;watch
// +kubebuilder:rbac:groups=argoproj.io,resources=workflows,verbs=get;list;watch;create;update;patch;delete

// Reconcile drives a Task toward having exactly one Argo Workflow realizing
// it (spec.md §4.1).
func (r *Reconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	task := &v1alpha1.Task{}
	if err := r.Get(ctx, req.NamespacedName, task); err != nil {
		if apierrors.IsNotFound(err) {
			return ctrl.Result{}, nil
		}
		return ctrl.Result{}, err
	}

	return common.Reconcile(ctx, r.Client, task, CleanupFinalizer,
		func(ctx context.Context) (ctrl.Result, error) { return r.apply(ctx, task) },
		func(ctx context.Context) (ctrl.Result, error) { return r.cleanup(ctx, task) },
	)
}

func (r *Reconciler) apply(ctx context.Context, task *v1alpha1.Task) (ctrl.Result, error) {
	logger := log.FromContext(ctx).WithValues("task", task.Name)

	project, err := r.parentProject(ctx, task)
	if err != nil {
		logger.Error(err, "resolving parent project")
		return r.failAndRequeue(ctx, task, err)
	}

	deps, res, err := r.resolveDependencies(ctx, task, project)
	if err != nil || res != nil {
		if err != nil {
			return r.failAndRequeue(ctx, task, err)
		}
		return *res, nil
	}

	resolvedCfg, err := templateresolve.Resolve(ctx, r.Client, task.Namespace, task.Spec.Cfg, project)
	if err != nil {
		logger.Error(err, "resolving template")
		return r.failAndRequeue(ctx, task, err)
	}

	if resolvedCfg.Executor.IsEmpty() {
		return r.failAndRequeue(ctx, task, ameerr.MissingExecutor(task.Name))
	}

	taskCtx := workflowbuild.TaskContext{
		ExecutorImage:    r.Config.ExecutorImage,
		ServiceAccount:   r.Config.ServiceAccount,
		MLflowURL:        r.Config.MLflowURL,
		S3Region:         r.Config.S3Region,
		S3Endpoint:       r.Config.S3Endpoint,
		S3AccessIDKey:    r.Config.S3AccessID,
		S3SecretKey:      r.Config.S3Secret,
		Dependencies:     deps,
	}

	wf, err := workflowbuild.BuildTaskWorkflow(task, resolvedCfg, taskCtx)
	if err != nil {
		logger.Error(err, "building workflow")
		return r.failAndRequeue(ctx, task, err)
	}
	wf.OwnerReferences = append(wf.OwnerReferences, taskOwnerRef(task, true))

	existing := &argo.Workflow{}
	existingErr := r.Get(ctx, client.ObjectKeyFromObject(wf), existing)

	wf.TypeMeta = metav1.TypeMeta{APIVersion: "argoproj.io/v1alpha1", Kind: "Workflow"}
	if existingErr == nil && hash.Equal(wf.Spec, existing.Spec) {
		logger.V(1).Info("workflow spec unchanged, skipping patch", "workflow", wf.Name)
	} else if err := r.Patch(ctx, wf, client.Apply, client.FieldOwner(FieldManager), client.ForceOwnership); err != nil {
		logger.Error(err, "applying workflow")
		return common.HandleError(ameerr.NewTransportError("kubernetes", err))
	}

	phase := v1alpha1.NewTaskPhaseRunning(wf.Name)
	if existingErr == nil {
		phase = derivePhase(existing, wf.Name)
	}

	task.Status.Phase = &phase
	if err := r.Status().Update(ctx, task); err != nil {
		return ctrl.Result{}, fmt.Errorf("updating task status: %w", err)
	}

	return ctrl.Result{RequeueAfter: successRequeue}, nil
}

// resolveDependencies resolves every cfg.dataSets[] reference. It returns a
// non-nil *ctrl.Result when the caller should stop and requeue without
// building a workflow (spec.md §4.1 steps 2-3): a not-ready dependency, or a
// newly-synthesized DataSet that cannot possibly be ready yet.
func (r *Reconciler) resolveDependencies(ctx context.Context, task *v1alpha1.Task, project *v1alpha1.Project) ([]workflowbuild.ResolvedDependency, *ctrl.Result, error) {
	logger := log.FromContext(ctx).WithValues("task", task.Name)
	deps := make([]workflowbuild.ResolvedDependency, 0, len(task.Spec.Cfg.DataSets))

	for _, ref := range task.Spec.Cfg.DataSets {
		ds, err := dependencyresolve.Resolve(ctx, r.Client, task.Namespace, ref, task.Spec.Project)
		if err != nil {
			if ameerr.IsMissingDataSet(err) {
				created, synthErr := r.synthesizeDataSet(ctx, task, project, ref)
				if synthErr != nil {
					return nil, nil, synthErr
				}
				logger.Info("synthesized dependency data set", "dataSet", created.Name)
				res := ctrl.Result{RequeueAfter: dependencyNotReadyRequeue}
				return nil, &res, nil
			}
			return nil, nil, err
		}

		phase := ds.Status.Phase
		switch {
		case phase == nil || phase.Pending != nil || phase.RunningTask != nil:
			res := ctrl.Result{RequeueAfter: dependencyNotReadyRequeue}
			return nil, &res, nil
		case phase.Failed != nil:
			return nil, nil, ameerr.NewDependencyNotReadyError(ds.Spec.Cfg.Name, "Failed")
		case phase.Ready != nil:
			deps = append(deps, workflowbuild.ResolvedDependency{
				ProducingTaskName: phase.Ready.TaskName,
				Path:              ds.Spec.Cfg.Path,
			})
		}
	}

	return deps, nil, nil
}

// synthesizeDataSet builds the DataSet named by ref from project's catalog,
// owned by both project (so DependencyResolver's owner-reference filter
// finds it) and task (spec.md §4.1 step 3, §9 cyclic-ownership note: only
// one oref may carry controller=true).
func (r *Reconciler) synthesizeDataSet(ctx context.Context, task *v1alpha1.Task, project *v1alpha1.Project, ref string) (*v1alpha1.DataSet, error) {
	localName := dependencyresolve.LocalName(ref)

	var cfg *v1alpha1.DataSetCfg
	for i := range project.Spec.Cfg.DataSets {
		if project.Spec.Cfg.DataSets[i].Name == localName {
			cfg = &project.Spec.Cfg.DataSets[i]
			break
		}
	}
	if cfg == nil {
		return nil, ameerr.MissingDataSet(ref)
	}

	ds := &v1alpha1.DataSet{
		TypeMeta: metav1.TypeMeta{APIVersion: v1alpha1.GroupVersion.String(), Kind: "DataSet"},
		ObjectMeta: metav1.ObjectMeta{
			Name:      dataset.ObjectName(project.Spec.Cfg.Name, cfg.Name),
			Namespace: task.Namespace,
			OwnerReferences: []metav1.OwnerReference{
				{
					APIVersion: v1alpha1.GroupVersion.String(),
					Kind:       "Project",
					Name:       project.Name,
					UID:        project.UID,
					Controller: boolPtr(true),
				},
				taskOwnerRef(task, false),
			},
		},
		Spec: v1alpha1.DataSetSpec{
			Cfg:     *cfg.DeepCopy(),
			Project: project.Spec.Cfg.Name,
		},
	}

	if err := r.Patch(ctx, ds, client.Apply, client.FieldOwner(FieldManager), client.ForceOwnership); err != nil {
		return nil, ameerr.NewTransportError("kubernetes", fmt.Errorf("synthesizing data set %q: %w", ref, err))
	}
	return ds, nil
}

func (r *Reconciler) parentProject(ctx context.Context, task *v1alpha1.Task) (*v1alpha1.Project, error) {
	if task.Spec.Project == "" {
		return nil, ameerr.NewFatalMisconfigurationError(fmt.Sprintf("task %q has no parent project reference", task.Name))
	}
	return dependencyresolve.FindProject(ctx, r.Client, task.Namespace, task.Spec.Project)
}

// failAndRequeue drives phase to Failed (spec.md §7 "Fatal misconfiguration")
// and maps the error through the shared requeue policy.
func (r *Reconciler) failAndRequeue(ctx context.Context, task *v1alpha1.Task, cause error) (ctrl.Result, error) {
	var lastWorkflowName string
	if task.Status.Phase != nil {
		lastWorkflowName = task.Status.Phase.WorkflowName()
	}
	phase := v1alpha1.NewTaskPhaseFailed(lastWorkflowName, cause.Error())
	task.Status.Phase = &phase
	if err := r.Status().Update(ctx, task); err != nil {
		return ctrl.Result{}, fmt.Errorf("updating failed task status: %w", err)
	}
	return common.HandleError(cause)
}

// derivePhase maps an existing Workflow's status onto the Task's phase
// (spec.md §4.1 step 6).
func derivePhase(wf *argo.Workflow, name string) v1alpha1.TaskPhase {
	switch wf.Status.Phase {
	case argo.WorkflowSucceeded:
		return v1alpha1.NewTaskPhaseSucceeded(name)
	case argo.WorkflowFailed:
		return v1alpha1.NewTaskPhaseFailed(name, wf.Status.Message)
	default:
		// Pending, Running, Error, or absent (just-created): spec.md §4.1
		// step 6 maps all of these to Running, optimistic until a terminal
		// phase is observed.
		return v1alpha1.NewTaskPhaseRunning(name)
	}
}

func (r *Reconciler) cleanup(ctx context.Context, task *v1alpha1.Task) (ctrl.Result, error) {
	if !task.Spec.DeletionApproved {
		return ctrl.Result{}, ameerr.NewDeletionBlockedError("Task", task.Name)
	}
	return ctrl.Result{}, nil
}

func taskOwnerRef(task *v1alpha1.Task, controller bool) metav1.OwnerReference {
	return metav1.OwnerReference{
		APIVersion:         v1alpha1.GroupVersion.String(),
		Kind:               "Task",
		Name:               task.Name,
		UID:                task.UID,
		Controller:         boolPtr(controller),
		BlockOwnerDeletion: boolPtr(controller),
	}
}

func boolPtr(b bool) *bool { return &b }

// SetupWithManager wires the Reconciler to watch Tasks and their owned
// Workflows.
func (r *Reconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&v1alpha1.Task{}).
		Owns(&argo.Workflow{}).
		Named("task").
		Complete(r)
}
