// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

// Package project implements ProjectReconciler (spec.md §4.3, §4.8): for
// each declared Model it drives auto-train → validate → deploy and
// maintains the model's serving surface, and it materializes the periodic
// trigger scheduler for Tasks with a cron schedule. Grounded on
// `controller/src/project.rs`'s model reconciliation loop.
package project

import (
	"errors"
	"fmt"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/util/intstr"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/yaml"

	"context"

	"github.com/teainspace/ame/api/v1alpha1"
	"github.com/teainspace/ame/internal/ameerr"
	"github.com/teainspace/ame/internal/argo"
	"github.com/teainspace/ame/internal/controller/common"
	"github.com/teainspace/ame/internal/controllerconfig"
	"github.com/teainspace/ame/internal/mlflow"
	"github.com/teainspace/ame/internal/templateresolve"
	"github.com/teainspace/ame/internal/workflowbuild"
)

const (
	// CleanupFinalizer blocks physical deletion until cleanup succeeds.
	CleanupFinalizer = "ame.teainspace.com/project-cleanup"
	// FieldManager partitions field ownership on the Project's status and
	// on children it synthesizes (spec.md §9).
	FieldManager = "projects.ame.teainspace.com"

	servingPort     = 5000
	requeueInterval = 5 * time.Minute
)

// Reconciler reconciles a Project object.
type Reconciler struct {
	client.Client
	Scheme *runtime.Scheme
	Config controllerconfig.Config
}

// +kubebuilder:rbac:groups=ame.teainspace.com,resources=projects,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups=ame.teainspace.com,resources=projects/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=ame.teainspace.com,resources=projects/finalizers,verbs=update
// +kubebuilder:rbac:groups=ame.teainspace.com,resources=tasks,verbs=get;list;watch;create;update;patch
// +kubebuilder:rbac:groups=apps,resources=deployments,verbs=get;list;watch;create;update;patch
// +kubebuilder:rbac:groups="",resources=services,verbs=get;list;watch;create;update;patch
// +kubebuilder:rbac:groups=networking.k8s.io,resources=ingresses,verbs=get;list;watch;create;update;patch
// +kubebuilder:rbac:groups=argoproj.io,resources=cronworkflows,verbs=get;list;watch;create;update;patch

// Reconcile drives a Project's declared Models through auto-train, validate
// and deploy, and materializes its trigger schedules (spec.md §4.3, §4.8).
func (r *Reconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	project := &v1alpha1.Project{}
	if err := r.Get(ctx, req.NamespacedName, project); err != nil {
		if apierrors.IsNotFound(err) {
			return ctrl.Result{}, nil
		}
		return ctrl.Result{}, err
	}

	return common.Reconcile(ctx, r.Client, project, CleanupFinalizer,
		func(ctx context.Context) (ctrl.Result, error) { return r.apply(ctx, project) },
		func(ctx context.Context) (ctrl.Result, error) { return r.cleanup(ctx, project) },
	)
}

func (r *Reconciler) apply(ctx context.Context, project *v1alpha1.Project) (ctrl.Result, error) {
	logger := log.FromContext(ctx).WithValues("project", project.Name)

	statuses := make([]v1alpha1.ModelStatus, 0, len(project.Spec.Cfg.Models))
	for i := range project.Spec.Cfg.Models {
		model := &project.Spec.Cfg.Models[i]
		status, err := r.reconcileModel(ctx, project, model)
		if err != nil {
			logger.Error(err, "reconciling model", "model", model.Name)
			continue
		}
		if status != nil {
			statuses = append(statuses, *status)
		}
	}
	project.Status.Models = statuses
	if err := r.Status().Update(ctx, project); err != nil {
		return ctrl.Result{}, fmt.Errorf("updating project status: %w", err)
	}

	if err := r.reconcileTriggers(ctx, project); err != nil {
		logger.Error(err, "reconciling trigger schedules")
		return common.HandleError(err)
	}

	return ctrl.Result{RequeueAfter: requeueInterval}, nil
}

// reconcileModel runs one Model through MLflow lookup → auto-train →
// validate → deploy (spec.md §4.3 steps 1-5).
func (r *Reconciler) reconcileModel(ctx context.Context, project *v1alpha1.Project, model *v1alpha1.ModelCfg) (*v1alpha1.ModelStatus, error) {
	if r.Config.MLflowURL == "" {
		return nil, nil
	}

	status := &v1alpha1.ModelStatus{Name: model.Name}
	mlflowClient := mlflow.NewClient(r.Config.MLflowURL)
	version, err := mlflowClient.LatestVersion(ctx, model.Name)
	var noVersions *mlflow.ErrNoVersions
	switch {
	case errors.As(err, &noVersions):
		if model.Deployment.AutoTrain && model.Deployment.Deploy {
			if err := r.applyGeneratedTask(ctx, project, trainingTaskName(project, model), model.Training.Task); err != nil {
				return status, err
			}
			trained := metav1.Now()
			status.LastTrained = &trained
		}
		return status, nil
	case err != nil:
		return status, ameerr.NewTransportError("mlflow", err)
	}

	v := version.Version
	status.LatestModelVersion = &v

	if model.ValidationTask == nil {
		return status, nil
	}

	validationName := fmt.Sprintf("validate-%s-%s", model.Name, version.Version)
	resolvedCfg, err := r.resolvedTaskCfg(ctx, project, *model.ValidationTask)
	if err != nil {
		return status, err
	}
	if resolvedCfg.Executor.IsEmpty() {
		return status, ameerr.MissingExecutor(validationName)
	}

	existing, err := r.applyTask(ctx, project, validationName, resolvedCfg)
	if err != nil {
		return status, err
	}

	if !validated(existing) {
		return status, nil
	}

	if err := r.reconcileServing(ctx, project, model, version); err != nil {
		return status, err
	}
	now := metav1.Now()
	status.LastDeployed = &now
	return status, nil
}

// validated implements DESIGN.md's Open Question decision: a validation
// Task is Validated once its Workflow succeeds; no extra status field is
// invented for a convention the original source never concretely defined.
func validated(task *v1alpha1.Task) bool {
	return task != nil && task.Status.Phase != nil && task.Status.Phase.Succeeded != nil
}

func trainingTaskName(project *v1alpha1.Project, model *v1alpha1.ModelCfg) string {
	return fmt.Sprintf("%s-%s-train", project.Spec.Cfg.Name, model.Name)
}

func scheduledTaskName(project *v1alpha1.Project, taskCfgName string) string {
	return fmt.Sprintf("%s-%s", project.Spec.Cfg.Name, taskCfgName)
}

// resolvedTaskCfg resolves an optional taskRef against the Project's
// tasks[] (spec.md §4.3 step 2) and then expands any fromTemplate
// (spec.md §4.6) before the caller inspects the result.
func (r *Reconciler) resolvedTaskCfg(ctx context.Context, project *v1alpha1.Project, cfg v1alpha1.TaskCfg) (v1alpha1.TaskCfg, error) {
	if cfg.TaskRef != nil {
		var found *v1alpha1.TaskCfg
		for i := range project.Spec.Cfg.Tasks {
			if project.Spec.Cfg.Tasks[i].Name == cfg.TaskRef.Name {
				found = &project.Spec.Cfg.Tasks[i]
				break
			}
		}
		if found == nil {
			return cfg, ameerr.NewFatalMisconfigurationError(fmt.Sprintf("MissingTask: no task named %q", cfg.TaskRef.Name))
		}
		cfg = *found.DeepCopy()
	}
	return templateresolve.Resolve(ctx, r.Client, project.Namespace, cfg, project)
}

// applyGeneratedTask resolves cfg and applies it as a Task named name,
// without requiring the caller to inspect the result (training path,
// spec.md §4.3 step 2).
func (r *Reconciler) applyGeneratedTask(ctx context.Context, project *v1alpha1.Project, name string, cfg v1alpha1.TaskCfg) error {
	resolved, err := r.resolvedTaskCfg(ctx, project, cfg)
	if err != nil {
		return err
	}
	_, err = r.applyTask(ctx, project, name, resolved)
	return err
}

// applyTask server-side-applies a Task named name owned by project, sourced
// from the Project's gitrepository annotation, and returns the
// previously-existing Task (if any) so callers can inspect its phase.
func (r *Reconciler) applyTask(ctx context.Context, project *v1alpha1.Project, name string, cfg v1alpha1.TaskCfg) (*v1alpha1.Task, error) {
	var source *v1alpha1.TaskSource
	if repo, ok := project.Annotations["gitrepository"]; ok && repo != "" {
		source = &v1alpha1.TaskSource{Git: &v1alpha1.TaskSourceGit{Repository: repo}}
	}

	task := &v1alpha1.Task{
		TypeMeta: metav1.TypeMeta{APIVersion: v1alpha1.GroupVersion.String(), Kind: "Task"},
		ObjectMeta: metav1.ObjectMeta{
			Name:            name,
			Namespace:       project.Namespace,
			OwnerReferences: []metav1.OwnerReference{projectOwnerRef(project, true)},
		},
		Spec: v1alpha1.TaskSpec{
			Cfg:     cfg,
			Source:  source,
			Project: project.Spec.Cfg.Name,
		},
	}

	existing := &v1alpha1.Task{}
	existingErr := r.Get(ctx, client.ObjectKeyFromObject(task), existing)

	if err := r.Patch(ctx, task, client.Apply, client.FieldOwner(FieldManager), client.ForceOwnership); err != nil {
		return nil, ameerr.NewTransportError("kubernetes", fmt.Errorf("applying task %q: %w", name, err))
	}
	if existingErr != nil {
		return nil, nil
	}
	return existing, nil
}

// reconcileServing builds the Deployment/Service/Ingress trio for a
// Validated model (spec.md §4.3 step 4-5).
func (r *Reconciler) reconcileServing(ctx context.Context, project *v1alpha1.Project, model *v1alpha1.ModelCfg, version *mlflow.ModelVersion) error {
	labels := map[string]string{"ame-model": model.Name}

	deployment, err := r.buildDeployment(project, model, version, labels)
	if err != nil {
		return err
	}
	if err := r.Patch(ctx, deployment, client.Apply, client.FieldOwner(FieldManager), client.ForceOwnership); err != nil {
		return ameerr.NewTransportError("kubernetes", fmt.Errorf("applying deployment %q: %w", deployment.Name, err))
	}

	service := buildService(project, model, labels)
	if err := r.Patch(ctx, service, client.Apply, client.FieldOwner(FieldManager), client.ForceOwnership); err != nil {
		return ameerr.NewTransportError("kubernetes", fmt.Errorf("applying service %q: %w", service.Name, err))
	}

	ingress := r.buildIngress(project, model, labels)
	if err := r.Patch(ctx, ingress, client.Apply, client.FieldOwner(FieldManager), client.ForceOwnership); err != nil {
		return ameerr.NewTransportError("kubernetes", fmt.Errorf("applying ingress %q: %w", ingress.Name, err))
	}
	return nil
}

func (r *Reconciler) buildDeployment(project *v1alpha1.Project, model *v1alpha1.ModelCfg, version *mlflow.ModelVersion, labels map[string]string) (*appsv1.Deployment, error) {
	replicas := int32(1)
	if model.Deployment.Replicas != nil {
		replicas = *model.Deployment.Replicas
	}
	image := r.Config.ExecutorImage
	if model.Deployment.Image != nil && *model.Deployment.Image != "" {
		image = *model.Deployment.Image
	}
	resources, err := model.Deployment.Resources.AsResourceRequirements()
	if err != nil {
		return nil, fmt.Errorf("resolving serving resources for model %q: %w", model.Name, err)
	}

	return &appsv1.Deployment{
		TypeMeta: metav1.TypeMeta{APIVersion: "apps/v1", Kind: "Deployment"},
		ObjectMeta: metav1.ObjectMeta{
			Name:            model.Name,
			Namespace:       project.Namespace,
			Labels:          labels,
			OwnerReferences: []metav1.OwnerReference{projectOwnerRef(project, false)},
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: labels},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{{
						Name:  model.Name,
						Image: image,
						Args:  []string{"mlflow", "models", "serve", "-m", version.Source, "--host", "0.0.0.0"},
						Env: []corev1.EnvVar{
							{Name: "MLFLOW_TRACKING_URI", Value: r.Config.MLflowURL},
						},
						Ports: []corev1.ContainerPort{{ContainerPort: servingPort}},
						ReadinessProbe: &corev1.Probe{
							ProbeHandler: corev1.ProbeHandler{
								HTTPGet: &corev1.HTTPGetAction{Path: "/health", Port: intstr.FromInt(servingPort)},
							},
						},
						Resources: corev1.ResourceRequirements{Limits: resources},
					}},
				},
			},
		},
	}, nil
}

func buildService(project *v1alpha1.Project, model *v1alpha1.ModelCfg, labels map[string]string) *corev1.Service {
	return &corev1.Service{
		TypeMeta: metav1.TypeMeta{APIVersion: "v1", Kind: "Service"},
		ObjectMeta: metav1.ObjectMeta{
			Name:            model.Name,
			Namespace:       project.Namespace,
			Labels:          labels,
			OwnerReferences: []metav1.OwnerReference{projectOwnerRef(project, false)},
		},
		Spec: corev1.ServiceSpec{
			Selector: labels,
			Ports:    []corev1.ServicePort{{Port: servingPort, TargetPort: intstr.FromInt(servingPort)}},
		},
	}
}

func (r *Reconciler) buildIngress(project *v1alpha1.Project, model *v1alpha1.ModelCfg, labels map[string]string) *networkingv1.Ingress {
	annotations := map[string]string{"nginx.ingress.kubernetes.io/rewrite-target": "/$2"}
	if r.Config.ModelDeploymentIngressAnnotations != "" {
		var extra map[string]string
		if err := yaml.Unmarshal([]byte(r.Config.ModelDeploymentIngressAnnotations), &extra); err == nil {
			for k, v := range extra {
				annotations[k] = v
			}
		}
	}
	for k, v := range model.Deployment.IngressAnnotations {
		annotations[k] = v
	}

	pathType := networkingv1.PathTypeImplementationSpecific
	path := fmt.Sprintf("/projects/%s/models/%s(/|$)(.*)", project.Spec.Cfg.Name, model.Name)

	spec := networkingv1.IngressSpec{
		IngressClassName: strPtr("nginx"),
		Rules: []networkingv1.IngressRule{{
			Host: r.Config.ModelIngressHost,
			IngressRuleValue: networkingv1.IngressRuleValue{
				HTTP: &networkingv1.HTTPIngressRuleValue{
					Paths: []networkingv1.HTTPIngressPath{{
						Path:     path,
						PathType: &pathType,
						Backend: networkingv1.IngressBackend{
							Service: &networkingv1.IngressServiceBackend{
								Name: model.Name,
								Port: networkingv1.ServiceBackendPort{Number: servingPort},
							},
						},
					}},
				},
			},
		}},
	}

	if model.Deployment.EnableTLS == nil || *model.Deployment.EnableTLS {
		spec.TLS = []networkingv1.IngressTLS{{Hosts: []string{r.Config.ModelIngressHost}, SecretName: model.Name + "-tls"}}
	}

	return &networkingv1.Ingress{
		TypeMeta: metav1.TypeMeta{APIVersion: "networking.k8s.io/v1", Kind: "Ingress"},
		ObjectMeta: metav1.ObjectMeta{
			Name:            model.Name,
			Namespace:       project.Namespace,
			Labels:          labels,
			Annotations:     annotations,
			OwnerReferences: []metav1.OwnerReference{projectOwnerRef(project, false)},
		},
		Spec: spec,
	}
}

// reconcileTriggers materializes a CronWorkflow-equivalent object for every
// Task config with a cron schedule, when the Project opts in
// (spec.md §4.8).
func (r *Reconciler) reconcileTriggers(ctx context.Context, project *v1alpha1.Project) error {
	if !project.Spec.Cfg.EnableTriggers {
		return nil
	}
	for i := range project.Spec.Cfg.Tasks {
		cfg := project.Spec.Cfg.Tasks[i]
		if cfg.Triggers == nil || cfg.Triggers.Schedule == "" {
			continue
		}

		resolved, err := templateresolve.Resolve(ctx, r.Client, project.Namespace, cfg, project)
		if err != nil {
			return err
		}

		task := &v1alpha1.Task{
			ObjectMeta: metav1.ObjectMeta{Name: scheduledTaskName(project, cfg.Name), Namespace: project.Namespace},
		}
		taskCtx := workflowbuild.TaskContext{
			ExecutorImage:  r.Config.ExecutorImage,
			ServiceAccount: r.Config.ServiceAccount,
			MLflowURL:      r.Config.MLflowURL,
			S3Region:       r.Config.S3Region,
			S3Endpoint:     r.Config.S3Endpoint,
			S3AccessIDKey:  r.Config.S3AccessID,
			S3SecretKey:    r.Config.S3Secret,
		}
		cron, err := workflowbuild.BuildCronWorkflow(task, resolved, taskCtx)
		if err != nil {
			return fmt.Errorf("building cron workflow for task %q: %w", cfg.Name, err)
		}
		cron.OwnerReferences = []metav1.OwnerReference{projectOwnerRef(project, true)}
		cron.TypeMeta = metav1.TypeMeta{APIVersion: "argoproj.io/v1alpha1", Kind: "CronWorkflow"}

		if err := r.Patch(ctx, cron, client.Apply, client.FieldOwner(FieldManager), client.ForceOwnership); err != nil {
			return ameerr.NewTransportError("kubernetes", fmt.Errorf("applying cron workflow %q: %w", cron.Name, err))
		}
	}
	return nil
}

func projectOwnerRef(project *v1alpha1.Project, controller bool) metav1.OwnerReference {
	return metav1.OwnerReference{
		APIVersion:         v1alpha1.GroupVersion.String(),
		Kind:               "Project",
		Name:               project.Name,
		UID:                project.UID,
		Controller:         boolPtr(controller),
		BlockOwnerDeletion: boolPtr(controller),
	}
}

func boolPtr(b bool) *bool { return &b }
func strPtr(s string) *string { return &s }

func (r *Reconciler) cleanup(ctx context.Context, project *v1alpha1.Project) (ctrl.Result, error) {
	if !project.Spec.DeletionApproved {
		return ctrl.Result{}, ameerr.NewDeletionBlockedError("Project", project.Name)
	}
	return ctrl.Result{}, nil
}

// SetupWithManager wires the Reconciler to watch Projects and their owned
// serving resources.
func (r *Reconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&v1alpha1.Project{}).
		Owns(&appsv1.Deployment{}).
		Owns(&corev1.Service{}).
		Owns(&networkingv1.Ingress{}).
		Owns(&v1alpha1.Task{}).
		Owns(&argo.CronWorkflow{}).
		Named("project").
		Complete(r)
}
