// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package project

import (
	"fmt"
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"

	"github.com/teainspace/ame/api/v1alpha1"
	"github.com/teainspace/ame/internal/argo"
	"github.com/teainspace/ame/internal/controllerconfig"
)

var _ = Describe("Project Controller", func() {
	const namespace = "default"

	newProject := func(name string) *v1alpha1.Project {
		return &v1alpha1.Project{
			ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
			Spec:       v1alpha1.ProjectSpec{Cfg: v1alpha1.ProjectCfg{Name: name}},
		}
	}

	It("adds the cleanup finalizer before doing any other work", func() {
		p := newProject("proj")
		c := newFakeClient(p)
		r := &Reconciler{Client: c, Scheme: testScheme}

		_, err := r.Reconcile(ctx, reconcile.Request{NamespacedName: types.NamespacedName{Name: p.Name, Namespace: namespace}})
		Expect(err).NotTo(HaveOccurred())

		got := &v1alpha1.Project{}
		Expect(c.Get(ctx, types.NamespacedName{Name: p.Name, Namespace: namespace}, got)).To(Succeed())
		Expect(got.Finalizers).To(ContainElement(CleanupFinalizer))
	})

	It("skips model reconciliation entirely when no MLflow URL is configured", func() {
		p := newProject("proj")
		p.Finalizers = []string{CleanupFinalizer}
		p.Spec.Cfg.Models = []v1alpha1.ModelCfg{{Name: "logreg"}}
		c := newFakeClient(p)
		r := &Reconciler{Client: c, Scheme: testScheme, Config: controllerconfig.Config{Namespace: namespace, ExecutorImage: "img"}}

		_, err := r.Reconcile(ctx, reconcile.Request{NamespacedName: types.NamespacedName{Name: p.Name, Namespace: namespace}})
		Expect(err).NotTo(HaveOccurred())

		got := &v1alpha1.Project{}
		Expect(c.Get(ctx, types.NamespacedName{Name: p.Name, Namespace: namespace}, got)).To(Succeed())
		Expect(got.Status.Models).To(BeEmpty())
	})

	It("materializes a CronWorkflow for a task with a cron schedule when triggers are enabled", func() {
		p := newProject("proj")
		p.Finalizers = []string{CleanupFinalizer}
		p.Spec.Cfg.EnableTriggers = true
		p.Spec.Cfg.Tasks = []v1alpha1.TaskCfg{
			{
				Name:     "nightly",
				Executor: &v1alpha1.Executor{Mlflow: &v1alpha1.ExecutorMlflow{}},
				Triggers: &v1alpha1.Triggers{Schedule: "0 2 * * *"},
			},
		}
		c := newFakeClient(p)
		r := &Reconciler{Client: c, Scheme: testScheme, Config: controllerconfig.Config{Namespace: namespace, ExecutorImage: "img", ServiceAccount: "ame-task"}}

		_, err := r.Reconcile(ctx, reconcile.Request{NamespacedName: types.NamespacedName{Name: p.Name, Namespace: namespace}})
		Expect(err).NotTo(HaveOccurred())

		list := &argo.CronWorkflowList{}
		Expect(c.List(ctx, list)).To(Succeed())
		Expect(list.Items).To(HaveLen(1))
		Expect(list.Items[0].Spec.Schedule).To(Equal("0 2 * * *"))
	})

	It("does not materialize any CronWorkflow when triggers are disabled", func() {
		p := newProject("proj")
		p.Finalizers = []string{CleanupFinalizer}
		p.Spec.Cfg.Tasks = []v1alpha1.TaskCfg{
			{
				Name:     "nightly",
				Executor: &v1alpha1.Executor{Mlflow: &v1alpha1.ExecutorMlflow{}},
				Triggers: &v1alpha1.Triggers{Schedule: "0 2 * * *"},
			},
		}
		c := newFakeClient(p)
		r := &Reconciler{Client: c, Scheme: testScheme, Config: controllerconfig.Config{Namespace: namespace, ExecutorImage: "img"}}

		_, err := r.Reconcile(ctx, reconcile.Request{NamespacedName: types.NamespacedName{Name: p.Name, Namespace: namespace}})
		Expect(err).NotTo(HaveOccurred())

		list := &argo.CronWorkflowList{}
		Expect(c.List(ctx, list)).To(Succeed())
		Expect(list.Items).To(BeEmpty())
	})

	It("blocks deletion until spec.deletionApproved is set", func() {
		p := newProject("proj")
		p.Finalizers = []string{CleanupFinalizer}
		now := metav1.Now()
		p.DeletionTimestamp = &now

		c := newFakeClient(p)
		r := &Reconciler{Client: c, Scheme: testScheme}

		res, err := r.Reconcile(ctx, reconcile.Request{NamespacedName: types.NamespacedName{Name: p.Name, Namespace: namespace}})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.RequeueAfter).To(BeNumerically(">", 0))

		got := &v1alpha1.Project{}
		Expect(c.Get(ctx, types.NamespacedName{Name: p.Name, Namespace: namespace}, got)).To(Succeed())
		Expect(got.Finalizers).To(ContainElement(CleanupFinalizer))
	})
})

// mlflowStub stands in for MLflow's get-latest-versions endpoint, following
// the same real-httptest.Server pattern internal/mlflow/client_test.go uses
// rather than a mock library.
func mlflowStub(versions string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(versions))
	}))
}

var _ = Describe("reconcileModel", func() {
	const namespace = "default"

	newProject := func(name string) *v1alpha1.Project {
		return &v1alpha1.Project{
			ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
			Spec:       v1alpha1.ProjectSpec{Cfg: v1alpha1.ProjectCfg{Name: name}},
		}
	}

	newModel := func() v1alpha1.ModelCfg {
		return v1alpha1.ModelCfg{
			Name: "logreg",
			Training: v1alpha1.TrainingCfg{
				Task: v1alpha1.TaskCfg{Name: "train", Executor: &v1alpha1.Executor{Mlflow: &v1alpha1.ExecutorMlflow{}}},
			},
		}
	}

	It("auto-trains and stamps LastTrained when MLflow has no registered version yet", func() {
		srv := mlflowStub(`{"model_versions": []}`)
		defer srv.Close()

		model := newModel()
		model.Deployment = v1alpha1.DeploymentCfg{AutoTrain: true, Deploy: true}

		p := newProject("proj")
		p.Finalizers = []string{CleanupFinalizer}
		p.Spec.Cfg.Models = []v1alpha1.ModelCfg{model}

		c := newFakeClient(p)
		r := &Reconciler{Client: c, Scheme: testScheme, Config: controllerconfig.Config{Namespace: namespace, ExecutorImage: "img", MLflowURL: srv.URL}}

		_, err := r.Reconcile(ctx, reconcile.Request{NamespacedName: types.NamespacedName{Name: p.Name, Namespace: namespace}})
		Expect(err).NotTo(HaveOccurred())

		got := &v1alpha1.Project{}
		Expect(c.Get(ctx, types.NamespacedName{Name: p.Name, Namespace: namespace}, got)).To(Succeed())
		Expect(got.Status.Models).To(HaveLen(1))
		Expect(got.Status.Models[0].LastTrained).NotTo(BeNil())
		Expect(got.Status.Models[0].LatestModelVersion).To(BeNil())

		task := &v1alpha1.Task{}
		Expect(c.Get(ctx, types.NamespacedName{Name: trainingTaskName(p, &model), Namespace: namespace}, task)).To(Succeed())
	})

	It("does not auto-train when MLflow has no version and AutoTrain is off", func() {
		srv := mlflowStub(`{"model_versions": []}`)
		defer srv.Close()

		model := newModel()

		p := newProject("proj")
		p.Finalizers = []string{CleanupFinalizer}
		p.Spec.Cfg.Models = []v1alpha1.ModelCfg{model}

		c := newFakeClient(p)
		r := &Reconciler{Client: c, Scheme: testScheme, Config: controllerconfig.Config{Namespace: namespace, ExecutorImage: "img", MLflowURL: srv.URL}}

		_, err := r.Reconcile(ctx, reconcile.Request{NamespacedName: types.NamespacedName{Name: p.Name, Namespace: namespace}})
		Expect(err).NotTo(HaveOccurred())

		got := &v1alpha1.Project{}
		Expect(c.Get(ctx, types.NamespacedName{Name: p.Name, Namespace: namespace}, got)).To(Succeed())
		Expect(got.Status.Models).To(HaveLen(1))
		Expect(got.Status.Models[0].LastTrained).To(BeNil())

		task := &v1alpha1.Task{}
		err = c.Get(ctx, types.NamespacedName{Name: trainingTaskName(p, &model), Namespace: namespace}, task)
		Expect(err).To(HaveOccurred())
	})

	It("records the latest registered version and stops once a model has no validation task", func() {
		srv := mlflowStub(`{"model_versions": [{"name": "logreg", "version": "3", "creation_timestamp": 100, "source": "s3://bucket/model"}]}`)
		defer srv.Close()

		model := newModel()

		p := newProject("proj")
		p.Finalizers = []string{CleanupFinalizer}
		p.Spec.Cfg.Models = []v1alpha1.ModelCfg{model}

		c := newFakeClient(p)
		r := &Reconciler{Client: c, Scheme: testScheme, Config: controllerconfig.Config{Namespace: namespace, ExecutorImage: "img", MLflowURL: srv.URL}}

		_, err := r.Reconcile(ctx, reconcile.Request{NamespacedName: types.NamespacedName{Name: p.Name, Namespace: namespace}})
		Expect(err).NotTo(HaveOccurred())

		got := &v1alpha1.Project{}
		Expect(c.Get(ctx, types.NamespacedName{Name: p.Name, Namespace: namespace}, got)).To(Succeed())
		Expect(got.Status.Models).To(HaveLen(1))
		Expect(got.Status.Models[0].LatestModelVersion).NotTo(BeNil())
		Expect(*got.Status.Models[0].LatestModelVersion).To(Equal("3"))
		Expect(got.Status.Models[0].LastDeployed).To(BeNil())
	})

	It("fails the model (and omits it from status) when the validation task resolves with no executor", func() {
		srv := mlflowStub(`{"model_versions": [{"name": "logreg", "version": "3", "creation_timestamp": 100, "source": "s3://bucket/model"}]}`)
		defer srv.Close()

		model := newModel()
		model.ValidationTask = &v1alpha1.TaskCfg{Name: "validate"}

		p := newProject("proj")
		p.Finalizers = []string{CleanupFinalizer}
		p.Spec.Cfg.Models = []v1alpha1.ModelCfg{model}

		c := newFakeClient(p)
		r := &Reconciler{Client: c, Scheme: testScheme, Config: controllerconfig.Config{Namespace: namespace, ExecutorImage: "img", MLflowURL: srv.URL}}

		_, err := r.Reconcile(ctx, reconcile.Request{NamespacedName: types.NamespacedName{Name: p.Name, Namespace: namespace}})
		Expect(err).NotTo(HaveOccurred())

		got := &v1alpha1.Project{}
		Expect(c.Get(ctx, types.NamespacedName{Name: p.Name, Namespace: namespace}, got)).To(Succeed())
		Expect(got.Status.Models).To(BeEmpty())
	})

	It("applies the validation task but does not deploy before it succeeds", func() {
		srv := mlflowStub(`{"model_versions": [{"name": "logreg", "version": "3", "creation_timestamp": 100, "source": "s3://bucket/model"}]}`)
		defer srv.Close()

		model := newModel()
		model.ValidationTask = &v1alpha1.TaskCfg{Name: "validate", Executor: &v1alpha1.Executor{Mlflow: &v1alpha1.ExecutorMlflow{}}}

		p := newProject("proj")
		p.Finalizers = []string{CleanupFinalizer}
		p.Spec.Cfg.Models = []v1alpha1.ModelCfg{model}

		c := newFakeClient(p)
		r := &Reconciler{Client: c, Scheme: testScheme, Config: controllerconfig.Config{Namespace: namespace, ExecutorImage: "img", MLflowURL: srv.URL, ModelIngressHost: "models.example.com"}}

		_, err := r.Reconcile(ctx, reconcile.Request{NamespacedName: types.NamespacedName{Name: p.Name, Namespace: namespace}})
		Expect(err).NotTo(HaveOccurred())

		validationTask := &v1alpha1.Task{}
		validationName := fmt.Sprintf("validate-%s-%s", model.Name, "3")
		Expect(c.Get(ctx, types.NamespacedName{Name: validationName, Namespace: namespace}, validationTask)).To(Succeed())

		got := &v1alpha1.Project{}
		Expect(c.Get(ctx, types.NamespacedName{Name: p.Name, Namespace: namespace}, got)).To(Succeed())
		Expect(got.Status.Models[0].LastDeployed).To(BeNil())

		deployment := &appsv1.Deployment{}
		err = c.Get(ctx, types.NamespacedName{Name: model.Name, Namespace: namespace}, deployment)
		Expect(err).To(HaveOccurred())
	})

	It("deploys a Deployment/Service/Ingress trio once the validation task has succeeded", func() {
		srv := mlflowStub(`{"model_versions": [{"name": "logreg", "version": "3", "creation_timestamp": 100, "source": "s3://bucket/model"}]}`)
		defer srv.Close()

		model := newModel()
		model.ValidationTask = &v1alpha1.TaskCfg{Name: "validate", Executor: &v1alpha1.Executor{Mlflow: &v1alpha1.ExecutorMlflow{}}}

		p := newProject("proj")
		p.Finalizers = []string{CleanupFinalizer}
		p.Spec.Cfg.Models = []v1alpha1.ModelCfg{model}

		validationName := fmt.Sprintf("validate-%s-%s", model.Name, "3")
		succeeded := v1alpha1.NewTaskPhaseSucceeded("wf-1")
		existingValidation := &v1alpha1.Task{
			ObjectMeta: metav1.ObjectMeta{Name: validationName, Namespace: namespace},
			Spec:       v1alpha1.TaskSpec{Cfg: *model.ValidationTask},
		}
		existingValidation.Status.Phase = &succeeded

		c := newFakeClient(p, existingValidation)
		r := &Reconciler{Client: c, Scheme: testScheme, Config: controllerconfig.Config{Namespace: namespace, ExecutorImage: "img", MLflowURL: srv.URL, ModelIngressHost: "models.example.com"}}

		_, err := r.Reconcile(ctx, reconcile.Request{NamespacedName: types.NamespacedName{Name: p.Name, Namespace: namespace}})
		Expect(err).NotTo(HaveOccurred())

		got := &v1alpha1.Project{}
		Expect(c.Get(ctx, types.NamespacedName{Name: p.Name, Namespace: namespace}, got)).To(Succeed())
		Expect(got.Status.Models).To(HaveLen(1))
		Expect(got.Status.Models[0].LastDeployed).NotTo(BeNil())

		deployment := &appsv1.Deployment{}
		Expect(c.Get(ctx, types.NamespacedName{Name: model.Name, Namespace: namespace}, deployment)).To(Succeed())
		Expect(deployment.Spec.Template.Spec.Containers[0].Args).To(ContainElement("s3://bucket/model"))

		service := &corev1.Service{}
		Expect(c.Get(ctx, types.NamespacedName{Name: model.Name, Namespace: namespace}, service)).To(Succeed())

		ingress := &networkingv1.Ingress{}
		Expect(c.Get(ctx, types.NamespacedName{Name: model.Name, Namespace: namespace}, ingress)).To(Succeed())
		Expect(ingress.Spec.Rules[0].Host).To(Equal("models.example.com"))
	})
})
