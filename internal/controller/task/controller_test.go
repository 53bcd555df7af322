// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"

	"github.com/teainspace/ame/api/v1alpha1"
)

var _ = Describe("Task Controller", func() {
	const namespace = "default"

	newProject := func(name string) *v1alpha1.Project {
		return &v1alpha1.Project{
			ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
			Spec:       v1alpha1.ProjectSpec{Cfg: v1alpha1.ProjectCfg{Name: name}},
		}
	}

	newTask := func(name, project string, cfg v1alpha1.TaskCfg) *v1alpha1.Task {
		return &v1alpha1.Task{
			ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
			Spec:       v1alpha1.TaskSpec{Cfg: cfg, Project: project},
		}
	}

	It("adds the cleanup finalizer before doing any other work", func() {
		project := newProject("proj")
		t := newTask("train", "proj", v1alpha1.TaskCfg{
			Name:     "train",
			Executor: &v1alpha1.Executor{Mlflow: &v1alpha1.ExecutorMlflow{}},
		})
		c := newFakeClient(project, t)
		r := &Reconciler{Client: c, Scheme: testScheme}

		_, err := r.Reconcile(ctx, reconcile.Request{NamespacedName: types.NamespacedName{Name: t.Name, Namespace: namespace}})
		Expect(err).NotTo(HaveOccurred())

		got := &v1alpha1.Task{}
		Expect(c.Get(ctx, types.NamespacedName{Name: t.Name, Namespace: namespace}, got)).To(Succeed())
		Expect(got.Finalizers).To(ContainElement(CleanupFinalizer))
	})

	It("fails the task when it references a project that does not exist", func() {
		t := newTask("orphan", "ghost-project", v1alpha1.TaskCfg{
			Name:     "orphan",
			Executor: &v1alpha1.Executor{Mlflow: &v1alpha1.ExecutorMlflow{}},
		})
		t.Finalizers = []string{CleanupFinalizer}
		c := newFakeClient(t)
		r := &Reconciler{Client: c, Scheme: testScheme}

		_, err := r.Reconcile(ctx, reconcile.Request{NamespacedName: types.NamespacedName{Name: t.Name, Namespace: namespace}})
		Expect(err).NotTo(HaveOccurred())

		got := &v1alpha1.Task{}
		Expect(c.Get(ctx, types.NamespacedName{Name: t.Name, Namespace: namespace}, got)).To(Succeed())
		Expect(got.Status.Phase).NotTo(BeNil())
		Expect(got.Status.Phase.Failed).NotTo(BeNil())
	})

	It("synthesizes a missing dependency data set from the parent project's catalog", func() {
		project := newProject("proj")
		project.Spec.Cfg.DataSets = []v1alpha1.DataSetCfg{
			{
				Name: "features",
				Path: "features",
				Task: &v1alpha1.TaskCfg{
					Name:     "build-features",
					Executor: &v1alpha1.Executor{Mlflow: &v1alpha1.ExecutorMlflow{}},
				},
			},
		}
		t := newTask("train", "proj", v1alpha1.TaskCfg{
			Name:     "train",
			Executor: &v1alpha1.Executor{Mlflow: &v1alpha1.ExecutorMlflow{}},
			DataSets: []string{"features"},
		})
		t.Finalizers = []string{CleanupFinalizer}
		c := newFakeClient(project, t)
		r := &Reconciler{Client: c, Scheme: testScheme}

		res, err := r.Reconcile(ctx, reconcile.Request{NamespacedName: types.NamespacedName{Name: t.Name, Namespace: namespace}})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.RequeueAfter).To(Equal(dependencyNotReadyRequeue))

		list := &v1alpha1.DataSetList{}
		Expect(c.List(ctx, list)).To(Succeed())
		Expect(list.Items).To(HaveLen(1))
		Expect(list.Items[0].Spec.Cfg.Name).To(Equal("features"))
	})

	It("fails fast when the resolved task has no executor", func() {
		project := newProject("proj")
		t := newTask("train", "proj", v1alpha1.TaskCfg{Name: "train"})
		t.Finalizers = []string{CleanupFinalizer}
		c := newFakeClient(project, t)
		r := &Reconciler{Client: c, Scheme: testScheme}

		_, err := r.Reconcile(ctx, reconcile.Request{NamespacedName: types.NamespacedName{Name: t.Name, Namespace: namespace}})
		Expect(err).NotTo(HaveOccurred())

		got := &v1alpha1.Task{}
		Expect(c.Get(ctx, types.NamespacedName{Name: t.Name, Namespace: namespace}, got)).To(Succeed())
		Expect(got.Status.Phase.Failed).NotTo(BeNil())
	})

	It("blocks deletion until spec.deletionApproved is set", func() {
		project := newProject("proj")
		t := newTask("train", "proj", v1alpha1.TaskCfg{
			Name:     "train",
			Executor: &v1alpha1.Executor{Mlflow: &v1alpha1.ExecutorMlflow{}},
		})
		t.Finalizers = []string{CleanupFinalizer}
		now := metav1.Now()
		t.DeletionTimestamp = &now

		c := newFakeClient(project, t)
		r := &Reconciler{Client: c, Scheme: testScheme}

		res, err := r.Reconcile(ctx, reconcile.Request{NamespacedName: types.NamespacedName{Name: t.Name, Namespace: namespace}})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.RequeueAfter).To(BeNumerically(">", 0))

		got := &v1alpha1.Task{}
		Expect(c.Get(ctx, types.NamespacedName{Name: t.Name, Namespace: namespace}, got)).To(Succeed())
		Expect(got.Finalizers).To(ContainElement(CleanupFinalizer))
	})
})
