// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package dataset

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"

	"github.com/teainspace/ame/api/v1alpha1"
	"github.com/teainspace/ame/internal/dataset"
)

var _ = Describe("DataSet Controller", func() {
	const namespace = "default"

	newProject := func(name string) *v1alpha1.Project {
		p := &v1alpha1.Project{
			ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace, UID: types.UID(name + "-uid")},
			Spec:       v1alpha1.ProjectSpec{Cfg: v1alpha1.ProjectCfg{Name: name}},
		}
		return p
	}

	newDataSet := func(project *v1alpha1.Project, cfgName string) *v1alpha1.DataSet {
		return &v1alpha1.DataSet{
			ObjectMeta: metav1.ObjectMeta{
				Name:      project.Name + "-" + cfgName,
				Namespace: namespace,
				OwnerReferences: []metav1.OwnerReference{
					{APIVersion: v1alpha1.GroupVersion.String(), Kind: "Project", Name: project.Name, UID: project.UID, Controller: boolPtr(true)},
				},
			},
			Spec: v1alpha1.DataSetSpec{
				Cfg: v1alpha1.DataSetCfg{
					Name: cfgName,
					Path: cfgName,
					Task: &v1alpha1.TaskCfg{
						Name:     "build-" + cfgName,
						Executor: &v1alpha1.Executor{Mlflow: &v1alpha1.ExecutorMlflow{}},
					},
				},
				Project: project.Spec.Cfg.Name,
			},
		}
	}

	It("creates the producing task named by internal/dataset.ProducingTaskName", func() {
		project := newProject("proj")
		ds := newDataSet(project, "features")
		ds.Finalizers = []string{CleanupFinalizer}

		c := newFakeClient(project, ds)
		r := &Reconciler{Client: c, Scheme: testScheme}

		_, err := r.Reconcile(ctx, reconcile.Request{NamespacedName: types.NamespacedName{Name: ds.Name, Namespace: namespace}})
		Expect(err).NotTo(HaveOccurred())

		taskName := dataset.ProducingTaskName(ds.Name, ds.Spec.Cfg.Task.Name)
		got := &v1alpha1.Task{}
		Expect(c.Get(ctx, types.NamespacedName{Name: taskName, Namespace: namespace}, got)).To(Succeed())

		gotDS := &v1alpha1.DataSet{}
		Expect(c.Get(ctx, types.NamespacedName{Name: ds.Name, Namespace: namespace}, gotDS)).To(Succeed())
		Expect(gotDS.Status.Phase).NotTo(BeNil())
		Expect(gotDS.Status.Phase.RunningTask).NotTo(BeNil())
	})

	It("mirrors a succeeded producing task onto the data set's Ready phase", func() {
		project := newProject("proj")
		ds := newDataSet(project, "features")
		ds.Finalizers = []string{CleanupFinalizer}
		taskName := dataset.ProducingTaskName(ds.Name, ds.Spec.Cfg.Task.Name)

		existingTask := &v1alpha1.Task{
			ObjectMeta: metav1.ObjectMeta{Name: taskName, Namespace: namespace},
			Spec:       v1alpha1.TaskSpec{Cfg: *ds.Spec.Cfg.Task},
		}
		succeeded := v1alpha1.NewTaskPhaseSucceeded("wf-1")
		existingTask.Status.Phase = &succeeded

		c := newFakeClient(project, ds, existingTask)
		r := &Reconciler{Client: c, Scheme: testScheme}

		_, err := r.Reconcile(ctx, reconcile.Request{NamespacedName: types.NamespacedName{Name: ds.Name, Namespace: namespace}})
		Expect(err).NotTo(HaveOccurred())

		gotDS := &v1alpha1.DataSet{}
		Expect(c.Get(ctx, types.NamespacedName{Name: ds.Name, Namespace: namespace}, gotDS)).To(Succeed())
		Expect(gotDS.Status.Phase.Ready).NotTo(BeNil())
		Expect(gotDS.Status.Phase.Ready.TaskName).To(Equal(taskName))
	})

	It("blocks deletion until spec.deletionApproved is set", func() {
		project := newProject("proj")
		ds := newDataSet(project, "features")
		ds.Finalizers = []string{CleanupFinalizer}
		now := metav1.Now()
		ds.DeletionTimestamp = &now

		c := newFakeClient(project, ds)
		r := &Reconciler{Client: c, Scheme: testScheme}

		res, err := r.Reconcile(ctx, reconcile.Request{NamespacedName: types.NamespacedName{Name: ds.Name, Namespace: namespace}})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.RequeueAfter).To(BeNumerically(">", 0))

		got := &v1alpha1.DataSet{}
		Expect(c.Get(ctx, types.NamespacedName{Name: ds.Name, Namespace: namespace}, got)).To(Succeed())
		Expect(got.Finalizers).To(ContainElement(CleanupFinalizer))
	})
})
