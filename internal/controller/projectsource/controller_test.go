// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package projectsource

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"

	"github.com/teainspace/ame/api/v1alpha1"
)

// Note: these tests deliberately never exercise the go-git clone path
// (extractProjectCfg's git.PlainCloneContext call) since that requires a
// reachable Git remote. The auth/secret-resolution and sync-interval
// bookkeeping that run before the clone are fully covered here instead.
var _ = Describe("ProjectSource Controller", func() {
	const namespace = "default"

	newSource := func(name, repo string) *v1alpha1.ProjectSource {
		return &v1alpha1.ProjectSource{
			ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
			Spec: v1alpha1.ProjectSourceSpec{
				Cfg: v1alpha1.ProjectSourceCfg{Git: v1alpha1.GitCfg{Repository: repo}},
			},
		}
	}

	It("adds the cleanup finalizer before doing any other work", func() {
		src := newSource("demo", "https://example.invalid/demo.git")
		c := newFakeClient(src)
		r := &Reconciler{Client: c, Scheme: testScheme}

		// syncInterval/requiresSync run before any network call, but the
		// finalizer add happens even earlier in common.Reconcile, so this
		// assertion holds regardless of whether the subsequent clone (not
		// exercised here) would succeed.
		_, _ = r.Reconcile(ctx, reconcile.Request{NamespacedName: types.NamespacedName{Name: src.Name, Namespace: namespace}})

		got := &v1alpha1.ProjectSource{}
		Expect(c.Get(ctx, types.NamespacedName{Name: src.Name, Namespace: namespace}, got)).To(Succeed())
		Expect(got.Finalizers).To(ContainElement(CleanupFinalizer))
	})

	It("fails validation on an unparsable syncInterval before ever attempting a clone", func() {
		src := newSource("demo", "https://example.invalid/demo.git")
		src.Finalizers = []string{CleanupFinalizer}
		bogus := "not-a-duration"
		src.Spec.Cfg.Git.SyncInterval = &bogus

		c := newFakeClient(src)
		r := &Reconciler{Client: c, Scheme: testScheme}

		res, err := r.Reconcile(ctx, reconcile.Request{NamespacedName: types.NamespacedName{Name: src.Name, Namespace: namespace}})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.RequeueAfter).To(Equal(errorRequeueInterval))

		got := &v1alpha1.ProjectSource{}
		Expect(c.Get(ctx, types.NamespacedName{Name: src.Name, Namespace: namespace}, got)).To(Succeed())
		Expect(got.Status.State).NotTo(BeNil())
		Expect(got.Status.State.Error).NotTo(BeNil())
		Expect(got.Status.Reason).To(ContainSubstring("invalid syncInterval"))
	})

	It("fails with a validation error when a configured secretRef does not resolve, before attempting a clone", func() {
		src := newSource("demo", "https://example.invalid/demo.git")
		src.Finalizers = []string{CleanupFinalizer}
		secretKey := "missing-secret"
		src.Spec.Cfg.Git.SecretRef = &secretKey

		c := newFakeClient(src)
		r := &Reconciler{Client: c, Scheme: testScheme}

		res, err := r.Reconcile(ctx, reconcile.Request{NamespacedName: types.NamespacedName{Name: src.Name, Namespace: namespace}})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.RequeueAfter).To(Equal(errorRequeueInterval))

		got := &v1alpha1.ProjectSource{}
		Expect(c.Get(ctx, types.NamespacedName{Name: src.Name, Namespace: namespace}, got)).To(Succeed())
		Expect(got.Status.State.Error).NotTo(BeNil())
		Expect(got.Status.Reason).To(ContainSubstring("missing-secret"))
	})

	It("skips sync entirely when the interval has not elapsed", func() {
		src := newSource("demo", "https://example.invalid/demo.git")
		src.Finalizers = []string{CleanupFinalizer}
		recent := metav1.NewTime(time.Now().Add(-1 * time.Minute))
		synchronized := v1alpha1.NewProjectSourceStateSynchronized()
		src.Status.State = &synchronized
		src.Status.LastSynced = &recent

		c := newFakeClient(src)
		r := &Reconciler{Client: c, Scheme: testScheme}

		res, err := r.Reconcile(ctx, reconcile.Request{NamespacedName: types.NamespacedName{Name: src.Name, Namespace: namespace}})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.RequeueAfter).To(BeNumerically(">", 0))

		got := &v1alpha1.ProjectSource{}
		Expect(c.Get(ctx, types.NamespacedName{Name: src.Name, Namespace: namespace}, got)).To(Succeed())
		Expect(got.Status.State.Synchronized).NotTo(BeNil())
		Expect(got.Status.LastSynced.Time).To(Equal(recent.Time))
	})

	It("blocks deletion until spec.deletionApproved is set", func() {
		src := newSource("demo", "https://example.invalid/demo.git")
		src.Finalizers = []string{CleanupFinalizer}
		now := metav1.Now()
		src.DeletionTimestamp = &now

		c := newFakeClient(src)
		r := &Reconciler{Client: c, Scheme: testScheme}

		res, err := r.Reconcile(ctx, reconcile.Request{NamespacedName: types.NamespacedName{Name: src.Name, Namespace: namespace}})
		Expect(err).NotTo(HaveOccurred())
		Expect(res.RequeueAfter).To(BeNumerically(">", 0))

		got := &v1alpha1.ProjectSource{}
		Expect(c.Get(ctx, types.NamespacedName{Name: src.Name, Namespace: namespace}, got)).To(Succeed())
		Expect(got.Finalizers).To(ContainElement(CleanupFinalizer))
	})
})

var _ = Describe("syncInterval and requiresSync", func() {
	It("defaults to five minutes when unset", func() {
		src := &v1alpha1.ProjectSource{}
		d, err := syncInterval(src)
		Expect(err).NotTo(HaveOccurred())
		Expect(d).To(Equal(defaultSyncInterval))
	})

	It("always requires sync when never synced before", func() {
		src := &v1alpha1.ProjectSource{}
		Expect(requiresSync(src, defaultSyncInterval)).To(BeTrue())
	})

	It("does not require sync before the interval elapses", func() {
		src := &v1alpha1.ProjectSource{}
		recent := metav1.NewTime(time.Now())
		src.Status.LastSynced = &recent
		Expect(requiresSync(src, time.Hour)).To(BeFalse())
	})
})
