// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

// Package task's test suite uses a fake client rather than envtest: every
// behavior under test is reconciler logic, not apiserver-enforced schema
// validation, so a real control plane buys nothing here.
package task

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	"github.com/teainspace/ame/api/v1alpha1"
	"github.com/teainspace/ame/internal/argo"
)

var (
	ctx        context.Context
	cancel     context.CancelFunc
	testScheme *runtime.Scheme
	k8sClient  client.Client
)

func TestTask(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Task Controller Suite")
}

var _ = BeforeSuite(func() {
	ctx, cancel = context.WithCancel(context.Background())

	testScheme = runtime.NewScheme()
	Expect(scheme.AddToScheme(testScheme)).To(Succeed())
	Expect(v1alpha1.AddToScheme(testScheme)).To(Succeed())
	Expect(argo.AddToScheme(testScheme)).To(Succeed())
})

var _ = AfterSuite(func() {
	cancel()
})

func newFakeClient(objs ...client.Object) client.Client {
	return fake.NewClientBuilder().
		WithScheme(testScheme).
		WithStatusSubresource(&v1alpha1.Task{}, &v1alpha1.DataSet{}).
		WithObjects(objs...).
		Build()
}
