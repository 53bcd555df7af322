// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

// Package projectsource's test suite uses a fake client rather than envtest
// or a live Git remote: the behaviors under test here are the pure
// sync-interval/status bookkeeping and the deletion handshake, neither of
// which needs a real clone (see controller_test.go's comments for what is
// deliberately left untested without a reachable Git remote).
package projectsource

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
)

var (
	ctx        context.Context
	cancel     context.CancelFunc
	testScheme *runtime.Scheme
)

func TestProjectSource(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "ProjectSource Controller Suite")
}

var _ = BeforeSuite(func() {
	ctx, cancel = context.WithCancel(context.Background())

	testScheme = runtime.NewScheme()
	Expect(scheme.AddToScheme(testScheme)).To(Succeed())
	Expect(v1alpha1.AddToScheme(testScheme)).To(Succeed())
})

var _ = AfterSuite(func() {
	cancel()
})

func newFakeClient(objs ...client.Object) client.Client {
	return fake.NewClientBuilder().
		WithScheme(testScheme).
		WithStatusSubresource(&v1alpha1.ProjectSource{}).
		WithObjects(objs...).
		Build()
}
