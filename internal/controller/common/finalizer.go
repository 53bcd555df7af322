// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

// Package common holds the finalizer wrapper and error-requeue policy shared
// by every AME reconciler (spec.md §9 "Finalizer helper", §7 "propagation
// policy"), grounded on the teacher's per-controller
// ensureFinalizer/finalize pairing (e.g.
// internal/controller/deploymenttrack/controller_finalize.go), generalized
// into one reusable wrapper instead of four near-identical copies.
package common

import (
	"context"
	"fmt"
	"time"

	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
)

// ErrorRequeueInterval is the shared error_policy interval: any reconcile
// error requeues after 5 minutes (spec.md §5, §7).
const ErrorRequeueInterval = 5 * time.Minute

// HandleError logs nothing itself (callers log with their own context) and
// converts any reconcile error into the shared 5-minute requeue, matching
// spec.md §7's "propagation policy": errors never cross reconciler
// boundaries, and retries are time-based rather than exponential-backoff.
func HandleError(_ error) (ctrl.Result, error) {
	return ctrl.Result{RequeueAfter: ErrorRequeueInterval}, nil
}

// Reconcile runs the finalizer-guarded reconcile loop every AME reconciler
// uses: add the finalizer on first sight, dispatch to cleanup on deletion,
// otherwise dispatch to apply. cleanup's error is mapped through
// HandleError so "deletion blocked" (spec.md §7) surfaces as a 5-minute
// requeue rather than a fast-retry loop.
func Reconcile(ctx context.Context, c client.Client, obj client.Object, finalizer string,
	apply func(ctx context.Context) (ctrl.Result, error),
	cleanup func(ctx context.Context) (ctrl.Result, error),
) (ctrl.Result, error) {
	if !obj.GetDeletionTimestamp().IsZero() {
		if !controllerutil.ContainsFinalizer(obj, finalizer) {
			return ctrl.Result{}, nil
		}
		res, err := cleanup(ctx)
		if err != nil {
			return HandleError(err)
		}
		if controllerutil.RemoveFinalizer(obj, finalizer) {
			if err := c.Update(ctx, obj); err != nil {
				return ctrl.Result{}, fmt.Errorf("removing finalizer: %w", err)
			}
		}
		return res, nil
	}

	if controllerutil.AddFinalizer(obj, finalizer) {
		if err := c.Update(ctx, obj); err != nil {
			return ctrl.Result{}, fmt.Errorf("adding finalizer: %w", err)
		}
		return ctrl.Result{}, nil
	}

	return apply(ctx)
}
