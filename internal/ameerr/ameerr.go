// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

// Package ameerr defines AME's error taxonomy (spec.md §7): every error a
// reconciler surfaces belongs to one of five kinds, and callers branch on the
// kind rather than on a message string.
package ameerr

import (
	"errors"
	"fmt"
	"strings"
)

// TransportError wraps a failure talking to an external system (the
// Kubernetes API, Git, an HTTP endpoint). It is always retried by the
// caller's requeue; it is never written to an object's status.
type TransportError struct {
	System string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s transport error: %v", e.System, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NewTransportError wraps err as a TransportError against the named system.
func NewTransportError(system string, err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{System: system, Err: err}
}

// ValidationError marks a bad user input: malformed ame.yaml, a missing
// required field, or a conflicting ProjectSource repository. Reconcilers
// record this on the object's status and return success so the error state
// sticks until the user corrects the input, instead of requeueing forever.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// NewValidationError builds a ValidationError with the given reason.
func NewValidationError(reason string) error {
	return &ValidationError{Reason: reason}
}

// DependencyNotReadyError marks a DataSet dependency that cannot become
// Ready. TaskReconciler raises it for a dependency in phase Failed and
// records it on the Task's Failed phase; a dependency that is merely
// Pending or Running is requeued after 10s without this error.
type DependencyNotReadyError struct {
	DataSet string
	Phase   string
}

func (e *DependencyNotReadyError) Error() string {
	return fmt.Sprintf("data set %q is not ready (phase %s)", e.DataSet, e.Phase)
}

// NewDependencyNotReadyError builds a DependencyNotReadyError.
func NewDependencyNotReadyError(dataSet, phase string) error {
	return &DependencyNotReadyError{DataSet: dataSet, Phase: phase}
}

// DeletionBlockedError marks a cleanup attempt on a resource whose
// spec.deletionApproved is still false. The finalizer event is failed and
// requeued in 5 minutes, leaving the resource in place until the user
// approves.
type DeletionBlockedError struct {
	Kind string
	Name string
}

func (e *DeletionBlockedError) Error() string {
	return fmt.Sprintf("deletion of %s %q is not approved", e.Kind, e.Name)
}

// NewDeletionBlockedError builds a DeletionBlockedError.
func NewDeletionBlockedError(kind, name string) error {
	return &DeletionBlockedError{Kind: kind, Name: name}
}

// FatalMisconfigurationError marks a condition that cannot be retried away:
// an executor missing after template resolution, a template that does not
// exist, or a resource with no usable owner reference. Reconcilers log it in
// full and drive the object's phase to Failed; no retry beyond the standard
// 5-minute requeue recovers from it without a spec change.
type FatalMisconfigurationError struct {
	Reason string
}

func (e *FatalMisconfigurationError) Error() string { return e.Reason }

// NewFatalMisconfigurationError builds a FatalMisconfigurationError.
func NewFatalMisconfigurationError(reason string) error {
	return &FatalMisconfigurationError{Reason: reason}
}

// MissingProject reports a DependencyResolver/TemplateResolver lookup that
// could not find a Project by name (spec.md §4.5 step 2, §8 Boundary).
func MissingProject(name string) error {
	return NewFatalMisconfigurationError(fmt.Sprintf("MissingProject: no project named %q", name))
}

// MissingTemplate reports a TemplateResolver lookup that found no matching
// template (spec.md §4.6 step 3, §8 Boundary).
func MissingTemplate(name, project string) error {
	return NewFatalMisconfigurationError(fmt.Sprintf("MissingTemplate(%s, %s): no matching template", name, project))
}

// MissingExecutor reports a validation or training Task that resolved with
// no executor set (spec.md §4.3 step 3).
func MissingExecutor(taskName string) error {
	return NewFatalMisconfigurationError(fmt.Sprintf("MissingExecutor: task %q has no executor after template resolution", taskName))
}

// MissingDataSet reports a dependency reference that resolved to no unique
// DataSet (spec.md §4.5 step 3).
func MissingDataSet(name string) error {
	return NewFatalMisconfigurationError(fmt.Sprintf("MissingDataSet: no data set named %q", name))
}

// IsValidation reports whether err (or something it wraps) is a
// ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsDependencyNotReady reports whether err (or something it wraps) is a
// DependencyNotReadyError.
func IsDependencyNotReady(err error) bool {
	var v *DependencyNotReadyError
	return errors.As(err, &v)
}

// IsDeletionBlocked reports whether err (or something it wraps) is a
// DeletionBlockedError.
func IsDeletionBlocked(err error) bool {
	var v *DeletionBlockedError
	return errors.As(err, &v)
}

// IsFatalMisconfiguration reports whether err (or something it wraps) is a
// FatalMisconfigurationError.
func IsFatalMisconfiguration(err error) bool {
	var v *FatalMisconfigurationError
	return errors.As(err, &v)
}

// IsTransport reports whether err (or something it wraps) is a
// TransportError.
func IsTransport(err error) bool {
	var v *TransportError
	return errors.As(err, &v)
}

// IsMissingDataSet reports whether err is the specific FatalMisconfiguration
// case built by MissingDataSet, distinguishing "no DataSet object exists
// yet" (TaskReconciler should synthesize one, spec.md §4.1 step 3) from
// "the referenced Project doesn't exist" (genuinely fatal, spec.md §8
// Boundary).
func IsMissingDataSet(err error) bool {
	var v *FatalMisconfigurationError
	return errors.As(err, &v) && strings.HasPrefix(v.Reason, "MissingDataSet:")
}
