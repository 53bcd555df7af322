// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

// Package secretstore resolves AME's logical secret references against
// labelled Kubernetes Secrets (spec.md §3 "Secret reference", §6.3),
// grounded on `lib/src/custom_resources/secrets.rs`'s `SecretCtrl`/
// `is_ame_secret` isolation check.
package secretstore

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/teainspace/ame/internal/ameerr"
)

// LabelKey is the label every Secret AME reads must carry.
const LabelKey = "SECRET_STORE"

// LabelValue is the required value of LabelKey.
const LabelValue = "ame"

// DataKey is the Secret data key holding the logical secret's value.
const DataKey = "secret"

// Get resolves the logical secret named key, in namespace, to its value. It
// rejects Secrets that do not carry the SECRET_STORE=ame label, isolating
// AME's secrets from the rest of the cluster's Secret objects.
func Get(ctx context.Context, c client.Client, namespace, key string) (string, error) {
	secret := &corev1.Secret{}
	if err := c.Get(ctx, types.NamespacedName{Namespace: namespace, Name: key}, secret); err != nil {
		if apierrors.IsNotFound(err) {
			return "", ameerr.NewValidationError(fmt.Sprintf("secret with key: %s was not found", key))
		}
		return "", ameerr.NewTransportError("kubernetes", fmt.Errorf("getting secret %q: %w", key, err))
	}

	if secret.Labels[LabelKey] != LabelValue {
		return "", ameerr.NewValidationError(fmt.Sprintf("secret with key: %s was not found", key))
	}

	val, ok := secret.Data[DataKey]
	if !ok {
		return "", ameerr.NewValidationError(fmt.Sprintf("secret with key: %s, was misconfigured", key))
	}
	return string(val), nil
}

// EnvVarSource builds a corev1.EnvVarSource reading DataKey out of the named
// Secret, for injecting a secret reference directly into a pod spec without
// resolving its value in-process (used by WorkflowBuilder, spec.md §4.7).
func EnvVarSource(secretName string) *corev1.EnvVarSource {
	return &corev1.EnvVarSource{
		SecretKeyRef: &corev1.SecretKeySelector{
			LocalObjectReference: corev1.LocalObjectReference{Name: secretName},
			Key:                  DataKey,
		},
	}
}
