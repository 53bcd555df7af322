// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package cmdutil

import (
	"os"
)

// LookupEnv returns the environment variable's value and whether it was set
// (and non-empty), mirroring os.LookupEnv but treating an empty value as unset.
func LookupEnv(key string) (string, bool) {
	v := os.Getenv(key)
	if v == "" {
		return "", false
	}
	return v, true
}
