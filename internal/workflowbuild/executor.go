// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package workflowbuild

import (
	"fmt"

	"github.com/teainspace/ame/api/v1alpha1"
	"github.com/teainspace/ame/internal/ameerr"
)

// ExecutorImage returns the container image a resolved executor runs under:
// the Custom variant's own image, or defaultImage for every other variant
// (spec.md §4.7 "Uses one image = ctx.executor_image unless overridden on
// the executor variant").
func ExecutorImage(e *v1alpha1.Executor, defaultImage string) string {
	if e != nil && e.Custom != nil && e.Custom.Image != "" {
		return e.Custom.Image
	}
	return defaultImage
}

// ExecutorCommand renders the shell command for the main step, dispatching
// on the executor's tagged variant (spec.md §4.7, original `new_task.rs`'s
// per-variant `.command()` method — one closed set, no plugin registry per
// spec.md §9).
func ExecutorCommand(e *v1alpha1.Executor) (string, error) {
	if e == nil || e.IsEmpty() {
		return "", ameerr.NewFatalMisconfigurationError("MissingExecutor: no executor variant set")
	}
	switch {
	case e.Poetry != nil:
		version := e.Poetry.PythonVersion
		if version == "" {
			return fmt.Sprintf("poetry install --no-interaction && poetry run %s", e.Poetry.Command), nil
		}
		return fmt.Sprintf(
			"pyenv install -s %s && pyenv local %s && poetry env use $(pyenv which python) && poetry install --no-interaction && poetry run %s",
			version, version, e.Poetry.Command,
		), nil
	case e.PipEnv != nil:
		return fmt.Sprintf("pipenv install --deploy && pipenv run %s", e.PipEnv.Command), nil
	case e.Pip != nil:
		return fmt.Sprintf("pip install -r requirements.txt && %s", e.Pip.Command), nil
	case e.Mlflow != nil:
		return "mlflow run .", nil
	case e.Custom != nil:
		return e.Custom.Command, nil
	default:
		return "", ameerr.NewFatalMisconfigurationError("MissingExecutor: no executor variant set")
	}
}
