// Package controllerconfig loads AME's controller-process configuration from
// environment variables, per spec.md §6.5.
package controllerconfig

import (
	"fmt"
	"os"

	"github.com/teainspace/ame/internal/cmdutil"
	"github.com/teainspace/ame/internal/config"
)

// Config holds every environment-sourced setting the four reconcilers and the
// Workflow builder need.
type Config struct {
	// Namespace is the watch/reconcile scope for every controller.
	Namespace string `koanf:"namespace"`

	// ExecutorImage is the default container image used for task/template
	// steps when an executor variant does not set its own image.
	ExecutorImage string `koanf:"executor_image"`

	// ServiceAccount is attached to every synthesized Workflow.
	ServiceAccount string `koanf:"service_account"`

	// MLflowURL enables model-version lookups in ProjectReconciler when set.
	MLflowURL string `koanf:"mlflow_url"`

	// ModelIngressHost is the host used on generated model-serving Ingresses.
	ModelIngressHost string `koanf:"model_ingress_host"`

	// ModelDeploymentIngressAnnotations is a YAML blob of extra annotations
	// applied to every generated model Ingress.
	ModelDeploymentIngressAnnotations string `koanf:"model_deployment_ingress"`

	// S3Region is used for every s3cmd invocation the WorkflowBuilder emits
	// (setup pull and artifact-save steps alike); see DESIGN.md Open Question 2.
	S3Region string `koanf:"s3_region"`
	// S3Endpoint is the object-storage endpoint URL.
	S3Endpoint string `koanf:"s3_endpoint"`
	// S3AccessID / S3Secret name the Kubernetes Secret keys injected as
	// AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY on every executor pod.
	S3AccessID string `koanf:"s3_access_id"`
	S3Secret   string `koanf:"s3_secret"`
}

func defaults() Config {
	return Config{
		Namespace:      "ame-system",
		ExecutorImage:  "main.localhost:45373/ame-executor:latest",
		ServiceAccount: "ame-task",
		S3Region:       "us-east-1",
		S3AccessID:     "root-user",
		S3Secret:       "root-password",
	}
}

// envMappings translates the flat environment-variable names spec.md §6.5
// names (none of which share a common nesting prefix, so the Loader's
// AME__-double-underscore convention doesn't apply) onto the dotted koanf
// keys used internally.
var envMappings = map[string]string{
	"NAMESPACE":                    "namespace",
	"AME_EXECUTOR_IMAGE":           "executor_image",
	"AME_SERVICE_ACCOUNT":          "service_account",
	"AME_MLFLOW_URL":               "mlflow_url",
	"AME_MODEL_INGRESS_HOST":       "model_ingress_host",
	"AME_MODEL_DEPLOYMENT_INGRESS": "model_deployment_ingress",
	"S3_REGION":                    "s3_region",
	"S3_ENDPOINT":                  "s3_endpoint",
	"S3_ACCESS_ID":                 "s3_access_id",
	"S3_SECRET":                    "s3_secret",
}

// Load reads AME's configuration from an optional YAML file named by
// AME_CONFIG_FILE, layering the spec's flat env vars over it, falling back to
// defaults for anything unset. Uses the teacher's internal/config.Loader for
// the defaults/file layering and internal/cmdutil for env lookups, with
// explicit per-variable overrides standing in for the Loader's own env
// provider (which only recognizes its own AME__ nested-key convention).
func Load() (Config, error) {
	loader := config.NewLoader("AME")

	if err := loader.LoadWithDefaults(defaults(), os.Getenv("AME_CONFIG_FILE")); err != nil {
		return Config{}, fmt.Errorf("loading config defaults: %w", err)
	}

	for envVar, key := range envMappings {
		if v, ok := cmdutil.LookupEnv(envVar); ok {
			if err := loader.Set(key, v); err != nil {
				return Config{}, fmt.Errorf("setting %s: %w", key, err)
			}
		}
	}

	var cfg Config
	if err := loader.UnmarshalAndValidate("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	return cfg, nil
}

// Validate implements config.Validator: every reconciler needs a watch
// namespace and an executor image to synthesize a runnable Workflow.
func (c Config) Validate() error {
	var errs config.ValidationErrors
	if c.Namespace == "" {
		errs = append(errs, config.Required(config.NewPath("namespace")))
	}
	if c.ExecutorImage == "" {
		errs = append(errs, config.Required(config.NewPath("executor_image")))
	}
	return errs.OrNil()
}
