// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

// Package mlflow implements the MLflow REST client ProjectReconciler uses
// to look up a Model's latest registered version; it covers only the
// get-latest-versions endpoint
// (spec.md §6.4), grounded on
// `lib/src/custom_resources/project.rs`'s `get_latest_model_version`.
package mlflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/teainspace/ame/internal/ameerr"
)

// ModelVersion is one entry of the get-latest-versions response
// (spec.md §6.4).
type ModelVersion struct {
	Name               string `json:"name"`
	Version            string `json:"version"`
	CurrentStage       string `json:"current_stage"`
	CreationTimestamp  int64  `json:"creation_timestamp"`
	Source             string `json:"source"`
	RunID              string `json:"run_id"`
}

type getLatestVersionsResponse struct {
	ModelVersions []ModelVersion `json:"model_versions"`
}

type getLatestVersionsRequest struct {
	Name string `json:"name"`
}

// ErrNoVersions is returned by LatestVersion when the model exists but has
// no registered versions yet (spec.md §4.3 step 2 "no version exists").
type ErrNoVersions struct {
	Model string
}

func (e *ErrNoVersions) Error() string {
	return fmt.Sprintf("mlflow: no registered versions for model %q", e.Model)
}

// Client is a minimal MLflow registered-models client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient builds a Client against baseURL with a 10s default timeout
// (spec.md §5 "Cancellation and timeouts").
func NewClient(baseURL string) *Client {
	return &Client{BaseURL: baseURL, HTTPClient: &http.Client{Timeout: 10 * time.Second}}
}

// LatestVersion returns the registered version of model with the highest
// creation_timestamp, or *ErrNoVersions if the model has none
// (spec.md §4.3 step 1).
func (c *Client) LatestVersion(ctx context.Context, model string) (*ModelVersion, error) {
	body, err := json.Marshal(getLatestVersionsRequest{Name: model})
	if err != nil {
		return nil, fmt.Errorf("encoding mlflow request: %w", err)
	}

	url := c.BaseURL + "/api/2.0/mlflow/registered-models/get-latest-versions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building mlflow request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, ameerr.NewTransportError("mlflow", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, ameerr.NewTransportError("mlflow", fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url))
	}

	var decoded getLatestVersionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, ameerr.NewTransportError("mlflow", fmt.Errorf("decoding response: %w", err))
	}

	if len(decoded.ModelVersions) == 0 {
		return nil, &ErrNoVersions{Model: model}
	}

	latest := decoded.ModelVersions[0]
	for _, v := range decoded.ModelVersions[1:] {
		if v.CreationTimestamp > latest.CreationTimestamp {
			latest = v
		}
	}
	return &latest, nil
}
