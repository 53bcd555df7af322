// Copyright 2025 The OpenChoreo Authors
// SPDX-License-Identifier: Apache-2.0

package mlflow

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLatestVersionPicksMaxCreationTimestamp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/2.0/mlflow/registered-models/get-latest-versions" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"model_versions": [
				{"name": "logreg", "version": "1", "creation_timestamp": 100},
				{"name": "logreg", "version": "3", "creation_timestamp": 300},
				{"name": "logreg", "version": "2", "creation_timestamp": 200}
			]
		}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	version, err := client.LatestVersion(context.Background(), "logreg")
	if err != nil {
		t.Fatalf("LatestVersion: %v", err)
	}
	if version.Version != "3" {
		t.Errorf("expected version 3, got %s", version.Version)
	}
}

func TestLatestVersionNoVersions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model_versions": []}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.LatestVersion(context.Background(), "logreg")

	var noVersions *ErrNoVersions
	if !errors.As(err, &noVersions) {
		t.Fatalf("expected *ErrNoVersions, got %v", err)
	}
	if noVersions.Model != "logreg" {
		t.Errorf("expected model logreg in error, got %s", noVersions.Model)
	}
}

func TestLatestVersionTransportErrorOnNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.LatestVersion(context.Background(), "logreg")
	if err == nil {
		t.Fatal("expected an error for a non-200 response")
	}
}
