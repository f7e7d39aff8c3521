// Copyright © 2026 OrKa Contributors - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPProvider_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.Equal(t, "Bearer sekrit", r.Header.Get("Authorization"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req["model"])
		assert.Equal(t, false, req["stream"])

		json.NewEncoder(w).Encode(map[string]any{
			"response":   "generated text",
			"eval_count": 7,
		})
	}))
	defer server.Close()

	p := NewHTTPProvider(HTTPProviderConfig{
		Host:   server.URL,
		Model:  "test-model",
		APIKey: "sekrit",
	})
	gen, err := p.Generate(context.Background(), "say something", GenerateParams{})
	require.NoError(t, err)
	assert.Equal(t, "generated text", gen.Text)
	assert.Equal(t, 7, gen.Tokens)
}

func TestHTTPProvider_BackendErrorSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	p := NewHTTPProvider(HTTPProviderConfig{Host: server.URL, Model: "m"})
	_, err := p.Generate(context.Background(), "hi", GenerateParams{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestHTTPProvider_ParamsOverrideModel(t *testing.T) {
	var gotModel string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotModel, _ = req["model"].(string)
		json.NewEncoder(w).Encode(map[string]any{"response": "ok"})
	}))
	defer server.Close()

	p := NewHTTPProvider(HTTPProviderConfig{Host: server.URL, Model: "default-model"})
	_, err := p.Generate(context.Background(), "hi", GenerateParams{Model: "override"})
	require.NoError(t, err)
	assert.Equal(t, "override", gotModel)
}
