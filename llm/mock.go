package llm

import (
	"context"
	"encoding/json"
	"fmt"
)

// Mock synthesizes both phases locally for offline testing. Responses are
// deterministic and schema-shaped so downstream artifacts stay parseable.
type Mock struct{}

func (Mock) ExtractUpdates(_ context.Context, _ string, fileLabel string) (string, error) {
	payload := map[string]any{
		"updates":            []any{},
		"unknown_or_missing": []string{},
		"meta": map[string]string{
			"notes": "mock extraction of " + fileLabel,
		},
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (Mock) GenerateReport(_ context.Context, _ string, period string) (string, error) {
	return fmt.Sprintf("## Overview\n\n- Mock report for %s; no external service was called.\n", period), nil
}
