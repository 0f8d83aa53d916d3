package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"traceback-analyser/internal/tracefilter"
)

// policyFile is the YAML layout of a compaction policy file:
//
//	filter:
//	  similarity_threshold: 0.5
//	  max_similar_lines: 2
//	  passes: 2
type policyFile struct {
	Filter tracefilter.Policy `yaml:"filter"`
}

// LoadPolicyFile reads a compaction policy from a YAML file. Fields missing
// from the file keep their value in base.
// The path comes from a flag or the environment, never from a request.
func LoadPolicyFile(path string, base tracefilter.Policy) (tracefilter.Policy, error) {
	// #nosec G304 -- operator supplied path
	data, err := os.ReadFile(path)
	if err != nil {
		return tracefilter.Policy{}, fmt.Errorf("failed to read policy file: %w", err)
	}
	return ParsePolicy(data, base)
}

// ParsePolicy decodes a policy document over base and validates the result.
// Unknown keys are rejected so a typo does not silently fall back to a default.
func ParsePolicy(data []byte, base tracefilter.Policy) (tracefilter.Policy, error) {
	doc := policyFile{Filter: base}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return tracefilter.Policy{}, fmt.Errorf("failed to parse policy file: %w", err)
	}
	if err := doc.Filter.Validate(); err != nil {
		return tracefilter.Policy{}, fmt.Errorf("policy file validation failed: %w", err)
	}
	return doc.Filter, nil
}
