package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix leaves room for algorithm changes.
const (
	DomainConfig     = "kce/config/v1"
	DomainExperiment = "kce/experiment/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data) as hex.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint hashes the canonical form of v under domain.
func Fingerprint(domain string, v any) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return hashWithDomain(domain, canonical), nil
}

// ExperimentHash identifies an experiment by its config and both
// parameter objects. Paths and formatting do not contribute.
func ExperimentHash(config, params, subParams map[string]any) (string, error) {
	obj := map[string]any{
		"config":     orEmpty(config),
		"params":     orEmpty(params),
		"sub_params": orEmpty(subParams),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("ExperimentHash: %w", err)
	}
	return hashWithDomain(DomainExperiment, canonical), nil
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
