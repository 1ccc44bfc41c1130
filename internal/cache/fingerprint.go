package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

type fingerprintInput struct {
	Stage   string `json:"stage"`
	Tier    string `json:"tier"`
	Version string `json:"version"`
	Inputs  any    `json:"inputs"`
}

// Fingerprint hashes the canonical JSON of a unit of work. encoding/json
// sorts map keys, so equal inputs always produce the same fingerprint.
func Fingerprint(stage, tier, version string, inputs any) (string, error) {
	data, err := json.Marshal(fingerprintInput{Stage: stage, Tier: tier, Version: version, Inputs: inputs})
	if err != nil {
		return "", fmt.Errorf("fingerprint inputs: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
