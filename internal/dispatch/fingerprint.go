package dispatch

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"cockpit-alerts/internal/alerts"
)

// signatureFields is how many leading fields of a sample take part in the
// fingerprint. Trailing fields are display detail.
const signatureFields = 6

type categorySignature struct {
	Category alerts.Category `json:"category"`
	Count    int             `json:"count"`
	Samples  []alerts.Record `json:"samples"`
}

// Fingerprint hashes the reduced signature of a snapshot: for every category
// in snapshot order its count and the leading fields of each sample.
// GeneratedAt and lookup errors are excluded.
func Fingerprint(snap alerts.Snapshot) string {
	sig := make([]categorySignature, 0, len(snap.Categories))
	for _, cs := range snap.Categories {
		samples := make([]alerts.Record, 0, len(cs.Samples))
		for _, s := range cs.Samples {
			samples = append(samples, s.Head(signatureFields))
		}
		sig = append(sig, categorySignature{Category: cs.Category, Count: cs.Count, Samples: samples})
	}

	// string-only records; Marshal cannot fail
	data, _ := json.Marshal(sig)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
