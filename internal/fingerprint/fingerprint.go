// Package fingerprint derives the cache identity of a stage execution from
// the contents it reads and the configuration that shapes its output.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// Key is a deterministic digest identifying one (stage, inputs, config)
// combination. Identical inputs under identical configuration always yield
// the identical Key, independent of host or execution order.
type Key string

// Input is one named contribution to a fingerprint. Name is a logical label
// ("archive:docs/paper.txt", "upstream:scout", "config:model"), Digest is
// either a content hash or a literal configuration value. Paths and mtimes
// must never appear in Digest.
type Input struct {
	Name   string
	Digest string
}

// New computes the Key for a stage. versionTag invalidates cached output
// when the stage's own logic changes. Inputs are sorted by name before
// hashing so callers need not order them.
func New(stage string, versionTag string, inputs []Input) Key {
	sorted := make([]Input, len(inputs))
	copy(sorted, inputs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	h := sha256.New()
	// Length-prefixed fields prevent ambiguity between adjacent values.
	fmt.Fprintf(h, "stage:%d:%s", len(stage), stage)
	fmt.Fprintf(h, "version:%d:%s", len(versionTag), versionTag)
	for _, in := range sorted {
		fmt.Fprintf(h, "input:%d:%s=%d:%s", len(in.Name), in.Name, len(in.Digest), in.Digest)
	}

	return Key(hex.EncodeToString(h.Sum(nil)))
}

// ConfigInputs flattens resolved configuration values into fingerprint
// inputs. Map iteration order is irrelevant because New sorts.
func ConfigInputs(values map[string]string) []Input {
	inputs := make([]Input, 0, len(values))
	for k, v := range values {
		inputs = append(inputs, Input{Name: "config:" + k, Digest: v})
	}
	return inputs
}
