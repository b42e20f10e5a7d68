// Package manifest reads yeet-secrets.json, the per-version manifest
// declaring which secrets a downloaded artifact needs materialized.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/yeet-sh/yeet/pkg/contracts"
)

// FileName is the manifest file's name inside an artifact's store path.
const FileName = "yeet-secrets.json"

// Load reads and parses the manifest at the root of storePath. Absence
// of the file is reported via os.IsNotExist on the returned error — it
// is not itself an error condition for the caller, which treats a
// missing manifest as "no secrets".
func Load(storePath string) (map[string]contracts.SecretDefinition, error) {
	path := filepath.Join(storePath, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var defs map[string]contracts.SecretDefinition
	if err := json.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("manifest: parse %s: %w", path, err)
	}
	return defs, nil
}
