// Package activation runs the platform-specific entry point that
// switches a running host over to a downloaded store path.
package activation

import (
	"context"
	"fmt"
	"os"
)

// SystemProfile is the Nix profile symlink whose target names the
// currently active store path, on every supported platform.
const SystemProfile = "/nix/var/nix/profiles/system"

// Activate points the system profile at storePath and runs its
// activation entry point synchronously. Implementations are split by
// build tag — see activation_linux.go and activation_darwin.go.
func Activate(ctx context.Context, storePath string) error {
	return activate(ctx, storePath)
}

// ActiveVersion reads the store path the system profile currently
// points at. A missing profile (first boot, never activated) is
// reported as an error wrapping fs.ErrNotExist (test with errors.Is).
func ActiveVersion() (string, error) {
	target, err := os.Readlink(SystemProfile)
	if err != nil {
		return "", fmt.Errorf("activation: read system profile: %w", err)
	}
	return target, nil
}
