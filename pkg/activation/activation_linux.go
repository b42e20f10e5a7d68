//go:build linux

package activation

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
)

// activate on Linux sets the system profile symlink to storePath and
// runs its bin/switch-to-configuration entry point with "switch".
func activate(ctx context.Context, storePath string) error {
	profile := "/nix/var/nix/profiles/system"
	cmd := exec.CommandContext(ctx, "nix-env", "--profile", profile, "--set", storePath)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("activation: set profile: %w: %s", err, out)
	}

	entry := filepath.Join(storePath, "bin", "switch-to-configuration")
	cmd = exec.CommandContext(ctx, entry, "switch")
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("activation: switch-to-configuration switch: %w: %s", err, out)
	}
	return nil
}
