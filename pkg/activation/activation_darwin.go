//go:build darwin

package activation

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
)

// activate on Darwin sets the system profile symlink to storePath and
// runs its activate script, the same two-step contract as Linux.
func activate(ctx context.Context, storePath string) error {
	profile := "/nix/var/nix/profiles/system"
	cmd := exec.CommandContext(ctx, "nix-env", "--profile", profile, "--set", storePath)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("activation: set profile: %w: %s", err, out)
	}

	entry := filepath.Join(storePath, "activate")
	cmd = exec.CommandContext(ctx, entry)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("activation: activate: %w: %s", err, out)
	}
	return nil
}
