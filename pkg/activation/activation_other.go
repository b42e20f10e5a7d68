//go:build !linux && !darwin

package activation

import (
	"context"
	"fmt"
	"runtime"
)

func activate(ctx context.Context, storePath string) error {
	return fmt.Errorf("activation: unsupported platform %s", runtime.GOOS)
}
