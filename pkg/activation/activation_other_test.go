//go:build !linux && !darwin

package activation_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/yeet-sh/yeet/pkg/activation"
)

func TestActivateUnsupportedPlatform(t *testing.T) {
	err := activation.Activate(context.Background(), "/nix/store/whatever")
	require.Error(t, err)
}
