//go:build !windows

package monitor

import (
	"context"
	"os/exec"

	"github.com/pkg/errors"
)

// serviceRunning asks systemd whether the unit name is active. A non-zero
// exit means inactive; failing to run systemctl is an error.
func serviceRunning(ctx context.Context, name string) (bool, error) {
	err := exec.CommandContext(ctx, "systemctl", "is-active", "--quiet", name).Run()
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return false, nil
	}
	return false, errors.Wrapf(err, "systemctl is-active %s", name)
}
