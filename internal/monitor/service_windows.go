//go:build windows

package monitor

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/svc"
)

// serviceRunning asks the service control manager for the state of name.
func serviceRunning(_ context.Context, name string) (bool, error) {
	scm, err := windows.OpenSCManager(nil, nil, windows.SC_MANAGER_CONNECT)
	if err != nil {
		return false, errors.Wrap(err, "open service control manager")
	}
	defer windows.CloseServiceHandle(scm)

	namePtr, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return false, err
	}
	h, err := windows.OpenService(scm, namePtr, windows.SERVICE_QUERY_STATUS)
	if err != nil {
		return false, errors.Wrapf(err, "open service %q", name)
	}
	defer windows.CloseServiceHandle(h)

	var st windows.SERVICE_STATUS
	if err := windows.QueryServiceStatus(h, &st); err != nil {
		return false, errors.Wrapf(err, "query service %q", name)
	}
	return svc.State(st.CurrentState) == svc.Running, nil
}
