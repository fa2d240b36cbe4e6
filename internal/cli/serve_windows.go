//go:build windows

package cli

import (
	"context"
	"os"
	"os/signal"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows/svc"
)

func runServe(ctx context.Context, opts *RootOptions) error {
	isService, err := svc.IsWindowsService()
	if err != nil {
		return errors.Wrap(err, "detect service session")
	}
	if !isService {
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
		defer stop()
		return serve(ctx, opts)
	}

	h := &serviceHandler{opts: opts}
	if err := svc.Run(ServiceName, h); err != nil {
		return errors.Wrap(err, "run service")
	}
	return h.err
}

// ── Service control manager adapter ────────────────────────

const serviceAccepts = svc.AcceptStop | svc.AcceptShutdown | svc.AcceptPauseAndContinue

// serviceHandler maps SCM requests onto the app: stop cancels Serve, pause
// and continue stop and restart the scheduler.
type serviceHandler struct {
	opts *RootOptions
	err  error
}

func (h *serviceHandler) Execute(_ []string, requests <-chan svc.ChangeRequest, status chan<- svc.Status) (bool, uint32) {
	status <- svc.Status{State: svc.StartPending}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, cleanup, err := openApp(ctx, h.opts)
	if err != nil {
		h.err = err
		return true, uint32(GetExitCode(err))
	}
	defer cleanup()

	served := make(chan error, 1)
	go func() { served <- a.Serve(ctx) }()

	select {
	case <-a.Ready():
	case err := <-served:
		h.err = err
		return true, ExitFailure
	}
	status <- svc.Status{State: svc.Running, Accepts: serviceAccepts}

	for {
		select {
		case err := <-served:
			h.err = err
			if err != nil {
				return true, ExitFailure
			}
			return false, 0

		case req := <-requests:
			switch req.Cmd {
			case svc.Interrogate:
				status <- req.CurrentStatus

			case svc.Stop, svc.Shutdown:
				status <- svc.Status{State: svc.StopPending}
				cancel()
				h.err = <-served
				return false, 0

			case svc.Pause:
				status <- svc.Status{State: svc.PausePending, Accepts: serviceAccepts}
				a.Pause()
				status <- svc.Status{State: svc.Paused, Accepts: serviceAccepts}

			case svc.Continue:
				status <- svc.Status{State: svc.ContinuePending, Accepts: serviceAccepts}
				if err := a.Continue(); err != nil {
					h.err = err
					cancel()
					<-served
					return true, ExitFailure
				}
				status <- svc.Status{State: svc.Running, Accepts: serviceAccepts}
			}
		}
	}
}
