package monitor

import (
	"context"
	"os"
	"strings"
)

// ── Probes ─────────────────────────────────────────────────

// Probe reports whether this host is the active node of the cluster.
type Probe interface {
	Name() string
	Active(ctx context.Context) (bool, error)
}

// watchable is implemented by probes backed by a file, so the monitor can
// react to changes between polls.
type watchable interface {
	WatchPath() string
}

// StaticProbe always reports active. Used on single-node installs.
type StaticProbe struct{}

func (StaticProbe) Name() string                         { return "static" }
func (StaticProbe) Active(context.Context) (bool, error) { return true, nil }

// FileProbe reads an indicator file maintained by the cluster tooling. The
// host is active when the file contains the word "active".
type FileProbe struct {
	Path string
}

func (p FileProbe) Name() string      { return "file:" + p.Path }
func (p FileProbe) WatchPath() string { return p.Path }

func (p FileProbe) Active(context.Context) (bool, error) {
	b, err := os.ReadFile(p.Path)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(strings.TrimSpace(string(b)), "active"), nil
}

// ServiceProbe checks that the master OS service is running. The CORE
// cluster starts it only on the active node.
type ServiceProbe struct {
	Service string
}

func (p ServiceProbe) Name() string { return "service:" + p.Service }

func (p ServiceProbe) Active(ctx context.Context) (bool, error) {
	return serviceRunning(ctx, p.Service)
}
