// Package progress provides ProgressSink implementations for the
// status stream: human-readable text, JSON lines, and a silent sink.
package progress

import (
	"fmt"
	"strings"
	"sync"

	controlapi "github.com/moby/buildkit/api/services/control"
	"github.com/opencontainers/go-digest"
	"github.com/tonistiigi/units"

	"github.com/forgekit/forge"
	"github.com/forgekit/forge/logging"
	"github.com/forgekit/forge/style"
)

// Text prints one line per build-step transition and tags daemon log
// output with a short vertex digest. Safe for concurrent use.
type Text struct {
	logger *logging.Logger

	mu       sync.Mutex
	started  map[digest.Digest]bool
	finished map[digest.Digest]bool
}

func NewText(logger *logging.Logger) *Text {
	return &Text{
		logger:   logger,
		started:  map[digest.Digest]bool{},
		finished: map[digest.Digest]bool{},
	}
}

func (t *Text) Vertex(v *controlapi.Vertex) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if v.Started != nil && !t.started[v.Digest] {
		t.started[v.Digest] = true
		t.logger.Info(style.Step("%s", v.Name))
	}
	if v.Completed == nil || t.finished[v.Digest] {
		return
	}
	t.finished[v.Digest] = true
	switch {
	case v.Error != "":
		t.logger.Error("%s: %s", v.Name, v.Error)
	case v.Cached:
		t.logger.Info("%s %s", style.Key("CACHED"), v.Name)
	}
}

func (t *Text) Stat(s *controlapi.VertexStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s.Total > 0 {
		t.logger.Verbose("%s %.2f / %.2f", s.ID, units.Bytes(s.Current), units.Bytes(s.Total))
	} else if s.Current > 0 {
		t.logger.Verbose("%s %.2f", s.ID, units.Bytes(s.Current))
	}
}

func (t *Text) Log(l *controlapi.VertexLog) {
	t.mu.Lock()
	defer t.mu.Unlock()
	w := t.logger.WithPrefix(shortDigest(l.Vertex))
	for _, line := range strings.Split(strings.TrimRight(string(l.Msg), "\n"), "\n") {
		fmt.Fprintln(w, line)
	}
}

func (t *Text) Finish(res *forge.BuildResult, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		t.logger.Error("build failed: %s", err)
		return
	}
	if res != nil && res.Digest != "" {
		t.logger.Info("image digest %s", style.Symbol("%s", res.Digest))
	}
}

func shortDigest(d digest.Digest) string {
	enc := d.Encoded()
	if len(enc) > 12 {
		enc = enc[:12]
	}
	return enc
}
