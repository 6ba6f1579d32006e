package forge

import (
	controlapi "github.com/moby/buildkit/api/services/control"
)

// ProgressSink consumes build progress events from the daemon's status
// stream. Implementations must be safe to call from the status reader
// goroutine; events for a single vertex arrive in order, cross-vertex
// ordering is not guaranteed. Once Build has validated the options and
// set up the session, it calls Finish exactly once, after the last
// event; errors returned before that point do not reach the sink.
type ProgressSink interface {
	Vertex(*controlapi.Vertex)
	Stat(*controlapi.VertexStatus)
	Log(*controlapi.VertexLog)
	Finish(*BuildResult, error)
}
