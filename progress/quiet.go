package progress

import (
	controlapi "github.com/moby/buildkit/api/services/control"

	"github.com/forgekit/forge"
)

// Quiet drops every event; the caller reports the final result itself.
type Quiet struct{}

func (Quiet) Vertex(*controlapi.Vertex)        {}
func (Quiet) Stat(*controlapi.VertexStatus)    {}
func (Quiet) Log(*controlapi.VertexLog)        {}
func (Quiet) Finish(*forge.BuildResult, error) {}
