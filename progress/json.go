package progress

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	controlapi "github.com/moby/buildkit/api/services/control"

	"github.com/forgekit/forge"
)

// JSON emits one JSON object per line for machine consumption.
type JSON struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewJSON(w io.Writer) *JSON {
	return &JSON{enc: json.NewEncoder(w)}
}

type jsonEvent struct {
	Type      string     `json:"type"`
	Digest    string     `json:"digest,omitempty"`
	Name      string     `json:"name,omitempty"`
	Cached    bool       `json:"cached,omitempty"`
	Error     string     `json:"error,omitempty"`
	Started   *time.Time `json:"started,omitempty"`
	Completed *time.Time `json:"completed,omitempty"`
	ID        string     `json:"id,omitempty"`
	Current   int64      `json:"current,omitempty"`
	Total     int64      `json:"total,omitempty"`
	Message   string     `json:"message,omitempty"`
}

func (j *JSON) emit(ev jsonEvent) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.enc.Encode(ev)
}

func (j *JSON) Vertex(v *controlapi.Vertex) {
	j.emit(jsonEvent{
		Type:      "vertex",
		Digest:    v.Digest.String(),
		Name:      v.Name,
		Cached:    v.Cached,
		Error:     v.Error,
		Started:   v.Started,
		Completed: v.Completed,
	})
}

func (j *JSON) Stat(s *controlapi.VertexStatus) {
	j.emit(jsonEvent{
		Type:    "status",
		Digest:  s.Vertex.String(),
		ID:      s.ID,
		Current: s.Current,
		Total:   s.Total,
	})
}

func (j *JSON) Log(l *controlapi.VertexLog) {
	j.emit(jsonEvent{
		Type:    "log",
		Digest:  l.Vertex.String(),
		Message: string(l.Msg),
	})
}

func (j *JSON) Finish(res *forge.BuildResult, err error) {
	if err != nil {
		j.emit(jsonEvent{Type: "error", Error: err.Error()})
		return
	}
	ev := jsonEvent{Type: "result"}
	if res != nil {
		ev.Digest = res.Digest.String()
	}
	j.emit(ev)
}
