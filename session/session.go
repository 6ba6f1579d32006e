// Package session implements the client side of the daemon's session
// plane: a long-lived bidirectional stream attached alongside a solve
// call, over which the daemon issues gRPC calls back into the client
// (file sync, registry credentials, secrets, health). The inbound byte
// stream is interpreted as HTTP/2 and served by the tunnel dispatcher;
// handlers are registered before the session starts and frozen after.
package session

import (
	"context"
	"sync"

	"github.com/google/uuid"
	controlapi "github.com/moby/buildkit/api/services/control"
	"github.com/pkg/errors"
	"google.golang.org/grpc/metadata"
)

const (
	headerSessionID        = "X-Docker-Expose-Session-Uuid"
	headerSessionName      = "X-Docker-Expose-Session-Name"
	headerSessionSharedKey = "X-Docker-Expose-Session-Sharedkey"
	headerSessionMethod    = "X-Docker-Expose-Session-Grpc-Method"
)

// Stream is the per-sub-RPC channel pair handed to an Attachable. Frames
// are whole messages; framing and terminal status are owned by the
// dispatcher.
type Stream interface {
	// Method is the full gRPC method path the daemon called.
	Method() string
	// Header returns the values of a request header, such as dir-name.
	Header(name string) []string
	// ReadFrame returns the next inbound message payload. io.EOF means
	// the daemon closed its write half of the sub-RPC.
	ReadFrame() ([]byte, error)
	// WriteFrame sends one message payload and flushes it.
	WriteFrame(payload []byte) error
}

// Attachable is a sub-service the daemon may call back into during a
// build. Returning a nil error emits a success terminal status; errors
// are mapped to gRPC status codes.
type Attachable interface {
	Methods() []string
	Handle(ctx context.Context, stream Stream) error
}

// Session owns the identity and handler registry for one attach stream.
type Session struct {
	id        string
	sharedKey string

	mu       sync.Mutex
	handlers map[string]Attachable
	methods  []string
	started  bool
	closed   bool
	cancel   context.CancelFunc
	done     chan struct{}
}

func New() *Session {
	return &Session{
		id:        uuid.New().String(),
		sharedKey: uuid.New().String(),
		handlers:  map[string]Attachable{},
		done:      make(chan struct{}),
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) SharedKey() string {
	return s.sharedKey
}

// Allow registers a sub-service. It fails after the session has started
// and when any of the service's method paths is already taken.
func (s *Session) Allow(a Attachable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("session already started")
	}
	for _, m := range a.Methods() {
		if _, ok := s.handlers[m]; ok {
			return errors.Errorf("method %s already registered", m)
		}
	}
	for _, m := range a.Methods() {
		s.handlers[m] = a
		s.methods = append(s.methods, m)
	}
	return nil
}

// Metadata returns the header vector the daemon scans to recognize the
// session and route callbacks: one Grpc-Method entry per registered
// method path.
func (s *Session) Metadata() metadata.MD {
	s.mu.Lock()
	defer s.mu.Unlock()
	md := metadata.MD{}
	md.Append(headerSessionID, s.id)
	md.Append(headerSessionName, s.sharedKey)
	md.Append(headerSessionSharedKey, s.sharedKey)
	for _, m := range s.methods {
		md.Append(headerSessionMethod, m)
	}
	return md
}

// Run opens the attach stream and serves the tunnel until the stream
// closes or ctx is canceled. The handler registry is frozen on entry.
// Run blocks; a second call fails.
func (s *Session) Run(ctx context.Context, control controlapi.ControlClient) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("session already started")
	}
	if s.closed {
		// Closed before it ever started: the solve finished first.
		s.mu.Unlock()
		return nil
	}
	s.started = true
	handlers := make(map[string]Attachable, len(s.handlers))
	for m, h := range s.handlers {
		handlers[m] = h
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	defer close(s.done)
	defer cancel()

	stream, err := control.Session(metadata.NewOutgoingContext(ctx, s.Metadata()))
	if err != nil {
		return errors.Wrap(err, "opening session stream")
	}

	conn := newStreamConn(stream)
	defer conn.Close()

	serveTunnel(ctx, conn, handlers)

	// A teardown triggered by Close or by the solve finishing is a
	// clean exit. Anything else means the attach stream died under us,
	// and the caller must abort the solve.
	if ctx.Err() != nil {
		return nil
	}
	if err := conn.Err(); err != nil {
		return errors.Wrap(err, "session stream")
	}
	return nil
}

// Close signals the dispatcher to drain and waits for Run to return.
// Closing a session that never started prevents a later start.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	cancel := s.cancel
	started := s.started
	s.mu.Unlock()
	if !started {
		return
	}
	if cancel != nil {
		cancel()
	}
	<-s.done
}
