package session

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"

	"golang.org/x/net/http2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/forgekit/forge/internal/frame"
)

// serveTunnel runs the in-band server for the attach stream: the daemon
// speaks HTTP/2 into the stream and opens one h2 stream per sub-RPC,
// carrying the method path as :path. ServeConn returns when the stream
// closes or ctx is canceled; every in-flight handler sees its request
// context canceled at that point.
func serveTunnel(ctx context.Context, conn net.Conn, handlers map[string]Attachable) {
	srv := &http2.Server{}
	srv.ServeConn(conn, &http2.ServeConnOpts{
		Context: ctx,
		Handler: &dispatcher{handlers: handlers},
	})
}

type dispatcher struct {
	handlers map[string]Attachable
}

func (d *dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/grpc")

	h, ok := d.handlers[r.URL.Path]
	if !ok {
		// Trailers-only response: status travels in the headers.
		w.Header().Set("Grpc-Status", strconv.Itoa(int(codes.Unimplemented)))
		w.Header().Set("Grpc-Message", "unknown method "+r.URL.Path)
		w.WriteHeader(http.StatusOK)
		return
	}

	stream := &httpStream{
		method: r.URL.Path,
		header: r.Header,
		body:   frame.NewReader(r.Body),
		w:      w,
	}

	err := h.Handle(r.Context(), stream)

	// Exactly one terminal status per completed sub-RPC, after any
	// response frames.
	st := status.Convert(err)
	w.Header().Set(http.TrailerPrefix+"Grpc-Status", strconv.Itoa(int(st.Code())))
	if st.Code() != codes.OK {
		w.Header().Set(http.TrailerPrefix+"Grpc-Message", st.Message())
	}
}

// httpStream is the Stream implementation backed by one h2 stream:
// reads decode frames off the request body, writes encode frames into
// the response and flush them so the daemon sees each message as it is
// produced.
type httpStream struct {
	method string
	header http.Header

	body *frame.Reader

	mu sync.Mutex
	w  http.ResponseWriter
}

func (s *httpStream) Method() string {
	return s.method
}

func (s *httpStream) Header(name string) []string {
	return s.header.Values(name)
}

func (s *httpStream) ReadFrame() ([]byte, error) {
	return s.body.Next()
}

func (s *httpStream) WriteFrame(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(frame.Encode(payload)); err != nil {
		return err
	}
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}
