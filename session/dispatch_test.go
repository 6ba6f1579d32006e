package session

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"testing"

	"github.com/sclevine/spec"
	"github.com/sclevine/spec/report"
	"golang.org/x/net/http2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/forgekit/forge/internal/frame"
	h "github.com/forgekit/forge/testhelpers"
)

func TestDispatch(t *testing.T) {
	spec.Run(t, "dispatch", testDispatch, spec.Report(report.Terminal{}))
}

// funcHandler adapts a function to Attachable for tests.
type funcHandler struct {
	methods []string
	fn      func(ctx context.Context, stream Stream) error
}

func (f *funcHandler) Methods() []string {
	return f.methods
}

func (f *funcHandler) Handle(ctx context.Context, stream Stream) error {
	return f.fn(ctx, stream)
}

// tunnel serves the dispatcher over one end of an in-memory pipe and
// returns an HTTP/2 client bound to the other end.
type tunnel struct {
	tr     *http2.Transport
	cancel context.CancelFunc
	conn   net.Conn
}

func startTunnel(handlers map[string]Attachable) *tunnel {
	serverConn, clientConn := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	go serveTunnel(ctx, serverConn, handlers)

	tr := &http2.Transport{
		AllowHTTP: true,
		DialTLSContext: func(ctx context.Context, network, addr string, cfg *tls.Config) (net.Conn, error) {
			return clientConn, nil
		},
	}
	return &tunnel{tr: tr, cancel: cancel, conn: serverConn}
}

func (tn *tunnel) close() {
	tn.cancel()
	tn.conn.Close()
}

func (tn *tunnel) call(t *testing.T, method string, payloads ...[]byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	for _, p := range payloads {
		body.Write(frame.Encode(p))
	}
	req, err := http.NewRequest(http.MethodPost, "http://session"+method, &body)
	h.AssertNil(t, err)
	req.Header.Set("Content-Type", "application/grpc")
	resp, err := tn.tr.RoundTrip(req)
	h.AssertNil(t, err)
	return resp
}

func testDispatch(t *testing.T, when spec.G, it spec.S) {
	when("the method is registered", func() {
		it("routes frames through the handler and trails a success status", func() {
			echo := &funcHandler{
				methods: []string{"/test.Echo/Echo"},
				fn: func(ctx context.Context, stream Stream) error {
					for {
						payload, err := stream.ReadFrame()
						if err == io.EOF {
							return nil
						}
						if err != nil {
							return err
						}
						if err := stream.WriteFrame(payload); err != nil {
							return err
						}
					}
				},
			}
			tn := startTunnel(map[string]Attachable{"/test.Echo/Echo": echo})
			defer tn.close()

			resp := tn.call(t, "/test.Echo/Echo", []byte("first"), []byte("second"))
			h.AssertEq(t, resp.StatusCode, http.StatusOK)
			h.AssertEq(t, resp.Header.Get("Content-Type"), "application/grpc")

			r := frame.NewReader(resp.Body)
			payload, err := r.Next()
			h.AssertNil(t, err)
			h.AssertEq(t, string(payload), "first")
			payload, err = r.Next()
			h.AssertNil(t, err)
			h.AssertEq(t, string(payload), "second")
			_, err = r.Next()
			h.AssertEq(t, err, io.EOF)
			resp.Body.Close()

			h.AssertEq(t, resp.Trailer.Get("Grpc-Status"), "0")
		})

		it("exposes the method path and request headers to the handler", func() {
			var gotMethod string
			var gotDir []string
			handler := &funcHandler{
				methods: []string{"/test.Meta/Get"},
				fn: func(ctx context.Context, stream Stream) error {
					gotMethod = stream.Method()
					gotDir = stream.Header("dir-name")
					return nil
				},
			}
			tn := startTunnel(map[string]Attachable{"/test.Meta/Get": handler})
			defer tn.close()

			req, err := http.NewRequest(http.MethodPost, "http://session/test.Meta/Get", bytes.NewReader(nil))
			h.AssertNil(t, err)
			req.Header.Set("dir-name", "context")
			resp, err := tn.tr.RoundTrip(req)
			h.AssertNil(t, err)
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()

			h.AssertEq(t, gotMethod, "/test.Meta/Get")
			h.AssertEq(t, gotDir, []string{"context"})
		})

		it("maps a handler error to its status code in the trailers", func() {
			failing := &funcHandler{
				methods: []string{"/test.Fail/Fail"},
				fn: func(ctx context.Context, stream Stream) error {
					return status.Error(codes.InvalidArgument, "bad request frame")
				},
			}
			tn := startTunnel(map[string]Attachable{"/test.Fail/Fail": failing})
			defer tn.close()

			resp := tn.call(t, "/test.Fail/Fail")
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()

			h.AssertEq(t, resp.Trailer.Get("Grpc-Status"), "3")
			h.AssertEq(t, resp.Trailer.Get("Grpc-Message"), "bad request frame")
		})
	})

	when("the method is not registered", func() {
		it("responds with an unimplemented status in the headers", func() {
			tn := startTunnel(map[string]Attachable{})
			defer tn.close()

			resp := tn.call(t, "/no.Such/Method")
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()

			h.AssertEq(t, resp.Header.Get("Grpc-Status"), "12")
			h.AssertContains(t, resp.Header.Get("Grpc-Message"), "/no.Such/Method")
		})
	})
}
