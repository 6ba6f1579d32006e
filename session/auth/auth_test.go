package auth

import (
	"context"
	"io"
	"testing"

	bkauth "github.com/moby/buildkit/session/auth"
	"github.com/pkg/errors"
	"github.com/sclevine/spec"
	"github.com/sclevine/spec/report"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	h "github.com/forgekit/forge/testhelpers"
)

func TestAuth(t *testing.T) {
	spec.Run(t, "auth", testAuth, spec.Parallel(), spec.Report(report.Terminal{}))
}

type fakeStream struct {
	method string
	in     [][]byte
	out    [][]byte
}

func (s *fakeStream) Method() string {
	return s.method
}

func (s *fakeStream) Header(string) []string {
	return nil
}

func (s *fakeStream) ReadFrame() ([]byte, error) {
	if len(s.in) == 0 {
		return nil, io.EOF
	}
	payload := s.in[0]
	s.in = s.in[1:]
	return payload, nil
}

func (s *fakeStream) WriteFrame(payload []byte) error {
	s.out = append(s.out, payload)
	return nil
}

func credentialsStream(t *testing.T, host string) *fakeStream {
	t.Helper()
	payload, err := (&bkauth.CredentialsRequest{Host: host}).Marshal()
	h.AssertNil(t, err)
	return &fakeStream{method: CredentialsMethod, in: [][]byte{payload}}
}

func testAuth(t *testing.T, when spec.G, it spec.S) {
	when("#Credentials", func() {
		it("returns the resolved credential for the host", func() {
			subject := NewProvider(func(ctx context.Context, host string) (string, string, error) {
				h.AssertEq(t, host, "registry.test")
				return "user", "pass", nil
			})

			stream := credentialsStream(t, "registry.test")
			h.AssertNil(t, subject.Handle(context.Background(), stream))

			h.AssertEq(t, len(stream.out), 1)
			var resp bkauth.CredentialsResponse
			h.AssertNil(t, resp.Unmarshal(stream.out[0]))
			h.AssertEq(t, resp.Username, "user")
			h.AssertEq(t, resp.Secret, "pass")
		})

		it("answers anonymously when no resolver is configured", func() {
			subject := NewProvider(nil)

			stream := credentialsStream(t, "example.test")
			h.AssertNil(t, subject.Handle(context.Background(), stream))

			var resp bkauth.CredentialsResponse
			h.AssertNil(t, resp.Unmarshal(stream.out[0]))
			h.AssertEq(t, resp.Username, "")
			h.AssertEq(t, resp.Secret, "")
		})

		it("reports a resolver failure as an internal status", func() {
			subject := NewProvider(func(ctx context.Context, host string) (string, string, error) {
				return "", "", errors.New("helper crashed")
			})

			err := subject.Handle(context.Background(), credentialsStream(t, "registry.test"))
			h.AssertEq(t, status.Code(err), codes.Internal)
			h.AssertContains(t, err.Error(), "registry.test")
		})
	})

	when("#FetchToken", func() {
		it("returns an empty token", func() {
			subject := NewProvider(nil)
			payload, err := (&bkauth.FetchTokenRequest{Host: "registry.test"}).Marshal()
			h.AssertNil(t, err)

			stream := &fakeStream{method: FetchTokenMethod, in: [][]byte{payload}}
			h.AssertNil(t, subject.Handle(context.Background(), stream))

			var resp bkauth.FetchTokenResponse
			h.AssertNil(t, resp.Unmarshal(stream.out[0]))
			h.AssertEq(t, resp.Token, "")
		})
	})

	when("#GetTokenAuthority", func() {
		it("responds unimplemented so the daemon falls back to basic auth", func() {
			subject := NewProvider(nil)
			stream := &fakeStream{method: TokenAuthorityMethod}
			err := subject.Handle(context.Background(), stream)
			h.AssertEq(t, status.Code(err), codes.Unimplemented)
			h.AssertEq(t, len(stream.out), 0)
		})
	})
}
