package health

import (
	"context"
	"io"
	"testing"

	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/proto"

	h "github.com/forgekit/forge/testhelpers"
)

type fakeStream struct {
	in  [][]byte
	out [][]byte
}

func (s *fakeStream) Method() string {
	return CheckMethod
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

func TestCheck(t *testing.T) {
	request, err := proto.Marshal(&grpc_health_v1.HealthCheckRequest{})
	h.AssertNil(t, err)

	stream := &fakeStream{in: [][]byte{request}}
	h.AssertNil(t, NewChecker().Handle(context.Background(), stream))

	h.AssertEq(t, len(stream.out), 1)
	var resp grpc_health_v1.HealthCheckResponse
	h.AssertNil(t, proto.Unmarshal(stream.out[0], &resp))
	h.AssertEq(t, resp.Status, grpc_health_v1.HealthCheckResponse_SERVING)
}
