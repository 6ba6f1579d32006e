// Package health answers the daemon's liveness probes on the session
// stream.
package health

import (
	"context"

	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/proto"

	"github.com/forgekit/forge/session"
)

const CheckMethod = "/grpc.health.v1.Health/Check"

type Checker struct{}

func NewChecker() *Checker {
	return &Checker{}
}

func (c *Checker) Methods() []string {
	return []string{CheckMethod}
}

func (c *Checker) Handle(ctx context.Context, stream session.Stream) error {
	// The request names a service we don't distinguish; drain it.
	if _, err := stream.ReadFrame(); err != nil {
		return err
	}
	b, err := proto.Marshal(&grpc_health_v1.HealthCheckResponse{
		Status: grpc_health_v1.HealthCheckResponse_SERVING,
	})
	if err != nil {
		return err
	}
	return stream.WriteFrame(b)
}
