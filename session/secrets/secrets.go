// Package secrets exposes build secrets to the daemon. Sources are
// fixed at construction: either literal bytes (already resolved by the
// caller) or a file read at request time.
package secrets

import (
	"context"
	"os"

	bksecrets "github.com/moby/buildkit/session/secrets"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/forgekit/forge/session"
)

const GetSecretMethod = "/moby.buildkit.secrets.v1.Secrets/GetSecret"

// Source supplies one secret. Data wins over FilePath when both are
// set.
type Source struct {
	ID       string
	FilePath string
	Data     []byte
}

type Store struct {
	sources map[string]Source
}

func NewStore(sources []Source) *Store {
	m := make(map[string]Source, len(sources))
	for _, s := range sources {
		m[s.ID] = s
	}
	return &Store{sources: m}
}

func (s *Store) Methods() []string {
	return []string{GetSecretMethod}
}

func (s *Store) Handle(ctx context.Context, stream session.Stream) error {
	payload, err := stream.ReadFrame()
	if err != nil {
		return err
	}
	var req bksecrets.GetSecretRequest
	if err := req.Unmarshal(payload); err != nil {
		return status.Errorf(codes.InvalidArgument, "malformed secret request: %v", err)
	}

	src, ok := s.sources[req.ID]
	if !ok {
		return status.Errorf(codes.NotFound, "no secret named %q", req.ID)
	}
	data := src.Data
	if data == nil {
		data, err = os.ReadFile(src.FilePath)
		if err != nil {
			return status.Errorf(codes.Internal, "reading secret %q: %v", req.ID, err)
		}
	}

	b, err := (&bksecrets.GetSecretResponse{Data: data}).Marshal()
	if err != nil {
		return err
	}
	return stream.WriteFrame(b)
}
