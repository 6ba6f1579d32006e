// Package auth answers the daemon's registry credential callbacks.
// Credentials are injected at construction; handlers never consult the
// process environment.
package auth

import (
	"context"
	"time"

	bkauth "github.com/moby/buildkit/session/auth"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/forgekit/forge/session"
)

const (
	CredentialsMethod    = "/moby.filesync.v1.Auth/Credentials"
	FetchTokenMethod     = "/moby.filesync.v1.Auth/FetchToken"
	TokenAuthorityMethod = "/moby.filesync.v1.Auth/GetTokenAuthority"
)

// credentialTimeout bounds one credential lookup, which may reach out
// to a credential helper process.
const credentialTimeout = 10 * time.Second

// CredentialFunc resolves registry credentials for a host. Returning
// empty fields grants anonymous access.
type CredentialFunc func(ctx context.Context, host string) (username, secret string, err error)

// Provider serves the three Auth methods. A nil resolver answers every
// host anonymously.
type Provider struct {
	credentials CredentialFunc
}

func NewProvider(credentials CredentialFunc) *Provider {
	return &Provider{credentials: credentials}
}

func (p *Provider) Methods() []string {
	return []string{CredentialsMethod, FetchTokenMethod, TokenAuthorityMethod}
}

func (p *Provider) Handle(ctx context.Context, stream session.Stream) error {
	switch stream.Method() {
	case CredentialsMethod:
		return p.handleCredentials(ctx, stream)
	case FetchTokenMethod:
		return p.handleFetchToken(stream)
	case TokenAuthorityMethod:
		// The daemon falls back to basic auth on unimplemented.
		return status.Error(codes.Unimplemented, "token authority not supported")
	default:
		return status.Errorf(codes.Unimplemented, "unknown auth method %s", stream.Method())
	}
}

func (p *Provider) handleCredentials(ctx context.Context, stream session.Stream) error {
	payload, err := stream.ReadFrame()
	if err != nil {
		return err
	}
	var req bkauth.CredentialsRequest
	if err := req.Unmarshal(payload); err != nil {
		return status.Errorf(codes.InvalidArgument, "malformed credentials request: %v", err)
	}

	resp := &bkauth.CredentialsResponse{}
	if p.credentials != nil {
		ctx, cancel := context.WithTimeout(ctx, credentialTimeout)
		defer cancel()
		username, secret, err := p.credentials(ctx, req.Host)
		if err != nil {
			return status.Errorf(codes.Internal, "resolving credentials for %s: %v", req.Host, err)
		}
		resp.Username = username
		resp.Secret = secret
	}

	b, err := resp.Marshal()
	if err != nil {
		return err
	}
	return stream.WriteFrame(b)
}

func (p *Provider) handleFetchToken(stream session.Stream) error {
	payload, err := stream.ReadFrame()
	if err != nil {
		return err
	}
	var req bkauth.FetchTokenRequest
	if err := req.Unmarshal(payload); err != nil {
		return status.Errorf(codes.InvalidArgument, "malformed token request: %v", err)
	}

	// An empty token is permitted; the daemon performs the exchange
	// itself with the basic credentials.
	b, err := (&bkauth.FetchTokenResponse{}).Marshal()
	if err != nil {
		return err
	}
	return stream.WriteFrame(b)
}
