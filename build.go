package forge

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/uuid"
	controlapi "github.com/moby/buildkit/api/services/control"
	"github.com/moby/patternmatcher/ignorefile"
	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/metadata"

	"github.com/forgekit/forge/session"
	"github.com/forgekit/forge/session/auth"
	"github.com/forgekit/forge/session/filesync"
	"github.com/forgekit/forge/session/health"
	"github.com/forgekit/forge/session/secrets"
)

const (
	frontendDockerfile = "dockerfile.v0"

	exporterImage       = "image"
	exporterImageDigest = "containerimage.digest"

	keyFilename       = "filename"
	keyTarget         = "target"
	keyPlatform       = "platform"
	keyNoCache        = "no-cache"
	keyResolveMode    = "image-resolve-mode"
	keyContext        = "context"
	keyBuildArgPrefix = "build-arg:"

	cacheTypeRegistry = "registry"
)

// LocalSource builds from a directory on disk. The daemon pulls the
// tree back through the session's file-sync handler.
type LocalSource struct {
	ContextDir string
	// Dockerfile is relative to ContextDir; empty means "Dockerfile".
	Dockerfile string
}

// GitSource builds from a repository the daemon clones itself. Token,
// when set, is inlined into the context URI as userinfo.
type GitSource struct {
	URL        string
	Ref        string
	Subdir     string
	Token      string
	Dockerfile string
}

// RegistryAuth is an explicit credential for one registry host.
type RegistryAuth struct {
	Host     string
	Username string
	Password string
}

// BuildOptions is the build recipe: exactly one source plus modifiers.
type BuildOptions struct {
	Local *LocalSource
	Git   *GitSource

	BuildArgs    map[string]string
	Target       string
	Platforms    []Platform
	Tags         []string
	RegistryAuth *RegistryAuth
	// Credentials answers registry hosts not covered by RegistryAuth,
	// typically backed by the Docker CLI config. Nil means anonymous.
	Credentials auth.CredentialFunc
	CacheFrom   []string
	CacheTo     []string
	Secrets     []secrets.Source
	NoCache     bool
	Pull        bool
}

// BuildResult is the daemon's exporter output. Digest is empty when no
// image exporter ran.
type BuildResult struct {
	Digest           digest.Digest
	ExporterResponse map[string]string
}

// Build runs one solve: it attaches a session carrying the handlers the
// recipe needs, submits the solve request tagged with the session
// metadata, and forwards status events to sink (which may be nil) until
// the build completes. The solve, the status stream, and the session
// tunnel run concurrently; the first fatal error cancels the rest.
func (c *Client) Build(ctx context.Context, opts BuildOptions, sink ProgressSink) (*BuildResult, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	sess := session.New()
	if err := opts.attach(sess); err != nil {
		return nil, err
	}

	ref := "build-" + uuid.New().String()
	req, err := opts.solveRequest(ref, sess)
	if err != nil {
		return nil, err
	}

	var resp *controlapi.SolveResponse
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return sess.Run(ctx, c.control)
	})
	eg.Go(func() error {
		defer sess.Close()
		r, err := c.control.Solve(metadata.NewOutgoingContext(ctx, sess.Metadata()), req)
		if err != nil {
			return errors.Wrap(err, "solve")
		}
		resp = r
		return nil
	})
	if sink != nil {
		eg.Go(func() error {
			return forwardStatus(ctx, c.control, ref, sink)
		})
	}
	err = eg.Wait()

	var res *BuildResult
	if err == nil {
		res = &BuildResult{ExporterResponse: resp.ExporterResponse}
		if d, ok := resp.ExporterResponse[exporterImageDigest]; ok {
			res.Digest, err = digest.Parse(d)
			if err != nil {
				err = errors.Wrapf(err, "daemon returned malformed digest %s", d)
				res = nil
			}
		}
	}
	if sink != nil {
		sink.Finish(res, err)
	}
	return res, err
}

func forwardStatus(ctx context.Context, control controlapi.ControlClient, ref string, sink ProgressSink) error {
	stream, err := control.Status(ctx, &controlapi.StatusRequest{Ref: ref})
	if err != nil {
		return errors.Wrap(err, "subscribing to status")
	}
	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			// Teardown after a finished solve cancels the stream; that
			// is not a build failure.
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "status stream")
		}
		for _, v := range resp.Vertexes {
			sink.Vertex(v)
		}
		for _, s := range resp.Statuses {
			sink.Stat(s)
		}
		for _, l := range resp.Logs {
			sink.Log(l)
		}
	}
}

func (o *BuildOptions) validate() error {
	if (o.Local == nil) == (o.Git == nil) {
		return errors.New("exactly one of a local context and a git source is required")
	}
	for _, tag := range o.Tags {
		if _, err := name.ParseReference(tag, name.WeakValidation); err != nil {
			return errors.Wrapf(err, "invalid tag %s", tag)
		}
	}
	return nil
}

// attach registers the session handlers the recipe needs. The auth and
// health services are always present; file sync only serves local
// sources, and the secret store only appears when secrets are bound.
func (o *BuildOptions) attach(sess *session.Session) error {
	if o.Local != nil {
		dirs, err := o.Local.syncedDirs()
		if err != nil {
			return err
		}
		if err := sess.Allow(filesync.NewFSSync(dirs)); err != nil {
			return err
		}
	}
	if err := sess.Allow(auth.NewProvider(o.credentialFunc())); err != nil {
		return err
	}
	if len(o.Secrets) > 0 {
		if err := sess.Allow(secrets.NewStore(o.Secrets)); err != nil {
			return err
		}
	}
	return sess.Allow(health.NewChecker())
}

// credentialFunc layers the explicit registry credential over the
// configured resolver. Hosts neither covers are answered anonymously.
func (o *BuildOptions) credentialFunc() auth.CredentialFunc {
	explicit := o.RegistryAuth
	fallback := o.Credentials
	if explicit == nil && fallback == nil {
		return nil
	}
	return func(ctx context.Context, host string) (string, string, error) {
		if explicit != nil && explicit.Host == host {
			return explicit.Username, explicit.Password, nil
		}
		if fallback != nil {
			return fallback(ctx, host)
		}
		return "", "", nil
	}
}

func (o *BuildOptions) solveRequest(ref string, sess *session.Session) (*controlapi.SolveRequest, error) {
	attrs := map[string]string{}
	for k, v := range o.BuildArgs {
		attrs[keyBuildArgPrefix+k] = v
	}
	if o.Target != "" {
		attrs[keyTarget] = o.Target
	}
	if len(o.Platforms) > 0 {
		platforms := make([]string, len(o.Platforms))
		for i, p := range o.Platforms {
			platforms[i] = p.String()
		}
		attrs[keyPlatform] = strings.Join(platforms, ",")
	}
	if o.NoCache {
		attrs[keyNoCache] = "true"
	}
	if o.Pull {
		attrs[keyResolveMode] = "pull"
	}

	switch {
	case o.Local != nil:
		dockerfile := o.Local.Dockerfile
		if dockerfile == "" {
			dockerfile = "Dockerfile"
		}
		attrs[keyFilename] = filepath.Base(dockerfile)
		attrs[keyContext] = "input:" + sess.SharedKey() + ":" + filesync.DirContext
	case o.Git != nil:
		uri, err := o.Git.contextURI()
		if err != nil {
			return nil, err
		}
		attrs[keyContext] = uri
		if o.Git.Dockerfile != "" {
			attrs[keyFilename] = o.Git.Dockerfile
		}
	}

	var exporters []*controlapi.Exporter
	if len(o.Tags) > 0 {
		eattrs := map[string]string{
			"name": strings.Join(o.Tags, ","),
			"push": "true",
		}
		if o.RegistryAuth != nil && strings.HasPrefix(o.RegistryAuth.Host, "localhost") {
			eattrs["registry.insecure"] = "true"
		}
		exporters = append(exporters, &controlapi.Exporter{Type: exporterImage, Attrs: eattrs})
	}

	cache := controlapi.CacheOptions{}
	for _, imp := range o.CacheFrom {
		cache.Imports = append(cache.Imports, &controlapi.CacheOptionsEntry{
			Type:  cacheTypeRegistry,
			Attrs: map[string]string{"ref": imp},
		})
	}
	for _, exp := range o.CacheTo {
		cache.Exports = append(cache.Exports, &controlapi.CacheOptionsEntry{
			Type:  cacheTypeRegistry,
			Attrs: map[string]string{"ref": exp, "mode": "max"},
		})
	}

	return &controlapi.SolveRequest{
		Ref:           ref,
		Session:       sess.ID(),
		Frontend:      frontendDockerfile,
		FrontendAttrs: attrs,
		Exporters:     exporters,
		Cache:         cache,
	}, nil
}

func (s *LocalSource) syncedDirs() ([]filesync.SyncedDir, error) {
	ctxDir, err := filepath.Abs(s.ContextDir)
	if err != nil {
		return nil, errors.Wrap(err, "resolving context dir")
	}
	fi, err := os.Stat(ctxDir)
	if err != nil {
		return nil, errors.Wrapf(err, "context dir %s", ctxDir)
	}
	if !fi.IsDir() {
		return nil, errors.Errorf("context %s is not a directory", ctxDir)
	}

	dockerfile := s.Dockerfile
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}
	dockerfilePath := dockerfile
	if !filepath.IsAbs(dockerfilePath) {
		dockerfilePath = filepath.Join(ctxDir, dockerfilePath)
	}
	if _, err := os.Stat(dockerfilePath); err != nil {
		return nil, errors.Wrap(err, "dockerfile")
	}

	excludes, err := readDockerignore(ctxDir)
	if err != nil {
		return nil, err
	}

	return []filesync.SyncedDir{
		{Name: filesync.DirContext, Dir: ctxDir, Excludes: excludes},
		{Name: filesync.DirDockerfile, Dir: filepath.Dir(dockerfilePath)},
	}, nil
}

func readDockerignore(ctxDir string) ([]string, error) {
	f, err := os.Open(filepath.Join(ctxDir, ".dockerignore"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading .dockerignore")
	}
	defer f.Close()
	excludes, err := ignorefile.ReadAll(f)
	if err != nil {
		return nil, errors.Wrap(err, "parsing .dockerignore")
	}
	return excludes, nil
}

// contextURI renders the git source as the daemon's context form:
// scheme://[token@]host/path#ref[:subdir].
func (g *GitSource) contextURI() (string, error) {
	u, err := url.Parse(g.URL)
	if err != nil {
		return "", errors.Wrapf(err, "invalid git url %s", g.URL)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", errors.Errorf("git url %s must include a scheme and host", g.URL)
	}
	if g.Token != "" {
		u.User = url.User(g.Token)
	}
	uri := u.String()
	if g.Ref != "" || g.Subdir != "" {
		uri += "#" + g.Ref
		if g.Subdir != "" {
			uri += ":" + g.Subdir
		}
	}
	return uri, nil
}
