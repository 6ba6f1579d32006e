// Package filesync ships local directory trees to the daemon over the
// DiffCopy sub-RPC. Each synced directory is registered under a name
// the daemon selects with the dir-name header; the followpaths header
// narrows a sync to the paths the build actually reads.
package filesync

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/forgekit/forge/session"
)

// DiffCopyMethod is the method path the daemon calls to pull a synced
// directory.
const DiffCopyMethod = "/moby.filesync.v1.FileSync/DiffCopy"

const (
	keyDirName     = "dir-name"
	keyFollowPaths = "followpaths"
)

// Conventional dir names the dockerfile frontend asks for.
const (
	DirContext    = "context"
	DirDockerfile = "dockerfile"
)

// SyncedDir is one directory exposed to the daemon.
type SyncedDir struct {
	Name     string
	Dir      string
	Excludes []string
}

// FSSync is the file-sync attachable: one registration serves every
// synced directory, routed by the dir-name header.
type FSSync struct {
	dirs map[string]SyncedDir
}

func NewFSSync(dirs []SyncedDir) *FSSync {
	m := make(map[string]SyncedDir, len(dirs))
	for _, d := range dirs {
		m[d.Name] = d
	}
	return &FSSync{dirs: m}
}

func (f *FSSync) Methods() []string {
	return []string{DiffCopyMethod}
}

func (f *FSSync) Handle(ctx context.Context, stream session.Stream) error {
	name := DirContext
	if v := stream.Header(keyDirName); len(v) > 0 {
		name = v[0]
	}
	dir, ok := f.dirs[name]
	if !ok {
		return status.Errorf(codes.InvalidArgument, "no synced dir named %q", name)
	}
	return serveDiffCopy(ctx, stream, dir, stream.Header(keyFollowPaths))
}
