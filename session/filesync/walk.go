package filesync

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/moby/patternmatcher"
	"github.com/pkg/errors"
	"github.com/tonistiigi/fsutil/types"
)

// walkDir enumerates the contents of root depth-first, siblings in
// lexicographic order, parents before children. The root itself is not
// emitted. excludes follow .dockerignore semantics; followPaths, when
// non-empty, restrict the walk to the named paths, their descendants,
// and the directories that carry them.
//
// The Stat handed to fn uses the daemon's mode encoding: Go file-type
// bits in the high word plus POSIX permission bits. Directory sizes are
// forced to zero and symlinks record their target without being
// followed.
func walkDir(root string, excludes, followPaths []string, fn func(relPath string, stat *types.Stat) error) error {
	root, err := filepath.Abs(root)
	if err != nil {
		return errors.Wrap(err, "resolving sync root")
	}

	var pm *patternmatcher.PatternMatcher
	if len(excludes) > 0 {
		pm, err = patternmatcher.New(excludes)
		if err != nil {
			return errors.Wrap(err, "parsing ignore patterns")
		}
	}

	follow := make([]string, 0, len(followPaths))
	for _, p := range followPaths {
		if p = strings.Trim(filepath.ToSlash(filepath.Clean(p)), "/"); p != "" && p != "." {
			follow = append(follow, p)
		}
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if pm != nil {
			matched, err := pm.MatchesOrParentMatches(rel)
			if err != nil {
				return errors.Wrapf(err, "matching %s", rel)
			}
			if matched {
				if d.IsDir() {
					if !pm.Exclusions() {
						return filepath.SkipDir
					}
					// A later ! pattern may re-include a child, so
					// descend without emitting this directory.
					return nil
				}
				return nil
			}
		}

		if !withinFollowPaths(follow, rel, d.IsDir()) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return err
		}
		stat := &types.Stat{
			Path:    rel,
			Mode:    uint32(fi.Mode()),
			Size_:   fi.Size(),
			ModTime: fi.ModTime().UnixNano(),
		}
		statOwner(fi, stat)
		if fi.IsDir() {
			stat.Size_ = 0
		}
		if fi.Mode()&os.ModeSymlink != 0 {
			link, err := os.Readlink(path)
			if err != nil {
				return errors.Wrapf(err, "reading link %s", rel)
			}
			stat.Linkname = link
		}
		return fn(rel, stat)
	})
}

// withinFollowPaths reports whether rel survives the follow-paths
// restriction: it is one of the paths, a descendant of one, or (for
// directories) an ancestor that carries one.
func withinFollowPaths(follow []string, rel string, isDir bool) bool {
	if len(follow) == 0 {
		return true
	}
	for _, f := range follow {
		if rel == f || strings.HasPrefix(rel, f+"/") {
			return true
		}
		if isDir && strings.HasPrefix(f, rel+"/") {
			return true
		}
	}
	return false
}
