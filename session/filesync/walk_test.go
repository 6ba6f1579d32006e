package filesync

import (
	"os"
	"testing"

	"github.com/sclevine/spec"
	"github.com/sclevine/spec/report"
	"github.com/tonistiigi/fsutil/types"

	h "github.com/forgekit/forge/testhelpers"
)

func TestWalk(t *testing.T) {
	spec.Run(t, "walk", testWalk, spec.Parallel(), spec.Report(report.Terminal{}))
}

func collect(t *testing.T, dir string, excludes, followPaths []string) []*types.Stat {
	t.Helper()
	var stats []*types.Stat
	h.AssertNil(t, walkDir(dir, excludes, followPaths, func(rel string, stat *types.Stat) error {
		stats = append(stats, stat)
		return nil
	}))
	return stats
}

func paths(stats []*types.Stat) []string {
	var out []string
	for _, s := range stats {
		out = append(out, s.Path)
	}
	return out
}

func testWalk(t *testing.T, when spec.G, it spec.S) {
	var dir string

	it.Before(func() {
		dir = t.TempDir()
		h.WriteFile(t, dir, "Dockerfile", "FROM scratch\n")
		h.WriteFile(t, dir, "src/a.c", "int a;\n")
		h.WriteFile(t, dir, "src/b.c", "int b;\n")
		h.WriteFile(t, dir, "src/deep/c.c", "int c;\n")
	})

	when("#walkDir", func() {
		it("walks depth-first with lexicographic siblings, root omitted", func() {
			h.AssertEq(t, paths(collect(t, dir, nil, nil)), []string{
				"Dockerfile",
				"src",
				"src/a.c",
				"src/b.c",
				"src/deep",
				"src/deep/c.c",
			})
		})

		it("yields identical output across repeated runs of an unchanged tree", func() {
			first := paths(collect(t, dir, nil, nil))
			second := paths(collect(t, dir, nil, nil))
			h.AssertEq(t, first, second)
		})

		it("tags directories with the high type bit and zero size", func() {
			stats := collect(t, dir, nil, nil)
			var src *types.Stat
			for _, s := range stats {
				if s.Path == "src" {
					src = s
				}
			}
			h.AssertNotNil(t, src)
			h.AssertEq(t, src.Mode&uint32(os.ModeDir), uint32(os.ModeDir))
			h.AssertEq(t, src.Size_, int64(0))
		})

		it("classifies regular files without high type bits", func() {
			stats := collect(t, dir, nil, nil)
			h.AssertEq(t, stats[0].Path, "Dockerfile")
			h.AssertEq(t, stats[0].Mode&uint32(os.ModeType), uint32(0))
			h.AssertEq(t, stats[0].Size_, int64(len("FROM scratch\n")))
		})

		it("records symlink targets without following them", func() {
			h.Symlink(t, dir, "link", "src/a.c")
			stats := collect(t, dir, nil, nil)
			var link *types.Stat
			for _, s := range stats {
				if s.Path == "link" {
					link = s
				}
			}
			h.AssertNotNil(t, link)
			h.AssertEq(t, link.Mode&uint32(os.ModeSymlink), uint32(os.ModeSymlink))
			h.AssertEq(t, link.Linkname, "src/a.c")
		})

		when("ignore patterns are set", func() {
			it("drops matching entries", func() {
				h.AssertEq(t, paths(collect(t, dir, []string{"src/b.c"}, nil)), []string{
					"Dockerfile",
					"src",
					"src/a.c",
					"src/deep",
					"src/deep/c.c",
				})
			})

			it("skips whole ignored directories", func() {
				h.AssertEq(t, paths(collect(t, dir, []string{"src"}, nil)), []string{
					"Dockerfile",
				})
			})

			it("honors a later re-include rule", func() {
				h.AssertEq(t, paths(collect(t, dir, []string{"src", "!src/a.c"}, nil)), []string{
					"Dockerfile",
					"src/a.c",
				})
			})

			it("anchors patterns to the context root", func() {
				h.WriteFile(t, dir, "src/Dockerfile", "FROM scratch\n")
				h.AssertEq(t, paths(collect(t, dir, []string{"Dockerfile"}, nil)), []string{
					"src",
					"src/Dockerfile",
					"src/a.c",
					"src/b.c",
					"src/deep",
					"src/deep/c.c",
				})
			})
		})

		when("follow paths are set", func() {
			it("keeps the named paths and the directories carrying them", func() {
				h.AssertEq(t, paths(collect(t, dir, nil, []string{"src/deep/c.c"})), []string{
					"src",
					"src/deep",
					"src/deep/c.c",
				})
			})

			it("keeps descendants of a named directory", func() {
				h.AssertEq(t, paths(collect(t, dir, nil, []string{"src/deep"})), []string{
					"src",
					"src/deep",
					"src/deep/c.c",
				})
			})
		})
	})
}
