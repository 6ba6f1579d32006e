package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sclevine/spec"
	"github.com/sclevine/spec/report"

	"github.com/forgekit/forge/config"
	h "github.com/forgekit/forge/testhelpers"
)

func TestConfig(t *testing.T) {
	spec.Run(t, "config", testConfig, spec.Parallel(), spec.Report(report.Terminal{}))
}

func testConfig(t *testing.T, when spec.G, it spec.S) {
	var tmpDir string

	it.Before(func() {
		tmpDir = t.TempDir()
	})

	when("#New", func() {
		it("creates the config file when none exists", func() {
			subject, err := config.New(tmpDir)
			h.AssertNil(t, err)
			h.AssertEq(t, subject.Path(), tmpDir)

			_, err = os.Stat(filepath.Join(tmpDir, "config.toml"))
			h.AssertNil(t, err)
		})

		it("loads a previously saved address", func() {
			h.WriteFile(t, tmpDir, "config.toml", `default-address = "tcp://build.test:1234"`+"\n")

			subject, err := config.New(tmpDir)
			h.AssertNil(t, err)
			h.AssertEq(t, subject.DefaultAddress, "tcp://build.test:1234")
		})
	})

	when("#SetDefaultAddress", func() {
		it("persists across reloads", func() {
			subject, err := config.New(tmpDir)
			h.AssertNil(t, err)
			h.AssertNil(t, subject.SetDefaultAddress("unix:///tmp/buildkitd.sock"))

			reloaded, err := config.New(tmpDir)
			h.AssertNil(t, err)
			h.AssertEq(t, reloaded.DefaultAddress, "unix:///tmp/buildkitd.sock")
		})
	})
}
