package version

import (
	"runtime/debug"
	"testing"
)

func saveAndRestore() func() {
	origVersion, origCommit, origBuildTime, origRead := Version, GitCommit, BuildTime, readBuildInfo
	return func() {
		Version = origVersion
		GitCommit = origCommit
		BuildTime = origBuildTime
		readBuildInfo = origRead
	}
}

func fakeBuildInfo(main string, settings ...debug.BuildSetting) func() (*debug.BuildInfo, bool) {
	return func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{
			GoVersion: "go1.26.0",
			Main:      debug.Module{Version: main},
			Settings:  settings,
		}, true
	}
}

func TestGetWithoutBuildInfo(t *testing.T) {
	defer saveAndRestore()()
	Version, GitCommit, BuildTime = "dev", "", ""
	readBuildInfo = func() (*debug.BuildInfo, bool) { return nil, false }

	info := Get()
	if info.Version != "dev" || info.GoVersion != "" {
		t.Errorf("unexpected info %+v", info)
	}
	if got := info.String(); got != "cmdkit dev" {
		t.Errorf("expected 'cmdkit dev', got %q", got)
	}
}

func TestGetFromVCSStamp(t *testing.T) {
	defer saveAndRestore()()
	Version, GitCommit, BuildTime = "dev", "", ""
	readBuildInfo = fakeBuildInfo("(devel)",
		debug.BuildSetting{Key: "vcs.revision", Value: "abc1234def5678"},
		debug.BuildSetting{Key: "vcs.modified", Value: "true"},
		debug.BuildSetting{Key: "vcs.time", Value: "2026-01-15T10:30:00Z"},
	)

	info := Get()
	if info.Version != "dev" {
		t.Errorf("expected 'dev' for a devel build, got %q", info.Version)
	}
	if info.GitCommit != "abc1234" || !info.Dirty || info.BuildTime != "2026-01-15T10:30:00Z" {
		t.Errorf("unexpected info %+v", info)
	}
	want := "cmdkit dev (abc1234-dirty, built 2026-01-15T10:30:00Z, go1.26.0)"
	if got := info.String(); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestGetModuleVersion(t *testing.T) {
	defer saveAndRestore()()
	Version, GitCommit, BuildTime = "dev", "", ""
	readBuildInfo = fakeBuildInfo("v1.4.0")

	if got := Get().Version; got != "1.4.0" {
		t.Errorf("expected '1.4.0', got %q", got)
	}
}

func TestLdflagsWin(t *testing.T) {
	defer saveAndRestore()()
	Version, GitCommit, BuildTime = "2.0.0", "fedcba9", "2026-02-01T00:00:00Z"
	readBuildInfo = fakeBuildInfo("v1.4.0",
		debug.BuildSetting{Key: "vcs.revision", Value: "abc1234def5678"},
		debug.BuildSetting{Key: "vcs.time", Value: "2026-01-15T10:30:00Z"},
	)

	info := Get()
	if info.Version != "2.0.0" || info.GitCommit != "fedcba9" || info.BuildTime != "2026-02-01T00:00:00Z" {
		t.Errorf("expected -ldflags values, got %+v", info)
	}
}
