package updater

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func fakeExecutable(t *testing.T, script string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "yt-dlp")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestVersion(t *testing.T) {
	exe := fakeExecutable(t, `echo "2024.08.06"`)

	v, err := Version(context.Background(), exe)
	if err != nil {
		t.Fatal(err)
	}
	if v != "2024.08.06" {
		t.Errorf("unexpected version %q", v)
	}
}

func TestUpdateExecutableFailure(t *testing.T) {
	exe := fakeExecutable(t, `echo "ERROR: unable to write" >&2; exit 1`)

	if err := UpdateExecutable(context.Background(), exe); err == nil {
		t.Error("expected the failing update to be reported")
	}
}

func TestVersionMissingExecutable(t *testing.T) {
	if _, err := Version(context.Background(), "/does/not/exist/yt-dlp"); err == nil {
		t.Error("expected an error for a missing executable")
	}
}
