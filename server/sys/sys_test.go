package sys

import "testing"

func TestFreeSpace(t *testing.T) {
	free, err := FreeSpace(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if free == 0 {
		t.Error("expected some free space in the temp dir")
	}
}

func TestFreeSpaceMissingPath(t *testing.T) {
	if _, err := FreeSpace("/does/not/exist"); err == nil {
		t.Error("expected an error for a missing path")
	}
}
