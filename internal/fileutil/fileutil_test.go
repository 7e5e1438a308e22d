package fileutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCopyFileVerified(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")

	content := []byte("verified copy content")
	if err := os.WriteFile(src, content, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := CopyFileVerified(src, dst); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(content) {
		t.Fatalf("content mismatch: got %q, want %q", got, content)
	}
}

func TestCopyFileVerified_MissingSource(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "nonexistent")
	dst := filepath.Join(dir, "dst.bin")

	if err := CopyFileVerified(src, dst); err == nil {
		t.Fatal("expected error for missing source")
	}
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		t.Fatal("expected no destination file for missing source")
	}
}

func TestCopyIntoDirVerified(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	src := filepath.Join(srcDir, "image.dcm")

	if err := os.WriteFile(src, []byte("dicom payload"), 0o644); err != nil {
		t.Fatal(err)
	}

	dst, err := CopyIntoDirVerified(src, dstDir)
	if err != nil {
		t.Fatal(err)
	}
	if dst != filepath.Join(dstDir, "image.dcm") {
		t.Fatalf("unexpected destination: %q", dst)
	}
	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "dicom payload" {
		t.Fatalf("content mismatch: got %q", got)
	}
}

func TestCopyIntoDirVerifiedOverwrites(t *testing.T) {
	srcDir := t.TempDir()
	dstDir := t.TempDir()
	src := filepath.Join(srcDir, "image.dcm")
	existing := filepath.Join(dstDir, "image.dcm")

	if err := os.WriteFile(src, []byte("fresh"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(existing, []byte("stale partial"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := CopyIntoDirVerified(src, dstDir); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(existing)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "fresh" {
		t.Fatalf("expected overwrite, got %q", got)
	}
}
