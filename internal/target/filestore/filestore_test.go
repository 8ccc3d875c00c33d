package filestore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSave(t *testing.T) {
	ctx := context.Background()
	s := New(t.TempDir())

	tests := []struct {
		name    string
		file    string
		content string
		want    string
	}{
		{"new file", "shot.png", "one", "shot.png"},
		{"same content reuses name", "shot.png", "one", "shot.png"},
		{"different content gets suffix", "shot.png", "two", "shot-1.png"},
		{"suffix reused for its content", "shot.png", "two", "shot-1.png"},
		{"path components stripped", "../../etc/passwd", "x", "passwd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Save(ctx, 3, "owner", tt.file, strings.NewReader(tt.content))
			if err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("Save() = %q, want %q", got, tt.want)
			}
			b, err := os.ReadFile(s.Path(3, "owner", got))
			if err != nil {
				t.Fatal(err)
			}
			if string(b) != tt.content {
				t.Errorf("stored content = %q, want %q", b, tt.content)
			}
		})
	}

	entries, err := os.ReadDir(s.dir(3, "owner"))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".upload-") {
			t.Errorf("temporary file %s left behind", e.Name())
		}
	}
}

func TestSaveHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(t.TempDir()).Save(ctx, 1, "o", "a.txt", strings.NewReader("a")); err == nil {
		t.Error("Save() with cancelled context succeeded")
	}
}

func TestURLFor(t *testing.T) {
	if got := New("/x").URLFor(2, "abc", "a b.txt"); got != "/~downloads/projects/2/attachments/abc/a%20b.txt" {
		t.Errorf("URLFor() = %q", got)
	}
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	s := New(t.TempDir())

	first, err := s.Save(ctx, 3, "owner", "a.txt", strings.NewReader("a"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	second, err := s.Save(ctx, 3, "owner", "b.txt", strings.NewReader("b"))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := s.Remove(ctx, 3, "owner", first); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := os.Stat(s.Path(3, "owner", first)); !os.IsNotExist(err) {
		t.Errorf("%s still exists: %v", first, err)
	}
	if err := s.Remove(ctx, 3, "owner", first); err != nil {
		t.Errorf("Remove() of a missing file error = %v", err)
	}

	if err := s.Remove(ctx, 3, "owner", second); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := os.Stat(filepath.Dir(s.Path(3, "owner", second))); !os.IsNotExist(err) {
		t.Errorf("owner directory left behind: %v", err)
	}
}
