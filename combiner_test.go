package hlsdl

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConcatCombinerOrdersAndDeletesInputs(t *testing.T) {
	dir := t.TempDir()
	paths := make([]string, 3)
	for i, content := range []string{"AAA", "BBB", "CCC"} {
		path := filepath.Join(dir, "segment_"+string(rune('1'+i))+".ts")
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
		paths[i] = path
	}

	out := filepath.Join(dir, "output.ts")
	combiner := NewConcatCombiner()
	if err := combiner.Combine(paths, dir, out); err != nil {
		t.Fatalf("Combine() error = %v", err)
	}

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile(output) error = %v", err)
	}
	if string(got) != "AAABBBCCC" {
		t.Errorf("Combine() output = %q, want %q", got, "AAABBBCCC")
	}

	for _, path := range paths {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("expected %s removed after combine, stat err = %v", path, err)
		}
	}
}

func TestConcatCombinerMissingInputErrors(t *testing.T) {
	dir := t.TempDir()
	combiner := NewConcatCombiner()
	err := combiner.Combine([]string{filepath.Join(dir, "nope.ts")}, dir, filepath.Join(dir, "out.ts"))
	if err == nil {
		t.Fatal("expected an error when an input segment is missing")
	}
}

func TestFFmpegCombinerMissingBinary(t *testing.T) {
	t.Setenv("PATH", "")
	combiner := NewFFmpegCombiner()
	err := combiner.Combine([]string{"seg.ts"}, t.TempDir(), "out.ts")
	if err == nil {
		t.Fatal("expected an error when ffmpeg is not on PATH")
	}
}
