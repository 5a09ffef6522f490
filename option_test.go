package hlsdl

import "testing"

func TestOptionCombineCleanupSegmentsOnComplete(t *testing.T) {
	tests := []struct {
		name  string
		other Option
		want  bool
	}{
		{"unset caller value keeps the true default", Option{}, true},
		{"explicit false overrides the true default", Option{CleanupSegmentsOnComplete: boolPtr(false)}, false},
		{"explicit true is a no-op against the true default", Option{CleanupSegmentsOnComplete: boolPtr(true)}, true},
	}
	for _, tt := range tests {
		merged := DefaultOptions.Combine(tt.other)
		if got := merged.cleanupSegmentsOnComplete(); got != tt.want {
			t.Errorf("%s: cleanupSegmentsOnComplete() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestOptionCombineOverridesOtherFields(t *testing.T) {
	other := Option{WorkDir: "custom", NumThreads: 7}
	merged := DefaultOptions.Combine(other)
	if merged.WorkDir != "custom" {
		t.Errorf("WorkDir = %q, want %q", merged.WorkDir, "custom")
	}
	if merged.NumThreads != 7 {
		t.Errorf("NumThreads = %d, want 7", merged.NumThreads)
	}
	if merged.OutputPath != DefaultOptions.OutputPath {
		t.Errorf("OutputPath = %q, want default %q unchanged", merged.OutputPath, DefaultOptions.OutputPath)
	}
}
