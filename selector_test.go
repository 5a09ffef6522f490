package hlsdl

import (
	"errors"
	"testing"
)

func TestNewQualitySelector(t *testing.T) {
	variants := []VariantStream{
		{Bandwidth: 800_000, Resolution: "640x360"},
		{Bandwidth: 3_000_000, Resolution: "1920x1080"},
		{Bandwidth: 1_500_000, Resolution: "1280x720"},
	}

	tests := []struct {
		name       string
		quality    string
		wantBw     uint32
		wantResAlt string // used only for the exact-resolution case
	}{
		{"best picks highest bandwidth", "best", 3_000_000, ""},
		{"empty defaults to best", "", 3_000_000, ""},
		{"worst picks lowest bandwidth", "worst", 800_000, ""},
		{"exact resolution match", "1280x720", 1_500_000, "1280x720"},
		{"unknown resolution falls back to best", "4k", 3_000_000, ""},
	}
	for _, tt := range tests {
		selector := NewQualitySelector(tt.quality)
		got, err := selector(variants)
		if err != nil {
			t.Fatalf("%s: selector() error = %v", tt.name, err)
		}
		if got.Bandwidth != tt.wantBw {
			t.Errorf("%s: Bandwidth = %d, want %d", tt.name, got.Bandwidth, tt.wantBw)
		}
		if tt.wantResAlt != "" && got.Resolution != tt.wantResAlt {
			t.Errorf("%s: Resolution = %q, want %q", tt.name, got.Resolution, tt.wantResAlt)
		}
	}
}

func TestNewQualitySelectorNoVariants(t *testing.T) {
	selector := NewQualitySelector("best")
	if _, err := selector(nil); err == nil {
		t.Fatal("expected error selecting from an empty variant list")
	}
}

func TestLoggingVariantSelectorReportsChosenVariant(t *testing.T) {
	variants := []VariantStream{
		{Bandwidth: 1_000_000, Resolution: "1280x720", Codecs: "avc1"},
	}
	var logged string
	selector := LoggingVariantSelector(NewQualitySelector("best"), func(line string) {
		logged = line
	})

	chosen, err := selector(variants)
	if err != nil {
		t.Fatalf("selector() error = %v", err)
	}
	if chosen.Resolution != "1280x720" {
		t.Errorf("chosen.Resolution = %q, want %q", chosen.Resolution, "1280x720")
	}
	want := "resolution=1280x720 bandwidth=1000000 codecs=avc1"
	if logged != want {
		t.Errorf("logged = %q, want %q", logged, want)
	}
}

func TestLoggingVariantSelectorPropagatesError(t *testing.T) {
	wantErr := errors.New("selection failed")
	selector := LoggingVariantSelector(func([]VariantStream) (VariantStream, error) {
		return VariantStream{}, wantErr
	}, func(string) {
		t.Fatal("log callback should not be called on error")
	})

	if _, err := selector(nil); !errors.Is(err, wantErr) {
		t.Errorf("selector() error = %v, want %v", err, wantErr)
	}
}
