package hlsdl

import (
	"context"
	"errors"
	"testing"
)

const mediaPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:10
#EXTINF:9.009,
segment_1.ts
#EXTINF:9.009,
segment_2.ts
#EXT-X-ENDLIST
`

const masterPlaylist = `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=1280000,RESOLUTION=1920x1080
high.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=640000,RESOLUTION=1280x720
low.m3u8
`

const encryptedPlaylist = `#EXTM3U
#EXT-X-TARGETDURATION:10
#EXT-X-KEY:METHOD=AES-128,URI="https://example.com/key"
#EXTINF:9.009,
segment_1.ts
#EXTINF:9.009,
segment_2.ts
#EXT-X-KEY:METHOD=NONE
#EXTINF:9.009,
segment_3.ts
#EXT-X-ENDLIST
`

func TestParsePlaylistMedia(t *testing.T) {
	f := newFixtureFetcher(map[string]string{
		"https://example.com/play.m3u8": mediaPlaylist,
	})
	pl, err := ParsePlaylist(context.Background(), f, "https://example.com/play.m3u8", false, nil)
	if err != nil {
		t.Fatalf("ParsePlaylist() error = %v", err)
	}
	if len(pl.Segments) != 2 {
		t.Fatalf("len(Segments) = %d, want 2", len(pl.Segments))
	}
	if pl.Segments[0].URI != "https://example.com/segment_1.ts" {
		t.Errorf("Segments[0].URI = %q", pl.Segments[0].URI)
	}
	if !pl.EndList {
		t.Errorf("EndList = false, want true")
	}
}

func TestParsePlaylistMaster(t *testing.T) {
	f := newFixtureFetcher(map[string]string{
		"https://example.com/master.m3u8": masterPlaylist,
		"https://example.com/high.m3u8":   mediaPlaylist,
	})
	selector := NewQualitySelector("best")
	pl, err := ParsePlaylist(context.Background(), f, "https://example.com/master.m3u8", false, selector)
	if err != nil {
		t.Fatalf("ParsePlaylist() error = %v", err)
	}
	if len(pl.Segments) != 2 {
		t.Fatalf("len(Segments) = %d, want 2", len(pl.Segments))
	}
}

func TestParsePlaylistMasterRequiresSelector(t *testing.T) {
	f := newFixtureFetcher(map[string]string{
		"https://example.com/master.m3u8": masterPlaylist,
	})
	_, err := ParsePlaylist(context.Background(), f, "https://example.com/master.m3u8", false, nil)
	if err == nil {
		t.Fatal("expected error for nil selector on master playlist")
	}
}

func TestParsePlaylistEncryptionKeyReuse(t *testing.T) {
	f := newFixtureFetcher(map[string]string{
		"https://example.com/play.m3u8": encryptedPlaylist,
	})
	pl, err := ParsePlaylist(context.Background(), f, "https://example.com/play.m3u8", false, nil)
	if err != nil {
		t.Fatalf("ParsePlaylist() error = %v", err)
	}
	if len(pl.Segments) != 3 {
		t.Fatalf("len(Segments) = %d, want 3", len(pl.Segments))
	}
	if pl.Segments[0].Encryption == nil || pl.Segments[1].Encryption == nil {
		t.Fatal("expected first two segments to carry an EncryptionSpec")
	}
	if pl.Segments[0].Encryption != pl.Segments[1].Encryption {
		t.Error("expected segments sharing one #EXT-X-KEY to reuse the same *EncryptionSpec pointer")
	}
	if pl.Segments[2].Encryption != nil {
		t.Error("expected third segment to be unencrypted after METHOD=NONE")
	}
}

func TestParsePlaylistStrictRejectsUnknownTag(t *testing.T) {
	text := "#EXTM3U\n#EXT-X-UNKNOWN-TAG:1\n#EXTINF:1,\nsegment_1.ts\n"
	f := newFixtureFetcher(map[string]string{
		"https://example.com/play.m3u8": text,
	})
	if _, err := ParsePlaylist(context.Background(), f, "https://example.com/play.m3u8", true, nil); err == nil {
		t.Fatal("expected strict parse to reject an unrecognized tag")
	}
	if _, err := ParsePlaylist(context.Background(), f, "https://example.com/play.m3u8", false, nil); err != nil {
		t.Errorf("non-strict parse should tolerate unknown tags, got %v", err)
	}
}

func TestParsePlaylistEmptyIsError(t *testing.T) {
	f := newFixtureFetcher(map[string]string{
		"https://example.com/play.m3u8": "#EXTM3U\n#EXT-X-TARGETDURATION:10\n",
	})
	_, err := ParsePlaylist(context.Background(), f, "https://example.com/play.m3u8", false, nil)
	var pe *ProcessorError
	if !errors.As(err, &pe) || pe.Kind != ErrKindEmptyPlaylist {
		t.Fatalf("ParsePlaylist() error = %v, want ErrKindEmptyPlaylist", err)
	}
}

func TestParsePlaylistMissingHeader(t *testing.T) {
	f := newFixtureFetcher(map[string]string{
		"https://example.com/play.m3u8": "#EXTINF:1,\nsegment_1.ts\n",
	})
	_, err := ParsePlaylist(context.Background(), f, "https://example.com/play.m3u8", false, nil)
	var pe *ProcessorError
	if !errors.As(err, &pe) || pe.Kind != ErrKindInvalidPlaylist {
		t.Fatalf("ParsePlaylist() error = %v, want ErrKindInvalidPlaylist", err)
	}
}

func TestParsePlaylistFetchFailureIsInvalidPlaylist(t *testing.T) {
	f := newFixtureFetcher(map[string]string{
		"https://example.com/play.m3u8": mediaPlaylist,
	})
	f.failOn("https://example.com/play.m3u8", errors.New("connection refused"))

	_, err := ParsePlaylist(context.Background(), f, "https://example.com/play.m3u8", false, nil)
	var pe *ProcessorError
	if !errors.As(err, &pe) || pe.Kind != ErrKindInvalidPlaylist {
		t.Fatalf("ParsePlaylist() error = %v, want ErrKindInvalidPlaylist", err)
	}
}
