package hlsdl

import (
	"context"
	"net/url"
	"strconv"
	"strings"
)

// recognizedTags is the set of #EXT- tags this parser understands. Under
// strict parsing, any other #EXT- tag fails with UnsupportedTag.
var recognizedTags = map[string]struct{}{
	"EXTM3U":                {},
	"EXT-X-VERSION":         {},
	"EXT-X-TARGETDURATION":  {},
	"EXT-X-MEDIA-SEQUENCE":  {},
	"EXTINF":                {},
	"EXT-X-KEY":             {},
	"EXT-X-ENDLIST":         {},
	"EXT-X-STREAM-INF":      {},
}

// ParsePlaylist fetches and parses the playlist at url. If the document is
// a master playlist, selector chooses a variant and parsing recurses into
// it; selector must be non-nil whenever a master playlist may be
// encountered. Grounded on the teacher's m3u8.go tag-walking style, with a
// hand-rolled tokenizer instead of a third-party decoder so that strict-mode
// enforcement and EncryptionSpec value-reuse (see types.go) are possible —
// see SPEC_FULL.md §4.1 for why grafov/m3u8 cannot serve this role.
func ParsePlaylist(ctx context.Context, f Fetcher, playlistURL string, strict bool, selector VariantSelector) (*Playlist, error) {
	data, err := fetchToEnd(ctx, f, playlistURL)
	if err != nil {
		return nil, wrapError(ErrKindInvalidPlaylist, "failed to fetch playlist", err)
	}
	return parsePlaylistText(ctx, f, string(data), playlistURL, strict, selector)
}

func parsePlaylistText(ctx context.Context, f Fetcher, text string, playlistURL string, strict bool, selector VariantSelector) (*Playlist, error) {
	lines := splitLines(text)
	firstLine, ok := firstNonBlank(lines)
	if !ok || !strings.HasPrefix(firstLine, "#EXTM3U") {
		return nil, newError(ErrKindInvalidPlaylist, "missing #EXTM3U header")
	}

	if containsStreamInf(lines) {
		variants, err := parseMasterPlaylist(lines, playlistURL, strict)
		if err != nil {
			return nil, err
		}
		if selector == nil {
			return nil, newError(ErrKindInvalidConfig, "master playlist requires a VariantSelector")
		}
		chosen, err := selector(variants)
		if err != nil {
			return nil, wrapError(ErrKindInvalidPlaylist, "variant selection failed", err)
		}
		return ParsePlaylist(ctx, f, chosen.URI, strict, selector)
	}

	return parseMediaPlaylist(lines, playlistURL, strict)
}

func splitLines(text string) []string {
	raw := strings.Split(text, "\n")
	out := make([]string, len(raw))
	for i, l := range raw {
		out[i] = strings.TrimSuffix(l, "\r")
	}
	return out
}

func firstNonBlank(lines []string) (string, bool) {
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			return strings.TrimSpace(l), true
		}
	}
	return "", false
}

func containsStreamInf(lines []string) bool {
	for _, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), "#EXT-X-STREAM-INF") {
			return true
		}
	}
	return false
}

func parseMasterPlaylist(lines []string, baseURLStr string, strict bool) ([]VariantStream, error) {
	base, err := url.Parse(baseURLStr)
	if err != nil {
		return nil, wrapError(ErrKindInvalidPlaylist, "invalid playlist URL", err)
	}

	var variants []VariantStream
	var pending *VariantStream
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "#") {
			if pending != nil {
				resolved, err := resolveURI(base, line)
				if err != nil {
					return nil, wrapError(ErrKindInvalidPlaylist, "invalid variant URI", err)
				}
				pending.URI = resolved
				variants = append(variants, *pending)
				pending = nil
			}
			continue
		}
		tag, value := splitTag(line)
		if tag == "EXT-X-STREAM-INF" {
			attrs := parseAttributes(value)
			pending = &VariantStream{
				Bandwidth:  uint32(parseUintAttr(attrs["BANDWIDTH"])),
				Resolution: attrs["RESOLUTION"],
				Codecs:     attrs["CODECS"],
			}
			continue
		}
		if err := checkKnownTag(tag, strict); err != nil {
			return nil, err
		}
	}

	if len(variants) == 0 {
		return nil, newError(ErrKindInvalidPlaylist, "master playlist has no variants")
	}
	return variants, nil
}

func parseMediaPlaylist(lines []string, baseURLStr string, strict bool) (*Playlist, error) {
	base, err := url.Parse(baseURLStr)
	if err != nil {
		return nil, wrapError(ErrKindInvalidPlaylist, "invalid playlist URL", err)
	}

	playlist := &Playlist{}
	var currentKey *EncryptionSpec
	var seenKeys []*EncryptionSpec
	var pendingDuration float64
	var pendingTitle string

	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "#") {
			resolved, err := resolveURI(base, line)
			if err != nil {
				return nil, wrapError(ErrKindInvalidPlaylist, "invalid segment URI", err)
			}
			seg := Segment{
				Index:      len(playlist.Segments),
				URI:        resolved,
				Duration:   pendingDuration,
				Title:      pendingTitle,
				Encryption: currentKey,
			}
			playlist.Segments = append(playlist.Segments, seg)
			pendingDuration, pendingTitle = 0, ""
			continue
		}

		tag, value := splitTag(line)
		switch tag {
		case "EXT-X-TARGETDURATION":
			if n, err := strconv.ParseFloat(value, 64); err == nil {
				playlist.TargetDurationSeconds = n
			}
		case "EXTINF":
			pendingDuration, pendingTitle = parseExtinf(value)
		case "EXT-X-KEY":
			spec, err := parseKeyTag(value)
			if err != nil {
				return nil, err
			}
			if spec != nil {
				// Hand out one value per distinct spec, so the key
				// prefetch populates every segment that uses it.
				reused := false
				for _, seen := range seenKeys {
					if seen.Equal(spec) {
						spec, reused = seen, true
						break
					}
				}
				if !reused {
					seenKeys = append(seenKeys, spec)
				}
			}
			currentKey = spec
		case "EXT-X-ENDLIST":
			playlist.EndList = true
		default:
			if err := checkKnownTag(tag, strict); err != nil {
				return nil, err
			}
		}
	}

	if len(playlist.Segments) == 0 {
		return nil, newError(ErrKindEmptyPlaylist, "No segments found")
	}
	if over := playlist.Warnings(); strict && len(over) > 0 {
		return nil, newError(ErrKindInvalidPlaylist, "segment "+strconv.Itoa(over[0])+" exceeds the target duration")
	}
	return playlist, nil
}

func checkKnownTag(tag string, strict bool) error {
	if tag == "" {
		return nil
	}
	if _, ok := recognizedTags[tag]; ok {
		return nil
	}
	if !strings.HasPrefix(tag, "EXT") {
		return nil // a plain "#" comment, not an HLS tag
	}
	if strict {
		return newError(ErrKindUnsupportedTag, "unsupported tag #"+tag)
	}
	return nil
}

// splitTag splits "#TAG:VALUE" into ("TAG", "VALUE"); a bare "#TAG" yields
// ("TAG", "").
func splitTag(line string) (string, string) {
	line = strings.TrimPrefix(line, "#")
	if i := strings.Index(line, ":"); i >= 0 {
		return line[:i], line[i+1:]
	}
	return line, ""
}

// parseExtinf parses "D[,TITLE]".
func parseExtinf(value string) (float64, string) {
	parts := strings.SplitN(value, ",", 2)
	d, _ := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	title := ""
	if len(parts) == 2 {
		title = strings.TrimSpace(parts[1])
	}
	return d, title
}

// parseKeyTag parses "METHOD=...,URI="...",IV=0xHEX". METHOD=NONE clears
// the current key (returns nil, nil).
func parseKeyTag(value string) (*EncryptionSpec, error) {
	attrs := parseAttributes(value)
	method := strings.ToUpper(attrs["METHOD"])
	if method == "" || method == "NONE" {
		return nil, nil
	}
	if method != string(EncryptionMethodAES128) {
		return nil, newError(ErrKindInvalidPlaylist, "unsupported encryption method: "+method)
	}
	ivHex := attrs["IV"]
	if ivHex != "" {
		lower := strings.ToLower(ivHex)
		if !strings.HasPrefix(lower, "0x") || len(lower) != 34 {
			return nil, newError(ErrKindInvalidConfig, "IV must be 0x followed by 32 hex digits")
		}
	}
	return &EncryptionSpec{
		Method: EncryptionMethodAES128,
		KeyURI: attrs["URI"],
		IVHex:  ivHex,
	}, nil
}

// parseAttributes tokenizes a comma-separated KEY=VALUE attribute list
// where VALUE may be a quoted string containing commas, grounded on
// other_examples' splitHLSAttributes/parseHLSAttributes pair.
func parseAttributes(raw string) map[string]string {
	attrs := map[string]string{}
	for _, part := range splitAttributeTokens(raw) {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.TrimSpace(strings.ToUpper(kv[0]))
		value := strings.TrimSpace(kv[1])
		value = strings.Trim(value, `"`)
		if key != "" {
			attrs[key] = value
		}
	}
	return attrs
}

func splitAttributeTokens(raw string) []string {
	var parts []string
	var b strings.Builder
	inQuotes := false
	for _, r := range raw {
		switch r {
		case '"':
			inQuotes = !inQuotes
			b.WriteRune(r)
		case ',':
			if inQuotes {
				b.WriteRune(r)
				continue
			}
			parts = append(parts, b.String())
			b.Reset()
		default:
			b.WriteRune(r)
		}
	}
	if b.Len() > 0 {
		parts = append(parts, b.String())
	}
	return parts
}

func parseUintAttr(v string) uint64 {
	if v == "" {
		return 0
	}
	n, _ := strconv.ParseUint(v, 10, 64)
	return n
}

func resolveURI(base *url.URL, ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(u).String(), nil
}
