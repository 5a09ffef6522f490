package hlsdl

// EncryptionMethod enumerates the HLS key methods this package understands.
type EncryptionMethod string

const (
	EncryptionMethodNone   EncryptionMethod = "NONE"
	EncryptionMethodAES128 EncryptionMethod = "AES-128"
)

// EncryptionSpec describes how a contiguous run of segments is encrypted.
// Two specs are equal iff (Method, KeyURI, IVHex) are equal; the parser
// reuses one *EncryptionSpec value across adjacent segments that share a
// tag so the processor can prefetch one key per unique spec.
//
// KeyBytes is populated at most once, by the main goroutine, before any
// worker reads it.
type EncryptionSpec struct {
	Method   EncryptionMethod
	KeyURI   string
	IVHex    string // 32 hex chars, "0x"-prefixed in the source tag; empty if unset
	KeyBytes []byte // populated by key prefetch; always 16 bytes once set
}

// Equal reports whether two specs describe the same key/IV combination.
func (s *EncryptionSpec) Equal(other *EncryptionSpec) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.Method == other.Method && s.KeyURI == other.KeyURI && s.IVHex == other.IVHex
}

// Segment is an immutable, individually-addressable chunk of a media
// playlist. It is read-only after construction; no worker mutates it.
type Segment struct {
	Index      int
	URI        string
	Duration   float64
	Title      string
	Encryption *EncryptionSpec // nil if unencrypted
}

// VariantStream is one alternative listed in an HLS master playlist.
type VariantStream struct {
	Bandwidth  uint32
	Resolution string
	Codecs     string
	URI        string
}

// VariantSelector picks one variant to download from a master playlist's
// alternatives. Implementations are supplied by the caller; NewQualitySelector
// provides the common "best"/"worst"/exact-resolution strategies.
type VariantSelector func(variants []VariantStream) (VariantStream, error)

// Playlist is the ordered, parsed form of a media playlist: exactly what
// the processor needs and nothing more.
type Playlist struct {
	Segments              []Segment
	TargetDurationSeconds float64
	EndList               bool
}

// Warnings returns segments whose duration exceeds TargetDurationSeconds;
// under non-strict parsing these are informational only, while strict
// parsing rejects a playlist that has any.
func (p *Playlist) Warnings() []int {
	var idx []int
	for _, s := range p.Segments {
		if s.Duration > p.TargetDurationSeconds {
			idx = append(idx, s.Index)
		}
	}
	return idx
}
