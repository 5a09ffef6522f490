package hlsdl

import (
	"sort"
	"strconv"
)

// NewQualitySelector returns a VariantSelector choosing by bandwidth, in
// the teacher's FiltersForStreams style: "best" picks the highest
// bandwidth, "worst" the lowest, anything else an exact resolution match
// (falling back to "best" if nothing matches).
func NewQualitySelector(quality string) VariantSelector {
	if quality == "" {
		quality = "best"
	}
	return func(variants []VariantStream) (VariantStream, error) {
		if len(variants) == 0 {
			return VariantStream{}, newError(ErrKindInvalidPlaylist, "no variants to select from")
		}
		switch quality {
		case "best":
			return byBandwidth(variants, false), nil
		case "worst":
			return byBandwidth(variants, true), nil
		default:
			for _, v := range variants {
				if v.Resolution == quality {
					return v, nil
				}
			}
			return byBandwidth(variants, false), nil
		}
	}
}

func byBandwidth(variants []VariantStream, ascending bool) VariantStream {
	sorted := make([]VariantStream, len(variants))
	copy(sorted, variants)
	sort.Slice(sorted, func(i, j int) bool {
		if ascending {
			return sorted[i].Bandwidth < sorted[j].Bandwidth
		}
		return sorted[i].Bandwidth > sorted[j].Bandwidth
	})
	return sorted[0]
}

// describeVariant renders a variant line for LoggingVariantSelector,
// matching the teacher's printMediaInfo field set.
func describeVariant(v VariantStream) string {
	return "resolution=" + v.Resolution + " bandwidth=" + strconv.FormatUint(uint64(v.Bandwidth), 10) + " codecs=" + v.Codecs
}

// LoggingVariantSelector wraps a VariantSelector so its chosen variant is
// reported through log before being returned, for callers (the CLI's
// --verbose mode) that want visibility into which variant a master
// playlist resolved to.
func LoggingVariantSelector(next VariantSelector, log func(line string)) VariantSelector {
	return func(variants []VariantStream) (VariantStream, error) {
		chosen, err := next(variants)
		if err != nil {
			return chosen, err
		}
		if log != nil {
			log(describeVariant(chosen))
		}
		return chosen, nil
	}
}
