// Package attachment classifies attachment references by media kind and
// resolves them to URLs through a per-instance cache.
package attachment

import "regexp"

// Kind is the media category of an attachment reference.
type Kind int

const (
	KindUnknown Kind = iota
	KindPhoto
	KindVideo
	KindAudio
)

func (k Kind) String() string {
	switch k {
	case KindPhoto:
		return "photo"
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	default:
		return "unknown"
	}
}

type rule struct {
	pattern *regexp.Regexp
	kind    Kind
}

// Rules are evaluated in order; the first match wins. Matching is case-sensitive.
var rules = []rule{
	{regexp.MustCompile(`\.(jpg|jpeg|png|webp|avif|gif)$`), KindPhoto},
	{regexp.MustCompile(`\.(mp4|webm|ogg)$`), KindVideo},
	{regexp.MustCompile(`\.(mp3|wav)$`), KindAudio},
}

// Classify returns the kind of ref, KindUnknown when no rule matches.
func Classify(ref string) Kind {
	for _, r := range rules {
		if r.pattern.MatchString(ref) {
			return r.kind
		}
	}
	return KindUnknown
}
