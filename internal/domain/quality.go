package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// QualityKind is the ordering rule applied when selecting a format
type QualityKind string

const (
	QualityBest   QualityKind = "best"
	QualityWorst  QualityKind = "worst"
	QualityHeight QualityKind = "height" // exact height, else closest below
)

// MediaFilter narrows candidates to a media capability
type MediaFilter string

const (
	MediaCombined  MediaFilter = ""      // prefer audio+video, fall back to video
	MediaAudioOnly MediaFilter = "audio" // audio streams without video
	MediaVideoOnly MediaFilter = "video" // video streams without audio
)

// QualityPolicy describes which format a caller wants
type QualityPolicy struct {
	Kind      QualityKind
	Height    int
	Media     MediaFilter
	Container string // preferred container, ignored when nothing matches
}

// BestQuality returns the default policy
func BestQuality() QualityPolicy {
	return QualityPolicy{Kind: QualityBest}
}

// String renders the policy in the same form accepted by ParseQuality
func (p QualityPolicy) String() string {
	var base string
	switch {
	case p.Media == MediaAudioOnly:
		base = "audio"
	case p.Media == MediaVideoOnly:
		base = "video"
	case p.Kind == QualityHeight:
		base = fmt.Sprintf("%dp", p.Height)
	case p.Kind == QualityWorst:
		base = "worst"
	default:
		base = "best"
	}
	if p.Container != "" {
		return base + ":" + p.Container
	}
	return base
}

// ParseQuality parses "best", "worst", "<N>p", "audio" or "video",
// optionally followed by ":<container>"
func ParseQuality(s string) (QualityPolicy, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	base, container, _ := strings.Cut(s, ":")

	policy := QualityPolicy{Kind: QualityBest, Container: strings.TrimSpace(container)}

	switch base {
	case "", "best":
	case "worst":
		policy.Kind = QualityWorst
	case "audio":
		policy.Media = MediaAudioOnly
	case "video":
		policy.Media = MediaVideoOnly
	default:
		if !strings.HasSuffix(base, "p") {
			return QualityPolicy{}, fmt.Errorf("invalid quality: %q", s)
		}
		height, err := strconv.Atoi(strings.TrimSuffix(base, "p"))
		if err != nil || height <= 0 {
			return QualityPolicy{}, fmt.Errorf("invalid quality: %q", s)
		}
		policy.Kind = QualityHeight
		policy.Height = height
	}

	return policy, nil
}
