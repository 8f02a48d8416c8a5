package domain

import "sort"

// SelectFormat chooses one format from candidates according to policy.
// It returns false when nothing suitable exists.
//
// Combined audio+video formats are preferred. When there are none the
// tallest video format is returned regardless of the ordering rule.
// Audio-only and video-only policies narrow the candidates first and then
// apply the same ordering rules.
func SelectFormat(candidates []Format, policy QualityPolicy) (Format, bool) {
	valid := filterFormats(candidates, Format.Valid)

	switch policy.Media {
	case MediaAudioOnly:
		audio := filterFormats(valid, func(f Format) bool { return f.HasAudio && !f.HasVideo })
		return selectAudio(preferContainer(audio, policy.Container), policy)
	case MediaVideoOnly:
		video := filterFormats(valid, func(f Format) bool { return f.HasVideo && !f.HasAudio })
		return selectVideo(preferContainer(video, policy.Container), policy)
	}

	combined := filterFormats(valid, Format.IsCombined)
	if len(combined) == 0 {
		video := preferContainer(filterFormats(valid, func(f Format) bool { return f.HasVideo }), policy.Container)
		if len(video) == 0 {
			return Format{}, false
		}
		sortFormats(video, byHeightThenVideoBitrate, true)
		return video[0], true
	}

	return selectVideo(preferContainer(combined, policy.Container), policy)
}

// selectVideo applies the best/worst/height ordering rules to a non-audio-only set
func selectVideo(set []Format, policy QualityPolicy) (Format, bool) {
	if len(set) == 0 {
		return Format{}, false
	}

	switch policy.Kind {
	case QualityWorst:
		sortFormats(set, byHeightThenVideoBitrate, false)
		return set[0], true

	case QualityHeight:
		exact := filterFormats(set, func(f Format) bool { return f.Height == policy.Height })
		if len(exact) > 0 {
			sortFormats(exact, byVideoBitrate, true)
			return exact[0], true
		}

		// Greatest height below the target; equal heights go to the higher bitrate
		lower := filterFormats(set, func(f Format) bool { return f.Height < policy.Height })
		if len(lower) > 0 {
			sortFormats(lower, byHeightThenVideoBitrate, true)
			return lower[0], true
		}
	}

	sortFormats(set, byHeightThenVideoBitrate, true)
	return set[0], true
}

func selectAudio(set []Format, policy QualityPolicy) (Format, bool) {
	if len(set) == 0 {
		return Format{}, false
	}
	sortFormats(set, byAudioBitrate, policy.Kind != QualityWorst)
	return set[0], true
}

// preferContainer narrows the set to the preferred container when any match
func preferContainer(set []Format, container string) []Format {
	if container == "" {
		return set
	}
	matching := filterFormats(set, func(f Format) bool { return f.Container == container })
	if len(matching) == 0 {
		return set
	}
	return matching
}

// filterFormats returns a fresh slice so callers may sort it in place
func filterFormats(formats []Format, keep func(Format) bool) []Format {
	out := make([]Format, 0, len(formats))
	for _, f := range formats {
		if keep(f) {
			out = append(out, f)
		}
	}
	return out
}

type formatLess func(a, b Format) bool

func byHeightThenVideoBitrate(a, b Format) bool {
	if a.Height != b.Height {
		return a.Height < b.Height
	}
	return a.VideoBitrate < b.VideoBitrate
}

func byVideoBitrate(a, b Format) bool {
	return a.VideoBitrate < b.VideoBitrate
}

func byAudioBitrate(a, b Format) bool {
	return a.AudioBitrate < b.AudioBitrate
}

// sortFormats stable-sorts in ascending or descending order of less
func sortFormats(formats []Format, less formatLess, descending bool) {
	sort.SliceStable(formats, func(i, j int) bool {
		if descending {
			return less(formats[j], formats[i])
		}
		return less(formats[i], formats[j])
	})
}
