package domain

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Format is one downloadable variant of a media item
type Format struct {
	ID            string `json:"id"`
	HasAudio      bool   `json:"has_audio"`
	HasVideo      bool   `json:"has_video"`
	Container     string `json:"container"`
	Codecs        string `json:"codecs,omitempty"`
	MimeType      string `json:"mime_type,omitempty"`
	Width         int    `json:"width,omitempty"`
	Height        int    `json:"height,omitempty"`
	FPS           int    `json:"fps,omitempty"`
	AudioBitrate  int64  `json:"audio_bitrate,omitempty"` // bits per second
	VideoBitrate  int64  `json:"video_bitrate,omitempty"` // bits per second
	ContentLength *int64 `json:"content_length,omitempty"`
	URL           string `json:"url,omitempty"`
	QualityLabel  string `json:"quality_label"`
	Ciphered      bool   `json:"ciphered,omitempty"`
}

// RawFormat is a stream descriptor as reported by the provider
type RawFormat struct {
	Itag            int    `json:"itag"`
	URL             string `json:"url"`
	MimeType        string `json:"mimeType"`
	Bitrate         int64  `json:"bitrate"`
	Width           int    `json:"width"`
	Height          int    `json:"height"`
	FPS             int    `json:"fps"`
	QualityLabel    string `json:"qualityLabel"`
	ContentLength   string `json:"contentLength"`
	SignatureCipher string `json:"signatureCipher"`
}

// combinedAudioShareCap caps the estimated audio share of a combined format's aggregate bitrate
const combinedAudioShareCap int64 = 128000

var (
	audioCodecs = []string{"mp4a", "opus", "vorbis"}
	videoCodecs = []string{"avc1", "vp9", "vp8", "av01"}
)

// Valid reports whether the format carries any media at all
func (f Format) Valid() bool {
	return f.HasAudio || f.HasVideo
}

// Playable reports whether the format can be handed to a stream fetcher
func (f Format) Playable() bool {
	return f.Valid() && f.URL != ""
}

// IsCombined reports whether the format carries both audio and video
func (f Format) IsCombined() bool {
	return f.HasAudio && f.HasVideo
}

// Kind returns a short human description of the media carried by the format
func (f Format) Kind() string {
	switch {
	case f.IsCombined():
		return "audio+video"
	case f.HasVideo:
		return "video"
	case f.HasAudio:
		return "audio"
	default:
		return "none"
	}
}

// NormalizeFormat converts a provider descriptor into a Format.
//
// For combined formats the provider reports one aggregate bitrate; the split
// between audio and video is an approximation, not a measured value.
func NormalizeFormat(raw RawFormat) Format {
	container, codecs := parseMimeType(raw.MimeType)
	mime := strings.ToLower(raw.MimeType)
	lowerCodecs := strings.ToLower(codecs)

	f := Format{
		ID:        strconv.Itoa(raw.Itag),
		MimeType:  raw.MimeType,
		Container: container,
		Codecs:    codecs,
		HasAudio:  strings.Contains(mime, "audio") || containsAny(lowerCodecs, audioCodecs),
		HasVideo:  strings.Contains(mime, "video") || containsAny(lowerCodecs, videoCodecs),
		URL:       raw.URL,
	}

	if raw.URL == "" && raw.SignatureCipher != "" {
		f.URL, f.Ciphered = resolveCipher(raw.SignatureCipher)
	}

	if n, err := strconv.ParseInt(raw.ContentLength, 10, 64); err == nil && n > 0 {
		f.ContentLength = &n
	}

	if f.HasVideo {
		f.Width = raw.Width
		f.Height = raw.Height
		f.FPS = raw.FPS
	}

	switch {
	case f.IsCombined():
		if raw.Bitrate > 0 {
			f.AudioBitrate = min(combinedAudioShareCap, raw.Bitrate/10)
			f.VideoBitrate = raw.Bitrate - f.AudioBitrate
		}
	case f.HasVideo:
		f.VideoBitrate = raw.Bitrate
	case f.HasAudio:
		f.AudioBitrate = raw.Bitrate
	}

	f.QualityLabel = qualityLabel(raw.QualityLabel, f)
	return f
}

// NormalizeFormats converts provider descriptors, dropping repeated identities
func NormalizeFormats(raws []RawFormat) []Format {
	formats := make([]Format, 0, len(raws))
	seen := make(map[string]bool, len(raws))
	for _, raw := range raws {
		f := NormalizeFormat(raw)
		if seen[f.ID] {
			continue
		}
		seen[f.ID] = true
		formats = append(formats, f)
	}
	return formats
}

// PlayableFormats returns the formats that carry media and a usable URL
func PlayableFormats(formats []Format) []Format {
	playable := make([]Format, 0, len(formats))
	for _, f := range formats {
		if f.Playable() {
			playable = append(playable, f)
		}
	}
	return playable
}

// parseMimeType splits `video/mp4; codecs="avc1.64001F, mp4a.40.2"` into container and codecs
func parseMimeType(mimeType string) (string, string) {
	if mimeType == "" {
		return "mp4", ""
	}

	base, params, _ := strings.Cut(mimeType, ";")
	container := "mp4"
	if _, sub, ok := strings.Cut(strings.TrimSpace(base), "/"); ok && sub != "" {
		container = strings.ToLower(sub)
	}

	var codecs string
	if _, after, ok := strings.Cut(params, "codecs="); ok {
		codecs = strings.Trim(strings.TrimSpace(after), `"`)
	}
	return container, codecs
}

// resolveCipher extracts the stream URL from a signatureCipher query string.
// Entries that still need a signature are reported as ciphered with no URL.
func resolveCipher(cipher string) (string, bool) {
	values, err := url.ParseQuery(cipher)
	if err != nil {
		return "", true
	}
	if values.Get("s") != "" {
		return "", true
	}
	return values.Get("url"), false
}

func qualityLabel(providerLabel string, f Format) string {
	switch {
	case providerLabel != "":
		return providerLabel
	case f.HasVideo && f.Height > 0:
		return fmt.Sprintf("%dp", f.Height)
	case f.HasAudio && !f.HasVideo && f.AudioBitrate > 0:
		return fmt.Sprintf("%dkbps", f.AudioBitrate/1000)
	default:
		return "unknown"
	}
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
