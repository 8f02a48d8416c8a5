package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"github.com/yourusername/vidgrab/internal/app"
	"github.com/yourusername/vidgrab/internal/domain"
)

// qualityFromFlags folds the download shortcuts into a quality string accepted by ParseQuality
func qualityFromFlags(quality string, audioOnly, videoOnly bool, container string) (string, error) {
	if audioOnly && videoOnly {
		return "", fmt.Errorf("--audio-only and --video-only are mutually exclusive")
	}

	base := quality
	if base == "" {
		base = "best"
	}
	switch {
	case audioOnly:
		base = "audio"
	case videoOnly:
		base = "video"
	}

	if container != "" {
		if i := strings.IndexByte(base, ':'); i >= 0 {
			base = base[:i]
		}
		base += ":" + strings.ToLower(container)
	}

	if _, err := domain.ParseQuality(base); err != nil {
		return "", err
	}
	return base, nil
}

// printFormats writes the formats of an item as a table grouped by media kind
func printFormats(out io.Writer, report *app.FormatReport) {
	groups := []struct {
		name string
		kind string
	}{
		{"Audio + video", "audio+video"},
		{"Video only", "video"},
		{"Audio only", "audio"},
	}

	selected := ""
	if report.Selected != nil {
		selected = report.Selected.ID
	}

	fmt.Fprintf(out, "%s\n\n", report.Item.Title)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, g := range groups {
		var rows []domain.Format
		for _, f := range report.Item.Formats {
			if f.Kind() == g.kind {
				rows = append(rows, f)
			}
		}
		if len(rows) == 0 {
			continue
		}

		fmt.Fprintf(w, "%s\n", g.name)
		fmt.Fprintln(w, "  ID\tCONTAINER\tQUALITY\tCODECS\tBITRATE\tSIZE\t")
		for _, f := range rows {
			marker := ""
			if f.ID == selected {
				marker = "<- selected"
			}
			if f.Ciphered {
				marker = "ciphered"
			}
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				f.ID,
				f.Container,
				f.QualityLabel,
				truncate(f.Codecs, 24),
				formatBitrate(f),
				formatSize(f.ContentLength),
				marker)
		}
		fmt.Fprintln(w, "\t\t\t\t\t\t")
	}
	w.Flush()

	if report.Selected == nil {
		fmt.Fprintf(out, "No format matches quality %q\n", report.Policy)
	}
}

// printInfo writes the descriptive metadata of an item
func printInfo(out io.Writer, meta *domain.ItemMetadata) {
	playable := len(domain.PlayableFormats(meta.Formats))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Title:\t%s\n", meta.Title)
	fmt.Fprintf(w, "ID:\t%s\n", meta.ID)
	fmt.Fprintf(w, "Author:\t%s\n", meta.Author)
	fmt.Fprintf(w, "Duration:\t%s\n", formatDuration(meta.DurationSeconds))
	fmt.Fprintf(w, "Views:\t%s\n", humanize.Comma(meta.Views))
	fmt.Fprintf(w, "Live:\t%t\n", meta.IsLive)
	if meta.Thumbnail != "" {
		fmt.Fprintf(w, "Thumbnail:\t%s\n", meta.Thumbnail)
	}
	fmt.Fprintf(w, "Formats:\t%d (%d downloadable)\n", len(meta.Formats), playable)
	w.Flush()
}

// formatDuration renders seconds as h:mm:ss, or m:ss under an hour
func formatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h, m, s := seconds/3600, seconds%3600/60, seconds%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func formatBitrate(f domain.Format) string {
	bitrate := f.VideoBitrate + f.AudioBitrate
	if bitrate <= 0 {
		return "-"
	}
	return humanize.SIWithDigits(float64(bitrate), 0, "bps")
}

func formatSize(length *int64) string {
	if length == nil {
		return "?"
	}
	return humanize.IBytes(uint64(*length))
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
