package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/yourusername/vidgrab/internal/app"
	"github.com/yourusername/vidgrab/internal/domain"
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search for videos, channels or playlists",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		config, log := loadConfig()
		defer log.Sync()

		opts := domain.SearchOptions{Query: args[0]}
		opts.Type, _ = cmd.Flags().GetString("type")
		opts.MaxResults, _ = cmd.Flags().GetInt("max-results")
		opts.Order, _ = cmd.Flags().GetString("order")
		opts.Duration, _ = cmd.Flags().GetString("duration")
		opts.Language, _ = cmd.Flags().GetString("language")
		opts.Region, _ = cmd.Flags().GetString("region")
		opts.PageToken, _ = cmd.Flags().GetString("page")
		download, _ := cmd.Flags().GetBool("download")
		outputDir, _ := cmd.Flags().GetString("output")
		quality, _ := cmd.Flags().GetString("quality")
		quiet, _ := cmd.Flags().GetBool("quiet")

		if err := opts.Normalize(); err != nil {
			fatal(err)
		}
		if quality == "" {
			quality = config.Download.Quality
		}
		policy, err := domain.ParseQuality(quality)
		if err != nil {
			fatal(err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		page, err := app.NewExtractor(config, log).Search(ctx, opts)
		if err != nil {
			fatal(err)
		}
		printSearchResults(os.Stdout, page)

		if !download {
			return
		}
		first, ok := page.FirstVideo()
		if !ok {
			fatal(fmt.Errorf("no video in the results to download"))
		}
		if outputDir == "" {
			outputDir = config.Download.OutputDir
		}

		fmt.Printf("\nDownloading %s\n", first.Title)
		progress := newProgressRenderer(ctx, os.Stdout, quiet)
		path, err := newLocalManager(config, log).DownloadItem(ctx, app.ItemRequest{
			Locator:  first.URL,
			DestDir:  outputDir,
			Policy:   policy,
			Progress: progress.Func(),
		})
		progress.Wait()
		if err != nil {
			fatal(err)
		}
		fmt.Printf("Saved %s (%s)\n", path, fileSize(path))
	},
}

func init() {
	searchCmd.Flags().StringP("type", "t", domain.SearchTypeVideo, "Result kind: video, channel, playlist or all")
	searchCmd.Flags().IntP("max-results", "n", domain.DefaultSearchResults, "Results per page, 1 to 50")
	searchCmd.Flags().String("order", "relevance", "Sort order: date, rating, relevance, title, videoCount, viewCount")
	searchCmd.Flags().String("duration", "", "Video length filter: any, short, medium, long")
	searchCmd.Flags().String("language", "", "Prefer results in this language (ISO 639-1)")
	searchCmd.Flags().String("region", "", "Search as seen from this region (ISO 3166-1 alpha-2)")
	searchCmd.Flags().String("page", "", "Page token from a previous search")
	searchCmd.Flags().BoolP("download", "d", false, "Download the first video result")
	searchCmd.Flags().StringP("output", "o", "", "Output directory for --download (default download.output_dir)")
	searchCmd.Flags().StringP("quality", "q", "", "Quality for --download")
	searchCmd.Flags().Bool("quiet", false, "Hide progress bars")
}

// printSearchResults writes a numbered listing of one search page
func printSearchResults(out io.Writer, page *domain.SearchPage) {
	if len(page.Results) == 0 {
		fmt.Fprintf(out, "No results for %q\n", page.Query)
		return
	}

	fmt.Fprintf(out, "Results for %q (about %s):\n\n", page.Query, humanize.Comma(int64(page.TotalResults)))
	for i, r := range page.Results {
		fmt.Fprintf(out, "%d. %s (%s)\n", i+1, truncate(r.Title, 70), r.Type)
		if r.ChannelTitle != "" && r.Type != domain.SearchTypeChannel {
			fmt.Fprintf(out, "   Channel: %s\n", r.ChannelTitle)
		}
		fmt.Fprintf(out, "   URL: %s\n", r.URL)
	}

	if page.NextPageToken != "" {
		fmt.Fprintf(out, "\nMore results: --page %s\n", page.NextPageToken)
	}
}
