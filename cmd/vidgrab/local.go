package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yourusername/vidgrab/internal/app"
	"github.com/yourusername/vidgrab/internal/domain"
)

var downloadCmd = &cobra.Command{
	Use:   "download [url]",
	Short: "Download a single video",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		config, log := loadConfig()
		defer log.Sync()

		outputDir, _ := cmd.Flags().GetString("output")
		quality, _ := cmd.Flags().GetString("quality")
		filename, _ := cmd.Flags().GetString("filename")
		audioOnly, _ := cmd.Flags().GetBool("audio-only")
		videoOnly, _ := cmd.Flags().GetBool("video-only")
		container, _ := cmd.Flags().GetString("format")
		listFormats, _ := cmd.Flags().GetBool("list-formats")
		quiet, _ := cmd.Flags().GetBool("quiet")

		if quality == "" {
			quality = config.Download.Quality
		}
		quality, err := qualityFromFlags(quality, audioOnly, videoOnly, container)
		if err != nil {
			fatal(err)
		}
		policy, _ := domain.ParseQuality(quality)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		dm := newLocalManager(config, log)

		if listFormats {
			report, err := dm.InspectFormats(ctx, args[0], policy)
			if err != nil {
				fatal(err)
			}
			printFormats(os.Stdout, report)
			return
		}

		if outputDir == "" {
			outputDir = config.Download.OutputDir
		}

		progress := newProgressRenderer(ctx, os.Stdout, quiet)
		path, err := dm.DownloadItem(ctx, app.ItemRequest{
			Locator:  args[0],
			DestDir:  outputDir,
			Policy:   policy,
			Filename: filename,
			Progress: progress.Func(),
		})
		progress.Wait()
		if err != nil {
			fatal(err)
		}

		fmt.Printf("Saved %s (%s)\n", path, fileSize(path))
	},
}

var playlistCmd = &cobra.Command{
	Use:   "playlist [url]",
	Short: "Download every video of a playlist",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		config, log := loadConfig()
		defer log.Sync()

		outputDir, _ := cmd.Flags().GetString("output")
		quality, _ := cmd.Flags().GetString("quality")
		workers, _ := cmd.Flags().GetInt("workers")
		quiet, _ := cmd.Flags().GetBool("quiet")

		if outputDir == "" {
			outputDir = config.Download.OutputDir
		}
		if quality == "" {
			quality = config.Download.Quality
		}
		if !cmd.Flags().Changed("workers") {
			workers = config.Download.MaxWorkers
		}
		policy, err := domain.ParseQuality(quality)
		if err != nil {
			fatal(err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		dm := newLocalManager(config, log)

		progress := newProgressRenderer(ctx, os.Stdout, quiet)
		result, err := dm.DownloadCollection(ctx, app.CollectionRequest{
			Locator:    args[0],
			DestDir:    outputDir,
			Policy:     policy,
			MaxWorkers: workers,
			Progress:   progress.Func(),
		})
		progress.Wait()
		if err != nil {
			fatal(err)
		}

		total := len(result.Collection.Items)
		fmt.Printf("\n%s: downloaded %d/%d items to %s\n",
			result.Collection.Title, len(result.Successes), total, outputDir)
		if len(result.Failures) > 0 {
			fmt.Printf("%d failed:\n", len(result.Failures))
			for _, f := range result.Failures {
				fmt.Printf("  [%d] %s: %s\n", f.Index, f.Title, f.Error)
			}
		}
		if len(result.Successes) == 0 {
			os.Exit(1)
		}
	},
}

var infoCmd = &cobra.Command{
	Use:   "info [url]",
	Short: "Show video metadata",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		config, log := loadConfig()
		defer log.Sync()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		meta, err := app.NewExtractor(config, log).GetItemMetadata(ctx, args[0])
		if err != nil {
			fatal(err)
		}
		printInfo(os.Stdout, meta)
	},
}

func init() {
	downloadCmd.Flags().StringP("output", "o", "", "Output directory (default download.output_dir)")
	downloadCmd.Flags().StringP("quality", "q", "", "Quality: best, worst, <N>p, audio, video, optionally :mp4 or :webm")
	downloadCmd.Flags().StringP("filename", "f", "", "Output file name without extension")
	downloadCmd.Flags().Bool("audio-only", false, "Download the best audio-only stream")
	downloadCmd.Flags().Bool("video-only", false, "Download the best video-only stream")
	downloadCmd.Flags().String("format", "", "Preferred container (mp4, webm)")
	downloadCmd.Flags().Bool("list-formats", false, "List available formats and exit")
	downloadCmd.Flags().Bool("quiet", false, "Hide progress bars")

	playlistCmd.Flags().StringP("output", "o", "", "Output directory (default download.output_dir)")
	playlistCmd.Flags().StringP("quality", "q", "", "Quality applied to every item")
	playlistCmd.Flags().IntP("workers", "w", 4, "Concurrent downloads, 1 to 16")
	playlistCmd.Flags().Bool("quiet", false, "Hide progress bars")
}

// newLocalManager builds a download manager that runs in this process without a queue
func newLocalManager(config *domain.Config, log *zap.Logger) *app.DownloadManager {
	return app.NewDownloadManager(nil, app.NewExtractor(config, log), app.NewFetcher(config, log), nil, &config.Download, log)
}

func fileSize(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return "?"
	}
	return humanize.IBytes(uint64(info.Size()))
}
