package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/yourusername/vidgrab/internal/domain"
)

// apiClient talks to the vidgrab-server HTTP API
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// do sends a request and decodes the JSON response into out when it is not nil
func (c *apiClient) do(method, path string, body interface{}, want int, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != want {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(data))
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// remote returns a client after making sure the server is up
func remote() *apiClient {
	ensureServer()
	return newAPIClient(serverURL)
}

var addCmd = &cobra.Command{
	Use:   "add [url]",
	Short: "Add a video or playlist to the server queue",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		kind, _ := cmd.Flags().GetString("kind")
		quality, _ := cmd.Flags().GetString("quality")
		workers, _ := cmd.Flags().GetInt("workers")
		filename, _ := cmd.Flags().GetString("filename")
		priority, _ := cmd.Flags().GetInt("priority")

		payload := map[string]interface{}{"url": args[0]}
		if kind != "" {
			payload["kind"] = kind
		}
		if quality != "" {
			payload["quality"] = quality
		}
		if workers > 0 {
			payload["max_workers"] = workers
		}
		if filename != "" {
			payload["filename"] = filename
		}
		if priority != 0 {
			payload["priority"] = priority
		}

		var download domain.Download
		if err := remote().do(http.MethodPost, "/api/v1/downloads", payload, http.StatusCreated, &download); err != nil {
			fatal(err)
		}

		fmt.Printf("Download added successfully!\n")
		fmt.Printf("ID:     %s\n", download.ID)
		fmt.Printf("Kind:   %s\n", download.Kind)
		fmt.Printf("Status: %s\n", download.Status)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List downloads on the server",
	Run: func(cmd *cobra.Command, args []string) {
		status, _ := cmd.Flags().GetString("status")
		kind, _ := cmd.Flags().GetString("kind")

		query := url.Values{}
		if status != "" {
			query.Set("status", status)
		}
		if kind != "" {
			query.Set("kind", kind)
		}
		path := "/api/v1/downloads"
		if len(query) > 0 {
			path += "?" + query.Encode()
		}

		var downloads []domain.Download
		if err := remote().do(http.MethodGet, path, nil, http.StatusOK, &downloads); err != nil {
			fatal(err)
		}

		printDownloads(os.Stdout, downloads)
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show download statistics",
	Run: func(cmd *cobra.Command, args []string) {
		var stats domain.DownloadStats
		if err := remote().do(http.MethodGet, "/api/v1/downloads/stats", nil, http.StatusOK, &stats); err != nil {
			fatal(err)
		}

		fmt.Println("Download Statistics:")
		fmt.Printf("  Total:       %d\n", stats.Total)
		fmt.Printf("  Items:       %d\n", stats.Items)
		fmt.Printf("  Collections: %d\n", stats.Collections)
		fmt.Printf("  Queued:      %d\n", stats.Queued)
		fmt.Printf("  Processing:  %d\n", stats.Processing)
		fmt.Printf("  Completed:   %d\n", stats.Completed)
		fmt.Printf("  Failed:      %d\n", stats.Failed)
		fmt.Printf("  Cancelled:   %d\n", stats.Cancelled)
	},
}

var getCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Get download details",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var download domain.Download
		if err := remote().do(http.MethodGet, "/api/v1/downloads/"+args[0], nil, http.StatusOK, &download); err != nil {
			fatal(err)
		}
		printDownload(os.Stdout, &download)
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel [id]",
	Short: "Cancel a download",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := remote().do(http.MethodPost, "/api/v1/downloads/"+args[0]+"/cancel", nil, http.StatusOK, nil); err != nil {
			fatal(err)
		}
		fmt.Println("Download cancelled successfully")
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry [id]",
	Short: "Retry a failed or cancelled download",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := remote().do(http.MethodPost, "/api/v1/downloads/"+args[0]+"/retry", nil, http.StatusOK, nil); err != nil {
			fatal(err)
		}
		fmt.Println("Download queued for retry")
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a download record",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := remote().do(http.MethodDelete, "/api/v1/downloads/"+args[0], nil, http.StatusOK, nil); err != nil {
			fatal(err)
		}
		fmt.Println("Download deleted")
	},
}

func init() {
	addCmd.Flags().StringP("kind", "k", "", "item or collection (detected from the URL by default)")
	addCmd.Flags().StringP("quality", "q", "", "Quality: best, worst, <N>p, audio, video, optionally :mp4 or :webm")
	addCmd.Flags().IntP("workers", "w", 0, "Concurrent item downloads for a playlist, 1 to 16")
	addCmd.Flags().StringP("filename", "f", "", "Output file name without extension")
	addCmd.Flags().IntP("priority", "p", 0, "Higher runs first")
	listCmd.Flags().StringP("status", "s", "", "Filter by status")
	listCmd.Flags().StringP("kind", "k", "", "Filter by kind")
}

func printDownloads(out io.Writer, downloads []domain.Download) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tSTATUS\tTITLE / URL\tCREATED")
	for _, d := range downloads {
		label := d.Title
		if label == "" {
			label = d.URL
		}
		if d.Kind == domain.KindCollection && d.IsTerminal() {
			label = fmt.Sprintf("%s (%d ok, %d failed)", label, d.Succeeded, d.Failed)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			truncate(d.ID, 8),
			d.Kind,
			d.Status,
			truncate(label, 50),
			humanize.Time(d.CreatedAt))
	}
	w.Flush()
}

func printDownload(out io.Writer, d *domain.Download) {
	fmt.Fprintf(out, "Download Details:\n")
	fmt.Fprintf(out, "  ID:       %s\n", d.ID)
	fmt.Fprintf(out, "  URL:      %s\n", d.URL)
	fmt.Fprintf(out, "  Kind:     %s\n", d.Kind)
	fmt.Fprintf(out, "  Quality:  %s\n", d.Quality)
	fmt.Fprintf(out, "  Status:   %s\n", d.Status)
	fmt.Fprintf(out, "  Created:  %s (%s)\n", d.CreatedAt.Format(time.RFC3339), humanize.Time(d.CreatedAt))
	if d.Title != "" {
		fmt.Fprintf(out, "  Title:    %s\n", d.Title)
	}
	if d.FilePath != "" {
		fmt.Fprintf(out, "  File:     %s\n", d.FilePath)
	}
	if d.RetryCount > 0 {
		fmt.Fprintf(out, "  Retries:  %d\n", d.RetryCount)
	}
	if d.ErrorMessage != "" {
		fmt.Fprintf(out, "  Error:    %s\n", d.ErrorMessage)
	}
	if d.Kind == domain.KindCollection && d.IsTerminal() {
		fmt.Fprintf(out, "  Items:    %d succeeded, %d failed\n", d.Succeeded, d.Failed)
		failures, err := d.Failures()
		if err == nil {
			for _, f := range failures {
				fmt.Fprintf(out, "    [%d] %s: %s\n", f.Index, f.Title, f.Error)
			}
		}
	}
}
