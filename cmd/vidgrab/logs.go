package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yourusername/vidgrab/pkg/logger"
)

var logsCmd = &cobra.Command{
	Use:   "logs [category]",
	Short: "Show the download, queue or error log",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		config, _ := loadConfig()

		category := logger.CategoryQueue
		if len(args) == 1 {
			category = logger.LogCategory(args[0])
		}
		if !logger.ValidCategory(category) {
			fatal(fmt.Errorf("invalid category %q, use one of %v", category, logger.Categories))
		}

		dateStr, _ := cmd.Flags().GetString("date")
		limit, _ := cmd.Flags().GetInt("limit")
		query, _ := cmd.Flags().GetString("search")
		follow, _ := cmd.Flags().GetBool("follow")
		jsonOutput, _ := cmd.Flags().GetBool("json")

		date := time.Now()
		if dateStr != "" {
			parsed, err := time.ParseInLocation("2006-01-02", dateStr, time.Local)
			if err != nil {
				fatal(fmt.Errorf("invalid date format, use YYYY-MM-DD"))
			}
			date = parsed
		}

		reader := logger.NewLogReader(config.Download.LogsDir)

		var entries []logger.LogEntry
		var err error
		if query != "" {
			entries, err = reader.SearchLogs(category, date, query, limit)
		} else {
			entries, err = reader.ReadLogs(category, date, limit)
		}
		if err != nil {
			fatal(err)
		}
		for _, entry := range entries {
			printLogEntry(os.Stdout, entry, jsonOutput)
		}

		if !follow {
			return
		}

		entryChan := make(chan logger.LogEntry, 64)
		stopChan := make(chan struct{})
		errChan := make(chan error, 1)
		go func() {
			errChan <- reader.TailLogs(category, entryChan, stopChan)
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

		for {
			select {
			case entry := <-entryChan:
				if query == "" || entry.Matches(query) {
					printLogEntry(os.Stdout, entry, jsonOutput)
				}
			case err := <-errChan:
				if err != nil {
					fatal(err)
				}
				return
			case <-quit:
				close(stopChan)
				<-errChan
				return
			}
		}
	},
}

func init() {
	logsCmd.Flags().String("date", "", "Day to read (YYYY-MM-DD, default today)")
	logsCmd.Flags().IntP("limit", "n", 50, "Show the last N entries (0 for all)")
	logsCmd.Flags().StringP("search", "s", "", "Only show entries containing this text")
	logsCmd.Flags().BoolP("follow", "f", false, "Keep printing new entries")
	logsCmd.Flags().BoolP("json", "j", false, "Output in JSON format")
}

func printLogEntry(out io.Writer, entry logger.LogEntry, asJSON bool) {
	if asJSON {
		data, _ := json.Marshal(entry)
		fmt.Fprintln(out, string(data))
		return
	}

	keys := make([]string, 0, len(entry.Fields))
	for k := range entry.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "%s %-5s %s", entry.Timestamp, strings.ToUpper(entry.Level), entry.Message)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry.Fields[k])
	}
	fmt.Fprintln(out, b.String())
}
