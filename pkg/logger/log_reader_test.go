package logger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMultiLogger_WritesReadableEntries(t *testing.T) {
	dir := t.TempDir()
	ml, err := NewMultiLogger(MultiLoggerConfig{Level: "info", LogsDir: dir})
	require.NoError(t, err)

	ml.LogQueueEvent("queue_started")
	ml.LogDownloadEvent("item_completed", zap.String("title", "Never Gonna Give You Up"), zap.Int("index", 3))
	ml.LogAppError("Failed to process download", zap.String("id", "abc"))
	require.NoError(t, ml.Close())

	reader := NewLogReader(dir)

	entries, err := reader.ReadTodayLogs(CategoryDownload, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "item_completed", entries[0].Message)
	assert.Equal(t, "info", entries[0].Level)
	assert.Equal(t, "download", entries[0].Category)
	assert.NotEmpty(t, entries[0].Timestamp)
	assert.Equal(t, "Never Gonna Give You Up", entries[0].Fields["title"])
	assert.Equal(t, float64(3), entries[0].Fields["index"])

	errorsLogged, err := reader.ReadTodayLogs(CategoryError, 0)
	require.NoError(t, err)
	require.Len(t, errorsLogged, 1)
	assert.Equal(t, "error", errorsLogged[0].Level)
}

func TestLogReader_LimitAndSearch(t *testing.T) {
	dir := t.TempDir()
	ml, err := NewMultiLogger(MultiLoggerConfig{Level: "info", LogsDir: dir})
	require.NoError(t, err)

	ml.LogQueueEvent("download_added", zap.String("url", "https://www.youtube.com/watch?v=aaaaaaaaaaa"))
	ml.LogQueueEvent("download_added", zap.String("url", "https://www.youtube.com/watch?v=bbbbbbbbbbb"))
	ml.LogQueueEvent("queue_empty")
	require.NoError(t, ml.Close())

	reader := NewLogReader(dir)

	last, err := reader.ReadTodayLogs(CategoryQueue, 1)
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, "queue_empty", last[0].Message)

	found, err := reader.SearchLogs(CategoryQueue, time.Now(), "bbbbbbbbbbb", 0)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "download_added", found[0].Message)
}

func TestLogReader_MissingFile(t *testing.T) {
	entries, err := NewLogReader(t.TempDir()).ReadTodayLogs(CategoryQueue, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLogReader_TailLogs(t *testing.T) {
	dir := t.TempDir()
	ml, err := NewMultiLogger(MultiLoggerConfig{Level: "info", LogsDir: dir})
	require.NoError(t, err)
	defer ml.Close()

	reader := NewLogReader(dir)
	reader.pollInterval = 10 * time.Millisecond

	entries := make(chan LogEntry, 4)
	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- reader.TailLogs(CategoryQueue, entries, stop) }()

	// Keep writing until the tailer, which starts at the end of the file, picks one up
	var got LogEntry
	deadline := time.After(2 * time.Second)
loop:
	for {
		ml.LogQueueEvent("tick")
		select {
		case got = <-entries:
			break loop
		case <-deadline:
			t.Fatal("timed out waiting for tailed entry")
		case <-time.After(20 * time.Millisecond):
		}
	}

	assert.Equal(t, "tick", got.Message)
	close(stop)
	assert.NoError(t, <-done)
}

func TestValidCategory(t *testing.T) {
	assert.True(t, ValidCategory(CategoryDownload))
	assert.True(t, ValidCategory(CategoryQueue))
	assert.True(t, ValidCategory(CategoryError))
	assert.False(t, ValidCategory("web"))
}

func TestParseLogLine_PlainText(t *testing.T) {
	entry := parseLogLine("not json", CategoryQueue)
	assert.Equal(t, "not json", entry.Message)
	assert.Equal(t, "info", entry.Level)
}
