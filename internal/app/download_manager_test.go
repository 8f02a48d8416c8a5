package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/vidgrab/internal/domain"
)

func newTestDownloadManager(repo domain.DownloadRepository, extractor domain.Extractor, fetcher domain.StreamFetcher, outputDir string) *DownloadManager {
	config := &domain.DownloadConfig{
		OutputDir:       outputDir,
		MaxWorkers:      2,
		MaxRetries:      2,
		RetryDelay:      0,
		ConcurrentLimit: 1,
	}
	return NewDownloadManager(repo, extractor, fetcher, nil, config, nil)
}

func TestDownloadItem_SelectsAndWrites(t *testing.T) {
	dir := t.TempDir()
	extractor := &fakeExtractor{items: map[string]*domain.ItemMetadata{
		"vid1": itemWithFormats("vid1", "My: Great/Video?"),
	}}
	fetcher := &fakeFetcher{}
	dm := newTestDownloadManager(newMemRepo(), extractor, fetcher, dir)

	var events []domain.Progress
	path, err := dm.DownloadItem(context.Background(), ItemRequest{
		Locator:  "vid1",
		DestDir:  dir,
		Policy:   domain.BestQuality(),
		Progress: func(p domain.Progress) { events = append(events, p) },
	})

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "My GreatVideo.mp4"), path)
	assert.FileExists(t, path)
	assert.Equal(t, []string{"https://media.example/vid1/22"}, fetcher.fetched)

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, last.Total, last.Downloaded)
	assert.Equal(t, "My: Great/Video?", last.Title)
	assert.Zero(t, last.Index)
}

func TestDownloadItem_HeightAndFilenameOverride(t *testing.T) {
	dir := t.TempDir()
	extractor := &fakeExtractor{items: map[string]*domain.ItemMetadata{
		"vid1": itemWithFormats("vid1", "Title"),
	}}
	fetcher := &fakeFetcher{}
	dm := newTestDownloadManager(newMemRepo(), extractor, fetcher, dir)

	policy, err := domain.ParseQuality("480p")
	require.NoError(t, err)

	path, err := dm.DownloadItem(context.Background(), ItemRequest{
		Locator:  "vid1",
		DestDir:  filepath.Join(dir, "nested"),
		Policy:   policy,
		Filename: "custom",
	})

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "nested", "custom.mp4"), path)
	assert.Equal(t, []string{"https://media.example/vid1/18"}, fetcher.fetched)
}

func TestDownloadItem_AudioOnly(t *testing.T) {
	dir := t.TempDir()
	extractor := &fakeExtractor{items: map[string]*domain.ItemMetadata{
		"vid1": itemWithFormats("vid1", "Song"),
	}}
	dm := newTestDownloadManager(newMemRepo(), extractor, &fakeFetcher{}, dir)

	path, err := dm.DownloadItem(context.Background(), ItemRequest{
		Locator: "vid1",
		DestDir: dir,
		Policy:  domain.QualityPolicy{Kind: domain.QualityBest, Media: domain.MediaAudioOnly},
	})

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Song.webm"), path)
}

func TestDownloadItem_NoSuitableFormat(t *testing.T) {
	dir := t.TempDir()
	meta := itemWithFormats("vid1", "Locked")
	for i := range meta.Formats {
		meta.Formats[i].URL = ""
		meta.Formats[i].Ciphered = true
	}
	extractor := &fakeExtractor{items: map[string]*domain.ItemMetadata{"vid1": meta}}
	fetcher := &fakeFetcher{}
	dm := newTestDownloadManager(newMemRepo(), extractor, fetcher, dir)

	_, err := dm.DownloadItem(context.Background(), ItemRequest{Locator: "vid1", DestDir: dir, Policy: domain.BestQuality()})

	assert.ErrorIs(t, err, domain.ErrNoSuitableFormat)
	assert.Empty(t, fetcher.fetched)
}

func TestDownloadItem_ExtractorErrorPassesThrough(t *testing.T) {
	dm := newTestDownloadManager(newMemRepo(), &fakeExtractor{}, &fakeFetcher{}, t.TempDir())

	_, err := dm.DownloadItem(context.Background(), ItemRequest{Locator: "missing", Policy: domain.BestQuality()})
	assert.ErrorIs(t, err, domain.ErrVideoUnavailable)
}

func TestDownloadItem_FetchFailureWrapsCause(t *testing.T) {
	dir := t.TempDir()
	cause := errors.New("connection reset")
	extractor := &fakeExtractor{items: map[string]*domain.ItemMetadata{
		"vid1": itemWithFormats("vid1", "Title"),
	}}
	fetcher := &fakeFetcher{failURLs: map[string]error{"https://media.example/vid1/22": cause}}
	dm := newTestDownloadManager(newMemRepo(), extractor, fetcher, dir)

	_, err := dm.DownloadItem(context.Background(), ItemRequest{Locator: "vid1", DestDir: dir, Policy: domain.BestQuality()})

	assert.ErrorIs(t, err, domain.ErrDownloadFailed)
	assert.ErrorIs(t, err, cause)
}

func TestDownloadItem_UntitledFallsBackToID(t *testing.T) {
	dir := t.TempDir()
	meta := itemWithFormats("abcdefghijk", "???")
	extractor := &fakeExtractor{items: map[string]*domain.ItemMetadata{"abcdefghijk": meta}}
	dm := newTestDownloadManager(newMemRepo(), extractor, &fakeFetcher{}, dir)

	path, err := dm.DownloadItem(context.Background(), ItemRequest{Locator: "abcdefghijk", DestDir: dir, Policy: domain.BestQuality()})

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "abcdefghijk.mp4"), path)
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Plain title", "Plain title"},
		{`a\b/c*d?e:f"g<h>i|j`, "abcdefghij"},
		{"  lots   of \t space\n", "lots of space"},
		{"???", ""},
		{strings.Repeat("x", 150), strings.Repeat("x", 100)},
		{strings.Repeat("é", 120), strings.Repeat("é", 100)},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeFilename(tt.in), "input %q", tt.in)
	}
}

func TestInspectFormats(t *testing.T) {
	extractor := &fakeExtractor{items: map[string]*domain.ItemMetadata{
		"vid1": itemWithFormats("vid1", "Title"),
	}}
	dm := newTestDownloadManager(newMemRepo(), extractor, &fakeFetcher{}, t.TempDir())

	report, err := dm.InspectFormats(context.Background(), "vid1", domain.QualityPolicy{Kind: domain.QualityWorst})
	require.NoError(t, err)
	assert.Len(t, report.Item.Formats, 3)
	assert.Equal(t, "worst", report.Policy)
	require.NotNil(t, report.Selected)
	assert.Equal(t, "18", report.Selected.ID)
}

func TestProcessDownload_Item(t *testing.T) {
	dir := t.TempDir()
	repo := newMemRepo()
	extractor := &fakeExtractor{items: map[string]*domain.ItemMetadata{
		"https://www.youtube.com/watch?v=aaaaaaaaaaa": itemWithFormats("aaaaaaaaaaa", "First"),
	}}
	dm := newTestDownloadManager(repo, extractor, &fakeFetcher{}, dir)

	download := domain.NewDownload("https://www.youtube.com/watch?v=aaaaaaaaaaa", domain.KindItem, "best")
	require.NoError(t, repo.Create(download))

	require.NoError(t, dm.ProcessDownload(context.Background(), download))
	assert.Equal(t, domain.StatusCompleted, download.Status)
	assert.Equal(t, filepath.Join(dir, "First.mp4"), download.FilePath)
	assert.Equal(t, "First", download.Title)
	assert.NotNil(t, download.CompletedAt)
}

func TestProcessDownload_RetriesTransientFailures(t *testing.T) {
	dir := t.TempDir()
	repo := newMemRepo()
	url := "https://www.youtube.com/watch?v=aaaaaaaaaaa"
	extractor := &fakeExtractor{itemErr: map[string]error{
		url: fmt.Errorf("%w: HTTP 500", domain.ErrExtractionFailed),
	}}
	dm := newTestDownloadManager(repo, extractor, &fakeFetcher{}, dir)

	download := domain.NewDownload(url, domain.KindItem, "")
	require.NoError(t, repo.Create(download))

	err := dm.ProcessDownload(context.Background(), download)
	assert.ErrorIs(t, err, domain.ErrExtractionFailed)
	assert.Equal(t, domain.StatusFailed, download.Status)
	assert.Equal(t, 3, extractor.itemCalls(url), "initial attempt plus two retries")
	assert.Equal(t, 2, download.RetryCount)
}

func TestProcessDownload_PermanentFailureSkipsRetries(t *testing.T) {
	repo := newMemRepo()
	extractor := &fakeExtractor{}
	dm := newTestDownloadManager(repo, extractor, &fakeFetcher{}, t.TempDir())

	download := domain.NewDownload("gone", domain.KindItem, "")
	require.NoError(t, repo.Create(download))

	err := dm.ProcessDownload(context.Background(), download)
	assert.ErrorIs(t, err, domain.ErrVideoUnavailable)
	assert.Equal(t, 1, extractor.itemCalls("gone"))
	assert.Equal(t, domain.StatusFailed, download.Status)
	assert.Contains(t, download.ErrorMessage, "video unavailable")
}

func TestProcessDownload_InvalidQuality(t *testing.T) {
	repo := newMemRepo()
	dm := newTestDownloadManager(repo, &fakeExtractor{}, &fakeFetcher{}, t.TempDir())

	download := domain.NewDownload("vid", domain.KindItem, "ultra")
	require.NoError(t, repo.Create(download))

	err := dm.ProcessDownload(context.Background(), download)
	require.Error(t, err)
	assert.Equal(t, domain.StatusFailed, download.Status)
}

func TestProcessDownload_Collection(t *testing.T) {
	dir := t.TempDir()
	repo := newMemRepo()
	extractor := &fakeExtractor{
		items: map[string]*domain.ItemMetadata{
			"a": itemWithFormats("a", "Alpha"),
			"b": itemWithFormats("b", "Beta"),
		},
		collections: map[string]*domain.CollectionMetadata{
			"https://www.youtube.com/playlist?list=PLx": {
				ID:    "PLx",
				Title: "Mix",
				Items: []domain.ItemRef{{ID: "a", Title: "Alpha", URL: "a"}, {ID: "b", Title: "Beta", URL: "b"}, {ID: "c", Title: "Gone", URL: "c"}},
			},
		},
	}
	dm := newTestDownloadManager(repo, extractor, &fakeFetcher{}, dir)

	download := domain.NewDownload("https://www.youtube.com/playlist?list=PLx", domain.KindCollection, "best")
	require.NoError(t, repo.Create(download))

	require.NoError(t, dm.ProcessDownload(context.Background(), download))
	assert.Equal(t, domain.StatusCompleted, download.Status)
	assert.Equal(t, "Mix", download.Title)
	assert.Equal(t, 2, download.Succeeded)
	assert.Equal(t, 1, download.Failed)

	failures, err := download.Failures()
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, 3, failures[0].Index)
	assert.Equal(t, "Gone", failures[0].Title)
}

func TestProcessDownload_CancelWhileRetrying(t *testing.T) {
	repo := newMemRepo()
	url := "https://www.youtube.com/watch?v=aaaaaaaaaaa"
	extractor := &fakeExtractor{itemErr: map[string]error{url: domain.ErrExtractionFailed}}
	config := &domain.DownloadConfig{OutputDir: t.TempDir(), MaxRetries: 5, RetryDelay: time.Hour, ConcurrentLimit: 1}
	dm := NewDownloadManager(repo, extractor, &fakeFetcher{}, nil, config, nil)

	download := domain.NewDownload(url, domain.KindItem, "")
	require.NoError(t, repo.Create(download))

	done := make(chan error, 1)
	go func() { done <- dm.ProcessDownload(context.Background(), download) }()

	require.Eventually(t, func() bool { return extractor.itemCalls(url) == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		dm.mu.Lock()
		defer dm.mu.Unlock()
		_, ok := dm.cancels[download.ID]
		return ok
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, dm.CancelDownload(download.ID))

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("ProcessDownload did not stop after cancel")
	}
	assert.Equal(t, domain.StatusCancelled, download.Status)
}

func TestCancelDownload(t *testing.T) {
	repo := newMemRepo()
	dm := newTestDownloadManager(repo, &fakeExtractor{}, &fakeFetcher{}, t.TempDir())

	queued := domain.NewDownload("a", domain.KindItem, "")
	done := domain.NewDownload("b", domain.KindItem, "")
	done.MarkCompleted("/tmp/b.mp4")
	require.NoError(t, repo.Create(queued))
	require.NoError(t, repo.Create(done))

	require.NoError(t, dm.CancelDownload(queued.ID))
	assert.Equal(t, domain.StatusCancelled, queued.Status)

	err := dm.CancelDownload(done.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "terminal")

	err = dm.CancelDownload("missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestRetryDownload(t *testing.T) {
	tests := []struct {
		status  domain.DownloadStatus
		wantErr string
	}{
		{domain.StatusFailed, ""},
		{domain.StatusCancelled, ""},
		{domain.StatusQueued, "already queued"},
		{domain.StatusProcessing, "currently processing"},
		{domain.StatusCompleted, "already completed"},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			repo := newMemRepo()
			dm := newTestDownloadManager(repo, nil, nil, t.TempDir())

			download := &domain.Download{ID: "job", URL: "https://www.youtube.com/watch?v=aaaaaaaaaaa", Status: tt.status, RetryCount: 2, ErrorMessage: "boom"}
			require.NoError(t, repo.Create(download))

			err := dm.RetryDownload(context.Background(), "job")
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, domain.StatusQueued, download.Status)
			assert.Equal(t, 0, download.RetryCount)
			assert.Empty(t, download.ErrorMessage)
			assert.Nil(t, download.StartedAt)
			assert.Nil(t, download.CompletedAt)
		})
	}
}

func TestRetryDownload_NotFound(t *testing.T) {
	dm := newTestDownloadManager(newMemRepo(), nil, nil, t.TempDir())

	err := dm.RetryDownload(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestDeleteDownload(t *testing.T) {
	repo := newMemRepo()
	dm := newTestDownloadManager(repo, nil, nil, t.TempDir())

	download := domain.NewDownload("a", domain.KindItem, "")
	require.NoError(t, repo.Create(download))

	require.NoError(t, dm.DeleteDownload(download.ID))
	found, _ := repo.FindByID(download.ID)
	assert.Nil(t, found)
}

func TestDownloadItem_LeavesNoFileOnFailure(t *testing.T) {
	dir := t.TempDir()
	extractor := &fakeExtractor{items: map[string]*domain.ItemMetadata{
		"vid1": itemWithFormats("vid1", "Title"),
	}}
	fetcher := &fakeFetcher{failURLs: map[string]error{"https://media.example/vid1/22": errors.New("boom")}}
	dm := newTestDownloadManager(newMemRepo(), extractor, fetcher, dir)

	_, err := dm.DownloadItem(context.Background(), ItemRequest{Locator: "vid1", DestDir: dir, Policy: domain.BestQuality()})
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDownloadItem_FilenameOverrideStaysInDestDir(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "out")
	extractor := &fakeExtractor{items: map[string]*domain.ItemMetadata{
		"vid1": itemWithFormats("vid1", "Title"),
	}}
	dm := newTestDownloadManager(newMemRepo(), extractor, &fakeFetcher{}, out)

	path, err := dm.DownloadItem(context.Background(), ItemRequest{
		Locator:  "vid1",
		DestDir:  out,
		Policy:   domain.BestQuality(),
		Filename: "../escaped",
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "escaped.mp4"), path)
	assert.FileExists(t, path)
	assert.NoFileExists(t, filepath.Join(root, "escaped.mp4"))

	_, err = dm.DownloadItem(context.Background(), ItemRequest{
		Locator:  "vid1",
		DestDir:  out,
		Policy:   domain.BestQuality(),
		Filename: "../..",
	})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestCleanFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"custom", "custom"},
		{"../escaped", "escaped"},
		{"../../etc/passwd", "etcpasswd"},
		{"..", ""},
		{" . ", ""},
		{".hidden", "hidden"},
		{"trailing.", "trailing"},
		{"a.b", "a.b"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanFilename(tt.in), "input %q", tt.in)
	}
}

func TestWithinDir(t *testing.T) {
	dir := filepath.Join("/data", "out")
	assert.True(t, withinDir(dir, filepath.Join(dir, "a.mp4")))
	assert.True(t, withinDir(dir, filepath.Join(dir, "..a.mp4")))
	assert.False(t, withinDir(dir, filepath.Join(dir, "..", "a.mp4")))
	assert.False(t, withinDir(dir, dir))
	assert.False(t, withinDir(dir, "/etc/passwd"))
}

func TestPathClaims(t *testing.T) {
	claims := newPathClaims()
	dir := t.TempDir()

	assert.Equal(t, filepath.Join(dir, "Same.mp4"), claims.claim(dir, "Same", "mp4"))
	assert.Equal(t, filepath.Join(dir, "Same (2).mp4"), claims.claim(dir, "Same", "mp4"))
	assert.Equal(t, filepath.Join(dir, "same (3).mp4"), claims.claim(dir, "same", "mp4"), "names differing in case collide")
	assert.Equal(t, filepath.Join(dir, "Same.webm"), claims.claim(dir, "Same", "webm"))
}

// gateFetcher blocks every fetch until release is closed
type gateFetcher struct {
	started chan string
	release chan struct{}
}

func (g *gateFetcher) Fetch(ctx context.Context, url, dest string, expected int64, onProgress domain.FetchProgressFunc) error {
	g.started <- url
	<-g.release
	return os.WriteFile(dest, []byte("hello world"), 0644)
}

func TestProcessDownload_CancelWhileWaitingForSlot(t *testing.T) {
	repo := newMemRepo()
	extractor := &fakeExtractor{items: map[string]*domain.ItemMetadata{
		"u1": itemWithFormats("u1", "First"),
		"u2": itemWithFormats("u2", "Second"),
	}}
	fetcher := &gateFetcher{started: make(chan string, 2), release: make(chan struct{})}
	config := &domain.DownloadConfig{OutputDir: t.TempDir(), ConcurrentLimit: 1}
	dm := NewDownloadManager(repo, extractor, fetcher, nil, config, nil)

	first := domain.NewDownload("u1", domain.KindItem, "")
	second := domain.NewDownload("u2", domain.KindItem, "")
	require.NoError(t, repo.Create(first))
	require.NoError(t, repo.Create(second))

	firstDone := make(chan error, 1)
	go func() { firstDone <- dm.ProcessDownload(context.Background(), first) }()
	select {
	case <-fetcher.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first job never started fetching")
	}

	secondDone := make(chan error, 1)
	go func() { secondDone <- dm.ProcessDownload(context.Background(), second) }()
	require.Eventually(t, func() bool {
		dm.mu.Lock()
		defer dm.mu.Unlock()
		_, ok := dm.cancels[second.ID]
		return ok
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, dm.CancelDownload(second.ID))

	select {
	case err := <-secondDone:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("waiting job did not stop after cancel")
	}

	close(fetcher.release)
	require.NoError(t, <-firstDone)

	assert.Equal(t, domain.StatusCompleted, repo.status(first.ID))
	assert.Equal(t, domain.StatusCancelled, repo.status(second.ID))
	assert.Zero(t, extractor.itemCalls("u2"))
}

func TestProcessDownload_SkipsJobCancelledBeforeSlot(t *testing.T) {
	repo := newMemRepo()
	extractor := &fakeExtractor{items: map[string]*domain.ItemMetadata{"u1": itemWithFormats("u1", "First")}}
	fetcher := &fakeFetcher{}
	dm := newTestDownloadManager(repo, extractor, fetcher, t.TempDir())

	download := domain.NewDownload("u1", domain.KindItem, "")
	require.NoError(t, repo.Create(download))

	// A stale copy, as a queue poll would hold it
	stale := *download
	require.NoError(t, dm.CancelDownload(download.ID))

	err := dm.ProcessDownload(context.Background(), &stale)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.StatusCancelled, stale.Status)
	assert.Zero(t, fetcher.fetchCount())
}

// unsizedFetcher streams a body in two chunks without ever learning its size
type unsizedFetcher struct{}

func (unsizedFetcher) Fetch(ctx context.Context, url, dest string, expected int64, onProgress domain.FetchProgressFunc) error {
	if err := os.WriteFile(dest, []byte("0123456789"), 0644); err != nil {
		return err
	}
	onProgress(4, domain.UnknownSize, time.Millisecond)
	onProgress(10, domain.UnknownSize, 2*time.Millisecond)
	return nil
}

func TestDownloadItem_UnknownSizeEndsWithSizedEvent(t *testing.T) {
	dir := t.TempDir()
	extractor := &fakeExtractor{items: map[string]*domain.ItemMetadata{
		"vid1": itemWithFormats("vid1", "Title"),
	}}
	dm := newTestDownloadManager(newMemRepo(), extractor, unsizedFetcher{}, dir)

	var events []domain.Progress
	_, err := dm.DownloadItem(context.Background(), ItemRequest{
		Locator:  "vid1",
		DestDir:  dir,
		Policy:   domain.BestQuality(),
		Progress: func(p domain.Progress) { events = append(events, p) },
	})
	require.NoError(t, err)

	require.Len(t, events, 3)
	assert.Equal(t, domain.UnknownSize, events[1].Total)
	last := events[2]
	assert.Equal(t, int64(10), last.Downloaded)
	assert.Equal(t, int64(10), last.Total)
	assert.Equal(t, "Title", last.Title)
}
