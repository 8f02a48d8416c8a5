package app

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yourusername/vidgrab/internal/domain"
)

func int64Ptr(v int64) *int64 { return &v }

// itemWithFormats builds metadata carrying a 360p and a 720p combined stream
func itemWithFormats(id, title string) *domain.ItemMetadata {
	return &domain.ItemMetadata{
		ID:    id,
		Title: title,
		Formats: []domain.Format{
			{ID: "18", HasAudio: true, HasVideo: true, Container: "mp4", Height: 360, VideoBitrate: 500000,
				URL: "https://media.example/" + id + "/18", ContentLength: int64Ptr(11)},
			{ID: "22", HasAudio: true, HasVideo: true, Container: "mp4", Height: 720, VideoBitrate: 1500000,
				URL: "https://media.example/" + id + "/22", ContentLength: int64Ptr(11)},
			{ID: "251", HasAudio: true, Container: "webm", AudioBitrate: 160000,
				URL: "https://media.example/" + id + "/251"},
		},
	}
}

// fakeExtractor serves canned metadata keyed by locator
type fakeExtractor struct {
	mu          sync.Mutex
	items       map[string]*domain.ItemMetadata
	itemErr     map[string]error
	collections map[string]*domain.CollectionMetadata
	panicOn     string
	calls       map[string]int
}

func (f *fakeExtractor) GetItemMetadata(ctx context.Context, locator string) (*domain.ItemMetadata, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[locator]++
	f.mu.Unlock()

	if locator == f.panicOn && locator != "" {
		panic("extractor exploded")
	}
	if err, ok := f.itemErr[locator]; ok {
		return nil, err
	}
	if meta, ok := f.items[locator]; ok {
		return meta, nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrVideoUnavailable, locator)
}

func (f *fakeExtractor) GetCollectionMetadata(ctx context.Context, locator string) (*domain.CollectionMetadata, error) {
	if c, ok := f.collections[locator]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrCollectionUnavailable, locator)
}

func (f *fakeExtractor) itemCalls(locator string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[locator]
}

// fakeFetcher writes a fixed body and tracks how many fetches run at once
type fakeFetcher struct {
	body     string
	delay    time.Duration
	failURLs map[string]error

	inFlight    int32
	maxInFlight int32
	mu          sync.Mutex
	fetched     []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, url, dest string, expected int64, onProgress domain.FetchProgressFunc) error {
	now := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		max := atomic.LoadInt32(&f.maxInFlight)
		if now <= max || atomic.CompareAndSwapInt32(&f.maxInFlight, max, now) {
			break
		}
	}

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if err, ok := f.failURLs[url]; ok {
		return err
	}

	body := f.body
	if body == "" {
		body = "hello world"
	}
	if err := os.WriteFile(dest, []byte(body), 0644); err != nil {
		return err
	}
	if onProgress != nil {
		onProgress(int64(len(body)), int64(len(body)), time.Millisecond)
	}

	f.mu.Lock()
	f.fetched = append(f.fetched, url)
	f.mu.Unlock()
	return nil
}

func (f *fakeFetcher) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fetched)
}

// memRepo is an in-memory domain.DownloadRepository
type memRepo struct {
	mu        sync.Mutex
	downloads map[string]*domain.Download
	order     []string
}

func newMemRepo() *memRepo {
	return &memRepo{downloads: make(map[string]*domain.Download)}
}

func (m *memRepo) Create(download *domain.Download) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downloads[download.ID] = download
	m.order = append(m.order, download.ID)
	return nil
}

func (m *memRepo) Update(download *domain.Download) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downloads[download.ID] = download
	return nil
}

func (m *memRepo) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.downloads, id)
	return nil
}

func (m *memRepo) FindByID(id string) (*domain.Download, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.downloads[id]; ok {
		return d, nil
	}
	return nil, nil
}

func (m *memRepo) FindByURL(url string, statuses []domain.DownloadStatus) (*domain.Download, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.order) - 1; i >= 0; i-- {
		d, ok := m.downloads[m.order[i]]
		if !ok || d.URL != url {
			continue
		}
		for _, s := range statuses {
			if d.Status == s {
				return d, nil
			}
		}
	}
	return nil, nil
}

func (m *memRepo) FindByStatus(status domain.DownloadStatus) ([]*domain.Download, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Download
	for _, id := range m.order {
		if d, ok := m.downloads[id]; ok && d.Status == status {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memRepo) FindPending() ([]*domain.Download, error) {
	return m.FindByStatus(domain.StatusQueued)
}

func (m *memRepo) FindAll(filters map[string]interface{}) ([]*domain.Download, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Download
	for _, id := range m.order {
		if d, ok := m.downloads[id]; ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memRepo) Count() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.downloads)), nil
}

func (m *memRepo) CountByStatus(status domain.DownloadStatus) (int64, error) {
	found, _ := m.FindByStatus(status)
	return int64(len(found)), nil
}

func (m *memRepo) CountActive() (int64, error) {
	queued, _ := m.CountByStatus(domain.StatusQueued)
	processing, _ := m.CountByStatus(domain.StatusProcessing)
	return queued + processing, nil
}

func (m *memRepo) ResetOrphanedProcessing() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, d := range m.downloads {
		if d.Status == domain.StatusProcessing {
			d.Status = domain.StatusQueued
			n++
		}
	}
	return n, nil
}

func (m *memRepo) GetStats() (*domain.DownloadStats, error) {
	total, _ := m.Count()
	return &domain.DownloadStats{Total: total}, nil
}

// status reads a job status under the repository lock
func (m *memRepo) status(id string) domain.DownloadStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.downloads[id]; ok {
		return d.Status
	}
	return ""
}
