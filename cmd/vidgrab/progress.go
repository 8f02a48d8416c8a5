package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/yourusername/vidgrab/internal/domain"
)

const barNameWidth = 40

// progressBar tracks one item being downloaded
type progressBar struct {
	bar      *mpb.Bar
	lastSize int64
	lastTime time.Duration
	sized    bool
}

// progressRenderer draws one mpb bar per in-flight item
type progressRenderer struct {
	pc   *mpb.Progress
	mu   sync.Mutex
	bars map[int]*progressBar
}

// newProgressRenderer returns nil when quiet, which disables all rendering
func newProgressRenderer(ctx context.Context, out io.Writer, quiet bool) *progressRenderer {
	if quiet {
		return nil
	}
	return &progressRenderer{
		pc: mpb.NewWithContext(ctx,
			mpb.WithWidth(64),
			mpb.WithOutput(out),
			mpb.WithRefreshRate(150*time.Millisecond),
		),
		bars: make(map[int]*progressBar),
	}
}

// Func returns a progress sink safe for concurrent use by collection workers
func (r *progressRenderer) Func() domain.ProgressFunc {
	if r == nil {
		return nil
	}
	return r.update
}

func (r *progressRenderer) update(p domain.Progress) {
	b := r.barFor(p)

	if p.Total != domain.UnknownSize && !b.sized {
		b.bar.SetTotal(p.Total, false)
		b.sized = true
	}

	delta := p.Downloaded - b.lastSize
	if delta > 0 {
		b.bar.EwmaIncrInt64(delta, p.Elapsed-b.lastTime)
		b.lastSize = p.Downloaded
		b.lastTime = p.Elapsed
	}

	if p.Total != domain.UnknownSize && p.Downloaded >= p.Total {
		b.bar.SetTotal(-1, true)
	}
}

func (r *progressRenderer) barFor(p domain.Progress) *progressBar {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.bars[p.Index]; ok {
		return b
	}

	b := &progressBar{
		bar: r.pc.AddBar(0,
			mpb.BarWidth(24),
			mpb.PrependDecorators(
				decor.Name(barName(p), decor.WC{W: barNameWidth + 1, C: decor.DindentRight}),
				decor.Counters(decor.SizeB1024(0), "% .1f / % .1f", decor.WCSyncSpace),
			),
			mpb.AppendDecorators(
				decor.OnComplete(decor.Percentage(decor.WC{W: 5}), "done"),
				decor.OnComplete(decor.AverageSpeed(decor.SizeB1024(0), " % .1f", decor.WCSyncSpace), ""),
				decor.OnComplete(decor.EwmaETA(decor.ET_STYLE_GO, 30, decor.WCSyncSpace), ""),
			),
		),
	}
	r.bars[p.Index] = b
	return b
}

// Wait aborts the bars of items that never finished and waits for the final render
func (r *progressRenderer) Wait() {
	if r == nil {
		return
	}
	r.mu.Lock()
	for _, b := range r.bars {
		if !b.bar.Completed() {
			b.bar.Abort(false)
		}
	}
	r.mu.Unlock()
	r.pc.Wait()
}

// barName labels a bar with the item title and its position in a collection
func barName(p domain.Progress) string {
	name := p.Title
	if p.Count > 0 {
		name = fmt.Sprintf("[%d/%d] %s", p.Index, p.Count, name)
	}
	return truncate(name, barNameWidth)
}
