package main

import (
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/dshills/semindex/internal/indexer"
)

// barProgress draws a document progress bar for a processing run.
type barProgress struct {
	out   io.Writer
	bar   *progressbar.ProgressBar
	total int
}

// newProgress returns a bar on stderr when it is a terminal.
func newProgress(enabled bool) indexer.Progress {
	if !enabled || !term.IsTerminal(int(os.Stderr.Fd())) {
		return indexer.NopProgress{}
	}
	return &barProgress{out: os.Stderr}
}

func (p *barProgress) start(total int) {
	p.total = total
	p.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(p.out),
		progressbar.OptionSetDescription("embedding"),
		progressbar.OptionSetWidth(32),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

func (p *barProgress) OnBatchComplete(indexer.BatchEvent) {}

func (p *barProgress) OnFileComplete(ev indexer.FileEvent) {
	if ev.Total <= 0 {
		return
	}
	if p.bar == nil || p.total != ev.Total {
		p.start(ev.Total)
	}
	_ = p.bar.Set(ev.Done)
	if ev.Done >= ev.Total {
		_ = p.bar.Finish()
		p.bar = nil
	}
}
