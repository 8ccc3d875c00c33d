package ui

import (
	"io"

	"github.com/schollz/progressbar/v3"
)

// Progress is a terminal progress bar fed by the importer's progress
// callback. The bar is created on the first update, once the total is known;
// the total may grow while pages arrive.
type Progress struct {
	w           io.Writer
	description string
	bar         *progressbar.ProgressBar
}

// NewProgress returns a bar writing to w.
func NewProgress(w io.Writer, description string) *Progress {
	return &Progress{w: w, description: description}
}

// Update moves the bar to done out of total.
func (p *Progress) Update(done, total int) {
	if p.bar == nil {
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(p.w),
			progressbar.OptionSetDescription(p.description),
			progressbar.OptionSetWidth(20),
			progressbar.OptionShowCount(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "█",
				SaucerPadding: "░",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
	} else if total != p.bar.GetMax() {
		p.bar.ChangeMax(total)
	}
	_ = p.bar.Set(done)
}

// Finish completes the bar and ends its line.
func (p *Progress) Finish() error {
	if p.bar == nil {
		return nil
	}
	if err := p.bar.Finish(); err != nil {
		return err
	}
	_, err := io.WriteString(p.w, "\n")
	return err
}
