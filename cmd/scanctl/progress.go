package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	"scan-indexer/internal/indexer"
)

const progressInterval = 500 * time.Millisecond

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// stdoutWidth returns the terminal width, 80 when it cannot be read.
func stdoutWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

// statusSource is the part of the Manager the progress line reads.
type statusSource interface {
	Building() []string
	Status(server string) (indexer.Status, error)
}

// progress redraws a single status line while builds run.
type progress struct {
	w     io.Writer
	src   statusSource
	width int
	drawn bool
}

func newProgress(w io.Writer, src statusSource, width int) *progress {
	return &progress{w: w, src: src, width: width}
}

// start draws every interval until the returned func is called, which also
// clears the line.
func (p *progress) start(interval time.Duration) func() {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.draw()
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
			p.clear()
		})
	}
}

func (p *progress) draw() {
	line := p.line()
	if line == "" {
		return
	}
	fmt.Fprintf(p.w, "\r\033[K%s", line)
	p.drawn = true
}

func (p *progress) clear() {
	if p.drawn {
		fmt.Fprint(p.w, "\r\033[K")
		p.drawn = false
	}
}

// line summarizes every running build, truncated to the terminal width.
func (p *progress) line() string {
	names := p.src.Building()
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		st, err := p.src.Status(name)
		if err != nil || st.Progress == nil {
			continue
		}
		pr := st.Progress
		parts = append(parts, fmt.Sprintf("%s %s: %d listed, %d pending, %d failed (%s)",
			name, pr.Mode, pr.Listed, pr.Pending, pr.Failed,
			time.Since(pr.StartedAt).Round(time.Second)))
	}
	line := strings.Join(parts, " | ")
	if p.width > 1 && len(line) > p.width-1 {
		line = line[:p.width-1]
	}
	return line
}
