// Package clipboard copies note text to the system clipboard.
package clipboard

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	cb "github.com/atotto/clipboard"
)

var ErrEmpty = errors.New("nothing to copy")

var (
	mu       sync.Mutex
	write    = cb.WriteAll
	read     = cb.ReadAll
	isMemory bool
)

// Available reports whether a clipboard utility was found. On Linux this
// means xclip, xsel or wl-copy is installed.
func Available() bool {
	mu.Lock()
	defer mu.Unlock()
	return !cb.Unsupported || isMemory
}

func Copy(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmpty
	}
	mu.Lock()
	w := write
	mu.Unlock()
	if err := w(text); err != nil {
		return fmt.Errorf("copy to clipboard: %w", err)
	}
	return nil
}

func Read() (string, error) {
	mu.Lock()
	r := read
	mu.Unlock()
	return r()
}

// UseMemory swaps the system clipboard for an in-process buffer and
// returns a function that restores it.
func UseMemory() (restore func()) {
	var (
		bufMu sync.Mutex
		buf   string
	)
	mu.Lock()
	prevW, prevR, prevM := write, read, isMemory
	write = func(s string) error {
		bufMu.Lock()
		buf = s
		bufMu.Unlock()
		return nil
	}
	read = func() (string, error) {
		bufMu.Lock()
		defer bufMu.Unlock()
		return buf, nil
	}
	isMemory = true
	mu.Unlock()
	return func() {
		mu.Lock()
		write, read, isMemory = prevW, prevR, prevM
		mu.Unlock()
	}
}
