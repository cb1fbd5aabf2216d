package ffmpeg

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"sync"
)

// ScanLines is a bufio.SplitFunc that ends a line at \n, \r\n or a bare \r.
// ffmpeg rewrites its -stats line in place with carriage returns.
func ScanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\r' {
			if i+1 == len(data) && !atEOF {
				return 0, nil, nil
			}
			if i+1 < len(data) && data[i+1] == '\n' {
				return i + 2, data[:i], nil
			}
		}
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// streamLines calls onLine for every non-blank line read from r and records
// each one in tail.
func streamLines(r io.Reader, tail *tailWriter, onLine func(string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(ScanLines)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if tail != nil {
			tail.addLine(line)
		}
		if onLine != nil {
			onLine(line)
		}
	}
	return scanner.Err()
}

// tailWriter keeps the last few lines written to it. It is safe to use as an
// exec.Cmd Stderr.
type tailWriter struct {
	mu      sync.Mutex
	max     int
	lines   []string
	partial []byte
}

func newTailWriter(max int) *tailWriter {
	if max <= 0 {
		max = 20
	}
	return &tailWriter{max: max}
}

func (w *tailWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.partial = append(w.partial, p...)
	for {
		i := bytes.IndexAny(w.partial, "\r\n")
		if i < 0 {
			break
		}
		if line := strings.TrimSpace(string(w.partial[:i])); line != "" {
			w.push(line)
		}
		w.partial = w.partial[i+1:]
	}
	return len(p), nil
}

func (w *tailWriter) addLine(line string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.push(line)
}

func (w *tailWriter) push(line string) {
	w.lines = append(w.lines, line)
	if len(w.lines) > w.max {
		w.lines = w.lines[len(w.lines)-w.max:]
	}
}

// String returns the retained lines, including an unterminated last one.
func (w *tailWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	lines := append([]string(nil), w.lines...)
	if rest := strings.TrimSpace(string(w.partial)); rest != "" {
		lines = append(lines, rest)
	}
	return strings.Join(lines, "\n")
}

// Last returns the most recent line.
func (w *tailWriter) Last() string {
	s := w.String()
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
