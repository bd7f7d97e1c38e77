package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// dailyFileWriter appends to <dir>/<prefix>-YYYY-MM-DD.log and switches
// files when the calendar day changes.
type dailyFileWriter struct {
	dir    string
	prefix string
	now    func() time.Time

	mu   sync.Mutex
	day  string
	file *os.File
}

func newDailyFileWriter(dir, prefix string, now func() time.Time) (*dailyFileWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir %s: %w", dir, err)
	}
	return &dailyFileWriter{dir: dir, prefix: prefix, now: now}, nil
}

func (w *dailyFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	day := w.now().Format("2006-01-02")
	if w.file == nil || day != w.day {
		if w.file != nil {
			_ = w.file.Close()
		}
		name := filepath.Join(w.dir, fmt.Sprintf("%s-%s.log", w.prefix, day))
		f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			w.file = nil
			return 0, fmt.Errorf("open log file %s: %w", name, err)
		}
		w.file = f
		w.day = day
	}
	return w.file.Write(p)
}

func (w *dailyFileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
