package filesystem

import (
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// MockBackend is an in-memory Backend, useful for fast, deterministic
// tests that don't want to touch a real filesystem. It is safe for
// concurrent use.
type MockBackend struct {
	mu    sync.Mutex
	files map[string][]byte
	// OpenCounts records how many times readAt has been called for each
	// path, letting tests assert on the sequence-skip optimization.
	OpenCounts map[string]int
}

// NewMockBackend creates an empty in-memory backend.
func NewMockBackend() *MockBackend {
	return &MockBackend{
		files:      make(map[string][]byte),
		OpenCounts: make(map[string]int),
	}
}

func (b *MockBackend) stat(path string) (entryKind, int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if data, ok := b.files[path]; ok {
		return entryKindFile, int64(len(data)), nil
	}
	prefix := path + "/"
	if path == "" {
		prefix = ""
	}
	for existing := range b.files {
		if strings.HasPrefix(existing, prefix) {
			return entryKindDirectory, 0, nil
		}
	}
	return entryKindAbsent, 0, nil
}

func (b *MockBackend) readAt(path string, offset int64) ([]byte, error) {
	b.mu.Lock()
	b.OpenCounts[path]++
	data, ok := b.files[path]
	b.mu.Unlock()

	if !ok {
		return nil, nil
	}
	if offset < 0 || offset > int64(len(data)) {
		return nil, errors.New("offset out of range")
	}
	result := make([]byte, len(data)-int(offset))
	copy(result, data[offset:])
	return result, nil
}

func (b *MockBackend) writeFile(path string, data []byte, appendData bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if appendData {
		b.files[path] = append(append([]byte{}, b.files[path]...), data...)
		return nil
	}
	b.files[path] = append([]byte{}, data...)
	return nil
}

func (b *MockBackend) remove(path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.files[path]; ok {
		delete(b.files, path)
		return nil
	}

	// Removing a "directory" (a path with no file of its own, but with
	// descendants) is only valid if it is empty, matching the behavior of
	// removing a real empty directory.
	prefix := path + "/"
	for existing := range b.files {
		if strings.HasPrefix(existing, prefix) {
			return errors.New("directory not empty")
		}
	}
	return nil
}

func (b *MockBackend) list(path string) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	prefix := path + "/"
	if path == "" {
		prefix = ""
	}

	seen := make(map[string]bool)
	for existing := range b.files {
		if !strings.HasPrefix(existing, prefix) {
			continue
		}
		rest := existing[len(prefix):]
		if rest == "" {
			continue
		}
		if index := strings.IndexByte(rest, '/'); index >= 0 {
			seen[rest[:index]] = true
		} else {
			seen[rest] = true
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
