package accesslog

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modserve/modserve/pkg/module"
)

func TestLogWritesTimestampedLine(t *testing.T) {
	var buf strings.Builder
	l := NewWriter(&buf)

	l.Log("hello")
	l.Log("world")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], " hello"))
	assert.True(t, strings.HasSuffix(lines[1], " world"))
	// RFC3339 stamps start with the year.
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2}T`, lines[0])
}

func TestFileBackedLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "access.log")
	conf := module.NewMemConf(module.FormatJSON, []byte(`{"path":"`+path+`"}`))

	l, err := New(conf)
	require.NoError(t, err)
	l.Log("first")

	// A second instance appends instead of truncating.
	l2, err := New(conf)
	require.NoError(t, err)
	l2.Log("second")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "first")
	assert.Contains(t, string(data), "second")
}

func TestConcurrentLinesStayWhole(t *testing.T) {
	var buf safeBuilder
	l := NewWriter(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Log(strings.Repeat("a", 100))
		}()
	}
	wg.Wait()

	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		assert.True(t, strings.HasSuffix(line, strings.Repeat("a", 100)))
	}
}

type safeBuilder struct {
	mu sync.Mutex
	b  strings.Builder
}

func (s *safeBuilder) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *safeBuilder) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}
