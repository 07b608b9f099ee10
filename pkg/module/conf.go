package module

import (
	"os"
	"sync"
)

// Format hints the server about a module configuration's encoding.
type Format int

// Configuration formats. JSON is preferred: the server folds JSON module
// configurations into its own configuration file.
const (
	FormatUndefined Format = iota
	FormatJSON
	FormatXML
	FormatINI
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatXML:
		return "xml"
	case FormatINI:
		return "ini"
	default:
		return "undefined"
	}
}

// Conf is the configuration entity handed to a module factory. The core
// passes it through opaquely; only the module interprets the bytes.
type Conf interface {
	// Read returns the stored configuration, empty if never written.
	Read() []byte

	// Write replaces the stored configuration. The format is a hint to
	// the server about how the bytes are encoded.
	Write(format Format, data []byte)
}

// MemConf is an in-memory Conf. The zero value is ready to use.
type MemConf struct {
	mu     sync.RWMutex
	format Format
	data   []byte
}

// NewMemConf returns a MemConf pre-seeded with data.
func NewMemConf(format Format, data []byte) *MemConf {
	return &MemConf{format: format, data: data}
}

// Read returns the stored bytes.
func (c *MemConf) Read() []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]byte, len(c.data))
	copy(out, c.data)
	return out
}

// Write replaces the stored bytes.
func (c *MemConf) Write(format Format, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.format = format
	c.data = append([]byte(nil), data...)
}

// Format returns the format hint of the last write.
func (c *MemConf) Format() Format {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.format
}

// FileConf is a Conf backed by a single file on disk.
type FileConf struct {
	mu     sync.Mutex
	path   string
	format Format
}

// NewFileConf returns a Conf that stores its bytes at path.
func NewFileConf(path string) *FileConf {
	return &FileConf{path: path}
}

// Read returns the file contents, or empty when the file does not exist.
func (c *FileConf) Read() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil
	}
	return data
}

// Write replaces the file contents. Write failures are silent per the
// contract; a module cannot act on them anyway.
func (c *FileConf) Write(format Format, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.format = format
	_ = os.WriteFile(c.path, data, 0o600)
}
