package encoding

import (
	"bytes"
	"encoding/json"
	"sync"
	"sync/atomic"
)

// Codec marshals and unmarshals JSON through a shared buffer pool. Screening
// writes and history reads serialize row columns on every request, so the
// encode buffers are worth reusing.
type Codec struct {
	buffers    sync.Pool
	allocs     int64
	marshals   int64
	unmarshals int64
}

// NewCodec creates a codec with its own buffer pool
func NewCodec() *Codec {
	c := &Codec{}
	c.buffers.New = func() interface{} {
		atomic.AddInt64(&c.allocs, 1)
		return new(bytes.Buffer)
	}
	return c
}

// Marshal encodes v without HTML escaping and without a trailing newline
func (c *Codec) Marshal(v interface{}) ([]byte, error) {
	atomic.AddInt64(&c.marshals, 1)

	buf := c.buffers.Get().(*bytes.Buffer)
	buf.Reset()
	defer c.buffers.Put(buf)

	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	data := buf.Bytes()
	if n := len(data); n > 0 && data[n-1] == '\n' {
		data = data[:n-1]
	}

	// The buffer goes back to the pool, so hand out a copy
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Unmarshal decodes data into v
func (c *Codec) Unmarshal(data []byte, v interface{}) error {
	atomic.AddInt64(&c.unmarshals, 1)
	return json.Unmarshal(data, v)
}

// GetStats returns codec usage counters
func (c *Codec) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"buffer_allocations": atomic.LoadInt64(&c.allocs),
		"marshal_count":      atomic.LoadInt64(&c.marshals),
		"unmarshal_count":    atomic.LoadInt64(&c.unmarshals),
	}
}

// Global codec instance
var defaultCodec = NewCodec()

// MarshalJSON marshals data using the shared codec
func MarshalJSON(v interface{}) ([]byte, error) {
	return defaultCodec.Marshal(v)
}

// UnmarshalJSON unmarshals data using the shared codec
func UnmarshalJSON(data []byte, v interface{}) error {
	return defaultCodec.Unmarshal(data, v)
}

// Stats returns the shared codec's usage counters
func Stats() map[string]interface{} {
	return defaultCodec.GetStats()
}
