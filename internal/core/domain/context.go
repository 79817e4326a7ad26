package domain

import (
	"runtime"
	"time"
)

// RequestMeta holds sanitized request metadata captured alongside an error.
type RequestMeta struct {
	Path    string            `json:"path"`
	Method  string            `json:"method"`
	UserID  string            `json:"user_id,omitempty"`
	IP      string            `json:"ip,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    map[string]any    `json:"body,omitempty"`
}

// SystemSnapshot captures process state at the moment the context was built.
type SystemSnapshot struct {
	HeapAllocBytes uint64        `json:"heap_alloc_bytes"`
	HeapSysBytes   uint64        `json:"heap_sys_bytes"`
	NumGoroutine   int           `json:"num_goroutine"`
	NumGC          uint32        `json:"num_gc"`
	Uptime         time.Duration `json:"uptime"`
}

// ErrorContext ties an error occurrence to its request and process state.
// Immutable once built.
type ErrorContext struct {
	CorrelationID string         `json:"correlation_id"`
	Timestamp     time.Time      `json:"timestamp"`
	Request       RequestMeta    `json:"request"`
	System        SystemSnapshot `json:"system"`
	Extra         map[string]any `json:"extra,omitempty"`
}

// CaptureSystem reads the current process snapshot.
func CaptureSystem(startedAt time.Time) SystemSnapshot {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return SystemSnapshot{
		HeapAllocBytes: ms.HeapAlloc,
		HeapSysBytes:   ms.HeapSys,
		NumGoroutine:   runtime.NumGoroutine(),
		NumGC:          ms.NumGC,
		Uptime:         time.Since(startedAt),
	}
}
