// Package observ provides structured JSON event logging and a small
// label-keyed metrics registry. Events go to stderr so command output on
// stdout stays machine-readable.
package observ

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

var (
	outMu sync.Mutex
	out   io.Writer = os.Stderr
)

// SetOutput redirects event logging, primarily for tests. Passing nil
// restores stderr.
func SetOutput(w io.Writer) {
	outMu.Lock()
	defer outMu.Unlock()
	if w == nil {
		w = os.Stderr
	}
	out = w
}

// Log emits one JSON event line with a timestamp. kv may be nil.
func Log(event string, kv map[string]any) {
	if kv == nil {
		kv = map[string]any{}
	}
	kv["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	kv["event"] = event
	b, _ := json.Marshal(kv)
	outMu.Lock()
	fmt.Fprintln(out, string(b))
	outMu.Unlock()
}
