// Package safego provides the panic-recovering goroutine launcher and
// random id generator shared by every task-per-role component in the
// gateway, adapted from the teacher's GoSafe/GenerateSessionID helpers in
// internal/utils/helpers.go.
package safego

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"runtime/debug"
	"time"
)

// Go starts fn in a new goroutine, recovering and logging any panic
// instead of letting it crash the whole process. name identifies the
// goroutine's role in the log line (e.g. "video-pump", "control-writer").
func Go(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[PANIC][%s] %v\n%s", name, r, debug.Stack())
			}
		}()
		fn()
	}()
}

// NewID returns a random 32-character hex identifier. Session scids come
// from session.newSCID and client connection ids from google/uuid, not
// from this helper.
func NewID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		log.Printf("[safego] crypto/rand unavailable, falling back to timestamp id: %v", err)
		return fmt.Sprintf("id-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}
