// Package status implements the three-frame job status protocol.
//
// Every job produces exactly two messages on its reporting channel: one when
// client-side processing begins and one when the session is released. Each
// message is three byte frames (job_id, state, info). The null byte is the
// "not yet known" placeholder for state and info.
package status

import (
	"bytes"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kettleworks/dirigent/internal/log"
)

// Wire markers for the state frame.
var (
	// NullByte is the placeholder for a state or info that is not yet known.
	NullByte = []byte{0x00}

	// Processing announces that client-side execution has begun.
	Processing = []byte{0x16}

	// Success is the terminal state for a job that completed.
	Success = []byte{0x04}

	// Failed is the terminal state for a job that did not complete.
	Failed = []byte{0x15}
)

// StateName renders a state frame for humans.
func StateName(state []byte) string {
	switch {
	case bytes.Equal(state, Processing):
		return "processing"
	case bytes.Equal(state, Success):
		return "success"
	case bytes.Equal(state, Failed):
		return "failed"
	case bytes.Equal(state, NullByte):
		return "unknown"
	default:
		return fmt.Sprintf("%#x", state)
	}
}

// Channel delivers one multipart message to the dispatcher. Implementations
// must preserve frame order within a message; ordering between different
// jobs' messages is not required.
type Channel interface {
	SendMultipart(frames ...[]byte) error
}

// Session binds one job id to one channel for the duration of client-side
// execution. Begin announces processing immediately; Close sends the
// terminal message exactly once, whatever the exit path.
type Session struct {
	ch     Channel
	jobID  []byte
	logger *slog.Logger

	mu    sync.Mutex
	state []byte
	info  []byte

	closeOnce sync.Once
	closeErr  error
}

// Begin opens a session for jobID and immediately sends the processing
// announcement, before any job work starts.
func Begin(ch Channel, jobID string) (*Session, error) {
	s := &Session{
		ch:     ch,
		jobID:  []byte(jobID),
		logger: log.WithJob(jobID),
		state:  NullByte,
		info:   NullByte,
	}
	if err := ch.SendMultipart(s.jobID, Processing, NullByte); err != nil {
		return nil, fmt.Errorf("announce processing: %w", err)
	}
	return s, nil
}

// SetState records the state to be sent on release.
func (s *Session) SetState(state []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// SetInfo records the diagnostic info to be sent on release.
func (s *Session) SetInfo(info string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.info = []byte(info)
}

// Succeed records a successful outcome.
func (s *Session) Succeed(info string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Success
	s.info = []byte(info)
}

// Fail records a failed outcome.
func (s *Session) Fail(info string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Failed
	s.info = []byte(info)
}

// Close sends the terminal three-frame message with whatever state and info
// were last recorded. It is safe to call on every exit path; only the first
// call sends.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		state, info := s.state, s.info
		s.mu.Unlock()

		if bytes.Equal(state, NullByte) {
			// The session ended without any determination. The dispatcher
			// treats a placeholder terminal state as an anomaly.
			s.logger.Warn("job released without a recorded state")
		}
		if err := s.ch.SendMultipart(s.jobID, state, info); err != nil {
			s.closeErr = fmt.Errorf("send terminal status: %w", err)
			s.logger.Error("terminal status send failed", "error", err)
		}
	})
	return s.closeErr
}
