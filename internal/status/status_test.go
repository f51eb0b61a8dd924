package status

import (
	"bytes"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/kettleworks/dirigent/internal/log"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR") // Suppress logs in tests
	os.Exit(m.Run())
}

// recordingChannel captures every multipart message sent through it.
type recordingChannel struct {
	messages [][][]byte
	fail     bool
}

func (c *recordingChannel) SendMultipart(frames ...[]byte) error {
	if c.fail {
		return errors.New("channel down")
	}
	msg := make([][]byte, len(frames))
	for i, f := range frames {
		msg[i] = append([]byte(nil), f...)
	}
	c.messages = append(c.messages, msg)
	return nil
}

func TestSessionSendsProcessingOnBegin(t *testing.T) {
	t.Parallel()

	ch := &recordingChannel{}
	sess, err := Begin(ch, "job-1")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer sess.Close()

	if len(ch.messages) != 1 {
		t.Fatalf("expected 1 message after Begin, got %d", len(ch.messages))
	}
	msg := ch.messages[0]
	if string(msg[0]) != "job-1" || !bytes.Equal(msg[1], Processing) || !bytes.Equal(msg[2], NullByte) {
		t.Fatalf("unexpected processing message: %q", msg)
	}
}

func TestSessionSendsExactlyTwoMessages(t *testing.T) {
	t.Parallel()

	ch := &recordingChannel{}
	sess, err := Begin(ch, "job-2")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	sess.Succeed("done")
	if err := sess.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// Repeated Close must not send again.
	_ = sess.Close()
	_ = sess.Close()

	if len(ch.messages) != 2 {
		t.Fatalf("expected exactly 2 messages, got %d", len(ch.messages))
	}
	final := ch.messages[1]
	if !bytes.Equal(final[1], Success) || string(final[2]) != "done" {
		t.Fatalf("unexpected terminal message: %q", final)
	}
}

func TestSessionTerminalDefaultsToPlaceholder(t *testing.T) {
	t.Parallel()

	ch := &recordingChannel{}
	sess, err := Begin(ch, "job-3")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	final := ch.messages[1]
	if !bytes.Equal(final[1], NullByte) || !bytes.Equal(final[2], NullByte) {
		t.Fatalf("expected placeholder terminal frames, got %q", final)
	}
}

func TestSessionTerminalFiresOnPanicUnwind(t *testing.T) {
	t.Parallel()

	ch := &recordingChannel{}

	func() {
		defer func() { _ = recover() }()

		sess, err := Begin(ch, "job-4")
		if err != nil {
			t.Fatalf("Begin: %v", err)
		}
		defer sess.Close()

		sess.Fail("about to unwind")
		panic("boom")
	}()

	if len(ch.messages) != 2 {
		t.Fatalf("expected terminal message despite panic, got %d messages", len(ch.messages))
	}
	final := ch.messages[1]
	if !bytes.Equal(final[1], Failed) || string(final[2]) != "about to unwind" {
		t.Fatalf("unexpected terminal message: %q", final)
	}
}

func TestBeginFailsWhenChannelIsDown(t *testing.T) {
	t.Parallel()

	if _, err := Begin(&recordingChannel{fail: true}, "job-5"); err == nil {
		t.Fatalf("expected Begin to fail when the channel cannot send")
	}
}

func TestStreamChannelRoundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	ch := NewStreamChannel(&buf)

	if err := ch.SendMultipart([]byte("job-6"), Processing, NullByte); err != nil {
		t.Fatalf("SendMultipart: %v", err)
	}
	if err := ch.SendMultipart([]byte("job-6"), Success, []byte("ok")); err != nil {
		t.Fatalf("SendMultipart: %v", err)
	}

	first, err := ReadMultipart(&buf)
	if err != nil {
		t.Fatalf("ReadMultipart (1): %v", err)
	}
	if len(first) != 3 || string(first[0]) != "job-6" || !bytes.Equal(first[1], Processing) {
		t.Fatalf("unexpected first message: %q", first)
	}

	second, err := ReadMultipart(&buf)
	if err != nil {
		t.Fatalf("ReadMultipart (2): %v", err)
	}
	if !bytes.Equal(second[1], Success) || string(second[2]) != "ok" {
		t.Fatalf("unexpected second message: %q", second)
	}

	if _, err := ReadMultipart(&buf); err != io.EOF {
		t.Fatalf("expected io.EOF at end of stream, got %v", err)
	}
}
