package buffer

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

// checkInvariants verifies the cursor arithmetic that every operation must
// preserve.
func checkInvariants(t *testing.T, b *Buffer) {
	t.Helper()

	if b.readPos < 0 || b.readPos > b.writePos || b.writePos > len(b.storage) {
		t.Fatalf("cursor invariant violated: read=%d write=%d cap=%d",
			b.readPos, b.writePos, len(b.storage))
	}
	if b.Readable()+b.readPos != b.writePos {
		t.Errorf("Readable()+readPos = %d, want %d", b.Readable()+b.readPos, b.writePos)
	}
	if b.Writable() != len(b.storage)-b.writePos {
		t.Errorf("Writable() = %d, want %d", b.Writable(), len(b.storage)-b.writePos)
	}
}

func TestBuffer_AppendConsume(t *testing.T) {
	b := New(16)
	checkInvariants(t, b)

	b.AppendString("hello world")
	checkInvariants(t, b)
	if b.Readable() != 11 {
		t.Fatalf("Readable() = %d, want 11", b.Readable())
	}

	b.Consume(6)
	checkInvariants(t, b)
	if got := string(b.Peek()); got != "world" {
		t.Errorf("Peek() = %q, want %q", got, "world")
	}

	// Consuming the rest must rewind both cursors.
	b.Consume(5)
	checkInvariants(t, b)
	if b.readPos != 0 || b.writePos != 0 {
		t.Errorf("full consume left cursors at read=%d write=%d", b.readPos, b.writePos)
	}
}

func TestBuffer_EnsureWritableCompacts(t *testing.T) {
	b := New(16)
	b.AppendString("0123456789abcdef") // fill completely
	b.Consume(10)                      // 10 bytes reclaimable, 6 unread

	b.EnsureWritable(8) // fits after compaction, no realloc needed
	checkInvariants(t, b)
	if len(b.storage) != 16 {
		t.Errorf("capacity grew to %d, want compaction within 16", len(b.storage))
	}
	if got := string(b.Peek()); got != "abcdef" {
		t.Errorf("compaction lost data: Peek() = %q, want %q", got, "abcdef")
	}

	b.AppendString("ABCDEFGH")
	if got := string(b.Peek()); got != "abcdefABCDEFGH" {
		t.Errorf("Peek() = %q after append", got)
	}
}

func TestBuffer_EnsureWritableGrows(t *testing.T) {
	b := New(8)
	b.AppendString("abc")

	big := strings.Repeat("x", 100)
	b.AppendString(big)
	checkInvariants(t, b)
	if got := string(b.Peek()); got != "abc"+big {
		t.Errorf("grow discarded unread data")
	}
}

func TestBuffer_DrainStringRoundTrip(t *testing.T) {
	b := New(32)
	b.AppendString("GET / HTTP/1.1\r\n\r\n")

	if got := b.DrainString(); got != "GET / HTTP/1.1\r\n\r\n" {
		t.Errorf("DrainString() = %q", got)
	}
	if b.Readable() != 0 || b.readPos != 0 || b.writePos != 0 {
		t.Errorf("buffer not empty after drain: read=%d write=%d", b.readPos, b.writePos)
	}
}

func TestBuffer_ReadFDSmallBurst(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	defer w.Close()

	payload := []byte("GET /index.html HTTP/1.1\r\n\r\n")
	if _, err := w.Write(payload); err != nil {
		t.Fatal(err)
	}

	b := New(1024)
	n, err := b.ReadFD(int(r.Fd()))
	if err != nil {
		t.Fatalf("ReadFD: %v", err)
	}
	if n != len(payload) {
		t.Fatalf("ReadFD read %d bytes, want %d", n, len(payload))
	}
	if !bytes.Equal(b.Peek(), payload) {
		t.Errorf("Peek() = %q, want %q", b.Peek(), payload)
	}
}

func TestBuffer_ReadFDOverflowsIntoScratch(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	defer w.Close()

	// Larger than the buffer's writable tail so the scratch region must
	// absorb the remainder of the burst.
	payload := bytes.Repeat([]byte("z"), 300)
	if _, err := w.Write(payload); err != nil {
		t.Fatal(err)
	}

	b := New(64)
	n, err := b.ReadFD(int(r.Fd()))
	if err != nil {
		t.Fatalf("ReadFD: %v", err)
	}
	if n != len(payload) {
		t.Fatalf("ReadFD read %d bytes, want %d", n, len(payload))
	}
	if !bytes.Equal(b.Peek(), payload) {
		t.Errorf("scratch overflow lost data: got %d readable bytes", b.Readable())
	}
	checkInvariants(t, b)
}

func TestBuffer_WriteFD(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	defer w.Close()

	b := New(64)
	b.AppendString("HTTP/1.1 200 OK\r\n")

	n, err := b.WriteFD(int(w.Fd()))
	if err != nil {
		t.Fatalf("WriteFD: %v", err)
	}
	if n != 17 {
		t.Fatalf("WriteFD wrote %d bytes, want 17", n)
	}
	if b.Readable() != 0 {
		t.Errorf("buffer still has %d readable bytes", b.Readable())
	}

	got := make([]byte, 64)
	m, _ := r.Read(got)
	if string(got[:m]) != "HTTP/1.1 200 OK\r\n" {
		t.Errorf("peer received %q", got[:m])
	}
}
