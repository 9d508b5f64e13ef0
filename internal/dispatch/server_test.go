package dispatch

import (
	"encoding/binary"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonahharris/osdb-backplane-sub001/internal/schema"
	"github.com/jonahharris/osdb-backplane-sub001/internal/wire"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	cat, err := schema.Open(dir, 1, 0)
	if err != nil {
		t.Fatalf("schema.Open: %v", err)
	}
	t.Cleanup(func() { _ = cat.Close() })

	srv := NewServer("testdb", cat)
	sock := filepath.Join(dir, "osdbd.sock")
	go func() {
		_ = srv.ListenAndServe(sock)
	}()
	t.Cleanup(func() { _ = srv.Close() })
	return srv, sock
}

// dialRetry waits for newTestServer's ListenAndServe goroutine to bind
// the socket before connecting.
func dialRetry(t *testing.T, sock string) net.Conn {
	t.Helper()
	var conn net.Conn
	var err error
	for i := 0; i < 50; i++ {
		conn, err = net.Dial("unix", sock)
		if err == nil {
			return conn
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("dial: %v", err)
	return nil
}

func dialAndHello(t *testing.T, sock string) net.Conn {
	t.Helper()
	conn := dialRetry(t, sock)

	order := binary.ByteOrder(binary.LittleEndian)
	hello := wire.HelloBody{DBName: "testdb"}
	if err := writeFrame(conn, order, wire.CmdHello, 0, 0, hello.Encode(order)); err != nil {
		t.Fatalf("write HELLO: %v", err)
	}
	fr, err := readFrame(conn)
	if err != nil {
		t.Fatalf("read HELLO reply: %v", err)
	}
	if fr.Command != wire.CmdHello || fr.Error != 0 {
		t.Fatalf("unexpected HELLO reply: %+v", fr.Header)
	}
	return conn
}

func TestHelloRejectsWrongDBName(t *testing.T) {
	_, sock := newTestServer(t)
	conn := dialRetry(t, sock)
	defer conn.Close()

	order := binary.ByteOrder(binary.LittleEndian)
	hello := wire.HelloBody{DBName: "wrongdb"}
	if err := writeFrame(conn, order, wire.CmdHello, 0, 0, hello.Encode(order)); err != nil {
		t.Fatalf("write HELLO: %v", err)
	}
	fr, err := readFrame(conn)
	if err != nil {
		t.Fatalf("read HELLO reply: %v", err)
	}
	if fr.Error == 0 {
		t.Fatalf("expected HELLO to be rejected for a mismatched database name")
	}
}

func TestRawDataFileDumpsSysFile(t *testing.T) {
	_, sock := newTestServer(t)
	conn := dialAndHello(t, sock)
	defer conn.Close()

	order := binary.ByteOrder(binary.LittleEndian)
	req := wire.RawDataFileBody{BlockSize: 4096, Filename: "sys.dt0"}
	if err := writeFrame(conn, order, wire.CmdRawDataFile, 0, 0, req.Encode(order)); err != nil {
		t.Fatalf("write RAWDATAFILE: %v", err)
	}

	var total int
	for {
		fr, err := readFrame(conn)
		if err != nil {
			t.Fatalf("read frame: %v", err)
		}
		if fr.Command == wire.CmdResult {
			if fr.Error != 0 {
				t.Fatalf("RAWDATAFILE failed with code %d", fr.Error)
			}
			break
		}
		if fr.Command != wire.CmdRawData {
			t.Fatalf("unexpected command %s mid-stream", fr.Command)
		}
		total += len(fr.Body)
	}
	if total == 0 {
		t.Fatalf("expected sys.dt0's header block to produce nonzero bytes")
	}
}

func TestRawDataFileRejectsUnknownName(t *testing.T) {
	_, sock := newTestServer(t)
	conn := dialAndHello(t, sock)
	defer conn.Close()

	order := binary.ByteOrder(binary.LittleEndian)
	req := wire.RawDataFileBody{BlockSize: 4096, Filename: "nonexistent.dt0"}
	if err := writeFrame(conn, order, wire.CmdRawDataFile, 0, 0, req.Encode(order)); err != nil {
		t.Fatalf("write RAWDATAFILE: %v", err)
	}
	fr, err := readFrame(conn)
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if fr.Error == 0 {
		t.Fatalf("expected an error reply for an unknown data file name")
	}
}
