package client

import (
	"bytes"
	"net"
	"path/filepath"
	"testing"

	"github.com/jonahharris/osdb-backplane-sub001/internal/wire"
)

// fakeControlServer answers exactly one HELLO and one RAWDATAFILE
// request with canned data, standing in for internal/dispatch's own
// control connection so this package can be tested without importing
// it (internal/dispatch is the real server; this is a stub of its wire
// shape only).
func fakeControlServer(t *testing.T, ln net.Listener, payload []byte) {
	t.Helper()
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	h, _, err := readFrame(conn)
	if err != nil || h.Command != wire.CmdHello {
		t.Errorf("expected HELLO, got %v err=%v", h.Command, err)
		return
	}
	reply := wire.HelloBody{DBName: "testdb"}
	if err := writeFrame(conn, h.Order, wire.CmdHello, reply.Encode(h.Order)); err != nil {
		t.Errorf("writing HELLO reply: %v", err)
		return
	}

	h, _, err = readFrame(conn)
	if err != nil || h.Command != wire.CmdRawDataFile {
		t.Errorf("expected RAWDATAFILE, got %v err=%v", h.Command, err)
		return
	}
	if err := writeFrame(conn, h.Order, wire.CmdRawData, payload); err != nil {
		t.Errorf("writing RAWDATA: %v", err)
		return
	}
	_ = writeFrame(conn, h.Order, wire.CmdResult, nil)
}

func TestDumpRawDataFile(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "test.sock")
	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	payload := []byte("hello from sys.dt0")
	go fakeControlServer(t, ln, payload)

	conn, err := Dial(sockPath, "testdb")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	var buf bytes.Buffer
	if err := conn.DumpRawDataFile("sys.dt0", 4096, &buf); err != nil {
		t.Fatalf("DumpRawDataFile: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), payload) {
		t.Fatalf("got %q, want %q", buf.Bytes(), payload)
	}
}

func TestDialRejectsBadMagic(t *testing.T) {
	dir := t.TempDir()
	sockPath := filepath.Join(dir, "test.sock")
	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _, _ = readFrame(conn)
		_, _ = conn.Write([]byte{0xFF, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0})
	}()

	if _, err := Dial(sockPath, ""); err == nil {
		t.Fatal("expected an error for a corrupt reply header")
	}
}
