package probe

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"testing"
	"time"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like environment")
	}
}

func TestTCPPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ctx := context.Background()

	ok, err := TCPPort{Address: addr}.Ready(ctx)
	if err != nil || !ok {
		t.Fatalf("open port: ok=%v err=%v", ok, err)
	}
	_ = ln.Close()
	ok, err = TCPPort{Address: addr, Timeout: 100 * time.Millisecond}.Ready(ctx)
	if ok || err == nil {
		t.Fatalf("closed port: ok=%v err=%v", ok, err)
	}
}

func TestTCPPortBecomesReadyDuringWait(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	go func() {
		time.Sleep(150 * time.Millisecond)
		l2, err := net.Listen("tcp", addr)
		if err != nil {
			return
		}
		time.Sleep(2 * time.Second)
		_ = l2.Close()
	}()
	res := WaitUntilReady(context.Background(), TCPPort{Address: addr}, 50*time.Millisecond, 40)
	if !res.Satisfied || res.Attempts < 2 {
		t.Fatalf("expected readiness after a few attempts, got %+v", res)
	}
}

func TestFileContent(t *testing.T) {
	p := filepath.Join(t.TempDir(), ".amplifier")
	ctx := context.Background()

	ok, err := FileContent{Path: p, Value: "on"}.Ready(ctx)
	if ok || err != nil {
		t.Fatalf("missing file: ok=%v err=%v", ok, err)
	}
	if err := os.WriteFile(p, []byte("on\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if ok, _ := (FileContent{Path: p, Value: "on"}).Ready(ctx); !ok {
		t.Fatalf("equals should match trimmed content")
	}
	if ok, _ := (FileContent{Path: p, Value: "o", Mode: ModeContains}).Ready(ctx); !ok {
		t.Fatalf("contains should match substring")
	}
	if ok, _ := (FileContent{Path: p, Value: "off"}).Ready(ctx); ok {
		t.Fatalf("off must not match on")
	}
}

func TestPIDFileCheck(t *testing.T) {
	requireUnix(t)
	p := filepath.Join(t.TempDir(), "self.pid")
	c := PIDFile{Path: p}
	if ok, err := c.Ready(context.Background()); ok || err != nil {
		t.Fatalf("missing pidfile: ok=%v err=%v", ok, err)
	}
	if err := os.WriteFile(p, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		t.Fatal(err)
	}
	if ok, err := c.Ready(context.Background()); !ok || err != nil {
		t.Fatalf("own pid: ok=%v err=%v", ok, err)
	}
}

func TestCommandCheck(t *testing.T) {
	requireUnix(t)
	ctx := context.Background()
	if ok, err := (Command{Command: "true"}).Ready(ctx); !ok || err != nil {
		t.Fatalf("true: ok=%v err=%v", ok, err)
	}
	if ok, err := (Command{Command: "sh -c 'exit 3'"}).Ready(ctx); ok || err != nil {
		t.Fatalf("exit 3: ok=%v err=%v", ok, err)
	}
	if ok, err := (Command{Command: "__definitely_not_exists__"}).Ready(ctx); ok || err == nil {
		t.Fatalf("missing binary: ok=%v err=%v", ok, err)
	}
}

func TestProcessMatchSelf(t *testing.T) {
	requireUnix(t)
	// the test binary itself is excluded, so an impossible pattern is never ready
	ok, err := ProcessMatch{Pattern: "__pasys_no_such_process__"}.Ready(context.Background())
	if err != nil || ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
}

func TestMPDUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	ok, err := MPD{Address: addr}.Ready(context.Background())
	if ok || err == nil {
		t.Fatalf("expected failure for closed port, ok=%v err=%v", ok, err)
	}
}

// fakeMPD speaks just enough of the mpd line protocol for connect + ping.
func fakeMPD(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer func() { _ = c.Close() }()
				_, _ = c.Write([]byte("OK MPD 0.23.5\n"))
				buf := make([]byte, 256)
				for {
					n, err := c.Read(buf)
					if err != nil {
						return
					}
					if string(buf[:n]) == "close\n" {
						return
					}
					_, _ = c.Write([]byte("OK\n"))
				}
			}(conn)
		}
	}()
	return ln.Addr().String()
}

func TestMPDPing(t *testing.T) {
	addr := fakeMPD(t)
	ok, err := MPD{Address: addr}.Ready(context.Background())
	if !ok || err != nil {
		t.Fatalf("expected ping ok, got ok=%v err=%v", ok, err)
	}
}

func TestMPDSilentServerTimesOut(t *testing.T) {
	// accepts connections but never sends the greeting
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	t.Cleanup(func() {
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()

	start := time.Now()
	ok, err := MPD{Address: ln.Addr().String(), Timeout: 100 * time.Millisecond}.Ready(context.Background())
	if ok || err == nil {
		t.Fatalf("expected timeout, ok=%v err=%v", ok, err)
	}
	if d := time.Since(start); d > 2*time.Second {
		t.Fatalf("attempt took %v", d)
	}

	start = time.Now()
	_, _ = MPD{Address: ln.Addr().String()}.Ready(context.Background())
	if d := time.Since(start); d > 2*time.Second {
		t.Fatalf("default timeout not applied, attempt took %v", d)
	}
}
