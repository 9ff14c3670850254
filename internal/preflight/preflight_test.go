package preflight

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/iconidentify/reelscribe/internal/domain"
)

func TestProbe_Check_Success(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	p := NewProbe(ln.Addr().String(), time.Second)
	if !p.Check(context.Background()) {
		t.Error("Check() = false, want true for a listening address")
	}
	if err := p.Require(context.Background()); err != nil {
		t.Errorf("Require() = %v, want nil", err)
	}
}

func TestProbe_Check_Failure(t *testing.T) {
	p := NewProbe("203.0.113.1:53", 50*time.Millisecond)
	p.dial = func(ctx context.Context, network, address string) (net.Conn, error) {
		return nil, errors.New("connection refused")
	}

	if p.Check(context.Background()) {
		t.Error("Check() = true, want false")
	}

	err := p.Require(context.Background())
	if kind := domain.KindOf(err, ""); kind != domain.KindNetworkError {
		t.Errorf("Require() kind = %q, want %q", kind, domain.KindNetworkError)
	}
}

func TestProbe_Check_Bounded(t *testing.T) {
	p := NewProbe("203.0.113.1:53", 100*time.Millisecond)
	p.dial = func(ctx context.Context, network, address string) (net.Conn, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	start := time.Now()
	if p.Check(context.Background()) {
		t.Error("Check() = true, want false")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Check() took %v, should be bounded by its timeout", elapsed)
	}
}

func TestProbe_Require_Cancelled(t *testing.T) {
	p := NewProbe("", 0)
	p.dial = func(ctx context.Context, network, address string) (net.Conn, error) {
		return nil, ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Require(ctx)
	if kind := domain.KindOf(err, ""); kind != domain.KindCancelled {
		t.Errorf("Require() kind = %q, want %q", kind, domain.KindCancelled)
	}
}

func TestNewProbe_Defaults(t *testing.T) {
	p := NewProbe("", 0)
	if p.Address != "8.8.8.8:53" {
		t.Errorf("Address = %q, want 8.8.8.8:53", p.Address)
	}
	if p.Timeout != 3*time.Second {
		t.Errorf("Timeout = %v, want 3s", p.Timeout)
	}
}

func TestChecker_RequireTool(t *testing.T) {
	c := &Checker{lookPath: func(name string) (string, error) {
		if name == "yt-dlp" {
			return "/usr/local/bin/yt-dlp", nil
		}
		return "", errors.New("executable file not found in $PATH")
	}}

	path, err := c.RequireTool("yt-dlp")
	if err != nil {
		t.Fatalf("RequireTool(yt-dlp) error = %v", err)
	}
	if path != "/usr/local/bin/yt-dlp" {
		t.Errorf("path = %q", path)
	}

	_, err = c.RequireTool("ffmpeg")
	if kind := domain.KindOf(err, ""); kind != domain.KindDependencyMissing {
		t.Errorf("kind = %q, want %q", kind, domain.KindDependencyMissing)
	}
}

func TestChecker_RequireTool_InstallHint(t *testing.T) {
	c := &Checker{lookPath: func(string) (string, error) {
		return "", errors.New("not found")
	}}

	_, err := c.RequireTool("yt-dlp")
	de, ok := domain.AsError(err)
	if !ok {
		t.Fatalf("error should be tagged, got %v", err)
	}
	if !de.Kind.Fatal() {
		t.Error("missing dependency should be fatal")
	}
	if !strings.Contains(de.UserMessage(), "pip install yt-dlp") {
		t.Errorf("message %q should include install hint", de.UserMessage())
	}
}

func TestFreeDiskSpace(t *testing.T) {
	if free := FreeDiskSpace(t.TempDir()); free <= 0 {
		t.Errorf("FreeDiskSpace(tempdir) = %d, want > 0", free)
	}
	if free := FreeDiskSpace("/nonexistent/path/for/test"); free != 0 {
		t.Errorf("FreeDiskSpace(missing) = %d, want 0", free)
	}
}
