package server

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/nimburion/storefront/pkg/server/router"
	ginadapter "github.com/nimburion/storefront/pkg/server/router/gin"
)

func startServer(t *testing.T, srv *Server) (addr string, stop func() error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()
	return ln.Addr().String(), func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("server shutdown timed out")
			return nil
		}
	}
}

func TestServer_ServeAndShutdown(t *testing.T) {
	r := ginadapter.NewRouter()
	r.GET("/healthz", func(c router.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "alive"})
	})
	srv := NewServer(Config{ReadTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second}, r, newTestLogger(t))

	addr, stop := startServer(t, srv)
	if srv.Addr() != addr {
		t.Fatalf("Addr() = %q, want %q", srv.Addr(), addr)
	}

	resp, err := http.Get("http://" + addr + "/healthz")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "alive") {
		t.Fatalf("unexpected response %d %s", resp.StatusCode, body)
	}

	if err := stop(); err != nil {
		t.Fatalf("expected graceful shutdown, got %v", err)
	}
	if _, err := http.Get("http://" + addr + "/healthz"); err == nil {
		t.Fatal("expected connection failure after shutdown")
	}
}

func TestServer_ShutdownWaitsForInFlightRequests(t *testing.T) {
	r := ginadapter.NewRouter()
	r.GET("/slow", func(c router.Context) error {
		time.Sleep(200 * time.Millisecond)
		return c.String(http.StatusOK, "done")
	})
	srv := NewServer(Config{ShutdownTimeout: 2 * time.Second}, r, nil)
	addr, stop := startServer(t, srv)

	result := make(chan int, 1)
	go func() {
		resp, err := http.Get("http://" + addr + "/slow")
		if err != nil {
			result <- 0
			return
		}
		resp.Body.Close()
		result <- resp.StatusCode
	}()
	time.Sleep(50 * time.Millisecond)

	if err := stop(); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if code := <-result; code != http.StatusOK {
		t.Fatalf("in-flight request got %d, want 200", code)
	}
}

func TestServer_ShutdownTimeoutExceeded(t *testing.T) {
	release := make(chan struct{})
	r := ginadapter.NewRouter()
	r.GET("/stuck", func(c router.Context) error {
		<-release
		return c.String(http.StatusOK, "late")
	})
	defer close(release)

	srv := NewServer(Config{ShutdownTimeout: 50 * time.Millisecond}, r, nil)
	addr, stop := startServer(t, srv)
	go func() {
		if resp, err := http.Get("http://" + addr + "/stuck"); err == nil {
			resp.Body.Close()
		}
	}()
	time.Sleep(50 * time.Millisecond)

	err := stop()
	if err == nil || !strings.Contains(err.Error(), "server shutdown failed") {
		t.Fatalf("expected shutdown timeout error, got %v", err)
	}
}

func TestNewServer_DefaultsShutdownTimeout(t *testing.T) {
	srv := NewServer(Config{Port: 8080}, ginadapter.NewRouter(), nil)
	if srv.config.ShutdownTimeout != defaultShutdownTimeout {
		t.Fatalf("expected default shutdown timeout, got %v", srv.config.ShutdownTimeout)
	}
	if srv.Addr() != ":8080" {
		t.Fatalf("Addr() before start = %q", srv.Addr())
	}
}

func TestServer_StartFailsOnBusyPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	srv := NewServer(Config{Port: port}, ginadapter.NewRouter(), nil)
	srv.httpServer.Addr = "127.0.0.1:" + strconv.Itoa(port)
	if err := srv.Start(context.Background()); err == nil || !strings.Contains(err.Error(), "server failed to start") {
		t.Fatalf("expected start failure, got %v", err)
	}
}

func TestServer_TLS(t *testing.T) {
	dir := t.TempDir()
	_, certPath, keyPath, _, _ := writeTestCertificates(t, dir)
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		t.Fatalf("load certificate: %v", err)
	}

	r := ginadapter.NewRouter()
	r.GET("/healthz", func(c router.Context) error { return c.String(http.StatusOK, "ok") })
	srv := NewServer(Config{TLSConfig: &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}}, r, nil)
	addr, stop := startServer(t, srv)
	defer func() { _ = stop() }()

	if resp, err := http.Get("http://" + addr + "/healthz"); err == nil {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			t.Fatal("plain HTTP must not reach a TLS server")
		}
	}

	client := &http.Client{Transport: &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}}
	resp, err := client.Get("https://" + addr + "/healthz")
	if err != nil {
		t.Fatalf("https request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
