package main

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// A request still running when the signal arrives must finish against live
// backends; runServe closes them only after serve returns.
func TestServeDrainsBeforeBackendsClose(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	entered := make(chan struct{})
	release := make(chan struct{})
	handlerErr := make(chan error, 1)
	server := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		err := client.Set(r.Context(), "drain", "ok", time.Minute).Err()
		handlerErr <- err
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	})}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	logger := log.New()
	logger.SetOutput(io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() {
		defer client.Close()
		served <- serve(ctx, server, ln, logger)
	}()

	respCh := make(chan int, 1)
	go func() {
		resp, err := http.Get("http://" + ln.Addr().String() + "/")
		if err != nil {
			respCh <- 0
			return
		}
		resp.Body.Close()
		respCh <- resp.StatusCode
	}()

	<-entered
	cancel()
	time.Sleep(50 * time.Millisecond)
	close(release)

	if err := <-handlerErr; err != nil {
		t.Fatalf("in-flight request saw a closed backend: %v", err)
	}
	if status := <-respCh; status != http.StatusOK {
		t.Fatalf("in-flight status = %d, want 200", status)
	}
	if err := <-served; err != nil {
		t.Fatalf("serve() error = %v", err)
	}
	if got, err := mr.Get("drain"); err != nil || got != "ok" {
		t.Fatalf("redis value = %q, %v", got, err)
	}
}

func TestServeReturnsListenerErrors(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ln.Close()
	logger := log.New()
	logger.SetOutput(io.Discard)

	if err := serve(context.Background(), &http.Server{Handler: http.NotFoundHandler()}, ln, logger); err == nil {
		t.Fatal("expected serve() to fail on a closed listener")
	}
}
