package notification

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// silentBroker accepts TCP connections and never answers the AMQP handshake.
func silentBroker(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var mu sync.Mutex
	var conns []net.Conn
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
	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})
	return "amqp://guest:guest@" + ln.Addr().String() + "/"
}

func TestNewPublisher_DialTimeout(t *testing.T) {
	cfg := PublisherConfig{URL: silentBroker(t), Exchange: "travel.notifications", DialTimeout: 100 * time.Millisecond}

	start := time.Now()
	_, err := NewPublisher(cfg, zerolog.New(io.Discard))
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestPublisher_EnqueueFailsFastWhileBrokerDown(t *testing.T) {
	p := newPublisher(PublisherConfig{
		URL:         silentBroker(t),
		Exchange:    "travel.notifications",
		DialTimeout: 300 * time.Millisecond,
	}, zerolog.New(io.Discard))

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	start := time.Now()
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Enqueue(context.Background(), testJob())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	// None of the callers waits for the reconnect dial.
	assert.Less(t, time.Since(start), 250*time.Millisecond)
	for err := range errs {
		assert.True(t, errors.Is(err, ErrPublisherUnavailable), "got %v", err)
	}
	assert.True(t, p.reconnecting.Load())

	require.NoError(t, p.Close())
	assert.False(t, p.reconnecting.Load())

	_, err := p.Enqueue(context.Background(), testJob())
	assert.ErrorIs(t, err, ErrPublisherUnavailable)
}
