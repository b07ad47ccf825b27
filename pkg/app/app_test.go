package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubServer struct {
	started, stopped bool
}

func (s *stubServer) Start() error { s.started = true; return nil }
func (s *stubServer) Stop() error  { s.stopped = true; return nil }

func TestShutdownClosesInReverseOrder(t *testing.T) {
	a := NewBaseApp(WithName("test"), WithStopTimeout(time.Second))

	var order []string
	srv := &stubServer{}
	InitApp(a, Components{
		Servers: []Server{srv},
		Closers: []Closer{
			CloserFunc(func() error { order = append(order, "db"); return nil }),
			CloserFunc(func() error { order = append(order, "kafka"); return nil }),
		},
	})

	require.NoError(t, a.Shutdown())
	assert.True(t, srv.stopped)
	assert.Equal(t, []string{"kafka", "db"}, order)

	// 重复关闭无副作用
	require.NoError(t, a.Shutdown())
	assert.Len(t, order, 2)
	assert.Error(t, a.Context().Err())
}

func TestLoggerFallback(t *testing.T) {
	a := NewBaseApp()
	assert.NotNil(t, a.Logger("audit"))
}
