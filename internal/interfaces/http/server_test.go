package http

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/turtacn/BizAtlas/internal/config"
	"github.com/turtacn/BizAtlas/pkg/errors"
)

func configForTest() config.ServerConfig {
	return config.ServerConfig{
		Host:            "127.0.0.1",
		Port:            0,
		ReadTimeout:     time.Second,
		WriteTimeout:    time.Second,
		ShutdownTimeout: time.Second,
	}
}

func newLocalListener() (net.Listener, error) {
	return net.Listen("tcp", "127.0.0.1:0")
}

func TestNewServer(t *testing.T) {
	cfg := configForTest()
	cfg.Port = 8088
	s := NewServer(cfg, nil, nil)

	assert.Equal(t, "127.0.0.1:8088", s.srv.Addr)
	assert.Equal(t, time.Second, s.srv.ReadHeaderTimeout)
	assert.Equal(t, time.Second, s.shutdownTimeout)
}

func TestNewServer_DefaultShutdownTimeout(t *testing.T) {
	s := NewServer(config.ServerConfig{}, nil, nil)
	assert.Equal(t, defaultShutdownTimeout, s.shutdownTimeout)
}

func TestServer_StartBadAddress(t *testing.T) {
	cfg := configForTest()
	cfg.Host = "256.0.0.1"
	err := NewServer(cfg, nil, nil).Start()
	assert.True(t, errors.IsCode(err, errors.ErrCodeInternal))
}

//Personal.AI order the ending
