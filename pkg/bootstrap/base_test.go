package bootstrap

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"labor/internal/config"
	"labor/internal/logger"
)

func TestBase_NewServerAppliesTimeouts(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{
		Port:         8081,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 7 * time.Second,
	}}
	b := NewBase(cfg, logger.NopLogger(), "retry-worker")

	srv := b.NewServer(http.NotFoundHandler())

	assert.Equal(t, ":8081", srv.Addr)
	assert.Equal(t, 3*time.Second, srv.ReadTimeout)
	assert.Equal(t, 7*time.Second, srv.WriteTimeout)
	assert.NotNil(t, srv.Handler)
}
