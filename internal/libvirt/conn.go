package libvirt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	golibvirt "github.com/digitalocean/go-libvirt"
)

var ErrNotConnected = errors.New("libvirt: not connected")

// ConnManager owns a single libvirt RPC connection. It dials once; a lost
// connection is reported by Healthy, never redialed.
type ConnManager struct {
	mu     sync.RWMutex
	client *golibvirt.Libvirt
	uri    string
	logger *slog.Logger
	dial   func(*url.URL) (*golibvirt.Libvirt, error)
}

func NewConnManager(uri string, logger *slog.Logger) *ConnManager {
	return &ConnManager{
		uri:    uri,
		logger: logger,
		dial: func(u *url.URL) (*golibvirt.Libvirt, error) {
			return golibvirt.ConnectToURI(u)
		},
	}
}

func (m *ConnManager) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client != nil {
		return nil
	}

	uri, err := m.parseURI()
	if err != nil {
		return err
	}
	c, err := m.dial(uri)
	if err != nil {
		return fmt.Errorf("connect libvirt %s: %w", uri.Redacted(), err)
	}
	m.client = c
	m.logger.Info("libvirt connected", "uri", uri.Redacted())
	return nil
}

func (m *ConnManager) Client(ctx context.Context) (*golibvirt.Libvirt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.client == nil {
		return nil, ErrNotConnected
	}
	return m.client, nil
}

func (m *ConnManager) Healthy(ctx context.Context) error {
	c, err := m.Client(ctx)
	if err != nil {
		return err
	}
	if _, err := c.Version(); err != nil {
		return fmt.Errorf("libvirt version check failed: %w", err)
	}
	return nil
}

func (m *ConnManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil {
		return nil
	}
	err := m.client.Disconnect()
	m.client = nil
	if err != nil {
		return fmt.Errorf("libvirt disconnect: %w", err)
	}
	m.logger.Info("libvirt disconnected")
	return nil
}

func (m *ConnManager) parseURI() (*url.URL, error) {
	raw := m.uri
	if raw == "" {
		raw = string(golibvirt.QEMUSystem)
	}
	uri, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse libvirt uri %q: %w", raw, err)
	}
	if uri.Scheme == "" {
		uri, err = url.Parse(string(golibvirt.QEMUSystem))
		if err != nil {
			return nil, fmt.Errorf("parse fallback uri: %w", err)
		}
	}
	return uri, nil
}
