package stream

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/metadata"

	"aurora-vcpu-balancer/internal/model"
)

type jsonCodec struct{}

func (jsonCodec) Name() string {
	return "json"
}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// GRPCClient streams cycle report frames over a single client stream,
// reopening the stream once when a send fails.
type GRPCClient struct {
	mu sync.Mutex

	logger       *slog.Logger
	addr         string
	tlsConfig    *tls.Config
	token        string
	method       string
	agentVersion string
	conn         *grpc.ClientConn
	stream       grpc.ClientStream
	streamCancel context.CancelFunc
	dialTimeout  time.Duration
}

func NewGRPCClient(addr string, tlsCfg *tls.Config, token, method, agentVersion string, logger *slog.Logger) *GRPCClient {
	encoding.RegisterCodec(jsonCodec{})
	return &GRPCClient{
		logger:       logger.With("component", "grpc_sink"),
		addr:         addr,
		tlsConfig:    tlsCfg,
		token:        token,
		method:       method,
		agentVersion: agentVersion,
		dialTimeout:  8 * time.Second,
	}
}

func (c *GRPCClient) SendCycleReport(ctx context.Context, r model.CycleReport) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensureConnLocked(ctx); err != nil {
		return err
	}
	if c.stream == nil {
		if err := c.openStreamLocked(); err != nil {
			return err
		}
	}
	frame := NewCycleReportFrame(r, c.agentVersion)
	if err := c.stream.SendMsg(frame); err != nil {
		c.logger.Warn("grpc report send failed, reopening stream", "error", err)
		c.closeStreamLocked()
		if err2 := c.openStreamLocked(); err2 != nil {
			return fmt.Errorf("reopen report stream: %w", err2)
		}
		if err2 := c.stream.SendMsg(frame); err2 != nil {
			return fmt.Errorf("send report frame: %w", err2)
		}
	}
	return nil
}

func (c *GRPCClient) Close(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeStreamLocked()
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

func (c *GRPCClient) ensureConnLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	defer cancel()

	var creds credentials.TransportCredentials
	if c.tlsConfig != nil {
		creds = credentials.NewTLS(c.tlsConfig)
	} else {
		creds = insecure.NewCredentials()
	}

	conn, err := grpc.DialContext(
		dialCtx,
		c.addr,
		grpc.WithTransportCredentials(creds),
		grpc.WithBlock(),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{}), grpc.CallContentSubtype("json")),
	)
	if err != nil {
		return fmt.Errorf("grpc dial %s: %w", c.addr, err)
	}
	c.conn = conn
	c.logger.Info("grpc stream connected", "addr", c.addr)
	return nil
}

// openStreamLocked opens the long-lived report stream. Its context is not
// tied to any single send so the stream outlives the call that opened it.
func (c *GRPCClient) openStreamLocked() error {
	if c.conn == nil {
		return fmt.Errorf("grpc conn is nil")
	}
	streamCtx, cancel := context.WithCancel(c.decorateContext(context.Background()))
	s, err := c.conn.NewStream(streamCtx, &grpc.StreamDesc{ClientStreams: true}, c.method)
	if err != nil {
		cancel()
		return fmt.Errorf("open report stream: %w", err)
	}
	c.stream = s
	c.streamCancel = cancel
	return nil
}

func (c *GRPCClient) closeStreamLocked() {
	if c.stream != nil {
		_ = c.stream.CloseSend()
		c.stream = nil
	}
	if c.streamCancel != nil {
		c.streamCancel()
		c.streamCancel = nil
	}
}

func (c *GRPCClient) decorateContext(ctx context.Context) context.Context {
	if c.token != "" {
		return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
	}
	return ctx
}
