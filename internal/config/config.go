package config

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	HardcodedVersion = "V0.3"
	DefaultEnvFile   = "/etc/aurora/vcpu-balancer.env"
)

type Config struct {
	NodeID           string
	Hostname         string
	LibvirtURI       string
	SampleInterval   time.Duration
	ImbalanceStrikes int
	NoiseFloorPct    float64
	HealthInterval   time.Duration
	ShutdownTimeout  time.Duration
	ProbeListenAddr  string
	MetricsAddr      string
	BackendGRPCAddr  string
	BackendToken     string
	GRPCReportMethod string
	StreamBufferSize int
	AgentVersion     string
	TLSEnabled       bool
	TLSSkipVerify    bool
	TLSCAPath        string
	TLSCertPath      string
	TLSKeyPath       string
	Console          bool
	LogJSON          bool
	LogLevel         string
	EnvFile          string
}

// Load reads the optional env file, then the process environment. Variables
// already set in the environment win over the file. The sampling interval
// is not configurable here; it comes from the command line.
func Load(interval time.Duration) (Config, error) {
	envFile, err := loadEnvFile()
	if err != nil {
		return Config{}, err
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown-host"
	}

	cfg := Config{
		NodeID:           env("AURORA_NODE_ID", hostname),
		Hostname:         hostname,
		LibvirtURI:       env("AURORA_LIBVIRT_URI", "qemu+unix:///system"),
		SampleInterval:   interval,
		ImbalanceStrikes: envInt("AURORA_IMBALANCE_STRIKES", 3),
		NoiseFloorPct:    envFloat("AURORA_NOISE_FLOOR_PCT", 2.0),
		HealthInterval:   envDuration("AURORA_HEALTH_INTERVAL", 10*time.Second),
		ShutdownTimeout:  envDuration("AURORA_SHUTDOWN_TIMEOUT", 20*time.Second),
		ProbeListenAddr:  envAllowEmpty("AURORA_AGENT_PROBE_ADDR", "127.0.0.1:7443"),
		MetricsAddr:      envAllowEmpty("AURORA_METRICS_ADDR", "127.0.0.1:9478"),
		BackendGRPCAddr:  env("AURORA_BACKEND_GRPC_ADDR", ""),
		BackendToken:     env("AURORA_BACKEND_TOKEN", ""),
		GRPCReportMethod: env("AURORA_GRPC_REPORT_METHOD", "/aurora.balancer.v1.BalancerService/StreamCycleReports"),
		StreamBufferSize: envInt("AURORA_STREAM_BUFFER_SIZE", 64),
		AgentVersion:     HardcodedVersion,
		TLSEnabled:       envBool("AURORA_TLS_ENABLED", false),
		TLSSkipVerify:    envBool("AURORA_TLS_SKIP_VERIFY", false),
		TLSCAPath:        env("AURORA_TLS_CA_PATH", ""),
		TLSCertPath:      env("AURORA_TLS_CERT_PATH", ""),
		TLSKeyPath:       env("AURORA_TLS_KEY_PATH", ""),
		Console:          envBool("AURORA_CONSOLE", true),
		LogJSON:          envBool("AURORA_LOG_JSON", false),
		LogLevel:         strings.ToLower(env("AURORA_LOG_LEVEL", "info")),
		EnvFile:          envFile,
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadEnvFile returns the path it loaded, or "" when the default file is
// absent. A missing file that was asked for explicitly is an error.
func loadEnvFile() (string, error) {
	path, explicit := os.LookupEnv("AURORA_ENV_FILE")
	path = strings.TrimSpace(path)
	if path == "" {
		path, explicit = DefaultEnvFile, false
	}
	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("load env file %s: %w", path, err)
	}
	return path, nil
}

func (c Config) Validate() error {
	if c.NodeID == "" {
		return errors.New("AURORA_NODE_ID is required")
	}
	if strings.TrimSpace(c.AgentVersion) == "" {
		return errors.New("agent version must not be empty")
	}
	if c.LibvirtURI == "" {
		return errors.New("AURORA_LIBVIRT_URI is required")
	}
	if c.SampleInterval <= 0 {
		return errors.New("sampling interval must be > 0")
	}
	if c.ImbalanceStrikes <= 0 {
		return errors.New("AURORA_IMBALANCE_STRIKES must be > 0")
	}
	if c.NoiseFloorPct < 0 {
		return errors.New("AURORA_NOISE_FLOOR_PCT must be >= 0")
	}
	if c.HealthInterval <= 0 {
		return errors.New("AURORA_HEALTH_INTERVAL must be > 0")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("AURORA_SHUTDOWN_TIMEOUT must be > 0")
	}
	if c.BackendGRPCAddr != "" {
		if strings.TrimSpace(c.GRPCReportMethod) == "" {
			return errors.New("AURORA_GRPC_REPORT_METHOD is required when streaming is enabled")
		}
		if c.StreamBufferSize <= 0 {
			return errors.New("AURORA_STREAM_BUFFER_SIZE must be > 0")
		}
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log level %q", c.LogLevel)
	}
	return nil
}

func (c Config) StreamingEnabled() bool {
	return c.BackendGRPCAddr != ""
}

func (c Config) TLSConfig() (*tls.Config, error) {
	if !c.TLSEnabled {
		return nil, nil
	}
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: c.TLSSkipVerify}
	if c.TLSCAPath != "" {
		caBytes, err := os.ReadFile(c.TLSCAPath)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caBytes) {
			return nil, errors.New("append CA cert failed")
		}
		tlsCfg.RootCAs = pool
	}
	if c.TLSCertPath != "" || c.TLSKeyPath != "" {
		if c.TLSCertPath == "" || c.TLSKeyPath == "" {
			return nil, errors.New("both TLS cert and key are required")
		}
		crt, err := tls.LoadX509KeyPair(c.TLSCertPath, c.TLSKeyPath)
		if err != nil {
			return nil, fmt.Errorf("load mTLS cert/key: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{crt}
	}
	return tlsCfg, nil
}

func env(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// envAllowEmpty is env, except that a variable set to "" disables the
// setting instead of selecting the default.
func envAllowEmpty(key, fallback string) string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	return strings.TrimSpace(v)
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envBool(key string, fallback bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	if v == "" {
		return fallback
	}
	switch v {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
