package version

import (
	"runtime"
	"time"

	"aurora-vcpu-balancer/internal/config"
)

func Get(cfg config.Config) Info {
	return Info{
		NodeID:          cfg.NodeID,
		AgentVersion:    cfg.AgentVersion,
		GoVersion:       runtime.Version(),
		LibvirtURI:      cfg.LibvirtURI,
		ProbeListenAddr: cfg.ProbeListenAddr,
		CheckedAtUnix:   time.Now().UTC().Unix(),
	}
}
