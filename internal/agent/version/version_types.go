package version

type Info struct {
	NodeID          string `json:"node_id"`
	AgentVersion    string `json:"agent_version"`
	GoVersion       string `json:"go_version"`
	LibvirtURI      string `json:"libvirt_uri"`
	ProbeListenAddr string `json:"probe_listen_addr"`
	CheckedAtUnix   int64  `json:"checked_at_unix"`
}
