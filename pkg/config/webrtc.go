package config

import (
	"log"
	"strings"
)

type Webrtc struct {
	DisableDefaultInterceptors bool        `fig:"disable_default_interceptors"`
	DtlsRole                   byte        `fig:"dtls_role"`
	IceServers                 []IceServer `fig:"ice_servers"`
	IcePorts                   struct {
		Min uint16
		Max uint16
	} `fig:"ice_ports"`
	IceIpMap   string `fig:"ice_ip_map"`
	IceLite    bool   `fig:"ice_lite"`
	SinglePort int    `fig:"single_port"`
	LogLevel   int    `fig:"log_level"`
}

type IceServer struct {
	Urls       string `json:"urls,omitempty"`
	Username   string `json:"username,omitempty"`
	Credential string `json:"credential,omitempty"`
}

// DefaultWebrtc is the STUN-only default; TURN is never assumed and
// must be supplied through config or env.
func DefaultWebrtc() Webrtc {
	return Webrtc{IceServers: []IceServer{{Urls: "stun:stun.l.google.com:19302"}}}
}

func (w *Webrtc) HasDtlsRole() bool   { return w.DtlsRole > 0 }
func (w *Webrtc) HasPortRange() bool  { return w.IcePorts.Min > 0 && w.IcePorts.Max > 0 }
func (w *Webrtc) HasSinglePort() bool { return w.SinglePort > 0 }
func (w *Webrtc) HasIceIpMap() bool   { return w.IceIpMap != "" }

// AddIceServersEnv merges ICE servers from the environment over the
// configured list.
func (w *Webrtc) AddIceServersEnv() {
	cfg := struct{ Webrtc Webrtc }{Webrtc{IceServers: []IceServer{{}, {}, {}, {}, {}}}}
	_ = LoadConfigEnv(&cfg)
	for i, ice := range cfg.Webrtc.IceServers {
		if ice.Urls == "" {
			continue
		}
		if strings.HasPrefix(ice.Urls, "turn:") || strings.HasPrefix(ice.Urls, "turns:") {
			if ice.Username == "" || ice.Credential == "" {
				log.Fatalf("TURN or TURNS servers should have both username and credential: %+v", ice)
			}
		}
		if i > len(w.IceServers)-1 {
			w.IceServers = append(w.IceServers, ice)
		} else {
			w.IceServers[i] = ice
		}
	}
}
