package rtc

import (
	"github.com/BioHazard786/Coderoom/internal/config"
	"github.com/BioHazard786/Coderoom/internal/errs"
	applog "github.com/BioHazard786/Coderoom/internal/logging"
	"github.com/pion/interceptor"
	"github.com/pion/logging"
	"github.com/pion/transport/v3"
	"github.com/pion/webrtc/v4"
)

// Settings configures peer connection construction.
type Settings struct {
	ICEServers []webrtc.ICEServer
	RelayOnly  bool

	// Net replaces the host network, e.g. with a vnet in tests.
	Net transport.Net

	LoggerFactory logging.LoggerFactory
}

// SettingsFromConfig builds ICE settings from STUN/TURN configuration.
func SettingsFromConfig(cfg *config.Config) Settings {
	var iceServers []webrtc.ICEServer
	if stun := cfg.GetSTUNServers(); stun != nil {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: stun})
	}

	if turnServers := cfg.GetTURNServers(); turnServers != nil {
		username, password := cfg.GetTURNCredentials()
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       turnServers,
			Username:   username,
			Credential: password,
		})
	}

	return Settings{
		ICEServers: iceServers,
		RelayOnly:  cfg.RelayOnly(),
	}
}

// API creates peer connections that share one media engine and setting
// engine.
type API struct {
	api    *webrtc.API
	config webrtc.Configuration
}

func NewAPI(s Settings) (*API, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, errs.New("register codecs", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, errs.New("register interceptors", err)
	}

	se := webrtc.SettingEngine{}
	if s.LoggerFactory != nil {
		se.LoggerFactory = s.LoggerFactory
	} else {
		se.LoggerFactory = applog.PionFactory()
	}
	if s.Net != nil {
		se.SetNet(s.Net)
	}

	policy := webrtc.ICETransportPolicyAll
	if s.RelayOnly {
		policy = webrtc.ICETransportPolicyRelay
	}

	return &API{
		api: webrtc.NewAPI(
			webrtc.WithMediaEngine(mediaEngine),
			webrtc.WithInterceptorRegistry(registry),
			webrtc.WithSettingEngine(se),
		),
		config: webrtc.Configuration{
			ICEServers:         s.ICEServers,
			ICETransportPolicy: policy,
		},
	}, nil
}
