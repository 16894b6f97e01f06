package rtc

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
)

// Wire shapes for the parameter blobs that cross the signaling channel.
// Core treats them as opaque; this package is the only place that reads them.

type iceParametersJSON struct {
	UsernameFragment string `json:"usernameFragment"`
	Password         string `json:"password"`
	ICELite          bool   `json:"iceLite,omitempty"`
}

type iceCandidateJSON struct {
	Foundation string `json:"foundation"`
	Priority   uint32 `json:"priority"`
	IP         string `json:"ip"`
	Protocol   string `json:"protocol"`
	Port       uint16 `json:"port"`
	Type       string `json:"type"`
}

type dtlsFingerprintJSON struct {
	Algorithm string `json:"algorithm"`
	Value     string `json:"value"`
}

// dtlsParametersJSON is both what we advertise and what connectTransport
// carries back. Clients piggyback their ICE parameters on the connect blob
// so the ICE transport can start in the controlled role.
type dtlsParametersJSON struct {
	Role          string                `json:"role,omitempty"`
	Fingerprints  []dtlsFingerprintJSON `json:"fingerprints"`
	ICEParameters *iceParametersJSON    `json:"iceParameters,omitempty"`
}

// producerRtpParameters is the subset of the client's send parameters the
// engine needs to route the incoming stream.
type producerRtpParameters struct {
	Codecs []struct {
		PayloadType uint8 `json:"payloadType"`
	} `json:"codecs"`
	Encodings []struct {
		SSRC uint32 `json:"ssrc"`
	} `json:"encodings"`
}

func marshalICEParameters(p webrtc.ICEParameters) (json.RawMessage, error) {
	return json.Marshal(iceParametersJSON{
		UsernameFragment: p.UsernameFragment,
		Password:         p.Password,
		ICELite:          p.ICELite,
	})
}

func marshalICECandidates(cands []webrtc.ICECandidate) (json.RawMessage, error) {
	out := make([]iceCandidateJSON, 0, len(cands))
	for _, c := range cands {
		out = append(out, iceCandidateJSON{
			Foundation: c.Foundation,
			Priority:   c.Priority,
			IP:         c.Address,
			Protocol:   c.Protocol.String(),
			Port:       c.Port,
			Type:       c.Typ.String(),
		})
	}
	return json.Marshal(out)
}

func marshalDTLSParameters(p webrtc.DTLSParameters) (json.RawMessage, error) {
	fps := make([]dtlsFingerprintJSON, 0, len(p.Fingerprints))
	for _, fp := range p.Fingerprints {
		fps = append(fps, dtlsFingerprintJSON{Algorithm: fp.Algorithm, Value: fp.Value})
	}
	return json.Marshal(dtlsParametersJSON{Role: dtlsRoleString(p.Role), Fingerprints: fps})
}

func dtlsRoleString(r webrtc.DTLSRole) string {
	switch r {
	case webrtc.DTLSRoleClient:
		return "client"
	case webrtc.DTLSRoleServer:
		return "server"
	default:
		return "auto"
	}
}

func dtlsRoleFromString(s string) webrtc.DTLSRole {
	switch s {
	case "client":
		return webrtc.DTLSRoleClient
	case "server":
		return webrtc.DTLSRoleServer
	default:
		return webrtc.DTLSRoleAuto
	}
}
