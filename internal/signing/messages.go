package signing

import (
	"encoding/json"
)

// Action names a key operation performed by the device.
type Action string

const (
	ActionCreateIDToken           Action = "createIdToken"
	ActionSignJWTPresentation     Action = "signJwtPresentation"
	ActionGenerateOpenID4VCIProof Action = "generateOpenid4vciProof"
)

// handshakeAck is sent once a connection is bound to an identity.
const handshakeAck = "FIN_INIT"

// Handshake is the first message of a connection.
type Handshake struct {
	AppToken string `json:"appToken"`
}

// Ack acknowledges a successful handshake.
type Ack struct {
	Type string `json:"type"`
}

// Request asks the device to perform action. Only the fields relevant to the
// action are set.
type Request struct {
	Action                Action         `json:"action"`
	Audience              string         `json:"audience,omitempty"`
	Nonce                 string         `json:"nonce,omitempty"`
	VerifiableCredentials []string       `json:"verifiableCredentials,omitempty"`
	Params                map[string]any `json:"additionalParameters,omitempty"`
}

// ServerMessage is pushed to the device.
type ServerMessage struct {
	MessageID string  `json:"message_id"`
	Request   Request `json:"request"`
}

// Response carries the artifact produced by the device.
type Response struct {
	Action   Action `json:"action"`
	IDToken  string `json:"id_token,omitempty"`
	VPJWT    string `json:"vpjwt,omitempty"`
	ProofJWT string `json:"proof_jwt,omitempty"`
}

// ClientMessage is a reply from the device, correlated by MessageID.
type ClientMessage struct {
	MessageID string    `json:"message_id"`
	Response  *Response `json:"response,omitempty"`
}

func decodeClientMessage(data []byte) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
