package keystore

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/multiformats/go-multicodec"
)

const didKeyPrefix = "did:key:"

// DIDKey encodes pub as a did:key identifier (multicodec ed25519-pub,
// base58btc multibase).
func DIDKey(pub ed25519.PublicKey) string {
	buf := binary.AppendUvarint(nil, uint64(multicodec.Ed25519Pub))
	buf = append(buf, pub...)
	return didKeyPrefix + "z" + base58.Encode(buf)
}

// ParseDIDKey extracts the Ed25519 public key of a did:key identifier.
func ParseDIDKey(did string) (ed25519.PublicKey, error) {
	encoded, ok := strings.CutPrefix(did, didKeyPrefix)
	if !ok || len(encoded) == 0 || encoded[0] != 'z' {
		return nil, errors.New("did:key must use the base58btc multibase prefix")
	}
	raw, err := base58.Decode(encoded[1:])
	if err != nil {
		return nil, fmt.Errorf("did:key: invalid base58btc: %w", err)
	}
	reader := bytes.NewReader(raw)
	code, err := binary.ReadUvarint(reader)
	if err != nil {
		return nil, fmt.Errorf("did:key: invalid multicodec value: %w", err)
	}
	if multicodec.Code(code) != multicodec.Ed25519Pub {
		return nil, fmt.Errorf("did:key: unsupported public key type: %d", code)
	}
	key, _ := io.ReadAll(reader)
	if len(key) != ed25519.PublicKeySize {
		return nil, errors.New("did:key: invalid public key length")
	}
	return ed25519.PublicKey(key), nil
}

// keyID is the verification method of did's key.
func keyID(did string) string {
	return did + "#" + strings.TrimPrefix(did, didKeyPrefix)
}
