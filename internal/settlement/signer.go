package settlement

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer signs settlement request bodies with a secp256k1 key.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewSigner loads a hex-encoded private key. An empty key generates an
// ephemeral one.
func NewSigner(hexKey string) (*Signer, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	var (
		key *ecdsa.PrivateKey
		err error
	)
	if hexKey == "" {
		key, err = crypto.GenerateKey()
	} else {
		key, err = crypto.HexToECDSA(hexKey)
	}
	if err != nil {
		return nil, fmt.Errorf("load signing key: %w", err)
	}
	return &Signer{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// Address returns the signer's account address.
func (s *Signer) Address() common.Address {
	return s.address
}

// Sign returns the 0x-prefixed signature over keccak256(body).
func (s *Signer) Sign(body []byte) (string, error) {
	sig, err := crypto.Sign(crypto.Keccak256(body), s.key)
	if err != nil {
		return "", fmt.Errorf("sign body: %w", err)
	}
	return hexutil.Encode(sig), nil
}
