package genlayer

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"eventsync/internal/ledger"
)

type signer struct {
	key  *ecdsa.PrivateKey
	from common.Address
}

func newSigner(raw string) (*signer, error) {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if raw == "" {
		return nil, ledger.ErrNoCredentials
	}
	key, err := crypto.HexToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &signer{key: key, from: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// sign returns the 0x-prefixed secp256k1 signature over keccak256(json(v)).
func (s *signer) sign(v any) (string, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	sig, err := crypto.Sign(crypto.Keccak256(payload), s.key)
	if err != nil {
		return "", err
	}
	return hexutil.Encode(sig), nil
}
