package blacklist

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/eosplugins/chainindex/internal/common"
	"github.com/eosplugins/chainindex/internal/logger"
)

// KeyPair is a resolved public/private key pair for a signature provider
// entry backed directly by a private key (scheme "KEY").
type KeyPair struct {
	PublicKey  string
	PrivateKey *secp256k1.PrivateKey
}

// ParseSignatureProvider decodes a "PUBKEY=SCHEME:PAYLOAD" descriptor.
//
//   - SCHEME "KEY": PAYLOAD is a base58-encoded WIF private key; returns a
//     resolved KeyPair.
//   - SCHEME "KEOSD": a remote wallet signature provider; rejected, since
//     this plugin never holds a wallet daemon connection. Logged as a
//     warning, not a config error.
//   - Any other scheme: unknown; logged as a warning and ignored.
//
// A malformed descriptor (missing "=" or ":") is a config error, since it
// most likely indicates a typo the operator should fix before startup. A
// parse error from a recognized scheme never aborts startup; only the key
// is left unset.
func ParseSignatureProvider(descriptor string, log *logger.Logger) (*KeyPair, error) {
	pubKey, rest, ok := strings.Cut(descriptor, "=")
	if !ok {
		return nil, fmt.Errorf("%w: signature_provider missing '=' separator", common.ErrConfig)
	}

	scheme, payload, ok := strings.Cut(rest, ":")
	if !ok {
		return nil, fmt.Errorf("%w: signature_provider missing ':' separator", common.ErrConfig)
	}

	switch strings.ToUpper(scheme) {
	case "KEY":
		priv, err := decodeWIF(payload)
		if err != nil {
			log.Warnw("failed to decode signature provider private key, leaving key unset", "error", err)
			return nil, nil
		}
		return &KeyPair{PublicKey: pubKey, PrivateKey: priv}, nil

	case "KEOSD":
		log.Warnw("KEOSD signature provider is not supported by this plugin, leaving key unset", "pubkey", pubKey)
		return nil, nil

	default:
		log.Warnw("unknown signature provider scheme, leaving key unset", "scheme", scheme)
		return nil, nil
	}
}

// decodeWIF decodes a base58check-encoded EOSIO private key payload
// (version byte + 32-byte secret + 4-byte checksum) into a secp256k1 key.
func decodeWIF(payload string) (*secp256k1.PrivateKey, error) {
	decoded, version, err := base58.CheckDecode(payload)
	if err != nil {
		return nil, fmt.Errorf("base58check decode: %w", err)
	}
	if len(decoded) != 32 {
		return nil, fmt.Errorf("unexpected private key length %d (version byte %d)", len(decoded), version)
	}
	return secp256k1.PrivKeyFromBytes(decoded), nil
}
