package blacklist

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/eosplugins/chainindex/internal/logger"
	"github.com/eosplugins/chainindex/pkg/chain"
	"github.com/eosplugins/chainindex/pkg/config"
)

const (
	msgOK                = "OK"
	msgOnchainMismatch   = "local and ecaf hash MISMATCH!"
	msgSubmittedMismatch = "local and submitted hash MISMATCH!"

	blacklistTable    = "theblacklist"
	producerHashTable = "producerhash"
	tableRowLimit     = 100
)

// Reconciler compares the locally configured actor blacklist against the
// on-chain blacklist table and the hash this node last submitted,
// implementing the api.BlacklistChecker contract.
type Reconciler struct {
	controller chain.Controller
	cfg        config.BlacklistConfig
	keyPair    *KeyPair
	log        *logger.Logger
}

// New builds a Reconciler. keyPair may be nil if the signature provider
// could not be resolved; Submit then fails rather than signing with a
// missing key.
func New(controller chain.Controller, cfg config.BlacklistConfig, keyPair *KeyPair, log *logger.Logger) *Reconciler {
	return &Reconciler{controller: controller, cfg: cfg, keyPair: keyPair, log: log}
}

// onchainActors reads the theblacklist table hosted on cfg.ContractAccount,
// keeping only actor-blacklist rows and flattening their accounts arrays.
func (r *Reconciler) onchainActors(ctx context.Context) ([]string, error) {
	account := chain.Name(r.cfg.ContractAccount)
	rows, err := r.controller.ReadTableRows(ctx, account, account, blacklistTable, tableRowLimit)
	if err != nil {
		return nil, fmt.Errorf("read onchain blacklist table: %w", err)
	}

	var actors []string
	for _, row := range rows {
		if typ, ok := row["type"].(string); !ok || typ != "actor-blacklist" {
			continue
		}
		raw, ok := row["accounts"].([]any)
		if !ok {
			continue
		}
		for _, a := range raw {
			if name, ok := a.(string); ok {
				actors = append(actors, name)
			}
		}
	}
	return actors, nil
}

// readSubmittedHash reads the hash this node last submitted from the
// onchain producerhash table hosted on cfg.ContractAccount, returning ""
// when no row matches cfg.ProducerName yet.
func (r *Reconciler) readSubmittedHash(ctx context.Context) (string, error) {
	account := chain.Name(r.cfg.ContractAccount)
	rows, err := r.controller.ReadTableRows(ctx, account, account, producerHashTable, tableRowLimit)
	if err != nil {
		return "", fmt.Errorf("read onchain producerhash table: %w", err)
	}

	for _, row := range rows {
		producer, ok := row["producer"].(string)
		if !ok || producer != r.cfg.ProducerName {
			continue
		}
		if hash, ok := row["hash"].(string); ok {
			return hash, nil
		}
	}
	return "", nil
}

// CheckHash computes the local, onchain, and submitted fingerprints and
// returns the verdict message. A non-OK message always reports the first
// mismatch found, checking the onchain comparison before the submitted one.
func (r *Reconciler) CheckHash() (localHash, onchainHash, submittedHash, msg string, err error) {
	localHash = Fingerprint(r.cfg.Actors)

	onchainActors, err := r.onchainActors(context.Background())
	if err != nil {
		return "", "", "", "", err
	}
	onchainHash = Fingerprint(onchainActors)

	submittedHash, err = r.readSubmittedHash(context.Background())
	if err != nil {
		return "", "", "", "", err
	}

	switch {
	case localHash != onchainHash:
		msg = msgOnchainMismatch
	case localHash != submittedHash:
		msg = msgSubmittedMismatch
	default:
		msg = msgOK
	}
	return localHash, onchainHash, submittedHash, msg, nil
}

// Submit signs the local fingerprint with the configured signature
// provider's key. Broadcasting the signed message onto the chain's
// consensus protocol, which is what ultimately updates the onchain
// producerhash table CheckHash reads against, is outside this plugin's
// scope.
func (r *Reconciler) Submit() (signature []byte, err error) {
	if r.keyPair == nil {
		return nil, fmt.Errorf("signature provider has no usable key")
	}

	local := Fingerprint(r.cfg.Actors)
	digest := sha256.Sum256([]byte(local))

	sig := ecdsa.Sign(r.keyPair.PrivateKey, digest[:])
	return sig.Serialize(), nil
}

// Run periodically reconciles on cfg.ReconcileInterval, logging the
// verdict and re-signing the local fingerprint through Submit when the
// local and submitted hashes diverge; the signature is not broadcast.
func (r *Reconciler) Run(ctx context.Context) {
	interval := r.cfg.ReconcileInterval.Duration
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			local, onchain, submitted, msg, err := r.CheckHash()
			if err != nil {
				r.log.Warnw("blacklist reconcile failed", "error", err)
				continue
			}
			r.log.Infow("blacklist reconcile", "local", local, "onchain", onchain, "submitted", submitted, "msg", msg)

			if msg != msgOK && local != submitted {
				if _, err := r.Submit(); err != nil {
					r.log.Warnw("failed to submit updated blacklist hash", "error", err)
				}
			}
		}
	}
}
