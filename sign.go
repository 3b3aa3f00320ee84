package psrouter

import (
	"fmt"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
)

// SignPrefix is the fixed 14-byte domain-separation string prepended to a
// message's canonical encoding before it is signed or verified. It exists
// so a signature produced here can never be replayed against another
// protocol that happens to reuse the same key.
const SignPrefix = "libp2p-pubsub:"

func withSignPrefix(b []byte) []byte {
	out := make([]byte, 0, len(SignPrefix)+len(b))
	out = append(out, SignPrefix...)
	return append(out, b...)
}

// Sign computes SignPrefix||canonical_encoding(message_without_sig_and_key),
// signs it with identity's private key, and returns a copy of msg carrying
// the resulting signature. The identity's public key bytes are set in Key
// only when they cannot be recovered inline from the identity's peer id.
func Sign(identity LocalIdentity, msg *Message) (*Message, error) {
	if identity.Priv == nil {
		return nil, fmt.Errorf("psrouter: sign: identity has no private key")
	}

	signed := msg.Clone()
	signed.Signature = nil
	signed.Key = nil

	toSign, err := signed.MarshalForSigning()
	if err != nil {
		return nil, fmt.Errorf("psrouter: sign: encode message: %w", err)
	}

	sig, err := identity.Priv.Sign(withSignPrefix(toSign))
	if err != nil {
		return nil, fmt.Errorf("psrouter: sign: %w", err)
	}
	signed.Signature = sig

	// Only attach the key explicitly when it cannot be recovered from
	// from's inline encoding; this keeps small keys out of the wire
	// message entirely.
	if pk, err := identity.ID.ExtractPublicKey(); err != nil || pk == nil {
		keyBytes, err := crypto.MarshalPublicKey(identity.Pub)
		if err != nil {
			return nil, fmt.Errorf("psrouter: sign: marshal public key: %w", err)
		}
		signed.Key = keyBytes
	}

	return signed, nil
}

// messagePublicKey recovers the public key that should have produced msg's
// signature, per the recovery rules in the signing module: prefer the
// explicit key field, falling back to inline recovery from the from field.
func messagePublicKey(msg *Message) (crypto.PubKey, error) {
	from, err := peer.IDFromBytes(msg.From)
	if err != nil {
		return nil, fmt.Errorf("psrouter: parse from as peer id: %w", err)
	}

	if len(msg.Key) == 0 {
		pk, err := from.ExtractPublicKey()
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrNoKey, err)
		}
		if pk == nil {
			return nil, ErrNoKey
		}
		return pk, nil
	}

	pk, err := crypto.UnmarshalPublicKey(msg.Key)
	if err != nil {
		return nil, fmt.Errorf("psrouter: unmarshal message key: %w", err)
	}

	derived, err := peer.IDFromPublicKey(pk)
	if err != nil {
		return nil, fmt.Errorf("psrouter: derive id from message key: %w", err)
	}
	if derived != from {
		return nil, ErrKeyMismatch
	}
	return pk, nil
}

// Verify reconstructs the signed bytes and checks msg.Signature against
// the public key recovered via messagePublicKey.
func Verify(msg *Message) (bool, error) {
	pk, err := messagePublicKey(msg)
	if err != nil {
		return false, err
	}

	stripped := msg.Clone()
	stripped.Signature = nil
	stripped.Key = nil

	toVerify, err := stripped.MarshalForSigning()
	if err != nil {
		return false, fmt.Errorf("psrouter: verify: encode message: %w", err)
	}

	ok, err := pk.Verify(withSignPrefix(toVerify), msg.Signature)
	if err != nil {
		return false, fmt.Errorf("psrouter: verify: %w", err)
	}
	return ok, nil
}
