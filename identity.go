package psrouter

import (
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
)

// LocalIdentity is the local peer's PeerId together with its key pair. Priv
// is needed to sign outgoing messages; NewRouter requires it only when
// message signing is enabled. Remote peers are represented by plain
// peer.ID values wherever this package tracks them (Router.peers, the from
// field of a Message) — they never carry a private key in this process.
type LocalIdentity struct {
	ID   peer.ID
	Priv crypto.PrivKey
	Pub  crypto.PubKey
}

// NewLocalIdentity derives a LocalIdentity from a private key, computing
// the peer id via the standard libp2p key-to-id derivation.
func NewLocalIdentity(priv crypto.PrivKey) (LocalIdentity, error) {
	pub := priv.GetPublic()
	id, err := peer.IDFromPublicKey(pub)
	if err != nil {
		return LocalIdentity{}, err
	}
	return LocalIdentity{ID: id, Priv: priv, Pub: pub}, nil
}

// b58 returns the canonical textual form used as the key in Router.peers
// and as the return values of GetSubscribers.
func b58(id peer.ID) string {
	return id.String()
}
