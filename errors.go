package psrouter

import "errors"

// Sentinel errors returned by this package. Names mirror the ERR_* codes
// of the wire contract one for one.
var (
	// ErrMalformedFrame is returned by the frame codec on a truncated
	// length, a truncated payload, or a payload larger than the configured
	// ceiling.
	ErrMalformedFrame = errors.New("psrouter: malformed frame")

	// ErrKeyMismatch is returned when a message carries an explicit public
	// key that does not derive the peer id in its from field.
	ErrKeyMismatch = errors.New("psrouter: message key does not match from")

	// ErrNoKey is returned when a message has neither an explicit key nor
	// an inline-recoverable one in its from field.
	ErrNoKey = errors.New("psrouter: no public key available for message")

	// ErrNotWritable is returned by PeerStream.Write when no outbound
	// queue has been attached yet, or the stream is closed.
	ErrNotWritable = errors.New("psrouter: peer stream is not writable")

	// ErrInvalidConfig is returned by NewRouter when a required
	// configuration field is missing or invalid.
	ErrInvalidConfig = errors.New("psrouter: invalid router configuration")

	// ErrMissingSignature is returned by Validate when strict signing is
	// enabled and the message carries no signature.
	ErrMissingSignature = errors.New("psrouter: missing message signature")

	// ErrInvalidSignature is returned by Validate when a message's
	// signature does not verify.
	ErrInvalidSignature = errors.New("psrouter: invalid message signature")

	// ErrNotStarted is returned by operations that require a started
	// router.
	ErrNotStarted = errors.New("psrouter: router is not started")

	// ErrInvalidTopic is returned when a topic argument is empty.
	ErrInvalidTopic = errors.New("psrouter: invalid topic")

	// ErrNotImplemented is returned by BasePolicy's default Publish,
	// Subscribe, Unsubscribe and GetTopics; a concrete RoutingPolicy is
	// expected to override whichever of the five hooks it needs.
	ErrNotImplemented = errors.New("psrouter: operation not implemented by routing policy")
)
