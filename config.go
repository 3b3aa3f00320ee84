package psrouter

import (
	"fmt"

	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/sirupsen/logrus"
)

// Config holds the construction-time settings of a Router. debugName and
// multicodecs and identity and registrar are required; the rest have
// defaults matching the teacher's own PubSub defaults.
type Config struct {
	debugName   string
	multicodecs []protocol.ID
	identity    LocalIdentity
	registrar   Registrar

	signMessages  bool
	strictSigning bool

	maxFrameSize      int
	outboundQueueSize int

	logger logrus.FieldLogger
}

// Option configures a Router at construction time. An Option that returns
// a non-nil error aborts NewRouter with that error.
type Option func(*Config) error

func defaultConfig() Config {
	return Config{
		signMessages:      true,
		strictSigning:     true,
		maxFrameSize:      DefaultMaxFrameSize,
		outboundQueueSize: DefaultOutboundQueueSize,
		logger:            logrus.StandardLogger(),
	}
}

// WithDebugName sets the router's name for logging. Required.
func WithDebugName(name string) Option {
	return func(c *Config) error {
		if name == "" {
			return fmt.Errorf("%w: debug name must not be empty", ErrInvalidConfig)
		}
		c.debugName = name
		return nil
	}
}

// WithMulticodecs sets the protocol ids this router negotiates. Required,
// at least one.
func WithMulticodecs(ids ...protocol.ID) Option {
	return func(c *Config) error {
		if len(ids) == 0 {
			return fmt.Errorf("%w: at least one multicodec is required", ErrInvalidConfig)
		}
		c.multicodecs = append([]protocol.ID(nil), ids...)
		return nil
	}
}

// WithIdentity sets the router's local peer identity. Required; must carry
// a private key when signing is enabled (the default).
func WithIdentity(id LocalIdentity) Option {
	return func(c *Config) error {
		if id.ID == "" {
			return fmt.Errorf("%w: identity must not be empty", ErrInvalidConfig)
		}
		c.identity = id
		return nil
	}
}

// WithRegistrar sets the host registrar this router binds to. Required.
func WithRegistrar(r Registrar) Option {
	return func(c *Config) error {
		if r == nil {
			return fmt.Errorf("%w: registrar must not be nil", ErrInvalidConfig)
		}
		c.registrar = r
		return nil
	}
}

// WithMessageSigning toggles whether BuildMessage signs outgoing messages.
// Defaults to true.
func WithMessageSigning(enabled bool) Option {
	return func(c *Config) error {
		c.signMessages = enabled
		return nil
	}
}

// WithStrictSigning toggles whether Validate rejects unsigned inbound
// messages. Defaults to true.
func WithStrictSigning(enabled bool) Option {
	return func(c *Config) error {
		c.strictSigning = enabled
		return nil
	}
}

// WithMaxFrameSize bounds the payload size the frame codec accepts on
// inbound streams. Defaults to DefaultMaxFrameSize.
func WithMaxFrameSize(n int) Option {
	return func(c *Config) error {
		if n <= 0 {
			return fmt.Errorf("%w: max frame size must be positive", ErrInvalidConfig)
		}
		c.maxFrameSize = n
		return nil
	}
}

// WithPeerOutboundQueueSize bounds how many frames a peer's outbound queue
// buffers before Write blocks. Defaults to DefaultOutboundQueueSize.
func WithPeerOutboundQueueSize(n int) Option {
	return func(c *Config) error {
		if n <= 0 {
			return fmt.Errorf("%w: outbound queue size must be positive", ErrInvalidConfig)
		}
		c.outboundQueueSize = n
		return nil
	}
}

// WithLogger overrides the logrus logger used for this router's log lines.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Config) error {
		if l == nil {
			return fmt.Errorf("%w: logger must not be nil", ErrInvalidConfig)
		}
		c.logger = l
		return nil
	}
}
