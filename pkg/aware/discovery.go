package aware

import (
	"errors"
	"fmt"
)

// Session configuration errors.
var (
	ErrServiceNameRequired = errors.New("service name is required")
	ErrServiceNameTooLong  = errors.New("service name too long")
)

// PublishType selects how a publish session advertises its service.
type PublishType uint8

const (
	// PublishUnsolicited broadcasts the service in discovery windows.
	PublishUnsolicited PublishType = 0

	// PublishSolicited transmits only in response to active subscribers.
	PublishSolicited PublishType = 1

	// PublishBoth combines unsolicited and solicited behavior.
	PublishBoth PublishType = 2
)

// String returns the publish type name.
func (t PublishType) String() string {
	switch t {
	case PublishUnsolicited:
		return "UNSOLICITED"
	case PublishSolicited:
		return "SOLICITED"
	case PublishBoth:
		return "BOTH"
	default:
		return "UNKNOWN"
	}
}

// SubscribeType selects how a subscribe session looks for a service.
type SubscribeType uint8

const (
	// SubscribePassive listens for unsolicited publish transmissions.
	SubscribePassive SubscribeType = 0

	// SubscribeActive transmits subscribe frames soliciting publishers.
	SubscribeActive SubscribeType = 1
)

// String returns the subscribe type name.
func (t SubscribeType) String() string {
	switch t {
	case SubscribePassive:
		return "PASSIVE"
	case SubscribeActive:
		return "ACTIVE"
	default:
		return "UNKNOWN"
	}
}

// PublishConfig configures a publish discovery session.
type PublishConfig struct {
	// ServiceName identifies the advertised service. Matching is by
	// exact name.
	ServiceName string

	// ServiceSpecificInfo is an opaque payload attached to the
	// advertisement and delivered to matching subscribers.
	ServiceSpecificInfo []byte

	// MatchFilter further constrains which subscribers match.
	MatchFilter []byte

	// Type selects unsolicited/solicited publishing.
	Type PublishType

	// Count limits the number of discovery transmissions; 0 means
	// unlimited.
	Count uint32

	// TTLSec limits the session lifetime in seconds; 0 means until
	// terminated.
	TTLSec uint32
}

// Validate checks the publish configuration against the given capability
// limits. A zero Capabilities value disables limit checking.
func (c PublishConfig) Validate(caps Capabilities) error {
	if c.ServiceName == "" {
		return ErrServiceNameRequired
	}
	if caps.MaxServiceNameLen > 0 && len(c.ServiceName) > caps.MaxServiceNameLen {
		return fmt.Errorf("%w: %d > %d", ErrServiceNameTooLong,
			len(c.ServiceName), caps.MaxServiceNameLen)
	}
	return nil
}

// SubscribeConfig configures a subscribe discovery session.
type SubscribeConfig struct {
	// ServiceName identifies the service being looked for.
	ServiceName string

	// ServiceSpecificInfo is an opaque payload attached to active
	// subscribe transmissions.
	ServiceSpecificInfo []byte

	// MatchFilter further constrains which publishers match.
	MatchFilter []byte

	// Type selects passive/active subscribing.
	Type SubscribeType

	// Count limits the number of discovery transmissions; 0 means
	// unlimited.
	Count uint32

	// TTLSec limits the session lifetime in seconds; 0 means until
	// terminated.
	TTLSec uint32
}

// Validate checks the subscribe configuration against the given capability
// limits. A zero Capabilities value disables limit checking.
func (c SubscribeConfig) Validate(caps Capabilities) error {
	if c.ServiceName == "" {
		return ErrServiceNameRequired
	}
	if caps.MaxServiceNameLen > 0 && len(c.ServiceName) > caps.MaxServiceNameLen {
		return fmt.Errorf("%w: %d > %d", ErrServiceNameTooLong,
			len(c.ServiceName), caps.MaxServiceNameLen)
	}
	return nil
}
