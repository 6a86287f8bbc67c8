package aware

import (
	"errors"
	"fmt"
)

// Cluster identifier bounds. A cluster id is a 16-bit value; a request
// whose bounds cover the full [0, ClusterIDMax] range is treated as having
// no opinion on cluster selection when requests are merged.
const (
	ClusterIDMin = 0
	ClusterIDMax = 0xFFFF
)

// MaxMasterPreference is the largest valid master-preference value.
const MaxMasterPreference = 255

// Configuration validation errors.
var (
	ErrInvalidMasterPreference = errors.New("master preference out of range")
	ErrInvalidClusterBounds    = errors.New("invalid cluster id bounds")
	ErrNoConfigRequests        = errors.New("no configuration requests to merge")
)

// ConfigRequest is a single client's requested radio configuration. It is
// immutable once submitted with Connect; the configuration actually pushed
// to hardware is the merge of all connected clients' requests.
type ConfigRequest struct {
	// Support5GHz requests discovery on the 5 GHz band in addition to
	// the default 2.4 GHz band.
	Support5GHz bool

	// MasterPreference expresses how strongly this device wants to be a
	// cluster master (0-255). The merged value is the maximum across
	// clients.
	MasterPreference uint8

	// ClusterLow and ClusterHigh bound the cluster ids this client is
	// willing to join. The full [0, ClusterIDMax] range means "any
	// cluster" and does not constrain the merge.
	ClusterLow  uint16
	ClusterHigh uint16

	// EnableIdentityChange requests delivery of identity-change events
	// (discovery interface address changes, cluster membership changes).
	EnableIdentityChange bool
}

// DefaultConfigRequest returns a request with no band, preference or
// cluster constraints.
func DefaultConfigRequest() ConfigRequest {
	return ConfigRequest{
		ClusterLow:  ClusterIDMin,
		ClusterHigh: ClusterIDMax,
	}
}

// Validate checks the request's field ranges.
func (c ConfigRequest) Validate() error {
	if c.ClusterLow > c.ClusterHigh {
		return fmt.Errorf("%w: low %d > high %d", ErrInvalidClusterBounds,
			c.ClusterLow, c.ClusterHigh)
	}
	return nil
}

// Equal reports whether two requests are identical. Used to suppress
// redundant hardware reconfiguration when the merged configuration is
// unchanged.
func (c ConfigRequest) Equal(o ConfigRequest) bool {
	return c == o
}

// OnAirEqual reports whether two requests are equivalent in their over-the-
// air behavior. The identity-change flag only affects local event delivery
// and is ignored, so a client asking for the same radio configuration with
// a different flag is not considered incompatible.
func (c ConfigRequest) OnAirEqual(o ConfigRequest) bool {
	c.EnableIdentityChange = false
	o.EnableIdentityChange = false
	return c == o
}

// hasClusterOpinion reports whether the request constrains cluster
// selection. The full default range is a sentinel for "no opinion"; a
// client that legitimately wants the full range cannot be distinguished
// from one that does not care.
func (c ConfigRequest) hasClusterOpinion() bool {
	return c.ClusterLow != ClusterIDMin || c.ClusterHigh != ClusterIDMax
}

// MergeConfigRequests computes the single configuration to run on hardware
// from the currently connected clients' requests plus an optional new one
// (a connect in flight). Merge rules:
//
//   - 5 GHz support: OR across all requests.
//   - Master preference: maximum across all requests.
//   - Identity-change flag: OR across all requests.
//   - Cluster bounds: requests with the full default range contribute
//     nothing; the first constrained request seeds the bounds and each
//     further constrained request widens them (min of lows, max of highs).
//
// The result is independent of the order of existing. Calling with no
// requests at all is an error; the caller must treat that case as
// "hardware disabled" instead.
func MergeConfigRequests(existing []ConfigRequest, newRequest *ConfigRequest) (ConfigRequest, error) {
	if len(existing) == 0 && newRequest == nil {
		return ConfigRequest{}, ErrNoConfigRequests
	}

	merged := DefaultConfigRequest()
	seeded := false

	if newRequest != nil {
		merged = *newRequest
		// The new request's bounds always participate, even when they
		// are the full default range.
		seeded = true
	}

	for _, cr := range existing {
		if cr.Support5GHz {
			merged.Support5GHz = true
		}
		if cr.MasterPreference > merged.MasterPreference {
			merged.MasterPreference = cr.MasterPreference
		}
		if cr.EnableIdentityChange {
			merged.EnableIdentityChange = true
		}

		if cr.hasClusterOpinion() {
			if !seeded {
				merged.ClusterLow = cr.ClusterLow
				merged.ClusterHigh = cr.ClusterHigh
			} else {
				if cr.ClusterLow < merged.ClusterLow {
					merged.ClusterLow = cr.ClusterLow
				}
				if cr.ClusterHigh > merged.ClusterHigh {
					merged.ClusterHigh = cr.ClusterHigh
				}
			}
			seeded = true
		}
	}

	return merged, nil
}
