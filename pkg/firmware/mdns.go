package firmware

import (
	"context"
	"fmt"
	"net"

	"github.com/enbility/zeroconf/v3"

	"github.com/aware-protocol/aware-go/pkg/version"
)

// mDNS service parameters for firmware emulator discovery.
const (
	// ServiceType is the mDNS service type emulators advertise under.
	ServiceType = "_aware-fw._tcp"

	// Domain is the mDNS domain.
	Domain = "local."
)

// ErrNoEndpoint indicates browsing ended without finding an emulator.
var ErrNoEndpoint = fmt.Errorf("no firmware endpoint found")

// Endpoint describes a discovered firmware emulator.
type Endpoint struct {
	InstanceName string
	Host         string
	Port         int
	Addresses    []string
}

// Address returns a dialable "host:port" string, preferring a resolved
// IP address over the mDNS hostname.
func (e *Endpoint) Address() string {
	host := e.Host
	if len(e.Addresses) > 0 {
		host = e.Addresses[0]
	}
	return net.JoinHostPort(host, fmt.Sprintf("%d", e.Port))
}

// Advertise announces a firmware emulator over mDNS. The returned server
// must be shut down with Shutdown when the emulator stops. An empty
// ifaceName advertises on all interfaces.
func Advertise(instanceName string, port int, ifaceName string) (*zeroconf.Server, error) {
	server, err := zeroconf.Register(
		instanceName,
		ServiceType,
		Domain,
		port,
		[]string{version.ProtocolTXT()},
		selectInterfaces(ifaceName),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register firmware service: %w", err)
	}
	return server, nil
}

// Browse searches for firmware emulators until ctx is cancelled.
// Services are aggregated by instance name - addresses from multiple
// interfaces are combined into a single entry.
func Browse(ctx context.Context, ifaceName string) (<-chan *Endpoint, error) {
	out := make(chan *Endpoint)

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	var opts []zeroconf.ClientOption
	if ifaceName != "" {
		if iface, err := net.InterfaceByName(ifaceName); err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		}
	}

	// Process entries with aggregation
	go func() {
		defer close(out)

		endpoints := make(map[string]*Endpoint)

		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				ep := entryToEndpoint(entry)

				existing, found := endpoints[ep.InstanceName]
				if found {
					existing.Addresses = mergeAddresses(existing.Addresses, ep.Addresses)
					continue
				}
				endpoints[ep.InstanceName] = ep
				select {
				case out <- ep:
				case <-ctx.Done():
					return
				}

			case entry, ok := <-removed:
				if !ok {
					continue
				}
				if existing, found := endpoints[entry.Instance]; found {
					existing.Addresses = removeAddresses(existing.Addresses, entry)
					if len(existing.Addresses) == 0 {
						delete(endpoints, entry.Instance)
					}
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	// Start browsing in background
	go func() {
		_ = zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, opts...)
	}()

	return out, nil
}

// Locate returns the address of the first emulator found, or
// ErrNoEndpoint when ctx expires first.
func Locate(ctx context.Context, ifaceName string) (string, error) {
	results, err := Browse(ctx, ifaceName)
	if err != nil {
		return "", err
	}

	select {
	case ep, ok := <-results:
		if !ok {
			return "", ErrNoEndpoint
		}
		return ep.Address(), nil
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %v", ErrNoEndpoint, ctx.Err())
	}
}

// selectInterfaces resolves an interface name for advertising.
// Returns nil to use all interfaces.
func selectInterfaces(ifaceName string) []net.Interface {
	if ifaceName == "" {
		return nil
	}
	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}

func entryToEndpoint(entry *zeroconf.ServiceEntry) *Endpoint {
	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}

	return &Endpoint{
		InstanceName: entry.Instance,
		Host:         entry.HostName,
		Port:         entry.Port,
		Addresses:    addrs,
	}
}

// mergeAddresses adds new addresses to existing list, avoiding duplicates.
func mergeAddresses(existing, fresh []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, addr := range existing {
		seen[addr] = true
	}
	for _, addr := range fresh {
		if !seen[addr] {
			existing = append(existing, addr)
			seen[addr] = true
		}
	}
	return existing
}

// removeAddresses removes addresses from a zeroconf entry from the list.
func removeAddresses(addresses []string, entry *zeroconf.ServiceEntry) []string {
	toRemove := make(map[string]bool)
	for _, ip := range entry.AddrIPv4 {
		toRemove[ip.String()] = true
	}
	for _, ip := range entry.AddrIPv6 {
		toRemove[ip.String()] = true
	}

	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if !toRemove[addr] {
			result = append(result, addr)
		}
	}
	return result
}
