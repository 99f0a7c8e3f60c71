package rpc

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"
)

// SRVResolver looks up DNS SRV records. *net.Resolver satisfies it.
type SRVResolver interface {
	LookupSRV(ctx context.Context, service, proto, name string) (string, []*net.SRV, error)
}

// ServerInfo describes a discovered FreeIPA server.
type ServerInfo struct {
	Host     string
	Priority int
	Weight   int
	Source   string // SRV record the host came from
}

// SRVDiscovery finds FreeIPA servers for a domain using DNS SRV records.
type SRVDiscovery struct {
	logger   Logger
	resolver SRVResolver
}

// NewSRVDiscovery creates a discovery helper using the default resolver.
func NewSRVDiscovery(ctx context.Context) *SRVDiscovery {
	return NewSRVDiscoveryWithResolver(ctx, net.DefaultResolver)
}

// NewSRVDiscoveryWithResolver creates a discovery helper using resolver.
func NewSRVDiscoveryWithResolver(ctx context.Context, resolver SRVResolver) *SRVDiscovery {
	return &SRVDiscovery{
		logger:   NewTFLogger(NewLoggingContext(ctx), Subsystem),
		resolver: resolver,
	}
}

// DiscoverServers returns the servers for domain, best first.
// Every IPA server publishes _ldap._tcp and _kerberos._tcp, so the LDAP
// records are tried first and the Kerberos records are the fallback.
func (d *SRVDiscovery) DiscoverServers(ctx context.Context, domain string) ([]ServerInfo, error) {
	start := time.Now()

	domain = strings.TrimSuffix(strings.TrimSpace(domain), ".")
	if domain == "" {
		return nil, &ConfigurationError{Field: "domain", Message: "domain cannot be empty"}
	}

	d.logger.Debug("Starting server discovery for domain", map[string]any{
		"domain": domain,
	})

	for _, service := range []string{"ldap", "kerberos"} {
		servers, err := d.lookupSRV(ctx, service, domain)
		if err != nil {
			d.logger.Debug("SRV lookup failed, continuing to next service", map[string]any{
				"service": service,
				"error":   err.Error(),
			})
			continue
		}

		sortServersByPriority(servers)

		d.logger.Debug("Server discovery completed", map[string]any{
			"duration":     time.Since(start).String(),
			"server_count": len(servers),
			"service":      service,
		})
		return servers, nil
	}

	return nil, &TransportError{
		Operation: "discovery",
		Cause:     fmt.Errorf("no FreeIPA SRV records found for %s", domain),
	}
}

// lookupSRV performs SRV record lookup for _<service>._tcp.<domain>.
func (d *SRVDiscovery) lookupSRV(ctx context.Context, service, domain string) ([]ServerInfo, error) {
	record := fmt.Sprintf("_%s._tcp.%s", service, domain)

	_, records, err := d.resolver.LookupSRV(ctx, service, "tcp", domain)
	if err != nil {
		return nil, fmt.Errorf("SRV lookup failed for %s: %w", record, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no SRV records found for %s", record)
	}

	seen := make(map[string]bool)
	var servers []ServerInfo
	for _, srv := range records {
		host := strings.TrimSuffix(srv.Target, ".")
		if host == "" || seen[host] {
			continue
		}
		seen[host] = true
		servers = append(servers, ServerInfo{
			Host:     host,
			Priority: int(srv.Priority),
			Weight:   int(srv.Weight),
			Source:   record,
		})
	}
	if len(servers) == 0 {
		return nil, fmt.Errorf("no usable SRV targets for %s", record)
	}

	return servers, nil
}

// sortServersByPriority orders by ascending priority, then descending weight (RFC 2782).
func sortServersByPriority(servers []ServerInfo) {
	sort.SliceStable(servers, func(i, j int) bool {
		if servers[i].Priority != servers[j].Priority {
			return servers[i].Priority < servers[j].Priority
		}
		return servers[i].Weight > servers[j].Weight
	})
}
