package dae

import "daelsp/internal/analysis"

// Symbol kinds declared by dae configs.
const (
	KindRule         analysis.SymbolKind = "rule"
	KindGroup        analysis.SymbolKind = "group"
	KindNode         analysis.SymbolKind = "node"
	KindSubscription analysis.SymbolKind = "subscription"
	KindUpstream     analysis.SymbolKind = "upstream"
)

type entry struct {
	name string
	doc  string
}

func lookup(table []entry, name string) (string, bool) {
	for _, e := range table {
		if e.name == name {
			return e.doc, true
		}
	}
	return "", false
}

var topSections = []entry{
	{"global", "Global options: ports, interfaces, health checks and logging."},
	{"subscription", "Subscription links. `tag: 'link'` names a subscription so groups can select its nodes with `subtag(tag)`."},
	{"node", "Individually declared nodes: `name: 'link'`."},
	{"dns", "DNS upstreams and DNS routing."},
	{"group", "Outbound groups. Each member `name { filter: ... policy: ... }` selects nodes and a selection policy."},
	{"routing", "Traffic routing rules `condition -> outbound`, evaluated top to bottom, with a required `fallback`."},
	{"rule", "A named condition `rule NAME { match: ... }` that routing rules can reuse with `rule(NAME)`."},
}

var dnsSections = []entry{
	{"upstream", "DNS upstream servers: `name: 'scheme://host:port'`."},
	{"routing", "DNS routing, split into `request` and `response` rules."},
}

var dnsRoutingSections = []entry{
	{"request", "Routes DNS queries to an upstream: `qname(geosite:cn) -> alidns`."},
	{"response", "Decides what to do with DNS answers: `upstream(googledns) -> accept`."},
}

var routingFunctions = []entry{
	{"domain", "Matches the sniffed or resolved domain. Keys: `suffix`, `full`, `keyword`, `regex`, `geosite`."},
	{"dip", "Matches the destination IP or CIDR, or `geoip:` lists."},
	{"sip", "Matches the source IP or CIDR."},
	{"dport", "Matches the destination port or port range."},
	{"sport", "Matches the source port or port range."},
	{"l4proto", "Matches the layer 4 protocol: `tcp` or `udp`."},
	{"ipversion", "Matches the IP version: `4` or `6`."},
	{"mac", "Matches the source MAC address."},
	{"pname", "Matches the name of the local process that opened the connection."},
	{"dscp", "Matches the DSCP value of the packet."},
	{"rule", "Matches when the named `rule` block matches."},
}

var dnsRequestFunctions = []entry{
	{"qname", "Matches the queried domain name. Keys as in `domain`."},
	{"qtype", "Matches the query type, e.g. `a`, `aaaa`, `cname`."},
	{"rule", "Matches when the named `rule` block matches."},
}

var dnsResponseFunctions = []entry{
	{"qname", "Matches the queried domain name. Keys as in `domain`."},
	{"qtype", "Matches the query type, e.g. `a`, `aaaa`, `cname`."},
	{"ip", "Matches an IP in the answer."},
	{"upstream", "Matches the upstream that answered."},
	{"rule", "Matches when the named `rule` block matches."},
}

var filterFunctions = []entry{
	{"name", "Selects nodes by name. Plain arguments name declared nodes; `keyword:` and `regex:` match node names."},
	{"subtag", "Selects all nodes of the named subscriptions."},
}

var policies = []entry{
	{"random", "Pick a random node for each connection."},
	{"fixed", "Always use the node at the given index: `fixed(0)`."},
	{"min", "Use the node with the lowest last latency."},
	{"min_avg10", "Use the node with the lowest average of the last 10 latencies."},
	{"min_moving_avg", "Use the node with the lowest moving average latency."},
	{"min_last_latency", "Use the node with the lowest last latency."},
}

var groupKeys = []entry{
	{"filter", "Selects member nodes. Several `filter` lines are combined with or."},
	{"policy", "How a node is selected from the group."},
}

var globalKeys = []entry{
	{"tproxy_port", "Port of the transparent proxy. Default 12345."},
	{"tproxy_port_protect", "Protect the tproxy port from unsolicited traffic."},
	{"so_mark_from_dae", "Socket mark set on traffic sent by dae itself."},
	{"log_level", "One of `error`, `warn`, `info`, `debug`, `trace`."},
	{"tcp_check_url", "URL used for TCP health checks."},
	{"tcp_check_http_method", "HTTP method of TCP health checks."},
	{"udp_check_dns", "DNS server used for UDP health checks."},
	{"check_interval", "Interval between health checks, e.g. `30s`."},
	{"check_tolerance", "Latency difference needed to switch nodes, e.g. `50ms`."},
	{"lan_interface", "LAN interfaces to proxy, comma separated."},
	{"wan_interface", "WAN interfaces to proxy; `auto` detects them."},
	{"auto_config_kernel_parameter", "Let dae set the kernel parameters it needs."},
	{"dial_mode", "How outbound connections are dialed: `ip`, `domain`, `domain+`, `domain++`."},
	{"allow_insecure", "Skip TLS certificate verification."},
	{"sniffing_timeout", "How long to wait for the first packet when sniffing."},
	{"tls_implementation", "`tls` or `utls`."},
	{"utls_imitate", "Client hello to imitate with utls."},
}

var groupBuiltins = []entry{
	{"direct", "Send traffic directly, without a proxy."},
	{"block", "Drop the traffic."},
	{"must_direct", "Like `direct`, and also for DNS traffic that would otherwise be hijacked."},
	{"must_block", "Like `block`, and also for DNS traffic."},
	{"must_rules", "Pass DNS traffic through the routing rules instead of the DNS module."},
}

var upstreamBuiltins = []entry{
	{"asis", "Use the DNS server the client asked for."},
	{"reject", "Answer the query with a rejection."},
	{"accept", "Accept the answer as is."},
}

// functionsFor returns the predicate functions valid in a section.
func functionsFor(b block) []entry {
	switch {
	case b.is("routing"), b.is("rule"):
		return routingFunctions
	case b.is("dns", "routing", "request"):
		return dnsRequestFunctions
	case b.is("dns", "routing", "response"):
		return dnsResponseFunctions
	case len(b.path) == 2 && b.path[0] == "group":
		return filterFunctions
	}
	return nil
}

// outboundKind returns what the outbounds of a section's routing rules name.
func outboundKind(b block) (analysis.SymbolKind, bool) {
	switch {
	case b.is("routing"):
		return KindGroup, true
	case b.is("dns", "routing", "request"), b.is("dns", "routing", "response"):
		return KindUpstream, true
	}
	return "", false
}

func builtinsFor(kind analysis.SymbolKind) []entry {
	switch kind {
	case KindGroup:
		return groupBuiltins
	case KindUpstream:
		return upstreamBuiltins
	}
	return nil
}

// childSections returns the sections allowed inside a section, or at the
// top level when b is nil.
func childSections(b *block) ([]entry, bool) {
	if b == nil {
		return topSections, true
	}
	switch {
	case b.is("dns"):
		return dnsSections, true
	case b.is("dns", "routing"):
		return dnsRoutingSections, true
	case b.is("group"):
		// members are named freely
		return nil, false
	}
	return nil, true
}
