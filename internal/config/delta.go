package config

import "sort"

// DeltaKind is the Add/Change/Delete vocabulary used for every object kind
// the core accepts.
type DeltaKind int

const (
	DeltaAdd DeltaKind = iota
	DeltaChange
	DeltaDelete
)

// ConfigDelta is one discrete intent change. Exactly one of the typed
// fields is set, matching the Object it names; internal/bgpserver
// switches on Object to dispatch.
type ConfigDelta struct {
	Kind   DeltaKind
	Object DeltaObject

	RoutingInstance *RoutingInstanceConfig
	Peer            *PeerConfig
	VirtualNetwork  *VirtualNetworkConfig
}

type DeltaObject int

const (
	ObjectRoutingInstance DeltaObject = iota
	ObjectPeer
	ObjectVirtualNetwork
)

// Diff computes the Add/Change/Delete deltas that take a core's state from
// prev to next. prev is nil on first load, so every object reports as
// DeltaAdd — the core treats initial load and a later SIGHUP-driven full
// resync identically, since both only ever produce discrete deltas.
// Connections are resolved into RoutingInstance import-target changes
// before diffing: the core has no Connection object of its own, only the
// RoutingInstances it implies.
func Diff(prev, next *Config) []ConfigDelta {
	var prevInstances, nextInstances []RoutingInstanceConfig
	var prevPeers, nextPeers []PeerConfig
	var prevVNs, nextVNs []VirtualNetworkConfig

	if prev != nil {
		prevInstances = resolveConnections(prev.RoutingInstances, prev.Connections)
		prevPeers = prev.Peers
		prevVNs = prev.VirtualNetworks
	}
	nextInstances = resolveConnections(next.RoutingInstances, next.Connections)
	nextPeers = next.Peers
	nextVNs = next.VirtualNetworks

	var deltas []ConfigDelta
	deltas = append(deltas, diffRoutingInstances(prevInstances, nextInstances)...)
	deltas = append(deltas, diffPeers(prevPeers, nextPeers)...)
	deltas = append(deltas, diffVirtualNetworks(prevVNs, nextVNs)...)
	return deltas
}

// resolveConnections returns a copy of instances with each Connection's
// symmetric import applied: instance-a gains instance-b's export-targets
// and vice versa.
func resolveConnections(instances []RoutingInstanceConfig, conns []ConnectionConfig) []RoutingInstanceConfig {
	byName := make(map[string]*RoutingInstanceConfig, len(instances))
	out := make([]RoutingInstanceConfig, len(instances))
	for i, ri := range instances {
		out[i] = ri
		out[i].ImportTargets = append([]string(nil), ri.ImportTargets...)
		byName[ri.Name] = &out[i]
	}
	for _, c := range conns {
		a, okA := byName[c.InstanceA]
		b, okB := byName[c.InstanceB]
		if !okA || !okB {
			continue
		}
		a.ImportTargets = appendMissing(a.ImportTargets, b.ExportTargets...)
		b.ImportTargets = appendMissing(b.ImportTargets, a.ExportTargets...)
	}
	return out
}

func appendMissing(dst []string, values ...string) []string {
	have := make(map[string]bool, len(dst))
	for _, v := range dst {
		have[v] = true
	}
	for _, v := range values {
		if !have[v] {
			dst = append(dst, v)
			have[v] = true
		}
	}
	return dst
}

func diffRoutingInstances(prev, next []RoutingInstanceConfig) []ConfigDelta {
	prevByName := make(map[string]RoutingInstanceConfig, len(prev))
	for _, ri := range prev {
		prevByName[ri.Name] = ri
	}
	nextByName := make(map[string]RoutingInstanceConfig, len(next))
	for _, ri := range next {
		nextByName[ri.Name] = ri
	}

	var out []ConfigDelta
	for _, name := range sortedNames(nextByName) {
		ri := nextByName[name]
		old, existed := prevByName[name]
		switch {
		case !existed:
			out = append(out, ConfigDelta{Kind: DeltaAdd, Object: ObjectRoutingInstance, RoutingInstance: ptrRI(ri)})
		case !equalRoutingInstance(old, ri):
			out = append(out, ConfigDelta{Kind: DeltaChange, Object: ObjectRoutingInstance, RoutingInstance: ptrRI(ri)})
		}
	}
	for _, name := range sortedNames(prevByName) {
		if _, ok := nextByName[name]; !ok {
			ri := prevByName[name]
			out = append(out, ConfigDelta{Kind: DeltaDelete, Object: ObjectRoutingInstance, RoutingInstance: ptrRI(ri)})
		}
	}
	return out
}

func diffPeers(prev, next []PeerConfig) []ConfigDelta {
	prevByName := make(map[string]PeerConfig, len(prev))
	for _, p := range prev {
		prevByName[p.Name] = p
	}
	nextByName := make(map[string]PeerConfig, len(next))
	for _, p := range next {
		nextByName[p.Name] = p
	}

	var out []ConfigDelta
	for _, name := range sortedPeerNames(nextByName) {
		p := nextByName[name]
		old, existed := prevByName[name]
		switch {
		case !existed:
			out = append(out, ConfigDelta{Kind: DeltaAdd, Object: ObjectPeer, Peer: ptrPeer(p)})
		case !equalPeer(old, p):
			out = append(out, ConfigDelta{Kind: DeltaChange, Object: ObjectPeer, Peer: ptrPeer(p)})
		}
	}
	for _, name := range sortedPeerNames(prevByName) {
		if _, ok := nextByName[name]; !ok {
			p := prevByName[name]
			out = append(out, ConfigDelta{Kind: DeltaDelete, Object: ObjectPeer, Peer: ptrPeer(p)})
		}
	}
	return out
}

func diffVirtualNetworks(prev, next []VirtualNetworkConfig) []ConfigDelta {
	prevByName := make(map[string]VirtualNetworkConfig, len(prev))
	for _, vn := range prev {
		prevByName[vn.Name] = vn
	}
	nextByName := make(map[string]VirtualNetworkConfig, len(next))
	for _, vn := range next {
		nextByName[vn.Name] = vn
	}

	var out []ConfigDelta
	for _, name := range sortedVNNames(nextByName) {
		vn := nextByName[name]
		old, existed := prevByName[name]
		switch {
		case !existed:
			out = append(out, ConfigDelta{Kind: DeltaAdd, Object: ObjectVirtualNetwork, VirtualNetwork: ptrVN(vn)})
		case old != vn:
			out = append(out, ConfigDelta{Kind: DeltaChange, Object: ObjectVirtualNetwork, VirtualNetwork: ptrVN(vn)})
		}
	}
	for _, name := range sortedVNNames(prevByName) {
		if _, ok := nextByName[name]; !ok {
			vn := prevByName[name]
			out = append(out, ConfigDelta{Kind: DeltaDelete, Object: ObjectVirtualNetwork, VirtualNetwork: ptrVN(vn)})
		}
	}
	return out
}

func equalRoutingInstance(a, b RoutingInstanceConfig) bool {
	return a.Name == b.Name && equalStrSlice(a.ImportTargets, b.ImportTargets) && equalStrSlice(a.ExportTargets, b.ExportTargets)
}

func equalPeer(a, b PeerConfig) bool {
	if a.Instance != b.Instance || a.Name != b.Name || a.Address != b.Address || a.Port != b.Port ||
		a.Identifier != b.Identifier || a.ASNumber != b.ASNumber || a.HoldTimeSeconds != b.HoldTimeSeconds ||
		a.IsXMPP != b.IsXMPP || a.ClusterID != b.ClusterID {
		return false
	}
	return equalStrSlice(a.Families, b.Families)
}

func equalStrSlice(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	am := append([]string(nil), a...)
	bm := append([]string(nil), b...)
	sort.Strings(am)
	sort.Strings(bm)
	for i := range am {
		if am[i] != bm[i] {
			return false
		}
	}
	return true
}

func sortedNames(m map[string]RoutingInstanceConfig) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedPeerNames(m map[string]PeerConfig) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedVNNames(m map[string]VirtualNetworkConfig) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func ptrRI(ri RoutingInstanceConfig) *RoutingInstanceConfig   { return &ri }
func ptrPeer(p PeerConfig) *PeerConfig                        { return &p }
func ptrVN(vn VirtualNetworkConfig) *VirtualNetworkConfig     { return &vn }
