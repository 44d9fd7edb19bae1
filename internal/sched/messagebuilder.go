package sched

import (
	"github.com/route-beacon/bgp-control/internal/bgpfamily"
	"github.com/route-beacon/bgp-control/internal/bgpproto"
)

// RouteUpdate is one prefix/attribute-set pair the message builder packs
// into UPDATE messages.
type RouteUpdate struct {
	Prefix bgpfamily.InetPrefix
	Attrs  []bgpproto.Attribute
}

// BuildUpdates packs updates into as few UPDATE messages as fit under mtu,
// accumulating routes with an identical attribute set into one message
// until encoder capacity is hit, then flushing. Encoding is the bit-exact
// wire codec from internal/bgpproto.
func BuildUpdates(updates []RouteUpdate, mtu int) [][]byte {
	if mtu <= 0 {
		mtu = 4096
	}
	var out [][]byte
	i := 0
	for i < len(updates) {
		j := i + 1
		for j < len(updates) && sameAttrs(updates[i].Attrs, updates[j].Attrs) {
			j++
		}
		out = append(out, packRun(updates[i:j], updates[i].Attrs, mtu)...)
		i = j
	}
	return out
}

func sameAttrs(a, b []bgpproto.Attribute) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Code != b[i].Code || a[i].Flags != b[i].Flags || string(a[i].Value) != string(b[i].Value) {
			return false
		}
	}
	return true
}

// packRun splits one attribute-uniform run of routes into as many UPDATE
// messages as needed to respect mtu.
func packRun(updates []RouteUpdate, attrs []bgpproto.Attribute, mtu int) [][]byte {
	var out [][]byte
	buf := make([]byte, mtu)
	var nlri []bgpfamily.InetPrefix

	flush := func() {
		if len(nlri) == 0 {
			return
		}
		msg := &bgpproto.UpdateMessage{Attributes: attrs, NLRI: nlri}
		n := bgpproto.Encode(msg, buf)
		if n > 0 {
			encoded := make([]byte, n)
			copy(encoded, buf[:n])
			out = append(out, encoded)
		}
		nlri = nil
	}

	for _, u := range updates {
		candidate := append(append([]bgpfamily.InetPrefix(nil), nlri...), u.Prefix)
		msg := &bgpproto.UpdateMessage{Attributes: attrs, NLRI: candidate}
		if bgpproto.Encode(msg, buf) < 0 && len(nlri) > 0 {
			flush()
			candidate = []bgpfamily.InetPrefix{u.Prefix}
		}
		nlri = candidate
	}
	flush()
	return out
}

// BuildWithdraws packs withdrawn prefixes into as few UPDATE messages as
// fit under mtu.
func BuildWithdraws(prefixes []bgpfamily.InetPrefix, mtu int) [][]byte {
	if mtu <= 0 {
		mtu = 4096
	}
	var out [][]byte
	buf := make([]byte, mtu)
	var pending []bgpfamily.InetPrefix

	flush := func() {
		if len(pending) == 0 {
			return
		}
		msg := &bgpproto.UpdateMessage{WithdrawnRoutes: pending}
		n := bgpproto.Encode(msg, buf)
		if n > 0 {
			encoded := make([]byte, n)
			copy(encoded, buf[:n])
			out = append(out, encoded)
		}
		pending = nil
	}

	for _, p := range prefixes {
		candidate := append(append([]bgpfamily.InetPrefix(nil), pending...), p)
		msg := &bgpproto.UpdateMessage{WithdrawnRoutes: candidate}
		if bgpproto.Encode(msg, buf) < 0 && len(pending) > 0 {
			flush()
			candidate = []bgpfamily.InetPrefix{p}
		}
		pending = candidate
	}
	flush()
	return out
}
