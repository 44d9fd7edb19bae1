package bgpfamily

import (
	"bytes"
	"fmt"
	"net"
)

// Prefix is the common surface every family-specific route key satisfies.
// Table and RIB code stores these as opaque keys and only downcasts to a
// concrete family type when it needs family-specific fields.
type Prefix interface {
	Family() Family
	String() string
}

var (
	_ Prefix = InetPrefix{}
	_ Prefix = Inet6Prefix{}
	_ Prefix = InetVPNPrefix{}
	_ Prefix = Inet6VPNPrefix{}
	_ Prefix = EvpnPrefix{}
	_ Prefix = ErmVPNPrefix{}
	_ Prefix = MVPNPrefix{}
	_ Prefix = RTargetPrefix{}
)

// ParsePrefix dispatches the text form of a prefix to the parser for the
// given family.
func ParsePrefix(f Family, s string) (Prefix, error) {
	switch f {
	case FamilyInet:
		return InetFromString(s)
	case FamilyInet6:
		return Inet6FromString(s)
	case FamilyL3VPN:
		return InetVPNFromString(s)
	case FamilyInet6VPN:
		return Inet6VPNFromString(s)
	case FamilyEvpn:
		return EvpnFromString(s)
	case FamilyErmVPN:
		return ErmVPNFromString(s)
	case FamilyMVPN:
		return MVPNFromString(s)
	case FamilyRTarget:
		return RTargetPrefixFromString(s)
	default:
		return nil, fmt.Errorf("bgpfamily: unsupported family %v", f)
	}
}

// PrefixFromWire dispatches wire decoding of one self-framed NLRI entry to
// the given family's decoder, returning the prefix and bytes consumed.
func PrefixFromWire(f Family, data []byte) (Prefix, int, error) {
	switch f {
	case FamilyInet:
		return InetFromWire(data)
	case FamilyInet6:
		return Inet6FromWire(data)
	case FamilyL3VPN:
		return InetVPNFromWire(data)
	case FamilyInet6VPN:
		return Inet6VPNFromWire(data)
	case FamilyEvpn:
		return EvpnFromWire(data)
	case FamilyErmVPN:
		return ErmVPNFromWire(data)
	case FamilyMVPN:
		return MVPNFromWire(data)
	case FamilyRTarget:
		return RTargetPrefixFromWire(data)
	default:
		return nil, 0, fmt.Errorf("bgpfamily: unsupported family %v", f)
	}
}

// PrefixToWire dispatches wire encoding of a prefix to its family's encoder.
func PrefixToWire(p Prefix) []byte {
	switch v := p.(type) {
	case InetPrefix:
		return v.ToWire()
	case Inet6Prefix:
		return v.ToWire()
	case InetVPNPrefix:
		return v.ToWire()
	case Inet6VPNPrefix:
		return v.ToWire()
	case EvpnPrefix:
		return v.ToWire()
	case ErmVPNPrefix:
		return v.ToWire()
	case MVPNPrefix:
		return v.ToWire()
	case RTargetPrefix:
		return v.ToWire()
	default:
		return nil
	}
}

// ComparePrefix orders two prefixes of the same family. Prefixes from
// different families compare by Family() alone, which never interleaves
// two tables since callers only ever compare within one partition's table.
func ComparePrefix(a, b Prefix) int {
	if a.Family() != b.Family() {
		if a.Family() < b.Family() {
			return -1
		}
		return 1
	}
	switch av := a.(type) {
	case InetPrefix:
		return av.Compare(b.(InetPrefix))
	case Inet6Prefix:
		return av.Compare(b.(Inet6Prefix))
	case InetVPNPrefix:
		return compareInetVPN(av, b.(InetVPNPrefix))
	case Inet6VPNPrefix:
		return compareInet6VPN(av, b.(Inet6VPNPrefix))
	case RTargetPrefix:
		return av.Compare(b.(RTargetPrefix))
	case EvpnPrefix:
		return compareEvpn(av, b.(EvpnPrefix))
	case ErmVPNPrefix:
		return compareErmVPN(av, b.(ErmVPNPrefix))
	case MVPNPrefix:
		return compareMVPN(av, b.(MVPNPrefix))
	default:
		return 0
	}
}

// IsMoreSpecific reports whether a is contained within b, for the
// aggregatable unicast and L3VPN families. Non-aggregatable families
// (evpn, ermvpn, mvpn, rtarget) always return false: those routes are
// exact-match keys, not prefixes in the CIDR sense.
func IsMoreSpecific(a, b Prefix) bool {
	if a.Family() != b.Family() {
		return false
	}
	switch av := a.(type) {
	case InetPrefix:
		return av.MoreSpecific(b.(InetPrefix))
	case Inet6Prefix:
		return av.MoreSpecific(b.(Inet6Prefix))
	case InetVPNPrefix:
		return av.MoreSpecific(b.(InetVPNPrefix))
	case Inet6VPNPrefix:
		return av.MoreSpecific(b.(Inet6VPNPrefix))
	default:
		return false
	}
}

func compareInetVPN(a, b InetVPNPrefix) int {
	if c := a.RD.Compare(b.RD); c != 0 {
		return c
	}
	return a.Prefix.Compare(b.Prefix)
}

func compareInet6VPN(a, b Inet6VPNPrefix) int {
	if c := a.RD.Compare(b.RD); c != 0 {
		return c
	}
	return a.Prefix.Compare(b.Prefix)
}

func compareEvpn(a, b EvpnPrefix) int {
	if c := a.RD.Compare(b.RD); c != 0 {
		return c
	}
	if c := bytes.Compare(a.MAC[:], b.MAC[:]); c != 0 {
		return c
	}
	return bytes.Compare(a.IPAddr.Addr[:], b.IPAddr.Addr[:])
}

func compareErmVPN(a, b ErmVPNPrefix) int {
	if a.Type != b.Type {
		if a.Type < b.Type {
			return -1
		}
		return 1
	}
	if c := a.RD.Compare(b.RD); c != 0 {
		return c
	}
	if c := compareIP(a.Group, b.Group); c != 0 {
		return c
	}
	return compareIP(a.Source, b.Source)
}

func compareMVPN(a, b MVPNPrefix) int {
	if c := a.RD.Compare(b.RD); c != 0 {
		return c
	}
	if c := compareIP(a.Source, b.Source); c != 0 {
		return c
	}
	return compareIP(a.Group, b.Group)
}

func compareIP(a, b net.IP) int {
	return bytes.Compare(a.To16(), b.To16())
}
