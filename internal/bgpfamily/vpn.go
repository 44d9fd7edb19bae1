package bgpfamily

import (
	"fmt"
	"strconv"
	"strings"
)

// InetVPNPrefix is an RFC 4364 L3VPN IPv4 prefix: a route distinguisher
// glued to an ordinary inet prefix.
type InetVPNPrefix struct {
	RD     RouteDistinguisher
	Prefix InetPrefix
}

func (p InetVPNPrefix) Family() Family { return FamilyL3VPN }

// InetVPNFromString parses "rd:prefix/len", e.g. "100:1:10.1.1.0/24".
func InetVPNFromString(s string) (InetVPNPrefix, error) {
	var p InetVPNPrefix
	rdStr, prefixStr, err := splitRD(s)
	if err != nil {
		return p, newParseError(FamilyL3VPN, s, err.Error())
	}
	rd, err := RDFromString(rdStr)
	if err != nil {
		return p, newParseError(FamilyL3VPN, s, err.Error())
	}
	inner, err := InetFromString(prefixStr)
	if err != nil {
		return p, newParseError(FamilyL3VPN, s, err.Error())
	}
	p.RD = rd
	p.Prefix = inner
	return p, nil
}

func (p InetVPNPrefix) String() string {
	return fmt.Sprintf("%s:%s", p.RD.String(), p.Prefix.String())
}

// ToWire emits RD (8 bytes) followed by the length-prefixed inet prefix,
// with the announced bit-length counting the RD's 64 bits per RFC 4364.
func (p InetVPNPrefix) ToWire() []byte {
	inner := p.Prefix.ToWire()
	out := make([]byte, 1+8+len(inner)-1)
	out[0] = inner[0] + 64
	copy(out[1:9], p.RD.Bytes())
	copy(out[9:], inner[1:])
	return out
}

func InetVPNFromWire(data []byte) (InetVPNPrefix, int, error) {
	var p InetVPNPrefix
	if len(data) < 1 {
		return p, 0, fmt.Errorf("bgpfamily: l3vpn wire prefix truncated")
	}
	totalBits := int(data[0])
	if totalBits < 64 {
		return p, 0, fmt.Errorf("bgpfamily: l3vpn prefix length %d shorter than RD", totalBits)
	}
	addrBits := totalBits - 64
	nbytes := (addrBits + 7) / 8
	if len(data) < 1+8+nbytes {
		return p, 0, fmt.Errorf("bgpfamily: l3vpn wire prefix truncated")
	}
	rd, err := RDFromBytes(data[1:9])
	if err != nil {
		return p, 0, err
	}
	var inner InetPrefix
	copy(inner.Addr[:], data[9:9+nbytes])
	inner.Length = addrBits
	p.RD = rd
	p.Prefix = inner
	return p, 9 + nbytes, nil
}

// MoreSpecific compares only the inet portions; the RDs are ignored.
func (p InetVPNPrefix) MoreSpecific(other InetVPNPrefix) bool {
	return p.Prefix.MoreSpecific(other.Prefix)
}

// Inet6VPNPrefix is an RFC 4659 L3VPN IPv6 prefix.
type Inet6VPNPrefix struct {
	RD     RouteDistinguisher
	Prefix Inet6Prefix
}

func (p Inet6VPNPrefix) Family() Family { return FamilyInet6VPN }

func Inet6VPNFromString(s string) (Inet6VPNPrefix, error) {
	var p Inet6VPNPrefix
	rdStr, prefixStr, err := splitRD(s)
	if err != nil {
		return p, newParseError(FamilyInet6VPN, s, err.Error())
	}
	rd, err := RDFromString(rdStr)
	if err != nil {
		return p, newParseError(FamilyInet6VPN, s, err.Error())
	}
	inner, err := Inet6FromString(prefixStr)
	if err != nil {
		return p, newParseError(FamilyInet6VPN, s, err.Error())
	}
	p.RD = rd
	p.Prefix = inner
	return p, nil
}

func (p Inet6VPNPrefix) String() string {
	return fmt.Sprintf("%s:%s", p.RD.String(), p.Prefix.String())
}

func (p Inet6VPNPrefix) ToWire() []byte {
	inner := p.Prefix.ToWire()
	out := make([]byte, 1+8+len(inner)-1)
	out[0] = inner[0] + 64
	copy(out[1:9], p.RD.Bytes())
	copy(out[9:], inner[1:])
	return out
}

func Inet6VPNFromWire(data []byte) (Inet6VPNPrefix, int, error) {
	var p Inet6VPNPrefix
	if len(data) < 1 {
		return p, 0, fmt.Errorf("bgpfamily: inet6vpn wire prefix truncated")
	}
	totalBits := int(data[0])
	if totalBits < 64 {
		return p, 0, fmt.Errorf("bgpfamily: inet6vpn prefix length %d shorter than RD", totalBits)
	}
	addrBits := totalBits - 64
	nbytes := (addrBits + 7) / 8
	if len(data) < 1+8+nbytes {
		return p, 0, fmt.Errorf("bgpfamily: inet6vpn wire prefix truncated")
	}
	rd, err := RDFromBytes(data[1:9])
	if err != nil {
		return p, 0, err
	}
	var inner Inet6Prefix
	copy(inner.Addr[:], data[9:9+nbytes])
	inner.Length = addrBits
	p.RD = rd
	p.Prefix = inner
	return p, 9 + nbytes, nil
}

// MoreSpecific compares only the inet6 portions; the RDs are ignored.
func (p Inet6VPNPrefix) MoreSpecific(other Inet6VPNPrefix) bool {
	return p.Prefix.MoreSpecific(other.Prefix)
}

// splitRD splits "admin:assigned:prefix" into the RD's two fields and the
// trailing prefix. The RD's own fields never contain ':', so the first two
// colons delimit it even when the prefix itself is IPv6 (many colons).
func splitRD(s string) (rd string, rest string, err error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) < 3 {
		return "", "", fmt.Errorf("expected \"admin:assigned:prefix\"")
	}
	rd = parts[0] + ":" + parts[1]
	rest = parts[2]
	return rd, rest, nil
}

// RTargetPrefix is the (origin-AS, route-target) NLRI carried in the
// dedicated rtarget address family (RFC 4684), used to flood VPN
// membership without a full mesh of import/export policies.
type RTargetPrefix struct {
	OriginAS uint32
	RT       RouteTarget
}

func (p RTargetPrefix) Family() Family { return FamilyRTarget }

// RTargetPrefixFromString parses "as:target:admin:num".
func RTargetPrefixFromString(s string) (RTargetPrefix, error) {
	var p RTargetPrefix
	idx := strings.Index(s, ":")
	if idx <= 0 {
		return p, newParseError(FamilyRTarget, s, "missing origin-AS prefix")
	}
	asStr, rtStr := s[:idx], s[idx+1:]
	as, err := strconv.ParseUint(asStr, 10, 32)
	if err != nil {
		return p, newParseError(FamilyRTarget, s, "bad origin AS: "+err.Error())
	}
	rt, err := RouteTargetFromString(rtStr)
	if err != nil {
		return p, newParseError(FamilyRTarget, s, err.Error())
	}
	p.OriginAS = uint32(as)
	p.RT = rt
	return p, nil
}

func (p RTargetPrefix) String() string {
	return fmt.Sprintf("%d:%s", p.OriginAS, p.RT.String())
}

// ToWire emits the 4-byte origin AS followed by the 8-byte route target,
// self-framed with a leading bit-length byte (96 when fully specified).
func (p RTargetPrefix) ToWire() []byte {
	out := make([]byte, 1+4+8)
	out[0] = 96
	out[1] = byte(p.OriginAS >> 24)
	out[2] = byte(p.OriginAS >> 16)
	out[3] = byte(p.OriginAS >> 8)
	out[4] = byte(p.OriginAS)
	copy(out[5:13], p.RT.Bytes())
	return out
}

func RTargetPrefixFromWire(data []byte) (RTargetPrefix, int, error) {
	var p RTargetPrefix
	if len(data) < 1 {
		return p, 0, fmt.Errorf("bgpfamily: rtarget wire prefix truncated")
	}
	bits := int(data[0])
	nbytes := (bits + 7) / 8
	if len(data) < 1+nbytes {
		return p, 0, fmt.Errorf("bgpfamily: rtarget wire prefix truncated")
	}
	body := data[1 : 1+nbytes]
	if len(body) >= 4 {
		p.OriginAS = uint32(body[0])<<24 | uint32(body[1])<<16 | uint32(body[2])<<8 | uint32(body[3])
	}
	if len(body) >= 12 {
		rt, err := RouteTargetFromBytes(body[4:12])
		if err != nil {
			return p, 0, err
		}
		p.RT = rt
	}
	return p, 1 + nbytes, nil
}

func (p RTargetPrefix) Compare(other RTargetPrefix) int {
	if p.OriginAS != other.OriginAS {
		if p.OriginAS < other.OriginAS {
			return -1
		}
		return 1
	}
	for i := range p.RT {
		if p.RT[i] != other.RT[i] {
			if p.RT[i] < other.RT[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}
