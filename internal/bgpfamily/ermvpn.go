package bgpfamily

import (
	"fmt"
	"net"
	"strings"
)

// ErmVPNRouteType distinguishes the three multicast tree routes carried in
// the ermvpn family.
type ErmVPNRouteType int

const (
	ErmVPNNativeRoute ErmVPNRouteType = iota
	ErmVPNLocalTreeRoute
	ErmVPNGlobalTreeRoute
)

// ErmVPNPrefix identifies a multicast (S,G) tree replication route, keyed by
// RD, advertising router and the (group, source) pair.
type ErmVPNPrefix struct {
	Type       ErmVPNRouteType
	RD         RouteDistinguisher
	RouterID   net.IP // always 4 bytes
	Group      net.IP
	Source     net.IP
}

func (p ErmVPNPrefix) Family() Family { return FamilyErmVPN }

// IsValid reports whether the type discriminant is one this implementation
// recognizes.
func (p ErmVPNPrefix) IsValid() bool {
	return p.Type == ErmVPNNativeRoute || p.Type == ErmVPNLocalTreeRoute || p.Type == ErmVPNGlobalTreeRoute
}

// IsValidForBgp reports whether the route is eligible to be advertised over
// BGP; NativeRoute is a locally-synthesized placeholder never sent on the wire.
func (p ErmVPNPrefix) IsValidForBgp() bool {
	return p.Type == ErmVPNLocalTreeRoute || p.Type == ErmVPNGlobalTreeRoute
}

// ErmVPNFromString parses "type-rd-router_id,group,source".
func ErmVPNFromString(s string) (ErmVPNPrefix, error) {
	var p ErmVPNPrefix
	dashIdx := strings.Index(s, "-")
	if dashIdx < 0 {
		return p, newParseError(FamilyErmVPN, s, "missing '-' before route distinguisher")
	}
	typeStr, rest := s[:dashIdx], s[dashIdx+1:]
	switch typeStr {
	case "0":
		p.Type = ErmVPNNativeRoute
	case "1":
		p.Type = ErmVPNLocalTreeRoute
	case "2":
		p.Type = ErmVPNGlobalTreeRoute
	default:
		return p, newParseError(FamilyErmVPN, s, "invalid route type "+typeStr)
	}

	dashIdx2 := strings.Index(rest, "-")
	if dashIdx2 < 0 {
		return p, newParseError(FamilyErmVPN, s, "missing '-' before router id")
	}
	rdStr, tail := rest[:dashIdx2], rest[dashIdx2+1:]
	rd, err := RDFromString(rdStr)
	if err != nil {
		return p, newParseError(FamilyErmVPN, s, err.Error())
	}
	p.RD = rd

	fields := strings.Split(tail, ",")
	if len(fields) != 3 {
		return p, newParseError(FamilyErmVPN, s, "expected \"router_id,group,source\"")
	}
	routerID := net.ParseIP(fields[0])
	group := net.ParseIP(fields[1])
	source := net.ParseIP(fields[2])
	if routerID == nil || group == nil || source == nil {
		return p, newParseError(FamilyErmVPN, s, "invalid address in router_id,group,source")
	}
	p.RouterID = routerID
	p.Group = group
	p.Source = source
	return p, nil
}

func (p ErmVPNPrefix) String() string {
	return fmt.Sprintf("%d-%s-%s,%s,%s", int(p.Type), p.RD.String(), p.RouterID.String(), p.Group.String(), p.Source.String())
}

// ToWire emits a fixed-width record: type(1) + RD(8) + router-id(4) +
// group(4) + source(4), since RFC 6514 leaves no standard self-framed
// encoding for this route family and the core only needs an internally
// consistent codec for its own MP_REACH/MP_UNREACH NLRI.
func (p ErmVPNPrefix) ToWire() []byte {
	out := make([]byte, 1+8+4+4+4)
	out[0] = byte(p.Type)
	copy(out[1:9], p.RD.Bytes())
	copy(out[9:13], p.RouterID.To4())
	copy(out[13:17], p.Group.To4())
	copy(out[17:21], p.Source.To4())
	return out
}

func ErmVPNFromWire(data []byte) (ErmVPNPrefix, int, error) {
	var p ErmVPNPrefix
	const width = 1 + 8 + 4 + 4 + 4
	if len(data) < width {
		return p, 0, fmt.Errorf("bgpfamily: ermvpn wire route truncated")
	}
	p.Type = ErmVPNRouteType(data[0])
	rd, err := RDFromBytes(data[1:9])
	if err != nil {
		return p, 0, err
	}
	p.RD = rd
	p.RouterID = net.IP(append([]byte(nil), data[9:13]...))
	p.Group = net.IP(append([]byte(nil), data[13:17]...))
	p.Source = net.IP(append([]byte(nil), data[17:21]...))
	return p, width, nil
}
