package bgpfamily

import (
	"fmt"
	"net"
	"strings"
)

// MVPNRouteType enumerates the subset of RFC 6514 MVPN route types this
// implementation models; only the Source-Active A-D route (type 3) carries
// the source/group/originator triple the table layer keys on.
type MVPNRouteType int

const MVPNSourceActiveADRoute MVPNRouteType = 3

// MVPNPrefix is a Source-Active A-D route: RD plus the (source, group)
// multicast flow and the originator that is advertising reachability to it.
type MVPNPrefix struct {
	Type       MVPNRouteType
	RD         RouteDistinguisher
	Source     net.IP
	Group      net.IP
	Originator net.IP
}

func (p MVPNPrefix) Family() Family { return FamilyMVPN }

func (p MVPNPrefix) IsValid() bool {
	return p.Type == MVPNSourceActiveADRoute
}

// MVPNFromString parses "type-rd,source,group,originator".
func MVPNFromString(s string) (MVPNPrefix, error) {
	var p MVPNPrefix
	dashIdx := strings.Index(s, "-")
	if dashIdx < 0 {
		return p, newParseError(FamilyMVPN, s, "missing '-' before route distinguisher")
	}
	typeStr, rest := s[:dashIdx], s[dashIdx+1:]
	if typeStr != "3" {
		return p, newParseError(FamilyMVPN, s, "invalid or unsupported route type "+typeStr)
	}
	p.Type = MVPNSourceActiveADRoute

	fields := strings.Split(rest, ",")
	if len(fields) != 4 {
		return p, newParseError(FamilyMVPN, s, "expected \"rd,source,group,originator\"")
	}
	rd, err := RDFromString(fields[0])
	if err != nil {
		return p, newParseError(FamilyMVPN, s, err.Error())
	}
	source := net.ParseIP(fields[1])
	group := net.ParseIP(fields[2])
	originator := net.ParseIP(fields[3])
	if source == nil || group == nil || originator == nil {
		return p, newParseError(FamilyMVPN, s, "invalid address in source,group,originator")
	}
	p.RD = rd
	p.Source = source
	p.Group = group
	p.Originator = originator
	return p, nil
}

func (p MVPNPrefix) String() string {
	return fmt.Sprintf("%d-%s,%s,%s,%s", int(p.Type), p.RD.String(), p.Source.String(), p.Group.String(), p.Originator.String())
}

// ToWire emits a fixed-width record: type(1) + RD(8) + source(4) +
// group(4) + originator(4); see the ermvpn ToWire comment for why this is
// a fixed layout rather than an RFC-standard self-framed one.
func (p MVPNPrefix) ToWire() []byte {
	out := make([]byte, 1+8+4+4+4)
	out[0] = byte(p.Type)
	copy(out[1:9], p.RD.Bytes())
	copy(out[9:13], p.Source.To4())
	copy(out[13:17], p.Group.To4())
	copy(out[17:21], p.Originator.To4())
	return out
}

func MVPNFromWire(data []byte) (MVPNPrefix, int, error) {
	var p MVPNPrefix
	const width = 1 + 8 + 4 + 4 + 4
	if len(data) < width {
		return p, 0, fmt.Errorf("bgpfamily: mvpn wire route truncated")
	}
	p.Type = MVPNRouteType(data[0])
	rd, err := RDFromBytes(data[1:9])
	if err != nil {
		return p, 0, err
	}
	p.RD = rd
	p.Source = net.IP(append([]byte(nil), data[9:13]...))
	p.Group = net.IP(append([]byte(nil), data[13:17]...))
	p.Originator = net.IP(append([]byte(nil), data[17:21]...))
	return p, width, nil
}
