package bgpfamily

import (
	"fmt"
	"net"
	"strings"
)

// EvpnPrefix is an RFC 7432 EVPN MAC/IP advertisement route (route type 2),
// the dominant EVPN route type exercised by the routing core.
type EvpnPrefix struct {
	RD     RouteDistinguisher
	MAC    [6]byte
	HasIP  bool
	IPAddr InetPrefix // Length holds the advertised IP's bit length (32 or 128 collapsed to InetPrefix for IPv4; IPv6 not modeled here)
}

func (p EvpnPrefix) Family() Family { return FamilyEvpn }

// EvpnFromString parses "rd:mac,ip/len" or "rd:mac" (no IP). The route
// distinguisher and the MAC address both use ':' as a separator, so the
// split keys off the MAC's fixed 6-octet shape (5 embedded colons).
func EvpnFromString(s string) (EvpnPrefix, error) {
	var p EvpnPrefix
	head := s
	var ipPart string
	hasIPPart := false
	if idx := strings.Index(s, ","); idx >= 0 {
		head, ipPart = s[:idx], s[idx+1:]
		hasIPPart = true
	}
	parts := strings.Split(head, ":")
	if len(parts) < 8 {
		return p, newParseError(FamilyEvpn, s, "expected \"admin:assigned:mac\"")
	}
	rdStr := strings.Join(parts[:len(parts)-6], ":")
	macStr := strings.Join(parts[len(parts)-6:], ":")
	rd, err := RDFromString(rdStr)
	if err != nil {
		return p, newParseError(FamilyEvpn, s, err.Error())
	}
	mac, err := net.ParseMAC(macStr)
	if err != nil || len(mac) != 6 {
		return p, newParseError(FamilyEvpn, s, "invalid MAC address")
	}
	p.RD = rd
	copy(p.MAC[:], mac)
	if hasIPPart {
		ipPrefix, err := InetFromString(ipPart)
		if err != nil {
			return p, newParseError(FamilyEvpn, s, "invalid IP: "+err.Error())
		}
		p.HasIP = true
		p.IPAddr = ipPrefix
	}
	return p, nil
}

func (p EvpnPrefix) String() string {
	macStr := net.HardwareAddr(p.MAC[:]).String()
	if p.HasIP {
		return fmt.Sprintf("%s:%s,%s", p.RD.String(), macStr, p.IPAddr.String())
	}
	return fmt.Sprintf("%s:%s", p.RD.String(), macStr)
}

// ToWire emits RD(8) + ESI(10, zeroed) + eth-tag(4, zeroed) + mac-len(1)=48 +
// mac(6) + ip-len(1) + ip(0 or 4) + label(3, zeroed), per RFC 7432 §7.2.
func (p EvpnPrefix) ToWire() []byte {
	ipLen := 0
	if p.HasIP {
		ipLen = 4
	}
	out := make([]byte, 8+10+4+1+6+1+ipLen+3)
	off := 0
	copy(out[off:off+8], p.RD.Bytes())
	off += 8 + 10 + 4 // ESI and ethernet tag left zeroed
	out[off] = 48
	off++
	copy(out[off:off+6], p.MAC[:])
	off += 6
	if p.HasIP {
		out[off] = 32
		off++
		copy(out[off:off+4], p.IPAddr.Addr[:])
		off += 4
	} else {
		out[off] = 0
		off++
	}
	return out
}

func EvpnFromWire(data []byte) (EvpnPrefix, int, error) {
	var p EvpnPrefix
	const fixedHdr = 8 + 10 + 4
	if len(data) < fixedHdr+1 {
		return p, 0, fmt.Errorf("bgpfamily: evpn wire route truncated")
	}
	rd, err := RDFromBytes(data[0:8])
	if err != nil {
		return p, 0, err
	}
	p.RD = rd
	off := fixedHdr
	macBits := int(data[off])
	off++
	macBytes := (macBits + 7) / 8
	if macBytes != 6 || len(data) < off+macBytes+1 {
		return p, 0, fmt.Errorf("bgpfamily: evpn wire route: unexpected mac length %d", macBits)
	}
	copy(p.MAC[:], data[off:off+6])
	off += 6
	ipBits := int(data[off])
	off++
	ipBytes := (ipBits + 7) / 8
	if ipBytes > 0 {
		if len(data) < off+ipBytes {
			return p, 0, fmt.Errorf("bgpfamily: evpn wire route: ip truncated")
		}
		p.HasIP = true
		copy(p.IPAddr.Addr[:], data[off:off+min(ipBytes, 4)])
		p.IPAddr.Length = 32
		off += ipBytes
	}
	off += 3 // MPLS label, unused by the route key
	return p, off, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
