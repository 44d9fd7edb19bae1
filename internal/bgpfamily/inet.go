package bgpfamily

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// InetPrefix is an IPv4 unicast prefix.
type InetPrefix struct {
	Addr   [4]byte
	Length int // bits, 0-32
}

func InetFromString(s string) (InetPrefix, error) {
	var p InetPrefix
	addr, length, err := splitCIDR(s)
	if err != nil {
		return p, newParseError(FamilyInet, s, err.Error())
	}
	if length < 0 || length > 32 {
		return p, newParseError(FamilyInet, s, "prefix length out of range 0-32")
	}
	ip := net.ParseIP(addr)
	if ip == nil || ip.To4() == nil {
		return p, newParseError(FamilyInet, s, "not a valid IPv4 address")
	}
	copy(p.Addr[:], ip.To4())
	p.Length = length
	maskOff(p.Addr[:], length)
	return p, nil
}

func (p InetPrefix) Family() Family { return FamilyInet }

func (p InetPrefix) String() string {
	return fmt.Sprintf("%s/%d", net.IP(p.Addr[:]).String(), p.Length)
}

// ToWire emits the length-prefixed wire form: 1 byte bit-length then
// ceil(length/8) address bytes.
func (p InetPrefix) ToWire() []byte {
	nbytes := (p.Length + 7) / 8
	out := make([]byte, 1+nbytes)
	out[0] = byte(p.Length)
	copy(out[1:], p.Addr[:nbytes])
	return out
}

// InetFromWire parses one length-prefixed inet prefix, returning bytes consumed.
func InetFromWire(data []byte) (InetPrefix, int, error) {
	var p InetPrefix
	if len(data) < 1 {
		return p, 0, fmt.Errorf("bgpfamily: inet wire prefix truncated")
	}
	length := int(data[0])
	if length > 32 {
		return p, 0, fmt.Errorf("bgpfamily: inet prefix length %d exceeds 32", length)
	}
	nbytes := (length + 7) / 8
	if len(data) < 1+nbytes {
		return p, 0, fmt.Errorf("bgpfamily: inet wire prefix truncated: need %d bytes have %d", nbytes, len(data)-1)
	}
	copy(p.Addr[:], data[1:1+nbytes])
	p.Length = length
	return p, 1 + nbytes, nil
}

func (p InetPrefix) Compare(other InetPrefix) int {
	for i := 0; i < 4; i++ {
		if p.Addr[i] != other.Addr[i] {
			if p.Addr[i] < other.Addr[i] {
				return -1
			}
			return 1
		}
	}
	if p.Length != other.Length {
		if p.Length < other.Length {
			return -1
		}
		return 1
	}
	return 0
}

func (p InetPrefix) MoreSpecific(other InetPrefix) bool {
	if p.Length < other.Length {
		return false
	}
	return addrMasked(p.Addr[:], other.Length) == addrMasked(other.Addr[:], other.Length)
}

// Inet6Prefix is an IPv6 unicast prefix.
type Inet6Prefix struct {
	Addr   [16]byte
	Length int // bits, 0-128
}

func Inet6FromString(s string) (Inet6Prefix, error) {
	var p Inet6Prefix
	addr, length, err := splitCIDR(s)
	if err != nil {
		return p, newParseError(FamilyInet6, s, err.Error())
	}
	if length < 0 || length > 128 {
		return p, newParseError(FamilyInet6, s, "prefix length out of range 0-128")
	}
	ip := net.ParseIP(addr)
	if ip == nil || ip.To4() != nil {
		return p, newParseError(FamilyInet6, s, "not a valid IPv6 address")
	}
	copy(p.Addr[:], ip.To16())
	p.Length = length
	maskOff(p.Addr[:], length)
	return p, nil
}

func (p Inet6Prefix) Family() Family { return FamilyInet6 }

func (p Inet6Prefix) String() string {
	return fmt.Sprintf("%s/%d", net.IP(p.Addr[:]).String(), p.Length)
}

func (p Inet6Prefix) ToWire() []byte {
	nbytes := (p.Length + 7) / 8
	out := make([]byte, 1+nbytes)
	out[0] = byte(p.Length)
	copy(out[1:], p.Addr[:nbytes])
	return out
}

func Inet6FromWire(data []byte) (Inet6Prefix, int, error) {
	var p Inet6Prefix
	if len(data) < 1 {
		return p, 0, fmt.Errorf("bgpfamily: inet6 wire prefix truncated")
	}
	length := int(data[0])
	if length > 128 {
		return p, 0, fmt.Errorf("bgpfamily: inet6 prefix length %d exceeds 128", length)
	}
	nbytes := (length + 7) / 8
	if len(data) < 1+nbytes {
		return p, 0, fmt.Errorf("bgpfamily: inet6 wire prefix truncated: need %d bytes have %d", nbytes, len(data)-1)
	}
	copy(p.Addr[:], data[1:1+nbytes])
	p.Length = length
	return p, 1 + nbytes, nil
}

func (p Inet6Prefix) Compare(other Inet6Prefix) int {
	for i := 0; i < 16; i++ {
		if p.Addr[i] != other.Addr[i] {
			if p.Addr[i] < other.Addr[i] {
				return -1
			}
			return 1
		}
	}
	if p.Length != other.Length {
		if p.Length < other.Length {
			return -1
		}
		return 1
	}
	return 0
}

func (p Inet6Prefix) MoreSpecific(other Inet6Prefix) bool {
	if p.Length < other.Length {
		return false
	}
	mine := append([]byte(nil), p.Addr[:]...)
	theirs := append([]byte(nil), other.Addr[:]...)
	maskOff(mine, other.Length)
	maskOff(theirs, other.Length)
	return string(mine) == string(theirs)
}

// splitCIDR splits "addr/len" and parses the integer length.
func splitCIDR(s string) (addr string, length int, err error) {
	idx := strings.LastIndex(s, "/")
	if idx < 0 {
		return "", 0, fmt.Errorf("missing '/' separator")
	}
	addr = s[:idx]
	length, err = strconv.Atoi(s[idx+1:])
	if err != nil {
		return "", 0, fmt.Errorf("bad prefix length: %w", err)
	}
	return addr, length, nil
}

// maskOff zeroes bits beyond the given bit length (canonicalization:
// the text/wire form never carries bits outside the announced length).
func maskOff(addr []byte, length int) {
	if length >= len(addr)*8 {
		return
	}
	fullBytes := length / 8
	remBits := length % 8
	if remBits > 0 {
		mask := byte(0xFF << (8 - remBits))
		addr[fullBytes] &= mask
		fullBytes++
	}
	for i := fullBytes; i < len(addr); i++ {
		addr[i] = 0
	}
}

func addrMasked(addr []byte, length int) string {
	out := append([]byte(nil), addr...)
	maskOff(out, length)
	return string(out)
}
