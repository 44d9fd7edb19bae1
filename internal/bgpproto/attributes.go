package bgpproto

import (
	"encoding/binary"
	"errors"

	"github.com/route-beacon/bgp-control/internal/bgpfamily"
)

// Path attribute type codes.
const (
	AttrTypeOrigin           uint8 = 1
	AttrTypeASPath           uint8 = 2
	AttrTypeNextHop          uint8 = 3
	AttrTypeMED              uint8 = 4
	AttrTypeLocalPref        uint8 = 5
	AttrTypeAtomicAggregate  uint8 = 6
	AttrTypeAggregator       uint8 = 7
	AttrTypeCommunity        uint8 = 8
	AttrTypeClusterList      uint8 = 10
	AttrTypeMPReachNLRI      uint8 = 14
	AttrTypeMPUnreachNLRI    uint8 = 15
	AttrTypeExtCommunity     uint8 = 16
	AttrTypeAS4Path          uint8 = 17
	AttrTypeAS4Aggregator    uint8 = 18
	AttrTypePMSITunnel       uint8 = 22
	AttrTypeOriginVnPath     uint8 = 129
)

const (
	flagOptional       uint8 = 0x80
	flagTransitive     uint8 = 0x40
	flagPartial        uint8 = 0x20
	flagExtendedLength uint8 = 0x10
)

// requiredFlagBits gives the expected Optional|Transitive bits for
// well-known attribute codes; unlisted codes must carry flagOptional.
var requiredFlagBits = map[uint8]uint8{
	AttrTypeOrigin:          flagTransitive,
	AttrTypeASPath:          flagTransitive,
	AttrTypeNextHop:         flagTransitive,
	AttrTypeMED:             flagOptional,
	AttrTypeLocalPref:       flagTransitive,
	AttrTypeAtomicAggregate: flagTransitive,
	AttrTypeAggregator:      flagOptional | flagTransitive,
	AttrTypeCommunity:       flagOptional | flagTransitive,
	AttrTypeClusterList:     flagOptional,
	AttrTypeMPReachNLRI:     flagOptional,
	AttrTypeMPUnreachNLRI:   flagOptional,
	AttrTypeExtCommunity:    flagOptional | flagTransitive,
	AttrTypeAS4Path:         flagOptional | flagTransitive,
	AttrTypeAS4Aggregator:   flagOptional | flagTransitive,
	AttrTypePMSITunnel:      flagOptional | flagTransitive,
	AttrTypeOriginVnPath:    flagOptional | flagTransitive,
}

// Attribute is one decoded path attribute with its value kept in raw wire
// form; typed helpers below interpret Value for the well-known codes, and
// Encode re-serializes from Value unmodified, which is what makes the
// round-trip law (Decode(Encode(M)) = M) hold trivially for attribute data.
type Attribute struct {
	Flags uint8
	Code  uint8
	Value []byte
}

func parseAttributes(data []byte, baseOffset int) ([]Attribute, error) {
	var attrs []Attribute
	offset := baseOffset
	for len(data) > 0 {
		if len(data) < 3 {
			return nil, newDecodeError(ErrCodeUpdateMsg, SubcodeMalformedAttrList, "UpdateMsgErr/MalformedAttributeList", offset, len(data))
		}
		flags := data[0]
		code := data[1]
		var length int
		var headerLen int
		if flags&flagExtendedLength != 0 {
			if len(data) < 4 {
				return nil, newDecodeError(ErrCodeUpdateMsg, SubcodeMalformedAttrList, "UpdateMsgErr/MalformedAttributeList", offset, len(data))
			}
			length = int(binary.BigEndian.Uint16(data[2:4]))
			headerLen = 4
		} else {
			length = int(data[2])
			headerLen = 3
		}
		if len(data) < headerLen+length {
			return nil, newDecodeError(ErrCodeUpdateMsg, SubcodeAttribLengthError, "UpdateMsgErr/AttributeLengthError", offset, len(data))
		}

		required, known := requiredFlagBits[code]
		masked := flags & (flagOptional | flagTransitive)
		if known {
			if masked != required {
				return nil, newDecodeError(ErrCodeUpdateMsg, SubcodeAttribFlagsError, "UpdateMsgErr/AttribFlagsError", offset, headerLen+length)
			}
		} else if flags&flagOptional == 0 {
			return nil, newDecodeError(ErrCodeUpdateMsg, SubcodeUnrecognizedWellKnownAttrib, "UpdateMsgErr/UnrecognizedWellKnownAttrib", offset, headerLen+length)
		}

		value := append([]byte(nil), data[headerLen:headerLen+length]...)
		attrs = append(attrs, Attribute{Flags: flags, Code: code, Value: value})
		data = data[headerLen+length:]
		offset += headerLen + length
	}
	return attrs, nil
}

func encodeAttributes(attrs []Attribute) []byte {
	var out []byte
	for _, a := range attrs {
		flags := a.Flags &^ flagExtendedLength
		if len(a.Value) > 255 {
			flags |= flagExtendedLength
			out = append(out, flags, a.Code, byte(len(a.Value)>>8), byte(len(a.Value)))
		} else {
			out = append(out, flags, a.Code, byte(len(a.Value)))
		}
		out = append(out, a.Value...)
	}
	return out
}

// findAttr returns the first attribute with the given code, if present.
func findAttr(attrs []Attribute, code uint8) (Attribute, bool) {
	for _, a := range attrs {
		if a.Code == code {
			return a, true
		}
	}
	return Attribute{}, false
}

// OriginValue decodes the ORIGIN attribute's single byte.
func OriginValue(attrs []Attribute) (uint8, bool) {
	a, ok := findAttr(attrs, AttrTypeOrigin)
	if !ok || len(a.Value) != 1 {
		return 0, false
	}
	return a.Value[0], true
}

// NextHopValue decodes the NEXT_HOP attribute's 4-byte IPv4 address.
func NextHopValue(attrs []Attribute) ([]byte, bool) {
	a, ok := findAttr(attrs, AttrTypeNextHop)
	if !ok || len(a.Value) != 4 {
		return nil, false
	}
	return a.Value, true
}

// MEDValue decodes the MED attribute's 4-byte value.
func MEDValue(attrs []Attribute) (uint32, bool) {
	a, ok := findAttr(attrs, AttrTypeMED)
	if !ok || len(a.Value) != 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(a.Value), true
}

// LocalPrefValue decodes the LOCAL_PREF attribute's 4-byte value.
func LocalPrefValue(attrs []Attribute) (uint32, bool) {
	a, ok := findAttr(attrs, AttrTypeLocalPref)
	if !ok || len(a.Value) != 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(a.Value), true
}

// MPReachNLRI is the decoded form of the MP_REACH_NLRI attribute.
type MPReachNLRI struct {
	AFI      uint16
	SAFI     uint8
	NextHop  []byte
	Prefixes []bgpfamily.Prefix
}

// ErrUnsupportedAfiSafi reports an MP_REACH/MP_UNREACH NLRI naming an
// AFI/SAFI pair this speaker carries no table for. Unlike a malformed
// attribute this is not a session-fatal condition; callers skip the
// attribute.
var ErrUnsupportedAfiSafi = errors.New("bgpproto: unsupported AFI/SAFI")

// nextHopWireLen is the fixed MP_REACH_NLRI next-hop length each family's
// wire encoding requires: a bare address for the non-VPN families, an
// 8-byte route distinguisher (always zero on the wire, RFC 4364/4659)
// followed by the address for the VPN families.
var nextHopWireLen = map[bgpfamily.Family]int{
	bgpfamily.FamilyInet:     4,
	bgpfamily.FamilyInet6:    16,
	bgpfamily.FamilyL3VPN:    12,
	bgpfamily.FamilyInet6VPN: 24,
	bgpfamily.FamilyEvpn:     4,
	bgpfamily.FamilyErmVPN:   4,
	bgpfamily.FamilyMVPN:     4,
	bgpfamily.FamilyRTarget:  4,
}

// validNextHopLen reports whether n is an acceptable MP_REACH_NLRI next-hop
// length for family. inet6 additionally accepts twice its bare-address
// length, the RFC 2545 global-plus-link-local form.
func validNextHopLen(family bgpfamily.Family, n int) bool {
	want, ok := nextHopWireLen[family]
	if !ok {
		return false
	}
	if n == want {
		return true
	}
	return family == bgpfamily.FamilyInet6 && n == 2*want
}

// ParseMPReachNLRI decodes an MP_REACH_NLRI attribute value. An AFI/SAFI
// pair this speaker does not carry a table for is reported via
// ErrUnsupportedAfiSafi rather than a wire-format error, so callers can
// silently skip the attribute instead of resetting the session.
func ParseMPReachNLRI(value []byte) (MPReachNLRI, error) {
	var m MPReachNLRI
	if len(value) < 5 {
		return m, newDecodeError(ErrCodeUpdateMsg, SubcodeAttribLengthError, "UpdateMsgErr/AttributeLengthError", 0, len(value))
	}
	m.AFI = binary.BigEndian.Uint16(value[0:2])
	m.SAFI = value[2]

	family, ok := bgpfamily.FamilyFromAfiSafi(bgpfamily.AFI(m.AFI), bgpfamily.SAFI(m.SAFI))
	if !ok {
		return m, ErrUnsupportedAfiSafi
	}

	nhLen := int(value[3])
	if len(value) < 4+nhLen+1 {
		return m, newDecodeError(ErrCodeUpdateMsg, SubcodeAttribLengthError, "UpdateMsgErr/AttributeLengthError", 0, len(value))
	}
	if !validNextHopLen(family, nhLen) {
		return m, newDecodeError(ErrCodeUpdateMsg, SubcodeOptionalAttribError, "UpdateMsgErr/OptionalAttribError", 4, nhLen)
	}
	m.NextHop = value[4 : 4+nhLen]
	rest := value[4+nhLen:]
	snpaCount := int(rest[0])
	rest = rest[1:]
	for i := 0; i < snpaCount; i++ {
		if len(rest) < 1 {
			return m, newDecodeError(ErrCodeUpdateMsg, SubcodeAttribLengthError, "UpdateMsgErr/AttributeLengthError", 0, len(rest))
		}
		snpaLenBits := int(rest[0])
		snpaBytes := (snpaLenBits + 7) / 8
		if len(rest) < 1+snpaBytes {
			return m, newDecodeError(ErrCodeUpdateMsg, SubcodeAttribLengthError, "UpdateMsgErr/AttributeLengthError", 0, len(rest))
		}
		rest = rest[1+snpaBytes:]
	}

	for len(rest) > 0 {
		p, n, err := bgpfamily.PrefixFromWire(family, rest)
		if err != nil || n == 0 {
			return m, newDecodeError(ErrCodeUpdateMsg, SubcodeInvalidNetworkField, "UpdateMsgErr/InvalidNetworkField", 0, len(rest))
		}
		m.Prefixes = append(m.Prefixes, p)
		rest = rest[n:]
	}
	return m, nil
}

// BuildMPReachNLRI encodes an MP_REACH_NLRI attribute value.
func BuildMPReachNLRI(m MPReachNLRI) []byte {
	out := make([]byte, 0, 5+len(m.NextHop))
	out = append(out, byte(m.AFI>>8), byte(m.AFI))
	out = append(out, m.SAFI)
	out = append(out, byte(len(m.NextHop)))
	out = append(out, m.NextHop...)
	out = append(out, 0) // SNPA count
	for _, p := range m.Prefixes {
		out = append(out, bgpfamily.PrefixToWire(p)...)
	}
	return out
}

// MPUnreachNLRI is the decoded form of the MP_UNREACH_NLRI attribute.
type MPUnreachNLRI struct {
	AFI      uint16
	SAFI     uint8
	Prefixes []bgpfamily.Prefix
}

// ParseMPUnreachNLRI decodes an MP_UNREACH_NLRI attribute value, with the
// same unsupported-AFI/SAFI contract as ParseMPReachNLRI.
func ParseMPUnreachNLRI(value []byte) (MPUnreachNLRI, error) {
	var m MPUnreachNLRI
	if len(value) < 3 {
		return m, newDecodeError(ErrCodeUpdateMsg, SubcodeAttribLengthError, "UpdateMsgErr/AttributeLengthError", 0, len(value))
	}
	m.AFI = binary.BigEndian.Uint16(value[0:2])
	m.SAFI = value[2]
	rest := value[3:]

	family, ok := bgpfamily.FamilyFromAfiSafi(bgpfamily.AFI(m.AFI), bgpfamily.SAFI(m.SAFI))
	if !ok {
		return m, ErrUnsupportedAfiSafi
	}
	for len(rest) > 0 {
		p, n, err := bgpfamily.PrefixFromWire(family, rest)
		if err != nil || n == 0 {
			return m, newDecodeError(ErrCodeUpdateMsg, SubcodeInvalidNetworkField, "UpdateMsgErr/InvalidNetworkField", 0, len(rest))
		}
		m.Prefixes = append(m.Prefixes, p)
		rest = rest[n:]
	}
	return m, nil
}

// BuildMPUnreachNLRI encodes an MP_UNREACH_NLRI attribute value.
func BuildMPUnreachNLRI(m MPUnreachNLRI) []byte {
	out := make([]byte, 0, 3)
	out = append(out, byte(m.AFI>>8), byte(m.AFI))
	out = append(out, m.SAFI)
	for _, p := range m.Prefixes {
		out = append(out, bgpfamily.PrefixToWire(p)...)
	}
	return out
}
