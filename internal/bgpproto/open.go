package bgpproto

import (
	"encoding/binary"
	"net"
)

// Capability codes recognized by the core.
const (
	CapMultiProtocol           uint8 = 1
	CapRouteRefresh            uint8 = 2
	CapRouteRefreshOld         uint8 = 0x80
	CapFourByteAS              uint8 = 0x41
	CapGracefulRestart         uint8 = 0x40
	CapLongLivedGracefulRestart uint8 = 0x47
)

const optParamCapabilities uint8 = 2

// Capability is one {code, length, value} optional-parameter entry. Value
// is kept in raw wire form; typed accessors below interpret it for the
// codes the core understands.
type Capability struct {
	Code  uint8
	Value []byte
}

// MultiProtocolValue decodes a MultiProtocol capability's 4-byte value.
func (c Capability) MultiProtocolValue() (afi uint16, safi uint8, ok bool) {
	if c.Code != CapMultiProtocol || len(c.Value) != 4 {
		return 0, 0, false
	}
	return binary.BigEndian.Uint16(c.Value[0:2]), c.Value[3], true
}

// FourByteASValue decodes a FourByteAS capability's 4-byte ASN.
func (c Capability) FourByteASValue() (asn uint32, ok bool) {
	if c.Code != CapFourByteAS || len(c.Value) != 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(c.Value), true
}

// GRAddressFamily is one (AFI, SAFI, flags) tuple inside a Graceful-Restart
// or Long-Lived-Graceful-Restart capability.
type GRAddressFamily struct {
	AFI   uint16
	SAFI  uint8
	Flags uint8
	Time  uint32 // seconds; only the low bits used are family-dependent below
}

// GracefulRestartValue decodes the flags+time header and the per-family list
// of a GracefulRestart capability.
func (c Capability) GracefulRestartValue() (restartFlags uint8, restartTime uint16, families []GRAddressFamily, ok bool) {
	if c.Code != CapGracefulRestart || len(c.Value) < 2 {
		return 0, 0, nil, false
	}
	header := binary.BigEndian.Uint16(c.Value[0:2])
	restartFlags = uint8(header >> 12)
	restartTime = header & 0x0FFF
	rest := c.Value[2:]
	for len(rest) >= 4 {
		families = append(families, GRAddressFamily{
			AFI:   binary.BigEndian.Uint16(rest[0:2]),
			SAFI:  rest[2],
			Flags: rest[3],
		})
		rest = rest[4:]
	}
	return restartFlags, restartTime, families, true
}

// LongLivedGracefulRestartValue decodes a LLGR capability's list of
// (AFI, SAFI, flags, 3-byte time) tuples.
func (c Capability) LongLivedGracefulRestartValue() (families []GRAddressFamily, ok bool) {
	if c.Code != CapLongLivedGracefulRestart {
		return nil, false
	}
	rest := c.Value
	for len(rest) >= 7 {
		t := uint32(rest[4])<<16 | uint32(rest[5])<<8 | uint32(rest[6])
		families = append(families, GRAddressFamily{
			AFI:   binary.BigEndian.Uint16(rest[0:2]),
			SAFI:  rest[2],
			Flags: rest[3],
			Time:  t,
		})
		rest = rest[7:]
	}
	return families, true
}

// BuildMultiProtocolCapability constructs the wire value for a
// MultiProtocol capability.
func BuildMultiProtocolCapability(afi uint16, safi uint8) Capability {
	v := make([]byte, 4)
	binary.BigEndian.PutUint16(v[0:2], afi)
	v[3] = safi
	return Capability{Code: CapMultiProtocol, Value: v}
}

// BuildFourByteASCapability constructs the wire value for a FourByteAS
// capability.
func BuildFourByteASCapability(asn uint32) Capability {
	v := make([]byte, 4)
	binary.BigEndian.PutUint32(v, asn)
	return Capability{Code: CapFourByteAS, Value: v}
}

// BuildGracefulRestartCapability constructs the wire value for a
// GracefulRestart capability.
func BuildGracefulRestartCapability(flags uint8, timeSeconds uint16, families []GRAddressFamily) Capability {
	v := make([]byte, 2+4*len(families))
	header := uint16(flags&0x0F)<<12 | (timeSeconds & 0x0FFF)
	binary.BigEndian.PutUint16(v[0:2], header)
	off := 2
	for _, f := range families {
		binary.BigEndian.PutUint16(v[off:off+2], f.AFI)
		v[off+2] = f.SAFI
		v[off+3] = f.Flags
		off += 4
	}
	return Capability{Code: CapGracefulRestart, Value: v}
}

// BuildLongLivedGracefulRestartCapability constructs the wire value for a
// LongLivedGracefulRestart capability.
func BuildLongLivedGracefulRestartCapability(families []GRAddressFamily) Capability {
	v := make([]byte, 7*len(families))
	off := 0
	for _, f := range families {
		binary.BigEndian.PutUint16(v[off:off+2], f.AFI)
		v[off+2] = f.SAFI
		v[off+3] = f.Flags
		v[off+4] = byte(f.Time >> 16)
		v[off+5] = byte(f.Time >> 8)
		v[off+6] = byte(f.Time)
		off += 7
	}
	return Capability{Code: CapLongLivedGracefulRestart, Value: v}
}

// OpenMessage is a decoded/to-be-encoded BGP OPEN.
type OpenMessage struct {
	Version      uint8
	AS           uint16 // 23456 (AS_TRANS) when the real AS needs the FourByteAS capability
	HoldTime     uint16
	Identifier   net.IP // always 4 bytes
	Capabilities []Capability
}

func decodeOpen(body []byte) (*OpenMessage, error) {
	if len(body) < 10 {
		return nil, newDecodeError(ErrCodeOpenMsg, 0, "OpenMsgErr", 19, len(body))
	}
	m := &OpenMessage{
		Version:    body[0],
		AS:         binary.BigEndian.Uint16(body[1:3]),
		HoldTime:   binary.BigEndian.Uint16(body[3:5]),
		Identifier: net.IP(append([]byte(nil), body[5:9]...)),
	}
	if m.Version != 4 {
		return nil, newDecodeError(ErrCodeOpenMsg, SubcodeUnsupportedVersion, "OpenMsgErr/UnsupportedVersionNumber", 19, 1)
	}
	if m.HoldTime != 0 && m.HoldTime < 3 {
		return nil, newDecodeError(ErrCodeOpenMsg, SubcodeUnacceptableHoldTime, "OpenMsgErr/UnacceptableHoldTime", 22, 2)
	}
	optLen := int(body[9])
	opts := body[10:]
	if len(opts) < optLen {
		return nil, newDecodeError(ErrCodeOpenMsg, 0, "OpenMsgErr/Truncated", 29, len(opts))
	}
	opts = opts[:optLen]
	offset := 29
	for len(opts) > 0 {
		if len(opts) < 2 {
			return nil, newDecodeError(ErrCodeOpenMsg, SubcodeUnsupportedOptionalParam, "OpenMsgErr/UnsupportedOptionalParam", offset, len(opts))
		}
		paramCode := opts[0]
		paramLen := int(opts[1])
		if len(opts) < 2+paramLen {
			return nil, newDecodeError(ErrCodeOpenMsg, SubcodeUnsupportedOptionalParam, "OpenMsgErr/UnsupportedOptionalParam", offset, len(opts))
		}
		if paramCode != optParamCapabilities {
			return nil, newDecodeError(ErrCodeOpenMsg, SubcodeUnsupportedOptionalParam, "OpenMsgErr/UnsupportedOptionalParam", offset, 2+paramLen)
		}
		capData := opts[2 : 2+paramLen]
		capOffset := offset + 2
		for len(capData) > 0 {
			if len(capData) < 2 {
				return nil, newDecodeError(ErrCodeOpenMsg, SubcodeUnsupportedOptionalParam, "OpenMsgErr/UnsupportedOptionalParam", capOffset, len(capData))
			}
			code := capData[0]
			length := int(capData[1])
			if len(capData) < 2+length {
				return nil, newDecodeError(ErrCodeOpenMsg, SubcodeUnsupportedOptionalParam, "OpenMsgErr/UnsupportedOptionalParam", capOffset, len(capData))
			}
			value := append([]byte(nil), capData[2:2+length]...)
			m.Capabilities = append(m.Capabilities, Capability{Code: code, Value: value})
			capData = capData[2+length:]
			capOffset += 2 + length
		}
		opts = opts[2+paramLen:]
		offset += 2 + paramLen
	}
	return m, nil
}

func encodeOpen(m *OpenMessage) []byte {
	var capBytes []byte
	for _, c := range m.Capabilities {
		capBytes = append(capBytes, c.Code, byte(len(c.Value)))
		capBytes = append(capBytes, c.Value...)
	}
	var opts []byte
	if len(capBytes) > 0 {
		opts = append(opts, optParamCapabilities, byte(len(capBytes)))
		opts = append(opts, capBytes...)
	}
	body := make([]byte, 10, 10+len(opts))
	body[0] = m.Version
	binary.BigEndian.PutUint16(body[1:3], m.AS)
	binary.BigEndian.PutUint16(body[3:5], m.HoldTime)
	ip4 := m.Identifier.To4()
	if ip4 == nil {
		ip4 = make(net.IP, 4)
	}
	copy(body[5:9], ip4)
	body[9] = byte(len(opts))
	body = append(body, opts...)
	return body
}

func (*OpenMessage) MsgType() uint8 { return MsgTypeOpen }
