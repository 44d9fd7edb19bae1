package bgpproto

import (
	"encoding/binary"

	"github.com/route-beacon/bgp-control/internal/bgpfamily"
)

// UpdateMessage is a decoded/to-be-encoded BGP UPDATE. WithdrawnRoutes and
// NLRI carry inet prefixes: the session's default family
// ("family inferred from session context — inet by default; other families
// carried in MP-UNREACH"). Other families travel only inside the
// MP_REACH/MP_UNREACH attributes, already present in Attributes.
type UpdateMessage struct {
	WithdrawnRoutes []bgpfamily.InetPrefix
	Attributes      []Attribute
	NLRI            []bgpfamily.InetPrefix
}

func (*UpdateMessage) MsgType() uint8 { return MsgTypeUpdate }

func decodeUpdate(body []byte) (*UpdateMessage, error) {
	if len(body) < 2 {
		return nil, newDecodeError(ErrCodeUpdateMsg, SubcodeMalformedAttrList, "UpdateMsgErr/MalformedAttributeList", headerLen, len(body))
	}
	offset := headerLen
	withdrawnLen := int(binary.BigEndian.Uint16(body[0:2]))
	if len(body) < 2+withdrawnLen {
		return nil, newDecodeError(ErrCodeUpdateMsg, SubcodeInvalidNetworkField, "UpdateMsgErr/InvalidNetworkField", offset, len(body))
	}
	withdrawnBytes := body[2 : 2+withdrawnLen]
	rest := body[2+withdrawnLen:]
	offset += 2 + withdrawnLen

	m := &UpdateMessage{}
	for len(withdrawnBytes) > 0 {
		p, n, err := bgpfamily.InetFromWire(withdrawnBytes)
		if err != nil {
			return nil, newDecodeError(ErrCodeUpdateMsg, SubcodeInvalidNetworkField, "UpdateMsgErr/InvalidNetworkField", offset, len(withdrawnBytes))
		}
		m.WithdrawnRoutes = append(m.WithdrawnRoutes, p)
		withdrawnBytes = withdrawnBytes[n:]
		offset += n
	}

	if len(rest) < 2 {
		return nil, newDecodeError(ErrCodeUpdateMsg, SubcodeMalformedAttrList, "UpdateMsgErr/MalformedAttributeList", offset, len(rest))
	}
	attrLen := int(binary.BigEndian.Uint16(rest[0:2]))
	offset += 2
	if len(rest) < 2+attrLen {
		return nil, newDecodeError(ErrCodeUpdateMsg, SubcodeMalformedAttrList, "UpdateMsgErr/MalformedAttributeList", offset, len(rest)-2)
	}
	attrBytes := rest[2 : 2+attrLen]
	nlriBytes := rest[2+attrLen:]

	attrs, err := parseAttributes(attrBytes, offset)
	if err != nil {
		return nil, err
	}
	m.Attributes = attrs
	offset += attrLen

	for len(nlriBytes) > 0 {
		p, n, err := bgpfamily.InetFromWire(nlriBytes)
		if err != nil {
			return nil, newDecodeError(ErrCodeUpdateMsg, SubcodeInvalidNetworkField, "UpdateMsgErr/InvalidNetworkField", offset, len(nlriBytes))
		}
		m.NLRI = append(m.NLRI, p)
		nlriBytes = nlriBytes[n:]
		offset += n
	}
	return m, nil
}

func encodeUpdate(m *UpdateMessage) []byte {
	var withdrawn []byte
	for _, p := range m.WithdrawnRoutes {
		withdrawn = append(withdrawn, p.ToWire()...)
	}
	attrBytes := encodeAttributes(m.Attributes)
	var nlri []byte
	for _, p := range m.NLRI {
		nlri = append(nlri, p.ToWire()...)
	}

	out := make([]byte, 0, 4+len(withdrawn)+len(attrBytes)+len(nlri))
	out = append(out, byte(len(withdrawn)>>8), byte(len(withdrawn)))
	out = append(out, withdrawn...)
	out = append(out, byte(len(attrBytes)>>8), byte(len(attrBytes)))
	out = append(out, attrBytes...)
	out = append(out, nlri...)
	return out
}
