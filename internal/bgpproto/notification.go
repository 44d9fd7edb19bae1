package bgpproto

// NotificationMessage is a decoded/to-be-encoded BGP NOTIFICATION.
type NotificationMessage struct {
	Code    uint8
	Subcode uint8
	Data    []byte
}

func (*NotificationMessage) MsgType() uint8 { return MsgTypeNotification }

func decodeNotification(body []byte) (*NotificationMessage, error) {
	if len(body) < 2 {
		return nil, newDecodeError(ErrCodeMsgHeader, SubcodeBadMsgLength, "MsgHdrErr/BadMsgLength", 19, len(body))
	}
	return &NotificationMessage{
		Code:    body[0],
		Subcode: body[1],
		Data:    append([]byte(nil), body[2:]...),
	}, nil
}

func encodeNotification(m *NotificationMessage) []byte {
	body := make([]byte, 2+len(m.Data))
	body[0] = m.Code
	body[1] = m.Subcode
	copy(body[2:], m.Data)
	return body
}

// FromDecodeError converts a DecodeError's classification into the
// NOTIFICATION that would be sent to close the session.
func FromDecodeError(err *DecodeError) *NotificationMessage {
	return &NotificationMessage{Code: err.Code, Subcode: err.Subcode}
}

// errString maps (code, subcode) pairs to the human names used in logging,
// mirroring how error_subcode -> name tables read in wire protocol stacks.
var errString = map[[2]uint8]string{
	{ErrCodeMsgHeader, SubcodeConnNotSync}:  "Connection Not Synchronized",
	{ErrCodeMsgHeader, SubcodeBadMsgLength}: "Bad Message Length",
	{ErrCodeMsgHeader, SubcodeBadMsgType}:   "Bad Message Type",
	{ErrCodeOpenMsg, SubcodeUnsupportedVersion}:       "Unsupported Version Number",
	{ErrCodeOpenMsg, SubcodeBadPeerAS}:                "Bad Peer AS",
	{ErrCodeOpenMsg, SubcodeBadBgpIdentifier}:         "Bad BGP Identifier",
	{ErrCodeOpenMsg, SubcodeUnsupportedOptionalParam}: "Unsupported Optional Parameter",
	{ErrCodeOpenMsg, SubcodeUnacceptableHoldTime}:     "Unacceptable Hold Time",
	{ErrCodeUpdateMsg, SubcodeMalformedAttrList}:               "Malformed Attribute List",
	{ErrCodeUpdateMsg, SubcodeUnrecognizedWellKnownAttrib}:     "Unrecognized Well-known Attribute",
	{ErrCodeUpdateMsg, SubcodeMissingWellKnownAttrib}:          "Missing Well-known Attribute",
	{ErrCodeUpdateMsg, SubcodeAttribFlagsError}:                "Attribute Flags Error",
	{ErrCodeUpdateMsg, SubcodeAttribLengthError}:                "Attribute Length Error",
	{ErrCodeUpdateMsg, SubcodeInvalidOriginAttrib}:              "Invalid Origin Attribute",
	{ErrCodeUpdateMsg, SubcodeInvalidNextHopAttrib}:             "Invalid Next Hop Attribute",
	{ErrCodeUpdateMsg, SubcodeOptionalAttribError}:              "Optional Attribute Error",
	{ErrCodeUpdateMsg, SubcodeInvalidNetworkField}:              "Invalid Network Field",
	{ErrCodeUpdateMsg, SubcodeMalformedASPath}:                  "Malformed AS Path",
}

// ToString maps a (code, subcode) pair to its human name, falling back to a
// generic label for pairs not in the table (e.g. code-only Cease variants).
func ToString(code, subcode uint8) string {
	if s, ok := errString[[2]uint8{code, subcode}]; ok {
		return s
	}
	return "Unknown Error"
}
