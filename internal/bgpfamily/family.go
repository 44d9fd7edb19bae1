// Package bgpfamily implements the canonical in-memory and wire forms for
// the prefix families the routing core understands: inet, inet6, l3vpn
// (inet-vpn), inet6vpn, evpn, ermvpn, mvpn and rtarget.
package bgpfamily

import "fmt"

// AFI identifies an address family per RFC 4760.
type AFI uint16

const (
	AFIIPv4 AFI = 1
	AFIIPv6 AFI = 2
	AFIL2VPN AFI = 25
)

// SAFI identifies a subsequent address family per RFC 4760.
type SAFI uint8

const (
	SAFIUnicast   SAFI = 1
	SAFIMulticast SAFI = 2
	SAFIMplsVPN   SAFI = 128
	SAFIEvpn      SAFI = 70
	SAFIErmVPN    SAFI = 9
	SAFIMVPN      SAFI = 5
	SAFIRTarget   SAFI = 132
)

// Family enumerates the eight prefix families the table layer supports.
type Family int

const (
	FamilyInet Family = iota
	FamilyInet6
	FamilyL3VPN
	FamilyInet6VPN
	FamilyEvpn
	FamilyErmVPN
	FamilyMVPN
	FamilyRTarget
)

func (f Family) String() string {
	switch f {
	case FamilyInet:
		return "inet"
	case FamilyInet6:
		return "inet6"
	case FamilyL3VPN:
		return "l3vpn"
	case FamilyInet6VPN:
		return "inet6vpn"
	case FamilyEvpn:
		return "evpn"
	case FamilyErmVPN:
		return "ermvpn"
	case FamilyMVPN:
		return "mvpn"
	case FamilyRTarget:
		return "rtarget"
	default:
		return "unknown"
	}
}

// AfiSafi returns the (AFI, SAFI) pair a family is carried under in MP_REACH/
// MP_UNREACH NLRI.
func (f Family) AfiSafi() (AFI, SAFI) {
	switch f {
	case FamilyInet:
		return AFIIPv4, SAFIUnicast
	case FamilyInet6:
		return AFIIPv6, SAFIUnicast
	case FamilyL3VPN:
		return AFIIPv4, SAFIMplsVPN
	case FamilyInet6VPN:
		return AFIIPv6, SAFIMplsVPN
	case FamilyEvpn:
		return AFIL2VPN, SAFIEvpn
	case FamilyErmVPN:
		return AFIIPv4, SAFIErmVPN
	case FamilyMVPN:
		return AFIIPv4, SAFIMVPN
	case FamilyRTarget:
		return AFIIPv4, SAFIRTarget
	default:
		return 0, 0
	}
}

// FamilyFromAfiSafi inverts Family.AfiSafi; ok is false for unsupported pairs.
func FamilyFromAfiSafi(afi AFI, safi SAFI) (Family, bool) {
	switch {
	case afi == AFIIPv4 && safi == SAFIUnicast:
		return FamilyInet, true
	case afi == AFIIPv6 && safi == SAFIUnicast:
		return FamilyInet6, true
	case afi == AFIIPv4 && safi == SAFIMplsVPN:
		return FamilyL3VPN, true
	case afi == AFIIPv6 && safi == SAFIMplsVPN:
		return FamilyInet6VPN, true
	case afi == AFIL2VPN && safi == SAFIEvpn:
		return FamilyEvpn, true
	case afi == AFIIPv4 && safi == SAFIErmVPN:
		return FamilyErmVPN, true
	case afi == AFIIPv4 && safi == SAFIMVPN:
		return FamilyMVPN, true
	case afi == AFIIPv4 && safi == SAFIRTarget:
		return FamilyRTarget, true
	default:
		return 0, false
	}
}

// ParseError reports a prefix-parse failure without aborting the caller.
type ParseError struct {
	Family Family
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("bgpfamily: %s: invalid %s prefix %q: %s", e.Family, e.Family, e.Input, e.Reason)
}

func newParseError(f Family, input, reason string) error {
	return &ParseError{Family: f, Input: input, Reason: reason}
}
