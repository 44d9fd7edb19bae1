package sched

import "testing"

func TestRegistryLocateReturnsSameRibOutForIdenticalPolicy(t *testing.T) {
	reg := NewRegistry()
	p := ExportPolicy{Encoding: EncodingBGP, Type: PeerTypeEBGP, ASNumber: 65001}
	a := reg.Locate("inet.0", p)
	b := reg.Locate("inet.0", p)
	if a != b {
		t.Fatalf("expected Locate to return the same RibOut for identical (table, policy)")
	}
}

func TestRegistryLocateDistinguishesAnyFieldDifference(t *testing.T) {
	reg := NewRegistry()
	base := ExportPolicy{Encoding: EncodingBGP, Type: PeerTypeEBGP, ASNumber: 65001}
	a := reg.Locate("inet.0", base)

	variant := base
	variant.LLGREnabled = true
	b := reg.Locate("inet.0", variant)
	if a == b {
		t.Fatalf("expected a distinct RibOut when LLGREnabled differs")
	}

	c := reg.Locate("inet6.0", base)
	if a == c {
		t.Fatalf("expected a distinct RibOut for a different table")
	}
}
