package rib

// selectBestPath runs the ordered tiebreak chain over candidate paths.
// paths must be non-empty; callers with an empty path list should treat
// the route as deleted instead of calling this.
func selectBestPath(paths []*Path) *Path {
	if len(paths) == 0 {
		return nil
	}
	best := paths[0]
	for _, p := range paths[1:] {
		if better(p, best) {
			best = p
		}
	}
	return best
}

// better reports whether a beats b under the ordered tiebreak list. Each
// comparator returns -1/0/1 ("a wins"/"tie"/"b wins"); the first
// non-tie decides.
func better(a, b *Path) bool {
	cmps := []func(a, b *Path) int{
		cmpLocalPref,
		cmpASPathLength,
		cmpOrigin,
		cmpMED,
		cmpEBGPOverIBGP,
		cmpRouterID,
		cmpPathID,
	}
	for _, cmp := range cmps {
		switch cmp(a, b) {
		case -1:
			return true
		case 1:
			return false
		}
	}
	return false
}

// cmpLocalPref: higher local-pref wins. A path without LOCAL_PREF counts
// as 100, whether eBGP or iBGP; a path with no attribute set counts as 0.
func cmpLocalPref(a, b *Path) int {
	la, lb := effectiveLocalPref(a), effectiveLocalPref(b)
	if la == lb {
		return 0
	}
	if la > lb {
		return -1
	}
	return 1
}

func effectiveLocalPref(p *Path) uint32 {
	if p.Attr == nil {
		return 0
	}
	if p.Attr.Spec.HasLocalPref {
		return p.Attr.Spec.LocalPref
	}
	return 100
}

// cmpASPathLength: shorter AS-path wins.
func cmpASPathLength(a, b *Path) int {
	la, lb := asPathLength(a), asPathLength(b)
	if la == lb {
		return 0
	}
	if la < lb {
		return -1
	}
	return 1
}

func asPathLength(p *Path) int {
	if p.Attr == nil || p.Attr.Spec.ASPath == nil {
		return 0
	}
	return p.Attr.Spec.ASPath.Spec.Length()
}

// cmpOrigin: lower origin wins (IGP=0 < EGP=1 < INCOMPLETE=2).
func cmpOrigin(a, b *Path) int {
	oa, ob := uint8(0), uint8(0)
	if a.Attr != nil {
		oa = a.Attr.Spec.Origin
	}
	if b.Attr != nil {
		ob = b.Attr.Spec.Origin
	}
	if oa == ob {
		return 0
	}
	if oa < ob {
		return -1
	}
	return 1
}

// cmpMED: lower MED wins, but only compared between paths from the same
// neighbor AS — otherwise the comparison is a tie and falls through to the
// next tiebreak.
func cmpMED(a, b *Path) int {
	if a.NeighborAS != b.NeighborAS {
		return 0
	}
	ma, mb := effectiveMED(a), effectiveMED(b)
	if ma == mb {
		return 0
	}
	if ma < mb {
		return -1
	}
	return 1
}

func effectiveMED(p *Path) uint32 {
	if p.Attr != nil && p.Attr.Spec.HasMED {
		return p.Attr.Spec.MED
	}
	return 0
}

// cmpEBGPOverIBGP: eBGP-learned paths are preferred over iBGP-learned ones.
func cmpEBGPOverIBGP(a, b *Path) int {
	if a.IsEBGP == b.IsEBGP {
		return 0
	}
	if a.IsEBGP {
		return -1
	}
	return 1
}

// cmpRouterID: lower originating router-id wins.
func cmpRouterID(a, b *Path) int {
	if a.PeerRouterID == b.PeerRouterID {
		return 0
	}
	if a.PeerRouterID < b.PeerRouterID {
		return -1
	}
	return 1
}

// cmpPathID: lower path-id wins; final deterministic tiebreak.
func cmpPathID(a, b *Path) int {
	if a.PathID == b.PathID {
		return 0
	}
	if a.PathID < b.PathID {
		return -1
	}
	return 1
}
