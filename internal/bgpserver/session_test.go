package bgpserver

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/route-beacon/bgp-control/internal/attrdb"
	"github.com/route-beacon/bgp-control/internal/bgpfamily"
	"github.com/route-beacon/bgp-control/internal/bgpproto"
	"github.com/route-beacon/bgp-control/internal/config"
	"github.com/route-beacon/bgp-control/internal/rib"
)

type fakeConn struct {
	sent   chan []byte
	accept bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{sent: make(chan []byte, 64), accept: true}
}

func (c *fakeConn) SendUpdate(data []byte) bool {
	if !c.accept {
		return false
	}
	c.sent <- data
	return true
}

func newEstablishedServer(t *testing.T, families []string) (*Server, *fakeConn) {
	t.Helper()
	s := NewServer(testConfig(), zap.NewNop())
	s.ApplyConfigDelta([]config.ConfigDelta{
		{Kind: config.DeltaAdd, Object: config.ObjectRoutingInstance, RoutingInstance: &config.RoutingInstanceConfig{Name: "default"}},
		{Kind: config.DeltaAdd, Object: config.ObjectPeer, Peer: &config.PeerConfig{
			Instance: "default", Name: "peer-1", ASNumber: 65001, Families: families,
		}},
	})
	conn := newFakeConn()
	s.PeerStateChange("peer-1", PeerEstablished)
	s.AttachPeer("peer-1", conn)
	return s, conn
}

func TestEstablishPeer_RegistersEveryConfiguredFamily(t *testing.T) {
	s, _ := newEstablishedServer(t, []string{"inet", "inet6"})

	s.mu.Lock()
	pe := s.peers["peer-1"]
	s.mu.Unlock()

	if len(pe.ribouts) != 2 {
		t.Fatalf("ribouts = %+v, want 2 families registered", pe.ribouts)
	}
	if _, ok := pe.ribouts[bgpfamily.FamilyInet]; !ok {
		t.Error("missing inet RibOut")
	}
	if _, ok := pe.ribouts[bgpfamily.FamilyInet6]; !ok {
		t.Error("missing inet6 RibOut")
	}
	if pe.state != PeerEstablished {
		t.Errorf("state = %v, want Established", pe.state)
	}
}

func TestPeerStateChange_IdleTearsDownRegistrations(t *testing.T) {
	s, _ := newEstablishedServer(t, []string{"inet"})
	s.PeerStateChange("peer-1", PeerIdle)

	s.mu.Lock()
	pe := s.peers["peer-1"]
	s.mu.Unlock()

	if len(pe.ribouts) != 0 {
		t.Fatalf("ribouts = %+v, want none after Idle", pe.ribouts)
	}
	if pe.state != PeerIdle {
		t.Errorf("state = %v, want Idle", pe.state)
	}
}

func TestPeerReceive_InetUpdateDeliversToEstablishedReceiver(t *testing.T) {
	s, _ := newEstablishedServer(t, []string{"inet"})

	asPathDB := attrdb.NewAsPathDB()
	spec := attrdb.BgpAttrSpec{
		Origin: attrdb.OriginIGP,
		ASPath: asPathDB.Locate(attrdb.AsPathSpec{Segments: []attrdb.AsPathSegment{
			{Type: attrdb.AsPathSegmentSequence, ASNs: []uint32{65001}},
		}}),
		NextHop: []byte{10, 0, 0, 2},
	}

	prefix, err := bgpfamily.InetFromString("10.1.1.0/24")
	if err != nil {
		t.Fatalf("InetFromString: %v", err)
	}

	msg := &bgpproto.UpdateMessage{
		Attributes: rib.EncodeAttrs(spec),
		NLRI:       []bgpfamily.InetPrefix{prefix},
	}
	buf := make([]byte, 4096)
	n := bgpproto.Encode(msg, buf)
	if n <= 0 {
		t.Fatalf("Encode failed: n=%d", n)
	}

	if err := s.PeerReceive("peer-1", buf[:n]); err != nil {
		t.Fatalf("PeerReceive: %v", err)
	}

	s.mu.Lock()
	inst := s.instances["default"]
	s.mu.Unlock()
	table := inst.tables[bgpfamily.FamilyInet]

	deadline := time.After(time.Second)
	for {
		route, _, ok := table.Lookup(prefix)
		if ok && route.BestPath() != nil {
			return
		}
		select {
		case <-deadline:
			t.Fatal("route never appeared in the inet table after PeerReceive")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestPeerReceive_NonUpdateMessageIsANoOp(t *testing.T) {
	s, _ := newEstablishedServer(t, []string{"inet"})
	buf := make([]byte, 4096)
	n := bgpproto.Encode(bgpproto.KeepaliveMessage{}, buf)
	if err := s.PeerReceive("peer-1", buf[:n]); err != nil {
		t.Fatalf("PeerReceive(keepalive): %v", err)
	}
}

func TestSendReady_UnknownPeerIsANoOp(t *testing.T) {
	s := NewServer(testConfig(), zap.NewNop())
	s.SendReady("nobody")
}
