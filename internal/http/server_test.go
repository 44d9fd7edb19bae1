package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/route-beacon/bgp-control/internal/bgpfamily"
	"github.com/route-beacon/bgp-control/internal/rtargetmgr"
)

type mockCore struct {
	ready bool
}

func (m *mockCore) Ready() bool { return m.ready }

func newTestServer(core CoreStatus, rtargets *rtargetmgr.Manager) *Server {
	return NewServer(":0", core, rtargets, zap.NewNop())
}

func TestHealthz_AlwaysOK(t *testing.T) {
	s := newTestServer(&mockCore{ready: false}, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	s.handleHealthz(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status 'ok', got '%s'", body["status"])
	}
}

func TestReadyz_NilCoreIsReady(t *testing.T) {
	s := newTestServer(nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()

	s.handleReadyz(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200 with a nil core, got %d", w.Code)
	}
}

func TestReadyz_CoreNotReady(t *testing.T) {
	s := newTestServer(&mockCore{ready: false}, nil)
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()

	s.handleReadyz(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "not_ready" {
		t.Errorf("expected status 'not_ready', got '%v'", body["status"])
	}
}

func TestReadyz_CoreReady(t *testing.T) {
	s := newTestServer(&mockCore{ready: true}, nil)
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()

	s.handleReadyz(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func mustRT(t *testing.T, s string) bgpfamily.RouteTarget {
	t.Helper()
	rt, err := bgpfamily.RouteTargetFromString(s)
	if err != nil {
		t.Fatalf("RouteTargetFromString(%q): %v", s, err)
	}
	return rt
}

func TestRtargetGroups_EmptyManagerReturnsEmptyPage(t *testing.T) {
	mgr := rtargetmgr.NewManager()
	s := newTestServer(nil, mgr)

	req := httptest.NewRequest(http.MethodGet, "/rtarget-groups", nil)
	w := httptest.NewRecorder()
	s.handleRtargetGroups(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body rtargetGroupsResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.RouteTargets) != 0 || body.NextCursor != "" {
		t.Fatalf("expected an empty page, got %+v", body)
	}
}

func TestRtargetGroups_ListsEntriesAndFiltersBySearchString(t *testing.T) {
	mgr := rtargetmgr.NewManager()
	rtA := mustRT(t, "target:65000:1")
	rtB := mustRT(t, "target:65000:2")
	mgr.ImportTable("blue", []bgpfamily.RouteTarget{rtA})
	mgr.ImportTable("pink", []bgpfamily.RouteTarget{rtB})
	s := newTestServer(nil, mgr)

	req := httptest.NewRequest(http.MethodGet, "/rtarget-groups", nil)
	w := httptest.NewRecorder()
	s.handleRtargetGroups(w, req)

	var body rtargetGroupsResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.RouteTargets) != 2 {
		t.Fatalf("expected 2 entries, got %+v", body.RouteTargets)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/rtarget-groups?search_string=:2", nil)
	w2 := httptest.NewRecorder()
	s.handleRtargetGroups(w2, req2)

	var filtered rtargetGroupsResponse
	if err := json.NewDecoder(w2.Body).Decode(&filtered); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(filtered.RouteTargets) != 1 || filtered.RouteTargets[0].RouteTarget != "target:65000:2" {
		t.Fatalf("expected search_string to filter to target:65000:2, got %+v", filtered.RouteTargets)
	}
	if len(filtered.RouteTargets[0].Tables) != 1 || filtered.RouteTargets[0].Tables[0] != "pink" {
		t.Fatalf("expected pink table, got %+v", filtered.RouteTargets[0].Tables)
	}
}

func TestRtargetGroups_PageLimitAndCursor(t *testing.T) {
	mgr := rtargetmgr.NewManager()
	mgr.ImportTable("blue", []bgpfamily.RouteTarget{mustRT(t, "target:65000:1")})
	mgr.ImportTable("pink", []bgpfamily.RouteTarget{mustRT(t, "target:65000:2")})
	mgr.ImportTable("green", []bgpfamily.RouteTarget{mustRT(t, "target:65000:3")})
	s := newTestServer(nil, mgr)

	req := httptest.NewRequest(http.MethodGet, "/rtarget-groups?page_limit=1", nil)
	w := httptest.NewRecorder()
	s.handleRtargetGroups(w, req)

	var body rtargetGroupsResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.RouteTargets) != 1 {
		t.Fatalf("expected 1 entry, got %+v", body.RouteTargets)
	}
	if body.NextCursor == "" {
		t.Fatal("expected a non-empty next_cursor with more pages remaining")
	}
}
