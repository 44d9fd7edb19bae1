package telemetry

import (
	"context"

	"github.com/route-beacon/bgp-control/internal/attrdb"
	"github.com/route-beacon/bgp-control/internal/rib"
)

func originName(origin uint8) string {
	switch origin {
	case attrdb.OriginIGP:
		return "igp"
	case attrdb.OriginEGP:
		return "egp"
	case attrdb.OriginIncomplete:
		return "incomplete"
	default:
		return "unknown"
	}
}

func eventFromNotification(tableName string, n rib.Notification) *Event {
	route := n.Route
	best := route.BestPath()

	action := "update"
	if route.IsDeleted() || best == nil {
		action = "withdraw"
	}

	e := &Event{Table: tableName, Prefix: route.Prefix.String(), Action: action}
	if best == nil {
		return e
	}

	e.PeerRouterID = best.PeerRouterID
	spec := best.Attr.Spec
	e.Origin = originName(spec.Origin)
	if spec.ASPath != nil {
		e.ASPath = spec.ASPath.Spec.String()
	}
	if spec.NextHop != nil {
		e.NextHop = spec.NextHop.String()
	}
	if spec.HasLocalPref {
		e.LocalPref = spec.LocalPref
	}
	if spec.HasMED {
		e.MED = spec.MED
	}
	return e
}

// Subscribe registers a listener on table that publishes every best-path
// change to p. The returned ListenerID should be passed to
// table.UnregisterListener on teardown.
func Subscribe(p *Publisher, table *rib.Table, tableName string) rib.ListenerID {
	return table.RegisterListener(func(n rib.Notification) {
		e := eventFromNotification(tableName, n)
		p.Publish(context.Background(), e)
	})
}
