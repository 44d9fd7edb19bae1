package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/route-beacon/bgp-control/internal/attrdb"
	"github.com/route-beacon/bgp-control/internal/bgpfamily"
	"github.com/route-beacon/bgp-control/internal/bgpproto"
	"github.com/route-beacon/bgp-control/internal/rib"
)

// flusher is the subset of *Writer a Pipeline depends on, broken out so
// tests can exercise the batch/ticker logic without a live Postgres pool.
type flusher interface {
	FlushBatch(ctx context.Context, events []*Event) (int64, error)
}

// Pipeline batches Events produced by table listeners and flushes them to a
// Writer on a size or time trigger. Controller runs one Pipeline per
// subscribed table; all of them share the same Writer.
type Pipeline struct {
	writer        flusher
	batchSize     int
	flushInterval time.Duration
	logger        *zap.Logger
}

func NewPipeline(writer flusher, batchSize int, flushInterval time.Duration, logger *zap.Logger) *Pipeline {
	return &Pipeline{writer: writer, batchSize: batchSize, flushInterval: flushInterval, logger: logger}
}

// Run drains events until ctx is cancelled or the channel is closed,
// flushing whichever happens first among: the batch reaching batchSize, the
// flush ticker firing, or the channel draining at shutdown.
func (p *Pipeline) Run(ctx context.Context, events <-chan *Event) {
	var batch []*Event
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(batch) > 0 {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				p.flush(shutdownCtx, batch)
				cancel()
			}
			return

		case e, ok := <-events:
			if !ok {
				if len(batch) > 0 {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					p.flush(shutdownCtx, batch)
					cancel()
				}
				return
			}
			batch = append(batch, e)
			if len(batch) >= p.batchSize {
				if p.flush(ctx, batch) {
					batch = nil
				}
			}
			// Cap memory if flushes keep failing: drop rather than grow
			// unbounded. Dropped events are not retried; the ledger is
			// best-effort by design.
			if len(batch) >= p.batchSize*10 {
				p.logger.Error("dropping oversized audit batch after repeated flush failures",
					zap.Int("dropped_events", len(batch)),
				)
				batch = nil
			}

		case <-ticker.C:
			if len(batch) > 0 {
				if p.flush(ctx, batch) {
					batch = nil
				}
			}
		}
	}
}

// flush writes batch and reports whether the write succeeded; a failed
// batch stays with the caller to be retried on the next trigger.
func (p *Pipeline) flush(ctx context.Context, batch []*Event) bool {
	inserted, err := p.writer.FlushBatch(ctx, batch)
	if err != nil {
		p.logger.Warn("audit batch flush failed", zap.Error(err))
		return false
	}
	p.logger.Debug("audit batch flushed",
		zap.Int("batch_size", len(batch)),
		zap.Int64("inserted", inserted),
		zap.Int64("deduped", int64(len(batch))-inserted),
	)
	return true
}

// originName renders the well-known ORIGIN values as lower-case names,
// falling back to "unknown" for anything else.
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

// eventFromNotification converts a table Notification into an audit Event.
// A nil best path (deleted route, or a withdrawal this listener never saw
// established) produces a "withdraw" Event carrying only the prefix.
func eventFromNotification(tableName string, fam bgpfamily.Family, n rib.Notification, storeRaw bool) *Event {
	route := n.Route
	best := route.BestPath()

	action := "update"
	if route.IsDeleted() || best == nil {
		action = "withdraw"
	}

	e := &Event{
		Table:  tableName,
		Prefix: route.Prefix.String(),
		Action: action,
	}

	if best != nil {
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
		if storeRaw {
			e.RawUpdate = buildRawUpdate(fam, route.Prefix, spec, false)
		}
	} else if storeRaw {
		e.RawUpdate = buildRawUpdate(fam, route.Prefix, attrdb.BgpAttrSpec{}, true)
	}

	return e
}

// Subscribe registers a listener on table that converts every notification
// into an Event and sends it to out. It returns the ListenerID so the
// caller can UnregisterListener on teardown. out must have enough buffer (or
// a drain goroutine) to keep up with table churn; Subscribe never blocks the
// table's partition goroutines beyond the listener callback itself, so a
// full out channel will back-pressure the RIB the same way any other
// listener would.
func Subscribe(table *rib.Table, tableName string, fam bgpfamily.Family, out chan<- *Event, storeRaw bool) rib.ListenerID {
	return table.RegisterListener(func(n rib.Notification) {
		e := eventFromNotification(tableName, fam, n, storeRaw)
		out <- e
	})
}

// buildRawUpdate renders the wire bytes an UPDATE carrying spec for prefix
// would have, the same codec path internal/bgpserver uses to decode inbound
// UPDATEs (rib.EncodeAttrs plus, for every family but inet, MP_REACH/
// MP_UNREACH rather than native NLRI/WithdrawnRoutes). Returns nil if the
// message would not fit a single UPDATE.
func buildRawUpdate(fam bgpfamily.Family, prefix bgpfamily.Prefix, spec attrdb.BgpAttrSpec, withdrawn bool) []byte {
	buf := make([]byte, 4096)

	if fam == bgpfamily.FamilyInet {
		inetPrefix, ok := prefix.(bgpfamily.InetPrefix)
		if !ok {
			return nil
		}
		msg := &bgpproto.UpdateMessage{}
		if withdrawn {
			msg.WithdrawnRoutes = []bgpfamily.InetPrefix{inetPrefix}
		} else {
			msg.Attributes = rib.EncodeAttrs(spec)
			msg.NLRI = []bgpfamily.InetPrefix{inetPrefix}
		}
		n := bgpproto.Encode(msg, buf)
		if n <= 0 {
			return nil
		}
		return append([]byte(nil), buf[:n]...)
	}

	afi, safi := fam.AfiSafi()
	if withdrawn {
		mp := bgpproto.BuildMPUnreachNLRI(bgpproto.MPUnreachNLRI{
			AFI: uint16(afi), SAFI: uint8(safi), Prefixes: []bgpfamily.Prefix{prefix},
		})
		msg := &bgpproto.UpdateMessage{
			Attributes: []bgpproto.Attribute{{Flags: 0x80, Code: bgpproto.AttrTypeMPUnreachNLRI, Value: mp}},
		}
		n := bgpproto.Encode(msg, buf)
		if n <= 0 {
			return nil
		}
		return append([]byte(nil), buf[:n]...)
	}

	var nextHop []byte
	if spec.NextHop != nil {
		nextHop = spec.NextHop.To4()
		if nextHop == nil {
			nextHop = spec.NextHop.To16()
		}
	}
	mp := bgpproto.BuildMPReachNLRI(bgpproto.MPReachNLRI{
		AFI: uint16(afi), SAFI: uint8(safi), NextHop: nextHop, Prefixes: []bgpfamily.Prefix{prefix},
	})

	attrs := rib.EncodeAttrs(spec)
	withoutNextHop := attrs[:0:0]
	for _, a := range attrs {
		if a.Code == bgpproto.AttrTypeNextHop {
			continue
		}
		withoutNextHop = append(withoutNextHop, a)
	}
	withoutNextHop = append(withoutNextHop, bgpproto.Attribute{Flags: 0x80, Code: bgpproto.AttrTypeMPReachNLRI, Value: mp})

	msg := &bgpproto.UpdateMessage{Attributes: withoutNextHop}
	n := bgpproto.Encode(msg, buf)
	if n <= 0 {
		return nil
	}
	return append([]byte(nil), buf[:n]...)
}
