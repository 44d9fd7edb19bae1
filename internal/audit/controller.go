package audit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/route-beacon/bgp-control/internal/bgpfamily"
	"github.com/route-beacon/bgp-control/internal/rib"
)

// tableSub is the bookkeeping one subscribed table needs to tear itself
// down cleanly: the listener to unregister, the events channel the
// listener feeds, and the cancel for that table's Pipeline goroutine.
type tableSub struct {
	table      *rib.Table
	listenerID rib.ListenerID
	events     chan *Event
	cancel     context.CancelFunc
}

// Controller satisfies the same InstanceAdded/InstanceRemoved shape
// internal/bgpserver's InstanceObserver expects, attaching one Pipeline per
// routing-instance table as instances are created and torn down. It never
// imports internal/bgpserver; the composition root registers it by
// structural typing.
type Controller struct {
	writer        flusher
	batchSize     int
	flushInterval time.Duration
	storeRaw      bool
	logger        *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.Mutex
	subs map[string]*tableSub
}

func NewController(writer flusher, batchSize int, flushInterval time.Duration, storeRaw bool, logger *zap.Logger) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		writer:        writer,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		storeRaw:      storeRaw,
		logger:        logger,
		ctx:           ctx,
		cancel:        cancel,
		subs:          make(map[string]*tableSub),
	}
}

// InstanceAdded subscribes one Pipeline per table in the new instance.
func (c *Controller) InstanceAdded(name string, tables map[bgpfamily.Family]*rib.Table) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for fam, t := range tables {
		key := name + "." + fam.String()
		events := make(chan *Event, 1024)
		subCtx, cancel := context.WithCancel(c.ctx)

		pipeline := NewPipeline(c.writer, c.batchSize, c.flushInterval, c.logger.With(zap.String("table", key)))
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			pipeline.Run(subCtx, events)
		}()

		listenerID := Subscribe(t, key, fam, events, c.storeRaw)
		c.subs[key] = &tableSub{table: t, listenerID: listenerID, events: events, cancel: cancel}
	}
}

// InstanceRemoved unregisters the listener for every table in the departing
// instance and lets its Pipeline flush whatever it still has queued.
// UnregisterListener blocks until any in-flight notify returns, so closing
// events immediately after is safe: nothing can still be sending on it.
func (c *Controller) InstanceRemoved(name string, tables map[bgpfamily.Family]*rib.Table) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for fam := range tables {
		key := name + "." + fam.String()
		sub, ok := c.subs[key]
		if !ok {
			continue
		}
		sub.table.UnregisterListener(sub.listenerID)
		close(sub.events)
		sub.cancel()
		delete(c.subs, key)
	}
}

// Close stops every Pipeline goroutine, waiting for final flushes to
// complete (or the pipelines' own shutdown-flush timeout to expire).
func (c *Controller) Close() {
	c.cancel()
	c.wg.Wait()
}
