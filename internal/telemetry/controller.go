package telemetry

import (
	"sync"

	"github.com/route-beacon/bgp-control/internal/bgpfamily"
	"github.com/route-beacon/bgp-control/internal/rib"
)

// Controller satisfies the same InstanceAdded/InstanceRemoved shape
// internal/bgpserver's InstanceObserver expects, attaching the Publisher to
// every routing-instance table as instances are created and torn down.
type Controller struct {
	publisher *Publisher

	mu     sync.Mutex
	subs   map[string]rib.ListenerID
	tables map[string]*rib.Table
}

func NewController(publisher *Publisher) *Controller {
	return &Controller{
		publisher: publisher,
		subs:      make(map[string]rib.ListenerID),
		tables:    make(map[string]*rib.Table),
	}
}

func (c *Controller) InstanceAdded(name string, tables map[bgpfamily.Family]*rib.Table) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for fam, t := range tables {
		key := name + "." + fam.String()
		c.subs[key] = Subscribe(c.publisher, t, key)
		c.tables[key] = t
	}
}

func (c *Controller) InstanceRemoved(name string, tables map[bgpfamily.Family]*rib.Table) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for fam := range tables {
		key := name + "." + fam.String()
		id, ok := c.subs[key]
		if !ok {
			continue
		}
		if t, ok := c.tables[key]; ok {
			t.UnregisterListener(id)
		}
		delete(c.subs, key)
		delete(c.tables, key)
	}
}
