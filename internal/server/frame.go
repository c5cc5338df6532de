package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/zot/ui-data/internal/record"
	"github.com/zot/ui-data/internal/registry"
	"github.com/zot/ui-data/internal/store"
	"github.com/zot/ui-data/internal/tree"
)

// Frame is one event as sent to websocket and long-poll clients.
type Frame struct {
	Event string           `json:"event"`
	Store string           `json:"store"`
	Type  string           `json:"type,omitempty"`
	Owner string           `json:"owner,omitempty"`
	Data  []*record.Record `json:"data,omitempty"`
	Error string           `json:"error,omitempty"`
	Time  time.Time        `json:"time"`
}

// storeFrame renders a store notification.
func storeFrame(e store.Event) Frame {
	f := Frame{
		Event: e.Name,
		Store: e.Store,
		Type:  e.Type,
		Owner: ownerName(e.Owner),
		Data:  e.Records,
		Time:  time.Now(),
	}
	if e.Err != nil {
		f.Error = e.Err.Error()
	}
	return f
}

// registryFrame renders a registry register or unregister notification.
func registryFrame(name, id string) Frame {
	return Frame{Event: name, Store: id, Time: time.Now()}
}

// ownerName identifies an event's owner for remote clients. Owners without a
// printable identity are left out.
func ownerName(owner any) string {
	switch o := owner.(type) {
	case nil:
		return ""
	case string:
		return o
	case tree.Node:
		return o.Path()
	case fmt.Stringer:
		return o.String()
	}
	return ""
}

// subscribe relays the events of store id to sink until the returned
// function is called. Store events follow whichever instance is registered
// under id, so a store that is disabled and enabled again keeps reporting.
func subscribe(reg *store.Registry, id string, sink func(Frame)) func() {
	var storeOff func()
	attach := func(s store.Store) {
		var offs []func()
		for _, name := range []string{store.EventRead, store.EventWrite, store.EventError, store.EventSelect} {
			offs = append(offs, s.On(name, func(e store.Event) { sink(storeFrame(e)) }))
		}
		storeOff = func() {
			for _, off := range offs {
				off()
			}
		}
	}
	detach := func() {
		if storeOff != nil {
			storeOff()
			storeOff = nil
		}
	}

	var mu sync.Mutex
	lock, unlock := mu.Lock, mu.Unlock

	regOff := reg.On(registry.EventRegister+"-"+id, func(s store.Store) {
		lock()
		detach()
		attach(s)
		unlock()
		sink(registryFrame(registry.EventRegister, id))
	})
	unregOff := reg.On(registry.EventUnregister+"-"+id, func(store.Store) {
		lock()
		detach()
		unlock()
		sink(registryFrame(registry.EventUnregister, id))
	})
	lock()
	if s, ok := reg.Find(id); ok {
		detach()
		attach(s)
	}
	unlock()

	return func() {
		regOff()
		unregOff()
		lock()
		detach()
		unlock()
	}
}
