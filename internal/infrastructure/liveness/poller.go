// Package liveness watches the list of hosts registered with the DFS
// (distributed file system) that backs remote-pipe data, and tells the
// coordinator when one appears or disappears. The DFS's own membership
// protocol is out of scope; this package only polls whatever Source the
// caller wires in and diffs the result against what it last saw.
package liveness

import (
	"context"
	"log"
	"sync"

	"github.com/robfig/cron/v3"
)

// Source returns the hosts currently registered with the DFS. Implementations
// typically wrap the DFS's own membership API or a service-discovery client.
type Source interface {
	Hosts(ctx context.Context) ([]string, error)
}

// Poller runs Source.Hosts on a cron schedule and calls onAdded/onRemoved for
// any host that entered or left the set since the previous poll.
type Poller struct {
	source    Source
	onAdded   func(addr string)
	onRemoved func(addr string)

	cron *cron.Cron

	mu   sync.Mutex
	seen map[string]struct{}
}

// NewPoller builds a Poller. Its scheduler is created with cron.WithSeconds,
// so the spec later passed to Start is a robfig/cron v3 expression with a
// leading seconds field (e.g. "*/5 * * * * *").
func NewPoller(source Source, onAdded, onRemoved func(addr string)) *Poller {
	return &Poller{
		source:    source,
		onAdded:   onAdded,
		onRemoved: onRemoved,
		cron:      cron.New(cron.WithSeconds()),
		seen:      make(map[string]struct{}),
	}
}

// Start schedules the poll loop at spec and begins running it. Stop
// terminates it.
func (p *Poller) Start(spec string) error {
	_, err := p.cron.AddFunc(spec, p.poll)
	if err != nil {
		return err
	}
	p.cron.Start()
	return nil
}

// Stop halts the scheduler and waits for any in-flight poll to finish.
func (p *Poller) Stop() {
	ctx := p.cron.Stop()
	<-ctx.Done()
}

// PollOnce runs a single poll pass synchronously, useful for tests and for
// seeding p.seen before Start so the first scheduled tick doesn't report
// every already-running worker as newly added.
func (p *Poller) PollOnce(ctx context.Context) error {
	hosts, err := p.source.Hosts(ctx)
	if err != nil {
		return err
	}
	p.diff(hosts)
	return nil
}

func (p *Poller) poll() {
	if err := p.PollOnce(context.Background()); err != nil {
		log.Printf("liveness: poll failed: %v", err)
	}
}

func (p *Poller) diff(hosts []string) {
	p.mu.Lock()
	current := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		current[h] = struct{}{}
	}

	var added, removed []string
	for h := range current {
		if _, ok := p.seen[h]; !ok {
			added = append(added, h)
		}
	}
	for h := range p.seen {
		if _, ok := current[h]; !ok {
			removed = append(removed, h)
		}
	}
	p.seen = current
	p.mu.Unlock()

	for _, h := range added {
		if p.onAdded != nil {
			p.onAdded(h)
		}
	}
	for _, h := range removed {
		if p.onRemoved != nil {
			p.onRemoved(h)
		}
	}
}
