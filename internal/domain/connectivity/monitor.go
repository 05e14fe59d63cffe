// Package connectivity observes network reachability and link quality and
// classifies it into offline / weak / strong tiers.
package connectivity

import (
	"context"
	"sync"
	"time"

	"golang.org/x/exp/slog"
)

// NetworkInfo reports the device's current reachability and link type. On a
// real device this wraps the OS reachability APIs.
type NetworkInfo interface {
	Current(ctx context.Context) (reachable bool, link LinkType)
}

// Prober actively measures link throughput with a small, time-bounded fetch.
type Prober interface {
	Probe(ctx context.Context) (mbps float64, err error)
}

// Authorizer gates sync-critical traffic beyond pure link quality, e.g. a
// geofence or site allow-list. The default allows everything.
type Authorizer interface {
	Authorize(ctx context.Context) bool
}

// AllowAll authorizes unconditionally.
type AllowAll struct{}

func (AllowAll) Authorize(context.Context) bool { return true }

// Config tunes the monitor.
type Config struct {
	WeakThresholdMbps   float64
	StrongThresholdMbps float64
	PollInterval        time.Duration
	ProbeEnabled        bool
	ProbeTimeout        time.Duration
}

// Monitor polls the network state, classifies it and publishes class changes
// to subscribers. Duplicate identical classifications are suppressed.
type Monitor struct {
	info   NetworkInfo
	prober Prober
	auth   Authorizer
	cfg    Config
	log    *slog.Logger

	mu        sync.RWMutex
	last      Sample
	lastClass Class
	subs      map[int]chan Class
	nextSub   int

	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
}

// NewMonitor creates a stopped Monitor. A nil auth defaults to AllowAll; a
// nil prober disables active probing regardless of config.
func NewMonitor(info NetworkInfo, prober Prober, auth Authorizer, cfg Config, log *slog.Logger) *Monitor {
	if auth == nil {
		auth = AllowAll{}
	}
	return &Monitor{
		info:   info,
		prober: prober,
		auth:   auth,
		cfg:    cfg,
		log:    log,
		subs:   make(map[int]chan Class),
		stopCh: make(chan struct{}),
	}
}

// Start launches the poll loop. Calling Start on a running monitor is a
// no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.mu.Unlock()

	// Take an initial sample so subscribers see a state before the first
	// tick.
	m.Check(ctx)

	m.wg.Add(1)
	go m.pollLoop(ctx)
}

// Stop halts the poll loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	m.mu.Unlock()

	m.wg.Wait()
}

func (m *Monitor) pollLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Check takes one sample, classifies it and notifies subscribers if the
// classification changed. It returns the resulting class.
func (m *Monitor) Check(ctx context.Context) Class {
	sample := m.takeSample(ctx)
	class := Classify(sample.EstimatedMbps, sample.Reachable,
		m.cfg.WeakThresholdMbps, m.cfg.StrongThresholdMbps)

	m.mu.Lock()
	changed := class != m.lastClass || m.last.SampledAt.IsZero()
	m.last = sample
	m.lastClass = class
	if changed {
		// Notify under the lock so an unsubscribe cannot close a channel
		// mid-send. Channels are buffered size 1, latest wins.
		for _, ch := range m.subs {
			select {
			case ch <- class:
			default:
				select {
				case <-ch:
				default:
				}
				select {
				case ch <- class:
				default:
				}
			}
		}
	}
	m.mu.Unlock()

	if changed {
		m.log.Info("connectivity classification changed",
			"class", class.String(),
			"reachable", sample.Reachable,
			"link", string(sample.Link),
		)
	}
	return class
}

// takeSample estimates throughput. Priority: active probe, then the static
// link-type table when probing is disabled. A failed probe yields no
// measurement.
func (m *Monitor) takeSample(ctx context.Context) Sample {
	reachable, link := m.info.Current(ctx)
	sample := Sample{Reachable: reachable, Link: link, SampledAt: time.Now()}
	if !reachable {
		return sample
	}

	if m.cfg.ProbeEnabled && m.prober != nil {
		probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
		defer cancel()
		mbps, err := m.prober.Probe(probeCtx)
		if err != nil {
			m.log.Debug("connectivity probe failed", "error", err)
			return sample
		}
		sample.EstimatedMbps = &mbps
		return sample
	}

	est := StaticEstimate(link)
	sample.EstimatedMbps = &est
	return sample
}

// Classification returns the latest classification.
func (m *Monitor) Classification() Class {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastClass
}

// LastSample returns the latest sample.
func (m *Monitor) LastSample() Sample {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// CanSyncCritical reports whether sync-critical traffic may proceed:
// reachable, at least weak quality, and authorized. The sync engine treats a
// false here as equivalent to offline even when the OS reports a reachable
// network.
func (m *Monitor) CanSyncCritical(ctx context.Context) bool {
	m.mu.RLock()
	sample := m.last
	class := m.lastClass
	m.mu.RUnlock()

	if !sample.Reachable || class < ClassWeak {
		return false
	}
	return m.auth.Authorize(ctx)
}

// Subscribe registers for classification changes. The returned cancel
// function removes the subscription and closes the channel.
func (m *Monitor) Subscribe() (<-chan Class, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextSub
	m.nextSub++
	ch := make(chan Class, 1)
	m.subs[id] = ch

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}
