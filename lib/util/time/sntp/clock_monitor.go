package sntp

import (
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/beevik/ntp"
	"github.com/go-i2p/logger"
)

var log = logger.GetGoI2PLogger()

// Messaging backends reject pairing handshakes from clients whose clocks
// drift too far from real time, and a stale clock silently invalidates
// freshly issued QR payloads. The monitor samples public NTP servers and
// reports the local offset so the gateway can warn operators before the
// first pairing attempt fails.

const (
	defaultQueryInterval = 30 * time.Minute
	minQueryInterval     = 5 * time.Minute
	defaultSampleCount   = 3
	defaultQueryTimeout  = 10 * time.Second
	defaultServerList    = "0.pool.ntp.org,1.pool.ntp.org,2.pool.ntp.org"

	// maxVariance is the largest spread between samples still considered a
	// coherent measurement. Samples disagreeing by more than this are
	// discarded as unreliable.
	maxVariance = 10 * time.Second

	// WarnThreshold is the absolute clock offset above which pairing
	// handshakes are considered at risk.
	WarnThreshold = 10 * time.Second
)

// NTPClient abstracts the NTP query so tests can substitute a fake.
type NTPClient interface {
	QueryWithOptions(host string, options ntp.QueryOptions) (*ntp.Response, error)
}

// DefaultNTPClient queries real NTP servers via beevik/ntp.
type DefaultNTPClient struct{}

func (c *DefaultNTPClient) QueryWithOptions(host string, options ntp.QueryOptions) (*ntp.Response, error) {
	return ntp.QueryWithOptions(host, options)
}

// OffsetListener receives the measured clock offset after each query cycle.
type OffsetListener interface {
	ClockOffset(offset time.Duration, synced bool)
}

// ClockMonitor periodically measures the local clock offset against a pool
// of NTP servers. It never adjusts the clock; it only observes and notifies.
type ClockMonitor struct {
	servers     []string
	interval    time.Duration
	sampleCount int
	client      NTPClient

	mu         sync.Mutex
	listeners  []OffsetListener
	lastOffset time.Duration
	measured   bool

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewClockMonitor builds a monitor over the given servers. A nil client uses
// the real NTP implementation; empty servers fall back to the public pool.
func NewClockMonitor(client NTPClient, servers []string) *ClockMonitor {
	if client == nil {
		client = &DefaultNTPClient{}
	}
	if len(servers) == 0 {
		servers = splitServerList(defaultServerList)
	}
	return &ClockMonitor{
		servers:     servers,
		interval:    defaultQueryInterval,
		sampleCount: defaultSampleCount,
		client:      client,
		stopChan:    make(chan struct{}),
	}
}

// SetInterval overrides the query interval, clamped to the safe minimum so a
// misconfigured gateway cannot hammer public NTP pools.
func (cm *ClockMonitor) SetInterval(d time.Duration) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if d < minQueryInterval {
		d = minQueryInterval
	}
	cm.interval = d
}

// AddListener registers a listener for offset updates.
func (cm *ClockMonitor) AddListener(l OffsetListener) {
	if l == nil {
		return
	}
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.listeners = append(cm.listeners, l)
}

// Start begins the measurement loop. The first query runs immediately.
func (cm *ClockMonitor) Start() {
	cm.wg.Add(1)
	go cm.run()
	log.WithFields(logger.Fields{
		"at":      "sntp.ClockMonitor.Start",
		"servers": len(cm.servers),
	}).Debug("clock monitor started")
}

// Stop terminates the loop and waits for it to exit.
func (cm *ClockMonitor) Stop() {
	cm.stopOnce.Do(func() {
		close(cm.stopChan)
	})
	cm.wg.Wait()
}

// Offset returns the last measured offset and whether any measurement has
// completed yet.
func (cm *ClockMonitor) Offset() (time.Duration, bool) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.lastOffset, cm.measured
}

func (cm *ClockMonitor) run() {
	defer cm.wg.Done()

	cm.CheckOnce()
	for {
		cm.mu.Lock()
		interval := cm.interval
		cm.mu.Unlock()

		select {
		case <-cm.stopChan:
			return
		case <-time.After(interval):
			cm.CheckOnce()
		}
	}
}

// CheckOnce performs one measurement cycle: sample several servers, validate
// the spread, record the median offset, and notify listeners. Returns false
// when no coherent measurement was possible.
func (cm *ClockMonitor) CheckOnce() bool {
	offsets := cm.collectSamples()
	if len(offsets) == 0 {
		log.WithField("at", "sntp.ClockMonitor.CheckOnce").Debug("no usable NTP samples this cycle")
		return false
	}

	median := medianDuration(offsets)
	synced := absDuration(median) < WarnThreshold

	cm.mu.Lock()
	cm.lastOffset = median
	cm.measured = true
	listeners := make([]OffsetListener, len(cm.listeners))
	copy(listeners, cm.listeners)
	cm.mu.Unlock()

	if !synced {
		log.WithFields(logger.Fields{
			"at":     "sntp.ClockMonitor.CheckOnce",
			"offset": median.String(),
		}).Warn("local clock offset exceeds pairing-safe threshold")
	}

	for _, l := range listeners {
		l.ClockOffset(median, synced)
	}
	return true
}

// collectSamples queries up to sampleCount servers, dropping samples that
// disagree with the first accepted one by more than maxVariance.
func (cm *ClockMonitor) collectSamples() []time.Duration {
	var offsets []time.Duration
	for i := 0; i < cm.sampleCount; i++ {
		offset, err := cm.querySingle()
		if err != nil {
			continue
		}
		if len(offsets) > 0 && absDuration(offset-offsets[0]) > maxVariance {
			continue
		}
		offsets = append(offsets, offset)
	}
	return offsets
}

func (cm *ClockMonitor) querySingle() (time.Duration, error) {
	server := cm.servers[rand.Intn(len(cm.servers))]
	resp, err := cm.client.QueryWithOptions(server, ntp.QueryOptions{Timeout: defaultQueryTimeout})
	if err != nil {
		log.WithError(err).WithField("server", server).Debug("NTP query failed")
		return 0, err
	}
	if err := resp.Validate(); err != nil {
		log.WithError(err).WithField("server", server).Debug("NTP response failed validation")
		return 0, err
	}
	return resp.ClockOffset, nil
}

func medianDuration(ds []time.Duration) time.Duration {
	sorted := make([]time.Duration, len(ds))
	copy(sorted, ds)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func splitServerList(list string) []string {
	var out []string
	for _, s := range strings.Split(list, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
