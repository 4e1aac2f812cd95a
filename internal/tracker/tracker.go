package tracker

import (
	"math"
	"sort"
	"sync"
	"time"

	geo "github.com/kellydunn/golang-geo"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"modes1090/internal/modes"
)

const (
	// DefaultTTL is how long an aircraft stays listed without new messages.
	DefaultTTL = 60 * time.Second

	// CPRPairWindow is the largest gap between an even and odd report that
	// is still resolved into a position.
	CPRPairWindow = 10 * time.Second

	kmPerNauticalMile = 1.852
)

// Aircraft is the tracked state of one ICAO address.
type Aircraft struct {
	Address       uint32  `json:"-"`
	Hex           string  `json:"hex"`
	Callsign      string  `json:"flight"`
	Category      int     `json:"category"`
	Altitude      int     `json:"altitude"`
	Squawk        int     `json:"squawk"`
	Speed         int     `json:"speed"`
	Track         int     `json:"track"`
	VerticalRate  int     `json:"vert_rate"`
	Heading       float64 `json:"heading"`
	HeadingValid  bool    `json:"-"`
	Latitude      float64 `json:"lat"`
	Longitude     float64 `json:"lon"`
	ValidPosition bool    `json:"validposition"`
	RangeNM       float64 `json:"range_nm,omitempty"`
	Bearing       float64 `json:"bearing,omitempty"`
	Messages      int64   `json:"messages"`
	Seen          int     `json:"seen"` // seconds since LastSeen, filled by Snapshot

	FirstSeen time.Time `json:"-"`
	LastSeen  time.Time `json:"-"`

	even, odd       modes.CPRReport
	hasEven, hasOdd bool
}

// Config controls a Tracker.
type Config struct {
	TTL      time.Duration
	CheckCRC bool

	// Receiver position, used for range and bearing when HasReceiver is set.
	HasReceiver bool
	ReceiverLat float64
	ReceiverLon float64
}

// Tracker keeps the set of recently heard aircraft. Entries expire TTL after
// their last message.
type Tracker struct {
	config   Config
	logger   *logrus.Logger
	store    *cache.Cache
	receiver *geo.Point
	now      func() time.Time

	mu      sync.Mutex
	evicted func(Aircraft)
}

// New creates a tracker. A zero TTL means DefaultTTL.
func New(config Config, logger *logrus.Logger) *Tracker {
	if config.TTL <= 0 {
		config.TTL = DefaultTTL
	}

	janitor := 10 * time.Second
	if config.TTL < janitor {
		janitor = config.TTL
	}

	t := &Tracker{
		config: config,
		logger: logger,
		store:  cache.New(config.TTL, janitor),
		now:    time.Now,
	}
	if config.HasReceiver {
		t.receiver = geo.NewPoint(config.ReceiverLat, config.ReceiverLon)
	}

	t.store.OnEvicted(func(key string, v interface{}) {
		ac := v.(*Aircraft)
		t.logger.WithFields(logrus.Fields{
			"icao":     key,
			"messages": ac.Messages,
		}).Debug("Aircraft expired")

		t.mu.Lock()
		hook := t.evicted
		snapshot := *ac
		t.mu.Unlock()
		if hook != nil {
			hook(snapshot)
		}
	})

	return t
}

// OnEvicted registers a callback run when an aircraft expires.
func (t *Tracker) OnEvicted(fn func(Aircraft)) {
	t.mu.Lock()
	t.evicted = fn
	t.mu.Unlock()
}

// Update folds a decoded message into the aircraft it came from and returns
// a copy of the new state. Messages failing CRC are ignored (nil) unless CRC
// checking is off.
func (t *Tracker) Update(m *modes.Message) *Aircraft {
	if t.config.CheckCRC && !m.CRCOK {
		return nil
	}

	key := m.ICAO()
	seen := m.Timestamp
	if seen.IsZero() {
		seen = t.now()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var ac *Aircraft
	if v, ok := t.store.Get(key); ok {
		ac = v.(*Aircraft)
	} else {
		ac = &Aircraft{Address: m.Address, Hex: key, FirstSeen: seen}
	}
	ac.LastSeen = seen
	ac.Messages++

	if alt, ok := modes.AltitudeOf(m); ok && alt.Valid && alt.Unit == modes.UnitFeet {
		ac.Altitude = alt.Value
	}
	if squawk, ok := modes.SquawkOf(m); ok {
		ac.Squawk = squawk
	}

	if es, ok := m.Body.(*modes.ExtendedSquitter); ok {
		switch p := es.ES.(type) {
		case *modes.Identification:
			ac.Callsign = p.Callsign
			ac.Category = p.Category
		case *modes.AirbornePosition:
			t.updatePosition(ac, p.CPR, seen)
		case *modes.Velocity:
			if p.Available {
				ac.Speed = int(math.Round(p.Speed))
				ac.Track = int(math.Round(p.Track)) % 360
			}
			if p.VerticalRateAvailable {
				ac.VerticalRate = p.VerticalRate
			}
		case *modes.AirspeedHeading:
			if p.HeadingValid {
				ac.Heading = p.Heading
				ac.HeadingValid = true
			}
			if p.AirspeedAvailable {
				ac.Speed = p.Airspeed
			}
			if p.VerticalRateAvailable {
				ac.VerticalRate = p.VerticalRate
			}
		}
	}

	t.store.SetDefault(key, ac)

	out := *ac
	return &out
}

func (t *Tracker) updatePosition(ac *Aircraft, report modes.CPRReport, seen time.Time) {
	report.Time = seen
	if report.Odd {
		ac.odd, ac.hasOdd = report, true
	} else {
		ac.even, ac.hasEven = report, true
	}
	if !ac.hasEven || !ac.hasOdd {
		return
	}

	gap := ac.even.Time.Sub(ac.odd.Time)
	if gap < 0 {
		gap = -gap
	}
	if gap > CPRPairWindow {
		return
	}

	pos, ok := modes.ResolveCPR(ac.even, ac.odd)
	if !ok {
		t.logger.WithField("icao", ac.Hex).Debug("CPR pair rejected")
		return
	}

	ac.Latitude = pos.Latitude
	ac.Longitude = pos.SignedLongitude()
	ac.ValidPosition = true

	if t.receiver != nil {
		p := geo.NewPoint(ac.Latitude, ac.Longitude)
		ac.RangeNM = t.receiver.GreatCircleDistance(p) / kmPerNauticalMile
		bearing := t.receiver.BearingTo(p)
		if bearing < 0 {
			bearing += 360
		}
		ac.Bearing = bearing
	}
}

// Get returns a copy of one aircraft.
func (t *Tracker) Get(addr uint32) (Aircraft, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	v, ok := t.store.Get(modes.FormatICAO(addr))
	if !ok {
		return Aircraft{}, false
	}
	return *v.(*Aircraft), true
}

// Snapshot returns copies of every live aircraft, most recently seen first.
func (t *Tracker) Snapshot() []Aircraft {
	items := t.store.Items()
	now := t.now()

	t.mu.Lock()
	list := make([]Aircraft, 0, len(items))
	for _, item := range items {
		ac := *item.Object.(*Aircraft)
		ac.Seen = int(now.Sub(ac.LastSeen) / time.Second)
		if ac.Seen < 0 {
			ac.Seen = 0
		}
		list = append(list, ac)
	}
	t.mu.Unlock()

	sort.Slice(list, func(i, j int) bool {
		if list[i].LastSeen.Equal(list[j].LastSeen) {
			return list[i].Address < list[j].Address
		}
		return list[i].LastSeen.After(list[j].LastSeen)
	})
	return list
}

// Len returns the number of live aircraft.
func (t *Tracker) Len() int {
	return len(t.store.Items())
}

// Expire removes aircraft whose TTL has passed, running the eviction hook.
func (t *Tracker) Expire() {
	t.store.DeleteExpired()
}
