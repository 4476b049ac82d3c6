package engine

import (
	"time"

	"github.com/bryanchriswhite/FramePacer/internal/config"
)

// Options tune the pool and the scheduler. Timestamps are 90 kHz ticks.
type Options struct {
	PoolSize int

	// MaxSleep bounds how long the render loop sleeps between checks
	MaxSleep time.Duration
	// A first-after-seek frame waits at most SeekBrakePolls*SeekBrakeDelay
	// for its decoder to let go of it, checked every SeekBrakeDelay
	SeekBrakePolls int
	SeekBrakeDelay time.Duration
	// LastFrameGrace lets the only queued frame be shown this many ticks past
	// its duration instead of being dropped
	LastFrameGrace  int64
	DefaultDuration int64

	// Percentages of delivered frames
	SkipThreshold    int
	DiscardThreshold int
	WarnWindows      int
	StatsWindow      int

	StarvationFlush   bool
	StarvationTimeout time.Duration

	// FlushFiller keeps the newest frame drawn during a flush and shows it
	// when the flush ends without new content
	FlushFiller bool
	// DuplicateReserve is how many free frames duplication leaves for decoders
	DuplicateReserve int

	StillInterval time.Duration
	StepTimeout   time.Duration
	AcquirePoll   time.Duration
}

// DefaultOptions returns the stock scheduling policy
func DefaultOptions() Options {
	return OptionsFromConfig(config.DefaultEngine())
}

// OptionsFromConfig converts the engine section of the config file
func OptionsFromConfig(c config.EngineConfig) Options {
	ms := func(v int) time.Duration { return time.Duration(v) * time.Millisecond }
	return Options{
		PoolSize:          c.PoolSize,
		MaxSleep:          ms(c.MaxSleepMs),
		SeekBrakePolls:    c.SeekBrakePolls,
		SeekBrakeDelay:    ms(c.SeekBrakeDelayMs),
		LastFrameGrace:    c.LastFrameGrace,
		DefaultDuration:   c.DefaultDuration,
		SkipThreshold:     c.SkipThreshold,
		DiscardThreshold:  c.DiscardThreshold,
		WarnWindows:       c.WarnWindows,
		StatsWindow:       c.StatsWindow,
		StarvationFlush:   c.StarvationFlush,
		StarvationTimeout: ms(c.StarvationTimeoutMs),
		FlushFiller:       c.FlushFiller,
		DuplicateReserve:  c.DuplicateReserve,
		StillInterval:     ms(c.StillIntervalMs),
		StepTimeout:       ms(c.StepTimeoutMs),
		AcquirePoll:       ms(c.AcquirePollMs),
	}
}

// seekBrakeBudget is the longest a first-after-seek frame is held back
func (o Options) seekBrakeBudget() time.Duration {
	return time.Duration(o.SeekBrakePolls) * o.SeekBrakeDelay
}

// withDefaults fills zero values so a partially built Options is usable
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.PoolSize <= 0 {
		o.PoolSize = d.PoolSize
	}
	if o.MaxSleep <= 0 {
		o.MaxSleep = d.MaxSleep
	}
	if o.SeekBrakePolls <= 0 {
		o.SeekBrakePolls = d.SeekBrakePolls
	}
	if o.SeekBrakeDelay <= 0 {
		o.SeekBrakeDelay = d.SeekBrakeDelay
	}
	if o.LastFrameGrace < 0 {
		o.LastFrameGrace = 0
	}
	if o.DefaultDuration <= 0 {
		o.DefaultDuration = d.DefaultDuration
	}
	if o.WarnWindows <= 0 {
		o.WarnWindows = d.WarnWindows
	}
	if o.StatsWindow <= 0 {
		o.StatsWindow = d.StatsWindow
	}
	if o.StarvationTimeout <= 0 {
		o.StarvationTimeout = d.StarvationTimeout
	}
	if o.DuplicateReserve < 0 {
		o.DuplicateReserve = 0
	}
	if o.StillInterval <= 0 {
		o.StillInterval = d.StillInterval
	}
	if o.StepTimeout <= 0 {
		o.StepTimeout = d.StepTimeout
	}
	if o.AcquirePoll <= 0 {
		o.AcquirePoll = d.AcquirePoll
	}
	return o
}
