package main

import (
	"fmt"
	"runtime"
	"time"

	"github.com/spf13/afero"

	"github.com/quenot/softsd"
	"github.com/quenot/softsd/emu"
)

// stats aggregates the outcome of all cycles, the way the firmware kept
// its test_stats_t.
type stats struct {
	totalCycles         uint32
	successfulCycles    uint32
	failedCycles        uint32
	consecutiveFailures int

	totalInit time.Duration
	minInit   time.Duration
	maxInit   time.Duration

	totalWrite time.Duration
	minWrite   time.Duration
	maxWrite   time.Duration

	fallbacks   uint32
	currentFreq uint32
	lastErr     error
}

type cycleResult struct {
	success   bool
	err       error
	initTime  time.Duration
	writeTime time.Duration
	freqHz    uint32
}

func (s *stats) update(res cycleResult) {
	s.totalCycles++
	s.currentFreq = res.freqHz

	if !res.success {
		s.failedCycles++
		s.consecutiveFailures++
		s.lastErr = res.err
		return
	}

	s.successfulCycles++
	s.consecutiveFailures = 0

	s.totalInit += res.initTime
	if s.minInit == 0 || res.initTime < s.minInit {
		s.minInit = res.initTime
	}
	if res.initTime > s.maxInit {
		s.maxInit = res.initTime
	}

	s.totalWrite += res.writeTime
	if s.minWrite == 0 || res.writeTime < s.minWrite {
		s.minWrite = res.writeTime
	}
	if res.writeTime > s.maxWrite {
		s.maxWrite = res.writeTime
	}
}

func run(opts options) error {
	log := logger{}
	level, err := parseLevel(opts.logLevel)
	if err != nil {
		return err
	}
	log.level = level

	fs := afero.NewOsFs()
	card, err := openCard(fs, opts)
	if err != nil {
		return err
	}
	defer card.Close()

	power := emu.NewPower(card)
	ctrl := softsd.NewController(card)

	log.banner()
	log.Infof("image %s, %d blocks, card type %s", opts.image, card.Blocks(), opts.cardType)

	// First mount just to confirm the card and report what it is.
	if err := ctrl.Mount(opts.freqHz); err != nil {
		return fmt.Errorf("initial mount: %w", err)
	}
	if kind, sizeMB, err := ctrl.CardInfo(); err == nil {
		log.Infof("card: %s, %d MB, init %v", kind, sizeMB, ctrl.LastInitTime())
	}
	if opts.aggressive {
		ctrl.Unmount()
	}

	log.Infof("starting stress test, %d cycles", opts.cycles)

	st := &stats{currentFreq: ctrl.Frequency()}
	start := time.Now()

	for cycle := 1; cycle <= opts.cycles; cycle++ {
		var res cycleResult
		if opts.aggressive {
			res = runAggressiveCycle(ctrl, power, opts, st, log, uint32(cycle), start)
		} else {
			res = runContinuousCycle(ctrl, opts, uint32(cycle), start)
		}

		st.update(res)

		if res.success {
			log.Debugf("cycle %d ok: init %v write %v", cycle, res.initTime, res.writeTime)
		} else {
			log.Warnf("cycle %d failed: %v", cycle, res.err)
		}

		if st.consecutiveFailures >= opts.maxFailures {
			log.Errorf("%d consecutive failures, giving up", st.consecutiveFailures)
			log.printStats(st)
			power.PowerCycle()
			return fmt.Errorf("aborted after %d consecutive failures: %w",
				st.consecutiveFailures, st.lastErr)
		}

		if st.totalCycles%100 == 0 {
			log.printStats(st)
		}

		if opts.intervalMS > 0 {
			time.Sleep(time.Duration(opts.intervalMS) * time.Millisecond)
		}
	}

	ctrl.Unmount()
	log.printStats(st)
	return nil
}

// runAggressiveCycle is one full power-cycle/mount/append/unmount round.
// Mount failures are retried with the frequency ladder stepping down in
// between; retry ownership lives here, never inside the stack.
func runAggressiveCycle(ctrl *softsd.Controller, power *emu.Power, opts options,
	st *stats, log logger, cycle uint32, start time.Time) cycleResult {

	res := cycleResult{}
	power.PowerCycle()

	var err error
	for retry := 0; retry < opts.retries; retry++ {
		err = ctrl.Mount(0)
		if err == nil {
			break
		}

		log.Warnf("mount retry %d/%d: %v", retry+1, opts.retries, err)
		time.Sleep(time.Duration(opts.retryMS) * time.Millisecond)

		if ctrl.ReduceFrequency() {
			st.fallbacks++
			log.Warnf("frequency fallback to %d kHz", ctrl.Frequency()/1000)
		}
	}

	res.initTime = ctrl.LastInitTime()
	res.freqHz = ctrl.Frequency()

	if err != nil {
		res.err = err
		return res
	}

	for retry := 0; retry < opts.retries; retry++ {
		err = ctrl.Append(buildRecord(ctrl, cycle, start, res.initTime))
		if err == nil {
			break
		}
		log.Warnf("append retry %d/%d: %v", retry+1, opts.retries, err)
		time.Sleep(time.Duration(opts.retryMS) * time.Millisecond)
	}

	res.writeTime = ctrl.LastWriteTime()

	if err != nil {
		res.err = err
		ctrl.Unmount()
		return res
	}

	ctrl.Unmount()
	res.success = true
	return res
}

// runContinuousCycle keeps the mount open and only appends.
func runContinuousCycle(ctrl *softsd.Controller, opts options, cycle uint32, start time.Time) cycleResult {
	res := cycleResult{}

	if !ctrl.Mounted() {
		if err := ctrl.Mount(0); err != nil {
			res.err = err
			res.initTime = ctrl.LastInitTime()
			res.freqHz = ctrl.Frequency()
			return res
		}
		res.initTime = ctrl.LastInitTime()
	}
	res.freqHz = ctrl.Frequency()

	if err := ctrl.Append(buildRecord(ctrl, cycle, start, res.initTime)); err != nil {
		res.err = err
		res.writeTime = ctrl.LastWriteTime()
		return res
	}

	res.writeTime = ctrl.LastWriteTime()
	res.success = true
	return res
}

func buildRecord(ctrl *softsd.Controller, cycle uint32, start time.Time, initTime time.Duration) softsd.Record {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return softsd.Record{
		TimestampMS: uint32(time.Since(start).Milliseconds()),
		Cycle:       cycle,
		Success:     true,
		ErrorCode:   0,
		InitTimeUS:  uint32(initTime.Microseconds()),
		WriteTimeUS: uint32(ctrl.LastWriteTime().Microseconds()),
		FreqHz:      ctrl.Frequency(),
		BatteryMV:   3300, // no ADC on this side of the emulation
		FreeHeap:    uint32(mem.HeapSys - mem.HeapAlloc),
	}
}
