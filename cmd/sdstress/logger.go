package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
)

type logLevel int

const (
	levelError logLevel = iota + 1
	levelWarn
	levelInfo
	levelDebug
)

func parseLevel(name string) (logLevel, error) {
	switch strings.ToLower(name) {
	case "error":
		return levelError, nil
	case "warn":
		return levelWarn, nil
	case "info":
		return levelInfo, nil
	case "debug":
		return levelDebug, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", name)
	}
}

var (
	errTag  = color.New(color.FgRed, color.Bold).Sprint("[ERR]")
	warnTag = color.New(color.FgYellow).Sprint("[WRN]")
	infoTag = color.New(color.FgGreen).Sprint("[INF]")
	dbgTag  = color.New(color.FgCyan).Sprint("[DBG]")
)

type logger struct {
	level logLevel
}

func (l logger) logf(min logLevel, tag, format string, args ...interface{}) {
	if l.level < min {
		return
	}
	fmt.Printf(tag+" "+format+"\n", args...)
}

func (l logger) Errorf(format string, args ...interface{}) {
	l.logf(levelError, errTag, format, args...)
}

func (l logger) Warnf(format string, args ...interface{}) {
	l.logf(levelWarn, warnTag, format, args...)
}

func (l logger) Infof(format string, args ...interface{}) {
	l.logf(levelInfo, infoTag, format, args...)
}

func (l logger) Debugf(format string, args ...interface{}) {
	l.logf(levelDebug, dbgTag, format, args...)
}

func (l logger) banner() {
	if l.level < levelInfo {
		return
	}
	sep := strings.Repeat("=", 52)
	fmt.Println(sep)
	fmt.Println("  softsd stress test")
	fmt.Println(sep)
}

func (l logger) printStats(s *stats) {
	if l.level < levelInfo {
		return
	}

	fmt.Println(strings.Repeat("-", 52))
	fmt.Printf("cycles: %d total, %d ok, %d failed, %d consecutive failures\n",
		s.totalCycles, s.successfulCycles, s.failedCycles, s.consecutiveFailures)
	if s.successfulCycles > 0 {
		fmt.Printf("init:  min %v  max %v  avg %v\n",
			s.minInit, s.maxInit, s.totalInit/time.Duration(s.successfulCycles))
		fmt.Printf("write: min %v  max %v  avg %v\n",
			s.minWrite, s.maxWrite, s.totalWrite/time.Duration(s.successfulCycles))
	}
	fmt.Printf("frequency fallbacks: %d, current rate: %d Hz\n", s.fallbacks, s.currentFreq)
	fmt.Println(strings.Repeat("-", 52))
}
