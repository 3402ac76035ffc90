// Package nlog - weft logger, provides buffering, timestamping, writing,
// and flushing/rotating.
/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package nlog

import (
	"flag"
	"time"

	"github.com/weftsrv/weft/cmn/mono"
)

// MaxSize triggers rotation once a severity's log file reaches this size.
var MaxSize int64 = 4 * 1024 * 1024

// Flush's two call-sites read more clearly with names than bare booleans.
const (
	ActNone = false
	ActExit = true
)

func InitFlags(flset *flag.FlagSet) {
	flset.BoolVar(&toStderr, "logtostderr", false, "log to standard error instead of files")
	flset.BoolVar(&alsoToStderr, "alsologtostderr", false, "log to standard error as well as files")
}

func InfoDepth(depth int, args ...any)    { log(sevInfo, depth, "", args...) }
func Infoln(args ...any)                  { log(sevInfo, 0, "", args...) }
func Infof(format string, args ...any)    { log(sevInfo, 0, format, args...) }
func Warningln(args ...any)               { log(sevWarn, 0, "", args...) }
func Warningf(format string, args ...any) { log(sevWarn, 0, format, args...) }
func ErrorDepth(depth int, args ...any)   { log(sevErr, depth, "", args...) }
func Errorln(args ...any)                 { log(sevErr, 0, "", args...) }
func Errorf(format string, args ...any)   { log(sevErr, 0, format, args...) }

func SetTitle(s string) { title = s }

func InfoLogName() string { return sname() + ".INFO" }
func ErrLogName() string  { return sname() + ".ERROR" }

func Since() time.Duration {
	now := mono.NanoTime()
	var max time.Duration
	for _, n := range loggers {
		if d := n.since(now); d > max {
			max = d
		}
	}
	return max
}

func OOB() bool {
	for _, n := range loggers {
		if n.oob.Load() {
			return true
		}
	}
	return false
}
