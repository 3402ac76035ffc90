// Package nlog is the weft logger: buffered, timestamped, severity-leveled,
// with size-triggered file rotation. Mirrors the shape of aistore's nlog
// package, trimmed to what an embedded engine needs.
/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package nlog

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/weftsrv/weft/cmn/mono"
)

type severity int

const (
	sevInfo severity = iota
	sevWarn
	sevErr
)

var sevChar = "IWE"

const maxLineSize = 2 * 1024

type nlogger struct {
	mw      sync.Mutex
	buf     bytes.Buffer
	file    *os.File
	sev     severity
	last    atomic.Int64
	written atomic.Int64
	oob     atomic.Bool
	erred   atomic.Bool
}

var (
	loggers = [...]*nlogger{
		sevInfo: {sev: sevInfo},
		sevWarn: {sev: sevWarn},
		sevErr:  {sev: sevErr},
	}

	toStderr     bool
	alsoToStderr bool

	logDir, role, title string

	pid  = os.Getpid()
	host = hostname()
)

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}

// SetPre sets the log directory and a short role tag (e.g. "engine")
// used to build rotated log file names.
func SetPre(dir, r string) { logDir, role = dir, r }

func sname() string {
	if role == "" {
		return "weft"
	}
	return "weft." + role
}

func (n *nlogger) since(now int64) time.Duration { return time.Duration(now - n.last.Load()) }

func (n *nlogger) write(sev severity, depth int, format string, args ...any) {
	n.mw.Lock()
	defer n.mw.Unlock()

	formatHdr(sev, depth+1, &n.buf)
	if format == "" {
		fmt.Fprintln(&n.buf, args...)
	} else {
		fmt.Fprintf(&n.buf, format, args...)
		if n.buf.Len() == 0 || n.buf.Bytes()[n.buf.Len()-1] != '\n' {
			n.buf.WriteByte('\n')
		}
	}
	if n.buf.Len() >= maxLineSize {
		n.oob.Store(true)
	}
}

func formatHdr(sev severity, depth int, buf *bytes.Buffer) {
	_, fn, ln, ok := runtime.Caller(depth + 2)
	buf.WriteByte(sevChar[sev])
	buf.WriteByte(' ')
	buf.WriteString(time.Now().Format("15:04:05.000000"))
	buf.WriteByte(' ')
	if ok {
		if idx := strings.LastIndexByte(fn, filepath.Separator); idx >= 0 {
			fn = fn[idx+1:]
		}
		buf.WriteString(fn)
		buf.WriteByte(':')
		buf.WriteString(strconv.Itoa(ln))
		buf.WriteByte(' ')
	}
}

// log is the single entry point every public helper funnels through.
func log(sev severity, depth int, format string, args ...any) {
	n := loggers[sev]
	switch {
	case !flag.Parsed() || toStderr:
		n.mw.Lock()
		formatHdr(sev, depth+1, &n.buf)
		if format == "" {
			fmt.Fprintln(&n.buf, args...)
		} else {
			fmt.Fprintf(&n.buf, format+"\n", args...)
		}
		os.Stderr.Write(n.buf.Bytes())
		n.buf.Reset()
		n.mw.Unlock()
		return
	default:
		n.write(sev, depth+1, format, args...)
		if alsoToStderr || sev >= sevWarn {
			n.mw.Lock()
			os.Stderr.Write(n.buf.Bytes())
			n.mw.Unlock()
		}
	}
}

// Flush drains buffered lines to the log file(s). When ex is true (process
// exit), it also fsyncs and closes the files.
func Flush(ex ...bool) {
	exiting := len(ex) > 0 && ex[0]
	now := mono.NanoTime()
	for _, n := range loggers {
		n.mw.Lock()
		if n.buf.Len() == 0 && !exiting {
			n.mw.Unlock()
			continue
		}
		if logDir != "" && n.file == nil {
			_ = n.rotate()
		}
		if n.file != nil && n.buf.Len() > 0 {
			written, err := n.file.Write(n.buf.Bytes())
			if err != nil {
				n.erred.Store(true)
			}
			n.written.Add(int64(written))
			n.last.Store(now)
		}
		n.buf.Reset()
		n.oob.Store(false)
		if n.file != nil && n.written.Load() >= MaxSize {
			n.file.Close()
			n.file = nil
			n.written.Store(0)
		}
		if exiting && n.file != nil {
			n.file.Sync()
			n.file.Close()
			n.file = nil
		}
		n.mw.Unlock()
	}
}

// under n.mw lock
func (n *nlogger) rotate() error {
	now := time.Now()
	name := fmt.Sprintf("%s.%s.%s.%02d%02d-%02d%02d%02d.%d.log",
		sname(), host, sevNames[n.sev], now.Month(), now.Day(), now.Hour(), now.Minute(), now.Second(), pid)
	f, err := os.OpenFile(filepath.Join(logDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		n.erred.Store(true)
		return err
	}
	n.file = f
	n.erred.Store(false)
	fmt.Fprintf(f, "Started up at %s, %s for %s/%s\n", now.Format("2006/01/02 15:04:05"), runtime.Version(), runtime.GOOS, runtime.GOARCH)
	if title != "" {
		f.WriteString(title + "\n")
	}
	return nil
}

var sevNames = [...]string{sevInfo: "INFO", sevWarn: "WARNING", sevErr: "ERROR"}
