// Package cos provides common low-level types and utilities used across the
// weft engine: error kinds, ID generation, and byte-size helpers.
/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"syscall"

	pkgerrors "github.com/pkg/errors"

	"github.com/weftsrv/weft/cmn/nlog"
)

// error kinds from spec.md section 7.

// ProtocolError is a malformed-input condition on the wire: the connection
// is closed without invoking any handler.
type ProtocolError struct {
	Reason string
}

func NewProtocolError(format string, a ...any) *ProtocolError {
	return &ProtocolError{Reason: fmt.Sprintf(format, a...)}
}

func (e *ProtocolError) Error() string { return "protocol error: " + e.Reason }

// RouteMissingError marks a path with no registered route.
type RouteMissingError struct {
	Path string
}

func NewRouteMissingError(path string) *RouteMissingError {
	return &RouteMissingError{Path: path}
}

func (e *RouteMissingError) Error() string { return "no route registered for " + e.Path }

// ConfigError is fatal at engine-allocation time.
type ConfigError struct {
	Reason string
}

func NewConfigError(format string, a ...any) *ConfigError {
	return &ConfigError{Reason: fmt.Sprintf(format, a...)}
}

func (e *ConfigError) Error() string { return "config error: " + e.Reason }

// Wrap/Cause pass through to github.com/pkg/errors, the teacher's error-
// wrapping convention.
func Wrap(err error, msg string) error { return pkgerrors.Wrap(err, msg) }
func Wrapf(err error, format string, a ...any) error {
	return pkgerrors.Wrapf(err, format, a...)
}
func Cause(err error) error { return pkgerrors.Cause(err) }

//
// IS-syscall helpers — used by the reactor to classify a read/write error
// as transient ("would block", ignored) or terminal (connection closed).
//

func IsErrConnectionRefused(err error) bool { return errors.Is(err, syscall.ECONNREFUSED) }
func IsErrConnectionReset(err error) bool   { return errors.Is(err, syscall.ECONNRESET) }
func IsErrBrokenPipe(err error) bool        { return errors.Is(err, syscall.EPIPE) }

// IsRetriableConnErr reports whether err is a transient, would-block-style
// socket condition the reactor should simply re-arm interest for.
func IsRetriableConnErr(err error) bool {
	return errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EWOULDBLOCK) || errors.Is(err, syscall.EINTR)
}

// IsTerminalConnErr reports whether err means the connection is dead and
// must be torn down (spec.md section 7, IOError terminal).
func IsTerminalConnErr(err error) bool {
	if err == nil {
		return false
	}
	return IsErrConnectionRefused(err) || IsErrConnectionReset(err) || IsErrBrokenPipe(err)
}

//
// Abnormal termination
//

const fatalPrefix = "FATAL ERROR: "

// ExitLogf logs a fatal message (flushing first) and exits the process.
// Used for spec.md's ConfigError recovery: "aborts the process with a
// logged reason".
func ExitLogf(f string, a ...any) {
	msg := fmt.Sprintf(fatalPrefix+f, a...)
	if flag.Parsed() {
		nlog.ErrorDepth(1, msg)
		nlog.Flush(nlog.ActExit)
	}
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
