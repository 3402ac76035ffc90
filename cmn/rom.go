// Package cmn provides common constants, types, and utilities shared by the
// weft engine packages.
/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import "sync/atomic"

// Rom is a read-mostly copy of hot config fields, assigned once by
// NewEngineFromConfig (mirrors aistore's cmn.Rom). The request path does
// not read it: a connection takes its query-size cap from its Engine
// (Engine.QuerySizeCap).
type readMostly struct {
	numReactors  atomic.Int32
	querySizeCap atomic.Int32
	verbose      atomic.Bool
}

var Rom readMostly

// Set is called once from Engine construction.
func (rom *readMostly) Set(numReactors, querySizeCap int, verbose bool) {
	rom.numReactors.Store(int32(numReactors))
	rom.querySizeCap.Store(int32(querySizeCap))
	rom.verbose.Store(verbose)
}

func (rom *readMostly) NumReactors() int   { return int(rom.numReactors.Load()) }
func (rom *readMostly) QuerySizeCap() int  { return int(rom.querySizeCap.Load()) }
func (rom *readMostly) Verbose() bool      { return rom.verbose.Load() }
