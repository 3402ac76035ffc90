// Package cos - ID generation for log correlation.
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package cos

import (
	"sync"
	"sync/atomic"

	"github.com/teris-io/shortid"
)

// Alphabet for generating short IDs, same shape as shortid.DEFAULT_ABC.
const uuidABC = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"

const LenShortID = 9

var (
	sidOnce sync.Once
	sid     *shortid.Shortid
	rtie    atomic.Uint32
)

func initSID() {
	sid, _ = shortid.New(1, uuidABC, uint64(0xC0FFEE))
}

// GenUUID returns a process-local, practically-unique short ID. Used for
// per-connection trace IDs so a connection's pipelined requests can be
// correlated across log lines (see SPEC_FULL.md section 4).
func GenUUID() string {
	sidOnce.Do(initSID)
	id, err := sid.Generate()
	if err != nil {
		// extremely unlikely (shortid only errors on clock rollback); fall
		// back to the tie-breaker alphabet so callers never see an error.
		return GenTie() + GenTie() + GenTie()
	}
	return id
}

// GenTie returns a 3-character tie-breaker, cheap enough to call per
// connection without contending on a global counter lock.
func GenTie() string {
	tie := rtie.Add(1)
	b0 := uuidABC[tie&0x3f]
	b1 := uuidABC[(tie>>6)&0x3f]
	b2 := uuidABC[(tie>>12)&0x3f]
	return string([]byte{b0, b1, b2})
}
