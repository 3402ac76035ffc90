//go:build !mono

// Package mono provides low-level monotonic time
/*
 * Copyright (c) 2018-2021, NVIDIA CORPORATION. All rights reserved.
 */
package mono

import "time"

var start = time.Now()

// NanoTime is the portable fallback for the "mono"-tagged runtime.nanotime
// linkname trick: a monotonic nanosecond counter with no wall-clock skew
// (time.Since reads the monotonic clock, counting from process start).
func NanoTime() int64 { return int64(time.Since(start)) }
