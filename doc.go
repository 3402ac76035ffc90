// Package weft is an embedded HTTP/1.1 request-handling engine: it
// accepts TCP (optionally TLS) connections, parses incoming requests,
// validates typed query-argument schemas, dispatches each request to a
// user-registered handler running on its own goroutine, and streams the
// reply back. It targets back-end micro-services and internal tools
// that want a small, pipeline-aware server runtime with per-thread
// event loops and typed routing.
//
// An Engine owns N reactors (one per worker goroutine group), each
// binding the same address via SO_REUSEPORT so the kernel load-balances
// accepted connections across them. Every connection keeps a FIFO
// pipeline of request contexts: the parser always feeds the back of the
// queue, and at most one handler task runs against the front at a time,
// so responses are written in the same order requests arrived in even
// when a client pipelines several requests in one TCP segment.
/*
 * Copyright (c) 2018-2023, NVIDIA CORPORATION. All rights reserved.
 */
package weft
