package weft

import "errors"

// errConnectionClosed is returned by Request.ReadBody when the
// connection died while a handler was blocked waiting for more body
// bytes (spec.md section 4.7: "-1 if the connection closed mid-read").
var errConnectionClosed = errors.New("weft: connection closed mid-read")
