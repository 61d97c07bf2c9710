// Package headerparse reconstructs an HTTP start-line and header block from
// the raw bytes the host proxy hands back, tolerating the defects real
// proxy-internal buffers exhibit: a mixture of CRLF, bare LF, and stray CR
// line terminators, embedded NUL bytes, and folded header continuations.
// It also repairs the "http:///" / "https:///" empty-host artifact some
// proxies leave in the request line.
//
// This package does not implement general HTTP parsing. It assumes the
// caller already knows where the header block ends (the proxy told it so)
// and only needs the block turned into a start-line and a name/value list.
package headerparse
