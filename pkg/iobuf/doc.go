// Package iobuf provides a thin, block-oriented wrapper over reference-counted
// byte buffers, modeled on the host proxy's native I/O buffer primitive
// (the capability the mediator consumes through pkg/proxycap).
//
// A Buffer owns a chain of fixed-size blocks and is shared by reference; a
// Reader walks a Buffer without copying its data until the caller asks for a
// copy. Both types exist so the rest of the mediator (pkg/headerparse,
// pkg/streamfilter) can be written against the same block/reader shape the
// real proxy SDK exposes, rather than against a flat []byte, which would
// hide the copy and resize costs the design deliberately accounts for.
package iobuf
