// Package scanner coordinates request/response sessions with a barcode
// scanner module over a byte channel.
//
// A Scanner allows a single outstanding request. Each request is bounded by
// its own timeout, which also covers waiting for the request slot. Frames
// that don't resolve the current request are reported to the Observer and
// dropped.
package scanner
