// Package protocol implements the wire protocol of UART barcode scanner modules.
package protocol

// Two kinds of frames travel from the module to the host over the same line:
//
// Barcode frames are the raw scanned bytes followed by a terminator
// (CR by factory default). An optional one-byte Code ID prefix identifies the
// symbology, and multi-line 2D codes separate lines with LF.
//
// Ack frames reply to commands and are fixed length:
//
//	02 00 | status | len | data[len] | checksum
//
// where len 0 means 256 data bytes. Commands travel the other way:
//
//	7E 00 | type | len | addrH addrL | data | checksum
//
// The checksum is CRC-16 (poly 0x1021, init 0, big-endian) over everything
// after the two header bytes. Revisions differ in the terminator and in
// whether the checksum is computed, ignored or absent, so all of it is Config.
