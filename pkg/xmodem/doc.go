// Package xmodem implements XMODEM-CRC / XMODEM-1K.
//
// Receiver is the device side: a state machine consuming one byte at a
// time, committing accepted payload through a page-buffered writer.
// Send is the host side used by tooling and tests.
//
// Packet layout:
//
//	[SOH|STX] [block] [^block] [payload 128|1024] [crc hi] [crc lo]
//
// The CRC is CRC-16/XMODEM over the payload only. Block numbers start at 1
// and wrap at 256.
package xmodem
