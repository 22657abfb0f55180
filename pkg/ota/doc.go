// Package ota is the dual slot updater.
//
// Flash layout from RegionStart:
//
//	| meta page | slot A (header + body) | slot B (header + body) |
//
// Updater.Boot runs once per power-on. It loads the metadata, confirms or
// rejects freshly written slots, receives a new image over XMODEM when
// asked to, and hands control to the selected image.
package ota
