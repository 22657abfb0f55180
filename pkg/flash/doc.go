// Package flash provides the page-buffered write engine on top of a
// block-erase flash device.
//
// The device side is a thin port contract (unlock/lock, erase a page,
// program a halfword, bulk read) which is all a chip family has to provide.
// Writer keeps a mirror of exactly one page in memory so sub-page chunks
// can be committed as whole, erase-before-program, read-back-verified pages.
package flash
