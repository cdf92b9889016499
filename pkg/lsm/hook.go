package lsm

import (
	"sync/atomic"

	"github.com/dd0wney/hackdb/pkg/compress"
)

// BlockDecodeHook is called every time a data block is read from disk, before
// it is decompressed, with the codec id found in the block trailer and the
// options of the handle performing the read. It runs on the reading goroutine
// and must not block.
type BlockDecodeHook func(id compress.ID, opts *Options)

var blockDecodeHook atomic.Pointer[BlockDecodeHook]

// SetBlockDecodeHook installs the process-wide block decode hook. A nil hook
// disables reporting.
func SetBlockDecodeHook(hook BlockDecodeHook) {
	if hook == nil {
		blockDecodeHook.Store(nil)
		return
	}
	blockDecodeHook.Store(&hook)
}

// foundBlockWithCompressor reports a decoded block to the installed hook.
func foundBlockWithCompressor(id compress.ID, opts *Options) {
	if hook := blockDecodeHook.Load(); hook != nil {
		(*hook)(id, opts)
	}
}
