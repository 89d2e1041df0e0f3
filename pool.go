// pool.go - Only for internal buffer reuse
package iso8583

import "sync"

const pooledContextLimit = 64 * 1024

var formatterContextPool = sync.Pool{
	New: func() interface{} {
		return NewFormatterContext(defaultContextCapacity)
	},
}

// Only pool formatter contexts, not messages
func acquireFormatterContext() *FormatterContext {
	fc := formatterContextPool.Get().(*FormatterContext)
	fc.Clear()
	return fc
}

func releaseFormatterContext(fc *FormatterContext) {
	if fc.Capacity() <= pooledContextLimit { // Don't pool huge buffers
		fc.Clear()
		formatterContextPool.Put(fc)
	}
}
