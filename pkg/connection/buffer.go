package connection

import "sync"

const defaultBufferSize = 1 << 12 // 4096 bytes

// Buffer pool for transport reads
var readBufferPool sync.Pool

func getReadBuffer(size int) []byte {
	if size <= 0 {
		size = defaultBufferSize
	}
	if size == defaultBufferSize {
		if v := readBufferPool.Get(); v != nil {
			return *(v.(*[]byte))
		}
	}
	return make([]byte, size)
}

func putReadBuffer(b []byte) {
	if cap(b) == defaultBufferSize {
		b = b[:defaultBufferSize]
		readBufferPool.Put(&b)
	}
}
