package alloc

import "fmt"

// Block is a handle to memory handed out by a Heap. The zero Block is
// invalid. A Block is owned by its caller until passed back to Free.
type Block struct {
	a     *arena
	page  uint16
	index uint16
}

// IsZero reports whether b is the zero Block.
func (b Block) IsZero() bool { return b.a == nil }

// Size returns the usable size of the block: its size class, or the rounded
// mapping size for large blocks.
func (b Block) Size() int {
	if b.a == nil {
		return 0
	}
	if b.a.large {
		return b.a.size
	}
	return b.a.pages[b.page].blockSize
}

// Class returns the size-class index, or -1 for large blocks.
func (b Block) Class() int {
	if b.a == nil || b.a.large {
		return -1
	}
	return b.a.pages[b.page].class
}

// ArenaID returns the id of the arena holding the block.
func (b Block) ArenaID() uint32 {
	if b.a == nil {
		return 0
	}
	return b.a.id
}

// Bytes returns the block memory, or nil once the arena has been released.
func (b Block) Bytes() []byte {
	if b.a == nil || b.a.released.Load() {
		return nil
	}
	if b.a.large {
		return b.a.data[:b.a.size:b.a.size]
	}
	bs := b.a.pages[b.page].blockSize
	off := int(b.page)*b.a.pageSize + int(b.index)*bs
	return b.a.data[off : off+bs : off+bs]
}

func (b Block) String() string {
	if b.a == nil {
		return "Block{}"
	}
	if b.a.large {
		return fmt.Sprintf("Block{arena: %d, large: %d}", b.a.id, b.a.size)
	}
	return fmt.Sprintf("Block{arena: %d, page: %d, index: %d}", b.a.id, b.page, b.index)
}
