package termsession

// DefaultBacklogSize is the number of output chunks kept per session.
const DefaultBacklogSize = 5000

// Backlog is a fixed-capacity FIFO of output chunks. Once full, each append
// evicts the oldest chunk. The bound counts chunks, not bytes.
//
// Backlog is not safe for concurrent use; Session guards it with its mutex.
type Backlog struct {
	chunks [][]byte
	head   int // index of the oldest chunk
	size   int
}

// NewBacklog creates a backlog holding at most capacity chunks.
// If capacity <= 0, DefaultBacklogSize is used.
func NewBacklog(capacity int) *Backlog {
	if capacity <= 0 {
		capacity = DefaultBacklogSize
	}
	return &Backlog{chunks: make([][]byte, capacity)}
}

// Append adds a chunk, evicting the oldest one if the backlog is full.
func (b *Backlog) Append(chunk []byte) {
	capacity := len(b.chunks)
	if b.size < capacity {
		b.chunks[(b.head+b.size)%capacity] = chunk
		b.size++
		return
	}
	b.chunks[b.head] = chunk
	b.head = (b.head + 1) % capacity
}

// Snapshot returns the chunks from oldest to newest. The returned slice is
// fresh; the chunks themselves are shared and must not be modified.
func (b *Backlog) Snapshot() [][]byte {
	out := make([][]byte, b.size)
	for i := range out {
		out[i] = b.chunks[(b.head+i)%len(b.chunks)]
	}
	return out
}

func (b *Backlog) Len() int { return b.size }

func (b *Backlog) Cap() int { return len(b.chunks) }
