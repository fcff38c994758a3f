package providers

// SliceStream replays a fixed chunk sequence, optionally ending with an error.
type SliceStream struct {
	chunks []StreamChunk
	err    error
	pos    int
	closed bool
}

func NewSliceStream(chunks []StreamChunk, err error) *SliceStream {
	return &SliceStream{chunks: chunks, err: err, pos: -1}
}

func (s *SliceStream) Next() bool {
	if s.closed || s.pos+1 >= len(s.chunks) {
		return false
	}
	s.pos++
	return true
}

func (s *SliceStream) Chunk() StreamChunk {
	if s.pos < 0 || s.pos >= len(s.chunks) {
		return StreamChunk{}
	}
	return s.chunks[s.pos]
}

func (s *SliceStream) Err() error {
	if s.pos+1 >= len(s.chunks) {
		return s.err
	}
	return nil
}

func (s *SliceStream) Close() error {
	s.closed = true
	return nil
}

// primedStream replays a chunk that was read ahead before handing the rest
// of the underlying stream to the caller.
type primedStream struct {
	first    StreamChunk
	hasFirst bool
	replayed bool
	inner    Stream
	current  StreamChunk
	onClose  func()
}

func (p *primedStream) Next() bool {
	if p.hasFirst && !p.replayed {
		p.replayed = true
		p.current = p.first
		return true
	}
	if !p.inner.Next() {
		return false
	}
	p.current = p.inner.Chunk()
	return true
}

func (p *primedStream) Chunk() StreamChunk { return p.current }

func (p *primedStream) Err() error { return p.inner.Err() }

func (p *primedStream) Close() error {
	if p.onClose != nil {
		p.onClose()
		p.onClose = nil
	}
	return p.inner.Close()
}
