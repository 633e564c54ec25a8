package ai

import (
	"errors"
	"io"
	"sync"
)

// StreamSource yields the next raw fragment of a streamed reply. It returns
// io.EOF once the transport signals completion. An empty fragment with a nil
// error marks a chunk that carried no text (role-only or control chunks).
type StreamSource func() (string, error)

// Stream is a single-pass cursor over the text fragments of a streamed reply.
// Fragments come back in delivery order; there is no replay and no seeking.
//
//	for s.Next() {
//		fmt.Print(s.Text())
//	}
//	if err := s.Err(); err != nil { ... }
type Stream struct {
	src       StreamSource
	closer    func() error
	closeOnce sync.Once
	closeErr  error
	cur       string
	err       error
	exhausted bool
}

// NewStream wraps a source into a cursor. closer may be nil; it runs exactly
// once, either when the source is exhausted or on Close.
func NewStream(src StreamSource, closer func() error) *Stream {
	return &Stream{src: src, closer: closer}
}

// Next advances to the next non-empty fragment. It returns false once the
// stream is exhausted or failed; check Err afterwards.
func (s *Stream) Next() bool {
	if s == nil || s.exhausted {
		return false
	}
	for {
		frag, err := s.src()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.err = err
			}
			s.cur = ""
			s.exhausted = true
			_ = s.Close()
			return false
		}
		if frag == "" {
			continue
		}
		s.cur = frag
		return true
	}
}

// Text returns the fragment produced by the last successful Next.
func (s *Stream) Text() string { return s.cur }

// Err returns the transport error that ended the stream, if any.
func (s *Stream) Err() error { return s.err }

// Exhausted reports whether no more fragments are available.
func (s *Stream) Exhausted() bool { return s.exhausted }

// Close releases the underlying transport. Safe to call more than once.
func (s *Stream) Close() error {
	if s == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		s.exhausted = true
		if s.closer != nil {
			s.closeErr = s.closer()
		}
	})
	return s.closeErr
}

// Collect drains the stream, invoking onFragment (if non-nil) for each
// fragment, and returns the concatenated text together with the stream error.
func Collect(s *Stream, onFragment func(string)) (string, error) {
	var out []byte
	for s.Next() {
		frag := s.Text()
		if onFragment != nil {
			onFragment(frag)
		}
		out = append(out, frag...)
	}
	return string(out), s.Err()
}

// StreamOf returns a stream replaying the given fragments, mainly for stubs.
func StreamOf(fragments ...string) *Stream {
	i := 0
	return NewStream(func() (string, error) {
		if i >= len(fragments) {
			return "", io.EOF
		}
		f := fragments[i]
		i++
		return f, nil
	}, nil)
}
