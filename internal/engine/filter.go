package engine

import "bytes"

// lineFilter strips lines beginning with a known banner prefix from a byte
// stream that arrives in arbitrary chunks. Output order is preserved; a
// trailing partial line is held back only while it could still turn out to
// be the banner, so interactive prompts are not delayed.
type lineFilter struct {
	banner []byte
	buf    []byte
}

func newLineFilter(banner string) *lineFilter {
	return &lineFilter{banner: []byte(banner)}
}

// Filter consumes a chunk and returns the bytes safe to forward.
func (f *lineFilter) Filter(chunk []byte) []byte {
	if len(f.banner) == 0 {
		return chunk
	}

	f.buf = append(f.buf, chunk...)
	var out []byte

	for {
		i := bytes.IndexByte(f.buf, '\n')
		if i < 0 {
			break
		}
		line := f.buf[:i+1]
		if !bytes.HasPrefix(line, f.banner) {
			out = append(out, line...)
		}
		f.buf = f.buf[i+1:]
	}

	// Hold the tail only if it is still a possible banner start.
	if len(f.buf) > 0 && !f.couldBeBanner(f.buf) {
		out = append(out, f.buf...)
		f.buf = nil
	}
	return out
}

// Flush returns any held bytes at end of stream. A complete banner with no
// trailing newline is still dropped.
func (f *lineFilter) Flush() []byte {
	tail := f.buf
	f.buf = nil
	if bytes.HasPrefix(tail, f.banner) {
		return nil
	}
	return tail
}

func (f *lineFilter) couldBeBanner(tail []byte) bool {
	if len(tail) >= len(f.banner) {
		return bytes.HasPrefix(tail, f.banner)
	}
	return bytes.HasPrefix(f.banner, tail)
}
