package copytool

import "bytes"

// logWriter splits a tool's output stream into lines and forwards each one,
// length-capped, to the wrapper log.
type logWriter struct {
	prefix  string
	maxLen  int
	buf     bytes.Buffer
	dropped bool
}

func newLogWriter(prefix string, maxLen int) *logWriter {
	if maxLen <= 0 {
		maxLen = toolLogLineLimit
	}
	return &logWriter{prefix: prefix, maxLen: maxLen}
}

func (lw *logWriter) Write(p []byte) (int, error) {
	total := len(p)
	for len(p) > 0 {
		idx := bytes.IndexByte(p, '\n')
		if idx < 0 {
			lw.append(p)
			break
		}
		lw.append(p[:idx])
		lw.emit()
		p = p[idx+1:]
	}
	return total, nil
}

// Flush logs any trailing partial line.
func (lw *logWriter) Flush() {
	if lw.buf.Len() > 0 {
		lw.emit()
	}
}

func (lw *logWriter) append(p []byte) {
	if len(p) == 0 {
		return
	}
	remaining := lw.maxLen - lw.buf.Len()
	if remaining <= 0 {
		lw.dropped = true
		return
	}
	if len(p) > remaining {
		p = p[:remaining]
		lw.dropped = true
	}
	lw.buf.Write(p)
}

func (lw *logWriter) emit() {
	line := lw.buf.String()
	if lw.dropped && lw.maxLen > 3 {
		if len(line) > lw.maxLen-3 {
			line = line[:lw.maxLen-3]
		}
		line += "..."
	}
	lw.buf.Reset()
	lw.dropped = false
	if line == "" {
		return
	}
	logInfoFn(lw.prefix + line)
}

// tailBuffer keeps the last limit bytes written to it. The runner uses it to
// preserve the end of stderr for failure messages.
type tailBuffer struct {
	limit int
	data  []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	if b.limit <= 0 {
		return len(p), nil
	}
	if len(p) >= b.limit {
		b.data = append(b.data[:0], p[len(p)-b.limit:]...)
		return len(p), nil
	}
	if overflow := len(b.data) + len(p) - b.limit; overflow > 0 {
		b.data = append(b.data[:0], b.data[overflow:]...)
	}
	b.data = append(b.data, p...)
	return len(p), nil
}

func (b *tailBuffer) String() string {
	return string(b.data)
}
