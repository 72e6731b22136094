package engine

import "bufio"

// lineReader splits input on "\n", "\r\n" or a lone "\r".
type lineReader struct {
	r *bufio.Reader

	// afterCR is set when the last line ended in '\r', so a '\n' that
	// follows belongs to that terminator.
	afterCR bool
}

func newLineReader(r *bufio.Reader) *lineReader {
	return &lineReader{r: r}
}

// ReadLine returns the next line with its terminator. At end of input it
// returns any unterminated bytes together with io.EOF.
func (l *lineReader) ReadLine() ([]byte, error) {
	var line []byte
	for {
		b, err := l.r.ReadByte()
		if err != nil {
			return line, err
		}

		if l.afterCR {
			l.afterCR = false
			if b == '\n' {
				continue
			}
		}

		line = append(line, b)
		switch b {
		case '\n':
			return line, nil
		case '\r':
			l.afterCR = true
			return line, nil
		}
	}
}
