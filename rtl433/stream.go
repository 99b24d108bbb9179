package rtl433

import (
	"bufio"
	"errors"
	"io"
	"strings"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// ReadLines calls fn for every line of r with the line ending trimmed.
// Invalid UTF-8 is replaced rather than rejected so a single corrupt byte from
// the decoder never stops the stream. It returns when r is exhausted, when fn
// returns false, or on a read error other than io.EOF.
func ReadLines(r io.Reader, fn func(string) bool) error {
	br := bufio.NewReaderSize(transform.NewReader(r, runes.ReplaceIllFormed()), 64*1024)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			if !fn(strings.TrimRight(line, "\r\n")) {
				return nil
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}
