package locus

import "io"

// closer returns a function that closes c, discarding the error.
// Use with defer for response bodies and sources whose close error
// cannot change the outcome.
func closer(c io.Closer) func() {
	return func() { _ = c.Close() }
}
