package main

import "os"

// openTunerWriter opens the file the reassembled transport stream is written
// to, or stdout when no path is given. It satisfies rtpreceiver.TSWriter
// without importing that package directly — an *os.File already has the
// right Write signature.
func openTunerWriter(path string) (*os.File, func(), error) {
	if path == "" {
		return os.Stdout, func() {}, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}
