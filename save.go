// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package biodecode

import (
	"fmt"
	"io"
	"os"
)

// Save writes planes and meta to w in format f.
// Only BioRad can be written; all other formats return ErrUnsupportedOperation.
// Each channel of a multi-channel plane is written as a separate image.
// meta may be nil.
func Save(w io.Writer, f Format, planes []*Plane, meta *Metadata) error {
	var err error
	switch f {
	case BioRad:
		err = newEncoderBioRad(w).encode(planes, meta)
	default:
		err = fmt.Errorf("%w: save is not supported", ErrUnsupportedOperation)
	}
	if err != nil {
		return &DecodeError{Format: f, Op: "save", Err: err}
	}
	return nil
}

// SaveFile is like Save but writes to the file at path, replacing it if it exists.
func SaveFile(path string, f Format, planes []*Plane, meta *Metadata) (err error) {
	if f != BioRad {
		return &DecodeError{Format: f, Path: path, Op: "save", Err: fmt.Errorf("%w: save is not supported", ErrUnsupportedOperation)}
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if err2 := file.Close(); err == nil {
			err = err2
		}
	}()
	if err := Save(file, f, planes, meta); err != nil {
		if de, ok := err.(*DecodeError); ok {
			de.Path = path
		}
		return err
	}
	return nil
}
