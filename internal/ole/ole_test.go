// Copyright 2024 Bjørn Erik Pedersen
// SPDX-License-Identifier: MIT

package ole

import (
	"bytes"
	"errors"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestIsCompoundDocument(t *testing.T) {
	c := qt.New(t)
	c.Assert(IsCompoundDocument(append(Signature, 0, 0)), qt.IsTrue)
	c.Assert(IsCompoundDocument(Signature[:4]), qt.IsFalse)
	c.Assert(IsCompoundDocument(nil), qt.IsFalse)
}

func TestWalkInvalid(t *testing.T) {
	c := qt.New(t)

	for _, b := range [][]byte{
		nil,
		[]byte("not a compound document"),
		append(append([]byte{}, Signature...), make([]byte, 100)...),
	} {
		called := false
		err := Walk(bytes.NewReader(b), func(s *Stream) error {
			called = true
			return nil
		})
		c.Assert(err, qt.ErrorMatches, "ole: .*")
		c.Assert(called, qt.IsFalse)
	}
}

func TestStream(t *testing.T) {
	c := qt.New(t)

	s := &Stream{Name: "Contents", Path: []string{"Image", "Item(1)"}, Size: 100}
	c.Assert(s.Parent(), qt.Equals, "Item(1)")
	c.Assert((&Stream{Name: "CONTENTS"}).Parent(), qt.Equals, "")

	_, err := s.Bytes(10)
	c.Assert(errors.Is(err, ErrStreamTooLarge), qt.IsTrue)
	c.Assert(err, qt.ErrorMatches, `.*"Contents" is 100 bytes, max 10`)
}
