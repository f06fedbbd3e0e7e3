/*
   OqtaCard - PS2 memory card emulator
   Copyright (c) 2021, Alexander Vollschwitz

   This file is part of OqtaCard.

   OqtaCard is free software: you can redistribute it and/or modify
   it under the terms of the GNU General Public License as published by
   the Free Software Foundation, either version 3 of the License, or
   (at your option) any later version.

   OqtaCard is distributed in the hope that it will be useful,
   but WITHOUT ANY WARRANTY; without even the implied warranty of
   MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
   GNU General Public License for more details.

   You should have received a copy of the GNU General Public License
   along with OqtaCard. If not, see <http://www.gnu.org/licenses/>.
*/

// Package test holds small assertion helpers shared by the unit tests.
package test

import (
	"bytes"
	"reflect"
	"testing"
)

// Equate fails the test if value and expected differ. Untyped integer
// constants given as expected are converted to the type of value, so
// that test.Equate(t, uint32(16), 16) holds.
func Equate(t *testing.T, value, expected interface{}) {
	t.Helper()

	if b, ok := value.([]byte); ok {
		if e, ok := expected.([]byte); ok {
			if !bytes.Equal(b, e) {
				t.Errorf("byte slices differ:\n got: % x\nwant: % x",
					head(b), head(e))
			}
			return
		}
	}

	if value != nil && expected != nil {
		vt := reflect.TypeOf(value)
		if et := reflect.TypeOf(expected); et.Kind() == reflect.Int &&
			vt != et && et.ConvertibleTo(vt) {
			expected = reflect.ValueOf(expected).Convert(vt).Interface()
		}
	}

	if !reflect.DeepEqual(value, expected) {
		t.Errorf("got %v (%T), want %v (%T)", value, value, expected, expected)
	}
}

// ExpectSuccess fails the test if v is a non-nil error or false.
func ExpectSuccess(t *testing.T, v interface{}) bool {
	t.Helper()

	switch v := v.(type) {
	case nil:
		return true
	case bool:
		if !v {
			t.Errorf("expected success (bool)")
			return false
		}
	case error:
		t.Errorf("expected success (error: %v)", v)
		return false
	default:
		t.Fatalf("unsupported type (%T) for expectation testing", v)
		return false
	}

	return true
}

// ExpectFailure fails the test if v is nil or true.
func ExpectFailure(t *testing.T, v interface{}) bool {
	t.Helper()

	switch v := v.(type) {
	case nil:
		t.Errorf("expected failure (nil)")
		return false
	case bool:
		if v {
			t.Errorf("expected failure (bool)")
			return false
		}
	case error:
		return true
	default:
		t.Fatalf("unsupported type (%T) for expectation testing", v)
		return false
	}

	return true
}

//
func head(b []byte) []byte {
	if len(b) > 32 {
		return b[:32]
	}
	return b
}
