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

package run

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/xelalexv/oqtacard/pkg/memcard/file"
)

//
func NewRead() *Read {

	r := &Read{}
	r.Runner = *NewRunner(
		`read [-s|--slot {slot}] [-o|--offset {card address}] [-n|--size {bytes}]
      -f|--file {file} [--force] [-a|--address {address}]`,
		"read block from card and save to file",
		"\nUse the read command to read a block of raw card data from the daemon.",
		"", runnerHelpEpilogue, r.Run)

	r.AddBaseSettings()
	r.AddSetting(&r.Slot, "slot", "s", "", 0, "slot number (0-7)", false)
	r.AddSetting(&r.Offset, "offset", "o", "", nil, "card address", false)
	r.AddSetting(&r.Size, "size", "n", "", file.RawSectorSize,
		"number of bytes to read", false)
	r.AddSetting(&r.File, "file", "f", "", nil, "output file", true)
	r.AddSetting(&r.Force, "force", "", "", false,
		"force overwriting output file", false)

	return r
}

//
type Read struct {
	//
	Runner
	//
	Slot   int
	Offset string
	Size   int
	File   string
	Force  bool
}

//
func (r *Read) Run() error {

	r.ParseSettings()

	if err := validateSlot(r.Slot); err != nil {
		return err
	}

	address, err := parseAddress(r.Offset)
	if err != nil {
		return err
	}

	if !r.Force {
		if _, err := os.Stat(r.File); err == nil &&
			!GetUserConfirmation("File exists, overwrite?") {
			return nil
		}
	}

	resp, err := r.apiCall("GET", fmt.Sprintf(
		"/slot/%d/read?address=%d&size=%d", r.Slot, address, r.Size),
		false, nil)
	if err != nil {
		return err
	}
	defer resp.Close()

	n, err := saveBlock(r.File, resp)
	if err != nil {
		return err
	}

	fmt.Printf("read %d bytes from slot %d at 0x%08x\n", n, r.Slot, address)
	return nil
}

// saveBlock writes everything from in to the file at path. The returned count
// is only valid if the data has reached the file.
func saveBlock(path string, in io.Reader) (int64, error) {

	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	out := bufio.NewWriter(f)
	n, err := io.Copy(out, in)
	if err != nil {
		return 0, err
	}
	if err := out.Flush(); err != nil {
		return 0, fmt.Errorf("error writing %s: %v", path, err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("error closing %s: %v", path, err)
	}

	return n, nil
}

//
func NewWrite() *Write {

	w := &Write{}
	w.Runner = *NewRunner(
		`write [-s|--slot {slot}] [-o|--offset {card address}] -f|--file {file}
      [-y|--yes] [-a|--address {address}]`,
		"write block from file to card",
		`
Use the write command to write raw data from a file to a card. PS2 cards behave
like flash memory, i.e. writing can only clear bits. To set bits, the erase
block needs to be erased first.`,
		"", runnerHelpEpilogue, w.Run)

	w.AddBaseSettings()
	w.AddSetting(&w.Slot, "slot", "s", "", 0, "slot number (0-7)", false)
	w.AddSetting(&w.Offset, "offset", "o", "", nil, "card address", false)
	w.AddSetting(&w.File, "file", "f", "", nil, "input file", true)
	w.AddSetting(&w.Yes, "yes", "y", "", false, "skip confirmation", false)

	return w
}

//
type Write struct {
	//
	Runner
	//
	Slot   int
	Offset string
	File   string
	Yes    bool
}

//
func (w *Write) Run() error {

	w.ParseSettings()

	if err := validateSlot(w.Slot); err != nil {
		return err
	}

	address, err := parseAddress(w.Offset)
	if err != nil {
		return err
	}

	f, err := os.Open(w.File)
	if err != nil {
		return err
	}
	defer f.Close()

	if !w.Yes && !GetUserConfirmation(fmt.Sprintf(
		"Write %s to slot %d at 0x%08x?", w.File, w.Slot, address)) {
		return nil
	}

	return w.printCall("PUT", fmt.Sprintf(
		"/slot/%d/write?address=%d", w.Slot, address), bufio.NewReader(f))
}

//
func NewErase() *Erase {

	e := &Erase{}
	e.Runner = *NewRunner(
		`erase [-s|--slot {slot}] [-o|--offset {card address}] [-y|--yes]
      [-a|--address {address}]`,
		"erase block on card",
		`
Use the erase command to reset an erase block of a card to all 1s. The offset
should point to the start of the erase block.`,
		"", runnerHelpEpilogue, e.Run)

	e.AddBaseSettings()
	e.AddSetting(&e.Slot, "slot", "s", "", 0, "slot number (0-7)", false)
	e.AddSetting(&e.Offset, "offset", "o", "", nil, "card address", false)
	e.AddSetting(&e.Yes, "yes", "y", "", false, "skip confirmation", false)

	return e
}

//
type Erase struct {
	//
	Runner
	//
	Slot   int
	Offset string
	Yes    bool
}

//
func (e *Erase) Run() error {

	e.ParseSettings()

	if err := validateSlot(e.Slot); err != nil {
		return err
	}

	address, err := parseAddress(e.Offset)
	if err != nil {
		return err
	}

	if address%file.EraseBlockSize != 0 {
		fmt.Printf("note: 0x%08x is not at the start of an erase block\n",
			address)
	}

	if !e.Yes && !GetUserConfirmation(fmt.Sprintf(
		"Erase block in slot %d at 0x%08x?", e.Slot, address)) {
		return nil
	}

	return e.printCall("PUT", fmt.Sprintf(
		"/slot/%d/erase?address=%d", e.Slot, address), nil)
}
