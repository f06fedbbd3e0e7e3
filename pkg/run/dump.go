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
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/xelalexv/oqtacard/pkg/memcard/file"
)

//
func NewDump() *Dump {

	d := &Dump{}
	d.Runner = *NewRunner(
		`dump [-s|--slot {slot}] [-i|--input {file}] [-o|--offset {card address}]
      [-n|--size {bytes}] [-a|--address {address}]`,
		"dump card block from file or daemon",
		`
Use the dump command to output a hex dump of a card block from file or from daemon.
Card addresses for files start after any header of legacy card images.`,
		"", runnerHelpEpilogue, d.Run)

	d.AddBaseSettings()
	d.AddSetting(&d.File, "input", "i", "", nil, "card input file", false)
	d.AddSetting(&d.Slot, "slot", "s", "", 0, "slot number (0-7)", false)
	d.AddSetting(&d.Offset, "offset", "o", "", nil, "card address", false)
	d.AddSetting(&d.Size, "size", "n", "", file.RawSectorSize,
		"number of bytes to dump", false)

	return d
}

//
type Dump struct {
	//
	Runner
	//
	File   string
	Slot   int
	Offset string
	Size   int
}

//
func (d *Dump) Run() error {

	d.ParseSettings()

	address, err := parseAddress(d.Offset)
	if err != nil {
		return err
	}

	if d.Size < 1 {
		return fmt.Errorf("invalid size: %d", d.Size)
	}

	if d.File != "" {
		return dumpFile(d.File, address, d.Size, os.Stdout)
	}

	if err := validateSlot(d.Slot); err != nil {
		return err
	}

	resp, err := d.apiCall("GET", fmt.Sprintf(
		"/slot/%d/dump?address=%d&size=%d", d.Slot, address, d.Size),
		false, nil)
	if err != nil {
		return err
	}
	defer resp.Close()

	if _, err := io.Copy(os.Stdout, resp); err != nil {
		return err
	}

	fmt.Println()
	return nil
}

// dumpFile writes a hex dump of size bytes at address of the card image in
// path to out. The image is opened read-only.
func dumpFile(path string, address uint32, size int, out io.Writer) error {

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return err
	}

	pos := int64(address) + file.ResolveOffset(fi.Size())
	if pos >= fi.Size() {
		return fmt.Errorf(
			"address 0x%08x is outside of memory card (%d bytes)",
			address, fi.Size())
	}

	dumper := hex.Dumper(out)
	if _, err := io.Copy(dumper, io.NewSectionReader(
		f, pos, int64(size))); err != nil {
		return err
	}
	return dumper.Close()
}
