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
	"fmt"
	"os"

	"github.com/xelalexv/oqtacard/pkg/memcard/file"
)

//
func NewCreate() *Create {

	c := &Create{}
	c.Runner = *NewRunner(
		"create -f|--file {file} [-m|--megabytes {size}] [--force]",
		"create blank card file",
		`
Use the create command to create a new, blank PS2 memory card file. This does not
need a running daemon.`,
		"", `- A card megabyte is 1024 * 2 raw sectors of 528 bytes, i.e. it includes
  the spare area of each sector.

`+runnerHelpEpilogue, c.Run)

	c.AddSetting(&c.File, "file", "f", "", nil, "card file to create", true)
	c.AddSetting(&c.Size, "megabytes", "m", "", file.DefaultSizeMB,
		"card size in megabytes", false)
	c.AddSetting(&c.Force, "force", "", "", false,
		"force overwriting existing file", false)

	return c
}

//
type Create struct {
	//
	Runner
	//
	File  string
	Size  int
	Force bool
}

//
func (c *Create) Run() error {

	c.ParseSettings()

	switch c.Size {
	case 1, 2, 4, 8, 16, 32, 64:
	default:
		return fmt.Errorf(
			"invalid card size: %d; valid sizes are 1, 2, 4, 8, 16, 32, 64",
			c.Size)
	}

	if !c.Force {
		if _, err := os.Stat(c.File); err == nil &&
			!GetUserConfirmation("File exists, overwrite?") {
			return nil
		}
	}

	if err := file.Create(c.File, c.Size); err != nil {
		return err
	}

	fmt.Printf("created %dMB memory card %s\n", c.Size, c.File)
	return nil
}
