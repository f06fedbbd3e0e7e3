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
)

//
func NewInfo() *Info {

	i := &Info{}
	i.Runner = *NewRunner(
		"info [-s|--slot {slot}] [-a|--address {address}]",
		"get card size info from daemon",
		"\nUse the info command to get the geometry of the card in a slot.",
		"", runnerHelpEpilogue, i.Run)

	i.AddBaseSettings()
	i.AddSetting(&i.Slot, "slot", "s", "", 0, "slot number (0-7)", false)

	return i
}

//
type Info struct {
	//
	Runner
	//
	Slot int
}

//
func (i *Info) Run() error {

	i.ParseSettings()

	if err := validateSlot(i.Slot); err != nil {
		return err
	}

	return i.printCall("GET", fmt.Sprintf("/slot/%d/info", i.Slot), nil)
}

//
func NewCRC() *CRC {

	c := &CRC{}
	c.Runner = *NewRunner(
		"crc [-s|--slot {slot}] [-a|--address {address}]",
		"get card checksum from daemon",
		`
Use the crc command to get the checksum of the card in a slot. For PS2 cards,
this is the running checksum maintained by the daemon. For PSX cards, it is
computed over the whole card.`,
		"", runnerHelpEpilogue, c.Run)

	c.AddBaseSettings()
	c.AddSetting(&c.Slot, "slot", "s", "", 0, "slot number (0-7)", false)

	return c
}

//
type CRC struct {
	//
	Runner
	//
	Slot int
}

//
func (c *CRC) Run() error {

	c.ParseSettings()

	if err := validateSlot(c.Slot); err != nil {
		return err
	}

	return c.printCall("GET", fmt.Sprintf("/slot/%d/crc", c.Slot), nil)
}

//
func NewReload() *Reload {

	r := &Reload{}
	r.Runner = *NewRunner(
		"reload [-a|--address {address}]",
		"reload card layout",
		`
Use the reload command to make the daemon close all cards, read its card layout
again, and re-open the cards.`,
		"", runnerHelpEpilogue, r.Run)

	r.AddBaseSettings()

	return r
}

//
type Reload struct {
	Runner
}

//
func (r *Reload) Run() error {
	r.ParseSettings()
	return r.printCall("PUT", "/reload", nil)
}
