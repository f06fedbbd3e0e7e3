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

package control

import (
	"fmt"
)

//
type Status struct {
	Slots []string `json:"slots"`
}

//
func (s *Status) Add(state string) {
	s.Slots = append(s.Slots, state)
}

//
func (s *Status) String() string {
	ret := "\n"
	for ix, state := range s.Slots {
		ret = fmt.Sprintf("%s%d: %s\n", ret, ix, state)
	}
	return ret
}

//
type CRC struct {
	Slot int    `json:"slot"`
	CRC  uint64 `json:"crc"`
}
