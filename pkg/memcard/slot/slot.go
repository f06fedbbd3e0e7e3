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

/*
	Package slot maps the console's card addressing onto logical slots.

	There are two standard ports, each of which can take a multitap with
	three additional sub-slots. Logical slots 0 and 1 are the standard slots,
	2 through 4 belong to the multitap on port 0, and 5 through 7 to the one
	on port 1.
*/
package slot

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

//
const Count = 8

// Invalid is returned for port/sub-slot pairs outside of the 8 slot domain
const Invalid = -1

// Strict turns programming errors in calls to this package into panics
var Strict bool

// ToLogical maps a port and multitap sub-slot to a logical slot.
func ToLogical(port, subslot int) int {

	if port < 0 || port > 1 || subslot < 0 || subslot > 3 {
		log.WithFields(log.Fields{
			"port": port, "subslot": subslot}).Warn("invalid card address")
		return Invalid
	}

	if subslot == 0 {
		return port
	}
	if port == 0 {
		return subslot + 1
	}
	return subslot + 4
}

// ToPortSlot is the inverse of ToLogical.
func ToPortSlot(logical int) (port, subslot int) {
	if !IsValid(logical) {
		return Invalid, Invalid
	}
	if !IsMultitap(logical) {
		return logical, 0
	}
	return MultitapPort(logical), MultitapSlot(logical)
}

//
func IsValid(logical int) bool {
	return 0 <= logical && logical < Count
}

//
func IsMultitap(logical int) bool {
	return logical > 1
}

// MultitapPort returns the port of the multitap to which the logical slot
// belongs. Standard slots have no multitap port.
func MultitapPort(logical int) int {

	switch logical {

	case 2, 3, 4:
		return 0

	case 5, 6, 7:
		return 1

	case 0, 1:
		programmingError(
			"MultitapPort called for standard slot %d", logical)
		return logical
	}

	programmingError("MultitapPort called for invalid slot %d", logical)
	return 0
}

// MultitapSlot returns the multitap sub-slot, 1 through 3. Sub-slot 0 refers
// to the standard slots, so calling this for them is a programming error.
func MultitapSlot(logical int) int {

	switch logical {

	case 2, 3, 4:
		return logical - 1

	case 5, 6, 7:
		return logical - 4

	case 0, 1:
		programmingError(
			"MultitapSlot called for standard slot %d", logical)
		return 0
	}

	programmingError("MultitapSlot called for invalid slot %d", logical)
	return 0
}

// DefaultName returns the file name a card in the logical slot gets when the
// user has not configured one.
func DefaultName(logical int) string {
	if IsMultitap(logical) {
		return fmt.Sprintf("Mcd-Multitap%d-Slot%02d.ps2",
			MultitapPort(logical)+1, MultitapSlot(logical)+1)
	}
	return fmt.Sprintf("Mcd%03d.ps2", logical+1)
}

// Describe gives a human readable name for the logical slot
func Describe(logical int) string {
	if !IsValid(logical) {
		return fmt.Sprintf("<invalid slot %d>", logical)
	}
	if IsMultitap(logical) {
		return fmt.Sprintf("multitap %d, slot %d",
			MultitapPort(logical)+1, MultitapSlot(logical)+1)
	}
	return fmt.Sprintf("port %d", logical+1)
}

//
func programmingError(msg string, params ...interface{}) {
	if Strict {
		panic(fmt.Sprintf(msg, params...))
	}
	log.Errorf(msg, params...)
}
