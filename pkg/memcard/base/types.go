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

package base

import (
	"fmt"
	"strings"
)

//
type CardType int

const (
	CardNone CardType = iota
	CardFile
	CardFolder
)

//
func (t CardType) String() string {

	switch t {

	case CardFile:
		return "file"

	case CardFolder:
		return "folder"

	default:
		return "none"
	}
}

//
func GetCardType(t string) CardType {

	switch strings.ToLower(strings.TrimSpace(t)) {

	case "file":
		return CardFile

	case "folder":
		return CardFolder

	default:
		return CardNone
	}
}

// SizeInfo is the card geometry reported to the guest
type SizeInfo struct {
	SectorSize              uint16 `json:"sectorSize"`
	EraseBlockSizeInSectors uint16 `json:"eraseBlockSizeInSectors"`
	SizeInSectors           uint32 `json:"sizeInSectors"`
	Xor                     uint8  `json:"xor"`
}

//
func (s SizeInfo) String() string {
	return fmt.Sprintf(
		"sector size: %d, erase block: %d sectors, sectors: %d, xor: 0x%02x",
		s.SectorSize, s.EraseBlockSizeInSectors, s.SizeInSectors, s.Xor)
}

/*
	Backend is a storage strategy for memory cards. All methods take a logical
	slot (0 through 7). A backend never fails hard on a slot that is not
	present: reads see an empty card, writes are ignored.
*/
type Backend interface {
	//
	Close() error

	IsPresent(slot int) bool

	SizeInfo(slot int) SizeInfo

	IsPSX(slot int) bool

	// Read fills dest with card data starting at address
	Read(slot int, dest []byte, address uint32) error

	// Save writes src to the card starting at address
	Save(slot int, src []byte, address uint32) error

	// EraseBlock resets the erase block at address to all 0xff
	EraseBlock(slot int, address uint32) error

	CRC(slot int) uint64

	// NextFrame is called by the protocol layer once per emulated frame
	NextFrame(slot int)

	// ReIndex rebuilds the backend's view of the slot, with the given filter
	ReIndex(slot int, enableFiltering bool, filter string) bool
}
