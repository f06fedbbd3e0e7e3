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

package file

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/xelalexv/oqtacard/pkg/memcard/base"
)

//
const (
	SectorSize        = 512
	SpareSize         = 16
	RawSectorSize     = SectorSize + SpareSize
	EraseBlockSectors = 16
	EraseBlockSize    = RawSectorSize * EraseBlockSectors

	// legacy PSX card size, 1024 * 8 * 16
	LegacySize = 0x20000

	// a card megabyte includes spare areas
	MegaByte = 1024 * RawSectorSize * 2

	DefaultSizeMB  = 8
	DefaultSectors = 0x4000

	// the running checksum is kept here in standard cards
	ChecksumAddress = 0x210

	// 0x12 is the XOR of 02 00 00 10, i.e. sector size and erase block size
	sizeInfoXor = 0x12

	crcChunkSize = RawSectorSize * 8 * 8

	writeNotifyInterval = 5 * time.Second
)

// header lengths of legacy image variants, detected by total file length
var legacyHeaders = []int64{64, 3904}

// the erased state of one erase block
var erased = newErased()

//
func newErased() []byte {
	ret := make([]byte, EraseBlockSize)
	for ix := range ret {
		ret[ix] = 0xff
	}
	return ret
}

// Erased returns a copy of the erase block pattern.
func Erased() []byte {
	ret := make([]byte, len(erased))
	copy(ret, erased)
	return ret
}

/*
	Card provides direct file IO for the memory card in one logical slot. It
	is not safe for concurrent use. Callers serialise access.
*/
type Card struct {
	//
	slot     int
	path     string
	file     *os.File
	psx      bool
	checksum uint64
	// read/modify/write buffer for Save, grows on demand
	scratch []byte
	//
	notify *notifier
}

//
func NewCard(slot int) *Card {
	return &Card{
		slot:   slot,
		notify: newNotifier(writeNotifyInterval),
	}
}

/*
	Open opens the card file at path for reading and writing. A missing or
	empty file is first created with the default size. For standard cards,
	the running checksum is loaded from the card.
*/
func (c *Card) Open(path string) error {

	if c.IsPresent() {
		log.WithField("slot", c.slot).Warn("re-opening open card")
		if err := c.Close(); err != nil {
			log.WithField("slot", c.slot).Errorf("error closing card: %v", err)
		}
	}

	if fi, err := os.Stat(path); err != nil || fi.Size() == 0 {
		if err := Create(path, DefaultSizeMB); err != nil {
			log.WithField("slot", c.slot).Errorf(
				"could not create memory card %s: %v", path, err)
		}
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("access denied to memory card %s: %w", path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("cannot get size of memory card %s: %w", path, err)
	}

	c.file = f
	c.path = path
	c.psx = fi.Size() == LegacySize
	c.checksum = 0

	if !c.psx {
		var buf [8]byte
		if _, err := f.ReadAt(buf[:], ChecksumAddress); err != nil {
			log.WithField("slot", c.slot).Warnf("could not load checksum: %v", err)
		} else {
			c.checksum = binary.LittleEndian.Uint64(buf[:])
		}
	}

	log.WithFields(log.Fields{
		"slot": c.slot,
		"path": path,
		"psx":  c.psx,
		"size": fi.Size(),
	}).Info("memory card opened")

	return nil
}

// Close stores the checksum for standard cards and closes the card file. The
// file is closed even if storing the checksum fails.
func (c *Card) Close() error {

	if !c.IsPresent() {
		return nil
	}

	var ret error

	if !c.psx {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], c.checksum)
		if _, err := c.file.WriteAt(buf[:], ChecksumAddress); err != nil {
			log.WithField("slot", c.slot).Warnf("could not store checksum: %v", err)
			ret = fmt.Errorf("error storing checksum: %w", err)
		}
	}

	if err := c.file.Close(); err != nil && ret == nil {
		ret = fmt.Errorf("error closing memory card: %w", err)
	}

	log.WithFields(log.Fields{"slot": c.slot, "path": c.path}).Info(
		"memory card closed")

	c.file = nil
	return ret
}

//
func (c *Card) IsPresent() bool {
	return c.file != nil
}

//
func (c *Card) IsPSX() bool {
	return c.psx
}

//
func (c *Card) Path() string {
	return c.path
}

// Checksum returns the running checksum, as it would be stored on close.
func (c *Card) Checksum() uint64 {
	return c.checksum
}

//
func (c *Card) length() (int64, error) {
	fi, err := c.file.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

/*
	ResolveOffset returns the offset at which card data starts, given the
	length of the card file. Some legacy images carry a header in front of
	the card data, and can only be told apart by their length.
*/
func ResolveOffset(length int64) int64 {
	for _, h := range legacyHeaders {
		if length == LegacySize+h {
			return h
		}
	}
	return 0
}

// seek returns the file position for address. It fails if the position is
// outside of the file.
func (c *Card) seek(address uint32) (int64, error) {

	size, err := c.length()
	if err != nil {
		return 0, err
	}

	pos := int64(address) + ResolveOffset(size)
	if pos > size {
		return 0, fmt.Errorf(
			"address 0x%08x is outside of memory card (%d bytes)", address, size)
	}

	return pos, nil
}

/*
	Read fills dest with card data starting at address. Reading from a card
	that is not open is not an error, dest is zeroed in that case.
*/
func (c *Card) Read(dest []byte, address uint32) error {

	if !c.IsPresent() {
		log.WithField("slot", c.slot).Debug(
			"ignoring attempted read from disabled slot")
		for ix := range dest {
			dest[ix] = 0
		}
		return nil
	}

	pos, err := c.seek(address)
	if err != nil {
		return fmt.Errorf("error reading from slot %d: %w", c.slot, err)
	}

	if _, err := c.file.ReadAt(dest, pos); err != nil {
		return fmt.Errorf("error reading from slot %d: %w", c.slot, err)
	}

	log.WithFields(log.Fields{
		"slot": c.slot, "address": address, "size": len(dest)}).Trace("READ")

	return nil
}

/*
	Save writes src to the card at address. Standard cards behave like flash
	memory, a write can only clear bits. Setting a bit requires an erase
	first. Writes that try to set bits are logged, and the bits stay cleared.
	Legacy cards take the data as is.

	Writing to a card that is not open is ignored.
*/
func (c *Card) Save(src []byte, address uint32) error {

	if !c.IsPresent() {
		log.WithField("slot", c.slot).Debug(
			"ignoring attempted save to disabled slot")
		return nil
	}

	pos, err := c.seek(address)
	if err != nil {
		return fmt.Errorf("error saving to slot %d: %w", c.slot, err)
	}

	buf := c.scratchFor(len(src))

	if c.psx {
		copy(buf, src)

	} else {
		n, err := c.file.ReadAt(buf, pos)
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("error saving to slot %d: %w", c.slot, err)
		}
		// beyond the end of the file counts as erased
		for ix := n; ix < len(buf); ix++ {
			buf[ix] = 0xff
		}

		if uncleared := merge(buf, src); uncleared > 0 {
			log.WithFields(log.Fields{
				"slot":    c.slot,
				"address": fmt.Sprintf("0x%08x", address),
				"bytes":   uncleared,
			}).Warn("writing to uncleared data")
		}

		if address == ChecksumAddress {
			log.WithField("slot", c.slot).Warn("checksum sector overwritten")
		}

		c.checksum ^= fold(buf)
	}

	if _, err := c.file.WriteAt(buf, pos); err != nil {
		return fmt.Errorf("error saving to slot %d: %w", c.slot, err)
	}

	log.WithFields(log.Fields{
		"slot": c.slot, "address": address, "size": len(src)}).Trace("SAVE")

	if c.notify.ready() {
		log.Infof("memory card %s written", filepath.Base(c.path))
	}

	return nil
}

// EraseBlock sets the erase block at address to all 0xff. Erasing on a card
// that is not open is ignored.
func (c *Card) EraseBlock(address uint32) error {

	if !c.IsPresent() {
		log.WithField("slot", c.slot).Debug(
			"ignoring attempted erase on disabled slot")
		return nil
	}

	pos, err := c.seek(address)
	if err != nil {
		return fmt.Errorf("error erasing block on slot %d: %w", c.slot, err)
	}

	if _, err := c.file.WriteAt(erased, pos); err != nil {
		return fmt.Errorf("error erasing block on slot %d: %w", c.slot, err)
	}

	log.WithFields(log.Fields{"slot": c.slot, "address": address}).Trace("ERASE")
	return nil
}

/*
	CRC returns a checksum over the card contents. For standard cards, this is
	the running checksum. Legacy cards do not keep one, so the whole file is
	folded on every call. A card that is not open yields 0.
*/
func (c *Card) CRC() uint64 {

	if !c.IsPresent() {
		return 0
	}

	if !c.psx {
		return c.checksum
	}

	pos, err := c.seek(0)
	if err != nil {
		log.WithField("slot", c.slot).Errorf("cannot compute CRC: %v", err)
		return 0
	}

	size, err := c.length()
	if err != nil {
		log.WithField("slot", c.slot).Errorf("cannot compute CRC: %v", err)
		return 0
	}

	var ret uint64
	chunk := make([]byte, crcChunkSize)

	// trailing bytes that do not fill a chunk are not included
	for ix := int64(0); ix < size/crcChunkSize; ix++ {
		if _, err := c.file.ReadAt(chunk, pos+ix*crcChunkSize); err != nil {
			log.WithField("slot", c.slot).Errorf("cannot compute CRC: %v", err)
			return 0
		}
		ret ^= fold(chunk)
	}

	return ret
}

// SizeInfo returns the card geometry. For a card that is not open, the
// geometry of a default 8MB card is reported.
func (c *Card) SizeInfo() base.SizeInfo {

	ret := base.SizeInfo{
		SectorSize:              SectorSize,
		EraseBlockSizeInSectors: EraseBlockSectors,
		SizeInSectors:           DefaultSectors,
		Xor:                     sizeInfoXor,
	}

	if c.IsPresent() {
		if size, err := c.length(); err != nil {
			log.WithField("slot", c.slot).Errorf("cannot get card size: %v", err)
		} else {
			ret.SizeInSectors = uint32(size / RawSectorSize)
		}
	}

	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], ret.SizeInSectors)
	ret.Xor ^= buf[0] ^ buf[1] ^ buf[2] ^ buf[3]

	return ret
}

//
func (c *Card) scratchFor(size int) []byte {
	if cap(c.scratch) < size {
		c.scratch = make([]byte, size)
	}
	return c.scratch[:size]
}

// merge clears all bits in dst that are clear in src, and returns the number
// of bytes in which src has bits set that are clear in dst.
func merge(dst, src []byte) int {
	ret := 0
	for ix := range dst {
		if dst[ix]&src[ix] != src[ix] {
			ret++
		}
		dst[ix] &= src[ix]
	}
	return ret
}

// fold XORs all complete 64 bit little endian words in data
func fold(data []byte) uint64 {
	var ret uint64
	for ix := 0; ix+8 <= len(data); ix += 8 {
		ret ^= binary.LittleEndian.Uint64(data[ix:])
	}
	return ret
}

// Create creates a new blank card file of the given size at path. A file
// that is only partially written is left in place.
func Create(path string, sizeInMB int) error {

	log.Infof("creating new %dMB memory card: %s", sizeInMB, path)

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	for ix := 0; ix < MegaByte*sizeInMB/EraseBlockSize; ix++ {
		if _, err := f.Write(erased); err != nil {
			f.Close()
			return fmt.Errorf("error writing memory card %s: %w", path, err)
		}
	}

	return f.Close()
}

//
type notifier struct {
	interval time.Duration
	now      func() time.Time
	last     time.Time
}

//
func newNotifier(interval time.Duration) *notifier {
	return &notifier{interval: interval, now: time.Now}
}

// ready reports whether the interval has passed since the last time ready
// returned true
func (n *notifier) ready() bool {
	t := n.now()
	if t.Sub(n.last) > n.interval {
		n.last = t
		return true
	}
	return false
}
