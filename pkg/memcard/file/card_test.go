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
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/xelalexv/oqtacard/pkg/test"
)

// newCard creates a blank card of sizeInMB in a temp folder and opens it
func newCard(t *testing.T, sizeInMB int) *Card {
	t.Helper()
	path := filepath.Join(t.TempDir(), "card.ps2")
	test.ExpectSuccess(t, Create(path, sizeInMB))
	c := NewCard(0)
	test.ExpectSuccess(t, c.Open(path))
	t.Cleanup(func() { c.Close() })
	return c
}

// newLegacyCard writes data as a legacy card image and opens it
func newLegacyCard(t *testing.T, data []byte) *Card {
	t.Helper()
	path := filepath.Join(t.TempDir(), "legacy.mcr")
	test.ExpectSuccess(t, os.WriteFile(path, data, 0644))
	c := NewCard(1)
	test.ExpectSuccess(t, c.Open(path))
	t.Cleanup(func() { c.Close() })
	return c
}

func pattern(size int, seed byte) []byte {
	ret := make([]byte, size)
	for ix := range ret {
		ret[ix] = seed ^ byte(ix*7)
	}
	return ret
}

func TestCreateThenRead(t *testing.T) {
	c := newCard(t, DefaultSizeMB)
	test.Equate(t, c.IsPresent(), true)
	test.Equate(t, c.IsPSX(), false)

	fi, err := os.Stat(c.Path())
	test.ExpectSuccess(t, err)
	test.Equate(t, fi.Size(), int64(MegaByte*DefaultSizeMB))

	for _, addr := range []uint32{0, 0x4200, 8*MegaByte - SectorSize} {
		buf := make([]byte, SectorSize)
		test.ExpectSuccess(t, c.Read(buf, addr))
		test.Equate(t, buf, bytes.Repeat([]byte{0xff}, SectorSize))
	}
}

func TestOpenCreatesMissingCard(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Mcd001.ps2")
	c := NewCard(0)
	test.ExpectSuccess(t, c.Open(path))
	defer c.Close()

	fi, err := os.Stat(path)
	test.ExpectSuccess(t, err)
	test.Equate(t, fi.Size(), int64(MegaByte*DefaultSizeMB))
}

func TestOpenFailureLeavesCardClosed(t *testing.T) {
	c := NewCard(3)
	path := filepath.Join(t.TempDir(), "missing", "card.ps2")
	test.ExpectFailure(t, c.Open(path))
	test.Equate(t, c.IsPresent(), false)
}

func TestFlashMerge(t *testing.T) {
	c := newCard(t, 1)

	existing := pattern(SectorSize, 0x5a)
	incoming := pattern(SectorSize, 0xc3)

	test.ExpectSuccess(t, c.Save(existing, 0x400))
	test.ExpectSuccess(t, c.Save(incoming, 0x400))

	want := make([]byte, SectorSize)
	for ix := range want {
		want[ix] = existing[ix] & incoming[ix]
	}

	got := make([]byte, SectorSize)
	test.ExpectSuccess(t, c.Read(got, 0x400))
	test.Equate(t, got, want)
}

// warnings returns the messages of all warn entries captured by hook
func warnings(hook *logtest.Hook) map[string]*log.Entry {
	ret := map[string]*log.Entry{}
	for _, e := range hook.AllEntries() {
		if e.Level == log.WarnLevel {
			ret[e.Message] = e
		}
	}
	return ret
}

func TestGuestMisbehaviourWarnsAndProceeds(t *testing.T) {
	c := newCard(t, 1)
	hook := logtest.NewGlobal()
	defer hook.Reset()

	initial := c.Checksum()
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}

	test.ExpectSuccess(t, c.Save(data, ChecksumAddress))
	w := warnings(hook)
	test.Equate(t, w["checksum sector overwritten"] != nil, true)
	test.Equate(t, w["writing to uncleared data"] == nil, true)
	test.Equate(t, c.Checksum()^initial, fold(data))
	test.Equate(t, c.Checksum()^initial, uint64(0x0807060504030201))

	hook.Reset()
	test.ExpectSuccess(t, c.Save(bytes.Repeat([]byte{0xff}, 8), ChecksumAddress))
	w = warnings(hook)
	test.Equate(t, w["checksum sector overwritten"] != nil, true)
	if e := w["writing to uncleared data"]; e == nil {
		t.Errorf("no warning for writing to uncleared data")
	} else {
		test.Equate(t, e.Data["bytes"], 8)
	}

	// bits stay cleared, and the merged block is folded in again
	got := make([]byte, len(data))
	test.ExpectSuccess(t, c.Read(got, ChecksumAddress))
	test.Equate(t, got, data)
	test.Equate(t, c.Checksum(), initial)
}

func TestLegacyWriteIsVerbatim(t *testing.T) {
	c := newLegacyCard(t, make([]byte, LegacySize))
	test.Equate(t, c.IsPSX(), true)

	data := pattern(128, 0x81)
	test.ExpectSuccess(t, c.Save(data, 0x80))

	got := make([]byte, 128)
	test.ExpectSuccess(t, c.Read(got, 0x80))
	test.Equate(t, got, data)
	test.Equate(t, c.Checksum(), uint64(0))
}

func TestEraseBlock(t *testing.T) {
	c := newCard(t, 1)

	test.ExpectSuccess(t, c.Save(make([]byte, EraseBlockSize), EraseBlockSize))
	got := make([]byte, EraseBlockSize)
	test.ExpectSuccess(t, c.Read(got, EraseBlockSize))
	test.Equate(t, got, make([]byte, EraseBlockSize))

	test.ExpectSuccess(t, c.EraseBlock(EraseBlockSize))
	test.ExpectSuccess(t, c.Read(got, EraseBlockSize))
	test.Equate(t, got, Erased())
}

func TestChecksumIsOrderIndependent(t *testing.T) {
	writes := []struct {
		data []byte
		addr uint32
	}{
		{pattern(SectorSize, 0x11), 0x1000},
		{pattern(SectorSize, 0x22), 0x2000},
		{pattern(64, 0x33), 0x3000},
	}

	forward := newCard(t, 1)
	initial := forward.Checksum()
	want := initial
	for _, w := range writes {
		want ^= fold(w.data)
		test.ExpectSuccess(t, forward.Save(w.data, w.addr))
	}
	test.Equate(t, forward.Checksum(), want)

	backward := newCard(t, 1)
	test.Equate(t, backward.Checksum(), initial)
	for ix := len(writes) - 1; ix >= 0; ix-- {
		test.ExpectSuccess(t, backward.Save(writes[ix].data, writes[ix].addr))
	}
	test.Equate(t, backward.Checksum(), forward.Checksum())
}

func TestChecksumPersists(t *testing.T) {
	c := newCard(t, 1)
	test.ExpectSuccess(t, c.Save(pattern(SectorSize, 0x42), 0x8000))
	sum := c.Checksum()
	path := c.Path()

	test.ExpectSuccess(t, c.Close())

	raw, err := os.ReadFile(path)
	test.ExpectSuccess(t, err)
	test.Equate(t, binary.LittleEndian.Uint64(raw[ChecksumAddress:]), sum)

	test.ExpectSuccess(t, c.Open(path))
	test.Equate(t, c.Checksum(), sum)
	test.Equate(t, c.CRC(), sum)
}

func TestLegacyCRC(t *testing.T) {
	data := pattern(LegacySize, 0x99)
	c := newLegacyCard(t, data)

	var want uint64
	for ix := 0; ix+crcChunkSize <= len(data); ix += crcChunkSize {
		want ^= fold(data[ix : ix+crcChunkSize])
	}
	test.Equate(t, c.CRC(), want)

	// not cached
	test.ExpectSuccess(t, c.Save([]byte{0, 0, 0, 0, 0, 0, 0, 0}, 0))
	want ^= binary.LittleEndian.Uint64(data)
	test.Equate(t, c.CRC(), want)
}

func TestClosedCardIsTransparent(t *testing.T) {
	c := NewCard(5)

	buf := bytes.Repeat([]byte{0xaa}, 32)
	test.ExpectSuccess(t, c.Read(buf, 0))
	test.Equate(t, buf, make([]byte, 32))

	test.ExpectSuccess(t, c.Save(buf, 0))
	test.ExpectSuccess(t, c.EraseBlock(0))
	test.Equate(t, c.CRC(), uint64(0))
	test.ExpectSuccess(t, c.Close())
}

func TestResolveOffset(t *testing.T) {
	test.Equate(t, ResolveOffset(LegacySize), int64(0))
	test.Equate(t, ResolveOffset(LegacySize+64), int64(64))
	test.Equate(t, ResolveOffset(LegacySize+3904), int64(3904))
	test.Equate(t, ResolveOffset(MegaByte*8), int64(0))
}

func TestHeaderOffsetOnRead(t *testing.T) {
	data := make([]byte, LegacySize+64)
	copy(data[64:], []byte("BEGIN"))
	c := newLegacyCard(t, data)

	// not a PSX card by length, but addresses shift past the header
	test.Equate(t, c.IsPSX(), false)
	got := make([]byte, 5)
	test.ExpectSuccess(t, c.Read(got, 0))
	test.Equate(t, got, []byte("BEGIN"))
}

func TestReadOutsideCardFails(t *testing.T) {
	c := newCard(t, 1)
	buf := make([]byte, 16)
	test.ExpectFailure(t, c.Read(buf, MegaByte+1))
	test.ExpectFailure(t, c.Read(buf, MegaByte-8))
}

func TestSizeInfo(t *testing.T) {
	info := NewCard(0).SizeInfo()
	test.Equate(t, info.SectorSize, uint16(512))
	test.Equate(t, info.EraseBlockSizeInSectors, uint16(16))
	test.Equate(t, info.SizeInSectors, uint32(0x4000))
	test.Equate(t, info.Xor, uint8(0x12^0x40))

	info = newCard(t, 1).SizeInfo()
	test.Equate(t, info.SizeInSectors, uint32(0x800))
	test.Equate(t, info.Xor, uint8(0x12^0x08))
}

func TestScratchGrowsOnly(t *testing.T) {
	c := newCard(t, 1)
	test.ExpectSuccess(t, c.Save(make([]byte, 1024), 0x4000))
	test.Equate(t, cap(c.scratch), 1024)
	test.ExpectSuccess(t, c.Save(make([]byte, 16), 0x4000))
	test.Equate(t, cap(c.scratch), 1024)
}

func TestWriteNotificationIsRateLimited(t *testing.T) {
	now := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	n := newNotifier(5 * time.Second)
	n.now = func() time.Time { return now }

	test.Equate(t, n.ready(), true)
	now = now.Add(time.Second)
	test.Equate(t, n.ready(), false)
	now = now.Add(5 * time.Second)
	test.Equate(t, n.ready(), true)
}

func TestCreateFailsOnBadPath(t *testing.T) {
	test.ExpectFailure(t,
		Create(filepath.Join(t.TempDir(), "no", "such", "dir.ps2"), 1))
}
