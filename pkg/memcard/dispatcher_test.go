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

package memcard

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xelalexv/oqtacard/pkg/config"
	"github.com/xelalexv/oqtacard/pkg/memcard/base"
	"github.com/xelalexv/oqtacard/pkg/memcard/file"
	"github.com/xelalexv/oqtacard/pkg/test"
)

// folderStub records the calls made to a folder backend
type folderStub struct {
	opened    bool
	closed    bool
	filtering bool
	frames    []int
	reindexed string
}

func (f *folderStub) Open(cfg *config.Config) error { f.opened = true; return nil }
func (f *folderStub) Close() error                  { f.closed = true; return nil }
func (f *folderStub) SetFiltering(enabled bool)     { f.filtering = enabled }
func (f *folderStub) IsPresent(slot int) bool       { return true }
func (f *folderStub) IsPSX(slot int) bool           { return false }
func (f *folderStub) CRC(slot int) uint64           { return 0xf01de7 }
func (f *folderStub) NextFrame(slot int)            { f.frames = append(f.frames, slot) }

func (f *folderStub) SizeInfo(slot int) base.SizeInfo {
	return base.SizeInfo{SectorSize: 512, SizeInSectors: 1}
}

func (f *folderStub) Read(slot int, dest []byte, address uint32) error {
	for ix := range dest {
		dest[ix] = 0xf0
	}
	return nil
}

func (f *folderStub) Save(slot int, src []byte, address uint32) error { return nil }
func (f *folderStub) EraseBlock(slot int, address uint32) error       { return nil }

func (f *folderStub) ReIndex(slot int, filtering bool, filter string) bool {
	f.reindexed = filter
	return true
}

func newLayout(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Folder = t.TempDir()
	test.ExpectSuccess(t, file.Create(cfg.FullPath(0), 1))
	test.ExpectSuccess(t, os.Mkdir(cfg.FullPath(1), 0755))
	return cfg
}

func TestEmuOpenDetectsCardTypes(t *testing.T) {
	cfg := newLayout(t)
	folder := &folderStub{}
	d := NewDispatcher(cfg, folder)

	test.ExpectSuccess(t, d.EmuOpen())
	test.Equate(t, cfg.Slots[0].CardType(), base.CardFile)
	test.Equate(t, cfg.Slots[1].CardType(), base.CardFolder)
	test.Equate(t, folder.opened, true)
	test.Equate(t, folder.filtering, true)

	test.Equate(t, d.IsPresent(0, 0), true)
	test.Equate(t, d.CRC(1, 0), uint64(0xf01de7))

	buf := make([]byte, 4)
	test.ExpectSuccess(t, d.Read(1, 0, buf, 0))
	test.Equate(t, buf, []byte{0xf0, 0xf0, 0xf0, 0xf0})

	d.NextFrame(1, 0)
	d.NextFrame(0, 0)
	test.Equate(t, folder.frames, []int{1})

	test.Equate(t, d.ReIndex(1, 0, "SLUS"), true)
	test.Equate(t, folder.reindexed, "SLUS")
	test.Equate(t, d.ReIndex(0, 0, "SLUS"), false)

	test.ExpectSuccess(t, d.EmuClose())
	test.Equate(t, folder.closed, true)
	test.Equate(t, d.IsPresent(0, 0), false)
}

func TestFileCardRoundTrip(t *testing.T) {
	cfg := newLayout(t)
	d := NewDispatcher(cfg, nil)
	test.ExpectSuccess(t, d.EmuOpen())
	defer d.EmuClose()

	data := []byte("BEDATA-SYSTEM\x00\x00\x00")
	test.ExpectSuccess(t, d.Save(0, 0, data, 0x2000))

	got := make([]byte, len(data))
	test.ExpectSuccess(t, d.Read(0, 0, got, 0x2000))
	test.Equate(t, got, data)

	test.ExpectSuccess(t, d.EraseBlock(0, 0, 0x2000-0x2000%file.EraseBlockSize))
	test.ExpectSuccess(t, d.Read(0, 0, got, 0x2000))
	test.Equate(t, got, bytes.Repeat([]byte{0xff}, len(data)))

	test.Equate(t, d.IsPSX(0, 0), false)
	test.Equate(t, d.SizeInfo(0, 0).SizeInSectors, uint32(0x800))
}

func TestMissingBackendIsNotInserted(t *testing.T) {
	cfg := newLayout(t)
	d := NewDispatcher(cfg, nil)
	test.ExpectSuccess(t, d.EmuOpen())
	defer d.EmuClose()

	// slot 1 is a folder, but there is no folder backend
	test.Equate(t, d.IsPresent(1, 0), false)
	test.Equate(t, d.CRC(1, 0), uint64(0))
	test.Equate(t, d.SizeInfo(1, 0), base.SizeInfo{})

	buf := []byte{1, 2}
	test.Equate(t, errors.Is(d.Read(1, 0, buf, 0), ErrNotInserted), true)
	test.Equate(t, buf, []byte{0, 0})
	test.Equate(t, errors.Is(d.Save(1, 0, buf, 0), ErrNotInserted), true)
	test.Equate(t, errors.Is(d.EraseBlock(1, 0, 0), ErrNotInserted), true)

	// address outside of the slot domain
	test.Equate(t, d.IsPresent(3, 0), false)
	test.Equate(t, errors.Is(d.Read(0, 7, buf, 0), ErrNotInserted), true)
}

func TestUnknownTypeIsNotInserted(t *testing.T) {
	cfg := config.Default()
	cfg.Slots[0].Type = "tape"
	d := NewDispatcher(cfg, nil)
	test.Equate(t, d.IsPresent(0, 0), false)
	test.Equate(t, d.IsPSX(0, 0), false)
}

func TestDisabledSlotIsTransparent(t *testing.T) {
	cfg := newLayout(t)
	cfg.Slots[0].Enabled = false
	d := NewDispatcher(cfg, nil)
	test.ExpectSuccess(t, d.EmuOpen())
	defer d.EmuClose()

	buf := []byte{7, 7, 7}
	test.ExpectSuccess(t, d.Read(0, 0, buf, 0))
	test.Equate(t, buf, []byte{0, 0, 0})
	test.ExpectSuccess(t, d.Save(0, 0, buf, 0))
	test.Equate(t, d.CRC(0, 0), uint64(0))
}

func TestLock(t *testing.T) {
	d := NewDispatcher(nil, nil)
	test.Equate(t, d.Lock(context.Background()), true)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	test.Equate(t, d.Lock(ctx), false)

	d.Unlock()
	d.Unlock()
	test.Equate(t, d.Lock(context.Background()), true)
	d.Unlock()
}

func TestStatus(t *testing.T) {
	cfg := newLayout(t)
	d := NewDispatcher(cfg, nil)
	test.ExpectSuccess(t, d.EmuOpen())
	defer d.EmuClose()

	s := d.Status(0)
	test.Equate(t, s.Present, true)
	test.Equate(t, s.Type, "file")
	test.Equate(t, s.Path, filepath.Join(cfg.Folder, "Mcd001.ps2"))
	test.Equate(t, s.Sectors, uint32(0x800))

	s = d.Status(4)
	test.Equate(t, s.Present, false)
	test.Equate(t, s.Name, "multitap 1, slot 4")
}
