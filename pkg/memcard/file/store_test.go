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
	"os"
	"path/filepath"
	"testing"

	"github.com/xelalexv/oqtacard/pkg/config"
	"github.com/xelalexv/oqtacard/pkg/memcard/base"
	"github.com/xelalexv/oqtacard/pkg/test"
)

func smallCards(t *testing.T, cfg *config.Config) {
	t.Helper()
	for ix := range cfg.Slots {
		if path := cfg.FullPath(ix); path != "" {
			test.ExpectSuccess(t, Create(path, 1))
		}
	}
}

func TestStoreOpensActiveSlots(t *testing.T) {
	cfg := config.Default()
	cfg.Folder = t.TempDir()
	cfg.Multitap[1] = true
	for ix := 5; ix < 8; ix++ {
		cfg.Slots[ix].Enabled = true
	}
	cfg.Slots[6].SetCardType(base.CardFolder)
	cfg.Slots[7].File = ""
	smallCards(t, cfg)

	s := NewStore()
	test.ExpectSuccess(t, s.Open(cfg))
	defer s.Close()

	want := []bool{true, true, false, false, false, true, false, false}
	for ix, present := range want {
		if s.IsPresent(ix) != present {
			t.Errorf("slot %d: present is %v, want %v", ix, !present, present)
		}
	}
}

func TestStoreIsolatesFailures(t *testing.T) {
	cfg := config.Default()
	cfg.Folder = t.TempDir()
	cfg.Slots[0].File = filepath.Join(cfg.Folder, "missing", "card.ps2")
	test.ExpectSuccess(t, Create(cfg.FullPath(1), 1))

	s := NewStore()
	test.ExpectFailure(t, s.Open(cfg))
	defer s.Close()

	test.Equate(t, s.IsPresent(0), false)
	test.Equate(t, s.IsPresent(1), true)

	buf := []byte{1, 2, 3}
	test.ExpectSuccess(t, s.Read(0, buf, 0))
	test.Equate(t, buf, []byte{0, 0, 0})
}

func TestStoreCloseFlushesAll(t *testing.T) {
	cfg := config.Default()
	cfg.Folder = t.TempDir()
	smallCards(t, cfg)

	s := NewStore()
	test.ExpectSuccess(t, s.Open(cfg))
	test.ExpectSuccess(t, s.Save(0, make([]byte, 8), 0x1000))
	test.ExpectSuccess(t, s.Save(1, []byte{0, 1, 2, 3, 4, 5, 6, 7}, 0x1000))
	sums := []uint64{s.CRC(0), s.CRC(1)}
	test.ExpectSuccess(t, s.Close())

	for ix, sum := range sums {
		raw, err := os.ReadFile(cfg.FullPath(ix))
		test.ExpectSuccess(t, err)
		c := NewCard(ix)
		test.ExpectSuccess(t, c.Open(cfg.FullPath(ix)))
		test.Equate(t, c.Checksum(), sum)
		test.Equate(t, len(raw), MegaByte)
		c.Close()
	}
}

func TestStoreInvalidSlot(t *testing.T) {
	s := NewStore()
	test.Equate(t, s.IsPresent(9), false)
	test.Equate(t, s.CRC(-1), uint64(0))
	test.Equate(t, s.SizeInfo(8), base.SizeInfo{})
	test.ExpectFailure(t, s.Save(8, []byte{0}, 0))
	test.Equate(t, s.ReIndex(0, true, ""), false)
}
