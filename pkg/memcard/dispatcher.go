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
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/xelalexv/oqtacard/pkg/config"
	"github.com/xelalexv/oqtacard/pkg/memcard/base"
	"github.com/xelalexv/oqtacard/pkg/memcard/file"
	"github.com/xelalexv/oqtacard/pkg/memcard/slot"
	"github.com/xelalexv/oqtacard/pkg/repo"
)

// ErrNotInserted is returned for slots without a usable backend
var ErrNotInserted = errors.New("no memory card inserted")

// FolderBackend maps memory cards onto directory trees. It is not part of
// this module and gets passed in by the embedding application.
type FolderBackend interface {
	base.Backend

	Open(cfg *config.Config) error

	SetFiltering(enabled bool)
}

/*
	Dispatcher is the single entry point for the protocol layer. It routes
	every call for a port and multitap sub-slot to the backend configured for
	that slot. Slots without a usable backend behave as if no card were
	inserted.

	The dispatcher does not synchronise calls. Callers working from several
	goroutines use Lock and Unlock around their calls.
*/
type Dispatcher struct {
	//
	config *config.Config
	files  *file.Store
	folder FolderBackend
	//
	lock chan bool
}

// NewDispatcher creates a dispatcher for the given layout. folder may be nil,
// in which case slots configured as folder cards are not present.
func NewDispatcher(cfg *config.Config, folder FolderBackend) *Dispatcher {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Dispatcher{
		config: cfg,
		files:  file.NewStore(),
		folder: folder,
		lock:   make(chan bool, 1),
	}
}

//
func (d *Dispatcher) Lock(ctx context.Context) bool {
	select {
	case d.lock <- true:
		log.Trace("dispatcher locked")
		return true
	case <-ctx.Done():
		log.Debug("dispatcher lock timed out")
		return false
	}
}

//
func (d *Dispatcher) Unlock() {
	select {
	case <-d.lock:
		log.Trace("dispatcher unlocked")
	default:
		log.Debug("dispatcher was already unlocked")
	}
}

//
func (d *Dispatcher) Config() *config.Config {
	return d.config
}

// SetConfig replaces the layout. It takes effect with the next EmuOpen.
func (d *Dispatcher) SetConfig(cfg *config.Config) {
	d.config = cfg
}

// Files gives access to the file card store
func (d *Dispatcher) Files() *file.Store {
	return d.files
}

/*
	EmuOpen starts a session. The card type of each enabled slot is detected
	from what is present at its path, then all backends are opened. Slots that
	fail to open are disabled for the session. The returned error lists them,
	but all other slots are usable.
*/
func (d *Dispatcher) EmuOpen() error {

	for ix := 0; ix < slot.Count; ix++ {
		if s := d.config.Slot(ix); s != nil && s.Enabled {
			typ := base.CardFile
			if path := d.config.FullPath(ix); path != "" {
				typ = repo.Probe(path)
			}
			s.SetCardType(typ)
		}
	}

	var errs []error

	if err := d.files.Open(d.config); err != nil {
		errs = append(errs, err)
	}

	if d.folder != nil {
		d.folder.SetFiltering(d.config.FolderAutoManage)
		if err := d.folder.Open(d.config); err != nil {
			errs = append(errs, fmt.Errorf("folder cards: %w", err))
		}
	}

	return errors.Join(errs...)
}

// EmuClose ends a session, flushing and closing all cards.
func (d *Dispatcher) EmuClose() error {

	var errs []error

	if d.folder != nil {
		if err := d.folder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("folder cards: %w", err))
		}
	}

	if err := d.files.Close(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// backend returns the backend for port and sub-slot together with the
// logical slot. The backend is nil if the slot has none.
func (d *Dispatcher) backend(port, subslot int) (base.Backend, int) {

	logical := slot.ToLogical(port, subslot)
	if logical == slot.Invalid {
		return nil, logical
	}

	return d.backendFor(logical), logical
}

//
func (d *Dispatcher) backendFor(logical int) base.Backend {

	s := d.config.Slot(logical)
	if s == nil {
		return nil
	}

	switch s.CardType() {

	case base.CardFile:
		return d.files

	case base.CardFolder:
		if d.folder != nil {
			return d.folder
		}
	}

	return nil
}

//
func (d *Dispatcher) IsPresent(port, subslot int) bool {
	if b, logical := d.backend(port, subslot); b != nil {
		return b.IsPresent(logical)
	}
	return false
}

//
func (d *Dispatcher) SizeInfo(port, subslot int) base.SizeInfo {
	if b, logical := d.backend(port, subslot); b != nil {
		return b.SizeInfo(logical)
	}
	return base.SizeInfo{}
}

//
func (d *Dispatcher) IsPSX(port, subslot int) bool {
	if b, logical := d.backend(port, subslot); b != nil {
		return b.IsPSX(logical)
	}
	return false
}

//
func (d *Dispatcher) Read(port, subslot int, dest []byte, address uint32) error {
	if b, logical := d.backend(port, subslot); b != nil {
		return b.Read(logical, dest, address)
	}
	for ix := range dest {
		dest[ix] = 0
	}
	return ErrNotInserted
}

//
func (d *Dispatcher) Save(port, subslot int, src []byte, address uint32) error {
	if b, logical := d.backend(port, subslot); b != nil {
		return b.Save(logical, src, address)
	}
	return ErrNotInserted
}

//
func (d *Dispatcher) EraseBlock(port, subslot int, address uint32) error {
	if b, logical := d.backend(port, subslot); b != nil {
		return b.EraseBlock(logical, address)
	}
	return ErrNotInserted
}

//
func (d *Dispatcher) CRC(port, subslot int) uint64 {
	if b, logical := d.backend(port, subslot); b != nil {
		return b.CRC(logical)
	}
	return 0
}

//
func (d *Dispatcher) NextFrame(port, subslot int) {
	if b, logical := d.backend(port, subslot); b != nil {
		b.NextFrame(logical)
	}
}

//
func (d *Dispatcher) ReIndex(port, subslot int, filter string) bool {
	if b, logical := d.backend(port, subslot); b != nil {
		return b.ReIndex(logical, d.config.FolderAutoManage, filter)
	}
	return false
}

// SlotStatus summarises the state of one logical slot
type SlotStatus struct {
	Slot    int    `json:"slot"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Path    string `json:"path"`
	Present bool   `json:"present"`
	PSX     bool   `json:"psx"`
	Sectors uint32 `json:"sectors"`
	CRC     uint64 `json:"crc"`
}

//
func (s *SlotStatus) String() string {
	if !s.Present {
		return fmt.Sprintf("%-22s <%s>", s.Name, "empty")
	}
	kind := "PS2"
	if s.PSX {
		kind = "PSX"
	}
	return fmt.Sprintf("%-22s %-6s %s %6d sectors  crc %016x  %s",
		s.Name, s.Type, kind, s.Sectors, s.CRC, s.Path)
}

// Status returns the state of the logical slot
func (d *Dispatcher) Status(logical int) *SlotStatus {

	ret := &SlotStatus{Slot: logical, Name: slot.Describe(logical)}
	port, subslot := slot.ToPortSlot(logical)
	if port == slot.Invalid {
		return ret
	}

	if s := d.config.Slot(logical); s != nil {
		ret.Type = s.Type
		ret.Path = d.config.FullPath(logical)
	}

	if ret.Present = d.IsPresent(port, subslot); ret.Present {
		ret.PSX = d.IsPSX(port, subslot)
		ret.Sectors = d.SizeInfo(port, subslot).SizeInSectors
		ret.CRC = d.CRC(port, subslot)
	}

	return ret
}
