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
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/xelalexv/oqtacard/pkg/config"
	"github.com/xelalexv/oqtacard/pkg/memcard/base"
	"github.com/xelalexv/oqtacard/pkg/memcard/slot"
)

// Store is the file backed card strategy, holding one card per logical slot.
type Store struct {
	cards []*Card
}

//
func NewStore() *Store {
	s := &Store{cards: make([]*Card, slot.Count)}
	for ix := range s.cards {
		s.cards[ix] = NewCard(ix)
	}
	return s
}

/*
	Open opens the cards of all slots that are active and configured as file
	cards. A slot that fails to open stays disabled for this session, the
	remaining slots are still opened. All failures are returned together.
*/
func (s *Store) Open(cfg *config.Config) error {

	var errs []error

	for ix, card := range s.cards {

		if slot.IsMultitap(ix) &&
			!cfg.IsMultitapEnabled(slot.MultitapPort(ix)) {
			continue
		}

		path := cfg.FullPath(ix)
		msg := path
		skip := false

		if path == "" {
			msg = "[empty filename]"
			skip = true
		}

		if sl := cfg.Slot(ix); sl == nil || !sl.Enabled {
			msg = "[disabled]"
			skip = true

		} else if sl.CardType() != base.CardFile {
			msg = "[is not memcard file]"
			skip = true
		}

		log.WithField("slot", ix).Infof("card slot %s [file]: %s",
			slot.Describe(ix), msg)
		if skip {
			continue
		}

		if err := card.Open(path); err != nil {
			log.WithField("slot", ix).Errorf(
				"%v; slot %s has been disabled for this session",
				err, slot.Describe(ix))
			errs = append(errs, fmt.Errorf("slot %d: %w", ix, err))
		}
	}

	return errors.Join(errs...)
}

// Close closes all open cards, independently of each other.
func (s *Store) Close() error {
	var errs []error
	for ix, card := range s.cards {
		if err := card.Close(); err != nil {
			errs = append(errs, fmt.Errorf("slot %d: %w", ix, err))
		}
	}
	return errors.Join(errs...)
}

// Card returns the card for the logical slot, nil if there is no such slot.
func (s *Store) Card(logical int) *Card {
	if slot.IsValid(logical) {
		return s.cards[logical]
	}
	return nil
}

//
func (s *Store) IsPresent(logical int) bool {
	if c := s.Card(logical); c != nil {
		return c.IsPresent()
	}
	return false
}

//
func (s *Store) SizeInfo(logical int) base.SizeInfo {
	if c := s.Card(logical); c != nil {
		return c.SizeInfo()
	}
	return base.SizeInfo{}
}

//
func (s *Store) IsPSX(logical int) bool {
	if c := s.Card(logical); c != nil {
		return c.IsPSX()
	}
	return false
}

//
func (s *Store) Read(logical int, dest []byte, address uint32) error {
	if c := s.Card(logical); c != nil {
		return c.Read(dest, address)
	}
	return fmt.Errorf("invalid slot: %d", logical)
}

//
func (s *Store) Save(logical int, src []byte, address uint32) error {
	if c := s.Card(logical); c != nil {
		return c.Save(src, address)
	}
	return fmt.Errorf("invalid slot: %d", logical)
}

//
func (s *Store) EraseBlock(logical int, address uint32) error {
	if c := s.Card(logical); c != nil {
		return c.EraseBlock(address)
	}
	return fmt.Errorf("invalid slot: %d", logical)
}

//
func (s *Store) CRC(logical int) uint64 {
	if c := s.Card(logical); c != nil {
		return c.CRC()
	}
	return 0
}

// NextFrame has no meaning for file cards.
func (s *Store) NextFrame(logical int) {}

// ReIndex has no meaning for file cards.
func (s *Store) ReIndex(logical int, enableFiltering bool, filter string) bool {
	return false
}
