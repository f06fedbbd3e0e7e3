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
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/xelalexv/oqtacard/pkg/config"
	"github.com/xelalexv/oqtacard/pkg/memcard"
	"github.com/xelalexv/oqtacard/pkg/memcard/slot"
)

//
func (a *api) status(w http.ResponseWriter, req *http.Request) {

	if !a.lock(w, req) {
		return
	}
	defer a.dispatcher.Unlock()

	stat := &Status{}
	cfg := a.dispatcher.Config()

	for ix := 0; ix < slot.Count; ix++ {
		s := a.dispatcher.Status(ix)
		switch {
		case !cfg.IsSlotActive(ix):
			stat.Add("disabled")
		case !s.Present:
			stat.Add("empty")
		case s.PSX:
			stat.Add(fmt.Sprintf("%s, PSX card", s.Type))
		default:
			stat.Add(fmt.Sprintf("%s, PS2 card", s.Type))
		}
	}

	if wantsJSON(req) {
		sendJSONReply(stat, http.StatusOK, w)
	} else {
		sendReply([]byte(stat.String()), http.StatusOK, w)
	}
}

//
func (a *api) list(w http.ResponseWriter, req *http.Request) {

	if !a.lock(w, req) {
		return
	}
	defer a.dispatcher.Unlock()

	list := make([]*memcard.SlotStatus, slot.Count)
	for ix := range list {
		list[ix] = a.dispatcher.Status(ix)
	}

	if wantsJSON(req) {
		sendJSONReply(list, http.StatusOK, w)

	} else {
		strList := "\nSLOT CARD"
		for _, s := range list {
			strList += fmt.Sprintf("\n  %d  %s", s.Slot, s.String())
		}
		sendReply([]byte(strList), http.StatusOK, w)
	}
}

/*
	reload ends the current card session, re-reads the card layout, and starts
	a new session. Cards that fail to open are reported, all others are usable
	afterwards.
*/
func (a *api) reload(w http.ResponseWriter, req *http.Request) {

	if !a.lock(w, req) {
		return
	}
	defer a.dispatcher.Unlock()

	cfg := a.dispatcher.Config()

	if a.configFile != "" {
		var err error
		if cfg, err = config.Load(a.configFile); handleError(
			err, http.StatusUnprocessableEntity, w) {
			return
		}
	}

	if err := a.dispatcher.EmuClose(); err != nil {
		log.Errorf("error closing cards: %v", err)
	}

	a.dispatcher.SetConfig(cfg)

	if err := a.dispatcher.EmuOpen(); err != nil {
		handleError(fmt.Errorf("reloaded with errors: %v", err),
			http.StatusInternalServerError, w)
		return
	}

	sendReply([]byte("reloaded card layout"), http.StatusOK, w)
}
