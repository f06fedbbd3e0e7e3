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
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/xelalexv/oqtacard/pkg/memcard/file"
	"github.com/xelalexv/oqtacard/pkg/memcard/slot"
)

// slotRef addresses a card slot both logically and by port and sub-slot
type slotRef struct {
	logical int
	port    int
	subslot int
}

//
func (s *slotRef) String() string {
	return slot.Describe(s.logical)
}

//
func getSlot(w http.ResponseWriter, req *http.Request) *slotRef {

	vars := mux.Vars(req)
	logical, err := strconv.Atoi(vars["slot"])
	if handleError(err, http.StatusUnprocessableEntity, w) {
		return nil
	}

	port, subslot := slot.ToPortSlot(logical)
	if port == slot.Invalid {
		handleError(fmt.Errorf("invalid slot: %d", logical),
			http.StatusUnprocessableEntity, w)
		return nil
	}

	return &slotRef{logical: logical, port: port, subslot: subslot}
}

// getSize returns the size argument, or one raw sector if not given
func getSize(w http.ResponseWriter, req *http.Request) int {

	arg, err := getArg(req, "size")
	if handleError(err, http.StatusUnprocessableEntity, w) {
		return -1
	}
	if arg == "" {
		return file.RawSectorSize
	}

	size, err := getIntArg(req, "size")
	if err == nil && (size < 1 || size > maxBodySize) {
		err = fmt.Errorf("size must be between 1 and %d", maxBodySize)
	}
	if handleError(err, http.StatusUnprocessableEntity, w) {
		return -1
	}

	return size
}

//
func (a *api) isPresent(w http.ResponseWriter, s *slotRef) bool {
	if !a.dispatcher.IsPresent(s.port, s.subslot) {
		handleError(fmt.Errorf("no memory card in %s", s),
			http.StatusUnprocessableEntity, w)
		return false
	}
	return true
}

// readCard reads the block requested by address and size arguments
func (a *api) readCard(w http.ResponseWriter, req *http.Request) []byte {

	s := getSlot(w, req)
	if s == nil {
		return nil
	}

	address, err := getAddressArg(req, "address")
	if handleError(err, http.StatusUnprocessableEntity, w) {
		return nil
	}

	size := getSize(w, req)
	if size == -1 {
		return nil
	}

	if !a.lock(w, req) {
		return nil
	}
	defer a.dispatcher.Unlock()

	if !a.isPresent(w, s) {
		return nil
	}

	buf := make([]byte, size)
	if handleError(a.dispatcher.Read(s.port, s.subslot, buf, address),
		http.StatusUnprocessableEntity, w) {
		return nil
	}

	return buf
}

//
func (a *api) read(w http.ResponseWriter, req *http.Request) {
	if buf := a.readCard(w, req); buf != nil {
		sendRawReply(buf, http.StatusOK, w)
	}
}

//
func (a *api) dump(w http.ResponseWriter, req *http.Request) {
	if buf := a.readCard(w, req); buf != nil {
		setHeaders(w.Header(), false)
		w.WriteHeader(http.StatusOK)
		if err := writeDump(w, buf); err != nil {
			log.Errorf("problem sending dump: %v", err)
		}
	}
}

//
func writeDump(w io.Writer, buf []byte) error {
	d := hex.Dumper(w)
	if _, err := d.Write(buf); err != nil {
		d.Close()
		return err
	}
	return d.Close()
}

//
func (a *api) write(w http.ResponseWriter, req *http.Request) {

	s := getSlot(w, req)
	if s == nil {
		return
	}

	address, err := getAddressArg(req, "address")
	if handleError(err, http.StatusUnprocessableEntity, w) {
		return
	}

	data, err := io.ReadAll(io.LimitReader(req.Body, maxBodySize+1))
	if handleError(err, http.StatusInternalServerError, w) {
		return
	}
	if len(data) > maxBodySize {
		handleError(fmt.Errorf("data exceeds %d bytes", maxBodySize),
			http.StatusRequestEntityTooLarge, w)
		return
	}
	if len(data) == 0 {
		handleError(fmt.Errorf("no data to write"),
			http.StatusUnprocessableEntity, w)
		return
	}

	if !a.lock(w, req) {
		return
	}
	defer a.dispatcher.Unlock()

	if !a.isPresent(w, s) {
		return
	}

	if handleError(a.dispatcher.Save(s.port, s.subslot, data, address),
		http.StatusUnprocessableEntity, w) {
		return
	}

	sendReply([]byte(fmt.Sprintf("wrote %d bytes to %s at 0x%08x",
		len(data), s, address)), http.StatusOK, w)
}

//
func (a *api) erase(w http.ResponseWriter, req *http.Request) {

	s := getSlot(w, req)
	if s == nil {
		return
	}

	address, err := getAddressArg(req, "address")
	if handleError(err, http.StatusUnprocessableEntity, w) {
		return
	}

	if !a.lock(w, req) {
		return
	}
	defer a.dispatcher.Unlock()

	if !a.isPresent(w, s) {
		return
	}

	if handleError(a.dispatcher.EraseBlock(s.port, s.subslot, address),
		http.StatusUnprocessableEntity, w) {
		return
	}

	sendReply([]byte(fmt.Sprintf("erased block in %s at 0x%08x",
		s, address)), http.StatusOK, w)
}

//
func (a *api) info(w http.ResponseWriter, req *http.Request) {

	s := getSlot(w, req)
	if s == nil {
		return
	}

	if !a.lock(w, req) {
		return
	}
	defer a.dispatcher.Unlock()

	if !a.isPresent(w, s) {
		return
	}

	info := a.dispatcher.SizeInfo(s.port, s.subslot)
	if wantsJSON(req) {
		sendJSONReply(info, http.StatusOK, w)
	} else {
		sendReply([]byte(info.String()), http.StatusOK, w)
	}
}

//
func (a *api) crc(w http.ResponseWriter, req *http.Request) {

	s := getSlot(w, req)
	if s == nil {
		return
	}

	if !a.lock(w, req) {
		return
	}
	defer a.dispatcher.Unlock()

	if !a.isPresent(w, s) {
		return
	}

	crc := a.dispatcher.CRC(s.port, s.subslot)
	if wantsJSON(req) {
		sendJSONReply(&CRC{Slot: s.logical, CRC: crc}, http.StatusOK, w)
	} else {
		sendReply([]byte(fmt.Sprintf("%016x", crc)), http.StatusOK, w)
	}
}

//
func (a *api) reindex(w http.ResponseWriter, req *http.Request) {

	s := getSlot(w, req)
	if s == nil {
		return
	}

	filter, err := getArg(req, "filter")
	if handleError(err, http.StatusUnprocessableEntity, w) {
		return
	}

	if !a.lock(w, req) {
		return
	}
	defer a.dispatcher.Unlock()

	if !a.dispatcher.ReIndex(s.port, s.subslot, filter) {
		handleError(fmt.Errorf("%s does not hold a folder card", s),
			http.StatusUnprocessableEntity, w)
		return
	}

	sendReply([]byte(fmt.Sprintf("re-indexed %s", s)), http.StatusOK, w)
}
