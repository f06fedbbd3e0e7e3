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

package daemon

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

//
const CmdHello = 'h'   // hello (receive from adapter)
const CmdPing = 'P'    // ping/pong (send/receive to/from adapter)
const CmdPresent = 'p' // is card present
const CmdPSX = 'x'     // is card a PSX card
const CmdInfo = 'i'    // card size info
const CmdRead = 'r'    // read block
const CmdWrite = 'w'   // write block
const CmdErase = 'e'   // erase block
const CmdCRC = 'c'     // card CRC
const CmdFrame = 'f'   // next frame

const StatusOK = 0x00
const StatusFailed = 0x01

var ping = []byte("Ping")
var pong = []byte("Pong")

//
const lockTimeout = 5 * time.Second

/*
	A command frame is 8 bytes long:

		| cmd | port | sub-slot | reserved | address (4 bytes, little endian) |

	Read and write commands are followed by a two byte block length, and write
	commands additionally by the block data.
*/
func newCommand(data []byte) *command {
	return &command{data: data}
}

//
type command struct {
	data []byte
}

//
func (c *command) dispatch(d *Daemon, con *conduit) error {

	switch c.cmd() {

	case CmdHello:
		d.synced = false
		return nil

	case CmdPing:
		if bytes.Equal(c.data[:len(ping)], ping) {
			log.Debug("ping from adapter")
			return con.send(pong)
		}
		return fmt.Errorf("corrupted ping: %v", c.data)
	}

	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()
	if !d.dispatcher.Lock(ctx) {
		return fmt.Errorf("could not lock card dispatcher")
	}
	defer d.dispatcher.Unlock()

	switch c.cmd() {

	case CmdPresent:
		return con.send([]byte{boolByte(
			d.dispatcher.IsPresent(c.port(), c.subslot()))})

	case CmdPSX:
		return con.send([]byte{boolByte(
			d.dispatcher.IsPSX(c.port(), c.subslot()))})

	case CmdInfo:
		return c.info(d, con)

	case CmdRead:
		return c.read(d, con)

	case CmdWrite:
		return c.write(d, con)

	case CmdErase:
		err := d.dispatcher.EraseBlock(c.port(), c.subslot(), c.address())
		c.entry(err).Debug("ERASE")
		return con.send([]byte{statusByte(err)})

	case CmdCRC:
		crc := make([]byte, 8)
		binary.LittleEndian.PutUint64(
			crc, d.dispatcher.CRC(c.port(), c.subslot()))
		return con.send(crc)

	case CmdFrame:
		d.dispatcher.NextFrame(c.port(), c.subslot())
		return nil
	}

	return fmt.Errorf("unknown command: %v", c.data)
}

//
func (c *command) info(d *Daemon, con *conduit) error {
	info := d.dispatcher.SizeInfo(c.port(), c.subslot())
	ret := make([]byte, 9)
	binary.LittleEndian.PutUint16(ret[0:], info.SectorSize)
	binary.LittleEndian.PutUint16(ret[2:], info.EraseBlockSizeInSectors)
	binary.LittleEndian.PutUint32(ret[4:], info.SizeInSectors)
	ret[8] = info.Xor
	return con.send(ret)
}

//
func (c *command) read(d *Daemon, con *conduit) error {

	length, err := con.receiveLength()
	if err != nil {
		return err
	}

	reply := con.buf[:length+1]
	if err = d.dispatcher.Read(
		c.port(), c.subslot(), reply[1:], c.address()); err != nil {
		for ix := range reply {
			reply[ix] = 0
		}
	}
	reply[0] = statusByte(err)

	c.entry(err).WithField("size", length).Debug("READ")
	return con.send(reply)
}

//
func (c *command) write(d *Daemon, con *conduit) error {

	length, err := con.receiveLength()
	if err != nil {
		return err
	}

	data := con.buf[:length]
	if err := con.receive(data); err != nil {
		return fmt.Errorf("error reading block: %v", err)
	}

	err = d.dispatcher.Save(c.port(), c.subslot(), data, c.address())

	c.entry(err).WithField("size", length).Debug("WRITE")
	return con.send([]byte{statusByte(err)})
}

//
func (c *command) entry(err error) *log.Entry {
	ret := log.WithFields(log.Fields{
		"port":    c.port(),
		"subslot": c.subslot(),
		"address": fmt.Sprintf("0x%08x", c.address()),
	})
	if err != nil {
		ret = ret.WithError(err)
	}
	return ret
}

//
func (c *command) cmd() byte {
	return c.data[0]
}

//
func (c *command) port() int {
	return int(c.data[1])
}

//
func (c *command) subslot() int {
	return int(c.data[2])
}

//
func (c *command) address() uint32 {
	return binary.LittleEndian.Uint32(c.data[4:8])
}

//
func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

//
func statusByte(err error) byte {
	if err != nil {
		return StatusFailed
	}
	return StatusOK
}
