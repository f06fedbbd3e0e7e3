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
	"encoding/binary"
	"fmt"
	"io"

	"github.com/jacobsa/go-serial/serial"
	log "github.com/sirupsen/logrus"

	"github.com/xelalexv/oqtacard/pkg/memcard/file"
)

//
const commandLength = 8

// largest block of data transferred in one read or write request
const maxTransferLength = file.EraseBlockSize

//
var helloDaemon = []byte("hlod")
var helloAdapter = []byte("hloa")

//
type conduit struct {
	port io.ReadWriteCloser
	// data buffer for read and write requests
	buf []byte
}

//
func newConduit(port io.ReadWriteCloser) *conduit {
	return &conduit{
		port: port,
		buf:  make([]byte, maxTransferLength+1),
	}
}

//
func openPort(p string) (io.ReadWriteCloser, error) {
	return serial.Open(serial.OpenOptions{
		PortName:        p,
		BaudRate:        1000000,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
	})
}

//
func (c *conduit) close() error {
	return c.port.Close()
}

// syncOnHello consumes incoming bytes until the adapter's hello shows up,
// then answers with the daemon's hello.
func (c *conduit) syncOnHello() error {

	log.Info("syncing with adapter")
	hello := make([]byte, len(helloAdapter))

	for !bytes.Equal(hello, helloAdapter) {
		shiftLeft(hello)
		if err := c.receive(hello[len(hello)-1:]); err != nil {
			return err
		}
	}

	if err := c.send(helloDaemon); err != nil {
		return fmt.Errorf("error sending daemon hello: %v", err)
	}

	log.Info("synced with adapter")
	return nil
}

//
func (c *conduit) receive(data []byte) error {
	_, err := io.ReadFull(c.port, data)
	return err
}

//
func (c *conduit) send(data []byte) error {
	_, err := c.port.Write(data)
	return err
}

//
func (c *conduit) receiveCommand() (*command, error) {
	data := make([]byte, commandLength)
	if err := c.receive(data); err != nil {
		return nil, err
	}
	return newCommand(data), nil
}

// receiveLength reads the two byte length of the data block that follows a
// read or write request.
func (c *conduit) receiveLength() (int, error) {

	raw := make([]byte, 2)
	if err := c.receive(raw); err != nil {
		return 0, fmt.Errorf("error reading block length: %v", err)
	}

	length := int(binary.LittleEndian.Uint16(raw))
	if length > maxTransferLength {
		return 0, fmt.Errorf(
			"block length %d exceeds maximum of %d", length, maxTransferLength)
	}

	return length, nil
}

//
func shiftLeft(data []byte) {
	copy(data, data[1:])
	data[len(data)-1] = 0
}
