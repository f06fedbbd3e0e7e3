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
	"errors"
	"io"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/xelalexv/oqtacard/pkg/memcard"
)

//
var ErrDaemonStopped = errors.New("daemon stopped")

// the daemon that serves card requests coming from the adapter
type Daemon struct {
	//
	dispatcher *memcard.Dispatcher
	port       string
	opener     func(string) (io.ReadWriteCloser, error)
	//
	mu      sync.Mutex
	conduit *conduit
	synced  bool
	//
	stop     chan struct{}
	stopOnce sync.Once
}

//
func NewDaemon(port string, d *memcard.Dispatcher) *Daemon {
	return &Daemon{
		dispatcher: d,
		port:       port,
		opener:     openPort,
		stop:       make(chan struct{}),
	}
}

//
func (d *Daemon) Serve() error {
	return d.listen()
}

// Stop ends Serve, which then returns ErrDaemonStopped
func (d *Daemon) Stop() {
	d.stopOnce.Do(func() {
		log.Info("daemon stopping...")
		close(d.stop)
		d.closeConduit()
	})
}

//
func (d *Daemon) isStopped() bool {
	select {
	case <-d.stop:
		return true
	default:
		return false
	}
}

//
func (d *Daemon) listen() error {

	if err := d.ResetConduit(); err != nil {
		return err
	}

	var cmd *command
	var err error

	for ; ; cmd = nil {

		con := d.getConduit()
		if con == nil {
			return ErrDaemonStopped
		}

		if d.synced {
			if cmd, err = con.receiveCommand(); err != nil {
				log.Errorf("error receiving command: %v", err)
				d.synced = false
			}

		} else {
			if err = con.syncOnHello(); err != nil {
				log.Errorf("error syncing with adapter: %v", err)
			} else {
				d.synced = true
			}
		}

		if d.isStopped() {
			return ErrDaemonStopped
		}

		if err != nil {
			if err := d.ResetConduit(); err != nil {
				return err
			}

		} else if cmd != nil {
			if err = cmd.dispatch(d, con); err != nil {
				log.Errorf("error dispatching command: %v", err)
				d.synced = false
			}
		}
	}
}

// ResetConduit closes the serial port if open, and opens it again. Opening is
// retried with growing backoff until it succeeds or the daemon is stopped.
func (d *Daemon) ResetConduit() error {

	d.synced = false
	d.closeConduit()

	maxBackoff := 15 * time.Second

	for backoff := time.Second; ; {

		if d.isStopped() {
			return ErrDaemonStopped
		}

		log.Infof("opening port %s", d.port)
		port, err := d.opener(d.port)
		if err == nil {
			d.mu.Lock()
			d.conduit = newConduit(port)
			d.mu.Unlock()
			return nil
		}

		log.Errorf("cannot open serial port: %v", err)
		if backoff < maxBackoff {
			backoff *= 2
		}

		select {
		case <-d.stop:
			return ErrDaemonStopped
		case <-time.After(backoff):
		}
	}
}

//
func (d *Daemon) getConduit() *conduit {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conduit
}

//
func (d *Daemon) closeConduit() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conduit != nil {
		log.Infof("closing port %s", d.port)
		if err := d.conduit.close(); err != nil {
			log.Errorf("error closing port: %v", err)
		}
		d.conduit = nil
	}
}
