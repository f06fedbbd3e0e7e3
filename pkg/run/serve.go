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

package run

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/xelalexv/oqtacard/pkg/config"
	"github.com/xelalexv/oqtacard/pkg/control"
	"github.com/xelalexv/oqtacard/pkg/daemon"
	"github.com/xelalexv/oqtacard/pkg/memcard"
	"github.com/xelalexv/oqtacard/pkg/statsview"
)

//
func NewServe() *Serve {

	s := &Serve{}
	s.Runner = *NewRunner(
		`serve [-c|--config {card layout}] [-d|--device {device}] [-a|--address {address}]
      [-s|--stats]`,
		"daemon & API server command",
		`Use the serve command for running the card daemon and API server. The card layout
determines which card file or folder is inserted into which slot. Without a layout,
the two standard slots use Mcd001.ps2 and Mcd002.ps2 in the current folder. When a
serial device is given, the daemon serves card requests from an adapter attached
to it.`,
		"", `- Logging can be configured with these environment variables:

  LOG_FORMAT		set to 'json' for JSON logging
  LOG_FORCE_COLORS	set to non-empty for forcing colorized log entries
  LOG_METHODS		set to non-empty for including methods in log
  LOG_LEVEL		panic, fatal, error, warn, info, debug, trace

- Settings in the card layout can be overridden with environment variables
  prefixed with OQTACARD_, e.g. OQTACARD_FOLDER.

`+runnerHelpEpilogue, s.Run)

	s.AddBaseSettings()
	s.AddSetting(&s.Config, "config", "c", "OQTACARD_CONFIG", nil,
		"card layout file (YAML, JSON, or TOML)", false)
	s.AddSetting(&s.Device, "device", "d", "OQTACARD_DEVICE", nil,
		"serial port device for adapter; when omitted, no daemon is started", false)
	s.AddSetting(&s.Stats, "stats", "s", "", false,
		"launch runtime stats server on "+statsview.Address, false)

	return s
}

//
type Serve struct {
	//
	Runner
	//
	Config string
	Device string
	Stats  bool
}

//
func (s *Serve) Run() error {

	s.ParseSettings()

	cfg, err := config.Load(s.Config)
	if err != nil {
		return err
	}

	disp := memcard.NewDispatcher(cfg, nil)
	if err := disp.EmuOpen(); err != nil {
		log.Warnf("not all cards could be opened: %v", err)
	}

	if s.Stats {
		statsview.Launch(os.Stdout)
	}

	wg := &sync.WaitGroup{}

	var d *daemon.Daemon
	if s.Device != "" {
		wg.Add(1)
		d = daemon.NewDaemon(s.Device, disp)
		go func() {
			defer wg.Done()
			err := d.Serve()
			if err != nil && err != daemon.ErrDaemonStopped {
				log.Errorf("daemon closed with error: %v", err)
			} else {
				log.Info("daemon stopped")
			}
		}()
	} else {
		log.Info("no serial device given, not starting daemon")
	}

	wg.Add(1)
	api := control.NewAPIServer(s.Address, s.Config, disp)
	go func() {
		defer wg.Done()
		if err := api.Serve(); err != nil {
			log.Errorf("API server closed with error: %v", err)
		} else {
			log.Info("API server stopped")
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	sigCount := 0
	done := make(chan bool)

	for {

		select {

		case sig := <-sigs: // interrupt signal
			log.WithField("signal", sig).Info("signal received")
			sigCount++

			switch sigCount {

			case 1:
				go func() {
					log.Info("shutting down, hit Ctrl-C twice to force exit...")
					api.Stop()
					if d != nil {
						d.Stop()
					}
					wg.Wait()
					closeCards(disp)
					log.Info("OqtaCard stopped")
					done <- true
				}()

			case 2:
				log.Warn("shutdown in progress, hit Ctrl-C again to force exit")

			default:
				log.Warn("forcing daemon to stop immediately")
				os.Exit(1)
			}

		case <-done: // shutdown sequence complete
			return nil
		}
	}
}

// closeCards ends the card session, so that checksums get persisted
func closeCards(disp *memcard.Dispatcher) {

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if disp.Lock(ctx) {
		defer disp.Unlock()
	} else {
		log.Warn("could not lock card dispatcher, closing cards anyway")
	}

	if err := disp.EmuClose(); err != nil {
		log.Errorf("error closing cards: %v", err)
	}
}
