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

/*
	Package statsview runs a local HTTP server offering runtime statistics of
	the daemon, such as goroutines, heap, and GC pauses. After launch, charts
	are available at

		localhost:12600/debug/statsview

	and the standard Go pprof endpoints at

		localhost:12600/debug/pprof/
*/
package statsview

import (
	"fmt"
	"io"

	"github.com/go-echarts/statsview"
	"github.com/go-echarts/statsview/viewer"
	log "github.com/sirupsen/logrus"
)

//
const Address = "localhost:12600"
const url = "/debug/statsview"

// Launch starts the stats server on a new goroutine
func Launch(output io.Writer) {
	go func() {
		viewer.SetConfiguration(viewer.WithAddr(Address))
		mgr := statsview.New()
		mgr.Start()
		log.Info("stats server stopped")
	}()

	fmt.Fprintf(output, "stats server available at %s%s\n", Address, url)
}
