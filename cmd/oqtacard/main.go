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

package main

import (
	"fmt"
	"os"

	"github.com/xelalexv/oqtacard/pkg/run"
)

//
var OqtaCardVersion string

//
func synopsis() {
	fmt.Print(`
synopsis: oqtacard {serve|ls|info|read|write|erase|crc|dump|create|reload|version} ...

run 'oqtacard {action} -h|--help' to see detailed info

`)
}

//
func version() {
	fmt.Printf("\nOqtaCard %s\n\n", OqtaCardVersion)
}

//
func main() {

	var action string
	var args []string

	if len(os.Args) > 1 {
		action = os.Args[1]
	}

	if len(os.Args) > 2 {
		args = os.Args[2:]
	}

	switch action {

	case "serve":
		version()
		run.DieOnError(run.NewServe().Execute(args))

	case "ls":
		run.DieOnError(run.NewList().Execute(args))

	case "info":
		run.DieOnError(run.NewInfo().Execute(args))

	case "read":
		run.DieOnError(run.NewRead().Execute(args))

	case "write":
		run.DieOnError(run.NewWrite().Execute(args))

	case "erase":
		run.DieOnError(run.NewErase().Execute(args))

	case "crc":
		run.DieOnError(run.NewCRC().Execute(args))

	case "dump":
		run.DieOnError(run.NewDump().Execute(args))

	case "create":
		run.DieOnError(run.NewCreate().Execute(args))

	case "reload":
		run.DieOnError(run.NewReload().Execute(args))

	case "version":
		version()

	case "":
		fallthrough
	case "-h":
		fallthrough
	case "--help":
		synopsis()

	default:
		run.Die("unknown action: %s\n", action)
	}
}
