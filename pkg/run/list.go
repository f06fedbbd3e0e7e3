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

//
func NewList() *List {

	l := &List{}
	l.Runner = *NewRunner(
		"ls [-a|--address {address}]",
		"get card list from daemon",
		"\nUse the ls command to get a list of all card slots from the daemon.",
		"", runnerHelpEpilogue, l.Run)

	l.AddBaseSettings()

	return l
}

//
type List struct {
	Runner
}

//
func (l *List) Run() error {
	l.ParseSettings()
	return l.printCall("GET", "/list", nil)
}
