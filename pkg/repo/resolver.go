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

package repo

import (
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/xelalexv/oqtacard/pkg/memcard/base"
)

// PrefixRepoRef marks card names that are relative to the card folder even
// when they look absolute
const PrefixRepoRef = "repo://"

// FullPath resolves a card name against the card folder. Absolute names are
// kept as they are.
func FullPath(folder, name string) string {

	if name == "" {
		return ""
	}

	if IsReference(name) {
		name = strings.TrimLeft(name[len(PrefixRepoRef):], "/")
	} else if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}

	return filepath.Join(folder, name)
}

// Probe detects which kind of card is present at path. A missing path is
// reported as a file card, so that it gets created on open.
func Probe(path string) base.CardType {

	fi, err := os.Stat(path)

	switch {

	case err == nil && fi.IsDir():
		return base.CardFolder

	case err == nil:
		return base.CardFile

	case os.IsNotExist(err):
		log.WithField("path", path).Debug("no card present, using file card")
		return base.CardFile

	default:
		log.WithField("path", path).Warnf("cannot probe card: %v", err)
		return base.CardFile
	}
}

//
func IsReference(r string) bool {
	return strings.HasPrefix(r, PrefixRepoRef)
}
