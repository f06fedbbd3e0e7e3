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
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xelalexv/oqtacard/pkg/memcard/file"
	"github.com/xelalexv/oqtacard/pkg/test"
)

func TestAPIEndpoint(t *testing.T) {
	for _, c := range []struct{ in, out string }{
		{"", "127.0.0.1:8888"},
		{":9000", "127.0.0.1:9000"},
		{"cardhost", "cardhost:8888"},
		{"cardhost:1234", "cardhost:1234"},
	} {
		test.Equate(t, apiEndpoint(c.in), c.out)
	}
}

func TestParseAddress(t *testing.T) {
	a, err := parseAddress("0x2100")
	test.ExpectSuccess(t, err)
	test.Equate(t, a, uint32(0x2100))

	a, err = parseAddress("")
	test.ExpectSuccess(t, err)
	test.Equate(t, a, uint32(0))

	_, err = parseAddress("0x1ffffffff")
	test.ExpectFailure(t, err)
}

func TestValidateSlot(t *testing.T) {
	test.ExpectSuccess(t, validateSlot(0))
	test.ExpectSuccess(t, validateSlot(7))
	test.ExpectFailure(t, validateSlot(8))
	test.ExpectFailure(t, validateSlot(-1))
}

func TestAPICall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, req *http.Request) {
			if req.URL.Path == "/list" {
				io.WriteString(w, "all good")
				return
			}
			w.WriteHeader(http.StatusUnprocessableEntity)
			io.WriteString(w, "no memory card in port 2\n")
		}))
	defer srv.Close()

	r := &Runner{Address: strings.TrimPrefix(srv.URL, "http://")}

	resp, err := r.apiCall("GET", "/list", false, nil)
	test.ExpectSuccess(t, err)
	body, _ := io.ReadAll(resp)
	resp.Close()
	test.Equate(t, string(body), "all good")

	_, err = r.apiCall("GET", "/slot/1/info", false, nil)
	test.ExpectFailure(t, err)
	test.Equate(t, err.Error(), "no memory card in port 2 (422)")
}

func TestDumpFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "card.ps2")
	test.ExpectSuccess(t, file.Create(path, 1))

	var out bytes.Buffer
	test.ExpectSuccess(t, dumpFile(path, 0x10, 16, &out))
	test.Equate(t, strings.Contains(out.String(),
		"ff ff ff ff ff ff ff ff  ff ff ff ff ff ff ff ff"), true)

	test.ExpectFailure(t, dumpFile(path, 2*file.MegaByte, 16, &out))
	test.ExpectFailure(t, dumpFile(filepath.Join(t.TempDir(), "nope"), 0, 16, &out))
}

func TestSaveBlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "block.bin")
	n, err := saveBlock(path, bytes.NewReader([]byte{1, 2, 3}))
	test.ExpectSuccess(t, err)
	test.Equate(t, n, int64(3))

	data, err := os.ReadFile(path)
	test.ExpectSuccess(t, err)
	test.Equate(t, data, []byte{1, 2, 3})
}

func TestSaveBlockReportsFullDisk(t *testing.T) {
	if _, err := os.Stat("/dev/full"); err != nil {
		t.Skip("no /dev/full on this system")
	}
	n, err := saveBlock("/dev/full", bytes.NewReader(make([]byte, 16)))
	test.ExpectFailure(t, err)
	test.Equate(t, n, int64(0))
}
