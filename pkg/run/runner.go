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
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/xelalexv/oqtacard/pkg/memcard/slot"
)

//
const defaultAPIPort = "8888"

//
const runnerHelpPrologue = ""
const runnerHelpEpilogue = `- When a flag can be set via environment variable, the variable name is given
  in parenthesis at the end of the flag explanation. Note however that a flag,
  when specified overrides an environment variable.

- Card addresses can be given in decimal, or in hex with a 0x prefix.
`

/*
	NewRunner creates a base runner for commands to use. The parameters are
	passed to the base command wrapped by this runner.
*/
func NewRunner(use, short, long, helpPrologue, helpEpilogue string,
	exec func() error) *Runner {
	return &Runner{
		Command: *NewCommand(
			use, short, long, helpPrologue, helpEpilogue, exec),
	}
}

//
type Runner struct {
	//
	Command
	//
	Address string
}

//
func (r *Runner) AddBaseSettings() {
	// Implementation Note: This cannot be included in NewRunner, but rather has
	// to be called from the top level command type. Otherwise, we will confuse
	// Cobra/Viper and the settings will not be filled with their values.
	r.AddSetting(&r.Address, "address", "a", "OQTACARD_ADDRESS", nil,
		"address of daemon's API server, as {host}[:{port}]", false)
}

// apiEndpoint returns host and port of the API server to talk to, filling in
// localhost and the default port where missing.
func apiEndpoint(address string) string {

	host, port, err := net.SplitHostPort(address)
	if err != nil {
		host = address
		port = defaultAPIPort
	}

	if host == "" {
		host = "127.0.0.1"
	}
	if port == "" {
		port = defaultAPIPort
	}

	return net.JoinHostPort(host, port)
}

// apiCall sends a request to the daemon's API server. Replies with an error
// status are turned into an error carrying the server's message.
func (r *Runner) apiCall(method, path string, json bool,
	body io.Reader) (io.ReadCloser, error) {

	client := &http.Client{}
	req, err := http.NewRequest(method,
		fmt.Sprintf("http://%s%s", apiEndpoint(r.Address), path), body)
	if err != nil {
		return nil, err
	}

	if json {
		req.Header.Add("Content-Type", "application/json")
		req.Header.Add("Accept", "application/json")
	} else {
		req.Header.Add("Content-Type", "text/plain")
		req.Header.Add("Accept", "text/plain")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%s (%d)",
			strings.TrimSpace(string(msg)), resp.StatusCode)
	}

	return resp.Body, nil
}

// printCall sends a request to the API server and prints its reply
func (r *Runner) printCall(method, path string, body io.Reader) error {

	resp, err := r.apiCall(method, path, false, body)
	if err != nil {
		return err
	}
	defer resp.Close()

	msg, err := io.ReadAll(resp)
	if err != nil {
		return err
	}

	fmt.Printf("%s\n", msg)
	return nil
}

//
func validateSlot(s int) error {
	if s < 0 || s >= slot.Count {
		return fmt.Errorf(
			"invalid slot number: %d; valid numbers are 0 through %d",
			s, slot.Count-1)
	}
	return nil
}

// parseAddress parses a card address given in decimal or hex
func parseAddress(a string) (uint32, error) {
	if a == "" {
		return 0, nil
	}
	ret, err := strconv.ParseUint(a, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid card address: %s", a)
	}
	return uint32(ret), nil
}
