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

package control

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/xelalexv/oqtacard/pkg/memcard"
)

// largest body accepted for write requests
const maxBodySize = 1048576

//
const lockTimeout = 5 * time.Second

//
type APIServer interface {
	Serve() error
	Stop() error
}

/*
	NewAPIServer creates the control API for the dispatcher. configFile is the
	card layout file that gets re-read on reload. If it is empty, reload
	re-opens the current layout.
*/
func NewAPIServer(addr, configFile string, d *memcard.Dispatcher) APIServer {
	return newAPI(addr, configFile, d)
}

//
func newAPI(addr, configFile string, d *memcard.Dispatcher) *api {
	return &api{address: addr, configFile: configFile, dispatcher: d}
}

//
type api struct {
	address    string
	configFile string
	dispatcher *memcard.Dispatcher
	server     *http.Server
}

//
func (a *api) Serve() error {

	addr := a.address
	if len(strings.Split(addr, ":")) < 2 {
		addr = fmt.Sprintf("%s:8888", a.address)
	}

	log.Infof("OqtaCard API starts listening on %s", addr)
	a.server = &http.Server{Addr: addr, Handler: a.router()}

	err := a.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

//
func (a *api) Stop() error {
	if a.server != nil {
		log.Info("API server stopping...")
		err := a.server.Shutdown(context.Background())
		a.server = nil
		return err
	}
	return nil
}

//
func (a *api) router() *mux.Router {

	router := mux.NewRouter().StrictSlash(true)

	addRoute(router, "status", "GET", "/status", a.status)
	addRoute(router, "ls", "GET", "/list", a.list)
	addRoute(router, "info", "GET", "/slot/{slot:[0-7]}/info", a.info)
	addRoute(router, "read", "GET", "/slot/{slot:[0-7]}/read", a.read)
	addRoute(router, "write", "PUT", "/slot/{slot:[0-7]}/write", a.write)
	addRoute(router, "erase", "PUT", "/slot/{slot:[0-7]}/erase", a.erase)
	addRoute(router, "crc", "GET", "/slot/{slot:[0-7]}/crc", a.crc)
	addRoute(router, "dump", "GET", "/slot/{slot:[0-7]}/dump", a.dump)
	addRoute(router, "reindex", "PUT", "/slot/{slot:[0-7]}/reindex", a.reindex)
	addRoute(router, "reload", "PUT", "/reload", a.reload)

	return router
}

//
func addRoute(r *mux.Router, name, method, pattern string,
	handler http.HandlerFunc) {
	r.Methods(method).
		Path(pattern).
		Name(name).
		Handler(requestLogger(handler, name))
}

//
func requestLogger(inner http.Handler, name string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		log.WithFields(log.Fields{
			"remote": r.RemoteAddr,
			"method": r.Method,
			"path":   r.RequestURI,
		}).Debugf("API BEGIN | %s", name)

		start := time.Now()
		inner.ServeHTTP(w, r)

		log.WithFields(log.Fields{
			"remote":   r.RemoteAddr,
			"method":   r.Method,
			"path":     r.RequestURI,
			"duration": time.Since(start),
		}).Debugf("API END   | %s", name)
	})
}

// lock takes the dispatcher lock for the duration of a request. If that's not
// possible, an error reply is sent and false returned.
func (a *api) lock(w http.ResponseWriter, req *http.Request) bool {
	ctx, cancel := context.WithTimeout(req.Context(), lockTimeout)
	defer cancel()
	if !a.dispatcher.Lock(ctx) {
		handleError(fmt.Errorf("card dispatcher busy"), http.StatusLocked, w)
		return false
	}
	return true
}

//
func getArg(req *http.Request, arg string) (string, error) {
	ret := req.URL.Query().Get(arg)
	if ret != "" {
		return url.QueryUnescape(ret)
	}
	return ret, nil
}

//
func getIntArg(req *http.Request, arg string) (int, error) {
	if val, err := getArg(req, arg); err != nil {
		return -1, err
	} else {
		if ret, err := strconv.Atoi(val); err != nil {
			return -1, err
		} else {
			return ret, nil
		}
	}
}

// getAddressArg parses a card address, given in decimal or with 0x prefix in
// hex. A missing address is 0.
func getAddressArg(req *http.Request, arg string) (uint32, error) {
	val, err := getArg(req, arg)
	if err != nil || val == "" {
		return 0, err
	}
	ret, err := strconv.ParseUint(val, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %s", arg, val)
	}
	return uint32(ret), nil
}

//
func setHeaders(h http.Header, json bool) {
	if json {
		h.Set("Content-Type", "application/json; charset=UTF-8")
	} else {
		h.Set("Content-Type", "text/plain; charset=UTF-8")
	}
}

//
func handleError(e error, statusCode int, w http.ResponseWriter) bool {

	if e == nil {
		return false
	}

	log.Errorf("%v", e)

	setHeaders(w.Header(), false)
	w.WriteHeader(statusCode)
	if _, err := w.Write([]byte(fmt.Sprintf("%v\n", e))); err != nil {
		log.Errorf("problem writing error: %v", err)
	}

	return true
}

//
func sendReply(body []byte, statusCode int, w http.ResponseWriter) {
	setHeaders(w.Header(), false)
	w.WriteHeader(statusCode)
	if _, err := fmt.Fprintf(w, "%s\n", body); err != nil {
		log.Errorf("problem sending reply: %v", err)
	}
}

//
func sendRawReply(body []byte, statusCode int, w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(statusCode)
	if _, err := w.Write(body); err != nil {
		log.Errorf("problem sending reply: %v", err)
	}
}

//
func sendJSONReply(obj interface{}, statusCode int, w http.ResponseWriter) {
	setHeaders(w.Header(), true)
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(obj); err != nil {
		log.Errorf("problem writing error: %v", err)
	}
}

//
func wantsJSON(req *http.Request) bool {
	return strings.HasPrefix(req.Header.Get("Content-Type"), "application/json") ||
		strings.HasPrefix(req.Header.Get("Accept"), "application/json")
}
