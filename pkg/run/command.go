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
	"os"
	"reflect"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

//
const (
	prologueHeader = ""
	epilogueHeader = `
Notes:

`
)

/*
	The package initializer sets up logging based on logrus. The following
	environment variables can be used to configure logging:

		LOG_FORMAT		set to `json` for JSON logging
		LOG_FORCE_COLORS	set to non-empty for forcing colorized log entries
		LOG_METHODS		set to non-empty for including methods in log
		LOG_LEVEL		`panic`, `fatal`, `error`, `warn`, `info`, `debug`, `trace`
*/
func init() {
	log.SetOutput(os.Stdout)
	configureLogging(log.StandardLogger(), os.Getenv)
}

//
func configureLogging(l *log.Logger, env func(string) string) {

	if strings.ToLower(env("LOG_FORMAT")) == "json" {
		l.SetFormatter(&log.JSONFormatter{})
	} else if env("LOG_FORCE_COLORS") != "" {
		l.SetFormatter(&log.TextFormatter{ForceColors: true})
	}

	l.SetReportCaller(env("LOG_METHODS") != "")

	if level := env("LOG_LEVEL"); level != "" {
		if lvl, err := log.ParseLevel(level); err != nil {
			l.Errorf("invalid log level: '%s'; valid levels are: panic, "+
				"fatal, error, warn, info, debug, trace", level)
		} else {
			l.SetLevel(lvl)
		}
	}
}

//
var (
	UnderTest bool
)

// DieOnError exits the running process if e is not nil. The error gets logged.
func DieOnError(e error) {
	if e != nil {
		Die("%v\n", e)
	}
}

// Die exits the running process, while logging the given message.
func Die(msg string, params ...interface{}) {
	out := msg
	if len(params) > 0 {
		out = fmt.Sprintf(msg, params...)
	}
	if !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	fmt.Print(out)
	if UnderTest {
		panic(out)
	}
	os.Exit(1)
}

// GetUserConfirmation asks the user to confirm with y. When not attached to a
// terminal, there is nobody to ask, and the answer is no.
func GetUserConfirmation(prompt string) bool {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		log.Warnf("not a terminal, cannot confirm: %s", prompt)
		return false
	}
	fmt.Printf("%s [y/N] ", prompt)
	var res string
	fmt.Scanln(&res)
	return strings.ToLower(strings.TrimSpace(res)) == "y"
}

/*
	NewCommand creates a base command instance, wrapping a new Cobra command.
	The exec function is invoked when the command's Execute method is called.
*/
func NewCommand(use, short, long, helpPrologue, helpEpilogue string,
	exec func() error) *Command {

	ret := &Command{
		cmd: &cobra.Command{
			Use:   use,
			Short: short,
			Long:  long,
			RunE: func(*cobra.Command, []string) error {
				return exec()
			},
			SilenceErrors:         true,
			SilenceUsage:          true,
			DisableFlagsInUseLine: true,
		},
		viper:        viper.New(),
		settings:     map[string]*setting{},
		helpPrologue: helpPrologue,
		helpEpilogue: helpEpilogue,
	}
	ret.helpFunc = ret.cmd.HelpFunc()
	ret.cmd.SetHelpFunc(ret.help)
	return ret
}

/*
	Command wraps Cobra & Viper. A setting can come from a command line flag or
	an environment variable, with the flag taking precedence. Each command has
	its own Viper instance, so settings of different commands don't interfere.
	Required settings that are missing are reported with both the flag and
	environment variable to use.
*/
type Command struct {
	//
	cmd   *cobra.Command
	viper *viper.Viper
	//
	settings map[string]*setting
	//
	Args []string
	//
	helpPrologue string
	helpEpilogue string
	helpFunc     func(*cobra.Command, []string)
}

//
func (c *Command) help(cmd *cobra.Command, args []string) {
	out := cmd.OutOrStdout()
	if c.helpPrologue != "" {
		fmt.Fprintln(out, prologueHeader+c.helpPrologue)
	}
	if c.helpFunc != nil {
		c.helpFunc(cmd, args)
	}
	if c.helpEpilogue != "" {
		fmt.Fprintln(out, epilogueHeader+c.helpEpilogue)
	} else {
		fmt.Fprintln(out)
	}
}

/*
	Execute invokes the exec function that was set on this command when it was
	created. If args is of non-zero length, it overrides os.Args.
*/
func (c *Command) Execute(args []string) error {
	if len(args) > 0 {
		c.cmd.SetArgs(args)
	}
	return c.cmd.Execute()
}

/*
	AddSetting adds a setting to this command. target points to the variable
	that receives the setting's value. flag is the long command line flag,
	short its single letter version, and env the environment variable that may
	carry the setting. def is the default value, nil means the zero value of
	the target's type. Required settings can't have a default.
*/
func (c *Command) AddSetting(target interface{}, flag, short, env string,
	def interface{}, help string, required bool) {

	s := &setting{flag: flag, env: env, required: required, target: target}

	typ, name, err := s.typeAndName()
	DieOnError(err)

	log.Tracef("add setting: flag=%s, env=%s, type=%s", flag, env, typ)

	if strings.HasSuffix(name, "Slice") && name != "StringSlice" && env != "" {
		Die("cannot use environment variable on non-string array setting")
	}

	// pflag supports more types than Viper, so check here to fail early
	if _, err := getterFor(c.viper, name); err != nil {
		Die("setting '%s' is of unsupported type: no Viper getter", flag)
	}

	defVal := reflect.Zero(typ)
	if def != nil {
		if required {
			Die("required setting '%s' does not take a default value", flag)
		}
		if !reflect.TypeOf(def).ConvertibleTo(typ) {
			Die("default value for setting '%s' has incorrect type", flag)
		}
		defVal = reflect.ValueOf(def).Convert(typ)
	}

	flags := c.cmd.Flags()
	define, err := flagDefinerFor(flags, name)
	if err != nil {
		Die("setting '%s' is of unsupported type: no pflag method", flag)
	}

	if env != "" {
		help = fmt.Sprintf("%s (%s)", help, env)
	}

	define.Call([]reflect.Value{
		reflect.ValueOf(target),
		reflect.ValueOf(flag),
		reflect.ValueOf(short),
		defVal,
		reflect.ValueOf(help),
	})

	c.viper.BindPFlag(flag, flags.Lookup(flag))
	if env != "" {
		c.viper.BindEnv(flag, env)
	}

	c.settings[flag] = s
}

/*
	GetSetting retrieves the setting for the provided flag and places the value
	in the variable bound to it.
*/
func (c *Command) GetSetting(flag string) (interface{}, error) {
	s, ok := c.settings[flag]
	if !ok {
		return "", fmt.Errorf("undefined setting: %s", flag)
	}
	return s.get(c.viper)
}

/*
	ParseSettings resolves all settings added so far. Afterwards, their values
	are in the bound variables. Call this at the start of the exec function,
	before using any of those variables.
*/
func (c *Command) ParseSettings() {
	for _, s := range c.settings {
		_, err := s.get(c.viper)
		DieOnError(err)
	}
	c.Args = c.cmd.Flags().Args()
}

//
type setting struct {
	flag     string
	env      string
	required bool
	target   interface{}
}

// typeAndName returns the type of the setting and the name used for looking
// up the matching Viper getter and pflag definer, e.g. Int or StringSlice.
func (s *setting) typeAndName() (reflect.Type, string, error) {

	typ := reflect.TypeOf(s.target)
	if typ == nil || typ.Kind() != reflect.Ptr {
		return nil, "", fmt.Errorf(
			"target for setting '%s' is not a pointer", s.flag)
	}

	elem := typ.Elem()
	if elem.Kind() == reflect.Slice {
		return elem, capitalize(elem.Elem().Name()) + "Slice", nil
	}
	return elem, capitalize(elem.Name()), nil
}

//
func (s *setting) get(v *viper.Viper) (interface{}, error) {

	typ, name, err := s.typeAndName()
	if err != nil {
		return nil, err
	}

	getter, err := getterFor(v, name)
	if err != nil {
		return nil, err
	}

	val := getter.Call([]reflect.Value{reflect.ValueOf(s.flag)})[0]
	log.WithFields(log.Fields{
		"flag": s.flag, "type": typ, "set": v.IsSet(s.flag),
	}).Tracef("retrieved value: '%v'", val)

	if s.required && isMissing(val, typ) {
		msg := fmt.Sprintf(
			"you need to specify the --%s command line flag", s.flag)
		if s.env != "" {
			msg = fmt.Sprintf("%s or the %s environment variable", msg, s.env)
		}
		return nil, fmt.Errorf("%s", msg)
	}

	// Viper does not set the target for values coming from the environment.
	// Setting it from val is a no-op for values from flags or defaults.
	if s.env != "" {
		elem := reflect.ValueOf(s.target).Elem()
		if val.Kind() != reflect.Slice {
			elem.Set(val)
		} else if elem.Len() == 0 {
			elem.Set(reflect.ValueOf(stringSliceFromValue(val)))
		}
	}

	return val.Interface(), nil
}

//
func isMissing(val reflect.Value, typ reflect.Type) bool {
	if val.Kind() == reflect.Slice {
		return val.Len() == 0
	}
	return val.Interface() == reflect.Zero(typ).Interface()
}

//
func getterFor(v *viper.Viper, name string) (reflect.Value, error) {
	method := "Get" + name
	ret := reflect.ValueOf(v).MethodByName(method)
	if ret.Kind() != reflect.Func {
		return ret, fmt.Errorf("no Viper getter %s for type %s", method, name)
	}
	return ret, nil
}

//
func flagDefinerFor(f *pflag.FlagSet, name string) (reflect.Value, error) {
	method := name + "VarP"
	ret := reflect.ValueOf(f).MethodByName(method)
	if ret.Kind() != reflect.Func {
		return ret, fmt.Errorf("no pflag method %s for type %s", method, name)
	}
	return ret, nil
}

//
func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

//
func stringSliceFromValue(v reflect.Value) []string {
	ret := make([]string, 0, 16)
	if v.Kind() == reflect.Slice {
		for ix := 0; ix < v.Len(); ix++ {
			ret = append(ret, strings.Split(v.Index(ix).String(), ",")...)
		}
	}
	return ret
}
