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

package config

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/xelalexv/oqtacard/pkg/memcard/base"
	"github.com/xelalexv/oqtacard/pkg/memcard/slot"
	"github.com/xelalexv/oqtacard/pkg/repo"
)

//
const EnvPrefix = "OQTACARD"

//
type Slot struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled"`
	File    string `mapstructure:"file" json:"file"`
	Type    string `mapstructure:"type" json:"type"`
}

//
func (s *Slot) CardType() base.CardType {
	return base.GetCardType(s.Type)
}

//
func (s *Slot) SetCardType(t base.CardType) {
	s.Type = t.String()
}

/*
	Config is the memory card layout. It always holds exactly slot.Count slots
	and two multitap switches after loading.
*/
type Config struct {
	Folder           string `mapstructure:"folder" json:"folder"`
	FolderAutoManage bool   `mapstructure:"folderAutoManage" json:"folderAutoManage"`
	Multitap         []bool `mapstructure:"multitap" json:"multitap"`
	Slots            []Slot `mapstructure:"slots" json:"slots"`
}

// Default returns a layout with the two standard slots enabled, using default
// file names in the current folder.
func Default() *Config {
	c := &Config{Folder: ".", FolderAutoManage: true}
	c.normalize()
	return c
}

// Load reads the layout from file. If file is empty, only defaults and
// environment apply.
func Load(file string) (*Config, error) {

	v := viper.New()
	v.SetDefault("folder", ".")
	v.SetDefault("folderAutoManage", true)
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", file, err)
		}
		log.WithField("file", v.ConfigFileUsed()).Info("loaded card config")
	}

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("invalid card config: %w", err)
	}

	if len(c.Slots) > slot.Count {
		return nil, fmt.Errorf(
			"too many slots in card config: %d, maximum is %d",
			len(c.Slots), slot.Count)
	}

	c.normalize()
	return c, nil
}

//
func (c *Config) normalize() {

	for len(c.Multitap) < 2 {
		c.Multitap = append(c.Multitap, false)
	}

	for ix := len(c.Slots); ix < slot.Count; ix++ {
		c.Slots = append(c.Slots, Slot{
			Enabled: !slot.IsMultitap(ix),
			File:    slot.DefaultName(ix),
		})
	}

	for ix := range c.Slots {
		if c.Slots[ix].CardType() == base.CardNone {
			c.Slots[ix].SetCardType(base.CardFile)
		}
	}
}

// Slot returns the settings for the logical slot, nil if there is no such
// slot.
func (c *Config) Slot(logical int) *Slot {
	if 0 <= logical && logical < len(c.Slots) {
		return &c.Slots[logical]
	}
	return nil
}

//
func (c *Config) IsMultitapEnabled(port int) bool {
	return 0 <= port && port < len(c.Multitap) && c.Multitap[port]
}

// IsSlotActive tells whether the slot is enabled, and if it is a multitap
// slot, whether its multitap is enabled as well.
func (c *Config) IsSlotActive(logical int) bool {
	s := c.Slot(logical)
	if s == nil || !s.Enabled {
		return false
	}
	if slot.IsMultitap(logical) {
		return c.IsMultitapEnabled(slot.MultitapPort(logical))
	}
	return true
}

// FullPath returns the path of the card file or folder for the logical slot,
// or an empty string if none is configured.
func (c *Config) FullPath(logical int) string {
	s := c.Slot(logical)
	if s == nil || s.File == "" {
		return ""
	}
	return repo.FullPath(c.Folder, s.File)
}
