// highlight-recorder - save the last few minutes of camera footage on demand
//  Copyright (C) 2026, The Cacophony Project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"encoding/json"
	"errors"

	"github.com/godbus/dbus"
	"github.com/godbus/dbus/introspect"

	"github.com/TheCacophonyProject/highlight-recorder/config"
	"github.com/TheCacophonyProject/highlight-recorder/export"
	"github.com/TheCacophonyProject/highlight-recorder/highlightclient"
	"github.com/TheCacophonyProject/highlight-recorder/state"
	"github.com/TheCacophonyProject/highlight-recorder/trigger"
)

const (
	dbusName = highlightclient.DbusName
	dbusPath = highlightclient.DbusPath
)

type service struct {
	triggers *trigger.Channel
	state    *state.State
	dir      string
	ext      string
}

func startService(triggers *trigger.Channel, st *state.State, conf *config.Config) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return err
	}
	reply, err := conn.RequestName(dbusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return err
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return errors.New("name already taken")
	}

	s := &service{
		triggers: triggers,
		state:    st,
		dir:      conf.OutputDir,
		ext:      conf.FileExtension,
	}
	conn.Export(s, dbusPath, dbusName)
	conn.Export(genIntrospectable(s), dbusPath, "org.freedesktop.DBus.Introspectable")
	return nil
}

func genIntrospectable(v interface{}) introspect.Introspectable {
	node := &introspect.Node{
		Interfaces: []introspect.Interface{{
			Name:    dbusName,
			Methods: introspect.Methods(v),
		}},
	}
	return introspect.NewIntrospectable(node)
}

// SaveHighlight saves the buffered footage, the same as a button press.
func (s *service) SaveHighlight() *dbus.Error {
	if !s.triggers.Fire("dbus") {
		return &dbus.Error{
			Name: dbusName + ".SaveHighlight",
			Body: []interface{}{"trigger ignored: too soon after the last one, too many pending, or shutting down"},
		}
	}
	return nil
}

// Status returns the recorder status as JSON.
func (s *service) Status() (string, *dbus.Error) {
	status := highlightclient.Status{Status: s.state.Status()}
	n, err := export.CountHighlights(s.dir, s.ext)
	if err != nil {
		return "", s.statusErr(err)
	}
	status.HighlightFiles = n
	buf, err := json.Marshal(status)
	if err != nil {
		return "", s.statusErr(err)
	}
	return string(buf), nil
}

func (s *service) statusErr(err error) *dbus.Error {
	return &dbus.Error{
		Name: dbusName + ".Status",
		Body: []interface{}{err.Error()},
	}
}
