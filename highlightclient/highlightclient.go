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

// Package highlightclient talks to a running highlight-recorder over D-Bus.
package highlightclient

import (
	"encoding/json"

	"github.com/godbus/dbus"
	"github.com/pkg/errors"

	"github.com/TheCacophonyProject/highlight-recorder/state"
)

const (
	DbusName   = "org.cacophony.highlightrecorder"
	DbusPath   = "/org/cacophony/highlightrecorder"
	methodBase = DbusName
)

// Status is what the recorder's Status method returns.
type Status struct {
	state.Status
	HighlightFiles int `json:"highlight_files"`
}

func getDbusObj() (dbus.BusObject, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}
	obj := conn.Object(DbusName, DbusPath)
	return obj, nil
}

// SaveHighlight asks the recorder to save its buffer, as if the button
// was pressed.
func SaveHighlight() error {
	obj, err := getDbusObj()
	if err != nil {
		return err
	}
	return obj.Call(methodBase+".SaveHighlight", 0).Store()
}

func GetStatus() (*Status, error) {
	obj, err := getDbusObj()
	if err != nil {
		return nil, err
	}
	var raw string
	if err := obj.Call(methodBase+".Status", 0).Store(&raw); err != nil {
		return nil, err
	}
	return ParseStatus(raw)
}

func ParseStatus(raw string) (*Status, error) {
	status := new(Status)
	if err := json.Unmarshal([]byte(raw), status); err != nil {
		return nil, errors.Wrap(err, "invalid status")
	}
	return status, nil
}
