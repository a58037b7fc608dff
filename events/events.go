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

// Package events records highlight activity with the Cacophony event
// reporter over D-Bus.
package events

import (
	"encoding/json"
	"time"

	"github.com/godbus/dbus"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/TheCacophonyProject/highlight-recorder/export"
)

const (
	eventsName   = "org.cacophony.Events"
	eventsPath   = "/org/cacophony/Events"
	eventsMethod = eventsName + ".Queue"
)

// Reporter queues an event for each saved, failed or throttled highlight.
// Failures to queue are logged and otherwise ignored.
type Reporter struct {
	queue   func(details []byte, ts int64) error
	nowFunc func() time.Time
}

func NewReporter() *Reporter {
	return &Reporter{
		queue:   queueOnSystemBus,
		nowFunc: time.Now,
	}
}

func (r *Reporter) HighlightSaved(h *export.Highlight) {
	r.record(h.TriggeredAt, "highlight", map[string]interface{}{
		"id":       h.ID,
		"path":     h.Path,
		"frames":   h.Frames,
		"duration": h.Duration.Seconds(),
		"size":     h.Size,
	})
}

func (r *Reporter) ExportFailed(triggeredAt time.Time, err error) {
	r.record(triggeredAt, "highlight-failed", map[string]interface{}{
		"error": err.Error(),
	})
}

// WhenThrottled implements throttle.ThrottledEventListener.
func (r *Reporter) WhenThrottled() {
	r.record(r.nowFunc(), "throttle", nil)
}

func (r *Reporter) record(ts time.Time, eventType string, details map[string]interface{}) {
	description := map[string]interface{}{
		"type": eventType,
	}
	if details != nil {
		description["details"] = details
	}
	detailsJSON, err := json.Marshal(map[string]interface{}{"description": description})
	if err != nil {
		log.Printf("could not record %s event: %v", eventType, err)
		return
	}
	if err := r.queue(detailsJSON, ts.UnixNano()); err != nil {
		log.Printf("could not record %s event: %v", eventType, err)
	}
}

func queueOnSystemBus(details []byte, ts int64) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return errors.Wrap(err, "no system bus")
	}
	obj := conn.Object(eventsName, eventsPath)
	return obj.Call(eventsMethod, 0, details, ts).Err
}
