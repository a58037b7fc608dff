// highlight-recorder - save the last few minutes of camera footage on demand
// Copyright (C) 2019, The Cacophony Project
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

package loglimiter

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// New returns a new LogLimiter with the configured minimum log interval,
// writing warnings to the standard logger.
func New(interval time.Duration) *LogLimiter {
	return NewWithLogger(interval, log.StandardLogger())
}

// NewWithLogger is like New but writes to logger.
func NewWithLogger(interval time.Duration, logger log.FieldLogger) *LogLimiter {
	return &LogLimiter{
		interval: interval,
		logger:   logger,
		nowFunc:  time.Now,
	}
}

// LogLimiter will suppress log messages if the same log message is
// seen within some time interval. Suppressed repeats are counted and
// the count is appended to the next message that gets through.
type LogLimiter struct {
	mu            sync.Mutex
	interval      time.Duration
	logger        log.FieldLogger
	nowFunc       func() time.Time
	previousEntry string
	previousTime  time.Time
	suppressed    int
}

func (limiter *LogLimiter) Printf(format string, v ...interface{}) {
	limiter.Print(fmt.Sprintf(format, v...))
}

func (limiter *LogLimiter) Print(s string) {
	limiter.mu.Lock()
	defer limiter.mu.Unlock()

	now := limiter.nowFunc()
	if now.Sub(limiter.previousTime) < limiter.interval && s == limiter.previousEntry {
		limiter.suppressed++
		return
	}

	if limiter.suppressed > 0 && s == limiter.previousEntry {
		limiter.logger.Warnf("%s (repeated %d times)", s, limiter.suppressed+1)
	} else {
		limiter.logger.Warn(s)
	}
	limiter.previousTime = now
	limiter.previousEntry = s
	limiter.suppressed = 0
}
