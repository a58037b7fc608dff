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

package throttle

import (
	"errors"
	"time"
)

type Config struct {
	ApplyThrottling bool          `yaml:"apply-throttling"`
	BucketSize      int64         `yaml:"bucket-size"`
	RefillInterval  time.Duration `yaml:"refill-interval"`
}

func DefaultConfig() Config {
	return Config{
		ApplyThrottling: false,
		BucketSize:      10,
		RefillInterval:  6 * time.Minute,
	}
}

func (c Config) Validate() error {
	if !c.ApplyThrottling {
		return nil
	}
	if c.BucketSize < 1 {
		return errors.New("throttler bucket-size must be at least 1")
	}
	if c.RefillInterval <= 0 {
		return errors.New("throttler refill-interval must be positive")
	}
	return nil
}
