/*
 * Copyright 2025 Olake By Datazip
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package typeutils

import (
	"fmt"
	"strings"
	"time"
)

// layouts accepted for date-time values, most specific first
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999-07:00",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

type Time struct {
	time.Time
}

// UnmarshalJSON overrides the default unmarshalling for Time
func (ct *Time) UnmarshalJSON(b []byte) error {
	// Remove the quotes around the date string
	str := strings.Trim(string(b), "\"")
	parsed, err := ParseTime(str)
	if err != nil {
		return err
	}

	*ct = Time{parsed}
	return nil
}

func (ct Time) MarshalJSON() ([]byte, error) {
	return []byte(`"` + FormatTime(ct.Time) + `"`), nil
}

// Compare compares the time instant ct with u. If ct is before u, it returns -1;
// if ct is after u, it returns +1; if they're the same, it returns 0.
func (ct Time) Compare(u Time) int {
	return ct.Time.Compare(u.Time)
}

// ParseTime parses the timestamp shapes returned by the API and stored in state files.
// Values without an offset are read as UTC.
func ParseTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	// short strings such as "12" must not be mistaken for timestamps
	if len(value) < len(time.DateOnly) {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", value)
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", value)
}

// FormatTime renders a time the way bookmarks and date-time fields are emitted.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
