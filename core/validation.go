// Copyright 2025 OpenCivic Works
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package core

import (
	"strings"
	"time"
)

// dateLayouts are the accepted formats for fields recognized as dates.
// Collectors emit a mix of ISO and regional day-first/month-first forms.
var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"01/02/2006",
	"2006-01-02 15:04:05",
	"02/01/2006 15:04:05",
	"01/02/2006 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05.999999Z",
	time.RFC3339,
}

// ParseDate parses a date string under the accepted layouts.
// Returns false if the string matches none of them.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ValidURL reports whether s uses an http or https scheme.
func ValidURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// IsDateField reports whether a field name is recognized as date-valued.
func IsDateField(name string) bool {
	return name == "date" || strings.HasSuffix(name, "_date")
}

// IsURLField reports whether a field name is recognized as URL-valued.
func IsURLField(name string) bool {
	return name == "url" || strings.HasSuffix(name, "_url")
}
