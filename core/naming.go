// Copyright 2025 Poiesic Systems
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
	"fmt"
	"strings"
	"time"
)

// Timestamp layouts used throughout the pipeline.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15-04-05"
)

// Report format and object metadata keys.
const (
	FormatHTML = "html"

	MetaCompany   = "company"
	MetaDate      = "date"
	MetaTimestamp = "timestamp"
	MetaFormat    = "format"
	MetaSource    = "source"
	MetaFileSize  = "file_size"
)

// NormalizeEntity canonicalizes an entity name for use in storage paths:
// lowercased, periods stripped, spaces replaced with underscores.
// "Acme Corp." becomes "acme_corp".
func NormalizeEntity(entity string) string {
	s := strings.ToLower(entity)
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}

// ReportPath builds the deterministic object path for a report:
// {entity-normalized}/{YYYY-MM-DD}/{HH-MM-SS}.html. Two uploads with the
// same entity, day and time collide and overwrite.
func ReportPath(entity, date, timeOfDay string) string {
	return fmt.Sprintf("%s/%s/%s.html", NormalizeEntity(entity), date, timeOfDay)
}

// ReportPathAt is ReportPath for a concrete timestamp.
func ReportPathAt(entity string, ts time.Time) string {
	return ReportPath(entity, ts.Format(DateLayout), ts.Format(TimeLayout))
}

// DatapointID builds the deterministic vector datapoint id
// {entity}_{date}_{timestamp}_{chunkIndex}, with spaces replaced by
// underscores and colons by hyphens so the id survives index and URL
// encoding restrictions.
func DatapointID(entity, date, timestamp string, chunkIndex int) string {
	id := fmt.Sprintf("%s_%s_%s_%d", entity, date, timestamp, chunkIndex)
	id = strings.ReplaceAll(id, " ", "_")
	id = strings.ReplaceAll(id, ":", "-")
	return id
}

// CrowdingTag groups datapoints originating from the same logical report
// so diversity-aware queries can spread results across reports.
func CrowdingTag(entity, date string) string {
	return fmt.Sprintf("%s_%s", entity, date)
}
