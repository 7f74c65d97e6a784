/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package script

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	gojsonschema "github.com/xeipuuv/gojsonschema"

	"annotator/internal/hittest"
	"annotator/internal/input"
	"annotator/internal/shape"
)

//go:embed script.schema.json
var schemaJSON []byte

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	})
	return schema, schemaErr
}

// Load reads and parses the script at path.
func Load(path string) (Script, []Error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Script{}, []Error{{Step: -1, Message: fmt.Sprintf("read script: %v", err)}}
	}
	return Parse(b)
}

// Parse validates data against the script schema, decodes it and checks
// step arguments the schema cannot express. The script is returned even
// when errors are reported so callers can show everything at once.
func Parse(data []byte) (Script, []Error) {
	sch, err := compiledSchema()
	if err != nil {
		return Script{}, []Error{{Step: -1, Message: fmt.Sprintf("compile script schema: %v", err)}}
	}
	res, err := sch.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return Script{}, []Error{{Step: -1, Message: fmt.Sprintf("decode script: %v", err)}}
	}
	var errs []Error
	for _, re := range res.Errors() {
		errs = append(errs, Error{Step: stepOf(re.Field()), Message: re.String()})
	}
	var s Script
	if err := json.Unmarshal(data, &s); err != nil {
		return s, append(errs, Error{Step: -1, Message: fmt.Sprintf("decode script: %v", err)})
	}
	if len(errs) > 0 {
		return s, errs
	}
	if s.Options.HitMode != "" {
		if _, err := hittest.ParseMode(s.Options.HitMode); err != nil {
			errs = append(errs, Error{Step: -1, Message: err.Error()})
		}
	}
	for i, st := range s.Steps {
		if msg := checkStep(st); msg != "" {
			errs = append(errs, Error{Step: i, Action: st.Action, Message: msg})
		}
	}
	return s, errs
}

func checkStep(st Step) string {
	switch st.Action {
	case "tool":
		if st.Kind == "" || strings.EqualFold(st.Kind, "none") {
			return ""
		}
		if _, err := shape.ParseKind(st.Kind); err != nil {
			return err.Error()
		}
	case "key":
		if st.Key == "" {
			return "key is required"
		}
	case "touch":
		if st.Phase == "" {
			return "phase is required"
		}
		if st.Phase != "up" && len(st.Touches) == 0 {
			return "touches are required"
		}
	case "resize":
		if st.Width <= 0 || st.Height <= 0 {
			return "width and height must be positive"
		}
	case "expect":
		if st.Count == nil && st.State == "" && st.Active == nil && st.Notify == "" {
			return "nothing to expect"
		}
	}
	if st.Button != "" {
		var b input.Button
		if err := b.UnmarshalText([]byte(st.Button)); err != nil {
			return err.Error()
		}
	}
	return ""
}

// stepOf extracts the step number from a schema field path like
// "steps.3.action".
func stepOf(field string) int {
	rest, ok := strings.CutPrefix(field, "steps.")
	if !ok {
		return -1
	}
	n, _, _ := strings.Cut(rest, ".")
	i, err := strconv.Atoi(n)
	if err != nil {
		return -1
	}
	return i
}
