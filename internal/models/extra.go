package models

import (
	"encoding/json"
	"reflect"
	"strings"
	"sync"
)

// Extra holds request fields the pipeline does not interpret (a frontend's
// voiceId or title, say). They travel with the payload and the queue
// message unchanged.
type Extra map[string]json.RawMessage

var knownKeys sync.Map // reflect.Type -> map[string]bool

// jsonKeys lists the JSON member names of struct type t.
func jsonKeys(t reflect.Type) map[string]bool {
	if keys, ok := knownKeys.Load(t); ok {
		return keys.(map[string]bool)
	}
	keys := make(map[string]bool, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		switch {
		case name == "-":
		case name != "":
			keys[name] = true
		case f.IsExported():
			keys[f.Name] = true
		}
	}
	knownKeys.Store(t, keys)
	return keys
}

// SplitExtra returns the members of raw that are not fields of v's struct
// type. raw must be a JSON object.
func SplitExtra(raw []byte, v any) (Extra, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(raw, &all); err != nil {
		return nil, err
	}
	known := jsonKeys(reflect.Indirect(reflect.ValueOf(v)).Type())
	var extra Extra
	for k, val := range all {
		if known[k] {
			continue
		}
		if extra == nil {
			extra = Extra{}
		}
		extra[k] = val
	}
	return extra, nil
}

// MergeExtra adds extra to the JSON object base. Members named like a
// field of v's struct type are dropped, so an extra can never shadow a
// known field even when that field was omitted as empty.
func MergeExtra(base []byte, v any, extra Extra) ([]byte, error) {
	if len(extra) == 0 {
		return base, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(base, &obj); err != nil {
		return nil, err
	}
	known := jsonKeys(reflect.Indirect(reflect.ValueOf(v)).Type())
	for k, val := range extra {
		if known[k] {
			continue
		}
		obj[k] = val
	}
	return json.Marshal(obj)
}
