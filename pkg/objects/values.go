// Copyright (C) 2025 Plinth Labs, Inc.
// See LICENSE for copying information.

package objects

import "time"

// Record is the schemaless representation of a stored object.
type Record = map[string]interface{}

// TypeKey marks a wire value as a typed object.
const TypeKey = "__type"

// Pointer is a reference from one record to a record of another class.
type Pointer struct {
	ClassName string
	ObjectID  string
}

// AsPointer detects the wire form of a pointer value.
func AsPointer(value interface{}) (Pointer, bool) {
	m, ok := value.(map[string]interface{})
	if !ok || m[TypeKey] != "Pointer" {
		return Pointer{}, false
	}
	class, _ := m["className"].(string)
	id, _ := m["objectId"].(string)
	if class == "" || id == "" {
		return Pointer{}, false
	}
	return Pointer{ClassName: class, ObjectID: id}, true
}

// Wire returns the wire form of the pointer.
func (p Pointer) Wire() map[string]interface{} {
	return map[string]interface{}{
		TypeKey:     "Pointer",
		"className": p.ClassName,
		"objectId":  p.ObjectID,
	}
}

// File is a reference to stored binary content.
type File struct {
	Name string
	URL  string
}

// AsFile detects the wire form of a file value.
func AsFile(value interface{}) (File, bool) {
	m, ok := value.(map[string]interface{})
	if !ok || m[TypeKey] != "File" {
		return File{}, false
	}
	name, _ := m["name"].(string)
	if name == "" {
		return File{}, false
	}
	url, _ := m["url"].(string)
	return File{Name: name, URL: url}, true
}

// Wire returns the wire form of the file, including its addressable URL
// when known.
func (f File) Wire() map[string]interface{} {
	out := map[string]interface{}{
		TypeKey: "File",
		"name":  f.Name,
	}
	if f.URL != "" {
		out["url"] = f.URL
	}
	return out
}

// AsDate detects the wire form of a date value.
func AsDate(value interface{}) (time.Time, bool) {
	m, ok := value.(map[string]interface{})
	if !ok || m[TypeKey] != "Date" {
		return time.Time{}, false
	}
	iso, _ := m["iso"].(string)
	t, err := time.Parse(time.RFC3339Nano, iso)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// WireDate returns the wire form of a timestamp.
func WireDate(t time.Time) map[string]interface{} {
	return map[string]interface{}{
		TypeKey: "Date",
		"iso":   t.UTC().Format(time.RFC3339Nano),
	}
}

// ExpandFiles rewrites every file value in the record to include its
// addressable URL, resolved through urlFor.
func ExpandFiles(rec Record, urlFor func(name string) string) {
	if urlFor == nil {
		return
	}
	for key, value := range rec {
		if file, ok := AsFile(value); ok && file.URL == "" {
			file.URL = urlFor(file.Name)
			rec[key] = file.Wire()
		}
	}
}
