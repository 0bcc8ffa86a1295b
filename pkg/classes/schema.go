// Copyright (C) 2025 Plinth Labs, Inc.
// See LICENSE for copying information.

// Package classes models the per-class schema consulted by the query and
// write engines: field declarations, class-level permissions and the
// protected system classes.
package classes

import "context"

// FieldType enumerates the declared types a class field may have.
type FieldType string

const (
	String   FieldType = "String"
	Number   FieldType = "Number"
	Bool     FieldType = "Boolean"
	Date     FieldType = "Date"
	Object   FieldType = "Object"
	Array    FieldType = "Array"
	Pointer  FieldType = "Pointer"
	Relation FieldType = "Relation"
	GeoPoint FieldType = "GeoPoint"
	File     FieldType = "File"
)

// Field is one declared field of a class.
type Field struct {
	Type FieldType
	// TargetClass names the referenced class for Pointer and Relation
	// fields.
	TargetClass string
	Required    bool
	Default     interface{}
}

// Permissions is the class-level permission policy. Each operation maps
// allowed keys ("*", a user id, "role:<name>", or "requiresAuthentication")
// to true.
type Permissions struct {
	Get      map[string]bool
	Find     map[string]bool
	Create   map[string]bool
	Update   map[string]bool
	Delete   map[string]bool
	AddField map[string]bool
}

// Schema describes one class.
type Schema struct {
	ClassName   string
	Fields      map[string]Field
	Permissions Permissions
}

// Controller is the schema-metadata store consulted through the storage
// adapter. The store itself is an external collaborator.
type Controller interface {
	HasClass(ctx context.Context, className string) (bool, error)
	GetOneSchema(ctx context.Context, className string) (Schema, error)
	GetClassLevelPermissions(ctx context.Context, className string) (Permissions, error)
	GetAllClasses(ctx context.Context) ([]Schema, error)
}
