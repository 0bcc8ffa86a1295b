// Copyright (C) 2025 Plinth Labs, Inc.
// See LICENSE for copying information.

package classes

// The five protected system classes. The write engine enforces extra
// invariants on them.
const (
	UserClass         = "_User"
	RoleClass         = "_Role"
	SessionClass      = "_Session"
	InstallationClass = "_Installation"
	ProductClass      = "_Product"
)

var systemClasses = map[string]bool{
	UserClass:         true,
	RoleClass:         true,
	SessionClass:      true,
	InstallationClass: true,
	ProductClass:      true,
}

// IsSystemClass reports whether className is one of the protected system
// classes.
func IsSystemClass(className string) bool {
	return systemClasses[className]
}

// DefaultSchema returns the built-in schema for a system class, or a bare
// schema for an application class.
func DefaultSchema(className string) Schema {
	fields := map[string]Field{
		"objectId":  {Type: String},
		"createdAt": {Type: Date},
		"updatedAt": {Type: Date},
		"ACL":       {Type: Object},
	}
	switch className {
	case UserClass:
		fields["username"] = Field{Type: String}
		fields["password"] = Field{Type: String}
		fields["email"] = Field{Type: String}
		fields["emailVerified"] = Field{Type: Bool}
		fields["authData"] = Field{Type: Object}
	case RoleClass:
		fields["name"] = Field{Type: String}
		fields["users"] = Field{Type: Relation, TargetClass: UserClass}
		fields["roles"] = Field{Type: Relation, TargetClass: RoleClass}
	case SessionClass:
		fields["user"] = Field{Type: Pointer, TargetClass: UserClass}
		fields["sessionToken"] = Field{Type: String}
		fields["createdWith"] = Field{Type: Object}
		fields["expiresAt"] = Field{Type: Date}
		fields["installationId"] = Field{Type: String}
	case InstallationClass:
		fields["installationId"] = Field{Type: String}
		fields["deviceToken"] = Field{Type: String}
		fields["deviceType"] = Field{Type: String}
		fields["pushType"] = Field{Type: String}
		fields["channels"] = Field{Type: Array}
		fields["badge"] = Field{Type: Number}
		fields["appIdentifier"] = Field{Type: String}
	case ProductClass:
		fields["productIdentifier"] = Field{Type: String}
		fields["download"] = Field{Type: File}
		fields["icon"] = Field{Type: File}
		fields["title"] = Field{Type: String}
		fields["subtitle"] = Field{Type: String}
		fields["order"] = Field{Type: Number}
	}
	return Schema{ClassName: className, Fields: fields}
}
