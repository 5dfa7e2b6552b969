package domain

type (
	UserId = int64

	PostId        = int64
	PostTitle     = string
	FileId        = int64
	AssociationId = int64

	// ReferenceKind is the role a file plays for a post. Any label is accepted,
	// the constants below are the ones produced by the association engine.
	ReferenceKind = string
)
