package constants

// Context keys
const (
	ContextKeyUser = "user"
)

// HTTP header names
const (
	HeaderAuthorization = "Authorization"
)

// Common response keys
const (
	ResponseError = "error"
	FieldMessage  = "message"
)

// Query/sort direction constants
const (
	SortASC  = "ASC"
	SortDESC = "DESC"
)
