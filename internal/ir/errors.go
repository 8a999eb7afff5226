package ir

import "errors"

var (
	ErrModuleNotFound      = errors.New("module not found")
	ErrChunkNotFound       = errors.New("chunk not found")
	ErrConnectionNotFound  = errors.New("connection not found")
	ErrDependencyNotFound  = errors.New("dependency not found")
	ErrDuplicateModule     = errors.New("module already exists")
	ErrDuplicateDependency = errors.New("dependency already exists")
)
