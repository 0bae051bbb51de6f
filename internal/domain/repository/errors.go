package repository

import "errors"

var (
	// ErrNotFound indica que el recurso no existe (o está borrado).
	ErrNotFound = errors.New("not found")

	// ErrConflict indica un duplicado (email, credential id, ...).
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput indica datos de entrada inválidos.
	ErrInvalidInput = errors.New("invalid input")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }
