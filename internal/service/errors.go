package service

import "errors"

// Классы ошибок движка согласования. Транспортный слой выбирает по ним
// HTTP-статус через errors.Is; всё остальное считается ошибкой хранилища.
var (
	ErrValidation = errors.New("validation failed")
	ErrForbidden  = errors.New("forbidden")
	ErrNotFound   = errors.New("not found")
)
