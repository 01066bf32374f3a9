package repository

import "errors"

var ErrProductNotFound = errors.New("product not found")
var ErrInsufficientStock = errors.New("insufficient stock")
var ErrOrderNotFound = errors.New("order not found")
var ErrCategoryNotFound = errors.New("category not found")
var ErrDuplicateIdempotencyKey = errors.New("idempotency key already used")
