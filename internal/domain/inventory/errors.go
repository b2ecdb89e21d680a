package inventory

import "errors"

var ErrItemNotFound = errors.New("inventory item not found")
