package memory

import "errors"

var errDuplicateID = errors.New("memory: duplicate id")
