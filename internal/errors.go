package internal

import "fmt"

var ErrJobOutcomeNotFound = fmt.Errorf("job outcome not found")
