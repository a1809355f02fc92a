package layered

import "errors"

var ErrTransactionNotFoundInCtx = errors.New("no layered transaction found in ctx")
