// The package used for synthesizing placeholder bodies for abstract and virtual members.
package stub

import (
	"errors"

	"stubforge/internal/host"
)

// ErrSilentNonBinding reports a synthesized member that was accepted by its
// type but does not fill the slot it was declared to override. Virtual calls
// keep running the inherited implementation.
var ErrSilentNonBinding = errors.New("member does not override its slot")

var (
	ErrInvalidArgument  = host.ErrInvalidArgument
	ErrSignatureBinding = host.ErrSignatureBinding
)
