//go:build linux

package tundev

import (
	"golang.org/x/sys/unix"

	"github.com/YaoZengzeng/yunet/types"
)

var translations = map[unix.Errno]*types.Error{
	unix.EEXIST:        types.ErrDuplicateAddress,
	unix.ENETUNREACH:   types.ErrNoRoute,
	unix.EHOSTUNREACH:  types.ErrNoRoute,
	unix.EINVAL:        types.ErrInvalidEndpointState,
	unix.EADDRINUSE:    types.ErrPortInUse,
	unix.EADDRNOTAVAIL: types.ErrBadLocalAddress,
	unix.EAGAIN:        types.ErrWouldBlock,
	unix.ENOBUFS:       types.ErrWouldBlock,
	unix.EMSGSIZE:      types.ErrMessageTooLong,
	unix.ENOTSUP:       types.ErrNotSupported,
}

// TranslateErrno translates an errno from the unix package into a
// *types.Error. Unknown errnos map to types.ErrInvalidEndpointState
func TranslateErrno(e unix.Errno) error {
	if err, ok := translations[e]; ok {
		return err
	}

	return types.ErrInvalidEndpointState
}
