package bus

import (
	"errors"

	"github.com/godbus/dbus/v5"

	"github.com/llehouerou/notifyd/internal/engine"
	"github.com/llehouerou/notifyd/internal/errmsg"
)

// toDBusError maps an engine error to a method error reply.
func toDBusError(op errmsg.Op, err error) *dbus.Error {
	if err == nil {
		return nil
	}
	name := ErrorFailed
	switch {
	case errors.Is(err, engine.ErrRateLimited):
		name = ErrorRateLimited
	case errors.Is(err, engine.ErrInvalidArgument):
		name = ErrorInvalidArgs
	case errors.Is(err, engine.ErrNotFound):
		name = ErrorNotFound
	}
	return dbus.NewError(name, []interface{}{errmsg.Format(op, err)})
}
