package websocket

import (
	"codecollab-server/broadcast"
	"codecollab-server/config"
	"codecollab-server/core"
	"context"
	"fmt"
	"reflect"
	"regexp"

	"github.com/sirupsen/logrus"
	"github.com/zishang520/engine.io/v2/types"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

type ackInvoker func(err error, payload map[string]any)

var (
	localhostOrigin = regexp.MustCompile(`^https?://(localhost|127\.0\.0\.1|\[::1\])(:\d+)?$`)
	anySliceType    = reflect.TypeOf([]any(nil))
	errorType       = reflect.TypeOf((*error)(nil)).Elem()
)

// Coordinator is the session side the socket layer drives.
type Coordinator interface {
	Connect(conn broadcast.Conn)
	Disconnect(ctx context.Context, connID string)
	Handle(ctx context.Context, connID, event string, payload any) error
	Events() []string
}

// socketConn delivers router events over a socket.io socket.
type socketConn struct {
	socket *socketio.Socket
}

func (c *socketConn) ID() string { return string(c.socket.Id()) }

func (c *socketConn) Emit(event string, payload any) error {
	return c.socket.Emit(event, payload)
}

func SetupSocketIO(coord Coordinator, cfg config.Config) *socketio.Server {
	opts := socketio.DefaultServerOptions()
	opts.SetMaxHttpBufferSize(cfg.MaxHTTPBufferSize)
	opts.SetPath("/socket.io")
	opts.SetAllowEIO3(true)
	opts.SetCors(&types.Cors{
		Origin:      allowedOrigins(cfg.AllowedOrigins),
		Credentials: true,
	})
	srv := socketio.NewServer(nil, opts)

	//nolint:errcheck // Socket.IO event handlers do not return useful errors
	srv.On("connection", func(clients ...any) {
		socket, ok := clients[0].(*socketio.Socket)
		if !ok {
			return
		}

		me := string(socket.Id())
		coord.Connect(&socketConn{socket: socket})
		logrus.WithField("conn_id", me).Debug("Socket connected")

		for _, event := range coord.Events() {
			//nolint:errcheck // Socket.IO event handlers do not return useful errors
			socket.On(event, func(datas ...any) {
				handleEvent(coord, me, event, datas)
			})
		}

		//nolint:errcheck // Socket.IO event handlers do not return useful errors
		socket.On("disconnect", func(datas ...any) {
			coord.Disconnect(context.Background(), me)
			socket.RemoveAllListeners("")
			logrus.WithField("conn_id", me).Debug("Socket disconnected")
		})
	})

	return srv
}

func allowedOrigins(extra []string) []any {
	origins := []any{"tauri://localhost", localhostOrigin}
	for _, origin := range extra {
		if origin == "*" {
			return []any{"*"}
		}
		if origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

func handleEvent(coord Coordinator, connID, event string, datas []any) {
	ack, args := extractAck(datas)

	var payload any
	if len(args) > 0 {
		payload = args[0]
	}

	err := coord.Handle(context.Background(), connID, event, payload)
	respondWithAck(ack, makeAckPayload(err), err)
}

func makeAckPayload(ackErr error) map[string]any {
	response := map[string]any{
		"status": "ok",
	}

	if ackErr != nil {
		response["status"] = "error"
		response["error"] = ackErr.Error()
		response["code"] = core.ErrorCode(ackErr)
	}

	return response
}

func extractAck(datas []any) (ack ackInvoker, args []any) {
	if len(datas) == 0 {
		return nil, datas
	}

	candidate := datas[len(datas)-1]
	ack = wrapAck(candidate)
	if ack == nil {
		return nil, datas
	}

	return ack, datas[:len(datas)-1]
}

func wrapAck(candidate any) ackInvoker {
	if candidate == nil {
		return nil
	}

	value := reflect.ValueOf(candidate)
	if !value.IsValid() || value.Kind() != reflect.Func {
		return nil
	}

	typ := value.Type()
	switch {
	case typ.NumIn() == 2 && typ.In(0) == anySliceType && typ.In(1) == errorType:
		// socket.io's own ack: the payload travels as the argument list
		return func(_ error, payload map[string]any) {
			value.Call([]reflect.Value{reflect.ValueOf([]any{payload}), reflect.Zero(errorType)})
		}
	case typ.IsVariadic() && typ.NumIn() == 1:
		return func(_ error, payload map[string]any) {
			value.Call([]reflect.Value{reflect.ValueOf(payload)})
		}
	}

	return func(err error, payload map[string]any) {
		args := buildAckArgs(typ, err, payload)
		value.Call(args)
	}
}

func buildAckArgs(typ reflect.Type, err error, payload map[string]any) []reflect.Value {
	numIn := typ.NumIn()
	args := make([]reflect.Value, numIn)

	for i := 0; i < numIn; i++ {
		paramType := typ.In(i)
		var argValue any

		switch {
		case numIn == 1:
			if err != nil {
				argValue = err
			} else {
				argValue = payload
			}
		case i == 0:
			argValue = err
		case i == 1:
			argValue = payload
		default:
			argValue = nil
		}

		args[i] = coerceValue(argValue, paramType)
	}

	return args
}

func coerceValue(value any, targetType reflect.Type) reflect.Value {
	if value == nil {
		return reflect.Zero(targetType)
	}

	rv := reflect.ValueOf(value)
	if rv.Type().AssignableTo(targetType) {
		return rv
	}

	if rv.Type().ConvertibleTo(targetType) {
		return rv.Convert(targetType)
	}

	if targetType.Kind() == reflect.Interface {
		if rv.Type().Implements(targetType) || targetType.NumMethod() == 0 {
			return rv
		}
	}

	if targetType.Kind() == reflect.String {
		return reflect.ValueOf(fmt.Sprint(value)).Convert(targetType)
	}

	if targetType.Kind() == reflect.Map && targetType.Key().Kind() == reflect.String {
		if payload, ok := value.(map[string]any); ok {
			return convertMap(payload, targetType)
		}
	}

	return reflect.Zero(targetType)
}

func convertMap(source map[string]any, targetType reflect.Type) reflect.Value {
	result := reflect.MakeMapWithSize(targetType, len(source))
	for key, val := range source {
		keyValue := reflect.ValueOf(key).Convert(targetType.Key())
		valueValue := reflect.ValueOf(val)
		if !valueValue.Type().AssignableTo(targetType.Elem()) {
			if valueValue.Type().ConvertibleTo(targetType.Elem()) {
				valueValue = valueValue.Convert(targetType.Elem())
			} else if targetType.Elem().Kind() != reflect.Interface {
				continue
			}
		}
		result.SetMapIndex(keyValue, valueValue)
	}
	return result
}

func respondWithAck(ack ackInvoker, payload map[string]any, ackErr error) {
	if ack != nil {
		ack(ackErr, payload)
	}
}
