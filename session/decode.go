package session

import (
	"codecollab-server/core"
	"encoding/base64"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

var (
	validate  = validator.New()
	bytesType = reflect.TypeOf([]byte(nil))
)

// decodePayload turns a raw transport payload into req and validates it.
func decodePayload(raw any, req any) error {
	if raw == nil {
		return fmt.Errorf("payload is required: %w", core.ErrInvalidArgument)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           req,
		WeaklyTypedInput: true,
		DecodeHook:       bytesHook,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(raw); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, core.ErrInvalidArgument)
	}
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%s: %w", describeValidation(err), core.ErrInvalidArgument)
	}
	return nil
}

func describeValidation(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(fields, ", ")
}

// bytesHook accepts the shapes binary content takes on the way in: socket.io
// attachments, raw slices, readers, numeric arrays, serialized Node buffers
// and base64 strings.
func bytesHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != bytesType {
		return data, nil
	}
	return toBytes(data)
}

func toBytes(data any) ([]byte, error) {
	switch v := data.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case interface{ Bytes() []byte }:
		return v.Bytes(), nil
	case io.Reader:
		return io.ReadAll(v)
	case string:
		if i := strings.Index(v, ";base64,"); i >= 0 && strings.HasPrefix(v, "data:") {
			v = v[i+len(";base64,"):]
		}
		b, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("content is not base64: %w", err)
		}
		return b, nil
	case []any:
		b := make([]byte, len(v))
		for i, item := range v {
			n, ok := item.(float64)
			if !ok || n < 0 || n > 255 || n != float64(int(n)) {
				return nil, fmt.Errorf("content[%d] is not a byte", i)
			}
			b[i] = byte(n)
		}
		return b, nil
	case map[string]any:
		// {"type":"Buffer","data":[...]}
		if inner, ok := v["data"]; ok {
			return toBytes(inner)
		}
	}
	return nil, fmt.Errorf("unsupported content type %T", data)
}
