package hotstorage

import (
	"github.com/goliatone/go-repository-hotstorage/cache"
	"github.com/pkg/errors"
)

func encode[T any](codec cache.Codec, record T) ([]byte, error) {
	blob, err := codec.Marshal(record)
	if err != nil {
		return nil, errors.Wrap(err, "encode record")
	}
	return blob, nil
}

func decode[T any](codec cache.Codec, blob []byte) (T, error) {
	var record T
	if err := codec.Unmarshal(blob, &record); err != nil {
		var zero T
		return zero, errors.Wrap(err, "decode record")
	}
	return record, nil
}
