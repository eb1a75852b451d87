package timeline

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/golang/snappy"
	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"
)

var feedBucket = []byte("feed")

type boltStore[K comparable, M any] struct {
	bdb *bbolt.DB
}

// OpenBoltStore opens (creating if necessary) a Bolt-backed snapshot store
// at path. Envelopes are stored under 8-byte big-endian position keys, as
// snappy-compressed msgpack records.
func OpenBoltStore[K comparable, M any](path string) (Store[K, M], error) {
	bopt := *bbolt.DefaultOptions
	bopt.Timeout = 10 * time.Second
	bdb, err := bbolt.Open(path, 0666, &bopt)
	if err != nil {
		return nil, fmt.Errorf("timeline: %w", err)
	}
	err = bdb.Update(func(btx *bbolt.Tx) error {
		_, err := btx.CreateBucketIfNotExists(feedBucket)
		return err
	})
	if err != nil {
		bdb.Close()
		return nil, fmt.Errorf("timeline: %w", err)
	}
	return &boltStore[K, M]{bdb: bdb}, nil
}

func (s *boltStore[K, M]) Save(envs []Envelope[K, M]) error {
	return s.bdb.Update(func(btx *bbolt.Tx) error {
		if err := btx.DeleteBucket(feedBucket); err != nil {
			return err
		}
		b, err := btx.CreateBucket(feedBucket)
		if err != nil {
			return err
		}
		var key [8]byte
		for i, env := range envs {
			data, err := msgpack.Marshal(&env)
			if err != nil {
				return err
			}
			binary.BigEndian.PutUint64(key[:], uint64(i))
			if err := b.Put(key[:], snappy.Encode(nil, data)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *boltStore[K, M]) Load() ([]Envelope[K, M], error) {
	var envs []Envelope[K, M]
	err := s.bdb.View(func(btx *bbolt.Tx) error {
		b := btx.Bucket(feedBucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			data, err := snappy.Decode(nil, v)
			if err != nil {
				return err
			}
			var env Envelope[K, M]
			if err := msgpack.Unmarshal(data, &env); err != nil {
				return err
			}
			envs = append(envs, env)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return envs, nil
}

func (s *boltStore[K, M]) Close() error {
	return s.bdb.Close()
}
