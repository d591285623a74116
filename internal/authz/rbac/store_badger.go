package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/vyrodovalexey/accessd/internal/observability"
)

const (
	badgerUserPrefix   = "user/"
	badgerMaxTxRetries = 5
)

// BadgerStore keeps users as JSON documents in an embedded badger database.
type BadgerStore struct {
	db     *badger.DB
	logger observability.Logger
}

// NewBadgerStore opens (or creates) the database described by cfg.
func NewBadgerStore(cfg BadgerConfig, logger observability.Logger) (*BadgerStore, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	opts := badger.DefaultOptions(cfg.Path).WithLogger(nil)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	return &BadgerStore{db: db, logger: logger}, nil
}

func badgerUserKey(id string) []byte {
	return []byte(badgerUserPrefix + id)
}

// User implements UserStore.
func (s *BadgerStore) User(_ context.Context, id string) (User, error) {
	var u User
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerUserKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrUserNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			u, err = decodeUser(val)
			return err
		})
	})
	return u, err
}

// Users implements UserStore. Keys iterate in byte order, which is id order.
func (s *BadgerStore) Users(_ context.Context) ([]User, error) {
	users := make([]User, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(badgerUserPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				u, err := decodeUser(val)
				if err != nil {
					return err
				}
				users = append(users, u)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

// CreateUser implements UserStore.
func (s *BadgerStore) CreateUser(_ context.Context, user User) error {
	if user.ID == "" {
		return ErrInvalidUser
	}
	u := user.clone()
	u.normalize()
	payload, err := json.Marshal(u)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(badgerUserKey(u.ID))
		if err == nil {
			return ErrUserExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(badgerUserKey(u.ID), payload)
	})
}

// AddRole implements UserStore.
func (s *BadgerStore) AddRole(ctx context.Context, userID, roleID string) (bool, error) {
	return s.update(ctx, userID, func(u *User) (bool, bool) { return u.addRole(roleID) })
}

// RemoveRole implements UserStore.
func (s *BadgerStore) RemoveRole(ctx context.Context, userID, roleID string) (bool, error) {
	return s.update(ctx, userID, func(u *User) (bool, bool) { return u.removeRole(roleID) })
}

func (s *BadgerStore) update(_ context.Context, userID string, mutate func(*User) (result, dirty bool)) (bool, error) {
	for attempt := 0; attempt < badgerMaxTxRetries; attempt++ {
		var result bool
		err := s.db.Update(func(txn *badger.Txn) error {
			result = false
			item, err := txn.Get(badgerUserKey(userID))
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			var u User
			if err := item.Value(func(val []byte) error {
				u, err = decodeUser(val)
				return err
			}); err != nil {
				return err
			}
			res, dirty := mutate(&u)
			result = res
			if !dirty {
				return nil
			}
			payload, err := json.Marshal(u)
			if err != nil {
				return err
			}
			return txn.Set(badgerUserKey(userID), payload)
		})
		if errors.Is(err, badger.ErrConflict) {
			s.logger.Debug("badger transaction conflict, retrying",
				observability.String("user", userID),
				observability.Int("attempt", attempt+1),
			)
			continue
		}
		if err != nil {
			return false, err
		}
		return result, nil
	}
	return false, ErrStoreConflict
}

// Ping implements UserStore.
func (s *BadgerStore) Ping(context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger database is closed")
	}
	return nil
}

// Close implements UserStore.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

var _ UserStore = (*BadgerStore)(nil)
