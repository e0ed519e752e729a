package registry

import (
	"fmt"

	"github.com/stellarlinkco/haiemet/internal/config"
)

// NewStore picks the backend named by cfg.Storage.Driver.
func NewStore(cfg *config.Config) (Store, error) {
	switch cfg.Storage.Driver {
	case "", config.StorageDriverJSON:
		return NewJSONFileStore(cfg.StoragePath()), nil
	case config.StorageDriverSQLite:
		s, err := NewSQLiteStore(cfg.StoragePath())
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StorageDriverRedis:
		rc := cfg.Storage.Redis
		if rc.Addr == "" {
			return nil, fmt.Errorf("redis storage requires storage.redis.addr")
		}
		s, err := NewRedisStore(rc.Addr, rc.Password, rc.DB, rc.Key)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
