package redis

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Instance configures one named redis connection.
type Instance struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	DB       int    `json:"db,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	PoolSize int    `json:"poolSize,omitempty"`
	// ConnectTimeout bounds the startup ping retries, in milliseconds.
	ConnectTimeout int `json:"connectTimeout,omitempty"`
}

// Addr returns host:port, defaulting to 127.0.0.1:6379.
func (i Instance) Addr() string {
	host, port := i.Host, i.Port
	if host == "" {
		host = "127.0.0.1"
	}
	if port == 0 {
		port = 6379
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Key identifies the connection for reuse.
func (i Instance) Key() string {
	return fmt.Sprintf("%s:%d", i.Addr(), i.DB)
}

func (i Instance) connectTimeout() time.Duration {
	if i.ConnectTimeout <= 0 {
		return 5 * time.Second
	}
	return time.Duration(i.ConnectTimeout) * time.Millisecond
}

// Options returns the go-redis options for the instance.
func (i Instance) Options() *redis.Options {
	return &redis.Options{
		Addr:            i.Addr(),
		Username:        i.Username,
		Password:        i.Password,
		DB:              i.DB,
		PoolSize:        i.PoolSize,
		MinRetryBackoff: 100 * time.Millisecond,
		MaxRetryBackoff: 2 * time.Second,
	}
}

// Config is the redis plugin configuration:
//
//	redis:
//	  default: main
//	  instance:
//	    main: { host: 127.0.0.1, port: 6379, db: 0 }
//	    cache: { host: 127.0.0.1, port: 6379, db: 2 }
type Config struct {
	// Default names the instance Client("") returns. When unset or unknown
	// the first instance in lexical order is used.
	Default  string              `json:"default,omitempty"`
	Instance map[string]Instance `json:"instance"`
}
