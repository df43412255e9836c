//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

package redis

import (
	"fmt"

	backend "github.com/redis/go-redis/v9"
)

// NewClient builds a universal client from a redis:// or rediss:// URL.
func NewClient(url string) (backend.UniversalClient, error) {
	if url == "" {
		return nil, fmt.Errorf("redis: url is empty")
	}
	opts, err := backend.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url %s: %w", url, err)
	}
	return backend.NewUniversalClient(&backend.UniversalOptions{
		Addrs:           []string{opts.Addr},
		DB:              opts.DB,
		Username:        opts.Username,
		Password:        opts.Password,
		Protocol:        opts.Protocol,
		ClientName:      opts.ClientName,
		TLSConfig:       opts.TLSConfig,
		MaxRetries:      opts.MaxRetries,
		MinRetryBackoff: opts.MinRetryBackoff,
		MaxRetryBackoff: opts.MaxRetryBackoff,
		DialTimeout:     opts.DialTimeout,
		ReadTimeout:     opts.ReadTimeout,
		WriteTimeout:    opts.WriteTimeout,
		PoolSize:        opts.PoolSize,
		PoolTimeout:     opts.PoolTimeout,
		MinIdleConns:    opts.MinIdleConns,
		MaxIdleConns:    opts.MaxIdleConns,
		ConnMaxIdleTime: opts.ConnMaxIdleTime,
		ConnMaxLifetime: opts.ConnMaxLifetime,
	}), nil
}

// NewSaverFromURL creates a saver owning a client built from url.
func NewSaverFromURL(url string, opts ...Option) (*Saver, error) {
	client, err := NewClient(url)
	if err != nil {
		return nil, err
	}
	return NewSaver(client, opts...), nil
}
