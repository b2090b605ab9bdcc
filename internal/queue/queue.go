// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package queue carries asynchronous PRE requests from the API server to
// workers.
package queue

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Common errors.
var (
	ErrQueueEmpty     = errors.New("queue is empty")
	ErrQueueClosed    = errors.New("queue closed")
	ErrJobNotFound    = errors.New("job not found")
	ErrConnectionLost = errors.New("queue connection lost")
)

// JobStatus represents the state of a job.
type JobStatus uint8

const (
	StatusPending JobStatus = iota
	StatusProcessing
	StatusCompleted
	StatusFailed
)

func (s JobStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusProcessing:
		return "processing"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	}
	return fmt.Sprintf("JobStatus(%d)", uint8(s))
}

// Done reports whether the job reached a final state.
func (s JobStatus) Done() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Op names a PRE operation.
type Op string

const (
	OpGenKeyPair Op = "genKeyPair"
	OpEncrypt    Op = "encrypt"
	OpGenReKey   Op = "genReKey"
	OpReEncrypt  Op = "reEncrypt"
	OpDecrypt    Op = "decrypt"
)

// Valid reports whether o is a known operation.
func (o Op) Valid() bool {
	switch o {
	case OpGenKeyPair, OpEncrypt, OpGenReKey, OpReEncrypt, OpDecrypt:
		return true
	}
	return false
}

// Job is one PRE request. Which fields are read depends on Operation:
//
//	genKeyPair: Principal
//	encrypt:    KeyHandle (public key), Payload
//	genReKey:   Principal (source), KeyHandle (target public key)
//	reEncrypt:  InputHandle (ciphertext), KeyHandle (re-encryption key)
//	decrypt:    Principal, InputHandle (ciphertext)
type Job struct {
	ID           string    `json:"id"`
	Operation    Op        `json:"operation"`
	Principal    string    `json:"principal,omitempty"`
	KeyHandle    string    `json:"key_handle,omitempty"`
	InputHandle  string    `json:"input_handle,omitempty"`
	Payload      []byte    `json:"payload,omitempty"`
	ResultHandle string    `json:"result_handle,omitempty"`
	Result       []byte    `json:"result,omitempty"`
	Hops         int       `json:"hops,omitempty"`
	Status       JobStatus `json:"status"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewJobID returns a random 128-bit hex identifier.
func NewJobID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("queue: read random: %v", err))
	}
	return hex.EncodeToString(b[:])
}

// Queue defines the interface for job queue operations.
type Queue interface {
	// Push adds a job to the queue and marks it pending.
	Push(ctx context.Context, job *Job) error
	// Pop blocks until a job is available or ctx is done.
	Pop(ctx context.Context) (*Job, error)
	// Update stores a new job state.
	Update(ctx context.Context, job *Job) error
	// Get retrieves a job by ID.
	Get(ctx context.Context, id string) (*Job, error)
	// Close closes the queue connection.
	Close() error
}

// RedisQueue implements Queue using Redis.
type RedisQueue struct {
	client    *redis.Client
	queueKey  string
	jobPrefix string
	ttl       time.Duration
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisQueue creates a new Redis-backed queue.
func NewRedisQueue(cfg RedisConfig, queueName string) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisQueue{
		client:    client,
		queueKey:  "gnosis:queue:" + queueName,
		jobPrefix: "gnosis:job:",
		ttl:       24 * time.Hour,
	}, nil
}

func (q *RedisQueue) Push(ctx context.Context, job *Job) error {
	if job.ID == "" {
		job.ID = NewJobID()
	}
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt
	job.Status = StatusPending

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	pipe := q.client.Pipeline()
	pipe.Set(ctx, q.jobPrefix+job.ID, data, q.ttl)
	pipe.LPush(ctx, q.queueKey, job.ID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

func (q *RedisQueue) Pop(ctx context.Context) (*Job, error) {
	result, err := q.client.BRPop(ctx, 0, q.queueKey).Result()
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if errors.Is(err, redis.ErrClosed) {
			return nil, ErrQueueClosed
		}
		return nil, fmt.Errorf("%w: pop job: %v", ErrConnectionLost, err)
	}

	if len(result) < 2 {
		return nil, ErrQueueEmpty
	}
	return q.Get(ctx, result[1])
}

func (q *RedisQueue) Update(ctx context.Context, job *Job) error {
	job.UpdatedAt = time.Now()

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	ok, err := q.client.SetXX(ctx, q.jobPrefix+job.ID, data, q.ttl).Result()
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if !ok {
		return ErrJobNotFound
	}
	return nil
}

func (q *RedisQueue) Get(ctx context.Context, id string) (*Job, error) {
	data, err := q.client.Get(ctx, q.jobPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("get job: %w", err)
	}

	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &job, nil
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
