// Package store implements the stopped-pulse stream (spec.md C1, §4.1):
// an at-least-once, per-key-ordered delivery contract from the stop
// handler to the lifecycle orchestrator, built on a Redis Stream with a
// consumer group. Grounded on the teacher's Redis usage in
// pkg/escalation/engine.go (ticker-driven polling loop) and
// pkg/alert/dedup.go (redis.Client as the sole fast-path dependency,
// with domain errors surfaced rather than swallowed).
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Record is one delivery off the stream: the stopped pulse's identity
// plus the Redis message ID needed to acknowledge it.
type Record struct {
	MessageID string
	PulseID   string
	UserID    string
}

// Stream wraps a single Redis Stream + consumer group used to hand
// stopped pulses from the API process to the worker process.
type Stream struct {
	rdb         *redis.Client
	streamName  string
	groupName   string
	consumerID  string
}

// NewStream creates a Stream. consumerID should be unique per worker
// process (e.g. hostname:pid) so XPENDING/XCLAIM can attribute ownership.
func NewStream(rdb *redis.Client, streamName, groupName, consumerID string) *Stream {
	return &Stream{rdb: rdb, streamName: streamName, groupName: groupName, consumerID: consumerID}
}

// EnsureGroup creates the consumer group if it does not already exist.
// Safe to call on every process start.
func (s *Stream) EnsureGroup(ctx context.Context) error {
	err := s.rdb.XGroupCreateMkStream(ctx, s.streamName, s.groupName, "0").Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		if isBusyGroupErr(err) {
			return nil
		}
		return fmt.Errorf("creating consumer group: %w", err)
	}
	return nil
}

func isBusyGroupErr(err error) bool {
	return err != nil && len(err.Error()) >= 9 && err.Error()[:9] == "BUSYGROUP"
}

// Publish adds a stopped pulse to the stream (spec.md §4.1: "subscribe(table)
// → stream<{Insert,...}>" — this is the producer half, called right after the
// stop handler's conditional insert succeeds).
func (s *Stream) Publish(ctx context.Context, pulseID, userID string) error {
	return s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: s.streamName,
		Values: map[string]any{"pulse_id": pulseID, "user_id": userID},
	}).Err()
}

// Read blocks up to blockFor for new records, reading as this stream's
// consumer within its group. Returns an empty slice (not an error) on
// timeout.
func (s *Stream) Read(ctx context.Context, count int64, blockFor time.Duration) ([]Record, error) {
	res, err := s.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.groupName,
		Consumer: s.consumerID,
		Streams:  []string{s.streamName, ">"},
		Count:    count,
		Block:    blockFor,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading from stream: %w", err)
	}

	var records []Record
	for _, stream := range res {
		for _, msg := range stream.Messages {
			rec := Record{MessageID: msg.ID}
			if v, ok := msg.Values["pulse_id"].(string); ok {
				rec.PulseID = v
			}
			if v, ok := msg.Values["user_id"].(string); ok {
				rec.UserID = v
			}
			records = append(records, rec)
		}
	}
	return records, nil
}

// Ack acknowledges a successfully processed record, removing it from the
// group's pending entries list.
func (s *Stream) Ack(ctx context.Context, messageID string) error {
	return s.rdb.XAck(ctx, s.streamName, s.groupName, messageID).Err()
}

// ClaimStale takes ownership of pending entries idle for longer than
// minIdle (e.g. a worker crashed mid-processing), so another consumer
// can retry them — the redelivery half of the at-least-once contract.
func (s *Stream) ClaimStale(ctx context.Context, minIdle time.Duration, count int64) ([]Record, error) {
	msgs, _, err := s.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   s.streamName,
		Group:    s.groupName,
		Consumer: s.consumerID,
		MinIdle:  minIdle,
		Start:    "0",
		Count:    count,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("claiming stale entries: %w", err)
	}

	var records []Record
	for _, msg := range msgs {
		rec := Record{MessageID: msg.ID}
		if v, ok := msg.Values["pulse_id"].(string); ok {
			rec.PulseID = v
		}
		if v, ok := msg.Values["user_id"].(string); ok {
			rec.UserID = v
		}
		records = append(records, rec)
	}
	return records, nil
}
