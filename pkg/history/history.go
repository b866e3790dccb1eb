// Package history keeps a log of enrollment and recognition attempts in a
// kv.Store. Only attempt metadata is stored, never audio.
//
// Key layout (relative to the Log prefix):
//
//	{prefix}:att:{YYYYMMDD}:{ts_ns}:{id}  → msgpack-encoded Entry
//
// The timestamp is zero-padded so lexicographic key order matches
// chronological order.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/haivivi/speakerid/pkg/kv"
)

// Kind is the attempt type.
type Kind string

const (
	KindEnrollment  Kind = "enrollment"
	KindRecognition Kind = "recognition"
)

// Entry is one recorded attempt.
type Entry struct {
	ID        string `json:"id" msgpack:"id"`
	Kind      Kind   `json:"kind" msgpack:"kind"`
	Timestamp int64  `json:"ts" msgpack:"ts"`

	Username string `json:"username,omitempty" msgpack:"username,omitempty"`

	// ClipIndex is set for enrollment attempts.
	ClipIndex int `json:"clip_index,omitempty" msgpack:"clip_index,omitempty"`

	// Mode, Outcome, PredictedUser and Confidence are set for recognition
	// attempts.
	Mode          string  `json:"mode,omitempty" msgpack:"mode,omitempty"`
	Outcome       string  `json:"outcome,omitempty" msgpack:"outcome,omitempty"`
	PredictedUser string  `json:"predicted_user,omitempty" msgpack:"predicted_user,omitempty"`
	Confidence    float64 `json:"confidence,omitempty" msgpack:"confidence,omitempty"`

	Status  string `json:"status" msgpack:"status"`
	Message string `json:"message,omitempty" msgpack:"message,omitempty"`

	// DurationMS is the recorded clip length.
	DurationMS int64 `json:"duration_ms,omitempty" msgpack:"duration_ms,omitempty"`
}

// Time returns the entry timestamp.
func (e *Entry) Time() time.Time {
	return time.Unix(0, e.Timestamp)
}

// Recorder accepts attempt entries.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Log is a Recorder backed by a kv.Store.
type Log struct {
	store  kv.Store
	prefix kv.Key
	now    func() time.Time
}

// New creates a Log writing under prefix.
func New(store kv.Store, prefix kv.Key) *Log {
	return &Log{store: store, prefix: prefix, now: time.Now}
}

// Record stores e. A zero Timestamp is set to the current time.
func (l *Log) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		return fmt.Errorf("history: entry has no id")
	}
	if e.Timestamp == 0 {
		e.Timestamp = l.now().UnixNano()
	}
	data, err := msgpack.Marshal(&e)
	if err != nil {
		return fmt.Errorf("history: encode: %w", err)
	}
	return l.store.Set(ctx, entryKey(l.prefix, e.Timestamp, e.ID), data)
}

// Recent returns up to n entries, newest first. Malformed entries are
// skipped.
func (l *Log) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	var out []Entry
	for entry, err := range l.store.ListReverse(ctx, entryPrefix(l.prefix)) {
		if err != nil {
			return nil, err
		}
		var e Entry
		if err := msgpack.Unmarshal(entry.Value, &e); err != nil {
			continue
		}
		if out = append(out, e); len(out) == n {
			break
		}
	}
	return out, nil
}

// Clear removes every entry.
func (l *Log) Clear(ctx context.Context) error {
	var keys []kv.Key
	for entry, err := range l.store.List(ctx, entryPrefix(l.prefix)) {
		if err != nil {
			return err
		}
		keys = append(keys, entry.Key)
	}
	if len(keys) == 0 {
		return nil
	}
	return l.store.BatchDelete(ctx, keys)
}

func entryKey(prefix kv.Key, ts int64, id string) kv.Key {
	k := make(kv.Key, len(prefix)+4)
	copy(k, prefix)
	k[len(prefix)] = "att"
	k[len(prefix)+1] = time.Unix(0, ts).UTC().Format("20060102")
	k[len(prefix)+2] = fmt.Sprintf("%019d", ts)
	k[len(prefix)+3] = id
	return k
}

func entryPrefix(prefix kv.Key) kv.Key {
	k := make(kv.Key, len(prefix)+1)
	copy(k, prefix)
	k[len(prefix)] = "att"
	return k
}
