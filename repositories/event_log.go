//go:generate go run go.uber.org/mock/mockgen -source=event_log.go -destination=../mocks/mock_event_log.go -package=mocks
package repositories

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"chat-router/contract"
	"chat-router/domain"
	"chat-router/domain/event"
	"chat-router/errors"
)

// Key layout in BadgerDB. The zero-padded version in the event key
// makes a prefix scan return events in append order.
//
//	evt:<room>:<012d version>  -> storedEvent (JSON)
//	seq:<room>                 -> last assigned version (big endian)
const (
	eventKeyFmt   = "evt:%s:%012d"
	eventPrefix   = "evt:%s:"
	versionKeyFmt = "seq:%s"
	versionPrefix = "seq:"
)

const (
	kindMemberJoined = "member-joined"
	kindMemberLeft   = "member-left"
	kindMessageAdded = "message-added"
)

type storedEvent struct {
	Kind    string             `json:"kind"`
	Message domain.ChatMessage `json:"message"`
}

func encodeEvent(evt event.ChatRoomEvent) (storedEvent, error) {
	switch e := evt.(type) {
	case event.MemberJoined:
		return storedEvent{Kind: kindMemberJoined, Message: e.Message}, nil
	case event.MemberLeft:
		return storedEvent{Kind: kindMemberLeft, Message: e.Message}, nil
	case event.MessageAdded:
		return storedEvent{Kind: kindMessageAdded, Message: e.Message}, nil
	default:
		return storedEvent{}, fmt.Errorf("%w: %T", errors.ErrUnknownEvent, evt)
	}
}

func decodeEvent(se storedEvent) (event.ChatRoomEvent, error) {
	switch se.Kind {
	case kindMemberJoined:
		return event.MemberJoined{Message: se.Message}, nil
	case kindMemberLeft:
		return event.MemberLeft{Message: se.Message}, nil
	case kindMessageAdded:
		return event.MessageAdded{Message: se.Message}, nil
	default:
		return nil, fmt.Errorf("%w: kind %q", errors.ErrUnknownEvent, se.Kind)
	}
}

var _ contract.EventLog = (*EventStore)(nil)

// EventStore persists room events in BadgerDB. Each room carries its
// own contiguous version counter; the partition router guarantees a
// single writer per room, so the counter needs no cross-room locking.
type EventStore struct {
	db  *badger.DB
	log *slog.Logger
}

func NewEventStore(db *badger.DB, log *slog.Logger) *EventStore {
	return &EventStore{db: db, log: log}
}

// Append durably writes one event and returns the version it was
// assigned. The event key and the room's version counter commit in
// the same transaction.
func (s *EventStore) Append(roomID string, evt event.ChatRoomEvent) (uint64, error) {
	se, err := encodeEvent(evt)
	if err != nil {
		return 0, err
	}
	payload, err := json.Marshal(se)
	if err != nil {
		return 0, err
	}

	var version uint64
	err = s.db.Update(func(txn *badger.Txn) error {
		versionKey := []byte(fmt.Sprintf(versionKeyFmt, roomID))
		current, err := readVersion(txn, versionKey)
		if err != nil {
			return err
		}
		version = current + 1

		eventKey := []byte(fmt.Sprintf(eventKeyFmt, roomID, version))
		if err := txn.Set(eventKey, payload); err != nil {
			return err
		}
		return txn.Set(versionKey, versionBytes(version))
	})
	if err != nil {
		return 0, fmt.Errorf("appending event for room %s: %w", roomID, err)
	}
	return version, nil
}

// ReadSince returns all events persisted after the given version, in
// storage order, along with the last version read. When nothing newer
// exists it returns the version it was given.
func (s *EventStore) ReadSince(roomID string, afterVersion uint64) ([]event.ChatRoomEvent, uint64, error) {
	var payloads [][]byte
	last := afterVersion

	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf(eventPrefix, roomID))
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = true
		it := txn.NewIterator(options)
		defer it.Close()

		seekKey := []byte(fmt.Sprintf(eventKeyFmt, roomID, afterVersion+1))
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			version, err := versionFromKey(item.Key(), len(prefix))
			if err != nil {
				return err
			}
			last = version
			err = item.Value(func(value []byte) error {
				payloads = append(payloads, append([]byte(nil), value...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("reading events for room %s: %w", roomID, err)
	}

	events := make([]event.ChatRoomEvent, 0, len(payloads))
	for _, payload := range payloads {
		var se storedEvent
		if err := json.Unmarshal(payload, &se); err != nil {
			return nil, 0, err
		}
		evt, err := decodeEvent(se)
		if err != nil {
			return nil, 0, err
		}
		events = append(events, evt)
	}
	return events, last, nil
}

// Rooms lists every room id that has at least one persisted event.
func (s *EventStore) Rooms() ([]string, error) {
	var rooms []string
	err := s.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		prefix := []byte(versionPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			rooms = append(rooms, strings.TrimPrefix(string(it.Item().Key()), versionPrefix))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing rooms: %w", err)
	}
	return rooms, nil
}

func readVersion(txn *badger.Txn, key []byte) (uint64, error) {
	item, err := txn.Get(key)
	switch err {
	case badger.ErrKeyNotFound:
		return 0, nil
	case nil:
	default:
		return 0, err
	}
	var version uint64
	err = item.Value(func(value []byte) error {
		version = binary.BigEndian.Uint64(value)
		return nil
	})
	return version, err
}

func versionBytes(version uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, version)
	return buf
}

func versionFromKey(key []byte, prefixLen int) (uint64, error) {
	return strconv.ParseUint(string(key[prefixLen:]), 10, 64)
}
