package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"

	"chat-router/contract"
	"chat-router/domain"
	"chat-router/projection"
)

const snapshotKeyFmt = "snap:%s"

type storedSnapshot struct {
	RoomID  string               `json:"roomId"`
	Version uint64               `json:"version"`
	Members []string             `json:"members"`
	ChatLog []domain.ChatMessage `json:"chatLog"`
}

var _ contract.SnapshotStore = (*BadgerSnapshotStore)(nil)

// BadgerSnapshotStore keeps at most one snapshot per room. A newer
// save simply replaces the older cut; the event log stays the source
// of truth for everything after the stored version.
type BadgerSnapshotStore struct {
	db  *badger.DB
	log *slog.Logger
}

func NewBadgerSnapshotStore(db *badger.DB, log *slog.Logger) *BadgerSnapshotStore {
	return &BadgerSnapshotStore{db: db, log: log}
}

func (s *BadgerSnapshotStore) Save(roomID string, version uint64, state *projection.RoomState) error {
	snap := storedSnapshot{
		RoomID:  roomID,
		Version: version,
		Members: state.Members(),
		ChatLog: lo.Map(state.Log(), func(entry projection.LogEntry, _ int) domain.ChatMessage {
			return entry.Message
		}),
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(fmt.Sprintf(snapshotKeyFmt, roomID)), payload)
	})
	if err != nil {
		return fmt.Errorf("saving snapshot for room %s: %w", roomID, err)
	}
	s.log.Debug("snapshot saved", "room", roomID, "version", version)
	return nil
}

// Latest returns the most recent snapshot, or (nil, 0, nil) when the
// room has never been snapshotted.
func (s *BadgerSnapshotStore) Latest(roomID string) (*projection.RoomState, uint64, error) {
	var payload []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(fmt.Sprintf(snapshotKeyFmt, roomID)))
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			payload = append([]byte(nil), value...)
			return nil
		})
	})
	switch err {
	case badger.ErrKeyNotFound:
		return nil, 0, nil
	case nil:
	default:
		return nil, 0, fmt.Errorf("loading snapshot for room %s: %w", roomID, err)
	}

	var snap storedSnapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, 0, err
	}
	return projection.Restore(snap.RoomID, snap.Members, snap.ChatLog), snap.Version, nil
}
