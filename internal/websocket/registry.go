package websocket

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RoomCapacity is the maximum number of participants in one room. A user
// connected from two devices holds two slots: each device is a separate
// visible presence.
const RoomCapacity = 5

var ErrRoomFull = errors.New("room is full")

// Participant is one connected device inside a room.
type Participant struct {
	ConnID      string    `json:"conn_id"`
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	Status      string    `json:"status"`
	JoinedAt    time.Time `json:"joined_at"`
}

// RoomRegistry tracks room membership in memory. Rooms are created
// implicitly on first join and pruned as soon as they empty. All checks are
// done under the mutex with no I/O, so admission decisions cannot race past
// the capacity cap while a persistence write is in flight.
type RoomRegistry struct {
	mu    sync.Mutex
	rooms map[string][]Participant
}

func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{rooms: make(map[string][]Participant)}
}

// Join adds a participant and returns the membership snapshot after the
// join. Joining a room the connection is already in is a no-op.
func (r *RoomRegistry) Join(roomID string, p Participant) ([]Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.rooms[roomID]
	for _, existing := range members {
		if existing.ConnID == p.ConnID {
			return snapshot(members), nil
		}
	}

	if len(members) >= RoomCapacity {
		return nil, ErrRoomFull
	}

	members = append(members, p)
	r.rooms[roomID] = members
	return snapshot(members), nil
}

// Leave removes the connection's entry and returns the remaining members.
// found is false if the connection was not in the room.
func (r *RoomRegistry) Leave(roomID, connID string) (remaining []Participant, found bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.rooms[roomID]
	for i, p := range members {
		if p.ConnID == connID {
			members = append(members[:i], members[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		return nil, false
	}

	if len(members) == 0 {
		delete(r.rooms, roomID)
	} else {
		r.rooms[roomID] = members
	}
	return snapshot(members), true
}

// Members returns the current membership snapshot, nil if the room does not
// exist.
func (r *RoomRegistry) Members(roomID string) []Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	return snapshot(r.rooms[roomID])
}

// RoomsOf lists the rooms a connection is currently in. Used on disconnect
// to run leave cleanup for every joined room.
func (r *RoomRegistry) RoomsOf(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var roomIDs []string
	for roomID, members := range r.rooms {
		for _, p := range members {
			if p.ConnID == connID {
				roomIDs = append(roomIDs, roomID)
				break
			}
		}
	}
	return roomIDs
}

// RoomCount returns how many rooms currently have members.
func (r *RoomRegistry) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

func snapshot(members []Participant) []Participant {
	if members == nil {
		return nil
	}
	out := make([]Participant, len(members))
	copy(out, members)
	return out
}
