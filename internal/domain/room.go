package domain

import (
	"fmt"
	"strings"
	"time"
)

type RoomState string

const (
	RoomOpen       RoomState = "OPEN"
	RoomInProgress RoomState = "IN_PROGRESS"
	RoomClosed     RoomState = "CLOSED"
)

// ExerciseStep is one pose of a room's course. Steps never change after the room is created.
type ExerciseStep struct {
	ExerciseID  int64  `json:"poseId" db:"exercise_id"`
	Name        string `json:"poseName" db:"name"`
	Description string `json:"poseDescription" db:"description"`
	Image       string `json:"poseImg" db:"image"`
	Video       string `json:"poseVideo" db:"video"`
	Animation   string `json:"poseAnimation" db:"animation"`
	Level       int64  `json:"poseLevel" db:"level"`
	OrderIndex  int    `json:"userOrderIndex" db:"order_index"`
}

type Room struct {
	ID              string         `db:"id"`
	Name            string         `db:"name"`
	Password        string         `db:"password"`
	Max             int            `db:"max_count"`
	Count           int            `db:"current_count"`
	State           RoomState      `db:"state"`
	CreatorID       int64          `db:"creator_id"`
	CreatorNickname string         `db:"creator_nickname"`
	Exercises       []ExerciseStep `db:"-"`
	CreatedAt       time.Time      `db:"created_at"`
}

func (r *Room) HasPassword() bool { return r.Password != "" }

func (r *Room) IsFull() bool { return r.Count >= r.Max }

// NewRoom is the input of room creation.
type NewRoom struct {
	Name      string
	Max       int
	Password  string
	Exercises []ExerciseStep
}

// Creator identifies who opens a room.
type Creator struct {
	UserID   int64
	Nickname string
}

func (n NewRoom) Validate() error {
	if strings.TrimSpace(n.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRoom)
	}
	if n.Max <= 0 {
		return fmt.Errorf("%w: max must be > 0", ErrInvalidRoom)
	}

	return nil
}

// RoomSnapshot is the read-only projection sent to clients.
type RoomSnapshot struct {
	RoomID       string         `json:"roomId"`
	RoomName     string         `json:"roomName"`
	RoomMax      int            `json:"roomMax"`
	RoomCount    int            `json:"roomCount"`
	State        RoomState      `json:"roomState"`
	HasPassword  bool           `json:"hasPassword"`
	UserID       int64          `json:"userId"`
	UserNickname string         `json:"userNickname"`
	Pose         []ExerciseStep `json:"pose"`
}

func SnapshotOf(r *Room, steps []ExerciseStep) RoomSnapshot {
	if steps == nil {
		steps = []ExerciseStep{}
	}

	return RoomSnapshot{
		RoomID:       r.ID,
		RoomName:     r.Name,
		RoomMax:      r.Max,
		RoomCount:    r.Count,
		State:        r.State,
		HasPassword:  r.HasPassword(),
		UserID:       r.CreatorID,
		UserNickname: r.CreatorNickname,
		Pose:         steps,
	}
}
