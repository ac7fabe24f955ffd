package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/cwrk-planet/presence-service/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const roomColumns = `id::text, name, password, max_count, current_count, state, creator_id, creator_nickname, created_at`

type RoomStore struct {
	db *pgxpool.Pool
}

func NewRoomStore(db *pgxpool.Pool) *RoomStore {
	return &RoomStore{db: db}
}

func (s *RoomStore) Create(ctx context.Context, room *domain.Room) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO rooms (name, password, max_count, current_count, state, creator_id, creator_nickname)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id::text, created_at`,
		room.Name, room.Password, room.Max, room.Count, string(room.State), room.CreatorID, room.CreatorNickname,
	).Scan(&room.ID, &room.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert room: %w", err)
	}

	if len(room.Exercises) > 0 {
		roomUUID, err := uuid.Parse(room.ID)
		if err != nil {
			return fmt.Errorf("parse room id: %w", err)
		}
		rows := make([][]any, 0, len(room.Exercises))
		for i, st := range room.Exercises {
			rows = append(rows, []any{
				roomUUID, i, st.ExerciseID, st.Name, st.Description, st.Image, st.Video, st.Animation, st.Level, st.OrderIndex,
			})
		}
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"room_exercises"},
			[]string{"room_id", "position", "exercise_id", "name", "description", "image", "video", "animation", "level", "order_index"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("copy room_exercises: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (s *RoomStore) Get(ctx context.Context, id string) (*domain.Room, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrRoomNotFound
	}
	room, err := scanRoom(s.db.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1::uuid`, id))
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT exercise_id, name, description, image, video, animation, level, order_index
		FROM room_exercises
		WHERE room_id = $1::uuid
		ORDER BY position`, room.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var st domain.ExerciseStep
		if err := rows.Scan(&st.ExerciseID, &st.Name, &st.Description, &st.Image, &st.Video, &st.Animation, &st.Level, &st.OrderIndex); err != nil {
			return nil, err
		}
		room.Exercises = append(room.Exercises, st)
	}

	return room, rows.Err()
}

// List matches nameFilter as a case-sensitive substring; strpos of an empty needle is 1, so "" matches all.
func (s *RoomStore) List(ctx context.Context, nameFilter string, state domain.RoomState) ([]domain.Room, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+roomColumns+`
		FROM rooms
		WHERE state = $1 AND strpos(name, $2) > 0
		ORDER BY created_at DESC, id DESC`,
		string(state), nameFilter)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Room
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}

	return out, rows.Err()
}

// Update locks the room row for the duration of fn, so concurrent updates from any instance serialize.
func (s *RoomStore) Update(ctx context.Context, id string, fn func(*domain.Room) (bool, error)) (*domain.Room, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrRoomNotFound
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	room, err := scanRoom(tx.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1::uuid FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	before := *room

	changed, err := fn(room)
	if err != nil {
		return &before, err
	}
	if !changed {
		return &before, nil
	}

	if _, err := tx.Exec(ctx,
		`UPDATE rooms SET current_count = $2, state = $3 WHERE id = $1::uuid`,
		room.ID, room.Count, string(room.State),
	); err != nil {
		return nil, fmt.Errorf("update room: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return room, nil
}

func scanRoom(row pgx.Row) (*domain.Room, error) {
	var (
		r     domain.Room
		state string
	)
	err := row.Scan(&r.ID, &r.Name, &r.Password, &r.Max, &r.Count, &state, &r.CreatorID, &r.CreatorNickname, &r.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, err
	}
	r.State = domain.RoomState(state)

	return &r, nil
}
