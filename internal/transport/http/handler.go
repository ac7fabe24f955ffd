package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cwrk-planet/presence-service/internal/broadcast"
	"github.com/cwrk-planet/presence-service/internal/domain"
	httpmw "github.com/cwrk-planet/presence-service/internal/transport/http/middleware"
	"github.com/cwrk-planet/presence-service/pkg/httputil"
)

type Directory interface {
	CreateRoom(ctx context.Context, in domain.NewRoom, creator domain.Creator) (*domain.Room, error)
	ListRooms(ctx context.Context, nameFilter string) ([]domain.RoomSnapshot, error)
}

type Presence interface {
	Join(ctx context.Context, roomID string, userID int64, password string) (bool, error)
}

type Lobby interface {
	LobbyChanged(ctx context.Context)
}

type Handler struct {
	dir      Directory
	presence Presence
	lobby    Lobby
	hub      *broadcast.Hub

	sseLifetime     time.Duration
	sseRetry        time.Duration
	sseWriteTimeout time.Duration
}

type HandlerConfig struct {
	SSELifetime     time.Duration
	SSERetry        time.Duration
	SSEWriteTimeout time.Duration
}

func NewHandler(dir Directory, presence Presence, lobby Lobby, hub *broadcast.Hub, cfg HandlerConfig) *Handler {
	if cfg.SSELifetime <= 0 {
		cfg.SSELifetime = 60 * time.Second
	}
	if cfg.SSERetry <= 0 {
		cfg.SSERetry = time.Second
	}
	if cfg.SSEWriteTimeout <= 0 {
		cfg.SSEWriteTimeout = 15 * time.Second
	}

	return &Handler{
		dir:         dir,
		presence:    presence,
		lobby:       lobby,
		hub:         hub,
		sseLifetime:     cfg.SSELifetime,
		sseRetry:        cfg.SSERetry,
		sseWriteTimeout: cfg.SSEWriteTimeout,
	}
}

type createRoomRequest struct {
	RoomName    string                `json:"roomName"`
	RoomMax     int                   `json:"roomMax"`
	HasPassword bool                  `json:"hasPassword"`
	Password    string                `json:"password"`
	Pose        []domain.ExerciseStep `json:"pose"`
}

// POST /api/multi/lobby
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	id, ok := httpmw.IdentityFromCtx(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	var in createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid JSON", nil)
		return
	}
	password := ""
	if in.HasPassword {
		password = in.Password
	}

	room, err := h.dir.CreateRoom(r.Context(), domain.NewRoom{
		Name:      in.RoomName,
		Max:       in.RoomMax,
		Password:  password,
		Exercises: in.Pose,
	}, domain.Creator{UserID: id.UserID, Nickname: id.Nickname})
	if err != nil {
		httputil.Error(w, toHTTP(err), "create room failed", map[string]any{"reason": err.Error()})
		return
	}
	h.lobby.LobbyChanged(r.Context())

	httputil.OK(w, domain.SnapshotOf(room, room.Exercises))
}

// GET /api/multi/rooms?roomName=
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.dir.ListRooms(r.Context(), r.URL.Query().Get("roomName"))
	if err != nil {
		slog.Error("list rooms", httputil.Attr(r), slog.Any("err", err))
		httputil.Error(w, toHTTP(err), "list rooms failed", nil)
		return
	}

	httputil.OK(w, rooms)
}

// roomID accepts both "abc" and 123 so older clients sending numeric ids still parse.
type roomID string

func (id *roomID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if strings.HasPrefix(s, `"`) {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*id = roomID(v)
		return nil
	}
	*id = roomID(s)

	return nil
}

type enterRequest struct {
	RoomID   roomID `json:"roomId"`
	Password string `json:"password"`
}

// POST /api/multi/lobby/enter answers a plain true/false.
func (h *Handler) Enter(w http.ResponseWriter, r *http.Request) {
	id, ok := httpmw.IdentityFromCtx(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	var in enterRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.RoomID == "" {
		httputil.Error(w, http.StatusBadRequest, "invalid JSON", nil)
		return
	}

	joined, err := h.presence.Join(r.Context(), string(in.RoomID), id.UserID, in.Password)
	if err != nil {
		slog.Info("enter refused",
			httputil.Attr(r),
			slog.String("room_id", string(in.RoomID)),
			slog.Int64("user_id", id.UserID),
			slog.Any("err", err))
	}

	httputil.OK(w, joined)
}
