// Package stub implements a stand-in for the local backend's group
// members endpoint. It authenticates with package auth, which rejects some
// tokens the backend would take (other HMAC algorithms, a missing exp), and
// answers with the caller as the only member, so a minted token and its
// printed curl command can be checked without the real service running.
package stub

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dskow/devtoken/internal/apierror"
	"github.com/dskow/devtoken/internal/auth"
	"github.com/dskow/devtoken/internal/metrics"
	"github.com/dskow/devtoken/internal/middleware"
)

// GroupMember mirrors the backend's group member record.
type GroupMember struct {
	ID       int64     `json:"id"`
	GroupID  int64     `json:"group_id"`
	UserID   int64     `json:"user_id"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// GroupMembersResponse is the body of GET /api/group-members.
type GroupMembersResponse struct {
	Members []GroupMember `json:"members"`
}

// Options configures the stub handler.
type Options struct {
	Secret []byte
	// Path is the group members route; defaults to /api/group-members.
	Path string
	// Now overrides the clock for token validation and joined_at.
	Now func() time.Time
}

// NewHandler returns the stub backend with its middleware stack:
// RequestID → Recovery → Logging → Auth → routes. /healthz and /metrics
// bypass authentication.
func NewHandler(opts Options, logger *slog.Logger) http.Handler {
	if opts.Path == "" {
		opts.Path = "/api/group-members"
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	api := http.NewServeMux()
	api.HandleFunc(opts.Path, func(w http.ResponseWriter, r *http.Request) {
		groupMembers(w, r, now)
	})
	api.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		apierror.WriteJSON(w, r, http.StatusNotFound, apierror.NotFound, "no such endpoint")
	})

	authed := auth.Middleware(opts.Secret, opts.Now, logger)(api)

	root := http.NewServeMux()
	root.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}` + "\n")) //nolint:errcheck
	})
	root.Handle("/metrics", metrics.Handler())
	root.Handle("/", authed)

	var handler http.Handler = root
	handler = middleware.Logging(logger)(handler)
	handler = middleware.Recovery(logger)(handler)
	handler = middleware.RequestID(handler)
	return handler
}

func groupMembers(w http.ResponseWriter, r *http.Request, now func() time.Time) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		apierror.WriteJSON(w, r, http.StatusMethodNotAllowed, apierror.MethodNotAllowed, "only GET is supported")
		return
	}

	str := r.URL.Query().Get("groupID")
	if str == "" {
		apierror.WriteJSON(w, r, http.StatusBadRequest, apierror.BadRequest, "missing groupID")
		return
	}
	groupID, err := strconv.ParseInt(str, 10, 64)
	if err != nil {
		apierror.WriteJSON(w, r, http.StatusBadRequest, apierror.BadRequest, "invalid groupID")
		return
	}

	userID, ok := auth.UserID(r.Context())
	if !ok {
		apierror.WriteJSON(w, r, http.StatusInternalServerError, apierror.InternalError, "no authenticated user")
		return
	}

	resp := GroupMembersResponse{
		Members: []GroupMember{{
			ID:       1,
			GroupID:  groupID,
			UserID:   userID,
			Role:     "admin",
			JoinedAt: now().UTC().Truncate(time.Second),
		}},
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp) //nolint:errcheck
}
