package router

import (
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"social-go/internal/config"
	"social-go/internal/db"
	"social-go/internal/events"
	"social-go/internal/http/handlers"
	"social-go/internal/http/middleware"
	"social-go/internal/media"
	"social-go/internal/security"
)

func Setup(cfg *config.Config, db *db.DB, sessionStore *security.SessionStore, hub *events.Hub, files *media.Store, logger *log.Logger) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.Logging(logger))

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(db, sessionStore, cfg, logger)
	feedHandler := handlers.NewFeedHandler(db, hub, files, logger)
	dmHandler := handlers.NewDMHandler(db, hub, logger)
	groupHandler := handlers.NewGroupHandler(db, hub, logger)
	profileHandler := handlers.NewProfileHandler(db, logger)
	mediaHandler := handlers.NewMediaHandler(db, files, logger)
	adminHandler := handlers.NewAdminHandler(db, hub, cfg, logger)
	streamHandler := handlers.NewStreamHandler(hub, handlers.DefaultStreamSettings(), logger)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	r.HandleFunc("/api/register", authHandler.Register).Methods("POST")
	r.HandleFunc("/api/login", authHandler.Login).Methods("POST")
	r.HandleFunc("/api/logout", authHandler.Logout).Methods("POST")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.Authorization(sessionStore, db, logger))

	api.HandleFunc("/me", authHandler.Me).Methods("GET")
	api.HandleFunc("/stream", streamHandler.Stream).Methods("GET")

	api.HandleFunc("/posts", feedHandler.ListPosts).Methods("GET")
	api.HandleFunc("/posts", feedHandler.CreatePost).Methods("POST")
	api.HandleFunc("/posts/{id}", feedHandler.GetPost).Methods("GET")
	api.HandleFunc("/posts/{id}", feedHandler.UpdatePost).Methods("PUT")
	api.HandleFunc("/posts/{id}", feedHandler.DeletePost).Methods("DELETE")
	api.HandleFunc("/posts/{id}/likes", feedHandler.ToggleLike).Methods("POST")
	api.HandleFunc("/posts/{id}/loves", feedHandler.ToggleLove).Methods("POST")
	api.HandleFunc("/posts/{id}/comments", feedHandler.ListComments).Methods("GET")
	api.HandleFunc("/posts/{id}/comments", feedHandler.AddComment).Methods("POST")
	api.HandleFunc("/posts/{id}/comments/{cid}", feedHandler.UpdateComment).Methods("PUT")
	api.HandleFunc("/posts/{id}/comments/{cid}", feedHandler.DeleteComment).Methods("DELETE")

	api.HandleFunc("/users", dmHandler.ListUsers).Methods("GET")
	api.HandleFunc("/dms", dmHandler.ListConversations).Methods("GET")
	api.HandleFunc("/dms/{user}/messages", dmHandler.ListMessages).Methods("GET")
	api.HandleFunc("/dms/{user}/messages", dmHandler.SendMessage).Methods("POST")

	api.HandleFunc("/groups", groupHandler.ListGroups).Methods("GET")
	api.HandleFunc("/groups", groupHandler.CreateGroup).Methods("POST")
	api.HandleFunc("/groups/{id}", groupHandler.GetGroup).Methods("GET")
	api.HandleFunc("/groups/{id}/members", groupHandler.AddMember).Methods("POST")
	api.HandleFunc("/groups/{id}/messages", groupHandler.ListMessages).Methods("GET")
	api.HandleFunc("/groups/{id}/messages", groupHandler.SendMessage).Methods("POST")

	api.HandleFunc("/profiles/{username}", profileHandler.GetProfile).Methods("GET")
	api.HandleFunc("/profile/bio", profileHandler.UpdateBio).Methods("PUT")
	api.HandleFunc("/profile/avatar", profileHandler.UploadAvatar).Methods("POST")

	api.HandleFunc("/media", mediaHandler.UploadFile).Methods("POST")
	api.HandleFunc("/media", mediaHandler.ListFiles).Methods("GET")
	api.HandleFunc("/media/{id}", mediaHandler.DeleteFile).Methods("DELETE")

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(middleware.Admin(cfg, logger))

	admin.HandleFunc("/stats", adminHandler.Stats).Methods("GET")
	admin.HandleFunc("/invites", adminHandler.ListInvites).Methods("GET")
	admin.HandleFunc("/invites", adminHandler.CreateInvite).Methods("POST")
	admin.HandleFunc("/invites/{code}", adminHandler.DeleteInvite).Methods("DELETE")
	admin.HandleFunc("/users", adminHandler.GetAllUsers).Methods("GET")
	admin.HandleFunc("/users/export", adminHandler.ExportUsers).Methods("GET")
	admin.HandleFunc("/users/{username}/ban", adminHandler.SetBan).Methods("PUT")
	admin.HandleFunc("/users/{username}/promote", adminHandler.Promote).Methods("POST")
	admin.HandleFunc("/users/{username}", adminHandler.DeleteUser).Methods("DELETE")
	admin.HandleFunc("/posts", adminHandler.ListPosts).Methods("GET")
	admin.HandleFunc("/posts/{id}", adminHandler.UpdatePost).Methods("PUT")
	admin.HandleFunc("/posts/{id}", adminHandler.DeletePost).Methods("DELETE")
	admin.HandleFunc("/posts/{id}/ban-author", adminHandler.BanAuthor).Methods("POST")
	admin.HandleFunc("/logs", adminHandler.ListLogs).Methods("GET")
	admin.HandleFunc("/logs", adminHandler.ClearLogs).Methods("DELETE")

	r.PathPrefix(files.URLPrefix).Handler(http.StripPrefix(files.URLPrefix, http.FileServer(noDirFS{http.Dir(files.Dir)})))
	if cfg.StaticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(cfg.StaticDir)))
	}

	return r
}

// noDirFS hides directories so the upload dir cannot be listed.
type noDirFS struct {
	http.FileSystem
}

func (fs noDirFS) Open(name string) (http.File, error) {
	f, err := fs.FileSystem.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		f.Close()
		return nil, os.ErrNotExist
	}
	return f, nil
}
