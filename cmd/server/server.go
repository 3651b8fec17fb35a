// cmd/server/server.go
package main

import (
	"net/http"
	"time"

	"github.com/conferia/roombook/internal/api"
	"github.com/conferia/roombook/internal/api/auth"
	availabilityapi "github.com/conferia/roombook/internal/api/availability"
	"github.com/conferia/roombook/internal/api/blockings"
	"github.com/conferia/roombook/internal/api/bookings"
	"github.com/conferia/roombook/internal/api/rooms"
	"github.com/conferia/roombook/internal/config"
	"github.com/conferia/roombook/internal/ratelimit"
)

func newServer(cfg *config.Config, limiter *ratelimit.Limiter, addr string) *http.Server {
	router := http.NewServeMux()

	// Setup middleware chain
	handler := api.ChainMiddleware(
		router,
		api.WithRateLimit(limiter, cfg.App.Environment != "development"),
		api.WithAuth,
		api.WithLogging,
		api.WithRecovery,
		api.WithRequestID,
		api.WithContentType,
	)

	registerRoutes(router)

	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func registerRoutes(mux *http.ServeMux) {
	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Auth routes
	mux.HandleFunc("POST /api/v1/auth/register", auth.HandleRegister)
	mux.HandleFunc("POST /api/v1/auth/login", auth.HandleLogin)
	mux.HandleFunc("POST /api/v1/auth/logout", auth.HandleLogout)
	mux.HandleFunc("GET /api/v1/auth/me", auth.HandleMe)

	// Room routes
	mux.HandleFunc("POST /api/v1/rooms", rooms.HandleCreateRoom)
	mux.HandleFunc("GET /api/v1/rooms", rooms.HandleListRooms)
	mux.HandleFunc("GET /api/v1/rooms/{id}", rooms.HandleGetRoom)
	mux.HandleFunc("PUT /api/v1/rooms/{id}", rooms.HandleUpdateRoom)
	mux.HandleFunc("PUT /api/v1/rooms/{id}/bookable-hours", rooms.HandleSetBookableHours)
	mux.HandleFunc("POST /api/v1/rooms/{id}/nonbookable-periods", rooms.HandleCreateNonbookablePeriod)

	// Availability
	mux.HandleFunc("GET /api/v1/availability", availabilityapi.HandleCheckAvailability)

	// Booking routes
	mux.HandleFunc("POST /api/v1/bookings", bookings.HandleCreateBooking)
	mux.HandleFunc("GET /api/v1/bookings/{id}", bookings.HandleGetBooking)
	mux.HandleFunc("PATCH /api/v1/bookings/{id}", bookings.HandleModifyBooking)
	mux.HandleFunc("POST /api/v1/bookings/{id}/cancel", bookings.HandleCancelBooking)
	mux.HandleFunc("POST /api/v1/bookings/{id}/approve", bookings.HandleApproveBooking)
	mux.HandleFunc("POST /api/v1/bookings/{id}/reject", bookings.HandleRejectBooking)
	mux.HandleFunc("POST /api/v1/bookings/{id}/occurrences/{date}/cancel", bookings.HandleCancelOccurrence)
	mux.HandleFunc("POST /api/v1/bookings/{id}/occurrences/{date}/reject", bookings.HandleRejectOccurrence)

	// Blocking routes
	mux.HandleFunc("POST /api/v1/blockings", blockings.HandleCreateBlocking)
	mux.HandleFunc("GET /api/v1/blockings/{id}", blockings.HandleGetBlocking)
	mux.HandleFunc("PATCH /api/v1/blockings/{id}", blockings.HandlePatchBlocking)
	mux.HandleFunc("POST /api/v1/blockings/{id}/rooms/{roomID}/approve", blockings.HandleApproveBlockedRoom)
	mux.HandleFunc("POST /api/v1/blockings/{id}/rooms/{roomID}/reject", blockings.HandleRejectBlockedRoom)
}
