package main

import (
	"context"
	"net/http"
	"strings"

	"github.com/AdamBeresnev/knockout-cup/internal/bracket"
	"github.com/AdamBeresnev/knockout-cup/internal/config"
	"github.com/AdamBeresnev/knockout-cup/internal/httputil"
	"github.com/AdamBeresnev/knockout-cup/internal/middleware"
	"github.com/AdamBeresnev/knockout-cup/internal/service"
	"github.com/AdamBeresnev/knockout-cup/internal/store"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
)

func newRouter(a *app, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", middleware.ActorRoleHeader, middleware.ActorIDHeader},
		MaxAge:         300,
	}))

	r.Get("/ws/tournaments/{tournamentID}", a.hub.ServeWs)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Actor)

		r.Route("/tournaments", func(r chi.Router) {
			r.Post("/", func(w http.ResponseWriter, r *http.Request) {
				var input service.TournamentInput
				if err := httputil.ReadJSON(w, r, &input); err != nil {
					httputil.Error(w, err)
					return
				}
				tournament, err := a.tournaments.CreateTournament(r.Context(), input)
				if err != nil {
					httputil.Error(w, err)
					return
				}
				httputil.WriteJSON(w, http.StatusCreated, tournament)
			})

			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				tournaments, err := a.tournaments.ListTournaments(r.Context())
				if err != nil {
					httputil.Error(w, err)
					return
				}
				httputil.WriteJSON(w, http.StatusOK, tournaments)
			})

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", withID(func(ctx context.Context, id uuid.UUID) (any, error) {
					return a.tournaments.GetTournament(ctx, id)
				}))

				r.Delete("/", func(w http.ResponseWriter, r *http.Request) {
					id, err := httputil.URLParamUUID(r, "id")
					if err != nil {
						httputil.Error(w, err)
						return
					}
					if err := a.tournaments.DeleteTournament(r.Context(), id); err != nil {
						httputil.Error(w, err)
						return
					}
					w.WriteHeader(http.StatusNoContent)
				})

				r.Post("/participants", func(w http.ResponseWriter, r *http.Request) {
					id, err := httputil.URLParamUUID(r, "id")
					if err != nil {
						httputil.Error(w, err)
						return
					}
					var body struct {
						OwnerID uuid.UUID `json:"owner_id"`
					}
					if err := httputil.ReadJSON(w, r, &body); err != nil {
						httputil.Error(w, err)
						return
					}
					tournament, err := a.tournaments.AddParticipant(r.Context(), id, body.OwnerID)
					if err != nil {
						httputil.Error(w, err)
						return
					}
					httputil.WriteJSON(w, http.StatusCreated, tournament)
				})

				r.Delete("/participants/{ownerID}", func(w http.ResponseWriter, r *http.Request) {
					id, err := httputil.URLParamUUID(r, "id")
					if err != nil {
						httputil.Error(w, err)
						return
					}
					ownerID, err := httputil.URLParamUUID(r, "ownerID")
					if err != nil {
						httputil.Error(w, err)
						return
					}
					tournament, err := a.tournaments.RemoveParticipant(r.Context(), id, ownerID)
					if err != nil {
						httputil.Error(w, err)
						return
					}
					httputil.WriteJSON(w, http.StatusOK, tournament)
				})

				r.Get("/teams", withID(func(ctx context.Context, id uuid.UUID) (any, error) {
					return a.resolver.Resolve(ctx, id)
				}))

				r.Post("/bracket", func(w http.ResponseWriter, r *http.Request) {
					id, err := httputil.URLParamUUID(r, "id")
					if err != nil {
						httputil.Error(w, err)
						return
					}
					b, err := a.brackets.Generate(r.Context(), id)
					if err != nil {
						httputil.Error(w, err)
						return
					}
					httputil.WriteJSON(w, http.StatusCreated, b)
				})

				r.Get("/bracket", withID(func(ctx context.Context, id uuid.UUID) (any, error) {
					return a.brackets.GetBracket(ctx, id)
				}))
			})
		})

		r.Route("/teams", func(r chi.Router) {
			r.Post("/", func(w http.ResponseWriter, r *http.Request) {
				var input service.TeamInput
				if err := httputil.ReadJSON(w, r, &input); err != nil {
					httputil.Error(w, err)
					return
				}
				team, err := a.teams.CreateTeam(r.Context(), input)
				if err != nil {
					httputil.Error(w, err)
					return
				}
				httputil.WriteJSON(w, http.StatusCreated, team)
			})

			r.Get("/{id}", withID(func(ctx context.Context, id uuid.UUID) (any, error) {
				return a.teams.GetTeam(ctx, id)
			}))

			r.Put("/{id}/roster", func(w http.ResponseWriter, r *http.Request) {
				id, err := httputil.URLParamUUID(r, "id")
				if err != nil {
					httputil.Error(w, err)
					return
				}
				var body struct {
					Starters    []uuid.UUID `json:"starters"`
					Substitutes []uuid.UUID `json:"substitutes"`
				}
				if err := httputil.ReadJSON(w, r, &body); err != nil {
					httputil.Error(w, err)
					return
				}
				team, err := a.teams.ReplaceRoster(r.Context(), id, body.Starters, body.Substitutes)
				if err != nil {
					httputil.Error(w, err)
					return
				}
				httputil.WriteJSON(w, http.StatusOK, team)
			})

			r.Delete("/{id}", func(w http.ResponseWriter, r *http.Request) {
				id, err := httputil.URLParamUUID(r, "id")
				if err != nil {
					httputil.Error(w, err)
					return
				}
				if err := a.teams.DeleteTeam(r.Context(), id); err != nil {
					httputil.Error(w, err)
					return
				}
				w.WriteHeader(http.StatusNoContent)
			})
		})

		r.Route("/matches", func(r chi.Router) {
			r.Post("/", func(w http.ResponseWriter, r *http.Request) {
				var input service.MatchInput
				if err := httputil.ReadJSON(w, r, &input); err != nil {
					httputil.Error(w, err)
					return
				}
				match, err := a.matches.CreateMatch(r.Context(), input)
				if err != nil {
					httputil.Error(w, err)
					return
				}
				httputil.WriteJSON(w, http.StatusCreated, match)
			})

			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				filter, err := matchFilter(r)
				if err != nil {
					httputil.Error(w, err)
					return
				}
				matches, err := a.matches.ListMatches(r.Context(), filter)
				if err != nil {
					httputil.Error(w, err)
					return
				}
				httputil.WriteJSON(w, http.StatusOK, matches)
			})

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", withID(func(ctx context.Context, id uuid.UUID) (any, error) {
					return a.matches.GetMatchDetail(ctx, id)
				}))

				r.Patch("/", func(w http.ResponseWriter, r *http.Request) {
					id, err := httputil.URLParamUUID(r, "id")
					if err != nil {
						httputil.Error(w, err)
						return
					}
					var update service.MatchUpdate
					if err := httputil.ReadJSON(w, r, &update); err != nil {
						httputil.Error(w, err)
						return
					}
					actor, _ := middleware.GetActorFromContext(r.Context())
					match, err := a.matches.UpdateMatch(r.Context(), id, actor, update)
					if err != nil {
						httputil.Error(w, err)
						return
					}
					httputil.WriteJSON(w, http.StatusOK, match)
				})

				r.Delete("/", func(w http.ResponseWriter, r *http.Request) {
					id, err := httputil.URLParamUUID(r, "id")
					if err != nil {
						httputil.Error(w, err)
						return
					}
					if err := a.matches.DeleteMatch(r.Context(), id); err != nil {
						httputil.Error(w, err)
						return
					}
					w.WriteHeader(http.StatusNoContent)
				})

				r.Post("/start", withID(func(ctx context.Context, id uuid.UUID) (any, error) {
					return a.matches.StartMatch(ctx, id)
				}))
				r.Post("/end-first-half", withID(func(ctx context.Context, id uuid.UUID) (any, error) {
					return a.matches.EndFirstHalf(ctx, id)
				}))
				r.Post("/start-second-half", withID(func(ctx context.Context, id uuid.UUID) (any, error) {
					return a.matches.StartSecondHalf(ctx, id)
				}))
				r.Post("/finish", withID(func(ctx context.Context, id uuid.UUID) (any, error) {
					return a.matches.FinishMatch(ctx, id)
				}))

				r.Post("/minute", func(w http.ResponseWriter, r *http.Request) {
					id, err := httputil.URLParamUUID(r, "id")
					if err != nil {
						httputil.Error(w, err)
						return
					}
					var body struct {
						Minute int `json:"minute"`
					}
					if err := httputil.ReadJSON(w, r, &body); err != nil {
						httputil.Error(w, err)
						return
					}
					actor, _ := middleware.GetActorFromContext(r.Context())
					match, err := a.matches.UpdateMinute(r.Context(), id, actor, body.Minute)
					if err != nil {
						httputil.Error(w, err)
						return
					}
					httputil.WriteJSON(w, http.StatusOK, match)
				})

				r.Post("/goals", withBody(func(ctx context.Context, id uuid.UUID, input service.GoalInput) (any, error) {
					return a.matches.RecordGoal(ctx, id, input)
				}))
				r.Post("/cards", withBody(func(ctx context.Context, id uuid.UUID, input service.CardInput) (any, error) {
					return a.matches.RecordCard(ctx, id, input)
				}))
				r.Post("/substitutions", withBody(func(ctx context.Context, id uuid.UUID, input service.SubstitutionInput) (any, error) {
					return a.matches.RecordSubstitution(ctx, id, input)
				}))
				r.Post("/penalties", withBody(func(ctx context.Context, id uuid.UUID, input penaltiesInput) (any, error) {
					return a.matches.RecordPenalties(ctx, id, input.PenaltyScore1, input.PenaltyScore2)
				}))

				r.Post("/sync-scores", withID(func(ctx context.Context, id uuid.UUID) (any, error) {
					return a.matches.SyncScoresFromEvents(ctx, id)
				}))

				r.Post("/progress", withID(func(ctx context.Context, id uuid.UUID) (any, error) {
					if err := a.progression.Progress(ctx, id); err != nil {
						return nil, err
					}
					return a.matches.GetMatch(ctx, id)
				}))

				r.Get("/events", withID(func(ctx context.Context, id uuid.UUID) (any, error) {
					return a.matches.ListEvents(ctx, id)
				}))
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httputil.NotFound(w, "Route not found", nil)
	})

	return r
}

// matchFilter reads ?tournament_id=, ?status= and ?referee_id=.
func matchFilter(r *http.Request) (store.MatchFilter, error) {
	var filter store.MatchFilter
	var err error
	if filter.TournamentID, err = httputil.QueryUUID(r, "tournament_id"); err != nil {
		return filter, err
	}
	if filter.RefereeID, err = httputil.QueryUUID(r, "referee_id"); err != nil {
		return filter, err
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := bracket.ParseMatchStatus(strings.ToUpper(raw))
		if err != nil {
			return filter, err
		}
		filter.Status = &status
	}
	return filter, nil
}

type penaltiesInput struct {
	PenaltyScore1 int `json:"penalty_score_1"`
	PenaltyScore2 int `json:"penalty_score_2"`
}

// withID serves the common shape of a handler that reads {id}, calls the
// engine and answers 200 with the result.
func withID(fn func(ctx context.Context, id uuid.UUID) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httputil.URLParamUUID(r, "id")
		if err != nil {
			httputil.Error(w, err)
			return
		}
		result, err := fn(r.Context(), id)
		if err != nil {
			httputil.Error(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, result)
	}
}

// withBody is withID for handlers that also take a JSON body.
func withBody[T any](fn func(ctx context.Context, id uuid.UUID, input T) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := httputil.URLParamUUID(r, "id")
		if err != nil {
			httputil.Error(w, err)
			return
		}
		var input T
		if err := httputil.ReadJSON(w, r, &input); err != nil {
			httputil.Error(w, err)
			return
		}
		result, err := fn(r.Context(), id, input)
		if err != nil {
			httputil.Error(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, result)
	}
}
