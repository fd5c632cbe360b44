package http

import (
	"net/http"

	"trivia-sync-service/internal/app"
	"trivia-sync-service/internal/broadcast"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
)

// NewRouter wires the REST API, the websocket stream and the health check.
func NewRouter(quizzes *app.QuizService, games *app.GameService, subscriber broadcast.Subscriber) http.Handler {
	api := &API{quizzes: quizzes, games: games}
	ws := NewWSHandler(games, subscriber)

	mux := httprouter.New()
	mux.GET("/healthz", func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		_, _ = w.Write([]byte("ok"))
	})

	mux.GET("/api/quizzes", api.listQuizzes)
	mux.POST("/api/quizzes", api.createQuiz)
	mux.GET("/api/quizzes/:id", api.getQuiz)
	mux.PUT("/api/quizzes/:id", api.updateQuiz)
	mux.DELETE("/api/quizzes/:id", api.deleteQuiz)

	mux.POST("/api/sessions", api.createSession)
	mux.GET("/api/sessions/:code", api.getSession)
	mux.PATCH("/api/sessions/:code", api.updateSession)
	mux.GET("/api/sessions/:code/snapshot", api.snapshot)
	mux.GET("/api/sessions/:code/leaderboard", api.leaderboard)
	mux.GET("/api/sessions/:code/results", api.results)
	mux.GET("/api/sessions/:code/qr.png", api.joinQR)
	mux.POST("/api/sessions/:code/join", api.join)
	mux.POST("/api/sessions/:code/leave", api.leave)
	mux.POST("/api/sessions/:code/answer", api.submitAnswer)
	mux.POST("/api/sessions/:code/start", api.transition(games.StartGame))
	mux.POST("/api/sessions/:code/reveal", api.transition(games.ShowResults))
	mux.POST("/api/sessions/:code/next", api.transition(games.NextQuestion))
	mux.POST("/api/sessions/:code/finish", api.transition(games.FinishGame))

	mux.HandlerFunc(http.MethodGet, "/ws", ws.ServeWS)

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(mux)
}
