package http

import (
	"database/sql"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/classquiz/internal/attempt"
	auth "github.com/mind-engage/classquiz/internal/auth/middleware"
	"github.com/mind-engage/classquiz/internal/rbac"
	"github.com/mind-engage/classquiz/internal/storage"
	"github.com/mind-engage/classquiz/internal/store"
)

type Deps struct {
	Store    store.Store
	Attempts *attempt.Service
	Auth     *auth.AuthService
	Users    *auth.UserStore
	Blobs    storage.BlobStore

	Events    attempt.EventRecorder // optional
	Gradebook GradebookPusher       // optional
	RoleDB    *sql.DB               // optional; roles are read from the users table
}

// Mount registers the public auth routes and the protected API on r.
func Mount(r chi.Router, d Deps) {
	r.Post("/auth/register", auth.RegisterHandler(d.Auth, d.Users))
	r.Post("/auth/login", auth.LoginHandler(d.Auth, d.Users))

	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(d.Auth))
		if d.RoleDB != nil {
			pr.Use(auth.AttachRoleFromDB(d.RoleDB, true))
		}

		pr.With(rbac.Require("user:change_password")).
			Post("/users/change-password", auth.ChangePasswordHandler(d.Users))

		// classes
		pr.With(rbac.Require("class:create")).Post("/classes", CreateClassHandler(d.Store))
		pr.With(rbac.Require("class:view")).Get("/classes", ListClassesHandler(d.Store))
		pr.With(rbac.Require("class:view")).Get("/classes/{code}", GetClassHandler(d.Store))
		pr.With(ownedClass(d.Store, "class:delete_own")...).Delete("/classes/{code}", DeleteClassHandler(d.Store))
		pr.With(rbac.Require("class:join")).Post("/classes/join", JoinClassHandler(d.Store))
		pr.With(rbac.Require("class:join")).Delete("/classes/{code}/enrollment", LeaveClassHandler(d.Store))

		// quizzes
		pr.With(rbac.Require("quiz:create")).Post("/quizzes", CreateQuizHandler(d.Store))
		pr.With(rbac.Require("quiz:create")).Get("/quizzes", ListQuizzesHandler(d.Store))
		pr.With(rbac.Require("quiz:view"), withQuiz(d.Store)).Get("/quizzes/{quizID}", GetQuizHandler(d.Store))
		pr.With(ownedQuiz(d.Store, "quiz:create")...).Put("/quizzes/{quizID}", UpdateQuizHandler(d.Store))
		pr.With(ownedQuiz(d.Store, "quiz:create")...).Delete("/quizzes/{quizID}", DeleteQuizHandler(d.Store))
		pr.With(ownedQuiz(d.Store, "quiz:assign")...).Post("/quizzes/{quizID}/assign", AssignQuizHandler(d.Store))
		pr.With(ownedQuiz(d.Store, "quiz:assign")...).Post("/quizzes/{quizID}/unassign", UnassignQuizHandler(d.Store))
		pr.With(ownedQuiz(d.Store, "quiz:export")...).Post("/quizzes/{quizID}/export", ExportQuizHandler(d.Blobs))
		pr.With(rbac.Require("quiz:export")).Get("/exports/*", ServeExportHandler(d.Blobs))

		// results
		pr.With(ownedQuiz(d.Store, "result:view-all")...).
			Get("/quizzes/{quizID}/results", ListQuizResultsHandler(d.Store))
		pr.With(ownedQuiz(d.Store, "result:view-all")...).
			Get("/quizzes/{quizID}/results/summary", QuizResultsSummaryHandler(d.Store))
		pr.With(ownedQuiz(d.Store, "result:release")...).
			Post("/quizzes/{quizID}/release", ReleaseQuizHandler(d.Store, d.Events, d.Gradebook))
		pr.With(ownedQuiz(d.Store, "result:release")...).
			Post("/quizzes/{quizID}/results/{studentID}/release", ReleaseResultHandler(d.Store, d.Events, d.Gradebook))
		pr.With(rbac.Require("result:view-own")).
			Get("/quizzes/{quizID}/result", MyQuizResultHandler(d.Store))

		pr.Route("/me", func(mr chi.Router) {
			mr.Use(rbac.Require("result:view-own"))
			mr.Get("/quizzes", MyQuizzesHandler(d.Store))
			mr.Get("/results", MyResultsHandler(d.Store))
			mr.Get("/stats", MyStatsHandler(d.Store))
		})

		// attempts
		pr.Route("/attempts", func(ar chi.Router) {
			ar.With(rbac.Require("attempt:create")).Post("/", StartAttemptHandler(d.Attempts))
			ar.With(rbac.Require("attempt:view-own")).Get("/{attemptID}", GetAttemptHandler(d.Attempts))
			ar.With(rbac.Require("attempt:save")).Put("/{attemptID}/answers/{index}", RecordAnswerHandler(d.Attempts))
			ar.With(rbac.Require("attempt:save")).Post("/{attemptID}/advance", AdvanceHandler(d.Attempts))
			ar.With(rbac.Require("attempt:save")).Post("/{attemptID}/signals", SignalHandler(d.Attempts))
			ar.With(rbac.Require("attempt:submit")).Post("/{attemptID}/submit", SubmitAttemptHandler(d.Attempts))
			ar.With(rbac.Require("attempt:save")).Delete("/{attemptID}", DiscardAttemptHandler(d.Attempts))
		})
	})
}
