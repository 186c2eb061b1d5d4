package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/pGUPT4/news-app/internal/apperror"
	"github.com/pGUPT4/news-app/internal/session"
)

// RequireSession lets a request through only when the session loaded by
// session.Manager.Middleware is authenticated (a username or a user id is
// set). Otherwise it answers 401 with the usual error body.
//
// Mount it after the session middleware; without it every request looks
// anonymous.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !session.FromContext(r.Context()).State.Authenticated() {
			writeError(w, apperror.Unauthorized("Unauthorized"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Recoverer turns a panic in a handler into a 500 with the same JSON body
// as any other internal error, and logs the stack.
//
// http.ErrAbortHandler is re-raised: net/http uses it to abort a response
// on purpose.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			slog.Error("panic recovered",
				slog.String("requestID", chimiddleware.GetReqID(r.Context())),
				slog.String("panic", fmt.Sprint(rec)),
				slog.String("stack", string(debug.Stack())),
			)
			writeError(w, fmt.Errorf("panic: %v", rec))
		}()

		next.ServeHTTP(w, r)
	})
}
