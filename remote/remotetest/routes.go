package remotetest

import (
	"net/http"

	"github.com/justinas/alice"

	"github.com/collapsinghierarchy/repsync/remote"
)

// Handler wires the service endpoints behind the request log and the
// failure-injection middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("PUT "+remote.PathRegister, s.Register)
	mux.HandleFunc("PUT "+remote.PathSubmit, s.Submit)
	mux.HandleFunc("DELETE "+remote.PathRevoke+"{id}", s.Revoke)

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	chain := alice.New(s.logRequest, s.injectFailure)
	return chain.Then(mux)
}

func (s *Server) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, r.Method+" "+r.URL.Path)
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) injectFailure(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		fail := s.fail
		s.mu.Unlock()
		if fail != nil {
			if code := fail(r); code != 0 {
				http.Error(w, http.StatusText(code), code)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
