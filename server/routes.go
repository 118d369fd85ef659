package server

import (
	"encoding/json"
	"expvar"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
)

// Handler returns the routes of the server, for use with a listener other
// than the one made by Run. Start must be called first.
func (s *RESTServer) Handler() http.Handler {
	return s.addRoutes()
}

func (s *RESTServer) addRoutes() http.Handler {
	var routes = []struct {
		method  string
		route   string
		role    Role // RoleUnknown means no API key is needed to access
		handler httprouter.Handle
	}{
		{"POST", "/deposit", RoleWrite, s.NewDepositHandler},
		{"GET", "/deposit", RoleRead, s.ListDepositHandler},
		{"GET", "/deposit/:jobid", RoleRead, s.DepositInfoHandler},
		{"GET", "/deposit/:jobid/events", RoleRead, s.DepositEventsHandler},

		// other
		{"GET", "/", RoleUnknown, WelcomeHandler},
		{"GET", "/debug/vars", RoleUnknown, VarHandler}, // standard route for expvars data
	}

	r := httprouter.New()
	for _, route := range routes {
		r.Handle(route.method,
			route.route,
			logWrapper(s.authzWrapper(route.handler, route.role)))
	}
	return r
}

// WelcomeHandler identifies the server.
func WelcomeHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	fmt.Fprintf(w, "Depositor (%s)\n", Version)
}

// VarHandler adapts the expvar default handler to the httprouter three parameter handler.
func VarHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	expvar.Handler().ServeHTTP(w, r)
}

// writeJSON sends val as the JSON body of a response with the given status.
func writeJSON(w http.ResponseWriter, status int, val interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(val); err != nil {
		log.Println("writeJSON:", err)
	}
}

// authzWrapper returns a Handler which will first verify the user token as
// having at least the given Role. The user name is added as a parameter
// "username".
func (s *RESTServer) authzWrapper(handler httprouter.Handle, leastRole Role) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		token := r.Header.Get("X-Api-Key")
		user, role, err := s.Validator.TokenDecode(token)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprintln(w, err.Error())
			return
		}
		if role < leastRole {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprintln(w, "Forbidden")
			return
		}

		// replace any username given in the request
		found := false
		for i := range ps {
			if ps[i].Key == "username" {
				ps[i].Value = user
				found = true
			}
		}
		if !found {
			ps = append(ps, httprouter.Param{Key: "username", Value: user})
		}
		handler(w, r, ps)
	}
}

// logWrapper takes a handler and returns a handler which does the same thing,
// after first logging the request.
func logWrapper(handler httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		start := time.Now()
		handler(w, r, ps)
		log.Println(r.Method, r.URL, time.Since(start))
	}
}
