package httpapi

import (
	"database/sql"
	"net/http"
)

func NewMux(db *sql.DB, broker ConnectionChecker, metrics http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	registerHealthcheck(mux, db, broker)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}
	return mux
}
